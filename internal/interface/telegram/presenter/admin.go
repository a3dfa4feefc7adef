package presenter

import (
	"fmt"
	"strings"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/application/query"
	"github.com/dnevnik-hub/dnevnik-homework-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN PRESENTER
// Форматирует админ-панель: статистику доступа и списки ключей.
// Имена пользователей приходят из Telegram и экранируются.
// ══════════════════════════════════════════════════════════════════════════════

// maxKeysListed ограничивает список ключей одним сообщением.
const maxKeysListed = 20

// AdminView содержит отформатированный экран админ-панели.
type AdminView struct {
	// Text - основной текст сообщения (с HTML-разметкой).
	Text string

	// Keyboard - inline-клавиатура.
	Keyboard *InlineKeyboard

	// ParseMode - режим парсинга.
	ParseMode string
}

// AdminPresenter форматирует экраны админ-панели.
type AdminPresenter struct {
	keyboardBuilder *KeyboardBuilder
}

// NewAdminPresenter создаёт новый презентер админ-панели.
func NewAdminPresenter() *AdminPresenter {
	return &AdminPresenter{
		keyboardBuilder: NewKeyboardBuilder(),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// PANEL AND KEY SCREENS
// ─────────────────────────────────────────────────────────────────────────────

// FormatPanel форматирует шапку админ-панели со статистикой.
func (p *AdminPresenter) FormatPanel(stats *query.AccessStatsResult) *AdminView {
	text := fmt.Sprintf(
		"🔐 <b>Админ-панель</b>\n\n"+
			"📊 Статистика:\n"+
			"• Активных ключей: %d\n"+
			"• Использованных ключей: %d\n"+
			"• Пользователей: %d\n",
		stats.UnusedKeys, stats.UsedKeys, stats.Users,
	)

	return &AdminView{
		Text:      text,
		Keyboard:  p.keyboardBuilder.AdminMenuKeyboard(),
		ParseMode: "HTML",
	}
}

// FormatKeyCreated форматирует ответ на создание ключа.
func (p *AdminPresenter) FormatKeyCreated(token string) *AdminView {
	text := fmt.Sprintf(
		"✅ <b>Ключ создан!</b>\n\n"+
			"<code>%s</code>\n\n"+
			"👆 Нажми чтобы скопировать.\n"+
			"Отправь этот ключ другу — он введёт его боту для активации.",
		token,
	)

	return &AdminView{
		Text:      text,
		Keyboard:  p.keyboardBuilder.BackToAdminKeyboard(),
		ParseMode: "HTML",
	}
}

// FormatUnusedKeys форматирует список неактивированных ключей.
func (p *AdminPresenter) FormatUnusedKeys(keys []query.KeyDTO) *AdminView {
	if len(keys) == 0 {
		return &AdminView{
			Text: "📭 <b>Нет активных ключей</b>\n\n" +
				"Создай новый ключ чтобы пригласить друга.",
			Keyboard:  p.keyboardBuilder.BackToAdminKeyboard(),
			ParseMode: "HTML",
		}
	}

	var sb strings.Builder
	sb.WriteString("🔑 <b>Активные ключи:</b>\n\n")

	for i, key := range keys {
		if i >= maxKeysListed {
			break
		}
		sb.WriteString(fmt.Sprintf("<code>%s</code>\n   📅 Создан: %s\n\n",
			key.Token, timeutil.FormatRussianTime(key.CreatedAt)))
	}

	return &AdminView{
		Text:      sb.String(),
		Keyboard:  p.keyboardBuilder.KeysDeleteKeyboard(keyTokens(keys)),
		ParseMode: "HTML",
	}
}

// FormatUsedKeys форматирует список активированных ключей. Кнопки удаления
// остаются и здесь: удаление использованного ключа отзывает доступ.
func (p *AdminPresenter) FormatUsedKeys(keys []query.KeyDTO) *AdminView {
	if len(keys) == 0 {
		return &AdminView{
			Text: "📭 <b>Нет использованных ключей</b>\n\n" +
				"Пока никто не активировал ключи.",
			Keyboard:  p.keyboardBuilder.BackToAdminKeyboard(),
			ParseMode: "HTML",
		}
	}

	var sb strings.Builder
	sb.WriteString("👥 <b>Использованные ключи:</b>\n\n")

	for i, key := range keys {
		if i >= maxKeysListed {
			break
		}

		name := key.ActivatedByName
		if name == "" {
			name = fmt.Sprintf("ID:%d", key.ActivatedBy)
		}

		activated := "—"
		if key.ActivatedAt != nil {
			activated = timeutil.FormatRussianTime(*key.ActivatedAt)
		}

		sb.WriteString(fmt.Sprintf("<code>%s</code>\n   👤 %s\n   📅 Активирован: %s\n\n",
			key.Token, escapeHTML(name), activated))
	}

	return &AdminView{
		Text:      sb.String(),
		Keyboard:  p.keyboardBuilder.KeysDeleteKeyboard(keyTokens(keys)),
		ParseMode: "HTML",
	}
}

// keyTokens собирает токены для клавиатуры удаления.
func keyTokens(keys []query.KeyDTO) []string {
	tokens := make([]string, 0, len(keys))
	for _, key := range keys {
		tokens = append(tokens, key.Token)
	}
	return tokens
}
