package presenter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/application/query"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/homework"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/infrastructure/external/diary"
	"github.com/dnevnik-hub/dnevnik-homework-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HOMEWORK PRESENTER
// Форматирует сводку домашних заданий для Telegram. Текст заданий приходит
// из дневника и не доверяется: всё экранируется перед вставкой в HTML.
// ══════════════════════════════════════════════════════════════════════════════

// Rendering limits. A single Telegram message holds 4096 characters, so the
// assignment text is clipped and attachments are capped.
const (
	maxAssignmentRunes = 800
	maxMaterials       = 5
)

// HomeworkView содержит отформатированную сводку для отображения.
type HomeworkView struct {
	// Text - основной текст сообщения.
	Text string

	// Keyboard - inline-клавиатура.
	Keyboard *InlineKeyboard

	// ParseMode - режим парсинга ("HTML" или "" для простого текста).
	ParseMode string
}

// HomeworkPresenter форматирует сводки заданий для Telegram.
type HomeworkPresenter struct {
	keyboardBuilder *KeyboardBuilder

	// showMaterials управляет выводом ссылок на материалы.
	showMaterials bool
}

// NewHomeworkPresenter создаёт новый презентер заданий.
func NewHomeworkPresenter() *HomeworkPresenter {
	return &HomeworkPresenter{
		keyboardBuilder: NewKeyboardBuilder(),
		showMaterials:   true,
	}
}

// WithoutMaterials отключает ссылки на материалы в сводке.
func (p *HomeworkPresenter) WithoutMaterials() *HomeworkPresenter {
	p.showMaterials = false
	return p
}

// ─────────────────────────────────────────────────────────────────────────────
// DIGEST FORMATTING
// ─────────────────────────────────────────────────────────────────────────────

// FormatDigest форматирует сводку заданий. Ответ всегда несёт главное меню,
// чтобы следующий период был в одном нажатии.
func (p *HomeworkPresenter) FormatDigest(digest *query.HomeworkDigest) *HomeworkView {
	return &HomeworkView{
		Text:      p.digestText(digest),
		Keyboard:  p.keyboardBuilder.MainMenuKeyboard(),
		ParseMode: "HTML",
	}
}

// digestText собирает текст сводки.
func (p *HomeworkPresenter) digestText(digest *query.HomeworkDigest) string {
	if digest.IsEmpty() {
		if digest.IsRange {
			return "📭 На этот период ДЗ не найдено."
		}
		return fmt.Sprintf("📭 На %s ДЗ не найдено.", digest.Period.From.FormatRussian())
	}

	var lines []string

	if digest.IsRange {
		lines = append(lines, "📚 <b>Домашние задания:</b>\n")

		for _, day := range digest.Days {
			lines = append(lines, fmt.Sprintf("━━━ <b>%s (%s)</b> ━━━",
				day.Date.FormatRussian(), weekdayShort(day.Date)))

			for _, record := range day.Records {
				lines = append(lines, p.formatRecord(record))
			}
			lines = append(lines, "")
		}
	} else {
		date := digest.Period.From
		lines = append(lines, fmt.Sprintf("📚 <b>ДЗ на %s (%s):</b>\n",
			date.FormatRussian(), weekdayShort(date)))

		for _, record := range digest.Records {
			lines = append(lines, p.formatRecord(record))
		}
	}

	return strings.Join(lines, "\n")
}

// formatRecord форматирует одно задание: статусная строка с предметом,
// текст задания и до пяти ссылок на материалы.
func (p *HomeworkPresenter) formatRecord(record homework.Record) string {
	lines := make([]string, 0, 2+maxMaterials)

	icon := "📖"
	if record.IsDone {
		icon = "✅"
	}
	lines = append(lines, fmt.Sprintf("%s <b>%s</b>", icon, escapeHTML(record.Subject)))

	// Сначала обрезка, потом экранирование: иначе срез может разрубить
	// HTML-сущность пополам.
	lines = append(lines, "   "+escapeHTML(truncateRunes(record.Text, maxAssignmentRunes)))

	if p.showMaterials {
		for i, material := range record.Materials {
			if i >= maxMaterials {
				break
			}
			lines = append(lines, fmt.Sprintf("   📎 <a href=\"%s\">Файл %d</a>",
				escapeHTML(material.URL), i+1))
		}
	}

	return strings.Join(lines, "\n")
}

// ─────────────────────────────────────────────────────────────────────────────
// FETCH ERROR FORMATTING
// Ошибки дневника отдаются простым текстом без разметки, с понятным
// следующим шагом вместо сырого текста ошибки.
// ─────────────────────────────────────────────────────────────────────────────

// FormatFetchError переводит ошибку получения заданий в ответ пользователю.
func (p *HomeworkPresenter) FormatFetchError(err error) *HomeworkView {
	return &HomeworkView{
		Text:      fetchErrorText(err),
		Keyboard:  p.keyboardBuilder.MainMenuKeyboard(),
		ParseMode: "",
	}
}

// fetchErrorText подбирает текст по виду ошибки.
func fetchErrorText(err error) string {
	switch {
	case errors.Is(err, shared.ErrDiaryCredentials):
		return "❌ Токен авторизации истёк или неверен (401).\nОбнови AUTHEDU_BEARER в .env"

	case errors.Is(err, shared.ErrDiaryForbidden):
		return "❌ Доступ запрещён (403). Проверь Profile-Id и STUDENT_ID."

	case errors.Is(err, shared.ErrRateLimited):
		return "⏳ Дневник просит подождать. Попробуй через минуту."

	case errors.Is(err, shared.ErrDiaryBadPayload):
		return "❌ Дневник вернул неожиданный ответ. Попробуй позже."

	case errors.Is(err, shared.ErrDiaryUnreachable):
		return "❌ Не удалось подключиться к API.\nПопробуй ещё раз через несколько минут."
	}

	var apiErr *diary.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 {
			return "⏳ Дневник просит подождать. Попробуй через минуту."
		}
		return fmt.Sprintf("❌ Ошибка API: HTTP %d", apiErr.StatusCode)
	}

	return "❌ Не удалось получить домашние задания. Попробуй позже."
}

// ─────────────────────────────────────────────────────────────────────────────
// FORMAT HELPERS
// ─────────────────────────────────────────────────────────────────────────────

// htmlEscaper escapes text for safe embedding into HTML messages.
var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"\"", "&quot;",
)

// escapeHTML escapes a string for HTML parse mode.
func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// truncateRunes clips s to at most max runes, marking the cut with an ellipsis.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// weekdayShort возвращает короткое русское название дня недели даты.
func weekdayShort(d homework.Date) string {
	return timeutil.WeekdayShortRu(d.Time(timeutil.MoscowTZ))
}
