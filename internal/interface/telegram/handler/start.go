// Package handler contains Telegram command handlers.
// Each handler follows the pattern: receive update → validate → call application layer → format response.
package handler

import (
	"context"
	"strings"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/application/command"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/access"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/interface/telegram/middleware"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// START HANDLER
// Handles /start and the invitation key exchange. The bot is invite-only:
// strangers are asked for a key, everyone else lands in the main menu.
// ══════════════════════════════════════════════════════════════════════════════

// StartHandler handles the /start command and key activation.
type StartHandler struct {
	activateKey *command.ActivateKeyHandler
	accessRepo  access.Repository
	sessions    *middleware.SessionStore
	keyboards   *presenter.KeyboardBuilder
}

// NewStartHandler creates a new StartHandler with dependencies.
func NewStartHandler(
	activateKey *command.ActivateKeyHandler,
	accessRepo access.Repository,
	sessions *middleware.SessionStore,
	keyboards *presenter.KeyboardBuilder,
) *StartHandler {
	return &StartHandler{
		activateKey: activateKey,
		accessRepo:  accessRepo,
		sessions:    sessions,
		keyboards:   keyboards,
	}
}

// StartRequest contains the parsed /start command data.
type StartRequest struct {
	// TelegramID is the user's Telegram ID.
	TelegramID int64

	// Username is the user's Telegram username (without @), may be empty.
	Username string

	// FirstName is the user's first name from Telegram.
	FirstName string

	// LastName is the user's last name from Telegram.
	LastName string

	// ChatID is the chat ID for sending responses.
	ChatID int64

	// CorrelationID is the per-update request ID for tracing.
	CorrelationID string
}

// displayName returns the name recorded next to a key activation:
// "@username" when the user has one, otherwise their full name.
func (r StartRequest) displayName() string {
	if r.Username != "" {
		return "@" + r.Username
	}
	return strings.TrimSpace(strings.TrimSpace(r.FirstName) + " " + strings.TrimSpace(r.LastName))
}

// StartResponse contains the response to send back.
type StartResponse struct {
	// Text is the message text (HTML formatted).
	Text string

	// Keyboard is the inline keyboard to attach.
	Keyboard *presenter.InlineKeyboard

	// ParseMode is the parse mode (HTML).
	ParseMode string
}

// Handle processes the /start command. Any pending input state is dropped
// first so /start always restarts the conversation from a clean slate.
func (h *StartHandler) Handle(ctx context.Context, req StartRequest) (*StartResponse, error) {
	userID := shared.TelegramID(req.TelegramID)
	h.sessions.Clear(userID)

	authorized, err := h.accessRepo.IsAuthorized(ctx, userID)
	if err != nil {
		return nil, err
	}

	if authorized {
		if h.accessRepo.IsSuperUser(userID) {
			return h.greetOwner(), nil
		}
		return h.greetInvited(), nil
	}

	return h.askForKey(userID), nil
}

// greetOwner greets the bot owner.
func (h *StartHandler) greetOwner() *StartResponse {
	return &StartResponse{
		Text: "👋 <b>Привет, создатель!</b>\n\n" +
			"Я покажу домашние задания из дневника.\n\n" +
			"💡 <i>Подсказка: /admin — управление ключами</i>",
		Keyboard:  h.keyboards.MainMenuKeyboard(),
		ParseMode: "HTML",
	}
}

// greetInvited greets a user who already activated a key.
func (h *StartHandler) greetInvited() *StartResponse {
	return &StartResponse{
		Text: "👋 <b>Добро пожаловать в бета-тест!</b>\n\n" +
			"Вы были приглашены для тестирования бота, " +
			"который показывает домашние задания из электронного дневника.\n\n" +
			"Выберите нужный период:",
		Keyboard:  h.keyboards.MainMenuKeyboard(),
		ParseMode: "HTML",
	}
}

// askForKey asks a stranger for an invitation key and arms the key input
// state, so their next message is treated as a key attempt.
func (h *StartHandler) askForKey(userID shared.TelegramID) *StartResponse {
	h.sessions.Set(userID, middleware.PendingKey)

	return &StartResponse{
		Text: "🔐 <b>Доступ ограничен</b>\n\n" +
			"Этот бот работает по приглашениям.\n\n" +
			"Если у тебя есть ключ доступа — отправь его сейчас.\n" +
			"Формат: <code>XXXX-XXXX-XXXX</code>",
		ParseMode: "HTML",
	}
}

// HandleKeyInput processes a message sent while the user is expected to
// enter an invitation key. On success the state is cleared and the main
// menu is shown; on failure the state stays armed so the user can retry.
func (h *StartHandler) HandleKeyInput(ctx context.Context, req StartRequest, text string) (*StartResponse, error) {
	userID := shared.TelegramID(req.TelegramID)

	result, err := h.activateKey.Handle(ctx, command.ActivateKeyCommand{
		RawToken:      text,
		UserID:        userID,
		DisplayName:   req.displayName(),
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		return nil, err
	}

	if !result.Activated {
		return &StartResponse{
			Text: "❌ <b>Неверный или уже использованный ключ</b>\n\n" +
				"Проверь правильность ключа и попробуй ещё раз.\n" +
				"Формат: <code>XXXX-XXXX-XXXX</code>",
			ParseMode: "HTML",
		}, nil
	}

	h.sessions.Clear(userID)

	return &StartResponse{
		Text: "✅ <b>Ключ активирован!</b>\n\n" +
			"Добро пожаловать в бета-тест! 🎉\n" +
			"Теперь тебе доступны все функции бота.\n\n" +
			"Выбери период для просмотра ДЗ:",
		Keyboard:  h.keyboards.MainMenuKeyboard(),
		ParseMode: "HTML",
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// NAVIGATION
// back_to_menu and faq are pure navigation: no application calls, the
// callback message is edited in place.
// ══════════════════════════════════════════════════════════════════════════════

// MainMenu returns the main menu screen and drops any pending input state.
func (h *StartHandler) MainMenu(telegramID int64) *StartResponse {
	h.sessions.Clear(shared.TelegramID(telegramID))

	return &StartResponse{
		Text:      "📚 <b>Главное меню</b>\n\nВыбери период:",
		Keyboard:  h.keyboards.MainMenuKeyboard(),
		ParseMode: "HTML",
	}
}

// FAQ returns the frequently asked questions screen.
func (h *StartHandler) FAQ() *StartResponse {
	text := `❓ <b>Часто задаваемые вопросы</b>

<b>Что это за бот?</b>
Бот показывает домашние задания из электронного дневника (authedu.mosreg.ru). Не нужно каждый раз заходить на сайт — просто нажми кнопку!

<b>Как пользоваться?</b>
• Нажми кнопку с нужным периодом (сегодня, завтра, неделя)
• Или просто напиши дату в чат, например: <code>15.12.2025</code>
• Бот покажет все ДЗ на эту дату

<b>Что означают иконки?</b>
• ✅ — ДЗ отмечено как выполненное (функция ещё в бете)
• 📖 — ДЗ ещё не выполнено (функция ещё в бете)
• 📎 — к заданию прикреплён файл (кликни чтобы открыть)

<b>Почему бот закрытый?</b>
Бот находится в стадии бета-теста. Доступ выдаётся по приглашениям, чтобы я мог контролировать нагрузку и собирать обратную связь.

<b>Будет ли открытый код?</b>
Да! Open-source версия в разработке. Следи за обновлениями.

<b>Нашёл баг / есть идея?</b>
Напиши создателю бота — он будет рад обратной связи!`

	return &StartResponse{
		Text:      text,
		Keyboard:  h.keyboards.BackToMenuKeyboard(),
		ParseMode: "HTML",
	}
}
