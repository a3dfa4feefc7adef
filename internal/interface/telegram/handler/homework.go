package handler

import (
	"context"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/application/query"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/homework"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/interface/telegram/middleware"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/interface/telegram/presenter"
	"github.com/dnevnik-hub/dnevnik-homework-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HOMEWORK HANDLER
// Handles the period buttons, the custom date dialog and free-text dates.
// Fetch failures are rendered into user-facing views by the presenter, so
// every method returns a view - there is no error path to bubble up.
// ══════════════════════════════════════════════════════════════════════════════

// HomeworkHandler handles homework lookups for all period kinds.
type HomeworkHandler struct {
	getHomework *query.GetHomeworkHandler
	sessions    *middleware.SessionStore
	homework    *presenter.HomeworkPresenter
	keyboards   *presenter.KeyboardBuilder
}

// NewHomeworkHandler creates a new HomeworkHandler with dependencies.
func NewHomeworkHandler(
	getHomework *query.GetHomeworkHandler,
	sessions *middleware.SessionStore,
	homeworkPresenter *presenter.HomeworkPresenter,
	keyboards *presenter.KeyboardBuilder,
) *HomeworkHandler {
	return &HomeworkHandler{
		getHomework: getHomework,
		sessions:    sessions,
		homework:    homeworkPresenter,
		keyboards:   keyboards,
	}
}

// HomeworkRequest contains the common request data for homework lookups.
type HomeworkRequest struct {
	// TelegramID is the user's Telegram ID.
	TelegramID int64

	// ChatID is the chat ID for sending responses.
	ChatID int64

	// CorrelationID is the per-update request ID for tracing.
	CorrelationID string
}

// HandlePeriod fetches homework for a fixed period kind (today, tomorrow
// or week) and returns the formatted digest.
func (h *HomeworkHandler) HandlePeriod(ctx context.Context, req HomeworkRequest, kind query.PeriodKind) *presenter.HomeworkView {
	digest, err := h.getHomework.Handle(ctx, query.GetHomeworkQuery{
		Kind:          kind,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		return h.homework.FormatFetchError(err)
	}
	return h.homework.FormatDigest(digest)
}

// DatePrompt arms the date input state and returns the dialog prompt.
// The prompt replaces the menu message, the back button cancels the dialog.
func (h *HomeworkHandler) DatePrompt(telegramID int64) *presenter.HomeworkView {
	h.sessions.Set(shared.TelegramID(telegramID), middleware.PendingDate)

	return &presenter.HomeworkView{
		Text: "📅 <b>Введи дату</b>\n\n" +
			"Формат: <code>ДД.ММ.ГГГГ</code> или <code>ГГГГ-ММ-ДД</code>\n\n" +
			"Примеры:\n" +
			"• <code>25.12.2025</code>\n" +
			"• <code>2025-12-25</code>",
		Keyboard:  h.keyboards.BackToMenuKeyboard(),
		ParseMode: "HTML",
	}
}

// HandleDateInput processes a message sent while the date dialog is armed.
// Unparseable input keeps the dialog armed so the user can retry.
func (h *HomeworkHandler) HandleDateInput(ctx context.Context, req HomeworkRequest, text string) *presenter.HomeworkView {
	parsed, ok := timeutil.ParseUserDate(text)
	if !ok {
		return &presenter.HomeworkView{
			Text: "❌ Не удалось распознать дату.\n" +
				"Введи в формате <code>ДД.ММ.ГГГГ</code>",
			Keyboard:  h.keyboards.BackToMenuKeyboard(),
			ParseMode: "HTML",
		}
	}

	h.sessions.Clear(shared.TelegramID(req.TelegramID))
	return h.fetchDate(ctx, req, homework.DateOf(parsed))
}

// HandleFreeText checks whether an arbitrary message is a date and, if so,
// answers with the digest for that day. Anything else is silently ignored:
// the bot does not lecture users about unrecognized input.
func (h *HomeworkHandler) HandleFreeText(ctx context.Context, req HomeworkRequest, text string) *presenter.HomeworkView {
	parsed, ok := timeutil.ParseUserDate(text)
	if !ok {
		return nil
	}
	return h.fetchDate(ctx, req, homework.DateOf(parsed))
}

// fetchDate fetches the digest for a single explicit date.
func (h *HomeworkHandler) fetchDate(ctx context.Context, req HomeworkRequest, date homework.Date) *presenter.HomeworkView {
	digest, err := h.getHomework.Handle(ctx, query.GetHomeworkQuery{
		Kind:          query.PeriodDate,
		Date:          date,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		return h.homework.FormatFetchError(err)
	}
	return h.homework.FormatDigest(digest)
}
