package handler

import (
	"context"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/application/command"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/application/query"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/access"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN HANDLER
// Handles the /admin command and the key management callbacks. The handler
// guards itself: /admin from a non-owner is silently ignored (the command
// stays invisible), admin callbacks answer with an access-denied alert.
// ══════════════════════════════════════════════════════════════════════════════

// AdminHandler handles key management for the bot owner.
type AdminHandler struct {
	issueKey    *command.IssueKeyHandler
	revokeKey   *command.RevokeKeyHandler
	listKeys    *query.ListKeysHandler
	accessStats *query.GetAccessStatsHandler
	accessRepo  access.Repository
	admin       *presenter.AdminPresenter
}

// NewAdminHandler creates a new AdminHandler with dependencies.
func NewAdminHandler(
	issueKey *command.IssueKeyHandler,
	revokeKey *command.RevokeKeyHandler,
	listKeys *query.ListKeysHandler,
	accessStats *query.GetAccessStatsHandler,
	accessRepo access.Repository,
	adminPresenter *presenter.AdminPresenter,
) *AdminHandler {
	return &AdminHandler{
		issueKey:    issueKey,
		revokeKey:   revokeKey,
		listKeys:    listKeys,
		accessStats: accessStats,
		accessRepo:  accessRepo,
		admin:       adminPresenter,
	}
}

// AdminRequest contains the common request data for admin operations.
type AdminRequest struct {
	// TelegramID is the user's Telegram ID.
	TelegramID int64

	// ChatID is the chat ID for sending responses.
	ChatID int64

	// CorrelationID is the per-update request ID for tracing.
	CorrelationID string
}

// AdminResponse contains the response to an admin operation.
type AdminResponse struct {
	// Text is the screen text (HTML formatted). Empty when the response
	// is toast-only.
	Text string

	// Keyboard is the inline keyboard to attach.
	Keyboard *presenter.InlineKeyboard

	// ParseMode is the parse mode (HTML).
	ParseMode string

	// Toast is the callback answer text, shown as a popup or toast.
	Toast string

	// ShowAlert makes the toast a blocking popup instead of a banner.
	ShowAlert bool

	// Skip suppresses any reply. Used for /admin from non-owners: the
	// command must not reveal its existence.
	Skip bool
}

// HandleCommand processes the /admin command.
func (h *AdminHandler) HandleCommand(ctx context.Context, req AdminRequest) (*AdminResponse, error) {
	if !h.accessRepo.IsSuperUser(shared.TelegramID(req.TelegramID)) {
		return &AdminResponse{Skip: true}, nil
	}
	return h.panel(ctx)
}

// HandleMenu processes the admin_menu callback (back to the panel).
func (h *AdminHandler) HandleMenu(ctx context.Context, req AdminRequest) (*AdminResponse, error) {
	if denied := h.guard(req); denied != nil {
		return denied, nil
	}
	return h.panel(ctx)
}

// HandleCreateKey processes the admin_create_key callback.
func (h *AdminHandler) HandleCreateKey(ctx context.Context, req AdminRequest) (*AdminResponse, error) {
	if denied := h.guard(req); denied != nil {
		return denied, nil
	}

	result, err := h.issueKey.Handle(ctx, command.IssueKeyCommand{
		IssuedBy:      shared.TelegramID(req.TelegramID),
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		return nil, err
	}

	view := h.admin.FormatKeyCreated(result.Token.String())
	return &AdminResponse{
		Text:      view.Text,
		Keyboard:  view.Keyboard,
		ParseMode: view.ParseMode,
		Toast:     "Ключ создан!",
	}, nil
}

// HandleUnusedKeys processes the admin_unused_keys callback.
func (h *AdminHandler) HandleUnusedKeys(ctx context.Context, req AdminRequest) (*AdminResponse, error) {
	if denied := h.guard(req); denied != nil {
		return denied, nil
	}

	result, err := h.listKeys.Handle(ctx, query.ListKeysQuery{Filter: query.KeysUnused})
	if err != nil {
		return nil, err
	}

	view := h.admin.FormatUnusedKeys(result.Keys)
	return &AdminResponse{
		Text:      view.Text,
		Keyboard:  view.Keyboard,
		ParseMode: view.ParseMode,
	}, nil
}

// HandleUsedKeys processes the admin_used_keys callback.
func (h *AdminHandler) HandleUsedKeys(ctx context.Context, req AdminRequest) (*AdminResponse, error) {
	if denied := h.guard(req); denied != nil {
		return denied, nil
	}

	result, err := h.listKeys.Handle(ctx, query.ListKeysQuery{Filter: query.KeysUsed})
	if err != nil {
		return nil, err
	}

	view := h.admin.FormatUsedKeys(result.Keys)
	return &AdminResponse{
		Text:      view.Text,
		Keyboard:  view.Keyboard,
		ParseMode: view.ParseMode,
	}, nil
}

// HandleDeleteKey processes the delete_key:<token> callback. Deleting a
// used key revokes the holder's access. The result is reported in an
// alert and the message is brought back to the refreshed panel.
func (h *AdminHandler) HandleDeleteKey(ctx context.Context, req AdminRequest, rawToken string) (*AdminResponse, error) {
	if denied := h.guard(req); denied != nil {
		return denied, nil
	}

	result, err := h.revokeKey.Handle(ctx, command.RevokeKeyCommand{
		RawToken:      rawToken,
		RevokedBy:     shared.TelegramID(req.TelegramID),
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		return nil, err
	}

	toast := "❌ Ключ не найден"
	if result.Deleted {
		toast = "🗑 Ключ удалён!"
	}

	resp, err := h.panel(ctx)
	if err != nil {
		return nil, err
	}
	resp.Toast = toast
	resp.ShowAlert = true
	return resp, nil
}

// guard returns the access-denied response for non-owners, nil otherwise.
func (h *AdminHandler) guard(req AdminRequest) *AdminResponse {
	if h.accessRepo.IsSuperUser(shared.TelegramID(req.TelegramID)) {
		return nil
	}
	return &AdminResponse{Toast: "⛔ Нет доступа", ShowAlert: true}
}

// panel renders the admin panel with fresh access stats.
func (h *AdminHandler) panel(ctx context.Context) (*AdminResponse, error) {
	stats, err := h.accessStats.Handle(ctx, query.GetAccessStatsQuery{})
	if err != nil {
		return nil, err
	}

	view := h.admin.FormatPanel(stats)
	return &AdminResponse{
		Text:      view.Text,
		Keyboard:  view.Keyboard,
		ParseMode: view.ParseMode,
	}, nil
}
