package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/access"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REVOKE KEY COMMAND
// Deletes an invitation key. When the key was already activated, the user
// who holds it loses access in the same operation (cascade).
// ══════════════════════════════════════════════════════════════════════════════

// RevokeKeyCommand contains the data to revoke an invitation key.
type RevokeKeyCommand struct {
	// RawToken is the token to revoke, normalized before lookup.
	RawToken string

	// RevokedBy is the Telegram ID of the admin performing the revocation.
	// Zero when revoked from the CLI.
	RevokedBy shared.TelegramID

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RevokeKeyCommand) Validate() error {
	if c.RawToken == "" {
		return errors.New("revoke_key: token is required")
	}
	return nil
}

// RevokeKeyResult contains the result of a revocation.
type RevokeKeyResult struct {
	// Deleted is true when the key existed and was removed.
	Deleted bool

	// Token is the normalized token that was attempted.
	Token access.KeyToken

	// RevokedUser is the user whose access was cascaded away,
	// nil when the key was still unused.
	RevokedUser *shared.TelegramID
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RevokeKeyHandler handles the RevokeKeyCommand.
type RevokeKeyHandler struct {
	repo           access.Repository
	eventPublisher shared.EventPublisher
	logger         *slog.Logger
}

// NewRevokeKeyHandler creates a new RevokeKeyHandler.
func NewRevokeKeyHandler(
	repo access.Repository,
	eventPublisher shared.EventPublisher,
	logger *slog.Logger,
) *RevokeKeyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RevokeKeyHandler{
		repo:           repo,
		eventPublisher: eventPublisher,
		logger:         logger,
	}
}

// Handle executes the revoke key command.
func (h *RevokeKeyHandler) Handle(ctx context.Context, cmd RevokeKeyCommand) (*RevokeKeyResult, error) {
	// Validate command
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("revoke_key: validation failed: %w", err)
	}

	token := access.NormalizeToken(cmd.RawToken)
	if !token.IsValid() {
		return &RevokeKeyResult{Deleted: false, Token: token}, nil
	}

	// Look the key up first to know which user (if any) the delete cascades to.
	var revokedUser *shared.TelegramID
	key, err := h.repo.GetKey(ctx, token)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return &RevokeKeyResult{Deleted: false, Token: token}, nil
		}
		return nil, fmt.Errorf("revoke_key: lookup key: %w", err)
	}
	if key.IsUsed() {
		id := *key.ActivatedBy
		revokedUser = &id
	}

	deleted, err := h.repo.DeleteKey(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("revoke_key: %w", err)
	}
	if !deleted {
		// Deleted between lookup and delete; nothing left to revoke.
		return &RevokeKeyResult{Deleted: false, Token: token}, nil
	}

	if h.eventPublisher != nil {
		event := access.NewKeyRevokedEvent(token, revokedUser)
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		_ = h.eventPublisher.Publish(event)

		if revokedUser != nil {
			userEvent := access.NewUserRevokedEvent(*revokedUser, token)
			userEvent.BaseEvent = userEvent.BaseEvent.WithCorrelationID(cmd.CorrelationID)
			_ = h.eventPublisher.Publish(userEvent)
		}
	}

	logArgs := []any{
		"token", token.String(),
		"revoked_by", cmd.RevokedBy.Int64(),
	}
	if revokedUser != nil {
		logArgs = append(logArgs, "cascaded_user_id", revokedUser.Int64())
	}
	h.logger.Info("invitation key revoked", logArgs...)

	return &RevokeKeyResult{
		Deleted:     true,
		Token:       token,
		RevokedUser: revokedUser,
	}, nil
}
