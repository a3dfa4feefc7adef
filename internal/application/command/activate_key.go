package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/access"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVATE KEY COMMAND
// Redeems a single-use invitation key for a Telegram user. Exactly one of
// two concurrent activations of the same key wins; the loser sees the same
// negative result as a user with a wrong key.
// ══════════════════════════════════════════════════════════════════════════════

// ActivateKeyCommand contains the data to activate an invitation key.
type ActivateKeyCommand struct {
	// RawToken is the key exactly as the user typed it. It is normalized
	// (trimmed, uppercased) before lookup, so "ab12-cd34-ef56" works.
	RawToken string

	// UserID is the Telegram ID of the activating user.
	UserID shared.TelegramID

	// DisplayName is the name to record next to the activation:
	// "@username" when the user has one, otherwise their full name.
	DisplayName string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c ActivateKeyCommand) Validate() error {
	if !c.UserID.IsValid() {
		return errors.New("activate_key: user_id is required")
	}
	if c.RawToken == "" {
		return errors.New("activate_key: token is required")
	}
	return nil
}

// ActivateKeyResult contains the result of an activation attempt.
type ActivateKeyResult struct {
	// Activated is true when this attempt consumed the key. False covers
	// every rejection: unknown token, bad format, already used key,
	// already authorized user. The caller shows one uniform failure
	// message so the result does not leak which case occurred.
	Activated bool

	// Token is the normalized token that was attempted.
	Token access.KeyToken

	// UserID is the user the key was activated for.
	UserID shared.TelegramID

	// ActivatedAt is when the activation was persisted.
	ActivatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ActivateKeyHandler handles the ActivateKeyCommand.
type ActivateKeyHandler struct {
	repo           access.Repository
	eventPublisher shared.EventPublisher
	logger         *slog.Logger
}

// NewActivateKeyHandler creates a new ActivateKeyHandler.
func NewActivateKeyHandler(
	repo access.Repository,
	eventPublisher shared.EventPublisher,
	logger *slog.Logger,
) *ActivateKeyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivateKeyHandler{
		repo:           repo,
		eventPublisher: eventPublisher,
		logger:         logger,
	}
}

// Handle executes the activate key command.
func (h *ActivateKeyHandler) Handle(ctx context.Context, cmd ActivateKeyCommand) (*ActivateKeyResult, error) {
	// Validate command
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("activate_key: validation failed: %w", err)
	}

	token := access.NormalizeToken(cmd.RawToken)

	// Malformed input cannot match any stored key, so skip the store
	// round-trip and report the same negative result.
	if !token.IsValid() {
		return &ActivateKeyResult{
			Activated: false,
			Token:     token,
			UserID:    cmd.UserID,
		}, nil
	}

	activated, err := h.repo.ActivateKey(ctx, token, cmd.UserID, cmd.DisplayName)
	if err != nil {
		return nil, fmt.Errorf("activate_key: %w", err)
	}

	if !activated {
		h.logger.Info("key activation rejected",
			"token", token.String(),
			"user_id", cmd.UserID.Int64())
		return &ActivateKeyResult{
			Activated: false,
			Token:     token,
			UserID:    cmd.UserID,
		}, nil
	}

	if h.eventPublisher != nil {
		event := access.NewKeyActivatedEvent(token, cmd.UserID, cmd.DisplayName)
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		_ = h.eventPublisher.Publish(event)
	}

	h.logger.Info("invitation key activated",
		"token", token.String(),
		"user_id", cmd.UserID.Int64(),
		"user_name", cmd.DisplayName)

	return &ActivateKeyResult{
		Activated:   true,
		Token:       token,
		UserID:      cmd.UserID,
		ActivatedAt: time.Now().UTC(),
	}, nil
}
