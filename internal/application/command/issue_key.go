// Package command contains write operations (CQRS - Commands).
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
// ISSUE KEY COMMAND
// Creates a new single-use invitation key. Only the super-user (via the admin
// panel or keyctl) issues keys; the command itself does not check the caller,
// the interface layer does.
// ══════════════════════════════════════════════════════════════════════════════

// IssueKeyCommand contains the data to issue a new invitation key.
type IssueKeyCommand struct {
	// IssuedBy is the Telegram ID of the issuer, kept for the audit log.
	// Zero when the key is issued from the CLI.
	IssuedBy shared.TelegramID

	// CorrelationID for tracing.
	CorrelationID string
}

// IssueKeyResult contains the result of issuing a key.
type IssueKeyResult struct {
	// Token is the generated invitation key.
	Token access.KeyToken

	// CreatedAt is when the key was persisted.
	CreatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// IssueKeyHandler handles the IssueKeyCommand.
type IssueKeyHandler struct {
	repo           access.Repository
	eventPublisher shared.EventPublisher
	logger         *slog.Logger
}

// NewIssueKeyHandler creates a new IssueKeyHandler.
func NewIssueKeyHandler(
	repo access.Repository,
	eventPublisher shared.EventPublisher,
	logger *slog.Logger,
) *IssueKeyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IssueKeyHandler{
		repo:           repo,
		eventPublisher: eventPublisher,
		logger:         logger,
	}
}

// Handle executes the issue key command.
func (h *IssueKeyHandler) Handle(ctx context.Context, cmd IssueKeyCommand) (*IssueKeyResult, error) {
	token, err := access.GenerateToken(h.repo)
	if err != nil {
		return nil, fmt.Errorf("issue_key: generate token: %w", err)
	}

	key, err := access.NewAccessKey(token, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("issue_key: %w", err)
	}

	if err := h.repo.CreateKey(ctx, key); err != nil {
		// Generation already checked for collisions; a duplicate here means
		// a concurrent issue won the race. Surface it as-is.
		if errors.Is(err, shared.ErrAlreadyExists) {
			return nil, fmt.Errorf("issue_key: token collision: %w", err)
		}
		return nil, fmt.Errorf("issue_key: save key: %w", err)
	}

	if h.eventPublisher != nil {
		event := access.NewKeyIssuedEvent(token)
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		_ = h.eventPublisher.Publish(event)
	}

	h.logger.Info("invitation key issued",
		"token", token.String(),
		"issued_by", int64(cmd.IssuedBy))

	return &IssueKeyResult{
		Token:     token,
		CreatedAt: key.CreatedAt,
	}, nil
}
