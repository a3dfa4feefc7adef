// Package eventhandler содержит обработчики доменных событий.
// Обработчики подписываются на шину через диспетчер и питают журнал аудита
// и метрики; бизнес-логики здесь нет.
package eventhandler

import (
	"log/slog"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/access"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/homework"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// AUDIT LOG HANDLER
// Пишет строку журнала на каждое доменное событие. Журнал отвечает на
// вопросы "кто и когда активировал ключ" и "почему не ответил дневник"
// без чтения файла хранилища.
// ═══════════════════════════════════════════════════════════════════════════

// AuditLogHandler записывает доменные события в структурированный журнал.
type AuditLogHandler struct {
	logger *slog.Logger
}

// NewAuditLogHandler создаёт новый обработчик журнала аудита.
func NewAuditLogHandler(logger *slog.Logger) *AuditLogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogHandler{
		logger: logger.With("handler", "audit_log"),
	}
}

// EventTypes возвращает типы событий, на которые подписывается обработчик.
func (h *AuditLogHandler) EventTypes() []shared.EventType {
	return []shared.EventType{
		shared.EventKeyIssued,
		shared.EventKeyActivated,
		shared.EventKeyRevoked,
		shared.EventUserRevoked,
		shared.EventHomeworkFetched,
		shared.EventHomeworkFetchFailed,
	}
}

// Handle обрабатывает доменное событие.
// Реализует интерфейс shared.EventHandler.
func (h *AuditLogHandler) Handle(event shared.Event) error {
	switch e := event.(type) {
	case access.KeyIssuedEvent:
		h.logger.Info("audit: key issued",
			"token", e.Token,
			"at", e.OccurredAt())

	case access.KeyActivatedEvent:
		h.logger.Info("audit: key activated",
			"token", e.Token,
			"user_id", e.UserID,
			"user_name", e.UserName,
			"at", e.OccurredAt())

	case access.KeyRevokedEvent:
		args := []any{"token", e.Token, "at", e.OccurredAt()}
		if e.RevokedUserID != nil {
			args = append(args, "revoked_user_id", *e.RevokedUserID)
		}
		h.logger.Info("audit: key revoked", args...)

	case access.UserRevokedEvent:
		h.logger.Info("audit: user access revoked",
			"user_id", e.UserID,
			"token", e.Token,
			"at", e.OccurredAt())

	case homework.FetchedEvent:
		h.logger.Debug("audit: homework fetched",
			"from", e.From,
			"to", e.To,
			"records", e.Records)

	case homework.FetchFailedEvent:
		h.logger.Warn("audit: homework fetch failed",
			"from", e.From,
			"to", e.To,
			"reason", e.Reason)

	default:
		// Unknown event shape: still leave a trace with the generic payload.
		h.logger.Info("audit: event",
			"event_type", event.EventType(),
			"aggregate_id", event.AggregateID(),
			"payload", event.Payload())
	}

	return nil
}
