package homework

import (
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN EVENTS
// События обращений к дневнику. Публикуются прикладным слоем после каждого
// запроса и питают логи и метрики ops-сервера.
// ══════════════════════════════════════════════════════════════════════════════

// FetchedEvent - дневник ответил, задания получены.
type FetchedEvent struct {
	shared.BaseEvent
	From    string `json:"from"`
	To      string `json:"to"`
	Records int    `json:"records"`
}

// Payload implements shared.Event.
func (e FetchedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"from":    e.From,
		"to":      e.To,
		"records": e.Records,
	}
}

// NewFetchedEvent creates a new FetchedEvent.
func NewFetchedEvent(period Period, records int) FetchedEvent {
	return FetchedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventHomeworkFetched, period.String()),
		From:      period.From.String(),
		To:        period.To.String(),
		Records:   records,
	}
}

// FetchFailedEvent - запрос к дневнику завершился ошибкой
// (после всех повторных попыток).
type FetchFailedEvent struct {
	shared.BaseEvent
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// Payload implements shared.Event.
func (e FetchFailedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"from":   e.From,
		"to":     e.To,
		"reason": e.Reason,
	}
}

// NewFetchFailedEvent creates a new FetchFailedEvent.
func NewFetchFailedEvent(period Period, reason string) FetchFailedEvent {
	return FetchFailedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventHomeworkFetchFailed, period.String()),
		From:      period.From.String(),
		To:        period.To.String(),
		Reason:    reason,
	}
}
