// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/homework"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET HOMEWORK QUERY
// Получает домашние задания за запрошенное окно: сегодня, завтра, неделя
// вперёд или конкретная дата. "Сегодня" определяется по школьному часовому
// поясу, а не по часам сервера.
// ══════════════════════════════════════════════════════════════════════════════

// PeriodKind указывает, какое окно дат запрошено.
type PeriodKind string

const (
	// PeriodToday - задания на сегодня.
	PeriodToday PeriodKind = "today"

	// PeriodTomorrow - задания на завтра.
	PeriodTomorrow PeriodKind = "tomorrow"

	// PeriodWeek - задания на неделю вперёд (сегодня + 7 дней).
	PeriodWeek PeriodKind = "week"

	// PeriodDate - задания на конкретную дату из поля Date.
	PeriodDate PeriodKind = "date"
)

// GetHomeworkQuery содержит параметры запроса заданий.
type GetHomeworkQuery struct {
	// Kind - запрошенное окно дат.
	Kind PeriodKind

	// Date - конкретная дата, обязательна при Kind == PeriodDate.
	Date homework.Date

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate проверяет корректность параметров запроса.
func (q GetHomeworkQuery) Validate() error {
	switch q.Kind {
	case PeriodToday, PeriodTomorrow, PeriodWeek:
		return nil
	case PeriodDate:
		if !q.Date.IsValid() {
			return errors.New("get_homework: date is required for kind=date")
		}
		return nil
	default:
		return fmt.Errorf("get_homework: unknown period kind %q", q.Kind)
	}
}

// DigestDay - задания одного дня в итоговой сводке.
type DigestDay struct {
	// Date - дата группы.
	Date homework.Date `json:"date"`

	// Records - задания этой даты, отсортированные по предмету.
	Records []homework.Record `json:"records"`
}

// HomeworkDigest - итоговая сводка заданий за период.
type HomeworkDigest struct {
	// Period - фактически запрошенный у дневника диапазон дат.
	Period homework.Period `json:"period"`

	// IsRange - true для многодневных окон (неделя): презентер
	// рисует заголовки по датам вместо одного заголовка.
	IsRange bool `json:"is_range"`

	// Records - все задания периода по возрастанию (дата, предмет).
	Records []homework.Record `json:"records"`

	// Days - те же задания, сгруппированные по датам по возрастанию.
	Days []DigestDay `json:"days"`

	// SubjectCount - количество уникальных предметов в сводке.
	SubjectCount int `json:"subject_count"`

	// GeneratedAt - время генерации сводки.
	GeneratedAt time.Time `json:"generated_at"`
}

// IsEmpty возвращает true, если за период не нашлось ни одного задания.
func (d *HomeworkDigest) IsEmpty() bool {
	return len(d.Records) == 0
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetHomeworkHandler обрабатывает запросы домашних заданий.
type GetHomeworkHandler struct {
	fetcher        homework.Fetcher
	eventPublisher shared.EventPublisher
	location       *time.Location
	logger         *slog.Logger

	// now is swappable in tests.
	now func() time.Time
}

// NewGetHomeworkHandler creates a new GetHomeworkHandler.
// location is the school timezone used to resolve "today"; nil means UTC.
func NewGetHomeworkHandler(
	fetcher homework.Fetcher,
	eventPublisher shared.EventPublisher,
	location *time.Location,
	logger *slog.Logger,
) *GetHomeworkHandler {
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GetHomeworkHandler{
		fetcher:        fetcher,
		eventPublisher: eventPublisher,
		location:       location,
		logger:         logger,
		now:            time.Now,
	}
}

// Handle executes the get homework query.
func (h *GetHomeworkHandler) Handle(ctx context.Context, q GetHomeworkQuery) (*HomeworkDigest, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	period := h.resolvePeriod(q)

	records, err := h.fetcher.FetchHomework(ctx, period)
	if err != nil {
		h.publishFetchFailed(period, err, q.CorrelationID)
		return nil, fmt.Errorf("get_homework: %w", err)
	}

	// The diary occasionally returns records from adjacent days even for a
	// single-day window, so single-day results are filtered to the exact date.
	if period.IsSingleDay() {
		records = homework.FilterByDate(records, period.From)
	}

	groups := homework.GroupByDate(records)
	dates := homework.SortedDates(groups)
	days := make([]DigestDay, 0, len(dates))
	for _, d := range dates {
		days = append(days, DigestDay{Date: d, Records: groups[d]})
	}

	h.publishFetched(period, len(records), q.CorrelationID)

	h.logger.Info("homework digest built",
		"period", period.String(),
		"records", len(records),
		"days", len(days))

	return &HomeworkDigest{
		Period:       period,
		IsRange:      !period.IsSingleDay(),
		Records:      records,
		Days:         days,
		SubjectCount: homework.CountSubjects(records),
		GeneratedAt:  h.now(),
	}, nil
}

// resolvePeriod converts the requested window into a concrete date range.
func (h *GetHomeworkHandler) resolvePeriod(q GetHomeworkQuery) homework.Period {
	today := homework.DateOf(h.now().In(h.location))

	switch q.Kind {
	case PeriodTomorrow:
		return homework.SingleDay(today.AddDays(1))
	case PeriodWeek:
		return homework.Period{From: today, To: today.AddDays(7)}
	case PeriodDate:
		return homework.SingleDay(q.Date)
	default:
		return homework.SingleDay(today)
	}
}

func (h *GetHomeworkHandler) publishFetched(period homework.Period, records int, correlationID string) {
	if h.eventPublisher == nil {
		return
	}
	event := homework.NewFetchedEvent(period, records)
	event.BaseEvent = event.BaseEvent.WithCorrelationID(correlationID)
	_ = h.eventPublisher.Publish(event)
}

func (h *GetHomeworkHandler) publishFetchFailed(period homework.Period, err error, correlationID string) {
	if h.eventPublisher == nil {
		return
	}
	event := homework.NewFetchFailedEvent(period, FetchFailureReason(err))
	event.BaseEvent = event.BaseEvent.WithCorrelationID(correlationID)
	_ = h.eventPublisher.Publish(event)
}

// FetchFailureReason maps a fetch error to a short stable label suitable for
// metrics (bounded cardinality) and event payloads.
func FetchFailureReason(err error) string {
	switch {
	case errors.Is(err, shared.ErrDiaryCredentials):
		return "credentials"
	case errors.Is(err, shared.ErrDiaryForbidden):
		return "forbidden"
	case errors.Is(err, shared.ErrDiaryBadPayload):
		return "bad_payload"
	case errors.Is(err, shared.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, shared.ErrDiaryUnreachable):
		return "unreachable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, shared.ErrExternalService):
		return "api_error"
	default:
		return "unknown"
	}
}
