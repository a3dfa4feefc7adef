package eventhandler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/access"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/homework"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// METRICS HANDLER
// Переводит доменные события в счётчики Prometheus. Показатели отдаются
// через /metrics операционного HTTP-сервера.
// ═══════════════════════════════════════════════════════════════════════════

const metricsNamespace = "dnevnik_bot"

// MetricsHandler инкрементирует счётчики Prometheus по доменным событиям.
type MetricsHandler struct {
	keysIssued    prometheus.Counter
	keysActivated prometheus.Counter
	keysRevoked   prometheus.Counter
	usersRevoked  prometheus.Counter

	fetches        *prometheus.CounterVec
	fetchFailures  *prometheus.CounterVec
	recordsFetched prometheus.Histogram
}

// NewMetricsHandler создаёт обработчик и регистрирует показатели в reg.
// Тесты передают собственный prometheus.NewRegistry, чтобы не конфликтовать
// с глобальным реестром.
func NewMetricsHandler(reg prometheus.Registerer) *MetricsHandler {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &MetricsHandler{
		keysIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "access",
			Name:      "keys_issued_total",
			Help:      "Number of invitation keys issued.",
		}),
		keysActivated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "access",
			Name:      "keys_activated_total",
			Help:      "Number of invitation keys activated by users.",
		}),
		keysRevoked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "access",
			Name:      "keys_revoked_total",
			Help:      "Number of invitation keys revoked by the administrator.",
		}),
		usersRevoked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "access",
			Name:      "users_revoked_total",
			Help:      "Number of users who lost access when their key was revoked.",
		}),
		fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "diary",
			Name:      "fetches_total",
			Help:      "Diary fetch attempts by outcome.",
		}, []string{"status"}),
		fetchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "diary",
			Name:      "fetch_failures_total",
			Help:      "Failed diary fetches by reason.",
		}, []string{"reason"}),
		recordsFetched: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "diary",
			Name:      "records_per_fetch",
			Help:      "Homework records returned per successful fetch.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}),
	}
}

// EventTypes возвращает типы событий, на которые подписывается обработчик.
func (h *MetricsHandler) EventTypes() []shared.EventType {
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
func (h *MetricsHandler) Handle(event shared.Event) error {
	switch e := event.(type) {
	case access.KeyIssuedEvent:
		h.keysIssued.Inc()
	case access.KeyActivatedEvent:
		h.keysActivated.Inc()
	case access.KeyRevokedEvent:
		h.keysRevoked.Inc()
	case access.UserRevokedEvent:
		h.usersRevoked.Inc()
	case homework.FetchedEvent:
		h.fetches.WithLabelValues("ok").Inc()
		h.recordsFetched.Observe(float64(e.Records))
	case homework.FetchFailedEvent:
		h.fetches.WithLabelValues("failed").Inc()
		h.fetchFailures.WithLabelValues(e.Reason).Inc()
	}
	return nil
}
