package eventhandler

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/access"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/homework"
	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
)

func TestMetricsHandler_CountsKeyLifecycle(t *testing.T) {
	h := NewMetricsHandler(prometheus.NewRegistry())

	token := mustToken(t, "AB12-CD34-EF56")
	userID := shared.TelegramID(555)

	require.NoError(t, h.Handle(access.NewKeyIssuedEvent(token)))
	require.NoError(t, h.Handle(access.NewKeyIssuedEvent(token)))
	require.NoError(t, h.Handle(access.NewKeyActivatedEvent(token, userID, "@petya")))
	require.NoError(t, h.Handle(access.NewKeyRevokedEvent(token, &userID)))
	require.NoError(t, h.Handle(access.NewUserRevokedEvent(userID, token)))

	assert.Equal(t, 2.0, testutil.ToFloat64(h.keysIssued))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.keysActivated))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.keysRevoked))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.usersRevoked))
}

func TestMetricsHandler_CountsFetchOutcomes(t *testing.T) {
	h := NewMetricsHandler(prometheus.NewRegistry())

	period := weekPeriod(t)
	require.NoError(t, h.Handle(homework.NewFetchedEvent(period, 3)))
	require.NoError(t, h.Handle(homework.NewFetchedEvent(period, 0)))
	require.NoError(t, h.Handle(homework.NewFetchFailedEvent(period, "credentials")))

	assert.Equal(t, 2.0, testutil.ToFloat64(h.fetches.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.fetches.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.fetchFailures.WithLabelValues("credentials")))
}

func TestMetricsHandler_IgnoresUnknownEvents(t *testing.T) {
	h := NewMetricsHandler(prometheus.NewRegistry())

	require.NoError(t, h.Handle(opaqueEvent{shared.NewBaseEvent("something.else", "agg-1")}))

	assert.Equal(t, 0.0, testutil.ToFloat64(h.keysIssued))
}

func TestMetricsHandler_SeparateRegistries(t *testing.T) {
	// Два обработчика с разными реестрами не конфликтуют при регистрации.
	require.NotPanics(t, func() {
		_ = NewMetricsHandler(prometheus.NewRegistry())
		_ = NewMetricsHandler(prometheus.NewRegistry())
	})
}
