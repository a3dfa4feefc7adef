package middleware

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsMiddleware_TracksUpdates(t *testing.T) {
	mw := NewMetricsMiddleware(prometheus.NewRegistry())

	rc := mw.Start("start")
	rc.End(nil)

	rc = mw.Start("start")
	rc.End(errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(mw.updates.WithLabelValues("start")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mw.errors.WithLabelValues("start")))
	assert.Equal(t, 0.0, testutil.ToFloat64(mw.inFlight))
}

func TestMetricsMiddleware_InFlightGauge(t *testing.T) {
	mw := NewMetricsMiddleware(prometheus.NewRegistry())

	first := mw.Start("week")
	second := mw.Start("week")
	assert.Equal(t, 2.0, testutil.ToFloat64(mw.inFlight))

	first.End(nil)
	second.End(nil)
	assert.Equal(t, 0.0, testutil.ToFloat64(mw.inFlight))
}

func TestMetricsMiddleware_SeparatesHandlers(t *testing.T) {
	mw := NewMetricsMiddleware(prometheus.NewRegistry())

	mw.Start("start").End(nil)
	mw.Start("admin").End(nil)
	mw.Start("admin").End(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(mw.updates.WithLabelValues("start")))
	assert.Equal(t, 2.0, testutil.ToFloat64(mw.updates.WithLabelValues("admin")))
}

func TestMetricsMiddleware_RefusalsAndPanics(t *testing.T) {
	mw := NewMetricsMiddleware(prometheus.NewRegistry())

	mw.RecordRefusal("rate_limited")
	mw.RecordRefusal("rate_limited")
	mw.RecordRefusal("unauthorized")
	mw.RecordPanic()

	assert.Equal(t, 2.0, testutil.ToFloat64(mw.refusals.WithLabelValues("rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mw.refusals.WithLabelValues("unauthorized")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mw.panics))
}
