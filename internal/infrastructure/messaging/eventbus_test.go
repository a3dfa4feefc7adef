package messaging

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnevnik-hub/dnevnik-homework-bot/internal/domain/shared"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBus(async bool) *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:      async,
		WorkerPoolSize: 2,
		Logger:         testLogger(),
		EnableMetrics:  true,
	})
}

func testEvent(eventType shared.EventType) shared.Event {
	return keyEvent{BaseEvent: shared.NewBaseEvent(eventType, "AAAA-BBBB-CCCC")}
}

type keyEvent struct {
	shared.BaseEvent
}

func (e keyEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"token": e.AggregateID()}
}

func TestInMemoryEventBus_DeliversToTypeSubscriber(t *testing.T) {
	bus := newTestBus(false)
	defer bus.Close()

	var got []shared.EventType
	var mu sync.Mutex

	err := bus.Subscribe(shared.EventKeyIssued, func(event shared.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, event.EventType())
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(testEvent(shared.EventKeyIssued)))
	require.NoError(t, bus.Publish(testEvent(shared.EventKeyRevoked)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []shared.EventType{shared.EventKeyIssued}, got,
		"subscriber must only see its own event type")
}

func TestInMemoryEventBus_SubscribeAllReceivesEverything(t *testing.T) {
	bus := newTestBus(false)
	defer bus.Close()

	var count atomic.Int64
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		count.Add(1)
		return nil
	}))

	require.NoError(t, bus.Publish(testEvent(shared.EventKeyIssued)))
	require.NoError(t, bus.Publish(testEvent(shared.EventHomeworkFetched)))
	require.NoError(t, bus.Publish(testEvent(shared.EventUserRevoked)))

	assert.Equal(t, int64(3), count.Load())
}

func TestInMemoryEventBus_AsyncDelivery(t *testing.T) {
	bus := newTestBus(true)

	var count atomic.Int64
	require.NoError(t, bus.Subscribe(shared.EventKeyActivated, func(shared.Event) error {
		count.Add(1)
		return nil
	}))

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(testEvent(shared.EventKeyActivated)))
	}

	// Close waits for in-flight handlers.
	require.NoError(t, bus.Close())
	assert.Equal(t, int64(5), count.Load())
}

func TestInMemoryEventBus_ClosedBusRejectsPublish(t *testing.T) {
	bus := newTestBus(false)
	require.NoError(t, bus.Close())

	err := bus.Publish(testEvent(shared.EventKeyIssued))
	assert.ErrorIs(t, err, ErrEventBusClosed)

	err = bus.Subscribe(shared.EventKeyIssued, func(shared.Event) error { return nil })
	assert.ErrorIs(t, err, ErrEventBusClosed)
}

func TestInMemoryEventBus_MetricsCountPublishes(t *testing.T) {
	bus := newTestBus(false)
	defer bus.Close()

	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return nil }))
	require.NoError(t, bus.Publish(testEvent(shared.EventKeyIssued)))
	require.NoError(t, bus.Publish(testEvent(shared.EventKeyIssued)))

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.TotalPublished)
	assert.Equal(t, int64(2), snap.TotalHandlerExecs)
	assert.Equal(t, 1.0, snap.HandlerSuccessRate)
}

func TestDispatcher_RoutesThroughBus(t *testing.T) {
	bus := newTestBus(false)
	defer bus.Close()

	d := NewDispatcher(DispatcherConfig{
		EventBus:            bus,
		WorkerPoolSize:      2,
		RetryConfig:         DefaultRetryConfig(),
		DeadLetterQueueSize: 10,
		Logger:              testLogger(),
	})
	defer d.Stop()

	var count atomic.Int64
	require.NoError(t, d.RegisterSync(shared.EventKeyActivated, "counter", func(shared.Event) error {
		count.Add(1)
		return nil
	}))
	require.NoError(t, d.Start())

	require.NoError(t, bus.Publish(testEvent(shared.EventKeyActivated)))
	assert.Equal(t, int64(1), count.Load())
}

func TestDispatcher_RetriesUntilSuccess(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{
		EventBus:       newTestBus(false),
		WorkerPoolSize: 1,
		RetryConfig: RetryConfig{
			MaxRetries:        2,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        5 * time.Millisecond,
			BackoffMultiplier: 2.0,
		},
		DeadLetterQueueSize: 10,
		Logger:              testLogger(),
	})
	defer d.Stop()

	var attempts atomic.Int64
	require.NoError(t, d.RegisterSync(shared.EventKeyIssued, "flaky", func(shared.Event) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}))

	require.NoError(t, d.Dispatch(testEvent(shared.EventKeyIssued)))
	assert.Equal(t, int64(3), attempts.Load())
	assert.Equal(t, 0, d.DeadLetterQueue().Size())
}

func TestDispatcher_DeadLetterAfterExhaustion(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{
		EventBus:       newTestBus(false),
		WorkerPoolSize: 1,
		RetryConfig: RetryConfig{
			MaxRetries:        1,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        time.Millisecond,
			BackoffMultiplier: 1.0,
		},
		DeadLetterQueueSize: 10,
		Logger:              testLogger(),
	})
	defer d.Stop()

	require.NoError(t, d.RegisterSync(shared.EventKeyRevoked, "broken", func(shared.Event) error {
		return errors.New("permanent")
	}))

	err := d.Dispatch(testEvent(shared.EventKeyRevoked))
	require.Error(t, err)

	entries := d.DeadLetterQueue().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "broken", entries[0].HandlerName)
	assert.Equal(t, 2, entries[0].Attempts)
}

func TestDispatcher_RecoveryMiddlewareCatchesPanic(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{
		EventBus:       newTestBus(false),
		WorkerPoolSize: 1,
		RetryConfig: RetryConfig{
			MaxRetries:        0,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        time.Millisecond,
			BackoffMultiplier: 1.0,
		},
		DeadLetterQueueSize: 10,
		Logger:              testLogger(),
	})
	defer d.Stop()

	d.Use(RecoveryMiddleware(testLogger()))

	require.NoError(t, d.RegisterSync(shared.EventHomeworkFetchFailed, "panicky", func(shared.Event) error {
		panic("boom")
	}))

	assert.NotPanics(t, func() {
		_ = d.Dispatch(testEvent(shared.EventHomeworkFetchFailed))
	})
	assert.Equal(t, 1, d.DeadLetterQueue().Size())
}
