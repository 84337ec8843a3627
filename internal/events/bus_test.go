package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/walletwatch/internal/alarm"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus(zap.NewNop(), 8)
	defer bus.Shutdown(context.Background())

	got := make(chan AlarmRaisedEvent, 1)
	bus.SubscribeFunc(AlarmRaised, func(_ context.Context, e Event) error {
		got <- e.(AlarmRaisedEvent)
		return nil
	})

	a := alarm.Event{ID: "a1", UserID: "u1", Type: alarm.AlertCritical, Timestamp: time.Unix(100, 0)}
	require.NoError(t, bus.Publish(NewAlarmRaised(a)))

	select {
	case e := <-got:
		assert.Equal(t, "a1", e.Alarm.ID)
		assert.Equal(t, time.Unix(100, 0), e.Timestamp())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBusPublishSyncAggregatesErrors(t *testing.T) {
	bus := NewBus(zap.NewNop(), 8)
	defer bus.Shutdown(context.Background())

	boom := errors.New("boom")
	bus.SubscribeFunc(TokenDead, func(context.Context, Event) error { return boom })
	bus.SubscribeFunc(TokenDead, func(context.Context, Event) error { return nil })

	err := bus.PublishSync(context.Background(), TokenDeadEvent{BaseEvent: NewBase(TokenDead, time.Now())})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(zap.NewNop(), 8)
	defer bus.Shutdown(context.Background())

	calls := 0
	sub := bus.SubscribeFunc(TrendingUpdated, func(context.Context, Event) error {
		calls++
		return nil
	})
	assert.Equal(t, 1, bus.Stats().HandlersPerType[TrendingUpdated])

	sub.Unsubscribe()
	sub.Unsubscribe()

	require.NoError(t, bus.PublishSync(context.Background(), TrendingUpdatedEvent{BaseEvent: NewBase(TrendingUpdated, time.Now())}))
	assert.Zero(t, calls)
	assert.Empty(t, bus.Stats().HandlersPerType)
}

func TestBusShutdownDrainsAndRejects(t *testing.T) {
	bus := NewBus(zap.NewNop(), 16)

	var mu sync.Mutex
	seen := 0
	bus.SubscribeFunc(CycleStarted, func(context.Context, Event) error {
		mu.Lock()
		seen++
		mu.Unlock()
		return nil
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(CycleStartedEvent{BaseEvent: NewBase(CycleStarted, time.Now())}))
	}
	require.NoError(t, bus.Shutdown(context.Background()))

	mu.Lock()
	assert.Equal(t, 5, seen)
	mu.Unlock()
	assert.ErrorIs(t, bus.Publish(CycleStartedEvent{}), ErrBusClosed)
}
