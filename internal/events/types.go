// internal/events/types.go
package events

import (
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/walletwatch/internal/alarm"
)

// EventType represents the type of event.
type EventType string

const (
	// Refresh cycle events
	CycleStarted   EventType = "cycle.started"
	CycleCompleted EventType = "cycle.completed"

	// Token events
	PriceSampled EventType = "token.price_sampled"
	TokenDead    EventType = "token.dead"

	// Trending ranking rewritten
	TrendingUpdated EventType = "trending.updated"

	AlarmRaised EventType = "alarm.raised"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// NewBase заполняет BaseEvent.
func NewBase(t EventType, at time.Time) BaseEvent {
	return BaseEvent{EventType: t, EventTime: at}
}

// CycleStartedEvent is emitted when a refresh cycle begins.
type CycleStartedEvent struct {
	BaseEvent
	CycleID string
	Tokens  int
}

// CycleCompletedEvent is emitted when a refresh cycle ends, successfully or not.
type CycleCompletedEvent struct {
	BaseEvent
	CycleID  string
	Tokens   int
	Sampled  int
	Alerts   int
	Failed   int
	Duration time.Duration
	Err      error
}

// PriceSampledEvent is emitted after a new price sample is stored.
type PriceSampledEvent struct {
	BaseEvent
	Mint         solana.PublicKey
	Pool         string
	Price        float64
	MarketCapSol *float64
}

// TokenDeadEvent is emitted when a token is marked dead.
type TokenDeadEvent struct {
	BaseEvent
	Mint   solana.PublicKey
	Reason string
}

// TrendingUpdatedEvent carries the size of the rewritten ranking.
type TrendingUpdatedEvent struct {
	BaseEvent
	Entries int
}

// AlarmRaisedEvent wraps an alarm produced for a user.
type AlarmRaisedEvent struct {
	BaseEvent
	Alarm alarm.Event
}

// NewAlarmRaised оборачивает alarm.Event.
func NewAlarmRaised(a alarm.Event) AlarmRaisedEvent {
	return AlarmRaisedEvent{
		BaseEvent: NewBase(AlarmRaised, a.Timestamp),
		Alarm:     a,
	}
}
