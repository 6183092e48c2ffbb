package models

import "time"

// EventType names a lifecycle transition published to downstream consumers.
type EventType string

const (
	EventDiscovered     EventType = "discovered"
	EventExtremeUpdated EventType = "extreme_updated"
	EventReady          EventType = "ready"
	EventScored         EventType = "scored"
	EventInvalidated    EventType = "invalidated"
	EventExpired        EventType = "expired"
	EventEntered        EventType = "entered"
	EventPartialExit    EventType = "partial_exit"
	EventClosed         EventType = "closed"
	EventStopRatcheted  EventType = "stop_ratcheted"
	EventReconciled     EventType = "reconciled"
)

type SignalEvent struct {
	Type      EventType              `json:"type"`
	Symbol    string                 `json:"symbol"`
	Direction Direction              `json:"direction,omitempty"`
	At        time.Time              `json:"at"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

func NewSignalEvent(t EventType, symbol string, dir Direction, at time.Time) SignalEvent {
	return SignalEvent{Type: t, Symbol: symbol, Direction: dir, At: at}
}

// With attaches a detail field and returns the event for chaining.
func (e SignalEvent) With(key string, value interface{}) SignalEvent {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	e.Details = details
	return e
}
