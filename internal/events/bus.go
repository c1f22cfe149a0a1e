// Package events carries in-process notifications (data refreshed, run completed)
// from the services to websocket subscribers.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType represents different event types
type EventType string

const (
	DataRefreshed   EventType = "DATA_REFRESHED"
	RunCompleted    EventType = "RUN_COMPLETED"
	RunFailed       EventType = "RUN_FAILED"
	SettingsChanged EventType = "SETTINGS_CHANGED"
	BackupCompleted EventType = "BACKUP_COMPLETED"
	ErrorOccurred   EventType = "ERROR_OCCURRED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Module    string                 `json:"module"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

const subscriberBuffer = 16

// Bus logs every event and fans it out to subscribers.
// Slow subscribers lose events instead of blocking the publisher.
type Bus struct {
	subscribers map[chan Event]map[EventType]bool // nil filter = all types
	mu          sync.RWMutex
	log         zerolog.Logger
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[chan Event]map[EventType]bool),
		log:         log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a subscriber for the given types, or for every type when none are given.
func (b *Bus) Subscribe(types ...EventType) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	var filter map[EventType]bool
	if len(types) > 0 {
		filter = make(map[EventType]bool, len(types))
		for _, t := range types {
			filter[t] = true
		}
	}

	ch := make(chan Event, subscriberBuffer)
	b.subscribers[ch] = filter

	b.log.Debug().
		Int("total_subscribers", len(b.subscribers)).
		Msg("New subscriber added")

	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)

	b.log.Debug().
		Int("total_subscribers", len(b.subscribers)).
		Msg("Subscriber removed")
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Emit publishes an event
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Module:    module,
		Data:      data,
	}

	eventJSON, err := json.Marshal(event)
	if err == nil {
		b.log.Info().
			Str("event_type", string(eventType)).
			Str("module", module).
			RawJSON("event", eventJSON).
			Msg("Event emitted")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch, filter := range b.subscribers {
		if filter != nil && !filter[eventType] {
			continue
		}
		select {
		case ch <- event:
		default:
			b.log.Warn().
				Str("event_type", string(eventType)).
				Msg("Subscriber channel full, event dropped")
		}
	}
}

// EmitError emits an error event
func (b *Bus) EmitError(module string, err error, context map[string]interface{}) {
	b.Emit(ErrorOccurred, module, map[string]interface{}{
		"error":   err.Error(),
		"context": context,
	})
}
