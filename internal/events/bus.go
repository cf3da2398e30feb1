// Package events provides the in-process event bus used to broadcast engine
// lifecycle and data sync events to subscribers (the websocket stream, logs).
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventType identifies what happened.
type EventType string

const (
	EngineRegistered    EventType = "engine_registered"
	EngineDeleted       EventType = "engine_deleted"
	EnginesRebuilt      EventType = "engines_rebuilt"
	CalculationStarted  EventType = "calculation_started"
	CalculationFinished EventType = "calculation_finished"
	PricesSynced        EventType = "prices_synced"
)

// Event is one published occurrence. Data is event-type-specific and must be
// JSON-serializable for the websocket stream.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// subscriberBuffer bounds each subscriber channel. A subscriber that falls
// this far behind starts losing events rather than blocking publishers.
const subscriberBuffer = 64

// Bus is a fan-out publish/subscribe bus. Publishing never blocks: slow
// subscribers drop events.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	log    zerolog.Logger
}

// NewBus creates an event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subs: make(map[int]chan Event),
		log:  log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a new subscriber. The returned cancel function must be
// called to release the subscription; it closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish broadcasts an event to all subscribers, assigning it an ID and
// timestamp.
func (b *Bus) Publish(eventType EventType, data interface{}) {
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.log.Warn().Str("type", string(eventType)).Msg("Dropping event for slow subscriber")
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
