// Package events implements the internal pub/sub bus (§6.4): a small
// in-process fan-out used to decouple the actuator, executor, scheduler and
// connectivity supplier from the HTTP layer's live status push.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Type identifies a kind of event on the bus.
type Type string

const (
	ZoneStarted          Type = "zone_started"
	ZoneStopped          Type = "zone_stopped"
	ProgramStarted       Type = "program_started"
	ProgramStepAdvanced  Type = "program_step_advanced"
	ProgramCompleted     Type = "program_completed"
	ProgramCancelled     Type = "program_cancelled"
	ConnectivityUp       Type = "connectivity_up"
	ConnectivityDown     Type = "connectivity_down"
	SchedulerTickSkipped Type = "scheduler_tick_skipped"
)

// Event is a single occurrence published on the bus.
type Event struct {
	Type      Type
	Timestamp time.Time
	Module    string
	Data      map[string]interface{}
}

// Handler reacts to an Event.
type Handler func(*Event)

// Subscription identifies a registered handler so it can be removed again.
type Subscription struct {
	eventType Type
	id        uint64
}

// Bus provides pub/sub fan-out of domain events to any number of listeners,
// notably the HTTP layer's /ws/status push and the log ring buffer sink.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Type]map[uint64]Handler
	nextID      uint64
	log         zerolog.Logger
}

// NewBus creates an empty Bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[Type]map[uint64]Handler),
		log:         log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers handler for eventType and returns a token usable with
// Unsubscribe.
func (b *Bus) Subscribe(eventType Type, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	if _, ok := b.subscribers[eventType]; !ok {
		b.subscribers[eventType] = make(map[uint64]Handler)
	}
	b.subscribers[eventType][id] = handler

	return Subscription{eventType: eventType, id: id}
}

// Unsubscribe removes a previously registered handler. Safe to call more
// than once with the same Subscription.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if handlers, ok := b.subscribers[sub.eventType]; ok {
		delete(handlers, sub.id)
		if len(handlers) == 0 {
			delete(b.subscribers, sub.eventType)
		}
	}
}

// Emit publishes an event of eventType to every subscriber of that type.
// Handlers run concurrently on their own goroutines so a slow or blocked
// subscriber (e.g. a stalled websocket write) never delays the caller, which
// is typically the actuator or executor on its own critical path.
func (b *Bus) Emit(eventType Type, module string, data map[string]interface{}) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Module:    module,
		Data:      data,
	}

	b.mu.RLock()
	var handlers []Handler
	if registered := b.subscribers[eventType]; len(registered) > 0 {
		handlers = make([]Handler, 0, len(registered))
		for _, h := range registered {
			handlers = append(handlers, h)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		go h(event)
	}

	b.log.Debug().
		Str("event_type", string(eventType)).
		Str("module", module).
		Int("subscribers", len(handlers)).
		Msg("event emitted")
}
