package events

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestBus_SubscribeAndEmit(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var mu sync.Mutex
	var received *Event
	var wg sync.WaitGroup
	wg.Add(1)

	bus.Subscribe(ZoneStarted, func(e *Event) {
		mu.Lock()
		received = e
		mu.Unlock()
		wg.Done()
	})

	bus.Emit(ZoneStarted, "actuator", map[string]interface{}{"zone_id": 3})
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, ZoneStarted, received.Type)
	assert.Equal(t, "actuator", received.Module)
	assert.Equal(t, 3, received.Data["zone_id"])
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var mu sync.Mutex
	calls := 0
	sub := bus.Subscribe(ZoneStopped, func(e *Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	bus.Unsubscribe(sub)
	bus.Unsubscribe(sub) // idempotent

	bus.Emit(ZoneStopped, "actuator", nil)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, calls)
}

func TestBus_DifferentEventTypesAreIsolated(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var wg sync.WaitGroup
	wg.Add(1)
	bus.Subscribe(ProgramStarted, func(e *Event) { wg.Done() })
	bus.Subscribe(ProgramCompleted, func(e *Event) {
		t.Error("unexpected delivery to ProgramCompleted subscriber")
	})

	bus.Emit(ProgramStarted, "executor", nil)
	wg.Wait()
}
