package actuator

import (
	"testing"
	"time"

	"github.com/filippods/irrigazione5/internal/clock"
	"github.com/filippods/irrigazione5/internal/events"
	"github.com/filippods/irrigazione5/internal/gpio"
	"github.com/filippods/irrigazione5/internal/kernelerr"
	"github.com/filippods/irrigazione5/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestActuator(t *testing.T, settings model.Settings) (*Actuator, *gpio.Fake, *clock.Fake) {
	t.Helper()
	fakeGPIO := gpio.NewFake()
	fakeClock := clock.NewFake(time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC))
	a := New(Config{
		GPIO:     fakeGPIO,
		Clock:    fakeClock,
		Settings: func() model.Settings { return settings },
		Log:      zerolog.Nop(),
	})
	return a, fakeGPIO, fakeClock
}

func testSettings() model.Settings {
	s := model.FactorySettings()
	s.MaxActiveZones = 2
	return s
}

// S1: starting zone 0 for 2 minutes asserts the safety relay and the zone
// pin, and both de-assert automatically at t=120s.
func TestStartZone_AssertsSafetyAndZonePin(t *testing.T) {
	a, fakeGPIO, fakeClock := newTestActuator(t, testSettings())

	require.NoError(t, a.StartZone(0, 2))

	assert.True(t, fakeGPIO.IsAsserted(13)) // safety relay
	assert.True(t, fakeGPIO.IsAsserted(14)) // zone 0 pin
	assert.True(t, a.SafetyRelayAsserted())

	fakeClock.Advance(119 * time.Second)
	assert.True(t, fakeGPIO.IsAsserted(14), "zone must still be on just before its duration elapses")

	fakeClock.Advance(1 * time.Second)
	assert.False(t, fakeGPIO.IsAsserted(14), "zone must auto-stop exactly at its duration")
	assert.False(t, fakeGPIO.IsAsserted(13), "safety relay must de-assert once the last zone stops")
	assert.False(t, a.SafetyRelayAsserted())
}

func TestStartZone_RejectsUnknownZone(t *testing.T) {
	a, _, _ := newTestActuator(t, testSettings())

	err := a.StartZone(99, 5)
	require.Error(t, err)
	assert.Equal(t, kernelerr.Validation, kernelerr.KindOf(err))
}

func TestStartZone_RejectsOutOfRangeDuration(t *testing.T) {
	a, _, _ := newTestActuator(t, testSettings())

	err := a.StartZone(0, 0)
	require.Error(t, err)
	assert.Equal(t, kernelerr.Validation, kernelerr.KindOf(err))

	err = a.StartZone(0, 181)
	require.Error(t, err)
	assert.Equal(t, kernelerr.Validation, kernelerr.KindOf(err))
}

// Invariant: at most MaxActiveZones may be energised concurrently, but a
// call to re-start an already active zone is not itself rejected.
func TestStartZone_EnforcesMaxActiveZones(t *testing.T) {
	a, _, _ := newTestActuator(t, testSettings())

	require.NoError(t, a.StartZone(0, 5))
	require.NoError(t, a.StartZone(1, 5))

	err := a.StartZone(2, 5)
	require.Error(t, err)
	assert.Equal(t, kernelerr.Busy, kernelerr.KindOf(err))

	// Re-starting an already-active zone (e.g. to change its duration) must
	// not be rejected by the concurrency limit.
	require.NoError(t, a.StartZone(0, 10))
	assert.Equal(t, 2, a.ActiveCount())
}

func TestStartZone_RestartCancelsPreviousTimer(t *testing.T) {
	a, fakeGPIO, fakeClock := newTestActuator(t, testSettings())

	require.NoError(t, a.StartZone(0, 5))
	require.NoError(t, a.StartZone(0, 10))

	fakeClock.Advance(5 * time.Minute)
	assert.True(t, fakeGPIO.IsAsserted(14), "original 5-minute timer must have been cancelled by the restart")

	fakeClock.Advance(5 * time.Minute)
	assert.False(t, fakeGPIO.IsAsserted(14), "the restarted 10-minute timer must still fire")
}

func TestStopZone_DeassertsAndClearsSafetyWhenLastZone(t *testing.T) {
	a, fakeGPIO, _ := newTestActuator(t, testSettings())

	require.NoError(t, a.StartZone(0, 5))
	require.NoError(t, a.StopZone(0))

	assert.False(t, fakeGPIO.IsAsserted(14))
	assert.False(t, fakeGPIO.IsAsserted(13))
	assert.Equal(t, 0, a.ActiveCount())
}

// Invariant 1: the safety relay stays asserted as long as any zone is
// active, even when other zones stop.
func TestStopZone_KeepsSafetyAssertedWhileOtherZonesActive(t *testing.T) {
	a, fakeGPIO, _ := newTestActuator(t, testSettings())

	require.NoError(t, a.StartZone(0, 5))
	require.NoError(t, a.StartZone(1, 5))
	require.NoError(t, a.StopZone(0))

	assert.True(t, fakeGPIO.IsAsserted(13), "safety relay must remain asserted while zone 1 is still active")
	assert.True(t, fakeGPIO.IsAsserted(15))
}

func TestStopZone_UnknownZoneIsNotFound(t *testing.T) {
	a, _, _ := newTestActuator(t, testSettings())

	err := a.StopZone(99)
	require.Error(t, err)
	assert.Equal(t, kernelerr.NotFound, kernelerr.KindOf(err))
}

func TestStopAll_StopsEveryActiveZone(t *testing.T) {
	a, fakeGPIO, _ := newTestActuator(t, testSettings())

	require.NoError(t, a.StartZone(0, 5))
	require.NoError(t, a.StartZone(1, 5))

	require.NoError(t, a.StopAll())

	assert.Equal(t, 0, a.ActiveCount())
	assert.False(t, fakeGPIO.IsAsserted(14))
	assert.False(t, fakeGPIO.IsAsserted(15))
	assert.False(t, fakeGPIO.IsAsserted(13))
}

func TestStatus_ReportsActiveAndRemainingSeconds(t *testing.T) {
	a, _, fakeClock := newTestActuator(t, testSettings())

	require.NoError(t, a.StartZone(0, 2))
	fakeClock.Advance(30 * time.Second)

	status := a.Status()
	require.Len(t, status, 8)

	zone0 := status[0]
	assert.Equal(t, 0, zone0.ID)
	assert.True(t, zone0.Active)
	assert.Equal(t, int64(90), zone0.RemainingSeconds)

	zone1 := status[1]
	assert.False(t, zone1.Active)
	assert.Equal(t, int64(0), zone1.RemainingSeconds)
}

func TestStatus_OmitsHiddenZones(t *testing.T) {
	settings := testSettings()
	settings.Zones[0].Status = model.HideZone
	a, _, _ := newTestActuator(t, settings)

	status := a.Status()
	require.Len(t, status, 7)
	for _, s := range status {
		assert.NotEqual(t, 0, s.ID)
	}
}

func TestInitialize_DeassertsEveryZoneAndSafetyPin(t *testing.T) {
	a, fakeGPIO, _ := newTestActuator(t, testSettings())
	fakeGPIO.OnWrite(nil)

	// Pre-assert a couple of pins to simulate a warm boot after a crash.
	require.NoError(t, fakeGPIO.SetPin(14, gpio.LevelAsserted))
	require.NoError(t, fakeGPIO.SetPin(13, gpio.LevelAsserted))

	n := a.Initialize()

	assert.Equal(t, 8, n)
	assert.False(t, fakeGPIO.IsAsserted(14))
	assert.False(t, fakeGPIO.IsAsserted(13))
	assert.False(t, a.SafetyRelayAsserted())
}

func TestStartZone_HardwareFailureOnZonePinIsWrapped(t *testing.T) {
	a, fakeGPIO, _ := newTestActuator(t, testSettings())
	fakeGPIO.FailPin(14, true)

	err := a.StartZone(0, 5)
	require.Error(t, err)
	assert.Equal(t, kernelerr.Hardware, kernelerr.KindOf(err))
	assert.Equal(t, 0, a.ActiveCount())
}

func TestStartZone_EmitsZoneStartedEvent(t *testing.T) {
	fakeGPIO := gpio.NewFake()
	fakeClock := clock.NewFake(time.Now())
	bus := events.NewBus(zerolog.Nop())

	received := make(chan *events.Event, 1)
	bus.Subscribe(events.ZoneStarted, func(e *events.Event) { received <- e })

	a := New(Config{
		GPIO:     fakeGPIO,
		Clock:    fakeClock,
		Settings: func() model.Settings { return testSettings() },
		Events:   bus,
		Log:      zerolog.Nop(),
	})

	require.NoError(t, a.StartZone(0, 5))

	select {
	case e := <-received:
		assert.Equal(t, 0, e.Data["zone_id"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for zone_started event")
	}
}
