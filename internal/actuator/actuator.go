// Package actuator implements the Zone Actuator (§4.3): per-zone lifecycle,
// the concurrent-activation limit, and the safety-relay refcount. It is the
// only component permitted to drive zone and safety-relay pins.
package actuator

import (
	"sync"
	"time"

	"github.com/filippods/irrigazione5/internal/clock"
	"github.com/filippods/irrigazione5/internal/events"
	"github.com/filippods/irrigazione5/internal/gpio"
	"github.com/filippods/irrigazione5/internal/kernelerr"
	"github.com/filippods/irrigazione5/internal/model"
	"github.com/rs/zerolog"
)

// SettingsReader gives the Actuator read access to the live settings
// document (zone list, limits) without owning or caching it -- settings can
// change underneath via a façade update.
type SettingsReader func() model.Settings

// Config wires an Actuator's collaborators.
type Config struct {
	GPIO     gpio.Driver
	Clock    clock.Clock
	Settings SettingsReader
	Events   *events.Bus
	Log      zerolog.Logger
}

// Actuator owns the in-RAM active-zone table and the safety-relay refcount.
// It has no notion of "a program is running": that policy belongs to
// whichever caller needs it (the Command Façade, for external requests),
// since the Executor itself must be able to drive zones from inside a
// program's own step loop while it is running.
type Actuator struct {
	gpio     gpio.Driver
	clock    clock.Clock
	settings SettingsReader
	events   *events.Bus
	log      zerolog.Logger

	mu             sync.Mutex
	active         map[int]*model.ActiveZone
	safetyAsserted bool
}

// New constructs an Actuator.
func New(cfg Config) *Actuator {
	return &Actuator{
		gpio:     cfg.GPIO,
		clock:    cfg.Clock,
		settings: cfg.Settings,
		events:   cfg.Events,
		log:      cfg.Log.With().Str("component", "actuator").Logger(),
		active:   make(map[int]*model.ActiveZone),
	}
}

// Initialize configures every zone pin and the safety-relay pin as outputs
// driven de-asserted. Failure on an individual pin is logged, not fatal; it
// returns the count of zones that initialised without error.
func (a *Actuator) Initialize() int {
	settings := a.settings()
	initialized := 0

	for _, z := range settings.Zones {
		if err := gpio.Deassert(a.gpio, z.Pin); err != nil {
			a.log.Error().Err(err).Int("zone_id", z.ID).Int("pin", z.Pin).Msg("failed to initialise zone pin")
			continue
		}
		initialized++
	}

	if err := gpio.Deassert(a.gpio, settings.SafetyRelay.Pin); err != nil {
		a.log.Error().Err(err).Int("pin", settings.SafetyRelay.Pin).Msg("failed to initialise safety relay pin")
	}

	a.mu.Lock()
	a.safetyAsserted = false
	a.mu.Unlock()

	a.log.Info().Int("zones_initialized", initialized).Msg("actuator initialized")
	return initialized
}

// ActiveCount returns the number of currently energised zones.
func (a *Actuator) ActiveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.active)
}

// StartZone implements the start_zone policy from §4.3, minus the
// "reject while a program is running" step: that step only applies to
// externally-originated requests and is enforced by Kernel.StartZone, the
// façade that actually distinguishes an external caller from the Executor's
// own step loop.
func (a *Actuator) StartZone(zoneID int, durationMinutes int) error {
	settings := a.settings()
	zone, ok := settings.ZoneByID(zoneID)
	if !ok {
		return kernelerr.New(kernelerr.Validation, "zone not configured")
	}

	maxDuration := settings.MaxZoneDuration
	if maxDuration <= 0 {
		maxDuration = model.FactorySettings().MaxZoneDuration
	}
	if durationMinutes < 1 || durationMinutes > maxDuration {
		return kernelerr.New(kernelerr.Validation, "duration out of range")
	}

	a.mu.Lock()

	_, alreadyActive := a.active[zoneID]
	if len(a.active) >= settings.MaxActiveZones && !alreadyActive {
		a.mu.Unlock()
		return kernelerr.New(kernelerr.Busy, "max active zones reached")
	}

	if len(a.active) == 0 && !a.safetyAsserted {
		if err := gpio.Assert(a.gpio, settings.SafetyRelay.Pin); err != nil {
			a.mu.Unlock()
			a.log.Error().Err(err).Msg("failed to assert safety relay")
			return kernelerr.Wrap(kernelerr.Hardware, "failed to assert safety relay", err)
		}
		a.safetyAsserted = true
	}

	if err := gpio.Assert(a.gpio, zone.Pin); err != nil {
		if len(a.active) == 0 && a.safetyAsserted {
			if relErr := gpio.Deassert(a.gpio, settings.SafetyRelay.Pin); relErr == nil {
				a.safetyAsserted = false
			}
		}
		a.mu.Unlock()
		a.log.Error().Err(err).Int("zone_id", zoneID).Msg("failed to assert zone pin")
		return kernelerr.Wrap(kernelerr.Hardware, "failed to assert zone pin", err)
	}

	if existing, ok := a.active[zoneID]; ok && existing.CancelTimer != nil {
		existing.CancelTimer()
	}

	cancel := a.scheduleAutoStop(zoneID, durationMinutes)
	a.active[zoneID] = &model.ActiveZone{
		ZoneID:          zoneID,
		StartUnixSec:    a.clock.Now().Unix(),
		DurationMinutes: durationMinutes,
		CancelTimer:     cancel,
	}
	a.mu.Unlock()

	a.log.Info().Int("zone_id", zoneID).Int("duration_minutes", durationMinutes).Msg("zone started")
	a.emit(events.ZoneStarted, map[string]interface{}{"zone_id": zoneID, "duration_minutes": durationMinutes})
	return nil
}

// scheduleAutoStop arms the clock-driven auto-stop timer for a zone and
// returns a cancel function. Routed through a.clock (rather than a raw
// time.Timer) so a Fake clock can fire it deterministically in tests.
func (a *Actuator) scheduleAutoStop(zoneID int, durationMinutes int) func() {
	return a.clock.AfterFunc(time.Duration(durationMinutes)*time.Minute, func() {
		a.StopZone(zoneID)
	})
}

// StopZone implements the stop_zone policy from §4.3.
func (a *Actuator) StopZone(zoneID int) error {
	settings := a.settings()
	zone, ok := settings.ZoneByID(zoneID)
	if !ok {
		return kernelerr.New(kernelerr.NotFound, "zone not configured")
	}

	a.mu.Lock()

	var hwErr error
	if err := gpio.Deassert(a.gpio, zone.Pin); err != nil {
		a.log.Error().Err(err).Int("zone_id", zoneID).Msg("failed to de-assert zone pin (best effort)")
		hwErr = kernelerr.Wrap(kernelerr.Hardware, "failed to de-assert zone pin", err)
	}

	if existing, ok := a.active[zoneID]; ok {
		if existing.CancelTimer != nil {
			existing.CancelTimer()
		}
		delete(a.active, zoneID)
	}

	if len(a.active) == 0 && a.safetyAsserted {
		if err := gpio.Deassert(a.gpio, settings.SafetyRelay.Pin); err != nil {
			a.log.Error().Err(err).Msg("failed to de-assert safety relay")
			a.mu.Unlock()
			return kernelerr.Wrap(kernelerr.Hardware, "failed to de-assert safety relay", err)
		}
		a.safetyAsserted = false
	}
	a.mu.Unlock()

	a.log.Info().Int("zone_id", zoneID).Msg("zone stopped")
	a.emit(events.ZoneStopped, map[string]interface{}{"zone_id": zoneID})
	return hwErr
}

// StopAll de-asserts every active zone.
func (a *Actuator) StopAll() error {
	a.mu.Lock()
	ids := make([]int, 0, len(a.active))
	for id := range a.active {
		ids = append(ids, id)
	}
	a.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := a.StopZone(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Status returns the status of every visible configured zone (§4.3).
func (a *Actuator) Status() []model.ZoneStatus {
	settings := a.settings()
	now := a.clock.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	result := make([]model.ZoneStatus, 0, len(settings.Zones))
	for _, z := range settings.Zones {
		if !z.IsVisible() {
			continue
		}
		st := model.ZoneStatus{ID: z.ID, Name: z.Name}
		if az, ok := a.active[z.ID]; ok {
			st.Active = true
			elapsed := now.Unix() - az.StartUnixSec
			planned := int64(az.DurationMinutes) * 60
			remaining := planned - elapsed
			if remaining < 0 {
				remaining = 0
			}
			st.RemainingSeconds = remaining
		}
		result = append(result, st)
	}
	return result
}

// SafetyRelayAsserted reports the current safety-relay state, exposed for
// property tests verifying invariant 1.
func (a *Actuator) SafetyRelayAsserted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.safetyAsserted
}

func (a *Actuator) emit(t events.Type, data map[string]interface{}) {
	if a.events != nil {
		a.events.Emit(t, "actuator", data)
	}
}
