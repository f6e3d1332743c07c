// Package connectivity implements the WiFi provisioning / AP fallback
// supplier (§6.6): it attempts station association using the stored
// credentials, falls back to access-point mode on repeated failure, and
// signals up/down transitions to the kernel over the event bus rather than
// being called into directly.
package connectivity

import (
	"math/rand"
	"sync"
	"time"

	"github.com/filippods/irrigazione5/internal/actuator"
	"github.com/filippods/irrigazione5/internal/clock"
	"github.com/filippods/irrigazione5/internal/events"
	"github.com/filippods/irrigazione5/internal/kernelerr"
	"github.com/filippods/irrigazione5/internal/model"
	"github.com/filippods/irrigazione5/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// retryRoundCadence is the hard cap from spec.md §5: the supervisor never
// waits longer than this between retry rounds, regardless of how far the
// backoff has climbed.
const retryRoundCadence = 30 * time.Second

// Backoff computes the delay before the next retry round, growing
// geometrically from InitialDelay up to MaxDelay and jittered by +/-Jitter
// fraction, in the shape of the pack's exponential-backoff-with-jitter
// retry strategy.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // fraction of the computed delay, e.g. 0.1 = +/-10%
}

// DefaultBackoff mirrors the pack's retry defaults, capped by the 30s
// retry-round cadence instead of that package's own MaxDelay.
func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     retryRoundCadence,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// NextDelay returns the delay to wait before retry attempt (0-indexed)
// attempt+1, capped at MaxDelay and at the 30s retry-round cadence.
func (b Backoff) NextDelay(attempt int) time.Duration {
	delay := float64(b.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= b.Multiplier
	}
	d := time.Duration(delay)
	if d > b.MaxDelay {
		d = b.MaxDelay
	}
	if d > retryRoundCadence {
		d = retryRoundCadence
	}
	if b.Jitter > 0 {
		spread := float64(d) * b.Jitter
		d = time.Duration(float64(d) - spread + 2*spread*rand.Float64())
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Mode is the supplier's current connection mode.
type Mode string

const (
	ModeDown    Mode = "down"
	ModeStation Mode = "station"
	ModeAP      Mode = "ap"
)

// Radio is the hardware/driver boundary the supplier drives: associate to an
// SSID in station mode, or start a local access point. A fake radio backs
// deterministic tests; production wiring points this at the MCU client or a
// platform WiFi helper.
type Radio interface {
	ConnectStation(creds model.WifiCredentials) error
	StartAP(creds model.WifiCredentials) error
}

// Scanner is an optional capability of a Radio: list nearby access points.
// Not every Radio implementation can scan (the AP-only fallback path, for
// instance), so Supervisor.Scan type-asserts for it rather than requiring it
// on Radio itself.
type Scanner interface {
	Scan() ([]model.WifiScanResult, error)
}

// Config wires a Supervisor's collaborators.
type Config struct {
	Radio    Radio
	Store    *store.Store
	Clock    clock.Clock
	Events   *events.Bus
	Settings actuator.SettingsReader
	Backoff  Backoff // zero value uses DefaultBackoff
	Log      zerolog.Logger
}

// Supervisor runs the STA-then-AP-fallback provisioning loop described in
// spec.md §1: try station association using stored credentials, retry with
// backoff on failure, and fall back to AP mode so the device stays
// reachable. It is started once at boot and run in its own goroutine by the
// caller.
type Supervisor struct {
	radio    Radio
	store    *store.Store
	clock    clock.Clock
	events   *events.Bus
	settings actuator.SettingsReader
	backoff  Backoff
	log      zerolog.Logger

	mu      sync.Mutex
	mode    Mode
	stopped bool
}

// New constructs a Supervisor.
func New(cfg Config) *Supervisor {
	backoff := cfg.Backoff
	if backoff == (Backoff{}) {
		backoff = DefaultBackoff()
	}
	return &Supervisor{
		radio:    cfg.Radio,
		store:    cfg.Store,
		clock:    cfg.Clock,
		events:   cfg.Events,
		settings: cfg.Settings,
		backoff:  backoff,
		mode:     ModeDown,
		log:      cfg.Log.With().Str("component", "connectivity").Logger(),
	}
}

// Scan lists nearby access points via the radio, if it supports scanning,
// and persists the result to wifi_scan.json for GET /scan_wifi to read.
func (s *Supervisor) Scan() ([]model.WifiScanResult, error) {
	scanner, ok := s.radio.(Scanner)
	if !ok {
		return nil, kernelerr.New(kernelerr.Validation, "radio does not support scanning")
	}
	results, err := scanner.Scan()
	if err != nil {
		return nil, kernelerr.Wrap(kernelerr.Hardware, "wifi scan failed", err)
	}
	if s.store != nil {
		if err := s.store.SaveWifiScan(results); err != nil {
			s.log.Warn().Err(err).Msg("failed to persist wifi scan results")
		}
	}
	return results, nil
}

// ActivateAP forces AP mode immediately, bypassing the station-retry loop,
// for the explicit POST /activate_ap operator action.
func (s *Supervisor) ActivateAP() error {
	settings := s.settings()
	if err := s.radio.StartAP(settings.AP); err != nil {
		return kernelerr.Wrap(kernelerr.Hardware, "failed to start access point", err)
	}
	s.transition(ModeAP)
	return nil
}

// Mode reports the supervisor's current connection mode.
func (s *Supervisor) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Stop requests the run loop exit at the next poll point.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *Supervisor) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Run drives the provisioning loop until Stop is called. It is meant to be
// launched with `go supervisor.Run()` from the daemon's composition root.
func (s *Supervisor) Run() {
	attempt := 0
	for !s.isStopped() {
		settings := s.settings()
		if !settings.ClientEnabled || settings.Wifi.SSID == "" {
			s.enterAP(settings.AP)
			s.clock.Sleep(retryRoundCadence)
			continue
		}

		if err := s.radio.ConnectStation(settings.Wifi); err != nil {
			s.log.Warn().Err(err).Str("ssid", settings.Wifi.SSID).Msg("station association failed")
			s.enterDown()
			delay := s.backoff.NextDelay(attempt)
			attempt++
			if attempt >= 5 {
				s.enterAP(settings.AP)
			}
			s.clock.Sleep(delay)
			continue
		}

		attempt = 0
		s.enterStation()
		s.clock.Sleep(retryRoundCadence)
	}
}

func (s *Supervisor) enterStation() {
	s.transition(ModeStation)
}

func (s *Supervisor) enterAP(creds model.WifiCredentials) {
	if err := s.radio.StartAP(creds); err != nil {
		s.log.Error().Err(err).Msg("failed to start access point")
		s.enterDown()
		return
	}
	s.transition(ModeAP)
}

func (s *Supervisor) enterDown() {
	s.transition(ModeDown)
}

// transition updates the mode and emits ConnectivityUp/Down exactly on an
// up/down edge, not on every poll.
func (s *Supervisor) transition(next Mode) {
	s.mu.Lock()
	prev := s.mode
	s.mode = next
	s.mu.Unlock()

	if prev == next {
		return
	}

	wasUp := prev == ModeStation || prev == ModeAP
	isUp := next == ModeStation || next == ModeAP

	if isUp && !wasUp {
		s.events.Emit(events.ConnectivityUp, "connectivity", map[string]interface{}{"mode": string(next)})
	} else if !isUp && wasUp {
		s.events.Emit(events.ConnectivityDown, "connectivity", map[string]interface{}{"mode": string(next)})
	}
}

// NewScanResultID mints a correlation id for one scan entry.
func NewScanResultID() string {
	return uuid.NewString()
}
