// Package logsink implements the log ring buffer (§6.5): a persisted window
// of the last ~10 calendar days of structured log records, fed by the
// internal event bus so the kernel never imports this package directly.
package logsink

import (
	"fmt"
	"sync"

	"github.com/filippods/irrigazione5/internal/clock"
	"github.com/filippods/irrigazione5/internal/events"
	"github.com/filippods/irrigazione5/internal/model"
	"github.com/filippods/irrigazione5/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultWindowDays = 10

// Config wires a Sink's collaborators.
type Config struct {
	Store      *store.Store
	Clock      clock.Clock
	Events     *events.Bus
	WindowDays int // defaults to 10 if <= 0
	Log        zerolog.Logger
}

// Sink persists log entries to system_log.json, trimming anything older
// than WindowDays using absolute day numbers so the trim is safe across a
// year boundary.
type Sink struct {
	store      *store.Store
	clock      clock.Clock
	events     *events.Bus
	windowDays int
	log        zerolog.Logger

	mu sync.Mutex
}

// New constructs a Sink.
func New(cfg Config) *Sink {
	windowDays := cfg.WindowDays
	if windowDays <= 0 {
		windowDays = defaultWindowDays
	}
	return &Sink{
		store:      cfg.Store,
		clock:      cfg.Clock,
		events:     cfg.Events,
		windowDays: windowDays,
		log:        cfg.Log.With().Str("component", "logsink").Logger(),
	}
}

// Append records one log entry and trims the buffer to the retention
// window.
func (s *Sink) Append(level, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cal := s.clock.Calendar()
	entry := model.LogEntry{
		ID:      uuid.NewString(),
		Date:    cal.Date(),
		Time:    fmt.Sprintf("%02d:%02d:%02d", cal.Hour, cal.Minute, cal.Second),
		Level:   level,
		Message: message,
	}

	entries := s.store.LoadSystemLog()
	entries = append(entries, entry)
	entries = trim(entries, cal.AbsoluteDay(), s.windowDays)

	return s.store.SaveSystemLog(entries)
}

// trim drops every entry older than windowDays before today (an absolute
// day number), tolerating a malformed date by keeping the entry rather than
// silently dropping operator-visible history.
func trim(entries []model.LogEntry, today, windowDays int) []model.LogEntry {
	cutoff := today - windowDays
	kept := entries[:0:0]
	for _, e := range entries {
		day, ok := clock.AbsoluteDayForDate(e.Date)
		if !ok || day >= cutoff {
			kept = append(kept, e)
		}
	}
	return kept
}

// Subscribe registers the Sink as a listener on every domain event type it
// cares about, translating each into a log line. Call once during startup
// wiring.
func (s *Sink) Subscribe(bus *events.Bus) {
	for _, t := range []events.Type{
		events.ZoneStarted, events.ZoneStopped,
		events.ProgramStarted, events.ProgramCompleted, events.ProgramCancelled,
		events.ConnectivityUp, events.ConnectivityDown,
	} {
		bus.Subscribe(t, s.handle)
	}
}

func (s *Sink) handle(e *events.Event) {
	if err := s.Append("info", string(e.Type)); err != nil {
		s.log.Error().Err(err).Msg("failed to append log entry")
	}
}
