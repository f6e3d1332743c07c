package logsink

import (
	"testing"
	"time"

	"github.com/filippods/irrigazione5/internal/clock"
	"github.com/filippods/irrigazione5/internal/events"
	"github.com/filippods/irrigazione5/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSink(t *testing.T, at time.Time) (*Sink, *store.Store, *clock.Fake) {
	t.Helper()
	s := store.New(store.Config{DataDir: t.TempDir(), Log: zerolog.Nop()})
	fakeClock := clock.NewFake(at)
	return New(Config{Store: s, Clock: fakeClock, Log: zerolog.Nop()}), s, fakeClock
}

func TestAppend_PersistsEntry(t *testing.T) {
	sink, s, _ := newTestSink(t, time.Date(2024, 6, 15, 6, 0, 0, 0, time.UTC))

	require.NoError(t, sink.Append("info", "zone_started"))

	entries := s.LoadSystemLog()
	require.Len(t, entries, 1)
	assert.Equal(t, "2024-06-15", entries[0].Date)
	assert.Equal(t, "info", entries[0].Level)
	assert.Equal(t, "zone_started", entries[0].Message)
	assert.NotEmpty(t, entries[0].ID)
}

func TestAppend_TrimsOlderThanWindow(t *testing.T) {
	sink, s, fakeClock := newTestSink(t, time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC))

	require.NoError(t, sink.Append("info", "day1"))

	fakeClock.Advance(15 * 24 * time.Hour)
	require.NoError(t, sink.Append("info", "day16"))

	entries := s.LoadSystemLog()
	require.Len(t, entries, 1)
	assert.Equal(t, "day16", entries[0].Message)
}

func TestAppend_KeepsEntriesWithinWindow(t *testing.T) {
	sink, s, fakeClock := newTestSink(t, time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC))

	require.NoError(t, sink.Append("info", "day1"))
	fakeClock.Advance(5 * 24 * time.Hour)
	require.NoError(t, sink.Append("info", "day6"))

	entries := s.LoadSystemLog()
	require.Len(t, entries, 2)
}

func TestTrim_ToleratesYearBoundary(t *testing.T) {
	sink, s, fakeClock := newTestSink(t, time.Date(2024, 12, 28, 0, 0, 0, 0, time.UTC))

	require.NoError(t, sink.Append("info", "before-new-year"))
	fakeClock.Advance(5 * 24 * time.Hour) // crosses into 2025

	require.NoError(t, sink.Append("info", "after-new-year"))

	entries := s.LoadSystemLog()
	require.Len(t, entries, 2, "5 days is within the 10-day window across the year boundary")
}

func TestSubscribe_TranslatesEventsToLogLines(t *testing.T) {
	sink, s, _ := newTestSink(t, time.Now())
	bus := events.NewBus(zerolog.Nop())
	sink.Subscribe(bus)

	bus.Emit(events.ZoneStarted, "actuator", map[string]interface{}{"zone_id": 0})

	require.Eventually(t, func() bool {
		return len(s.LoadSystemLog()) == 1
	}, time.Second, time.Millisecond)
}
