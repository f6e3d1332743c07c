package scheduler

import (
	"testing"
	"time"

	"github.com/filippods/irrigazione5/internal/actuator"
	"github.com/filippods/irrigazione5/internal/clock"
	"github.com/filippods/irrigazione5/internal/executor"
	"github.com/filippods/irrigazione5/internal/gpio"
	"github.com/filippods/irrigazione5/internal/model"
	"github.com/filippods/irrigazione5/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, at time.Time) (*Scheduler, *store.Store, *executor.Executor, *gpio.Fake) {
	t.Helper()
	settings := model.FactorySettings()
	settings.AutomaticProgramsEnabled = true

	fakeGPIO := gpio.NewFake()
	fakeClock := clock.NewFake(at)
	s := store.New(store.Config{DataDir: t.TempDir(), Log: zerolog.Nop()})
	require.NoError(t, s.SaveSettings(settings))

	act := actuator.New(actuator.Config{
		GPIO:     fakeGPIO,
		Clock:    fakeClock,
		Settings: func() model.Settings { return settings },
		Log:      zerolog.Nop(),
	})
	exec := executor.New(executor.Config{
		Actuator: act,
		Store:    s,
		Clock:    fakeClock,
		Settings: func() model.Settings { return settings },
		Log:      zerolog.Nop(),
	})

	sched := New(Config{Store: s, Executor: exec, Clock: fakeClock, Log: zerolog.Nop()})
	return sched, s, exec, fakeGPIO
}

func TestTick_SkipsWhenAutomaticProgramsDisabled(t *testing.T) {
	sched, s, exec, fakeGPIO := newTestScheduler(t, time.Date(2024, 6, 15, 6, 0, 0, 0, time.Local))
	settings := s.LoadSettings()
	settings.AutomaticProgramsEnabled = false
	require.NoError(t, s.SaveSettings(settings))

	require.NoError(t, s.SavePrograms(model.Programs{"1": {
		ID: "1", Months: []int{6}, Recurrence: model.RecurrenceDaily, ActivationTime: "06:00",
		Steps: []model.Step{{ZoneID: 0, DurationMinutes: 1}},
	}}))

	sched.Tick()
	time.Sleep(10 * time.Millisecond)

	assert.False(t, exec.IsRunning())
	assert.False(t, fakeGPIO.IsAsserted(14))
}

func TestTick_FiresMatchingProgram(t *testing.T) {
	at := time.Date(2024, 6, 15, 6, 0, 0, 0, time.Local)
	sched, s, exec, fakeGPIO := newTestScheduler(t, at)

	require.NoError(t, s.SavePrograms(model.Programs{"1": {
		ID: "1", Months: []int{6}, Recurrence: model.RecurrenceDaily, ActivationTime: "06:00",
		Steps: []model.Step{{ZoneID: 0, DurationMinutes: 1}},
	}}))

	sched.Tick()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !exec.IsRunning() {
		time.Sleep(time.Millisecond)
	}
	require.True(t, exec.IsRunning(), "executor should have picked up the due program")

	for time.Now().Before(deadline) && exec.IsRunning() {
		time.Sleep(time.Millisecond)
	}
	require.False(t, exec.IsRunning(), "executor should have finished the one-step program")

	assert.False(t, fakeGPIO.IsAsserted(14))
	programs := s.LoadPrograms()
	assert.Equal(t, "2024-06-15", programs["1"].LastRunDate)
}

func TestTick_DoesNotFireOutsideActivationWindow(t *testing.T) {
	sched, s, exec, fakeGPIO := newTestScheduler(t, time.Date(2024, 6, 15, 7, 0, 0, 0, time.Local))
	require.NoError(t, s.SavePrograms(model.Programs{"1": {
		ID: "1", Months: []int{6}, Recurrence: model.RecurrenceDaily, ActivationTime: "06:00",
		Steps: []model.Step{{ZoneID: 0, DurationMinutes: 1}},
	}}))

	sched.Tick()
	time.Sleep(10 * time.Millisecond)

	assert.False(t, exec.IsRunning())
	assert.False(t, fakeGPIO.IsAsserted(14))
}

func TestTick_DoesNotFireOutsideMonth(t *testing.T) {
	sched, s, exec, fakeGPIO := newTestScheduler(t, time.Date(2024, 7, 15, 6, 0, 0, 0, time.Local))
	require.NoError(t, s.SavePrograms(model.Programs{"1": {
		ID: "1", Months: []int{6}, Recurrence: model.RecurrenceDaily, ActivationTime: "06:00",
		Steps: []model.Step{{ZoneID: 0, DurationMinutes: 1}},
	}}))

	sched.Tick()
	time.Sleep(10 * time.Millisecond)

	assert.False(t, exec.IsRunning())
	assert.False(t, fakeGPIO.IsAsserted(14))
}

// Invariant 9 (daily): a program already run today does not fire again.
func TestIsDueToday_DailyAlreadyRanToday(t *testing.T) {
	today := 2024*366 + 167
	p := model.Program{Recurrence: model.RecurrenceDaily, LastRunDate: "2024-06-15"}
	assert.False(t, isDueToday(p, today))
}

func TestIsDueToday_DailyNeverRun(t *testing.T) {
	p := model.Program{Recurrence: model.RecurrenceDaily}
	assert.True(t, isDueToday(p, 2024*366+167))
}

func TestIsDueToday_EveryOtherDay(t *testing.T) {
	p := model.Program{Recurrence: model.RecurrenceEveryOtherDay, LastRunDate: "2024-06-14"}
	assert.False(t, isDueToday(p, clockAbsoluteDay(2024, 6, 15)))
	assert.True(t, isDueToday(p, clockAbsoluteDay(2024, 6, 16)))
}

func TestIsDueToday_CustomInterval(t *testing.T) {
	p := model.Program{Recurrence: model.RecurrenceCustom, IntervalDays: 3, LastRunDate: "2024-06-14"}
	assert.False(t, isDueToday(p, clockAbsoluteDay(2024, 6, 16)))
	assert.True(t, isDueToday(p, clockAbsoluteDay(2024, 6, 17)))
}

func TestIsDueToday_YearBoundaryIsSafe(t *testing.T) {
	p := model.Program{Recurrence: model.RecurrenceEveryOtherDay, LastRunDate: "2024-12-31"}
	assert.False(t, isDueToday(p, clockAbsoluteDay(2025, 1, 1)))
	assert.True(t, isDueToday(p, clockAbsoluteDay(2025, 1, 2)))
}

func TestDueProgramsInOrder_AscendingIDs(t *testing.T) {
	programs := model.Programs{
		"10": {ID: "10", Months: []int{6}, ActivationTime: "06:00", Recurrence: model.RecurrenceDaily},
		"2":  {ID: "2", Months: []int{6}, ActivationTime: "06:00", Recurrence: model.RecurrenceDaily},
	}
	due := dueProgramsInOrder(programs, "06:00", 6, clockAbsoluteDay(2024, 6, 15))
	require.Len(t, due, 2)
	assert.Equal(t, "2", due[0].ID)
	assert.Equal(t, "10", due[1].ID)
}

func clockAbsoluteDay(year, month, day int) int {
	c := clock.Calendar{Year: year, Month: month, Day: day}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	c.DayOfYear = t.YearDay()
	return c.AbsoluteDay()
}
