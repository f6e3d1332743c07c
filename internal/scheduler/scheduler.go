// Package scheduler implements the Program Scheduler (§4.5): a periodic tick
// that evaluates stored programs against the calendar and hands due programs
// to the Executor.
package scheduler

import (
	"sort"
	"strconv"
	"sync"

	"github.com/filippods/irrigazione5/internal/clock"
	"github.com/filippods/irrigazione5/internal/events"
	"github.com/filippods/irrigazione5/internal/executor"
	"github.com/filippods/irrigazione5/internal/model"
	"github.com/filippods/irrigazione5/internal/store"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const tickSpec = "@every 30s"

// Config wires a Scheduler's collaborators.
type Config struct {
	Store    *store.Store
	Executor *executor.Executor
	Clock    clock.Clock
	Events   *events.Bus
	Log      zerolog.Logger
}

// Scheduler drives the Executor from a 30-second robfig/cron tick.
type Scheduler struct {
	store    *store.Store
	executor *executor.Executor
	clock    clock.Clock
	events   *events.Bus
	log      zerolog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// New constructs a Scheduler.
func New(cfg Config) *Scheduler {
	return &Scheduler{
		store:    cfg.Store,
		executor: cfg.Executor,
		clock:    cfg.Clock,
		events:   cfg.Events,
		log:      cfg.Log.With().Str("component", "scheduler").Logger(),
	}
}

// Start arms the 30-second tick. Safe to call once; a second call is a
// no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(tickSpec, s.Tick); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.running = true
	s.log.Info().Msg("scheduler started")
	return nil
}

// Stop disarms the tick and waits for any in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.log.Info().Msg("scheduler stopped")
}

// Tick runs one evaluation of the due-today rule against every stored
// program (§4.5). Exported so tests can drive it directly without waiting on
// a real or simulated cron schedule.
func (s *Scheduler) Tick() {
	settings := s.store.LoadSettings()
	if !settings.AutomaticProgramsEnabled {
		return
	}
	if s.executor.IsRunning() {
		return
	}

	cal := s.clock.Calendar()
	hhmm := cal.HHMM()
	today := cal.AbsoluteDay()

	programs := s.store.LoadPrograms()
	due := dueProgramsInOrder(programs, hhmm, cal.Month, today)

	for _, p := range due {
		if s.executor.IsRunning() {
			s.log.Debug().Str("program_id", p.ID).Msg("tick: program_running flag taken by an earlier match, skipping")
			s.emit(p.ID)
			continue
		}
		s.log.Info().Str("program_id", p.ID).Msg("tick: starting due program")
		go func(p model.Program) {
			if err := s.executor.Execute(p, false); err != nil {
				s.log.Error().Err(err).Str("program_id", p.ID).Msg("scheduled program execution failed to start")
			}
		}(p)
	}
}

// dueProgramsInOrder returns the programs due to fire this tick, in
// ascending numeric id order, per §4.5's "fire in ascending id order" rule.
func dueProgramsInOrder(programs model.Programs, hhmm string, month int, today int) []model.Program {
	var due []model.Program
	for _, p := range programs {
		if p.ActivationTime != hhmm {
			continue
		}
		if !p.HasMonth(month) {
			continue
		}
		if !isDueToday(p, today) {
			continue
		}
		due = append(due, p)
	}
	sort.Slice(due, func(i, j int) bool {
		idI, _ := strconv.Atoi(due[i].ID)
		idJ, _ := strconv.Atoi(due[j].ID)
		return idI < idJ
	})
	return due
}

// isDueToday implements the recurrence rule from §4.5, using the
// year-boundary-safe absolute day number instead of a raw day-of-year
// subtraction.
func isDueToday(p model.Program, today int) bool {
	lastRun := clock.AbsoluteDayForDateOrNever(p.LastRunDate)

	switch p.Recurrence {
	case model.RecurrenceEveryOtherDay:
		return today-lastRun >= 2
	case model.RecurrenceCustom:
		interval := p.IntervalDays
		if interval < 1 {
			interval = 1
		}
		return today-lastRun >= interval
	default: // daily
		return lastRun != today
	}
}

func (s *Scheduler) emit(programID string) {
	if s.events != nil {
		s.events.Emit(events.SchedulerTickSkipped, "scheduler", map[string]interface{}{"program_id": programID})
	}
}
