// Package executor implements the Program Executor (§4.4): it interprets a
// single stored program as a sequential list of (zone, duration) steps,
// separated by the settings' inter-step activation delay, with cooperative
// cancellation and last-run bookkeeping.
package executor

import (
	"sync"
	"time"

	"github.com/filippods/irrigazione5/internal/actuator"
	"github.com/filippods/irrigazione5/internal/clock"
	"github.com/filippods/irrigazione5/internal/events"
	"github.com/filippods/irrigazione5/internal/kernelerr"
	"github.com/filippods/irrigazione5/internal/model"
	"github.com/filippods/irrigazione5/internal/store"
	"github.com/rs/zerolog"
)

const cancelPollInterval = time.Second

// Config wires an Executor's collaborators.
type Config struct {
	Actuator *actuator.Actuator
	Store    *store.Store
	Clock    clock.Clock
	Settings actuator.SettingsReader
	Events   *events.Bus
	Log      zerolog.Logger
}

// Executor runs at most one program at a time, driving the Actuator through
// its steps and persisting run-state transitions as it goes.
type Executor struct {
	actuator *actuator.Actuator
	store    *store.Store
	clock    clock.Clock
	settings actuator.SettingsReader
	events   *events.Bus
	log      zerolog.Logger

	mu               sync.Mutex
	running          bool
	currentProgramID string
	cancelRequested  bool
}

// New constructs an Executor.
func New(cfg Config) *Executor {
	return &Executor{
		actuator: cfg.Actuator,
		store:    cfg.Store,
		clock:    cfg.Clock,
		settings: cfg.Settings,
		events:   cfg.Events,
		log:      cfg.Log.With().Str("component", "executor").Logger(),
	}
}

// IsRunning reports whether a program is currently executing. The Kernel
// façade consults this to reject an externally-originated start_zone call
// (§4.3 step 1) without the Actuator itself needing to know about programs.
func (e *Executor) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// CurrentProgramID returns the id of the running program, or "" if idle.
func (e *Executor) CurrentProgramID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentProgramID
}

// Execute runs program to completion or cancellation (§4.4). manual is false
// when the scheduler is the caller: automatic programs preempt any manual
// activation by stopping every zone first and settling for a second before
// the step loop begins.
func (e *Executor) Execute(program model.Program, manual bool) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return kernelerr.New(kernelerr.Busy, "a program is already running")
	}
	e.running = true
	e.currentProgramID = program.ID
	e.cancelRequested = false
	e.mu.Unlock()

	if !manual {
		if err := e.actuator.StopAll(); err != nil {
			e.log.Warn().Err(err).Msg("stop_all before automatic program start reported an error")
		}
		e.clock.Sleep(1 * time.Second)
	}

	if err := e.store.SaveRunState(model.RunState{ProgramRunning: true, CurrentProgramID: program.ID}); err != nil {
		e.log.Error().Err(err).Msg("failed to persist run-state at program start")
	}
	e.log.Info().Str("program_id", program.ID).Bool("manual", manual).Msg("program execution started")
	e.emit(events.ProgramStarted, map[string]interface{}{"program_id": program.ID, "manual": manual})

	completed := e.runSteps(program)

	e.finalize(program, completed)
	return nil
}

// runSteps drives the step loop and reports whether every step ran to
// completion without an intervening cancellation.
func (e *Executor) runSteps(program model.Program) bool {
	delay := time.Duration(e.settings().ActivationDelay) * time.Minute

	for i, step := range program.Steps {
		if e.isCancelled() {
			return false
		}

		if step.DurationMinutes < 1 {
			e.log.Warn().Str("program_id", program.ID).Int("zone_id", step.ZoneID).Msg("skipping step with invalid duration")
			continue
		}

		if err := e.actuator.StartZone(step.ZoneID, step.DurationMinutes); err != nil {
			e.log.Error().Err(err).Str("program_id", program.ID).Int("zone_id", step.ZoneID).Msg("failed to start step, skipping")
		} else {
			e.sleepInterruptible(time.Duration(step.DurationMinutes) * time.Minute)
		}

		if err := e.actuator.StopZone(step.ZoneID); err != nil {
			e.log.Warn().Err(err).Str("program_id", program.ID).Int("zone_id", step.ZoneID).Msg("failed to stop step zone")
		}
		e.emit(events.ProgramStepAdvanced, map[string]interface{}{"program_id": program.ID, "step": i})

		if e.isCancelled() {
			return false
		}

		if i < len(program.Steps)-1 && delay > 0 {
			e.sleepInterruptible(delay)
			if e.isCancelled() {
				return false
			}
		}
	}
	return true
}

// sleepInterruptible sleeps in 1-second increments so StopProgram is
// observed within one second, per §4.4 step 4/6.
func (e *Executor) sleepInterruptible(total time.Duration) {
	elapsed := time.Duration(0)
	for elapsed < total {
		if e.isCancelled() {
			return
		}
		step := cancelPollInterval
		if remaining := total - elapsed; remaining < step {
			step = remaining
		}
		e.clock.Sleep(step)
		elapsed += step
	}
}

// finalize runs the cleanup stage unconditionally: clear program_running and
// current_program_id, persist run-state, stop every zone, and -- only on
// normal completion -- stamp last_run_date and persist the programs
// document.
func (e *Executor) finalize(program model.Program, completed bool) {
	if err := e.actuator.StopAll(); err != nil {
		e.log.Warn().Err(err).Msg("stop_all during executor cleanup reported an error")
	}

	e.mu.Lock()
	e.running = false
	e.currentProgramID = ""
	e.mu.Unlock()

	if err := e.store.SaveRunState(model.IdleRunState()); err != nil {
		e.log.Error().Err(err).Msg("failed to persist run-state at program end")
	}

	if completed {
		programs := e.store.LoadPrograms()
		if p, ok := programs[program.ID]; ok {
			p.LastRunDate = e.clock.Calendar().Date()
			programs[program.ID] = p
			if err := e.store.SavePrograms(programs); err != nil {
				e.log.Error().Err(err).Msg("failed to persist last_run_date")
			}
		}
		e.log.Info().Str("program_id", program.ID).Msg("program execution completed")
		e.emit(events.ProgramCompleted, map[string]interface{}{"program_id": program.ID})
	} else {
		e.log.Info().Str("program_id", program.ID).Msg("program execution cancelled")
		e.emit(events.ProgramCancelled, map[string]interface{}{"program_id": program.ID})
	}
}

// StopProgram requests cancellation of the running program, if any. It is
// idempotent and returns immediately; the step loop unwinds within one
// second.
func (e *Executor) StopProgram() {
	e.mu.Lock()
	e.cancelRequested = true
	e.mu.Unlock()
}

func (e *Executor) isCancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelRequested
}

func (e *Executor) emit(t events.Type, data map[string]interface{}) {
	if e.events != nil {
		e.events.Emit(t, "executor", data)
	}
}
