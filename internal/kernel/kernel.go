// Package kernel implements the Command Façade (§4.6): the single
// synchronous command/query surface the HTTP adapter and CLI sit on top of.
// It owns program-id allocation and cross-cutting validation (name length,
// uniqueness, month conflicts) that doesn't belong to any single
// lower-level component.
package kernel

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/filippods/irrigazione5/internal/actuator"
	"github.com/filippods/irrigazione5/internal/events"
	"github.com/filippods/irrigazione5/internal/executor"
	"github.com/filippods/irrigazione5/internal/kernelerr"
	"github.com/filippods/irrigazione5/internal/model"
	"github.com/filippods/irrigazione5/internal/scheduler"
	"github.com/filippods/irrigazione5/internal/store"
	"github.com/rs/zerolog"
)

const maxProgramNameLen = 16

// Config wires a Kernel's collaborators.
type Config struct {
	Store     *store.Store
	Actuator  *actuator.Actuator
	Executor  *executor.Executor
	Scheduler *scheduler.Scheduler
	Events    *events.Bus
	Log       zerolog.Logger
}

// Kernel is the façade every external adapter (HTTP, CLI) calls into.
type Kernel struct {
	store     *store.Store
	actuator  *actuator.Actuator
	executor  *executor.Executor
	scheduler *scheduler.Scheduler
	events    *events.Bus
	log       zerolog.Logger
}

// New constructs a Kernel.
func New(cfg Config) *Kernel {
	return &Kernel{
		store:     cfg.Store,
		actuator:  cfg.Actuator,
		executor:  cfg.Executor,
		scheduler: cfg.Scheduler,
		events:    cfg.Events,
		log:       cfg.Log.With().Str("component", "kernel").Logger(),
	}
}

// Boot runs the power-on sequence (§6): explicitly reset run-state to idle,
// initialise GPIO, and start the scheduler. The HTTP/CLI adapters are
// started separately by the caller.
func (k *Kernel) Boot() error {
	if err := k.store.SaveRunState(model.IdleRunState()); err != nil {
		k.log.Error().Err(err).Msg("failed to reset run-state at boot")
	}
	k.actuator.Initialize()
	return k.scheduler.Start()
}

// Shutdown stops the scheduler and de-energises every zone.
func (k *Kernel) Shutdown() {
	k.scheduler.Stop()
	if err := k.actuator.StopAll(); err != nil {
		k.log.Warn().Err(err).Msg("stop_all during shutdown reported an error")
	}
}

// ListPrograms returns every stored program.
func (k *Kernel) ListPrograms() model.Programs {
	return k.store.LoadPrograms()
}

// ListSystemLog returns the current contents of the log ring buffer.
func (k *Kernel) ListSystemLog() []model.LogEntry {
	return k.store.LoadSystemLog()
}

// SaveProgram validates and stores a new program, returning its allocated
// id.
func (k *Kernel) SaveProgram(p model.Program) (string, error) {
	if err := validateProgramShape(p); err != nil {
		return "", err
	}

	programs := k.store.LoadPrograms()
	if nameTaken(programs, p.Name, "") {
		return "", kernelerr.New(kernelerr.Validation, "program name already in use")
	}
	if conflict, ok := monthConflict(programs, p, ""); ok {
		return "", kernelerr.New(kernelerr.Validation, fmt.Sprintf("month conflict with program %s", conflict))
	}

	id := nextProgramID(programs)
	p.ID = id
	programs[id] = p
	if err := k.store.SavePrograms(programs); err != nil {
		return "", kernelerr.Wrap(kernelerr.IO, "failed to save program", err)
	}
	return id, nil
}

// UpdateProgram replaces an existing program's fields. If the program is
// currently running, the executor is cancelled first.
func (k *Kernel) UpdateProgram(id string, p model.Program) error {
	if err := validateProgramShape(p); err != nil {
		return err
	}

	programs := k.store.LoadPrograms()
	if _, ok := programs[id]; !ok {
		return kernelerr.New(kernelerr.NotFound, "program not found")
	}
	if nameTaken(programs, p.Name, id) {
		return kernelerr.New(kernelerr.Validation, "program name already in use")
	}
	if conflict, ok := monthConflict(programs, p, id); ok {
		return kernelerr.New(kernelerr.Validation, fmt.Sprintf("month conflict with program %s", conflict))
	}

	if k.executor.CurrentProgramID() == id {
		k.executor.StopProgram()
	}

	p.ID = id
	programs[id] = p
	if err := k.store.SavePrograms(programs); err != nil {
		return kernelerr.Wrap(kernelerr.IO, "failed to save program", err)
	}
	return nil
}

// DeleteProgram removes a program, cancelling it first if currently running.
func (k *Kernel) DeleteProgram(id string) error {
	programs := k.store.LoadPrograms()
	if _, ok := programs[id]; !ok {
		return kernelerr.New(kernelerr.NotFound, "program not found")
	}
	if k.executor.CurrentProgramID() == id {
		k.executor.StopProgram()
	}
	delete(programs, id)
	if err := k.store.SavePrograms(programs); err != nil {
		return kernelerr.Wrap(kernelerr.IO, "failed to save program", err)
	}
	return nil
}

// StartProgram runs a stored program to completion as a manual activation.
// It blocks for the program's full duration; callers needing a long-running
// operation adapter (HTTP) should invoke this from its own goroutine.
func (k *Kernel) StartProgram(id string) error {
	programs := k.store.LoadPrograms()
	p, ok := programs[id]
	if !ok {
		return kernelerr.New(kernelerr.NotFound, "program not found")
	}
	return k.executor.Execute(p, true)
}

// StopProgram cancels whatever program is running, reporting ok even if
// nothing was running.
func (k *Kernel) StopProgram() {
	k.executor.StopProgram()
}

// StartZone starts a single zone manually. Rejects while a program is
// running (§4.3 start_zone policy step 1): this check lives here, not in
// the Actuator, because the Executor's own step loop must still be able to
// drive zones while it owns the plant.
func (k *Kernel) StartZone(zoneID, durationMinutes int) error {
	if k.executor.IsRunning() {
		return kernelerr.New(kernelerr.Busy, "a program is running")
	}
	return k.actuator.StartZone(zoneID, durationMinutes)
}

// StopZone stops a single zone.
func (k *Kernel) StopZone(zoneID int) error {
	return k.actuator.StopZone(zoneID)
}

// StopAll de-energises every zone.
func (k *Kernel) StopAll() error {
	return k.actuator.StopAll()
}

// ZonesStatus returns the status of every visible zone.
func (k *Kernel) ZonesStatus() []model.ZoneStatus {
	return k.actuator.Status()
}

// ProgramState returns the current run-state.
func (k *Kernel) ProgramState() model.RunState {
	return model.RunState{
		ProgramRunning:   k.executor.IsRunning(),
		CurrentProgramID: k.executor.CurrentProgramID(),
	}
}

// GetSettings returns the current settings document.
func (k *Kernel) GetSettings() model.Settings {
	return k.store.LoadSettings()
}

// SaveSettings validates and persists a full settings replacement.
func (k *Kernel) SaveSettings(s model.Settings) error {
	if s.MaxActiveZones < 1 {
		return kernelerr.New(kernelerr.Validation, "max_active_zones must be >= 1")
	}
	if s.ActivationDelay < 0 {
		return kernelerr.New(kernelerr.Validation, "activation_delay must be >= 0")
	}
	if err := k.store.SaveSettings(s); err != nil {
		return kernelerr.Wrap(kernelerr.IO, "failed to save settings", err)
	}
	return nil
}

// ResetSettings restores factory settings.
func (k *Kernel) ResetSettings() (model.Settings, error) {
	s, err := k.store.ResetSettings()
	if err != nil {
		return model.Settings{}, kernelerr.Wrap(kernelerr.IO, "failed to reset settings", err)
	}
	return s, nil
}

// ResetFactoryData restores factory settings and clears every stored
// program, cancelling a running one first. It does not touch the log ring
// buffer, which trims itself on its own retention window.
func (k *Kernel) ResetFactoryData() (model.Settings, error) {
	k.executor.StopProgram()

	if err := k.store.SavePrograms(model.Programs{}); err != nil {
		return model.Settings{}, kernelerr.Wrap(kernelerr.IO, "failed to clear programs", err)
	}
	s, err := k.store.ResetSettings()
	if err != nil {
		return model.Settings{}, kernelerr.Wrap(kernelerr.IO, "failed to reset settings", err)
	}
	return s, nil
}

func validateProgramShape(p model.Program) error {
	if len(p.Name) == 0 || len(p.Name) > maxProgramNameLen {
		return kernelerr.New(kernelerr.Validation, "program name must be 1-16 characters")
	}
	if len(p.Months) == 0 {
		return kernelerr.New(kernelerr.Validation, "program must have at least one month")
	}
	if len(p.Steps) == 0 {
		return kernelerr.New(kernelerr.Validation, "program must have at least one step")
	}
	if p.Recurrence == model.RecurrenceCustom && p.IntervalDays < 1 {
		return kernelerr.New(kernelerr.Validation, "custom recurrence requires interval_days >= 1")
	}
	return nil
}

func nameTaken(programs model.Programs, name string, excludeID string) bool {
	for id, p := range programs {
		if id == excludeID {
			continue
		}
		if p.Name == name {
			return true
		}
	}
	return false
}

// monthConflict reports the id of a program (other than excludeID) that
// shares any month with p, per the invariant "no two distinct programs
// share any month in their months sets" (§3, checked in §8 invariant 8).
func monthConflict(programs model.Programs, p model.Program, excludeID string) (string, bool) {
	candidate := p.MonthSet()
	for id, other := range programs {
		if id == excludeID {
			continue
		}
		for m := range other.MonthSet() {
			if _, shared := candidate[m]; shared {
				return id, true
			}
		}
	}
	return "", false
}

// nextProgramID allocates max(existing numeric ids) + 1, starting at 1 when
// the store is empty.
func nextProgramID(programs model.Programs) string {
	max := 0
	ids := make([]int, 0, len(programs))
	for id := range programs {
		if n, err := strconv.Atoi(id); err == nil {
			ids = append(ids, n)
		}
	}
	sort.Ints(ids)
	if len(ids) > 0 {
		max = ids[len(ids)-1]
	}
	return strconv.Itoa(max + 1)
}
