// Package watchdog runs the hourly memory-pressure check described in
// spec.md §5: it logs free-memory pressure and requests a garbage sweep,
// on the same robfig/cron periodic-job idiom the program scheduler uses for
// its 30s tick.
package watchdog

import (
	"runtime/debug"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"
)

const tickSpec = "@hourly"

// lowMemoryThresholdPercent is the used-memory fraction above which the
// watchdog logs at warning level instead of info.
const lowMemoryThresholdPercent = 85.0

// Watchdog samples system memory on an hourly cron tick and requests the Go
// runtime return freed memory to the OS, matching the embedded deployment
// target's tight RAM budget.
type Watchdog struct {
	log  zerolog.Logger
	cron *cron.Cron
}

// New constructs a Watchdog.
func New(log zerolog.Logger) *Watchdog {
	return &Watchdog{
		log: log.With().Str("component", "watchdog").Logger(),
	}
}

// Start begins the hourly cron schedule.
func (w *Watchdog) Start() error {
	w.cron = cron.New()
	if _, err := w.cron.AddFunc(tickSpec, w.tick); err != nil {
		return err
	}
	w.cron.Start()
	return nil
}

// Stop halts the schedule, waiting for any in-flight tick to finish.
func (w *Watchdog) Stop() {
	if w.cron == nil {
		return
	}
	ctx := w.cron.Stop()
	<-ctx.Done()
}

// tick is the cron callback: sample memory, log pressure, sweep.
func (w *Watchdog) tick() {
	stat, err := mem.VirtualMemory()
	if err != nil {
		w.log.Warn().Err(err).Msg("failed to sample memory")
		return
	}

	event := w.log.Info()
	if stat.UsedPercent >= lowMemoryThresholdPercent {
		event = w.log.Warn()
	}
	event.
		Float64("used_percent", stat.UsedPercent).
		Uint64("available_bytes", stat.Available).
		Msg("memory pressure sample")

	debug.FreeOSMemory()
}

// Tick runs one sampling pass synchronously, exported for tests that don't
// want to wait on a real cron schedule.
func (w *Watchdog) Tick() {
	w.tick()
}
