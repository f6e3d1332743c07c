// Package clock abstracts monotonic time and local broken-down time so the
// kernel's scheduling and timer logic can be driven deterministically in
// tests.
package clock

import (
	"fmt"
	"sync"
	"time"
)

// Calendar is the broken-down local time the scheduler and executor reason
// about: year, month, day, day-of-year, hour, minute, second.
type Calendar struct {
	Year      int
	Month     int // 1..12
	Day       int
	DayOfYear int // 1..366
	Hour      int
	Minute    int
	Second    int
}

// HHMM renders the calendar's hour/minute as "HH:MM".
func (c Calendar) HHMM() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Date renders the calendar's date as "YYYY-MM-DD".
func (c Calendar) Date() string {
	return fmt.Sprintf("%04d-%02d-%02d", c.Year, c.Month, c.Day)
}

// AbsoluteDay returns a year-boundary-safe day number suitable for recurrence
// arithmetic (year*366 + day-of-year), per the REDESIGN FLAG that replaces
// the source's buggy day-of-year subtraction across 31 Dec -> 1 Jan.
func (c Calendar) AbsoluteDay() int {
	return c.Year*366 + c.DayOfYear
}

// Clock is the read surface consumed by every other component: monotonic
// seconds (for timers and "remaining" computations) and local calendar time
// (for scheduling).
type Clock interface {
	// Now returns the current monotonic instant. Only differences between
	// two Now() calls are meaningful.
	Now() time.Time
	// Calendar returns the current local broken-down time.
	Calendar() Calendar
	// Sleep suspends the calling goroutine for d. It has no cancellation of
	// its own: the executor sleeps in 1s increments and polls its cancel
	// flag between them. Present so tests can fast-forward a Fake clock
	// instead of sleeping in wall time.
	Sleep(d time.Duration)
	// AfterFunc schedules f to run after d elapses and returns a function
	// that cancels the timer if called before it fires. Used for the
	// per-zone auto-stop timer so it can be driven by a Fake clock in
	// tests instead of a real goroutine + time.Timer.
	AfterFunc(d time.Duration, f func()) (cancel func())
}

// System is the production Clock backed by the real wall clock.
type System struct{}

// NewSystem returns the production Clock.
func NewSystem() System { return System{} }

func (System) Now() time.Time { return time.Now() }

func (System) Calendar() Calendar {
	t := time.Now()
	return Calendar{
		Year:      t.Year(),
		Month:     int(t.Month()),
		Day:       t.Day(),
		DayOfYear: t.YearDay(),
		Hour:      t.Hour(),
		Minute:    t.Minute(),
		Second:    t.Second(),
	}
}

func (System) Sleep(d time.Duration) { time.Sleep(d) }

func (System) AfterFunc(d time.Duration, f func()) (cancel func()) {
	timer := time.AfterFunc(d, f)
	return func() { timer.Stop() }
}

// fakeTimer is a pending callback registered via Fake.AfterFunc.
type fakeTimer struct {
	fireAt    time.Time
	fn        func()
	cancelled bool
	fired     bool
}

// Fake is a controllable Clock for deterministic tests. Advance() moves both
// the monotonic and calendar view forward together, so tests can assert
// exact S1-S6 style timelines without real sleeps.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	onSleep func(d time.Duration)
}

// OnSleep installs a callback invoked synchronously at the start of every
// Sleep call, before time advances. Executor/scheduler tests use this to
// inject a cancellation request at a specific 1-second poll without racing a
// real goroutine.
func (f *Fake) OnSleep(cb func(d time.Duration)) {
	f.mu.Lock()
	f.onSleep = cb
	f.mu.Unlock()
}

// NewFake creates a Fake clock starting at t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Calendar() Calendar {
	f.mu.Lock()
	t := f.now
	f.mu.Unlock()
	return Calendar{
		Year:      t.Year(),
		Month:     int(t.Month()),
		Day:       t.Day(),
		DayOfYear: t.YearDay(),
		Hour:      t.Hour(),
		Minute:    t.Minute(),
		Second:    t.Second(),
	}
}

// Sleep on a Fake clock advances time immediately rather than blocking; it
// exists to satisfy the Clock interface for code paths that aren't under
// direct test control (e.g. advanced manually via Advance instead).
func (f *Fake) Sleep(d time.Duration) {
	f.mu.Lock()
	cb := f.onSleep
	f.mu.Unlock()
	if cb != nil {
		cb(d)
	}
	f.Advance(d)
}

// AfterFunc registers f to fire once the fake clock's Now() reaches the
// current instant plus d. It only fires when the test calls Advance (or
// Sleep) past that instant -- there is no background goroutine racing the
// caller.
func (f *Fake) AfterFunc(d time.Duration, fn func()) (cancel func()) {
	f.mu.Lock()
	t := &fakeTimer{fireAt: f.now.Add(d), fn: fn}
	f.timers = append(f.timers, t)
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		t.cancelled = true
		f.mu.Unlock()
	}
}

// Advance moves the fake clock forward by d, synchronously firing every
// pending timer whose deadline falls at or before the new instant, in
// ascending fireAt order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)

	for {
		due := f.dueTimerLocked(target)
		if due == nil {
			break
		}
		due.fired = true
		f.now = due.fireAt
		fn := due.fn
		f.mu.Unlock()
		fn()
		f.mu.Lock()
	}

	f.now = target
	f.mu.Unlock()
}

// dueTimerLocked returns the earliest not-yet-fired, not-cancelled timer due
// at or before target, or nil if none remain. Caller holds f.mu.
func (f *Fake) dueTimerLocked(target time.Time) *fakeTimer {
	var earliest *fakeTimer
	for _, t := range f.timers {
		if t.fired || t.cancelled {
			continue
		}
		if t.fireAt.After(target) {
			continue
		}
		if earliest == nil || t.fireAt.Before(earliest.fireAt) {
			earliest = t
		}
	}
	return earliest
}
