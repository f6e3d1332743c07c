// Package gpio abstracts the single digital-output primitive the actuator
// needs: set_output_pin(pin, level). Relays on the reference hardware are
// active-low: asserting a zone means writing 0, de-asserting means writing 1.
package gpio

// Driver is the only component permitted to touch hardware pins.
type Driver interface {
	// SetPin drives pin to level (0 or 1).
	SetPin(pin int, level int) error
}

const (
	// LevelAsserted is the active-low "on" level.
	LevelAsserted = 0
	// LevelDeasserted is the active-low "off" level.
	LevelDeasserted = 1
)

// Assert drives pin to its active level.
func Assert(d Driver, pin int) error { return d.SetPin(pin, LevelAsserted) }

// Deassert drives pin to its inactive level.
func Deassert(d Driver, pin int) error { return d.SetPin(pin, LevelDeasserted) }
