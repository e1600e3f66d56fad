// Package sensors holds the contract the control loop expects from sensor drivers, the
// conversions from raw counts to physical values, and simulated drivers for bench runs.
package sensors

import "errors"

var (
	// ErrShortReading is returned by a converter given fewer words than it needs.
	ErrShortReading = errors.New("sensors: short reading")
	// ErrNoChannel is returned by a driver asked for a channel it does not have.
	ErrNoChannel = errors.New("sensors: no such channel")
)

// Driver is one sensor family on its bus. Sample is synchronous and occupies the caller for the
// duration of the bus transaction.
type Driver interface {
	Setup() error
	Sample(channel uint8) ([]uint16, error)
}

// Converter turns the raw words of one reading into a physical value.
type Converter interface {
	Convert(raw []uint16) (float32, error)
	Unit() string
}
