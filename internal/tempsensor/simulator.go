package tempsensor

import (
	"math"
	"sync/atomic"
)

// SimulatedDevice is a Device backing the "simulator" profile of
// §6.1's set_simulated_temperature command: it reports whatever value
// was last set, with no physical dynamics of its own.
type SimulatedDevice struct {
	bits atomic.Uint64
}

// NewSimulatedDevice constructs a SimulatedDevice starting at start
// (in the device's native unit).
func NewSimulatedDevice(start float64) *SimulatedDevice {
	d := &SimulatedDevice{}
	d.Set(start)
	return d
}

// Set updates the simulated reading; safe to call concurrently with
// Read.
func (d *SimulatedDevice) Set(v float64) {
	d.bits.Store(math.Float64bits(v))
}

// Read implements Device.
func (d *SimulatedDevice) Read() (float64, error) {
	return math.Float64frombits(d.bits.Load()), nil
}
