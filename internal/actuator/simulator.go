package actuator

import "sync/atomic"

// SimulatedRelay is a Relay with no physical side effects, used when
// running against tempsensor.SimulatedDevice (§6.1's simulator mode).
type SimulatedRelay struct {
	on atomic.Bool
}

// On implements Relay.
func (r *SimulatedRelay) On() error { r.on.Store(true); return nil }

// Off implements Relay.
func (r *SimulatedRelay) Off() error { r.on.Store(false); return nil }

// Energized reports the simulated relay's current state.
func (r *SimulatedRelay) Energized() bool { return r.on.Load() }
