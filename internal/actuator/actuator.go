// Package actuator implements the time-proportional on/off actuation
// described in §4.4: a duty fraction in [0,1] is translated into a
// single on-then-off pulse spanning one fixed window. This is the sole
// writer of the physical relay while RUNNING, the same ownership rule
// the teacher enforces by giving Coil exclusive access to the status
// device file.
package actuator

import (
	"log"
	"sync"
	"time"
)

// Relay is the narrow hardware collaborator the control core drives;
// the concrete GPIO/relay-board implementation lives outside this
// module (§1 places the hardware driver out of scope).
type Relay interface {
	On() error
	Off() error
}

// Actuator paces one control tick: Apply blocks for exactly Window,
// split into an energised prefix of Window*duty and a de-energised
// remainder.
type Actuator struct {
	relay  Relay
	Window time.Duration

	infoLog *log.Logger
	errLog  *log.Logger

	mu        sync.Mutex
	energized bool
}

// New constructs an Actuator bound to relay, pulsing over window.
func New(relay Relay, window time.Duration, infoLog, errLog *log.Logger) *Actuator {
	return &Actuator{relay: relay, Window: window, infoLog: infoLog, errLog: errLog}
}

// Apply energises the relay for duty*Window and then de-energises it
// for the remainder of Window, returning the actual on-time (used by
// the Oven's cost accounting, §4.4). duty is clamped to [0,1].
func (a *Actuator) Apply(duty float64) (time.Duration, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	duty = clamp(duty, 0, 1)
	onDuration := time.Duration(duty * float64(a.Window))

	if onDuration <= 0 {
		if err := a.off(); err != nil {
			return 0, err
		}
		time.Sleep(a.Window)
		return 0, nil
	}

	if err := a.on(); err != nil {
		return 0, err
	}
	time.Sleep(onDuration)
	if err := a.off(); err != nil {
		return onDuration, err
	}
	if remaining := a.Window - onDuration; remaining > 0 {
		time.Sleep(remaining)
	}
	return onDuration, nil
}

// Shutoff forces the relay off and blocks until the command has been
// carried out. It is the first action on any transition out of RUNNING
// (§4.4, §4.6).
func (a *Actuator) Shutoff() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.off()
}

func (a *Actuator) on() error {
	if a.energized {
		return nil
	}
	if err := a.relay.On(); err != nil {
		if a.errLog != nil {
			a.errLog.Printf("actuator: failed to energise relay: %s\n", err.Error())
		}
		return err
	}
	a.energized = true
	return nil
}

func (a *Actuator) off() error {
	if !a.energized {
		return a.relay.Off()
	}
	if err := a.relay.Off(); err != nil {
		if a.errLog != nil {
			a.errLog.Printf("actuator: failed to de-energise relay: %s\n", err.Error())
		}
		return err
	}
	a.energized = false
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
