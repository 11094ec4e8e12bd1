// Package pidctl implements the PID controller described in §4.3: a
// windowed PID with conditional-integration anti-windup and output
// clamped to a duty fraction in [0, 1].
//
// The shape of Compute mirrors the teacher's coil run loop (read
// measurement, call into the controller, get back a value to apply to
// the relay), generalized from felixge/pidctrl's unconditional-integral
// behaviour into the conditional-integration scheme the control core
// requires.
package pidctl

import (
	"log"
	"time"
)

// State is the PID's mutable state (§3's PidState), mutated only by
// Compute.
type State struct {
	Integral     float64
	LastError    float64
	LastWallTime time.Time
	LastOutput   float64
	hasLastTick  bool
}

// Controller computes a duty fraction from (setpoint, measured,
// wallclock) once per tick.
type Controller struct {
	Kp, Ki, Kd float64
	Window     float64 // W in §4.3, default 100

	state   State
	infoLog *log.Logger
	errLog  *log.Logger
}

// New constructs a Controller with the given gains and output window.
func New(kp, ki, kd, window float64, infoLog, errLog *log.Logger) *Controller {
	if window <= 0 {
		window = 100
	}
	return &Controller{
		Kp:      kp,
		Ki:      ki,
		Kd:      kd,
		Window:  window,
		infoLog: infoLog,
		errLog:  errLog,
	}
}

// Reset clears the integral and derivative history. It is called on a
// fresh RUNNING transition and on an automatic resume alike, so the
// integral is never carried across a restart (§9 open question b).
func (c *Controller) Reset() {
	c.state = State{}
}

// Freeze is called on RUNNING -> PAUSED so the integral does not
// accumulate error across a pause (§4.6).
func (c *Controller) Freeze() {
	c.state.hasLastTick = false
}

// Compute performs one tick of the algorithm in §4.3 and returns a duty
// fraction in [0, 1].
func (c *Controller) Compute(setpoint, measured float64, wallclock time.Time) float64 {
	errVal := setpoint - measured
	p := c.Kp * errVal

	var dt float64
	if c.state.hasLastTick {
		dt = wallclock.Sub(c.state.LastWallTime).Seconds()
	}

	var d float64
	if c.state.hasLastTick && dt > 0 {
		d = c.Kd * (errVal - c.state.LastError) / dt
	}

	tentative := p + c.state.Integral + d
	clamped := clamp(tentative, -c.Window, c.Window)

	if c.Ki != 0 && dt > 0 && tentative == clamped {
		c.state.Integral += errVal * dt * (1 / c.Ki)
	}

	out := clamped
	if out < 0 {
		out = 0
	}
	duty := out / c.Window

	c.state.LastError = errVal
	c.state.LastWallTime = wallclock
	c.state.LastOutput = duty
	c.state.hasLastTick = true

	if c.infoLog != nil {
		c.infoLog.Printf("pid: setpoint=%.2f measured=%.2f error=%.2f dt=%.3fs duty=%.4f\n", setpoint, measured, errVal, dt, duty)
	}
	return duty
}

// LastOutput returns the duty fraction computed by the most recent
// Compute call.
func (c *Controller) LastOutput() float64 { return c.state.LastOutput }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
