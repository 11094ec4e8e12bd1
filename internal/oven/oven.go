// Package oven implements RunLoop/Oven (§4.6): the lifecycle state
// machine, the per-tick orchestration of sensor -> tracker -> PID ->
// actuator -> cost -> persist -> telemetry, and the resume-on-boot
// path.
//
// The tick/command split is grounded on the teacher's Coil.Run: a
// single select loop servicing a hardware clock alongside command
// channels (Stop, SetTarget), generalized here into the full
// IDLE/RUNNING/PAUSED/EMERGENCY state machine §4.6 requires.
package oven

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"module/internal/actuator"
	"module/internal/config"
	"module/internal/firinglog"
	"module/internal/kilnerr"
	"module/internal/metrics"
	"module/internal/persist"
	"module/internal/pidctl"
	"module/internal/profile"
	"module/internal/segment"
	"module/internal/telemetry"
	"module/internal/tempsensor"
)

// Lifecycle is the Oven's run state (§3, §4.6).
type Lifecycle string

const (
	Idle      Lifecycle = "IDLE"
	Running   Lifecycle = "RUNNING"
	Paused    Lifecycle = "PAUSED"
	Aborting  Lifecycle = "ABORTING"
	Emergency Lifecycle = "EMERGENCY"
)

// ProfileSource resolves a profile by name, implemented by
// internal/profilestore.
type ProfileSource interface {
	Get(name string) (*profile.Profile, error)
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdPause
	cmdResume
	cmdSimulate
)

type command struct {
	kind        commandKind
	profileName string
	simValue    float64
	resp        chan error
}

// Oven owns RunState, PidController, Actuator, and holds handles to
// TempSensor, PersistentState, the FiringLog writer, and Telemetry
// (§3's ownership rule).
type Oven struct {
	cfg       config.Config
	sensor    *tempsensor.TempSensor
	simDevice *tempsensor.SimulatedDevice // non-nil only when wired with a simulator, §6.1
	actuator  *actuator.Actuator
	pid       *pidctl.Controller
	profiles  ProfileSource
	persist   *persist.Store
	logs      *firinglog.Writer
	fanout    *telemetry.Fanout
	metrics   *metrics.Collector

	infoLog *log.Logger
	errLog  *log.Logger

	commands chan command
	stopCh   chan struct{}
	wg       sync.WaitGroup

	lastErr atomic.Pointer[string]

	// RunState (§3) -- exclusively owned and mutated by the Run goroutine.
	lifecycle       Lifecycle
	currentProfile  *profile.Profile
	startedAt       time.Time
	tracker         *segment.Tracker
	accumulatedCost float64
	pauseStartedAt  time.Time
	logBuilder      *firinglog.Builder
	lastMeasured    float64
	lastSetpoint    float64
	lastMeasuredAt  time.Time
	heatRateActual  float64
	heatRateTarget  float64
}

// Options bundles the Oven's collaborators.
type Options struct {
	Config    config.Config
	Sensor    *tempsensor.TempSensor
	SimDevice *tempsensor.SimulatedDevice
	Actuator  *actuator.Actuator
	PID       *pidctl.Controller
	Profiles  ProfileSource
	Persist   *persist.Store
	Logs      *firinglog.Writer
	Fanout    *telemetry.Fanout
	Metrics   *metrics.Collector
	InfoLog   *log.Logger
	ErrLog    *log.Logger
}

// New constructs an Oven in IDLE, or primed into RUNNING if a fresh
// resume snapshot is found and automatic_restarts is enabled (§4.7).
func New(opts Options) *Oven {
	o := &Oven{
		cfg:       opts.Config,
		sensor:    opts.Sensor,
		simDevice: opts.SimDevice,
		actuator:  opts.Actuator,
		pid:       opts.PID,
		profiles:  opts.Profiles,
		persist:   opts.Persist,
		logs:      opts.Logs,
		fanout:    opts.Fanout,
		metrics:   opts.Metrics,
		infoLog:   opts.InfoLog,
		errLog:    opts.ErrLog,
		commands:  make(chan command),
		stopCh:    make(chan struct{}),
		lifecycle: Idle,
	}
	o.tryAutoResume()
	return o
}

func (o *Oven) tryAutoResume() {
	if !o.cfg.AutomaticRestarts {
		return
	}
	snap, ok, err := o.persist.TryResume()
	if err != nil {
		if o.errLog != nil {
			o.errLog.Printf("oven: failed to read resume snapshot: %s\n", err.Error())
		}
		return
	}
	if !ok || snap.Lifecycle != string(Running) {
		return
	}
	now := time.Now()
	if now.Sub(snap.Wallclock) > o.cfg.ResumeFreshnessWindow {
		if o.infoLog != nil {
			o.infoLog.Printf("oven: resume snapshot too stale (%.0fs old), staying IDLE\n", now.Sub(snap.Wallclock).Seconds())
		}
		return
	}
	prof, err := o.profiles.Get(snap.ProfileName)
	if err != nil {
		if o.errLog != nil {
			o.errLog.Printf("oven: resume snapshot names unknown profile %q: %s\n", snap.ProfileName, err.Error())
		}
		return
	}

	segmentIndex := snap.SegmentIndex
	phase := segment.Phase(snap.SegmentPhase)
	segmentStartTemp := snap.SegmentStartTemp
	elapsed := time.Duration(snap.HoldElapsedSeconds * float64(time.Second))

	if snap.Version == 1 {
		// §4.7: a v1 (time-based) resume file carries no segment index or
		// phase at all, so it is converted rather than trusted: pick the
		// segment whose declared temperature range contains the current
		// reading, same as a fresh start into a hot kiln, and always
		// resume into RAMP phase.
		measured := o.sensor.Latest().Smoothed
		segmentIndex = segment.FindStartingSegment(prof, measured)
		phase = segment.PhaseRamp
		segmentStartTemp = measured
		elapsed = 0
	}

	var segmentStartWall, holdStartedAt time.Time
	if phase == segment.PhaseHold {
		holdStartedAt = now.Add(-elapsed)
		segmentStartWall = now
	} else {
		phase = segment.PhaseRamp
		segmentStartWall = now.Add(-elapsed)
	}

	o.currentProfile = prof
	o.tracker = segment.Resume(prof, segmentIndex, phase, segmentStartWall, segmentStartTemp, holdStartedAt,
		o.cfg.SegmentCompleteTol, o.cfg.RateDeviationWarning, o.cfg.EstimatedMaxHeatRate, o.cfg.EstimatedCoolRate, o.infoLog, o.errLog)
	o.accumulatedCost = snap.AccumulatedCost
	o.startedAt = now
	o.logBuilder = firinglog.NewBuilder(prof.Name, string(prof.Unit), now)
	o.pid.Reset() // §9 open question b: integral is not persisted across restarts
	o.lifecycle = Running
	if o.infoLog != nil {
		o.infoLog.Printf("oven: resumed RUNNING at segment %d phase %s\n", segmentIndex, phase)
	}
}

// Run drives the control-tick cadence until Close is called. Intended
// to run on the single dedicated control goroutine (§5).
func (o *Oven) Run() {
	o.wg.Add(1)
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-o.commands:
			err := o.handleCommand(cmd)
			if err == nil {
				o.clearLastError()
			}
			cmd.resp <- err

		case now := <-ticker.C:
			if o.lifecycle == Running {
				o.tick(now)
			} else {
				o.idleTick()
			}

		case <-o.stopCh:
			return
		}
	}
}

// Close stops the control loop.
func (o *Oven) Close() {
	close(o.stopCh)
	o.wg.Wait()
}

func (o *Oven) submit(cmd command) error {
	cmd.resp = make(chan error, 1)
	o.commands <- cmd
	return <-cmd.resp
}

// Start begins a run from the named profile (§6.1, §4.6).
func (o *Oven) Start(profileName string) error {
	return o.submit(command{kind: cmdStart, profileName: profileName})
}

// Stop aborts the current run (§6.1, §4.6).
func (o *Oven) Stop() error { return o.submit(command{kind: cmdStop}) }

// Pause freezes the current run (§6.1, §4.6).
func (o *Oven) Pause() error { return o.submit(command{kind: cmdPause}) }

// Resume continues a paused run (§6.1, §4.6).
func (o *Oven) Resume() error { return o.submit(command{kind: cmdResume}) }

// SetSimulatedTemperature is a simulator-only command (§6.1).
func (o *Oven) SetSimulatedTemperature(v float64) error {
	return o.submit(command{kind: cmdSimulate, simValue: v})
}

func (o *Oven) handleCommand(cmd command) error {
	switch cmd.kind {
	case cmdStart:
		return o.handleStart(cmd.profileName)
	case cmdStop:
		return o.handleStop()
	case cmdPause:
		return o.handlePause()
	case cmdResume:
		return o.handleResume()
	case cmdSimulate:
		if o.simDevice == nil {
			return fmt.Errorf("%w: no simulated device configured", kilnerr.ErrIllegalState)
		}
		o.simDevice.Set(cmd.simValue)
		return nil
	default:
		return fmt.Errorf("oven: unknown command")
	}
}

func (o *Oven) handleStart(profileName string) error {
	if o.lifecycle != Idle {
		return fmt.Errorf("%w: start requires IDLE", kilnerr.ErrIllegalState)
	}
	prof, err := o.profiles.Get(profileName)
	if err != nil {
		return fmt.Errorf("%w: %s", kilnerr.ErrNoSuchProfile, err.Error())
	}
	if err := prof.Validate(); err != nil {
		return err
	}
	prof = prof.ConvertUnit(o.cfg.TemperatureUnit)

	now := time.Now()
	current := o.sensor.Latest()
	measured := current.Smoothed

	// Seek start (§4.6): rather than always beginning at segment 0,
	// find the segment whose declared temperature range already
	// contains the current reading, so resuming into a hot kiln does
	// not replay a ramp the kiln has physically already completed. The
	// segment's start temperature is still recorded as the measured
	// value, satisfying "setpoint == segment_start_temp at elapsed 0"
	// (§8) immediately regardless of which segment is chosen.
	startIndex := segment.FindStartingSegment(prof, measured)

	o.currentProfile = prof
	o.startedAt = now
	o.pid.Reset()
	o.tracker = segment.New(prof, measured, now, o.cfg.SegmentCompleteTol, o.cfg.RateDeviationWarning,
		o.cfg.EstimatedMaxHeatRate, o.cfg.EstimatedCoolRate, o.infoLog, o.errLog)
	o.tracker.SeekTo(startIndex, measured, now)
	o.accumulatedCost = 0
	o.logBuilder = firinglog.NewBuilder(prof.Name, string(prof.Unit), now)
	o.fanout.ResetSeries()
	o.clearLastError()
	o.lifecycle = Running
	if o.infoLog != nil {
		o.infoLog.Printf("oven: started profile %q from %.1f (segment %d)\n", prof.Name, measured, startIndex)
	}
	return nil
}

func (o *Oven) handleStop() error {
	if o.lifecycle != Running && o.lifecycle != Paused {
		return fmt.Errorf("%w: stop requires RUNNING or PAUSED", kilnerr.ErrIllegalState)
	}
	o.actuator.Shutoff()
	o.finalize(firinglog.EndAborted)
	return nil
}

func (o *Oven) handlePause() error {
	if o.lifecycle != Running {
		return fmt.Errorf("%w: pause requires RUNNING", kilnerr.ErrIllegalState)
	}
	o.actuator.Shutoff()
	o.pid.Freeze()
	o.pauseStartedAt = time.Now()
	o.lifecycle = Paused
	if o.infoLog != nil {
		o.infoLog.Println("oven: paused")
	}
	return nil
}

func (o *Oven) handleResume() error {
	if o.lifecycle != Paused {
		return fmt.Errorf("%w: resume requires PAUSED", kilnerr.ErrIllegalState)
	}
	pausedFor := time.Since(o.pauseStartedAt)
	o.tracker.ShiftForPause(pausedFor)
	o.lifecycle = Running
	if o.infoLog != nil {
		o.infoLog.Printf("oven: resumed after %.0fs pause\n", pausedFor.Seconds())
	}
	return nil
}

// idleTick keeps the IDLE/PAUSED/EMERGENCY invariant of §8: actuator
// duty is 0 and the relay is commanded off, and telemetry still beats
// so observers see the current lifecycle.
func (o *Oven) idleTick() {
	o.actuator.Shutoff()
	o.broadcast(0, 0)
}

// tick performs one control pass per §4.6's ten numbered steps.
func (o *Oven) tick(now time.Time) {
	sample := o.sensor.Latest()

	if sample.IsFatal() {
		if o.metrics != nil {
			o.metrics.SensorFaultTotal.Inc()
		}
		o.enterEmergency(fmt.Errorf("%w: sensor status %s", kilnerr.ErrLostSensor, sample.Status))
		return
	}
	if o.cfg.EmergencyOverTemp > 0 && sample.Smoothed >= o.cfg.EmergencyOverTemp {
		o.enterEmergency(kilnerr.ErrOverTemperature)
		return
	}

	result := o.tracker.UpdateAndSetpoint(sample.Smoothed, now)
	if result.Completed {
		o.finalize(firinglog.EndCompleted)
		return
	}

	var duty float64
	if result.ForceNoHeat {
		duty = 0
	} else {
		duty = o.pid.Compute(result.Setpoint, sample.Smoothed, now)
	}

	onTime, err := o.actuator.Apply(duty)
	if err != nil && o.errLog != nil {
		o.errLog.Printf("oven: actuator apply failed: %s\n", err.Error())
	}

	hours := onTime.Hours()
	o.accumulatedCost += hours * o.cfg.KWhRate * o.cfg.KWElements

	divergence := sample.Smoothed - result.Setpoint
	if divergence < 0 {
		divergence = -divergence
	}
	elapsed := now.Sub(o.startedAt).Seconds()
	o.logBuilder.Record(elapsed, sample.Smoothed, result.Setpoint, divergence)

	if !o.lastMeasuredAt.IsZero() {
		if dtH := now.Sub(o.lastMeasuredAt).Hours(); dtH > 0 {
			o.heatRateActual = (sample.Smoothed - o.lastMeasured) / dtH
		}
	}
	if seg, err := o.currentProfile.SegmentAt(result.SegmentIndex); err == nil {
		o.heatRateTarget = profile.EffectiveRatePerHour(seg.Rate, o.tracker.SegmentStartTemp(), seg.Target, o.cfg.EstimatedMaxHeatRate, o.cfg.EstimatedCoolRate)
	}
	o.lastMeasuredAt = now
	o.lastMeasured = sample.Smoothed
	o.lastSetpoint = result.Setpoint

	o.persist.WriteSnapshot(o.snapshotNow(now, result))
	o.broadcast(duty, result.SegmentIndex)
	o.fanout.RecordSeriesPoint(telemetry.BacklogPoint{RuntimeSeconds: elapsed, Temperature: sample.Smoothed, Target: result.Setpoint})

	if o.metrics != nil {
		// kiln_temperature_celsius/kiln_target_celsius are unit-fixed
		// (§ambient stack); RunState is tracked in cfg.TemperatureUnit,
		// which defaults to Fahrenheit, so convert on the way out.
		o.metrics.Temperature.Set(profile.ConvertTemp(sample.Smoothed, o.cfg.TemperatureUnit, config.Celsius))
		o.metrics.Target.Set(profile.ConvertTemp(result.Setpoint, o.cfg.TemperatureUnit, config.Celsius))
		o.metrics.ActuatorDuty.Set(duty)
		o.metrics.AccumulatedCost.Set(o.accumulatedCost)
	}
}

func (o *Oven) snapshotNow(now time.Time, result segment.Result) persist.Snapshot {
	var phaseElapsed time.Duration
	if result.Phase == segment.PhaseHold {
		if h := o.tracker.HoldStartedAt(); !h.IsZero() {
			phaseElapsed = now.Sub(h)
		}
	} else {
		phaseElapsed = now.Sub(o.tracker.SegmentStartWall())
	}
	return persist.Snapshot{
		ProfileName:        o.currentProfile.Name,
		Lifecycle:          string(o.lifecycle),
		SegmentIndex:       result.SegmentIndex,
		SegmentPhase:       string(result.Phase),
		SegmentStartTemp:   o.tracker.SegmentStartTemp(),
		HoldElapsedSeconds: phaseElapsed.Seconds(),
		AccumulatedCost:    o.accumulatedCost,
		Wallclock:          now.UTC(),
	}
}

func (o *Oven) enterEmergency(cause error) {
	o.actuator.Shutoff()
	o.lifecycle = Emergency
	o.setLastError(cause.Error())
	if o.metrics != nil {
		o.metrics.EmergencyTotal.Inc()
	}
	if o.errLog != nil {
		o.errLog.Printf("oven: EMERGENCY: %s\n", cause.Error())
	}
	o.finalize(firinglog.EndEmergency)
}

// finalize ends the current run, writing a FiringLog and deleting the
// resume snapshot before returning to IDLE (§4.6, §4.8).
func (o *Oven) finalize(status firinglog.EndStatus) {
	if o.logBuilder != nil {
		l := o.logBuilder.Finish(time.Now(), o.accumulatedCost, status)
		if _, err := o.logs.Write(l); err != nil && o.errLog != nil {
			o.errLog.Printf("oven: failed to write firing log: %s\n", err.Error())
		}
	}
	o.persist.Delete()
	o.logBuilder = nil
	o.tracker = nil
	o.currentProfile = nil
	if status == firinglog.EndEmergency {
		// EMERGENCY is visible for one broadcast before collapsing to
		// IDLE, matching §4.6's EMERGENCY -> IDLE edge.
		o.broadcast(0, 0)
	}
	o.lifecycle = Idle
	o.broadcast(0, 0)
}

func (o *Oven) setLastError(msg string) { o.lastErr.Store(&msg) }
func (o *Oven) clearLastError()         { o.lastErr.Store(nil) }

func (o *Oven) broadcast(duty float64, segmentIndex int) {
	snap := o.GetState()
	snap.ActuatorDuty = duty
	snap.SegmentIndex = segmentIndex
	o.fanout.Broadcast(snap)
}

// GetState returns a telemetry snapshot (§6.1, §6.2).
func (o *Oven) GetState() telemetry.Snapshot {
	snap := telemetry.Snapshot{
		Lifecycle:       string(o.lifecycle),
		Temperature:     o.lastMeasured,
		Target:          o.lastSetpoint,
		HeatRateActual:  o.heatRateActual,
		HeatRateTarget:  o.heatRateTarget,
		AccumulatedCost: o.accumulatedCost,
		Currency:        o.cfg.Currency,
		Unit:            string(o.cfg.TemperatureUnit),
	}
	if o.currentProfile != nil {
		snap.ProfileName = o.currentProfile.Name
	}
	if o.tracker != nil {
		snap.SegmentIndex = o.tracker.SegmentIndex()
		snap.SegmentPhase = string(o.tracker.Phase())
	}
	if errp := o.lastErr.Load(); errp != nil {
		snap.LastError = *errp
	}
	if o.currentProfile != nil && o.startedAt.Unix() > 0 {
		snap.ElapsedSeconds = time.Since(o.startedAt).Seconds()
		total := o.currentProfile.DurationEstimate(o.currentProfile.StartTemp, o.cfg.EstimatedMaxHeatRate, o.cfg.EstimatedCoolRate)
		if total > 0 {
			snap.ProgressPercent = clampPercent(snap.ElapsedSeconds / total * 100)
			snap.ETASeconds = total - snap.ElapsedSeconds
			if snap.ETASeconds < 0 {
				snap.ETASeconds = 0
			}
		}
	}
	return snap
}

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
