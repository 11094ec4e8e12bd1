// Package segment implements the SegmentTracker of §4.5: advancing
// through a profile's segments by achieved temperature and generating
// the live setpoint each tick.
package segment

import (
	"log"
	"time"

	"module/internal/profile"
)

// Phase is a segment's runtime phase (§3).
type Phase string

const (
	PhaseRamp Phase = "RAMP"
	PhaseHold Phase = "HOLD"
)

// Tracker holds the mutable position within a profile. It is owned
// exclusively by the Oven's RunState (§3).
type Tracker struct {
	prof *profile.Profile

	segmentIndex        int
	phase               Phase
	segmentStartWall    time.Time
	segmentStartTemp    float64
	holdStartedAt       time.Time
	tolerance           float64
	rateDeviationWarn   float64
	maxHeatRateEstimate float64
	coolRateEstimate    float64

	infoLog *log.Logger
	errLog  *log.Logger
}

// New starts a Tracker at segment 0, RAMP phase, with the given
// current temperature as the segment's start temperature (§4.6:
// IDLE -> RUNNING initialises "segment_start_temp = current smoothed
// temperature").
func New(prof *profile.Profile, startTemp float64, now time.Time, tolerance, rateDeviationWarn, maxHeatRateEstimate, coolRateEstimate float64, infoLog, errLog *log.Logger) *Tracker {
	return &Tracker{
		prof:                prof,
		segmentIndex:        0,
		phase:               PhaseRamp,
		segmentStartWall:    now,
		segmentStartTemp:    startTemp,
		tolerance:           tolerance,
		rateDeviationWarn:   rateDeviationWarn,
		maxHeatRateEstimate: maxHeatRateEstimate,
		coolRateEstimate:    coolRateEstimate,
		infoLog:             infoLog,
		errLog:              errLog,
	}
}

// Resume constructs a Tracker from persisted resume fields (§4.7),
// with the segment/hold start times adjusted by the caller to preserve
// elapsed-in-segment.
func Resume(prof *profile.Profile, segmentIndex int, phase Phase, segmentStartWall time.Time, segmentStartTemp float64, holdStartedAt time.Time, tolerance, rateDeviationWarn, maxHeatRateEstimate, coolRateEstimate float64, infoLog, errLog *log.Logger) *Tracker {
	return &Tracker{
		prof:                prof,
		segmentIndex:        segmentIndex,
		phase:               phase,
		segmentStartWall:    segmentStartWall,
		segmentStartTemp:    segmentStartTemp,
		holdStartedAt:       holdStartedAt,
		tolerance:           tolerance,
		rateDeviationWarn:   rateDeviationWarn,
		maxHeatRateEstimate: maxHeatRateEstimate,
		coolRateEstimate:    coolRateEstimate,
		infoLog:             infoLog,
		errLog:              errLog,
	}
}

func (t *Tracker) SegmentIndex() int         { return t.segmentIndex }
func (t *Tracker) Phase() Phase              { return t.phase }
func (t *Tracker) SegmentStartTemp() float64 { return t.segmentStartTemp }
func (t *Tracker) SegmentStartWall() time.Time { return t.segmentStartWall }
func (t *Tracker) HoldStartedAt() time.Time  { return t.holdStartedAt }

// ShiftForPause shifts segment/hold start times forward by d, used on
// PAUSED -> RUNNING to preserve elapsed-in-segment/hold across a pause
// (§4.6).
func (t *Tracker) ShiftForPause(d time.Duration) {
	t.segmentStartWall = t.segmentStartWall.Add(d)
	if !t.holdStartedAt.IsZero() {
		t.holdStartedAt = t.holdStartedAt.Add(d)
	}
}

// Result is the outcome of one UpdateAndSetpoint call.
type Result struct {
	Setpoint      float64
	ForceNoHeat   bool // true for COOL ramps: PID output is forced to 0
	Completed     bool // advancing past the last segment terminates the run
	Diverged      bool // |rate achieved| differs from declared rate beyond rateDeviationWarn
	SegmentIndex  int
	Phase         Phase
}

// UpdateAndSetpoint advances the tracker's phase/segment based on the
// achieved temperature and returns this tick's setpoint (§4.5).
func (t *Tracker) UpdateAndSetpoint(measured float64, now time.Time) Result {
	if t.segmentIndex >= t.prof.SegmentCount() {
		return Result{Completed: true, SegmentIndex: t.segmentIndex, Phase: t.phase}
	}
	seg, _ := t.prof.SegmentAt(t.segmentIndex)

	switch t.phase {
	case PhaseHold:
		if !t.holdStartedAt.IsZero() && now.Sub(t.holdStartedAt) >= time.Duration(seg.HoldSeconds*float64(time.Second)) {
			if advanced := t.advance(now); advanced {
				return Result{Completed: true, SegmentIndex: t.segmentIndex, Phase: t.phase}
			}
			return t.UpdateAndSetpoint(measured, now)
		}
		return Result{Setpoint: seg.Target, SegmentIndex: t.segmentIndex, Phase: t.phase}

	default: // PhaseRamp
		if t.rampComplete(seg, measured) {
			if seg.HoldSeconds > 0 {
				t.phase = PhaseHold
				t.holdStartedAt = now
				return Result{Setpoint: seg.Target, SegmentIndex: t.segmentIndex, Phase: t.phase}
			}
			if advanced := t.advance(now); advanced {
				return Result{Completed: true, SegmentIndex: t.segmentIndex, Phase: t.phase}
			}
			return t.UpdateAndSetpoint(measured, now)
		}
		setpoint, forceNoHeat := t.rampSetpoint(seg, now)
		diverged := t.checkDivergence(seg, measured, now)
		return Result{Setpoint: setpoint, ForceNoHeat: forceNoHeat, SegmentIndex: t.segmentIndex, Phase: t.phase, Diverged: diverged}
	}
}

// advance moves to the next segment, returning true if that moved past
// the last segment (run complete).
func (t *Tracker) advance(now time.Time) (completed bool) {
	t.segmentIndex++
	if t.segmentIndex >= t.prof.SegmentCount() {
		return true
	}
	prevSeg, _ := t.prof.SegmentAt(t.segmentIndex - 1)
	t.segmentStartTemp = prevSeg.Target
	t.segmentStartWall = now
	t.phase = PhaseRamp
	t.holdStartedAt = time.Time{}
	if t.infoLog != nil {
		t.infoLog.Printf("segment: advanced to segment %d\n", t.segmentIndex)
	}
	return false
}

func (t *Tracker) rampComplete(seg profile.Segment, measured float64) bool {
	switch seg.Rate.Kind {
	case profile.RateMax:
		return measured >= seg.Target-t.tolerance
	case profile.RateCool:
		return measured <= seg.Target+t.tolerance
	default:
		if seg.Rate.Value == 0 {
			return true
		}
		if seg.Rate.Value > 0 {
			return measured >= seg.Target-t.tolerance
		}
		return measured <= seg.Target+t.tolerance
	}
}

func (t *Tracker) rampSetpoint(seg profile.Segment, now time.Time) (setpoint float64, forceNoHeat bool) {
	switch seg.Rate.Kind {
	case profile.RateMax:
		return seg.Target, false
	case profile.RateCool:
		return seg.Target, true
	default:
		if seg.Rate.Value == 0 {
			return seg.Target, false
		}
		elapsedHours := now.Sub(t.segmentStartWall).Hours()
		raw := t.segmentStartTemp + seg.Rate.Value*elapsedHours
		return clampToward(raw, t.segmentStartTemp, seg.Target), false
	}
}

// checkDivergence logs (but never acts on, per §7) when the achieved
// rate departs from the declared rate by more than
// rateDeviationWarn degrees/hour.
func (t *Tracker) checkDivergence(seg profile.Segment, measured float64, now time.Time) bool {
	if seg.Rate.Kind != profile.RateNumeric || seg.Rate.Value == 0 {
		return false
	}
	elapsedHours := now.Sub(t.segmentStartWall).Hours()
	if elapsedHours <= 0 {
		return false
	}
	achievedRate := (measured - t.segmentStartTemp) / elapsedHours
	if deviation := achievedRate - seg.Rate.Value; deviation > t.rateDeviationWarn || deviation < -t.rateDeviationWarn {
		if t.errLog != nil {
			t.errLog.Printf("segment: achieved rate %.1f deg/h diverges from declared %.1f deg/h by more than %.1f\n", achievedRate, seg.Rate.Value, t.rateDeviationWarn)
		}
		return true
	}
	return false
}

// FindStartingSegment returns the index of the segment whose declared
// temperature range [prev_target, target] contains measured, used by
// both fresh-start "seek start" (§4.6) and v1 resume-snapshot
// conversion (§4.7) to avoid replaying a ramp the kiln has already
// physically completed.
func FindStartingSegment(prof *profile.Profile, measured float64) int {
	prev := prof.StartTemp
	for i := 0; i < prof.SegmentCount(); i++ {
		seg, _ := prof.SegmentAt(i)
		lo, hi := prev, seg.Target
		if lo > hi {
			lo, hi = hi, lo
		}
		if measured >= lo && measured <= hi {
			return i
		}
		prev = seg.Target
	}
	if prof.SegmentCount() > 0 {
		return prof.SegmentCount() - 1
	}
	return 0
}

// SeekTo repositions the tracker at the given segment index in RAMP
// phase, with segmentStartTemp set to measured (§4.6).
func (t *Tracker) SeekTo(index int, measured float64, now time.Time) {
	if index < 0 || index >= t.prof.SegmentCount() {
		return
	}
	t.segmentIndex = index
	t.phase = PhaseRamp
	t.segmentStartTemp = measured
	t.segmentStartWall = now
	t.holdStartedAt = time.Time{}
}

// clampToward clamps raw so that it never overshoots target starting
// from start (§4.5).
func clampToward(raw, start, target float64) float64 {
	if target >= start {
		if raw > target {
			return target
		}
		if raw < start {
			return start
		}
		return raw
	}
	if raw < target {
		return target
	}
	if raw > start {
		return start
	}
	return raw
}
