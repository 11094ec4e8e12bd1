// Package profile parses and queries firing profiles (§4.2, §6.3 of the
// control core spec): v1 time/temperature point lists and v2 rate-based
// segment lists, normalised to a common Segment representation.
package profile

import (
	"fmt"
	"math"

	"module/internal/config"
	"module/internal/kilnerr"
)

// RateKind distinguishes a segment's numeric rate from the MAX/COOL
// tags, per §9's "dynamic typing of rate" note.
type RateKind int

const (
	RateNumeric RateKind = iota
	RateMax
	RateCool
)

// Rate is the tagged sum type Numeric(f64) | MAX | COOL.
type Rate struct {
	Kind  RateKind
	Value float64 // only meaningful when Kind == RateNumeric
}

func NumericRate(v float64) Rate { return Rate{Kind: RateNumeric, Value: v} }
func MaxRate() Rate              { return Rate{Kind: RateMax} }
func CoolRate() Rate             { return Rate{Kind: RateCool} }

func (r Rate) String() string {
	switch r.Kind {
	case RateMax:
		return "MAX"
	case RateCool:
		return "COOL"
	default:
		return fmt.Sprintf("%g", r.Value)
	}
}

// Segment is the runtime representation shared by both file formats
// once loaded (§3).
type Segment struct {
	Rate        Rate
	Target      float64
	HoldSeconds float64
}

// Profile is a named firing schedule normalised to segments.
type Profile struct {
	Name      string
	Unit      config.TemperatureUnit
	StartTemp float64
	Segments  []Segment

	// sourceVersion records which wire format this Profile was parsed
	// from, so Serialize can round-trip into the same shape.
	sourceVersion int
	doc           *document // preserved unknown fields, nil for programmatically built profiles
}

// SegmentCount returns the number of segments in the profile.
func (p *Profile) SegmentCount() int { return len(p.Segments) }

// SegmentAt returns the segment at the given index.
func (p *Profile) SegmentAt(i int) (Segment, error) {
	if i < 0 || i >= len(p.Segments) {
		return Segment{}, fmt.Errorf("profile: segment index %d out of range [0,%d)", i, len(p.Segments))
	}
	return p.Segments[i], nil
}

// Validate enforces the invariants of §4.2: rate sign must agree with
// target direction, hold >= 0, non-empty segment list, finite values.
func (p *Profile) Validate() error {
	if len(p.Segments) == 0 {
		return fmt.Errorf("%w: profile has no segments", kilnerr.ErrInvalidProfile)
	}
	if !isFinite(p.StartTemp) {
		return fmt.Errorf("%w: start_temp is not finite", kilnerr.ErrInvalidProfile)
	}
	prevTarget := p.StartTemp
	for i, seg := range p.Segments {
		if seg.HoldSeconds < 0 {
			return fmt.Errorf("%w: segment %d has negative hold", kilnerr.ErrInvalidProfile, i)
		}
		if !isFinite(seg.Target) {
			return fmt.Errorf("%w: segment %d target is not finite", kilnerr.ErrInvalidProfile, i)
		}
		if seg.Rate.Kind == RateNumeric {
			if !isFinite(seg.Rate.Value) {
				return fmt.Errorf("%w: segment %d rate is not finite", kilnerr.ErrInvalidProfile, i)
			}
			switch {
			case seg.Rate.Value > 0 && seg.Target < prevTarget:
				return fmt.Errorf("%w: segment %d has positive rate with decreasing target", kilnerr.ErrInvalidProfile, i)
			case seg.Rate.Value < 0 && seg.Target > prevTarget:
				return fmt.Errorf("%w: segment %d has negative rate with increasing target", kilnerr.ErrInvalidProfile, i)
			}
		}
		prevTarget = seg.Target
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// DisplayPoint is one (runtime-seconds, temperature) pair produced by
// ToDisplayPoints for UI graphs and telemetry backlog (§4.2); it is
// never consulted by the control loop for setpoint determination.
type DisplayPoint struct {
	Seconds     float64
	Temperature float64
}

// DurationEstimate returns the estimated total wall-clock seconds to
// run the whole profile starting from startTemp, using the configured
// MAX/COOL rate estimates.
func (p *Profile) DurationEstimate(startTemp float64, maxRateEstimate, coolRateEstimate float64) float64 {
	pts := p.ToDisplayPoints(startTemp, maxRateEstimate, coolRateEstimate)
	if len(pts) == 0 {
		return 0
	}
	return pts[len(pts)-1].Seconds
}

// ToDisplayPoints recomputes a time axis by integrating each segment at
// its declared rate, emitting one point at the end of the ramp and an
// additional point at the end of any hold. Pure function; never used
// for live setpoint computation (§4.2).
func (p *Profile) ToDisplayPoints(startTemp float64, maxRateEstimate, coolRateEstimate float64) []DisplayPoint {
	points := make([]DisplayPoint, 0, 2*len(p.Segments)+1)
	t := 0.0
	cur := startTemp
	points = append(points, DisplayPoint{Seconds: t, Temperature: cur})

	for _, seg := range p.Segments {
		ratePerHour := effectiveRate(seg.Rate, cur, seg.Target, maxRateEstimate, coolRateEstimate)
		var rampSeconds float64
		if ratePerHour == 0 {
			rampSeconds = 0
		} else {
			rampSeconds = math.Abs(seg.Target-cur) / math.Abs(ratePerHour) * 3600
		}
		t += rampSeconds
		cur = seg.Target
		points = append(points, DisplayPoint{Seconds: t, Temperature: cur})

		if seg.HoldSeconds > 0 {
			t += seg.HoldSeconds
			points = append(points, DisplayPoint{Seconds: t, Temperature: cur})
		}
	}
	return points
}

// EffectiveRatePerHour resolves a segment's declared rate to a signed
// degrees/hour number, substituting the configured estimates for
// MAX/COOL (§4.2, §4.5).
func EffectiveRatePerHour(r Rate, cur, target, maxRateEstimate, coolRateEstimate float64) float64 {
	return effectiveRate(r, cur, target, maxRateEstimate, coolRateEstimate)
}

func effectiveRate(r Rate, cur, target, maxRateEstimate, coolRateEstimate float64) float64 {
	switch r.Kind {
	case RateMax:
		return math.Copysign(maxRateEstimate, target-cur)
	case RateCool:
		return -math.Abs(coolRateEstimate)
	default:
		return r.Value
	}
}

// FindTimeForTemperature returns the elapsed seconds (from profile
// start) at which the profile's schedule first reaches the given
// temperature, or ok=false if no such time exists (flat or
// wrong-direction segments never cross it) per §8's boundary case.
func (p *Profile) FindTimeForTemperature(startTemp, target, maxRateEstimate, coolRateEstimate float64) (seconds float64, ok bool) {
	pts := p.ToDisplayPoints(startTemp, maxRateEstimate, coolRateEstimate)
	for i := 1; i < len(pts); i++ {
		a, b := pts[i-1], pts[i]
		lo, hi := a.Temperature, b.Temperature
		if lo > hi {
			lo, hi = hi, lo
		}
		if target < lo || target > hi {
			continue
		}
		if a.Temperature == b.Temperature {
			if a.Temperature == target {
				return a.Seconds, true
			}
			continue
		}
		if b.Temperature < a.Temperature {
			continue
		}
		frac := (target - a.Temperature) / (b.Temperature - a.Temperature)
		return a.Seconds + frac*(b.Seconds-a.Seconds), true
	}
	return 0, false
}
