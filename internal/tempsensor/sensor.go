// Package tempsensor implements the temperature acquisition pipeline
// of §4.1: a fixed-cadence read of a thermocouple device, median
// smoothing over a sliding window, and a fault policy that classifies
// but never raises read failures to the control thread.
//
// The read-through "latest sample" contract mirrors the teacher's
// Coil.Temp field (a value the control tick reads without blocking on
// the acquisition side), generalized to carry a classified status
// instead of a bare float.
package tempsensor

import (
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"module/internal/config"
)

// Fault distinguishes the thermocouple-specific failure modes a Device
// can report.
type Fault int

const (
	FaultNone Fault = iota
	FaultShort
	FaultOpen
)

// ReadError is returned by Device.Read to report a classified hardware
// fault rather than a generic transient I/O error.
type ReadError struct {
	Fault Fault
	Err   error
}

func (e *ReadError) Error() string { return e.Err.Error() }
func (e *ReadError) Unwrap() error { return e.Err }

// Device is the narrow hardware collaborator; the concrete
// thermocouple driver lives outside this module (§1).
type Device interface {
	Read() (float64, error)
}

// Status classifies a TemperatureSample (§3).
type Status string

const (
	StatusOK       Status = "OK"
	StatusStale    Status = "STALE"
	StatusShort    Status = "SHORT"
	StatusOpen     Status = "OPEN"
	StatusOverTemp Status = "OVER_TEMP"
)

// Sample is the one-way, read-through value TempSensor hands to the
// control thread (§3).
type Sample struct {
	Wallclock time.Time
	Raw       float64
	Smoothed  float64
	Status    Status
}

// IsFatal reports whether the status forces the Oven into EMERGENCY
// (§4.1, §7): persistent staleness or a SHORT/OPEN thermocouple.
func (s Sample) IsFatal() bool {
	switch s.Status {
	case StatusStale, StatusShort, StatusOpen:
		return true
	default:
		return false
	}
}

// TempSensor polls a Device at a fixed cadence, applies an additive
// offset after unit conversion, and maintains a sliding window of
// observed readings.
type TempSensor struct {
	device     Device
	unit       config.TemperatureUnit
	nativeUnit config.TemperatureUnit
	offset     float64
	windowSize int
	readInterval time.Duration
	overTemp     float64

	// staleAfter is the cumulative duration of consecutive transient
	// failures that escalates a retained-last-value read to STALE
	// (§4.1: "a configured fraction of a window's duration").
	staleAfter time.Duration

	infoLog *log.Logger
	errLog  *log.Logger

	mu                  sync.RWMutex
	ring                []float64
	smoothed            float64
	haveSmoothed        bool
	consecutiveFailures int
	firstFailureAt      time.Time
	latest              Sample
}

// New constructs a TempSensor. nativeUnit is the unit the Device
// reports in; unit is the profile/config unit the smoothed value is
// reported in.
func New(device Device, unit, nativeUnit config.TemperatureUnit, offset float64, windowSize int, readInterval time.Duration, overTemp float64, staleFraction float64, infoLog, errLog *log.Logger) *TempSensor {
	if windowSize <= 0 {
		windowSize = 10
	}
	if staleFraction <= 0 {
		staleFraction = 0.5
	}
	return &TempSensor{
		device:       device,
		unit:         unit,
		nativeUnit:   nativeUnit,
		offset:       offset,
		windowSize:   windowSize,
		readInterval: readInterval,
		overTemp:     overTemp,
		staleAfter:   time.Duration(float64(windowSize) * float64(readInterval) * staleFraction),
		infoLog:      infoLog,
		errLog:       errLog,
		ring:         make([]float64, 0, windowSize),
	}
}

// Poll performs one acquisition, classifies the result, and updates
// the smoothing window. It is intended to run on a dedicated
// acquisition goroutine (§5) and never blocks the control thread.
func (s *TempSensor) Poll(now time.Time) Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.device.Read()
	if err != nil {
		return s.handleFailureLocked(now, err)
	}

	s.consecutiveFailures = 0
	converted := convert(raw, s.nativeUnit, s.unit) + s.offset
	s.pushLocked(converted)

	status := StatusOK
	if s.overTemp > 0 && converted >= s.overTemp {
		status = StatusOverTemp
	}

	sample := Sample{Wallclock: now, Raw: converted, Smoothed: s.smoothedLocked(), Status: status}
	s.latest = sample
	return sample
}

func (s *TempSensor) handleFailureLocked(now time.Time, err error) Sample {
	var rerr *ReadError
	status := StatusOK
	switch {
	case errors.As(err, &rerr) && rerr.Fault == FaultShort:
		status = StatusShort
	case errors.As(err, &rerr) && rerr.Fault == FaultOpen:
		status = StatusOpen
	default:
		if s.consecutiveFailures == 0 {
			s.firstFailureAt = now
		}
		s.consecutiveFailures++
		if now.Sub(s.firstFailureAt) > s.staleAfter {
			status = StatusStale
		} else {
			status = StatusOK
			if s.errLog != nil {
				s.errLog.Printf("tempsensor: transient read failure: %s\n", err.Error())
			}
		}
	}

	sample := Sample{Wallclock: now, Raw: s.latest.Raw, Smoothed: s.smoothedLocked(), Status: status}
	s.latest = sample
	return sample
}

func (s *TempSensor) pushLocked(v float64) {
	if len(s.ring) < s.windowSize {
		s.ring = append(s.ring, v)
	} else {
		copy(s.ring, s.ring[1:])
		s.ring[len(s.ring)-1] = v
	}
	s.haveSmoothed = true
}

func (s *TempSensor) smoothedLocked() float64 {
	if !s.haveSmoothed || len(s.ring) == 0 {
		return 0
	}
	if len(s.ring) < s.windowSize {
		sum := 0.0
		for _, v := range s.ring {
			sum += v
		}
		return sum / float64(len(s.ring))
	}
	sorted := append([]float64(nil), s.ring...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Latest returns the most recent classified sample without blocking;
// this is the only surface the control thread consults (§5).
func (s *TempSensor) Latest() Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

func convert(v float64, from, to config.TemperatureUnit) float64 {
	if from == to {
		return v
	}
	if from == config.Fahrenheit && to == config.Celsius {
		return (v - 32) * 5 / 9
	}
	return v*9/5 + 32
}
