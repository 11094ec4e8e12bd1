package tempsensor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"module/internal/config"
)

type fakeDevice struct {
	values []float64
	errs   []error
	i      int
}

func (d *fakeDevice) Read() (float64, error) {
	if d.i >= len(d.values) {
		d.i = len(d.values) - 1
	}
	var err error
	if d.i < len(d.errs) {
		err = d.errs[d.i]
	}
	v := d.values[d.i]
	d.i++
	return v, err
}

func TestPollSmoothsWithRunningAverageBeforeWindowFull(t *testing.T) {
	dev := &fakeDevice{values: []float64{10, 20, 30}}
	s := New(dev, config.Fahrenheit, config.Fahrenheit, 0, 5, time.Second, 0, 0.5, nil, nil)
	now := time.Now()
	s.Poll(now)
	s.Poll(now.Add(time.Second))
	sample := s.Poll(now.Add(2 * time.Second))
	assert.InDelta(t, 20.0, sample.Smoothed, 1e-9)
}

func TestPollSwitchesToMedianOnceWindowFull(t *testing.T) {
	dev := &fakeDevice{values: []float64{1, 2, 3, 100}}
	s := New(dev, config.Fahrenheit, config.Fahrenheit, 0, 3, time.Second, 0, 0.5, nil, nil)
	now := time.Now()
	s.Poll(now)
	s.Poll(now.Add(time.Second))
	s.Poll(now.Add(2 * time.Second))
	sample := s.Poll(now.Add(3 * time.Second)) // window now [2,3,100], median=3
	assert.InDelta(t, 3.0, sample.Smoothed, 1e-9)
}

func TestPollClassifiesShortFault(t *testing.T) {
	dev := &fakeDevice{values: []float64{0}, errs: []error{&ReadError{Fault: FaultShort, Err: errors.New("short")}}}
	s := New(dev, config.Fahrenheit, config.Fahrenheit, 0, 5, time.Second, 0, 0.5, nil, nil)
	sample := s.Poll(time.Now())
	assert.Equal(t, StatusShort, sample.Status)
	assert.True(t, sample.IsFatal())
}

func TestPollClassifiesOpenFault(t *testing.T) {
	dev := &fakeDevice{values: []float64{0}, errs: []error{&ReadError{Fault: FaultOpen, Err: errors.New("open")}}}
	s := New(dev, config.Fahrenheit, config.Fahrenheit, 0, 5, time.Second, 0, 0.5, nil, nil)
	sample := s.Poll(time.Now())
	assert.Equal(t, StatusOpen, sample.Status)
}

func TestPollTransientFailureStaysOKUntilStaleWindow(t *testing.T) {
	transientErr := errors.New("transient i/o error")
	dev := &fakeDevice{values: []float64{0, 0, 0}, errs: []error{transientErr, transientErr, transientErr}}
	s := New(dev, config.Fahrenheit, config.Fahrenheit, 0, 5, time.Second, 0, 0.5, nil, nil)
	now := time.Now()
	first := s.Poll(now)
	assert.Equal(t, StatusOK, first.Status)
}

func TestPollEscalatesToStaleAfterWindow(t *testing.T) {
	transientErr := errors.New("transient i/o error")
	dev := &fakeDevice{values: []float64{0, 0}, errs: []error{transientErr, transientErr}}
	// windowSize=2, readInterval=1s, staleFraction=0.5 -> staleAfter = 1s
	s := New(dev, config.Fahrenheit, config.Fahrenheit, 0, 2, time.Second, 0, 0.5, nil, nil)
	now := time.Now()
	s.Poll(now)
	late := s.Poll(now.Add(5 * time.Second))
	assert.Equal(t, StatusStale, late.Status)
	assert.True(t, late.IsFatal())
}

func TestPollClassifiesOverTemp(t *testing.T) {
	dev := &fakeDevice{values: []float64{3000}}
	s := New(dev, config.Fahrenheit, config.Fahrenheit, 0, 5, time.Second, 2200, 0.5, nil, nil)
	sample := s.Poll(time.Now())
	assert.Equal(t, StatusOverTemp, sample.Status)
}

func TestPollAppliesOffsetAfterConversion(t *testing.T) {
	dev := &fakeDevice{values: []float64{0}}
	s := New(dev, config.Fahrenheit, config.Celsius, 10, 5, time.Second, 0, 0.5, nil, nil)
	sample := s.Poll(time.Now())
	require.InDelta(t, 32+10, sample.Raw, 1e-9) // 0C -> 32F, +10 offset
}

func TestLatestIsReadThroughWithoutPolling(t *testing.T) {
	dev := &fakeDevice{values: []float64{42}}
	s := New(dev, config.Fahrenheit, config.Fahrenheit, 0, 5, time.Second, 0, 0.5, nil, nil)
	assert.Equal(t, Sample{}, s.Latest())
	s.Poll(time.Now())
	assert.NotEqual(t, Sample{}, s.Latest())
}
