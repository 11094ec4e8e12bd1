package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"module/internal/config"
)

func newTestProfile() *Profile {
	return &Profile{
		Name:      "bisque",
		Unit:      config.Fahrenheit,
		StartTemp: 70,
		Segments: []Segment{
			{Rate: NumericRate(200), Target: 1000, HoldSeconds: 0},
			{Rate: MaxRate(), Target: 1900, HoldSeconds: 600},
			{Rate: CoolRate(), Target: 70, HoldSeconds: 0},
		},
	}
}

func TestValidateRejectsSignMismatch(t *testing.T) {
	p := newTestProfile()
	p.Segments[0].Rate = NumericRate(-200) // negative rate, increasing target
	err := p.Validate()
	require.Error(t, err)
}

func TestValidateRejectsNegativeHold(t *testing.T) {
	p := newTestProfile()
	p.Segments[1].HoldSeconds = -1
	require.Error(t, p.Validate())
}

func TestValidateRejectsEmptyProfile(t *testing.T) {
	p := &Profile{Name: "empty"}
	require.Error(t, p.Validate())
}

func TestValidateAcceptsWellFormedProfile(t *testing.T) {
	p := newTestProfile()
	assert.NoError(t, p.Validate())
}

func TestConvertUnitIsIdempotent(t *testing.T) {
	p := newTestProfile()
	once := p.ConvertUnit(config.Celsius)
	twice := once.ConvertUnit(config.Celsius)
	assert.Equal(t, once.StartTemp, twice.StartTemp)
	assert.Equal(t, once.Segments[0].Target, twice.Segments[0].Target)
}

func TestConvertUnitRoundTrips(t *testing.T) {
	p := newTestProfile()
	back := p.ConvertUnit(config.Celsius).ConvertUnit(config.Fahrenheit)
	assert.InDelta(t, p.StartTemp, back.StartTemp, 1e-9)
	for i := range p.Segments {
		assert.InDelta(t, p.Segments[i].Target, back.Segments[i].Target, 1e-9)
	}
}

func TestConvertUnitLeavesMaxCoolRatesUntouched(t *testing.T) {
	p := newTestProfile()
	c := p.ConvertUnit(config.Celsius)
	assert.Equal(t, RateMax, c.Segments[1].Rate.Kind)
	assert.Equal(t, RateCool, c.Segments[2].Rate.Kind)
}

func TestSegmentAtOutOfRange(t *testing.T) {
	p := newTestProfile()
	_, err := p.SegmentAt(99)
	require.Error(t, err)
}

func TestEffectiveRatePerHourSubstitutesEstimates(t *testing.T) {
	assert.Equal(t, 300.0, EffectiveRatePerHour(MaxRate(), 1000, 1900, 300, 150))
	assert.Equal(t, -150.0, EffectiveRatePerHour(CoolRate(), 1900, 70, 300, 150))
	assert.Equal(t, 200.0, EffectiveRatePerHour(NumericRate(200), 1000, 1900, 300, 150))
}

func TestFindTimeForTemperatureFlatSegmentNeverCrosses(t *testing.T) {
	p := &Profile{
		Name:      "flat-hold",
		Unit:      config.Fahrenheit,
		StartTemp: 1000,
		Segments: []Segment{
			{Rate: NumericRate(0), Target: 1000, HoldSeconds: 3600},
		},
	}
	_, ok := p.FindTimeForTemperature(1000, 1500, 300, 150)
	assert.False(t, ok)
}

func TestFindTimeForTemperatureInterpolates(t *testing.T) {
	p := newTestProfile()
	seconds, ok := p.FindTimeForTemperature(70, 500, 300, 150)
	require.True(t, ok)
	assert.Greater(t, seconds, 0.0)
}

func TestDurationEstimateIncludesHolds(t *testing.T) {
	p := newTestProfile()
	withHold := p.DurationEstimate(70, 300, 150)
	p.Segments[1].HoldSeconds = 0
	withoutHold := p.DurationEstimate(70, 300, 150)
	assert.Greater(t, withHold, withoutHold)
}
