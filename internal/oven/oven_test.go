package oven

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"module/internal/actuator"
	"module/internal/config"
	"module/internal/firinglog"
	"module/internal/kilnerr"
	"module/internal/persist"
	"module/internal/pidctl"
	"module/internal/profile"
	"module/internal/telemetry"
	"module/internal/tempsensor"
)

type fakeProfiles struct {
	byName map[string]*profile.Profile
}

func (f *fakeProfiles) Get(name string) (*profile.Profile, error) {
	p, ok := f.byName[name]
	if !ok {
		return nil, errors.New("no such profile")
	}
	return p, nil
}

func shortProfile() *profile.Profile {
	return &profile.Profile{
		Name:      "quick",
		Unit:      config.Fahrenheit,
		StartTemp: 70,
		Segments: []profile.Segment{
			{Rate: profile.NumericRate(100000), Target: 200, HoldSeconds: 0},
		},
	}
}

func newTestOven(t *testing.T, startTemp float64, prof *profile.Profile, cfgOverride func(*config.Config)) (*Oven, *tempsensor.SimulatedDevice) {
	t.Helper()
	cfg := config.Default()
	cfg.AutomaticRestarts = false
	cfg.TickInterval = 10 * time.Millisecond
	if cfgOverride != nil {
		cfgOverride(&cfg)
	}

	simDevice := tempsensor.NewSimulatedDevice(startTemp)
	sensor := tempsensor.New(simDevice, cfg.TemperatureUnit, cfg.TemperatureUnit, 0, 1, cfg.TickInterval, cfg.EmergencyOverTemp, 0.5, nil, nil)
	sensor.Poll(time.Now())

	relay := &actuator.SimulatedRelay{}
	act := actuator.New(relay, cfg.TickInterval, nil, nil)
	pid := pidctl.New(cfg.Kp, cfg.Ki, cfg.Kd, cfg.OutputWindow, nil, nil)

	profiles := &fakeProfiles{byName: map[string]*profile.Profile{}}
	if prof != nil {
		profiles.byName[prof.Name] = prof
	}

	store := persist.NewStore(filepath.Join(t.TempDir(), "snapshot.yaml"), nil, nil)
	logs := firinglog.NewWriter(t.TempDir(), nil, nil)
	fanout := telemetry.NewFanout(func(s telemetry.Snapshot) ([]byte, error) { return nil, nil }, nil, nil)

	ov := New(Options{
		Config:    cfg,
		Sensor:    sensor,
		SimDevice: simDevice,
		Actuator:  act,
		PID:       pid,
		Profiles:  profiles,
		Persist:   store,
		Logs:      logs,
		Fanout:    fanout,
	})
	return ov, simDevice
}

func TestStartRequiresKnownProfile(t *testing.T) {
	ov, _ := newTestOven(t, 70, nil, nil)
	err := ov.handleStart("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, kilnerr.ErrNoSuchProfile))
}

func TestStartFromIdleEntersRunning(t *testing.T) {
	ov, _ := newTestOven(t, 70, shortProfile(), nil)
	require.NoError(t, ov.handleStart("quick"))
	assert.Equal(t, Running, ov.lifecycle)
}

func TestStartWhileRunningIsIllegal(t *testing.T) {
	ov, _ := newTestOven(t, 70, shortProfile(), nil)
	require.NoError(t, ov.handleStart("quick"))
	err := ov.handleStart("quick")
	require.Error(t, err)
	assert.True(t, errors.Is(err, kilnerr.ErrIllegalState))
}

func TestPauseThenResumePreservesSegment(t *testing.T) {
	ov, _ := newTestOven(t, 70, shortProfile(), nil)
	require.NoError(t, ov.handleStart("quick"))
	segBefore := ov.tracker.SegmentIndex()

	require.NoError(t, ov.handlePause())
	assert.Equal(t, Paused, ov.lifecycle)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, ov.handleResume())
	assert.Equal(t, Running, ov.lifecycle)
	assert.Equal(t, segBefore, ov.tracker.SegmentIndex())
}

func TestPauseWhileIdleIsIllegal(t *testing.T) {
	ov, _ := newTestOven(t, 70, shortProfile(), nil)
	err := ov.handlePause()
	require.Error(t, err)
	assert.True(t, errors.Is(err, kilnerr.ErrIllegalState))
}

func TestStopFromRunningReturnsToIdleAndDeletesSnapshot(t *testing.T) {
	ov, _ := newTestOven(t, 70, shortProfile(), nil)
	require.NoError(t, ov.handleStart("quick"))
	require.NoError(t, ov.handleStop())
	assert.Equal(t, Idle, ov.lifecycle)

	_, ok, err := ov.persist.TryResume()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTickEntersEmergencyOnOverTemperature(t *testing.T) {
	ov, sim := newTestOven(t, 70, shortProfile(), func(c *config.Config) {
		c.EmergencyOverTemp = 2200
	})
	require.NoError(t, ov.handleStart("quick"))

	sim.Set(2500)
	ov.sensor.Poll(time.Now())
	ov.tick(time.Now())

	assert.Equal(t, Idle, ov.lifecycle) // finalize collapses EMERGENCY back to IDLE
}

// faultyDevice always reports a classified thermocouple fault.
type faultyDevice struct{ fault tempsensor.Fault }

func (d *faultyDevice) Read() (float64, error) {
	return 0, &tempsensor.ReadError{Fault: d.fault, Err: errors.New("thermocouple fault")}
}

func TestTickEntersEmergencyOnLostSensor(t *testing.T) {
	cfg := config.Default()
	cfg.AutomaticRestarts = false
	cfg.TickInterval = 10 * time.Millisecond

	device := &faultyDevice{fault: tempsensor.FaultOpen}
	sensor := tempsensor.New(device, cfg.TemperatureUnit, cfg.TemperatureUnit, 0, 1, cfg.TickInterval, cfg.EmergencyOverTemp, 0.5, nil, nil)
	sensor.Poll(time.Now()) // populates Latest() with the OPEN classification

	relay := &actuator.SimulatedRelay{}
	act := actuator.New(relay, cfg.TickInterval, nil, nil)
	pid := pidctl.New(cfg.Kp, cfg.Ki, cfg.Kd, cfg.OutputWindow, nil, nil)

	prof := shortProfile()
	profiles := &fakeProfiles{byName: map[string]*profile.Profile{prof.Name: prof}}
	store := persist.NewStore(filepath.Join(t.TempDir(), "snapshot.yaml"), nil, nil)
	logs := firinglog.NewWriter(t.TempDir(), nil, nil)
	fanout := telemetry.NewFanout(func(s telemetry.Snapshot) ([]byte, error) { return nil, nil }, nil, nil)

	ov := New(Options{
		Config:   cfg,
		Sensor:   sensor,
		Actuator: act,
		PID:      pid,
		Profiles: profiles,
		Persist:  store,
		Logs:     logs,
		Fanout:   fanout,
	})
	require.NoError(t, ov.handleStart("quick"))

	ov.tick(time.Now())

	assert.Equal(t, Idle, ov.lifecycle) // finalize collapses EMERGENCY back to IDLE
	errp := ov.lastErr.Load()
	require.NotNil(t, errp)
	assert.Contains(t, *errp, kilnerr.ErrLostSensor.Error())
}

func TestRunCompletesFiringAndReturnsToIdle(t *testing.T) {
	ov, sim := newTestOven(t, 70, shortProfile(), nil)
	require.NoError(t, ov.handleStart("quick"))

	sim.Set(200) // at target already, next tick should complete the sole segment
	ov.sensor.Poll(time.Now())
	ov.tick(time.Now())

	assert.Equal(t, Idle, ov.lifecycle)
}

func TestSimulateTemperatureCommandUpdatesSimDevice(t *testing.T) {
	ov, sim := newTestOven(t, 70, shortProfile(), nil)
	require.NoError(t, ov.handleCommand(command{kind: cmdSimulate, simValue: 500}))
	v, err := sim.Read()
	require.NoError(t, err)
	assert.Equal(t, 500.0, v)
}
