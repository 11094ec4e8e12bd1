// Package config loads the recognised tunables of the kiln controller
// (§6.6 of the control core spec) from environment variables, the same
// way the teacher program reads PI_HEATER_* variables via godotenv.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// TemperatureUnit is one of the two units a Config, Profile, or
// ResumeSnapshot may be tagged with.
type TemperatureUnit string

const (
	Celsius    TemperatureUnit = "c"
	Fahrenheit TemperatureUnit = "f"
)

// Config holds every tunable named in §6.6.
type Config struct {
	TickInterval time.Duration
	OutputWindow float64

	Kp, Ki, Kd float64

	TemperatureUnit       TemperatureUnit
	SmoothingWindowSize   int
	ThermocoupleOffset    float64
	EmergencyOverTemp     float64
	SegmentCompleteTol    float64
	RateDeviationWarning  float64
	EstimatedMaxHeatRate  float64
	EstimatedCoolRate     float64
	KWhRate               float64
	KWElements            float64
	Currency              string
	AutomaticRestarts     bool
	ResumeFreshnessWindow time.Duration

	ProfileDir   string
	LogDir       string
	SnapshotPath string
	HTTPPort     string

	// TempDevFile/RelayDevFile name the device files the hardware
	// driver (out of scope, §1) exposes. Empty means run against the
	// in-memory simulator instead.
	TempDevFile  string
	RelayDevFile string
}

// Default returns the configuration defaults quoted throughout §6.6.
func Default() Config {
	return Config{
		TickInterval:          2 * time.Second,
		OutputWindow:          100,
		Kp:                    1,
		Ki:                    0.05,
		Kd:                    0,
		TemperatureUnit:       Fahrenheit,
		SmoothingWindowSize:   10,
		ThermocoupleOffset:    0,
		EmergencyOverTemp:     2200,
		SegmentCompleteTol:    5,
		RateDeviationWarning:  50,
		EstimatedMaxHeatRate:  300,
		EstimatedCoolRate:     150,
		KWhRate:               0.12,
		KWElements:            8.0,
		Currency:              "USD",
		AutomaticRestarts:     true,
		ResumeFreshnessWindow: 60 * time.Second,
		ProfileDir:            "./profiles",
		LogDir:                "./firing-logs",
		SnapshotPath:          "./resume-snapshot.yaml",
		HTTPPort:              "8081",
	}
}

// Load applies any .env file found in the working directory (mirroring
// the teacher's godotenv.Load() call) and then overlays KILN_* variables
// on top of Default().
func Load() (Config, error) {
	_ = godotenv.Load()
	c := Default()

	var err error
	if err = overlayDuration(&c.TickInterval, "KILN_TICK_INTERVAL_MS", time.Millisecond); err != nil {
		return c, err
	}
	if err = overlayFloat(&c.OutputWindow, "KILN_OUTPUT_WINDOW"); err != nil {
		return c, err
	}
	if err = overlayFloat(&c.Kp, "KILN_KP"); err != nil {
		return c, err
	}
	if err = overlayFloat(&c.Ki, "KILN_KI"); err != nil {
		return c, err
	}
	if err = overlayFloat(&c.Kd, "KILN_KD"); err != nil {
		return c, err
	}
	if v := os.Getenv("KILN_TEMPERATURE_UNIT"); v != "" {
		switch TemperatureUnit(v) {
		case Celsius, Fahrenheit:
			c.TemperatureUnit = TemperatureUnit(v)
		default:
			return c, fmt.Errorf("KILN_TEMPERATURE_UNIT: unrecognised unit %q", v)
		}
	}
	if err = overlayInt(&c.SmoothingWindowSize, "KILN_SMOOTHING_WINDOW_SIZE"); err != nil {
		return c, err
	}
	if err = overlayFloat(&c.ThermocoupleOffset, "KILN_THERMOCOUPLE_OFFSET"); err != nil {
		return c, err
	}
	if err = overlayFloat(&c.EmergencyOverTemp, "KILN_EMERGENCY_OVER_TEMP"); err != nil {
		return c, err
	}
	if err = overlayFloat(&c.SegmentCompleteTol, "KILN_SEGMENT_COMPLETE_TOLERANCE"); err != nil {
		return c, err
	}
	if err = overlayFloat(&c.RateDeviationWarning, "KILN_RATE_DEVIATION_WARNING"); err != nil {
		return c, err
	}
	if err = overlayFloat(&c.EstimatedMaxHeatRate, "KILN_ESTIMATED_MAX_HEATING_RATE"); err != nil {
		return c, err
	}
	if err = overlayFloat(&c.EstimatedCoolRate, "KILN_ESTIMATED_NATURAL_COOLING_RATE"); err != nil {
		return c, err
	}
	if err = overlayFloat(&c.KWhRate, "KILN_KWH_RATE"); err != nil {
		return c, err
	}
	if err = overlayFloat(&c.KWElements, "KILN_KW_ELEMENTS"); err != nil {
		return c, err
	}
	if v := os.Getenv("KILN_CURRENCY"); v != "" {
		c.Currency = v
	}
	if v := os.Getenv("KILN_AUTOMATIC_RESTARTS"); v != "" {
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			return c, fmt.Errorf("KILN_AUTOMATIC_RESTARTS: %w", perr)
		}
		c.AutomaticRestarts = b
	}
	if err = overlayDuration(&c.ResumeFreshnessWindow, "KILN_RESUME_FRESHNESS_SECONDS", time.Second); err != nil {
		return c, err
	}
	if v := os.Getenv("KILN_PROFILE_DIR"); v != "" {
		c.ProfileDir = v
	}
	if v := os.Getenv("KILN_LOG_DIR"); v != "" {
		c.LogDir = v
	}
	if v := os.Getenv("KILN_SNAPSHOT_PATH"); v != "" {
		c.SnapshotPath = v
	}
	if v := os.Getenv("KILN_HTTP_PORT"); v != "" {
		c.HTTPPort = v
	}
	if v := os.Getenv("KILN_TEMP_DEV_FILE"); v != "" {
		c.TempDevFile = v
	}
	if v := os.Getenv("KILN_RELAY_DEV_FILE"); v != "" {
		c.RelayDevFile = v
	}
	return c, nil
}

func overlayFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func overlayInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = i
	return nil
}

func overlayDuration(dst *time.Duration, key string, unit time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = time.Duration(n * float64(unit))
	return nil
}
