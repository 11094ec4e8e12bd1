// Package firinglog implements the immutable post-mortem record of one
// run (§4.8, §6.5): a header plus a downsampled temperature/target
// series, written once on termination and never mutated afterward.
package firinglog

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EndStatus is how a run concluded.
type EndStatus string

const (
	EndCompleted EndStatus = "completed"
	EndAborted   EndStatus = "aborted"
	EndEmergency EndStatus = "emergency"
)

// SamplePoint is one entry of the downsampled time series.
type SamplePoint struct {
	RuntimeSeconds float64 `yaml:"t"`
	Temperature    float64 `yaml:"temp"`
	Target         float64 `yaml:"target"`
}

// Log is the complete firing-log document (§3, §4.8).
type Log struct {
	ProfileName     string        `yaml:"profile_name"`
	StartWallclock  time.Time     `yaml:"start_wallclock"`
	EndWallclock    time.Time     `yaml:"end_wallclock"`
	DurationSeconds float64       `yaml:"duration_seconds"`
	FinalCost       float64       `yaml:"final_cost"`
	FinalTemp       float64       `yaml:"final_temperature"`
	MeanDivergence  float64       `yaml:"mean_divergence"`
	EndStatus       EndStatus     `yaml:"end_status"`
	Unit            string        `yaml:"unit"`
	Series          []SamplePoint `yaml:"series"`
}

// maxSeriesPoints is the decimation ceiling of §4.8.
const maxSeriesPoints = 500

// Writer appends completed firing logs to a directory and maintains a
// "latest" pointer file for quick UI retrieval.
type Writer struct {
	dir     string
	infoLog *log.Logger
	errLog  *log.Logger
}

// NewWriter constructs a Writer rooted at dir.
func NewWriter(dir string, infoLog, errLog *log.Logger) *Writer {
	return &Writer{dir: dir, infoLog: infoLog, errLog: errLog}
}

// Builder accumulates a run's time series as the Oven ticks, then
// produces a decimated Log on Finish.
type Builder struct {
	profileName    string
	startWallclock time.Time
	unit           string

	samples       []SamplePoint
	divergenceSum float64
	divergenceN   int
}

// NewBuilder seeds an empty log for a run starting now.
func NewBuilder(profileName, unit string, startWallclock time.Time) *Builder {
	return &Builder{profileName: profileName, startWallclock: startWallclock, unit: unit}
}

// Record appends one tick's (runtime, temperature, target, divergence).
func (b *Builder) Record(runtimeSeconds, temperature, target, divergence float64) {
	b.samples = append(b.samples, SamplePoint{RuntimeSeconds: runtimeSeconds, Temperature: temperature, Target: target})
	b.divergenceSum += divergence
	b.divergenceN++
}

// Finish produces the final Log, decimating the series to at most
// maxSeriesPoints entries (§4.8).
func (b *Builder) Finish(end time.Time, finalCost float64, endStatus EndStatus) Log {
	meanDivergence := 0.0
	if b.divergenceN > 0 {
		meanDivergence = b.divergenceSum / float64(b.divergenceN)
	}
	finalTemp := 0.0
	if len(b.samples) > 0 {
		finalTemp = b.samples[len(b.samples)-1].Temperature
	}
	return Log{
		ProfileName:     b.profileName,
		StartWallclock:  b.startWallclock,
		EndWallclock:    end,
		DurationSeconds: end.Sub(b.startWallclock).Seconds(),
		FinalCost:       finalCost,
		FinalTemp:       finalTemp,
		MeanDivergence:  meanDivergence,
		EndStatus:       endStatus,
		Unit:            b.unit,
		Series:          decimate(b.samples, maxSeriesPoints),
	}
}

func decimate(points []SamplePoint, max int) []SamplePoint {
	if len(points) <= max {
		return points
	}
	out := make([]SamplePoint, 0, max)
	step := float64(len(points)) / float64(max)
	for i := 0; i < max; i++ {
		idx := int(float64(i) * step)
		if idx >= len(points) {
			idx = len(points) - 1
		}
		out = append(out, points[idx])
	}
	return out
}

var unsafeFilenameChars = regexp.MustCompile(`[/\\]+`)

// sanitiseName strips path separators from a profile name for safe use
// in a filename (§4.8): each run of separators becomes "_", and leading
// or trailing dots and underscores (what remains of "../") are trimmed.
func sanitiseName(name string) string {
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	name = strings.TrimSpace(name)
	if name == "" {
		name = "unnamed"
	}
	return name
}

// Write appends l to the log directory under the
// YYYY-MM-DD_HH-MM-SS_<sanitised-name> pattern and atomically updates
// the "latest" pointer file (§4.8, §6.5).
func (w *Writer) Write(l Log) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("firinglog: mkdir: %w", err)
	}
	filename := fmt.Sprintf("%s_%s.yaml", l.StartWallclock.UTC().Format("2006-01-02_15-04-05"), sanitiseName(l.ProfileName))
	fullPath := filepath.Join(w.dir, filename)

	data, err := yaml.Marshal(&l)
	if err != nil {
		return "", fmt.Errorf("firinglog: marshal: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		if w.errLog != nil {
			w.errLog.Printf("firinglog: failed to write log: %s\n", err.Error())
		}
		return "", fmt.Errorf("firinglog: write: %w", err)
	}

	w.writeLatestPointer(filename)
	if w.infoLog != nil {
		w.infoLog.Printf("firinglog: wrote %s (%s, %d points)\n", filename, l.EndStatus, len(l.Series))
	}
	return fullPath, nil
}

func (w *Writer) writeLatestPointer(filename string) {
	pointerPath := filepath.Join(w.dir, "latest")
	tmp, err := os.CreateTemp(w.dir, ".latest-*.tmp")
	if err != nil {
		if w.errLog != nil {
			w.errLog.Printf("firinglog: failed to create latest pointer temp file: %s\n", err.Error())
		}
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(filename); err != nil {
		tmp.Close()
		if w.errLog != nil {
			w.errLog.Printf("firinglog: failed to write latest pointer: %s\n", err.Error())
		}
		return
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return
	}
	tmp.Close()
	if err := os.Rename(tmpPath, pointerPath); err != nil {
		if w.errLog != nil {
			w.errLog.Printf("firinglog: failed to rename latest pointer into place: %s\n", err.Error())
		}
	}
}

// Latest returns the path of the most recently written log, if any.
func (w *Writer) Latest() (string, bool, error) {
	data, err := os.ReadFile(filepath.Join(w.dir, "latest"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return filepath.Join(w.dir, strings.TrimSpace(string(data))), true, nil
}
