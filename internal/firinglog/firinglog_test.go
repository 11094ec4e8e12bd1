package firinglog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderFinishComputesMeanDivergenceAndFinalTemp(t *testing.T) {
	b := NewBuilder("bisque", "f", time.Now())
	b.Record(0, 70, 70, 0)
	b.Record(60, 170, 175, 5)
	b.Record(120, 270, 280, 10)

	l := b.Finish(time.Now().Add(2*time.Minute), 1.5, EndCompleted)
	assert.InDelta(t, 5.0, l.MeanDivergence, 1e-9)
	assert.Equal(t, 270.0, l.FinalTemp)
	assert.Equal(t, EndCompleted, l.EndStatus)
}

func TestDecimateKeepsAllPointsUnderLimit(t *testing.T) {
	points := make([]SamplePoint, 100)
	out := decimate(points, 500)
	assert.Len(t, out, 100)
}

func TestDecimateCapsAtMaxPoints(t *testing.T) {
	points := make([]SamplePoint, 10000)
	for i := range points {
		points[i] = SamplePoint{RuntimeSeconds: float64(i)}
	}
	out := decimate(points, 500)
	assert.Len(t, out, 500)
	assert.Equal(t, points[0].RuntimeSeconds, out[0].RuntimeSeconds)
}

func TestSanitiseNameStripsPathSeparators(t *testing.T) {
	assert.Equal(t, "etc_passwd", sanitiseName("../etc/passwd"))
	assert.Equal(t, "unnamed", sanitiseName("   "))
	assert.Equal(t, "bisque", sanitiseName("bisque"))
}

func TestWriteThenLatestRoundTrips(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, nil, nil)

	l := Log{ProfileName: "bisque", StartWallclock: time.Now(), EndStatus: EndCompleted}
	path, err := w.Write(l)
	require.NoError(t, err)

	latestPath, ok, err := w.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, path, latestPath)

	_, err = os.Stat(latestPath)
	require.NoError(t, err)
}

func TestLatestMissingDirectoryIsNotAnError(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "missing"), nil, nil)
	_, ok, err := w.Latest()
	require.NoError(t, err)
	assert.False(t, ok)
}
