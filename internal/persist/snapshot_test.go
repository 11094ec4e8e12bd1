package persist

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSnapshotThenTryResumeRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	s := NewStore(path, nil, nil)

	want := Snapshot{
		ProfileName:        "bisque",
		Lifecycle:          "RUNNING",
		SegmentIndex:       2,
		SegmentPhase:       "HOLD",
		SegmentStartTemp:   1000,
		HoldElapsedSeconds: 42.5,
		AccumulatedCost:    1.23,
		Wallclock:          time.Now().UTC().Truncate(time.Second),
	}
	s.WriteSnapshot(want)

	got, ok, err := s.TryResume()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.ProfileName, got.ProfileName)
	assert.Equal(t, want.Lifecycle, got.Lifecycle)
	assert.Equal(t, want.SegmentIndex, got.SegmentIndex)
	assert.Equal(t, want.SegmentPhase, got.SegmentPhase)
	assert.Equal(t, want.AccumulatedCost, got.AccumulatedCost)
	assert.Equal(t, CurrentVersion, got.Version)
}

func TestTryResumeMissingFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.yaml")
	s := NewStore(path, nil, nil)
	_, ok, err := s.TryResume()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteRemovesSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	s := NewStore(path, nil, nil)
	s.WriteSnapshot(Snapshot{ProfileName: "x"})
	s.Delete()
	_, ok, err := s.TryResume()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteOnMissingFileDoesNotError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.yaml")
	s := NewStore(path, nil, nil)
	s.Delete() // must not panic or log an unexpected error
}
