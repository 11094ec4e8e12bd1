package profilestore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProfile = `
name: bisque
temp_units: f
version: 2
start_temp: 70
segments:
  - rate: 200
    target: 1000
    hold: 0
`

func TestStoreLoadsProfilesFromDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bisque.yaml"), []byte(sampleProfile), 0o644))

	s := New(dir, nil, nil)
	defer s.Close()

	p, err := s.Get("bisque")
	require.NoError(t, err)
	assert.Equal(t, "bisque", p.Name)
}

func TestStoreGetUnknownProfileErrors(t *testing.T) {
	s := New(t.TempDir(), nil, nil)
	defer s.Close()

	_, err := s.Get("does-not-exist")
	assert.Error(t, err)
}

func TestStoreSkipsNonYAMLFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bisque.yaml"), []byte(sampleProfile), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a profile"), 0o644))

	s := New(dir, nil, nil)
	defer s.Close()

	assert.ElementsMatch(t, []string{"bisque"}, s.List())
}

func TestStorePicksUpNewFileOnReload(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil, nil)
	defer s.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bisque.yaml"), []byte(sampleProfile), 0o644))

	require.Eventually(t, func() bool {
		_, err := s.Get("bisque")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStoreInvalidProfileIsOmittedNotFatal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("not: [valid"), 0o644))
	s := New(dir, nil, nil)
	defer s.Close()

	assert.Empty(t, s.List())
}
