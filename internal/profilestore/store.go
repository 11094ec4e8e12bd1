// Package profilestore implements a directory-backed profile catalogue
// (SPEC_FULL.md's "supplemented feature"): it lists, validates, and
// caches every profile file in the configured directory, refreshing
// the cache on fsnotify events so a profile dropped into the directory
// while the daemon is running becomes visible without a restart.
package profilestore

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"module/internal/profile"
)

// Store caches parsed profiles keyed by name.
type Store struct {
	dir     string
	watcher *fsnotify.Watcher
	infoLog *log.Logger
	errLog  *log.Logger

	mu       sync.RWMutex
	byName   map[string]*profile.Profile
	loadErrs map[string]error
}

// New constructs a Store rooted at dir and performs an initial load.
// If fsnotify.NewWatcher fails (e.g. inotify instances exhausted), the
// Store degrades to a load-once catalogue and logs the cause; this
// never fails Store construction outright.
func New(dir string, infoLog, errLog *log.Logger) *Store {
	s := &Store{
		dir:      dir,
		infoLog:  infoLog,
		errLog:   errLog,
		byName:   make(map[string]*profile.Profile),
		loadErrs: make(map[string]error),
	}
	s.reload()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		if errLog != nil {
			errLog.Printf("profilestore: fsnotify unavailable, falling back to load-once: %s\n", err.Error())
		}
		return s
	}
	if err := os.MkdirAll(dir, 0o755); err == nil {
		_ = watcher.Add(dir)
	}
	s.watcher = watcher
	go s.watch()
	return s
}

func (s *Store) watch() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				s.reload()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			if s.errLog != nil {
				s.errLog.Printf("profilestore: watch error: %s\n", err.Error())
			}
		}
	}
}

func (s *Store) reload() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if s.errLog != nil {
			s.errLog.Printf("profilestore: failed to list %s: %s\n", s.dir, err.Error())
		}
		return
	}
	byName := make(map[string]*profile.Profile)
	loadErrs := make(map[string]error)
	for _, entry := range entries {
		if entry.IsDir() || !isProfileFile(entry.Name()) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			loadErrs[entry.Name()] = err
			continue
		}
		prof, err := profile.Load(data)
		if err != nil {
			loadErrs[entry.Name()] = err
			if s.errLog != nil {
				s.errLog.Printf("profilestore: failed to load %s: %s\n", path, err.Error())
			}
			continue
		}
		byName[prof.Name] = prof
	}
	s.mu.Lock()
	s.byName = byName
	s.loadErrs = loadErrs
	s.mu.Unlock()
	if s.infoLog != nil {
		s.infoLog.Printf("profilestore: loaded %d profile(s) from %s\n", len(byName), s.dir)
	}
}

func isProfileFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// Get returns the named profile (§4.2, §6.1). Implements
// oven.ProfileSource.
func (s *Store) Get(name string) (*profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("profilestore: no profile named %q", name)
	}
	return p, nil
}

// List returns the names of every currently loaded profile, for the
// GET /profiles command surface.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	return names
}

// Close stops the watcher goroutine, if one was started.
func (s *Store) Close() {
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
}
