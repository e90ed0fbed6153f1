// Package cache persists the mapping from cache keys to artifact filenames
// as a single JSON document next to the artifacts themselves. The mapping is
// an optimization, not a source of truth: disk reconciliation recovers any
// entry the cache loses.
package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileName is the cache document's name inside the download directory.
const FileName = ".cache.json"

// Store is a write-through JSON cache mapping "<id>_<kind>" keys to
// filenames in the download directory. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	dir     string
	path    string
	entries map[string]string
	logger  *slog.Logger
}

// NewStore loads the cache document from dir, starting empty when the file
// is missing or corrupt.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		dir:     dir,
		path:    filepath.Join(dir, FileName),
		entries: make(map[string]string),
		logger:  logger,
	}

	s.load()

	return s
}

// Lookup returns the filename recorded for key, confirming the file is
// still present on disk. A recorded entry whose file is gone is a miss; the
// dangling name is never returned.
func (s *Store) Lookup(key string) (string, bool) {
	s.mu.RLock()
	name, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return "", false
	}

	if _, err := os.Stat(filepath.Join(s.dir, name)); err != nil {
		return "", false
	}

	return name, true
}

// Put records key -> filename and immediately rewrites the cache document.
// Persistence failures are logged, never raised.
func (s *Store) Put(key, filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = filename

	if err := s.persistLocked(); err != nil {
		s.logger.Warn("failed to persist cache", "path", s.path, "err", err)
	}
}

// Clear drops every entry and rewrites the (now empty) cache document.
// Artifacts on disk are untouched.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]string)

	if err := s.persistLocked(); err != nil {
		s.logger.Warn("failed to persist cache", "path", s.path, "err", err)
	}
}

// Snapshot returns a copy of the full mapping for diagnostics.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}

	return out
}

// Len reports the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read cache file, starting empty", "path", s.path, "err", err)
		}

		return
	}

	entries := make(map[string]string)
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warn("cache file is corrupt, starting empty", "path", s.path, "err", err)

		return
	}

	s.entries = entries
}

func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	return nil
}
