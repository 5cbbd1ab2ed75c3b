// Package storage provides two scoped JSON key-value stores: a durable one
// that survives restarts and an ephemeral one scoped to the terminal
// session. Read and write failures are logged and treated as cache misses;
// callers never see storage errors.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Store is a directory-backed key-value store holding one JSON file per key.
type Store struct {
	dir    string
	logger *slog.Logger
}

// New creates a store rooted at dir. The directory is created lazily on the
// first Set.
func New(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

// NewSession creates the session-scoped store. The scope is keyed by the
// SCRIBE_SESSION env var when set, falling back to the parent process id,
// so two terminals never share an active-job pointer.
func NewSession(baseDir string, logger *slog.Logger) *Store {
	id := os.Getenv("SCRIBE_SESSION")
	if id == "" {
		id = fmt.Sprintf("ppid-%d", os.Getppid())
	}
	return New(filepath.Join(baseDir, "sessions", id), logger)
}

// Get unmarshals the value at key into v. It returns false on a missing
// key, unreadable file, or corrupt JSON.
func (s *Store) Get(key string, v any) bool {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("storage read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("storage entry corrupt, discarding", "key", key, "error", err)
		s.Remove(key)
		return false
	}
	return true
}

// Set marshals v and writes it under key.
func (s *Store) Set(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("storage marshal failed", "key", key, "error", err)
		return
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.logger.Warn("storage mkdir failed", "dir", s.dir, "error", err)
		return
	}
	if err := os.WriteFile(s.path(key), data, 0o644); err != nil {
		s.logger.Warn("storage write failed", "key", key, "error", err)
	}
}

// Remove deletes the entry at key. Missing entries are not an error.
func (s *Store) Remove(key string) {
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("storage remove failed", "key", key, "error", err)
	}
}

// Rename moves the entry from oldKey to newKey, leaving exactly one entry
// under the new key and none under the old one.
func (s *Store) Rename(oldKey, newKey string) {
	if err := os.Rename(s.path(oldKey), s.path(newKey)); err != nil {
		s.logger.Warn("storage rename failed", "from", oldKey, "to", newKey, "error", err)
	}
}

// Has reports whether an entry exists under key.
func (s *Store) Has(key string) bool {
	_, err := os.Stat(s.path(key))
	return err == nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, sanitize(key)+".json")
}

// sanitize keeps keys filesystem-safe.
func sanitize(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, key)
}
