package config

import "sync"

// Store serializes access to the live configuration. Radio keywords
// persist settings from the transport delivery goroutine while the
// operator menu edits the same document, so every read and write goes
// through the store's lock and each save encodes a consistent snapshot.
type Store struct {
	mu   sync.Mutex
	cfg  *Config
	path string
}

// NewStore wraps cfg, persisting to path (DefaultPath when empty) on
// every Update. cfg must not be touched directly afterwards.
func NewStore(cfg *Config, path string) *Store {
	return &Store{cfg: cfg, path: path}
}

// Path returns the backing file path as given to NewStore.
func (s *Store) Path() string { return s.path }

// Snapshot returns a copy of the current configuration.
func (s *Store) Snapshot() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *s.cfg
	out.SelectedNodes = append([]string(nil), s.cfg.SelectedNodes...)
	return out
}

// Update applies fn under the lock and saves the result. The in-memory
// state keeps fn's changes even when the save fails.
func (s *Store) Update(fn func(*Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.cfg)
	return s.cfg.Save(s.path)
}
