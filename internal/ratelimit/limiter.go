// Package ratelimit enforces the per-node assistant message budget with
// a sliding window.
package ratelimit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"meshmon/internal/mesh"
)

// Budget for non-exempt nodes.
const (
	Window = time.Hour
	Limit  = 50
)

// Limiter tracks assistant request timestamps per node. Nodes the
// exempt predicate matches (the operator's selected nodes) bypass the
// budget entirely; their requests are not recorded.
type Limiter struct {
	mu     sync.Mutex
	events map[mesh.NodeID][]time.Time
	exempt func(mesh.NodeID) bool
	now    func() time.Time
}

// persistedEvents is the JSON structure saved across restarts.
type persistedEvents struct {
	Events map[mesh.NodeID][]time.Time `json:"events"`
}

// NewLimiter creates a limiter. exempt may be nil (no exemptions).
func NewLimiter(exempt func(mesh.NodeID) bool) *Limiter {
	if exempt == nil {
		exempt = func(mesh.NodeID) bool { return false }
	}
	return &Limiter{
		events: make(map[mesh.NodeID][]time.Time),
		exempt: exempt,
		now:    time.Now,
	}
}

// Allow reports whether a request from id fits the budget, recording it
// when it does. Exempt nodes always pass.
func (l *Limiter) Allow(id mesh.NodeID) bool {
	if l.exempt(id) {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := l.prune(id, now)
	if len(recent) >= Limit {
		return false
	}
	l.events[id] = append(recent, now)
	return true
}

// Remaining returns how many requests id has left in the current window.
func (l *Limiter) Remaining(id mesh.NodeID) int {
	if l.exempt(id) {
		return Limit
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.prune(id, l.now())
	l.events[id] = recent
	return Limit - len(recent)
}

// prune drops timestamps older than Window. Caller holds the lock.
func (l *Limiter) prune(id mesh.NodeID, now time.Time) []time.Time {
	cutoff := now.Add(-Window)
	old := l.events[id]
	i := 0
	for i < len(old) && !old[i].After(cutoff) {
		i++
	}
	return old[i:]
}

// Save persists the event history to dir/rate_limits.json so restarts
// do not reset the budget.
func (l *Limiter) Save(dir string) error {
	l.mu.Lock()
	snapshot := make(map[mesh.NodeID][]time.Time, len(l.events))
	for id, ts := range l.events {
		snapshot[id] = append([]time.Time(nil), ts...)
	}
	l.mu.Unlock()

	data, err := json.MarshalIndent(persistedEvents{Events: snapshot}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode rate limits: %w", err)
	}

	path := filepath.Join(dir, "rate_limits.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write rate limits: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace rate limits: %w", err)
	}
	return nil
}

// Load restores event history saved by Save. Missing file is fine.
func (l *Limiter) Load(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, "rate_limits.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var p persistedEvents
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("parse rate limits: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for id, ts := range p.Events {
		l.events[id] = ts
		l.events[id] = l.prune(id, now)
	}
	return nil
}
