// Package events provides the activity feed: a bounded ring of
// human-readable lines describing what the agent is doing. The last
// ringSize lines are retained for the dashboard and the menu; the full
// stream goes to slog.
package events

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const ringSize = 20

// Entry is one activity line.
type Entry struct {
	Time time.Time
	Line string
}

func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s", e.Time.Format("15:04:05"), e.Line)
}

// Feed keeps the display ring of recent activity lines.
type Feed struct {
	mu   sync.Mutex
	ring []Entry

	log *slog.Logger
	now func() time.Time
}

// NewFeed creates a feed logging through logger (nil for slog.Default).
func NewFeed(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{log: logger, now: time.Now}
}

// Emitf formats and emits one activity line.
func (f *Feed) Emitf(format string, args ...any) {
	f.emit(Entry{Time: f.now(), Line: fmt.Sprintf(format, args...)})
}

func (f *Feed) emit(e Entry) {
	f.log.Info(e.Line)

	f.mu.Lock()
	f.ring = append(f.ring, e)
	if len(f.ring) > ringSize {
		f.ring = f.ring[len(f.ring)-ringSize:]
	}
	f.mu.Unlock()
}

// Recent returns a copy of the display ring, oldest first.
func (f *Feed) Recent() []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Entry(nil), f.ring...)
}
