// Package scheduler drives the periodic telemetry reports sent to the
// operator's selected nodes.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"meshmon/internal/config"
	"meshmon/internal/events"
	"meshmon/internal/mesh"
	"meshmon/internal/sensor"
)

// SendFunc transmits one report to one recipient. Implementations send
// over the gateway and record the message in the conversation store.
type SendFunc func(text string, dest mesh.NodeID) error

// Status is a snapshot of the scheduler for the dashboard.
type Status struct {
	Enabled     bool
	IntervalSec int
	NextInSec   int
	LastSend    time.Time
	SendCount   int
}

// Scheduler counts down in one-second ticks and sends a telemetry
// report to every selected node when the countdown reaches zero. The
// first report after enabling goes out immediately.
type Scheduler struct {
	mu        sync.Mutex
	enabled   bool
	interval  int // seconds, within [config.MinInterval, config.MaxInterval]
	countdown int
	lastSend  time.Time
	sendCount int

	registry *mesh.Registry
	sampler  sensor.Sampler
	send     SendFunc
	feed     *events.Feed
	persist  func(enabled bool, intervalSec int)
	now      func() time.Time
	log      *slog.Logger
}

// New creates a scheduler in the disabled state. persist is called
// after every enable/disable/interval change so the setting survives
// restarts; it may be nil.
func New(registry *mesh.Registry, sampler sensor.Sampler, send SendFunc, feed *events.Feed, persist func(bool, int), logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if persist == nil {
		persist = func(bool, int) {}
	}
	return &Scheduler{
		interval: config.ClampInterval(0),
		registry: registry,
		sampler:  sampler,
		send:     send,
		feed:     feed,
		persist:  persist,
		now:      time.Now,
		log:      logger,
	}
}

// Run ticks once per second until ctx is done. The immediate first
// report is Enable's job, so starting the loop never double-sends.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return
	}
	s.countdown--
	fire := s.countdown <= 0
	if fire {
		s.countdown = s.interval
	}
	s.mu.Unlock()

	if fire {
		s.sendAll()
	}
}

// Enable turns auto-send on. The first report is sent immediately.
func (s *Scheduler) Enable() {
	s.mu.Lock()
	if s.enabled {
		s.mu.Unlock()
		return
	}
	s.enabled = true
	s.countdown = s.interval
	interval := s.interval
	s.mu.Unlock()

	s.persist(true, interval)
	s.feed.Emitf("auto-send enabled (every %ds)", interval)
	go s.sendAll()
}

// Disable turns auto-send off.
func (s *Scheduler) Disable() {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return
	}
	s.enabled = false
	interval := s.interval
	s.mu.Unlock()

	s.persist(false, interval)
	s.feed.Emitf("auto-send disabled")
}

// SetInterval changes the send interval, clamped to the allowed range,
// and restarts the countdown. Returns the applied value.
func (s *Scheduler) SetInterval(sec int) int {
	sec = config.ClampInterval(sec)

	s.mu.Lock()
	s.interval = sec
	s.countdown = sec
	enabled := s.enabled
	s.mu.Unlock()

	s.persist(enabled, sec)
	s.feed.Emitf("auto-send interval set to %ds", sec)
	return sec
}

// SendNow fires one round of reports regardless of the countdown.
func (s *Scheduler) SendNow() {
	go s.sendAll()
}

// Status returns a snapshot for display.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.countdown
	if !s.enabled {
		next = 0
	}
	return Status{
		Enabled:     s.enabled,
		IntervalSec: s.interval,
		NextInSec:   next,
		LastSend:    s.lastSend,
		SendCount:   s.sendCount,
	}
}

// sendAll composes and sends one report per selected node. Sends run
// outside the scheduler lock; a slow radio must not stall the ticker.
func (s *Scheduler) sendAll() {
	recipients := s.registry.Selected()
	if len(recipients) == 0 {
		s.log.Debug("auto-send fired with no selected nodes")
		return
	}

	snap, ok := s.sampler.Latest()
	now := s.now()

	sent := 0
	for _, id := range recipients {
		report := s.compose(id, snap, ok, now)
		if err := s.send(report, id); err != nil {
			s.log.Warn("telemetry send failed", "dest", id, "err", err)
			s.feed.Emitf("telemetry to %s failed: %v", id, err)
			continue
		}
		sent++
	}

	s.mu.Lock()
	s.lastSend = now
	s.sendCount++
	s.mu.Unlock()

	s.feed.Emitf("telemetry sent to %d/%d selected nodes", sent, len(recipients))
}

// compose builds the single-line pipe-separated report for one
// recipient. Missing readings are simply omitted; an empty sensor cache
// yields a "no telemetry" marker instead of a bare timestamp.
func (s *Scheduler) compose(dest mesh.NodeID, snap sensor.Snapshot, haveSnap bool, now time.Time) string {
	parts := []string{now.Format("15:04:05")}

	node, haveNode := s.registry.Get(dest)
	if haveNode && node.HopsAway > 0 {
		parts = append(parts, fmt.Sprintf("Hops:%d", node.HopsAway))
	}

	metrics := 0
	if haveSnap {
		if snap.Temperature != nil {
			parts = append(parts, fmt.Sprintf("T:%.1fF", snap.TemperatureF()))
			metrics++
		}
		if snap.Humidity != nil {
			parts = append(parts, fmt.Sprintf("H:%.1f%%", *snap.Humidity))
			metrics++
		}
		if snap.Pressure != nil {
			parts = append(parts, fmt.Sprintf("P:%.1fhPa", *snap.Pressure))
			metrics++
		}
	}

	if haveNode && node.HasSignal {
		parts = append(parts, fmt.Sprintf("SNR:%.1fdB", node.SNR))
		parts = append(parts, fmt.Sprintf("RSSI:%ddBm", node.RSSI))
	}

	if haveSnap {
		if snap.Battery != nil {
			// 101 is the radio's marker for external power.
			if *snap.Battery > 100 {
				parts = append(parts, "Bat:PWR")
			} else {
				parts = append(parts, fmt.Sprintf("Bat:%d%%", *snap.Battery))
			}
			metrics++
		}
		if snap.Voltage != nil {
			parts = append(parts, fmt.Sprintf("V:%.2f", *snap.Voltage))
			metrics++
		}
		if snap.ChannelUtil != nil {
			parts = append(parts, fmt.Sprintf("CH:%.1f%%", *snap.ChannelUtil))
			metrics++
		}
		if snap.AirUtil != nil {
			parts = append(parts, fmt.Sprintf("Air:%.1f%%", *snap.AirUtil))
			metrics++
		}
	}

	if metrics == 0 {
		parts = append(parts, "no telemetry yet")
	}

	parts = append(parts, fmt.Sprintf("Nodes:%d", s.registry.Count()))

	return mesh.TruncateBody(strings.Join(parts, " | "))
}
