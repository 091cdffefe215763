// Package sensor caches the most recent telemetry readings heard over
// the mesh. Sampling is best effort: the rest of the program tolerates
// an empty cache and reports "no telemetry".
package sensor

import (
	"sync"
	"time"
)

// mergeWindow is how close two telemetry packets must arrive to be
// folded into one snapshot. Device and environment metrics come in
// separate packets a moment apart.
const mergeWindow = 5 * time.Second

// Snapshot is the latest combined telemetry reading. Nil fields were
// not present in any recent packet.
type Snapshot struct {
	Time time.Time

	// Environment metrics (BME280 class sensors).
	Temperature *float64 // Celsius
	Humidity    *float64 // percent
	Pressure    *float64 // hPa

	// Device metrics.
	Battery     *int // percent; 101 means externally powered
	Voltage     *float64
	ChannelUtil *float64
	AirUtil     *float64
}

// HasEnvironment reports whether any environment reading is present.
func (s Snapshot) HasEnvironment() bool {
	return s.Temperature != nil || s.Humidity != nil || s.Pressure != nil
}

// TemperatureF converts the Celsius reading for display.
func (s Snapshot) TemperatureF() float64 {
	if s.Temperature == nil {
		return 0
	}
	return *s.Temperature*9/5 + 32
}

// Sampler is the read side used by the scheduler and keyword replies.
type Sampler interface {
	Latest() (Snapshot, bool)
}

// Cache accumulates telemetry observations and merges readings that
// arrive within mergeWindow of each other.
type Cache struct {
	mu     sync.Mutex
	latest Snapshot
	ok     bool
	now    func() time.Time
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{now: time.Now}
}

// ObserveDevice records device metrics from a telemetry packet.
func (c *Cache) ObserveDevice(battery *int, voltage, channelUtil, airUtil *float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.mergeTarget()
	if battery != nil {
		s.Battery = battery
	}
	if voltage != nil {
		s.Voltage = voltage
	}
	if channelUtil != nil {
		s.ChannelUtil = channelUtil
	}
	if airUtil != nil {
		s.AirUtil = airUtil
	}
	c.latest = s
	c.ok = true
}

// ObserveEnvironment records environment metrics from a telemetry packet.
func (c *Cache) ObserveEnvironment(temperature, humidity, pressure *float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.mergeTarget()
	if temperature != nil {
		s.Temperature = temperature
	}
	if humidity != nil {
		s.Humidity = humidity
	}
	if pressure != nil {
		s.Pressure = pressure
	}
	c.latest = s
	c.ok = true
}

// mergeTarget returns the snapshot to update: the current one when it is
// fresh enough, otherwise a new empty one. Caller holds the lock.
func (c *Cache) mergeTarget() Snapshot {
	now := c.now()
	if c.ok && now.Sub(c.latest.Time) < mergeWindow {
		s := c.latest
		s.Time = now
		return s
	}
	return Snapshot{Time: now}
}

// Latest returns the most recent snapshot, if any reading has arrived.
func (c *Cache) Latest() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest, c.ok
}
