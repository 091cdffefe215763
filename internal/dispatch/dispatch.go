// Package dispatch routes decoded packets from the gateway into the
// node registry, the sensor cache, the conversation store and the
// command interpreter.
package dispatch

import (
	"log/slog"
	"time"

	"meshmon/internal/events"
	"meshmon/internal/mesh"
	"meshmon/internal/sensor"
	"meshmon/internal/transport"
)

// MessageHandler consumes inbound text after it has been recorded.
type MessageHandler interface {
	Handle(from mesh.NodeID, body string)
}

// Dispatcher is the single ingestion point for inbound packets. It is
// registered as the gateway's handler and runs on the gateway's
// delivery goroutine.
type Dispatcher struct {
	registry *mesh.Registry
	conv     *mesh.Conversations
	sensors  *sensor.Cache
	handler  MessageHandler
	feed     *events.Feed
	log      *slog.Logger

	// onNew fires once per node on first contact, after the registry
	// entry exists. Runs on the delivery goroutine.
	onNew func(mesh.NodeID)
	seen  map[mesh.NodeID]struct{}
}

// New wires a dispatcher. handler may be nil (text is stored but not
// interpreted).
func New(registry *mesh.Registry, conv *mesh.Conversations, sensors *sensor.Cache, handler MessageHandler, feed *events.Feed, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		conv:     conv,
		sensors:  sensors,
		handler:  handler,
		feed:     feed,
		log:      logger,
		seen:     make(map[mesh.NodeID]struct{}),
	}
}

// OnNewNode registers a first-contact callback. Must be called before
// the dispatcher is subscribed to a gateway.
func (d *Dispatcher) OnNewNode(fn func(mesh.NodeID)) {
	d.onNew = fn
}

// OnPacket processes one inbound packet. A panic in handling one packet
// is contained; the radio keeps delivering.
func (d *Dispatcher) OnPacket(p transport.Packet) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic handling packet", "from", p.From, "kind", p.Kind.String(), "panic", r)
		}
	}()

	if p.Time.IsZero() {
		p.Time = time.Now()
	}

	d.registry.CountRx()
	d.registry.Upsert(p.From, observation(p))

	if _, ok := d.seen[p.From]; !ok {
		d.seen[p.From] = struct{}{}
		if d.onNew != nil {
			d.onNew(p.From)
		}
	}

	switch p.Kind {
	case transport.KindText:
		d.onText(p)
	case transport.KindTelemetry:
		d.onTelemetry(p)
	case transport.KindNodeInfo:
		d.feed.Emitf("NODEINFO from %s (%s)", p.From, p.LongName)
	case transport.KindPosition:
		d.log.Debug("position update", "from", p.From)
	default:
		d.log.Debug("unclassified packet", "from", p.From)
	}
}

// onText records the message and then hands it to the interpreter. The
// store happens first so any reply lands after the inbound message in
// the conversation history.
func (d *Dispatcher) onText(p transport.Packet) {
	d.registry.CountMessage()
	d.conv.AppendReceived(p.From, p.Text, p.SNR, p.RSSI, p.HasSignal, p.Time)

	if p.HasSignal {
		d.feed.Emitf("MSG from %s: %s (SNR %.1fdB)", d.displayName(p.From), mesh.TruncateBody(p.Text), p.SNR)
	} else {
		d.feed.Emitf("MSG from %s: %s", d.displayName(p.From), mesh.TruncateBody(p.Text))
	}

	if d.handler != nil {
		d.handler.Handle(p.From, p.Text)
	}
}

func (d *Dispatcher) onTelemetry(p transport.Packet) {
	if p.Device != nil {
		d.sensors.ObserveDevice(p.Device.Battery, p.Device.Voltage, p.Device.ChannelUtil, p.Device.AirUtil)
	}
	if p.Env != nil {
		d.sensors.ObserveEnvironment(p.Env.Temperature, p.Env.Humidity, p.Env.Pressure)
	}
	d.feed.Emitf("TELEMETRY from %s", d.displayName(p.From))
}

func (d *Dispatcher) displayName(id mesh.NodeID) string {
	if n, ok := d.registry.Get(id); ok {
		return n.DisplayName()
	}
	return string(id)
}

// observation projects packet fields onto a registry update.
func observation(p transport.Packet) mesh.Observation {
	obs := mesh.Observation{
		ShortName: p.ShortName,
		LongName:  p.LongName,
		SNR:       p.SNR,
		RSSI:      p.RSSI,
		HasSignal: p.HasSignal,
		Time:      p.Time,
	}
	if p.HopsAway > 0 {
		hops := p.HopsAway
		obs.HopsAway = &hops
	}
	if p.Kind == transport.KindTelemetry && p.Device != nil {
		obs.Battery = p.Device.Battery
		obs.Voltage = p.Device.Voltage
		obs.ChannelUtil = p.Device.ChannelUtil
		obs.AirUtil = p.Device.AirUtil
	}
	return obs
}
