// Package transport defines the boundary to the radio link. The core
// consumes already-decoded packets; framing, protobuf decoding and DM
// encryption (PKC) belong to the gateway implementation.
package transport

import (
	"fmt"
	"time"

	"meshmon/internal/mesh"
)

// Kind classifies a decoded packet by its application port.
type Kind int

const (
	KindUnknown Kind = iota
	KindText
	KindTelemetry
	KindPosition
	KindNodeInfo
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "TEXT"
	case KindTelemetry:
		return "TELEMETRY"
	case KindPosition:
		return "POSITION"
	case KindNodeInfo:
		return "NODEINFO"
	default:
		return "UNKNOWN"
	}
}

// DeviceMetrics is the device half of a telemetry packet.
type DeviceMetrics struct {
	Battery     *int
	Voltage     *float64
	ChannelUtil *float64
	AirUtil     *float64
}

// EnvMetrics is the environment-sensor half of a telemetry packet.
type EnvMetrics struct {
	Temperature *float64
	Humidity    *float64
	Pressure    *float64
}

// Packet is one decoded inbound packet as delivered by the gateway.
type Packet struct {
	From mesh.NodeID
	To   mesh.NodeID
	Kind Kind
	Time time.Time

	// Text payload, present when Kind is KindText.
	Text string

	// Signal quality of the receive.
	SNR       float64
	RSSI      int
	HasSignal bool

	// Telemetry payloads, present when Kind is KindTelemetry.
	Device *DeviceMetrics
	Env    *EnvMetrics

	// Node identity, present when Kind is KindNodeInfo.
	ShortName string
	LongName  string

	HopsAway int
}

// Handler receives decoded packets. It is invoked from the gateway's
// delivery goroutine, concurrently with the rest of the program.
type Handler func(Packet)

// Gateway is the radio link. Implementations own reconnect and
// port-lock recovery; the core does not retry sends.
type Gateway interface {
	// Send transmits text as a direct message to dest. wantAck requests
	// a single link-layer acknowledgement; no further retries.
	Send(text string, dest mesh.NodeID, wantAck bool) error

	// Subscribe registers the inbound packet handler. Must be called
	// before packets can be delivered.
	Subscribe(h Handler)

	// Nodes returns the gateway's node database snapshot, if it keeps
	// one. May be empty for gateways without a local node table.
	Nodes() []mesh.Node

	// Close releases the link.
	Close() error
}

// Error is a transport-layer failure. The core surfaces it to the
// operator log; reconnecting is the gateway's job.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
