// Package mesh holds the shared data model for the monitor: known nodes,
// per-node conversations, and the counters the dashboard reports.
package mesh

import (
	"time"
)

// MaxMessageLen is the radio payload budget for a single text message.
// Bodies are truncated to this length before storage or send.
const MaxMessageLen = 200

// ConversationDepth bounds the per-node message history.
const ConversationDepth = 20

// NodeID is a stable device identifier, e.g. "!9e765a8c".
type NodeID string

// Node is one mesh participant and its last-seen snapshot.
type Node struct {
	ID        NodeID
	ShortName string
	LongName  string
	LastHeard time.Time

	// Signal quality from the most recent packet.
	SNR       float64
	RSSI      int
	HasSignal bool

	// Last known device metrics. Battery 101 means externally powered.
	Battery     *int
	Voltage     *float64
	ChannelUtil *float64
	AirUtil     *float64

	HopsAway int

	// Selected marks an operator-designated trusted node: exempt from
	// rate limiting and the only sender honored for keyword commands.
	Selected bool
}

// DisplayName prefers the long name, then short name, then the raw id.
func (n Node) DisplayName() string {
	if n.LongName != "" {
		return n.LongName
	}
	if n.ShortName != "" {
		return n.ShortName
	}
	return string(n.ID)
}

// Direction distinguishes sent from received messages.
type Direction int

const (
	Received Direction = iota
	Sent
)

func (d Direction) String() string {
	if d == Sent {
		return "sent"
	}
	return "recv"
}

// Message is one entry in a conversation. Immutable once created.
type Message struct {
	Direction Direction
	Time      time.Time
	Body      string
	Node      NodeID // the remote peer, for both directions

	// Signal quality, present only on received messages.
	SNR       float64
	RSSI      int
	HasSignal bool
}

// TruncateBody shortens s to MaxMessageLen bytes without splitting a rune.
func TruncateBody(s string) string {
	return truncateAt(s, MaxMessageLen)
}

func truncateAt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	last := 0
	for i := range s {
		if i > n {
			break
		}
		last = i
	}
	return s[:last]
}

// Stats are the process-lifetime packet counters.
type Stats struct {
	PacketsRx    int
	PacketsTx    int
	MessagesSeen int
}
