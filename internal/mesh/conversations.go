package mesh

import (
	"sync"
	"time"
)

// Conversations stores the bounded per-node message history. A
// conversation is created lazily on first message and holds at most
// ConversationDepth entries, oldest evicted first.
type Conversations struct {
	mu     sync.Mutex
	byNode map[NodeID][]Message
}

// NewConversations returns an empty store.
func NewConversations() *Conversations {
	return &Conversations{byNode: make(map[NodeID][]Message)}
}

// AppendReceived records an inbound message from a node. The body is
// truncated to MaxMessageLen. Returns the stored message.
func (c *Conversations) AppendReceived(from NodeID, body string, snr float64, rssi int, hasSignal bool, at time.Time) Message {
	msg := Message{
		Direction: Received,
		Time:      at,
		Body:      TruncateBody(body),
		Node:      from,
		SNR:       snr,
		RSSI:      rssi,
		HasSignal: hasSignal,
	}
	c.append(from, msg)
	return msg
}

// AppendSent records an outbound message to a node after a successful
// transport call. The body is truncated to MaxMessageLen.
func (c *Conversations) AppendSent(to NodeID, body string, at time.Time) Message {
	msg := Message{
		Direction: Sent,
		Time:      at,
		Body:      TruncateBody(body),
		Node:      to,
	}
	c.append(to, msg)
	return msg
}

func (c *Conversations) append(id NodeID, msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := append(c.byNode[id], msg)
	if len(msgs) > ConversationDepth {
		msgs = msgs[len(msgs)-ConversationDepth:]
	}
	c.byNode[id] = msgs
}

// History returns a copy of the conversation with id, oldest first.
func (c *Conversations) History(id NodeID) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.byNode[id]...)
}

// Clear drops the conversation with id.
func (c *Conversations) Clear(id NodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byNode, id)
}

// Recent returns up to limit messages across all conversations, newest
// last, for the dashboard message panel.
func (c *Conversations) Recent(limit int) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var all []Message
	for _, msgs := range c.byNode {
		all = append(all, msgs...)
	}
	sortMessages(all)
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all
}

func sortMessages(msgs []Message) {
	// Insertion sort: conversation slices are already ordered and the
	// merged set shown is small.
	for i := 1; i < len(msgs); i++ {
		for j := i; j > 0 && msgs[j].Time.Before(msgs[j-1].Time); j-- {
			msgs[j], msgs[j-1] = msgs[j-1], msgs[j]
		}
	}
}
