package transport

import (
	"errors"
	"sync"
	"time"

	"meshmon/internal/mesh"
)

// Sim is an in-memory gateway for --sim mode and tests. Packets
// injected with Inject are delivered on a dedicated goroutine, matching
// the callback threading of a real serial gateway.
type Sim struct {
	mu      sync.Mutex
	handler Handler
	sent    []SimSent
	closed  bool

	inbox chan Packet
	done  chan struct{}
}

// SimSent records one outbound send for inspection.
type SimSent struct {
	Text    string
	Dest    mesh.NodeID
	WantAck bool
	Time    time.Time
}

// NewSim starts the delivery goroutine and returns the gateway.
func NewSim() *Sim {
	s := &Sim{
		inbox: make(chan Packet, 64),
		done:  make(chan struct{}),
	}
	go s.deliver()
	return s
}

func (s *Sim) deliver() {
	for {
		select {
		case p := <-s.inbox:
			s.mu.Lock()
			h := s.handler
			s.mu.Unlock()
			if h != nil {
				h(p)
			}
		case <-s.done:
			return
		}
	}
}

// Inject queues a packet for asynchronous delivery to the subscriber.
func (s *Sim) Inject(p Packet) {
	if p.Time.IsZero() {
		p.Time = time.Now()
	}
	select {
	case s.inbox <- p:
	case <-s.done:
	}
}

// Send records the outbound message.
func (s *Sim) Send(text string, dest mesh.NodeID, wantAck bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &Error{Op: "send", Err: errors.New("gateway closed")}
	}
	s.sent = append(s.sent, SimSent{Text: text, Dest: dest, WantAck: wantAck, Time: time.Now()})
	return nil
}

// Subscribe registers the inbound handler.
func (s *Sim) Subscribe(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// Nodes returns nothing; the sim keeps no node database of its own.
func (s *Sim) Nodes() []mesh.Node { return nil }

// Close stops delivery.
func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	return nil
}

// Sent returns a copy of all recorded sends.
func (s *Sim) Sent() []SimSent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SimSent(nil), s.sent...)
}
