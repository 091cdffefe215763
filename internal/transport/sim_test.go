package transport

import (
	"sync"
	"testing"
	"time"

	"meshmon/internal/mesh"
)

func TestSim_DeliversInjectedPackets(t *testing.T) {
	s := NewSim()
	defer s.Close()

	var mu sync.Mutex
	var got []Packet
	s.Subscribe(func(p Packet) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	})

	s.Inject(Packet{From: "!aaa", Kind: KindText, Text: "hi"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Text != "hi" {
		t.Fatalf("delivered = %v", got)
	}
	if got[0].Time.IsZero() {
		t.Error("Inject should stamp packets with a time")
	}
}

func TestSim_SendRecorded(t *testing.T) {
	s := NewSim()
	defer s.Close()

	if err := s.Send("hello", "!bbb", true); err != nil {
		t.Fatalf("Send: %v", err)
	}

	sent := s.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent = %v", sent)
	}
	if sent[0].Text != "hello" || sent[0].Dest != mesh.NodeID("!bbb") || !sent[0].WantAck {
		t.Errorf("send record = %+v", sent[0])
	}
}

func TestSim_SendAfterClose(t *testing.T) {
	s := NewSim()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Send("too late", "!bbb", false); err == nil {
		t.Error("Send after Close should fail")
	}
	// Double close is a no-op.
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindText, "TEXT"},
		{KindTelemetry, "TELEMETRY"},
		{KindPosition, "POSITION"},
		{KindNodeInfo, "NODEINFO"},
		{KindUnknown, "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
