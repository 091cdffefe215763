package command

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"meshmon/internal/events"
	"meshmon/internal/mesh"
	"meshmon/internal/sensor"
)

var errTest = errors.New("test failure")

type fakeAutoSend struct {
	enabled  bool
	interval int
}

func (f *fakeAutoSend) Enable()  { f.enabled = true }
func (f *fakeAutoSend) Disable() { f.enabled = false }
func (f *fakeAutoSend) SetInterval(sec int) int {
	if sec < 30 {
		sec = 30
	}
	if sec > 3600 {
		sec = 3600
	}
	f.interval = sec
	return sec
}

type fakeChatbot struct {
	enabled  bool
	model    string
	messages []string
	loadErr  error
}

func (f *fakeChatbot) HandleMessage(from mesh.NodeID, body string) error {
	f.messages = append(f.messages, body)
	return nil
}

func (f *fakeChatbot) Enable(modelPath string) error {
	if f.loadErr != nil {
		return f.loadErr
	}
	f.enabled = true
	f.model = modelPath
	return nil
}

func (f *fakeChatbot) Disable()      { f.enabled = false }
func (f *fakeChatbot) Enabled() bool { return f.enabled }

type fakeSampler struct {
	snap sensor.Snapshot
	ok   bool
}

func (f fakeSampler) Latest() (sensor.Snapshot, bool) { return f.snap, f.ok }

type replies struct {
	texts []string
}

func (r *replies) send(text string, dest mesh.NodeID) error {
	r.texts = append(r.texts, text)
	return nil
}

type fixture struct {
	in      *Interpreter
	reg     *mesh.Registry
	auto    *fakeAutoSend
	chatbot *fakeChatbot
	out     *replies
}

func newFixture(t *testing.T, selected []mesh.NodeID, samp sensor.Sampler) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		reg:     mesh.NewRegistry(selected),
		auto:    &fakeAutoSend{interval: 300},
		chatbot: &fakeChatbot{},
		out:     &replies{},
	}
	if samp == nil {
		samp = fakeSampler{}
	}
	f.in = New(f.reg, samp, f.auto, f.chatbot, "model.gguf", f.out.send, events.NewFeed(logger), logger)
	return f
}

func TestHandle_StopStart(t *testing.T) {
	f := newFixture(t, []mesh.NodeID{"!op"}, nil)
	f.auto.enabled = true

	f.in.Handle("!op", "stop")
	if f.auto.enabled {
		t.Error("STOP did not disable auto-send")
	}
	f.in.Handle("!op", "  START ")
	if !f.auto.enabled {
		t.Error("START did not enable auto-send")
	}
	if len(f.out.texts) != 2 {
		t.Fatalf("got %d replies, want exactly one per command", len(f.out.texts))
	}
	if len(f.chatbot.messages) != 0 {
		t.Errorf("keywords leaked to chatbot: %v", f.chatbot.messages)
	}
}

func TestHandle_FreqClamped(t *testing.T) {
	tests := []struct {
		body string
		want int
	}{
		{"FREQ45", 45},
		{"freq15", 30},
		{"FREQ99999", 3600},
		{"FREQ3600", 3600},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			f := newFixture(t, []mesh.NodeID{"!op"}, nil)
			f.in.Handle("!op", tt.body)
			if f.auto.interval != tt.want {
				t.Errorf("interval = %d, want %d", f.auto.interval, tt.want)
			}
			if len(f.out.texts) != 1 || !strings.Contains(f.out.texts[0], "interval set") {
				t.Errorf("replies = %v, want one confirmation", f.out.texts)
			}
		})
	}
}

func TestHandle_NonSelectedKeywordSilentlyIgnored(t *testing.T) {
	f := newFixture(t, []mesh.NodeID{"!op"}, nil)
	f.auto.enabled = true

	f.in.Handle("!stranger", "STOP")

	if !f.auto.enabled {
		t.Error("non-selected STOP changed scheduler state")
	}
	if len(f.out.texts) != 0 {
		t.Errorf("non-selected keyword got a reply: %v", f.out.texts)
	}
	if len(f.chatbot.messages) != 0 {
		t.Errorf("non-selected keyword reached chatbot: %v", f.chatbot.messages)
	}
}

func TestHandle_NonKeywordGoesToChatbot(t *testing.T) {
	f := newFixture(t, []mesh.NodeID{"!op"}, nil)

	f.in.Handle("!stranger", "what's the weather like on mars?")
	f.in.Handle("!op", "hello there")

	if len(f.chatbot.messages) != 2 {
		t.Fatalf("chatbot got %d messages, want 2", len(f.chatbot.messages))
	}
	if f.chatbot.messages[0] != "what's the weather like on mars?" {
		t.Errorf("chatbot message = %q, want original casing preserved", f.chatbot.messages[0])
	}
}

func TestHandle_RadioCheck(t *testing.T) {
	f := newFixture(t, []mesh.NodeID{"!op"}, nil)
	f.reg.Upsert("!op", mesh.Observation{
		SNR: 7.5, RSSI: -92, HasSignal: true,
		Time: time.Now().Add(-42 * time.Second),
	})

	f.in.Handle("!op", "RADIOCHECK")

	if len(f.out.texts) != 1 {
		t.Fatalf("replies = %v", f.out.texts)
	}
	got := f.out.texts[0]
	if !strings.Contains(got, "SNR 7.5dB") || !strings.Contains(got, "RSSI -92dBm") {
		t.Errorf("radio check missing readings: %s", got)
	}
}

func TestHandle_RadioCheckNoSignal(t *testing.T) {
	f := newFixture(t, []mesh.NodeID{"!op"}, nil)
	f.in.Handle("!op", "RADIOCHECK")

	if len(f.out.texts) != 1 || !strings.Contains(f.out.texts[0], "no signal readings") {
		t.Errorf("replies = %v", f.out.texts)
	}
}

func TestHandle_WeatherCheck(t *testing.T) {
	temp := 20.0 // 68F
	hum := 55.5
	samp := fakeSampler{
		snap: sensor.Snapshot{Time: time.Now(), Temperature: &temp, Humidity: &hum},
		ok:   true,
	}
	f := newFixture(t, []mesh.NodeID{"!op"}, samp)

	f.in.Handle("!op", "WEATHERCHECK")

	if len(f.out.texts) != 1 {
		t.Fatalf("replies = %v", f.out.texts)
	}
	got := f.out.texts[0]
	if !strings.Contains(got, "68.0F") || !strings.Contains(got, "55.5% RH") {
		t.Errorf("weather reply = %s", got)
	}
}

func TestHandle_WeatherCheckNoReadings(t *testing.T) {
	f := newFixture(t, []mesh.NodeID{"!op"}, nil)
	f.in.Handle("!op", "WEATHERCHECK")

	if len(f.out.texts) != 1 || !strings.Contains(f.out.texts[0], "no sensor readings") {
		t.Errorf("replies = %v", f.out.texts)
	}
}

func TestHandle_Keywords(t *testing.T) {
	f := newFixture(t, []mesh.NodeID{"!op"}, nil)
	f.in.Handle("!op", "KEYWORDS")

	if len(f.out.texts) != 1 {
		t.Fatalf("replies = %v", f.out.texts)
	}
	for _, kw := range []string{"STOP", "START", "FREQ", "RADIOCHECK", "WEATHERCHECK", "CHATBOTON", "CHATBOTOFF"} {
		if !strings.Contains(f.out.texts[0], kw) {
			t.Errorf("keyword list missing %s: %s", kw, f.out.texts[0])
		}
	}
	if len(f.out.texts[0]) > mesh.MaxMessageLen {
		t.Errorf("keyword list is %d bytes, exceeds %d", len(f.out.texts[0]), mesh.MaxMessageLen)
	}
}

func TestHandle_ChatbotToggle(t *testing.T) {
	f := newFixture(t, []mesh.NodeID{"!op"}, nil)

	f.in.Handle("!op", "CHATBOTON")
	if !f.chatbot.enabled {
		t.Error("CHATBOTON did not enable")
	}
	if f.chatbot.model != "model.gguf" {
		t.Errorf("model = %q", f.chatbot.model)
	}

	f.in.Handle("!op", "CHATBOTOFF")
	if f.chatbot.enabled {
		t.Error("CHATBOTOFF did not disable")
	}

	if len(f.out.texts) != 2 {
		t.Fatalf("replies = %v", f.out.texts)
	}
	if !strings.Contains(f.out.texts[0], "enabled") || !strings.Contains(f.out.texts[1], "disabled") {
		t.Errorf("acks = %v", f.out.texts)
	}
}

func TestHandle_ChatbotOnLoadFailure(t *testing.T) {
	f := newFixture(t, []mesh.NodeID{"!op"}, nil)
	f.chatbot.loadErr = errTest

	f.in.Handle("!op", "CHATBOTON")

	if f.chatbot.enabled {
		t.Error("chatbot enabled despite load failure")
	}
	if len(f.out.texts) != 1 || !strings.Contains(f.out.texts[0], "failed") {
		t.Errorf("replies = %v, want failure ack", f.out.texts)
	}
}

func TestHandle_FreqWithoutDigitsIsNotAKeyword(t *testing.T) {
	f := newFixture(t, []mesh.NodeID{"!op"}, nil)
	f.in.Handle("!op", "FREQ")

	if len(f.out.texts) != 0 {
		t.Errorf("bare FREQ replied: %v", f.out.texts)
	}
	if len(f.chatbot.messages) != 1 {
		t.Errorf("bare FREQ should fall through to chatbot, got %v", f.chatbot.messages)
	}
}
