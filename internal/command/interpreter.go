// Package command interprets keyword messages from selected nodes.
// Anything that is not a keyword falls through to the chatbot.
package command

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"meshmon/internal/assistant"
	"meshmon/internal/events"
	"meshmon/internal/mesh"
	"meshmon/internal/sensor"
)

// freqPattern matches the interval keyword: FREQ followed by digits.
var freqPattern = regexp.MustCompile(`^FREQ(\d+)$`)

// SendFunc transmits one reply and records it in the conversation store.
type SendFunc func(text string, dest mesh.NodeID) error

// AutoSend is the scheduler surface the interpreter drives.
type AutoSend interface {
	Enable()
	Disable()
	SetInterval(sec int) int
}

// Chatbot is the assistant surface for non-keyword messages.
type Chatbot interface {
	HandleMessage(from mesh.NodeID, body string) error
	Enable(modelPath string) error
	Disable()
	Enabled() bool
}

// Interpreter routes inbound text messages. Keyword commands execute
// only for selected nodes; non-selected nodes' keywords are ignored
// without a reply. Exactly one acknowledgement goes out per executed
// command.
type Interpreter struct {
	registry *mesh.Registry
	sampler  sensor.Sampler
	auto     AutoSend
	chatbot  Chatbot

	modelPath string
	send      SendFunc
	feed      *events.Feed
	log       *slog.Logger
	now       func() time.Time
}

// New wires an interpreter. modelPath is handed to the chatbot on
// CHATBOTON.
func New(registry *mesh.Registry, sampler sensor.Sampler, auto AutoSend, chatbot Chatbot, modelPath string, send SendFunc, feed *events.Feed, logger *slog.Logger) *Interpreter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{
		registry:  registry,
		sampler:   sampler,
		auto:      auto,
		chatbot:   chatbot,
		modelPath: modelPath,
		send:      send,
		feed:      feed,
		log:       logger,
		now:       time.Now,
	}
}

// Handle processes one inbound text message from a node. The message
// must already be stored in the conversation history; replies sent here
// land after it.
func (in *Interpreter) Handle(from mesh.NodeID, body string) {
	keyword := strings.ToUpper(strings.TrimSpace(body))

	if in.registry.IsSelected(from) {
		if in.execute(from, keyword) {
			return
		}
	} else if in.isKeyword(keyword) {
		// Keywords from non-selected nodes are dropped without a reply
		// so strangers cannot probe the control surface.
		in.log.Debug("ignored keyword from non-selected node", "from", from, "keyword", keyword)
		return
	}

	if err := in.chatbot.HandleMessage(from, body); err != nil {
		in.log.Debug("message not routed to chatbot", "from", from, "reason", err)
	}
}

// isKeyword reports whether the trimmed, uppercased body is a command.
func (in *Interpreter) isKeyword(keyword string) bool {
	switch keyword {
	case "STOP", "START", "RADIOCHECK", "WEATHERCHECK", "KEYWORDS", "CHATBOTON", "CHATBOTOFF":
		return true
	}
	return freqPattern.MatchString(keyword)
}

// execute runs one keyword for a selected node. Returns false when the
// body is not a keyword so it can fall through to the chatbot.
func (in *Interpreter) execute(from mesh.NodeID, keyword string) bool {
	if m := freqPattern.FindStringSubmatch(keyword); m != nil {
		in.handleFreq(from, m[1])
		return true
	}

	switch keyword {
	case "STOP":
		in.auto.Disable()
		in.reply(from, "Auto-send stopped.")
	case "START":
		in.auto.Enable()
		in.reply(from, "Auto-send started.")
	case "RADIOCHECK":
		in.reply(from, in.radioCheck(from))
	case "WEATHERCHECK":
		in.reply(from, in.weatherCheck())
	case "KEYWORDS":
		in.reply(from, "Commands: STOP START FREQ<seconds> RADIOCHECK WEATHERCHECK KEYWORDS CHATBOTON CHATBOTOFF")
	case "CHATBOTON":
		if err := in.chatbot.Enable(in.modelPath); err != nil {
			in.log.Warn("chatbot enable via keyword failed", "from", from, "err", err)
			in.reply(from, "Chatbot failed to start.")
		} else {
			in.reply(from, "Chatbot enabled.")
		}
	case "CHATBOTOFF":
		in.chatbot.Disable()
		in.reply(from, "Chatbot disabled.")
	default:
		return false
	}

	in.feed.Emitf("command %s from %s", keyword, from)
	return true
}

func (in *Interpreter) handleFreq(from mesh.NodeID, digits string) {
	sec, err := strconv.Atoi(digits)
	if err != nil {
		// Digits too large for int; pin to the maximum.
		sec = 1 << 30
	}
	applied := in.auto.SetInterval(sec)
	in.reply(from, fmt.Sprintf("Auto-send interval set to %d seconds.", applied))
	in.feed.Emitf("command FREQ%s from %s (applied %ds)", digits, from, applied)
}

// radioCheck reports the requester's signal as heard on our side.
func (in *Interpreter) radioCheck(from mesh.NodeID) string {
	node, ok := in.registry.Get(from)
	if !ok || !node.HasSignal {
		return "Radio check: heard you, but no signal readings yet."
	}
	age := in.now().Sub(node.LastHeard).Round(time.Second)
	return fmt.Sprintf("Radio check: SNR %.1fdB, RSSI %ddBm, last heard %s ago.", node.SNR, node.RSSI, age)
}

// weatherCheck reports the latest environment readings.
func (in *Interpreter) weatherCheck() string {
	snap, ok := in.sampler.Latest()
	if !ok || !snap.HasEnvironment() {
		return "Weather: no sensor readings yet."
	}

	parts := []string{"Weather:"}
	if snap.Temperature != nil {
		parts = append(parts, fmt.Sprintf("%.1fF", snap.TemperatureF()))
	}
	if snap.Humidity != nil {
		parts = append(parts, fmt.Sprintf("%.1f%% RH", *snap.Humidity))
	}
	if snap.Pressure != nil {
		parts = append(parts, fmt.Sprintf("%.1f hPa", *snap.Pressure))
	}
	return strings.Join(parts, " ")
}

func (in *Interpreter) reply(from mesh.NodeID, text string) {
	if err := in.send(text, from); err != nil {
		in.log.Warn("command reply failed", "dest", from, "err", err)
	}
}

// ensure the assistant gateway satisfies the local interface.
var _ Chatbot = (*assistant.Gateway)(nil)
