// Package cli implements the interactive operator menu. It reads plain
// line input so it works over serial consoles and ssh alike; the fancy
// rendering lives in the dashboard.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"meshmon/internal/assistant"
	"meshmon/internal/config"
	"meshmon/internal/events"
	"meshmon/internal/mesh"
	"meshmon/internal/scheduler"
	"meshmon/internal/sensor"
)

// Menu is the operator's console. All mutation goes through the same
// scheduler/chatbot surfaces the radio keywords use, and configuration
// writes go through the shared store, so the two control paths cannot
// disagree or race.
type Menu struct {
	store *config.Store

	registry *mesh.Registry
	conv     *mesh.Conversations
	sampler  sensor.Sampler
	sched    *scheduler.Scheduler
	bot      *assistant.Gateway
	feed     *events.Feed

	// openDashboard starts the full-screen view and blocks until it
	// exits. Nil when stdout is not a terminal.
	openDashboard func() error

	// All input flows through one reader goroutine so the countdown
	// and the prompts never fight over the stream.
	lines chan string
	out   io.Writer
	log   *slog.Logger
}

// New wires a menu over the given streams.
func New(store *config.Store, registry *mesh.Registry, conv *mesh.Conversations, sampler sensor.Sampler, sched *scheduler.Scheduler, bot *assistant.Gateway, feed *events.Feed, openDashboard func() error, in io.Reader, out io.Writer, logger *slog.Logger) *Menu {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Menu{
		store:         store,
		registry:      registry,
		conv:          conv,
		sampler:       sampler,
		sched:         sched,
		bot:           bot,
		feed:          feed,
		openDashboard: openDashboard,
		lines:         make(chan string),
		out:           out,
		log:           logger,
	}
	go m.readLines(in)
	return m
}

func (m *Menu) readLines(in io.Reader) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		m.lines <- strings.TrimSpace(sc.Text())
	}
	close(m.lines)
}

// Countdown waits delay seconds, printing the remaining time, then
// returns true. Pressing Enter aborts into the menu and returns false.
func (m *Menu) Countdown(delay int) bool {
	if delay <= 0 {
		return true
	}

	fmt.Fprintf(m.out, "Starting in %d seconds, press Enter for the menu...\n", delay)
	for i := delay; i > 0; i-- {
		select {
		case _, ok := <-m.lines:
			if ok {
				return false
			}
			// Input closed; nothing can interrupt, start now.
			return true
		case <-time.After(time.Second):
			if i%5 == 0 || i <= 3 {
				fmt.Fprintf(m.out, "%d...\n", i)
			}
		}
	}
	return true
}

// Run loops over the main menu until the operator exits or input ends.
func (m *Menu) Run() {
	for {
		fmt.Fprint(m.out, mainMenu)
		choice, ok := m.prompt("> ")
		if !ok {
			return
		}
		switch choice {
		case "1":
			m.showTelemetry()
		case "2":
			m.autoSendMenu()
		case "3":
			m.chatbotMenu()
		case "4":
			m.showCommands()
		case "5":
			m.showNodes()
		case "6":
			m.showEncryption()
		case "8":
			m.showRecent()
		case "7":
			if m.openDashboard == nil {
				fmt.Fprintln(m.out, "Dashboard needs an interactive terminal.")
				continue
			}
			if err := m.openDashboard(); err != nil {
				fmt.Fprintf(m.out, "Dashboard error: %v\n", err)
			}
		case "0", "q", "exit":
			fmt.Fprintln(m.out, "Bye.")
			return
		default:
			fmt.Fprintln(m.out, "Unknown option.")
		}
	}
}

const mainMenu = `
--- meshmon ---
1) Telemetry status
2) Auto-send settings
3) Chatbot settings
4) Radio command reference
5) Known nodes
6) Encryption info
7) Dashboard
8) Recent messages and activity
0) Exit
`

func (m *Menu) showTelemetry() {
	snap, ok := m.sampler.Latest()
	if !ok {
		fmt.Fprintln(m.out, "No telemetry received yet.")
		return
	}
	fmt.Fprintf(m.out, "As of %s:\n", snap.Time.Format("15:04:05"))
	if snap.Temperature != nil {
		fmt.Fprintf(m.out, "  Temperature: %.1fF (%.1fC)\n", snap.TemperatureF(), *snap.Temperature)
	}
	if snap.Humidity != nil {
		fmt.Fprintf(m.out, "  Humidity:    %.1f%%\n", *snap.Humidity)
	}
	if snap.Pressure != nil {
		fmt.Fprintf(m.out, "  Pressure:    %.1f hPa\n", *snap.Pressure)
	}
	if snap.Battery != nil {
		if *snap.Battery > 100 {
			fmt.Fprintln(m.out, "  Battery:     external power")
		} else {
			fmt.Fprintf(m.out, "  Battery:     %d%%\n", *snap.Battery)
		}
	}
	if snap.Voltage != nil {
		fmt.Fprintf(m.out, "  Voltage:     %.2fV\n", *snap.Voltage)
	}
	if snap.ChannelUtil != nil {
		fmt.Fprintf(m.out, "  Channel use: %.1f%%\n", *snap.ChannelUtil)
	}
	if snap.AirUtil != nil {
		fmt.Fprintf(m.out, "  Air time:    %.1f%%\n", *snap.AirUtil)
	}
}

func (m *Menu) autoSendMenu() {
	for {
		st := m.sched.Status()
		state := "off"
		if st.Enabled {
			state = fmt.Sprintf("on, every %ds, next in %ds", st.IntervalSec, st.NextInSec)
		}
		fmt.Fprintf(m.out, "\nAuto-send is %s. Recipients: %s\n", state, joinIDs(m.registry.Selected()))
		fmt.Fprint(m.out, "1) toggle  2) interval  3) recipients  4) send now  0) back\n")

		choice, ok := m.prompt("> ")
		if !ok {
			return
		}
		switch choice {
		case "1":
			if st.Enabled {
				m.sched.Disable()
			} else {
				m.sched.Enable()
			}
		case "2":
			raw, ok := m.prompt(fmt.Sprintf("Interval in seconds [%d-%d]: ", config.MinInterval, config.MaxInterval))
			if !ok {
				return
			}
			sec, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				fmt.Fprintln(m.out, "Not a number.")
				continue
			}
			applied := m.sched.SetInterval(sec)
			fmt.Fprintf(m.out, "Interval set to %ds.\n", applied)
		case "3":
			raw, ok := m.prompt("Node ids, comma separated (e.g. !aabbccdd,!11223344): ")
			if !ok {
				return
			}
			ids := parseIDs(raw)
			m.registry.SetSelected(ids)
			m.updateConfig(func(c *config.Config) {
				c.SelectedNodes = make([]string, len(ids))
				for i, id := range ids {
					c.SelectedNodes[i] = string(id)
				}
			})
			fmt.Fprintf(m.out, "Recipients: %s\n", joinIDs(ids))
		case "4":
			m.sched.SendNow()
			fmt.Fprintln(m.out, "Telemetry queued.")
		case "0":
			return
		default:
			fmt.Fprintln(m.out, "Unknown option.")
		}
	}
}

func (m *Menu) chatbotMenu() {
	for {
		cfg := m.store.Snapshot()
		state := "off"
		if m.bot.Enabled() {
			state = "on"
			if m.bot.Busy() {
				state = "on (thinking)"
			}
		}
		fmt.Fprintf(m.out, "\nChatbot is %s. Model: %s\n", state, cfg.ChatbotModelPath)
		fmt.Fprint(m.out, "1) toggle  2) model path  3) greeting  0) back\n")

		choice, ok := m.prompt("> ")
		if !ok {
			return
		}
		switch choice {
		case "1":
			if m.bot.Enabled() {
				m.bot.Disable()
				m.updateConfig(func(c *config.Config) { c.ChatbotEnabled = false })
			} else {
				if err := m.bot.Enable(cfg.ChatbotModelPath); err != nil {
					fmt.Fprintf(m.out, "Failed to start chatbot: %v\n", err)
					continue
				}
				m.updateConfig(func(c *config.Config) { c.ChatbotEnabled = true })
			}
		case "2":
			raw, ok := m.prompt("Model file path: ")
			if !ok {
				return
			}
			if raw = strings.TrimSpace(raw); raw != "" {
				m.updateConfig(func(c *config.Config) { c.ChatbotModelPath = raw })
			}
		case "3":
			raw, ok := m.prompt("Greeting sent to new nodes (empty to disable): ")
			if !ok {
				return
			}
			greeting := strings.TrimSpace(raw)
			m.updateConfig(func(c *config.Config) { c.ChatbotGreeting = greeting })
		case "0":
			return
		default:
			fmt.Fprintln(m.out, "Unknown option.")
		}
	}
}

func (m *Menu) showCommands() {
	fmt.Fprint(m.out, `
Radio keywords (selected nodes only):
  STOP          stop auto-send
  START         start auto-send
  FREQ<secs>    set auto-send interval, e.g. FREQ300
  RADIOCHECK    report your signal as heard here
  WEATHERCHECK  report latest sensor readings
  KEYWORDS      list these commands
  CHATBOTON     enable the chatbot
  CHATBOTOFF    disable the chatbot
Anything else is answered by the chatbot when it is enabled.
`)
}

func (m *Menu) showNodes() {
	nodes := m.registry.Snapshot()
	if len(nodes) == 0 {
		fmt.Fprintln(m.out, "No nodes heard yet.")
		return
	}
	for _, n := range nodes {
		mark := " "
		if n.Selected {
			mark = "*"
		}
		sig := ""
		if n.HasSignal {
			sig = fmt.Sprintf("  SNR %.1fdB RSSI %ddBm", n.SNR, n.RSSI)
		}
		fmt.Fprintf(m.out, "%s %-10s %-24s%s\n", mark, n.ID, n.DisplayName(), sig)
	}
}

func (m *Menu) showRecent() {
	msgs := m.conv.Recent(10)
	if len(msgs) == 0 {
		fmt.Fprintln(m.out, "No messages yet.")
	}
	for _, msg := range msgs {
		arrow := "<-"
		if msg.Direction == mesh.Sent {
			arrow = "->"
		}
		fmt.Fprintf(m.out, "[%s] %s %s: %s\n", msg.Time.Format("15:04:05"), arrow, msg.Node, msg.Body)
	}

	if entries := m.feed.Recent(); len(entries) > 0 {
		fmt.Fprintln(m.out, "Activity:")
		for _, e := range entries {
			fmt.Fprintf(m.out, "  %s\n", e.String())
		}
	}
}

func (m *Menu) showEncryption() {
	fmt.Fprint(m.out, `
Direct messages are encrypted end to end by the radios (PKC): each node
holds a keypair and DMs are readable only by the destination node. This
program sees plaintext only for messages addressed to its own radio.
Channel (broadcast) traffic uses the shared channel key instead.
`)
}

func (m *Menu) updateConfig(fn func(*config.Config)) {
	if err := m.store.Update(fn); err != nil {
		m.log.Warn("config save failed", "err", err)
		fmt.Fprintf(m.out, "Warning: could not save config: %v\n", err)
	}
}

// prompt prints p and reads one line. ok is false on EOF.
func (m *Menu) prompt(p string) (string, bool) {
	fmt.Fprint(m.out, p)
	line, ok := <-m.lines
	return line, ok
}

func parseIDs(raw string) []mesh.NodeID {
	var ids []mesh.NodeID
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, mesh.NodeID(part))
		}
	}
	return ids
}

func joinIDs(ids []mesh.NodeID) string {
	if len(ids) == 0 {
		return "(none)"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}
