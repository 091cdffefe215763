package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"meshmon/internal/assistant"
	"meshmon/internal/command"
	"meshmon/internal/config"
	"meshmon/internal/dispatch"
	"meshmon/internal/events"
	"meshmon/internal/mesh"
	"meshmon/internal/ratelimit"
	"meshmon/internal/scheduler"
	"meshmon/internal/sensor"
	"meshmon/internal/transport"
	"meshmon/internal/tui/dashboard"
)

// App is the assembled monitor: every component wired together and the
// background goroutines running.
type App struct {
	Registry      *mesh.Registry
	Conversations *mesh.Conversations
	Sensors       *sensor.Cache
	Feed          *events.Feed
	Scheduler     *scheduler.Scheduler
	Assistant     *assistant.Gateway
	Gateway       transport.Gateway

	store   *config.Store
	limiter *ratelimit.Limiter
	dataDir string
	log     *slog.Logger
	cancel  context.CancelFunc
}

// newApp wires the whole monitor and starts its background goroutines.
// Configuration reads and writes go through the store; keyword handlers
// on the delivery goroutine and the operator menu share it.
func newApp(ctx context.Context, store *config.Store, logger *slog.Logger) (*App, error) {
	cfg := store.Snapshot()
	selected := make([]mesh.NodeID, len(cfg.SelectedNodes))
	for i, id := range cfg.SelectedNodes {
		selected[i] = mesh.NodeID(id)
	}

	registry := mesh.NewRegistry(selected)
	conv := mesh.NewConversations()
	cache := sensor.NewCache()
	feed := events.NewFeed(logger)

	gateway, err := openGateway(cfg.SerialPort, logger)
	if err != nil {
		return nil, err
	}

	// One outbound path for every component: transmit, then mirror the
	// message into the conversation and bump the counter.
	send := func(text string, dest mesh.NodeID) error {
		if err := gateway.Send(text, dest, true); err != nil {
			return err
		}
		registry.CountTx()
		conv.AppendSent(dest, text, time.Now())
		return nil
	}

	dataDir := dataDirFor(store.Path())
	limiter := ratelimit.NewLimiter(registry.IsSelected)
	if err := limiter.Load(dataDir); err != nil {
		logger.Warn("rate limit history not restored", "err", err)
	}

	persistSched := func(enabled bool, intervalSec int) {
		err := store.Update(func(c *config.Config) {
			c.AutoSendEnabled = enabled
			c.AutoSendInterval = intervalSec
		})
		if err != nil {
			logger.Warn("config save failed", "err", err)
		}
	}
	sched := scheduler.New(registry, cache, send, feed, persistSched, logger)
	sched.SetInterval(cfg.AutoSendInterval)

	persistBot := func(enabled bool) {
		err := store.Update(func(c *config.Config) {
			c.ChatbotEnabled = enabled
		})
		if err != nil {
			logger.Warn("config save failed", "err", err)
		}
	}
	backend := assistant.NewLlamaBackend("")
	bot := assistant.NewGateway(backend, limiter, send, feed, persistBot, logger)

	interp := command.New(registry, cache, sched, bot, cfg.ChatbotModelPath, send, feed, logger)
	disp := dispatch.New(registry, conv, cache, interp, feed, logger)

	if cfg.ChatbotGreeting != "" {
		greeting := mesh.TruncateBody(cfg.ChatbotGreeting)
		disp.OnNewNode(func(id mesh.NodeID) {
			if err := send(greeting, id); err != nil {
				logger.Debug("greeting send failed", "dest", id, "err", err)
			}
		})
	}

	gateway.Subscribe(disp.OnPacket)

	if aliases, err := loadAliasOverrides(); err != nil {
		logger.Warn("aliases not loaded", "err", err)
	} else if len(aliases) > 0 {
		registry.ApplyAliases(aliases)
	}

	runCtx, cancel := context.WithCancel(ctx)
	go sched.Run(runCtx)

	go func() {
		err := config.Watch(runCtx, store.Path(), logger, func(fresh *config.Config) {
			ids := make([]mesh.NodeID, len(fresh.SelectedNodes))
			for i, id := range fresh.SelectedNodes {
				ids[i] = mesh.NodeID(id)
			}
			registry.SetSelected(ids)
		})
		if err != nil && runCtx.Err() == nil {
			logger.Warn("config watch stopped", "err", err)
		}
	}()

	if cfg.AutoSendEnabled {
		sched.Enable()
	}
	if cfg.ChatbotEnabled {
		if err := bot.Enable(cfg.ChatbotModelPath); err != nil {
			logger.Warn("chatbot not started", "err", err)
		}
	}

	feed.Emitf("monitor started (%d selected nodes)", len(selected))

	return &App{
		Registry:      registry,
		Conversations: conv,
		Sensors:       cache,
		Feed:          feed,
		Scheduler:     sched,
		Assistant:     bot,
		Gateway:       gateway,
		store:         store,
		limiter:       limiter,
		dataDir:       dataDir,
		log:           logger,
		cancel:        cancel,
	}, nil
}

// openGateway picks the radio link. Hardware gateways implement
// transport.Gateway out of tree; this build ships the simulator.
func openGateway(serialPort string, logger *slog.Logger) (transport.Gateway, error) {
	if !simMode {
		return nil, fmt.Errorf("no gateway for serial port %s in this build; run with --sim", serialPort)
	}

	sim := transport.NewSim()
	seedSim(sim)
	logger.Info("using simulated gateway")
	return sim, nil
}

// seedSim injects a little traffic so a fresh simulator run has
// something on screen.
func seedSim(sim *transport.Sim) {
	battery := 94
	voltage := 4.02
	temp := 21.7
	hum := 43.5

	sim.Inject(transport.Packet{
		From:      "!5im00001",
		Kind:      transport.KindNodeInfo,
		ShortName: "SIM1",
		LongName:  "Sim Node One",
		SNR:       6.0,
		RSSI:      -82,
		HasSignal: true,
	})
	sim.Inject(transport.Packet{
		From:   "!5im00001",
		Kind:   transport.KindTelemetry,
		Device: &transport.DeviceMetrics{Battery: &battery, Voltage: &voltage},
	})
	sim.Inject(transport.Packet{
		From: "!5im00001",
		Kind: transport.KindTelemetry,
		Env:  &transport.EnvMetrics{Temperature: &temp, Humidity: &hum},
	})
	sim.Inject(transport.Packet{
		From:      "!5im00002",
		Kind:      transport.KindText,
		Text:      "radio check from the sim",
		ShortName: "SIM2",
		SNR:       2.5,
		RSSI:      -97,
		HasSignal: true,
	})
}

// loadAliasOverrides reads the alias book named by --aliases, or the
// default aliases.yaml next to the config.
func loadAliasOverrides() (map[mesh.NodeID]string, error) {
	path := aliasFile
	if path == "" {
		path = filepath.Join(filepath.Dir(config.DefaultPath()), "aliases.yaml")
	}
	raw, err := config.LoadAliases(path)
	if err != nil {
		return nil, err
	}
	out := make(map[mesh.NodeID]string, len(raw))
	for id, name := range raw {
		out[mesh.NodeID(id)] = name
	}
	return out, nil
}

// dataDirFor is where runtime state (rate limit history) lives.
func dataDirFor(cfgPath string) string {
	if cfgPath != "" {
		return filepath.Dir(cfgPath)
	}
	dir := filepath.Dir(config.DefaultPath())
	os.MkdirAll(dir, 0o755)
	return dir
}

// DashboardSources exposes read-only snapshots for the dashboard.
func (a *App) DashboardSources() dashboard.Sources {
	return dashboard.Sources{
		Nodes:         a.Registry.Snapshot,
		Messages:      func() []mesh.Message { return a.Conversations.Recent(8) },
		Activity:      a.Feed.Recent,
		Scheduler:     a.Scheduler.Status,
		AssistantOn:   a.Assistant.Enabled,
		AssistantBusy: a.Assistant.Busy,
		Stats:         a.Registry.Stats,
	}
}

// RefreshInterval is the dashboard redraw cadence.
func (a *App) RefreshInterval() time.Duration {
	return time.Duration(a.store.Snapshot().DashboardRefresh) * time.Second
}

// Close stops background work and persists runtime state.
func (a *App) Close() {
	a.cancel()
	if err := a.limiter.Save(a.dataDir); err != nil {
		a.log.Warn("rate limit history not saved", "err", err)
	}
	a.Assistant.Shutdown()
	if err := a.Gateway.Close(); err != nil {
		a.log.Warn("gateway close failed", "err", err)
	}
	a.log.Info("monitor stopped")
}
