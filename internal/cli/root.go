package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"meshmon/internal/config"
	"meshmon/internal/tui/dashboard"
)

var (
	cfgFile   string
	simMode   bool
	portFlag  string
	aliasFile string

	// Build information, set via ldflags.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "meshmon",
	Short: "Headless mesh radio monitor, telemetry responder and chatbot",
	Long: `meshmon watches a mesh radio network: it tracks nodes, keeps per-node
conversation history, answers keyword commands from selected nodes,
sends telemetry reports on a schedule, and optionally routes free-form
messages through a local language model.

Quick start:
  meshmon --sim              # run against the in-memory simulator
  meshmon dashboard          # jump straight into the live dashboard
  meshmon version            # build information`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMonitor(cmd.Context(), false)
	},
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Start the monitor and open the live dashboard immediately",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMonitor(cmd.Context(), true)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("meshmon %s (commit %s, built %s)\n", Version, Commit, Date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: user config dir)")
	rootCmd.PersistentFlags().BoolVar(&simMode, "sim", false, "use the in-memory radio simulator")
	rootCmd.PersistentFlags().StringVar(&portFlag, "port", "", "serial port of the radio")
	rootCmd.PersistentFlags().StringVar(&aliasFile, "aliases", "", "YAML file of node display-name overrides")

	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the CLI. Called from main.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "meshmon: %v\n", err)
		os.Exit(1)
	}
}

// runMonitor loads config, assembles the application and drives either
// the menu (with auto-start countdown) or the dashboard directly.
func runMonitor(ctx context.Context, straightToDashboard bool) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if portFlag != "" {
		cfg.SerialPort = portFlag
	}
	store := config.NewStore(cfg, cfgFile)

	logger, logClose, err := newLogger(cfg.LogFile)
	if err != nil {
		return err
	}
	defer logClose()
	slog.SetDefault(logger)

	app, err := newApp(ctx, store, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	// The dashboard needs both a terminal on stdout and real key input.
	interactive := (isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())) &&
		term.IsTerminal(int(os.Stdin.Fd()))
	if termenv.EnvNoColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	var openDashboard func() error
	if interactive {
		openDashboard = func() error {
			p := tea.NewProgram(dashboard.New(app.DashboardSources(), app.RefreshInterval()), tea.WithAltScreen())
			_, err := p.Run()
			return err
		}
	}

	if straightToDashboard {
		if openDashboard == nil {
			return fmt.Errorf("dashboard needs an interactive terminal")
		}
		return openDashboard()
	}

	menu := New(store, app.Registry, app.Conversations, app.Sensors, app.Scheduler, app.Assistant, app.Feed, openDashboard, os.Stdin, os.Stdout, logger)

	if interactive && openDashboard != nil && menu.Countdown(store.Snapshot().AutoStartDelay) {
		if err := openDashboard(); err != nil {
			return err
		}
	}
	menu.Run()
	return nil
}

// newLogger builds the process logger: full stream to the log file,
// warnings and up to stderr so a headless run stays quiet.
func newLogger(logFile string) (*slog.Logger, func(), error) {
	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})

	if logFile == "" {
		return slog.New(stderrHandler), func() {}, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	fileHandler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})

	logger := slog.New(teeHandler{file: fileHandler, stderr: stderrHandler})
	return logger, func() { f.Close() }, nil
}

// teeHandler fans records out to the file and stderr handlers.
type teeHandler struct {
	file   slog.Handler
	stderr slog.Handler
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.file.Enabled(ctx, level) || t.stderr.Enabled(ctx, level)
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if t.file.Enabled(ctx, r.Level) {
		err = t.file.Handle(ctx, r.Clone())
	}
	if t.stderr.Enabled(ctx, r.Level) {
		if e := t.stderr.Handle(ctx, r.Clone()); err == nil {
			err = e
		}
	}
	return err
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return teeHandler{file: t.file.WithAttrs(attrs), stderr: t.stderr.WithAttrs(attrs)}
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return teeHandler{file: t.file.WithGroup(name), stderr: t.stderr.WithGroup(name)}
}
