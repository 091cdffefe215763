// Package config loads and persists the durable agent configuration.
// Precedence is defaults, then the TOML file, then MESHMON_* environment
// overrides. Saves are atomic (temp file + rename) so a crash mid-write
// never corrupts the document.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Interval bounds for the telemetry scheduler, seconds.
const (
	MinInterval = 30
	MaxInterval = 3600
)

// Config is the durable key/value document.
type Config struct {
	SerialPort string `toml:"serial_port"`

	AutoSendEnabled  bool     `toml:"auto_send_enabled"`
	AutoSendInterval int      `toml:"auto_send_interval"` // seconds, clamped to [30, 3600]
	SelectedNodes    []string `toml:"selected_nodes"`

	ChatbotEnabled   bool   `toml:"chatbot_enabled"`
	ChatbotModelPath string `toml:"chatbot_model_path"`
	ChatbotGreeting  string `toml:"chatbot_greeting"`

	LogFile          string `toml:"log_file"`
	DashboardRefresh int    `toml:"dashboard_refresh"` // seconds between redraws
	AutoStartDelay   int    `toml:"auto_start_delay"`  // countdown before auto-run, seconds
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SerialPort:       "/dev/ttyUSB0",
		AutoSendEnabled:  false,
		AutoSendInterval: 300,
		ChatbotModelPath: "./models/tinyllama-1.1b-chat-v1.0.Q4_K_M.gguf",
		ChatbotGreeting:  "",
		LogFile:          "meshmon.log",
		DashboardRefresh: 2,
		AutoStartDelay:   10,
	}
}

// DefaultPath is where the config lives unless overridden.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "meshmon", "config.toml")
	}
	return "config.toml"
}

// Load reads the config at path (DefaultPath when empty). A missing
// file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()

	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnv(cfg)
	cfg.Normalize()
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MESHMON_SERIAL_PORT"); v != "" {
		cfg.SerialPort = v
	}
	if v := os.Getenv("MESHMON_AUTO_SEND"); v != "" {
		cfg.AutoSendEnabled = v == "1" || v == "true"
	}
	if v := os.Getenv("MESHMON_AUTO_SEND_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AutoSendInterval = n
		}
	}
	if v := os.Getenv("MESHMON_SELECTED_NODES"); v != "" {
		cfg.SelectedNodes = splitList(v)
	}
	if v := os.Getenv("MESHMON_CHATBOT"); v != "" {
		cfg.ChatbotEnabled = v == "1" || v == "true"
	}
	if v := os.Getenv("MESHMON_CHATBOT_MODEL"); v != "" {
		cfg.ChatbotModelPath = v
	}
	if v := os.Getenv("MESHMON_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Normalize clamps out-of-range fields in place.
func (c *Config) Normalize() {
	c.AutoSendInterval = ClampInterval(c.AutoSendInterval)
	if c.DashboardRefresh < 1 {
		c.DashboardRefresh = 1
	}
	if c.DashboardRefresh > 10 {
		c.DashboardRefresh = 10
	}
	if c.AutoStartDelay < 0 {
		c.AutoStartDelay = 0
	}
}

// ClampInterval bounds a scheduler interval to [MinInterval, MaxInterval].
func ClampInterval(sec int) int {
	if sec < MinInterval {
		return MinInterval
	}
	if sec > MaxInterval {
		return MaxInterval
	}
	return sec
}

// Save writes the config atomically to path (DefaultPath when empty).
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(buf.String()), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}
