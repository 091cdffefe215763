package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Default()
	if cfg.AutoSendInterval != def.AutoSendInterval || cfg.SerialPort != def.SerialPort {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.AutoSendEnabled = true
	cfg.AutoSendInterval = 120
	cfg.SelectedNodes = []string{"!aaa", "!bbb"}
	cfg.ChatbotEnabled = true
	cfg.ChatbotModelPath = "/models/test.gguf"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.AutoSendEnabled || got.AutoSendInterval != 120 {
		t.Errorf("auto-send = %v/%d", got.AutoSendEnabled, got.AutoSendInterval)
	}
	if len(got.SelectedNodes) != 2 || got.SelectedNodes[0] != "!aaa" {
		t.Errorf("selected = %v", got.SelectedNodes)
	}
	if !got.ChatbotEnabled || got.ChatbotModelPath != "/models/test.gguf" {
		t.Errorf("chatbot = %v/%q", got.ChatbotEnabled, got.ChatbotModelPath)
	}
}

func TestLoad_ClampsInterval(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"below", 15, MinInterval},
		{"min", 30, 30},
		{"above", 99999, MaxInterval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			cfg := Default()
			cfg.AutoSendInterval = tt.in
			// Save does not normalize; Load does.
			if err := cfg.Save(path); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got.AutoSendInterval != tt.want {
				t.Errorf("interval = %d, want %d", got.AutoSendInterval, tt.want)
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MESHMON_SERIAL_PORT", "/dev/ttyACM3")
	t.Setenv("MESHMON_AUTO_SEND_INTERVAL", "600")
	t.Setenv("MESHMON_SELECTED_NODES", "!aaa, !bbb ,!ccc")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SerialPort != "/dev/ttyACM3" {
		t.Errorf("serial port = %q", cfg.SerialPort)
	}
	if cfg.AutoSendInterval != 600 {
		t.Errorf("interval = %d", cfg.AutoSendInterval)
	}
	if len(cfg.SelectedNodes) != 3 || cfg.SelectedNodes[1] != "!bbb" {
		t.Errorf("selected = %v", cfg.SelectedNodes)
	}
}

func TestLoad_BadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("auto_send_interval = ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load on malformed TOML should fail")
	}
}

func TestSave_Atomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := Default().Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestClampInterval(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 30}, {29, 30}, {30, 30}, {300, 300}, {3600, 3600}, {3601, 3600},
	}
	for _, tt := range tests {
		if got := ClampInterval(tt.in); got != tt.want {
			t.Errorf("ClampInterval(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestLoadAliases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	data := "\"!aaa\": Basement Node\n\"!bbb\": Roof Node\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadAliases(path)
	if err != nil {
		t.Fatalf("LoadAliases: %v", err)
	}
	if got["!aaa"] != "Basement Node" || got["!bbb"] != "Roof Node" {
		t.Errorf("aliases = %v", got)
	}
}

func TestLoadAliases_Missing(t *testing.T) {
	got, err := LoadAliases(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadAliases: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("aliases = %v, want empty", got)
	}
}
