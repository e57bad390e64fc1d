package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.URL != "http://127.0.0.1:8000" {
		t.Errorf("unexpected default server url %q", cfg.Server.URL)
	}
	if cfg.Poll.Nodes.Duration != time.Second {
		t.Errorf("expected nodes poll 1s, got %v", cfg.Poll.Nodes)
	}
	if cfg.Poll.Metrics.Duration != 500*time.Millisecond {
		t.Errorf("expected metrics poll 500ms, got %v", cfg.Poll.Metrics)
	}
	if cfg.Poll.Routing.Duration != 2*time.Second {
		t.Errorf("expected routing poll 2s, got %v", cfg.Poll.Routing)
	}
	if cfg.View.Scale != 3 {
		t.Errorf("expected scale 3, got %v", cfg.View.Scale)
	}
	if cfg.View.Width != 1200 || cfg.View.Height != 700 {
		t.Errorf("expected 1200x700, got %dx%d", cfg.View.Width, cfg.View.Height)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/test-xdg")
	dir := ConfigDir()
	if dir != "/tmp/test-xdg/meshviz" {
		t.Errorf("expected /tmp/test-xdg/meshviz, got %q", dir)
	}

	t.Setenv("XDG_CONFIG_HOME", "")
	dir = ConfigDir()
	home, _ := os.UserHomeDir()
	expected := filepath.Join(home, ".config", "meshviz")
	if dir != expected {
		t.Errorf("expected %q, got %q", expected, dir)
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	cfg := Default()
	cfg.View.FPS = 30
	cfg.Poll.Nodes = D(250 * time.Millisecond)
	cfg.Server.URL = "http://sim.local:9000"

	if err := Save(cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded := Load()
	if loaded.View.FPS != 30 {
		t.Errorf("expected fps 30, got %d", loaded.View.FPS)
	}
	if loaded.Poll.Nodes.Duration != 250*time.Millisecond {
		t.Errorf("expected nodes poll 250ms, got %v", loaded.Poll.Nodes)
	}
	if loaded.Server.URL != "http://sim.local:9000" {
		t.Errorf("expected saved url, got %q", loaded.Server.URL)
	}
}

func TestLoadFile_PartialOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meshviz.toml")
	os.WriteFile(path, []byte("[view]\nscale = 2.5\n\n[poll]\nrouting = \"5s\"\n"), 0o644)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.View.Scale != 2.5 {
		t.Errorf("expected scale 2.5, got %v", cfg.View.Scale)
	}
	if cfg.Poll.Routing.Duration != 5*time.Second {
		t.Errorf("expected routing 5s, got %v", cfg.Poll.Routing)
	}
	if cfg.View.Width != 1200 {
		t.Errorf("unset width should keep default, got %d", cfg.View.Width)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.View.FPS != 60 {
		t.Errorf("expected default fps, got %d", cfg.View.FPS)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad duration", "[poll]\nnodes = \"soon\"\n"},
		{"zero scale", "[view]\nscale = 0.0\n"},
		{"fps too high", "[view]\nfps = 1000\n"},
		{"negative poll", "[poll]\nmetrics = \"-1s\"\n"},
	}

	for _, tt := range tests {
		path := filepath.Join(t.TempDir(), "meshviz.toml")
		os.WriteFile(path, []byte(tt.body), 0o644)
		if _, err := LoadFile(path); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestEnsureExists(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	if err := EnsureExists(); err != nil {
		t.Fatalf("EnsureExists failed: %v", err)
	}

	path := filepath.Join(tmpDir, "meshviz", "config.toml")
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not created: %v", err)
	}

	// Second call should be no-op
	if err := EnsureExists(); err != nil {
		t.Fatalf("EnsureExists second call failed: %v", err)
	}
}
