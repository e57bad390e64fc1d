package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds meshviz configuration.
type Config struct {
	Server ServerConfig `toml:"server"`
	Poll   PollConfig   `toml:"poll"`
	View   ViewConfig   `toml:"view"`
	Web    WebConfig    `toml:"web"`
	Log    LogConfig    `toml:"log"`
}

// ServerConfig points at the simulation service.
type ServerConfig struct {
	URL     string   `toml:"url"`
	Timeout Duration `toml:"timeout"`
}

// PollConfig sets the refresh cadence of each polled endpoint.
type PollConfig struct {
	Nodes   Duration `toml:"nodes"`
	Metrics Duration `toml:"metrics"`
	MQTT    Duration `toml:"mqtt"`
	Events  Duration `toml:"events"`
	Routing Duration `toml:"routing"`
}

// ViewConfig controls the topology canvas.
type ViewConfig struct {
	Width      int     `toml:"width"`
	Height     int     `toml:"height"`
	Scale      float64 `toml:"scale"`
	FPS        int     `toml:"fps"`
	MaxPackets int     `toml:"max_packets"`
}

// WebConfig controls the `watch` server.
type WebConfig struct {
	Addr string `toml:"addr"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	Level       string         `toml:"level"`  // debug, info, warn, error
	Format      string         `toml:"format"` // console or json
	Outputs     []string       `toml:"outputs"`
	Development bool           `toml:"development"`
	Rotation    RotationConfig `toml:"rotation"`
}

// RotationConfig controls rotation for file outputs.
type RotationConfig struct {
	Enable     bool `toml:"enable"`
	MaxSizeMB  int  `toml:"max_size_mb"`
	MaxBackups int  `toml:"max_backups"`
	MaxAgeDays int  `toml:"max_age_days"`
	Compress   bool `toml:"compress"`
}

// Duration is a time.Duration written as "500ms" / "1s" in TOML.
type Duration struct {
	time.Duration
}

// D wraps a time.Duration.
func D(d time.Duration) Duration {
	return Duration{d}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{URL: "http://127.0.0.1:8000", Timeout: D(5 * time.Second)},
		Poll: PollConfig{
			Nodes:   D(time.Second),
			Metrics: D(500 * time.Millisecond),
			MQTT:    D(time.Second),
			Events:  D(500 * time.Millisecond),
			Routing: D(2 * time.Second),
		},
		View: ViewConfig{Width: 1200, Height: 700, Scale: 3, FPS: 60, MaxPackets: 512},
		Web:  WebConfig{Addr: "127.0.0.1:8090"},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
	}
}

// ConfigDir returns the meshviz config directory path.
func ConfigDir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "meshviz")
}

// Path returns the default config file location.
func Path() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the default config file, falling back to defaults if it
// doesn't exist or can't be parsed.
func Load() *Config {
	cfg, err := LoadFile(Path())
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile reads a config file over the defaults. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects values the viewer cannot run with.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	if c.View.Width <= 0 || c.View.Height <= 0 {
		return fmt.Errorf("view size must be positive, got %dx%d", c.View.Width, c.View.Height)
	}
	if c.View.Scale <= 0 {
		return fmt.Errorf("view.scale must be positive, got %v", c.View.Scale)
	}
	if c.View.FPS <= 0 || c.View.FPS > 240 {
		return fmt.Errorf("view.fps must be within 1..240, got %d", c.View.FPS)
	}
	for name, d := range map[string]Duration{
		"poll.nodes": c.Poll.Nodes, "poll.metrics": c.Poll.Metrics, "poll.mqtt": c.Poll.MQTT,
		"poll.events": c.Poll.Events, "poll.routing": c.Poll.Routing,
	} {
		if d.Duration <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

// Save writes the config to the default path.
func Save(cfg *Config) error {
	return SaveFile(Path(), cfg)
}

// SaveFile writes the config to path.
func SaveFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// EnsureExists creates the config file with defaults if it doesn't exist.
func EnsureExists() error {
	if _, err := os.Stat(Path()); err == nil {
		return nil // already exists
	}
	return Save(Default())
}
