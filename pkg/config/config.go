// Package config loads the YAML settings file. A missing file and unknown
// keys are not errors: every field has a default, and a malformed file falls
// back to the defaults so a typo never prevents startup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/battwatch/battwatch-go/pkg/monitor"
	"github.com/battwatch/battwatch-go/pkg/notify"
)

// DataDirEnv overrides the state directory, mainly for development runs
// against a scratch directory.
const DataDirEnv = "BATTWATCH_DATA_DIR"

const (
	appDirName      = "battwatch"
	defaultFileName = "config.yaml"

	defaultPollInterval  = time.Minute
	defaultBrowseTimeout = 5 * time.Second
)

// Config is the full settings file.
type Config struct {
	// Mode selects polling or notifications.
	Mode string `yaml:"mode"`

	// PollInterval is the poll cycle length in Go duration syntax ("45s",
	// "2m"). Only used in polling mode.
	PollInterval string `yaml:"poll_interval"`

	// Notifications enables desktop notifications per kind.
	Notifications notify.Flags `yaml:"notifications"`

	// StateDir overrides where device state and history live.
	StateDir string `yaml:"state_dir"`

	// History controls the per-device CSV battery history.
	History History `yaml:"history"`

	// EventLog overrides the engine event log path. Empty selects
	// events.blog inside the state directory; "off" disables the log.
	EventLog string `yaml:"event_log"`

	// MetricsAddr is the Prometheus listen address. Empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	// FeedAddr is the WebSocket state feed listen address. Empty disables it.
	FeedAddr string `yaml:"feed_addr"`

	// Bridge configures the network transport bridge.
	Bridge Bridge `yaml:"bridge"`
}

// History is the battery history section.
type History struct {
	// Enabled records a CSV row for every applied reading with a known level.
	Enabled bool `yaml:"enabled"`

	// Dir overrides the history directory. Empty selects battery_history
	// inside the state directory.
	Dir string `yaml:"dir"`
}

// Bridge is the network transport section, used when battery sources live on
// a remote agent instead of a local adapter.
type Bridge struct {
	// Instance narrows service discovery to one announced agent name.
	// Empty accepts the first agent found.
	Instance string `yaml:"instance"`

	// Port is the agent's listen port. Zero picks an ephemeral port.
	Port int `yaml:"port"`

	// BrowseTimeout bounds agent discovery, in Go duration syntax.
	BrowseTimeout string `yaml:"browse_timeout"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Mode:          monitor.ModePolling.String(),
		PollInterval:  defaultPollInterval.String(),
		Notifications: notify.DefaultFlags(),
		History:       History{Enabled: true},
	}
}

// Parse reads settings from YAML bytes layered over the defaults. On parse
// or validation failure it returns the defaults together with the error.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return Default(), fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Default(), err
	}
	return cfg, nil
}

// Load reads the settings file at path. A missing file returns the defaults
// without error; an unreadable or malformed file returns the defaults with
// the error so the caller can warn and continue.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Default(), fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Save writes the settings to path, creating parent directories. The write
// goes through a temp file and rename so a crash never leaves a torn file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-config-*")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// Validate checks every parseable field.
func (c *Config) Validate() error {
	if _, err := monitor.ParseMode(c.Mode); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.PollInterval != "" {
		d, err := time.ParseDuration(c.PollInterval)
		if err != nil {
			return fmt.Errorf("config: poll_interval: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("config: poll_interval must be positive, got %s", c.PollInterval)
		}
	}
	if c.Bridge.BrowseTimeout != "" {
		if _, err := time.ParseDuration(c.Bridge.BrowseTimeout); err != nil {
			return fmt.Errorf("config: bridge.browse_timeout: %w", err)
		}
	}
	if c.Bridge.Port < 0 || c.Bridge.Port > 65535 {
		return fmt.Errorf("config: bridge.port %d out of range", c.Bridge.Port)
	}
	return nil
}

// EngineMode returns the parsed mode, falling back to polling.
func (c *Config) EngineMode() monitor.Mode {
	mode, err := monitor.ParseMode(c.Mode)
	if err != nil {
		return monitor.ModePolling
	}
	return mode
}

// PollEvery returns the parsed poll interval, falling back to the default.
func (c *Config) PollEvery() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil || d <= 0 {
		return defaultPollInterval
	}
	return d
}

// BrowseFor returns the parsed bridge browse timeout, falling back to the
// default.
func (b Bridge) BrowseFor() time.Duration {
	d, err := time.ParseDuration(b.BrowseTimeout)
	if err != nil || d <= 0 {
		return defaultBrowseTimeout
	}
	return d
}

// StateDirFor resolves the state directory: the environment override wins,
// then the configured directory, then the platform user-config location.
func (c *Config) StateDirFor() (string, error) {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		return dir, nil
	}
	if c.StateDir != "" {
		return c.StateDir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve state dir: %w", err)
	}
	return filepath.Join(base, appDirName), nil
}

// DefaultPath returns the settings file location inside the platform
// user-config directory.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return filepath.Join(base, appDirName, defaultFileName), nil
}

// DevicesPath returns the device registry file inside a state directory.
func DevicesPath(stateDir string) string {
	return filepath.Join(stateDir, "devices.json")
}

// HistoryDirFor returns the battery history directory: the configured
// override, or battery_history inside the state directory.
func (c *Config) HistoryDirFor(stateDir string) string {
	if c.History.Dir != "" {
		return c.History.Dir
	}
	return filepath.Join(stateDir, "battery_history")
}

// EventLogPathFor returns the engine event log path: the configured
// override, "" when disabled, or events.blog inside the state directory.
func (c *Config) EventLogPathFor(stateDir string) string {
	switch c.EventLog {
	case "off", "none":
		return ""
	case "":
		return filepath.Join(stateDir, "events.blog")
	default:
		return c.EventLog
	}
}
