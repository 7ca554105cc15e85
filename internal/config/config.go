// Package config loads and validates itterd server configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Limits that are part of the protocol rather than presentation.
const (
	EetMaxLength    = 180
	MinPageSize     = 1
	MaxPageSize     = 30
	DefaultPageSize = 10
	HistorySize     = 10
)

// Config is the full itterd configuration, loadable from a TOML file.
// Zero values are replaced by defaults in Load.
type Config struct {
	Listen      string `toml:"listen"`
	HostKeyPath string `toml:"host_key_path"`
	Debug       bool   `toml:"debug"`

	// IPHashSalt salts the SHA-256 hash of client IPs stored with
	// posts. Empty disables IP hashing entirely.
	IPHashSalt string `toml:"ip_hash_salt"`

	Store  StoreConfig  `toml:"store"`
	Log    LogConfig    `toml:"log"`
	UI     UIConfig     `toml:"ui"`
	PubSub PubSubConfig `toml:"pubsub"`
}

// StoreConfig configures the SQLite persistence layer.
type StoreConfig struct {
	Path string `toml:"path"`
}

// LogConfig configures rotated file logging. An empty Path logs to
// stderr.
type LogConfig struct {
	Path       string `toml:"path"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// UIConfig holds presentation constants. They are layout choices, not
// protocol requirements, so they stay configurable.
type UIConfig struct {
	SidebarWidth       int      `toml:"sidebar_width"`
	SidebarScrollStep  int      `toml:"sidebar_scroll_step"`
	WatchRefresh       duration `toml:"watch_refresh"`
	HeaderRows         int      `toml:"header_rows"`
	FooterRows         int      `toml:"footer_rows"`
	PromptRows         int      `toml:"prompt_rows"`
	MinTimelineWidth   int      `toml:"min_timeline_width"`
	EetsPerMinuteLimit int      `toml:"eets_per_minute_limit"`
}

// PubSubConfig configures the optional Cloud Pub/Sub post feed used to
// fan out new-post events across server instances.
type PubSubConfig struct {
	ProjectID       string `toml:"project_id"`
	TopicID         string `toml:"topic_id"`
	SubscriptionID  string `toml:"subscription_id"`
	CredentialsFile string `toml:"credentials_file"`
}

// Enabled reports whether the Pub/Sub bridge should be started.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.TopicID != ""
}

// duration wraps time.Duration for TOML decoding ("15s", "1m").
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

// Duration returns the UI watch refresh interval as a time.Duration.
func (u UIConfig) RefreshInterval() time.Duration {
	return time.Duration(u.WatchRefresh)
}

// Default returns a Config populated with production defaults.
func Default() Config {
	return Config{
		Listen:      "0.0.0.0:8022",
		HostKeyPath: "./ssh_host_key",
		Store:       StoreConfig{Path: "./itter.db"},
		Log: LogConfig{
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 30,
		},
		UI: UIConfig{
			SidebarWidth:       25,
			SidebarScrollStep:  3,
			WatchRefresh:       duration(15 * time.Second),
			HeaderRows:         3,
			FooterRows:         1,
			PromptRows:         1,
			MinTimelineWidth:   20,
			EetsPerMinuteLimit: 12,
		},
	}
}

// Load reads a TOML config file and merges it over the defaults.
// A missing file is not an error; the defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.HostKeyPath == "" {
		return fmt.Errorf("host_key_path is required")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.UI.SidebarWidth < 10 {
		return fmt.Errorf("ui.sidebar_width must be at least 10, got %d", c.UI.SidebarWidth)
	}
	if c.UI.SidebarScrollStep < 1 {
		return fmt.Errorf("ui.sidebar_scroll_step must be positive, got %d", c.UI.SidebarScrollStep)
	}
	if c.UI.RefreshInterval() < time.Second {
		return fmt.Errorf("ui.watch_refresh must be at least 1s, got %s", c.UI.RefreshInterval())
	}
	return nil
}
