package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete windowbus node configuration
type Config struct {
	Node      NodeConfig      `mapstructure:"node" yaml:"node"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	WebSocket WebSocketConfig `mapstructure:"websocket" yaml:"websocket"`
	Mailbox   MailboxConfig   `mapstructure:"mailbox" yaml:"mailbox"`
	Redis     RedisConfig     `mapstructure:"redis" yaml:"redis"`
	Monitor   MonitorConfig   `mapstructure:"monitor" yaml:"monitor"`
}

// NodeConfig identifies this node
type NodeConfig struct {
	// ID names the node on shared channels. Empty means a random id is
	// generated at startup.
	ID string `mapstructure:"id" yaml:"id"`
}

// LoggingConfig controls the node's structured log output
type LoggingConfig struct {
	// Level is the minimum level written: "debug", "info", "warn" or "error"
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is the directory holding windowbus.log. Empty logs to stderr.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the log size that triggers rotation
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
}

// WebSocketConfig controls the websocket listener and outbound peers
type WebSocketConfig struct {
	// Listen is the host:port the node serves /ws, /healthz and /stats on.
	// Empty disables the listener.
	Listen string `mapstructure:"listen" yaml:"listen"`
	// Peers are websocket URLs (ws:// or wss://) the node dials and keeps connected
	Peers []string `mapstructure:"peers" yaml:"peers"`
	// ReconnectIntervalMs is the delay between attempts to re-dial a lost peer
	ReconnectIntervalMs int `mapstructure:"reconnect_interval_ms" yaml:"reconnect_interval_ms"`
}

// MailboxConfig controls file-based relaying between processes on one host
type MailboxConfig struct {
	// Dir is the shared directory. "~" expands to the home directory.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// Name is this node's inbox name
	Name string `mapstructure:"name" yaml:"name"`
	// Peers are the inbox names of the processes to relay with
	Peers []string `mapstructure:"peers" yaml:"peers"`
	// PollIntervalMs is the fallback re-read interval
	PollIntervalMs int `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
}

// RedisConfig controls relaying over a Redis pub/sub channel
type RedisConfig struct {
	// URL is a redis:// URL or host:port. Empty disables Redis.
	URL string `mapstructure:"url" yaml:"url"`
	// Channel is the pub/sub channel shared by every node
	Channel string `mapstructure:"channel" yaml:"channel"`
}

// MonitorConfig controls the live event view
type MonitorConfig struct {
	// MaxEvents is how many recent events the monitor keeps on screen
	MaxEvents int `mapstructure:"max_events" yaml:"max_events"`
}

// ReconnectInterval returns the peer re-dial delay as a time.Duration
func (c *WebSocketConfig) ReconnectInterval() time.Duration {
	return time.Duration(c.ReconnectIntervalMs) * time.Millisecond
}

// PollInterval returns the inbox poll interval as a time.Duration
func (c *MailboxConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// Enabled reports whether any mailbox peers are configured
func (c *MailboxConfig) Enabled() bool {
	return len(c.Peers) > 0
}

// ResolveDir returns the mailbox directory with ~ expanded. Relative paths
// are resolved against baseDir.
func (c *MailboxConfig) ResolveDir(baseDir string) string {
	return expandPath(c.Dir, baseDir)
}

// ResolveDir returns the log directory with ~ expanded, or "" for stderr.
func (c *LoggingConfig) ResolveDir(baseDir string) string {
	if c.Dir == "" {
		return ""
	}
	return expandPath(c.Dir, baseDir)
}

// expandPath expands a leading ~ and resolves relative paths against baseDir.
func expandPath(path, baseDir string) string {
	if path == "" {
		return baseDir
	}

	// Expand ~ to home directory
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	// If relative path, resolve relative to baseDir
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	return path
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			ID: "", // Generated at startup
		},
		Logging: LoggingConfig{
			Level:      "info",
			Dir:        "", // stderr
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		WebSocket: WebSocketConfig{
			Listen:              "127.0.0.1:7420",
			Peers:               []string{},
			ReconnectIntervalMs: 2000,
		},
		Mailbox: MailboxConfig{
			Dir:            filepath.Join(os.TempDir(), "windowbus"),
			Name:           "",
			Peers:          []string{},
			PollIntervalMs: 500,
		},
		Redis: RedisConfig{
			URL:     "", // Disabled
			Channel: "windowbus",
		},
		Monitor: MonitorConfig{
			MaxEvents: 500,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Node defaults
	viper.SetDefault("node.id", defaults.Node.ID)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	// WebSocket defaults
	viper.SetDefault("websocket.listen", defaults.WebSocket.Listen)
	viper.SetDefault("websocket.peers", defaults.WebSocket.Peers)
	viper.SetDefault("websocket.reconnect_interval_ms", defaults.WebSocket.ReconnectIntervalMs)

	// Mailbox defaults
	viper.SetDefault("mailbox.dir", defaults.Mailbox.Dir)
	viper.SetDefault("mailbox.name", defaults.Mailbox.Name)
	viper.SetDefault("mailbox.peers", defaults.Mailbox.Peers)
	viper.SetDefault("mailbox.poll_interval_ms", defaults.Mailbox.PollIntervalMs)

	// Redis defaults
	viper.SetDefault("redis.url", defaults.Redis.URL)
	viper.SetDefault("redis.channel", defaults.Redis.Channel)

	// Monitor defaults
	viper.SetDefault("monitor.max_events", defaults.Monitor.MaxEvents)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "windowbus")
	}
	// Fall back to ~/.config/windowbus
	home, err := os.UserHomeDir()
	if err != nil {
		return ".windowbus"
	}
	return filepath.Join(home, ".config", "windowbus")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// EnvPrefix is the prefix for environment variable overrides,
// e.g. WINDOWBUS_WEBSOCKET_LISTEN.
const EnvPrefix = "WINDOWBUS"
