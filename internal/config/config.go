package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultPort is the standard IRC port, used whenever a configured port
// can't be parsed.
const DefaultPort = 6667

// MaxLineLength is the IRC protocol ceiling for a single line, including
// the trailing CRLF.
const MaxLineLength = 512

// Config holds all runtime configuration. It is built once at startup and
// handed to every component that needs it.
type Config struct {
	IRC      IRCConfig      `yaml:"irc" envPrefix:"IRC_"`
	Bot      BotConfig      `yaml:"bot" envPrefix:"BOT_"`
	HTTP     HTTPConfig     `yaml:"http" envPrefix:"HTTP_"`
	Webhook  WebhookConfig  `yaml:"webhook" envPrefix:"WEBHOOK_"`
	Feed     FeedConfig     `yaml:"feed" envPrefix:"FEED_"`
	Bridge   BridgeConfig   `yaml:"bridge" envPrefix:"BRIDGE_"`
	Storage  StorageConfig  `yaml:"storage" envPrefix:"STORAGE_"`
	Watchdog WatchdogConfig `yaml:"watchdog" envPrefix:"WATCHDOG_"`

	// MaxMessageLength is derived from IRC.Channel by Load.
	MaxMessageLength int `yaml:"-"`
}

// IRCConfig describes the single server and channel the bot lives in.
type IRCConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     string `yaml:"port" env:"PORT"`
	Channel  string `yaml:"channel" env:"CHANNEL"`
	Key      string `yaml:"key" env:"KEY"`
	Nickname string `yaml:"nickname" env:"NICKNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
	TLS      bool   `yaml:"tls" env:"TLS"`
}

// BotConfig selects the behaviors composed into the channel bot.
type BotConfig struct {
	Enabled   bool     `yaml:"enabled" env:"ENABLED"`
	Behaviors []string `yaml:"behaviors" env:"BEHAVIORS" envSeparator:","`
}

type HTTPConfig struct {
	Listen         string   `yaml:"listen" env:"LISTEN"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// WebhookConfig holds the URL prefix commit webhooks are served under.
type WebhookConfig struct {
	Prefix string `yaml:"prefix" env:"PREFIX"`
}

type FeedConfig struct {
	URLs     []string      `yaml:"urls" env:"URLS" envSeparator:","`
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
}

// BridgeConfig controls the web session bridge.
type BridgeConfig struct {
	Enabled      bool   `yaml:"enabled" env:"ENABLED"`
	EscapePrefix string `yaml:"escape_prefix" env:"ESCAPE_PREFIX"`
}

// StorageConfig selects the message log sink. Driver is one of "none",
// "file" or "sqlite".
type StorageConfig struct {
	Driver    string `yaml:"driver" env:"DRIVER"`
	Path      string `yaml:"path" env:"PATH"`
	QueueSize int    `yaml:"queue_size" env:"QUEUE_SIZE"`
}

type WatchdogConfig struct {
	CheckInterval time.Duration `yaml:"check_interval" env:"CHECK_INTERVAL"`
	BackoffBase   time.Duration `yaml:"backoff_base" env:"BACKOFF_BASE"`
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	cfg := &Config{
		IRC: IRCConfig{
			Host:     "irc.libera.chat",
			Port:     strconv.Itoa(DefaultPort),
			Channel:  "#chanbridge",
			Nickname: "chanbridge",
		},
		Bot: BotConfig{
			Enabled:   true,
			Behaviors: []string{"commands"},
		},
		HTTP: HTTPConfig{
			Listen: "127.0.0.1:8080",
		},
		Webhook: WebhookConfig{
			Prefix: "/webhook/",
		},
		Feed: FeedConfig{
			Interval: 60 * time.Second,
		},
		Bridge: BridgeConfig{
			Enabled:      true,
			EscapePrefix: "/",
		},
		Storage: StorageConfig{
			Driver:    "none",
			QueueSize: 256,
		},
		Watchdog: WatchdogConfig{
			CheckInterval: 5 * time.Second,
			BackoffBase:   5 * time.Second,
		},
	}
	cfg.MaxMessageLength = MaxMessageLength(cfg.IRC.Channel)
	return cfg
}

// Load reads a YAML configuration file and applies CHANBRIDGE_* environment
// overrides on top. A missing file is not an error; defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "CHANBRIDGE_"}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.MaxMessageLength = MaxMessageLength(cfg.IRC.Channel)
	return cfg, nil
}

func (c *Config) normalize() {
	def := Default()
	if c.Webhook.Prefix == "" {
		c.Webhook.Prefix = def.Webhook.Prefix
	}
	if !strings.HasSuffix(c.Webhook.Prefix, "/") {
		c.Webhook.Prefix += "/"
	}
	if c.Feed.Interval <= 0 {
		c.Feed.Interval = def.Feed.Interval
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = def.Storage.Driver
	}
	if c.Storage.QueueSize <= 0 {
		c.Storage.QueueSize = def.Storage.QueueSize
	}
	if c.Watchdog.CheckInterval <= 0 {
		c.Watchdog.CheckInterval = def.Watchdog.CheckInterval
	}
	if c.Watchdog.BackoffBase <= 0 {
		c.Watchdog.BackoffBase = def.Watchdog.BackoffBase
	}
}

// Validate reports configuration that can't work at all.
func (c *Config) Validate() error {
	var errs []error
	if c.IRC.Nickname == "" {
		errs = append(errs, errors.New("irc.nickname is required"))
	}
	if !IsChannel(c.IRC.Channel) {
		errs = append(errs, fmt.Errorf("irc.channel %q is not a channel name", c.IRC.Channel))
	}
	switch c.Storage.Driver {
	case "none", "file", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Storage.Driver != "none" && c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path is required"))
	}
	return errors.Join(errs...)
}

// PortNumber returns the configured IRC port, see ParsePort.
func (c IRCConfig) PortNumber() int {
	return ParsePort(c.Port)
}

// ParsePort parses an IRC port, falling back to DefaultPort for anything
// that isn't a valid TCP port number.
func ParsePort(s string) int {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || port <= 0 || port > 65535 {
		return DefaultPort
	}
	return port
}

// MaxMessageLength returns the longest message text that fits a single
// PRIVMSG line to channel.
func MaxMessageLength(channel string) int {
	overhead := len("PRIVMSG " + channel + " :\r\n")
	return MaxLineLength - overhead
}

// IsChannel reports whether name looks like an IRC channel.
func IsChannel(name string) bool {
	return len(name) > 1 && (name[0] == '#' || name[0] == '&')
}
