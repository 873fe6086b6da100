package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"github.com/Fullex26/smsrelay/internal/keychain"
)

const DefaultConfigPath = "/etc/smsrelay/config.yaml"

// DefaultUserAgent is sent to every sink unless overridden
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36 Edg/138.0.0.0"

// keychainPrefix marks a credential that lives in the system keychain
const keychainPrefix = "keychain:"

// Config is loaded once at startup and treated as read-only afterwards.
type Config struct {
	Primary       PrimaryConfig      `yaml:"primary"`
	Secondary     []SinkConfig       `yaml:"secondary"`
	Rules         []RuleConfig       `yaml:"rules"`
	HTTP          HTTPConfig         `yaml:"http"`
	Notifications NotificationConfig `yaml:"notifications"`
	Timezone      string             `yaml:"timezone"`
	Server        ServerConfig       `yaml:"server"`
	Spool         SpoolConfig        `yaml:"spool"`
	Store         StoreConfig        `yaml:"store"`
}

// PrimaryConfig is the Gotify endpoint every SMS goes to
type PrimaryConfig struct {
	URL      string `yaml:"url"`
	Token    string `yaml:"token"` // literal, ${ENV} or keychain:<account>
	Title    string `yaml:"title"`
	Priority int    `yaml:"priority"`
}

// SinkConfig is a conditional secondary endpoint
type SinkConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// RuleConfig is one named content predicate and the sinks it switches on
type RuleConfig struct {
	Name    string   `yaml:"name"`
	Pattern string   `yaml:"pattern"`
	Sinks   []string `yaml:"sinks"`
}

type HTTPConfig struct {
	Timeout   string `yaml:"timeout"`
	UserAgent string `yaml:"user_agent"`
}

type NotificationConfig struct {
	Detailed bool           `yaml:"detailed"` // surface info and debug
	Debug    bool           `yaml:"debug"`    // surface debug
	Subtitle string         `yaml:"subtitle"`
	Telegram TelegramConfig `yaml:"telegram"`
	Ntfy     NtfyConfig     `yaml:"ntfy"`
	Discord  DiscordConfig  `yaml:"discord"`
}

type TelegramConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BotToken    string `yaml:"bot_token"`
	ChatID      string `yaml:"chat_id"`
	Interactive bool   `yaml:"interactive"` // answer /status and friends
}

type NtfyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Topic   string `yaml:"topic"`
	Server  string `yaml:"server"`
	Token   string `yaml:"token"`
}

type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"`
}

type SpoolConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type StoreConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Load reads and parses the config file, expanding env vars and
// resolving keychain credentials
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in config
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns sane defaults
func DefaultConfig() *Config {
	return &Config{
		Primary: PrimaryConfig{
			URL:      "https://gotify.cn/message",
			Title:    "iPhone 🆕💬",
			Priority: 5,
		},
		Secondary: []SinkConfig{
			{Name: "conditional", URL: "http://127.0.0.1:8000/hsh?z5"},
		},
		Rules: []RuleConfig{
			{Name: "conditional", Pattern: "(权益超市|和生活)", Sinks: []string{"conditional"}},
		},
		HTTP: HTTPConfig{
			Timeout:   "10s",
			UserAgent: DefaultUserAgent,
		},
		Notifications: NotificationConfig{
			Detailed: true,
			Debug:    false,
		},
		Timezone: "Asia/Shanghai",
		Server: ServerConfig{
			Listen: "127.0.0.1:8787",
		},
		Spool: SpoolConfig{
			Enabled: false,
			Dir:     "/var/spool/smsrelay",
		},
		Store: StoreConfig{
			Path:          "/var/lib/smsrelay/relay.db",
			RetentionDays: 30,
		},
	}
}

// Validate checks the config for errors. An empty primary token is not an
// error here: the pipeline refuses to run without it and reports that itself.
func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.Primary.URL); err != nil {
		return fmt.Errorf("primary url %q: %w", c.Primary.URL, err)
	}

	sinks := make(map[string]bool, len(c.Secondary))
	for _, s := range c.Secondary {
		if s.Name == "" {
			return fmt.Errorf("secondary sink name is required")
		}
		if sinks[s.Name] {
			return fmt.Errorf("duplicate secondary sink %q", s.Name)
		}
		if _, err := url.ParseRequestURI(s.URL); err != nil {
			return fmt.Errorf("secondary sink %q url: %w", s.Name, err)
		}
		sinks[s.Name] = true
	}

	for _, r := range c.Rules {
		if r.Name == "" {
			return fmt.Errorf("rule name is required")
		}
		if _, err := CompilePattern(r.Pattern); err != nil {
			return fmt.Errorf("rule %q: %w", r.Name, err)
		}
		for _, s := range r.Sinks {
			if !sinks[s] {
				return fmt.Errorf("rule %q references unknown sink %q", r.Name, s)
			}
		}
	}

	if _, err := time.ParseDuration(c.HTTP.Timeout); err != nil {
		return fmt.Errorf("invalid http timeout %q: %w", c.HTTP.Timeout, err)
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}

	if c.Notifications.Telegram.Enabled {
		if c.Notifications.Telegram.BotToken == "" {
			return fmt.Errorf("telegram bot_token is required when telegram is enabled")
		}
		if c.Notifications.Telegram.ChatID == "" {
			return fmt.Errorf("telegram chat_id is required when telegram is enabled")
		}
	}

	if c.Notifications.Ntfy.Enabled && c.Notifications.Ntfy.Topic == "" {
		return fmt.Errorf("ntfy topic is required when ntfy is enabled")
	}

	if c.Spool.Enabled && c.Spool.Dir == "" {
		return fmt.Errorf("spool dir is required when spool is enabled")
	}

	return nil
}

// TimeoutDuration returns the parsed sink timeout, falling back to 10s
func (c HTTPConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// Location returns the configured zone, falling back to UTC
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HasChannel returns whether an operator notification channel is configured
func (c *Config) HasChannel() bool {
	return c.Notifications.Telegram.Enabled ||
		c.Notifications.Ntfy.Enabled ||
		c.Notifications.Discord.Enabled
}

// CompilePattern compiles a rule pattern case-insensitively
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, fmt.Errorf("pattern is empty")
	}
	if !strings.HasPrefix(pattern, "(?i)") {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}

func (c *Config) resolveSecrets() error {
	var err error
	if c.Primary.Token, err = resolve(c.Primary.Token); err != nil {
		return fmt.Errorf("primary token: %w", err)
	}
	if c.Notifications.Telegram.BotToken, err = resolve(c.Notifications.Telegram.BotToken); err != nil {
		return fmt.Errorf("telegram bot_token: %w", err)
	}
	if c.Notifications.Ntfy.Token, err = resolve(c.Notifications.Ntfy.Token); err != nil {
		return fmt.Errorf("ntfy token: %w", err)
	}
	return nil
}

func resolve(value string) (string, error) {
	account, ok := strings.CutPrefix(value, keychainPrefix)
	if !ok {
		return value, nil
	}
	return keychain.Get(account)
}
