package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/elonfeng/jokemachine/internal/scheduler"
	"github.com/elonfeng/jokemachine/pkg/ingest"
	"github.com/elonfeng/jokemachine/pkg/source"
)

const defaultDownloadAmount = 25

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Schedule ScheduleConfig `yaml:"schedule"`
	// RandomIntervalTime is the upper bound, in seconds, of the jitter added
	// for sources with random_intervals set.
	RandomIntervalTime int            `yaml:"random_interval_time"`
	Sources            []SourceConfig `yaml:"sources"`
	Alerts             AlertsConfig   `yaml:"alerts"`
	Server             ServerConfig   `yaml:"server"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig configures the root logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// FetchConfig configures the shared HTTP fetcher.
type FetchConfig struct {
	Timeout              string  `yaml:"timeout"`
	UserAgent            string  `yaml:"user_agent"`
	MaxRequestsPerSecond float64 `yaml:"max_requests_per_second"`
}

// ParseTimeout returns the request timeout as time.Duration.
func (f FetchConfig) ParseTimeout() time.Duration {
	d, err := time.ParseDuration(f.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// ScheduleConfig configures automatic mode. Interval is a duration or a cron
// expression.
type ScheduleConfig struct {
	Interval string `yaml:"interval"`
}

// SourceConfig configures one joke source.
type SourceConfig struct {
	Name    string      `yaml:"name"`
	Kind    source.Kind `yaml:"kind"`
	Tag     string      `yaml:"tag"`
	BaseURL string      `yaml:"base_url"`
	Paths   []string    `yaml:"paths"`
	// RefreshDelay is the source's mandatory delay between requests, in seconds.
	RefreshDelay    int  `yaml:"refresh_delay"`
	DownloadAmount  int  `yaml:"download_amount"`
	RandomIntervals bool `yaml:"random_intervals"`
	ItemsPerPage    int  `yaml:"items_per_page"`
	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled"`
}

// IsEnabled reports whether the source takes part in full updates.
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// AlertsConfig configures cycle report destinations.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook reports.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
	// OnlyFailures suppresses reports for cycles that completed.
	OnlyFailures bool `yaml:"only_failures"`
}

// DiscordConfig for Discord webhook reports.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook reports.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./jokemachine.db"},
		Log:      LogConfig{Level: "info", Format: "console"},
		Fetch: FetchConfig{
			Timeout:   "30s",
			UserAgent: "jokemachine/1.0",
		},
		Schedule:           ScheduleConfig{Interval: "1h"},
		RandomIntervalTime: 25,
		Sources: []SourceConfig{
			{
				Name:           "reddit",
				Kind:           source.KindJSONAPI,
				Tag:            "Reddit Jokes Group",
				BaseURL:        "http://www.reddit.com",
				Paths:          []string{"r/Jokes/.json"},
				RefreshDelay:   60,
				DownloadAmount: 25,
			},
			{
				Name:           "ebaumsworld",
				Kind:           source.KindHTMLSite,
				Tag:            "eBaum's World Jokes",
				BaseURL:        "http://www.ebaumsworld.com",
				Paths:          []string{"jokes/latest/{page}"},
				RefreshDelay:   60,
				DownloadAmount: 24,
			},
			{
				Name:           "sickipedia",
				Kind:           source.KindRSSFeed,
				Tag:            "Sickipedia Jokes",
				BaseURL:        "http://www.sickipedia.org",
				Paths:          []string{"feeds/highestvoted", "feeds/latest"},
				RefreshDelay:   60,
				DownloadAmount: 25,
			},
		},
		Alerts: AlertsConfig{},
		Server: ServerConfig{Port: 8080},
	}
}

// Load reads configuration from a YAML file, applies env var overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("JOKEMACHINE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("JOKEMACHINE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
	if v := os.Getenv("JOKEMACHINE_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Webhook.URL = v
		cfg.Alerts.Webhook.Enabled = true
	}
	if v := os.Getenv("JOKEMACHINE_WEBHOOK_SECRET"); v != "" {
		cfg.Alerts.Webhook.Secret = v
	}
}

// Validate checks the schedule and the source list.
func (c *Config) Validate() error {
	var errs []error
	if _, _, err := scheduler.ParseSchedule(c.Schedule.Interval); err != nil {
		errs = append(errs, fmt.Errorf("schedule.interval: %w", err))
	}
	seen := make(map[string]bool)
	for i, s := range c.Sources {
		name := s.Name
		if name == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: name required", i))
			name = fmt.Sprintf("sources[%d]", i)
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate source name", name))
		}
		seen[s.Name] = true
		if !source.Registered(s.Kind) {
			errs = append(errs, fmt.Errorf("%s: unknown kind %q (want one of %v)", name, s.Kind, source.Kinds()))
		}
		if s.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s: base_url required", name))
		}
		if s.RefreshDelay < 0 {
			errs = append(errs, fmt.Errorf("%s: refresh_delay must not be negative", name))
		}
		if s.DownloadAmount < 0 {
			errs = append(errs, fmt.Errorf("%s: download_amount must not be negative", name))
		}
	}
	if c.RandomIntervalTime < 0 {
		errs = append(errs, errors.New("random_interval_time must not be negative"))
	}
	return errors.Join(errs...)
}

// SourceSpecs returns the enabled sources as ingest specs. A non-empty only
// restricts the result to the named sources; amount overrides every source's
// download_amount when positive.
func (c *Config) SourceSpecs(only []string, amount int) ([]ingest.SourceSpec, error) {
	want := make(map[string]bool, len(only))
	for _, n := range only {
		if n = strings.TrimSpace(n); n != "" {
			want[n] = true
		}
	}

	var specs []ingest.SourceSpec
	for _, s := range c.Sources {
		if len(want) > 0 {
			if !want[s.Name] {
				continue
			}
			delete(want, s.Name)
		} else if !s.IsEnabled() {
			continue
		}
		specs = append(specs, c.spec(s, amount))
	}

	if len(want) > 0 {
		names := make([]string, 0, len(want))
		for n := range want {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown sources: %s", strings.Join(names, ", "))
	}
	return specs, nil
}

func (c *Config) spec(s SourceConfig, amount int) ingest.SourceSpec {
	if amount <= 0 {
		amount = s.DownloadAmount
	}
	if amount <= 0 {
		amount = defaultDownloadAmount
	}
	tag := s.Tag
	if tag == "" {
		tag = s.Name
	}
	spec := ingest.SourceSpec{
		Name: s.Name,
		Kind: s.Kind,
		Adapter: source.Config{
			Name:         s.Name,
			Tag:          tag,
			BaseURL:      s.BaseURL,
			Paths:        s.Paths,
			ItemsPerPage: s.ItemsPerPage,
		},
		MinInterval: time.Duration(s.RefreshDelay) * time.Second,
		Amount:      amount,
	}
	if s.RandomIntervals {
		spec.MaxJitter = time.Duration(c.RandomIntervalTime) * time.Second
	}
	return spec
}
