package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/elonfeng/jokemachine/pkg/source"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Sources) != 3 {
		t.Fatalf("expected 3 default sources, got %d", len(cfg.Sources))
	}
	if cfg.Schedule.Interval != "1h" {
		t.Errorf("unexpected interval %q", cfg.Schedule.Interval)
	}
	if cfg.RandomIntervalTime != 25 {
		t.Errorf("unexpected random interval time %d", cfg.RandomIntervalTime)
	}

	specs, err := cfg.SourceSpecs(nil, 0)
	if err != nil {
		t.Fatalf("SourceSpecs failed: %v", err)
	}
	if len(specs) != 3 {
		t.Fatalf("expected 3 specs, got %d", len(specs))
	}
	for _, s := range specs {
		if s.MinInterval != time.Minute {
			t.Errorf("%s: unexpected interval %s", s.Name, s.MinInterval)
		}
		if s.MaxJitter != 0 {
			t.Errorf("%s: jitter should be off by default", s.Name)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/jokes.db
schedule:
  interval: 30m
random_interval_time: 10
sources:
  - name: reddit
    kind: jsonapi
    tag: Reddit Jokes Group
    base_url: http://www.reddit.com
    refresh_delay: 120
    download_amount: 50
    random_intervals: true
  - name: feed
    kind: rssfeed
    base_url: http://example.com
    paths: [rss]
    enabled: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.Path != "/tmp/jokes.db" {
		t.Errorf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.Schedule.Interval != "30m" {
		t.Errorf("unexpected interval %q", cfg.Schedule.Interval)
	}

	specs, err := cfg.SourceSpecs(nil, 0)
	if err != nil {
		t.Fatalf("SourceSpecs failed: %v", err)
	}
	if len(specs) != 1 {
		t.Fatalf("disabled source should be skipped, got %d specs", len(specs))
	}
	s := specs[0]
	if s.Kind != source.KindJSONAPI || s.Amount != 50 || s.MinInterval != 2*time.Minute {
		t.Errorf("unexpected spec %+v", s)
	}
	if s.MaxJitter != 10*time.Second {
		t.Errorf("expected 10s jitter, got %s", s.MaxJitter)
	}

	// Naming a disabled source runs it anyway, with the amount override.
	specs, err = cfg.SourceSpecs([]string{"feed"}, 7)
	if err != nil {
		t.Fatalf("SourceSpecs failed: %v", err)
	}
	if len(specs) != 1 || specs[0].Name != "feed" || specs[0].Amount != 7 {
		t.Errorf("unexpected filtered specs %+v", specs)
	}
	if specs[0].Adapter.Tag != "feed" {
		t.Errorf("tag should default to the name, got %q", specs[0].Adapter.Tag)
	}
}

func TestSourceSpecsUnknownName(t *testing.T) {
	_, err := Default().SourceSpecs([]string{"reddit", "nope", "also-nope"}, 0)
	if err == nil || !strings.Contains(err.Error(), "also-nope, nope") {
		t.Errorf("expected unknown source error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		src  SourceConfig
		want string
	}{
		{"unknown kind", SourceConfig{Name: "x", Kind: "ftp", BaseURL: "http://x"}, "unknown kind"},
		{"missing base url", SourceConfig{Name: "x", Kind: source.KindRSSFeed}, "base_url required"},
		{"negative delay", SourceConfig{Name: "x", Kind: source.KindRSSFeed, BaseURL: "http://x", RefreshDelay: -1}, "refresh_delay"},
		{"missing name", SourceConfig{Kind: source.KindRSSFeed, BaseURL: "http://x"}, "name required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Sources = []SourceConfig{tt.src}
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("JOKEMACHINE_DB_PATH", "/data/jokes.db")
	t.Setenv("JOKEMACHINE_LOG_LEVEL", "debug")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.com/services/x")
	t.Setenv("JOKEMACHINE_WEBHOOK_URL", "https://example.com/hook")
	t.Setenv("JOKEMACHINE_WEBHOOK_SECRET", "s3cret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.Path != "/data/jokes.db" || cfg.Log.Level != "debug" {
		t.Errorf("overrides not applied: %+v %+v", cfg.Database, cfg.Log)
	}
	if !cfg.Alerts.Slack.Enabled || !cfg.Alerts.Webhook.Enabled || cfg.Alerts.Webhook.Secret != "s3cret" {
		t.Errorf("alert overrides not applied: %+v", cfg.Alerts)
	}
}

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		interval string
		wantErr  bool
	}{
		{"1h", false},
		{"@daily", false},
		{"0 */6 * * *", false},
		{"", false},
		{"-5m", true},
		{"whenever", true},
	}

	for _, tt := range tests {
		cfg := Default()
		cfg.Schedule.Interval = tt.interval
		err := cfg.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("interval %q: error = %v, wantErr %v", tt.interval, err, tt.wantErr)
		}
		if err != nil && !strings.Contains(err.Error(), "schedule.interval") {
			t.Errorf("interval %q: error should name the field, got %v", tt.interval, err)
		}
	}
}
