package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeTempConfig writes content to a temporary config file and returns its
// path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, `storeprice:
  name: "TestApp"
  version: "1.0"
feed:
  seed_files: ["data/seed/*.js"]
  files:
    enabled: true
    paths: ["data/rows/*.json"]
    scan_interval: 2s
catalog:
  slow_interval: 4s
currency:
  default: sar
  provider: HTTP
  url: "https://rates.example.com/latest"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.StorePrice.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.StorePrice.Name)
	}
	if cfg.Feed.Files.ScanInterval != 2*time.Second {
		t.Errorf("unexpected scan interval: %s", cfg.Feed.Files.ScanInterval)
	}
	if cfg.Catalog.SlowInterval != 4*time.Second || cfg.Catalog.FastInterval != 500*time.Millisecond {
		t.Errorf("defaults not merged: %+v", cfg.Catalog)
	}
	if cfg.Currency.Default != "SAR" || cfg.Currency.Provider != ProviderHTTP {
		t.Errorf("currency not normalised: %+v", cfg.Currency)
	}
	if cfg.Currency.RefreshInterval != time.Hour {
		t.Errorf("unexpected refresh interval: %s", cfg.Currency.RefreshInterval)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("RATES_URL", "https://rates.example.com/usd")
	t.Setenv("DASHBOARD_ADDRESS", ":9090")
	t.Setenv("FEED_S3_BUCKET", "row-feed")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")

	path := writeTempConfig(t, `storeprice:
  name: "TestApp"
  version: "1.0"
feed:
  s3:
    enabled: true
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Currency.Provider != ProviderHTTP || cfg.Currency.URL != "https://rates.example.com/usd" {
		t.Errorf("RATES_URL not applied: %+v", cfg.Currency)
	}
	if cfg.Dashboard.Address != ":9090" {
		t.Errorf("DASHBOARD_ADDRESS not applied: %s", cfg.Dashboard.Address)
	}
	if cfg.Feed.S3.Bucket != "row-feed" || cfg.Feed.S3.Region != "eu-west-1" {
		t.Errorf("S3 overrides not applied: %+v", cfg.Feed.S3)
	}
}

func TestValidateConfigErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing name", func(c *Config) { c.StorePrice.Name = "" }, "storeprice.name"},
		{"file feed without paths", func(c *Config) { c.Feed.Files.Enabled = true }, "feed.files.paths"},
		{"bad bucket", func(c *Config) {
			c.Feed.S3 = S3FeedConfig{Enabled: true, Bucket: "Bad..Bucket", Region: "x", PollInterval: time.Second}
		}, "feed.s3.bucket"},
		{"half credentials", func(c *Config) {
			c.Feed.S3 = S3FeedConfig{Enabled: true, Bucket: "rows", Region: "x", PollInterval: time.Second, AccessKeyID: "a"}
		}, "set together"},
		{"websocket scheme", func(c *Config) {
			c.Feed.WebSocket = WebSocketConfig{Enabled: true, URL: "http://x"}
		}, "feed.websocket.url"},
		{"slow faster than fast", func(c *Config) { c.Catalog.SlowInterval = time.Millisecond }, "catalog.slow_interval"},
		{"unknown provider", func(c *Config) { c.Currency.Provider = "fax" }, "currency.provider"},
		{"http without url", func(c *Config) { c.Currency.Provider = ProviderHTTP }, "currency.url"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := Default()
			c.mutate(&cfg)
			err := validateConfig(&cfg)
			if err == nil || !strings.Contains(err.Error(), c.want) {
				t.Fatalf("expected error mentioning %q, got %v", c.want, err)
			}
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := validateConfig(&cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestTextLogsRejectedInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	cfg := Default()
	cfg.Logging.Format = "text"
	if err := validateConfig(&cfg); err == nil {
		t.Fatalf("expected text logs to be rejected in production")
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv("APP_ENV", "stagging")
	if got := ResolvePath(""); got != "config/config.staging.yml" {
		t.Fatalf("ResolvePath = %q", got)
	}
	if got := ResolvePath("custom.yml"); got != "custom.yml" {
		t.Fatalf("explicit path should win, got %q", got)
	}
	t.Setenv("APP_ENV", "")
	if got := ResolvePath(DefaultPath); got != DefaultPath {
		t.Fatalf("development should keep default path, got %q", got)
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"valid-bucket", true},
		{"Invalid", false},
		{"ab", false},
		{"my..bucket", false},
	}
	for _, c := range cases {
		if got := isValidS3Bucket(c.name); got != c.valid {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", c.name, got, c.valid)
		}
	}
}

func TestShippedConfigsLoad(t *testing.T) {
	for name, env := range map[string]string{
		"config.yml":            "development",
		"config.production.yml": "production",
	} {
		t.Setenv("APP_ENV", env)
		cfg, err := LoadConfig(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if cfg.Currency.Default != "USD" {
			t.Errorf("%s: default currency %q", name, cfg.Currency.Default)
		}
		if len(cfg.Feed.SeedFiles) == 0 {
			t.Errorf("%s: no seed files", name)
		}
	}
}
