package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	StorePrice  StorePriceConfig  `yaml:"storeprice"`
	Feed        FeedConfig        `yaml:"feed"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Currency    CurrencyConfig    `yaml:"currency"`
	Preferences PreferencesConfig `yaml:"preferences"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type StorePriceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type FeedConfig struct {
	SeedFiles []string        `yaml:"seed_files"`
	Files     FileFeedConfig  `yaml:"files"`
	S3        S3FeedConfig    `yaml:"s3"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

type FileFeedConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Paths        []string      `yaml:"paths"`
	ScanInterval time.Duration `yaml:"scan_interval"`
}

type S3FeedConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Bucket          string        `yaml:"bucket"`
	Prefix          string        `yaml:"prefix"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	PathStyle       bool          `yaml:"path_style"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
}

type WebSocketConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
}

type CatalogConfig struct {
	FastInterval    time.Duration `yaml:"fast_interval"`
	SlowInterval    time.Duration `yaml:"slow_interval"`
	Warmup          time.Duration `yaml:"warmup"`
	FailsafeTimeout time.Duration `yaml:"failsafe_timeout"`
}

type CurrencyConfig struct {
	Default           string        `yaml:"default"`
	Provider          string        `yaml:"provider"`
	URL               string        `yaml:"url"`
	BinanceURL        string        `yaml:"binance_url"`
	RefreshInterval   time.Duration `yaml:"refresh_interval"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

type PreferencesConfig struct {
	Path string `yaml:"path"`
}

type DashboardConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Address            string        `yaml:"address"`
	RefreshInterval    time.Duration `yaml:"refresh_interval"`
	LogHistory         int           `yaml:"log_history"`
	MetricsHistory     int           `yaml:"metrics_history"`
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`
	ImagesDir          string        `yaml:"images_dir"`
	Push               PushConfig    `yaml:"push"`
}

type PushConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second"`
	BurstSize         int  `yaml:"burst_size"`
	MaxRows           int  `yaml:"max_rows"`
}

type MetricsConfig struct {
	Prometheus bool             `yaml:"prometheus"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Region        string `yaml:"region"`
	Namespace     string `yaml:"namespace"`
	DashboardName string `yaml:"dashboard_name"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

const (
	ProviderHTTP    = "http"
	ProviderBinance = "binance"
	ProviderNone    = "none"
)

const DefaultPath = "config/config.yml"

var envConfigPaths = map[Environment]string{
	EnvironmentProduction: "config/config.production.yml",
	EnvironmentStaging:    "config/config.staging.yml",
}

// ResolvePath picks the APP_ENV specific file when path is the default.
func ResolvePath(path string) string {
	return resolveEnvSpecificPath(path, DefaultPath, envConfigPaths)
}

// Default returns the configuration used for keys missing from the file.
func Default() Config {
	return Config{
		StorePrice: StorePriceConfig{Name: "storeprice", Version: "dev"},
		Feed: FeedConfig{
			Files:     FileFeedConfig{ScanInterval: 5 * time.Second},
			S3:        S3FeedConfig{PollInterval: 30 * time.Second},
			WebSocket: WebSocketConfig{ReconnectDelay: 5 * time.Second, ReadTimeout: 90 * time.Second},
		},
		Catalog: CatalogConfig{
			FastInterval:    500 * time.Millisecond,
			SlowInterval:    3 * time.Second,
			Warmup:          10 * time.Second,
			FailsafeTimeout: 8 * time.Second,
		},
		Currency: CurrencyConfig{
			Default:           "USD",
			Provider:          ProviderNone,
			RefreshInterval:   time.Hour,
			Timeout:           10 * time.Second,
			RequestsPerMinute: 6,
		},
		Preferences: PreferencesConfig{Path: "data/preferences.db"},
		Dashboard: DashboardConfig{
			Enabled:            true,
			Address:            "0.0.0.0:8080",
			RefreshInterval:    5 * time.Second,
			LogHistory:         200,
			MetricsHistory:     200,
			SessionIdleTimeout: 24 * time.Hour,
			Push:               PushConfig{Enabled: true, RequestsPerSecond: 5, BurstSize: 10, MaxRows: 5000},
		},
		Metrics: MetricsConfig{
			Prometheus: true,
			CloudWatch: CloudWatchConfig{Namespace: "StorePrice", DashboardName: "StorePrice"},
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)

	config.Feed.S3.Bucket = strings.TrimSpace(config.Feed.S3.Bucket)
	config.Currency.Default = strings.ToUpper(strings.TrimSpace(config.Currency.Default))
	config.Currency.Provider = strings.ToLower(strings.TrimSpace(config.Currency.Provider))

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(config *Config) {
	if config.Feed.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Feed.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Feed.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Feed.S3.Region = strings.TrimSpace(v)
		}
	}
	if v := os.Getenv("FEED_S3_BUCKET"); v != "" {
		config.Feed.S3.Bucket = v
	}
	if v := os.Getenv("RATES_URL"); v != "" {
		config.Currency.URL = strings.TrimSpace(v)
		if config.Currency.Provider == ProviderNone || config.Currency.Provider == "" {
			config.Currency.Provider = ProviderHTTP
		}
	}
	if v := os.Getenv("DASHBOARD_ADDRESS"); v != "" {
		config.Dashboard.Address = strings.TrimSpace(v)
	}
	if v := os.Getenv("PREFERENCES_PATH"); v != "" {
		config.Preferences.Path = strings.TrimSpace(v)
	}
}

func validateConfig(cfg *Config) error {
	if cfg.StorePrice.Name == "" {
		return fmt.Errorf("storeprice.name is required")
	}
	if cfg.StorePrice.Version == "" {
		return fmt.Errorf("storeprice.version is required")
	}

	if cfg.Feed.Files.Enabled {
		if len(cfg.Feed.Files.Paths) == 0 {
			return fmt.Errorf("feed.files.paths is required when file feed is enabled")
		}
		if cfg.Feed.Files.ScanInterval <= 0 {
			return fmt.Errorf("feed.files.scan_interval must be greater than 0")
		}
	}

	if cfg.Feed.S3.Enabled {
		if cfg.Feed.S3.Bucket == "" {
			return fmt.Errorf("feed.s3.bucket is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Feed.S3.Bucket) {
			return fmt.Errorf("feed.s3.bucket '%s' is invalid", cfg.Feed.S3.Bucket)
		}
		if cfg.Feed.S3.Region == "" {
			return fmt.Errorf("feed.s3.region is required when S3 is enabled")
		}
		if (cfg.Feed.S3.AccessKeyID == "") != (cfg.Feed.S3.SecretAccessKey == "") {
			return fmt.Errorf("feed.s3.access_key_id and feed.s3.secret_access_key must be set together")
		}
		if cfg.Feed.S3.PollInterval <= 0 {
			return fmt.Errorf("feed.s3.poll_interval must be greater than 0")
		}
	}

	if cfg.Feed.WebSocket.Enabled {
		u := cfg.Feed.WebSocket.URL
		if !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
			return fmt.Errorf("feed.websocket.url must be a ws:// or wss:// URL")
		}
	}

	if cfg.Catalog.FastInterval <= 0 {
		return fmt.Errorf("catalog.fast_interval must be greater than 0")
	}
	if cfg.Catalog.SlowInterval < cfg.Catalog.FastInterval {
		return fmt.Errorf("catalog.slow_interval must not be shorter than catalog.fast_interval")
	}
	if cfg.Catalog.Warmup < 0 {
		return fmt.Errorf("catalog.warmup must not be negative")
	}
	if cfg.Catalog.FailsafeTimeout <= 0 {
		return fmt.Errorf("catalog.failsafe_timeout must be greater than 0")
	}

	switch cfg.Currency.Provider {
	case ProviderNone:
	case ProviderHTTP:
		if cfg.Currency.URL == "" {
			return fmt.Errorf("currency.url is required for the http provider")
		}
	case ProviderBinance:
	default:
		return fmt.Errorf("currency.provider '%s' is not one of http, binance, none", cfg.Currency.Provider)
	}
	if cfg.Currency.Default == "" {
		return fmt.Errorf("currency.default is required")
	}
	if cfg.Currency.Provider != ProviderNone && cfg.Currency.RefreshInterval <= 0 {
		return fmt.Errorf("currency.refresh_interval must be greater than 0")
	}

	if cfg.Dashboard.Enabled && cfg.Dashboard.Push.Enabled && cfg.Dashboard.Push.RequestsPerSecond <= 0 {
		return fmt.Errorf("dashboard.push.requests_per_second must be greater than 0")
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json":
	case "text":
		if AppEnvironment().ProductionLike() {
			return fmt.Errorf("logging.format must be json in %s", AppEnvironment())
		}
	default:
		return fmt.Errorf("logging.format '%s' is not one of json, text", cfg.Logging.Format)
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
