// Package config loads the papertrade YAML configuration.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	BackendWAL      = "wal"
	BackendFile     = "file"
	BackendPostgres = "postgres"

	SourceStatic      = "static"
	SourceBinance     = "binance"
	SourceBybit       = "bybit"
	SourceHyperliquid = "hyperliquid"

	// DSNEnv supplies the postgres DSN when the file leaves it empty.
	DSNEnv = "PAPERTRADE_POSTGRES_DSN"
)

var (
	knownBackends = []string{BackendWAL, BackendFile, BackendPostgres}
	knownSources  = []string{SourceStatic, SourceBinance, SourceBybit, SourceHyperliquid}
	knownLevels   = []string{"debug", "info", "warn", "error"}
)

type Config struct {
	AccountID       string
	StartingBalance decimal.Decimal
	QuoteCurrency   string
	Storage         StorageConfig
	Pricer          PricerConfig
	HTTPAddr        string
	// TLSDomains switches the server to HTTPS with ACME certificates.
	TLSDomains []string
	CertCache  string
	LogLevel   string
	Retry      RetryConfig
}

type StorageConfig struct {
	Backend          string
	Dir              string
	DSN              string
	SegmentThreshold int
}

type PricerConfig struct {
	// Sources are tried in order.
	Sources []string
	// Overrides pin prices of the static source, keyed by asset id or symbol.
	Overrides      map[string]decimal.Decimal
	HyperliquidURL string
}

type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// ConfigTmp is the YAML layout; decimals are kept as strings.
type ConfigTmp struct {
	AccountID       string `yaml:"account_id"`
	StartingBalance string `yaml:"starting_balance,omitempty"`
	QuoteCurrency   string `yaml:"quote_currency,omitempty"`
	Storage         struct {
		Backend          string `yaml:"backend,omitempty"`
		Dir              string `yaml:"dir,omitempty"`
		DSN              string `yaml:"dsn,omitempty"`
		SegmentThreshold int    `yaml:"segment_threshold,omitempty"`
	} `yaml:"storage"`
	Pricer struct {
		Sources        []string          `yaml:"sources,omitempty"`
		Overrides      map[string]string `yaml:"overrides,omitempty"`
		HyperliquidURL string            `yaml:"hyperliquid_url,omitempty"`
	} `yaml:"pricer"`
	HTTP struct {
		Addr       string   `yaml:"addr,omitempty"`
		TLSDomains []string `yaml:"tls_domains,omitempty"`
		CertCache  string   `yaml:"cert_cache,omitempty"`
	} `yaml:"http"`
	LogLevel string `yaml:"log_level,omitempty"`
	Retry    struct {
		// nil keeps the default; an explicit 0 disables retries
		MaxRetries      *int          `yaml:"max_retries,omitempty"`
		InitialInterval time.Duration `yaml:"initial_interval,omitempty"`
		MaxInterval     time.Duration `yaml:"max_interval,omitempty"`
	} `yaml:"retry"`
}

// Default returns a runnable local simulator configuration.
func Default() Config {
	return Config{
		AccountID:       "default",
		StartingBalance: decimal.NewFromInt(10000),
		QuoteCurrency:   "USDT",
		Storage: StorageConfig{
			Backend:          BackendWAL,
			Dir:              "./data",
			SegmentThreshold: 1000,
		},
		Pricer: PricerConfig{
			Sources:        []string{SourceStatic},
			Overrides:      map[string]decimal.Decimal{},
			HyperliquidURL: "https://api.hyperliquid.xyz",
		},
		HTTPAddr:  ":8080",
		CertCache: "cert-cache",
		LogLevel:  "info",
		Retry: RetryConfig{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
	}
}

// Load reads path over Default and validates the result. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	cfg, err := loadUnvalidated(path)
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func loadUnvalidated(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "read config")
		}
		if err := cfg.UnmarshalYAMLBytes(f); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()

	return cfg, nil
}

// UnmarshalYAMLBytes overlays the non-empty fields of a YAML document.
func (c *Config) UnmarshalYAMLBytes(data []byte) error {
	var tmp ConfigTmp
	if err := yaml.Unmarshal(data, &tmp); err != nil {
		return errors.Wrap(err, "parse config")
	}

	if tmp.AccountID != "" {
		c.AccountID = tmp.AccountID
	}
	if tmp.StartingBalance != "" {
		b, err := decimal.NewFromString(tmp.StartingBalance)
		if err != nil {
			return fmt.Errorf("incorrect 'starting_balance' param in yaml config (must be a decimal), error: %w", err)
		}
		c.StartingBalance = b
	}
	if tmp.QuoteCurrency != "" {
		c.QuoteCurrency = strings.ToUpper(tmp.QuoteCurrency)
	}

	if tmp.Storage.Backend != "" {
		c.Storage.Backend = strings.ToLower(tmp.Storage.Backend)
	}
	if tmp.Storage.Dir != "" {
		c.Storage.Dir = tmp.Storage.Dir
	}
	if tmp.Storage.DSN != "" {
		c.Storage.DSN = tmp.Storage.DSN
	}
	if tmp.Storage.SegmentThreshold != 0 {
		c.Storage.SegmentThreshold = tmp.Storage.SegmentThreshold
	}

	if len(tmp.Pricer.Sources) > 0 {
		c.Pricer.Sources = make([]string, 0, len(tmp.Pricer.Sources))
		for _, s := range tmp.Pricer.Sources {
			c.Pricer.Sources = append(c.Pricer.Sources, strings.ToLower(strings.TrimSpace(s)))
		}
	}
	for asset, raw := range tmp.Pricer.Overrides {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("incorrect 'pricer.overrides.%s' param in yaml config (must be a decimal), error: %w", asset, err)
		}
		if c.Pricer.Overrides == nil {
			c.Pricer.Overrides = make(map[string]decimal.Decimal)
		}
		c.Pricer.Overrides[asset] = price
	}
	if tmp.Pricer.HyperliquidURL != "" {
		c.Pricer.HyperliquidURL = tmp.Pricer.HyperliquidURL
	}

	if tmp.HTTP.Addr != "" {
		c.HTTPAddr = tmp.HTTP.Addr
	}
	if len(tmp.HTTP.TLSDomains) > 0 {
		c.TLSDomains = append([]string(nil), tmp.HTTP.TLSDomains...)
	}
	if tmp.HTTP.CertCache != "" {
		c.CertCache = tmp.HTTP.CertCache
	}
	if tmp.LogLevel != "" {
		c.LogLevel = strings.ToLower(tmp.LogLevel)
	}

	if tmp.Retry.MaxRetries != nil {
		c.Retry.MaxRetries = *tmp.Retry.MaxRetries
	}
	if tmp.Retry.InitialInterval != 0 {
		c.Retry.InitialInterval = tmp.Retry.InitialInterval
	}
	if tmp.Retry.MaxInterval != 0 {
		c.Retry.MaxInterval = tmp.Retry.MaxInterval
	}

	return nil
}

func (c *Config) applyEnv() {
	if c.Storage.DSN == "" {
		c.Storage.DSN = os.Getenv(DSNEnv)
	}
}

// Validate rejects configurations the application cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.AccountID) == "" {
		return errors.New("account_id is required")
	}
	if c.StartingBalance.IsNegative() {
		return errors.Errorf("starting_balance must not be negative, got %s", c.StartingBalance.String())
	}
	if c.QuoteCurrency == "" {
		return errors.New("quote_currency is required")
	}

	if !contains(knownBackends, c.Storage.Backend) {
		return errors.Errorf("unknown storage backend %q, expected one of %s", c.Storage.Backend, strings.Join(knownBackends, ", "))
	}
	if c.Storage.Backend == BackendPostgres && c.Storage.DSN == "" {
		return errors.Errorf("storage.dsn (or %s) is required for the postgres backend", DSNEnv)
	}

	if len(c.Pricer.Sources) == 0 {
		return errors.New("at least one pricer source is required")
	}
	for _, s := range c.Pricer.Sources {
		if !contains(knownSources, s) {
			return errors.Errorf("unknown pricer source %q, expected one of %s", s, strings.Join(knownSources, ", "))
		}
	}
	for asset, price := range c.Pricer.Overrides {
		if !price.IsPositive() {
			return errors.Errorf("price override for %s must be positive, got %s", asset, price.String())
		}
	}

	for _, d := range c.TLSDomains {
		if strings.TrimSpace(d) == "" {
			return errors.New("http.tls_domains must not contain empty names")
		}
	}

	if !contains(knownLevels, c.LogLevel) {
		return errors.Errorf("unknown log_level %q", c.LogLevel)
	}
	if c.Retry.MaxRetries < 0 {
		return errors.New("retry.max_retries must not be negative")
	}

	return nil
}

// Save writes the configuration as YAML.
func (c Config) Save(path string) error {
	var tmp ConfigTmp
	tmp.AccountID = c.AccountID
	tmp.StartingBalance = c.StartingBalance.String()
	tmp.QuoteCurrency = c.QuoteCurrency
	tmp.Storage.Backend = c.Storage.Backend
	tmp.Storage.Dir = c.Storage.Dir
	tmp.Storage.DSN = c.Storage.DSN
	tmp.Storage.SegmentThreshold = c.Storage.SegmentThreshold
	tmp.Pricer.Sources = c.Pricer.Sources
	tmp.Pricer.HyperliquidURL = c.Pricer.HyperliquidURL
	if len(c.Pricer.Overrides) > 0 {
		tmp.Pricer.Overrides = make(map[string]string, len(c.Pricer.Overrides))
		for asset, price := range c.Pricer.Overrides {
			tmp.Pricer.Overrides[asset] = price.String()
		}
	}
	tmp.HTTP.Addr = c.HTTPAddr
	tmp.HTTP.TLSDomains = c.TLSDomains
	tmp.HTTP.CertCache = c.CertCache
	tmp.LogLevel = c.LogLevel
	maxRetries := c.Retry.MaxRetries
	tmp.Retry.MaxRetries = &maxRetries
	tmp.Retry.InitialInterval = c.Retry.InitialInterval
	tmp.Retry.MaxInterval = c.Retry.MaxInterval

	data, err := yaml.Marshal(&tmp)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrap(err, "write config")
	}
	return nil
}

// Sources returns the known pricer source names, sorted.
func Sources() []string {
	out := append([]string(nil), knownSources...)
	sort.Strings(out)
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
