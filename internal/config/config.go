// Package config provides configuration management for the engine.
package config

import (
	"fmt"
	"os"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// Defaults applied by normalization when fields are unset.
const (
	defaultConcurrency       = 6
	defaultTick              = 0.01
	defaultOrderDuration     = "day"
	defaultMaxContracts      = 10
	defaultLEAPMinDelta      = 0.70
	defaultLEAPMaxDelta      = 0.90
	defaultLEAPMinDTE        = 270
	defaultLEAPMaxDTE        = 450
	defaultShortCallMaxDelta = 0.30
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Broker      BrokerConfig      `yaml:"broker"`
	Scan        ScanConfig        `yaml:"scan"`
	PMCC        PMCCConfig        `yaml:"pmcc"`
	Orders      OrdersConfig      `yaml:"orders"`
	Watchlist   []string          `yaml:"watchlist"`
	Storage     StorageConfig     `yaml:"storage"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// BrokerConfig defines broker API settings.
type BrokerConfig struct {
	Provider    string `yaml:"provider"`
	APIKey      string `yaml:"api_key"`
	APIEndpoint string `yaml:"api_endpoint"`
	AccountID   string `yaml:"account_id"`
	Sandbox     bool   `yaml:"sandbox"`
}

// ScanConfig defines the cash-secured-put scan filter bounds.
type ScanConfig struct {
	MinDTE          int     `yaml:"min_dte"`
	MaxDTE          int     `yaml:"max_dte"`
	MaxDelta        float64 `yaml:"max_delta"` // absolute value
	MinPremium      float64 `yaml:"min_premium"`
	MinVolume       int64   `yaml:"min_volume"`
	MinOpenInterest int64   `yaml:"min_open_interest"`
	MaxSpreadPct    float64 `yaml:"max_spread_pct"`
	Concurrency     int     `yaml:"concurrency"`
	EnrichHistory   bool    `yaml:"enrich_history"` // RSI / IV rank per surviving symbol
}

// PMCCConfig defines LEAP and short-call scan parameters.
type PMCCConfig struct {
	LEAPMinDelta      float64 `yaml:"leap_min_delta"`
	LEAPMaxDelta      float64 `yaml:"leap_max_delta"`
	LEAPMinDTE        int     `yaml:"leap_min_dte"`
	LEAPMaxDTE        int     `yaml:"leap_max_dte"`
	LEAPMinOI         int64   `yaml:"leap_min_oi"`
	ShortCallMaxDelta float64 `yaml:"short_call_max_delta"`
	ShortCallMinDTE   int     `yaml:"short_call_min_dte"`
	ShortCallMaxDTE   int     `yaml:"short_call_max_dte"`
	MinPremium        float64 `yaml:"min_premium"`
}

// OrdersConfig defines order submission limits.
type OrdersConfig struct {
	MaxContractsPerUnderlying int     `yaml:"max_contracts_per_underlying"`
	Tick                      float64 `yaml:"tick"`
	Duration                  string  `yaml:"duration"` // day | gtc
}

// StorageConfig defines storage settings for the journal.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// DashboardConfig defines the HTTP API settings.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	AuthToken string `yaml:"auth_token"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and
// consistent, applying defaults first.
func (c *Config) Validate() error {
	c.normalize()

	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}

	if c.Environment.Mode == "live" {
		if c.Broker.APIKey == "" {
			return fmt.Errorf("broker.api_key is required in live mode")
		}
		if c.Broker.AccountID == "" {
			return fmt.Errorf("broker.account_id is required in live mode")
		}
	}

	if len(c.Watchlist) == 0 {
		return fmt.Errorf("watchlist must name at least one symbol")
	}

	if c.Scan.MinDTE < 0 || c.Scan.MaxDTE <= 0 || c.Scan.MinDTE > c.Scan.MaxDTE {
		return fmt.Errorf("scan dte bounds must satisfy 0 <= min_dte <= max_dte with max_dte > 0")
	}
	if c.Scan.MaxDelta <= 0 || c.Scan.MaxDelta > 1 {
		return fmt.Errorf("scan.max_delta must be in (0,1]")
	}
	if c.Scan.MinPremium < 0 {
		return fmt.Errorf("scan.min_premium must be >= 0")
	}
	if c.Scan.MaxSpreadPct < 0 {
		return fmt.Errorf("scan.max_spread_pct must be >= 0")
	}
	if c.Scan.Concurrency <= 0 {
		return fmt.Errorf("scan.concurrency must be > 0")
	}

	if c.PMCC.LEAPMinDelta <= 0 || c.PMCC.LEAPMaxDelta > 1 || c.PMCC.LEAPMinDelta > c.PMCC.LEAPMaxDelta {
		return fmt.Errorf("pmcc leap delta bounds must satisfy 0 < min <= max <= 1")
	}
	if c.PMCC.LEAPMinDTE <= 0 || c.PMCC.LEAPMinDTE > c.PMCC.LEAPMaxDTE {
		return fmt.Errorf("pmcc leap dte bounds must satisfy 0 < min <= max")
	}
	if c.PMCC.ShortCallMaxDelta <= 0 || c.PMCC.ShortCallMaxDelta > 1 {
		return fmt.Errorf("pmcc.short_call_max_delta must be in (0,1]")
	}
	if c.PMCC.ShortCallMinDTE < 0 || c.PMCC.ShortCallMinDTE > c.PMCC.ShortCallMaxDTE {
		return fmt.Errorf("pmcc short call dte bounds must satisfy 0 <= min <= max")
	}

	if c.Orders.MaxContractsPerUnderlying <= 0 {
		return fmt.Errorf("orders.max_contracts_per_underlying must be > 0")
	}
	if c.Orders.Tick <= 0 {
		return fmt.Errorf("orders.tick must be > 0")
	}
	switch c.Orders.Duration {
	case "day", "gtc":
	default:
		return fmt.Errorf("orders.duration must be 'day' or 'gtc'")
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}

	if c.Dashboard.Enabled && c.Dashboard.Addr == "" {
		return fmt.Errorf("dashboard.addr is required when dashboard is enabled")
	}

	return nil
}

// IsPaperTrading returns true if the engine is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// normalize fills unset fields with defaults before validation.
func (c *Config) normalize() {
	if c.Scan.Concurrency == 0 {
		c.Scan.Concurrency = defaultConcurrency
	}
	if c.Orders.Tick == 0 {
		c.Orders.Tick = defaultTick
	}
	if c.Orders.Duration == "" {
		c.Orders.Duration = defaultOrderDuration
	}
	if c.Orders.MaxContractsPerUnderlying == 0 {
		c.Orders.MaxContractsPerUnderlying = defaultMaxContracts
	}
	if c.PMCC.LEAPMinDelta == 0 {
		c.PMCC.LEAPMinDelta = defaultLEAPMinDelta
	}
	if c.PMCC.LEAPMaxDelta == 0 {
		c.PMCC.LEAPMaxDelta = defaultLEAPMaxDelta
	}
	if c.PMCC.LEAPMinDTE == 0 {
		c.PMCC.LEAPMinDTE = defaultLEAPMinDTE
	}
	if c.PMCC.LEAPMaxDTE == 0 {
		c.PMCC.LEAPMaxDTE = defaultLEAPMaxDTE
	}
	if c.PMCC.ShortCallMaxDelta == 0 {
		c.PMCC.ShortCallMaxDelta = defaultShortCallMaxDelta
	}
	if c.PMCC.ShortCallMaxDTE == 0 {
		c.PMCC.ShortCallMaxDTE = 45
	}
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
}
