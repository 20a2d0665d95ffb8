package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig marks a configuration value outside sane bounds. It is
// returned before any bar is processed.
var ErrInvalidConfig = errors.New("invalid configuration")

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for basisarb.
type Config struct {
	Storage       Storage       `yaml:"storage"`
	Alpaca        Alpaca        `yaml:"alpaca"`
	CryptoCompare CryptoCompare `yaml:"cryptocompare"`
	Logging       Logging       `yaml:"logging"`
	Collect       Collect       `yaml:"collect"`
	Daily         Strategy      `yaml:"daily"`
	Intraday      Strategy      `yaml:"intraday"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	ResultsDir string `yaml:"results_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"` // "iex" on the free tier, "sip" for paid
}

// CryptoCompare holds settings for the public CryptoCompare price API.
type CryptoCompare struct {
	BaseURL         string `yaml:"base_url"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Collect controls which instruments the data collectors fetch.
type Collect struct {
	ETFTicker string `yaml:"etf_ticker"`
	// BTCSource selects the spot leg provider: "alpaca" or "cryptocompare".
	BTCSource string `yaml:"btc_source"`
	Days      int    `yaml:"days"`
}

// Strategy holds the tunable constants for one granularity profile. Daily
// and intraday share the shape and differ only in values.
type Strategy struct {
	ThresholdBps            float64 `yaml:"threshold_bps"`
	ConvergenceThresholdBps float64 `yaml:"convergence_threshold_bps"`
	MaxHoldingPeriods       int     `yaml:"max_holding_periods"`
	ReversalStopBps         float64 `yaml:"reversal_stop_bps"`
	PositionSizeFraction    float64 `yaml:"position_size_fraction"`
	InitialCapital          float64 `yaml:"initial_capital"`
	Costs                   Costs   `yaml:"costs"`
}

// Costs are the four additive round-trip fee components, each in basis
// points. The total cost is their flat sum, not a percentage of notional.
type Costs struct {
	ETFCommissionBps float64 `yaml:"etf_commission_bps"`
	ETFSpreadBps     float64 `yaml:"etf_spread_bps"`
	BTCFeeBps        float64 `yaml:"btc_fee_bps"`
	BTCSpreadBps     float64 `yaml:"btc_spread_bps"`
}

// Total returns the flat round-trip cost estimate in basis points.
func (c Costs) Total() float64 {
	return c.ETFCommissionBps + c.ETFSpreadBps + c.BTCFeeBps + c.BTCSpreadBps
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// Default returns a Config populated with the research defaults: IBIT as
// the tracking instrument, the daily and intraday profiles the strategy was
// calibrated with, and local on-disk storage.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			ResultsDir: "results",
			SQLitePath: "data/basisarb.db",
		},
		Alpaca: Alpaca{
			DataURL: "https://data.alpaca.markets",
			Feed:    "iex",
		},
		CryptoCompare: CryptoCompare{
			BaseURL:         "https://min-api.cryptocompare.com",
			RateLimitPerMin: 40,
		},
		Logging: Logging{Level: "info", Format: "json"},
		Collect: Collect{
			ETFTicker: "IBIT",
			BTCSource: "alpaca",
			Days:      30,
		},
		Daily: Strategy{
			ThresholdBps:            20,
			ConvergenceThresholdBps: 10,
			MaxHoldingPeriods:       5,
			ReversalStopBps:         50,
			PositionSizeFraction:    0.10,
			InitialCapital:          1_000_000,
			Costs: Costs{
				ETFCommissionBps: 0.5,
				ETFSpreadBps:     1.0,
				BTCFeeBps:        2.0,
				BTCSpreadBps:     3.0,
			},
		},
		Intraday: Strategy{
			ThresholdBps:            15,
			ConvergenceThresholdBps: 5,
			MaxHoldingPeriods:       4,
			ReversalStopBps:         20,
			PositionSizeFraction:    0.10,
			InitialCapital:          1_000_000,
			Costs: Costs{
				ETFCommissionBps: 0.3,
				ETFSpreadBps:     0.5,
				BTCFeeBps:        1.5,
				BTCSpreadBps:     2.0,
			},
		},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path into a Config
// pre-populated with defaults, applies environment variable overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("RESULTS_DIR"); v != "" {
		cfg.Storage.ResultsDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars take precedence over everything else.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate checks every strategy profile for values that would corrupt a
// run. It fails at load time, before any bar is processed.
func (c *Config) Validate() error {
	if err := c.Daily.validate("daily"); err != nil {
		return err
	}
	if err := c.Intraday.validate("intraday"); err != nil {
		return err
	}
	switch c.Collect.BTCSource {
	case "", "alpaca", "cryptocompare":
	default:
		return fmt.Errorf("%w: collect.btc_source %q (want alpaca or cryptocompare)", ErrInvalidConfig, c.Collect.BTCSource)
	}
	return nil
}

func (s Strategy) validate(profile string) error {
	if s.ThresholdBps < 0 {
		return fmt.Errorf("%w: %s.threshold_bps = %v, must be >= 0", ErrInvalidConfig, profile, s.ThresholdBps)
	}
	if s.ConvergenceThresholdBps < 0 {
		return fmt.Errorf("%w: %s.convergence_threshold_bps = %v, must be >= 0", ErrInvalidConfig, profile, s.ConvergenceThresholdBps)
	}
	if s.MaxHoldingPeriods < 1 {
		return fmt.Errorf("%w: %s.max_holding_periods = %d, must be >= 1", ErrInvalidConfig, profile, s.MaxHoldingPeriods)
	}
	if s.ReversalStopBps < 0 {
		return fmt.Errorf("%w: %s.reversal_stop_bps = %v, must be >= 0", ErrInvalidConfig, profile, s.ReversalStopBps)
	}
	if s.PositionSizeFraction <= 0 || s.PositionSizeFraction > 1 {
		return fmt.Errorf("%w: %s.position_size_fraction = %v, must be in (0, 1]", ErrInvalidConfig, profile, s.PositionSizeFraction)
	}
	if s.InitialCapital <= 0 {
		return fmt.Errorf("%w: %s.initial_capital = %v, must be > 0", ErrInvalidConfig, profile, s.InitialCapital)
	}
	if s.Costs.Total() < 0 {
		return fmt.Errorf("%w: %s.costs sum to %v, must be >= 0", ErrInvalidConfig, profile, s.Costs.Total())
	}
	return nil
}
