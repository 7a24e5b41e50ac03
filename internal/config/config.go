// Package config handles application configuration from environment variables
// and the optional YAML risk-parameters file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mbd888/dexguard/internal/alerts"
	"github.com/mbd888/dexguard/internal/detect"
	"github.com/mbd888/dexguard/internal/risk"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "json" or "text"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Alert delivery (at most one sink is selected: NATS wins over webhook)
	WebhookURL    string
	WebhookSecret string
	NATSURL       string

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint; empty disables tracing

	// Engine
	ScoreTimeout   time.Duration // per-assessment budget for the anomaly scorer
	RiskParamsFile string        // YAML file with detector/weight/alert tuning
}

const (
	DefaultPort         = "8080"
	DefaultEnv          = "development"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "json"
	DefaultScoreTimeout = 50 * time.Millisecond
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", DefaultPort),
		Env:            getEnv("ENV", DefaultEnv),
		LogLevel:       getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:      getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:    os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		WebhookURL:     os.Getenv("WEBHOOK_URL"),
		WebhookSecret:  os.Getenv("WEBHOOK_SECRET"),
		NATSURL:        os.Getenv("NATS_URL"),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ScoreTimeout:   time.Duration(getEnvInt64("SCORE_TIMEOUT_MS", DefaultScoreTimeout.Milliseconds())) * time.Millisecond,
		RiskParamsFile: os.Getenv("RISK_PARAMS_FILE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.ScoreTimeout <= 0 {
		return fmt.Errorf("SCORE_TIMEOUT_MS must be positive, got %v", c.ScoreTimeout)
	}
	if c.WebhookURL != "" && c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required when WEBHOOK_URL is set")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// RiskParams is the fully resolved tuning: detector thresholds, aggregation
// weights, and alert dispatch settings. Fields absent from the file keep
// their stock defaults.
type RiskParams struct {
	Detectors detect.Params
	Weights   risk.Weights
	Alerts    alerts.Config
}

// DefaultRiskParams returns the stock tuning used when no file is configured.
func DefaultRiskParams() RiskParams {
	return RiskParams{
		Detectors: detect.Defaults(),
		Weights:   risk.DefaultWeights(),
		Alerts:    alerts.DefaultConfig(),
	}
}

// LoadRiskParams reads and validates the YAML tuning file at path. An empty
// path returns the defaults. Invalid values are fatal: a bad config file must
// never silently fall back.
func LoadRiskParams(path string) (RiskParams, error) {
	params := DefaultRiskParams()
	if path == "" {
		return params, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return RiskParams{}, fmt.Errorf("read risk params file: %w", err)
	}
	if err := unmarshalRiskParams(data, &params); err != nil {
		return RiskParams{}, fmt.Errorf("parse risk params file %s: %w", path, err)
	}

	if err := params.Detectors.Validate(); err != nil {
		return RiskParams{}, fmt.Errorf("risk params file %s: %w", path, err)
	}
	if err := params.Weights.Validate(); err != nil {
		return RiskParams{}, fmt.Errorf("risk params file %s: %w", path, err)
	}
	if err := params.Alerts.Validate(); err != nil {
		return RiskParams{}, fmt.Errorf("risk params file %s: %w", path, err)
	}
	return params, nil
}

// Duration wraps time.Duration with YAML string parsing ("30s", "48h").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// File schema. Sections decode over pre-seeded defaults, so a partial file
// overrides only the keys it names.
type paramsFile struct {
	Detectors yaml.Node `yaml:"detectors"`
	Weights   yaml.Node `yaml:"weights"`
	Alerts    yaml.Node `yaml:"alerts"`
}

// detectorsSection mirrors detect.Params with YAML-friendly durations.
type detectorsSection struct {
	FlashLoanAmount      float64 `yaml:"flash_loan_amount"`
	FlashLoanSlippage    float64 `yaml:"flash_loan_slippage"`
	FlashLoanRouteLength int     `yaml:"flash_loan_route_length"`
	FlashLoanConfidence  float64 `yaml:"flash_loan_confidence"`

	SandwichWindow           Duration `yaml:"sandwich_window"`
	SandwichAmountRatio      float64  `yaml:"sandwich_amount_ratio"`
	SandwichConfidence       float64  `yaml:"sandwich_confidence"`
	SandwichStrongConfidence float64  `yaml:"sandwich_strong_confidence"`

	MEVGasPrice      float64 `yaml:"mev_gas_price"`
	MEVSamePairCount int     `yaml:"mev_same_pair_count"`
	MEVConfidence    float64 `yaml:"mev_confidence"`

	InactivityGap         Duration `yaml:"inactivity_gap"`
	InactivityConfidence  float64  `yaml:"inactivity_confidence"`
	BurstWindow           Duration `yaml:"burst_window"`
	BurstCount            int      `yaml:"burst_count"`
	BurstConfidence       float64  `yaml:"burst_confidence"`
	RoundAmountConfidence float64  `yaml:"round_amount_confidence"`

	BytecodeConfidence float64 `yaml:"bytecode_confidence"`
}

func detectorsFrom(p detect.Params) detectorsSection {
	return detectorsSection{
		FlashLoanAmount:          p.FlashLoanAmount,
		FlashLoanSlippage:        p.FlashLoanSlippage,
		FlashLoanRouteLength:     p.FlashLoanRouteLength,
		FlashLoanConfidence:      p.FlashLoanConfidence,
		SandwichWindow:           Duration(p.SandwichWindow),
		SandwichAmountRatio:      p.SandwichAmountRatio,
		SandwichConfidence:       p.SandwichConfidence,
		SandwichStrongConfidence: p.SandwichStrongConfidence,
		MEVGasPrice:              p.MEVGasPrice,
		MEVSamePairCount:         p.MEVSamePairCount,
		MEVConfidence:            p.MEVConfidence,
		InactivityGap:            Duration(p.InactivityGap),
		InactivityConfidence:     p.InactivityConfidence,
		BurstWindow:              Duration(p.BurstWindow),
		BurstCount:               p.BurstCount,
		BurstConfidence:          p.BurstConfidence,
		RoundAmountConfidence:    p.RoundAmountConfidence,
		BytecodeConfidence:       p.BytecodeConfidence,
	}
}

func (s detectorsSection) params() detect.Params {
	return detect.Params{
		FlashLoanAmount:          s.FlashLoanAmount,
		FlashLoanSlippage:        s.FlashLoanSlippage,
		FlashLoanRouteLength:     s.FlashLoanRouteLength,
		FlashLoanConfidence:      s.FlashLoanConfidence,
		SandwichWindow:           time.Duration(s.SandwichWindow),
		SandwichAmountRatio:      s.SandwichAmountRatio,
		SandwichConfidence:       s.SandwichConfidence,
		SandwichStrongConfidence: s.SandwichStrongConfidence,
		MEVGasPrice:              s.MEVGasPrice,
		MEVSamePairCount:         s.MEVSamePairCount,
		MEVConfidence:            s.MEVConfidence,
		InactivityGap:            time.Duration(s.InactivityGap),
		InactivityConfidence:     s.InactivityConfidence,
		BurstWindow:              time.Duration(s.BurstWindow),
		BurstCount:               s.BurstCount,
		BurstConfidence:          s.BurstConfidence,
		RoundAmountConfidence:    s.RoundAmountConfidence,
		BytecodeConfidence:       s.BytecodeConfidence,
	}
}

// alertsSection mirrors alerts.Config with a named level and YAML durations.
type alertsSection struct {
	DispatchLevel string   `yaml:"dispatch_level"`
	DedupWindow   Duration `yaml:"dedup_window"`
	MaxAttempts   int      `yaml:"max_attempts"`
	RetryBase     Duration `yaml:"retry_base"`
	QueueSize     int      `yaml:"queue_size"`
}

func alertsFrom(c alerts.Config) alertsSection {
	return alertsSection{
		DispatchLevel: c.DispatchLevel.String(),
		DedupWindow:   Duration(c.DedupWindow),
		MaxAttempts:   c.MaxAttempts,
		RetryBase:     Duration(c.RetryBase),
		QueueSize:     c.QueueSize,
	}
}

func (s alertsSection) config() (alerts.Config, error) {
	level, ok := risk.ParseLevel(s.DispatchLevel)
	if !ok {
		return alerts.Config{}, fmt.Errorf("unknown dispatch_level %q", s.DispatchLevel)
	}
	return alerts.Config{
		DispatchLevel: level,
		DedupWindow:   time.Duration(s.DedupWindow),
		MaxAttempts:   s.MaxAttempts,
		RetryBase:     time.Duration(s.RetryBase),
		QueueSize:     s.QueueSize,
	}, nil
}

func unmarshalRiskParams(data []byte, params *RiskParams) error {
	var pf paramsFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return err
	}

	if !pf.Detectors.IsZero() {
		section := detectorsFrom(params.Detectors)
		if err := pf.Detectors.Decode(&section); err != nil {
			return fmt.Errorf("detectors: %w", err)
		}
		params.Detectors = section.params()
	}

	if !pf.Weights.IsZero() {
		if err := pf.Weights.Decode(&params.Weights); err != nil {
			return fmt.Errorf("weights: %w", err)
		}
	}

	if !pf.Alerts.IsZero() {
		section := alertsFrom(params.Alerts)
		if err := pf.Alerts.Decode(&section); err != nil {
			return fmt.Errorf("alerts: %w", err)
		}
		cfg, err := section.config()
		if err != nil {
			return fmt.Errorf("alerts: %w", err)
		}
		params.Alerts = cfg
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
