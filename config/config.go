package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Derivflow   DerivflowConfig  `yaml:"derivflow"`
	Server      ServerConfig     `yaml:"server"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Pipeline    PipelineConfig   `yaml:"pipeline"`
	Providers   ProvidersConfig  `yaml:"providers"`
	Instruments []Instrument     `yaml:"instruments"`
	Logging     LoggingConfig    `yaml:"logging"`
	Cloudwatch  CloudwatchConfig `yaml:"cloudwatch"`
}

type DerivflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ServerConfig struct {
	Address        string        `yaml:"address"`
	Path           string        `yaml:"path"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type MetricsConfig struct {
	LookbackDays   int `yaml:"lookback_days"`
	MinFundingDays int `yaml:"min_funding_days"`
	MinOIDays      int `yaml:"min_oi_days"`
	MinZSamples    int `yaml:"min_z_samples"`
}

type PipelineConfig struct {
	InstrumentDelay time.Duration `yaml:"instrument_delay"`
	FundingPriority []string      `yaml:"funding_priority"`
	OIPriority      []string      `yaml:"oi_priority"`
	Source          string        `yaml:"source"`
}

type ProvidersConfig struct {
	Bybit   ProviderConfig `yaml:"bybit"`
	Okx     ProviderConfig `yaml:"okx"`
	Binance ProviderConfig `yaml:"binance"`
	Kucoin  ProviderConfig `yaml:"kucoin"`
}

// ProviderConfig lists the candidate base URLs for one exchange: the
// origin endpoint first, mirror or proxy endpoints after it.
type ProviderConfig struct {
	Bases   []string      `yaml:"bases"`
	Timeout time.Duration `yaml:"timeout"`
}

// Instrument is one statically configured market with its identifier per
// exchange. The symbol map keys are provider names.
type Instrument struct {
	ID      string            `yaml:"id"`
	Symbols map[string]string `yaml:"symbols"`
}

// Symbol returns the instrument's identifier on the named provider.
func (i Instrument) Symbol(provider string) (string, bool) {
	s, ok := i.Symbols[provider]
	return s, ok && s != ""
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type CloudwatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

// LoadConfig reads the YAML document at path, applies defaults and
// environment overrides, and validates the result. The returned Config is
// treated as immutable for the lifetime of the process.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)
	applyEnvOverrides(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.Path == "" {
		cfg.Server.Path = "/api/derivs"
	}
	if cfg.Server.CacheTTL <= 0 {
		cfg.Server.CacheTTL = 5 * time.Minute
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 25 * time.Second
	}

	if cfg.Metrics.LookbackDays <= 0 {
		cfg.Metrics.LookbackDays = 90
	}
	if cfg.Metrics.MinFundingDays <= 0 {
		cfg.Metrics.MinFundingDays = 11
	}
	if cfg.Metrics.MinOIDays <= 0 {
		cfg.Metrics.MinOIDays = 14
	}
	if cfg.Metrics.MinZSamples <= 0 {
		cfg.Metrics.MinZSamples = 10
	}

	if cfg.Pipeline.InstrumentDelay <= 0 {
		cfg.Pipeline.InstrumentDelay = 200 * time.Millisecond
	}
	if len(cfg.Pipeline.FundingPriority) == 0 {
		cfg.Pipeline.FundingPriority = []string{"bybit", "okx", "binance", "kucoin"}
	}
	if len(cfg.Pipeline.OIPriority) == 0 {
		cfg.Pipeline.OIPriority = []string{"okx", "bybit", "binance"}
	}
	if cfg.Pipeline.Source == "" {
		cfg.Pipeline.Source = "bybit/okx/binance"
	}

	if len(cfg.Providers.Bybit.Bases) == 0 {
		cfg.Providers.Bybit.Bases = []string{"https://api.bybit.com"}
	}
	if len(cfg.Providers.Okx.Bases) == 0 {
		cfg.Providers.Okx.Bases = []string{"https://www.okx.com"}
	}
	if len(cfg.Providers.Binance.Bases) == 0 {
		cfg.Providers.Binance.Bases = []string{"https://fapi.binance.com"}
	}
	if len(cfg.Providers.Kucoin.Bases) == 0 {
		cfg.Providers.Kucoin.Bases = []string{"https://api-futures.kucoin.com"}
	}

	if len(cfg.Instruments) == 0 {
		cfg.Instruments = []Instrument{
			{ID: "bitcoin", Symbols: map[string]string{
				"bybit": "BTCUSDT", "okx": "BTC-USDT-SWAP", "binance": "BTCUSDT", "kucoin": "XBTUSDTM",
			}},
			{ID: "ethereum", Symbols: map[string]string{
				"bybit": "ETHUSDT", "okx": "ETH-USDT-SWAP", "binance": "ETHUSDT", "kucoin": "ETHUSDTM",
			}},
		}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BYBIT_BASE"); v != "" {
		cfg.Providers.Bybit.Bases = append([]string{strings.TrimSpace(v)}, cfg.Providers.Bybit.Bases[1:]...)
	}
	if v := os.Getenv("BYBIT_BASE_FALLBACK"); strings.TrimSpace(v) != "" {
		cfg.Providers.Bybit.Bases = append(cfg.Providers.Bybit.Bases, strings.TrimSpace(v))
	}
	if v := os.Getenv("SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = strings.TrimSpace(v)
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Derivflow.Name == "" {
		return fmt.Errorf("derivflow.name is required")
	}
	if cfg.Derivflow.Version == "" {
		return fmt.Errorf("derivflow.version is required")
	}

	if cfg.Metrics.MinFundingDays <= cfg.Metrics.MinZSamples {
		return fmt.Errorf("metrics.min_funding_days must exceed metrics.min_z_samples")
	}
	if cfg.Metrics.MinOIDays <= cfg.Metrics.MinZSamples+3 {
		return fmt.Errorf("metrics.min_oi_days must leave a full z-score history after 3-day differencing")
	}

	if len(cfg.Instruments) == 0 {
		return fmt.Errorf("at least one instrument is required")
	}
	seen := make(map[string]struct{}, len(cfg.Instruments))
	for _, inst := range cfg.Instruments {
		if inst.ID == "" {
			return fmt.Errorf("instrument id is required")
		}
		if _, dup := seen[inst.ID]; dup {
			return fmt.Errorf("duplicate instrument id %q", inst.ID)
		}
		seen[inst.ID] = struct{}{}
		if len(inst.Symbols) == 0 {
			return fmt.Errorf("instrument %q has no provider symbols", inst.ID)
		}
	}

	known := map[string]struct{}{"bybit": {}, "okx": {}, "binance": {}, "kucoin": {}}
	for _, p := range cfg.Pipeline.FundingPriority {
		if _, ok := known[p]; !ok {
			return fmt.Errorf("unknown provider %q in pipeline.funding_priority", p)
		}
	}
	for _, p := range cfg.Pipeline.OIPriority {
		if _, ok := known[p]; !ok {
			return fmt.Errorf("unknown provider %q in pipeline.oi_priority", p)
		}
	}

	return nil
}
