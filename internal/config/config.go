package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/newthinker/quantbt/internal/core"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig              `mapstructure:"server"`
	Engine     EngineConfig              `mapstructure:"engine"`
	Feed       FeedConfig                `mapstructure:"feed"`
	Storage    StorageConfig             `mapstructure:"storage"`
	Strategies map[string]StrategyConfig `mapstructure:"strategies"`
	Metrics    MetricsConfig             `mapstructure:"metrics"`
	Log        LogConfig                 `mapstructure:"log"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	APIKey      string `mapstructure:"api_key"`
	JobTTLHours int    `mapstructure:"job_ttl_hours"`
	MaxJobs     int    `mapstructure:"max_jobs"`
}

// EngineConfig holds the simulation execution policy.
type EngineConfig struct {
	InitialCapital float64 `mapstructure:"initial_capital"`
	CommissionRate float64 `mapstructure:"commission_rate"`
	SlippageRate   float64 `mapstructure:"slippage_rate"`
	PriceRef       string  `mapstructure:"price_ref"` // "close" or "open"
	Sizing         string  `mapstructure:"sizing"`    // "equal_split" or "priority"
	RiskFreeRate   float64 `mapstructure:"risk_free_rate"`
	Workers        int     `mapstructure:"workers"`
}

// FeedConfig selects and tunes the price data source.
type FeedConfig struct {
	Provider string        `mapstructure:"provider"` // "yahoo" or "csvfile"
	CSVDir   string        `mapstructure:"csv_dir"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type StorageConfig struct {
	Type string   `mapstructure:"type"` // "localfs" or "s3"
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

type StrategyConfig struct {
	Enabled bool           `mapstructure:"enabled"`
	Params  map[string]any `mapstructure:"params"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads configuration from file
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			JobTTLHours: 1,
			MaxJobs:     100,
		},
		Engine: EngineConfig{
			InitialCapital: 100000,
			CommissionRate: 0,
			SlippageRate:   0,
			PriceRef:       "close",
			Sizing:         "equal_split",
			RiskFreeRate:   0.02,
			Workers:        4,
		},
		Feed: FeedConfig{
			Provider: "yahoo",
			CacheTTL: 15 * time.Minute,
		},
		Storage: StorageConfig{
			Type: "localfs",
			Path: "data/archive",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	// Engine validation
	if c.Engine.InitialCapital <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("initial_capital must be positive, got %f", c.Engine.InitialCapital))
	}
	if c.Engine.CommissionRate < 0 || c.Engine.CommissionRate >= 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("commission_rate must be in [0,1), got %f", c.Engine.CommissionRate))
	}
	if c.Engine.SlippageRate < 0 || c.Engine.SlippageRate >= 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("slippage_rate must be in [0,1), got %f", c.Engine.SlippageRate))
	}
	switch c.Engine.PriceRef {
	case "close", "open":
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("price_ref must be close or open, got %q", c.Engine.PriceRef))
	}
	switch c.Engine.Sizing {
	case "equal_split", "priority":
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("sizing must be equal_split or priority, got %q", c.Engine.Sizing))
	}
	if c.Engine.Workers < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("workers must be at least 1, got %d", c.Engine.Workers))
	}

	// Feed validation
	switch c.Feed.Provider {
	case "yahoo":
	case "csvfile":
		if c.Feed.CSVDir == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("csv_dir required when feed provider is csvfile"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown feed provider %q", c.Feed.Provider))
	}

	// Storage validation
	switch c.Storage.Type {
	case "localfs":
		if c.Storage.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("storage path required for localfs"))
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("s3 bucket required when storage type is s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown storage type %q", c.Storage.Type))
	}

	return nil
}
