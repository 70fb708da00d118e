package main

import (
	"fmt"

	"github.com/newthinker/quantbt/internal/archive"
	"github.com/newthinker/quantbt/internal/backtest"
	"github.com/newthinker/quantbt/internal/config"
	"github.com/newthinker/quantbt/internal/feed"
	"github.com/newthinker/quantbt/internal/feed/csvfile"
	"github.com/newthinker/quantbt/internal/feed/yahoo"
	"github.com/newthinker/quantbt/internal/logger"
	"go.uber.org/zap"
)

// runtime bundles the pieces every command needs.
type runtime struct {
	cfg     *config.Config
	log     *zap.Logger
	engine  *backtest.Engine
	feed    feed.Provider
	results *archive.Results
}

// setup loads configuration and wires the engine, data feed and archive.
func setup() (*runtime, error) {
	var cfg *config.Config
	var err error

	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg = config.Defaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	log, err := logger.NewAt(cfg.Log.Development || debug, level)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	engine, err := backtest.New(backtest.Config{
		InitialCapital: cfg.Engine.InitialCapital,
		CommissionRate: cfg.Engine.CommissionRate,
		SlippageRate:   cfg.Engine.SlippageRate,
		PriceRef:       backtest.PriceRef(cfg.Engine.PriceRef),
		Sizing:         backtest.SizingMode(cfg.Engine.Sizing),
		RiskFreeRate:   cfg.Engine.RiskFreeRate,
	}, log)
	if err != nil {
		return nil, err
	}

	provider, err := buildProvider(cfg, log)
	if err != nil {
		return nil, err
	}

	results, err := buildArchive(cfg, log)
	if err != nil {
		return nil, err
	}

	return &runtime{
		cfg:     cfg,
		log:     log,
		engine:  engine,
		feed:    provider,
		results: results,
	}, nil
}

func buildProvider(cfg *config.Config, log *zap.Logger) (feed.Provider, error) {
	var inner feed.Provider
	switch cfg.Feed.Provider {
	case "csvfile":
		inner = csvfile.New(cfg.Feed.CSVDir)
	case "yahoo":
		inner = yahoo.New()
	default:
		return nil, fmt.Errorf("unknown feed provider %q", cfg.Feed.Provider)
	}

	if cfg.Feed.CacheTTL > 0 {
		return feed.NewCached(inner, cfg.Feed.CacheTTL, log), nil
	}
	return inner, nil
}

func buildArchive(cfg *config.Config, log *zap.Logger) (*archive.Results, error) {
	var store archive.Store
	switch cfg.Storage.Type {
	case "localfs":
		fs, err := archive.NewLocalFS(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("opening archive: %w", err)
		}
		store = fs
	case "s3":
		s3, err := archive.NewS3(archive.S3Config{
			Bucket:    cfg.Storage.S3.Bucket,
			Endpoint:  cfg.Storage.S3.Endpoint,
			Region:    cfg.Storage.S3.Region,
			AccessKey: cfg.Storage.S3.AccessKey,
			SecretKey: cfg.Storage.S3.SecretKey,
			Prefix:    cfg.Storage.S3.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("opening s3 archive: %w", err)
		}
		store = s3
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}

	return archive.NewResults(store, log), nil
}
