package main

import (
	"fmt"

	"github.com/mdmcore/resolve/internal/lineage"
	"github.com/mdmcore/resolve/internal/logging"
	"github.com/mdmcore/resolve/internal/pipeline"
	"github.com/mdmcore/resolve/internal/registry"
	"github.com/mdmcore/resolve/internal/wiring"
	"github.com/mdmcore/resolve/pkg/config"
)

// app bundles the objects every subcommand needs: loaded config, the
// open lineage store, and a wired pipeline for the default entity.
type app struct {
	cfg   *config.Config
	store *lineage.Store
	reg   *registry.Registry
	pipe  *pipeline.Pipeline
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	store, err := lineage.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open lineage store: %w", err)
	}

	reg, err := wiring.BuildRegistry(cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build registry: %w", err)
	}

	limiter := wiring.BuildLimiter(cfg)
	pcfg, err := wiring.BuildPipelineConfig(cfg, reg, "entity", limiter)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build pipeline config: %w", err)
	}

	pipe, err := pipeline.New(pcfg, wiring.NewComparatorRegistry(), store)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	return &app{cfg: cfg, store: store, reg: reg, pipe: pipe}, nil
}

func (a *app) Close() {
	if a.store != nil {
		a.store.Close()
	}
}
