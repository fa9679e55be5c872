// Package common wires the shared dependencies every subcommand needs.
package common

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ACMILabs/acmi-api/internal/assets"
	"github.com/ACMILabs/acmi-api/internal/cache"
	"github.com/ACMILabs/acmi-api/internal/config"
	"github.com/ACMILabs/acmi-api/internal/export"
	"github.com/ACMILabs/acmi-api/internal/logger"
	"github.com/ACMILabs/acmi-api/internal/metrics"
	"github.com/ACMILabs/acmi-api/internal/objectstore"
	"github.com/ACMILabs/acmi-api/internal/search"
	"github.com/ACMILabs/acmi-api/internal/syncer"
	"github.com/ACMILabs/acmi-api/internal/upstream"
)

// Deps are the dependencies shared by every subcommand.
type Deps struct {
	Config   *config.Config
	Logger   logger.Interface
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Cache    *cache.Store
}

// NewCommandDeps loads configuration and builds the shared pieces.
func NewCommandDeps(cfgFile string, debug bool) (*Deps, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if debug {
		cfg.Service.Debug = true
		cfg.Logging.Level = "debug"
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Encoding:    cfg.Logging.Encoding,
		Development: cfg.Service.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	registry := prometheus.NewRegistry()
	return &Deps{
		Config:   cfg,
		Logger:   log,
		Registry: registry,
		Metrics:  metrics.New(registry),
		Cache:    cache.New(cfg.Cache.JSONRoot, cfg.Service.PublicBase, log),
	}, nil
}

// SearchClient connects to the search engine.
func (d *Deps) SearchClient() (*search.Client, error) {
	client, err := search.NewClient(d.Config.Search)
	if err != nil {
		return nil, fmt.Errorf("create search client: %w", err)
	}
	return client, nil
}

// Indexer builds the search indexer over the cache.
func (d *Deps) Indexer() (*search.Indexer, error) {
	client, err := d.SearchClient()
	if err != nil {
		return nil, err
	}
	return search.NewIndexer(client, d.Cache, d.Logger, d.Metrics), nil
}

// Exporter builds the TSV exporter.
func (d *Deps) Exporter() *export.Exporter {
	return export.New(d.Cache, d.Config.Cache.TSVRoot, d.Logger)
}

// Syncer builds the full sync pipeline: upstream client, asset
// migrator over the public bucket, indexer and exporter.
func (d *Deps) Syncer(opts syncer.Options) (*syncer.Syncer, error) {
	store, err := objectstore.New(d.Config.Storage, d.Logger)
	if err != nil {
		return nil, fmt.Errorf("create object store: %w", err)
	}
	migrator := assets.New(store, assets.Config{
		Bucket:        d.Config.Storage.Bucket,
		IncludeImages: d.Config.Storage.IncludeImages,
		IncludeVideos: d.Config.Storage.IncludeVideos,
	}, d.Logger, d.Metrics)

	indexer, err := d.Indexer()
	if err != nil {
		return nil, err
	}

	client := upstream.New(d.Config.Upstream, d.Logger, d.Metrics)
	return syncer.New(client, migrator, d.Cache, indexer, d.Exporter(), opts, d.Logger, d.Metrics), nil
}

// SyncOptions resolves the run mode from configuration and flags.
// Flags win over environment configuration.
func (d *Deps) SyncOptions(allWorks, allCreators bool) syncer.Options {
	return syncer.Options{
		AllWorks:    allWorks || d.Config.Sync.AllWorks,
		AllCreators: allCreators || d.Config.Sync.AllCreators,
		UpdateFrom:  d.Config.UpdateFrom(),
	}
}
