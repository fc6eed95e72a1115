// Package app wires the configured components into one explicitly owned
// graph. Every binary builds it once and closes it on exit.
package app

import (
	"fmt"
	"time"

	"github.com/LJTian/countywire/internal/catalog"
	"github.com/LJTian/countywire/internal/collector"
	"github.com/LJTian/countywire/internal/config"
	"github.com/LJTian/countywire/internal/generator"
	"github.com/LJTian/countywire/internal/processor"
	"github.com/LJTian/countywire/internal/scheduler"
	"github.com/LJTian/countywire/internal/storage"
	"github.com/LJTian/countywire/internal/synth"
	"go.uber.org/zap"
)

// startupDelay leaves the API a head start before the first ingest pass.
const startupDelay = 15 * time.Second

type App struct {
	Config    *config.Config
	Catalog   *catalog.Catalog
	Store     *storage.Store
	Scheduler *scheduler.Scheduler
}

// New loads the catalog and field mapping, opens the store and binds the
// writer. Each of these failing is fatal: nothing has touched the network yet
// except the database.
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	mapping, err := storage.LoadFieldMapping(cfg.FieldMappingPath)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr, cfg.AutoMigrate, log)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	writer, err := storage.NewItemWriter(store.DB, mapping, log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("bind field mapping: %w", err)
	}
	if err := store.UseItemMapping(mapping); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("bind field mapping for synthesis: %w", err)
	}

	client := collector.NewHTTPClient(cfg.RequestTimeout, cfg.PacingDelay, cfg.UserAgent)
	gen := generator.NewClient(cfg.GeneratorURL, cfg.GeneratorAPIKey, cfg.GeneratorModel, cfg.GeneratorTimeout)
	engine := synth.NewEngine(store, gen, synth.Options{
		MinItems:    cfg.SynthMinItems,
		SampleSize:  cfg.SynthSampleSize,
		PromptItems: cfg.SynthPromptItems,
		Category:    cfg.StoryCategory,
		Status:      cfg.StoryStatus,
		Model:       gen.Model(),
	}, log.Named("synth"))

	sched, err := scheduler.New(scheduler.Deps{
		Catalog:   cat,
		Store:     store,
		Resolver:  collector.NewResolver(client, cfg.DiscoverFromHTML, log.Named("resolver")),
		Search:    collector.NewSearchAdapter(client, cfg.SearchEndpoint, cfg.SearchMaxRecords, cfg.SearchMinKeywordLen),
		Processor: processor.NewSimpleProcessor(),
		Writer:    writer,
		Engine:    engine,
	}, scheduler.Options{
		IngestSpec:     cfg.IngestCron,
		SynthSpec:      cfg.SynthCron,
		Lookback:       cfg.LookbackWindow,
		SynthWindow:    cfg.SynthWindow,
		ResolveMissTTL: cfg.ResolveMissTTL,
		StartupDelay:   startupDelay,
	}, log.Named("scheduler"))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init scheduler: %w", err)
	}

	log.Info("app ready",
		zap.Int("regions", len(cat.Regions())),
		zap.Int("sources", len(cat.Sources())),
		zap.Int("enabled_sources", len(cat.ListEnabledSources())))
	return &App{Config: cfg, Catalog: cat, Store: store, Scheduler: sched}, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}
