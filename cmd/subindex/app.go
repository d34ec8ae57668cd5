package subindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"subtitle-index/internal/database"
	"subtitle-index/internal/indexer"
	"subtitle-index/internal/logging"
	"subtitle-index/internal/memory"
	"subtitle-index/internal/proxy"
	"subtitle-index/internal/render"
	"subtitle-index/internal/search"
	"subtitle-index/internal/startup"
	"subtitle-index/internal/thumbnail"
	"subtitle-index/internal/transcoder"
	"subtitle-index/internal/validation"
)

// app holds the components shared by the serve and scan commands.
type app struct {
	cfg        *startup.Config
	db         *database.Database
	transcoder *transcoder.Transcoder
	proxy      *proxy.Proxy
	engine     search.Engine
	search     *search.Service
	indexer    *indexer.Indexer
	memory     *memory.Monitor
	ledger     *render.Ledger
	renderer   *render.Renderer
	thumbs     *thumbnail.Generator
}

func loadConfig() (*startup.Config, *validation.Validator, error) {
	v, err := validation.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create validator: %w", err)
	}
	cfg, err := startup.LoadConfig(configFile, v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// newApp opens storage and builds every component. withRenderer is false
// for one-off scans, which never render.
func newApp(ctx context.Context, cfg *startup.Config, v *validation.Validator, withRenderer bool) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	memory.ConfigureFromEnv()
	a.memory = memory.NewMonitor(memory.DefaultConfig())

	dbStart := time.Now()
	a.db, err = database.New(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart))

	searchStart := time.Now()
	switch cfg.SearchEngine {
	case startup.EngineBleve:
		bleveEngine, err := search.OpenBleve(cfg.BleveIndexPath, a.db)
		if err != nil {
			return nil, fmt.Errorf("failed to open search index: %w", err)
		}
		a.engine = bleveEngine
		if err := bleveEngine.EnsureConsistent(ctx); err != nil {
			return nil, fmt.Errorf("failed to rebuild search index: %w", err)
		}
	default:
		a.engine = search.NewFTS(a.db)
	}
	a.search = search.NewService(a.engine, cfg.SearchLimit)
	startup.LogSearchInit(a.engine.Name(), time.Since(searchStart))

	startup.LogTranscoderInit(cfg.FFmpegPath, cfg.FFprobePath)
	a.transcoder = transcoder.New(cfg.FFmpegPath, cfg.FFprobePath)

	a.proxy = proxy.New(cfg.SymlinkDirectory)
	if n, err := a.proxy.Purge(); err != nil {
		logging.Warn("Failed to purge path proxies: %v", err)
	} else if n > 0 {
		logging.Info("Removed %d stale path proxies", n)
	}

	walker := indexer.WalkerConfig(cfg.StatWorkers)
	walker.SkipHidden = cfg.SkipHidden

	a.indexer = indexer.New(a.db, a.transcoder, a.proxy, a.engine, indexer.Options{
		RootDir:             cfg.RootDirectory,
		DefaultLibraries:    cfg.DefaultLibraries,
		NondefaultLibraries: cfg.NondefaultLibraries,
		SkipSetup:           cfg.SkipSetup,
		ScanInterval:        cfg.ScanInterval,
		RetryDelay:          cfg.ScanRetryDelay,
		ExtractSubtitles:    cfg.ExtractSubtitles,
		Watch:               cfg.WatchLibraries,
		Walker:              walker,
		Memory:              a.memory,
	})

	if !withRenderer {
		return a, nil
	}

	a.ledger, err = render.OpenLedger(cfg.RenderLedgerPath)
	if err != nil {
		return nil, err
	}
	a.renderer = render.New(a.db, a.transcoder, a.proxy, a.ledger, v, render.Config{
		RootDir:   cfg.RootDirectory,
		OutputDir: cfg.OutputDirectory,
		TempDir:   cfg.TempDir,
		CacheTTL:  cfg.RenderCacheTTL,
	})
	a.thumbs = thumbnail.NewGenerator(cfg.ThumbnailDir, cfg.ThumbnailsEnabled, a.transcoder, a.proxy)

	return a, nil
}

// close releases storage. Components that run goroutines are stopped by
// the caller first.
func (a *app) close() {
	var errs []error
	if a.ledger != nil {
		errs = append(errs, a.ledger.Close())
	}
	if a.engine != nil {
		errs = append(errs, a.engine.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if err := errors.Join(errs...); err != nil {
		logging.Warn("Error while closing: %v", err)
	}
}
