package handlers

import (
	"context"

	"subtitle-index/internal/database"
	"subtitle-index/internal/indexer"
	"subtitle-index/internal/render"
	"subtitle-index/internal/search"
	"subtitle-index/internal/startup"
	"subtitle-index/internal/thumbnail"
)

// Scanner is the part of the indexer the API controls.
type Scanner interface {
	IsReady() bool
	GetHealthStatus() indexer.HealthStatus
	GetProgress() indexer.Progress
	TriggerScan()
	LibraryRoot(lib database.Library) string
}

// Searcher runs dialogue searches.
type Searcher interface {
	Search(ctx context.Context, phrase string, filters search.Filters, limit int) ([]search.Result, error)
}

// RenderService turns render requests into artifacts.
type RenderService interface {
	Render(ctx context.Context, req *render.Request) (*render.Result, error)
}

// Thumbnailer produces cached thumbnails.
type Thumbnailer interface {
	IsEnabled() bool
	Get(ctx context.Context, src thumbnail.Source) ([]byte, error)
}

type Handlers struct {
	db        *database.Database
	indexer   Scanner
	search    Searcher
	renderer  RenderService
	thumbGen  Thumbnailer
	outputDir string
}

func New(db *database.Database, idx Scanner, searcher Searcher, renderer RenderService, thumbs Thumbnailer, config *startup.Config) *Handlers {
	return &Handlers{
		db:        db,
		indexer:   idx,
		search:    searcher,
		renderer:  renderer,
		thumbGen:  thumbs,
		outputDir: config.OutputDirectory,
	}
}
