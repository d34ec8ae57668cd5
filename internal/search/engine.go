package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"subtitle-index/internal/database"
	"subtitle-index/internal/logging"
	"subtitle-index/internal/metrics"
)

// ErrInvalidPhrase is returned for an empty phrase or one the engine cannot
// parse.
var ErrInvalidPhrase = errors.New("invalid search phrase")

// Result is one matching conversation. Relevance is higher for better
// matches. Preview marks matched terms with database.HighlightStart and
// database.HighlightEnd.
type Result struct {
	FileID         int64   `json:"fileId"`
	TrackID        int64   `json:"trackId"`
	ConversationID int64   `json:"conversationId"`
	LibraryID      int64   `json:"libraryId"`
	FilePath       string  `json:"filePath"`
	Language       *string `json:"language"`
	TrackTitle     *string `json:"trackTitle"`
	Preview        string  `json:"preview"`
	Relevance      float64 `json:"relevance"`
}

// Engine is a full-text backend. Add and Remove keep the engine in step
// with stored conversations; engines backed by the database itself may
// treat them as no-ops.
type Engine interface {
	Name() string
	Search(ctx context.Context, phrase string, p Predicate, limit int) ([]Result, error)
	Add(ctx context.Context, conversations []database.Conversation) error
	Remove(ctx context.Context, ids []int64) error
	Close() error
}

// Service runs searches against an engine with a default result limit.
type Service struct {
	engine       Engine
	defaultLimit int
}

// MaxLimit caps the number of results of one search.
const MaxLimit = 1000

// NewService wraps engine. A non-positive defaultLimit means 200.
func NewService(engine Engine, defaultLimit int) *Service {
	if defaultLimit <= 0 {
		defaultLimit = 200
	}
	return &Service{engine: engine, defaultLimit: min(defaultLimit, MaxLimit)}
}

// Engine returns the underlying engine.
func (s *Service) Engine() Engine {
	return s.engine
}

// Search returns conversations matching phrase and filters, most relevant
// first. A non-positive limit uses the default.
func (s *Service) Search(ctx context.Context, phrase string, filters Filters, limit int) ([]Result, error) {
	name := s.engine.Name()

	if strings.TrimSpace(phrase) == "" {
		metrics.SearchQueriesTotal.WithLabelValues(name, "invalid").Inc()
		return nil, fmt.Errorf("%w: phrase is empty", ErrInvalidPhrase)
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}
	limit = min(limit, MaxLimit)

	start := time.Now()
	results, err := s.engine.Search(ctx, phrase, filters.Predicate(), limit)
	if err != nil {
		status := "error"
		if errors.Is(err, ErrInvalidPhrase) {
			status = "invalid"
		}
		metrics.SearchQueriesTotal.WithLabelValues(name, status).Inc()
		return nil, err
	}

	metrics.SearchQueriesTotal.WithLabelValues(name, "success").Inc()
	metrics.SearchResults.WithLabelValues(name).Observe(float64(len(results)))
	logging.Debug("Search %q on %s returned %d results in %v", phrase, name, len(results), time.Since(start))

	return results, nil
}

func resultFromHit(h database.ConversationHit, preview string, relevance float64) Result {
	return Result{
		FileID:         h.FileID,
		TrackID:        h.TrackID,
		ConversationID: h.ConversationID,
		LibraryID:      h.LibraryID,
		FilePath:       h.FilePath,
		Language:       h.Language,
		TrackTitle:     h.TrackTitle,
		Preview:        preview,
		Relevance:      relevance,
	}
}
