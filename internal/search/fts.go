package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"subtitle-index/internal/database"
)

// FTSEngine searches the SQLite FTS5 table kept by the database triggers.
type FTSEngine struct {
	db *database.Database
}

// NewFTS returns an engine over db.
func NewFTS(db *database.Database) *FTSEngine {
	return &FTSEngine{db: db}
}

func (e *FTSEngine) Name() string { return "fts5" }

// Search runs an FTS5 MATCH query. bm25 scores are lower for better
// matches, so Relevance is the negated score.
func (e *FTSEngine) Search(ctx context.Context, phrase string, p Predicate, limit int) ([]Result, error) {
	where, args := Translate(p)

	hits, err := e.db.SearchConversations(ctx, phrase, where, args, limit)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrError {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPhrase, err)
		}
		return nil, fmt.Errorf("full-text query failed: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, resultFromHit(h, h.Preview, -h.Rank))
	}
	return results, nil
}

// Add is a no-op; triggers index conversations as they are inserted.
func (e *FTSEngine) Add(context.Context, []database.Conversation) error { return nil }

// Remove is a no-op; triggers drop entries when conversations are deleted.
func (e *FTSEngine) Remove(context.Context, []int64) error { return nil }

func (e *FTSEngine) Close() error { return nil }
