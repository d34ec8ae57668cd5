package search

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	htmlhighlight "github.com/blevesearch/bleve/v2/search/highlight/highlighter/html"

	"subtitle-index/internal/database"
	"subtitle-index/internal/logging"
)

const (
	textField      = "text"
	bleveBatchSize = 1000
)

type conversationDoc struct {
	Text string `json:"text"`
}

// BleveEngine keeps conversation text in a bleve index next to the
// database. Structural filters are applied by asking the database which of
// the matched conversations pass them.
type BleveEngine struct {
	db    *database.Database
	index bleve.Index
}

// OpenBleve opens the index at path, creating it when it does not exist.
func OpenBleve(path string, db *database.Database) (*BleveEngine, error) {
	index, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		logging.Info("Creating bleve index at %s", path)
		index, err = bleve.New(path, newIndexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open bleve index: %w", err)
	}
	return &BleveEngine{db: db, index: index}, nil
}

func newIndexMapping() *mapping.IndexMappingImpl {
	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(textField, bleve.NewTextFieldMapping())

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

func (e *BleveEngine) Name() string { return "bleve" }

// Search runs a query string query. Hits are fetched a page at a time and
// filtered through the database until limit results pass or the index runs
// out of hits.
func (e *BleveEngine) Search(ctx context.Context, phrase string, p Predicate, limit int) ([]Result, error) {
	where, args := Translate(p)
	pageSize := max(limit*2, 100)

	results := make([]Result, 0, limit)
	for from := 0; len(results) < limit; from += pageSize {
		q := bleve.NewQueryStringQuery(phrase)
		req := bleve.NewSearchRequestOptions(q, pageSize, from, false)
		req.Highlight = bleve.NewHighlightWithStyle(htmlhighlight.Name)
		req.Highlight.AddField(textField)

		res, err := e.index.SearchInContext(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", ErrInvalidPhrase, err)
		}
		if len(res.Hits) == 0 {
			break
		}

		ids := make([]int64, 0, len(res.Hits))
		for _, hit := range res.Hits {
			id, err := strconv.ParseInt(hit.ID, 10, 64)
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}

		allowed, err := e.db.FilterConversations(ctx, ids, where, args)
		if err != nil {
			return nil, fmt.Errorf("failed to filter search hits: %w", err)
		}

		for _, hit := range res.Hits {
			id, _ := strconv.ParseInt(hit.ID, 10, 64)
			h, ok := allowed[id]
			if !ok {
				continue
			}
			results = append(results, resultFromHit(h, preview(hit.Fragments[textField]), hit.Score))
			if len(results) == limit {
				break
			}
		}

		if uint64(from+pageSize) >= res.Total {
			break
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Relevance > results[j].Relevance })
	return results, nil
}

var markReplacer = strings.NewReplacer("<mark>", database.HighlightStart, "</mark>", database.HighlightEnd)

// preview converts html highlighter fragments to the sentinel markers used
// by the FTS5 snippets.
func preview(fragments []string) string {
	if len(fragments) == 0 {
		return ""
	}
	return html.UnescapeString(markReplacer.Replace(strings.Join(fragments, "…")))
}

// Add indexes conversations.
func (e *BleveEngine) Add(_ context.Context, conversations []database.Conversation) error {
	for start := 0; start < len(conversations); start += bleveBatchSize {
		end := min(start+bleveBatchSize, len(conversations))

		batch := e.index.NewBatch()
		for _, c := range conversations[start:end] {
			if err := batch.Index(strconv.FormatInt(c.ID, 10), conversationDoc{Text: c.IndexedText}); err != nil {
				return fmt.Errorf("failed to index conversation %d: %w", c.ID, err)
			}
		}
		if err := e.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to write bleve batch: %w", err)
		}
	}
	return nil
}

// Remove deletes conversations from the index.
func (e *BleveEngine) Remove(_ context.Context, ids []int64) error {
	for start := 0; start < len(ids); start += bleveBatchSize {
		end := min(start+bleveBatchSize, len(ids))

		batch := e.index.NewBatch()
		for _, id := range ids[start:end] {
			batch.Delete(strconv.FormatInt(id, 10))
		}
		if err := e.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to write bleve batch: %w", err)
		}
	}
	return nil
}

// EnsureConsistent rebuilds the index from the database when the index is
// empty but conversations are stored, for example after switching engines.
func (e *BleveEngine) EnsureConsistent(ctx context.Context) error {
	docs, err := e.index.DocCount()
	if err != nil {
		return fmt.Errorf("failed to count bleve documents: %w", err)
	}
	stored, err := e.db.CountConversations(ctx)
	if err != nil {
		return fmt.Errorf("failed to count conversations: %w", err)
	}
	if docs > 0 || stored == 0 {
		return nil
	}

	logging.Info("Rebuilding bleve index from %d stored conversations", stored)

	pending := make([]database.Conversation, 0, bleveBatchSize)
	err = e.db.ForEachConversation(ctx, func(c database.Conversation) error {
		pending = append(pending, c)
		if len(pending) < bleveBatchSize {
			return nil
		}
		err := e.Add(ctx, pending)
		pending = pending[:0]
		return err
	})
	if err != nil {
		return err
	}
	return e.Add(ctx, pending)
}

// DocCount returns the number of indexed conversations.
func (e *BleveEngine) DocCount() (uint64, error) {
	return e.index.DocCount()
}

func (e *BleveEngine) Close() error {
	return e.index.Close()
}
