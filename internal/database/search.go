package database

import (
	"context"
	"strings"
	"time"
)

// Sentinels wrapped around matched terms in search previews.
const (
	HighlightStart = `{\start}`
	HighlightEnd   = `{\end}`
)

// hitJoins joins a conversation to its track, file and library, keeping only
// files and libraries that still exist.
const hitJoins = `
	INNER JOIN tracks ON (conversations.track_id = tracks.id)
	INNER JOIN files ON (tracks.file_id = files.id AND files.still_exists)
	INNER JOIN libraries ON (files.library_id = libraries.id AND libraries.still_exists)`

// SearchConversations runs a full-text query. where is an SQL boolean
// expression over the tracks, files and libraries tables, with its
// placeholders bound from args. Rank is the raw bm25 score, where lower
// means more relevant; rows come back most relevant first.
func (d *Database) SearchConversations(ctx context.Context, phrase, where string, args []any, limit int) ([]ConversationHit, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("search_conversations", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	query := `
		SELECT
			conversations.id,
			tracks.id,
			files.id,
			libraries.id,
			files.path,
			tracks.language,
			tracks.title,
			snippet(conversations_fts, 0, '` + HighlightStart + `', '` + HighlightEnd + `', '…', 64),
			bm25(conversations_fts)
		FROM conversations_fts
			INNER JOIN conversations ON (conversations_fts.rowid = conversations.id)` + hitJoins + `
		WHERE conversations_fts MATCH ? AND (` + where + `)
		ORDER BY bm25(conversations_fts)
		LIMIT ?`

	queryArgs := make([]any, 0, len(args)+2)
	queryArgs = append(queryArgs, phrase)
	queryArgs = append(queryArgs, args...)
	queryArgs = append(queryArgs, limit)

	rows, err := d.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hits := []ConversationHit{}
	for rows.Next() {
		var h ConversationHit
		if err = rows.Scan(&h.ConversationID, &h.TrackID, &h.FileID, &h.LibraryID, &h.FilePath,
			&h.Language, &h.TrackTitle, &h.Preview, &h.Rank); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	err = rows.Err()
	return hits, err
}

// FilterConversations returns the subset of ids whose conversation passes
// where (see SearchConversations), keyed by conversation id. Preview and
// Rank are left empty.
func (d *Database) FilterConversations(ctx context.Context, ids []int64, where string, args []any) (map[int64]ConversationHit, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("filter_conversations", start, err) }()

	hits := make(map[int64]ConversationHit, len(ids))
	if len(ids) == 0 {
		return hits, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	queryArgs := make([]any, 0, len(ids)+len(args))
	for _, id := range ids {
		queryArgs = append(queryArgs, id)
	}
	queryArgs = append(queryArgs, args...)

	rows, err := d.db.QueryContext(ctx, `
		SELECT conversations.id, tracks.id, files.id, libraries.id, files.path, tracks.language, tracks.title
		FROM conversations`+hitJoins+`
		WHERE conversations.id IN (`+placeholders+`) AND (`+where+`)`, queryArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var h ConversationHit
		if err = rows.Scan(&h.ConversationID, &h.TrackID, &h.FileID, &h.LibraryID, &h.FilePath,
			&h.Language, &h.TrackTitle); err != nil {
			return nil, err
		}
		hits[h.ConversationID] = h
	}
	err = rows.Err()
	return hits, err
}

// CountConversations returns the number of stored conversations.
func (d *Database) CountConversations(ctx context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var n int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversations").Scan(&n)
	return n, err
}

// ForEachConversation calls fn for every stored conversation in id order,
// stopping at the first error.
func (d *Database) ForEachConversation(ctx context.Context, fn func(Conversation) error) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("for_each_conversation", start, err) }()

	d.mu.RLock()
	rows, err := d.db.QueryContext(ctx, "SELECT id, track_id, indexed_text FROM conversations ORDER BY id")
	d.mu.RUnlock()
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var c Conversation
		if err = rows.Scan(&c.ID, &c.TrackID, &c.IndexedText); err != nil {
			return err
		}
		if err = fn(c); err != nil {
			return err
		}
	}
	err = rows.Err()
	return err
}
