package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ListTracks returns a file's tracks ordered by stream index.
func (d *Database) ListTracks(ctx context.Context, fileID int64) ([]Track, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_tracks", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, file_id, track_number, type, language, title
		FROM tracks WHERE file_id = ? ORDER BY track_number`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []Track
	for rows.Next() {
		var t Track
		if err = rows.Scan(&t.ID, &t.FileID, &t.TrackNumber, &t.Type, &t.Language, &t.Title); err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	err = rows.Err()
	return tracks, err
}

// DeleteTracksForFile removes every track of a file. Conversations, lines
// and their full-text entries go with them.
func (d *Database) DeleteTracksForFile(ctx context.Context, fileID int64) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_tracks", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "DELETE FROM tracks WHERE file_id = ?", fileID)
	return err
}

// InsertTrack stores a probed stream and returns its id.
func (d *Database) InsertTrack(ctx context.Context, t Track) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("insert_track", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx,
		"INSERT INTO tracks (file_id, track_number, type, language, title) VALUES (?, ?, ?, ?, ?)",
		t.FileID, t.TrackNumber, t.Type, t.Language, t.Title)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// StoreTrackDialogue saves a subtitle track's preamble and non-dialogue
// events and inserts its conversations and lines, all in one transaction.
// It returns the stored conversations.
func (d *Database) StoreTrackDialogue(ctx context.Context, trackID int64, preamble, nondialogue json.RawMessage, conversations []NewConversation) (stored []Conversation, err error) {
	b, err := d.BeginBatch(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = d.EndBatch(b, err)
		if err != nil {
			stored = nil
		}
	}()

	start := time.Now()
	_, err = b.ExecContext(ctx,
		"UPDATE tracks SET subtitle_preamble_json = ?, subtitle_nondialogue_events_json = ? WHERE id = ?",
		string(preamble), string(nondialogue), trackID)
	recordQuery("update_track_subtitle", start, err)
	if err != nil {
		return nil, err
	}

	convStmt, err := b.PrepareContext(ctx, "INSERT INTO conversations (track_id, indexed_text) VALUES (?, ?)")
	if err != nil {
		return nil, err
	}
	defer convStmt.Close()

	lineStmt, err := b.PrepareContext(ctx,
		"INSERT INTO lines (conversation_id, start_ms, end_ms, subtitle_event_json, display_text) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return nil, err
	}
	defer lineStmt.Close()

	start = time.Now()
	defer func() { recordQuery("insert_conversations", start, err) }()

	stored = make([]Conversation, 0, len(conversations))
	for _, c := range conversations {
		var res sql.Result
		res, err = convStmt.ExecContext(ctx, trackID, c.IndexedText)
		if err != nil {
			return nil, fmt.Errorf("insert conversation: %w", err)
		}
		var id int64
		if id, err = res.LastInsertId(); err != nil {
			return nil, err
		}

		for _, l := range c.Lines {
			if _, err = lineStmt.ExecContext(ctx, id, l.StartMs, l.EndMs, string(l.Event), l.DisplayText); err != nil {
				return nil, fmt.Errorf("insert line: %w", err)
			}
		}

		stored = append(stored, Conversation{ID: id, TrackID: trackID, IndexedText: c.IndexedText})
	}

	return stored, nil
}

// GetTrackWithLines returns a track with its decoded subtitle metadata and
// every line of its dialogue ordered by start time.
func (d *Database) GetTrackWithLines(ctx context.Context, id int64) (*TrackWithLines, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_track", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var (
		t                     TrackDetails
		preamble, nondialogue sql.NullString
	)
	err = d.db.QueryRowContext(ctx, `
		SELECT id, file_id, track_number, type, language, title, subtitle_preamble_json, subtitle_nondialogue_events_json
		FROM tracks WHERE id = ?`, id).Scan(
		&t.ID, &t.FileID, &t.TrackNumber, &t.Type, &t.Language, &t.Title, &preamble, &nondialogue)
	if err != nil {
		return nil, lookupErr(err)
	}
	t.Preamble = rawOrNull(preamble)
	t.NondialogueEvents = rawOrNull(nondialogue)

	rows, err := d.db.QueryContext(ctx, `
		SELECT lines.conversation_id, lines.start_ms, lines.end_ms, lines.display_text, lines.subtitle_event_json
		FROM lines
		INNER JOIN conversations ON (conversations.id = lines.conversation_id)
		WHERE conversations.track_id = ?
		ORDER BY lines.start_ms, lines.id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := []Line{}
	for rows.Next() {
		var l Line
		var event string
		if err = rows.Scan(&l.ConversationID, &l.StartMs, &l.EndMs, &l.DisplayText, &event); err != nil {
			return nil, err
		}
		l.Event = json.RawMessage(event)
		lines = append(lines, l)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return &TrackWithLines{Track: t, Lines: lines}, nil
}

func rawOrNull(s sql.NullString) json.RawMessage {
	if !s.Valid || s.String == "" {
		return json.RawMessage("null")
	}
	return json.RawMessage(s.String)
}

// GetTrackSources resolves track ids to the library, file and stream that
// hold them. Unknown ids are absent from the result.
func (d *Database) GetTrackSources(ctx context.Context, ids ...int64) (map[int64]TrackSource, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_track_sources", start, err) }()

	sources := make(map[int64]TrackSource, len(ids))
	if len(ids) == 0 {
		return sources, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT tracks.id, tracks.type, libraries.path, files.path, tracks.track_number
		FROM tracks
		INNER JOIN files ON (files.id = tracks.file_id)
		INNER JOIN libraries ON (libraries.id = files.library_id)
		WHERE tracks.id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var s TrackSource
		if err = rows.Scan(&s.TrackID, &s.Type, &s.LibraryPath, &s.FilePath, &s.StreamIndex); err != nil {
			return nil, err
		}
		sources[s.TrackID] = s
	}
	err = rows.Err()
	return sources, err
}
