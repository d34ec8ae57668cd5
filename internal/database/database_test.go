package database

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()

	db, err := New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func upsertFile(t *testing.T, db *Database, libraryID int64, path string, mtime, size int64) {
	t.Helper()
	ctx := context.Background()

	b, err := db.BeginBatch(ctx)
	if err != nil {
		t.Fatalf("BeginBatch() error = %v", err)
	}
	err = db.UpsertFile(b, libraryID, path, mtime, size)
	if err := db.EndBatch(b, err); err != nil {
		t.Fatalf("UpsertFile(%s) error = %v", path, err)
	}
}

func fileByPath(t *testing.T, db *Database, libraryID int64, path string) File {
	t.Helper()
	files, err := db.ListFiles(context.Background(), libraryID)
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	for _, f := range files {
		if f.Path == path {
			return f
		}
	}
	t.Fatalf("file %s not found", path)
	return File{}
}

func strPtr(s string) *string { return &s }

// storeDialogue inserts a file with one subtitle track holding the given
// conversation texts and returns the file and track ids.
func storeDialogue(t *testing.T, db *Database, libraryID int64, path string, language *string, texts ...string) (int64, int64) {
	t.Helper()
	ctx := context.Background()

	upsertFile(t, db, libraryID, path, 1000, 10)
	f := fileByPath(t, db, libraryID, path)

	trackID, err := db.InsertTrack(ctx, Track{FileID: f.ID, TrackNumber: 2, Type: TrackTypeSubtitle, Language: language})
	if err != nil {
		t.Fatalf("InsertTrack() error = %v", err)
	}

	convs := make([]NewConversation, 0, len(texts))
	for i, text := range texts {
		convs = append(convs, NewConversation{
			IndexedText: text,
			Lines: []NewLine{{
				StartMs:     int64(i) * 10000,
				EndMs:       int64(i)*10000 + 1000,
				Event:       json.RawMessage(`{"Text":{"raw":"x"}}`),
				DisplayText: text,
			}},
		})
	}
	if _, err := db.StoreTrackDialogue(ctx, trackID, json.RawMessage(`{"info":{}}`), json.RawMessage(`{"format":[]}`), convs); err != nil {
		t.Fatalf("StoreTrackDialogue() error = %v", err)
	}
	return f.ID, trackID
}

func TestLibraryUpsertAndAdd(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id, err := db.UpsertLibrary(ctx, "Anime", true)
	if err != nil {
		t.Fatalf("UpsertLibrary() error = %v", err)
	}

	again, err := db.UpsertLibrary(ctx, "Anime", false)
	if err != nil {
		t.Fatalf("UpsertLibrary() second call error = %v", err)
	}
	if again != id {
		t.Errorf("UpsertLibrary returned id %d, want %d", again, id)
	}

	lib, err := db.GetLibrary(ctx, id)
	if err != nil {
		t.Fatalf("GetLibrary() error = %v", err)
	}
	if lib.SearchByDefault {
		t.Error("SearchByDefault should have been updated to false")
	}

	inserted, err := db.AddLibrary(ctx, "Anime", true)
	if err != nil || inserted {
		t.Errorf("AddLibrary(existing) = %v, %v; want false, nil", inserted, err)
	}
	lib, _ = db.GetLibrary(ctx, id)
	if lib.SearchByDefault {
		t.Error("AddLibrary must not modify an existing library")
	}

	if _, err := db.GetLibrary(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetLibrary(999) error = %v, want ErrNotFound", err)
	}
}

func TestUpsertFileLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	libID, _ := db.UpsertLibrary(ctx, "Films", true)

	upsertFile(t, db, libID, "a/movie.mkv", 1000, 500)
	f := fileByPath(t, db, libID, "a/movie.mkv")
	if f.Indexed || !f.StillExists {
		t.Fatalf("new file = %+v, want present and unindexed", f)
	}

	if err := db.MarkFileIndexed(ctx, f.ID); err != nil {
		t.Fatalf("MarkFileIndexed() error = %v", err)
	}

	// Unchanged rescan keeps indexed.
	upsertFile(t, db, libID, "a/movie.mkv", 1000, 500)
	if f = fileByPath(t, db, libID, "a/movie.mkv"); !f.Indexed {
		t.Error("unchanged file lost its indexed flag")
	}

	// Missing then reappearing with identical stats.
	b, _ := db.BeginBatch(ctx)
	err := db.MarkFileMissing(b, f.ID)
	if err := db.EndBatch(b, err); err != nil {
		t.Fatalf("MarkFileMissing() error = %v", err)
	}
	if f = fileByPath(t, db, libID, "a/movie.mkv"); f.StillExists {
		t.Error("file should be marked missing")
	}
	upsertFile(t, db, libID, "a/movie.mkv", 1000, 500)
	if f = fileByPath(t, db, libID, "a/movie.mkv"); !f.StillExists || !f.Indexed {
		t.Errorf("restored file = %+v, want present and still indexed", f)
	}

	// Changed size resets indexed.
	upsertFile(t, db, libID, "a/movie.mkv", 1000, 501)
	if f = fileByPath(t, db, libID, "a/movie.mkv"); f.Indexed {
		t.Error("changed file should need re-indexing")
	}

	pending, err := db.ListPendingFiles(ctx, libID)
	if err != nil {
		t.Fatalf("ListPendingFiles() error = %v", err)
	}
	if len(pending) != 1 || pending[0].ID != f.ID {
		t.Errorf("ListPendingFiles() = %+v, want the changed file", pending)
	}
}

func TestSearchConversationsAndReindex(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	libID, _ := db.UpsertLibrary(ctx, "Anime", true)

	fileID, trackID := storeDialogue(t, db, libID, "Show/ep1.mkv", strPtr("eng"),
		"the quick brown fox", "an entirely unrelated remark")

	hits, err := db.SearchConversations(ctx, "fox", "1", nil, 10)
	if err != nil {
		t.Fatalf("SearchConversations() error = %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	h := hits[0]
	if h.FileID != fileID || h.TrackID != trackID || h.LibraryID != libID || h.FilePath != "Show/ep1.mkv" {
		t.Errorf("unexpected hit %+v", h)
	}
	if !strings.Contains(h.Preview, HighlightStart+"fox"+HighlightEnd) {
		t.Errorf("preview %q lacks highlighted term", h.Preview)
	}
	if h.Language == nil || *h.Language != "eng" {
		t.Errorf("Language = %v, want eng", h.Language)
	}

	ids, err := db.ConversationIDsForFile(ctx, fileID)
	if err != nil || len(ids) != 2 {
		t.Fatalf("ConversationIDsForFile() = %v, %v; want 2 ids", ids, err)
	}

	if err := db.DeleteTracksForFile(ctx, fileID); err != nil {
		t.Fatalf("DeleteTracksForFile() error = %v", err)
	}
	hits, err = db.SearchConversations(ctx, "fox", "1", nil, 10)
	if err != nil {
		t.Fatalf("SearchConversations() after delete error = %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("stale full-text entries remain after track deletion: %+v", hits)
	}
	if n, _ := db.CountConversations(ctx); n != 0 {
		t.Errorf("CountConversations() = %d, want 0", n)
	}
}

func TestSearchExcludesMissingFiles(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	libID, _ := db.UpsertLibrary(ctx, "Anime", true)
	fileID, _ := storeDialogue(t, db, libID, "ep.mkv", nil, "hello there")

	b, _ := db.BeginBatch(ctx)
	err := db.MarkFileMissing(b, fileID)
	if err := db.EndBatch(b, err); err != nil {
		t.Fatal(err)
	}

	hits, err := db.SearchConversations(ctx, "hello", "1", nil, 10)
	if err != nil {
		t.Fatalf("SearchConversations() error = %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("missing file should not be searchable, got %d hits", len(hits))
	}
}

func TestSearchRankingOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	libID, _ := db.UpsertLibrary(ctx, "Anime", true)
	storeDialogue(t, db, libID, "ep.mkv", nil,
		"banana once among many many many other ordinary filler words here",
		"banana banana banana")

	hits, err := db.SearchConversations(ctx, "banana", "1", nil, 10)
	if err != nil {
		t.Fatalf("SearchConversations() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].Rank > hits[1].Rank {
		t.Errorf("hits not ordered by ascending bm25: %v then %v", hits[0].Rank, hits[1].Rank)
	}
	if hits[0].ConversationID < hits[1].ConversationID {
		t.Errorf("denser match should rank first, got %q", hits[0].Preview)
	}
}

func TestFilterConversations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	libID, _ := db.UpsertLibrary(ctx, "Anime", true)
	storeDialogue(t, db, libID, "a.mkv", strPtr("eng"), "one")
	storeDialogue(t, db, libID, "b.mkv", strPtr("jpn"), "two")

	var all []int64
	_ = db.ForEachConversation(ctx, func(c Conversation) error {
		all = append(all, c.ID)
		return nil
	})
	if len(all) != 2 {
		t.Fatalf("ForEachConversation visited %d, want 2", len(all))
	}

	hits, err := db.FilterConversations(ctx, all, "tracks.language = ?", []any{"jpn"})
	if err != nil {
		t.Fatalf("FilterConversations() error = %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	for _, h := range hits {
		if h.FilePath != "b.mkv" {
			t.Errorf("unexpected hit %+v", h)
		}
	}
}

func TestGetTrackWithLines(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	libID, _ := db.UpsertLibrary(ctx, "Anime", true)
	_, trackID := storeDialogue(t, db, libID, "a.mkv", nil, "first", "second")

	got, err := db.GetTrackWithLines(ctx, trackID)
	if err != nil {
		t.Fatalf("GetTrackWithLines() error = %v", err)
	}
	if got.Track.Type != TrackTypeSubtitle || got.Track.TrackNumber != 2 {
		t.Errorf("unexpected track %+v", got.Track)
	}
	if string(got.Track.Preamble) != `{"info":{}}` {
		t.Errorf("Preamble = %s", got.Track.Preamble)
	}
	if len(got.Lines) != 2 || got.Lines[0].DisplayText != "first" || got.Lines[1].StartMs != 10000 {
		t.Errorf("unexpected lines %+v", got.Lines)
	}

	if _, err := db.GetTrackWithLines(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTrackWithLines(999) error = %v, want ErrNotFound", err)
	}
}

func TestGetTrackSources(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	libID, _ := db.UpsertLibrary(ctx, "Anime", true)
	_, trackID := storeDialogue(t, db, libID, "Show/a.mkv", nil, "x")

	sources, err := db.GetTrackSources(ctx, trackID, 12345)
	if err != nil {
		t.Fatalf("GetTrackSources() error = %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("got %d sources, want 1", len(sources))
	}
	s := sources[trackID]
	if s.LibraryPath != "Anime" || s.FilePath != "Show/a.mkv" || s.StreamIndex != 2 {
		t.Errorf("unexpected source %+v", s)
	}
}

func TestDeleteLibraryCascades(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	libID, _ := db.UpsertLibrary(ctx, "Anime", true)
	storeDialogue(t, db, libID, "a.mkv", nil, "cascade me")

	if err := db.DeleteLibrary(ctx, libID); err != nil {
		t.Fatalf("DeleteLibrary() error = %v", err)
	}

	stats, err := db.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.Libraries != 0 || stats.FilesPending != 0 || stats.SubtitleTracks != 0 || stats.Conversations != 0 || stats.Lines != 0 {
		t.Errorf("rows survived library deletion: %+v", stats)
	}
	hits, _ := db.SearchConversations(ctx, "cascade", "1", nil, 10)
	if len(hits) != 0 {
		t.Error("full-text entries survived library deletion")
	}
}

func TestFolders(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	libID, _ := db.UpsertLibrary(ctx, "Anime", true)

	for _, p := range []string{"root.mkv", "Show/S1/e1.mkv", "Show/S1/e2.mkv", "Show/S2/e1.mkv", "Other/x.mkv"} {
		upsertFile(t, db, libID, p, 1, 1)
	}

	folders, err := db.Folders(ctx)
	if err != nil {
		t.Fatalf("Folders() error = %v", err)
	}

	roots := folders[libID]
	if len(roots) != 2 || roots[0].Name != "Other" || roots[1].Name != "Show" {
		t.Fatalf("unexpected roots %+v", roots)
	}
	show := roots[1]
	if show.Path != "Show/" || len(show.Children) != 2 {
		t.Fatalf("unexpected Show node %+v", show)
	}
	if show.Children[1].Path != "Show/S2/" {
		t.Errorf("S2 path = %q, want Show/S2/", show.Children[1].Path)
	}
}

func TestSettings(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, ok, err := db.GetSetting(ctx, "setupComplete"); err != nil || ok {
		t.Fatalf("GetSetting(unset) = ok %v, err %v", ok, err)
	}
	if err := db.SetSetting(ctx, "setupComplete", "1"); err != nil {
		t.Fatalf("SetSetting() error = %v", err)
	}
	if v, ok, err := db.GetSetting(ctx, "setupComplete"); err != nil || !ok || v != "1" {
		t.Errorf("GetSetting() = %q, %v, %v", v, ok, err)
	}
}
