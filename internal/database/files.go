package database

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"
)

const fileColumns = "id, library_id, path, last_modified, size, still_exists, indexed"

func scanFile(row interface{ Scan(...any) error }, f *File) error {
	return row.Scan(&f.ID, &f.LibraryID, &f.Path, &f.LastModified, &f.Size, &f.StillExists, &f.Indexed)
}

func (d *Database) queryFiles(ctx context.Context, op, query string, args ...any) ([]File, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery(op, start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		var f File
		if err = scanFile(rows, &f); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	err = rows.Err()
	return files, err
}

// ListFiles returns every file row of a library, present or not.
func (d *Database) ListFiles(ctx context.Context, libraryID int64) ([]File, error) {
	return d.queryFiles(ctx, "list_files",
		"SELECT "+fileColumns+" FROM files WHERE library_id = ? ORDER BY path", libraryID)
}

// ListPendingFiles returns the present files of a library whose tracks
// have not been extracted for their current content.
func (d *Database) ListPendingFiles(ctx context.Context, libraryID int64) ([]File, error) {
	return d.queryFiles(ctx, "list_pending_files",
		"SELECT "+fileColumns+" FROM files WHERE library_id = ? AND still_exists AND NOT indexed ORDER BY path", libraryID)
}

// GetFile returns a file by id, or ErrNotFound.
func (d *Database) GetFile(ctx context.Context, id int64) (*File, error) {
	files, err := d.queryFiles(ctx, "get_file", "SELECT "+fileColumns+" FROM files WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNotFound
	}
	return &files[0], nil
}

// UpsertFile records an observed file. A new file is inserted unindexed. A
// known file is marked present again, and its indexed flag is cleared when
// its modification time or size differ from the stored values.
func (d *Database) UpsertFile(b *Batch, libraryID int64, path string, lastModified, size int64) error {
	start := time.Now()
	_, err := b.Exec(`
		INSERT INTO files (library_id, path, last_modified, size, still_exists, indexed)
		VALUES (?, ?, ?, ?, 1, 0)
		ON CONFLICT(library_id, path) DO UPDATE SET
			still_exists = 1,
			indexed = CASE
				WHEN files.last_modified != excluded.last_modified OR files.size != excluded.size
				THEN 0
				ELSE files.indexed
			END,
			last_modified = excluded.last_modified,
			size = excluded.size`,
		libraryID, path, lastModified, size)
	recordQuery("upsert_file", start, err)
	return err
}

// MarkFileMissing flags a file as absent without deleting it.
func (d *Database) MarkFileMissing(b *Batch, id int64) error {
	start := time.Now()
	_, err := b.Exec("UPDATE files SET still_exists = 0 WHERE id = ?", id)
	recordQuery("mark_file_missing", start, err)
	return err
}

// MarkFileIndexed records that a file's tracks reflect its current content.
func (d *Database) MarkFileIndexed(ctx context.Context, id int64) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("mark_file_indexed", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "UPDATE files SET indexed = 1 WHERE id = ?", id)
	return err
}

// GetFileDetails returns a file and its tracks ordered by stream index.
func (d *Database) GetFileDetails(ctx context.Context, id int64) (*FileDetails, error) {
	file, err := d.GetFile(ctx, id)
	if err != nil {
		return nil, err
	}

	tracks, err := d.ListTracks(ctx, id)
	if err != nil {
		return nil, err
	}
	if tracks == nil {
		tracks = []Track{}
	}

	return &FileDetails{File: *file, Tracks: tracks}, nil
}

// Folders returns, per library id, the directory tree implied by the stored
// file paths. Files at a library's root contribute no folder.
func (d *Database) Folders(ctx context.Context) (map[int64][]*Folder, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("folders", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// rtrim(path, replace(path, '/', '')) strips the file name, leaving the
	// directory with its trailing slash.
	rows, err := d.db.QueryContext(ctx, `
		SELECT DISTINCT library_id, rtrim(path, replace(path, '/', '')) AS folder_path
		FROM files
		WHERE still_exists`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	folders := make(map[int64][]*Folder)
	for rows.Next() {
		var libraryID int64
		var folderPath string
		if err = rows.Scan(&libraryID, &folderPath); err != nil {
			return nil, err
		}
		folders[libraryID] = addFolder(folders[libraryID], folderPath)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	for _, roots := range folders {
		sortFolders(roots)
	}
	return folders, nil
}

// addFolder inserts every component of folderPath ("a/b/") into the tree.
func addFolder(roots []*Folder, folderPath string) []*Folder {
	trimmed := strings.TrimSuffix(folderPath, "/")
	if trimmed == "" {
		if roots == nil {
			return []*Folder{}
		}
		return roots
	}

	components := strings.Split(trimmed, "/")
	level := &roots
	for i, name := range components {
		var next *Folder
		for _, f := range *level {
			if f.Name == name {
				next = f
				break
			}
		}
		if next == nil {
			next = &Folder{
				Name:     name,
				Path:     strings.Join(components[:i+1], "/") + "/",
				Children: []*Folder{},
			}
			*level = append(*level, next)
		}
		level = &next.Children
	}
	return roots
}

func sortFolders(folders []*Folder) {
	sort.Slice(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })
	for _, f := range folders {
		sortFolders(f.Children)
	}
}

// ConversationIDsForFile returns the ids of every conversation stored under
// the file's tracks.
func (d *Database) ConversationIDsForFile(ctx context.Context, fileID int64) ([]int64, error) {
	return d.queryIDs(ctx, "conversation_ids_for_file", `
		SELECT conversations.id FROM conversations
		INNER JOIN tracks ON (conversations.track_id = tracks.id)
		WHERE tracks.file_id = ?`, fileID)
}

// ConversationIDsForLibrary returns the ids of every conversation stored
// under the library's files.
func (d *Database) ConversationIDsForLibrary(ctx context.Context, libraryID int64) ([]int64, error) {
	return d.queryIDs(ctx, "conversation_ids_for_library", `
		SELECT conversations.id FROM conversations
		INNER JOIN tracks ON (conversations.track_id = tracks.id)
		INNER JOIN files ON (tracks.file_id = files.id)
		WHERE files.library_id = ?`, libraryID)
}

func (d *Database) queryIDs(ctx context.Context, op, query string, args ...any) ([]int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery(op, start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	err = rows.Err()
	return ids, err
}

// lookupErr maps sql.ErrNoRows to ErrNotFound.
func lookupErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
