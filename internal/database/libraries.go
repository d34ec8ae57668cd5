package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ListLibraries returns every registered library ordered by id.
func (d *Database) ListLibraries(ctx context.Context) ([]Library, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_libraries", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, "SELECT id, path, search_by_default, still_exists FROM libraries ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var libraries []Library
	for rows.Next() {
		var l Library
		if err = rows.Scan(&l.ID, &l.Path, &l.SearchByDefault, &l.StillExists); err != nil {
			return nil, err
		}
		libraries = append(libraries, l)
	}
	err = rows.Err()
	return libraries, err
}

// GetLibrary returns a library by id, or ErrNotFound.
func (d *Database) GetLibrary(ctx context.Context, id int64) (*Library, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_library", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var l Library
	err = d.db.QueryRowContext(ctx,
		"SELECT id, path, search_by_default, still_exists FROM libraries WHERE id = ?", id,
	).Scan(&l.ID, &l.Path, &l.SearchByDefault, &l.StillExists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// UpsertLibrary registers a library, or updates searchByDefault when the
// path is already registered. It returns the library id.
func (d *Database) UpsertLibrary(ctx context.Context, path string, searchByDefault bool) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_library", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var id int64
	err = d.db.QueryRowContext(ctx, `
		INSERT INTO libraries (path, search_by_default, still_exists) VALUES (?, ?, 1)
		ON CONFLICT(path) DO UPDATE SET search_by_default = excluded.search_by_default
		RETURNING id`, path, searchByDefault).Scan(&id)
	return id, err
}

// AddLibrary registers a library if its path is not known yet and leaves an
// existing registration untouched. It reports whether a row was inserted.
func (d *Database) AddLibrary(ctx context.Context, path string, searchByDefault bool) (bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("add_library", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx,
		"INSERT INTO libraries (path, search_by_default, still_exists) VALUES (?, ?, 1) ON CONFLICT(path) DO NOTHING",
		path, searchByDefault)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetLibraryExists records whether a library's root is reachable. Files are
// not touched.
func (d *Database) SetLibraryExists(ctx context.Context, id int64, exists bool) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("set_library_exists", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "UPDATE libraries SET still_exists = ? WHERE id = ?", exists, id)
	return err
}

// DeleteLibrary removes a library together with its files, tracks,
// conversations and lines.
func (d *Database) DeleteLibrary(ctx context.Context, id int64) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_library", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "DELETE FROM libraries WHERE id = ?", id)
	return err
}
