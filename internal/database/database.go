package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver, built with the sqlite_fts5 tag

	"subtitle-index/internal/logging"
	"subtitle-index/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// ErrNotFound is returned when a requested library, file or track does not exist.
var ErrNotFound = errors.New("not found")

// Database manages all persisted index state: libraries, files, tracks,
// conversations, lines and the conversation full-text index.
type Database struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Batch is a transaction opened with BeginBatch.
type Batch struct {
	*sql.Tx
	start time.Time
}

// New opens (creating if needed) the database FILE at dbPath and applies the
// schema. The parent directory must already exist and be writable.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// busy_timeout keeps concurrent writers from failing with "database is locked"
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000&_foreign_keys=on", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS libraries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		search_by_default INTEGER NOT NULL DEFAULT 1,
		still_exists INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		library_id INTEGER NOT NULL REFERENCES libraries(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		last_modified INTEGER NOT NULL,
		size INTEGER NOT NULL,
		still_exists INTEGER NOT NULL DEFAULT 1,
		indexed INTEGER NOT NULL DEFAULT 0,
		UNIQUE (library_id, path)
	);

	CREATE INDEX IF NOT EXISTS idx_files_pending ON files(library_id, still_exists, indexed);

	CREATE TABLE IF NOT EXISTS tracks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
		track_number INTEGER NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('video', 'audio', 'subtitle')),
		language TEXT,
		title TEXT,
		subtitle_preamble_json TEXT,
		subtitle_nondialogue_events_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_tracks_file ON tracks(file_id);
	CREATE INDEX IF NOT EXISTS idx_tracks_language ON tracks(language);

	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		track_id INTEGER NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
		indexed_text TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_track ON conversations(track_id);

	CREATE VIRTUAL TABLE IF NOT EXISTS conversations_fts USING fts5(
		indexed_text,
		content='conversations',
		content_rowid='id'
	);

	CREATE TRIGGER IF NOT EXISTS conversations_ai AFTER INSERT ON conversations BEGIN
		INSERT INTO conversations_fts(rowid, indexed_text) VALUES (new.id, new.indexed_text);
	END;

	CREATE TRIGGER IF NOT EXISTS conversations_ad AFTER DELETE ON conversations BEGIN
		INSERT INTO conversations_fts(conversations_fts, rowid, indexed_text) VALUES('delete', old.id, old.indexed_text);
	END;

	CREATE TRIGGER IF NOT EXISTS conversations_au AFTER UPDATE ON conversations BEGIN
		INSERT INTO conversations_fts(conversations_fts, rowid, indexed_text) VALUES('delete', old.id, old.indexed_text);
		INSERT INTO conversations_fts(rowid, indexed_text) VALUES (new.id, new.indexed_text);
	END;

	CREATE TABLE IF NOT EXISTS lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		start_ms INTEGER NOT NULL,
		end_ms INTEGER NOT NULL,
		subtitle_event_json TEXT NOT NULL,
		display_text TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_lines_conversation ON lines(conversation_id, start_ms);

	CREATE TABLE IF NOT EXISTS settings (
		setting TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := d.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database.
func (d *Database) Close() error {
	return d.db.Close()
}

// BeginBatch starts a transaction for batch operations.
// The caller is responsible for calling EndBatch when done.
func (d *Database) BeginBatch(ctx context.Context) (*Batch, error) {
	d.mu.Lock()
	start := time.Now()
	tx, err := d.db.BeginTx(ctx, nil)
	d.mu.Unlock()

	if err != nil {
		return nil, err
	}

	return &Batch{Tx: tx, start: start}, nil
}

// EndBatch commits the batch, or rolls it back when err is non-nil.
func (d *Database) EndBatch(b *Batch, err error) error {
	duration := time.Since(b.start).Seconds()

	if err != nil {
		metrics.DBTransactionDuration.WithLabelValues("error").Observe(duration)
		if rbErr := b.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	metrics.DBTransactionDuration.WithLabelValues("success").Observe(duration)
	return b.Commit()
}

// GetSetting returns a stored setting and whether it exists.
func (d *Database) GetSetting(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_setting", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value string
	err = d.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE setting = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetSetting stores a setting, replacing any previous value.
func (d *Database) SetSetting(ctx context.Context, key, value string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("set_setting", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO settings (setting, value) VALUES (?, ?)
		ON CONFLICT(setting) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// GetStats counts stored entities for the metrics collector.
func (d *Database) GetStats(ctx context.Context) (metrics.Stats, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_stats", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	var s metrics.Stats
	err = d.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM libraries),
			(SELECT COUNT(*) FROM files WHERE still_exists AND indexed),
			(SELECT COUNT(*) FROM files WHERE still_exists AND NOT indexed),
			(SELECT COUNT(*) FROM files WHERE NOT still_exists),
			(SELECT COUNT(*) FROM tracks WHERE type = 'video'),
			(SELECT COUNT(*) FROM tracks WHERE type = 'audio'),
			(SELECT COUNT(*) FROM tracks WHERE type = 'subtitle'),
			(SELECT COUNT(*) FROM conversations),
			(SELECT COUNT(*) FROM lines)`).Scan(
		&s.Libraries, &s.FilesIndexed, &s.FilesPending, &s.FilesMissing,
		&s.VideoTracks, &s.AudioTracks, &s.SubtitleTracks, &s.Conversations, &s.Lines,
	)
	return s, err
}

// Ping checks that the database answers queries.
func (d *Database) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return d.db.PingContext(ctx)
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// UpdateDBMetrics records the on-disk size of the database files.
func (d *Database) UpdateDBMetrics() {
	for label, suffix := range map[string]string{"main": "", "wal": "-wal", "shm": "-shm"} {
		if info, err := os.Stat(d.dbPath + suffix); err == nil {
			metrics.DBSizeBytes.WithLabelValues(label).Set(float64(info.Size()))
		}
	}
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}

	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", path, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("Database file %s is read-only! Mode: %v - this will cause write failures", path, info.Mode())
			if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
				logging.Error("Failed to fix permissions on %s: %v", path, chmodErr)
			} else {
				logging.Info("Fixed permissions on %s", path)
			}
		}
	}

	return nil
}
