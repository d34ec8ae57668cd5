package indexer

import (
	"context"
	"fmt"

	"subtitle-index/internal/database"
	"subtitle-index/internal/logging"
	"subtitle-index/internal/metrics"
)

type fileChange int

const (
	changeNone fileChange = iota
	changeNew
	changeModified
	changeRestored
	changeMissing
)

func (c fileChange) String() string {
	switch c {
	case changeNew:
		return "new"
	case changeModified:
		return "modified"
	case changeRestored:
		return "restored"
	case changeMissing:
		return "missing"
	default:
		return "unchanged"
	}
}

type fileUpdate struct {
	change fileChange
	id     int64
	file   ObservedFile
}

// ScanFiles walks every reachable library and reconciles its file rows:
// new files are inserted unindexed, files that disappeared are marked
// missing, files that reappeared are restored, and files whose size or
// modification time changed are queued for re-extraction. A library whose
// root cannot be walked is skipped.
func (idx *Indexer) ScanFiles(ctx context.Context) error {
	libs, err := idx.db.ListLibraries(ctx)
	if err != nil {
		return fmt.Errorf("failed to list libraries: %w", err)
	}

	for _, lib := range libs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !lib.StillExists {
			continue
		}
		if err := idx.scanLibrary(ctx, lib); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Error("Failed to scan library %s: %v", lib.Path, err)
		}
	}
	return nil
}

func (idx *Indexer) scanLibrary(ctx context.Context, lib database.Library) error {
	walker := NewParallelWalker(ctx, idx.LibraryRoot(lib), idx.opts.Walker)
	walked, err := walker.Walk()
	if err != nil {
		return err
	}

	known, err := idx.db.ListFiles(ctx, lib.ID)
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}

	updates := diffFiles(known, walked)
	counts := make(map[fileChange]int)
	for _, u := range updates {
		counts[u.change]++
		metrics.ScanFilesTotal.WithLabelValues(u.change.String()).Inc()
	}

	idx.updateProgress(func(p *Progress) {
		p.FilesScanned += int64(len(walked.Files))
	})

	if err := idx.applyUpdates(ctx, lib.ID, updates); err != nil {
		return err
	}

	if len(updates) > 0 {
		logging.Info("Library %s: %d files, %d new, %d modified, %d restored, %d missing",
			lib.Path, len(walked.Files), counts[changeNew], counts[changeModified], counts[changeRestored], counts[changeMissing])
	}
	return nil
}

// diffFiles compares the stored rows of a library with a walk result and
// returns the rows that need writing. Unchanged files produce no update.
func diffFiles(known []database.File, walked *WalkResult) []fileUpdate {
	byPath := make(map[string]database.File, len(known))
	for _, f := range known {
		byPath[f.Path] = f
	}

	var updates []fileUpdate
	seen := make(map[string]bool, len(walked.Files))
	for _, f := range walked.Files {
		seen[f.Path] = true

		existing, ok := byPath[f.Path]
		switch {
		case !ok:
			updates = append(updates, fileUpdate{change: changeNew, file: f})
		case existing.LastModified != f.LastModified || existing.Size != f.Size:
			updates = append(updates, fileUpdate{change: changeModified, id: existing.ID, file: f})
		case !existing.StillExists:
			updates = append(updates, fileUpdate{change: changeRestored, id: existing.ID, file: f})
		}
	}

	for _, f := range known {
		if !f.StillExists || seen[f.Path] || walked.Covers(f.Path) {
			continue
		}
		updates = append(updates, fileUpdate{change: changeMissing, id: f.ID, file: ObservedFile{Path: f.Path}})
	}

	return updates
}

func (idx *Indexer) applyUpdates(ctx context.Context, libraryID int64, updates []fileUpdate) error {
	batchSize := idx.opts.Walker.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}

	for start := 0; start < len(updates); start += batchSize {
		end := min(start+batchSize, len(updates))
		if err := idx.applyBatch(ctx, libraryID, updates[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (idx *Indexer) applyBatch(ctx context.Context, libraryID int64, updates []fileUpdate) (err error) {
	b, err := idx.db.BeginBatch(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin batch: %w", err)
	}
	defer func() { err = idx.db.EndBatch(b, err) }()

	for _, u := range updates {
		if u.change == changeMissing {
			if err = idx.db.MarkFileMissing(b, u.id); err != nil {
				return fmt.Errorf("failed to mark %s missing: %w", u.file.Path, err)
			}
			continue
		}
		if err = idx.db.UpsertFile(b, libraryID, u.file.Path, u.file.LastModified, u.file.Size); err != nil {
			return fmt.Errorf("failed to record %s: %w", u.file.Path, err)
		}
	}
	return nil
}

