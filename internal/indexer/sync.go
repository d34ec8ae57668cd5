package indexer

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"subtitle-index/internal/database"
	"subtitle-index/internal/filesystem"
	"subtitle-index/internal/logging"
	"subtitle-index/internal/metrics"
)

const setupCompleteKey = "setupComplete"

// LibraryRoot returns the absolute directory of a library.
func (idx *Indexer) LibraryRoot(lib database.Library) string {
	if filepath.IsAbs(lib.Path) {
		return lib.Path
	}
	return filepath.Join(idx.opts.RootDir, lib.Path)
}

// SyncLibraries registers the configured libraries. With an explicit list,
// every other library is removed together with its files. Without one,
// the subdirectories of the scan root are registered once, on first run;
// discovery only ever adds.
func (idx *Indexer) SyncLibraries(ctx context.Context) error {
	if len(idx.opts.DefaultLibraries) > 0 || len(idx.opts.NondefaultLibraries) > 0 {
		return idx.syncExplicit(ctx)
	}

	if idx.opts.SkipSetup {
		return nil
	}

	_, done, err := idx.db.GetSetting(ctx, setupCompleteKey)
	if err != nil {
		return fmt.Errorf("failed to read setup state: %w", err)
	}
	if done {
		return nil
	}

	return idx.discoverLibraries(ctx)
}

func (idx *Indexer) syncExplicit(ctx context.Context) error {
	wanted := make(map[string]bool)
	for _, p := range idx.opts.NondefaultLibraries {
		wanted[p] = false
	}
	// A path listed in both is searched by default.
	for _, p := range idx.opts.DefaultLibraries {
		wanted[p] = true
	}

	existing, err := idx.db.ListLibraries(ctx)
	if err != nil {
		return fmt.Errorf("failed to list libraries: %w", err)
	}

	for _, lib := range existing {
		if _, ok := wanted[lib.Path]; ok {
			continue
		}
		if err := idx.removeLibrary(ctx, lib); err != nil {
			return err
		}
	}

	for path, searchByDefault := range wanted {
		if _, err := idx.db.UpsertLibrary(ctx, path, searchByDefault); err != nil {
			return fmt.Errorf("failed to register library %s: %w", path, err)
		}
	}

	logging.Debug("Synchronized %d configured libraries", len(wanted))
	return nil
}

func (idx *Indexer) removeLibrary(ctx context.Context, lib database.Library) error {
	if idx.sink != nil {
		ids, err := idx.db.ConversationIDsForLibrary(ctx, lib.ID)
		if err != nil {
			return fmt.Errorf("failed to list conversations of library %s: %w", lib.Path, err)
		}
		if err := idx.sink.Remove(ctx, ids); err != nil {
			return fmt.Errorf("failed to unindex library %s: %w", lib.Path, err)
		}
	}

	if err := idx.db.DeleteLibrary(ctx, lib.ID); err != nil {
		return fmt.Errorf("failed to remove library %s: %w", lib.Path, err)
	}
	logging.Info("Removed library %s (no longer configured)", lib.Path)
	return nil
}

func (idx *Indexer) discoverLibraries(ctx context.Context) error {
	entries, err := filesystem.ReadDirWithRetry(idx.opts.RootDir, filesystem.DefaultRetryConfig())
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrScanRootUnreadable, idx.opts.RootDir, err)
	}

	added := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		inserted, err := idx.db.AddLibrary(ctx, entry.Name(), true)
		if err != nil {
			return fmt.Errorf("failed to register library %s: %w", entry.Name(), err)
		}
		if inserted {
			added++
		}
	}

	if err := idx.db.SetSetting(ctx, setupCompleteKey, "true"); err != nil {
		return fmt.Errorf("failed to record setup state: %w", err)
	}

	logging.Info("Discovered %d libraries under %s", added, idx.opts.RootDir)
	return nil
}

// CheckLibraryExistence stats every library root concurrently and records
// whether it is reachable. A stat failure counts as missing. Files are not
// touched.
func (idx *Indexer) CheckLibraryExistence(ctx context.Context) error {
	libs, err := idx.db.ListLibraries(ctx)
	if err != nil {
		return fmt.Errorf("failed to list libraries: %w", err)
	}

	retry := filesystem.DefaultRetryConfig()
	exists := make([]bool, len(libs))

	var wg sync.WaitGroup
	for i, lib := range libs {
		wg.Add(1)
		go func(i int, lib database.Library) {
			defer wg.Done()
			exists[i] = filesystem.DirExists(idx.LibraryRoot(lib), retry)
		}(i, lib)
	}
	wg.Wait()

	missing := 0
	for i, lib := range libs {
		if !exists[i] {
			missing++
		}
		if exists[i] == lib.StillExists {
			continue
		}
		if err := idx.db.SetLibraryExists(ctx, lib.ID, exists[i]); err != nil {
			logging.Error("Failed to update library %s: %v", lib.Path, err)
			continue
		}
		if exists[i] {
			logging.Info("Library %s is available again", lib.Path)
		} else {
			logging.Warn("Library %s is not reachable at %s", lib.Path, idx.LibraryRoot(lib))
		}
	}

	metrics.ScanLibrariesMissing.Set(float64(missing))
	return nil
}
