// Package startup provides utilities for application startup tasks.
package startup

import (
	"log/slog"

	"github.com/vibeacademy/vidarr/internal/storage"
)

// CleanupTempDirs empties the temp/ scratch directory of every project in
// the store. Stages write intermediate encodes there and clean up after
// themselves; a crashed worker leaves the scratch behind, so each boot
// starts with a sweep.
//
// Returns the number of entries removed. Per-project failures are logged
// and skipped; a project directory that cannot be opened never blocks
// startup.
func CleanupTempDirs(logger *slog.Logger, store *storage.ProjectStore) (int, error) {
	folders, err := store.List()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, folder := range folders {
		sandbox, err := store.Project(folder)
		if err != nil {
			logger.Warn("skipping temp cleanup", "project", folder, "error", err)
			continue
		}

		entries, err := sandbox.List(storage.DirTemp)
		if err != nil {
			// No temp directory means nothing to sweep.
			continue
		}

		for _, entry := range entries {
			name := storage.DirTemp + "/" + entry.Name()
			if err := sandbox.RemoveAll(name); err != nil {
				logger.Warn("removing temp entry",
					"project", folder,
					"entry", entry.Name(),
					"error", err,
				)
				continue
			}
			removed++
		}
	}

	return removed, nil
}
