package dashboard

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/danielorbach/go-component"
	"github.com/fsnotify/fsnotify"

	"github.com/go-digitaltwin/cabintwin/dataset"
)

// DefaultSettle is how long the data directory must stay quiet before a
// reload.
const DefaultSettle = 500 * time.Millisecond

// Watch reloads src whenever the readings or life files in dir change, until
// ctx is done. Bursts of events (a file rewritten in chunks, or both files
// written by one command) cause a single reload once dir has been quiet for
// settle.
func Watch(ctx context.Context, dir string, src *Source, settle time.Duration) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logger := component.Logger(ctx).With("dir", dir)
	logger.Info("Watching the data directory for changes")

	timer := time.NewTimer(settle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isDatasetFile(event) {
				continue
			}
			logger.Debug("Dataset file changed", "file", event.Name, "op", event.Op.String())
			timer.Reset(settle)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("File watcher reported an error", "error", err)
		case <-timer.C:
			if err := src.Load(ctx); err != nil {
				logger.Error("Failed to reload the dataset", "error", err)
			}
		}
	}
}

// isDatasetFile ignores the sidecar and temporary files the bucket writes next
// to every object.
func isDatasetFile(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return false
	}
	switch filepath.Base(event.Name) {
	case dataset.ReadingsKey, dataset.LifeKey:
		return true
	}
	return false
}
