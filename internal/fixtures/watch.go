package fixtures

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/perch/daybook/internal/checksum"
	"github.com/perch/daybook/internal/dates"
	"github.com/perch/daybook/internal/devserver"
)

// EventCallback is called after a fixture-driven database change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, date string)

// Seed brings the database up to date with the fixtures directory:
//   - new and changed fixture files are parsed and upserted
//   - fixture-sourced rows whose file is gone are deleted
//
// Rows the API has written carry an empty checksum and are left alone, so a
// diary submitted through the server survives a reload.
func Seed(db *devserver.DB, dir *Dir, logger *slog.Logger) error {
	entries, err := dir.List()
	if err != nil {
		return err
	}
	stored, err := db.Checksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		disk[e.Date] = struct{}{}

		cs, present := stored[e.Date]
		if present && (cs == "" || cs == e.Checksum) {
			continue
		}
		if err := loadFixture(db, dir, e.Name, logger); err != nil {
			logger.Warn("seed: load failed", slog.String("name", e.Name), slog.String("error", err.Error()))
		} else {
			logger.Debug("seed: loaded", slog.String("date", e.Date))
		}
	}

	// Remove stale fixture-sourced rows.
	for date, cs := range stored {
		if cs == "" {
			continue
		}
		if _, ok := disk[date]; !ok {
			if err := db.DeleteRecord(date); err != nil {
				logger.Warn("seed: delete failed", slog.String("date", date), slog.String("error", err.Error()))
			} else {
				logger.Debug("seed: removed stale", slog.String("date", date))
			}
		}
	}

	return nil
}

// loadFixture parses one fixture file and upserts it with its checksum.
// A record whose date does not match the file name is rejected.
func loadFixture(db *devserver.DB, dir *Dir, name string, logger *slog.Logger) error {
	data, err := dir.Read(name)
	if err != nil {
		return err
	}
	rec, err := Parse(data)
	if err != nil {
		return err
	}
	if rec.Date != DateOf(name) {
		logger.Warn("fixture date does not match file name",
			slog.String("name", name), slog.String("date", rec.Date))
	}
	return db.UpsertRecord(rec, checksum.Sum(data))
}

// Watch starts an fsnotify watcher on the fixtures directory and processes
// file change events until ctx is cancelled. It calls cb (if non-nil) after
// each successful database mutation.
//
// Rename events fire on the old path only; the new path arrives as a
// separate Create event. A short debounced reconciliation pass cleans up
// whatever the rename left behind.
func Watch(ctx context.Context, db *devserver.DB, dir *Dir, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir.Root()); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", dir.Root()))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			if err := Seed(db, dir, logger); err != nil {
				logger.Warn("reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, ".json") {
				continue
			}
			name := filepath.Base(ev.Name)
			date := DateOf(name)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if loadErr := loadFixture(db, dir, name, logger); loadErr != nil {
					logger.Warn("watcher: load failed", slog.String("name", name), slog.String("error", loadErr.Error()))
					continue
				}
				kind := "updated"
				if ev.Op&fsnotify.Create != 0 {
					kind = "created"
				}
				logger.Debug("watcher: loaded", slog.String("date", date), slog.String("op", kind))
				if cb != nil {
					cb(kind, date)
				}

			case ev.Op&fsnotify.Remove != 0:
				if !dates.Valid(date) {
					continue
				}
				if delErr := db.DeleteRecord(date); delErr != nil {
					logger.Warn("watcher: delete failed", slog.String("date", date), slog.String("error", delErr.Error()))
					continue
				}
				logger.Debug("watcher: deleted", slog.String("date", date))
				if cb != nil {
					cb("deleted", date)
				}

			case ev.Op&fsnotify.Rename != 0:
				if dates.Valid(date) {
					if delErr := db.DeleteRecord(date); delErr == nil {
						logger.Debug("watcher: rename old deleted", slog.String("date", date))
						if cb != nil {
							cb("deleted", date)
						}
					}
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
