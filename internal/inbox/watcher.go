package inbox

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settle is how long a file must stay quiet before it is imported.
const settle = 200 * time.Millisecond

// Watch runs a sweep over existing files, then imports new files as they
// appear under root until ctx is cancelled. Writes are debounced so a file
// copied in several chunks is imported once.
//
// Journal directories created at runtime are added to the watch list.
func (im *Importer) Watch(ctx context.Context, root string, cb Callback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	im.logger.Info("inbox: watching", slog.String("root", root))

	if n, err := im.Sweep(ctx, cb); err != nil {
		im.logger.Warn("inbox: sweep failed", slog.String("error", err.Error()))
	} else if n > 0 {
		im.logger.Info("inbox: sweep imported", slog.Int("count", n))
	}

	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func(rel string) {
		pending[rel] = struct{}{}
		if timer == nil {
			timer = time.NewTimer(settle)
			timerCh = timer.C
		} else {
			timer.Reset(settle)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			im.logger.Info("inbox: stopped")
			return nil

		case <-timerCh:
			for rel := range pending {
				delete(pending, rel)
				if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel))); err != nil {
					continue
				}
				_, _ = im.importLogged(ctx, rel, cb)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !(ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) {
				continue
			}
			rel, err := filepath.Rel(root, ev.Name)
			if err != nil || hidden(rel) {
				continue
			}

			if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
				if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
					im.logger.Warn("inbox: add new dir failed", slog.String("path", rel), slog.String("error", addErr.Error()))
					continue
				}
				// Files may have landed before the watch was added.
				_ = filepath.WalkDir(ev.Name, func(p string, d fs.DirEntry, err error) error {
					if err == nil && !d.IsDir() && accepted(p) {
						if r, relErr := filepath.Rel(root, p); relErr == nil {
							schedule(filepath.ToSlash(r))
						}
					}
					return nil
				})
				continue
			}

			if accepted(ev.Name) {
				schedule(filepath.ToSlash(rel))
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			im.logger.Error("inbox: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func accepted(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// hidden reports whether any path element starts with a dot, which covers
// ImportedDir and temp files written by the storage layer.
func hidden(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	return false
}

// addDirsRecursive adds root and its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
