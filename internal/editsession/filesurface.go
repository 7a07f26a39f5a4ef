package editsession

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/quire/internal/blockdoc"
	"github.com/starford/quire/internal/checksum"
)

// FileSurface edits a block document as an indented JSON file, for use with
// an external text editor. Changes to the file are detected with fsnotify.
type FileSurface struct {
	path    string
	watcher *fsnotify.Watcher

	mu       sync.Mutex
	onChange func()
	last     string

	done chan struct{}
	once sync.Once
}

// FileSurfaces returns a factory creating file surfaces in dir.
func FileSurfaces(dir string) SurfaceFactory {
	return func(context.Context) (ContentSurface, error) {
		return NewFileSurface(dir)
	}
}

// NewFileSurface creates an empty document file in dir and starts watching it.
func NewFileSurface(dir string) (*FileSurface, error) {
	f, err := os.CreateTemp(dir, "quire-edit-*.json")
	if err != nil {
		return nil, fmt.Errorf("editsession: create surface file: %w", err)
	}
	f.Close()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("editsession: create watcher: %w", err)
	}
	// Editors often replace the file by rename, so watch the directory.
	if err := w.Add(filepath.Dir(f.Name())); err != nil {
		w.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("editsession: watch %s: %w", dir, err)
	}

	s := &FileSurface{path: filepath.Clean(f.Name()), watcher: w, done: make(chan struct{})}
	go s.loop()
	return s, nil
}

// Path returns the file being edited.
func (s *FileSurface) Path() string { return s.path }

func (s *FileSurface) Load(doc blockdoc.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("editsession: encode document: %w", err)
	}
	s.mu.Lock()
	s.last = checksum.Sum(data)
	s.mu.Unlock()
	return writeAtomic(s.path, data)
}

// writeAtomic replaces path by renaming a fully written sibling over it, so
// the watcher never reads a partial document.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".quire-load-*")
	if err != nil {
		return fmt.Errorf("editsession: write surface file: %w", err)
	}
	_, err = tmp.Write(data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp.Name(), 0o600)
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("editsession: write surface file: %w", err)
	}
	return nil
}

func (s *FileSurface) Save(context.Context) (blockdoc.Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return blockdoc.Document{}, fmt.Errorf("editsession: read surface file: %w", err)
	}
	return blockdoc.Parse(data)
}

func (s *FileSurface) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Dispose stops watching and removes the file.
func (s *FileSurface) Dispose() {
	s.once.Do(func() {
		close(s.done)
		s.watcher.Close()
		os.Remove(s.path)
	})
}

func (s *FileSurface) loop() {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != s.path || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			s.check(true)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("editsession: watcher error", slog.String("error", err.Error()))
		}
	}
}

// Sync compares the file with what was last seen and reports a change
// without waiting for the watcher. Callers use it after an editor exits, so
// content that does not parse still counts as a change.
func (s *FileSurface) Sync() {
	s.check(false)
}

// check reports a change when the file content differs from what was last
// loaded or seen. An empty file is a write in progress; with complete set,
// so is content that does not parse as a document.
func (s *FileSurface) check(complete bool) {
	data, err := os.ReadFile(s.path)
	if err != nil || len(data) == 0 {
		return
	}
	if complete {
		if _, err := blockdoc.Parse(data); err != nil {
			return
		}
	}
	sum := checksum.Sum(data)
	s.mu.Lock()
	if sum == s.last {
		s.mu.Unlock()
		return
	}
	s.last = sum
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}
