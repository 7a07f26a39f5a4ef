package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/starford/quire/internal/apperr"
)

// maxArchiveSuffix bounds the search for a free archive name.
const maxArchiveSuffix = 1000

// FS implements Provider on a local directory.
type FS struct {
	root string // absolute path
}

// NewFS returns a provider rooted at root, creating the directory when it
// does not exist yet.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute root directory.
func (f *FS) Root() string { return f.root }

// resolve maps a relative path to an absolute one under the root.
func (f *FS) resolve(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", apperr.Validation("storage: absolute path %q", rel)
	}
	abs := filepath.Join(f.root, cleaned)
	if abs != f.root && !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", apperr.Validation("storage: path %q escapes root", rel)
	}
	return abs, nil
}

func notFound(op, rel string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: %s %s: %w", op, rel, apperr.ErrNotFound)
	}
	return fmt.Errorf("storage: %s %s: %w", op, rel, err)
}

// List walks dir and returns the matching files in lexical order.
func (f *FS) List(dir string, exts ...string) ([]File, error) {
	base, err := f.resolve(dir)
	if err != nil {
		return nil, err
	}
	var out []File
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		hidden := strings.HasPrefix(d.Name(), ".")
		if d.IsDir() {
			if p != base && hidden {
				return filepath.SkipDir
			}
			return nil
		}
		if hidden || !d.Type().IsRegular() {
			return nil
		}
		if len(exts) > 0 && !slices.Contains(exts, strings.ToLower(filepath.Ext(d.Name()))) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(f.root, p)
		out = append(out, File{
			Path:    filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, notFound("list", dir, err)
	}
	return out, nil
}

// Read returns the content of a file.
func (f *FS) Read(rel string) ([]byte, error) {
	abs, err := f.resolve(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, notFound("read", rel, err)
	}
	return data, nil
}

// Open opens a regular file for reading.
func (f *FS) Open(rel string) (io.ReadSeekCloser, File, error) {
	abs, err := f.resolve(rel)
	if err != nil {
		return nil, File{}, err
	}
	fh, err := os.Open(abs)
	if err != nil {
		return nil, File{}, notFound("open", rel, err)
	}
	info, err := fh.Stat()
	if err != nil {
		fh.Close()
		return nil, File{}, notFound("stat", rel, err)
	}
	if !info.Mode().IsRegular() {
		fh.Close()
		return nil, File{}, fmt.Errorf("storage: open %s: %w", rel, apperr.ErrNotFound)
	}
	return fh, File{Path: path.Clean(rel), Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(rel string, content []byte) error {
	abs, err := f.resolve(rel)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".quire-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Archive moves rel under dir, keeping its relative location.
func (f *FS) Archive(rel, dir string) (string, error) {
	src, err := f.resolve(rel)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(src); err != nil {
		return "", notFound("archive", rel, err)
	}

	target := path.Join(dir, filepath.ToSlash(filepath.Clean(filepath.FromSlash(rel))))
	ext := path.Ext(target)
	stem := strings.TrimSuffix(target, ext)
	for n := 1; n <= maxArchiveSuffix; n++ {
		dst, err := f.resolve(target)
		if err != nil {
			return "", err
		}
		if _, err := os.Lstat(dst); errors.Is(err, fs.ErrNotExist) {
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return "", fmt.Errorf("storage: mkdir for archive: %w", err)
			}
			if err := os.Rename(src, dst); err != nil {
				return "", fmt.Errorf("storage: archive %s: %w", rel, err)
			}
			return target, nil
		}
		target = stem + "-" + strconv.Itoa(n) + ext
	}
	return "", fmt.Errorf("storage: archive %s: %w", rel, apperr.ErrConflict)
}

var _ Provider = (*FS)(nil)
