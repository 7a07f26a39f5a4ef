// Package storage is the file-system layer behind image uploads and the
// import inbox.
package storage

import (
	"io"
	"time"
)

// File describes one stored file.
type File struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Provider stores files under a root. All paths are slash-separated and
// relative to that root; paths escaping it are rejected. Missing files are
// reported as apperr.ErrNotFound.
type Provider interface {
	// List returns the files under dir whose extension is one of exts, or
	// every file when exts is empty. Dot files and dot directories are
	// skipped, so archived and temporary files never show up.
	List(dir string, exts ...string) ([]File, error)
	Read(path string) ([]byte, error)
	// Open returns a seekable reader for serving the file.
	Open(path string) (io.ReadSeekCloser, File, error)
	// Write atomically replaces the file at path.
	Write(path string, content []byte) error
	// Archive moves path to the same relative location under dir and
	// returns where it landed. An existing archived file is never
	// overwritten; the new one gets a numeric suffix.
	Archive(path, dir string) (string, error)
}
