package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/quire/internal/apperr"
)

func tempRoot(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempRoot(t)
	content := []byte(`{"blocks":[]}`)
	if err := s.Write("journal/a.json", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("journal/a.json")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}

	if _, err := s.Read("journal/missing.json"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing file err = %v, want ErrNotFound", err)
	}
}

func TestOpen(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("img.png", []byte("pngdata"))

	f, info, err := s.Open("img.png")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	if info.Path != "img.png" || info.Size != 7 || info.ModTime.IsZero() {
		t.Errorf("info = %+v", info)
	}
	if _, err := f.Seek(3, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	rest, _ := io.ReadAll(f)
	if string(rest) != "data" {
		t.Errorf("after seek = %q", rest)
	}

	if _, _, err := s.Open("nope.png"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
	_ = os.Mkdir(filepath.Join(s.Root(), "dir.png"), 0o755)
	if _, _, err := s.Open("dir.png"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("directory err = %v", err)
	}
}

func TestArchive(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("notes/a.md", []byte("first"))

	dst, err := s.Archive("notes/a.md", ".imported")
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if dst != ".imported/notes/a.md" {
		t.Errorf("dst = %q", dst)
	}
	if _, err := s.Read("notes/a.md"); err == nil {
		t.Error("source still present")
	}

	// A second file with the same name must not clobber the first.
	_ = s.Write("notes/a.md", []byte("second"))
	dst, err = s.Archive("notes/a.md", ".imported")
	if err != nil {
		t.Fatalf("Archive again: %v", err)
	}
	if dst != ".imported/notes/a-1.md" {
		t.Errorf("second dst = %q", dst)
	}
	first, _ := s.Read(".imported/notes/a.md")
	second, _ := s.Read(".imported/notes/a-1.md")
	if string(first) != "first" || string(second) != "second" {
		t.Errorf("archived = %q, %q", first, second)
	}

	if _, err := s.Archive("notes/gone.md", ".imported"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing source err = %v", err)
	}
}

func TestList_SkipsArchiveAndTempFiles(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("j/a.md", []byte("a"))
	_ = s.Write("j/b.JSON", []byte("{}"))
	_ = s.Write("j/readme.txt", []byte("text"))
	_ = s.Write(".imported/j/c.md", []byte("done"))
	_ = s.Write("j/.quire-tmp-1.md", []byte("partial"))

	items, err := s.List("", ".md", ".json")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 || items[0].Path != "j/a.md" || items[1].Path != "j/b.JSON" {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Size != 1 {
		t.Errorf("size = %d", items[0].Size)
	}

	all, err := s.List("j")
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("unfiltered len = %d, want 3", len(all))
	}

	if _, err := s.List("missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing dir err = %v", err)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempRoot(t)

	for _, p := range []string{"../../etc/passwd", "../outside.json", "/etc/shadow", "a/../../b"} {
		if _, err := s.Read(p); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("read %q err = %v", p, err)
		}
		if err := s.Write(p, []byte("x")); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("write %q err = %v", p, err)
		}
	}
	_ = s.Write("a.md", []byte("x"))
	if _, err := s.Archive("a.md", "../escape"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("archive outside root err = %v", err)
	}
}

func TestWriteReplacesWithoutTempLeftovers(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("a.json", []byte("original"))
	if err := s.Write("a.json", []byte("updated")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("a.json")
	if string(got) != "updated" {
		t.Errorf("content = %q", got)
	}
	matches, _ := filepath.Glob(filepath.Join(s.Root(), ".quire-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "uploads")
	s, err := NewFS(root)
	if err != nil {
		t.Fatalf("NewFS should create the root: %v", err)
	}
	if info, err := os.Stat(s.Root()); err != nil || !info.IsDir() {
		t.Errorf("root not created: %v", err)
	}

	file := filepath.Join(t.TempDir(), "file")
	_ = os.WriteFile(file, nil, 0o644)
	if _, err := NewFS(file); err == nil {
		t.Error("expected error when root is a file")
	}
}
