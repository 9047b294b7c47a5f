package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	ierr "github.com/mark3labs/prdflow/internal/errors"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")

	if err := WriteFileAtomic(path, []byte("{}\n"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	if string(data) != "{}\n" {
		t.Errorf("content = %q", data)
	}

	// No temp residue after a successful write.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir failed: %v", err)
	}
	if len(entries) != 1 {
		for _, e := range entries {
			t.Logf("entry: %s", e.Name())
		}
		t.Errorf("expected only the target file, found %d entries", len(entries))
	}
}

func TestWriteFileAtomicOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")

	if err := WriteFileAtomic(path, []byte("first"), 0644); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("second"), 0644); err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "second" {
		t.Errorf("content = %q, want %q", data, "second")
	}
}

func TestWriteFileAtomicMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "tasks.json")

	err := WriteFileAtomic(path, []byte("data"), 0644)
	if err == nil {
		t.Fatal("expected error writing into missing directory")
	}
	var ferr *ierr.FilesystemError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected *FilesystemError, got %T", err)
	}
	if ferr.Op != "write" {
		t.Errorf("op = %s, want write", ferr.Op)
	}
}

func TestRandomHex(t *testing.T) {
	a := randomHex(8)
	b := randomHex(8)
	if len(a) != 16 {
		t.Errorf("length = %d, want 16", len(a))
	}
	if a == b {
		t.Error("two draws should differ")
	}
}
