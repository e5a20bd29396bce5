package blobstore

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	base := t.TempDir()
	paths := NewPathManager(base)
	if err := paths.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	return NewRepository(paths, 2)
}

func TestSaveAndRead(t *testing.T) {
	repo := newTestRepository(t)
	content := []byte("encrypted-bytes-go-here")

	path, err := repo.Save("abc-def-ghi", "payload.bin", content)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("saved file missing: %v", err)
	}

	got, err := repo.Read("abc-def-ghi", "payload.bin")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("Read = %q, want %q", got, content)
	}
}

func TestExists(t *testing.T) {
	repo := newTestRepository(t)
	if repo.Exists("nope") {
		t.Errorf("expected nonexistent identifier to report false")
	}
	if _, err := repo.Save("present", "f.bin", []byte("x")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !repo.Exists("present") {
		t.Errorf("expected saved identifier to report true")
	}
}

func TestDeleteRemovesDirectoryAndIsIdempotent(t *testing.T) {
	repo := newTestRepository(t)
	if _, err := repo.Save("gone", "f.bin", []byte("secret")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := repo.Delete("gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if repo.Exists("gone") {
		t.Errorf("expected identifier to be gone after Delete")
	}
	if _, err := os.Stat(repo.paths.UploadDir("gone")); !os.IsNotExist(err) {
		t.Errorf("expected upload dir to be removed, stat err = %v", err)
	}

	if err := repo.Delete("gone"); err != nil {
		t.Errorf("Delete on absent identifier should be a no-op, got: %v", err)
	}
}

func TestSaveDoesNotLeaveTempFiles(t *testing.T) {
	repo := newTestRepository(t)
	if _, err := repo.Save("clean", "f.bin", []byte("data")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	entries, err := os.ReadDir(repo.paths.TempPath)
	if err != nil {
		t.Fatalf("ReadDir temp: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no leftover temp files, found %d", len(entries))
	}
}

func TestFilePathLayout(t *testing.T) {
	paths := NewPathManager("/base")
	want := filepath.Join("/base", "id123", "name.bin")
	if got := paths.FilePath("id123", "name.bin"); got != want {
		t.Errorf("FilePath = %q, want %q", got, want)
	}
}
