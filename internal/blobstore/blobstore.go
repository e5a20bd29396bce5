// Package blobstore persists encrypted upload blobs on local disk (spec
// C6/C7). Writes land in a temp file and are renamed into place, the atomic
// pattern bucket.NewTypedWriter uses in blob/fileblob/fileblob.go; unlike
// that package this one serves a single local backend with no listing, no
// multi-backend driver, and no signed URLs, since the spec only ever needs
// local disk.
package blobstore

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
)

// PathManager maps an upload identifier and filename onto disk paths under
// a base directory, mirroring app/services/storage/path_manager.py.
type PathManager struct {
	BasePath string
	TempPath string
}

// NewPathManager returns a PathManager rooted at basePath, with a sibling
// temp directory at basePath/temp used for staging writes.
func NewPathManager(basePath string) *PathManager {
	return &PathManager{
		BasePath: basePath,
		TempPath: filepath.Join(basePath, "temp"),
	}
}

// EnsureDirs creates the base and temp directories if they don't exist.
func (p *PathManager) EnsureDirs() error {
	if err := os.MkdirAll(p.BasePath, 0o700); err != nil {
		return xerrors.Errorf("blobstore: create base path: %w", err)
	}
	if err := os.MkdirAll(p.TempPath, 0o700); err != nil {
		return xerrors.Errorf("blobstore: create temp path: %w", err)
	}
	return nil
}

// UploadDir returns the per-identifier directory under the base path.
func (p *PathManager) UploadDir(id string) string {
	return filepath.Join(p.BasePath, id)
}

// FilePath returns the path a blob for (id, filename) is stored at.
func (p *PathManager) FilePath(id, filename string) string {
	return filepath.Join(p.UploadDir(id), filename)
}

// Repository persists and removes blob files, secure-erasing on delete
// (spec invariant: deleted content must not be recoverable from disk).
type Repository struct {
	paths       *PathManager
	shredPasses int
}

// NewRepository returns a Repository writing under paths, overwriting
// deleted file contents shredPasses times before unlinking. shredPasses
// must be at least 1.
func NewRepository(paths *PathManager, shredPasses int) *Repository {
	if shredPasses < 1 {
		shredPasses = 1
	}
	return &Repository{paths: paths, shredPasses: shredPasses}
}

// Save writes content for (id, filename) atomically: it stages the bytes
// in a temp file under the repository's temp directory, fsyncs, then
// renames into place so a reader never observes a partially written blob.
func (r *Repository) Save(id, filename string, content []byte) (string, error) {
	dir := r.paths.UploadDir(id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", xerrors.Errorf("blobstore: create upload dir: %w", err)
	}

	tmp, err := os.CreateTemp(r.paths.TempPath, "upload-*.tmp")
	if err != nil {
		return "", xerrors.Errorf("blobstore: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", xerrors.Errorf("blobstore: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", xerrors.Errorf("blobstore: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", xerrors.Errorf("blobstore: close temp file: %w", err)
	}

	dest := r.paths.FilePath(id, filename)
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", xerrors.Errorf("blobstore: rename into place: %w", err)
	}
	return dest, nil
}

// Read returns the raw (still encrypted) bytes stored for (id, filename).
func (r *Repository) Read(id, filename string) ([]byte, error) {
	data, err := os.ReadFile(r.paths.FilePath(id, filename))
	if err != nil {
		return nil, xerrors.Errorf("blobstore: read: %w", err)
	}
	return data, nil
}

// Exists reports whether id's upload directory is present on disk.
func (r *Repository) Exists(id string) bool {
	_, err := os.Stat(r.paths.UploadDir(id))
	return err == nil
}

// Delete secure-erases and removes id's entire upload directory. It is not
// an error to delete an identifier that is already absent.
func (r *Repository) Delete(id string) error {
	dir := r.paths.UploadDir(id)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return xerrors.Errorf("blobstore: list upload dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := r.shredFile(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
		return xerrors.Errorf("blobstore: remove upload dir: %w", err)
	}
	return nil
}

// shredFile overwrites a file's contents shredPasses times with random
// data, fsyncing after every pass, before unlinking it.
func (r *Repository) shredFile(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return xerrors.Errorf("blobstore: open for shred: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return xerrors.Errorf("blobstore: stat for shred: %w", err)
	}
	size := info.Size()

	for pass := 0; pass < r.shredPasses; pass++ {
		if err := overwritePass(f, size); err != nil {
			f.Close()
			return fmt.Errorf("blobstore: shred pass %d: %w", pass, err)
		}
	}
	if err := f.Close(); err != nil {
		return xerrors.Errorf("blobstore: close after shred: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return xerrors.Errorf("blobstore: unlink after shred: %w", err)
	}
	return nil
}
