// Package fscat is the local-filesystem Store backend: the default for
// tests and single-process deployments. Grounded on the same
// create/open/delete/exists shape as the teacher's
// pkg/storage/cloudimpl.ExternalStorage contract, specialized to os.*
// calls instead of a cloud SDK.
package fscat

import (
	"context"
	"os"
	"path/filepath"

	"github.com/indexlake/indexlake/pkg/lakeerrors"
	"github.com/indexlake/indexlake/pkg/storage"
)

// Store roots every relative path under a base directory on local disk.
type Store struct {
	root string
}

// New returns a Store rooted at root, creating it if necessary.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, lakeerrors.Storage(err, "mkdir store root %s", root)
	}
	return &Store{root: root}, nil
}

func (s *Store) abs(path string) string {
	return filepath.Join(s.root, filepath.FromSlash(path))
}

func (s *Store) Create(ctx context.Context, path string) (storage.Writer, error) {
	abs := s.abs(path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, lakeerrors.Storage(err, "mkdir for %s", path)
	}
	f, err := os.Create(abs)
	if err != nil {
		return nil, lakeerrors.Storage(err, "create %s", path)
	}
	return &fileWriter{f: f, abs: abs}, nil
}

func (s *Store) Open(ctx context.Context, path string) (storage.Reader, error) {
	f, err := os.Open(s.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, lakeerrors.NotFound("file %s", path)
		}
		return nil, lakeerrors.Storage(err, "open %s", path)
	}
	return &fileReader{f: f}, nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	if err := os.Remove(s.abs(path)); err != nil && !os.IsNotExist(err) {
		return lakeerrors.Storage(err, "delete %s", path)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(s.abs(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, lakeerrors.Storage(err, "stat %s", path)
}

func (s *Store) RemoveDirAll(ctx context.Context, prefix string) error {
	if err := os.RemoveAll(s.abs(prefix)); err != nil {
		return lakeerrors.Storage(err, "remove dir all %s", prefix)
	}
	return nil
}

type fileWriter struct {
	f    *os.File
	abs  string
	done bool
}

func (w *fileWriter) Write(p []byte) (int, error) { return w.f.Write(p) }

func (w *fileWriter) Finalize(ctx context.Context) error {
	if err := w.f.Sync(); err != nil {
		return lakeerrors.Storage(err, "sync %s", w.abs)
	}
	w.done = true
	if err := w.f.Close(); err != nil {
		return lakeerrors.Storage(err, "close %s", w.abs)
	}
	return nil
}

func (w *fileWriter) Abort(ctx context.Context) error {
	_ = w.f.Close()
	if w.done {
		return nil
	}
	if err := os.Remove(w.abs); err != nil && !os.IsNotExist(err) {
		return lakeerrors.Storage(err, "abort-remove %s", w.abs)
	}
	return nil
}

type fileReader struct {
	f *os.File
}

func (r *fileReader) ReadAt(ctx context.Context, p []byte, offset int64) (int, error) {
	return r.f.ReadAt(p, offset)
}

func (r *fileReader) Size(ctx context.Context) (int64, error) {
	info, err := r.f.Stat()
	if err != nil {
		return 0, lakeerrors.Storage(err, "stat")
	}
	return info.Size(), nil
}

func (r *fileReader) Close() error {
	return r.f.Close()
}
