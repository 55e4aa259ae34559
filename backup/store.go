// Package backup implements the optional snapshot export path (spec.md
// §9 supplement): a tar+gzip archive of a store directory, uploaded to
// a pluggable object-storage backend and optionally pointed at by a
// DynamoDB-committed "CURRENT" marker for atomic multi-writer handoff.
//
// The Store interface and its local/S3/MinIO implementations are
// grounded on the teacher's blobstore family (blobstore.BlobStore,
// blobstore/s3.Store, blobstore/minio.Store); the DynamoDB commit
// pointer is grounded on blobstore/s3.DDBCommitStore.
package backup

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/itisrohit/nanoindex/errs"
)

// Store is a minimal write/read/list abstraction over an object-storage
// backend, trimmed to what snapshot export and restore need.
type Store interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// LocalStore implements Store on the local filesystem, for dev use and
// tests without cloud credentials.
type LocalStore struct {
	root string
}

// NewLocalStore returns a LocalStore rooted at dir.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{root: dir}
}

func (s *LocalStore) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

func (s *LocalStore) Put(_ context.Context, name string, data []byte) error {
	p := s.path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errs.New(errs.KindStorageFatal, "backup.LocalStore.Put", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errs.New(errs.KindStorageFatal, "backup.LocalStore.Put", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return errs.New(errs.KindStorageFatal, "backup.LocalStore.Put", err)
	}
	return nil
}

func (s *LocalStore) Get(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.KindNotFound, "backup.LocalStore.Get", err)
		}
		return nil, errs.New(errs.KindStorageFatal, "backup.LocalStore.Get", err)
	}
	return data, nil
}

func (s *LocalStore) List(_ context.Context, prefix string) ([]string, error) {
	var out []string
	err := filepath.Walk(s.root, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(s.root, p)
		rel = filepath.ToSlash(rel)
		if len(rel) >= len(prefix) && rel[:len(prefix)] == prefix {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, errs.New(errs.KindStorageFatal, "backup.LocalStore.List", err)
	}
	return out, nil
}

// readAllLimited is a small helper shared by the cloud-backed Stores so
// reading a blob back into memory (needed to restore a snapshot) stays
// in one place.
func readAllLimited(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
