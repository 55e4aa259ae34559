package backup

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/itisrohit/nanoindex/errs"
	"github.com/itisrohit/nanoindex/logging"
)

// Manager archives a store directory (vectors.bin, ids.bin, meta.json,
// ivf.bin, agent_state.json) and ships it to a Store, optionally
// advancing a CommitPointer so other readers can discover the newest
// snapshot. The archive format is tar+gzip using
// github.com/klauspost/compress's gzip, the compression library the
// rest of the example pack reaches for over stdlib compress/gzip.
type Manager struct {
	store  Store
	commit *CommitPointer // nil disables the commit-pointer step
	prefix string
	log    *logging.Logger
}

// NewManager returns a Manager writing archives under prefix. commit
// may be nil to skip the DynamoDB commit-pointer step (spec.md's
// backup_commit_table is optional).
func NewManager(store Store, commit *CommitPointer, prefix string, log *logging.Logger) *Manager {
	return &Manager{store: store, commit: commit, prefix: prefix, log: logging.Safe(log)}
}

// Snapshot archives dataDir and uploads it as
// "<prefix>/snapshot-<version>.tar.gz", then — if a CommitPointer was
// configured — commits that key as the new CURRENT version. Callers
// are responsible for flushing the store and agent state to disk
// before calling Snapshot so the archive reflects durable state.
func (m *Manager) Snapshot(ctx context.Context, dataDir string, version int64) (string, error) {
	archive, err := buildArchive(dataDir)
	if err != nil {
		return "", errs.New(errs.KindStorageFatal, "backup.Manager.Snapshot", err)
	}

	key := fmt.Sprintf("%s/snapshot-%d.tar.gz", m.prefix, version)
	if err := m.store.Put(ctx, key, archive); err != nil {
		return "", err
	}

	if m.commit != nil {
		if err := m.commit.Commit(ctx, version, key); err != nil {
			return "", err
		}
	}

	m.log.InfoContext(ctx, "backup snapshot written", "key", key, "bytes", len(archive))
	return key, nil
}

// Restore downloads the archive at key and extracts it into destDir.
func (m *Manager) Restore(ctx context.Context, key, destDir string) error {
	archive, err := m.store.Get(ctx, key)
	if err != nil {
		return err
	}
	return extractArchive(archive, destDir)
}

func buildArchive(dataDir string) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	err := filepath.Walk(dataDir, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dataDir, p)
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()

		hdr := &tar.Header{
			Name: filepath.ToSlash(rel),
			Mode: 0o644,
			Size: info.Size(),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func extractArchive(archive []byte, destDir string) error {
	gz, err := gzip.NewReader(bytes.NewReader(archive))
	if err != nil {
		return errs.New(errs.KindCorruptState, "backup.extractArchive", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errs.New(errs.KindCorruptState, "backup.extractArchive", err)
		}

		dest := filepath.Join(destDir, filepath.FromSlash(hdr.Name))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return errs.New(errs.KindStorageFatal, "backup.extractArchive", err)
		}
		f, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return errs.New(errs.KindStorageFatal, "backup.extractArchive", err)
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return errs.New(errs.KindStorageFatal, "backup.extractArchive", err)
		}
		if err := f.Close(); err != nil {
			return errs.New(errs.KindStorageFatal, "backup.extractArchive", err)
		}
	}
	return nil
}
