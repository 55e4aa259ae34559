package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/itisrohit/nanoindex/errs"
	"github.com/itisrohit/nanoindex/internal/fsx"
)

const layoutVersion = 1

// metadata is the meta.json sidecar (spec.md §6): dim, count, capacity,
// and a layout_version field that guards against silently reading a
// future on-disk format.
type metadata struct {
	Dim           int `json:"dim"`
	Count         int `json:"count"`
	Capacity      int `json:"capacity"`
	LayoutVersion int `json:"layout_version"`
}

func metaPath(dir string) string { return filepath.Join(dir, "meta.json") }

func readMeta(fs fsx.FileSystem, dir string) (metadata, bool, error) {
	var m metadata
	path := metaPath(dir)
	if _, err := fs.Stat(path); err != nil {
		return m, false, nil
	}
	f, err := fs.OpenFile(path, os.O_RDONLY, 0o644)
	if err != nil {
		return m, false, errs.New(errs.KindCorruptState, "store.readMeta", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	if err := dec.Decode(&m); err != nil {
		return m, false, errs.New(errs.KindCorruptState, "store.readMeta", err)
	}
	if m.LayoutVersion != layoutVersion {
		return m, false, errs.New(errs.KindCorruptState, "store.readMeta",
			fmt.Errorf("unsupported layout_version %d", m.LayoutVersion))
	}
	return m, true, nil
}

// writeMeta writes the sidecar atomically: write to a temp file, fsync,
// then rename over the target. This is the same write-temp-then-rename
// pattern the teacher uses for its manifest CURRENT pointer.
func writeMeta(fs fsx.FileSystem, dir string, m metadata) error {
	m.LayoutVersion = layoutVersion
	path := metaPath(dir)
	tmp := path + ".tmp"

	f, err := fs.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return errs.New(errs.KindStorageFatal, "store.writeMeta", err)
	}

	enc := json.NewEncoder(f)
	if err := enc.Encode(m); err != nil {
		f.Close()
		return errs.New(errs.KindStorageFatal, "store.writeMeta", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errs.New(errs.KindStorageFatal, "store.writeMeta", err)
	}
	if err := f.Close(); err != nil {
		return errs.New(errs.KindStorageFatal, "store.writeMeta", err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		return errs.New(errs.KindStorageFatal, "store.writeMeta", err)
	}
	return nil
}
