// Package store implements DataStore (spec.md §4.2 / C2): the persistent,
// mmap-backed vector store with dynamic growth and a cached norm vector.
// It is grounded on the teacher's internal/vectorstore.MmapStore (zero-copy
// float32 views into mapped memory) generalized from read-only to
// writable+growable, using internal/mmap's remap-on-grow primitive.
package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"unsafe"

	"github.com/itisrohit/nanoindex/distance"
	"github.com/itisrohit/nanoindex/errs"
	"github.com/itisrohit/nanoindex/internal/fsx"
	"github.com/itisrohit/nanoindex/internal/mmap"
	"github.com/itisrohit/nanoindex/logging"
)

const defaultInitialCapacity = 1024

const (
	vectorsFile = "vectors.bin"
	idsFile     = "ids.bin"
)

// DataStore is the persistent vector store: vectors + external IDs via
// mmap, with dynamic growth and a lazily (re)materialized norm cache.
//
// A *DataStore is safe for concurrent use: Add/Reset/Flush take the
// exclusive side of its RWMutex themselves, and the plain accessors take
// the shared side. The lock is also exposed (Lock/Unlock/RLock/RUnlock)
// so IVFIndex can share one RWMutex with it, per spec.md §5; a caller
// holding it must use the *Locked accessors, not Add/Reset/Flush.
type DataStore struct {
	mu sync.RWMutex

	dir string
	fs  fsx.FileSystem
	log *logging.Logger

	dim      int
	n        int
	capacity int

	vecMap *mmap.Mapping
	idMap  *mmap.Mapping

	idToRow map[int64]int

	normMu    sync.Mutex
	normCache []float32
	normDirty bool

	poisoned bool
}

// Option configures Open.
type Option func(*options)

type options struct {
	fs              fsx.FileSystem
	logger          *logging.Logger
	initialCapacity int
}

// WithFileSystem overrides the filesystem used for the meta sidecar
// (primarily for fault-injection tests).
func WithFileSystem(fs fsx.FileSystem) Option {
	return func(o *options) { o.fs = fs }
}

// WithLogger attaches a structured logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithInitialCapacity sets the row capacity used when creating a brand
// new store (ignored when reopening an existing one).
func WithInitialCapacity(n int) Option {
	return func(o *options) { o.initialCapacity = n }
}

// Open opens (or creates) a DataStore rooted at dir for vectors of
// dimension dim. If meta.json already exists, its recorded dim must match
// dim or Open fails with KindInvalidInput; a corrupt sidecar fails with
// KindCorruptState.
func Open(dir string, dim int, opts ...Option) (*DataStore, error) {
	if dim <= 0 {
		return nil, errs.New(errs.KindInvalidInput, "store.Open", fmt.Errorf("dim must be > 0"))
	}

	o := options{fs: fsx.Default, logger: logging.Noop(), initialCapacity: defaultInitialCapacity}
	for _, fn := range opts {
		fn(&o)
	}
	if o.initialCapacity <= 0 {
		o.initialCapacity = defaultInitialCapacity
	}

	if err := o.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.New(errs.KindStorageFatal, "store.Open", err)
	}

	meta, existed, err := readMeta(o.fs, dir)
	if err != nil {
		return nil, err
	}

	ds := &DataStore{
		dir:       dir,
		fs:        o.fs,
		log:       logging.Safe(o.logger),
		normDirty: true,
		idToRow:   make(map[int64]int),
	}

	if existed {
		if meta.Dim != dim {
			return nil, errs.New(errs.KindInvalidInput, "store.Open",
				fmt.Errorf("store dim %d does not match requested dim %d", meta.Dim, dim))
		}
		ds.dim = meta.Dim
		ds.n = meta.Count
		ds.capacity = meta.Capacity

		if err := ds.openMappings(); err != nil {
			return nil, err
		}
		if err := ds.rebuildIDIndex(); err != nil {
			ds.closeMappings()
			return nil, err
		}
		return ds, nil
	}

	ds.dim = dim
	ds.capacity = o.initialCapacity
	ds.n = 0
	if err := ds.createMappings(); err != nil {
		return nil, err
	}
	if err := writeMeta(ds.fs, ds.dir, ds.snapshotMeta()); err != nil {
		ds.closeMappings()
		return nil, err
	}
	return ds, nil
}

func (ds *DataStore) snapshotMeta() metadata {
	return metadata{Dim: ds.dim, Count: ds.n, Capacity: ds.capacity}
}

func (ds *DataStore) createMappings() error {
	vecBytes := ds.capacity * ds.dim * 4
	idBytes := ds.capacity * 8

	vm, err := mmap.Create(filepath.Join(ds.dir, vectorsFile), vecBytes)
	if err != nil {
		return errs.New(errs.KindStorageFatal, "store.createMappings", err)
	}
	im, err := mmap.Create(filepath.Join(ds.dir, idsFile), idBytes)
	if err != nil {
		vm.Close()
		return errs.New(errs.KindStorageFatal, "store.createMappings", err)
	}
	ds.vecMap, ds.idMap = vm, im
	return nil
}

func (ds *DataStore) openMappings() error {
	vm, err := mmap.Open(filepath.Join(ds.dir, vectorsFile))
	if err != nil {
		return errs.New(errs.KindStorageFatal, "store.openMappings", err)
	}
	im, err := mmap.Open(filepath.Join(ds.dir, idsFile))
	if err != nil {
		vm.Close()
		return errs.New(errs.KindStorageFatal, "store.openMappings", err)
	}
	ds.vecMap, ds.idMap = vm, im
	return nil
}

func (ds *DataStore) closeMappings() {
	if ds.vecMap != nil {
		ds.vecMap.Close()
	}
	if ds.idMap != nil {
		ds.idMap.Close()
	}
}

// floatsView returns a zero-copy []float32 view over the entire mapped
// vector capacity (capacity*dim elements), mirroring the teacher's
// unsafe.Slice cast in internal/vectorstore.MmapStore.
func (ds *DataStore) floatsView() []float32 {
	b := ds.vecMap.Bytes()
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// idsView returns a zero-copy []int64 view over the mapped ID capacity.
func (ds *DataStore) idsView() []int64 {
	b := ds.idMap.Bytes()
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*int64)(unsafe.Pointer(&b[0])), len(b)/8)
}

func (ds *DataStore) rebuildIDIndex() error {
	ids := ds.idsView()
	for row := 0; row < ds.n; row++ {
		ds.idToRow[ids[row]] = row
	}
	return nil
}

// Dim returns the store's fixed vector dimension.
func (ds *DataStore) Dim() int {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.dim
}

// Len returns the current row count N.
func (ds *DataStore) Len() int {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.n
}

// Add appends a batch of vectors with their external IDs atomically:
// either the whole batch lands or none of it does (spec.md §4.2).
func (ds *DataStore) Add(_ context.Context, vectors [][]float32, ids []int64) ([]int, error) {
	if len(vectors) != len(ids) {
		return nil, errs.New(errs.KindInvalidInput, "store.Add", fmt.Errorf("len(vectors) != len(ids)"))
	}
	if len(vectors) == 0 {
		return nil, errs.New(errs.KindInvalidInput, "store.Add", fmt.Errorf("empty batch"))
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.poisoned {
		return nil, errs.New(errs.KindStorageFatal, "store.Add", fmt.Errorf("store is read-only after a prior fatal error"))
	}

	for i, v := range vectors {
		if len(v) != ds.dim {
			return nil, errs.New(errs.KindInvalidInput, "store.Add",
				fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), ds.dim))
		}
	}

	seen := make(map[int64]struct{}, len(ids))
	for i, id := range ids {
		if _, exists := ds.idToRow[id]; exists {
			err := errs.New(errs.KindConflict, "store.Add", fmt.Errorf("id %d already present", id))
			ds.log.LogAdd(context.Background(), len(ids), ds.n, err)
			return nil, err
		}
		if _, dup := seen[id]; dup {
			err := errs.New(errs.KindConflict, "store.Add", fmt.Errorf("id %d duplicated within batch (index %d)", id, i))
			ds.log.LogAdd(context.Background(), len(ids), ds.n, err)
			return nil, err
		}
		seen[id] = struct{}{}
	}

	newN := ds.n + len(ids)
	if newN > ds.capacity {
		if err := ds.grow(newN); err != nil {
			ds.poisoned = true
			return nil, err
		}
	}

	floats := ds.floatsView()
	idsBuf := ds.idsView()
	rows := make([]int, len(ids))
	for i, v := range vectors {
		row := ds.n + i
		copy(floats[row*ds.dim:(row+1)*ds.dim], v)
		idsBuf[row] = ids[i]
		ds.idToRow[ids[i]] = row
		rows[i] = row
	}

	ds.n = newN
	ds.normDirty = true

	if err := ds.flushLocked(); err != nil {
		ds.poisoned = true
		return nil, err
	}

	ds.log.LogAdd(context.Background(), len(ids), ds.n, nil)
	return rows, nil
}

// grow doubles capacity until it can hold atLeast rows, then extends and
// remaps both backing files. Callers must hold the exclusive lock.
func (ds *DataStore) grow(atLeast int) error {
	newCap := ds.capacity
	if newCap == 0 {
		newCap = defaultInitialCapacity
	}
	for newCap < atLeast {
		newCap *= 2
	}

	if err := ds.vecMap.Grow(newCap * ds.dim * 4); err != nil {
		return errs.New(errs.KindStorageFatal, "store.grow", err)
	}
	if err := ds.idMap.Grow(newCap * 8); err != nil {
		return errs.New(errs.KindStorageFatal, "store.grow", err)
	}
	ds.capacity = newCap
	return nil
}

// GetRow returns a zero-copy view of the vector at the given row. The
// caller must not mutate the returned slice.
func (ds *DataStore) GetRow(row int) ([]float32, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.GetRowLocked(row)
}

// GetByID resolves an external ID to its row and vector.
func (ds *DataStore) GetByID(id int64) (int, []float32, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	row, ok := ds.idToRow[id]
	if !ok {
		return 0, nil, errs.New(errs.KindNotFound, "store.GetByID", fmt.Errorf("id %d not found", id))
	}
	floats := ds.floatsView()
	return row, floats[row*ds.dim : (row+1)*ds.dim : (row+1)*ds.dim], nil
}

// RowToID resolves a row index back to its external ID, for callers
// (search.Service) that only carry row indices from a distance
// computation and need to report IDs back to the caller.
func (ds *DataStore) RowToID(row int) (int64, bool) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	if row < 0 || row >= ds.n {
		return 0, false
	}
	return ds.idsView()[row], true
}

// AllVectors returns a zero-copy N*D row-major view of every stored
// vector. The caller must not mutate the returned slice.
//
// The view is only guaranteed valid while no concurrent Add grows the
// backing mapping; a caller that needs the view to outlive further
// store activity (IVFIndex's Train and Search) must bracket its own use
// of it with RLock/RUnlock and read through AllVectorsLocked instead.
func (ds *DataStore) AllVectors() []float32 {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.AllVectorsLocked()
}

// AllVectorsLocked is AllVectors for a caller that already holds at
// least RLock.
func (ds *DataStore) AllVectorsLocked() []float32 {
	return ds.floatsView()[:ds.n*ds.dim]
}

// GetRowLocked is GetRow for a caller that already holds at least
// RLock.
func (ds *DataStore) GetRowLocked(row int) ([]float32, error) {
	if row < 0 || row >= ds.n {
		return nil, errs.New(errs.KindInvalidInput, "store.GetRow", fmt.Errorf("row %d out of range [0,%d)", row, ds.n))
	}
	floats := ds.floatsView()
	return floats[row*ds.dim : (row+1)*ds.dim : (row+1)*ds.dim], nil
}

// NormsSq returns ||v||^2 for every row, lazily recomputing the entire
// cache if it has been invalidated by an insert since the last call.
//
// Cache coherency is guarded by its own mutex independent of the main
// RWMutex, so NormsSqLocked can be called by a caller that already
// holds only RLock (IVFIndex's Search, SearchService's flat path) without risking the
// reentrant-RWMutex deadlock a nested RLock call would invite.
func (ds *DataStore) NormsSq() []float32 {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.NormsSqLocked()
}

// NormsSqLocked is NormsSq for a caller that already holds at least
// RLock (which excludes concurrent Add/Grow, making the recompute pass
// over floatsView safe).
func (ds *DataStore) NormsSqLocked() []float32 {
	ds.normMu.Lock()
	defer ds.normMu.Unlock()

	if !ds.normDirty && len(ds.normCache) == ds.n {
		return ds.normCache
	}

	floats := ds.floatsView()
	cache := make([]float32, ds.n)
	for row := 0; row < ds.n; row++ {
		v := floats[row*ds.dim : (row+1)*ds.dim]
		cache[row] = distance.Dot(v, v)
	}
	ds.normCache = cache
	ds.normDirty = false
	return ds.normCache
}

// Reset truncates the store to zero rows: the id index and norm cache
// are cleared and the backing files are left at their current capacity
// (spec.md makes no claim about capacity shrinking on reset).
func (ds *DataStore) Reset() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	ds.n = 0
	ds.idToRow = make(map[int64]int)
	ds.normCache = nil
	ds.normDirty = true

	if err := ds.flushLocked(); err != nil {
		ds.poisoned = true
		return err
	}
	return nil
}

// Flush ensures durability of mapped pages and the metadata sidecar.
func (ds *DataStore) Flush() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.flushLocked()
}

func (ds *DataStore) flushLocked() error {
	if err := ds.vecMap.Sync(); err != nil {
		return errs.New(errs.KindStorageFatal, "store.flush", err)
	}
	if err := ds.idMap.Sync(); err != nil {
		return errs.New(errs.KindStorageFatal, "store.flush", err)
	}
	if err := writeMeta(ds.fs, ds.dir, ds.snapshotMeta()); err != nil {
		return err
	}
	return nil
}

// Close unmaps the backing files. The DataStore must not be used after
// Close.
func (ds *DataStore) Close() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.closeMappings()
	return nil
}

// RLock/RUnlock/Lock/Unlock expose the store's RWMutex so IVFIndex can
// share a single reader-writer lock with DataStore, per spec.md §5
// ("A reader-writer lock guards DataStore and IVFIndex together").
func (ds *DataStore) RLock()   { ds.mu.RLock() }
func (ds *DataStore) RUnlock() { ds.mu.RUnlock() }
func (ds *DataStore) Lock()    { ds.mu.Lock() }
func (ds *DataStore) Unlock()  { ds.mu.Unlock() }
