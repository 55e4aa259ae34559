// Package ivf implements IVFIndex (spec.md §4.4 / C4): an inverted-file
// index trained over DataStore's vectors, searched by probing the
// nprobe nearest inverted lists and scanning their members under a
// codes_scanned budget.
//
// The trained state (centroids, centroid norms, inverted lists) is
// built off-band into a private snapshot and swapped into an
// atomic.Pointer, the way the teacher's engine.Engine swaps its
// atomic.Pointer[Snapshot] after a background compaction — readers
// never observe a half-built index. The invariant that every trained
// row belongs to exactly one inverted list is checked with a
// github.com/RoaringBitmap/roaring/v2 bitmap, grounded on the teacher's
// metadata.LocalBitmap.
package ivf

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/itisrohit/nanoindex/distance"
	"github.com/itisrohit/nanoindex/errs"
	"github.com/itisrohit/nanoindex/internal/conv"
	"github.com/itisrohit/nanoindex/internal/kmeans"
	"github.com/itisrohit/nanoindex/internal/queue"
	"github.com/itisrohit/nanoindex/logging"
)

// ivfFileMagic and ivfFileVersion guard ivf.bin the same way meta.json's
// layout_version guards the store sidecar: a version mismatch is a
// corrupt/foreign file, not a panic.
const (
	ivfFileMagic   uint32 = 0x4e_49_56_46 // "NIVF"
	ivfFileVersion uint32 = 1
)

// dataSource is the slice of DataStore that Index needs. It shares
// DataStore's own RWMutex (spec.md §5: "A reader-writer lock guards
// DataStore and IVFIndex together"), so Index never carries a lock of
// its own.
type dataSource interface {
	RLock()
	RUnlock()
	Lock()
	Unlock()
	Dim() int
	Len() int
	AllVectorsLocked() []float32
	NormsSqLocked() []float32
}

// snapshot is the immutable, fully-built trained state. A new one is
// built off-band by Train and swapped in atomically.
type snapshot struct {
	k             int
	nTrained      int
	centroids     []float32 // k*dim
	centroidNorms []float32 // k
	lists         [][]int32 // per-centroid row indices, insertion order
}

// Index is the IVF index. The zero value is not usable; use New.
type Index struct {
	dim int
	log *logging.Logger

	current atomic.Pointer[snapshot]
}

// New returns an untrained Index for vectors of the given dimension.
func New(dim int, log *logging.Logger) *Index {
	return &Index{dim: dim, log: logging.Safe(log)}
}

// Trained reports whether Train has ever succeeded.
func (idx *Index) Trained() bool {
	return idx.current.Load() != nil
}

// Train clusters ds's current vectors into k centroids and rebuilds
// the inverted lists. The expensive clustering pass runs over a private
// copy of the vectors taken under a single shared-lock window, so it
// does not block concurrent Add for its whole duration; only the final
// pointer swap takes the exclusive lock, and that swap is O(1).
func (idx *Index) Train(ctx context.Context, ds dataSource, k int, cfg kmeans.Config) (int, error) {
	if k <= 0 {
		return 0, errs.New(errs.KindInvalidInput, "ivf.Train", fmt.Errorf("k must be > 0"))
	}

	ds.RLock()
	n := ds.Len()
	if n == 0 {
		ds.RUnlock()
		return 0, errs.New(errs.KindInvalidInput, "ivf.Train", fmt.Errorf("store is empty"))
	}
	if k > n {
		ds.RUnlock()
		return 0, errs.New(errs.KindInvalidInput, "ivf.Train", fmt.Errorf("k=%d exceeds row count %d", k, n))
	}
	view := ds.AllVectorsLocked()
	vectors := make([]float32, len(view))
	copy(vectors, view)
	ds.RUnlock()

	res, err := kmeans.Train(ctx, vectors, idx.dim, k, cfg)
	if err != nil {
		idx.log.LogTrain(ctx, k, 0, err)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, errs.New(errs.KindTimeout, "ivf.Train", err)
		}
		return 0, errs.New(errs.KindInvalidInput, "ivf.Train", err)
	}

	centroidNorms := make([]float32, k)
	for j := 0; j < k; j++ {
		c := res.Centroids[j*idx.dim : (j+1)*idx.dim]
		centroidNorms[j] = distance.Dot(c, c)
	}

	if err := ctx.Err(); err != nil {
		idx.log.LogTrain(ctx, k, 0, err)
		return 0, errs.New(errs.KindTimeout, "ivf.Train", err)
	}

	lists := make([][]int32, k)
	seen := roaring.New()
	for row := 0; row < n; row++ {
		v := vectors[row*idx.dim : (row+1)*idx.dim]
		c := kmeans.AssignNearest(v, res.Centroids, idx.dim, centroidNorms)
		lists[c] = append(lists[c], int32(row))
		seen.Add(uint32(row))
	}
	if int(seen.GetCardinality()) != n {
		err := fmt.Errorf("ivf.Train: partition invariant violated: %d of %d rows assigned", seen.GetCardinality(), n)
		idx.log.LogTrain(ctx, k, 0, err)
		return 0, errs.New(errs.KindCorruptState, "ivf.Train", err)
	}

	snap := &snapshot{
		k:             k,
		nTrained:      n,
		centroids:     res.Centroids,
		centroidNorms: centroidNorms,
		lists:         lists,
	}

	ds.Lock()
	idx.current.Store(snap)
	ds.Unlock()

	idx.log.LogTrain(ctx, k, n, nil)
	return n, nil
}

// Result is a single search hit: the row index into DataStore and its
// distance to the query.
type Result struct {
	Row      int
	Distance float32
}

// Params bounds a single Search call.
type Params struct {
	TopK     int
	NProbe   int
	MaxCodes int // 0 means unbounded
}

// Search probes the NProbe nearest inverted lists (centroid distance
// ties break toward the lower centroid index) and returns up to TopK
// nearest rows, scanning at most MaxCodes candidate rows total. An
// untrained index returns an empty result, not an error (spec.md §4.4:
// "searching before any Train call returns an empty result set").
func (idx *Index) Search(ctx context.Context, ds dataSource, query []float32, p Params) ([]Result, error) {
	if len(query) != idx.dim {
		return nil, errs.New(errs.KindInvalidInput, "ivf.Search", fmt.Errorf("query dim %d, want %d", len(query), idx.dim))
	}
	if p.TopK <= 0 {
		return nil, errs.New(errs.KindInvalidInput, "ivf.Search", fmt.Errorf("top_k must be > 0"))
	}

	snap := idx.current.Load()
	if snap == nil || snap.nTrained == 0 {
		return nil, nil
	}

	ds.RLock()
	defer ds.RUnlock()

	norms := ds.NormsSqLocked()
	vectors := ds.AllVectorsLocked()

	nprobe := p.NProbe
	if nprobe <= 0 || nprobe > snap.k {
		nprobe = snap.k
	}

	centroidDists := distance.L2SqBatch(query, snap.centroids, idx.dim, snap.centroidNorms)
	probeOrder := make([]int, snap.k)
	for i := range probeOrder {
		probeOrder[i] = i
	}
	sort.Slice(probeOrder, func(a, b int) bool {
		ia, ib := probeOrder[a], probeOrder[b]
		if centroidDists[ia] != centroidDists[ib] {
			return centroidDists[ia] < centroidDists[ib]
		}
		return ia < ib
	})
	probeOrder = probeOrder[:nprobe]

	top := queue.NewTopK(p.TopK)
	scanned := 0

	qNorm := distance.Dot(query, query)
probe:
	for _, c := range probeOrder {
		if err := ctx.Err(); err != nil {
			return nil, errs.New(errs.KindTimeout, "ivf.Search", err)
		}
		for _, row32 := range snap.lists[c] {
			if p.MaxCodes > 0 && scanned >= p.MaxCodes {
				break probe
			}
			row := int(row32)
			v := vectors[row*idx.dim : (row+1)*idx.dim]
			d := qNorm + norms[row] - 2*distance.Dot(query, v)
			top.Offer(row, d)
			scanned++
		}
	}

	items := top.Sorted()
	out := make([]Result, len(items))
	for i, it := range items {
		out[i] = Result{Row: it.RowIndex, Distance: it.Distance}
	}
	return out, nil
}

// Reset discards the trained snapshot, reverting to the untrained
// state.
func (idx *Index) Reset() {
	idx.current.Store(nil)
}

// Save writes the trained snapshot to path in the ivf.bin format:
// a fixed header (magic, version, dim, k, n_trained) followed by the
// centroid matrix, centroid norms, and per-centroid inverted lists. An
// untrained index writes a header with k=0 and no body. The write goes
// to a temp file and is renamed into place, the same atomic-write
// pattern store.writeMeta uses for meta.json.
func (idx *Index) Save(path string) error {
	snap := idx.current.Load()

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return errs.New(errs.KindStorageFatal, "ivf.Save", err)
	}
	w := bufio.NewWriter(f)

	header := [5]uint32{ivfFileMagic, ivfFileVersion, 0, 0, 0}
	if dim, cerr := conv.IntToUint32(idx.dim); cerr == nil {
		header[2] = dim
	}
	if snap != nil {
		if k, cerr := conv.IntToUint32(snap.k); cerr == nil {
			header[3] = k
		}
		if n, cerr := conv.IntToUint32(snap.nTrained); cerr == nil {
			header[4] = n
		}
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		f.Close()
		return errs.New(errs.KindStorageFatal, "ivf.Save", err)
	}

	if snap != nil {
		if err := binary.Write(w, binary.LittleEndian, snap.centroids); err != nil {
			f.Close()
			return errs.New(errs.KindStorageFatal, "ivf.Save", err)
		}
		if err := binary.Write(w, binary.LittleEndian, snap.centroidNorms); err != nil {
			f.Close()
			return errs.New(errs.KindStorageFatal, "ivf.Save", err)
		}
		for _, list := range snap.lists {
			n, cerr := conv.IntToUint32(len(list))
			if cerr != nil {
				f.Close()
				return errs.New(errs.KindStorageFatal, "ivf.Save", cerr)
			}
			if err := binary.Write(w, binary.LittleEndian, n); err != nil {
				f.Close()
				return errs.New(errs.KindStorageFatal, "ivf.Save", err)
			}
			if err := binary.Write(w, binary.LittleEndian, list); err != nil {
				f.Close()
				return errs.New(errs.KindStorageFatal, "ivf.Save", err)
			}
		}
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return errs.New(errs.KindStorageFatal, "ivf.Save", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errs.New(errs.KindStorageFatal, "ivf.Save", err)
	}
	if err := f.Close(); err != nil {
		return errs.New(errs.KindStorageFatal, "ivf.Save", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errs.New(errs.KindStorageFatal, "ivf.Save", err)
	}
	return nil
}

// Load reads an ivf.bin file written by Save and installs it as the
// current snapshot. A missing file is not an error: the index is left
// untrained, the same way store.readMeta treats a missing meta.json as
// "nothing written yet" rather than corruption.
func (idx *Index) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.New(errs.KindStorageFatal, "ivf.Load", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var header [5]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return errs.New(errs.KindCorruptState, "ivf.Load", err)
	}
	if header[0] != ivfFileMagic || header[1] != ivfFileVersion {
		return errs.New(errs.KindCorruptState, "ivf.Load", fmt.Errorf("ivf.bin: bad magic/version"))
	}
	dim, err := conv.Uint32ToInt(header[2])
	if err != nil {
		return errs.New(errs.KindCorruptState, "ivf.Load", err)
	}
	if dim != idx.dim {
		return errs.New(errs.KindCorruptState, "ivf.Load", fmt.Errorf("ivf.bin: dim %d, want %d", dim, idx.dim))
	}
	k, err := conv.Uint32ToInt(header[3])
	if err != nil {
		return errs.New(errs.KindCorruptState, "ivf.Load", err)
	}
	if k == 0 {
		idx.current.Store(nil)
		return nil
	}
	nTrained, err := conv.Uint32ToInt(header[4])
	if err != nil {
		return errs.New(errs.KindCorruptState, "ivf.Load", err)
	}

	centroids := make([]float32, k*idx.dim)
	if err := binary.Read(r, binary.LittleEndian, centroids); err != nil {
		return errs.New(errs.KindCorruptState, "ivf.Load", err)
	}
	centroidNorms := make([]float32, k)
	if err := binary.Read(r, binary.LittleEndian, centroidNorms); err != nil {
		return errs.New(errs.KindCorruptState, "ivf.Load", err)
	}

	lists := make([][]int32, k)
	for i := range lists {
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return errs.New(errs.KindCorruptState, "ivf.Load", err)
		}
		listLen, err := conv.Uint32ToInt(n)
		if err != nil {
			return errs.New(errs.KindCorruptState, "ivf.Load", err)
		}
		list := make([]int32, listLen)
		if listLen > 0 {
			if err := binary.Read(r, binary.LittleEndian, list); err != nil {
				return errs.New(errs.KindCorruptState, "ivf.Load", err)
			}
		}
		lists[i] = list
	}

	idx.current.Store(&snapshot{
		k:             k,
		nTrained:      nTrained,
		centroids:     centroids,
		centroidNorms: centroidNorms,
		lists:         lists,
	})
	return nil
}
