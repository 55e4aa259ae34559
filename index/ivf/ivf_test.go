package ivf

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itisrohit/nanoindex/errs"
	"github.com/itisrohit/nanoindex/internal/kmeans"
	"github.com/itisrohit/nanoindex/store"
)

func openTestStore(t *testing.T, dim int) *store.DataStore {
	t.Helper()
	ds, err := store.Open(t.TempDir(), dim)
	require.NoError(t, err)
	t.Cleanup(func() { ds.Close() })
	return ds
}

func TestSearchBeforeTrainIsEmpty(t *testing.T) {
	ds := openTestStore(t, 2)
	idx := New(2, nil)

	res, err := idx.Search(context.Background(), ds, []float32{0, 0}, Params{TopK: 5, NProbe: 1})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestTrainRejectsKLargerThanN(t *testing.T) {
	ds := openTestStore(t, 2)
	_, err := ds.Add(context.Background(), [][]float32{{0, 0}, {1, 1}}, []int64{1, 2})
	require.NoError(t, err)

	idx := New(2, nil)
	_, err = idx.Train(context.Background(), ds, 5, kmeans.DefaultConfig())
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestTrainAndSearchFindsNearest(t *testing.T) {
	ds := openTestStore(t, 2)
	vecs := [][]float32{
		{0, 0}, {0, 1}, {0.1, 0.1},
		{10, 10}, {10, 11}, {10.1, 10.1},
	}
	ids := []int64{1, 2, 3, 4, 5, 6}
	_, err := ds.Add(context.Background(), vecs, ids)
	require.NoError(t, err)

	idx := New(2, nil)
	cfg := kmeans.DefaultConfig()
	cfg.Seed = 3
	nTrained, err := idx.Train(context.Background(), ds, 2, cfg)
	require.NoError(t, err)
	assert.Equal(t, 6, nTrained)
	assert.True(t, idx.Trained())

	res, err := idx.Search(context.Background(), ds, []float32{0, 0}, Params{TopK: 3, NProbe: 2})
	require.NoError(t, err)
	require.Len(t, res, 3)
	for _, r := range res {
		assert.Less(t, r.Row, 3)
	}
}

func TestSearchDimMismatch(t *testing.T) {
	ds := openTestStore(t, 2)
	_, err := ds.Add(context.Background(), [][]float32{{0, 0}, {1, 1}}, []int64{1, 2})
	require.NoError(t, err)
	idx := New(2, nil)
	require.NoError(t, must(idx.Train(context.Background(), ds, 1, kmeans.DefaultConfig())))

	_, err = idx.Search(context.Background(), ds, []float32{0, 0, 0}, Params{TopK: 1, NProbe: 1})
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func must(_ int, err error) error { return err }

func TestSearchRespectsMaxCodesBudget(t *testing.T) {
	ds := openTestStore(t, 2)
	for i := int64(0); i < 20; i++ {
		_, err := ds.Add(context.Background(), [][]float32{{float32(i), float32(i)}}, []int64{i})
		require.NoError(t, err)
	}

	idx := New(2, nil)
	cfg := kmeans.DefaultConfig()
	cfg.Seed = 9
	_, err := idx.Train(context.Background(), ds, 4, cfg)
	require.NoError(t, err)

	res, err := idx.Search(context.Background(), ds, []float32{0, 0}, Params{TopK: 20, NProbe: 4, MaxCodes: 3})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res), 3)
}

func TestTieBreakLowestRowIndexWins(t *testing.T) {
	ds := openTestStore(t, 1)
	_, err := ds.Add(context.Background(), [][]float32{{0}, {0}}, []int64{7, 3})
	require.NoError(t, err)

	idx := New(1, nil)
	_, err = idx.Train(context.Background(), ds, 1, kmeans.DefaultConfig())
	require.NoError(t, err)

	res, err := idx.Search(context.Background(), ds, []float32{0}, Params{TopK: 2, NProbe: 1})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, 0, res[0].Row)
	assert.Equal(t, 1, res[1].Row)
}

func TestResetUntrains(t *testing.T) {
	ds := openTestStore(t, 2)
	_, err := ds.Add(context.Background(), [][]float32{{0, 0}, {1, 1}}, []int64{1, 2})
	require.NoError(t, err)

	idx := New(2, nil)
	_, err = idx.Train(context.Background(), ds, 1, kmeans.DefaultConfig())
	require.NoError(t, err)
	assert.True(t, idx.Trained())

	idx.Reset()
	assert.False(t, idx.Trained())

	res, err := idx.Search(context.Background(), ds, []float32{0, 0}, Params{TopK: 1, NProbe: 1})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestTrainEmptyStore(t *testing.T) {
	ds := openTestStore(t, 2)
	idx := New(2, nil)
	_, err := idx.Train(context.Background(), ds, 1, kmeans.DefaultConfig())
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ds := openTestStore(t, 2)
	vecs := [][]float32{{0, 0}, {0, 1}, {10, 10}, {10, 11}}
	_, err := ds.Add(context.Background(), vecs, []int64{1, 2, 3, 4})
	require.NoError(t, err)

	idx := New(2, nil)
	_, err = idx.Train(context.Background(), ds, 2, kmeans.DefaultConfig())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ivf.bin")
	require.NoError(t, idx.Save(path))

	loaded := New(2, nil)
	require.NoError(t, loaded.Load(path))
	assert.True(t, loaded.Trained())

	want, err := idx.Search(context.Background(), ds, []float32{0, 0}, Params{TopK: 2, NProbe: 2})
	require.NoError(t, err)
	got, err := loaded.Search(context.Background(), ds, []float32{0, 0}, Params{TopK: 2, NProbe: 2})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadMissingFileLeavesUntrained(t *testing.T) {
	idx := New(2, nil)
	require.NoError(t, idx.Load(filepath.Join(t.TempDir(), "missing.bin")))
	assert.False(t, idx.Trained())
}

func TestSaveUntrainedThenLoad(t *testing.T) {
	idx := New(2, nil)
	path := filepath.Join(t.TempDir(), "ivf.bin")
	require.NoError(t, idx.Save(path))

	loaded := New(2, nil)
	require.NoError(t, loaded.Load(path))
	assert.False(t, loaded.Trained())
}

func TestSearchRespectsCanceledContext(t *testing.T) {
	ds := openTestStore(t, 2)
	vecs := [][]float32{{0, 0}, {0, 1}, {10, 10}, {10, 11}}
	_, err := ds.Add(context.Background(), vecs, []int64{1, 2, 3, 4})
	require.NoError(t, err)

	idx := New(2, nil)
	_, err = idx.Train(context.Background(), ds, 2, kmeans.DefaultConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = idx.Search(ctx, ds, []float32{0, 0}, Params{TopK: 2, NProbe: 2})
	require.Error(t, err)
	assert.True(t, errs.IsTimeout(err))
}

func TestTrainRespectsCanceledContext(t *testing.T) {
	ds := openTestStore(t, 2)
	_, err := ds.Add(context.Background(), [][]float32{{0, 0}, {1, 1}}, []int64{1, 2})
	require.NoError(t, err)

	idx := New(2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = idx.Train(ctx, ds, 1, kmeans.DefaultConfig())
	require.Error(t, err)
	assert.True(t, errs.IsTimeout(err))
}

func TestLoadRejectsDimMismatch(t *testing.T) {
	ds := openTestStore(t, 2)
	_, err := ds.Add(context.Background(), [][]float32{{0, 0}, {1, 1}}, []int64{1, 2})
	require.NoError(t, err)

	idx := New(2, nil)
	_, err = idx.Train(context.Background(), ds, 1, kmeans.DefaultConfig())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ivf.bin")
	require.NoError(t, idx.Save(path))

	loaded := New(3, nil)
	err = loaded.Load(path)
	require.Error(t, err)
}
