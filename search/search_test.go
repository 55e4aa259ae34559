package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itisrohit/nanoindex/agent"
	"github.com/itisrohit/nanoindex/index/ivf"
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

func TestFlatSearchFindsNearest(t *testing.T) {
	ds := openTestStore(t, 2)
	_, err := ds.Add(context.Background(),
		[][]float32{{0, 0}, {5, 5}, {10, 10}}, []int64{100, 200, 300})
	require.NoError(t, err)

	svc := New(ds, ds, nil, nil, nil)
	hits, err := svc.Search(context.Background(), []float32{0, 0}, 2, Params{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(100), hits[0].ID)
}

func TestSearchEmptyStoreReturnsEmpty(t *testing.T) {
	ds := openTestStore(t, 2)
	svc := New(ds, ds, nil, nil, nil)
	hits, err := svc.Search(context.Background(), []float32{0, 0}, 5, Params{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchDimMismatchRejected(t *testing.T) {
	ds := openTestStore(t, 3)
	svc := New(ds, ds, nil, nil, nil)
	_, err := svc.Search(context.Background(), []float32{0, 0}, 1, Params{})
	require.Error(t, err)
}

func TestSearchDispatchesToIVFArm(t *testing.T) {
	ds := openTestStore(t, 2)
	vecs := [][]float32{
		{0, 0}, {0, 1}, {10, 10}, {10, 11},
	}
	_, err := ds.Add(context.Background(), vecs, []int64{1, 2, 3, 4})
	require.NoError(t, err)

	idx := ivf.New(2, nil)
	_, err = idx.Train(context.Background(), ds, 2, kmeans.DefaultConfig())
	require.NoError(t, err)

	ag, err := agent.Open(t.TempDir(), agent.DefaultConfig())
	require.NoError(t, err)

	svc := New(ds, ds, idx, ag, nil)
	hits, err := svc.Search(context.Background(), []float32{0, 0}, 2, Params{ForceArm: agent.ArmIVFBalanced})
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestSearchRejectsZeroTopK(t *testing.T) {
	ds := openTestStore(t, 2)
	svc := New(ds, ds, nil, nil, nil)
	_, err := svc.Search(context.Background(), []float32{0, 0}, 0, Params{})
	require.Error(t, err)
}
