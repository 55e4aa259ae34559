package nanoindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itisrohit/nanoindex/config"
	"github.com/itisrohit/nanoindex/internal/kmeans"
	"github.com/itisrohit/nanoindex/search"
)

func TestOpenAddTrainSearch(t *testing.T) {
	cfg := config.New(config.WithDataDir(t.TempDir()), config.WithDim(2))
	app, err := Open(cfg)
	require.NoError(t, err)
	defer app.Close()

	_, err = app.Add(context.Background(),
		[][]float32{{0, 0}, {0, 1}, {10, 10}, {10, 11}}, []int64{1, 2, 3, 4})
	require.NoError(t, err)

	cfg2 := kmeans.DefaultConfig()
	cfg2.Seed = 5
	nTrained, err := app.Train(context.Background(), 2, cfg2)
	require.NoError(t, err)
	assert.Equal(t, 4, nTrained)

	hits, err := app.Search(context.Background(), []float32{0, 0}, 2, search.Params{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(1), hits[0].ID)
}

func TestOpenRejectsZeroDim(t *testing.T) {
	cfg := config.New(config.WithDataDir(t.TempDir()))
	_, err := Open(cfg)
	require.Error(t, err)
}

func TestResetClearsEverything(t *testing.T) {
	cfg := config.New(config.WithDataDir(t.TempDir()), config.WithDim(2))
	app, err := Open(cfg)
	require.NoError(t, err)
	defer app.Close()

	_, err = app.Add(context.Background(), [][]float32{{1, 1}}, []int64{1})
	require.NoError(t, err)

	require.NoError(t, app.Reset())
	assert.Equal(t, 0, app.Store.Len())
}
