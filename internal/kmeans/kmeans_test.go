package kmeans

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flat(rows [][]float32) []float32 {
	var out []float32
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}

func TestTrainDeterministic(t *testing.T) {
	rows := [][]float32{
		{0, 0}, {0, 1}, {10, 10}, {10, 11}, {20, 0}, {20, 1},
	}
	x := flat(rows)
	cfg := DefaultConfig()
	cfg.Seed = 42

	r1, err := Train(context.Background(), x, 2, 3, cfg)
	require.NoError(t, err)
	r2, err := Train(context.Background(), x, 2, 3, cfg)
	require.NoError(t, err)
	assert.Equal(t, r1.Centroids, r2.Centroids)
}

func TestTrainKTooLarge(t *testing.T) {
	x := flat([][]float32{{0, 0}, {1, 1}})
	_, err := Train(context.Background(), x, 2, 5, DefaultConfig())
	require.Error(t, err)
}

func TestTrainRespectsCanceledContext(t *testing.T) {
	x := flat([][]float32{{0, 0}, {0, 1}, {10, 10}, {10, 11}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Train(ctx, x, 2, 2, DefaultConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrainConvergesToClusterMeans(t *testing.T) {
	rows := [][]float32{
		{0, 0}, {0, 0.1}, {0.1, 0},
		{10, 10}, {10.1, 10}, {10, 10.1},
	}
	x := flat(rows)
	cfg := DefaultConfig()
	cfg.Seed = 7

	res, err := Train(context.Background(), x, 2, 2, cfg)
	require.NoError(t, err)
	require.Len(t, res.Centroids, 4)

	// One centroid should land near (0,0), the other near (10,10).
	found := map[int]bool{}
	for j := 0; j < 2; j++ {
		c := res.Centroids[j*2 : j*2+2]
		if c[0] < 5 && c[1] < 5 {
			found[0] = true
		}
		if c[0] > 5 && c[1] > 5 {
			found[1] = true
		}
	}
	assert.True(t, found[0])
	assert.True(t, found[1])
}

func TestSampleCapSubsamples(t *testing.T) {
	rows := make([][]float32, 100)
	for i := range rows {
		rows[i] = []float32{float32(i), float32(i)}
	}
	x := flat(rows)
	cfg := DefaultConfig()
	cfg.SampleCap = 10
	cfg.Seed = 1

	res, err := Train(context.Background(), x, 2, 2, cfg)
	require.NoError(t, err)
	assert.Len(t, res.SampleRows, 10)
}

func TestAssignNearest(t *testing.T) {
	centroids := flat([][]float32{{0, 0}, {10, 10}})
	got := AssignNearest([]float32{9, 9}, centroids, 2, nil)
	assert.Equal(t, 1, got)
}
