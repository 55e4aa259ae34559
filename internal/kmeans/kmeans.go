// Package kmeans implements the clustering used to train IVFIndex's
// centroids (spec.md §4.3 / C3): sample-capped, uniformly-seeded Lloyd's
// algorithm with deterministic output for a fixed seed. It generalizes the
// teacher's internal/kmeans.TrainKMeans (which seeds from the global
// math/rand source and reinitializes empty clusters from a random point)
// to take an explicit *rand.Rand for determinism, add the sample_cap
// subsampling step, and keep empty clusters at their previous centroid
// instead of reseeding them — both deviations are mandated by spec.md,
// not accidents of translation.
package kmeans

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/itisrohit/nanoindex/distance"
)

// assignWorkerChunk is the minimum number of rows handed to one worker;
// below this the fan-out overhead isn't worth it and assignment runs
// inline on the calling goroutine.
const assignWorkerChunk = 2048

// assignRange runs the assignment step (spec.md §4.3.3.a) over a bounded
// worker pool split by row range, using golang.org/x/sync/errgroup the
// way the teacher's resource.Controller bounds background concurrency
// with a semaphore. The call still blocks until every worker finishes, so
// it remains synchronous from Train's caller (spec.md §5).
func assignRange(sample []float32, dim int, centroids, centroidNorms []float32, assignments []int, nSample, k int) {
	workers := runtime.GOMAXPROCS(0)
	if workers > nSample/assignWorkerChunk {
		workers = nSample / assignWorkerChunk
	}
	if workers < 1 {
		workers = 1
	}

	chunk := (nSample + workers - 1) / workers
	var g errgroup.Group
	for start := 0; start < nSample; start += chunk {
		start := start
		end := start + chunk
		if end > nSample {
			end = nSample
		}
		g.Go(func() error {
			for i := start; i < end; i++ {
				row := sample[i*dim : (i+1)*dim]
				dists := distance.L2SqBatch(row, centroids, dim, centroidNorms)
				best, bestDist := 0, dists[0]
				for j := 1; j < k; j++ {
					if dists[j] < bestDist {
						best, bestDist = j, dists[j]
					}
				}
				assignments[i] = best
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Config holds the tunable parameters for Train.
type Config struct {
	// MaxIters bounds the number of Lloyd iterations. Default 20.
	MaxIters int
	// Tol is the maximum per-centroid L2 shift below which the
	// algorithm is considered converged. Default 1e-4.
	Tol float32
	// SampleCap bounds how many rows are drawn (without replacement)
	// to train on when the input exceeds it. Default 10000.
	SampleCap int
	// Seed drives every random choice (subsampling and centroid
	// seeding); the same seed and input always produce bit-identical
	// centroids.
	Seed int64
}

// DefaultConfig returns spec.md's documented defaults.
func DefaultConfig() Config {
	return Config{MaxIters: 20, Tol: 1e-4, SampleCap: 10000, Seed: 0}
}

// Result is the outcome of a training run.
type Result struct {
	// Centroids is the flattened K*dim centroid matrix.
	Centroids []float32
	// SampleRows are the original row indices (into x) used for
	// training, in the order they were sampled.
	SampleRows []int
}

// Train runs Lloyd's algorithm over x (n*dim row-major) and returns K
// centroids. K must not exceed the (possibly subsampled) training set
// size. ctx is checked between Lloyd iterations (spec.md §5: a caller
// deadline is honored "between batches in training"); a canceled or
// expired ctx aborts with ctx.Err() and whatever centroids existed
// before that iteration are discarded.
func Train(ctx context.Context, x []float32, dim, k int, cfg Config) (Result, error) {
	if dim <= 0 {
		return Result{}, fmt.Errorf("kmeans: dim must be > 0")
	}
	n := len(x) / dim
	if cfg.MaxIters <= 0 {
		cfg.MaxIters = DefaultConfig().MaxIters
	}
	if cfg.Tol <= 0 {
		cfg.Tol = DefaultConfig().Tol
	}
	if cfg.SampleCap <= 0 {
		cfg.SampleCap = DefaultConfig().SampleCap
	}

	rng := rand.New(rand.NewSource(cfg.Seed))

	sampleRows := sampleWithoutReplacement(rng, n, cfg.SampleCap)
	nSample := len(sampleRows)
	if k > nSample {
		return Result{}, fmt.Errorf("kmeans: k=%d exceeds sample size %d", k, nSample)
	}

	sample := make([]float32, nSample*dim)
	for i, row := range sampleRows {
		copy(sample[i*dim:(i+1)*dim], x[row*dim:(row+1)*dim])
	}

	centroids := seedCentroids(rng, sample, dim, k)
	assignments := make([]int, nSample)
	counts := make([]int, k)
	sums := make([]float32, k*dim)

	for iter := 0; iter < cfg.MaxIters; iter++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		centroidNorms := make([]float32, k)
		for j := 0; j < k; j++ {
			c := centroids[j*dim : (j+1)*dim]
			centroidNorms[j] = distance.Dot(c, c)
		}

		assignRange(sample, dim, centroids, centroidNorms, assignments, nSample, k)

		for i := range sums {
			sums[i] = 0
		}
		for i := range counts {
			counts[i] = 0
		}
		for i := 0; i < nSample; i++ {
			c := assignments[i]
			row := sample[i*dim : (i+1)*dim]
			for d := 0; d < dim; d++ {
				sums[c*dim+d] += row[d]
			}
			counts[c]++
		}

		var maxShift float32
		for j := 0; j < k; j++ {
			old := centroids[j*dim : (j+1)*dim]
			if counts[j] == 0 {
				continue // keep previous centroid unchanged (spec.md §4.3.3.b)
			}
			newCentroid := make([]float32, dim)
			scale := 1.0 / float32(counts[j])
			for d := 0; d < dim; d++ {
				newCentroid[d] = sums[j*dim+d] * scale
			}
			shift := float32(math.Sqrt(float64(distance.L2Sq(old, newCentroid))))
			if shift > maxShift {
				maxShift = shift
			}
			copy(old, newCentroid)
		}

		if maxShift <= cfg.Tol {
			break
		}
	}

	return Result{Centroids: centroids, SampleRows: sampleRows}, nil
}

// sampleWithoutReplacement draws min(cap, n) distinct indices in
// [0, n) using a Fisher-Yates partial shuffle on rng, so it stays
// deterministic for a fixed seed without materializing a full
// permutation when cap << n.
func sampleWithoutReplacement(rng *rand.Rand, n, cap int) []int {
	if cap >= n {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}
	for i := 0; i < cap; i++ {
		j := i + rng.Intn(n-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:cap]
}

// seedCentroids samples k distinct rows from sample uniformly at random
// (plain random seeding, not k-means++, per spec.md §4.3).
func seedCentroids(rng *rand.Rand, sample []float32, dim, k int) []float32 {
	nSample := len(sample) / dim
	idx := sampleWithoutReplacement(rng, nSample, k)
	centroids := make([]float32, k*dim)
	for i, row := range idx {
		copy(centroids[i*dim:(i+1)*dim], sample[row*dim:(row+1)*dim])
	}
	return centroids
}

// AssignNearest returns the index of the centroid closest to vec.
func AssignNearest(vec, centroids []float32, dim int, centroidNorms []float32) int {
	dists := distance.L2SqBatch(vec, centroids, dim, centroidNorms)
	best, bestDist := 0, dists[0]
	for j := 1; j < len(dists); j++ {
		if dists[j] < bestDist {
			best, bestDist = j, dists[j]
		}
	}
	return best
}
