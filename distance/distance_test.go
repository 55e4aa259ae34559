package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestL2Sq(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	assert.Equal(t, float32(2), L2Sq(a, b))
	assert.Equal(t, float32(0), L2Sq(a, a))
}

func TestCosineZeroNorm(t *testing.T) {
	zero := []float32{0, 0, 0}
	v := []float32{1, 2, 3}
	assert.Equal(t, float32(1.0), Cosine(zero, v))
	assert.Equal(t, float32(1.0), Cosine(v, zero))
}

func TestCosineIdentical(t *testing.T) {
	v := []float32{3, 4, 0}
	got := Cosine(v, v)
	assert.InDelta(t, 0.0, got, 1e-6)
}

func TestNormalizeZeroVector(t *testing.T) {
	zero := []float32{0, 0, 0}
	got := NormalizeL2Copy(zero)
	assert.Equal(t, zero, got)
}

func TestNormalizeInPlace(t *testing.T) {
	v := []float32{3, 4, 0}
	NormalizeL2InPlace(v)
	norm := math.Sqrt(float64(Dot(v, v)))
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestL2SqBatchMatchesPairwise(t *testing.T) {
	dim := 4
	q := []float32{1, 2, 3, 4}
	rows := [][]float32{
		{1, 2, 3, 4},
		{0, 0, 0, 0},
		{4, 3, 2, 1},
		{-1, -2, -3, -4},
	}
	m := make([]float32, 0, len(rows)*dim)
	for _, r := range rows {
		m = append(m, r...)
	}

	got := L2SqBatch(q, m, dim, nil)
	require.Len(t, got, len(rows))
	for i, r := range rows {
		want := L2Sq(q, r)
		if want == 0 {
			assert.InDelta(t, 0, got[i], 1e-4)
			continue
		}
		assert.InDelta(t, want, got[i], 1e-4*math.Abs(float64(want)))
	}
}

func TestL2SqBatchWithCachedNorms(t *testing.T) {
	dim := 2
	q := []float32{1, 1}
	m := []float32{2, 2, 0, 0}
	norms := []float32{Dot([]float32{2, 2}, []float32{2, 2}), Dot([]float32{0, 0}, []float32{0, 0})}

	got := L2SqBatch(q, m, dim, norms)
	assert.InDelta(t, L2Sq(q, []float32{2, 2}), got[0], 1e-4)
	assert.InDelta(t, L2Sq(q, []float32{0, 0}), got[1], 1e-4)
}

func TestL2SqBatchEmpty(t *testing.T) {
	got := L2SqBatch([]float32{1, 2}, nil, 2, nil)
	assert.NotNil(t, got)
	assert.Len(t, got, 0)
}
