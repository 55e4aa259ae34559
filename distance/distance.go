// Package distance provides the similarity kernels NanoIndex builds every
// higher-level search path on: squared L2, cosine, normalization, and a
// fused batched L2 form used by both clustering and IVF search.
package distance

import "math"

// L2Sq returns the squared Euclidean distance between a and b.
// Callers must ensure len(a) == len(b); mismatched lengths are a programmer
// error and not checked here.
func L2Sq(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Dot returns the dot product of a and b.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Cosine returns 1 - cos(a, b). When either vector has zero norm, the
// vectors are treated as maximally dissimilar and 1.0 is returned.
func Cosine(a, b []float32) float32 {
	dot := Dot(a, b)
	na := Dot(a, a)
	nb := Dot(b, b)
	if na == 0 || nb == 0 {
		return 1.0
	}
	return 1 - dot/float32(math.Sqrt(float64(na))*math.Sqrt(float64(nb)))
}

// NormalizeL2InPlace L2-normalizes v in place. If ||v|| < 1e-12 the vector
// is left unchanged (it is treated as already-degenerate).
func NormalizeL2InPlace(v []float32) {
	norm := float32(math.Sqrt(float64(Dot(v, v))))
	if norm < 1e-12 {
		return
	}
	inv := 1 / norm
	for i := range v {
		v[i] *= inv
	}
}

// NormalizeL2Copy returns a normalized copy of src, leaving src untouched.
func NormalizeL2Copy(src []float32) []float32 {
	dst := make([]float32, len(src))
	copy(dst, src)
	NormalizeL2InPlace(dst)
	return dst
}

// L2SqBatch computes the squared L2 distance from q to every row of the
// row-major n*dim matrix m, using the fused identity
// ||q||^2 + ||r||^2 - 2*q.r, which lets the inner loop run as a single
// pass over each row instead of a subtraction-then-square pass.
//
// If cachedNorms is non-nil it must have length n and is used verbatim as
// each row's ||r||^2; otherwise it is computed from m. An empty matrix
// (n == 0) returns an empty, non-nil result.
func L2SqBatch(q []float32, m []float32, dim int, cachedNorms []float32) []float32 {
	if dim == 0 {
		return []float32{}
	}
	n := len(m) / dim
	out := make([]float32, n)
	qq := Dot(q, q)
	for i := 0; i < n; i++ {
		row := m[i*dim : (i+1)*dim]
		var rr float32
		if cachedNorms != nil {
			rr = cachedNorms[i]
		} else {
			rr = Dot(row, row)
		}
		out[i] = qq + rr - 2*Dot(q, row)
	}
	return out
}

// Metric identifies the distance function used for vector comparison.
type Metric int

const (
	MetricL2 Metric = iota
	MetricCosine
)

func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "l2"
	case MetricCosine:
		return "cosine"
	default:
		return "unknown"
	}
}

// Func is a pairwise distance function.
type Func func(a, b []float32) float32

// Provider returns the pairwise distance function for a metric.
func Provider(m Metric) (Func, bool) {
	switch m {
	case MetricL2:
		return L2Sq, true
	case MetricCosine:
		return Cosine, true
	default:
		return nil, false
	}
}
