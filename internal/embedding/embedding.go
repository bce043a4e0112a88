// Package embedding maps abstract text to vectors.
//
// Two model families implement Model: a sparse TF-IDF model over a bounded
// vocabulary, and a dense paragraph-vector model (Doc2Vec, PV-DBOW). Models
// are fit offline and are read-only afterwards, so one instance may be shared
// by concurrent callers.
package embedding

import (
	"fmt"
	"math"
	"sort"
)

// Kind distinguishes dense and sparse vector spaces.
type Kind int

const (
	// KindDense vectors are fixed-size float arrays.
	KindDense Kind = iota
	// KindSparse vectors map vocabulary indices to weights.
	KindSparse
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindDense:
		return "dense"
	case KindSparse:
		return "sparse"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// SparseVector holds parallel arrays of indices and weights.
// Indices are sorted ascending and unique; no weight is zero.
type SparseVector struct {
	Indices []int32
	Values  []float32
}

// Vector is an embedding in either a dense or a sparse space.
// Vectors are never mutated after creation.
type Vector struct {
	Kind   Kind
	Dense  []float32
	Sparse SparseVector
}

// NewDense wraps a dense slice. The slice is not copied.
func NewDense(v []float32) Vector {
	return Vector{Kind: KindDense, Dense: v}
}

// NewSparse builds a sparse vector from index -> weight pairs.
// Zero weights are dropped.
func NewSparse(weights map[int32]float32) Vector {
	indices := make([]int32, 0, len(weights))
	for i, w := range weights {
		if w != 0 {
			indices = append(indices, i)
		}
	}
	sort.Slice(indices, func(a, b int) bool { return indices[a] < indices[b] })

	values := make([]float32, len(indices))
	for n, i := range indices {
		values[n] = weights[i]
	}
	return Vector{Kind: KindSparse, Sparse: SparseVector{Indices: indices, Values: values}}
}

// Dimensions returns the dense length, or the number of non-zero entries for
// sparse vectors.
func (v Vector) Dimensions() int {
	if v.Kind == KindSparse {
		return len(v.Sparse.Indices)
	}
	return len(v.Dense)
}

func (v Vector) values() []float32 {
	if v.Kind == KindSparse {
		return v.Sparse.Values
	}
	return v.Dense
}

// Norm returns the L2 norm.
func (v Vector) Norm() float64 {
	var sum float64
	for _, x := range v.values() {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// IsZero reports whether the vector carries no signal.
func (v Vector) IsZero() bool {
	return v.Norm() == 0
}

// Normalize returns a unit-length copy. A zero vector is returned as is.
func (v Vector) Normalize() Vector {
	n := v.Norm()
	if n == 0 {
		return v
	}
	inv := 1 / n
	src := v.values()
	out := make([]float32, len(src))
	for i, x := range src {
		out[i] = float32(float64(x) * inv)
	}
	if v.Kind == KindSparse {
		indices := make([]int32, len(v.Sparse.Indices))
		copy(indices, v.Sparse.Indices)
		return Vector{Kind: KindSparse, Sparse: SparseVector{Indices: indices, Values: out}}
	}
	return NewDense(out)
}

// Dot returns the inner product. Vectors of different kinds or dense
// vectors of different lengths have no defined product and yield 0.
func Dot(a, b Vector) float64 {
	if a.Kind != b.Kind {
		return 0
	}
	if a.Kind == KindDense {
		if len(a.Dense) != len(b.Dense) {
			return 0
		}
		var dot float64
		for i := range a.Dense {
			dot += float64(a.Dense[i]) * float64(b.Dense[i])
		}
		return dot
	}

	// Merge the sorted index lists.
	var dot float64
	ai, bi := a.Sparse.Indices, b.Sparse.Indices
	i, j := 0, 0
	for i < len(ai) && j < len(bi) {
		switch {
		case ai[i] == bi[j]:
			dot += float64(a.Sparse.Values[i]) * float64(b.Sparse.Values[j])
			i++
			j++
		case ai[i] < bi[j]:
			i++
		default:
			j++
		}
	}
	return dot
}
