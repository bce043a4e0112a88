// Package similarity ranks catalog papers by cosine similarity to query vectors.
package similarity

import (
	"errors"
	"fmt"
	"time"

	"github.com/matsen/refy/internal/embedding"
)

// Errors returned by index operations.
var (
	ErrIndexNotFound      = errors.New("similarity index not found")
	ErrStaleIndex         = errors.New("similarity index was built from a different catalog")
	ErrKindMismatch       = errors.New("similarity index was built with a different model")
	ErrUnsupportedVersion = errors.New("unsupported index version")
)

const (
	// DefaultTopK is the per-query neighbor cap.
	DefaultTopK = 100

	// CurrentIndexVersion is the format version for compatibility checking.
	// Increment this when making breaking changes to the index format.
	CurrentIndexVersion = 1
)

// Neighbor is a catalog row returned by a query.
type Neighbor struct {
	ID         string  `json:"id"`
	Row        int     `json:"row"`
	Similarity float64 `json:"similarity"`
}

type posting struct {
	row    int32
	weight float32
}

// Index holds the L2-normalized vectors of every catalog row, in catalog row
// order. Rows whose abstract embedded to the zero vector are kept so that row
// numbers stay aligned with the catalog, but they never match a query.
//
// An Index is read-only after construction and safe for concurrent queries.
type Index struct {
	ModelName   string
	Kind        embedding.Kind
	Fingerprint string // catalog fingerprint at build time
	CreatedAt   time.Time

	ids      []string
	vectors  []embedding.Vector
	postings map[int32][]posting // sparse indexes only
	zero     int
}

// FromVectors builds an index over precomputed vectors. ids[i] labels
// vectors[i]; every vector must have the given kind.
func FromVectors(ids []string, vectors []embedding.Vector, kind embedding.Kind, modelName string) (*Index, error) {
	return newIndex(ids, vectors, kind, modelName, true)
}

func newIndex(ids []string, vectors []embedding.Vector, kind embedding.Kind, modelName string, normalize bool) (*Index, error) {
	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("got %d ids for %d vectors", len(ids), len(vectors))
	}

	idx := &Index{
		ModelName: modelName,
		Kind:      kind,
		CreatedAt: time.Now(),
		ids:       ids,
		vectors:   make([]embedding.Vector, len(vectors)),
	}
	dims := -1
	for row, v := range vectors {
		if v.Kind != kind {
			return nil, fmt.Errorf("row %d (%s): %w: got %s vector, want %s", row, ids[row], ErrKindMismatch, v.Kind, kind)
		}
		if kind == embedding.KindDense {
			if dims >= 0 && len(v.Dense) != dims {
				return nil, fmt.Errorf("row %d (%s): dimension mismatch: got %d, want %d", row, ids[row], len(v.Dense), dims)
			}
			dims = len(v.Dense)
		}
		if v.IsZero() {
			idx.zero++
		}
		if normalize {
			v = v.Normalize()
		}
		idx.vectors[row] = v
	}

	if kind == embedding.KindSparse {
		idx.buildPostings()
	}
	return idx, nil
}

// buildPostings inverts the sparse vectors so that a query only visits rows
// sharing at least one term with it.
func (idx *Index) buildPostings() {
	idx.postings = make(map[int32][]posting)
	for row, v := range idx.vectors {
		for n, term := range v.Sparse.Indices {
			idx.postings[term] = append(idx.postings[term], posting{row: int32(row), weight: v.Sparse.Values[n]})
		}
	}
}

// Len returns the number of rows.
func (idx *Index) Len() int {
	return len(idx.ids)
}

// ZeroVectors returns how many rows carry no signal.
func (idx *Index) ZeroVectors() int {
	return idx.zero
}

// ID returns the paper ID of a row.
func (idx *Index) ID(row int) string {
	return idx.ids[row]
}

// IDs returns a copy of the row IDs.
func (idx *Index) IDs() []string {
	out := make([]string, len(idx.ids))
	copy(out, idx.ids)
	return out
}
