package similarity

import (
	"container/heap"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/matsen/refy/internal/embedding"
)

// QueryOptions configures QueryBatch.
type QueryOptions struct {
	TopK          int     // 0 means DefaultTopK
	MinSimilarity float64 // only neighbors strictly above this are kept
	Workers       int     // 0 means GOMAXPROCS
}

// Query returns the topK rows most similar to q with similarity strictly
// above floor, ordered by similarity descending and then by row ascending.
// A zero query vector, or one of the wrong kind, matches nothing.
func (idx *Index) Query(q embedding.Vector, topK int, floor float64) []Neighbor {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if q.Kind != idx.Kind || q.IsZero() {
		return nil
	}
	q = q.Normalize()

	top := &neighborHeap{}
	offer := func(row int, sim float64) {
		// float32 storage can push a unit dot product just past 1.
		sim = math.Max(-1, math.Min(1, sim))
		if sim <= floor {
			return
		}
		n := Neighbor{ID: idx.ids[row], Row: row, Similarity: sim}
		if top.Len() < topK {
			heap.Push(top, n)
			return
		}
		if better(n, (*top)[0]) {
			(*top)[0] = n
			heap.Fix(top, 0)
		}
	}

	if idx.Kind == embedding.KindSparse {
		scores := make(map[int32]float64)
		for n, term := range q.Sparse.Indices {
			w := float64(q.Sparse.Values[n])
			for _, p := range idx.postings[term] {
				scores[p.row] += w * float64(p.weight)
			}
		}
		for row, sim := range scores {
			offer(int(row), sim)
		}
	} else {
		for row, v := range idx.vectors {
			if len(v.Dense) != len(q.Dense) || v.IsZero() {
				continue
			}
			offer(row, embedding.Dot(q, v))
		}
	}

	out := []Neighbor(*top)
	sort.Slice(out, func(i, j int) bool { return better(out[i], out[j]) })
	return out
}

// QueryBatch runs Query for every vector concurrently. results[i] belongs to
// queries[i], so the output does not depend on scheduling.
func (idx *Index) QueryBatch(queries []embedding.Vector, opts QueryOptions) [][]Neighbor {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([][]Neighbor, len(queries))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, q := range queries {
		g.Go(func() error {
			results[i] = idx.Query(q, opts.TopK, opts.MinSimilarity)
			return nil
		})
	}
	g.Wait()
	return results
}

// better orders neighbors by similarity descending, then row ascending.
func better(a, b Neighbor) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	return a.Row < b.Row
}

// neighborHeap keeps the worst kept neighbor at the root.
type neighborHeap []Neighbor

func (h neighborHeap) Len() int           { return len(h) }
func (h neighborHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h neighborHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *neighborHeap) Push(x any)        { *h = append(*h, x.(Neighbor)) }
func (h *neighborHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}
