package recommend

import "fmt"

// Policy assigns points to a neighbor by its rank within one query's list.
// Points must be positive and non-increasing in rank; Points(0, topK) is the
// maximum any single query can award and is used to normalize scores.
type Policy interface {
	Points(rank, topK int) float64
	Name() string
}

// Linear awards topK - rank points: the best neighbor gets topK, the last
// one gets 1.
type Linear struct{}

// Points implements Policy.
func (Linear) Points(rank, topK int) float64 {
	if rank >= topK {
		return 0
	}
	return float64(topK - rank)
}

// Name implements Policy.
func (Linear) Name() string { return "linear" }

// Reciprocal awards 1/(rank+1) points, favoring the top of each list more
// sharply than Linear.
type Reciprocal struct{}

// Points implements Policy.
func (Reciprocal) Points(rank, topK int) float64 {
	if rank >= topK {
		return 0
	}
	return 1 / float64(rank+1)
}

// Name implements Policy.
func (Reciprocal) Name() string { return "reciprocal" }

// PolicyByName returns the named scoring policy.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "linear":
		return Linear{}, nil
	case "reciprocal":
		return Reciprocal{}, nil
	default:
		return nil, fmt.Errorf("unknown scoring policy %q", name)
	}
}
