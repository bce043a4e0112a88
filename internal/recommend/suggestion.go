package recommend

import (
	"fmt"

	"github.com/matsen/refy/internal/paper"
)

// Suggestion is a recommended catalog paper.
type Suggestion struct {
	Rank  int         `json:"rank"` // 1-based
	Score float64     `json:"score"`
	Paper paper.Paper `json:"paper"`
	Row   int         `json:"-"` // catalog row, the tie-breaker
}

// Record is the flat form handed to presentation.
type Record struct {
	Rank     int     `json:"rank"`
	Score    float64 `json:"score"`
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Year     int     `json:"year"`
	DOIOrURL string  `json:"doi_or_url,omitempty"`
}

// Record flattens the suggestion.
func (s Suggestion) Record() Record {
	return Record{
		Rank:     s.Rank,
		Score:    s.Score,
		ID:       s.Paper.ID,
		Title:    s.Paper.Title,
		Year:     s.Paper.Year,
		DOIOrURL: s.Paper.Link(),
	}
}

// NoSignalWarning records a query paper that contributed nothing because it
// embedded to the zero vector or matched no catalog paper.
type NoSignalWarning struct {
	QueryIndex int    `json:"query_index"`
	QueryID    string `json:"query_id,omitempty"`
	Reason     string `json:"reason"`
}

func (w NoSignalWarning) String() string {
	return fmt.Sprintf("query %d (%s): %s", w.QueryIndex, w.QueryID, w.Reason)
}

// EmptyResultNotice tells presentation that nothing matched.
type EmptyResultNotice struct {
	Message string `json:"message"`
}

// Result is the outcome of an aggregation.
type Result struct {
	Suggestions []Suggestion       `json:"suggestions"`
	Warnings    []NoSignalWarning  `json:"warnings,omitempty"`
	Notice      *EmptyResultNotice `json:"notice,omitempty"`

	// Candidates is the number of distinct papers with a non-zero score
	// before year filtering and truncation.
	Candidates int `json:"candidates"`

	// QueriesUsed is the number of query papers that contributed neighbors.
	QueriesUsed int `json:"queries_used"`
}

// Records flattens all suggestions in rank order.
func (r *Result) Records() []Record {
	out := make([]Record, len(r.Suggestions))
	for i, s := range r.Suggestions {
		out[i] = s.Record()
	}
	return out
}
