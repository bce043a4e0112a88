// Package recommend merges per-query neighbor lists into one ranked list of
// suggestions.
package recommend

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/matsen/refy/internal/catalog"
	"github.com/matsen/refy/internal/logging"
	"github.com/matsen/refy/internal/paper"
	"github.com/matsen/refy/internal/similarity"
)

// DefaultSuggestions is the number of suggestions returned when N is unset.
const DefaultSuggestions = 20

// NoMatchesMessage is the notice shown when nothing survives filtering.
const NoMatchesMessage = "no matches"

// Reasons recorded in NoSignalWarning.
const (
	ReasonEmptyText   = "empty abstract"
	ReasonZeroVector  = "abstract has no words known to the model"
	ReasonNoNeighbors = "no catalog paper above the similarity floor"
)

// QueryResult is the neighbor list of one query paper.
type QueryResult struct {
	Index     int    // position of the query paper
	ID        string // query paper ID, if any
	Neighbors []similarity.Neighbor

	// NoSignal explains why Neighbors is empty, when known.
	NoSignal string
}

// Options controls Aggregate.
type Options struct {
	N    int // suggestions to return; 0 means DefaultSuggestions
	TopK int // per-query list length used for scoring; 0 means similarity.DefaultTopK

	// Since and To bound the publication year, inclusive. Zero leaves that
	// side unbounded.
	Since int
	To    int
}

// Aggregator scores candidates across query papers.
type Aggregator struct {
	policy Policy
	logger zerolog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithPolicy sets the rank scoring policy.
func WithPolicy(p Policy) Option {
	return func(a *Aggregator) {
		a.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = l
	}
}

// NewAggregator creates an aggregator using the Linear policy by default.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{policy: Linear{}, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.Component(a.logger, "recommend")
	return a
}

// Policy returns the scoring policy in use.
func (a *Aggregator) Policy() Policy {
	return a.policy
}

type candidate struct {
	row    int
	paper  paper.Paper
	points float64
}

// Scored holds ranked candidates before year filtering and truncation.
type Scored struct {
	suggestions []Suggestion
	warnings    []NoSignalWarning
	queriesUsed int
	candidates  int
}

// Len returns the number of candidates still held.
func (s *Scored) Len() int {
	return len(s.suggestions)
}

// Warnings returns the query papers that contributed nothing.
func (s *Scored) Warnings() []NoSignalWarning {
	return s.warnings
}

// Aggregate turns per-query neighbor lists into ranked suggestions. It is
// Score followed by Filter and Rank.
//
// lib may be nil, in which case no library de-duplication happens.
func (a *Aggregator) Aggregate(cat *catalog.Catalog, results []QueryResult, lib *paper.Library, opts Options) *Result {
	scored := a.Score(cat, results, lib, opts.TopK)
	return a.Rank(a.Filter(scored, opts.Since, opts.To), opts.N)
}

// Score awards points to every candidate.
//
// Within each list, neighbors already in lib (by normalized title or DOI) are
// dropped and repeated IDs keep their first occurrence; the survivors earn
// Policy points by rank. A candidate's score is its total points divided by
// the most points every contributing query could have given, so scores lie in
// (0, 1]. Candidates sharing a normalized title collapse to the best one.
// Query papers with an empty list are recorded as NoSignalWarning and do not
// count as contributing.
func (a *Aggregator) Score(cat *catalog.Catalog, results []QueryResult, lib *paper.Library, topK int) *Scored {
	if topK <= 0 {
		topK = similarity.DefaultTopK
	}

	out := &Scored{}
	byID := make(map[string]*candidate)
	for _, qr := range results {
		if len(qr.Neighbors) == 0 {
			reason := qr.NoSignal
			if reason == "" {
				reason = ReasonNoNeighbors
			}
			w := NoSignalWarning{QueryIndex: qr.Index, QueryID: qr.ID, Reason: reason}
			out.warnings = append(out.warnings, w)
			a.logger.Warn().
				Int("query_index", w.QueryIndex).
				Str("query_id", w.QueryID).
				Str("reason", w.Reason).
				Msg("query paper has no signal, skipping")
			continue
		}
		out.queriesUsed++

		seen := make(map[string]bool, len(qr.Neighbors))
		rank := 0
		for _, n := range qr.Neighbors {
			if rank >= topK {
				break
			}
			if seen[n.ID] {
				continue
			}
			seen[n.ID] = true

			entry, row, ok := cat.Lookup(n.ID)
			if !ok || lib.Contains(entry.Paper) {
				continue
			}

			c, ok := byID[n.ID]
			if !ok {
				c = &candidate{row: row, paper: entry.Paper}
				byID[n.ID] = c
			}
			c.points += a.policy.Points(rank, topK)
			rank++
		}
	}
	if out.queriesUsed == 0 {
		return out
	}

	maxPoints := a.policy.Points(0, topK) * float64(out.queriesUsed)
	scored := make([]Suggestion, 0, len(byID))
	for _, c := range byID {
		if c.points <= 0 {
			continue
		}
		scored = append(scored, Suggestion{Score: c.points / maxPoints, Paper: c.paper, Row: c.row})
	}
	sortSuggestions(scored)
	out.suggestions = collapseTitles(scored)
	out.candidates = len(out.suggestions)
	return out
}

// Filter keeps candidates published in [since, to]. Zero leaves that side
// unbounded.
func (a *Aggregator) Filter(s *Scored, since, to int) *Scored {
	out := *s
	out.suggestions = make([]Suggestion, 0, len(s.suggestions))
	for _, sug := range s.suggestions {
		if inYearRange(sug.Paper.Year, since, to) {
			out.suggestions = append(out.suggestions, sug)
		}
	}
	return &out
}

// Rank orders candidates by score descending and catalog row ascending,
// keeps the first n and numbers them from 1. A non-positive n means
// DefaultSuggestions. An empty outcome carries an EmptyResultNotice.
func (a *Aggregator) Rank(s *Scored, n int) *Result {
	if n <= 0 {
		n = DefaultSuggestions
	}

	ranked := make([]Suggestion, len(s.suggestions))
	copy(ranked, s.suggestions)
	sortSuggestions(ranked)
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	res := &Result{
		Suggestions: ranked,
		Warnings:    s.warnings,
		Candidates:  s.candidates,
		QueriesUsed: s.queriesUsed,
	}
	if len(ranked) == 0 {
		res.Notice = &EmptyResultNotice{Message: NoMatchesMessage}
	}
	a.logger.Debug().
		Int("queries_used", res.QueriesUsed).
		Int("candidates", res.Candidates).
		Int("suggestions", len(ranked)).
		Msg("ranked suggestions")
	return res
}

func sortSuggestions(s []Suggestion) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Score != s[j].Score {
			return s[i].Score > s[j].Score
		}
		return s[i].Row < s[j].Row
	})
}

// collapseTitles keeps the first suggestion for each normalized title; s must
// already be ranked.
func collapseTitles(s []Suggestion) []Suggestion {
	seen := make(map[string]bool, len(s))
	out := s[:0]
	for _, sug := range s {
		if t := paper.NormalizeTitle(sug.Paper.Title); t != "" {
			if seen[t] {
				continue
			}
			seen[t] = true
		}
		out = append(out, sug)
	}
	return out
}

func inYearRange(year, since, to int) bool {
	if since != 0 && year < since {
		return false
	}
	if to != 0 && year > to {
		return false
	}
	return true
}
