package recommend

import (
	"github.com/matsen/refy/internal/catalog"
)

// ByAuthor suggests the catalog papers written by any of names. Every match
// scores 1, so ranking falls back to catalog row order. Year bounds and N
// apply as in Aggregate; TopK is ignored.
func (a *Aggregator) ByAuthor(cat *catalog.Catalog, names []string, opts Options) *Result {
	matches := cat.ByAuthor(names...)
	suggestions := make([]Suggestion, 0, len(matches))
	for _, e := range matches {
		_, row, _ := cat.Lookup(e.Paper.ID)
		suggestions = append(suggestions, Suggestion{Score: 1, Paper: e.Paper, Row: row})
	}
	suggestions = collapseTitles(suggestions)

	a.logger.Debug().
		Strs("authors", names).
		Int("matches", len(suggestions)).
		Msg("matched catalog authors")

	scored := &Scored{suggestions: suggestions, queriesUsed: len(names), candidates: len(suggestions)}
	return a.Rank(a.Filter(scored, opts.Since, opts.To), opts.N)
}
