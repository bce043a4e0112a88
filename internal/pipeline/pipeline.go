// Package pipeline runs recommendation queries end to end: embed the query
// papers, look up their catalog neighbors, aggregate, filter, rank.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/matsen/refy/internal/catalog"
	"github.com/matsen/refy/internal/embedding"
	"github.com/matsen/refy/internal/logging"
	"github.com/matsen/refy/internal/paper"
	"github.com/matsen/refy/internal/progress"
	"github.com/matsen/refy/internal/recommend"
	"github.com/matsen/refy/internal/similarity"
)

// Modes reported in Result.
const (
	ModeLibrary = "library"
	ModeText    = "text"

	// ModeAuthor results come from recommend.Aggregator.ByAuthor and never
	// run through a Pipeline.
	ModeAuthor = "author"
)

// Query holds per-run parameters.
type Query struct {
	N             int     // suggestions to return; 0 means recommend.DefaultSuggestions
	TopK          int     // neighbors per query paper; 0 means similarity.DefaultTopK
	MinSimilarity float64 // neighbors must score strictly above this
	Since         int     // inclusive lower year bound, 0 for none
	To            int     // inclusive upper year bound, 0 for none
}

// Result is the outcome of a run.
type Result struct {
	recommend.Result
	Mode   string  `json:"mode"`
	Model  string  `json:"model"`
	States []State `json:"-"`
}

// Pipeline wires a catalog, a model and the catalog's similarity index.
// It holds no per-run state, so one Pipeline may serve concurrent runs.
type Pipeline struct {
	cat      *catalog.Catalog
	model    embedding.Model
	idx      *similarity.Index
	agg      *recommend.Aggregator
	logger   zerolog.Logger
	workers  int
	observer progress.Reporter
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithAggregator replaces the default linear-policy aggregator.
func WithAggregator(a *recommend.Aggregator) Option {
	return func(p *Pipeline) {
		p.agg = a
	}
}

// WithWorkers bounds the per-query-paper worker pool. Zero means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		p.workers = n
	}
}

// WithObserver receives a progress report as each run enters a state.
func WithObserver(r progress.Reporter) Option {
	return func(p *Pipeline) {
		p.observer = r
	}
}

// New validates that idx was built over cat with model and returns a
// pipeline. The index rows must be the catalog rows in the same order.
func New(cat *catalog.Catalog, model embedding.Model, idx *similarity.Index, opts ...Option) (*Pipeline, error) {
	if cat == nil || model == nil || idx == nil {
		return nil, errors.New("pipeline needs a catalog, a model and an index")
	}
	if idx.Kind != model.Kind() || idx.ModelName != model.Name() {
		return nil, fmt.Errorf("%w: index is %s/%s, model is %s/%s",
			similarity.ErrKindMismatch, idx.ModelName, idx.Kind, model.Name(), model.Kind())
	}
	if idx.Len() != cat.Len() {
		return nil, fmt.Errorf("%w: index has %d rows, catalog has %d", similarity.ErrStaleIndex, idx.Len(), cat.Len())
	}
	for row := 0; row < cat.Len(); row++ {
		if idx.ID(row) != cat.At(row).Paper.ID {
			return nil, fmt.Errorf("%w: row %d is %s in the index but %s in the catalog",
				similarity.ErrStaleIndex, row, idx.ID(row), cat.At(row).Paper.ID)
		}
	}

	p := &Pipeline{cat: cat, model: model, idx: idx, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.Component(p.logger, "pipeline")
	if p.agg == nil {
		p.agg = recommend.NewAggregator(recommend.WithLogger(p.logger))
	}
	if p.workers <= 0 {
		p.workers = runtime.GOMAXPROCS(0)
	}
	return p, nil
}

// queryPaper is one query input.
type queryPaper struct {
	id   string
	text string
}

// SuggestForLibrary recommends catalog papers for every paper in lib.
// Library papers are never suggested.
func (p *Pipeline) SuggestForLibrary(ctx context.Context, lib *paper.Library, q Query) (*Result, error) {
	if lib == nil || lib.Len() == 0 {
		return nil, paper.ErrEmptyLibrary
	}
	queries := make([]queryPaper, lib.Len())
	for i, e := range lib.Entries() {
		queries[i] = queryPaper{id: e.Paper.ID, text: e.Abstract}
	}
	return p.run(ctx, ModeLibrary, queries, lib, q)
}

// SuggestForText recommends catalog papers for a free-text query. There is no
// library to de-duplicate against, and the single text is the only query.
func (p *Pipeline) SuggestForText(ctx context.Context, text string, q Query) (*Result, error) {
	return p.run(ctx, ModeText, []queryPaper{{text: text}}, nil, q)
}

func (p *Pipeline) run(ctx context.Context, mode string, queries []queryPaper, lib *paper.Library, q Query) (*Result, error) {
	r := newRun(func(s State) {
		progress.Report(p.observer, "pipeline: "+s.String(), int(s), int(StateDone))
	})
	logger := p.logger.With().Str("mode", mode).Logger()
	logger.Debug().Int("queries", len(queries)).Int("catalog", p.cat.Len()).Msg("starting run")

	vectors, silent, err := p.embed(ctx, queries)
	if err != nil {
		return nil, err
	}
	if err := r.advance(StateEmbedded); err != nil {
		return nil, err
	}

	neighbors := p.idx.QueryBatch(vectors, similarity.QueryOptions{
		TopK:          q.TopK,
		MinSimilarity: q.MinSimilarity,
		Workers:       p.workers,
	})
	results := make([]recommend.QueryResult, len(queries))
	for i, qp := range queries {
		results[i] = recommend.QueryResult{Index: i, ID: qp.id, Neighbors: neighbors[i], NoSignal: silent[i]}
	}
	if err := r.advance(StateScored); err != nil {
		return nil, err
	}

	scored := p.agg.Score(p.cat, results, lib, q.TopK)
	if err := r.advance(StateAggregated); err != nil {
		return nil, err
	}

	scored = p.agg.Filter(scored, q.Since, q.To)
	if err := r.advance(StateFiltered); err != nil {
		return nil, err
	}

	ranked := p.agg.Rank(scored, q.N)
	if err := r.advance(StateRanked); err != nil {
		return nil, err
	}

	if err := r.advance(StateDone); err != nil {
		return nil, err
	}
	logger.Info().
		Int("suggestions", len(ranked.Suggestions)).
		Int("no_signal", len(ranked.Warnings)).
		Msg("run complete")

	return &Result{Result: *ranked, Mode: mode, Model: p.model.Name(), States: r.trail}, nil
}

// embed embeds every query concurrently. silent[i] is set when query i
// carries no signal; its vector is then the zero value.
func (p *Pipeline) embed(ctx context.Context, queries []queryPaper) ([]embedding.Vector, []string, error) {
	vectors := make([]embedding.Vector, len(queries))
	silent := make([]string, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, qp := range queries {
		if strings.TrimSpace(qp.text) == "" {
			silent[i] = recommend.ReasonEmptyText
			continue
		}
		g.Go(func() error {
			v, err := embedding.EmbedText(gctx, p.model, qp.text)
			if err != nil {
				return fmt.Errorf("embedding query paper %d (%s): %w", i, qp.id, err)
			}
			if v.IsZero() {
				silent[i] = recommend.ReasonZeroVector
				return nil
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return vectors, silent, nil
}
