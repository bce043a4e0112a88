package similarity

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/matsen/refy/internal/catalog"
	"github.com/matsen/refy/internal/embedding"
	"github.com/matsen/refy/internal/logging"
	"github.com/matsen/refy/internal/progress"
)

// BuildOptions configures Build.
type BuildOptions struct {
	Workers   int // 0 means GOMAXPROCS
	BatchSize int // abstracts per call for batch models; 0 means embedding.DefaultBatchSize
	Progress  progress.Reporter
	Logger    *zerolog.Logger
}

// BuildStats summarizes an index build.
type BuildStats struct {
	Rows        int           `json:"rows"`
	ZeroVectors int           `json:"zero_vectors"`
	Duration    time.Duration `json:"duration"`
}

// Build embeds every catalog abstract with model and returns the index.
// Batch models get the abstracts in chunks of BatchSize; other models embed
// rows in parallel. The index keeps catalog row order.
func Build(ctx context.Context, cat *catalog.Catalog, model embedding.Model, opts BuildOptions) (*Index, *BuildStats, error) {
	start := time.Now()
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logger = logging.Component(logger, "similarity")

	var vectors []embedding.Vector
	var err error
	if be, ok := model.(embedding.BatchEmbedder); ok {
		vectors, err = embedBatched(ctx, cat, be, opts)
	} else {
		vectors, err = embedParallel(ctx, cat, model, opts)
	}
	if err != nil {
		return nil, nil, err
	}

	idx, err := FromVectors(cat.IDs(), vectors, model.Kind(), model.Name())
	if err != nil {
		return nil, nil, err
	}
	idx.Fingerprint = cat.Fingerprint()

	stats := &BuildStats{Rows: cat.Len(), ZeroVectors: idx.ZeroVectors(), Duration: time.Since(start)}
	logger.Info().
		Int("rows", stats.Rows).
		Int("zero_vectors", stats.ZeroVectors).
		Str("model", model.Name()).
		Dur("duration", stats.Duration).
		Msg("built similarity index")
	return idx, stats, nil
}

// embedBatched sends the abstracts in row order, one chunk per call.
func embedBatched(ctx context.Context, cat *catalog.Catalog, be embedding.BatchEmbedder, opts BuildOptions) ([]embedding.Vector, error) {
	size := opts.BatchSize
	if size <= 0 {
		size = embedding.DefaultBatchSize
	}
	total := cat.Len()
	abstracts := make([]string, total)
	for row := range abstracts {
		abstracts[row] = cat.At(row).Abstract
	}
	vectors := make([]embedding.Vector, 0, total)
	for start := 0; start < total; start += size {
		end := min(start+size, total)
		chunk, err := be.EmbedBatch(ctx, abstracts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding papers %s to %s: %w", cat.At(start).Paper.ID, cat.At(end-1).Paper.ID, err)
		}
		if len(chunk) != end-start {
			return nil, fmt.Errorf("model returned %d vectors for %d papers", len(chunk), end-start)
		}
		vectors = append(vectors, chunk...)
		progress.Report(opts.Progress, "embedding catalog", end, total)
	}
	return vectors, nil
}

// embedParallel embeds one row per task on a bounded errgroup.
func embedParallel(ctx context.Context, cat *catalog.Catalog, model embedding.Model, opts BuildOptions) ([]embedding.Vector, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	total := cat.Len()
	vectors := make([]embedding.Vector, total)

	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for row := 0; row < total; row++ {
		g.Go(func() error {
			e := cat.At(row)
			v, err := embedding.EmbedText(gctx, model, e.Abstract)
			if err != nil {
				return fmt.Errorf("embedding paper %s: %w", e.Paper.ID, err)
			}
			vectors[row] = v

			mu.Lock()
			done++
			progress.Report(opts.Progress, "embedding catalog", done, total)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Verify checks that idx was built from cat with a model named modelName.
func (idx *Index) Verify(cat *catalog.Catalog, modelName string) error {
	if idx.ModelName != modelName {
		return fmt.Errorf("%w: index has %q, model is %q", ErrKindMismatch, idx.ModelName, modelName)
	}
	if idx.Fingerprint != cat.Fingerprint() {
		return fmt.Errorf("%w (rebuild with 'refy index build')", ErrStaleIndex)
	}
	return nil
}
