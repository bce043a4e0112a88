package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/refy/internal/catalog"
	"github.com/matsen/refy/internal/embedding"
	"github.com/matsen/refy/internal/logging"
	"github.com/matsen/refy/internal/pipeline"
	"github.com/matsen/refy/internal/progress"
	"github.com/matsen/refy/internal/recommend"
	"github.com/matsen/refy/internal/similarity"
	"github.com/matsen/refy/internal/storage"
)

// sampleSeed fixes catalog down-sampling so that model fitting, index
// building and querying all see the same rows.
const sampleSeed = 0x7265667900000001

// resolveCatalogPath returns the --catalog flag or the configured database.
func resolveCatalogPath() string {
	if catalogPath != "" {
		return catalogPath
	}
	return cfg.CatalogDBPath()
}

// openCatalog loads the catalog and applies the configured down-sampling.
func openCatalog() (*catalog.Catalog, error) {
	path := resolveCatalogPath()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s (run 'refy catalog import' first)", errCatalogNotFound, path)
		}
		return nil, fmt.Errorf("checking catalog: %w", err)
	}

	var cat *catalog.Catalog
	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		c, err := storage.LoadCatalogJSONL(path, storage.Filter{})
		if err != nil {
			return nil, err
		}
		cat = c
	} else {
		db, err := storage.OpenDB(path)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		c, err := db.LoadCatalog()
		if err != nil {
			return nil, fmt.Errorf("loading catalog: %w", err)
		}
		cat = c
	}

	full := cat.Len()
	cat = cat.Sample(cfg.SampleSize, sampleSeed)
	catLogger := logging.Component(logger, "catalog")
	catLogger.Debug().
		Str("path", path).
		Int("rows", full).
		Int("sampled", cat.Len()).
		Int("duplicates_dropped", cat.DuplicatesDropped()).
		Msg("catalog loaded")
	return cat, nil
}

// newOllama builds the Ollama client from config.
func newOllama(model string) *embedding.Ollama {
	return embedding.NewOllama(
		embedding.WithBaseURL(cfg.OllamaURL),
		embedding.WithModel(model),
		embedding.WithDimensions(cfg.OllamaDimensions),
		embedding.WithRateLimit(cfg.OllamaRate),
		embedding.WithBatchSize(cfg.OllamaBatch),
	)
}

// modelForIndex returns the model an index was built with. For remote
// indexes the query texts are embedded here, up front, so the pipeline
// itself never waits on the network.
func modelForIndex(ctx context.Context, idx *similarity.Index, queryTexts []string) (embedding.Model, error) {
	if name, ok := strings.CutPrefix(idx.ModelName, embedding.RemotePrefix); ok {
		pre, err := embedding.Precompute(ctx, embedding.NewRemote(newOllama(name)), queryTexts)
		if err != nil {
			return nil, fmt.Errorf("embedding query papers with Ollama: %w", err)
		}
		embLogger := logging.Component(logger, "embedding")
		embLogger.Debug().
			Str("model", name).
			Int("texts", pre.Len()).
			Msg("query papers embedded")
		return pre, nil
	}
	m, _, err := embedding.LoadModel(cfg.ModelFilePath())
	if err != nil {
		return nil, err
	}
	return m, nil
}

// loadIndex reads the configured similarity index.
func loadIndex() (*similarity.Index, error) {
	idx, err := similarity.Load(cfg.IndexFilePath())
	if err != nil {
		if errors.Is(err, similarity.ErrIndexNotFound) {
			return nil, fmt.Errorf("%w: %s (run 'refy index build' first)", err, cfg.IndexFilePath())
		}
		return nil, err
	}
	return idx, nil
}

// loadPipeline wires catalog, model and index into a query pipeline.
// queryTexts are the texts the caller will query with.
func loadPipeline(ctx context.Context, queryTexts []string) (*pipeline.Pipeline, error) {
	cat, err := openCatalog()
	if err != nil {
		return nil, err
	}
	idx, err := loadIndex()
	if err != nil {
		return nil, err
	}
	model, err := modelForIndex(ctx, idx, queryTexts)
	if err != nil {
		return nil, err
	}
	if err := idx.Verify(cat, model.Name()); err != nil {
		return nil, err
	}

	policy, err := recommend.PolicyByName(cfg.Scoring)
	if err != nil {
		return nil, err
	}
	agg := recommend.NewAggregator(recommend.WithPolicy(policy), recommend.WithLogger(logger))

	stages := logging.Component(logger, "pipeline")
	return pipeline.New(cat, model, idx,
		pipeline.WithLogger(logger),
		pipeline.WithAggregator(agg),
		pipeline.WithWorkers(cfg.Workers),
		pipeline.WithObserver(progress.Func(func(task string, current, total int) {
			stages.Debug().Str("stage", task).Int("step", current).Int("of", total).Msg("stage entered")
		})),
	)
}

// progressReporter draws a progress bar on stderr in human mode.
func progressReporter(cmd *cobra.Command) progress.Reporter {
	if noProgress || !humanOutput {
		return nil
	}
	w := cmd.ErrOrStderr()
	return progress.Func(func(task string, current, total int) {
		fmt.Fprintf(w, "\r%s", progressBar(task, current, total))
		if current >= total {
			fmt.Fprintln(w)
		}
	})
}

// writeResult prints v as JSON, or calls human in human mode.
func writeResult(w io.Writer, v interface{}, human func(io.Writer)) error {
	if humanOutput {
		human(w)
		return nil
	}
	return outputJSON(w, v)
}
