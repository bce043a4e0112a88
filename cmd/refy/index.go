package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/matsen/refy/internal/embedding"
	"github.com/matsen/refy/internal/similarity"
)

var indexUseOllama bool

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexCheckCmd)

	indexBuildCmd.Flags().BoolVar(&indexUseOllama, "ollama", false, "Embed with the configured Ollama model instead of the fitted model")
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the catalog similarity index",
	Long:  `Commands for building and checking the pre-embedded catalog index.`,
}

// IndexBuildResult is the response for index build command.
type IndexBuildResult struct {
	Status          string  `json:"status"`
	Rows            int     `json:"rows"`
	ZeroVectors     int     `json:"zero_vectors"`
	DurationSeconds float64 `json:"duration_seconds"`
	Model           string  `json:"model"`
	IndexSizeBytes  int64   `json:"index_size_bytes"`
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build or rebuild the similarity index",
	Long: `Embed every catalog abstract and save the vectors for querying.

By default the model from 'refy model fit' is used. With --ollama, abstracts
are embedded by the configured Ollama model; Ollama must be running with
that model pulled.`,
	Args: cobra.NoArgs,
	RunE: runIndexBuild,
}

func runIndexBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var model embedding.Model
	if indexUseOllama {
		client := newOllama(cfg.OllamaModel)
		if err := client.Check(ctx); err != nil {
			if errors.Is(err, embedding.ErrOllamaUnavailable) {
				return fmt.Errorf("%w\n\nStart Ollama with 'ollama serve' or install from https://ollama.ai", err)
			}
			return err
		}
		model = embedding.NewRemote(client)
	} else {
		m, _, err := embedding.LoadModel(cfg.ModelFilePath())
		if err != nil {
			if errors.Is(err, embedding.ErrModelNotFound) {
				return fmt.Errorf("%w\n\nRun 'refy model fit' first, or pass --ollama.", err)
			}
			return err
		}
		model = m
	}

	cat, err := openCatalog()
	if err != nil {
		return err
	}

	idx, stats, err := similarity.Build(ctx, cat, model, similarity.BuildOptions{
		Workers:   cfg.Workers,
		BatchSize: cfg.OllamaBatch,
		Progress:  progressReporter(cmd),
		Logger:    &logger,
	})
	if err != nil {
		return fmt.Errorf("building index: %w", err)
	}

	path := cfg.IndexFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := idx.Save(path); err != nil {
		return fmt.Errorf("saving index: %w", err)
	}
	size, err := similarity.Size(path)
	if err != nil {
		size = 0 // Non-fatal
	}

	result := IndexBuildResult{
		Status:          "complete",
		Rows:            stats.Rows,
		ZeroVectors:     stats.ZeroVectors,
		DurationSeconds: stats.Duration.Seconds(),
		Model:           model.Name(),
		IndexSizeBytes:  size,
	}
	return writeResult(cmd.OutOrStdout(), result, func(w io.Writer) {
		fmt.Fprintf(w, "\nBuild complete:\n")
		fmt.Fprintf(w, "  Papers indexed: %d\n", result.Rows)
		fmt.Fprintf(w, "  Empty vectors: %d (no known words)\n", result.ZeroVectors)
		fmt.Fprintf(w, "  Time elapsed: %s\n", formatDuration(stats.Duration))
		fmt.Fprintf(w, "  Index size: %s\n", formatBytes(size))
		fmt.Fprintf(w, "  Model: %s\n", result.Model)
	})
}

// IndexCheckResult is the response for index check command.
type IndexCheckResult struct {
	Status         string `json:"status"`
	IndexRows      int    `json:"index_rows"`
	CatalogRows    int    `json:"catalog_rows"`
	ZeroVectors    int    `json:"zero_vectors"`
	Model          string `json:"model"`
	IndexCreated   string `json:"index_created"`
	IndexSizeBytes int64  `json:"index_size_bytes"`
	Recommendation string `json:"recommendation,omitempty"`
}

var indexCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the index matches the catalog",
	Args:  cobra.NoArgs,
	RunE:  runIndexCheck,
}

func runIndexCheck(cmd *cobra.Command, args []string) error {
	idx, err := loadIndex()
	if err != nil {
		return err
	}
	cat, err := openCatalog()
	if err != nil {
		return err
	}
	size, _ := similarity.Size(cfg.IndexFilePath())

	result := IndexCheckResult{
		Status:         "ok",
		IndexRows:      idx.Len(),
		CatalogRows:    cat.Len(),
		ZeroVectors:    idx.ZeroVectors(),
		Model:          idx.ModelName,
		IndexCreated:   idx.CreatedAt.Format(time.RFC3339),
		IndexSizeBytes: size,
	}
	if err := idx.Verify(cat, idx.ModelName); err != nil {
		result.Status = "stale"
		result.Recommendation = "Run 'refy index build' to rebuild the index."
	}

	return writeResult(cmd.OutOrStdout(), result, func(w io.Writer) {
		fmt.Fprintf(w, "Index status: %s\n", result.Status)
		fmt.Fprintf(w, "  Rows: %d indexed, %d in catalog\n", result.IndexRows, result.CatalogRows)
		fmt.Fprintf(w, "  Empty vectors: %d\n", result.ZeroVectors)
		fmt.Fprintf(w, "  Model: %s\n", result.Model)
		fmt.Fprintf(w, "  Created: %s\n", result.IndexCreated)
		fmt.Fprintf(w, "  Size: %s\n", formatBytes(result.IndexSizeBytes))
		if result.Recommendation != "" {
			fmt.Fprintf(w, "\n%s\n", result.Recommendation)
		}
	})
}
