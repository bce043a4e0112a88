package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/matsen/refy/internal/embedding"
)

var (
	fitKind       string
	fitVocabulary int
	fitDimensions int
	fitEpochs     int
	fitMinCount   int
	fitSeed       uint64
)

func init() {
	rootCmd.AddCommand(modelCmd)
	modelCmd.AddCommand(modelFitCmd)
	modelCmd.AddCommand(modelInfoCmd)

	modelFitCmd.Flags().StringVar(&fitKind, "kind", embedding.KindNameTFIDF, "Model kind: tfidf or doc2vec")
	modelFitCmd.Flags().IntVar(&fitVocabulary, "vocabulary", 0, "TF-IDF vocabulary bound (default from config)")
	modelFitCmd.Flags().IntVar(&fitDimensions, "dimensions", embedding.DefaultDoc2VecDimensions, "Doc2Vec vector size")
	modelFitCmd.Flags().IntVar(&fitEpochs, "epochs", embedding.DefaultDoc2VecEpochs, "Doc2Vec training epochs")
	modelFitCmd.Flags().IntVar(&fitMinCount, "min-count", embedding.DefaultMinCount, "Doc2Vec minimum word count")
	modelFitCmd.Flags().Uint64Var(&fitSeed, "seed", 1, "Doc2Vec random seed")
}

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Fit and inspect the embedding model",
}

// ModelFitResult is the response for model fit.
type ModelFitResult struct {
	Status          string  `json:"status"`
	Kind            string  `json:"kind"`
	Model           string  `json:"model"`
	Documents       int     `json:"documents"`
	DurationSeconds float64 `json:"duration_seconds"`
	Path            string  `json:"path"`
}

var modelFitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Fit an embedding model on the catalog abstracts",
	Long: `Fit an embedding model on the catalog abstracts and save it.

tfidf fits quickly and needs no training parameters. doc2vec trains dense
paragraph vectors and takes longer. Rebuild the index after refitting.`,
	Args: cobra.NoArgs,
	RunE: runModelFit,
}

func runModelFit(cmd *cobra.Command, args []string) error {
	cat, err := openCatalog()
	if err != nil {
		return err
	}
	corpus := embedding.Corpus(cat.Abstracts())

	start := time.Now()
	var model embedding.Model
	switch fitKind {
	case embedding.KindNameTFIDF:
		vocab := cfg.VocabularySize
		if fitVocabulary > 0 {
			vocab = fitVocabulary
		}
		model, err = embedding.FitTFIDF(corpus, embedding.TFIDFConfig{MaxVocabulary: vocab})
	case embedding.KindNameDoc2Vec:
		model, err = embedding.FitDoc2Vec(cmd.Context(), corpus, embedding.Doc2VecConfig{
			Dimensions: fitDimensions,
			Epochs:     fitEpochs,
			MinCount:   fitMinCount,
			Seed:       fitSeed,
		}, progressReporter(cmd))
	default:
		return fmt.Errorf("%w: %q (valid: %s, %s)", embedding.ErrUnknownKind, fitKind, embedding.KindNameTFIDF, embedding.KindNameDoc2Vec)
	}
	if err != nil {
		return fmt.Errorf("fitting %s model: %w", fitKind, err)
	}
	duration := time.Since(start)

	path := cfg.ModelFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := embedding.SaveModel(path, model); err != nil {
		return fmt.Errorf("saving model: %w", err)
	}
	logger.Info().Str("model", model.Name()).Int("documents", len(corpus)).Dur("duration", duration).Msg("model fitted")

	result := ModelFitResult{
		Status:          "complete",
		Kind:            fitKind,
		Model:           model.Name(),
		Documents:       len(corpus),
		DurationSeconds: duration.Seconds(),
		Path:            path,
	}
	return writeResult(cmd.OutOrStdout(), result, func(w io.Writer) {
		fmt.Fprintf(w, "Fitted %s on %d abstracts in %s\n", result.Model, result.Documents, formatDuration(duration))
		fmt.Fprintf(w, "  Saved to: %s\n", result.Path)
	})
}

var modelInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the fitted model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.ModelFilePath()
		_, info, err := embedding.LoadModel(path)
		if err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), info, func(w io.Writer) {
			fmt.Fprintf(w, "Model: %s (%s, format v%d)\n", info.Name, info.Kind, info.Version)
			fmt.Fprintf(w, "  Created: %s\n", info.CreatedAt.Format(time.RFC3339))
			fmt.Fprintf(w, "  Path: %s\n", path)
		})
	},
}
