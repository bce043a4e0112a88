package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/refy/internal/bibtex"
	"github.com/matsen/refy/internal/paper"
	"github.com/matsen/refy/internal/pipeline"
)

// queryFlags are shared by suggest and query.
type queryFlags struct {
	n             int
	topK          int
	minSimilarity float64
	since         int
	to            int
	save          string
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.n, "number", "n", 0, "Number of suggestions (default from config)")
	cmd.Flags().IntVar(&f.topK, "top-k", 0, "Neighbors considered per query paper (default from config)")
	cmd.Flags().Float64Var(&f.minSimilarity, "min-similarity", -2, "Similarity floor; neighbors must score above it (default from config)")
	cmd.Flags().IntVar(&f.since, "since", 0, "Only suggest papers published in or after this year")
	cmd.Flags().IntVar(&f.to, "to", 0, "Only suggest papers published in or before this year")
	cmd.Flags().StringVar(&f.save, "save", "", "Also write the suggestions to this CSV file")
}

// output prints resp and, with --save, writes it to the CSV file.
func (f *queryFlags) output(cmd *cobra.Command, resp SuggestResponse) error {
	if f.save != "" {
		if err := saveSuggestionsCSV(f.save, resp.Suggestions); err != nil {
			return err
		}
		logger.Info().Str("path", f.save).Int("suggestions", len(resp.Suggestions)).Msg("suggestions saved")
	}
	return writeSuggestions(cmd.OutOrStdout(), resp)
}

// query merges the flags over the configured defaults.
func (f *queryFlags) query() (pipeline.Query, error) {
	q := pipeline.Query{
		N:             cfg.Suggestions,
		TopK:          cfg.TopK,
		MinSimilarity: cfg.MinSimilarity,
		Since:         f.since,
		To:            f.to,
	}
	if f.n > 0 {
		q.N = f.n
	}
	if f.topK > 0 {
		q.TopK = f.topK
	}
	if f.minSimilarity >= -1 {
		q.MinSimilarity = f.minSimilarity
	}
	if f.since != 0 && f.to != 0 && f.since > f.to {
		return q, fmt.Errorf("--since %d is after --to %d", f.since, f.to)
	}
	return q, nil
}

var suggestFlags queryFlags

func init() {
	rootCmd.AddCommand(suggestCmd)
	suggestFlags.register(suggestCmd)
}

var suggestCmd = &cobra.Command{
	Use:   "suggest <library.bib>",
	Short: "Suggest catalog papers related to a BibTeX library",
	Long: `Suggest catalog papers related to the papers in a BibTeX library.

Each library paper with an abstract queries the catalog for its nearest
neighbors; papers appearing near many library papers rank highest. Papers
already in the library (matched by title or DOI) are never suggested.

Requires an index built with 'refy index build'.`,
	Args: cobra.ExactArgs(1),
	RunE: runSuggest,
}

func runSuggest(cmd *cobra.Command, args []string) error {
	q, err := suggestFlags.query()
	if err != nil {
		return err
	}

	lib, err := bibtex.ParseFile(args[0])
	if err != nil {
		return err
	}
	logger.Info().Str("library", args[0]).Int("papers", lib.Len()).Msg("library loaded")

	p, err := loadPipeline(cmd.Context(), libraryAbstracts(lib))
	if err != nil {
		return err
	}

	res, err := p.SuggestForLibrary(cmd.Context(), lib, q)
	if err != nil {
		return fmt.Errorf("suggesting papers: %w", err)
	}
	return suggestFlags.output(cmd, newSuggestResponse(res))
}

// libraryAbstracts returns the texts SuggestForLibrary will embed.
func libraryAbstracts(lib *paper.Library) []string {
	texts := make([]string, 0, lib.Len())
	for _, e := range lib.Entries() {
		texts = append(texts, e.Abstract)
	}
	return texts
}
