package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/refy/internal/storage"
)

var (
	importFields   []string
	importKeywords []string
	importAppend   bool
)

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogImportCmd)
	catalogCmd.AddCommand(catalogInfoCmd)
	catalogCmd.AddCommand(catalogShowCmd)
	catalogCmd.AddCommand(catalogExportCmd)

	catalogImportCmd.Flags().StringSliceVar(&importFields, "field", nil, "Keep only papers in these fields of study (repeatable)")
	catalogImportCmd.Flags().StringSliceVar(&importKeywords, "keyword", nil, "Keep only papers whose abstract mentions one of these keywords (repeatable)")
	catalogImportCmd.Flags().BoolVar(&importAppend, "append", false, "Add to the existing catalog instead of replacing it")
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the paper catalog",
}

// CatalogImportResult is the response for catalog import.
type CatalogImportResult struct {
	Status     string `json:"status"`
	Source     string `json:"source"`
	Imported   int    `json:"imported"`
	Dropped    int    `json:"dropped"`
	Duplicates int    `json:"duplicates"`
	Total      int    `json:"total"`
	Path       string `json:"path"`
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <papers.jsonl>",
	Short: "Import catalog papers from a JSONL file",
	Long: `Import catalog papers from a JSONL file, one paper per line.

Papers without an abstract are dropped. --field and --keyword restrict the
import to a subject area. The catalog is replaced unless --append is given.
Refit the model and rebuild the index after importing.`,
	Args: cobra.ExactArgs(1),
	RunE: runCatalogImport,
}

func runCatalogImport(cmd *cobra.Command, args []string) error {
	source := args[0]
	if _, err := os.Stat(source); err != nil {
		return fmt.Errorf("%w: %s", errCatalogNotFound, source)
	}
	filter := storage.Filter{Fields: importFields, Keywords: importKeywords}

	path := resolveCatalogPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	db, err := storage.OpenDB(path)
	if err != nil {
		return err
	}
	defer db.Close()

	var stats storage.ImportStats
	if importAppend {
		records, err := storage.ReadCatalogJSONL(source)
		if err != nil {
			return err
		}
		stats, err = db.ImportRecords(records, filter, source)
		if err != nil {
			return err
		}
	} else {
		stats, err = db.RebuildFromJSONL(source, filter)
		if err != nil {
			return err
		}
	}
	total, err := db.Count()
	if err != nil {
		return err
	}
	logger.Info().
		Str("source", source).
		Int("imported", stats.Imported).
		Int("dropped", stats.Dropped).
		Int("duplicates", stats.Duplicates).
		Msg("catalog imported")

	result := CatalogImportResult{
		Status:     "complete",
		Source:     source,
		Imported:   stats.Imported,
		Dropped:    stats.Dropped,
		Duplicates: stats.Duplicates,
		Total:      total,
		Path:       path,
	}
	return writeResult(cmd.OutOrStdout(), result, func(w io.Writer) {
		fmt.Fprintf(w, "Imported %d papers from %s\n", result.Imported, result.Source)
		if result.Dropped > 0 {
			fmt.Fprintf(w, "  Dropped: %d (no abstract or filtered out)\n", result.Dropped)
		}
		if result.Duplicates > 0 {
			fmt.Fprintf(w, "  Duplicates skipped: %d\n", result.Duplicates)
		}
		fmt.Fprintf(w, "  Catalog size: %d\n", result.Total)
	})
}

// CatalogInfoResult is the response for catalog info.
type CatalogInfoResult struct {
	Path        string `json:"path"`
	Papers      int    `json:"papers"`
	Sampled     int    `json:"sampled"`
	Source      string `json:"source,omitempty"`
	ImportedAt  string `json:"imported_at,omitempty"`
	Fingerprint string `json:"fingerprint"`
}

var catalogInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show catalog statistics",
	Args:  cobra.NoArgs,
	RunE:  runCatalogInfo,
}

func runCatalogInfo(cmd *cobra.Command, args []string) error {
	cat, err := openCatalog()
	if err != nil {
		return err
	}
	path := resolveCatalogPath()
	result := CatalogInfoResult{
		Path:        path,
		Papers:      cat.Len() + cat.DuplicatesDropped(),
		Sampled:     cat.Len(),
		Fingerprint: cat.Fingerprint(),
	}

	if !isJSONLCatalog(path) {
		db, err := storage.OpenDB(path)
		if err != nil {
			return err
		}
		defer db.Close()
		if result.Papers, err = db.Count(); err != nil {
			return err
		}
		if result.Source, err = db.Meta(storage.MetaSource); err != nil {
			return err
		}
		if result.ImportedAt, err = db.Meta(storage.MetaImportedAt); err != nil {
			return err
		}
	}

	return writeResult(cmd.OutOrStdout(), result, func(w io.Writer) {
		fmt.Fprintf(w, "Catalog: %s\n", result.Path)
		fmt.Fprintf(w, "  Papers: %d", result.Papers)
		if result.Sampled != result.Papers {
			fmt.Fprintf(w, " (%d sampled)", result.Sampled)
		}
		fmt.Fprintln(w)
		if result.Source != "" {
			fmt.Fprintf(w, "  Source: %s\n", result.Source)
		}
		if result.ImportedAt != "" {
			fmt.Fprintf(w, "  Imported: %s\n", result.ImportedAt)
		}
		fmt.Fprintf(w, "  Fingerprint: %s\n", result.Fingerprint)
	})
}

// isJSONLCatalog reports whether path names a plain JSONL catalog rather
// than a database.
func isJSONLCatalog(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".jsonl")
}

var catalogShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one catalog paper with its abstract",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogShow,
}

func runCatalogShow(cmd *cobra.Command, args []string) error {
	path := resolveCatalogPath()
	var record *storage.Record
	if isJSONLCatalog(path) {
		cat, err := openCatalog()
		if err != nil {
			return err
		}
		if e, _, ok := cat.Lookup(args[0]); ok {
			r := storage.NewRecord(e.Paper, e.Abstract)
			record = &r
		}
	} else {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%w: %s (run 'refy catalog import' first)", errCatalogNotFound, path)
		}
		db, err := storage.OpenDB(path)
		if err != nil {
			return err
		}
		defer db.Close()
		if record, err = db.GetPaper(args[0]); err != nil {
			return err
		}
	}
	if record == nil {
		return fmt.Errorf("paper %s is not in the catalog", args[0])
	}

	return writeResult(cmd.OutOrStdout(), record, func(w io.Writer) {
		fmt.Fprintf(w, "%s\n", record.Title)
		fmt.Fprintf(w, "  ID: %s\n", record.ID)
		if len(record.Authors) > 0 {
			fmt.Fprintf(w, "  Authors: %s\n", strings.Join(record.Authors, ", "))
		}
		if record.Year > 0 {
			fmt.Fprintf(w, "  Year: %d\n", record.Year)
		}
		if record.DOI != "" {
			fmt.Fprintf(w, "  DOI: %s\n", record.DOI)
		}
		fmt.Fprintf(w, "\n%s\n", record.Abstract)
	})
}

// CatalogExportResult is the response for catalog export.
type CatalogExportResult struct {
	Status string `json:"status"`
	Path   string `json:"path"`
	Papers int    `json:"papers"`
}

var catalogExportCmd = &cobra.Command{
	Use:   "export <papers.jsonl>",
	Short: "Write the catalog to a JSONL file",
	Long: `Write every catalog paper to a JSONL file in the format 'refy catalog
import' reads. sample_size does not apply; the whole catalog is written.`,
	Args: cobra.ExactArgs(1),
	RunE: runCatalogExport,
}

func runCatalogExport(cmd *cobra.Command, args []string) error {
	path := resolveCatalogPath()
	if isJSONLCatalog(path) {
		return fmt.Errorf("catalog %s is already a JSONL file", path)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s (run 'refy catalog import' first)", errCatalogNotFound, path)
	}
	db, err := storage.OpenDB(path)
	if err != nil {
		return err
	}
	defer db.Close()
	cat, err := db.LoadCatalog()
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	records := make([]storage.Record, cat.Len())
	for row := range records {
		e := cat.At(row)
		records[row] = storage.NewRecord(e.Paper, e.Abstract)
	}
	if err := storage.WriteCatalogJSONL(args[0], records); err != nil {
		return err
	}

	result := CatalogExportResult{Status: "complete", Path: args[0], Papers: len(records)}
	return writeResult(cmd.OutOrStdout(), result, func(w io.Writer) {
		fmt.Fprintf(w, "Wrote %d papers to %s\n", result.Papers, result.Path)
	})
}
