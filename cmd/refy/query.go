package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/refy/internal/pdf"
	"github.com/matsen/refy/internal/pipeline"
	"github.com/matsen/refy/internal/recommend"
)

var (
	queryFlagSet queryFlags
	queryPDF     string
	queryPages   int
	queryAuthors []string
)

func init() {
	rootCmd.AddCommand(queryCmd)
	queryFlagSet.register(queryCmd)
	queryCmd.Flags().StringVar(&queryPDF, "pdf", "", "Take the query from a PDF's abstract")
	queryCmd.Flags().IntVar(&queryPages, "pages", pdf.DefaultMaxPages, "Leading PDF pages to read")
	queryCmd.Flags().StringSliceVar(&queryAuthors, "author", nil, "List catalog papers by these authors instead (repeatable)")
}

var queryCmd = &cobra.Command{
	Use:   "query [text...]",
	Short: "Suggest catalog papers related to free text",
	Long: `Suggest catalog papers related to a piece of free text, such as an
abstract or a description of a topic. Use "-" to read the text from stdin.

With --pdf, the query is the abstract of the given PDF, and the PDF's own
paper is excluded from the suggestions.

With --author, refy lists catalog papers by any of the given authors.
Names match ignoring case, punctuation and "Last, First" order. Author
queries need only the catalog, not a model or index.`,
	RunE: runQuery,
}

func runQuery(cmd *cobra.Command, args []string) error {
	q, err := queryFlagSet.query()
	if err != nil {
		return err
	}

	var run func(p *pipeline.Pipeline) (*pipeline.Result, error)
	var texts []string
	switch {
	case len(queryAuthors) > 0:
		if len(args) > 0 || queryPDF != "" {
			return errors.New("give either query text, --pdf or --author")
		}
		return runAuthorQuery(cmd, q)
	case queryPDF != "":
		if len(args) > 0 {
			return errors.New("give either query text or --pdf, not both")
		}
		doc, err := pdf.Read(queryPDF, queryPages)
		if err != nil {
			return err
		}
		lib, err := doc.Library()
		if err != nil {
			return err
		}
		logger.Info().Str("pdf", queryPDF).Str("title", doc.Paper.Title).Str("doi", doc.Paper.DOI).Msg("query taken from pdf")
		texts = libraryAbstracts(lib)
		run = func(p *pipeline.Pipeline) (*pipeline.Result, error) {
			return p.SuggestForLibrary(cmd.Context(), lib, q)
		}
	default:
		text, err := queryText(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		texts = []string{text}
		run = func(p *pipeline.Pipeline) (*pipeline.Result, error) {
			return p.SuggestForText(cmd.Context(), text, q)
		}
	}

	p, err := loadPipeline(cmd.Context(), texts)
	if err != nil {
		return err
	}
	res, err := run(p)
	if err != nil {
		return fmt.Errorf("querying catalog: %w", err)
	}
	return queryFlagSet.output(cmd, newSuggestResponse(res))
}

// runAuthorQuery lists catalog papers by queryAuthors.
func runAuthorQuery(cmd *cobra.Command, q pipeline.Query) error {
	cat, err := openCatalog()
	if err != nil {
		return err
	}
	agg := recommend.NewAggregator(recommend.WithLogger(logger))
	res := agg.ByAuthor(cat, queryAuthors, recommend.Options{N: q.N, Since: q.Since, To: q.To})
	return queryFlagSet.output(cmd, newSuggestResponse(&pipeline.Result{Result: *res, Mode: pipeline.ModeAuthor}))
}

// queryText joins args, or reads stdin when the only arg is "-".
func queryText(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	text := strings.Join(args, " ")
	if strings.TrimSpace(text) == "" {
		return "", errors.New("no query text given")
	}
	return text, nil
}
