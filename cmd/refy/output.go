package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/matsen/refy/internal/pipeline"
	"github.com/matsen/refy/internal/recommend"
)

// Output formatting widths.
const (
	TitleMaxLen = 70
	ProgressBar = 30
)

// outputJSON writes a value as formatted JSON.
func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// printError reports err in the selected format: JSON on stdout, or a plain
// message on stderr.
func printError(stdout, stderr io.Writer, err error) {
	if humanOutput {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return
	}
	outputJSON(stdout, ErrorResponse{Error: err.Error(), Code: exitCodeFor(err)})
}

// SuggestResponse is the response for suggest and query.
type SuggestResponse struct {
	Mode        string                      `json:"mode"`
	Model       string                      `json:"model"`
	Suggestions []recommend.Record          `json:"suggestions"`
	Total       int                         `json:"total"`
	QueriesUsed int                         `json:"queries_used"`
	Candidates  int                         `json:"candidates"`
	Warnings    []recommend.NoSignalWarning `json:"warnings,omitempty"`
	Notice      string                      `json:"notice,omitempty"`
}

func newSuggestResponse(res *pipeline.Result) SuggestResponse {
	records := res.Records()
	if records == nil {
		records = []recommend.Record{}
	}
	resp := SuggestResponse{
		Mode:        res.Mode,
		Model:       res.Model,
		Suggestions: records,
		Total:       len(records),
		QueriesUsed: res.QueriesUsed,
		Candidates:  res.Candidates,
		Warnings:    res.Warnings,
	}
	if res.Notice != nil {
		resp.Notice = res.Notice.Message
	}
	return resp
}

// writeSuggestions prints a suggestion response in the selected format.
func writeSuggestions(w io.Writer, resp SuggestResponse) error {
	if !humanOutput {
		return outputJSON(w, resp)
	}
	printSuggestionsHuman(w, resp)
	return nil
}

// csvHeader is the first row of a --save file.
var csvHeader = []string{"rank", "score", "id", "title", "year", "doi_or_url"}

// writeSuggestionsCSV writes records as CSV with a header row. Unknown years
// are left empty.
func writeSuggestionsCSV(w io.Writer, records []recommend.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range records {
		year := ""
		if r.Year > 0 {
			year = strconv.Itoa(r.Year)
		}
		row := []string{
			strconv.Itoa(r.Rank),
			strconv.FormatFloat(r.Score, 'f', 6, 64),
			r.ID,
			r.Title,
			year,
			r.DOIOrURL,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// saveSuggestionsCSV writes records to path, replacing any existing file.
func saveSuggestionsCSV(path string, records []recommend.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := writeSuggestionsCSV(f, records); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func printSuggestionsHuman(w io.Writer, resp SuggestResponse) {
	for _, warn := range resp.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	if len(resp.Warnings) > 0 {
		fmt.Fprintln(w)
	}
	if resp.Notice != "" {
		fmt.Fprintln(w, resp.Notice)
		return
	}
	for _, r := range resp.Suggestions {
		fmt.Fprintf(w, "%d. [%.3f] %s\n", r.Rank, r.Score, truncateString(r.Title, TitleMaxLen))
		if r.Year > 0 {
			fmt.Fprintf(w, "   %s (%d)\n", r.ID, r.Year)
		} else {
			fmt.Fprintf(w, "   %s\n", r.ID)
		}
		if r.DOIOrURL != "" {
			fmt.Fprintf(w, "   %s\n", r.DOIOrURL)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "%d suggestions from %d query papers (model %s)\n", resp.Total, resp.QueriesUsed, resp.Model)
}

// truncateString truncates a string to maxLen runes, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}

// formatBytes formats bytes in a human-readable way.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// progressBar renders "task [====>    ] 40% (4/10)".
func progressBar(task string, current, total int) string {
	if total <= 0 {
		return task
	}
	filled := ProgressBar * current / total
	var bar strings.Builder
	for i := 0; i < ProgressBar; i++ {
		switch {
		case i < filled:
			bar.WriteByte('=')
		case i == filled:
			bar.WriteByte('>')
		default:
			bar.WriteByte(' ')
		}
	}
	pct := float64(current) / float64(total) * 100
	return fmt.Sprintf("%s [%s] %.0f%% (%d/%d)", task, bar.String(), pct, current, total)
}
