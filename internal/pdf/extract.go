// Package pdf turns a PDF into a recommendation query.
package pdf

import (
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/matsen/refy/internal/paper"
)

// DefaultMaxPages is how many leading pages are read for a query. Title,
// DOI and abstract are nearly always on the first two.
const DefaultMaxPages = 2

// DOI pattern: 10.XXXX/... where XXXX is 4+ digits
var doiPattern = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)

// abstractStart matches an "Abstract" heading; abstractEnd matches the
// heading that usually follows it.
var (
	abstractStart = regexp.MustCompile(`(?im)^\s*abstract\b[\s.:\-]*`)
	abstractEnd   = regexp.MustCompile(`(?im)^\s*(?:\d+\.?\s*)?(?:introduction|keywords|key words|background|main)\b`)
)

// Document is the query derived from a PDF.
type Document struct {
	Paper    paper.Paper
	Text     string // text of the leading pages
	Abstract string // abstract section if one was found, else Text
}

// Library wraps the document as a one-paper user library, so the PDF's own
// paper is never suggested back.
func (d *Document) Library() (*paper.Library, error) {
	return paper.NewLibrary([]paper.Paper{d.Paper}, map[string]string{d.Paper.ID: d.Abstract})
}

// Read extracts a query document from the first maxPages pages of a PDF.
// A non-positive maxPages means DefaultMaxPages.
func Read(filePath string, maxPages int) (*Document, error) {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	text, err := ExtractText(filePath, maxPages)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(filePath), err)
	}
	return FromText(filepath.Base(filePath), text), nil
}

// FromText builds a document from already extracted text. id becomes the
// paper ID.
func FromText(id, text string) *Document {
	d := &Document{
		Paper: paper.Paper{
			ID:     id,
			DOI:    findDOI(text),
			Title:  findTitle(text),
			Source: paper.SourceUserInput,
		},
		Text: text,
	}
	d.Abstract = findAbstract(text)
	if d.Abstract == "" {
		d.Abstract = text
	}
	return d
}

// ExtractText extracts all text from the first N pages of a PDF.
func ExtractText(filePath string, maxPages int) (string, error) {
	f, r, err := pdf.Open(filePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return pagesText(r, maxPages), nil
}

// ExtractTextReader extracts text from a PDF reader.
func ExtractTextReader(r io.ReaderAt, size int64, maxPages int) (string, error) {
	pdfReader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", err
	}
	return pagesText(pdfReader, maxPages), nil
}

func pagesText(r *pdf.Reader, maxPages int) string {
	if maxPages <= 0 || maxPages > r.NumPage() {
		maxPages = r.NumPage()
	}

	var builder strings.Builder
	for i := 1; i <= maxPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		builder.WriteString(text)
		builder.WriteString("\n")
	}
	return builder.String()
}

// findDOI finds a DOI in text.
func findDOI(text string) string {
	for _, match := range doiPattern.FindAllString(text, -1) {
		// Remove trailing punctuation
		match = strings.TrimRight(match, ".,;:)")
		if isValidDOI(match) {
			return match
		}
	}
	return ""
}

// isValidDOI performs basic validation on a DOI.
func isValidDOI(doi string) bool {
	if len(doi) < 10 {
		return false
	}
	if !strings.HasPrefix(doi, "10.") {
		return false
	}
	slashIdx := strings.Index(doi, "/")
	return slashIdx != -1 && slashIdx < len(doi)-1
}

// findTitle returns the first substantial line that is not a running header.
func findTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 20 && !isHeaderLine(line) && !abstractStart.MatchString(line) {
			return line
		}
	}
	return ""
}

// findAbstract returns the text between an Abstract heading and the next
// section heading, or "" if there is no Abstract heading.
func findAbstract(text string) string {
	loc := abstractStart.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	rest := text[loc[1]:]
	if end := abstractEnd.FindStringIndex(rest); end != nil {
		rest = rest[:end[0]]
	}
	return strings.Join(strings.Fields(rest), " ")
}

// isHeaderLine checks if a line is likely a header/footer.
func isHeaderLine(line string) bool {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "journal"):
		return true
	case strings.Contains(lower, "volume") && strings.Contains(lower, "issue"):
		return true
	case strings.Contains(lower, "copyright"):
		return true
	case strings.Contains(lower, "article") && strings.Contains(lower, "published"):
		return true
	case doiPattern.MatchString(line):
		return true
	}
	return false
}
