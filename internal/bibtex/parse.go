// Package bibtex reads a user's .bib library.
package bibtex

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	bibtexparser "github.com/nickng/bibtex"

	"github.com/matsen/refy/internal/paper"
)

// ErrSyntax is returned for malformed BibTeX.
var ErrSyntax = errors.New("bibtex syntax error")

// Entry is one parsed @type{key, ...} record. Type and field names are
// lower-case; values are macro-expanded and cleaned.
type Entry struct {
	Type   string
	Key    string
	Fields map[string]string
}

// Field returns a field value, or "".
func (e Entry) Field(name string) string {
	return e.Fields[strings.ToLower(name)]
}

// Parse reads all entries from r. @string macros and # concatenation are
// expanded by the parser; lines starting with % are dropped first, as
// reference managers write them as file headers.
func Parse(r io.Reader) ([]Entry, error) {
	src, err := stripLineComments(r)
	if err != nil {
		return nil, fmt.Errorf("reading bibtex: %w", err)
	}
	bib, err := bibtexparser.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}

	entries := make([]Entry, 0, len(bib.Entries))
	for _, be := range bib.Entries {
		e := Entry{
			Type:   strings.ToLower(be.Type),
			Key:    strings.TrimSpace(be.CiteName),
			Fields: make(map[string]string, len(be.Fields)),
		}
		for name, value := range be.Fields {
			if value == nil {
				continue
			}
			e.Fields[strings.ToLower(name)] = cleanValue(value.String())
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// stripLineComments blanks %-comment lines, keeping line numbers intact.
func stripLineComments(r io.Reader) (io.Reader, error) {
	var b strings.Builder
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(strings.TrimSpace(line), "%") {
			b.WriteString(line)
		}
		b.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return strings.NewReader(b.String()), nil
}

// cleanValue drops grouping braces, a few common LaTeX escapes and extra
// whitespace.
func cleanValue(s string) string {
	s = strings.NewReplacer(`\{`, "{", `\}`, "}", "{", "", "}", "").Replace(s)
	s = strings.NewReplacer(`\&`, "&", `\%`, "%", `\_`, "_", `\$`, "$", "~", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// Paper converts an entry to a user-input paper. The citation key is the ID,
// falling back to the title when the key is empty.
func (e Entry) Paper() paper.Paper {
	p := paper.Paper{
		ID:     e.Key,
		DOI:    e.Field("doi"),
		URL:    e.Field("url"),
		Title:  e.Field("title"),
		Year:   parseYear(e.Field("year")),
		Source: paper.SourceUserInput,
	}
	if p.ID == "" {
		p.ID = p.Title
	}
	if authors := e.Field("author"); authors != "" {
		for _, a := range strings.Split(authors, " and ") {
			if a = strings.TrimSpace(a); a != "" {
				p.Authors = append(p.Authors, a)
			}
		}
	}
	if kw := e.Field("keywords"); kw != "" {
		for _, f := range strings.FieldsFunc(kw, func(r rune) bool { return r == ',' || r == ';' }) {
			if f = strings.TrimSpace(f); f != "" {
				p.FieldOfStudy = append(p.FieldOfStudy, f)
			}
		}
	}
	return p
}

// parseYear takes the first four-digit run, so "2020a" and "{2020}" work.
func parseYear(s string) int {
	digits := 0
	for i, r := range s {
		if r >= '0' && r <= '9' {
			digits++
			if digits == 4 {
				y, _ := strconv.Atoi(s[i-3 : i+1])
				return y
			}
			continue
		}
		digits = 0
	}
	return 0
}

// Library converts entries into a user library. Abstracts may be empty; such
// papers carry no signal downstream but are still used for de-duplication.
func Library(entries []Entry) (*paper.Library, error) {
	papers := make([]paper.Paper, 0, len(entries))
	abstracts := make(map[string]string, len(entries))
	for _, e := range entries {
		p := e.Paper()
		if p.ID == "" {
			continue
		}
		if _, dup := abstracts[p.ID]; dup {
			continue
		}
		papers = append(papers, p)
		abstracts[p.ID] = e.Field("abstract")
	}
	return paper.NewLibrary(papers, abstracts)
}

// ParseFile reads a .bib file into a user library.
func ParseFile(path string) (*paper.Library, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening bibtex file: %w", err)
	}
	defer f.Close()

	entries, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	lib, err := Library(entries)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return lib, nil
}
