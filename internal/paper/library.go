package paper

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyLibrary is returned when a user library has no papers.
var ErrEmptyLibrary = errors.New("user library is empty")

// Entry pairs a library paper with its abstract.
type Entry struct {
	Paper    Paper
	Abstract string
}

// Library is the ordered set of papers a user already has.
// Every paper in a Library carries SourceUserInput.
type Library struct {
	entries []Entry
	titles  map[string]bool
	dois    map[string]bool
}

// NewLibrary builds a library from papers and their abstracts keyed by paper ID.
// A paper missing from abstracts gets an empty abstract; the pipeline reports
// such papers as having no signal rather than failing.
func NewLibrary(papers []Paper, abstracts map[string]string) (*Library, error) {
	if len(papers) == 0 {
		return nil, ErrEmptyLibrary
	}

	lib := &Library{
		entries: make([]Entry, 0, len(papers)),
		titles:  make(map[string]bool, len(papers)),
		dois:    make(map[string]bool, len(papers)),
	}
	for i, p := range papers {
		if strings.TrimSpace(p.ID) == "" && strings.TrimSpace(p.Title) == "" {
			return nil, fmt.Errorf("library paper %d has neither id nor title", i)
		}
		p.Source = SourceUserInput
		lib.entries = append(lib.entries, Entry{Paper: p, Abstract: abstracts[p.ID]})
		if t := NormalizeTitle(p.Title); t != "" {
			lib.titles[t] = true
		}
		if d := NormalizeDOI(p.DOI); d != "" {
			lib.dois[d] = true
		}
	}
	return lib, nil
}

// Len returns the number of papers in the library.
func (l *Library) Len() int {
	return len(l.entries)
}

// At returns the i-th entry.
func (l *Library) At(i int) Entry {
	return l.entries[i]
}

// Entries returns a copy of the library entries in order.
func (l *Library) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Contains reports whether a paper matches a library entry by normalized
// title or by DOI.
func (l *Library) Contains(p Paper) bool {
	if l == nil {
		return false
	}
	if t := NormalizeTitle(p.Title); t != "" && l.titles[t] {
		return true
	}
	if d := NormalizeDOI(p.DOI); d != "" && l.dois[d] {
		return true
	}
	return false
}
