// Package storage reads and persists the paper catalog as JSONL files and in
// a SQLite database.
package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/matsen/refy/internal/catalog"
	"github.com/matsen/refy/internal/paper"
)

// MaxJSONLLineCapacity is the maximum buffer size for reading JSONL lines (1MB per line).
const MaxJSONLLineCapacity = 1024 * 1024

// Record is one catalog line: paper metadata plus its abstract.
type Record struct {
	ID           string   `json:"id"`
	DOI          string   `json:"doi,omitempty"`
	URL          string   `json:"url,omitempty"`
	Title        string   `json:"title"`
	Authors      []string `json:"authors,omitempty"`
	Year         int      `json:"year,omitempty"`
	FieldOfStudy []string `json:"field_of_study,omitempty"`
	Abstract     string   `json:"abstract"`
}

// Paper returns the record's metadata as a catalog paper.
func (r Record) Paper() paper.Paper {
	return paper.Paper{
		ID:           r.ID,
		DOI:          r.DOI,
		URL:          r.URL,
		Title:        r.Title,
		Authors:      r.Authors,
		Year:         r.Year,
		FieldOfStudy: r.FieldOfStudy,
		Source:       paper.SourceCatalog,
	}
}

// NewRecord pairs catalog paper metadata with its abstract.
func NewRecord(p paper.Paper, abstract string) Record {
	return Record{
		ID:           p.ID,
		DOI:          p.DOI,
		URL:          p.URL,
		Title:        p.Title,
		Authors:      p.Authors,
		Year:         p.Year,
		FieldOfStudy: p.FieldOfStudy,
		Abstract:     abstract,
	}
}

// Filter selects the records worth keeping in a catalog. Records without an
// ID or abstract are always dropped.
type Filter struct {
	Fields   []string // keep only papers tagged with one of these fields; empty keeps all
	Keywords []string // keep only abstracts mentioning one of these; empty keeps all
}

// Keep reports whether r passes the filter.
func (f Filter) Keep(r Record) bool {
	if strings.TrimSpace(r.ID) == "" || strings.TrimSpace(r.Abstract) == "" {
		return false
	}
	if len(f.Fields) > 0 {
		p := r.Paper()
		found := false
		for _, field := range f.Fields {
			if p.HasField(field) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Keywords) > 0 {
		abstract := strings.ToLower(r.Abstract)
		for _, kw := range f.Keywords {
			if strings.Contains(abstract, strings.ToLower(kw)) {
				return true
			}
		}
		return false
	}
	return true
}

// ReadCatalogJSONL reads all records from a JSONL file. A missing file is an
// error: a catalog is never implicitly empty.
func ReadCatalogJSONL(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog file: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)

	// Increase buffer size for long abstracts
	buf := make([]byte, MaxJSONLLineCapacity)
	scanner.Buffer(buf, MaxJSONLLineCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("parsing %s line %d: %w", filepath.Base(path), lineNum, err)
		}
		records = append(records, r)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}

	return records, nil
}

// WriteCatalogJSONL writes records to a JSONL file, replacing its contents.
func WriteCatalogJSONL(path string, records []Record) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating catalog file: %w", err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("encoding record %s: %w", r.ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing catalog file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing catalog file: %w", err)
	}
	return os.Rename(tmp, path)
}

// Split separates kept records into catalog papers and an abstract map. It
// returns how many records the filter dropped.
func Split(records []Record, f Filter) ([]paper.Paper, map[string]string, int) {
	papers := make([]paper.Paper, 0, len(records))
	abstracts := make(map[string]string, len(records))
	dropped := 0
	for _, r := range records {
		if !f.Keep(r) {
			dropped++
			continue
		}
		// catalog.New drops repeated IDs; the first abstract wins to match.
		papers = append(papers, r.Paper())
		if _, dup := abstracts[r.ID]; !dup {
			abstracts[r.ID] = r.Abstract
		}
	}
	return papers, abstracts, dropped
}

// CatalogFromRecords builds a catalog from the records that pass f.
func CatalogFromRecords(records []Record, f Filter) (*catalog.Catalog, int, error) {
	papers, abstracts, dropped := Split(records, f)
	cat, err := catalog.New(papers, abstracts)
	if err != nil {
		return nil, dropped, err
	}
	return cat, dropped, nil
}

// LoadCatalogJSONL reads a JSONL catalog file and builds a catalog from it.
func LoadCatalogJSONL(path string, f Filter) (*catalog.Catalog, error) {
	records, err := ReadCatalogJSONL(path)
	if err != nil {
		return nil, err
	}
	cat, _, err := CatalogFromRecords(records, f)
	if err != nil {
		return nil, fmt.Errorf("building catalog from %s: %w", filepath.Base(path), err)
	}
	return cat, nil
}
