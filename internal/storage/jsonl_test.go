package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeLines(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	return path
}

func TestReadCatalogJSONL_NonExistentFile(t *testing.T) {
	if _, err := ReadCatalogJSONL("/nonexistent/path/catalog.jsonl"); err == nil {
		t.Fatal("ReadCatalogJSONL() error = nil, want error for missing file")
	}
}

func TestReadCatalogJSONL_Records(t *testing.T) {
	path := writeLines(t,
		`{"id":"P1","title":"Paper one","authors":["A. Smith"],"year":2018,"doi":"10.1/p1","abstract":"cells divide"}`,
		``,
		`{"id":"P2","title":"Paper two","year":2020,"url":"https://example.org/p2","field_of_study":["Biology"],"abstract":"genes express"}`,
	)

	records, err := ReadCatalogJSONL(path)
	if err != nil {
		t.Fatalf("ReadCatalogJSONL() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("ReadCatalogJSONL() returned %d records, want 2", len(records))
	}
	if records[0].ID != "P1" || records[0].DOI != "10.1/p1" || records[0].Abstract != "cells divide" {
		t.Errorf("records[0] = %+v", records[0])
	}
	p := records[1].Paper()
	if p.URL != "https://example.org/p2" || !p.HasField("biology") || p.Year != 2020 {
		t.Errorf("records[1].Paper() = %+v", p)
	}
}

func TestReadCatalogJSONL_Malformed(t *testing.T) {
	path := writeLines(t,
		`{"id":"P1","title":"ok","abstract":"x"}`,
		`{"id":`,
	)
	_, err := ReadCatalogJSONL(path)
	if err == nil {
		t.Fatal("ReadCatalogJSONL() error = nil, want parse error")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error %q should name line 2", err)
	}
}

func TestWriteCatalogJSONL_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	in := []Record{
		{ID: "P1", Title: "One", Year: 2001, Abstract: "alpha"},
		{ID: "P2", Title: "Two", Authors: []string{"B"}, Abstract: "beta"},
	}
	if err := WriteCatalogJSONL(path, in); err != nil {
		t.Fatalf("WriteCatalogJSONL() error = %v", err)
	}
	out, err := ReadCatalogJSONL(path)
	if err != nil {
		t.Fatalf("ReadCatalogJSONL() error = %v", err)
	}
	if len(out) != 2 || out[0].ID != "P1" || out[1].Authors[0] != "B" {
		t.Errorf("round trip = %+v", out)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}

func TestFilter_Keep(t *testing.T) {
	bio := Record{ID: "P1", Abstract: "Protein folding dynamics", FieldOfStudy: []string{"Biology"}}
	cs := Record{ID: "P2", Abstract: "Compilers and parsing", FieldOfStudy: []string{"Computer Science"}}

	tests := []struct {
		name   string
		filter Filter
		record Record
		want   bool
	}{
		{"no filter", Filter{}, cs, true},
		{"missing abstract", Filter{}, Record{ID: "P3", Abstract: "  "}, false},
		{"missing id", Filter{}, Record{Abstract: "text"}, false},
		{"field match ignores case", Filter{Fields: []string{"biology"}}, bio, true},
		{"field mismatch", Filter{Fields: []string{"Biology"}}, cs, false},
		{"keyword match", Filter{Keywords: []string{"protein"}}, bio, true},
		{"keyword mismatch", Filter{Keywords: []string{"neuron"}}, bio, false},
		{"field and keyword", Filter{Fields: []string{"Biology"}, Keywords: []string{"folding"}}, bio, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Keep(tt.record); got != tt.want {
				t.Errorf("Keep() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCatalogFromRecords(t *testing.T) {
	records := []Record{
		{ID: "P1", Title: "One", Abstract: "first"},
		{ID: "P2", Title: "Two", Abstract: ""},
		{ID: "P1", Title: "One again", Abstract: "second"},
		{ID: "P3", Title: "Three", Abstract: "third"},
	}
	cat, dropped, err := CatalogFromRecords(records, Filter{})
	if err != nil {
		t.Fatalf("CatalogFromRecords() error = %v", err)
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if cat.Len() != 2 || cat.DuplicatesDropped() != 1 {
		t.Fatalf("Len() = %d, DuplicatesDropped() = %d, want 2 and 1", cat.Len(), cat.DuplicatesDropped())
	}
	e, _, ok := cat.Lookup("P1")
	if !ok || e.Abstract != "first" || e.Paper.Title != "One" {
		t.Errorf("P1 = %+v, want first occurrence", e)
	}
}

func TestLoadCatalogJSONL(t *testing.T) {
	path := writeLines(t,
		`{"id":"P1","title":"One","abstract":"x"}`,
		`{"id":"P2","title":"Two","abstract":"y"}`,
	)
	cat, err := LoadCatalogJSONL(path, Filter{})
	if err != nil {
		t.Fatalf("LoadCatalogJSONL() error = %v", err)
	}
	if cat.Len() != 2 || cat.At(1).Paper.ID != "P2" {
		t.Errorf("catalog rows = %v", cat.IDs())
	}

	empty := writeLines(t, `{"id":"P1","title":"One","abstract":""}`)
	cat, err = LoadCatalogJSONL(empty, Filter{})
	if err != nil {
		t.Fatalf("LoadCatalogJSONL() error = %v", err)
	}
	if cat.Len() != 0 {
		t.Errorf("Len() = %d, want 0", cat.Len())
	}
}
