package pdf

import (
	"path/filepath"
	"strings"
	"testing"
)

const firstPage = `Journal of Computational Biology, Volume 3
Phylogenetic inference with variational methods
A. Author and B. Author
https://doi.org/10.1089/cmb.2020.0123.
Abstract
We describe a variational approach to
phylogenetic inference.
1. Introduction
Trees are everywhere.
`

func TestFindDOI(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"resolver url", firstPage, "10.1089/cmb.2020.0123"},
		{"bare", "doi: 10.1234/abc.def;", "10.1234/abc.def"},
		{"none", "no identifiers here", ""},
		{"too short", "10.1234/", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := findDOI(tt.text); got != tt.want {
				t.Errorf("findDOI() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromText(t *testing.T) {
	d := FromText("paper.pdf", firstPage)

	if d.Paper.Title != "Phylogenetic inference with variational methods" {
		t.Errorf("Title = %q", d.Paper.Title)
	}
	if d.Paper.DOI != "10.1089/cmb.2020.0123" {
		t.Errorf("DOI = %q", d.Paper.DOI)
	}
	if d.Abstract != "We describe a variational approach to phylogenetic inference." {
		t.Errorf("Abstract = %q", d.Abstract)
	}
	if d.Paper.ID != "paper.pdf" {
		t.Errorf("ID = %q", d.Paper.ID)
	}
}

func TestFromText_NoAbstractHeading(t *testing.T) {
	text := "Short\nA fairly long line that reads like a title\nbody text"
	d := FromText("x.pdf", text)
	if d.Abstract != text {
		t.Errorf("Abstract = %q, want whole text", d.Abstract)
	}
	if d.Paper.Title != "A fairly long line that reads like a title" {
		t.Errorf("Title = %q", d.Paper.Title)
	}
}

func TestDocument_Library(t *testing.T) {
	d := FromText("paper.pdf", firstPage)
	lib, err := d.Library()
	if err != nil {
		t.Fatalf("Library() error = %v", err)
	}
	if lib.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", lib.Len())
	}
	if !strings.Contains(lib.At(0).Abstract, "variational") {
		t.Errorf("library abstract = %q", lib.At(0).Abstract)
	}
	if !lib.Contains(d.Paper) {
		t.Error("library should contain the PDF's own paper")
	}
}

func TestRead_MissingFile(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "missing.pdf"), 0); err == nil {
		t.Error("Read() error = nil, want error for missing file")
	}
}
