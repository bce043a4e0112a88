package catalog

import (
	"errors"
	"fmt"
	"testing"

	"github.com/matsen/refy/internal/paper"
)

func testPapers(n int) ([]paper.Paper, map[string]string) {
	papers := make([]paper.Paper, n)
	abstracts := make(map[string]string, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("p%d", i)
		papers[i] = paper.Paper{ID: id, Title: fmt.Sprintf("Paper %d", i), Year: 2000 + i}
		abstracts[id] = fmt.Sprintf("abstract number %d", i)
	}
	return papers, abstracts
}

func TestNew(t *testing.T) {
	papers, abstracts := testPapers(3)

	c, err := New(papers, abstracts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}

	e, row, ok := c.Lookup("p1")
	if !ok || row != 1 {
		t.Fatalf("Lookup(p1) = row %d, ok %v", row, ok)
	}
	if e.Abstract != "abstract number 1" {
		t.Errorf("Abstract = %q", e.Abstract)
	}
	if e.Paper.Source != paper.SourceCatalog {
		t.Errorf("Source = %v, want catalog", e.Paper.Source)
	}

	if _, _, ok := c.Lookup("missing"); ok {
		t.Error("Lookup should fail for unknown id")
	}
}

func TestNew_Duplicates(t *testing.T) {
	papers, abstracts := testPapers(2)
	dup := papers[0]
	dup.Title = "Second copy"
	papers = append(papers, dup)

	c, err := New(papers, abstracts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	if c.DuplicatesDropped() != 1 {
		t.Errorf("DuplicatesDropped() = %d, want 1", c.DuplicatesDropped())
	}
	e, _, _ := c.Lookup("p0")
	if e.Paper.Title != "Paper 0" {
		t.Errorf("expected first occurrence kept, got title %q", e.Paper.Title)
	}
}

func TestNew_DataMismatch(t *testing.T) {
	t.Run("extra abstract", func(t *testing.T) {
		papers, abstracts := testPapers(2)
		abstracts["stray"] = "orphan"

		_, err := New(papers, abstracts)
		var mismatch *DataMismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("expected DataMismatchError, got %v", err)
		}
		if mismatch.Papers != 2 || mismatch.Abstracts != 3 {
			t.Errorf("counts = %d/%d, want 2/3", mismatch.Papers, mismatch.Abstracts)
		}
		if !errors.Is(err, ErrDataMismatch) {
			t.Error("expected errors.Is(err, ErrDataMismatch)")
		}
	})

	t.Run("missing abstract", func(t *testing.T) {
		papers, abstracts := testPapers(2)
		delete(abstracts, "p1")

		_, err := New(papers, abstracts)
		var mismatch *DataMismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("expected DataMismatchError, got %v", err)
		}
		if len(mismatch.Missing) != 1 || mismatch.Missing[0] != "p1" {
			t.Errorf("Missing = %v, want [p1]", mismatch.Missing)
		}
	})

	t.Run("same count different ids", func(t *testing.T) {
		papers, abstracts := testPapers(2)
		delete(abstracts, "p1")
		abstracts["other"] = "x"

		if _, err := New(papers, abstracts); !errors.Is(err, ErrDataMismatch) {
			t.Errorf("expected ErrDataMismatch, got %v", err)
		}
	})
}

func TestSample(t *testing.T) {
	papers, abstracts := testPapers(50)
	c, err := New(papers, abstracts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	t.Run("bounded size and preserved order", func(t *testing.T) {
		s := c.Sample(10, 7)
		if s.Len() != 10 {
			t.Fatalf("Len() = %d, want 10", s.Len())
		}
		_, prev, _ := c.Lookup(s.At(0).Paper.ID)
		for i := 1; i < s.Len(); i++ {
			_, row, ok := c.Lookup(s.At(i).Paper.ID)
			if !ok {
				t.Fatalf("sampled id %s not in source", s.At(i).Paper.ID)
			}
			if row <= prev {
				t.Errorf("sample not in source order at %d", i)
			}
			prev = row
		}
	})

	t.Run("deterministic for a seed", func(t *testing.T) {
		a := c.Sample(10, 42).IDs()
		b := c.Sample(10, 42).IDs()
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("samples differ at %d: %s vs %s", i, a[i], b[i])
			}
		}
	})

	t.Run("no-op when n covers catalog", func(t *testing.T) {
		if c.Sample(0, 1) != c || c.Sample(100, 1) != c {
			t.Error("expected receiver to be returned")
		}
	})
}

func TestFingerprint(t *testing.T) {
	papers, abstracts := testPapers(3)
	a, _ := New(papers, abstracts)
	b, _ := New(papers, abstracts)

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("identical catalogs should share a fingerprint")
	}

	abstracts["p2"] = "changed"
	c, _ := New(papers, abstracts)
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("changed abstract should change the fingerprint")
	}

	if len(a.Fingerprint()) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(a.Fingerprint()))
	}
}

func TestAbstracts(t *testing.T) {
	papers, abstracts := testPapers(3)
	c, _ := New(papers, abstracts)

	got := c.Abstracts()
	got["p0"] = "mutated"
	if e, _, _ := c.Lookup("p0"); e.Abstract == "mutated" {
		t.Error("Abstracts() must return a copy")
	}
}

func TestByAuthor(t *testing.T) {
	papers, abstracts := testPapers(4)
	papers[0].Authors = []string{"Gary Stacey", "Ada Lovelace"}
	papers[1].Authors = []string{"Lovelace, Ada"}
	papers[2].Authors = []string{"Jean-Luc Picard"}
	c, err := New(papers, abstracts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name  string
		names []string
		want  []string
	}{
		{"single author", []string{"Gary Stacey"}, []string{"p0"}},
		{"name order and case", []string{"ada LOVELACE"}, []string{"p0", "p1"}},
		{"any of several", []string{"picard, jean-luc", "gary stacey"}, []string{"p0", "p2"}},
		{"no match", []string{"Grace Hopper"}, nil},
		{"blank name", []string{"  "}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, e := range c.ByAuthor(tt.names...) {
				got = append(got, e.Paper.ID)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("ByAuthor(%v) = %v, want %v", tt.names, got, tt.want)
			}
		})
	}
}
