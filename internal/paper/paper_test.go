package paper

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases", "Deep Learning", "deep learning"},
		{"collapses whitespace", "  Deep \t Learning\n for  Mice ", "deep learning for mice"},
		{"strips diacritics", "Café Über Naïve", "cafe uber naive"},
		{"keeps punctuation", "Nets: A Review", "nets: a review"},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeTitle(tt.input); got != tt.expected {
				t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeAuthor(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "Gary Stacey", "gary stacey"},
		{"last first", "Stacey, Gary", "gary stacey"},
		{"extra whitespace", "  Gary \t Stacey ", "gary stacey"},
		{"punctuation", "J. R. R. Tolkien", "j r r tolkien"},
		{"hyphen joins", "Jean-Luc Picard", "jeanluc picard"},
		{"diacritics", "Frédéric Chopin", "frederic chopin"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeAuthor(tt.input); got != tt.expected {
				t.Errorf("NormalizeAuthor(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeDOI(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"10.1234/ABC", "10.1234/abc"},
		{"https://doi.org/10.1234/abc", "10.1234/abc"},
		{"http://dx.doi.org/10.1234/abc", "10.1234/abc"},
		{"DOI: 10.1234/abc", "10.1234/abc"},
		{"  ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeDOI(tt.input); got != tt.expected {
				t.Errorf("NormalizeDOI(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSource_JSON(t *testing.T) {
	data, err := json.Marshal(Paper{ID: "p1", Source: SourceUserInput})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var p Paper
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if p.Source != SourceUserInput {
		t.Errorf("Source = %v, want %v", p.Source, SourceUserInput)
	}

	if err := json.Unmarshal([]byte(`{"id":"x","source":"bogus"}`), &p); err == nil {
		t.Error("expected error for unknown source")
	}
}

func TestPaper_Link(t *testing.T) {
	p := Paper{DOI: "DOI:10.1/X", URL: "https://example.org/x"}
	if got := p.Link(); got != "https://doi.org/10.1/x" {
		t.Errorf("Link() = %q", got)
	}

	p.DOI = ""
	if got := p.Link(); got != "https://example.org/x" {
		t.Errorf("Link() without DOI = %q", got)
	}
}

func TestPaper_HasField(t *testing.T) {
	p := Paper{FieldOfStudy: []string{"Biology", "Neuroscience"}}
	if !p.HasField("biology") {
		t.Error("expected case-insensitive field match")
	}
	if p.HasField("physics") {
		t.Error("unexpected field match")
	}
}

func TestNewLibrary(t *testing.T) {
	t.Run("empty library is an error", func(t *testing.T) {
		_, err := NewLibrary(nil, nil)
		if !errors.Is(err, ErrEmptyLibrary) {
			t.Errorf("expected ErrEmptyLibrary, got %v", err)
		}
	})

	t.Run("rejects entry without id or title", func(t *testing.T) {
		_, err := NewLibrary([]Paper{{}}, nil)
		if err == nil {
			t.Error("expected error for anonymous paper")
		}
	})

	t.Run("marks papers as user input", func(t *testing.T) {
		lib, err := NewLibrary([]Paper{{ID: "u1", Title: "A"}}, map[string]string{"u1": "text"})
		if err != nil {
			t.Fatalf("NewLibrary failed: %v", err)
		}
		if lib.Len() != 1 {
			t.Fatalf("Len() = %d, want 1", lib.Len())
		}
		e := lib.At(0)
		if e.Paper.Source != SourceUserInput {
			t.Errorf("Source = %v, want user_input", e.Paper.Source)
		}
		if e.Abstract != "text" {
			t.Errorf("Abstract = %q", e.Abstract)
		}
	})
}

func TestLibrary_Contains(t *testing.T) {
	lib, err := NewLibrary([]Paper{
		{ID: "u1", Title: "Motor Cortex  Dynamics", DOI: "10.1/abc"},
		{ID: "u2", Title: "Grid Cells"},
	}, nil)
	if err != nil {
		t.Fatalf("NewLibrary failed: %v", err)
	}

	tests := []struct {
		name     string
		p        Paper
		expected bool
	}{
		{"title match ignoring case and spaces", Paper{Title: "motor cortex dynamics"}, true},
		{"doi match with prefix", Paper{Title: "Other", DOI: "https://doi.org/10.1/ABC"}, true},
		{"no match", Paper{Title: "Place Cells", DOI: "10.1/zzz"}, false},
		{"empty title and doi", Paper{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := lib.Contains(tt.p); got != tt.expected {
				t.Errorf("Contains(%+v) = %v, want %v", tt.p, got, tt.expected)
			}
		})
	}

	var nilLib *Library
	if nilLib.Contains(Paper{Title: "Grid Cells"}) {
		t.Error("nil library should contain nothing")
	}
}
