// Package paper defines the core domain types for catalog and library papers.
package paper

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Source tracks where a paper record came from.
type Source int

const (
	// SourceCatalog marks a candidate paper from the recommendation catalog.
	SourceCatalog Source = iota
	// SourceUserInput marks a paper from the user's own library.
	SourceUserInput
)

// String returns the wire name of the source.
func (s Source) String() string {
	switch s {
	case SourceCatalog:
		return "catalog"
	case SourceUserInput:
		return "user_input"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// MarshalJSON encodes the source by name.
func (s Source) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a source name. An empty string means SourceCatalog.
func (s *Source) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "", "catalog":
		*s = SourceCatalog
	case "user_input":
		*s = SourceUserInput
	default:
		return fmt.Errorf("unknown paper source %q", name)
	}
	return nil
}

// Paper identifies a publication.
type Paper struct {
	// Identity
	ID  string `json:"id"`            // Stable identifier, unique within a catalog
	DOI string `json:"doi,omitempty"` // Digital Object Identifier
	URL string `json:"url,omitempty"`

	// Metadata
	Title        string   `json:"title"`
	Authors      []string `json:"authors"`
	Year         int      `json:"year"` // 0 if unknown
	FieldOfStudy []string `json:"field_of_study,omitempty"`

	Source Source `json:"source"`
}

// HasField reports whether the paper is tagged with the given field of study.
// Comparison ignores case.
func (p Paper) HasField(field string) bool {
	for _, f := range p.FieldOfStudy {
		if strings.EqualFold(f, field) {
			return true
		}
	}
	return false
}

// Link returns the DOI resolver URL when the paper has a DOI, else its URL.
func (p Paper) Link() string {
	if doi := NormalizeDOI(p.DOI); doi != "" {
		return "https://doi.org/" + doi
	}
	return p.URL
}
