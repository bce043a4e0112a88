// Package catalog holds the immutable in-memory pool of candidate papers.
package catalog

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/matsen/refy/internal/paper"
)

// ErrDataMismatch is wrapped by DataMismatchError.
var ErrDataMismatch = errors.New("catalog papers and abstracts disagree")

// DataMismatchError reports that the paper ID set and abstract ID set of a
// catalog snapshot differ.
type DataMismatchError struct {
	Papers    int
	Abstracts int
	Missing   []string // Paper IDs without an abstract (at most a few, for context)
}

func (e *DataMismatchError) Error() string {
	msg := fmt.Sprintf("expected same number of papers and abstracts, found %d papers and %d abstracts", e.Papers, e.Abstracts)
	if len(e.Missing) > 0 {
		msg += fmt.Sprintf(" (no abstract for: %s)", strings.Join(e.Missing, ", "))
	}
	return msg
}

// Unwrap lets errors.Is match ErrDataMismatch.
func (e *DataMismatchError) Unwrap() error {
	return ErrDataMismatch
}

// maxMissingReported bounds the IDs listed in a DataMismatchError.
const maxMissingReported = 5

// Entry is a catalog row.
type Entry struct {
	Paper    paper.Paper
	Abstract string
}

// Catalog is an immutable collection of candidate papers with abstracts.
// Rows keep their insertion order; the row index is the tie-breaker for
// equal similarity scores downstream.
type Catalog struct {
	entries    []Entry
	index      map[string]int
	duplicates int
}

// New builds a catalog from papers and an abstract map keyed by paper ID.
// Duplicate paper IDs keep the first occurrence. The remaining ID set must
// equal the abstract key set, otherwise a *DataMismatchError is returned.
func New(papers []paper.Paper, abstracts map[string]string) (*Catalog, error) {
	c := &Catalog{
		entries: make([]Entry, 0, len(papers)),
		index:   make(map[string]int, len(papers)),
	}

	var missing []string
	for _, p := range papers {
		if _, dup := c.index[p.ID]; dup {
			c.duplicates++
			continue
		}
		abstract, ok := abstracts[p.ID]
		if !ok {
			if len(missing) < maxMissingReported {
				missing = append(missing, p.ID)
			}
		}
		p.Source = paper.SourceCatalog
		c.index[p.ID] = len(c.entries)
		c.entries = append(c.entries, Entry{Paper: p, Abstract: abstract})
	}

	if len(missing) > 0 || len(c.entries) != len(abstracts) {
		return nil, &DataMismatchError{
			Papers:    len(c.entries),
			Abstracts: len(abstracts),
			Missing:   missing,
		}
	}
	return c, nil
}

// Len returns the number of rows.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// DuplicatesDropped returns how many rows were discarded as duplicate IDs.
func (c *Catalog) DuplicatesDropped() int {
	return c.duplicates
}

// At returns the entry at the given row.
func (c *Catalog) At(row int) Entry {
	return c.entries[row]
}

// Lookup finds an entry by paper ID and returns its row.
func (c *Catalog) Lookup(id string) (Entry, int, bool) {
	row, ok := c.index[id]
	if !ok {
		return Entry{}, -1, false
	}
	return c.entries[row], row, true
}

// Abstracts returns a fresh id -> abstract map, the corpus used to fit models.
func (c *Catalog) Abstracts() map[string]string {
	out := make(map[string]string, len(c.entries))
	for _, e := range c.entries {
		out[e.Paper.ID] = e.Abstract
	}
	return out
}

// IDs returns paper IDs in row order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.entries))
	for i, e := range c.entries {
		ids[i] = e.Paper.ID
	}
	return ids
}

// ByAuthor returns, in row order, the entries with at least one author
// matching one of names. Names compare by paper.NormalizeAuthor.
func (c *Catalog) ByAuthor(names ...string) []Entry {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if key := paper.NormalizeAuthor(n); key != "" {
			want[key] = true
		}
	}
	if len(want) == 0 {
		return nil
	}

	var out []Entry
	for _, e := range c.entries {
		for _, a := range e.Paper.Authors {
			if want[paper.NormalizeAuthor(a)] {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Sample returns a catalog of at most n rows chosen pseudo-randomly with the
// given seed. Sampled rows keep their relative order. A non-positive n or an
// n at least Len returns the receiver unchanged.
func (c *Catalog) Sample(n int, seed uint64) *Catalog {
	if n <= 0 || n >= len(c.entries) {
		return c
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	rows := rng.Perm(len(c.entries))[:n]
	sort.Ints(rows)

	out := &Catalog{
		entries: make([]Entry, 0, n),
		index:   make(map[string]int, n),
	}
	for _, row := range rows {
		e := c.entries[row]
		out.index[e.Paper.ID] = len(out.entries)
		out.entries = append(out.entries, e)
	}
	return out
}

// Fingerprint returns a content hash over the rows (IDs and abstracts, in
// order). Indexes record it to detect that they were built from a different
// catalog snapshot.
func (c *Catalog) Fingerprint() string {
	h, _ := blake2b.New256(nil)
	var lenBuf [8]byte
	for _, e := range c.entries {
		for _, s := range []string{e.Paper.ID, e.Abstract} {
			binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(s)))
			h.Write(lenBuf[:])
			h.Write([]byte(s))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
