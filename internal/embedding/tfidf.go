package embedding

import (
	"fmt"
	"math"
	"sort"
)

// DefaultVocabularySize bounds the TF-IDF vocabulary when no size is given.
const DefaultVocabularySize = 50000

// TFIDFConfig controls TF-IDF fitting.
type TFIDFConfig struct {
	// MaxVocabulary keeps only the most frequent terms across the corpus.
	// Zero means DefaultVocabularySize.
	MaxVocabulary int

	// MinDocFreq drops terms appearing in fewer documents. Zero means 1.
	MinDocFreq int
}

// TFIDF is a sparse term-frequency / inverse-document-frequency model over a
// bounded vocabulary. Weights use the smoothed idf ln((1+n)/(1+df))+1 and
// embedded vectors are L2-normalized.
type TFIDF struct {
	vocab map[string]int32
	terms []string
	idf   []float32
}

// FitTFIDF builds the vocabulary and idf weights from a corpus.
func FitTFIDF(corpus Corpus, cfg TFIDFConfig) (*TFIDF, error) {
	if len(corpus) == 0 {
		return nil, ErrEmptyCorpus
	}
	if cfg.MaxVocabulary <= 0 {
		cfg.MaxVocabulary = DefaultVocabularySize
	}
	if cfg.MinDocFreq <= 0 {
		cfg.MinDocFreq = 1
	}

	docFreq := make(map[string]int)
	termFreq := make(map[string]int)
	for _, id := range corpus.sortedIDs() {
		seen := make(map[string]bool)
		for _, tok := range Tokenize(corpus[id]) {
			termFreq[tok]++
			if !seen[tok] {
				seen[tok] = true
				docFreq[tok]++
			}
		}
	}

	candidates := make([]string, 0, len(termFreq))
	for term := range termFreq {
		if docFreq[term] >= cfg.MinDocFreq {
			candidates = append(candidates, term)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no terms survive tokenization", ErrEmptyCorpus)
	}

	// Most frequent first; alphabetical on ties so the cut is reproducible.
	sort.Slice(candidates, func(i, j int) bool {
		fi, fj := termFreq[candidates[i]], termFreq[candidates[j]]
		if fi != fj {
			return fi > fj
		}
		return candidates[i] < candidates[j]
	})
	if len(candidates) > cfg.MaxVocabulary {
		candidates = candidates[:cfg.MaxVocabulary]
	}
	sort.Strings(candidates)

	n := float64(len(corpus))
	m := &TFIDF{
		vocab: make(map[string]int32, len(candidates)),
		terms: candidates,
		idf:   make([]float32, len(candidates)),
	}
	for i, term := range candidates {
		m.vocab[term] = int32(i)
		m.idf[i] = float32(math.Log((1+n)/(1+float64(docFreq[term]))) + 1)
	}
	return m, nil
}

// Embed returns the L2-normalized tf-idf vector of text. Terms outside the
// vocabulary carry no weight.
func (m *TFIDF) Embed(text string) Vector {
	counts := make(map[int32]float32)
	for _, tok := range Tokenize(text) {
		if idx, ok := m.vocab[tok]; ok {
			counts[idx]++
		}
	}
	for idx, tf := range counts {
		counts[idx] = tf * m.idf[idx]
	}
	return NewSparse(counts).Normalize()
}

// Kind implements Model.
func (m *TFIDF) Kind() Kind {
	return KindSparse
}

// Name implements Model.
func (m *TFIDF) Name() string {
	return fmt.Sprintf("tfidf-%d", len(m.terms))
}

// VocabularySize returns the number of terms kept.
func (m *TFIDF) VocabularySize() int {
	return len(m.terms)
}

// tfidfState is the gob form of a TFIDF model.
type tfidfState struct {
	Terms []string
	IDF   []float32
}

func (m *TFIDF) state() *tfidfState {
	return &tfidfState{Terms: m.terms, IDF: m.idf}
}

func tfidfFromState(s *tfidfState) (*TFIDF, error) {
	if len(s.Terms) != len(s.IDF) {
		return nil, fmt.Errorf("tfidf model has %d terms but %d weights", len(s.Terms), len(s.IDF))
	}
	m := &TFIDF{
		vocab: make(map[string]int32, len(s.Terms)),
		terms: s.Terms,
		idf:   s.IDF,
	}
	for i, term := range s.Terms {
		m.vocab[term] = int32(i)
	}
	return m, nil
}
