package embedding

import (
	"context"
	"errors"
	"sort"
)

// Errors returned by model fitting and the model store.
var (
	ErrEmptyCorpus        = errors.New("cannot fit a model on an empty corpus")
	ErrModelNotFound      = errors.New("embedding model not found")
	ErrUnsupportedVersion = errors.New("unsupported model version")
	ErrUnknownKind        = errors.New("unknown model kind")
)

// Corpus maps document IDs to raw text. Fitting iterates it in sorted ID order
// so that a fit is reproducible.
type Corpus map[string]string

func (c Corpus) sortedIDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Model embeds raw text into a fixed vector space.
type Model interface {
	// Embed maps text to a vector. It must be deterministic and must not
	// mutate the model. Empty or whitespace-only text yields the zero vector.
	Embed(text string) Vector

	// Kind returns the vector space kind produced by Embed.
	Kind() Kind

	// Name identifies the model, e.g. "tfidf-50000" or "doc2vec-100".
	Name() string
}

// ContextEmbedder is implemented by models whose embedding can fail or block,
// such as models served over HTTP.
type ContextEmbedder interface {
	EmbedContext(ctx context.Context, text string) (Vector, error)
}

// EmbedText embeds text with m, going through EmbedContext when m supports it.
func EmbedText(ctx context.Context, m Model, text string) (Vector, error) {
	if ce, ok := m.(ContextEmbedder); ok {
		return ce.EmbedContext(ctx, text)
	}
	return m.Embed(text), nil
}

// BatchEmbedder is implemented by models that embed many texts per call.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([]Vector, error)
}

// EmbedTexts embeds texts with m in order, in one call when m is a
// BatchEmbedder.
func EmbedTexts(ctx context.Context, m Model, texts []string) ([]Vector, error) {
	if be, ok := m.(BatchEmbedder); ok {
		return be.EmbedBatch(ctx, texts)
	}
	out := make([]Vector, len(texts))
	for i, text := range texts {
		v, err := EmbedText(ctx, m, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Precomputed is a Model that answers from vectors embedded ahead of time.
// It takes the Name and Kind of the model it was computed with, so it can
// stand in for that model against the same index without further calls.
type Precomputed struct {
	name    string
	kind    Kind
	vectors map[string]Vector
}

// Precompute embeds texts with m once.
func Precompute(ctx context.Context, m Model, texts []string) (*Precomputed, error) {
	vs, err := EmbedTexts(ctx, m, texts)
	if err != nil {
		return nil, err
	}
	p := &Precomputed{name: m.Name(), kind: m.Kind(), vectors: make(map[string]Vector, len(texts))}
	for i, text := range texts {
		p.vectors[text] = vs[i]
	}
	return p, nil
}

// Embed implements Model. Texts that were not precomputed embed to the zero
// vector.
func (p *Precomputed) Embed(text string) Vector {
	if v, ok := p.vectors[text]; ok {
		return v
	}
	return Vector{Kind: p.kind}
}

// Kind implements Model.
func (p *Precomputed) Kind() Kind { return p.kind }

// Name implements Model.
func (p *Precomputed) Name() string { return p.name }

// Len reports how many distinct texts were embedded.
func (p *Precomputed) Len() int { return len(p.vectors) }
