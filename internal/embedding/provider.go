package embedding

import (
	"context"
	"fmt"
)

// Provider embeds batches of text, typically over the network.
type Provider interface {
	// EmbedBatch returns one vector per text, in order. Every vector has
	// Dimensions entries.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName returns the name of the embedding model.
	ModelName() string

	// Dimensions returns the expected vector dimensions.
	Dimensions() int
}

// RemotePrefix starts the Name of every Remote model.
const RemotePrefix = "remote-"

// Remote adapts a Provider to Model. Catalog indexes built with a Remote model
// must be queried with a Remote model for the same provider model.
type Remote struct {
	provider Provider
}

// NewRemote wraps p.
func NewRemote(p Provider) *Remote {
	return &Remote{provider: p}
}

// EmbedBatch implements BatchEmbedder.
func (r *Remote) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	raw, err := r.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(raw) != len(texts) {
		return nil, fmt.Errorf("provider returned %d vectors for %d texts", len(raw), len(texts))
	}
	out := make([]Vector, len(raw))
	for i, v := range raw {
		if len(v) != r.provider.Dimensions() {
			return nil, fmt.Errorf("provider returned %d dimensions for text %d, want %d", len(v), i, r.provider.Dimensions())
		}
		out[i] = NewDense(v)
	}
	return out, nil
}

// EmbedContext implements ContextEmbedder.
func (r *Remote) EmbedContext(ctx context.Context, text string) (Vector, error) {
	vs, err := r.EmbedBatch(ctx, []string{text})
	if err != nil {
		return Vector{}, err
	}
	return vs[0], nil
}

// Embed implements Model. Provider failures yield the zero vector; use
// EmbedText or EmbedContext to observe them.
func (r *Remote) Embed(text string) Vector {
	v, err := r.EmbedContext(context.Background(), text)
	if err != nil {
		return NewDense(make([]float32, r.provider.Dimensions()))
	}
	return v
}

// Kind implements Model.
func (r *Remote) Kind() Kind {
	return KindDense
}

// Name implements Model.
func (r *Remote) Name() string {
	return RemotePrefix + r.provider.ModelName()
}
