package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Ollama defaults. DefaultDimensions matches DefaultModel.
const (
	DefaultOllamaURL  = "http://localhost:11434"
	DefaultModel      = "all-minilm:l6-v2"
	DefaultDimensions = 384
	DefaultTimeout    = 2 * time.Minute

	// DefaultRateLimit caps requests per second against a shared server.
	DefaultRateLimit = 20.0

	// DefaultBatchSize is the number of abstracts sent per /api/embed call.
	DefaultBatchSize = 64

	apiPathTags  = "/api/tags"
	apiPathEmbed = "/api/embed"

	// maxErrorBody bounds how much of an error response is quoted.
	maxErrorBody = 512
)

// ErrOllamaUnavailable is returned when the Ollama server cannot be reached.
var ErrOllamaUnavailable = errors.New("ollama is not reachable")

// Ollama embeds batches of abstracts through an Ollama server's /api/embed
// endpoint. Blank texts are never sent; they come back as zero vectors.
type Ollama struct {
	baseURL    string
	model      string
	dimensions int
	batchSize  int
	client     *http.Client
	limiter    *rate.Limiter
}

// OllamaOption configures an Ollama client.
type OllamaOption func(*Ollama)

// WithBaseURL sets the server URL.
func WithBaseURL(url string) OllamaOption {
	return func(o *Ollama) { o.baseURL = strings.TrimRight(url, "/") }
}

// WithModel sets the embedding model.
func WithModel(model string) OllamaOption {
	return func(o *Ollama) { o.model = model }
}

// WithDimensions sets the vector length the model must return.
func WithDimensions(dims int) OllamaOption {
	return func(o *Ollama) { o.dimensions = dims }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) OllamaOption {
	return func(o *Ollama) { o.client.Timeout = timeout }
}

// WithBatchSize sets how many texts go into one request. Non-positive
// values keep DefaultBatchSize.
func WithBatchSize(n int) OllamaOption {
	return func(o *Ollama) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithRateLimit caps requests per second. Non-positive disables limiting.
func WithRateLimit(rps float64) OllamaOption {
	return func(o *Ollama) {
		if rps <= 0 {
			o.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		o.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// NewOllama returns a client for DefaultModel on DefaultOllamaURL unless
// options say otherwise.
func NewOllama(opts ...OllamaOption) *Ollama {
	o := &Ollama{
		baseURL:    DefaultOllamaURL,
		model:      DefaultModel,
		dimensions: DefaultDimensions,
		batchSize:  DefaultBatchSize,
		client:     &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ModelName implements Provider.
func (o *Ollama) ModelName() string { return o.model }

// Dimensions implements Provider.
func (o *Ollama) Dimensions() int { return o.dimensions }

// EmbedBatch implements Provider. The result is parallel to texts. Non-blank
// texts are sent in chunks of the batch size, one rate-limited request each.
func (o *Ollama) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	pending := make([]int, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			out[i] = make([]float32, o.dimensions)
			continue
		}
		pending = append(pending, i)
	}

	for start := 0; start < len(pending); start += o.batchSize {
		end := min(start+o.batchSize, len(pending))
		chunk := pending[start:end]

		input := make([]string, len(chunk))
		for n, i := range chunk {
			input[n] = texts[i]
		}
		vectors, err := o.embedChunk(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("embedding texts %d-%d of %d: %w", start+1, end, len(pending), err)
		}
		for n, i := range chunk {
			out[i] = vectors[n]
		}
	}
	return out, nil
}

func (o *Ollama) embedChunk(ctx context.Context, input []string) ([][]float32, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(embedRequest{Model: o.model, Input: input, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+apiPathEmbed, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOllamaUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: Ollama model %q", ErrModelNotFound, o.model)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, errorBody(resp.Body))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Embeddings) != len(input) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d texts", len(result.Embeddings), len(input))
	}
	for n, v := range result.Embeddings {
		if len(v) != o.dimensions {
			return nil, fmt.Errorf("embedding %d has %d dimensions, want %d (set ollama_dimensions)", n, len(v), o.dimensions)
		}
	}
	return result.Embeddings, nil
}

// Check verifies that the server answers and has the model pulled. A model
// named without a tag matches its ":latest" tag.
func (o *Ollama) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+apiPathTags, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w at %s: %v", ErrOllamaUnavailable, o.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d from %s", ErrOllamaUnavailable, resp.StatusCode, apiPathTags)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("decoding model list: %w", err)
	}
	for _, m := range tags.Models {
		if sameModel(m.Name, o.model) {
			return nil
		}
	}
	return fmt.Errorf("%w: Ollama model %q is not pulled (run 'ollama pull %s')", ErrModelNotFound, o.model, o.model)
}

func sameModel(listed, want string) bool {
	if listed == want {
		return true
	}
	return !strings.Contains(want, ":") && listed == want+":latest"
}

func errorBody(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil {
		return fmt.Sprintf("(unreadable body: %v)", err)
	}
	return strings.TrimSpace(string(data))
}

type embedRequest struct {
	Model    string   `json:"model"`
	Input    []string `json:"input"`
	Truncate bool     `json:"truncate"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}
