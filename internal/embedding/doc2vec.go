package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/matsen/refy/internal/progress"
)

// Doc2Vec defaults.
const (
	DefaultDoc2VecDimensions = 100
	DefaultDoc2VecEpochs     = 10
	DefaultNegativeSamples   = 5
	DefaultMinCount          = 2
	DefaultAlpha             = 0.025
	DefaultMinAlpha          = 0.0001
	DefaultInferEpochs       = 20
)

// Doc2VecConfig controls paragraph-vector training.
type Doc2VecConfig struct {
	Dimensions  int     // Vector size
	Epochs      int     // Passes over the corpus
	Negative    int     // Negative samples per positive word
	MinCount    int     // Words rarer than this are dropped from the vocabulary
	Alpha       float64 // Starting learning rate
	MinAlpha    float64 // Learning rate reached in the last epoch
	InferEpochs int     // Passes used when inferring a vector for unseen text
	Seed        uint64
}

func (c Doc2VecConfig) withDefaults() Doc2VecConfig {
	if c.Dimensions <= 0 {
		c.Dimensions = DefaultDoc2VecDimensions
	}
	if c.Epochs <= 0 {
		c.Epochs = DefaultDoc2VecEpochs
	}
	if c.Negative <= 0 {
		c.Negative = DefaultNegativeSamples
	}
	if c.MinCount <= 0 {
		c.MinCount = DefaultMinCount
	}
	if c.Alpha <= 0 {
		c.Alpha = DefaultAlpha
	}
	if c.MinAlpha <= 0 || c.MinAlpha > c.Alpha {
		c.MinAlpha = math.Min(DefaultMinAlpha, c.Alpha)
	}
	if c.InferEpochs <= 0 {
		c.InferEpochs = DefaultInferEpochs
	}
	return c
}

// Doc2Vec is a dense paragraph-vector model trained with the distributed
// bag-of-words objective (PV-DBOW) and negative sampling. A document vector
// is learned to predict the words of its document; at query time the word
// output weights are frozen and only the new document vector is fit.
type Doc2Vec struct {
	cfg    Doc2VecConfig
	vocab  map[string]int32
	words  []string
	freq   []int
	output [][]float32 // per-word output weights
	noise  []float64   // cumulative unigram^0.75 distribution
}

// FitDoc2Vec trains a model on corpus. Progress is reported once per epoch.
// Training is single-threaded and reproducible for a given Seed.
func FitDoc2Vec(ctx context.Context, corpus Corpus, cfg Doc2VecConfig, reporter progress.Reporter) (*Doc2Vec, error) {
	if len(corpus) == 0 {
		return nil, ErrEmptyCorpus
	}
	cfg = cfg.withDefaults()

	ids := corpus.sortedIDs()
	docs := make([][]string, len(ids))
	counts := make(map[string]int)
	for i, id := range ids {
		docs[i] = Tokenize(corpus[id])
		for _, tok := range docs[i] {
			counts[tok]++
		}
	}

	words := make([]string, 0, len(counts))
	for w, n := range counts {
		if n >= cfg.MinCount {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("%w: no word occurs at least %d times", ErrEmptyCorpus, cfg.MinCount)
	}
	sort.Strings(words)

	m := &Doc2Vec{cfg: cfg, words: words, vocab: make(map[string]int32, len(words))}
	freq := make([]int, len(words))
	for i, w := range words {
		m.vocab[w] = int32(i)
		freq[i] = counts[w]
	}
	m.freq = freq
	m.noise = noiseDistribution(freq)
	m.output = make([][]float32, len(words))
	for i := range m.output {
		m.output[i] = make([]float32, cfg.Dimensions)
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed+1))
	docVecs := make([][]float32, len(docs))
	encoded := make([][]int32, len(docs))
	for i, doc := range docs {
		docVecs[i] = randomVector(rng, cfg.Dimensions)
		encoded[i] = m.encode(doc)
	}

	grad := make([]float32, cfg.Dimensions)
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		alpha := decayedAlpha(cfg.Alpha, cfg.MinAlpha, epoch, cfg.Epochs)
		for i, doc := range encoded {
			for _, w := range doc {
				m.step(rng, docVecs[i], w, float32(alpha), grad, true)
			}
		}
		progress.Report(reporter, "fitting doc2vec", epoch+1, cfg.Epochs)
	}
	return m, nil
}

// Embed infers a vector for text without touching the trained weights. The
// inference RNG is seeded from the text, so the same text always yields the
// same vector. Text with no vocabulary words yields the zero vector.
func (m *Doc2Vec) Embed(text string) Vector {
	words := m.encode(Tokenize(text))
	if len(words) == 0 {
		return NewDense(make([]float32, m.cfg.Dimensions))
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64() ^ m.cfg.Seed
	rng := rand.New(rand.NewPCG(seed, seed+1))

	vec := randomVector(rng, m.cfg.Dimensions)
	grad := make([]float32, m.cfg.Dimensions)
	for epoch := 0; epoch < m.cfg.InferEpochs; epoch++ {
		alpha := decayedAlpha(m.cfg.Alpha, m.cfg.MinAlpha, epoch, m.cfg.InferEpochs)
		for _, w := range words {
			m.step(rng, vec, w, float32(alpha), grad, false)
		}
	}
	return NewDense(vec)
}

// Kind implements Model.
func (m *Doc2Vec) Kind() Kind {
	return KindDense
}

// Name implements Model.
func (m *Doc2Vec) Name() string {
	return fmt.Sprintf("doc2vec-%d", m.cfg.Dimensions)
}

// Dimensions returns the vector size.
func (m *Doc2Vec) Dimensions() int {
	return m.cfg.Dimensions
}

func (m *Doc2Vec) encode(tokens []string) []int32 {
	out := make([]int32, 0, len(tokens))
	for _, tok := range tokens {
		if idx, ok := m.vocab[tok]; ok {
			out = append(out, idx)
		}
	}
	return out
}

// step applies one negative-sampling update for (doc, word). Output weights
// are updated only when train is set.
func (m *Doc2Vec) step(rng *rand.Rand, doc []float32, word int32, alpha float32, grad []float32, train bool) {
	for i := range grad {
		grad[i] = 0
	}
	for n := 0; n <= m.cfg.Negative; n++ {
		target, label := word, float32(1)
		if n > 0 {
			target = m.sampleNoise(rng)
			if target == word {
				continue
			}
			label = 0
		}
		out := m.output[target]
		var dot float32
		for i := range doc {
			dot += doc[i] * out[i]
		}
		g := (label - sigmoid(dot)) * alpha
		for i := range doc {
			grad[i] += g * out[i]
			if train {
				out[i] += g * doc[i]
			}
		}
	}
	for i := range doc {
		doc[i] += grad[i]
	}
}

func (m *Doc2Vec) sampleNoise(rng *rand.Rand) int32 {
	r := rng.Float64() * m.noise[len(m.noise)-1]
	return int32(sort.SearchFloat64s(m.noise, r))
}

func noiseDistribution(freq []int) []float64 {
	cum := make([]float64, len(freq))
	var total float64
	for i, f := range freq {
		total += math.Pow(float64(f), 0.75)
		cum[i] = total
	}
	return cum
}

func randomVector(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32((rng.Float64() - 0.5) / float64(dim))
	}
	return v
}

// decayedAlpha decreases the learning rate linearly from alpha in the first
// epoch to minAlpha in the last.
func decayedAlpha(alpha, minAlpha float64, epoch, epochs int) float64 {
	if epochs <= 1 {
		return alpha
	}
	return alpha - (alpha-minAlpha)*float64(epoch)/float64(epochs-1)
}

func sigmoid(x float32) float32 {
	switch {
	case x > 6:
		return 1
	case x < -6:
		return 0
	}
	return float32(1 / (1 + math.Exp(-float64(x))))
}

// doc2vecState is the gob form of a Doc2Vec model.
type doc2vecState struct {
	Config Doc2VecConfig
	Words  []string
	Output [][]float32
	Freq   []int
}

func (m *Doc2Vec) state() *doc2vecState {
	return &doc2vecState{Config: m.cfg, Words: m.words, Output: m.output, Freq: m.freq}
}

func doc2vecFromState(s *doc2vecState) (*Doc2Vec, error) {
	if len(s.Words) != len(s.Output) || len(s.Words) != len(s.Freq) {
		return nil, fmt.Errorf("doc2vec model is inconsistent: %d words, %d weight rows, %d frequencies",
			len(s.Words), len(s.Output), len(s.Freq))
	}
	m := &Doc2Vec{
		cfg:    s.Config.withDefaults(),
		words:  s.Words,
		output: s.Output,
		freq:   s.Freq,
		vocab:  make(map[string]int32, len(s.Words)),
		noise:  noiseDistribution(s.Freq),
	}
	for i, w := range s.Words {
		m.vocab[w] = int32(i)
	}
	return m, nil
}
