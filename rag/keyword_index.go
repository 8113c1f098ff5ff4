package rag

import (
	"math"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// BM25Config holds the BM25 shape parameters.
type BM25Config struct {
	K1 float64 `json:"k1" yaml:"k1"`
	B  float64 `json:"b" yaml:"b"`
}

// DefaultBM25Config returns the usual k1/b defaults.
func DefaultBM25Config() BM25Config {
	return BM25Config{K1: 1.5, B: 0.75}
}

// BM25Index is a term-frequency/inverse-document-frequency keyword index
// over the same chunk ordering as the vector index. There is no
// incremental update: SetChunks invalidates the index and BuildIndex must
// run before the next query. Querying a stale index would score positions
// that no longer match the current corpus.
type BM25Index struct {
	config BM25Config

	mu        sync.RWMutex
	chunks    []Chunk
	docTerms  []map[string]int
	docLens   []int
	avgDocLen float64
	idf       map[string]float64
	built     bool

	logger *zap.Logger
}

// NewBM25Index creates an empty keyword index.
func NewBM25Index(config BM25Config, logger *zap.Logger) *BM25Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BM25Index{
		config: config,
		idf:    make(map[string]float64),
		logger: logger,
	}
}

// SetChunks replaces the corpus and marks the index stale. Positions must
// align with the vector index chunk ordering for fusion to be meaningful.
func (x *BM25Index) SetChunks(chunks []Chunk) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.chunks = chunks
	x.built = false
}

// BuildIndex recomputes term statistics for the current corpus.
func (x *BM25Index) BuildIndex() {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.docTerms = make([]map[string]int, len(x.chunks))
	x.docLens = make([]int, len(x.chunks))
	x.idf = make(map[string]float64)

	totalLen := 0
	docCount := make(map[string]int)
	for i, c := range x.chunks {
		terms := tokenize(c.Content)
		freq := make(map[string]int, len(terms))
		for _, t := range terms {
			freq[t]++
		}
		x.docTerms[i] = freq
		x.docLens[i] = len(terms)
		totalLen += len(terms)
		for t := range freq {
			docCount[t]++
		}
	}

	if len(x.chunks) > 0 {
		x.avgDocLen = float64(totalLen) / float64(len(x.chunks))
	}
	n := float64(len(x.chunks))
	for term, df := range docCount {
		x.idf[term] = math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1.0)
	}

	x.built = true
	x.logger.Info("bm25 index built",
		zap.Int("chunks", len(x.chunks)),
		zap.Int("terms", len(x.idf)))
}

// Built reports whether the index matches the current corpus.
func (x *BM25Index) Built() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.built
}

// Size reports the corpus size.
func (x *BM25Index) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.chunks)
}

// Chunks returns the corpus in index position order.
func (x *BM25Index) Chunks() []Chunk {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]Chunk, len(x.chunks))
	copy(out, x.chunks)
	return out
}

// Scores returns one BM25 score per corpus position for the query.
// It fails with ErrIndexNotReady until BuildIndex has run for the
// current corpus.
func (x *BM25Index) Scores(query string) ([]float64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if !x.built {
		return nil, ErrIndexNotReady
	}

	queryTerms := tokenize(query)
	scores := make([]float64, len(x.chunks))
	for i := range x.chunks {
		docLen := float64(x.docLens[i])
		var score float64
		for _, qt := range queryTerms {
			tf, ok := x.docTerms[i][qt]
			if !ok {
				continue
			}
			idf := x.idf[qt]
			num := float64(tf) * (x.config.K1 + 1.0)
			den := float64(tf) + x.config.K1*(1.0-x.config.B+x.config.B*(docLen/x.avgDocLen))
			score += idf * (num / den)
		}
		scores[i] = score
	}
	return scores, nil
}

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `.,;:!?"'()[]{}`)
		if f != "" {
			terms = append(terms, f)
		}
	}
	return terms
}
