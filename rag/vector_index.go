package rag

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// FlatIndex is a brute-force nearest-neighbor store over chunk embeddings.
// Vectors are L2-normalized on insert so inner product equals cosine
// similarity. Reads take a shared lock; Add and Clear take an exclusive
// lock, so in-flight searches always observe a consistent snapshot.
type FlatIndex struct {
	mu      sync.RWMutex
	dim     int
	vectors [][]float64
	chunks  []Chunk
	byID    map[string]int
	logger  *zap.Logger
}

// NewFlatIndex creates an empty index for vectors of the given dimension.
func NewFlatIndex(dim int, logger *zap.Logger) *FlatIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FlatIndex{
		dim:    dim,
		byID:   make(map[string]int),
		logger: logger,
	}
}

// Add appends vectors and their chunks to the index. The two slices must
// have equal length and every vector must match the index dimension.
func (x *FlatIndex) Add(vectors [][]float64, chunks []Chunk) error {
	if len(vectors) != len(chunks) {
		return dimensionError("%d vectors for %d chunks", len(vectors), len(chunks))
	}
	for i, v := range vectors {
		if len(v) != x.dim {
			return dimensionError("vector %d has dimension %d, index expects %d", i, len(v), x.dim)
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	for i, v := range vectors {
		pos := len(x.chunks)
		x.vectors = append(x.vectors, normalize(v))
		x.chunks = append(x.chunks, chunks[i])
		if _, ok := x.byID[chunks[i].ID]; ok {
			x.logger.Warn("duplicate chunk id, keeping first position",
				zap.String("chunk_id", chunks[i].ID))
			continue
		}
		x.byID[chunks[i].ID] = pos
	}

	x.logger.Info("vectors added to index",
		zap.Int("count", len(vectors)),
		zap.Int("total", len(x.chunks)))
	return nil
}

// Search returns up to k chunks sorted by descending cosine similarity.
// Ties keep insertion order. An empty index yields an empty result.
func (x *FlatIndex) Search(query []float64, k int) ([]ScoredChunk, error) {
	if len(query) != x.dim {
		return nil, dimensionError("query has dimension %d, index expects %d", len(query), x.dim)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.chunks) == 0 {
		return []ScoredChunk{}, nil
	}

	q := normalize(query)
	order := make([]int, len(x.vectors))
	scores := make([]float64, len(x.vectors))
	for i, v := range x.vectors {
		order[i] = i
		scores[i] = dot(q, v)
	}

	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if k > len(order) {
		k = len(order)
	}
	results := make([]ScoredChunk, 0, k)
	for _, idx := range order[:k] {
		results = append(results, ScoredChunk{
			Chunk: x.chunks[idx],
			Score: scores[idx],
			Stage: StageVector,
		})
	}
	return results, nil
}

// GetByID returns the chunk stored under the given id.
func (x *FlatIndex) GetByID(chunkID string) (Chunk, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	pos, ok := x.byID[chunkID]
	if !ok {
		return Chunk{}, false
	}
	return x.chunks[pos], true
}

// Size reports the number of indexed chunks.
func (x *FlatIndex) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.chunks)
}

// Dimensions reports the vector dimension the index was built for.
func (x *FlatIndex) Dimensions() int { return x.dim }

// Chunks returns the indexed chunks in insertion order. The returned slice
// is a snapshot; callers must not mutate the contained chunks.
func (x *FlatIndex) Chunks() []Chunk {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]Chunk, len(x.chunks))
	copy(out, x.chunks)
	return out
}

// Clear atomically resets the index to empty.
func (x *FlatIndex) Clear() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.vectors = nil
	x.chunks = nil
	x.byID = make(map[string]int)
	x.logger.Info("vector index cleared")
}

// indexSnapshot is the persisted on-disk shape.
type indexSnapshot struct {
	Dim     int         `json:"dim"`
	Vectors [][]float64 `json:"vectors"`
	Chunks  []Chunk     `json:"chunks"`
}

// Save writes the index to path. Load on the same file restores an
// identical index.
func (x *FlatIndex) Save(path string) error {
	x.mu.RLock()
	snap := indexSnapshot{Dim: x.dim, Vectors: x.vectors, Chunks: x.chunks}
	data, err := json.Marshal(snap)
	x.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	x.logger.Info("vector index saved", zap.String("path", path))
	return nil
}

// Load replaces the index contents with the snapshot stored at path.
func (x *FlatIndex) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read index: %w", err)
	}
	var snap indexSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("unmarshal index: %w", err)
	}

	byID := make(map[string]int, len(snap.Chunks))
	for i, c := range snap.Chunks {
		if _, ok := byID[c.ID]; !ok {
			byID[c.ID] = i
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.dim = snap.Dim
	x.vectors = snap.Vectors
	x.chunks = snap.Chunks
	x.byID = byID
	x.logger.Info("vector index loaded",
		zap.String("path", path),
		zap.Int("chunks", len(snap.Chunks)))
	return nil
}

func normalize(v []float64) []float64 {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	out := make([]float64, len(v))
	if norm == 0 {
		copy(out, v)
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
