package rag

import (
	"context"
	"fmt"
)

// EmbeddingScorer scores query/passage pairs by embedding cosine
// similarity. It is a stand-in for a dedicated cross-encoder when none is
// deployed; scores stay in the same [-1, 1] range.
type EmbeddingScorer struct {
	embedder EmbeddingProvider
}

// NewEmbeddingScorer creates a scorer backed by the given embedder.
func NewEmbeddingScorer(embedder EmbeddingProvider) *EmbeddingScorer {
	return &EmbeddingScorer{embedder: embedder}
}

// Score embeds the query and all passages in one batch and returns the
// cosine similarity of each passage against the query.
func (s *EmbeddingScorer) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return []float64{}, nil
	}
	inputs := append([]string{query}, passages...)
	vectors, err := s.embedder.Encode(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("embed passages: %w", err)
	}
	if len(vectors) != len(inputs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(vectors), len(inputs))
	}

	queryVec := normalize(vectors[0])
	scores := make([]float64, len(passages))
	for i, vec := range vectors[1:] {
		scores[i] = dot(queryVec, normalize(vec))
	}
	return scores, nil
}
