package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mappedEmbedder struct {
	vectors map[string][]float64
}

func (m *mappedEmbedder) Encode(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = m.vectors[text]
	}
	return out, nil
}

func TestEmbeddingScorerOrdersBySimilarity(t *testing.T) {
	t.Parallel()

	embedder := &mappedEmbedder{vectors: map[string][]float64{
		"query":    {1, 0, 0},
		"close":    {0.9, 0.1, 0},
		"far":      {0, 1, 0},
		"opposite": {-1, 0, 0},
	}}
	scorer := NewEmbeddingScorer(embedder)

	scores, err := scorer.Score(context.Background(), "query", []string{"close", "far", "opposite"})
	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.Greater(t, scores[0], scores[1])
	assert.Greater(t, scores[1], scores[2])
	assert.Less(t, scores[2], 0.0)
}

func TestEmbeddingScorerEmptyPassages(t *testing.T) {
	t.Parallel()

	scorer := NewEmbeddingScorer(&mappedEmbedder{})
	scores, err := scorer.Score(context.Background(), "query", nil)
	require.NoError(t, err)
	assert.Empty(t, scores)
}
