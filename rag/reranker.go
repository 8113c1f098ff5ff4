package rag

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

// RelevanceScorer scores (query, passage) pairs with a pairwise relevance
// model. Implementations batch internally; one score per passage, same
// order.
type RelevanceScorer interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// Reranker reorders a candidate shortlist by pairwise relevance. The new
// score replaces the candidate's previous score entirely. Without a
// working scorer the reranker degrades to passing through the first k
// candidates unchanged; degraded mode is not an error.
type Reranker struct {
	scorer RelevanceScorer
	logger *zap.Logger
}

// NewReranker creates a reranker. A nil scorer is valid and selects the
// degraded pass-through mode.
func NewReranker(scorer RelevanceScorer, logger *zap.Logger) *Reranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reranker{scorer: scorer, logger: logger}
}

// Rerank scores each candidate against the query and returns the top k by
// new score.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []ScoredChunk, topK int) []ScoredChunk {
	if len(candidates) == 0 {
		return []ScoredChunk{}
	}
	if r.scorer == nil {
		return passthrough(candidates, topK)
	}

	passages := make([]string, len(candidates))
	for i, c := range candidates {
		passages[i] = c.Chunk.Content
	}

	scores, err := r.scorer.Score(ctx, query, passages)
	if err != nil || len(scores) != len(candidates) {
		r.logger.Warn("relevance scorer unavailable, passing candidates through",
			zap.Error(err),
			zap.Int("candidates", len(candidates)))
		return passthrough(candidates, topK)
	}

	reranked := make([]ScoredChunk, len(candidates))
	for i, c := range candidates {
		reranked[i] = ScoredChunk{Chunk: c.Chunk, Score: scores[i], Stage: StageReranked}
	}
	sort.SliceStable(reranked, func(a, b int) bool {
		return reranked[a].Score > reranked[b].Score
	})
	if topK > 0 && len(reranked) > topK {
		reranked = reranked[:topK]
	}
	return reranked
}

func passthrough(candidates []ScoredChunk, topK int) []ScoredChunk {
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	out := make([]ScoredChunk, len(candidates))
	copy(out, candidates)
	return out
}
