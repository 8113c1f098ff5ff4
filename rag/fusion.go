package rag

import "sort"

// DefaultAlpha weights the vector score in fused results. The keyword
// score carries the remaining 1-alpha.
const DefaultAlpha = 0.7

// Fuser combines vector search hits with corpus-aligned keyword scores
// into one ranked list.
type Fuser struct {
	alpha float64
}

// NewFuser creates a fuser. An alpha outside (0,1] falls back to
// DefaultAlpha.
func NewFuser(alpha float64) *Fuser {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return &Fuser{alpha: alpha}
}

type fusedEntry struct {
	chunk   Chunk
	vector  float64
	keyword float64
	pos     int
}

// Fuse merges vector hits with keyword scores for the full corpus.
// Keyword scores are normalized by the batch maximum (zero when the
// maximum is zero); vector similarities are used as-is. A candidate
// present in only one source scores zero for the missing source.
// Output is sorted by descending combined score and truncated to topK
// (topK <= 0 keeps everything).
func (f *Fuser) Fuse(vectorHits []ScoredChunk, keywordScores []float64, corpus []Chunk, topK int) []ScoredChunk {
	entries := make(map[string]*fusedEntry, len(vectorHits)+len(keywordScores))
	order := 0

	for _, hit := range vectorHits {
		entries[hit.Chunk.ID] = &fusedEntry{chunk: hit.Chunk, vector: hit.Score, pos: order}
		order++
	}

	var maxKeyword float64
	for _, s := range keywordScores {
		if s > maxKeyword {
			maxKeyword = s
		}
	}
	for i, s := range keywordScores {
		if i >= len(corpus) {
			break
		}
		norm := 0.0
		if maxKeyword > 0 {
			norm = s / maxKeyword
		}
		if e, ok := entries[corpus[i].ID]; ok {
			e.keyword = norm
			continue
		}
		entries[corpus[i].ID] = &fusedEntry{chunk: corpus[i], keyword: norm, pos: order}
		order++
	}

	fused := make([]ScoredChunk, 0, len(entries))
	flat := make([]*fusedEntry, 0, len(entries))
	for _, e := range entries {
		flat = append(flat, e)
	}
	// Map iteration is unordered; restore first-seen order before the
	// stable sort so equal scores rank deterministically.
	sort.Slice(flat, func(a, b int) bool { return flat[a].pos < flat[b].pos })
	sort.SliceStable(flat, func(a, b int) bool {
		return f.combined(flat[a]) > f.combined(flat[b])
	})

	for _, e := range flat {
		fused = append(fused, ScoredChunk{Chunk: e.chunk, Score: f.combined(e), Stage: StageFused})
	}
	if topK > 0 && len(fused) > topK {
		fused = fused[:topK]
	}
	return fused
}

func (f *Fuser) combined(e *fusedEntry) float64 {
	return f.alpha*e.vector + (1-f.alpha)*e.keyword
}
