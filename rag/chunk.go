package rag

import "time"

// Chunk is the immutable unit of retrievable text. Chunks are created at
// ingestion time and owned by the indexes until Clear.
type Chunk struct {
	ID        string            `json:"chunk_id"`
	DocID     string            `json:"doc_id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Embedding []float64         `json:"embedding,omitempty"`
}

// Stage identifies which pipeline stage produced a score. Scores from
// different stages are not comparable without renormalization.
type Stage string

const (
	StageVector   Stage = "vector"
	StageFused    Stage = "fused"
	StageReranked Stage = "reranked"
)

// ScoredChunk pairs a chunk with a stage-specific relevance score.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
	Stage Stage   `json:"stage,omitempty"`
}

// Result is an ordered retrieval result (highest score first) with the
// wall-clock latency of the whole call. It never contains two entries
// with the same chunk ID.
type Result struct {
	Chunks  []ScoredChunk `json:"chunks"`
	Latency time.Duration `json:"latency"`
}
