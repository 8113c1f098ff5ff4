package rag

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chao-dotcom/RAGh-Tutor/internal/metrics"
)

// EmbeddingProvider is the minimal embedding contract the orchestrator
// needs: one fixed-dimension vector per input text.
type EmbeddingProvider interface {
	Encode(ctx context.Context, texts []string) ([][]float64, error)
}

// OrchestratorConfig configures the retrieval pipeline.
type OrchestratorConfig struct {
	// TopK is the default result count when a call passes topK <= 0.
	TopK int `json:"top_k" yaml:"top_k"`
	// UseHybrid enables keyword search and score fusion.
	UseHybrid bool `json:"use_hybrid" yaml:"use_hybrid"`
	// Alpha weights the vector score during fusion.
	Alpha float64 `json:"alpha" yaml:"alpha"`
	// CandidateMultiplier widens per-variant candidate fetches to leave
	// room for reranking loss.
	CandidateMultiplier int `json:"candidate_multiplier" yaml:"candidate_multiplier"`
	// DocFilterMultiplier widens the unfiltered fetch in
	// RetrieveByDocument before the doc-id filter runs.
	DocFilterMultiplier int `json:"doc_filter_multiplier" yaml:"doc_filter_multiplier"`
}

// DefaultOrchestratorConfig returns the default pipeline settings.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		TopK:                10,
		UseHybrid:           false,
		Alpha:               DefaultAlpha,
		CandidateMultiplier: 2,
		DocFilterMultiplier: 3,
	}
}

// Orchestrator composes query expansion, vector/keyword search, fusion,
// deduplication and reranking into one Retrieve call.
type Orchestrator struct {
	config   OrchestratorConfig
	index    *FlatIndex
	keyword  *BM25Index
	fuser    *Fuser
	reranker *Reranker
	expander *Expander
	embedder EmbeddingProvider

	metrics *metrics.Collector
	tracer  trace.Tracer
	logger  *zap.Logger
}

// NewOrchestrator wires the pipeline. keyword and expander may be nil;
// hybrid search requires a keyword index, expansion requires an expander.
func NewOrchestrator(
	config OrchestratorConfig,
	index *FlatIndex,
	keyword *BM25Index,
	reranker *Reranker,
	expander *Expander,
	embedder EmbeddingProvider,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.TopK <= 0 {
		config.TopK = DefaultOrchestratorConfig().TopK
	}
	if config.CandidateMultiplier <= 0 {
		config.CandidateMultiplier = 2
	}
	if config.DocFilterMultiplier <= 0 {
		config.DocFilterMultiplier = 3
	}
	if reranker == nil {
		reranker = NewReranker(nil, logger)
	}
	return &Orchestrator{
		config:   config,
		index:    index,
		keyword:  keyword,
		fuser:    NewFuser(config.Alpha),
		reranker: reranker,
		expander: expander,
		embedder: embedder,
		metrics:  collector,
		tracer:   otel.Tracer("rag"),
		logger:   logger,
	}
}

// Retrieve runs the full pipeline: expand the query, search every variant
// for 2x topK candidates, merge with first-occurrence dedup by chunk id,
// then rerank (or sort and truncate) down to topK. An embedding failure
// aborts the whole call; an empty corpus yields an empty result.
func (o *Orchestrator) Retrieve(ctx context.Context, query string, topK int, rerank, expand bool) (Result, error) {
	start := time.Now()
	if topK <= 0 {
		topK = o.config.TopK
	}

	ctx, span := o.tracer.Start(ctx, "rag.Retrieve", trace.WithAttributes(
		attribute.Int("top_k", topK),
		attribute.Bool("rerank", rerank),
		attribute.Bool("expand", expand),
	))
	defer span.End()

	variants := []string{query}
	if expand && o.expander != nil {
		variants = o.expander.Expand(ctx, query)
	}
	span.SetAttributes(attribute.Int("variants", len(variants)))

	if o.index.Size() == 0 {
		return Result{Chunks: []ScoredChunk{}, Latency: time.Since(start)}, nil
	}

	embeddings, err := o.embedder.Encode(ctx, variants)
	if err != nil {
		o.metrics.ObserveRetrieval(time.Since(start), err)
		return Result{}, fmt.Errorf("embed query variants: %w", err)
	}
	if len(embeddings) != len(variants) {
		err := fmt.Errorf("embedder returned %d vectors for %d variants", len(embeddings), len(variants))
		o.metrics.ObserveRetrieval(time.Since(start), err)
		return Result{}, err
	}

	perVariant, err := o.searchVariants(ctx, variants, embeddings, topK*o.config.CandidateMultiplier)
	if err != nil {
		o.metrics.ObserveRetrieval(time.Since(start), err)
		return Result{}, err
	}

	merged := dedupeByID(perVariant)

	var final []ScoredChunk
	if rerank {
		final = o.reranker.Rerank(ctx, query, merged, topK)
	} else {
		sort.SliceStable(merged, func(a, b int) bool { return merged[a].Score > merged[b].Score })
		if len(merged) > topK {
			merged = merged[:topK]
		}
		final = merged
	}

	latency := time.Since(start)
	o.metrics.ObserveRetrieval(latency, nil)
	o.logger.Debug("retrieval completed",
		zap.Int("variants", len(variants)),
		zap.Int("results", len(final)),
		zap.Duration("latency", latency))

	return Result{Chunks: final, Latency: latency}, nil
}

// RetrieveByDocument restricts results to the given documents. It runs a
// wider unfiltered retrieval, filters candidates by doc id, and reranks
// only the survivors so ranking quality among allowed documents is
// preserved.
func (o *Orchestrator) RetrieveByDocument(ctx context.Context, query string, docIDs []string, topK int) ([]ScoredChunk, error) {
	if topK <= 0 {
		topK = o.config.TopK
	}

	wide, err := o.Retrieve(ctx, query, topK*o.config.DocFilterMultiplier, false, false)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]bool, len(docIDs))
	for _, id := range docIDs {
		allowed[id] = true
	}
	filtered := make([]ScoredChunk, 0, len(wide.Chunks))
	for _, sc := range wide.Chunks {
		if allowed[sc.Chunk.DocID] {
			filtered = append(filtered, sc)
		}
	}
	if len(filtered) == 0 {
		return []ScoredChunk{}, nil
	}
	return o.reranker.Rerank(ctx, query, filtered, topK), nil
}

// searchVariants fans the per-variant searches out concurrently and
// collects results indexed by variant so the merge order stays stable
// (original query first).
func (o *Orchestrator) searchVariants(ctx context.Context, variants []string, embeddings [][]float64, candidates int) ([][]ScoredChunk, error) {
	perVariant := make([][]ScoredChunk, len(variants))

	var corpus []Chunk
	hybrid := o.config.UseHybrid && o.keyword != nil
	if hybrid {
		corpus = o.keyword.Chunks()
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range variants {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			hits, err := o.index.Search(embeddings[i], candidates)
			if err != nil {
				return fmt.Errorf("vector search variant %d: %w", i, err)
			}
			if hybrid {
				keywordScores, err := o.keyword.Scores(variants[i])
				if err != nil {
					return fmt.Errorf("keyword search variant %d: %w", i, err)
				}
				hits = o.fuser.Fuse(hits, keywordScores, corpus, candidates)
			}
			perVariant[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return perVariant, nil
}

// dedupeByID flattens variant results in order, keeping the first
// occurrence of each chunk id.
func dedupeByID(perVariant [][]ScoredChunk) []ScoredChunk {
	seen := make(map[string]bool)
	var merged []ScoredChunk
	for _, hits := range perVariant {
		for _, sc := range hits {
			if seen[sc.Chunk.ID] {
				continue
			}
			seen[sc.Chunk.ID] = true
			merged = append(merged, sc)
		}
	}
	return merged
}
