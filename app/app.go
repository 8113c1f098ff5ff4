// Package app wires the retrieval pipeline, agent loop, memory and stores
// into one runnable application.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chao-dotcom/RAGh-Tutor/agent"
	"github.com/chao-dotcom/RAGh-Tutor/config"
	"github.com/chao-dotcom/RAGh-Tutor/guard"
	"github.com/chao-dotcom/RAGh-Tutor/internal/metrics"
	"github.com/chao-dotcom/RAGh-Tutor/llm"
	"github.com/chao-dotcom/RAGh-Tutor/memory"
	"github.com/chao-dotcom/RAGh-Tutor/rag"
	"github.com/chao-dotcom/RAGh-Tutor/tools"
)

// App owns every component of a running instance. Components are exported
// so transports and tests can reach them directly.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	Provider      *llm.OpenAIClient
	Index         *rag.FlatIndex
	Keyword       *rag.BM25Index
	Retriever     *rag.Orchestrator
	Conversations *memory.ConversationStore
	Sessions      memory.SessionStore
	Archive       *memory.ArchiveStore
	Guard         *guard.BudgetGuard
	Tools         *tools.Registry
	Agent         *agent.Loop
	Metrics       *metrics.Collector

	redisClient *redis.Client
}

// New builds the full component graph from configuration. Redis and the
// SQLite archive are attached only when configured; everything else is
// always live.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	provider := llm.NewOpenAIClient(cfg.Provider, logger)
	collector := metrics.NewCollector()

	index := rag.NewFlatIndex(cfg.Provider.Dimensions, logger)
	keyword := rag.NewBM25Index(cfg.Retrieval.BM25, logger)
	reranker := rag.NewReranker(rag.NewEmbeddingScorer(provider), logger)
	expander := rag.NewExpander(cfg.Retrieval.Expansion, provider, logger)
	retriever := rag.NewOrchestrator(
		cfg.Retrieval.OrchestratorConfig,
		index, keyword, reranker, expander, provider, collector, logger,
	)

	counter := tokenCounter(cfg.Provider.Model, logger)
	summarizer := memory.NewModelSummarizer(provider, logger)
	conversations := memory.NewConversationStore(cfg.Memory, summarizer, counter, logger)

	budget := guard.NewBudgetGuard(cfg.Budget, logger)
	registry := tools.NewRegistry(logger)

	loop := agent.NewLoop(cfg.Agent, provider, retriever, registry, budget, conversations, collector, logger)

	a := &App{
		Config:        cfg,
		Logger:        logger,
		Provider:      provider,
		Index:         index,
		Keyword:       keyword,
		Retriever:     retriever,
		Conversations: conversations,
		Sessions:      memory.NewInMemorySessionStore(),
		Guard:         budget,
		Tools:         registry,
		Agent:         loop,
		Metrics:       collector,
	}

	if cfg.Redis.Addr != "" {
		a.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.Sessions = memory.NewRedisSessionStore(a.redisClient, cfg.Redis.SessionTTL, logger)
	}

	if cfg.Archive.Path != "" {
		archive, err := memory.NewArchiveStore(cfg.Archive.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("open session archive: %w", err)
		}
		a.Archive = archive
	}

	return a, nil
}

// tokenCounter prefers exact tiktoken counts and falls back to the word
// heuristic for models tiktoken does not know.
func tokenCounter(model string, logger *zap.Logger) memory.TokenCounter {
	counter, err := memory.NewTiktokenCounter(model)
	if err != nil {
		logger.Warn("tiktoken unavailable, using heuristic token counts",
			zap.String("model", model),
			zap.Error(err))
		return memory.HeuristicCounter{}
	}
	return counter
}

// IndexChunks embeds and indexes a batch of chunks, then rebuilds the
// keyword index so vector and keyword positions stay aligned.
func (a *App) IndexChunks(ctx context.Context, chunks []rag.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	embeddings, err := a.Provider.Encode(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	if err := a.Index.Add(embeddings, chunks); err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}

	a.Keyword.SetChunks(a.Index.Chunks())
	a.Keyword.BuildIndex()

	a.Logger.Info("chunks indexed",
		zap.Int("batch", len(chunks)),
		zap.Int("total", a.Index.Size()))
	return nil
}

// SaveSession exports a live conversation to the session store and, when
// configured, the archive.
func (a *App) SaveSession(ctx context.Context, sessionID string) error {
	snap, ok := a.Conversations.Export(sessionID)
	if !ok {
		return memory.ErrSessionNotFound
	}
	if err := a.Sessions.Save(ctx, snap); err != nil {
		return err
	}
	if a.Archive != nil {
		if err := a.Archive.Save(ctx, snap); err != nil {
			return err
		}
	}
	return nil
}

// RestoreSession loads a snapshot from the session store, falling back to
// the archive, and imports it as live conversation state.
func (a *App) RestoreSession(ctx context.Context, sessionID string) error {
	snap, err := a.Sessions.Load(ctx, sessionID)
	if err != nil {
		if a.Archive == nil {
			return err
		}
		snap, err = a.Archive.Load(ctx, sessionID)
		if err != nil {
			return err
		}
	}
	a.Conversations.Import(snap)
	return nil
}

// Shutdown releases external resources. Safe to call once.
func (a *App) Shutdown() error {
	var firstErr error
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			firstErr = err
		}
	}
	if a.Archive != nil {
		if err := a.Archive.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
