package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chao-dotcom/RAGh-Tutor/guard"
	"github.com/chao-dotcom/RAGh-Tutor/llm"
	"github.com/chao-dotcom/RAGh-Tutor/memory"
	"github.com/chao-dotcom/RAGh-Tutor/rag"
	"github.com/chao-dotcom/RAGh-Tutor/tools"
)

// scriptedProvider replays a fixed sequence of tool-capable outcomes and
// a fixed plain answer.
type scriptedProvider struct {
	mu          sync.Mutex
	answer      string
	generateErr error
	deltas      []string
	streamErr   error
	outcomes    []*llm.Outcome
	toolCallErr error
	toolCalls   int
}

func (p *scriptedProvider) Generate(_ context.Context, _, _ string) (string, error) {
	if p.generateErr != nil {
		return "", p.generateErr
	}
	return p.answer, nil
}

func (p *scriptedProvider) GenerateStream(_ context.Context, _, _ string) (<-chan llm.StreamChunk, error) {
	if p.streamErr != nil {
		return nil, p.streamErr
	}
	out := make(chan llm.StreamChunk, len(p.deltas))
	for _, d := range p.deltas {
		out <- llm.StreamChunk{Delta: d}
	}
	close(out)
	return out, nil
}

func (p *scriptedProvider) GenerateWithTools(_ context.Context, _ string, _ []llm.ToolSchema, _ string) (*llm.Outcome, error) {
	if p.toolCallErr != nil {
		return nil, p.toolCallErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.toolCalls >= len(p.outcomes) {
		return llm.ToolUse([]llm.ToolRequest{{Name: "lookup", Input: map[string]any{}}}), nil
	}
	outcome := p.outcomes[p.toolCalls]
	p.toolCalls++
	return outcome, nil
}

type stubRetriever struct {
	mu         sync.Mutex
	result     rag.Result
	err        error
	expandSeen []bool
}

func (r *stubRetriever) Retrieve(_ context.Context, _ string, _ int, _, expand bool) (rag.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expandSeen = append(r.expandSeen, expand)
	if r.err != nil {
		return rag.Result{}, r.err
	}
	return r.result, nil
}

func retrievedChunks() rag.Result {
	return rag.Result{Chunks: []rag.ScoredChunk{
		{Chunk: rag.Chunk{
			ID: "chunk-1", DocID: "doc-1",
			Content:  "Go maps are not safe for concurrent writes.",
			Metadata: map[string]string{"source": "go-guide", "filename": "maps.md"},
		}, Score: 0.9},
		{Chunk: rag.Chunk{
			ID: "chunk-2", DocID: "doc-1",
			Content:  "Guard shared maps with sync.RWMutex.",
			Metadata: map[string]string{"source": "go-guide", "filename": "maps.md"},
		}, Score: 0.8},
	}}
}

type loopFixture struct {
	loop      *Loop
	provider  *scriptedProvider
	retriever *stubRetriever
	registry  *tools.Registry
	memory    *memory.ConversationStore
	lookups   *int
}

func newLoopFixture(t *testing.T, config Config, budget guard.Config) *loopFixture {
	t.Helper()

	provider := &scriptedProvider{}
	retriever := &stubRetriever{result: retrievedChunks()}
	registry := tools.NewRegistry(nil)
	lookups := 0
	registry.RegisterFunc("lookup", "look up a fact", map[string]any{"type": "object"},
		func(_ context.Context, input tools.Input) (any, error) {
			lookups++
			return map[string]any{"found": true}, nil
		})
	conversations := memory.NewConversationStore(memory.ConversationStoreConfig{}, nil, nil, nil)

	return &loopFixture{
		loop: NewLoop(config, provider, retriever, registry,
			guard.NewBudgetGuard(budget, nil), conversations, nil, nil),
		provider:  provider,
		retriever: retriever,
		registry:  registry,
		memory:    conversations,
		lookups:   &lookups,
	}
}

func TestExecuteSimplePath(t *testing.T) {
	t.Parallel()

	f := newLoopFixture(t, Config{}, guard.Config{})
	f.provider.answer = "Protect the map with a mutex [chunk-2], see also [not-a-chunk]."

	result, err := f.loop.Execute(context.Background(), "How do Go maps behave with concurrency?", "s1")
	require.NoError(t, err)

	assert.Equal(t, 0, result.Iterations)
	assert.Empty(t, result.ToolsUsed)
	assert.Equal(t, 2, result.ChunksUsed)
	require.Len(t, result.Citations, 1)
	assert.Equal(t, Citation{
		ChunkID: "chunk-2", DocID: "doc-1", Source: "go-guide", Filename: "maps.md",
	}, result.Citations[0])

	// The simple path expands query variants.
	require.Len(t, f.retriever.expandSeen, 1)
	assert.True(t, f.retriever.expandSeen[0])
}

func TestExecuteAgenticFinalAnswer(t *testing.T) {
	t.Parallel()

	f := newLoopFixture(t, Config{}, guard.Config{})
	f.provider.outcomes = []*llm.Outcome{
		llm.ToolUse([]llm.ToolRequest{{Name: "lookup", Input: map[string]any{"city": "Paris"}}}),
		llm.ToolUse([]llm.ToolRequest{{Name: "lookup", Input: map[string]any{"city": "Lyon"}}}),
		llm.FinalAnswer("It is sunny [chunk-1]."),
	}

	result, err := f.loop.Execute(context.Background(), "What is the current weather in Paris?", "s1")
	require.NoError(t, err)

	assert.Equal(t, 3, result.Iterations)
	require.Len(t, result.ToolsUsed, 2)
	for _, inv := range result.ToolsUsed {
		assert.True(t, inv.Success)
		assert.Equal(t, "lookup", inv.Tool)
	}
	assert.Equal(t, 2, *f.lookups)
	require.Len(t, result.Citations, 1)
	assert.Equal(t, "chunk-1", result.Citations[0].ChunkID)

	// The agentic path retrieves without expansion.
	require.Len(t, f.retriever.expandSeen, 1)
	assert.False(t, f.retriever.expandSeen[0])
}

func TestExecuteFallbackOnExhaustion(t *testing.T) {
	t.Parallel()

	f := newLoopFixture(t, Config{MaxIterations: 2}, guard.Config{})

	result, err := f.loop.Execute(context.Background(), "fetch the latest report", "s1")
	require.NoError(t, err)

	assert.Equal(t, DefaultFallbackMessage, result.Answer)
	assert.Equal(t, 2, result.Iterations)
	assert.Len(t, result.ToolsUsed, 2)
	assert.Empty(t, result.Citations)
}

func TestExecuteBudgetBlocksWithoutInvoking(t *testing.T) {
	t.Parallel()

	f := newLoopFixture(t, Config{MaxIterations: 1}, guard.Config{MaxActionsPerSession: 1})
	f.provider.outcomes = []*llm.Outcome{
		llm.ToolUse([]llm.ToolRequest{
			{Name: "lookup", Input: map[string]any{"n": "1"}},
			{Name: "lookup", Input: map[string]any{"n": "2"}},
		}),
	}

	result, err := f.loop.Execute(context.Background(), "fetch the latest report", "s1")
	require.NoError(t, err)

	require.Len(t, result.ToolsUsed, 2)
	assert.True(t, result.ToolsUsed[0].Success)
	assert.False(t, result.ToolsUsed[1].Success)
	assert.Equal(t, guard.ErrBudgetExceeded.Error(), result.ToolsUsed[1].Error)
	assert.Equal(t, 1, *f.lookups, "blocked call must not reach the handler")
}

func TestExecuteToolFailureRecordedNotFatal(t *testing.T) {
	t.Parallel()

	f := newLoopFixture(t, Config{}, guard.Config{})
	f.registry.RegisterFunc("broken", "always fails", map[string]any{"type": "object"},
		func(_ context.Context, _ tools.Input) (any, error) {
			return nil, errors.New("upstream unavailable")
		})
	f.provider.outcomes = []*llm.Outcome{
		llm.ToolUse([]llm.ToolRequest{{Name: "broken", Input: map[string]any{}}}),
		llm.FinalAnswer("done without the tool"),
	}

	result, err := f.loop.Execute(context.Background(), "fetch the latest report", "s1")
	require.NoError(t, err)

	assert.Equal(t, "done without the tool", result.Answer)
	require.Len(t, result.ToolsUsed, 1)
	assert.False(t, result.ToolsUsed[0].Success)
	assert.Contains(t, result.ToolsUsed[0].Error, "upstream unavailable")
}

func TestExecuteProviderErrorAborts(t *testing.T) {
	t.Parallel()

	f := newLoopFixture(t, Config{}, guard.Config{})
	f.provider.generateErr = errors.New("model offline")

	_, err := f.loop.Execute(context.Background(), "Explain Go interfaces.", "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate answer")
}

func TestExecuteToolProviderErrorAborts(t *testing.T) {
	t.Parallel()

	f := newLoopFixture(t, Config{}, guard.Config{})
	f.provider.toolCallErr = errors.New("model offline")

	_, err := f.loop.Execute(context.Background(), "fetch the latest report", "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate with tools")
}

func TestExecuteModelIntentErrorAborts(t *testing.T) {
	t.Parallel()

	f := newLoopFixture(t, Config{UseModelIntent: true}, guard.Config{})
	f.provider.generateErr = errors.New("model offline")

	_, err := f.loop.Execute(context.Background(), "Explain Go interfaces.", "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "intent analysis")
}

func TestExecuteRetrieverErrorAborts(t *testing.T) {
	t.Parallel()

	f := newLoopFixture(t, Config{}, guard.Config{})
	f.retriever.err = errors.New("index unavailable")

	_, err := f.loop.Execute(context.Background(), "Explain Go interfaces.", "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index unavailable")
}

func TestExecuteRecordsConversation(t *testing.T) {
	t.Parallel()

	f := newLoopFixture(t, Config{}, guard.Config{})
	f.provider.answer = "Use a mutex."

	_, err := f.loop.Execute(context.Background(), "Explain Go interfaces.", "s1")
	require.NoError(t, err)

	snap, ok := f.memory.Export("s1")
	require.True(t, ok)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "user", snap.Messages[0].Role)
	assert.Equal(t, "Explain Go interfaces.", snap.Messages[0].Content)
	assert.Equal(t, "assistant", snap.Messages[1].Role)
	assert.Equal(t, "Use a mutex.", snap.Messages[1].Content)
}

func TestNeedsToolsHeuristic(t *testing.T) {
	t.Parallel()

	assert.True(t, needsToolsHeuristic("What is the current weather in Paris?"))
	assert.True(t, needsToolsHeuristic("Search the web for Go release notes"))
	assert.False(t, needsToolsHeuristic("Explain Go interfaces."))
	assert.False(t, needsToolsHeuristic("How does the reranker order chunks?"))
}
