package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/chao-dotcom/RAGh-Tutor/guard"
	"github.com/chao-dotcom/RAGh-Tutor/internal/metrics"
	"github.com/chao-dotcom/RAGh-Tutor/llm"
	"github.com/chao-dotcom/RAGh-Tutor/memory"
	"github.com/chao-dotcom/RAGh-Tutor/rag"
	"github.com/chao-dotcom/RAGh-Tutor/tools"
)

// DefaultFallbackMessage is returned when the iteration cap is reached
// without a final answer.
const DefaultFallbackMessage = "I couldn't complete the task within the allowed iterations."

// Retriever is the retrieval contract the loop depends on. It is
// satisfied by *rag.Orchestrator.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, rerank, expand bool) (rag.Result, error)
}

// Config tunes loop behavior.
type Config struct {
	// MaxIterations bounds the tool-use loop.
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`
	// TopK is the retrieval depth for both execution paths.
	TopK int `json:"top_k" yaml:"top_k"`
	// ContextChunks caps how many retrieved chunks seed the agentic
	// context.
	ContextChunks int `json:"context_chunks" yaml:"context_chunks"`
	// MaxContextTokens is the history token budget per request.
	MaxContextTokens int `json:"max_context_tokens" yaml:"max_context_tokens"`
	// FallbackMessage is the fixed answer on iteration exhaustion.
	FallbackMessage string `json:"fallback_message" yaml:"fallback_message"`
	// SystemPrompt grounds the simple RAG generation.
	SystemPrompt string `json:"system_prompt" yaml:"system_prompt"`
	// UseModelIntent routes intent gating through the model instead of
	// the keyword heuristic.
	UseModelIntent bool `json:"use_model_intent" yaml:"use_model_intent"`
}

// DefaultConfig returns the default loop settings.
func DefaultConfig() Config {
	return Config{
		MaxIterations:    5,
		TopK:             5,
		ContextChunks:    3,
		MaxContextTokens: 2000,
		FallbackMessage:  DefaultFallbackMessage,
		SystemPrompt:     DefaultSystemPrompt,
	}
}

// Result is the terminal output of one Execute call. Iterations counts
// provider round trips on the agentic path, including the one that
// produced the final answer; the simple RAG path reports zero.
type Result struct {
	Answer     string             `json:"answer"`
	Citations  []Citation         `json:"citations"`
	ToolsUsed  []tools.Invocation `json:"tools_used"`
	Iterations int                `json:"iterations"`
	ChunksUsed int                `json:"chunks_used"`
}

// Loop is the agent state machine: intent gating, retrieval, bounded tool
// iteration and answer synthesis.
type Loop struct {
	config    Config
	provider  llm.GenerationProvider
	retriever Retriever
	tools     *tools.Registry
	guard     *guard.BudgetGuard
	memory    *memory.ConversationStore
	metrics   *metrics.Collector
	tracer    trace.Tracer
	logger    *zap.Logger
}

// NewLoop wires the agent. conversations and collector may be nil when
// history or metrics are not wanted.
func NewLoop(
	config Config,
	provider llm.GenerationProvider,
	retriever Retriever,
	registry *tools.Registry,
	budget *guard.BudgetGuard,
	conversations *memory.ConversationStore,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultConfig().MaxIterations
	}
	if config.TopK <= 0 {
		config.TopK = DefaultConfig().TopK
	}
	if config.ContextChunks <= 0 {
		config.ContextChunks = DefaultConfig().ContextChunks
	}
	if config.MaxContextTokens <= 0 {
		config.MaxContextTokens = DefaultConfig().MaxContextTokens
	}
	if config.FallbackMessage == "" {
		config.FallbackMessage = DefaultFallbackMessage
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = DefaultSystemPrompt
	}
	return &Loop{
		config:    config,
		provider:  provider,
		retriever: retriever,
		tools:     registry,
		guard:     budget,
		memory:    conversations,
		metrics:   collector,
		tracer:    otel.Tracer("agent"),
		logger:    logger,
	}
}

// Execute answers one query for a session. Provider failures abort the
// call; tool failures are recorded in the trail and do not.
func (l *Loop) Execute(ctx context.Context, query, sessionID string) (*Result, error) {
	ctx, span := l.tracer.Start(ctx, "agent.Execute", trace.WithAttributes(
		attribute.String("session_id", sessionID),
	))
	defer span.End()

	history := l.history(sessionID)
	l.remember(ctx, sessionID, "user", query)

	needsTools, err := l.analyzeIntent(ctx, query)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Bool("needs_tools", needsTools))

	var result *Result
	if needsTools {
		result, err = l.agentic(ctx, query, sessionID)
	} else {
		result, err = l.simpleRAG(ctx, query, history)
	}
	if err != nil {
		return nil, err
	}

	l.remember(ctx, sessionID, "assistant", result.Answer)
	l.metrics.ObserveAgentIterations(result.Iterations)
	l.logger.Info("agent execution completed",
		zap.String("session_id", sessionID),
		zap.Bool("needs_tools", needsTools),
		zap.Int("iterations", result.Iterations),
		zap.Int("tools_used", len(result.ToolsUsed)))
	return result, nil
}

// simpleRAG is the terminal no-tools path: retrieve, generate once,
// extract citations.
func (l *Loop) simpleRAG(ctx context.Context, query string, history []memory.Message) (*Result, error) {
	res, err := l.retriever.Retrieve(ctx, query, l.config.TopK, true, true)
	if err != nil {
		return nil, err
	}

	prompt := buildRAGPrompt(query, res.Chunks, history)
	answer, err := l.provider.Generate(ctx, prompt, l.config.SystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &Result{
		Answer:     answer,
		Citations:  extractCitations(answer, res.Chunks),
		ToolsUsed:  []tools.Invocation{},
		Iterations: 0,
		ChunksUsed: len(res.Chunks),
	}, nil
}

// agentic runs the bounded tool loop. Each iteration either requests
// tool calls, which extend the accumulated context, or produces the
// final answer.
func (l *Loop) agentic(ctx context.Context, query, sessionID string) (*Result, error) {
	res, err := l.retriever.Retrieve(ctx, query, l.config.TopK, true, false)
	if err != nil {
		return nil, err
	}
	accumulated := seedContext(res.Chunks, l.config.ContextChunks)

	trail := []tools.Invocation{}
	for iteration := 1; iteration <= l.config.MaxIterations; iteration++ {
		schemas := l.tools.Schemas()
		prompt := buildAgentPrompt(query, schemas, accumulated)

		outcome, err := l.provider.GenerateWithTools(ctx, prompt, schemas, agentSystemPrompt)
		if err != nil {
			return nil, fmt.Errorf("generate with tools: %w", err)
		}

		if outcome.Kind == llm.OutcomeFinalAnswer {
			return &Result{
				Answer:     outcome.Answer,
				Citations:  extractCitations(outcome.Answer, res.Chunks),
				ToolsUsed:  trail,
				Iterations: iteration,
				ChunksUsed: len(res.Chunks),
			}, nil
		}

		for _, call := range outcome.ToolCalls {
			inv := l.invokeTool(ctx, sessionID, call)
			trail = append(trail, inv)
			if inv.Success {
				accumulated += toolResultText(inv.Tool, inv.Result)
			}
		}
	}

	return &Result{
		Answer:     l.config.FallbackMessage,
		Citations:  []Citation{},
		ToolsUsed:  trail,
		Iterations: l.config.MaxIterations,
		ChunksUsed: len(res.Chunks),
	}, nil
}

// invokeTool applies the budget check, then runs the tool. A failed
// check records the refusal without touching the handler; the budget is
// incremented only for calls that actually run.
func (l *Loop) invokeTool(ctx context.Context, sessionID string, call llm.ToolRequest) tools.Invocation {
	if !l.guard.CheckBudget(sessionID) {
		l.logger.Warn("tool call blocked by budget",
			zap.String("session_id", sessionID),
			zap.String("tool", call.Name))
		l.metrics.ObserveToolExecution(call.Name, false)
		return tools.Invocation{
			Tool:    call.Name,
			Input:   tools.Input(call.Input),
			Error:   guard.ErrBudgetExceeded.Error(),
			Success: false,
		}
	}
	l.guard.Increment(sessionID)

	start := time.Now()
	result, err := l.tools.Execute(ctx, call.Name, tools.Input(call.Input))
	inv := tools.Invocation{
		Tool:     call.Name,
		Input:    tools.Input(call.Input),
		Duration: time.Since(start),
	}
	if err != nil {
		inv.Error = err.Error()
	} else {
		inv.Result = result
		inv.Success = true
	}
	l.metrics.ObserveToolExecution(call.Name, inv.Success)
	return inv
}

func (l *Loop) history(sessionID string) []memory.Message {
	if l.memory == nil {
		return nil
	}
	return l.memory.GetContext(sessionID, l.config.MaxContextTokens)
}

// remember appends to conversation history. Memory failures degrade the
// next request's context but never fail the current answer.
func (l *Loop) remember(ctx context.Context, sessionID, role, content string) {
	if l.memory == nil {
		return
	}
	if err := l.memory.AddMessage(ctx, sessionID, role, content); err != nil {
		l.logger.Warn("failed to record message",
			zap.String("session_id", sessionID),
			zap.String("role", role),
			zap.Error(err))
	}
}

// seedContext joins the leading chunk contents for the agentic context.
func seedContext(chunks []rag.ScoredChunk, limit int) string {
	if len(chunks) > limit {
		chunks = chunks[:limit]
	}
	parts := make([]string, 0, len(chunks))
	for _, sc := range chunks {
		parts = append(parts, sc.Chunk.Content)
	}
	return strings.Join(parts, "\n\n")
}

// toolResultText renders a tool result for inclusion in the accumulated
// context of the next iteration.
func toolResultText(name string, result any) string {
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("\n\nTool: %s\nResult: %v", name, result)
	}
	return fmt.Sprintf("\n\nTool: %s\nResult: %s", name, encoded)
}
