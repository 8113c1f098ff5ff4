package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/chao-dotcom/RAGh-Tutor/llm"
	"github.com/chao-dotcom/RAGh-Tutor/memory"
	"github.com/chao-dotcom/RAGh-Tutor/tools"
)

// EventType tags one lifecycle event of a streamed execution.
type EventType string

const (
	EventAgentStart        EventType = "agent_start"
	EventIntentAnalysis    EventType = "intent_analysis"
	EventRetrievalStart    EventType = "retrieval_start"
	EventRetrievalComplete EventType = "retrieval_complete"
	EventIterationStart    EventType = "iteration_start"
	EventToolCall          EventType = "tool_call"
	EventToolResult        EventType = "tool_result"
	EventToolError         EventType = "tool_error"
	EventContentDelta      EventType = "content_delta"
	EventCitations         EventType = "citations"
	EventDone              EventType = "done"
	EventError             EventType = "error"
)

// Event is one streamed lifecycle event. Only the fields relevant to the
// event type are populated. Done and Error are terminal; nothing follows
// them on the channel.
type Event struct {
	Type       EventType   `json:"type"`
	Query      string      `json:"query,omitempty"`
	SessionID  string      `json:"session_id,omitempty"`
	NeedsTools bool        `json:"needs_tools,omitempty"`
	Chunks     int         `json:"chunks_retrieved,omitempty"`
	Iteration  int         `json:"iteration,omitempty"`
	Tool       string      `json:"tool_name,omitempty"`
	Input      tools.Input `json:"tool_input,omitempty"`
	Result     any         `json:"result,omitempty"`
	Delta      string      `json:"delta,omitempty"`
	Citations  []Citation  `json:"citations,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// emitFunc pushes one event, returning false once the consumer is gone.
type emitFunc func(Event) bool

// ExecuteStream is the streaming variant of Execute. Events arrive in
// transition order on a single-producer channel that closes after the
// terminal done or error event, or as soon as ctx is cancelled. No event
// is emitted after cancellation.
func (l *Loop) ExecuteStream(ctx context.Context, query, sessionID string) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)
		emit := func(ev Event) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		l.streamExecute(ctx, query, sessionID, emit)
	}()
	return events
}

func (l *Loop) streamExecute(ctx context.Context, query, sessionID string, emit emitFunc) {
	if !emit(Event{Type: EventAgentStart, Query: query, SessionID: sessionID}) {
		return
	}

	history := l.history(sessionID)
	l.remember(ctx, sessionID, "user", query)

	needsTools, err := l.analyzeIntent(ctx, query)
	if err != nil {
		emit(Event{Type: EventError, Error: err.Error()})
		return
	}
	if !emit(Event{Type: EventIntentAnalysis, NeedsTools: needsTools}) {
		return
	}

	var (
		answer     string
		iterations int
		ok         bool
	)
	if needsTools {
		answer, iterations, ok = l.streamAgentic(ctx, query, sessionID, emit)
	} else {
		answer, ok = l.streamSimpleRAG(ctx, query, history, emit)
	}
	if !ok {
		return
	}

	l.remember(ctx, sessionID, "assistant", answer)
	l.metrics.ObserveAgentIterations(iterations)
	emit(Event{Type: EventDone})
}

// streamSimpleRAG streams the no-tools path: retrieval events, incremental
// generation deltas, then citations. The returned bool is false when the
// stream terminated early (error event or cancellation).
func (l *Loop) streamSimpleRAG(ctx context.Context, query string, history []memory.Message, emit emitFunc) (string, bool) {
	if !emit(Event{Type: EventRetrievalStart}) {
		return "", false
	}
	res, err := l.retriever.Retrieve(ctx, query, l.config.TopK, true, true)
	if err != nil {
		emit(Event{Type: EventError, Error: err.Error()})
		return "", false
	}
	if !emit(Event{Type: EventRetrievalComplete, Chunks: len(res.Chunks)}) {
		return "", false
	}

	prompt := buildRAGPrompt(query, res.Chunks, history)
	stream, err := l.provider.GenerateStream(ctx, prompt, l.config.SystemPrompt)
	if err != nil {
		emit(Event{Type: EventError, Error: err.Error()})
		return "", false
	}

	var answer string
	for chunk := range stream {
		if chunk.Err != nil {
			emit(Event{Type: EventError, Error: chunk.Err.Error()})
			return "", false
		}
		answer += chunk.Delta
		if !emit(Event{Type: EventContentDelta, Delta: chunk.Delta}) {
			return "", false
		}
	}

	if !emit(Event{Type: EventCitations, Citations: extractCitations(answer, res.Chunks)}) {
		return "", false
	}
	return answer, true
}

// streamAgentic streams the tool loop: per-iteration events, per-call
// tool_call plus tool_result or tool_error, and the final answer as a
// content delta.
func (l *Loop) streamAgentic(ctx context.Context, query, sessionID string, emit emitFunc) (string, int, bool) {
	if !emit(Event{Type: EventRetrievalStart}) {
		return "", 0, false
	}
	res, err := l.retriever.Retrieve(ctx, query, l.config.TopK, true, false)
	if err != nil {
		emit(Event{Type: EventError, Error: err.Error()})
		return "", 0, false
	}
	if !emit(Event{Type: EventRetrievalComplete, Chunks: len(res.Chunks)}) {
		return "", 0, false
	}

	accumulated := seedContext(res.Chunks, l.config.ContextChunks)
	for iteration := 1; iteration <= l.config.MaxIterations; iteration++ {
		if !emit(Event{Type: EventIterationStart, Iteration: iteration}) {
			return "", 0, false
		}

		schemas := l.tools.Schemas()
		prompt := buildAgentPrompt(query, schemas, accumulated)
		outcome, err := l.provider.GenerateWithTools(ctx, prompt, schemas, agentSystemPrompt)
		if err != nil {
			l.logger.Error("agent stream aborted", zap.Error(err))
			emit(Event{Type: EventError, Error: err.Error()})
			return "", 0, false
		}

		if outcome.Kind == llm.OutcomeFinalAnswer {
			if !emit(Event{Type: EventContentDelta, Delta: outcome.Answer}) {
				return "", 0, false
			}
			if !emit(Event{Type: EventCitations, Citations: extractCitations(outcome.Answer, res.Chunks)}) {
				return "", 0, false
			}
			return outcome.Answer, iteration, true
		}

		for _, call := range outcome.ToolCalls {
			if !emit(Event{Type: EventToolCall, Tool: call.Name, Input: tools.Input(call.Input)}) {
				return "", 0, false
			}
			inv := l.invokeTool(ctx, sessionID, call)
			if inv.Success {
				if !emit(Event{Type: EventToolResult, Tool: inv.Tool, Result: inv.Result}) {
					return "", 0, false
				}
				accumulated += toolResultText(inv.Tool, inv.Result)
			} else {
				if !emit(Event{Type: EventToolError, Tool: inv.Tool, Error: inv.Error}) {
					return "", 0, false
				}
			}
		}
	}

	if !emit(Event{Type: EventContentDelta, Delta: l.config.FallbackMessage}) {
		return "", 0, false
	}
	return l.config.FallbackMessage, l.config.MaxIterations, true
}
