package llm

import (
	"context"
	"fmt"
)

// ProviderError wraps an embedding or generation provider failure. It is
// fatal to the current retrieve/agent call and is never retried by the
// core.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ToolSchema is the provider-agnostic description of an invocable tool,
// included in generation prompts.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// StreamChunk is one fragment of a streamed generation. A non-nil Err is
// terminal; no further chunks follow it.
type StreamChunk struct {
	Delta string
	Err   error
}

// EmbeddingProvider produces fixed-dimension vectors for text inputs.
type EmbeddingProvider interface {
	// Encode returns one vector per input text, same order.
	Encode(ctx context.Context, texts []string) ([][]float64, error)
	// Dimensions reports the vector dimension Encode produces.
	Dimensions() int
}

// GenerationProvider produces text completions. GenerateStream yields a
// finite, non-restartable sequence of fragments. GenerateWithTools
// returns a normalized Outcome; the agent loop never sees vendor shapes.
type GenerationProvider interface {
	Generate(ctx context.Context, prompt, system string) (string, error)
	GenerateStream(ctx context.Context, prompt, system string) (<-chan StreamChunk, error)
	GenerateWithTools(ctx context.Context, prompt string, tools []ToolSchema, system string) (*Outcome, error)
}
