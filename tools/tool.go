// Package tools provides the capability-typed registry of invocable
// external actions. Every tool, synchronous or asynchronous, sits behind
// the same Invoke method so callers never branch on calling convention.
package tools

import (
	"context"
	"time"
)

// Input is the structured argument map passed to a tool handler.
type Input map[string]any

// Tool is a named capability with a typed input schema.
type Tool interface {
	Name() string
	Description() string
	// Schema describes accepted arguments as a JSON-Schema-shaped map.
	Schema() map[string]any
	Invoke(ctx context.Context, input Input) (any, error)
}

// ToolFunc is a synchronous handler signature.
type ToolFunc func(ctx context.Context, input Input) (any, error)

// FuncTool adapts a synchronous function into a Tool.
type FuncTool struct {
	name        string
	description string
	schema      map[string]any
	fn          ToolFunc
}

// NewFuncTool wraps fn as a Tool.
func NewFuncTool(name, description string, schema map[string]any, fn ToolFunc) *FuncTool {
	return &FuncTool{name: name, description: description, schema: schema, fn: fn}
}

func (t *FuncTool) Name() string           { return t.name }
func (t *FuncTool) Description() string    { return t.description }
func (t *FuncTool) Schema() map[string]any { return t.schema }

func (t *FuncTool) Invoke(ctx context.Context, input Input) (any, error) {
	return t.fn(ctx, input)
}

// Outcome is one result delivered by an asynchronous handler.
type Outcome struct {
	Result any
	Err    error
}

// AsyncFunc is an asynchronous handler: it starts work and delivers a
// single Outcome on the returned channel.
type AsyncFunc func(ctx context.Context, input Input) (<-chan Outcome, error)

// AsyncTool adapts a channel-producing handler into a Tool. Invoke blocks
// until the handler delivers its outcome or the context is cancelled.
type AsyncTool struct {
	name        string
	description string
	schema      map[string]any
	start       AsyncFunc
}

// NewAsyncTool wraps start as a Tool.
func NewAsyncTool(name, description string, schema map[string]any, start AsyncFunc) *AsyncTool {
	return &AsyncTool{name: name, description: description, schema: schema, start: start}
}

func (t *AsyncTool) Name() string           { return t.name }
func (t *AsyncTool) Description() string    { return t.description }
func (t *AsyncTool) Schema() map[string]any { return t.schema }

func (t *AsyncTool) Invoke(ctx context.Context, input Input) (any, error) {
	ch, err := t.start(ctx, input)
	if err != nil {
		return nil, err
	}
	select {
	case outcome, ok := <-ch:
		if !ok {
			return nil, context.Canceled
		}
		return outcome.Result, outcome.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invocation records one tool call made during an agent iteration. It is
// never mutated after creation.
type Invocation struct {
	Tool     string        `json:"tool"`
	Input    Input         `json:"input"`
	Result   any           `json:"result,omitempty"`
	Error    string        `json:"error,omitempty"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
}
