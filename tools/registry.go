package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/chao-dotcom/RAGh-Tutor/llm"
)

var (
	// ErrToolNotFound reports execution of an unregistered tool.
	ErrToolNotFound = errors.New("tool not found")

	// ErrRateLimited reports a tool call rejected by its rate limiter.
	ErrRateLimited = errors.New("tool rate limited")
)

// ExecutionError wraps a tool handler failure with the originating tool
// name. It is non-fatal to the agent loop.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Options tunes per-tool execution behavior.
type Options struct {
	// Timeout bounds one invocation. Zero takes the 30s default.
	Timeout time.Duration
	// RateLimit caps invocations per second; zero disables limiting.
	RateLimit rate.Limit
	// Burst is the limiter burst size, defaulting to 1 when limited.
	Burst int
}

type registration struct {
	tool    Tool
	timeout time.Duration
	limiter *rate.Limiter
}

// Registry holds the invocable tools. Registration normally happens once
// at startup; re-registering a name overwrites the previous tool
// silently (last-writer-wins, logged at Warn).
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*registration
	order  []string
	logger *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:  make(map[string]*registration),
		logger: logger,
	}
}

// Register adds a tool, overwriting any previous tool with the same name.
func (r *Registry) Register(t Tool, opts ...Options) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.Timeout == 0 {
		o.Timeout = 30 * time.Second
	}

	reg := &registration{tool: t, timeout: o.Timeout}
	if o.RateLimit > 0 {
		burst := o.Burst
		if burst <= 0 {
			burst = 1
		}
		reg.limiter = rate.NewLimiter(o.RateLimit, burst)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		r.logger.Warn("tool re-registered, overwriting", zap.String("name", t.Name()))
	} else {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = reg
	r.logger.Info("tool registered",
		zap.String("name", t.Name()),
		zap.Duration("timeout", reg.timeout))
}

// RegisterFunc registers a synchronous handler under the given name.
func (r *Registry) RegisterFunc(name, description string, schema map[string]any, fn ToolFunc, opts ...Options) {
	r.Register(NewFuncTool(name, description, schema, fn), opts...)
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return reg.tool, true
}

// Has reports whether a tool is registered under name.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Schemas exports provider-agnostic schemas in registration order for
// inclusion in generation prompts.
func (r *Registry) Schemas() []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]llm.ToolSchema, 0, len(r.tools))
	for _, name := range r.order {
		reg, ok := r.tools[name]
		if !ok {
			continue
		}
		schemas = append(schemas, llm.ToolSchema{
			Name:        reg.tool.Name(),
			Description: reg.tool.Description(),
			Parameters:  reg.tool.Schema(),
		})
	}
	return schemas
}

// Execute invokes the named tool. Unknown names fail with ErrToolNotFound;
// handler failures come back as *ExecutionError carrying the cause. A
// handler panic is recovered into an ExecutionError.
func (r *Registry) Execute(ctx context.Context, name string, input Input) (result any, err error) {
	r.mu.RLock()
	reg, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	if reg.limiter != nil && !reg.limiter.Allow() {
		r.logger.Warn("tool rate limited", zap.String("name", name))
		return nil, &ExecutionError{Tool: name, Err: ErrRateLimited}
	}

	execCtx, cancel := context.WithTimeout(ctx, reg.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			err = &ExecutionError{Tool: name, Err: fmt.Errorf("handler panic: %v", rec)}
			r.logger.Error("tool handler panicked",
				zap.String("name", name),
				zap.Any("panic", rec))
		}
	}()

	start := time.Now()
	result, invokeErr := reg.tool.Invoke(execCtx, input)
	if invokeErr != nil {
		r.logger.Error("tool execution failed",
			zap.String("name", name),
			zap.Error(invokeErr),
			zap.Duration("duration", time.Since(start)))
		return nil, &ExecutionError{Tool: name, Err: invokeErr}
	}

	r.logger.Debug("tool executed",
		zap.String("name", name),
		zap.Duration("duration", time.Since(start)))
	return result, nil
}
