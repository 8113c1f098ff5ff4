package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func echoSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "number"},
		},
	}
}

func registerEcho(r *Registry, opts ...Options) {
	r.RegisterFunc("echo", "Echoes its input back.", echoSchema(),
		func(_ context.Context, input Input) (any, error) {
			return map[string]any(input), nil
		}, opts...)
}

func TestExecuteEcho(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	registerEcho(r)

	result, err := r.Execute(context.Background(), "echo", Input{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 1}, result)
}

func TestExecuteUnknownTool(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	_, err := r.Execute(context.Background(), "missing", Input{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrToolNotFound))
	assert.Contains(t, err.Error(), "missing")
}

func TestExecuteHandlerError(t *testing.T) {
	t.Parallel()

	cause := errors.New("backend down")
	r := NewRegistry(nil)
	r.RegisterFunc("broken", "", nil, func(context.Context, Input) (any, error) {
		return nil, cause
	})

	_, err := r.Execute(context.Background(), "broken", Input{})
	require.Error(t, err)

	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "broken", execErr.Tool)
	assert.True(t, errors.Is(err, cause))
}

func TestExecuteHandlerPanicRecovered(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	r.RegisterFunc("panicky", "", nil, func(context.Context, Input) (any, error) {
		panic("boom")
	})

	_, err := r.Execute(context.Background(), "panicky", Input{})
	require.Error(t, err)

	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Contains(t, execErr.Error(), "panic")
}

func TestReRegisterOverwrites(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	r.RegisterFunc("tool", "first", nil, func(context.Context, Input) (any, error) {
		return "first", nil
	})
	r.RegisterFunc("tool", "second", nil, func(context.Context, Input) (any, error) {
		return "second", nil
	})

	assert.Equal(t, 1, r.Len())
	result, err := r.Execute(context.Background(), "tool", Input{})
	require.NoError(t, err)
	assert.Equal(t, "second", result)
}

func TestSchemasInRegistrationOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	r.RegisterFunc("zeta", "last letter", nil, nil)
	r.RegisterFunc("alpha", "first letter", nil, nil)
	registerEcho(r)

	schemas := r.Schemas()
	require.Len(t, schemas, 3)
	assert.Equal(t, "zeta", schemas[0].Name)
	assert.Equal(t, "alpha", schemas[1].Name)
	assert.Equal(t, "echo", schemas[2].Name)
	assert.Equal(t, echoSchema(), schemas[2].Parameters)
}

func TestExecuteRateLimited(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	registerEcho(r, Options{RateLimit: rate.Every(time.Hour), Burst: 1})

	_, err := r.Execute(context.Background(), "echo", Input{})
	require.NoError(t, err)

	_, err = r.Execute(context.Background(), "echo", Input{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited))
}

func TestExecuteTimeout(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	r.Register(NewFuncTool("slow", "", nil, func(ctx context.Context, _ Input) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return "done", nil
		}
	}), Options{Timeout: 20 * time.Millisecond})

	_, err := r.Execute(context.Background(), "slow", Input{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestAsyncToolDelivers(t *testing.T) {
	t.Parallel()

	tool := NewAsyncTool("async", "", nil, func(ctx context.Context, input Input) (<-chan Outcome, error) {
		ch := make(chan Outcome, 1)
		go func() {
			ch <- Outcome{Result: "async result"}
			close(ch)
		}()
		return ch, nil
	})

	r := NewRegistry(nil)
	r.Register(tool)

	result, err := r.Execute(context.Background(), "async", Input{})
	require.NoError(t, err)
	assert.Equal(t, "async result", result)
}

func TestAsyncToolCancelled(t *testing.T) {
	t.Parallel()

	tool := NewAsyncTool("stuck", "", nil, func(ctx context.Context, input Input) (<-chan Outcome, error) {
		return make(chan Outcome), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tool.Invoke(ctx, Input{})
	assert.True(t, errors.Is(err, context.Canceled))
}
