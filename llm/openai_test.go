package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, APIKey: "test-key", Dimensions: 3}, nil)
}

func TestOpenAIGenerate(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)

		fmt.Fprint(w, `{"choices": [{"message": {"content": "hello back"}}]}`)
	})

	answer, err := client.Generate(context.Background(), "hello", "be nice")
	require.NoError(t, err)
	assert.Equal(t, "hello back", answer)
}

func TestOpenAIGenerateServerError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "overloaded"}`, http.StatusServiceUnavailable)
	})

	_, err := client.Generate(context.Background(), "hello", "")
	require.Error(t, err)

	var provErr *ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, "openai", provErr.Provider)
	assert.Equal(t, "generate", provErr.Op)
}

func TestOpenAIGenerateWithTools(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Tools, 1)
		assert.Equal(t, "function", req.Tools[0].Type)
		assert.Equal(t, "search", req.Tools[0].Function.Name)

		fmt.Fprint(w, `{"choices": [{"message": {"tool_calls": [
			{"id": "c1", "function": {"name": "search", "arguments": "{\"q\": \"go\"}"}}
		]}}]}`)
	})

	outcome, err := client.GenerateWithTools(context.Background(), "find go docs",
		[]ToolSchema{{Name: "search", Parameters: map[string]any{"type": "object"}}}, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeToolUse, outcome.Kind)
	require.Len(t, outcome.ToolCalls, 1)
	assert.Equal(t, map[string]any{"q": "go"}, outcome.ToolCalls[0].Input)
}

func TestOpenAIGenerateStream(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\": [{\"delta\": {\"content\": \"Hel\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\": [{\"delta\": {\"content\": \"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	stream, err := client.GenerateStream(context.Background(), "hi", "")
	require.NoError(t, err)

	var full string
	for chunk := range stream {
		require.NoError(t, chunk.Err)
		full += chunk.Delta
	}
	assert.Equal(t, "Hello", full)
}

func TestOpenAIEncode(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		// Out-of-order indices must land in input order.
		fmt.Fprint(w, `{"data": [
			{"index": 1, "embedding": [0, 1, 0]},
			{"index": 0, "embedding": [1, 0, 0]}
		]}`)
	})

	vectors, err := client.Encode(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float64{1, 0, 0}, vectors[0])
	assert.Equal(t, []float64{0, 1, 0}, vectors[1])
}

func TestOpenAIEncodeCountMismatch(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": [{"index": 0, "embedding": [1, 0, 0]}]}`)
	})

	_, err := client.Encode(context.Background(), []string{"a", "b"})
	require.Error(t, err)

	var provErr *ProviderError
	assert.True(t, errors.As(err, &provErr))
}

func TestOpenAIEncodeEmptyInput(t *testing.T) {
	t.Parallel()

	client := NewOpenAIClient(OpenAIConfig{BaseURL: "http://unused.invalid"}, nil)
	vectors, err := client.Encode(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}
