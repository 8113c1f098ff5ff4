package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	response string
	err      error
}

func (s *stubGenerator) Generate(context.Context, string, string) (string, error) {
	return s.response, s.err
}

func TestExpandHeuristic(t *testing.T) {
	t.Parallel()

	e := NewExpander(ExpanderConfig{MaxVariants: 4}, nil, nil)
	variants := e.Expand(context.Background(), "goroutine scheduling")

	require.NotEmpty(t, variants)
	assert.Equal(t, "goroutine scheduling", variants[0])
	assert.Contains(t, variants, "What is goroutine scheduling?")
	assert.Contains(t, variants, "explain goroutine scheduling")
	assert.LessOrEqual(t, len(variants), 4)
}

func TestExpandModelVariants(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{response: "1. how does go schedule goroutines\n2) goroutine scheduler internals\n3. scheduling of goroutines"}
	e := NewExpander(ExpanderConfig{MaxVariants: 4, UseModel: true}, gen, nil)

	variants := e.Expand(context.Background(), "goroutine scheduling")
	require.Len(t, variants, 4)
	assert.Equal(t, "goroutine scheduling", variants[0])
	assert.Equal(t, "how does go schedule goroutines", variants[1])
	assert.Equal(t, "goroutine scheduler internals", variants[2])
}

func TestExpandModelFailureFallsBack(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{err: errors.New("provider down")}
	e := NewExpander(ExpanderConfig{MaxVariants: 4, UseModel: true}, gen, nil)

	// Expansion never fails the retrieve call.
	variants := e.Expand(context.Background(), "channels")
	require.NotEmpty(t, variants)
	assert.Equal(t, "channels", variants[0])
}

func TestExpandDedupsCaseInsensitively(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{response: "1. Channels\n2. CHANNELS\n3. buffered channels"}
	e := NewExpander(ExpanderConfig{MaxVariants: 4, UseModel: true}, gen, nil)

	variants := e.Expand(context.Background(), "channels")
	assert.Len(t, variants, 2)
	assert.Equal(t, "channels", variants[0])
	assert.Equal(t, "buffered channels", variants[1])
}

func TestExpandCapsVariants(t *testing.T) {
	t.Parallel()

	var lines []string
	for _, v := range []string{"one", "two", "three", "four", "five", "six"} {
		lines = append(lines, "1. variant "+v)
	}
	gen := &stubGenerator{response: strings.Join(lines, "\n")}
	e := NewExpander(ExpanderConfig{MaxVariants: 4, UseModel: true}, gen, nil)

	variants := e.Expand(context.Background(), "q")
	assert.Len(t, variants, 4)
	assert.Equal(t, "q", variants[0])
}

func TestExpandQuestionStaysQuestion(t *testing.T) {
	t.Parallel()

	e := NewExpander(ExpanderConfig{MaxVariants: 4}, nil, nil)
	variants := e.Expand(context.Background(), "how do channels work?")
	assert.Equal(t, "how do channels work?", variants[0])
	for _, v := range variants {
		assert.NotEqual(t, "What is how do channels work??", v)
	}
}
