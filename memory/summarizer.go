package memory

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Summarizer condenses a span of messages into a rolling summary string.
// prior is the existing summary (possibly empty); the result must cover
// prior plus the given messages.
type Summarizer interface {
	Summarize(ctx context.Context, prior string, msgs []Message) (string, error)
}

// ExtractiveSummarizer is the deterministic fallback: it keeps the first
// sentence of each condensed message. No external calls.
type ExtractiveSummarizer struct {
	// MaxSentenceLen truncates kept sentences; zero takes 120.
	MaxSentenceLen int
}

// Summarize implements Summarizer.
func (s ExtractiveSummarizer) Summarize(_ context.Context, prior string, msgs []Message) (string, error) {
	maxLen := s.MaxSentenceLen
	if maxLen <= 0 {
		maxLen = 120
	}

	var parts []string
	if prior != "" {
		parts = append(parts, prior)
	}
	for _, m := range msgs {
		parts = append(parts, fmt.Sprintf("%s: %s", m.Role, firstSentence(m.Content, maxLen)))
	}
	return strings.Join(parts, " | "), nil
}

func firstSentence(text string, maxLen int) string {
	text = strings.TrimSpace(text)
	for _, sep := range []string{". ", "! ", "? ", "\n"} {
		if idx := strings.Index(text, sep); idx > 0 {
			text = text[:idx+1]
			break
		}
	}
	if len(text) > maxLen {
		text = text[:maxLen]
	}
	return strings.TrimSpace(text)
}

// TextGenerator is the minimal generation contract the model-backed
// summarizer needs.
type TextGenerator interface {
	Generate(ctx context.Context, prompt, system string) (string, error)
}

// ModelSummarizer condenses history with a generation provider, falling
// back to extractive summarization when the provider fails so the store
// never loses messages over a summarization error.
type ModelSummarizer struct {
	generator TextGenerator
	fallback  ExtractiveSummarizer
	logger    *zap.Logger
}

// NewModelSummarizer creates a provider-backed summarizer.
func NewModelSummarizer(generator TextGenerator, logger *zap.Logger) *ModelSummarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelSummarizer{generator: generator, logger: logger}
}

// Summarize implements Summarizer.
func (s *ModelSummarizer) Summarize(ctx context.Context, prior string, msgs []Message) (string, error) {
	var b strings.Builder
	if prior != "" {
		b.WriteString("Existing summary:\n")
		b.WriteString(prior)
		b.WriteString("\n\n")
	}
	b.WriteString("Condense this conversation into a short summary, preserving key facts, decisions and open questions, in chronological order:\n\n")
	for _, m := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}

	summary, err := s.generator.Generate(ctx, b.String(), "")
	if err != nil {
		s.logger.Warn("model summarization failed, using extractive fallback", zap.Error(err))
		return s.fallback.Summarize(ctx, prior, msgs)
	}
	return strings.TrimSpace(summary), nil
}
