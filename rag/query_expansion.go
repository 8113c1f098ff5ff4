package rag

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// TextGenerator is the minimal generation contract the expander needs.
type TextGenerator interface {
	Generate(ctx context.Context, prompt, system string) (string, error)
}

// ExpanderConfig configures query expansion.
type ExpanderConfig struct {
	// MaxVariants caps the output, original query included.
	MaxVariants int `json:"max_variants" yaml:"max_variants"`
	// UseModel enables model-assisted rewriting when a generator is set.
	UseModel bool `json:"use_model" yaml:"use_model"`
}

// DefaultExpanderConfig returns the default expansion settings.
func DefaultExpanderConfig() ExpanderConfig {
	return ExpanderConfig{MaxVariants: 4, UseModel: true}
}

// Expander produces a small set of query variants to widen candidate
// recall. Heuristic rewriting is deterministic; model-assisted rewriting
// calls the generator and falls back to heuristics on failure.
type Expander struct {
	config    ExpanderConfig
	generator TextGenerator
	logger    *zap.Logger
}

// NewExpander creates an expander. A nil generator restricts it to
// heuristic mode.
func NewExpander(config ExpanderConfig, generator TextGenerator, logger *zap.Logger) *Expander {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxVariants <= 0 {
		config.MaxVariants = DefaultExpanderConfig().MaxVariants
	}
	return &Expander{config: config, generator: generator, logger: logger}
}

var numberedLine = regexp.MustCompile(`^\d+[.)]\s*`)

// Expand returns the original query first, followed by paraphrases, capped
// at MaxVariants. It never fails; provider errors degrade to heuristics.
func (e *Expander) Expand(ctx context.Context, query string) []string {
	if e.config.UseModel && e.generator != nil {
		variants, err := e.expandWithModel(ctx, query)
		if err == nil {
			return variants
		}
		e.logger.Warn("model query expansion failed, using heuristics", zap.Error(err))
	}
	return e.expandHeuristic(query)
}

func (e *Expander) expandHeuristic(query string) []string {
	variants := []string{query, toQuestion(query), "explain " + query}
	return capVariants(variants, e.config.MaxVariants)
}

func (e *Expander) expandWithModel(ctx context.Context, query string) ([]string, error) {
	prompt := fmt.Sprintf(`Generate %d alternative phrasings of this query:
Query: %s

Alternative phrasings:
1.`, e.config.MaxVariants-1, query)

	response, err := e.generator.Generate(ctx, prompt, "")
	if err != nil {
		return nil, err
	}

	variants := []string{query}
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(numberedLine.ReplaceAllString(strings.TrimSpace(line), ""))
		if line == "" || strings.HasPrefix(line, "Alternative") {
			continue
		}
		variants = append(variants, line)
	}
	return capVariants(variants, e.config.MaxVariants), nil
}

func toQuestion(query string) string {
	if strings.Contains(query, "?") {
		return query
	}
	lower := strings.ToLower(query)
	for _, w := range []string{"what", "how", "why", "when", "where", "who"} {
		if strings.HasPrefix(lower, w) {
			return query + "?"
		}
	}
	return "What is " + query + "?"
}

// capVariants dedups while preserving order, then truncates.
func capVariants(variants []string, max int) []string {
	seen := make(map[string]bool, len(variants))
	out := make([]string, 0, max)
	for _, v := range variants {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
		if len(out) == max {
			break
		}
	}
	return out
}
