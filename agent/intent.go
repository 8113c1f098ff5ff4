package agent

import (
	"context"
	"fmt"
	"strings"
)

// liveDataKeywords trigger the agentic path without a model round trip.
// The heuristic errs toward the simple path: tool use costs budget, and a
// grounded answer is the common case.
var liveDataKeywords = []string{
	"current", "latest", "today", "now", "real-time", "real time",
	"live", "browse", "fetch", "look up", "search the web", "weather",
	"stock price", "news",
}

const intentPromptFormat = `Analyze this query and determine if it requires:
- Real-time web browsing
- External data fetching
- Interactive actions

Query: %s

Answer with just YES or NO.`

// needsToolsHeuristic is the offline intent gate: keyword scan only.
func needsToolsHeuristic(query string) bool {
	lower := strings.ToLower(query)
	for _, kw := range liveDataKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// analyzeIntent decides whether the query requires tool use. In model
// mode the classification is a single call with no retries; a provider
// failure aborts the whole execute call rather than guessing.
func (l *Loop) analyzeIntent(ctx context.Context, query string) (bool, error) {
	if !l.config.UseModelIntent {
		return needsToolsHeuristic(query), nil
	}
	response, err := l.provider.Generate(ctx, fmt.Sprintf(intentPromptFormat, query), "")
	if err != nil {
		return false, fmt.Errorf("intent analysis: %w", err)
	}
	return strings.Contains(strings.ToLower(response), "yes"), nil
}
