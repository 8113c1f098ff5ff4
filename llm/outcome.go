package llm

import (
	"encoding/json"
	"fmt"
)

// OutcomeKind tags the two shapes a tool-capable generation can take.
type OutcomeKind string

const (
	OutcomeFinalAnswer OutcomeKind = "final_answer"
	OutcomeToolUse     OutcomeKind = "tool_use"
)

// ToolRequest is one tool invocation requested by the model.
type ToolRequest struct {
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// Outcome is the normalized result of a tool-capable generation: either a
// final answer or a list of requested tool calls, never both.
type Outcome struct {
	Kind      OutcomeKind   `json:"kind"`
	Answer    string        `json:"answer,omitempty"`
	ToolCalls []ToolRequest `json:"tool_calls,omitempty"`
}

// FinalAnswer builds a terminal outcome.
func FinalAnswer(text string) *Outcome {
	return &Outcome{Kind: OutcomeFinalAnswer, Answer: text}
}

// ToolUse builds a tool-invocation outcome.
func ToolUse(calls []ToolRequest) *Outcome {
	return &Outcome{Kind: OutcomeToolUse, ToolCalls: calls}
}

// --- OpenAI-style normalization (choices[].message.tool_calls) ---

type openAIToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAIToolCall struct {
	ID       string             `json:"id"`
	Function openAIToolFunction `json:"function"`
}

type openAIMessage struct {
	Content   string           `json:"content"`
	ToolCalls []openAIToolCall `json:"tool_calls"`
}

type openAIChoice struct {
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIChatResponse struct {
	Choices []openAIChoice `json:"choices"`
}

// NormalizeOpenAI collapses an OpenAI-style chat completion into an
// Outcome. Tool call arguments arrive as a JSON-encoded string and are
// decoded here.
func NormalizeOpenAI(raw []byte) (*Outcome, error) {
	var resp openAIChatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode openai response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai response has no choices")
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) == 0 {
		return FinalAnswer(msg.Content), nil
	}

	calls := make([]ToolRequest, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		input := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
				return nil, fmt.Errorf("decode tool arguments for %s: %w", tc.Function.Name, err)
			}
		}
		calls = append(calls, ToolRequest{ID: tc.ID, Name: tc.Function.Name, Input: input})
	}
	return ToolUse(calls), nil
}

// --- Anthropic-style normalization (content blocks, stop_reason) ---

type anthropicContentBlock struct {
	Type  string         `json:"type"`
	Text  string         `json:"text,omitempty"`
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
}

type anthropicResponse struct {
	StopReason string                  `json:"stop_reason"`
	Content    []anthropicContentBlock `json:"content"`
}

// NormalizeAnthropic collapses an Anthropic-style message response into an
// Outcome. Tool use is signalled by stop_reason and typed content blocks.
func NormalizeAnthropic(raw []byte) (*Outcome, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode anthropic response: %w", err)
	}

	if resp.StopReason == "tool_use" {
		var calls []ToolRequest
		for _, block := range resp.Content {
			if block.Type != "tool_use" {
				continue
			}
			input := block.Input
			if input == nil {
				input = map[string]any{}
			}
			calls = append(calls, ToolRequest{ID: block.ID, Name: block.Name, Input: input})
		}
		if len(calls) == 0 {
			return nil, fmt.Errorf("anthropic response declared tool_use without tool_use blocks")
		}
		return ToolUse(calls), nil
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return FinalAnswer(text), nil
}
