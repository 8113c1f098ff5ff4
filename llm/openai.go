package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// OpenAIConfig configures the OpenAI-compatible reference client. Any
// endpoint speaking the /v1/chat/completions and /v1/embeddings protocol
// works.
type OpenAIConfig struct {
	BaseURL        string        `json:"base_url" yaml:"base_url"`
	APIKey         string        `json:"api_key" yaml:"api_key"`
	Model          string        `json:"model" yaml:"model"`
	EmbeddingModel string        `json:"embedding_model" yaml:"embedding_model"`
	Dimensions     int           `json:"dimensions" yaml:"dimensions"`
	MaxTokens      int           `json:"max_tokens" yaml:"max_tokens"`
	Temperature    float64       `json:"temperature" yaml:"temperature"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultOpenAIConfig returns sane client defaults.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL:        "https://api.openai.com",
		Model:          "gpt-4o-mini",
		EmbeddingModel: "text-embedding-3-small",
		Dimensions:     1536,
		MaxTokens:      1024,
		Temperature:    0.2,
		Timeout:        60 * time.Second,
	}
}

// OpenAIClient implements GenerationProvider and EmbeddingProvider
// against an OpenAI-compatible endpoint.
type OpenAIClient struct {
	config OpenAIConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAIClient creates a client. Zero-value config fields take
// defaults.
func NewOpenAIClient(config OpenAIConfig, logger *zap.Logger) *OpenAIClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultOpenAIConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Model == "" {
		config.Model = def.Model
	}
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = def.EmbeddingModel
	}
	if config.Dimensions == 0 {
		config.Dimensions = def.Dimensions
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = def.MaxTokens
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &OpenAIClient{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}
}

func (c *OpenAIClient) providerErr(op string, err error) error {
	return &ProviderError{Provider: "openai", Op: op, Err: err}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
	Tools       []chatTool    `json:"tools,omitempty"`
}

func (c *OpenAIClient) chatBody(prompt, system string, tools []ToolSchema, stream bool) chatRequest {
	var messages []chatMessage
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	req := chatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		Stream:      stream,
	}
	for _, t := range tools {
		var ct chatTool
		ct.Type = "function"
		ct.Function.Name = t.Name
		ct.Function.Description = t.Description
		ct.Function.Parameters = t.Parameters
		req.Tools = append(req.Tools, ct)
	}
	return req
}

func (c *OpenAIClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return resp, nil
}

// Generate produces one completion for the prompt.
func (c *OpenAIClient) Generate(ctx context.Context, prompt, system string) (string, error) {
	resp, err := c.post(ctx, "/v1/chat/completions", c.chatBody(prompt, system, nil, false))
	if err != nil {
		return "", c.providerErr("generate", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", c.providerErr("generate", err)
	}
	outcome, err := NormalizeOpenAI(raw)
	if err != nil {
		return "", c.providerErr("generate", err)
	}
	return outcome.Answer, nil
}

// GenerateWithTools produces a normalized Outcome for a tool-capable
// completion.
func (c *OpenAIClient) GenerateWithTools(ctx context.Context, prompt string, tools []ToolSchema, system string) (*Outcome, error) {
	resp, err := c.post(ctx, "/v1/chat/completions", c.chatBody(prompt, system, tools, false))
	if err != nil {
		return nil, c.providerErr("generate_with_tools", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.providerErr("generate_with_tools", err)
	}
	outcome, err := NormalizeOpenAI(raw)
	if err != nil {
		return nil, c.providerErr("generate_with_tools", err)
	}
	return outcome, nil
}

type streamDelta struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// GenerateStream produces a finite sequence of content fragments over SSE.
// The channel closes after the final fragment; a terminal failure is
// delivered as the last chunk's Err.
func (c *OpenAIClient) GenerateStream(ctx context.Context, prompt, system string) (<-chan StreamChunk, error) {
	resp, err := c.post(ctx, "/v1/chat/completions", c.chatBody(prompt, system, nil, true))
	if err != nil {
		return nil, c.providerErr("generate_stream", err)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" || payload == "[DONE]" {
				continue
			}
			var delta streamDelta
			if err := json.Unmarshal([]byte(payload), &delta); err != nil {
				continue
			}
			if len(delta.Choices) == 0 || delta.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case out <- StreamChunk{Delta: delta.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case out <- StreamChunk{Err: c.providerErr("generate_stream", err)}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

type embedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Encode returns one embedding per input text.
func (c *OpenAIClient) Encode(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}
	body := embedRequest{Input: texts, Model: c.config.EmbeddingModel, Dimensions: c.config.Dimensions}
	resp, err := c.post(ctx, "/v1/embeddings", body)
	if err != nil {
		return nil, c.providerErr("encode", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.providerErr("encode", err)
	}
	var er embedResponse
	if err := json.Unmarshal(raw, &er); err != nil {
		return nil, c.providerErr("encode", err)
	}
	if len(er.Data) != len(texts) {
		return nil, c.providerErr("encode", fmt.Errorf("got %d embeddings for %d inputs", len(er.Data), len(texts)))
	}

	vectors := make([][]float64, len(texts))
	for _, d := range er.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, c.providerErr("encode", fmt.Errorf("embedding index %d out of range", d.Index))
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// Dimensions reports the configured embedding dimension.
func (c *OpenAIClient) Dimensions() int { return c.config.Dimensions }
