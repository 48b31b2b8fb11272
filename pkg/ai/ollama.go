package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaBaseURL = "http://127.0.0.1:11434"

// OllamaClient calls the Ollama HTTP API.
type OllamaClient struct {
	baseURL string
	client  jsonClient
}

// NewOllamaClient constructs a client with the provided base URL.
func NewOllamaClient(baseURL string, timeout time.Duration, retry RetryPolicy) *OllamaClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaClient{
		baseURL: baseURL,
		client:  newJSONClient("ollama", timeout, retry),
	}
}

// EmbedText generates an embedding for the input text, falling back to the
// legacy /api/embeddings endpoint on servers that predate /api/embed.
func (c *OllamaClient) EmbedText(ctx context.Context, model, text string, dimensions int) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("embedding text required")
	}
	out, err := c.embed(ctx, model, text, dimensions)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusMethodNotAllowed) {
			return c.embedLegacy(ctx, model, text)
		}
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("ollama embed response missing embeddings")
	}
	return out[0], nil
}

// EmbedTexts embeds several inputs in one /api/embed call.
func (c *OllamaClient) EmbedTexts(ctx context.Context, model string, texts []string, dimensions int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("embedding text required")
	}
	out, err := c.embed(ctx, model, texts, dimensions)
	if err != nil {
		return nil, err
	}
	if len(out) != len(texts) {
		return nil, fmt.Errorf("ollama embedding count mismatch: got %d, want %d", len(out), len(texts))
	}
	return out, nil
}

func (c *OllamaClient) embed(ctx context.Context, model string, input any, dimensions int) ([][]float32, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, fmt.Errorf("ollama embedding model required")
	}
	reqBody := ollamaEmbedRequest{Model: model, Input: input}
	if dimensions > 0 {
		reqBody.Dimensions = dimensions
	}
	var resp ollamaEmbedResponse
	if err := c.client.post(ctx, c.baseURL+"/api/embed", nil, reqBody, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) > 0 {
		return resp.Embeddings, nil
	}
	if len(resp.Embedding) > 0 {
		return [][]float32{resp.Embedding}, nil
	}
	return nil, nil
}

func (c *OllamaClient) embedLegacy(ctx context.Context, model, text string) ([]float32, error) {
	var resp ollamaLegacyEmbedResponse
	if err := c.client.post(ctx, c.baseURL+"/api/embeddings", nil, ollamaLegacyEmbedRequest{Model: model, Prompt: text}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("ollama embedding response missing embedding")
	}
	return resp.Embedding, nil
}

// chat calls /api/chat without streaming.
func (c *OllamaClient) chat(ctx context.Context, req ollamaChatRequest) (ollamaChatResponse, error) {
	var resp ollamaChatResponse
	err := c.client.post(ctx, c.baseURL+"/api/chat", nil, req, &resp)
	return resp, err
}

type ollamaEmbedRequest struct {
	Model      string `json:"model"`
	Input      any    `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Embedding  []float32   `json:"embedding"`
}

type ollamaLegacyEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaLegacyEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}
