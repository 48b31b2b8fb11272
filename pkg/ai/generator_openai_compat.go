package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenAICompatGenerator calls any OpenAI-compatible /chat/completions endpoint.
// Works with OpenAI, vLLM, LiteLLM, LocalAI, OpenRouter and similar servers.
type OpenAICompatGenerator struct {
	baseURL     string
	apiKey      string
	model       string
	temperature *float64
	client      jsonClient
}

// NewOpenAICompatGenerator builds an OpenAI-compatible TextGenerator.
// baseURL should include the /v1 prefix and defaults to the public API.
// apiKey can be empty for local models that do not require authentication.
func NewOpenAICompatGenerator(baseURL, apiKey, model string, timeout time.Duration, retry RetryPolicy) *OpenAICompatGenerator {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAICompatGenerator{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		model:   strings.TrimSpace(model),
		client:  newJSONClient("openai-compat", timeout, retry),
	}
}

// WithTemperature fixes the sampling temperature sent on every request.
func (g *OpenAICompatGenerator) WithTemperature(t float64) *OpenAICompatGenerator {
	g.temperature = &t
	return g
}

func (g *OpenAICompatGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if g.model == "" {
		return "", fmt.Errorf("openai-compat generation model required")
	}
	h := http.Header{}
	if g.apiKey != "" {
		h.Set("Authorization", "Bearer "+g.apiKey)
	}
	req := oaiChatRequest{
		Model:       g.model,
		Messages:    chatMessages(systemPrompt, userPrompt),
		Temperature: g.temperature,
	}
	var resp oaiChatResponse
	if err := g.client.post(ctx, g.baseURL+"/chat/completions", h, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from openai-compat api")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty response from openai-compat api")
	}
	return text, nil
}

type oaiChatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}
