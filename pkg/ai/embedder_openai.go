package ai

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	client     jsonClient
}

// NewOpenAIEmbedder builds an embedder. baseURL defaults to the public API and
// must include the /v1 prefix when set. dimensions is sent only when positive.
func NewOpenAIEmbedder(baseURL, apiKey, model string, dimensions int, timeout time.Duration, retry RetryPolicy) *OpenAIEmbedder {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIEmbedder{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
		model:      strings.TrimSpace(model),
		dimensions: dimensions,
		client:     newJSONClient("openai", timeout, retry),
	}
}

func (e *OpenAIEmbedder) EmbedText(ctx context.Context, text, taskType string) ([]float32, error) {
	out, err := e.EmbedTexts(ctx, []string{text}, taskType)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string, _ string) ([][]float32, error) {
	if e.model == "" {
		return nil, fmt.Errorf("openai embedding model required")
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("embedding text required")
	}
	req := oaiEmbedRequest{Model: e.model, Input: texts}
	if e.dimensions > 0 && strings.HasPrefix(e.model, "text-embedding-3") {
		req.Dimensions = e.dimensions
	}
	var resp oaiEmbedResponse
	if err := e.client.post(ctx, e.baseURL+"/embeddings", e.header(), req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embedding count mismatch: got %d, want %d", len(resp.Data), len(texts))
	}
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	out := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		if len(item.Embedding) == 0 {
			return nil, fmt.Errorf("openai embedding %d is empty", i)
		}
		out[i] = item.Embedding
	}
	return out, nil
}

func (e *OpenAIEmbedder) header() http.Header {
	h := http.Header{}
	if e.apiKey != "" {
		h.Set("Authorization", "Bearer "+e.apiKey)
	}
	return h
}

type oaiEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type oaiEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}
