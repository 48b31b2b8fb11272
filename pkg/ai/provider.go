package ai

import (
	"fmt"
	"strings"
	"time"
)

// ProviderConfig selects and configures one model backend.
type ProviderConfig struct {
	Provider   string
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
	Retry      RetryPolicy
	// Temperature applies to openai-compatible generation only.
	Temperature *float64
}

func (c ProviderConfig) provider(fallback string) string {
	p := strings.ToLower(strings.TrimSpace(c.Provider))
	if p == "" {
		return fallback
	}
	return p
}

// NewEmbedder builds the configured embedding adapter. Provider defaults to openai.
func NewEmbedder(cfg ProviderConfig) (Embedder, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("embedding model required")
	}
	switch cfg.provider("openai") {
	case "openai":
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("openai api key required")
		}
		return NewOpenAIEmbedder(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Dimensions, cfg.Timeout, cfg.Retry), nil
	case "ollama":
		if cfg.Dimensions <= 0 {
			return nil, fmt.Errorf("embedding dim required for ollama")
		}
		return NewOllamaEmbedder(NewOllamaClient(cfg.BaseURL, cfg.Timeout, cfg.Retry), cfg.Model, cfg.Dimensions), nil
	case "gemini":
		client, err := NewGeminiClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout, cfg.Retry)
		if err != nil {
			return nil, err
		}
		return NewGeminiEmbedder(client, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

// NewGenerator builds the configured text generation adapter. Provider defaults to openai.
func NewGenerator(cfg ProviderConfig) (TextGenerator, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("generation model required")
	}
	switch cfg.provider("openai") {
	case "openai", "openai-compat", "openai_compat":
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("openai api key required")
		}
		g := NewOpenAICompatGenerator(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Timeout, cfg.Retry)
		if cfg.Temperature != nil {
			g.WithTemperature(*cfg.Temperature)
		}
		return g, nil
	case "ollama":
		return NewOllamaGenerator(NewOllamaClient(cfg.BaseURL, cfg.Timeout, cfg.Retry), cfg.Model), nil
	case "gemini":
		client, err := NewGeminiClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout, cfg.Retry)
		if err != nil {
			return nil, err
		}
		return NewGeminiGenerator(client, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown generation provider: %s", cfg.Provider)
	}
}
