package factory

import (
	"context"
	"fmt"

	"safebot-be/pkg/llm"
	"safebot-be/pkg/llm/gemini"
	"safebot-be/pkg/llm/ollama"
	"safebot-be/pkg/llm/openai"
)

type Settings struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

func NewLLMProvider(ctx context.Context, s Settings) (llm.LLMProvider, error) {
	switch s.Provider {
	case "ollama":
		baseURL := s.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(baseURL, s.Model), nil
	case "openai":
		return openai.NewProvider(s.APIKey, s.BaseURL, s.Model), nil
	case "huggingface":
		baseURL := s.BaseURL
		if baseURL == "" {
			baseURL = openai.HuggingFaceBaseURL
		}
		return openai.NewProvider(s.APIKey, baseURL, s.Model), nil
	case "gemini":
		return gemini.NewProvider(ctx, s.APIKey, s.Model)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", s.Provider)
	}
}
