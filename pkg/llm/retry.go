package llm

import (
	"context"

	"safebot-be/pkg/retry"
)

type retryingProvider struct {
	inner  LLMProvider
	policy retry.Policy
}

// WithRetry wraps a provider so every Chat/Generate call follows policy.
func WithRetry(inner LLMProvider, policy retry.Policy) LLMProvider {
	return &retryingProvider{inner: inner, policy: policy}
}

func (p *retryingProvider) Chat(ctx context.Context, history []Message, options ...Option) (string, error) {
	return retry.Do(ctx, p.policy, func(ctx context.Context) (string, error) {
		return p.inner.Chat(ctx, history, options...)
	})
}

func (p *retryingProvider) Generate(ctx context.Context, prompt string, options ...Option) (string, error) {
	return retry.Do(ctx, p.policy, func(ctx context.Context) (string, error) {
		return p.inner.Generate(ctx, prompt, options...)
	})
}
