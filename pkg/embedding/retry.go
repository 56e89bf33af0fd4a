package embedding

import (
	"context"

	"safebot-be/pkg/retry"
)

type retryingProvider struct {
	inner  EmbeddingProvider
	policy retry.Policy
}

// WithRetry wraps a provider so every Generate call follows policy. The identity is unchanged.
func WithRetry(inner EmbeddingProvider, policy retry.Policy) EmbeddingProvider {
	return &retryingProvider{inner: inner, policy: policy}
}

func (p *retryingProvider) Identity() string {
	return p.inner.Identity()
}

func (p *retryingProvider) Generate(ctx context.Context, text string, taskType string) (*EmbeddingResponse, error) {
	return retry.Do(ctx, p.policy, func(ctx context.Context) (*EmbeddingResponse, error) {
		return p.inner.Generate(ctx, text, taskType)
	})
}
