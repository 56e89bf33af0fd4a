// Package embeddingtest provides deterministic embedding providers for tests.
package embeddingtest

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"

	"safebot-be/pkg/embedding"
)

var ErrUnavailable = errors.New("embeddingtest: provider unavailable")

// KeywordProvider embeds text as a bag of the configured vocabulary words,
// normalized to unit length. Texts sharing more vocabulary end up closer.
type KeywordProvider struct {
	Name       string
	Vocabulary []string

	mu    sync.Mutex
	fail  bool
	calls int
}

var _ embedding.EmbeddingProvider = &KeywordProvider{}

func NewKeywordProvider(name string, vocabulary ...string) *KeywordProvider {
	return &KeywordProvider{Name: name, Vocabulary: vocabulary}
}

func (p *KeywordProvider) Identity() string {
	return p.Name
}

func (p *KeywordProvider) SetFail(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = fail
}

func (p *KeywordProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *KeywordProvider) Generate(ctx context.Context, text string, taskType string) (*embedding.EmbeddingResponse, error) {
	p.mu.Lock()
	p.calls++
	fail := p.fail
	p.mu.Unlock()

	if fail {
		return nil, ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lower := strings.ToLower(text)
	values := make([]float32, len(p.Vocabulary)+1)
	for i, word := range p.Vocabulary {
		values[i] = float32(strings.Count(lower, strings.ToLower(word)))
	}
	// Bias dimension keeps texts without vocabulary from being the zero vector.
	values[len(p.Vocabulary)] = 0.1

	var norm float64
	for _, v := range values {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	for i := range values {
		values[i] = float32(float64(values[i]) / norm)
	}

	return &embedding.EmbeddingResponse{
		Embedding: embedding.EmbeddingResponseEmbedding{Values: values},
	}, nil
}
