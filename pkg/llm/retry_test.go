package llm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"safebot-be/pkg/llm"
	"safebot-be/pkg/llm/llmtest"
	"safebot-be/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("provider unavailable")

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts:     attempts,
		CallTimeout:     time.Second,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func TestWithRetryRecoversFromTransientErrors(t *testing.T) {
	inner := llmtest.New(
		llmtest.Reply{Err: errFlaky},
		llmtest.Reply{Err: errFlaky},
		llmtest.Reply{Text: "ok"},
	)
	p := llm.WithRetry(inner, fastPolicy(3))

	out, err := p.Generate(context.Background(), "hola", llm.WithTemperature(0))
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Len(t, inner.Calls(), 3)
	assert.Equal(t, 0.0, inner.Calls()[2].Options.Temperature)
}

func TestWithRetryStopsAfterMaxAttempts(t *testing.T) {
	inner := llmtest.New(
		llmtest.Reply{Err: errFlaky},
		llmtest.Reply{Err: errFlaky},
		llmtest.Reply{Text: "too late"},
	)
	p := llm.WithRetry(inner, fastPolicy(2))

	_, err := p.Chat(context.Background(), []llm.Message{{Role: "user", Content: "x"}})
	assert.ErrorIs(t, err, errFlaky)
	assert.Len(t, inner.Calls(), 2)
}

func TestApplyOptions(t *testing.T) {
	opts := llm.ApplyOptions(llm.Options{Temperature: 0.7, Model: "base"},
		llm.WithTemperature(0), llm.WithMaxTokens(64), llm.WithJSONMode(), llm.WithModel("other"))

	assert.Equal(t, 0.0, opts.Temperature)
	assert.Equal(t, 64, opts.MaxTokens)
	assert.True(t, opts.JSONMode)
	assert.Equal(t, "other", opts.Model)
}
