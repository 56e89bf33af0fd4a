// Package llmtest provides a scripted LLMProvider for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"safebot-be/pkg/llm"
)

var ErrScriptExhausted = errors.New("llmtest: no scripted reply left")

// Reply is one scripted answer; Err wins over Text when set.
type Reply struct {
	Text string
	Err  error
}

// Call records what the provider received.
type Call struct {
	History []llm.Message
	Options llm.Options
}

// Provider returns the scripted replies in order. When Respond is set it is used
// instead of the script.
type Provider struct {
	mu      sync.Mutex
	script  []Reply
	calls   []Call
	Respond func(history []llm.Message, opts llm.Options) (string, error)
}

var _ llm.LLMProvider = &Provider{}

func New(replies ...Reply) *Provider {
	return &Provider{script: replies}
}

// Texts is shorthand for a script of successful replies.
func Texts(texts ...string) *Provider {
	replies := make([]Reply, len(texts))
	for i, t := range texts {
		replies[i] = Reply{Text: t}
	}
	return New(replies...)
}

func (p *Provider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	opts := llm.ApplyOptions(llm.Options{}, options...)

	p.mu.Lock()
	p.calls = append(p.calls, Call{History: append([]llm.Message(nil), history...), Options: opts})
	respond := p.Respond
	var next *Reply
	if respond == nil && len(p.script) > 0 {
		next = &p.script[0]
		p.script = p.script[1:]
	}
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if respond != nil {
		return respond(history, opts)
	}
	if next == nil {
		return "", ErrScriptExhausted
	}
	if next.Err != nil {
		return "", next.Err
	}
	return next.Text, nil
}

func (p *Provider) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return p.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, options...)
}

func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}
