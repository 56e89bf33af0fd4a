package response

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"safebot-be/internal/constant"
	"safebot-be/internal/pkg/logger"
	"safebot-be/pkg/llm"
	"safebot-be/pkg/store"
)

// ErrGenerationFailure means the model could not be reached after retries.
var ErrGenerationFailure = errors.New("response generation failed")

const maxHistoryTurns = 10

// Request is everything the generator needs for one reply.
type Request struct {
	History   []store.Turn // earlier turns, without the current message
	Profile   store.Profile
	Context   store.RetrievedContext
	Message   string
	FirstTurn bool
}

// Reply is the accepted text and how it was obtained.
type Reply struct {
	Text       string
	Rewrites   int
	Fallback   bool        // true when Text is the deterministic template
	Violations []Violation // rules the last model draft broke, when Fallback
}

type Config struct {
	Temperature float64
	MaxRewrites int
}

func DefaultConfig() Config {
	return Config{Temperature: 0.25, MaxRewrites: 2}
}

// Generator writes the assistant reply and enforces the reply rules on it.
type Generator struct {
	llmProvider llm.LLMProvider
	config      Config
	logger      logger.ILogger
}

func NewGenerator(llmProvider llm.LLMProvider, config Config, logger logger.ILogger) *Generator {
	if config.MaxRewrites < 0 {
		config.MaxRewrites = 0
	}
	return &Generator{
		llmProvider: llmProvider,
		config:      config,
		logger:      logger,
	}
}

// Generate drafts a reply, checks it and asks for rewrites with the violations
// as feedback. When every draft fails it returns the template reply.
func (g *Generator) Generate(ctx context.Context, req Request) (Reply, error) {
	messages := g.buildMessages(req)

	var violations []Violation
	for attempt := 0; attempt <= g.config.MaxRewrites; attempt++ {
		draft, err := g.llmProvider.Chat(ctx, messages, llm.WithTemperature(g.config.Temperature))
		if err != nil {
			return Reply{}, fmt.Errorf("%w: %v", ErrGenerationFailure, err)
		}
		draft = strings.TrimSpace(draft)

		violations = Check(draft, req)
		if len(violations) == 0 {
			return Reply{Text: draft, Rewrites: attempt}, nil
		}

		g.logger.Warn("ResponseGenerator", "Draft rejected", map[string]interface{}{
			"attempt": attempt,
			"rules":   ruleNames(violations),
		})
		messages = append(messages,
			llm.Message{Role: "assistant", Content: draft},
			llm.Message{Role: "user", Content: fmt.Sprintf(constant.ResponderRewritePrompt, feedbackList(violations))},
		)
	}

	g.logger.Warn("ResponseGenerator", "Rewrites exhausted, using template reply", map[string]interface{}{
		"rules": ruleNames(violations),
	})
	return Reply{
		Text:       Fallback(req),
		Rewrites:   g.config.MaxRewrites,
		Fallback:   true,
		Violations: violations,
	}, nil
}

func (g *Generator) buildMessages(req Request) []llm.Message {
	system := fmt.Sprintf(constant.ResponderSystemPrompt, tone(req), engagement(req), grounding(req))
	messages := []llm.Message{{Role: "system", Content: system}}

	history := req.History
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	for _, t := range history {
		role := "user"
		if t.Speaker == store.SpeakerAssistant {
			role = "assistant"
		}
		messages = append(messages, llm.Message{Role: role, Content: t.Text})
	}

	user := fmt.Sprintf(constant.ResponderUserPrompt, req.Message, req.Profile.Role, req.Profile.Risk, req.Context.Render())
	return append(messages, llm.Message{Role: "user", Content: user})
}

func tone(req Request) string {
	if req.Profile.Risk == store.RiskImminent {
		contacts := ""
		if numbers := ContactNumbers(req.Context); len(numbers) > 0 {
			contacts = "Incluye también estos teléfonos del contexto: " + strings.Join(numbers, ", ") + "."
		}
		return fmt.Sprintf(constant.ImminentTone, contacts)
	}
	if t, ok := constant.ToneByRole[string(req.Profile.Role)]; ok {
		return t
	}
	return constant.ToneByRole[string(store.RoleOther)]
}

func engagement(req Request) string {
	if req.Profile.Risk == store.RiskImminent {
		return constant.EngagementImminent
	}
	if req.FirstTurn {
		return constant.EngagementOpenQuestion + "\n" + constant.EngagementFirstTurn
	}
	return constant.EngagementOpenQuestion
}

func grounding(req Request) string {
	switch req.Context.Status {
	case store.ContextNoRelevant:
		if req.FirstTurn && req.Profile.Risk != store.RiskImminent {
			return constant.GroundingNoRelevant
		}
		return constant.GroundingNoRelevantReferral
	case store.ContextUnavailable:
		return constant.GroundingUnavailable
	}
	return constant.GroundingPassages
}

func ruleNames(vs []Violation) []string {
	names := make([]string, len(vs))
	for i, v := range vs {
		names[i] = string(v.Rule)
	}
	return names
}

func feedbackList(vs []Violation) string {
	var sb strings.Builder
	for _, v := range vs {
		sb.WriteString("- ")
		sb.WriteString(v.Feedback)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
