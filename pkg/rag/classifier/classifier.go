package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"safebot-be/internal/constant"
	"safebot-be/internal/pkg/logger"
	"safebot-be/pkg/llm"
	"safebot-be/pkg/rag/lexicon"
	"safebot-be/pkg/store"
)

var (
	// ErrSchemaViolation means the model output could not be mapped onto the profile schema.
	ErrSchemaViolation = errors.New("classifier output violates profile schema")
	// ErrUnavailable means the model could not be reached within the retry budget.
	ErrUnavailable = errors.New("classifier model unavailable")
)

const maxSummaryRunes = 240

type rawProfile struct {
	Role    string `json:"role"`
	Risk    string `json:"risk"`
	Summary string `json:"summary"`
}

// Classifier turns the latest user message into a validated profile.
type Classifier struct {
	llmProvider llm.LLMProvider
	logger      logger.ILogger
}

func NewClassifier(llmProvider llm.LLMProvider, logger logger.ILogger) *Classifier {
	return &Classifier{
		llmProvider: llmProvider,
		logger:      logger,
	}
}

// Classify returns ErrSchemaViolation or ErrUnavailable instead of a best-effort profile.
// Input without any letters yields the default profile without a model call.
func (c *Classifier) Classify(ctx context.Context, message string) (store.Profile, error) {
	if !lexicon.HasLetters(message) {
		c.logger.Debug("Classifier", "Non-linguistic input, using default profile", nil)
		return store.DefaultProfile(), nil
	}

	prompt := fmt.Sprintf(constant.ClassifierPrompt, message)
	raw, err := c.llmProvider.Generate(ctx, prompt, llm.WithTemperature(0.0), llm.WithJSONMode())
	if err != nil {
		return store.Profile{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	profile, err := parseProfile(raw)
	if err != nil {
		c.logger.Warn("Classifier", "Rejected model output", map[string]interface{}{
			"error":  err.Error(),
			"output": truncate(raw, 300),
		})
		return store.Profile{}, err
	}

	profile.Summary = groundSummary(profile.Summary, message)

	c.logger.Info("Classifier", "Message classified", map[string]interface{}{
		"role": profile.Role,
		"risk": profile.Risk,
	})
	return profile, nil
}

func parseProfile(raw string) (store.Profile, error) {
	jsonText := extractJSON(raw)
	if jsonText == "" {
		return store.Profile{}, fmt.Errorf("%w: no JSON object in output", ErrSchemaViolation)
	}

	if err := validateAgainstSchema([]byte(jsonText)); err != nil {
		return store.Profile{}, err
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(jsonText)))
	dec.DisallowUnknownFields()
	var rp rawProfile
	if err := dec.Decode(&rp); err != nil {
		return store.Profile{}, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	role, err := store.ParseRole(rp.Role)
	if err != nil {
		return store.Profile{}, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	risk, err := store.ParseRiskLevel(rp.Risk)
	if err != nil {
		return store.Profile{}, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	return store.Profile{Role: role, Risk: risk, Summary: rp.Summary}, nil
}

// minSummaryCoverage is the share of the summary's content words that must
// come from the message.
const minSummaryCoverage = 0.5

// groundSummary keeps the summary to one sentence and replaces it with the
// message itself when most of its content words are not in the message.
func groundSummary(summary, message string) string {
	summary = lexicon.FirstSentence(summary, maxSummaryRunes)
	if summary != "" && lexicon.Coverage(summary, message) >= minSummaryCoverage {
		return summary
	}
	return lexicon.FirstSentence(message, maxSummaryRunes)
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
