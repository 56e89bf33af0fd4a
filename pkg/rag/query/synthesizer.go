package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"safebot-be/internal/constant"
	"safebot-be/internal/pkg/logger"
	"safebot-be/pkg/llm"
	"safebot-be/pkg/rag/lexicon"
	"safebot-be/pkg/store"
)

const (
	maxQueryRunes      = 200
	maxFallbackSummary = 6
)

// ErrNoQuery means the model answered without a usable query line.
var ErrNoQuery = errors.New("model returned no usable query")

// procedural vocabulary per role, used when the model gives no query
var roleKeywords = map[store.Role]string{
	store.RoleVictim:    "protocolo de actuación acoso escolar víctima medidas de protección",
	store.RoleProtector: "protocolo acoso escolar comunicación de hechos alumnado que defiende",
	store.RoleAggressor: "protocolo acoso escolar medidas educativas alumnado agresor",
	store.RoleHelper:    "protocolo acoso escolar medidas educativas alumnado que colabora",
	store.RoleBystander: "protocolo acoso escolar comunicación testigos",
	store.RoleObserver:  "protocolo acoso escolar comunicación testigos observadores",
	store.RoleOther:     "protocolo convivencia escolar orientación",
}

// Synthesizer turns a profile into a retrieval query phrased like institutional documents.
type Synthesizer struct {
	llmProvider llm.LLMProvider
	logger      logger.ILogger
}

func NewSynthesizer(llmProvider llm.LLMProvider, logger logger.ILogger) *Synthesizer {
	return &Synthesizer{
		llmProvider: llmProvider,
		logger:      logger,
	}
}

// Synthesize asks the model for a query. On provider error or empty output it
// returns the error; callers degrade with Fallback.
func (s *Synthesizer) Synthesize(ctx context.Context, role store.Role, summary string) (string, error) {
	prompt := fmt.Sprintf(constant.QuerySynthesizerPrompt, role, summary)

	raw, err := s.llmProvider.Generate(ctx, prompt, llm.WithTemperature(0.0), llm.WithMaxTokens(64))
	if err != nil {
		return "", fmt.Errorf("query model: %w", err)
	}

	q := sanitize(raw)
	if q == "" {
		return "", ErrNoQuery
	}

	s.logger.Debug("QuerySynthesizer", "Query synthesized", map[string]interface{}{"query": q})
	return q, nil
}

// Fallback builds a deterministic query from the role's procedural vocabulary
// and the first content words of the summary.
func Fallback(role store.Role, summary string) string {
	base, ok := roleKeywords[role]
	if !ok {
		base = roleKeywords[store.RoleOther]
	}
	words := lexicon.ContentWords(summary)
	if len(words) > maxFallbackSummary {
		words = words[:maxFallbackSummary]
	}
	if len(words) == 0 {
		return base
	}
	return base + " " + strings.Join(words, " ")
}

// sanitize keeps the first non-empty line without labels, quotes or markdown.
func sanitize(raw string) string {
	var line string
	for _, l := range strings.Split(raw, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}

	lower := strings.ToLower(line)
	for _, prefix := range []string{"query de búsqueda:", "query:", "search_query:", "búsqueda:"} {
		if strings.HasPrefix(lower, prefix) {
			line = strings.TrimSpace(line[len(prefix):])
			break
		}
	}

	line = strings.Trim(line, "\"'`*«» ")
	runes := []rune(line)
	if len(runes) > maxQueryRunes {
		line = strings.TrimSpace(string(runes[:maxQueryRunes]))
	}
	return line
}
