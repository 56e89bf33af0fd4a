package classifier

import (
	"context"
	"errors"
	"testing"

	"safebot-be/internal/pkg/logger"
	"safebot-be/pkg/llm/llmtest"
	"safebot-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClassifier(p *llmtest.Provider) *Classifier {
	return NewClassifier(p, logger.NewNopLogger())
}

func TestClassifyPatioScenario(t *testing.T) {
	p := llmtest.Texts(`{"role":"victim","risk":"high","summary":"Tres chicos esperan al alumno en el patio para pegarle."}`)
	c := newTestClassifier(p)

	profile, err := c.Classify(context.Background(), "tengo miedo, tres chicos me esperan en el patio para pegarme")
	require.NoError(t, err)

	assert.Equal(t, store.RoleVictim, profile.Role)
	assert.Contains(t, []store.RiskLevel{store.RiskHigh, store.RiskImminent}, profile.Risk)
	assert.Contains(t, profile.Summary, "patio")

	calls := p.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 0.0, calls[0].Options.Temperature)
	assert.True(t, calls[0].Options.JSONMode)
}

func TestClassifyAcceptsFencedJSON(t *testing.T) {
	p := llmtest.Texts("```json\n{\"role\":\"other\",\"risk\":\"low\",\"summary\":\"Saluda: hola, qué tal.\"}\n```")
	profile, err := newTestClassifier(p).Classify(context.Background(), "hola, qué tal")
	require.NoError(t, err)
	assert.Equal(t, store.RoleOther, profile.Role)
	assert.Equal(t, store.RiskLow, profile.Risk)
}

func TestClassifyRejectsOutOfSchemaOutput(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{"spanish role label", `{"role":"victima","risk":"alto","summary":"x"}`},
		{"unknown risk", `{"role":"victim","risk":"critical","summary":"x"}`},
		{"missing summary", `{"role":"victim","risk":"low"}`},
		{"extra field", `{"role":"victim","risk":"low","summary":"x","action":"call police"}`},
		{"wrong type", `{"role":["victim"],"risk":"low","summary":"x"}`},
		{"free text", `The student seems to be a victim at high risk.`},
		{"broken json", `{"role":"victim",`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClassifier(llmtest.Texts(tt.output))
			profile, err := c.Classify(context.Background(), "me pegan en el recreo")
			assert.True(t, errors.Is(err, ErrSchemaViolation), "got %v", err)
			assert.Equal(t, store.Profile{}, profile)
		})
	}
}

func TestClassifyNonLinguisticInputSkipsModel(t *testing.T) {
	for _, msg := range []string{"", "   ", "?!?! 123", "😢😢"} {
		p := llmtest.New()
		profile, err := newTestClassifier(p).Classify(context.Background(), msg)
		require.NoError(t, err)
		assert.Equal(t, store.DefaultProfile(), profile)
		assert.Empty(t, p.Calls())
	}
}

func TestClassifyProviderFailure(t *testing.T) {
	p := llmtest.New(llmtest.Reply{Err: errors.New("connection refused")})
	_, err := newTestClassifier(p).Classify(context.Background(), "me insultan")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrSchemaViolation)
}

func TestClassifyReplacesUngroundedSummary(t *testing.T) {
	p := llmtest.Texts(`{"role":"victim","risk":"medium","summary":"Su profesor de matemáticas le amenaza con suspender. Además..."}`)
	profile, err := newTestClassifier(p).Classify(context.Background(), "se ríen de mí en clase")
	require.NoError(t, err)
	assert.Equal(t, "se ríen de mí en clase", profile.Summary)
}

func TestClassifyReplacesSummaryWithInventedDetail(t *testing.T) {
	message := "tengo miedo, tres chicos me esperan en el patio para pegarme"
	p := llmtest.Texts(`{"role":"victim","risk":"high","summary":"Sufre acoso sexual en el patio."}`)
	profile, err := newTestClassifier(p).Classify(context.Background(), message)
	require.NoError(t, err)
	assert.Equal(t, message, profile.Summary)
	assert.NotContains(t, profile.Summary, "sexual")
}

func TestClassifyRoleAndRiskAlwaysEnumerated(t *testing.T) {
	outputs := []string{
		`{"role":"protector","risk":"low","summary":"Defiende a un compañero en clase."}`,
		`{"role":"aggressor","risk":"medium","summary":"Se burla de un compañero en clase."}`,
		`{"role":"helper","risk":"low","summary":"Ríe cuando se burlan en clase."}`,
		`{"role":"bystander","risk":"low","summary":"Mira cuando se burlan en clase."}`,
		`{"role":"observer","risk":"high","summary":"Ve peleas en clase."}`,
		`{"role":"victim","risk":"imminent","summary":"Piensa en hacerse daño tras lo de clase."}`,
		`{"role":"Victim","risk":"low","summary":"clase"}`,
	}

	for _, out := range outputs {
		profile, err := newTestClassifier(llmtest.Texts(out)).Classify(context.Background(), "algo pasa en clase")
		if err != nil {
			assert.ErrorIs(t, err, ErrSchemaViolation)
			continue
		}
		assert.Contains(t, store.Roles, profile.Role)
		assert.Contains(t, store.RiskLevels, profile.Risk)
	}
}
