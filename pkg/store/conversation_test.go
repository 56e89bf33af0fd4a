package store

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	for _, r := range Roles {
		got, err := ParseRole(string(r))
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}

	for _, bad := range []string{"", "Victim", "victima", "público", "bully"} {
		_, err := ParseRole(bad)
		assert.True(t, errors.Is(err, ErrUnknownRole), bad)
	}
}

func TestParseRiskLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    RiskLevel
		wantErr bool
	}{
		{"low", RiskLow, false},
		{"medium", RiskMedium, false},
		{"high", RiskHigh, false},
		{"imminent", RiskImminent, false},
		{"alto", "", true},
		{"HIGH", "", true},
		{"critical", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRiskLevel(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownRiskLevel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRiskSeverityOrder(t *testing.T) {
	assert.Less(t, RiskLow.Severity(), RiskMedium.Severity())
	assert.Less(t, RiskMedium.Severity(), RiskHigh.Severity())
	assert.Less(t, RiskHigh.Severity(), RiskImminent.Severity())
	assert.Equal(t, -1, RiskLevel("unknown").Severity())
}

func TestNewPassageContextEmptyIsSentinel(t *testing.T) {
	c := NewPassageContext(nil)
	assert.Equal(t, ContextNoRelevant, c.Status)
	assert.True(t, c.IsSentinel())
	assert.Empty(t, c.Passages)
	assert.Equal(t, NoRelevantText, c.Render())
}

func TestRetrievedContextValidate(t *testing.T) {
	mixed := RetrievedContext{Status: ContextNoRelevant, Passages: []Passage{{Text: "x", SourceId: "a.pdf"}}}
	assert.ErrorIs(t, mixed.Validate(), ErrInvalidContext)

	emptyList := RetrievedContext{Status: ContextPassages}
	assert.ErrorIs(t, emptyList.Validate(), ErrInvalidContext)

	noSource := RetrievedContext{Status: ContextPassages, Passages: []Passage{{Text: "x"}}}
	assert.ErrorIs(t, noSource.Validate(), ErrInvalidContext)

	ok := NewPassageContext([]Passage{{Text: "x", SourceId: "protocolo.pdf", Page: 3}})
	assert.NoError(t, ok.Validate())
	assert.Equal(t, "[Fuente: protocolo.pdf (Pág 3)]: x", ok.Render())

	assert.NoError(t, UnavailableContext().Validate())
	assert.Equal(t, UnavailableText, UnavailableContext().Render())
}

func TestRenderFlattensPassageLines(t *testing.T) {
	c := NewPassageContext([]Passage{
		{Text: "Paso 1: avisar al tutor.\nPaso 2: registrar\r\nlos hechos.", SourceId: "protocolo.pdf", Page: 4},
		{Text: "Teléfono ANAR:\n900 20 20 10", SourceId: "recursos.md", Page: 1},
	})
	want := "[Fuente: protocolo.pdf (Pág 4)]: Paso 1: avisar al tutor. Paso 2: registrar los hechos.\n\n" +
		"[Fuente: recursos.md (Pág 1)]: Teléfono ANAR: 900 20 20 10"
	assert.Equal(t, want, c.Render())
	assert.Equal(t, "Paso 1: avisar al tutor.\nPaso 2: registrar\r\nlos hechos.", c.Passages[0].Text, "stored text is untouched")
}

func TestConversationStateJSONRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	state := NewConversationState("thread-1", now)
	state.Append(SpeakerUser, "hola", now)
	state.Append(SpeakerAssistant, "¡Hola! ¿Qué tal tu día?", now.Add(time.Second))
	state.Append(SpeakerUser, "me insultan en clase", now.Add(2*time.Second))
	state.Profile = &Profile{Role: RoleVictim, Risk: RiskMedium, Summary: "Le insultan en clase."}
	ctx := NewPassageContext([]Passage{{Text: "Protocolo", SourceId: "p.pdf", Page: 1, Distance: 0.2}})
	state.Context = &ctx

	data, err := json.Marshal(state)
	require.NoError(t, err)

	var loaded ConversationState
	require.NoError(t, json.Unmarshal(data, &loaded))

	assert.Equal(t, state.History, loaded.History)
	assert.Equal(t, *state.Profile, *loaded.Profile)
	assert.Equal(t, *state.Context, *loaded.Context)
	assert.NoError(t, loaded.Validate())
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	state := NewConversationState("t", now)
	state.Append(SpeakerUser, "uno", now)
	state.Profile = &Profile{Role: RoleOther, Risk: RiskLow}

	clone := state.Clone()
	clone.Append(SpeakerAssistant, "dos", now)
	clone.Profile.Risk = RiskHigh

	assert.Len(t, state.History, 1)
	assert.Equal(t, RiskLow, state.Profile.Risk)
	assert.Equal(t, 1, clone.UserTurns())
}

func TestValidateRejectsUnknownSpeaker(t *testing.T) {
	state := NewConversationState("t", time.Now())
	state.History = append(state.History, Turn{Speaker: "system", Text: "x"})
	assert.Error(t, state.Validate())
}
