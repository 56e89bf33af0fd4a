package store

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role is the classifier's judgment of the sender's position in the situation.
type Role string

const (
	RoleVictim    Role = "victim"
	RoleProtector Role = "protector"
	RoleAggressor Role = "aggressor"
	RoleHelper    Role = "helper"
	RoleBystander Role = "bystander"
	RoleObserver  Role = "observer"
	RoleOther     Role = "other"
)

// Roles lists every valid role, in schema order.
var Roles = []Role{RoleVictim, RoleProtector, RoleAggressor, RoleHelper, RoleBystander, RoleObserver, RoleOther}

// RiskLevel is the urgency tier. Values are ordered by severity.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskImminent RiskLevel = "imminent"
)

// RiskLevels lists every valid risk level, least severe first.
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskImminent}

var (
	ErrUnknownRole      = errors.New("unknown role")
	ErrUnknownRiskLevel = errors.New("unknown risk level")
	ErrInvalidContext   = errors.New("invalid retrieved context")
)

// ParseRole accepts only the exact enumerated values.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// ParseRiskLevel accepts only the exact enumerated values.
func ParseRiskLevel(s string) (RiskLevel, error) {
	for _, r := range RiskLevels {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRiskLevel, s)
}

// Severity returns 0 for low up to 3 for imminent, -1 for an invalid value.
func (r RiskLevel) Severity() int {
	for i, lvl := range RiskLevels {
		if lvl == r {
			return i
		}
	}
	return -1
}

// Profile is the validated output of classification.
type Profile struct {
	Role    Role      `json:"role"`
	Risk    RiskLevel `json:"risk"`
	Summary string    `json:"summary"`
}

// DefaultProfile is used for empty or non-linguistic input.
func DefaultProfile() Profile {
	return Profile{Role: RoleOther, Risk: RiskLow}
}

func (p Profile) Validate() error {
	if _, err := ParseRole(string(p.Role)); err != nil {
		return err
	}
	if _, err := ParseRiskLevel(string(p.Risk)); err != nil {
		return err
	}
	return nil
}

type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

type Turn struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Passage is an excerpt of a source document with its provenance.
type Passage struct {
	Text     string  `json:"text"`
	SourceId string  `json:"source_id"`
	Page     int     `json:"page_number"`
	Distance float64 `json:"relevance_score"` // cosine distance, lower is more relevant
}

type ContextStatus string

const (
	ContextPassages    ContextStatus = "passages"
	ContextNoRelevant  ContextStatus = "no_relevant"
	ContextUnavailable ContextStatus = "unavailable"
)

const (
	NoRelevantText  = "No se encontró información relevante en los protocolos."
	UnavailableText = "Error al consultar la base de datos de conocimiento."
)

// RetrievedContext holds either a non-empty list of passages or exactly one sentinel.
type RetrievedContext struct {
	Status   ContextStatus `json:"status"`
	Passages []Passage     `json:"passages,omitempty"`
}

// NewPassageContext returns the no-relevant sentinel when passages is empty.
func NewPassageContext(passages []Passage) RetrievedContext {
	if len(passages) == 0 {
		return NoRelevantContext()
	}
	out := make([]Passage, len(passages))
	copy(out, passages)
	return RetrievedContext{Status: ContextPassages, Passages: out}
}

func NoRelevantContext() RetrievedContext {
	return RetrievedContext{Status: ContextNoRelevant}
}

func UnavailableContext() RetrievedContext {
	return RetrievedContext{Status: ContextUnavailable}
}

func (c RetrievedContext) IsSentinel() bool {
	return c.Status != ContextPassages
}

func (c RetrievedContext) Validate() error {
	switch c.Status {
	case ContextPassages:
		if len(c.Passages) == 0 {
			return fmt.Errorf("%w: passage context without passages", ErrInvalidContext)
		}
		for i, p := range c.Passages {
			if strings.TrimSpace(p.SourceId) == "" {
				return fmt.Errorf("%w: passage %d has no source", ErrInvalidContext, i)
			}
		}
	case ContextNoRelevant, ContextUnavailable:
		if len(c.Passages) != 0 {
			return fmt.Errorf("%w: sentinel %s carries passages", ErrInvalidContext, c.Status)
		}
	default:
		return fmt.Errorf("%w: status %q", ErrInvalidContext, c.Status)
	}
	return nil
}

// Render formats the context the way it is given to the response model, one
// block per passage with the passage's own line breaks flattened.
func (c RetrievedContext) Render() string {
	switch c.Status {
	case ContextNoRelevant:
		return NoRelevantText
	case ContextUnavailable:
		return UnavailableText
	}
	var sb strings.Builder
	for i, p := range c.Passages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[Fuente: %s (Pág %d)]: %s", p.SourceId, p.Page, flattenLines(p.Text))
	}
	return sb.String()
}

func flattenLines(text string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(text)
}

// ConversationState is everything persisted for one thread.
type ConversationState struct {
	ThreadId     string            `json:"thread_id"`
	History      []Turn            `json:"history"`
	Profile      *Profile          `json:"profile,omitempty"`
	SearchQuery  string            `json:"search_query"`
	Context      *RetrievedContext `json:"context,omitempty"`
	LastResponse string            `json:"last_response"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`

	// StoredLength is the history length of the stored copy this state was
	// read from, 0 for a thread never saved. A save is refused unless the store
	// still holds that length.
	StoredLength int `json:"-"`
}

func NewConversationState(threadId string, now time.Time) *ConversationState {
	return &ConversationState{
		ThreadId:  threadId,
		History:   []Turn{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so a turn can work without touching stored state.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	out := *s
	out.History = make([]Turn, len(s.History))
	copy(out.History, s.History)
	if s.Profile != nil {
		p := *s.Profile
		out.Profile = &p
	}
	if s.Context != nil {
		c := RetrievedContext{Status: s.Context.Status}
		if len(s.Context.Passages) > 0 {
			c.Passages = append([]Passage(nil), s.Context.Passages...)
		}
		out.Context = &c
	}
	return &out
}

func (s *ConversationState) Append(speaker Speaker, text string, at time.Time) {
	s.History = append(s.History, Turn{Speaker: speaker, Text: text, At: at})
}

// UserTurns counts user messages, including the one being processed.
func (s *ConversationState) UserTurns() int {
	n := 0
	for _, t := range s.History {
		if t.Speaker == SpeakerUser {
			n++
		}
	}
	return n
}

func (s *ConversationState) Validate() error {
	if strings.TrimSpace(s.ThreadId) == "" {
		return errors.New("conversation state without thread id")
	}
	if s.Profile != nil {
		if err := s.Profile.Validate(); err != nil {
			return err
		}
	}
	if s.Context != nil {
		if err := s.Context.Validate(); err != nil {
			return err
		}
	}
	for i, t := range s.History {
		if t.Speaker != SpeakerUser && t.Speaker != SpeakerAssistant {
			return fmt.Errorf("turn %d has unknown speaker %q", i, t.Speaker)
		}
	}
	return nil
}
