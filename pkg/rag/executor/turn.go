package executor

import (
	"time"

	"safebot-be/pkg/events"
	"safebot-be/pkg/rag/response"
	"safebot-be/pkg/store"
)

// State is a node of the per-turn state machine.
type State string

const (
	StateStart            State = "start"
	StateClassified       State = "classified"
	StateQuerySynthesized State = "query_synthesized"
	StateRetrieved        State = "retrieved"
	StateResponded        State = "responded"
)

// Outcome says where the reply text came from.
type Outcome string

const (
	OutcomeModel    Outcome = "model"
	OutcomeTemplate Outcome = "template"
	OutcomeSupport  Outcome = "support_message"
	OutcomeSafety   Outcome = "safety_reply"
)

// Turn is the working copy threaded through the stages for one message.
type Turn struct {
	Conversation *store.ConversationState
	Message      string
	At           time.Time
	FirstTurn    bool

	previous *store.Profile

	Profile store.Profile
	Query   string
	Context store.RetrievedContext
	Reply   string
	Outcome Outcome

	Visited []State
	Reviews []events.BaseEvent
}

// NewTurn appends message to conv and captures what the stages need from the
// state before this turn.
func NewTurn(conv *store.ConversationState, message string, at time.Time) *Turn {
	var previous *store.Profile
	if conv.Profile != nil {
		p := *conv.Profile
		previous = &p
	}
	conv.Append(store.SpeakerUser, message, at)
	return &Turn{
		Conversation: conv,
		Message:      message,
		At:           at,
		FirstTurn:    conv.UserTurns() == 1,
		previous:     previous,
	}
}

// earlierHistory is the history without the message being answered.
func (t *Turn) earlierHistory() []store.Turn {
	h := t.Conversation.History
	if len(h) == 0 {
		return nil
	}
	return h[:len(h)-1]
}

func (t *Turn) review(eventType string, data map[string]interface{}) {
	t.Reviews = append(t.Reviews, events.NewReviewEvent(eventType, t.Conversation.ThreadId, data, t.At))
}

// respond records the assistant utterance on the working copy.
func (t *Turn) respond(text string, outcome Outcome) {
	t.Reply = text
	t.Outcome = outcome
	t.Conversation.LastResponse = text
	t.Conversation.Append(store.SpeakerAssistant, text, t.At)
}

// abort answers with the fail-closed safety reply. Profile, query and context
// keep their previous values.
func (t *Turn) abort(reason string) {
	t.review(events.TypeSchemaViolation, map[string]interface{}{"reason": reason})
	t.respond(response.SafetyReply(), OutcomeSafety)
}
