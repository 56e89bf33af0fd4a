package mapper

import (
	"encoding/json"
	"errors"
	"fmt"

	"safebot-be/internal/model"
	"safebot-be/pkg/sealer"
	"safebot-be/pkg/store"

	"gorm.io/datatypes"
)

var ErrSealedWithoutKey = errors.New("conversation payload is sealed but no key is configured")

// ConversationMapper encodes conversation state into the payload shared by
// every store backend. With a sealer the payload is an encrypted envelope bound
// to the thread id; without one it is plain JSON.
type ConversationMapper struct {
	sealer *sealer.Sealer
}

func NewConversationMapper(s *sealer.Sealer) *ConversationMapper {
	return &ConversationMapper{sealer: s}
}

func (m *ConversationMapper) Encode(state *store.ConversationState) ([]byte, bool, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, false, fmt.Errorf("encode conversation: %w", err)
	}
	if m.sealer == nil {
		return raw, false, nil
	}
	sealed, err := m.sealer.Seal(raw, []byte(state.ThreadId))
	if err != nil {
		return nil, false, err
	}
	return sealed, true, nil
}

// Decode accepts plain payloads even when a sealer is configured, so enabling
// encryption does not strand existing threads.
func (m *ConversationMapper) Decode(threadId string, payload []byte) (*store.ConversationState, error) {
	raw := payload
	if sealer.IsSealed(payload) {
		if m.sealer == nil {
			return nil, ErrSealedWithoutKey
		}
		opened, err := m.sealer.Open(payload, []byte(threadId))
		if err != nil {
			return nil, err
		}
		raw = opened
	}

	var state store.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	if state.ThreadId != threadId {
		return nil, fmt.Errorf("decode conversation: payload belongs to thread %q", state.ThreadId)
	}
	if state.History == nil {
		state.History = []store.Turn{}
	}
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	state.StoredLength = len(state.History)
	return &state, nil
}

func (m *ConversationMapper) ToModel(state *store.ConversationState) (*model.Conversation, error) {
	payload, sealed, err := m.Encode(state)
	if err != nil {
		return nil, err
	}
	return &model.Conversation{
		ThreadId:      state.ThreadId,
		Payload:       datatypes.JSON(payload),
		Sealed:        sealed,
		HistoryLength: len(state.History),
		CreatedAt:     state.CreatedAt,
		UpdatedAt:     state.UpdatedAt,
	}, nil
}

func (m *ConversationMapper) ToState(c *model.Conversation) (*store.ConversationState, error) {
	if c == nil {
		return nil, nil
	}
	return m.Decode(c.ThreadId, []byte(c.Payload))
}
