package memory

import (
	"bytes"
	"context"
	"testing"
	"time"

	"safebot-be/internal/mapper"
	"safebot-be/internal/repository/contract"
	"safebot-be/pkg/sealer"
	"safebot-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newState(threadId string, turns ...string) *store.ConversationState {
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	s := store.NewConversationState(threadId, now)
	for i, text := range turns {
		speaker := store.SpeakerUser
		if i%2 == 1 {
			speaker = store.SpeakerAssistant
		}
		s.Append(speaker, text, now)
	}
	return s
}

func TestConversationRepositoryRoundTrip(t *testing.T) {
	repo := NewConversationRepository(mapper.NewConversationMapper(nil), 0)
	ctx := context.Background()

	missing, err := repo.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	state := newState("t-1", "hola, qué tal", "¡Hola! ¿Cómo va tu día?")
	state.Profile = &store.Profile{Role: store.RoleOther, Risk: store.RiskLow, Summary: "Saluda."}
	require.NoError(t, repo.Save(ctx, state))

	got, err := repo.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, state, got)

	// the stored copy is independent of the caller's value
	got.History[0].Text = "changed"
	again, err := repo.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "hola, qué tal", again.History[0].Text)

	require.NoError(t, repo.Delete(ctx, "t-1"))
	gone, err := repo.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestConversationRepositoryRefusesShorterHistory(t *testing.T) {
	repo := NewConversationRepository(mapper.NewConversationMapper(nil), 0)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, newState("t-1", "a", "b", "c", "d")))
	stored, err := repo.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, 4, stored.StoredLength)

	shorter := stored.Clone()
	shorter.History = shorter.History[:2]
	assert.ErrorIs(t, repo.Save(ctx, shorter), contract.ErrHistoryRegression)

	stored.Append(store.SpeakerUser, "e", time.Now())
	stored.Append(store.SpeakerAssistant, "f", time.Now())
	require.NoError(t, repo.Save(ctx, stored))
	assert.Equal(t, 6, stored.StoredLength)
}

func TestConversationRepositoryCompareAndSet(t *testing.T) {
	repo := NewConversationRepository(mapper.NewConversationMapper(nil), 0)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, newState("t-1", "a", "b")))

	// a second writer that also read the thread as new loses
	err := repo.Save(ctx, newState("t-1", "x", "y"))
	assert.ErrorIs(t, err, contract.ErrConversationConflict)

	first, err := repo.Get(ctx, "t-1")
	require.NoError(t, err)
	second, err := repo.Get(ctx, "t-1")
	require.NoError(t, err)

	first.Append(store.SpeakerUser, "c", time.Now())
	second.Append(store.SpeakerUser, "z", time.Now())
	require.NoError(t, repo.Save(ctx, first))
	assert.ErrorIs(t, repo.Save(ctx, second), contract.ErrConversationConflict)

	got, err := repo.Get(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, got.History, 3)
	assert.Equal(t, "a", got.History[0].Text)
	assert.Equal(t, "c", got.History[2].Text)
}

func TestConversationRepositorySealed(t *testing.T) {
	s, err := sealer.New(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)
	repo := NewConversationRepository(mapper.NewConversationMapper(s), time.Hour)
	ctx := context.Background()

	state := newState("t-9", "me pegan en el recreo")
	require.NoError(t, repo.Save(ctx, state))

	x, found := repo.cache.Get("t-9")
	require.True(t, found)
	assert.NotContains(t, string(x.(entry).payload), "recreo")

	got, err := repo.Get(ctx, "t-9")
	require.NoError(t, err)
	assert.Equal(t, state, got)
}
