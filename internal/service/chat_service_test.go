package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"safebot-be/internal/dto"
	"safebot-be/internal/mapper"
	"safebot-be/internal/pkg/logger"
	"safebot-be/internal/repository/contract"
	"safebot-be/internal/repository/memory"
	"safebot-be/pkg/embedding/embeddingtest"
	"safebot-be/pkg/events"
	"safebot-be/pkg/llm"
	"safebot-be/pkg/llm/llmtest"
	"safebot-be/pkg/rag/classifier"
	"safebot-be/pkg/rag/executor"
	"safebot-be/pkg/rag/query"
	"safebot-be/pkg/rag/response"
	"safebot-be/pkg/rag/retriever"
	"safebot-be/pkg/rag/session"
	"safebot-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const patioProfile = `{"role":"victim","risk":"high","summary":"Le esperan en el patio para pegarle."}`

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

func always(text string) *llmtest.Provider {
	p := llmtest.New()
	p.Respond = func([]llm.Message, llm.Options) (string, error) { return text, nil }
	return p
}

type chatFixture struct {
	classifierLLM *llmtest.Provider
	responderLLM  *llmtest.Provider
	repo          contract.ConversationRepository
	publisher     *recordingPublisher
}

func newChatFixture() *chatFixture {
	return &chatFixture{
		classifierLLM: always(patioProfile),
		responderLLM:  always("Lo del patio suena muy duro. ¿Qué ha pasado hoy en el patio?"),
		repo:          memory.NewConversationRepository(mapper.NewConversationMapper(nil), 0),
		publisher:     &recordingPublisher{},
	}
}

func (f *chatFixture) service() IChatService {
	log := logger.NewNopLogger()
	embedder := embeddingtest.NewKeywordProvider("test:keywords", "patio")
	pipeline := executor.NewPipeline(
		classifier.NewClassifier(f.classifierLLM, log),
		query.NewSynthesizer(always("protocolo agresión patio"), log),
		retriever.NewRetriever(embedder, memory.NewKnowledgeIndex(), retriever.DefaultConfig(), log),
		response.NewGenerator(f.responderLLM, response.DefaultConfig(), log),
		executor.Config{TopK: 3},
		log,
	)
	return NewChatService(session.NewManager(f.repo), pipeline, NewReviewService(f.publisher, log), log)
}

func TestChatPersistsTurnBeforeReturning(t *testing.T) {
	f := newChatFixture()
	svc := f.service()

	res, err := svc.Chat(context.Background(), &dto.ChatRequest{
		Message:  "tres chicos me esperan en el patio para pegarme",
		ThreadId: "thread-a",
	})
	require.NoError(t, err)
	assert.Equal(t, "Lo del patio suena muy duro. ¿Qué ha pasado hoy en el patio?", res.Reply)

	state, err := f.repo.Get(context.Background(), "thread-a")
	require.NoError(t, err)
	require.NotNil(t, state)
	require.Len(t, state.History, 2)
	assert.Equal(t, res.Reply, state.LastResponse)
	assert.Equal(t, store.RoleVictim, state.Profile.Role)
	assert.Equal(t, store.ContextNoRelevant, state.Context.Status)

	_, err = svc.Chat(context.Background(), &dto.ChatRequest{Message: "hoy otra vez en el patio", ThreadId: "thread-a"})
	require.NoError(t, err)
	state, err = f.repo.Get(context.Background(), "thread-a")
	require.NoError(t, err)
	assert.Len(t, state.History, 4)
}

func TestChatSchemaViolationStillPersists(t *testing.T) {
	f := newChatFixture()
	f.classifierLLM = always(`{"role":"victima","risk":"alto","summary":"x"}`)
	svc := f.service()

	res, err := svc.Chat(context.Background(), &dto.ChatRequest{Message: "me pegan en el recreo", ThreadId: "thread-b"})
	require.NoError(t, err)
	assert.Equal(t, response.SafetyReply(), res.Reply)

	state, err := f.repo.Get(context.Background(), "thread-b")
	require.NoError(t, err)
	require.Len(t, state.History, 2)
	assert.Nil(t, state.Profile)
	assert.Equal(t, []string{events.TypeSchemaViolation}, f.publisher.types())
	assert.Empty(t, f.responderLLM.Calls())
}

func TestChatReviewPublishFailureDoesNotFailTurn(t *testing.T) {
	f := newChatFixture()
	f.classifierLLM = always("not json at all")
	f.publisher.err = errors.New("nats: no responders")

	_, err := f.service().Chat(context.Background(), &dto.ChatRequest{Message: "me insultan", ThreadId: "thread-c"})
	assert.NoError(t, err)
	assert.Len(t, f.publisher.types(), 1)
}

type failingRepository struct{}

func (failingRepository) Get(ctx context.Context, threadId string) (*store.ConversationState, error) {
	return nil, fmt.Errorf("%w: connection refused", contract.ErrStoreUnavailable)
}

func (failingRepository) Save(ctx context.Context, state *store.ConversationState) error {
	return contract.ErrStoreUnavailable
}

func (failingRepository) Delete(ctx context.Context, threadId string) error {
	return contract.ErrStoreUnavailable
}

// racingRepository commits a turn from another replica just before the first save.
type racingRepository struct {
	contract.ConversationRepository
	once sync.Once
}

func (r *racingRepository) Save(ctx context.Context, state *store.ConversationState) error {
	r.once.Do(func() {
		now := time.Now()
		other := store.NewConversationState(state.ThreadId, now)
		other.Append(store.SpeakerUser, "me pegan en el patio", now)
		other.Append(store.SpeakerAssistant, "¿Desde cuándo pasa?", now)
		_ = r.ConversationRepository.Save(ctx, other)
	})
	return r.ConversationRepository.Save(ctx, state)
}

func TestChatRerunsTurnAfterLosingSaveRace(t *testing.T) {
	f := newChatFixture()
	f.repo = &racingRepository{ConversationRepository: f.repo}

	res, err := f.service().Chat(context.Background(), &dto.ChatRequest{Message: "hoy otra vez en el patio", ThreadId: "thread-race"})
	require.NoError(t, err)

	state, err := f.repo.Get(context.Background(), "thread-race")
	require.NoError(t, err)
	require.Len(t, state.History, 4)
	assert.Equal(t, "me pegan en el patio", state.History[0].Text)
	assert.Equal(t, "hoy otra vez en el patio", state.History[2].Text)
	assert.Equal(t, res.Reply, state.History[3].Text)
	assert.Len(t, f.classifierLLM.Calls(), 2)
}

func TestChatStoreUnavailable(t *testing.T) {
	f := newChatFixture()
	f.repo = failingRepository{}

	_, err := f.service().Chat(context.Background(), &dto.ChatRequest{Message: "hola", ThreadId: "thread-d"})
	assert.ErrorIs(t, err, contract.ErrStoreUnavailable)
	assert.Empty(t, f.classifierLLM.Calls())
}

func TestChatSerializesTurnsPerThread(t *testing.T) {
	f := newChatFixture()
	svc := f.service()

	const turns = 10
	var wg sync.WaitGroup
	errs := make(chan error, turns)
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, err := svc.Chat(ctx, &dto.ChatRequest{
				Message:  fmt.Sprintf("mensaje %d sobre el patio", i),
				ThreadId: "thread-shared",
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	state, err := f.repo.Get(context.Background(), "thread-shared")
	require.NoError(t, err)
	require.Len(t, state.History, 2*turns)
	for i, turn := range state.History {
		want := store.SpeakerUser
		if i%2 == 1 {
			want = store.SpeakerAssistant
		}
		assert.Equal(t, want, turn.Speaker, "turn %d", i)
	}
}
