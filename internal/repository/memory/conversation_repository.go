package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"safebot-be/internal/mapper"
	"safebot-be/internal/repository/contract"
	"safebot-be/pkg/store"

	"github.com/patrickmn/go-cache"
)

// ConversationRepository keeps encoded payloads in go-cache, so readers never
// share memory with the stored state and sealing works the same as on disk.
type ConversationRepository struct {
	mu     sync.Mutex
	cache  *cache.Cache
	mapper *mapper.ConversationMapper
}

type entry struct {
	payload       []byte
	historyLength int
}

// NewConversationRepository keeps threads for ttl; ttl <= 0 keeps them until deleted.
func NewConversationRepository(m *mapper.ConversationMapper, ttl time.Duration) *ConversationRepository {
	expiration := cache.NoExpiration
	cleanup := time.Duration(0)
	if ttl > 0 {
		expiration = ttl
		cleanup = 10 * time.Minute
	}
	return &ConversationRepository{
		cache:  cache.New(expiration, cleanup),
		mapper: m,
	}
}

var _ contract.ConversationRepository = &ConversationRepository{}

func (r *ConversationRepository) Get(ctx context.Context, threadId string) (*store.ConversationState, error) {
	x, found := r.cache.Get(threadId)
	if !found {
		return nil, nil
	}
	state, err := r.mapper.Decode(threadId, x.(entry).payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contract.ErrStoreUnavailable, err)
	}
	return state, nil
}

func (r *ConversationRepository) Save(ctx context.Context, state *store.ConversationState) error {
	payload, _, err := r.mapper.Encode(state)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := 0
	if x, found := r.cache.Get(state.ThreadId); found {
		stored = x.(entry).historyLength
	}
	if err := contract.CheckSave(stored, state); err != nil {
		return err
	}
	r.cache.Set(state.ThreadId, entry{payload: payload, historyLength: len(state.History)}, cache.DefaultExpiration)
	state.StoredLength = len(state.History)
	return nil
}

func (r *ConversationRepository) Delete(ctx context.Context, threadId string) error {
	r.cache.Delete(threadId)
	return nil
}
