package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"safebot-be/internal/mapper"
	"safebot-be/internal/repository/contract"
	"safebot-be/pkg/store"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "safebot:conversation:"

// saveScript writes the payload only when the stored history length still
// equals the one the caller read (ARGV[4]). Returns 0 when the write would
// shrink the history and -1 when another writer got there first.
var saveScript = redis.NewScript(`
local current = tonumber(redis.call('HGET', KEYS[1], 'history_length') or '0')
if current > tonumber(ARGV[2]) then
	return 0
end
if current ~= tonumber(ARGV[4]) then
	return -1
end
redis.call('HSET', KEYS[1], 'payload', ARGV[1], 'history_length', ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

// ConversationRepository stores each thread as a hash {payload, history_length}.
type ConversationRepository struct {
	rdb    redis.UniversalClient
	mapper *mapper.ConversationMapper
	ttl    time.Duration
}

func NewConversationRepository(rdb redis.UniversalClient, m *mapper.ConversationMapper, ttl time.Duration) *ConversationRepository {
	return &ConversationRepository{rdb: rdb, mapper: m, ttl: ttl}
}

var _ contract.ConversationRepository = &ConversationRepository{}

func key(threadId string) string {
	return keyPrefix + threadId
}

func (r *ConversationRepository) Get(ctx context.Context, threadId string) (*store.ConversationState, error) {
	payload, err := r.rdb.HGet(ctx, key(threadId), "payload").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contract.ErrStoreUnavailable, err)
	}

	state, err := r.mapper.Decode(threadId, payload)
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

	written, err := saveScript.Run(ctx, r.rdb,
		[]string{key(state.ThreadId)},
		payload, len(state.History), r.ttl.Milliseconds(), state.StoredLength,
	).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", contract.ErrStoreUnavailable, err)
	}
	switch written {
	case 0:
		return contract.ErrHistoryRegression
	case -1:
		return contract.ErrConversationConflict
	}
	state.StoredLength = len(state.History)
	return nil
}

func (r *ConversationRepository) Delete(ctx context.Context, threadId string) error {
	if err := r.rdb.Del(ctx, key(threadId)).Err(); err != nil {
		return fmt.Errorf("%w: %v", contract.ErrStoreUnavailable, err)
	}
	return nil
}
