package session

import (
	"context"
	"sync"
	"time"

	"safebot-be/internal/repository/contract"
	"safebot-be/pkg/store"
)

// Manager serializes turns per thread and mediates access to the conversation store.
type Manager struct {
	repo contract.ConversationRepository
	now  func() time.Time

	mu    sync.Mutex
	locks map[string]*threadLock
}

// threadLock is a one-slot semaphore so waiting can be cancelled.
type threadLock struct {
	sem  chan struct{}
	refs int
}

func NewManager(repo contract.ConversationRepository) *Manager {
	return &Manager{
		repo:  repo,
		now:   time.Now,
		locks: make(map[string]*threadLock),
	}
}

// Lock blocks until the caller owns threadId or ctx ends. The returned func
// releases it. Locks are reference counted and dropped once no turn holds or
// waits on them.
func (m *Manager) Lock(ctx context.Context, threadId string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[threadId]
	if !ok {
		l = &threadLock{sem: make(chan struct{}, 1)}
		m.locks[threadId] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.sem
				m.unref(threadId, l)
			})
		}, nil
	case <-ctx.Done():
		m.unref(threadId, l)
		return nil, ctx.Err()
	}
}

func (m *Manager) unref(threadId string, l *threadLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, threadId)
	}
}

// LoadOrCreate returns a working copy of the stored state, or a fresh state
// for an unseen thread.
func (m *Manager) LoadOrCreate(ctx context.Context, threadId string) (*store.ConversationState, error) {
	state, err := m.repo.Get(ctx, threadId)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return store.NewConversationState(threadId, m.now()), nil
	}
	return state, nil
}

// Save stamps UpdatedAt and persists the state.
func (m *Manager) Save(ctx context.Context, state *store.ConversationState) error {
	state.UpdatedAt = m.now()
	return m.repo.Save(ctx, state)
}

// Now is the clock used for turn timestamps.
func (m *Manager) Now() time.Time {
	return m.now()
}

func (m *Manager) activeLocks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
