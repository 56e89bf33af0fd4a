package contract

import (
	"context"
	"errors"
	"fmt"

	"safebot-be/pkg/store"
)

var (
	// ErrStoreUnavailable wraps any backend failure; callers turn it into a 500.
	ErrStoreUnavailable = errors.New("conversation store unavailable")
	// ErrHistoryRegression is returned when a save would shorten the stored history.
	ErrHistoryRegression = errors.New("conversation history cannot shrink")
	// ErrConversationConflict is returned when another writer saved the thread
	// after it was read. It also matches ErrHistoryRegression.
	ErrConversationConflict = fmt.Errorf("conversation changed since it was read: %w", ErrHistoryRegression)
)

// CheckSave decides whether state may replace a stored copy holding stored
// turns. An absent thread holds 0.
func CheckSave(stored int, state *store.ConversationState) error {
	if stored > len(state.History) {
		return ErrHistoryRegression
	}
	if stored != state.StoredLength {
		return ErrConversationConflict
	}
	return nil
}

type ConversationRepository interface {
	// Get returns nil, nil for an unknown thread.
	Get(ctx context.Context, threadId string) (*store.ConversationState, error)
	// Save is a compare-and-set on state.StoredLength. On success StoredLength
	// becomes the saved history length.
	Save(ctx context.Context, state *store.ConversationState) error
	Delete(ctx context.Context, threadId string) error
}
