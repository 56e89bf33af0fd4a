package implementation

import (
	"context"
	"errors"
	"fmt"

	"safebot-be/internal/mapper"
	"safebot-be/internal/model"
	"safebot-be/internal/repository/contract"
	"safebot-be/internal/repository/specification"
	"safebot-be/pkg/store"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ConversationRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ConversationMapper
}

func NewConversationRepository(db *gorm.DB, m *mapper.ConversationMapper) contract.ConversationRepository {
	return &ConversationRepositoryImpl{
		db:     db,
		mapper: m,
	}
}

func (r *ConversationRepositoryImpl) Get(ctx context.Context, threadId string) (*store.ConversationState, error) {
	var m model.Conversation
	query := specification.Apply(r.db.WithContext(ctx), specification.ByThreadID{ThreadID: threadId})
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", contract.ErrStoreUnavailable, err)
	}

	state, err := r.mapper.ToState(&m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contract.ErrStoreUnavailable, err)
	}
	return state, nil
}

// Save locks the stored row and writes the payload only if the row still
// holds the history length the state was read with. A thread read as new is
// inserted without overwriting a row another writer created meanwhile.
func (r *ConversationRepositoryImpl) Save(ctx context.Context, state *store.ConversationState) error {
	record, err := r.mapper.ToModel(state)
	if err != nil {
		return err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stored []int
		if err := specification.Apply(tx.Model(&model.Conversation{}),
			specification.ByThreadID{ThreadID: state.ThreadId},
			specification.ForUpdate{},
		).Pluck("history_length", &stored).Error; err != nil {
			return err
		}

		if len(stored) == 0 {
			if err := contract.CheckSave(0, state); err != nil {
				return err
			}
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "thread_id"}},
				DoNothing: true,
			}).Create(record)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return contract.ErrConversationConflict
			}
			return nil
		}

		if err := contract.CheckSave(stored[0], state); err != nil {
			return err
		}
		return specification.Apply(tx.Model(&model.Conversation{}),
			specification.ByThreadID{ThreadID: state.ThreadId},
		).Updates(map[string]interface{}{
			"payload":        record.Payload,
			"sealed":         record.Sealed,
			"history_length": record.HistoryLength,
			"updated_at":     record.UpdatedAt,
		}).Error
	})
	if err == nil {
		state.StoredLength = len(state.History)
		return nil
	}
	if errors.Is(err, contract.ErrHistoryRegression) {
		return err
	}
	return fmt.Errorf("%w: %v", contract.ErrStoreUnavailable, err)
}

func (r *ConversationRepositoryImpl) Delete(ctx context.Context, threadId string) error {
	err := specification.Apply(r.db.WithContext(ctx), specification.ByThreadID{ThreadID: threadId}).
		Delete(&model.Conversation{}).Error
	if err != nil {
		return fmt.Errorf("%w: %v", contract.ErrStoreUnavailable, err)
	}
	return nil
}
