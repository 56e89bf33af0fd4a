package unitofwork

import (
	"context"

	"safebot-be/internal/mapper"

	"gorm.io/gorm"
)

type RepositoryFactoryImpl struct {
	db                 *gorm.DB
	conversationMapper *mapper.ConversationMapper
}

func NewRepositoryFactory(db *gorm.DB, conversationMapper *mapper.ConversationMapper) RepositoryFactory {
	return &RepositoryFactoryImpl{
		db:                 db,
		conversationMapper: conversationMapper,
	}
}

// NewUnitOfWork is cheap; the transaction only starts on Begin.
func (f *RepositoryFactoryImpl) NewUnitOfWork(ctx context.Context) UnitOfWork {
	return NewUnitOfWork(f.db, f.conversationMapper)
}
