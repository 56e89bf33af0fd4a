package unitofwork

import (
	"context"

	"safebot-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	KnowledgeChunkRepository() contract.KnowledgeChunkRepository
	ConversationRepository() contract.ConversationRepository
}
