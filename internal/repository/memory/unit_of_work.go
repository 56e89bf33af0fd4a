package memory

import (
	"context"

	"safebot-be/internal/repository/contract"
	"safebot-be/internal/repository/unitofwork"
)

// RepositoryFactory hands out units of work over shared in-memory repositories.
// Begin, Commit and Rollback are no-ops: writes apply immediately.
type RepositoryFactory struct {
	knowledge     contract.KnowledgeChunkRepository
	conversations contract.ConversationRepository
}

func NewRepositoryFactory(knowledge contract.KnowledgeChunkRepository, conversations contract.ConversationRepository) *RepositoryFactory {
	return &RepositoryFactory{knowledge: knowledge, conversations: conversations}
}

var _ unitofwork.RepositoryFactory = &RepositoryFactory{}

func (f *RepositoryFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &unitOfWork{factory: f}
}

type unitOfWork struct {
	factory *RepositoryFactory
}

func (u *unitOfWork) Begin(ctx context.Context) error { return nil }
func (u *unitOfWork) Commit() error                   { return nil }
func (u *unitOfWork) Rollback() error                 { return nil }

func (u *unitOfWork) KnowledgeChunkRepository() contract.KnowledgeChunkRepository {
	return u.factory.knowledge
}

func (u *unitOfWork) ConversationRepository() contract.ConversationRepository {
	return u.factory.conversations
}
