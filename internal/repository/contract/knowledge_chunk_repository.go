package contract

import (
	"context"

	"safebot-be/internal/entity"
)

// ScoredKnowledgeChunk pairs a chunk with its cosine distance to the query.
type ScoredKnowledgeChunk struct {
	Chunk    *entity.KnowledgeChunk
	Distance float64 // 0 = identical direction, 2 = opposite
}

type KnowledgeChunkRepository interface {
	// SearchNearest returns up to limit chunks recorded under identity,
	// closest first.
	SearchNearest(ctx context.Context, vector []float32, limit int, identity string) ([]*ScoredKnowledgeChunk, error)
	// ReplaceSource deletes every chunk of sourceId and inserts chunks in its place.
	ReplaceSource(ctx context.Context, sourceId string, chunks []*entity.KnowledgeChunk) error
	DeleteAll(ctx context.Context) error
	// EmbeddingIdentities lists the distinct identities chunks were embedded with.
	EmbeddingIdentities(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int64, error)
}
