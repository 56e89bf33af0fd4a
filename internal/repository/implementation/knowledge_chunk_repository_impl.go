package implementation

import (
	"context"

	"safebot-be/internal/entity"
	"safebot-be/internal/mapper"
	"safebot-be/internal/model"
	"safebot-be/internal/repository/contract"
	"safebot-be/internal/repository/specification"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

const insertBatchSize = 100

type KnowledgeChunkRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.KnowledgeChunkMapper
}

func NewKnowledgeChunkRepository(db *gorm.DB) contract.KnowledgeChunkRepository {
	return &KnowledgeChunkRepositoryImpl{
		db:     db,
		mapper: mapper.NewKnowledgeChunkMapper(),
	}
}

// SearchNearest orders by pgvector cosine distance (embedding_value <=> query),
// then by source, page and chunk so equal distances come back in a fixed order.
func (r *KnowledgeChunkRepositoryImpl) SearchNearest(ctx context.Context, vector []float32, limit int, identity string) ([]*contract.ScoredKnowledgeChunk, error) {
	if limit <= 0 {
		limit = 3
	}

	type result struct {
		model.KnowledgeChunk
		Distance float64
	}
	var results []result

	queryVector := pgvector.NewVector(vector)

	query := r.db.WithContext(ctx).
		Table("knowledge_chunks").
		Select("knowledge_chunks.*, embedding_value <=> ? AS distance", queryVector)
	err := specification.Apply(query, specification.ByEmbeddingIdentity{Identity: identity}).
		Order("distance ASC").
		Order("source_id ASC").
		Order("page ASC").
		Order("chunk_index ASC").
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	scored := make([]*contract.ScoredKnowledgeChunk, len(results))
	for i := range results {
		scored[i] = &contract.ScoredKnowledgeChunk{
			Chunk:    r.mapper.ToEntity(&results[i].KnowledgeChunk),
			Distance: results[i].Distance,
		}
	}
	return scored, nil
}

func (r *KnowledgeChunkRepositoryImpl) ReplaceSource(ctx context.Context, sourceId string, chunks []*entity.KnowledgeChunk) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := specification.Apply(tx, specification.BySourceID{SourceID: sourceId}).
			Delete(&model.KnowledgeChunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}

		models := r.mapper.ToModels(chunks)
		if err := tx.CreateInBatches(models, insertBatchSize).Error; err != nil {
			return err
		}
		for i, m := range models {
			*chunks[i] = *r.mapper.ToEntity(m)
		}
		return nil
	})
}

func (r *KnowledgeChunkRepositoryImpl) DeleteAll(ctx context.Context) error {
	return r.db.WithContext(ctx).Where("1 = 1").Delete(&model.KnowledgeChunk{}).Error
}

func (r *KnowledgeChunkRepositoryImpl) EmbeddingIdentities(ctx context.Context) ([]string, error) {
	var identities []string
	err := r.db.WithContext(ctx).
		Model(&model.KnowledgeChunk{}).
		Distinct("embedding_identity").
		Order("embedding_identity ASC").
		Pluck("embedding_identity", &identities).Error
	return identities, err
}

func (r *KnowledgeChunkRepositoryImpl) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.KnowledgeChunk{}).Count(&count).Error
	return count, err
}
