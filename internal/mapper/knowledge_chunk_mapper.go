package mapper

import (
	"time"

	"safebot-be/internal/entity"
	"safebot-be/internal/model"

	"github.com/pgvector/pgvector-go"
)

type KnowledgeChunkMapper struct{}

func NewKnowledgeChunkMapper() *KnowledgeChunkMapper {
	return &KnowledgeChunkMapper{}
}

func (m *KnowledgeChunkMapper) ToEntity(c *model.KnowledgeChunk) *entity.KnowledgeChunk {
	if c == nil {
		return nil
	}

	var updatedAt *time.Time
	if !c.UpdatedAt.IsZero() {
		t := c.UpdatedAt
		updatedAt = &t
	}

	return &entity.KnowledgeChunk{
		Id:                c.Id,
		SourceId:          c.SourceId,
		Page:              c.Page,
		ChunkIndex:        c.ChunkIndex,
		Content:           c.Content,
		EmbeddingValue:    c.EmbeddingValue.Slice(),
		EmbeddingIdentity: c.EmbeddingIdentity,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         updatedAt,
	}
}

func (m *KnowledgeChunkMapper) ToModel(c *entity.KnowledgeChunk) *model.KnowledgeChunk {
	if c == nil {
		return nil
	}

	var updatedAt time.Time
	if c.UpdatedAt != nil {
		updatedAt = *c.UpdatedAt
	}

	return &model.KnowledgeChunk{
		Id:                c.Id,
		SourceId:          c.SourceId,
		Page:              c.Page,
		ChunkIndex:        c.ChunkIndex,
		Content:           c.Content,
		EmbeddingValue:    pgvector.NewVector(c.EmbeddingValue),
		EmbeddingIdentity: c.EmbeddingIdentity,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         updatedAt,
	}
}

func (m *KnowledgeChunkMapper) ToModels(chunks []*entity.KnowledgeChunk) []*model.KnowledgeChunk {
	models := make([]*model.KnowledgeChunk, len(chunks))
	for i, c := range chunks {
		models[i] = m.ToModel(c)
	}
	return models
}
