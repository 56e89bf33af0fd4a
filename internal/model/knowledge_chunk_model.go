package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

type KnowledgeChunk struct {
	Id                uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SourceId          string          `gorm:"type:text;not null;index:idx_knowledge_source_page,priority:1"`
	Page              int             `gorm:"not null;default:0;index:idx_knowledge_source_page,priority:2"`
	ChunkIndex        int             `gorm:"not null;default:0"`
	Content           string          `gorm:"type:text;not null"`
	EmbeddingValue    pgvector.Vector `gorm:"type:vector"`
	EmbeddingIdentity string          `gorm:"type:text;not null;index"`
	CreatedAt         time.Time       `gorm:"autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime"`
}

func (KnowledgeChunk) TableName() string {
	return "knowledge_chunks"
}
