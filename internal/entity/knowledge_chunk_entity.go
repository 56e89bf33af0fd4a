package entity

import (
	"time"

	"github.com/google/uuid"
)

// KnowledgeChunk is one embedded excerpt of a protocol document.
type KnowledgeChunk struct {
	Id                uuid.UUID
	SourceId          string
	Page              int
	ChunkIndex        int
	Content           string
	EmbeddingValue    []float32
	EmbeddingIdentity string
	CreatedAt         time.Time
	UpdatedAt         *time.Time
}
