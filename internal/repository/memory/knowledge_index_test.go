package memory

import (
	"context"
	"testing"

	"safebot-be/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunk(source string, page, index int, identity string, vec ...float32) *entity.KnowledgeChunk {
	return &entity.KnowledgeChunk{
		SourceId:          source,
		Page:              page,
		ChunkIndex:        index,
		Content:           source,
		EmbeddingValue:    vec,
		EmbeddingIdentity: identity,
	}
}

func TestKnowledgeIndexOrdersByDistanceThenProvenance(t *testing.T) {
	idx := NewKnowledgeIndex()
	ctx := context.Background()

	require.NoError(t, idx.ReplaceSource(ctx, "b.md", []*entity.KnowledgeChunk{
		chunk("b.md", 1, 0, "test:v1", 1, 0),
		chunk("b.md", 2, 0, "test:v1", 0, 1),
	}))
	require.NoError(t, idx.ReplaceSource(ctx, "a.md", []*entity.KnowledgeChunk{
		chunk("a.md", 3, 1, "test:v1", 1, 0),
		chunk("a.md", 3, 0, "test:v1", 1, 0),
	}))

	for i := 0; i < 3; i++ {
		got, err := idx.SearchNearest(ctx, []float32{1, 0}, 3, "test:v1")
		require.NoError(t, err)
		require.Len(t, got, 3)

		assert.Equal(t, "a.md", got[0].Chunk.SourceId)
		assert.Equal(t, 0, got[0].Chunk.ChunkIndex)
		assert.Equal(t, "a.md", got[1].Chunk.SourceId)
		assert.Equal(t, 1, got[1].Chunk.ChunkIndex)
		assert.Equal(t, "b.md", got[2].Chunk.SourceId)
		assert.InDelta(t, 0.0, got[0].Distance, 1e-9)
	}
}

func TestKnowledgeIndexSeparatesIdentities(t *testing.T) {
	idx := NewKnowledgeIndex()
	ctx := context.Background()
	require.NoError(t, idx.ReplaceSource(ctx, "a.md", []*entity.KnowledgeChunk{chunk("a.md", 1, 0, "ollama:x", 1, 0, 0)}))
	require.NoError(t, idx.ReplaceSource(ctx, "b.md", []*entity.KnowledgeChunk{chunk("b.md", 1, 0, "jina:y", 1, 0)}))

	got, err := idx.SearchNearest(ctx, []float32{1, 0}, 3, "jina:y")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b.md", got[0].Chunk.SourceId)

	ids, err := idx.EmbeddingIdentities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"jina:y", "ollama:x"}, ids)

	_, err = idx.SearchNearest(ctx, []float32{1, 0}, 3, "ollama:x")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestKnowledgeIndexReplaceSource(t *testing.T) {
	idx := NewKnowledgeIndex()
	ctx := context.Background()

	require.NoError(t, idx.ReplaceSource(ctx, "a.md", []*entity.KnowledgeChunk{
		chunk("a.md", 1, 0, "t", 1),
		chunk("a.md", 1, 1, "t", 1),
	}))
	require.NoError(t, idx.ReplaceSource(ctx, "b.md", []*entity.KnowledgeChunk{chunk("b.md", 1, 0, "t", 1)}))
	require.NoError(t, idx.ReplaceSource(ctx, "a.md", []*entity.KnowledgeChunk{chunk("a.md", 2, 0, "t", 1)}))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, idx.DeleteAll(ctx))
	n, err = idx.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
