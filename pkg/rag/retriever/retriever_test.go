package retriever

import (
	"context"
	"errors"
	"testing"

	"safebot-be/internal/entity"
	"safebot-be/internal/pkg/logger"
	"safebot-be/internal/repository/contract"
	"safebot-be/internal/repository/memory"
	"safebot-be/pkg/embedding"
	"safebot-be/pkg/embedding/embeddingtest"
	"safebot-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var vocabulary = []string{"patio", "agresión", "ciberacoso", "redes", "insulto"}

type seedChunk struct {
	source string
	page   int
	text   string
}

func seed(t *testing.T, idx *memory.KnowledgeIndex, p embedding.EmbeddingProvider, chunks ...seedChunk) {
	t.Helper()
	bySource := map[string][]*entity.KnowledgeChunk{}
	for i, c := range chunks {
		res, err := p.Generate(context.Background(), c.text, embedding.TaskRetrievalDocument)
		require.NoError(t, err)
		bySource[c.source] = append(bySource[c.source], &entity.KnowledgeChunk{
			SourceId:          c.source,
			Page:              c.page,
			ChunkIndex:        i,
			Content:           c.text,
			EmbeddingValue:    res.Embedding.Values,
			EmbeddingIdentity: p.Identity(),
		})
	}
	for source, cs := range bySource {
		require.NoError(t, idx.ReplaceSource(context.Background(), source, cs))
	}
}

func protocolChunks() []seedChunk {
	return []seedChunk{
		{"protocolo_convivencia.md", 4, "Ante una agresión en el patio el profesorado de guardia interviene y separa a las partes."},
		{"protocolo_convivencia.md", 5, "La agresión física en el patio se comunica a jefatura de estudios el mismo día."},
		{"guia_ciberacoso.md", 2, "El ciberacoso en redes sociales se documenta guardando capturas."},
	}
}

func TestRetrievePatioScenario(t *testing.T) {
	p := embeddingtest.NewKeywordProvider("test:keywords", vocabulary...)
	idx := memory.NewKnowledgeIndex()
	seed(t, idx, p, protocolChunks()...)
	r := NewRetriever(p, idx, DefaultConfig(), logger.NewNopLogger())

	first, err := r.Retrieve(context.Background(), "protocolo de actuación ante agresión física en el patio", 3)
	require.NoError(t, err)
	require.Equal(t, store.ContextPassages, first.Status)
	require.NoError(t, first.Validate())
	assert.LessOrEqual(t, len(first.Passages), 3)
	assert.Contains(t, first.Passages[0].Text, "patio")
	assert.Equal(t, "protocolo_convivencia.md", first.Passages[0].SourceId)
	assert.NotZero(t, first.Passages[0].Page)

	for i := 1; i < len(first.Passages); i++ {
		assert.LessOrEqual(t, first.Passages[i-1].Distance, first.Passages[i].Distance)
	}

	for i := 0; i < 3; i++ {
		again, err := r.Retrieve(context.Background(), "protocolo de actuación ante agresión física en el patio", 3)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRetrieveRespectsK(t *testing.T) {
	p := embeddingtest.NewKeywordProvider("test:keywords", vocabulary...)
	idx := memory.NewKnowledgeIndex()
	seed(t, idx, p, protocolChunks()...)
	r := NewRetriever(p, idx, Config{TopK: 3, MaxDistance: 0}, logger.NewNopLogger())

	got, err := r.Retrieve(context.Background(), "agresión patio", 1)
	require.NoError(t, err)
	require.Equal(t, store.ContextPassages, got.Status)
	assert.Len(t, got.Passages, 1)

	all, err := r.Retrieve(context.Background(), "agresión patio", 0)
	require.NoError(t, err)
	assert.Len(t, all.Passages, 3)
}

func TestRetrieveNoRelevant(t *testing.T) {
	p := embeddingtest.NewKeywordProvider("test:keywords", vocabulary...)

	t.Run("empty index", func(t *testing.T) {
		r := NewRetriever(p, memory.NewKnowledgeIndex(), DefaultConfig(), logger.NewNopLogger())
		got, err := r.Retrieve(context.Background(), "agresión patio", 3)
		require.NoError(t, err)
		assert.Equal(t, store.NoRelevantContext(), got)
	})

	t.Run("everything beyond threshold", func(t *testing.T) {
		idx := memory.NewKnowledgeIndex()
		seed(t, idx, p, seedChunk{"guia_ciberacoso.md", 2, "ciberacoso en redes"})
		r := NewRetriever(p, idx, Config{TopK: 3, MaxDistance: 0.5}, logger.NewNopLogger())
		got, err := r.Retrieve(context.Background(), "agresión en el patio", 3)
		require.NoError(t, err)
		assert.Equal(t, store.NoRelevantContext(), got)
	})

	t.Run("blank query", func(t *testing.T) {
		r := NewRetriever(p, memory.NewKnowledgeIndex(), DefaultConfig(), logger.NewNopLogger())
		got, err := r.Retrieve(context.Background(), "  ", 3)
		require.NoError(t, err)
		assert.Equal(t, store.NoRelevantContext(), got)
	})
}

type failingIndex struct {
	*memory.KnowledgeIndex
}

func (f failingIndex) SearchNearest(ctx context.Context, vector []float32, limit int, identity string) ([]*contract.ScoredKnowledgeChunk, error) {
	return nil, errors.New("connection reset")
}

func TestRetrieveUnavailable(t *testing.T) {
	t.Run("embedding provider down", func(t *testing.T) {
		p := embeddingtest.NewKeywordProvider("test:keywords", vocabulary...)
		idx := memory.NewKnowledgeIndex()
		seed(t, idx, p, protocolChunks()...)
		p.SetFail(true)
		r := NewRetriever(p, idx, DefaultConfig(), logger.NewNopLogger())
		got, err := r.Retrieve(context.Background(), "agresión patio", 3)
		assert.Error(t, err)
		assert.Equal(t, store.UnavailableContext(), got)
	})

	t.Run("index error", func(t *testing.T) {
		p := embeddingtest.NewKeywordProvider("test:keywords", vocabulary...)
		r := NewRetriever(p, failingIndex{memory.NewKnowledgeIndex()}, DefaultConfig(), logger.NewNopLogger())
		got, err := r.Retrieve(context.Background(), "agresión patio", 3)
		assert.ErrorContains(t, err, "connection reset")
		assert.Equal(t, store.UnavailableContext(), got)
	})

	t.Run("identity mismatch", func(t *testing.T) {
		indexed := embeddingtest.NewKeywordProvider("ollama:nomic-embed-text", vocabulary...)
		idx := memory.NewKnowledgeIndex()
		seed(t, idx, indexed, protocolChunks()...)

		query := embeddingtest.NewKeywordProvider("gemini:text-embedding-004", vocabulary...)
		r := NewRetriever(query, idx, DefaultConfig(), logger.NewNopLogger())

		assert.ErrorIs(t, r.VerifyIdentity(context.Background()), ErrEmbeddingMismatch)
		got, err := r.Retrieve(context.Background(), "agresión patio", 3)
		assert.ErrorIs(t, err, ErrEmbeddingMismatch)
		assert.Equal(t, store.UnavailableContext(), got)
		assert.Zero(t, query.Calls())
	})
}

func TestVerifyIdentityMatches(t *testing.T) {
	p := embeddingtest.NewKeywordProvider("test:keywords", vocabulary...)
	idx := memory.NewKnowledgeIndex()
	r := NewRetriever(p, idx, DefaultConfig(), logger.NewNopLogger())
	assert.NoError(t, r.VerifyIdentity(context.Background()))

	seed(t, idx, p, protocolChunks()...)
	assert.NoError(t, r.VerifyIdentity(context.Background()))
}
