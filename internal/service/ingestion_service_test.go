package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"safebot-be/internal/dto"
	"safebot-be/internal/mapper"
	"safebot-be/internal/pkg/logger"
	"safebot-be/internal/repository/memory"
	"safebot-be/pkg/embedding/embeddingtest"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ingestFixture struct {
	index    *memory.KnowledgeIndex
	embedder *embeddingtest.KeywordProvider
	pubSub   *gochannel.GoChannel
}

func newIngestFixture(identity string) *ingestFixture {
	return &ingestFixture{
		index:    memory.NewKnowledgeIndex(),
		embedder: embeddingtest.NewKeywordProvider(identity, "patio", "redes"),
		pubSub:   gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{}),
	}
}

func (f *ingestFixture) service() IIngestionService {
	factory := memory.NewRepositoryFactory(f.index, memory.NewConversationRepository(mapper.NewConversationMapper(nil), 0))
	return NewIngestionService(f.pubSub, f.pubSub, "ingest-test", factory, f.embedder, logger.NewNopLogger())
}

func TestIngestChunksPagesAndRecordsIdentity(t *testing.T) {
	f := newIngestFixture("test:v1")
	svc := f.service()

	longPage := strings.Repeat("El profesorado de guardia vigila el patio durante el recreo. ", 40)
	res, err := svc.Ingest(context.Background(), &dto.IngestDocumentMessage{
		SourceId: "protocolo.md",
		Pages:    []string{"Introducción al protocolo.", "   ", longPage},
	})
	require.NoError(t, err)
	assert.Equal(t, "test:v1", res.Identity)
	assert.Greater(t, res.Chunks, 2)

	count, err := f.index.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(res.Chunks), count)

	identities, err := f.index.EmbeddingIdentities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"test:v1"}, identities)
}

func TestIngestReplacesSource(t *testing.T) {
	f := newIngestFixture("test:v1")
	svc := f.service()
	ctx := context.Background()

	_, err := svc.Ingest(ctx, &dto.IngestDocumentMessage{SourceId: "guia.md", Pages: []string{"uno", "dos", "tres"}})
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, &dto.IngestDocumentMessage{SourceId: "guia.md", Pages: []string{"solo una página"}})
	require.NoError(t, err)

	count, err := f.index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestIngestRefusesMixedIdentities(t *testing.T) {
	f := newIngestFixture("test:v1")
	_, err := f.service().Ingest(context.Background(), &dto.IngestDocumentMessage{SourceId: "a.md", Pages: []string{"patio"}})
	require.NoError(t, err)

	other := &ingestFixture{index: f.index, embedder: embeddingtest.NewKeywordProvider("test:v2", "patio"), pubSub: f.pubSub}
	_, err = other.service().Ingest(context.Background(), &dto.IngestDocumentMessage{SourceId: "b.md", Pages: []string{"patio"}})
	assert.ErrorIs(t, err, ErrMixedEmbeddingIdentity)

	require.NoError(t, other.service().Reset(context.Background()))
	_, err = other.service().Ingest(context.Background(), &dto.IngestDocumentMessage{SourceId: "b.md", Pages: []string{"patio"}})
	assert.NoError(t, err)
}

func TestIngestValidatesMessage(t *testing.T) {
	_, err := newIngestFixture("test:v1").service().Ingest(context.Background(), &dto.IngestDocumentMessage{Pages: []string{"x"}})
	assert.Error(t, err)
}

func TestIngestConsumesTopic(t *testing.T) {
	f := newIngestFixture("test:v1")
	svc := f.service()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, svc.Consume(ctx))
	require.NoError(t, svc.Publish(ctx, &dto.IngestDocumentMessage{SourceId: "redes.md", Pages: []string{"ciberacoso en redes"}}))

	assert.Eventually(t, func() bool {
		n, err := f.index.Count(context.Background())
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLoadDocuments(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "guias"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "protocolo.md"), []byte("página uno\fpágina dos"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "guias", "redes.txt"), []byte("redes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logo.png"), []byte{0x89}, 0o644))

	docs, err := LoadDocuments(dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "guias/redes.txt", docs[0].SourceId)
	assert.Equal(t, "protocolo.md", docs[1].SourceId)
	assert.Equal(t, []string{"página uno", "página dos"}, docs[1].Pages)
}
