package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"safebot-be/internal/dto"
	"safebot-be/internal/entity"
	"safebot-be/internal/pkg/logger"
	"safebot-be/internal/pkg/serverutils"
	"safebot-be/internal/repository/unitofwork"
	"safebot-be/pkg/embedding"
	"safebot-be/pkg/utils"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

const (
	ChunkSize    = 1000
	ChunkOverlap = 200

	// pageSeparator splits a plain-text export into pages.
	pageSeparator = "\f"
)

// ErrMixedEmbeddingIdentity means the index already holds vectors from another
// embedding provider; it has to be reset before loading with this one.
var ErrMixedEmbeddingIdentity = errors.New("knowledge index holds vectors from another embedding identity")

type IIngestionService interface {
	Ingest(ctx context.Context, doc *dto.IngestDocumentMessage) (*dto.IngestResult, error)
	Reset(ctx context.Context) error
	Publish(ctx context.Context, doc *dto.IngestDocumentMessage) error
	Consume(ctx context.Context) error
}

type ingestionService struct {
	publisher         message.Publisher
	subscriber        message.Subscriber
	topicName         string
	uowFactory        unitofwork.RepositoryFactory
	embeddingProvider embedding.EmbeddingProvider
	logger            logger.ILogger
}

func NewIngestionService(
	publisher message.Publisher,
	subscriber message.Subscriber,
	topicName string,
	uowFactory unitofwork.RepositoryFactory,
	embeddingProvider embedding.EmbeddingProvider,
	logger logger.ILogger,
) IIngestionService {
	return &ingestionService{
		publisher:         publisher,
		subscriber:        subscriber,
		topicName:         topicName,
		uowFactory:        uowFactory,
		embeddingProvider: embeddingProvider,
		logger:            logger,
	}
}

// Ingest replaces every chunk of doc.SourceId with freshly embedded chunks.
func (s *ingestionService) Ingest(ctx context.Context, doc *dto.IngestDocumentMessage) (*dto.IngestResult, error) {
	if err := serverutils.ValidateRequest(doc); err != nil {
		return nil, err
	}

	identity := s.embeddingProvider.Identity()
	uow := s.uowFactory.NewUnitOfWork(ctx)

	identities, err := uow.KnowledgeChunkRepository().EmbeddingIdentities(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding identities: %w", err)
	}
	for _, existing := range identities {
		if existing != identity {
			return nil, fmt.Errorf("%w: index has %q, provider is %q", ErrMixedEmbeddingIdentity, existing, identity)
		}
	}

	now := time.Now()
	var chunks []*entity.KnowledgeChunk
	for pageIdx, page := range doc.Pages {
		if strings.TrimSpace(page) == "" {
			continue
		}
		for _, text := range utils.SplitText(page, ChunkSize, ChunkOverlap) {
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			res, err := s.embeddingProvider.Generate(ctx, text, embedding.TaskRetrievalDocument)
			if err != nil {
				return nil, fmt.Errorf("failed to embed chunk %d of %s: %w", len(chunks), doc.SourceId, err)
			}
			chunks = append(chunks, &entity.KnowledgeChunk{
				Id:                uuid.New(),
				SourceId:          doc.SourceId,
				Page:              pageIdx + 1,
				ChunkIndex:        len(chunks),
				Content:           text,
				EmbeddingValue:    res.Embedding.Values,
				EmbeddingIdentity: identity,
				CreatedAt:         now,
			})
		}
	}

	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.KnowledgeChunkRepository().ReplaceSource(ctx, doc.SourceId, chunks); err != nil {
		return nil, fmt.Errorf("failed to replace chunks of %s: %w", doc.SourceId, err)
	}
	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Ingestion", "Source ingested", map[string]interface{}{
		"source_id": doc.SourceId,
		"pages":     len(doc.Pages),
		"chunks":    len(chunks),
		"identity":  identity,
	})
	return &dto.IngestResult{SourceId: doc.SourceId, Chunks: len(chunks), Identity: identity}, nil
}

func (s *ingestionService) Reset(ctx context.Context) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.KnowledgeChunkRepository().DeleteAll(ctx); err != nil {
		return fmt.Errorf("failed to reset knowledge index: %w", err)
	}
	s.logger.Warn("Ingestion", "Knowledge index reset", nil)
	return nil
}

func (s *ingestionService) Publish(ctx context.Context, doc *dto.IngestDocumentMessage) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	return s.publisher.Publish(s.topicName, msg)
}

// Consume starts a goroutine that ingests documents from the topic until ctx ends.
func (s *ingestionService) Consume(ctx context.Context) error {
	messages, err := s.subscriber.Subscribe(ctx, s.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			s.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (s *ingestionService) processMessage(ctx context.Context, msg *message.Message) {
	var doc dto.IngestDocumentMessage
	if err := json.Unmarshal(msg.Payload, &doc); err != nil {
		s.logger.Error("Ingestion", "Failed to unmarshal message", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		msg.Ack() // a malformed payload will never succeed
		return
	}

	if _, err := s.Ingest(ctx, &doc); err != nil {
		s.logger.Error("Ingestion", "Failed to ingest source", map[string]interface{}{
			"message_id": msg.UUID,
			"source_id":  doc.SourceId,
			"error":      err.Error(),
		})
		if errors.Is(err, ErrMixedEmbeddingIdentity) {
			msg.Ack()
			return
		}
		msg.Nack()
		return
	}
	msg.Ack()
}

// LoadDocuments reads every .md and .txt file under dir as one source. Form
// feeds in a file separate its pages.
func LoadDocuments(dir string) ([]*dto.IngestDocumentMessage, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".md", ".txt":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	docs := make([]*dto.IngestDocumentMessage, 0, len(paths))
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		docs = append(docs, &dto.IngestDocumentMessage{
			SourceId: filepath.ToSlash(rel),
			Pages:    strings.Split(string(raw), pageSeparator),
		})
	}
	return docs, nil
}
