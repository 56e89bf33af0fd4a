package bootstrap

import (
	"context"
	"fmt"
	"log"

	"safebot-be/internal/config"
	"safebot-be/internal/controller"
	"safebot-be/internal/mapper"
	"safebot-be/internal/pkg/logger"
	"safebot-be/internal/repository/contract"
	"safebot-be/internal/repository/implementation"
	"safebot-be/internal/repository/memory"
	"safebot-be/internal/repository/redisstore"
	"safebot-be/internal/repository/unitofwork"
	"safebot-be/internal/service"
	"safebot-be/pkg/embedding"
	"safebot-be/pkg/embedding/jina"
	"safebot-be/pkg/llm"
	"safebot-be/pkg/llm/factory"
	pktNats "safebot-be/pkg/nats"
	"safebot-be/pkg/rag/classifier"
	"safebot-be/pkg/rag/executor"
	"safebot-be/pkg/rag/query"
	"safebot-be/pkg/rag/response"
	"safebot-be/pkg/rag/retriever"
	"safebot-be/pkg/rag/session"
	"safebot-be/pkg/retry"
	"safebot-be/pkg/sealer"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	Logger         logger.ILogger
	PipelineLogger logger.ILogger

	ChatController controller.IChatController

	// Background Services (Exposed for main.go to run)
	IngestionService service.IIngestionService
	Retriever        *retriever.Retriever

	closers []func()
}

// Close releases broker and cache connections.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// NewContainer wires the service. db may be nil when neither the knowledge
// index nor the conversation store uses postgres.
func NewContainer(ctx context.Context, db *gorm.DB, cfg *config.Config) (*Container, error) {
	c := &Container{
		Logger:         logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production"),
		PipelineLogger: logger.NewIsolatedLogger(cfg.App.PipelineLogPath),
	}

	// 1. Storage
	convMapper, err := newConversationMapper(cfg)
	if err != nil {
		return nil, err
	}

	conversations, err := c.newConversationRepository(db, cfg, convMapper)
	if err != nil {
		return nil, err
	}

	var (
		knowledge  contract.KnowledgeChunkRepository
		uowFactory unitofwork.RepositoryFactory
	)
	switch cfg.Retrieval.Backend {
	case "pgvector":
		if db == nil {
			return nil, fmt.Errorf("VECTOR_STORE=pgvector requires DB_CONNECTION_STRING")
		}
		knowledge = implementation.NewKnowledgeChunkRepository(db)
		uowFactory = unitofwork.NewRepositoryFactory(db, convMapper)
	case "memory":
		knowledge = memory.NewKnowledgeIndex()
		uowFactory = memory.NewRepositoryFactory(knowledge, conversations)
	default:
		return nil, fmt.Errorf("unsupported VECTOR_STORE: %s", cfg.Retrieval.Backend)
	}

	// 2. Model providers
	policy := retry.Policy{
		MaxAttempts:     cfg.Ai.MaxAttempts,
		CallTimeout:     cfg.Ai.CallTimeout,
		InitialInterval: cfg.Ai.InitialBackoff,
		MaxInterval:     cfg.Ai.MaxBackoff,
	}

	embeddingProvider, err := newEmbeddingProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	embeddingProvider = embedding.WithRetry(embeddingProvider, policy)
	log.Printf("[INFO] Using Embedding Provider: %s", embeddingProvider.Identity())

	llmProvider, err := factory.NewLLMProvider(ctx, factory.Settings{
		Provider: cfg.Ai.LLMProvider,
		Model:    cfg.Ai.LLMModel,
		BaseURL:  llmBaseURL(cfg),
		APIKey:   llmAPIKey(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM provider: %w", err)
	}
	llmProvider = llm.WithRetry(llmProvider, policy)
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// 3. Pipeline
	pl := c.PipelineLogger
	c.Retriever = retriever.NewRetriever(embeddingProvider, knowledge, retriever.Config{
		TopK:        cfg.Retrieval.TopK,
		MaxDistance: cfg.Retrieval.MaxDistance,
	}, pl)

	pipeline := executor.NewPipeline(
		classifier.NewClassifier(llmProvider, pl),
		query.NewSynthesizer(llmProvider, pl),
		c.Retriever,
		response.NewGenerator(llmProvider, response.Config{
			Temperature: cfg.Pipeline.ResponseTemperature,
			MaxRewrites: cfg.Pipeline.MaxRewrites,
		}, pl),
		executor.Config{
			ClassifyTimeout:        cfg.Pipeline.ClassifyTimeout,
			QueryTimeout:           cfg.Pipeline.QueryTimeout,
			RetrieveTimeout:        cfg.Pipeline.RetrieveTimeout,
			RespondTimeout:         cfg.Pipeline.RespondTimeout,
			TopK:                   cfg.Retrieval.TopK,
			SkipRetrievalSmallTalk: cfg.Pipeline.SkipRetrievalSmallTalk,
		},
		pl,
	)

	// 4. Event buses
	var reviewPublisher service.EventPublisher
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v. Review events are only logged", err)
		} else {
			reviewPublisher = natsPub
			c.closers = append(c.closers, natsPub.Close)
		}
	}

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	c.closers = append(c.closers, func() { _ = pubSub.Close() })

	// 5. Services and controllers
	reviewService := service.NewReviewService(reviewPublisher, c.Logger)
	chatService := service.NewChatService(session.NewManager(conversations), pipeline, reviewService, c.Logger)

	c.IngestionService = service.NewIngestionService(
		pubSub,
		pubSub,
		cfg.App.IngestTopic,
		uowFactory,
		embeddingProvider,
		c.Logger,
	)
	c.ChatController = controller.NewChatController(chatService)

	return c, nil
}

func newConversationMapper(cfg *config.Config) (*mapper.ConversationMapper, error) {
	if cfg.Keys.CryptoKey == "" {
		return mapper.NewConversationMapper(nil), nil
	}
	key, err := sealer.ParseKey(cfg.Keys.CryptoKey)
	if err != nil {
		return nil, fmt.Errorf("APP_CRYPTO_KEY: %w", err)
	}
	s, err := sealer.New(key)
	if err != nil {
		return nil, fmt.Errorf("APP_CRYPTO_KEY: %w", err)
	}
	log.Printf("[INFO] Conversation payloads are sealed with %s", sealer.Algorithm)
	return mapper.NewConversationMapper(s), nil
}

func (c *Container) newConversationRepository(db *gorm.DB, cfg *config.Config, m *mapper.ConversationMapper) (contract.ConversationRepository, error) {
	switch cfg.Store.Backend {
	case "memory":
		return memory.NewConversationRepository(m, cfg.Store.TTL), nil
	case "redis":
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb := redis.NewClient(opt)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
		}
		c.closers = append(c.closers, func() { _ = rdb.Close() })
		return redisstore.NewConversationRepository(rdb, m, cfg.Store.TTL), nil
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("CONVERSATION_STORE=postgres requires DB_CONNECTION_STRING")
		}
		return implementation.NewConversationRepository(db, m), nil
	default:
		return nil, fmt.Errorf("unsupported CONVERSATION_STORE: %s", cfg.Store.Backend)
	}
}

func newEmbeddingProvider(ctx context.Context, cfg *config.Config) (embedding.EmbeddingProvider, error) {
	switch cfg.Ai.EmbeddingProvider {
	case "ollama":
		return embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.EmbeddingModel), nil
	case "jina":
		return jina.NewJinaProvider(cfg.Keys.Jina, cfg.Ai.EmbeddingModel), nil
	case "gemini":
		return embedding.NewGeminiProvider(ctx, cfg.Keys.GoogleGemini, cfg.Ai.EmbeddingModel)
	default:
		return nil, fmt.Errorf("unsupported EMBEDDING_PROVIDER: %s", cfg.Ai.EmbeddingProvider)
	}
}

func llmBaseURL(cfg *config.Config) string {
	if cfg.Ai.LLMBaseURL == "" && cfg.Ai.LLMProvider == "ollama" {
		return cfg.Ai.OllamaBaseURL
	}
	return cfg.Ai.LLMBaseURL
}

func llmAPIKey(cfg *config.Config) string {
	switch cfg.Ai.LLMProvider {
	case "openai":
		return cfg.Keys.OpenAI
	case "huggingface":
		return cfg.Keys.HuggingFace
	case "gemini":
		return cfg.Keys.GoogleGemini
	}
	return ""
}

// NeedsDatabase reports whether any configured backend uses postgres.
func NeedsDatabase(cfg *config.Config) bool {
	return cfg.Retrieval.Backend == "pgvector" || cfg.Store.Backend == "postgres"
}
