package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const Version = "Versión 1.0.0"

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Keys      APIKeys
	Ai        AIConfig
	Retrieval RetrievalConfig
	Pipeline  PipelineConfig
	Store     StoreConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	PipelineLogPath    string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	IngestTopic        string
	KnowledgeSeedDir   string
}

type DatabaseConfig struct {
	Connection string
}

type APIKeys struct {
	GoogleGemini string
	Jina         string
	OpenAI       string
	HuggingFace  string
	CryptoKey    string // hex or raw 32 bytes, seals persisted conversations
}

type AIConfig struct {
	EmbeddingProvider string // "ollama", "gemini" or "jina"
	EmbeddingModel    string
	OllamaBaseURL     string
	LLMProvider       string // "ollama", "openai", "huggingface" or "gemini"
	LLMModel          string
	LLMBaseURL        string
	CallTimeout       time.Duration
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
}

type RetrievalConfig struct {
	Backend     string  // "pgvector" or "memory"
	TopK        int
	MaxDistance float64 // cosine distance cutoff, <= 0 disables filtering
}

type PipelineConfig struct {
	ClassifyTimeout        time.Duration
	QueryTimeout           time.Duration
	RetrieveTimeout        time.Duration
	RespondTimeout         time.Duration
	ResponseTemperature    float64
	MaxRewrites            int
	SkipRetrievalSmallTalk bool
}

type StoreConfig struct {
	Backend string // "memory", "redis" or "postgres"
	TTL     time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "8000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			PipelineLogPath:    getEnv("PIPELINE_LOG_PATH", "logs/pipeline.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			IngestTopic:        getEnv("INGEST_TOPIC_NAME", "INGEST_KNOWLEDGE_DOCUMENT"),
			KnowledgeSeedDir:   getEnv("KNOWLEDGE_SEED_DIR", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Keys: APIKeys{
			GoogleGemini: getEnv("GOOGLE_GEMINI_API_KEY", ""),
			Jina:         getEnv("JINA_API_KEY", ""),
			OpenAI:       getEnv("OPENAI_API_KEY", ""),
			HuggingFace:  getEnv("HUGGINGFACE_API_KEY", ""),
			CryptoKey:    getEnv("APP_CRYPTO_KEY", ""),
		},
		Ai: AIConfig{
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "ollama"),
			EmbeddingModel:    getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			LLMProvider:       getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:          getEnv("LLM_MODEL", "llama3"),
			LLMBaseURL:        getEnv("LLM_BASE_URL", ""),
			CallTimeout:       getEnvAsDuration("LLM_CALL_TIMEOUT", 30*time.Second),
			MaxAttempts:       getEnvAsInt("LLM_MAX_ATTEMPTS", 3),
			InitialBackoff:    getEnvAsDuration("LLM_INITIAL_BACKOFF", 200*time.Millisecond),
			MaxBackoff:        getEnvAsDuration("LLM_MAX_BACKOFF", 5*time.Second),
		},
		Retrieval: RetrievalConfig{
			Backend:     getEnv("VECTOR_STORE", "pgvector"),
			TopK:        getEnvAsInt("RETRIEVAL_TOP_K", 3),
			MaxDistance: getEnvAsFloat("RETRIEVAL_MAX_DISTANCE", 1.0),
		},
		Pipeline: PipelineConfig{
			ClassifyTimeout:        getEnvAsDuration("CLASSIFY_TIMEOUT", 45*time.Second),
			QueryTimeout:           getEnvAsDuration("QUERY_TIMEOUT", 30*time.Second),
			RetrieveTimeout:        getEnvAsDuration("RETRIEVE_TIMEOUT", 10*time.Second),
			RespondTimeout:         getEnvAsDuration("RESPOND_TIMEOUT", 90*time.Second),
			ResponseTemperature:    getEnvAsFloat("RESPONSE_TEMPERATURE", 0.25),
			MaxRewrites:            getEnvAsInt("GENERATION_MAX_REWRITES", 2),
			SkipRetrievalSmallTalk: getEnvAsBool("PIPELINE_SKIP_RETRIEVAL_SMALL_TALK", false),
		},
		Store: StoreConfig{
			Backend: getEnv("CONVERSATION_STORE", "memory"),
			TTL:     getEnvAsDuration("CONVERSATION_TTL", 0),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
