package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/conflux-rag/conflux/internal/chunk"
)

type Config struct {
	Port string

	// Confluence connection
	ConfluenceURL      string
	ConfluenceUsername string
	ConfluenceAPIKey   string

	// Auth for this service's own API
	APIKey string

	// OpenAI
	OpenAIAPIKey   string
	EmbeddingModel string
	ChatModel      string
	EmbeddingDim   int

	// Qdrant
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	// Chunking
	ChunkLevels chunk.Levels

	// Worker pool
	WorkerCount          int
	MaxQueueSize         int
	MaxConcurrentEmbed   int
	MaxConcurrentFetch   int
	AttachmentMaxBytes   int64
	ProcessAttachments   bool
	PDFFallbackPdftotext bool

	// Job state
	JobTTL time.Duration
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first when present; real environment
// variables win.
func Load() (Config, error) {
	_ = godotenv.Load()

	levels, err := chunk.ParseLevels(envOr("CHUNK_LEVELS", "h1:Section,h2:Subsection,h3:Topic"))
	if err != nil {
		return Config{}, fmt.Errorf("CHUNK_LEVELS: %w", err)
	}

	cfg := Config{
		Port: envOr("PORT", "8090"),

		ConfluenceURL:      os.Getenv("CONFLUENCE_URL"),
		ConfluenceUsername: os.Getenv("CONFLUENCE_USERNAME"),
		ConfluenceAPIKey:   os.Getenv("CONFLUENCE_API_KEY"),

		APIKey: os.Getenv("CONFLUX_API_KEY"),

		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		EmbeddingModel: envOr("EMBEDDING_MODEL", "text-embedding-3-large"),
		ChatModel:      envOr("CHAT_MODEL", "gpt-4o"),
		EmbeddingDim:   envInt("EMBEDDING_DIM", 3072),

		QdrantURL:        envOr("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:     os.Getenv("QDRANT_API_KEY"),
		QdrantCollection: envOr("QDRANT_COLLECTION", "confluence"),

		ChunkLevels: levels,

		WorkerCount:        envInt("WORKER_COUNT", 4),
		MaxQueueSize:       envInt("MAX_QUEUE_SIZE", 100),
		MaxConcurrentEmbed: envInt("MAX_CONCURRENT_EMBED", 5),
		MaxConcurrentFetch: envInt("MAX_CONCURRENT_FETCH", 10),

		AttachmentMaxBytes: envInt64("ATTACHMENT_MAX_BYTES", 52428800), // 50MB
		ProcessAttachments: envBool("PROCESS_ATTACHMENTS", true),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxConcurrentEmbed <= 0 {
		cfg.MaxConcurrentEmbed = 5
	}
	if cfg.MaxConcurrentFetch <= 0 {
		cfg.MaxConcurrentFetch = 10
	}
	if cfg.AttachmentMaxBytes <= 0 {
		cfg.AttachmentMaxBytes = 52428800
	}
	if cfg.EmbeddingDim <= 0 {
		cfg.EmbeddingDim = 3072
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.ConfluenceURL == "" {
		return fmt.Errorf("CONFLUENCE_URL is required")
	}
	if c.ConfluenceUsername == "" {
		return fmt.Errorf("CONFLUENCE_USERNAME is required")
	}
	if c.ConfluenceAPIKey == "" {
		return fmt.Errorf("CONFLUENCE_API_KEY is required")
	}
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("CONFLUX_API_KEY is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
