// Package config reads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the IKMS service.
type Config struct {
	Port      int
	Version   string
	OpenAI    OpenAIConfig
	Retrieval RetrievalConfig
	Database  DatabaseConfig
	Session   SessionConfig
	Auth      AuthConfig
	Telemetry TelemetryConfig
	Stream    StreamConfig
}

type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	ReasoningModel string
	EmbeddingModel string
	EmbeddingDims  int
}

type RetrievalConfig struct {
	TopK         int
	ChunkSize    int
	ChunkOverlap int
}

type DatabaseConfig struct {
	// URL enables pgvector evidence storage and Postgres checkpoints.
	// Empty URL selects the embedded in-memory backends.
	URL string
}

type SessionConfig struct {
	CheckpointTTL time.Duration
}

type AuthConfig struct {
	// JWKSURL enables RS256 bearer-token verification. When empty,
	// identity falls back to the X-User-Id header (development mode).
	JWKSURL string
	Issuer  string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

type StreamConfig struct {
	ChunkWidth int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("IKMS_PORT", 8080),
		Version: envStr("IKMS_VERSION", "0.1.0"),
		OpenAI: OpenAIConfig{
			APIKey:         envStr("IKMS_OPENAI_API_KEY", ""),
			BaseURL:        envStr("IKMS_OPENAI_BASE_URL", ""),
			ChatModel:      envStr("IKMS_CHAT_MODEL", "gpt-4o-mini"),
			ReasoningModel: envStr("IKMS_REASONING_MODEL", "gpt-4o"),
			EmbeddingModel: envStr("IKMS_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDims:  envInt("IKMS_EMBEDDING_DIMS", 1536),
		},
		Retrieval: RetrievalConfig{
			TopK:         envInt("IKMS_RETRIEVAL_TOP_K", 4),
			ChunkSize:    envInt("IKMS_CHUNK_SIZE", 500),
			ChunkOverlap: envInt("IKMS_CHUNK_OVERLAP", 50),
		},
		Database: DatabaseConfig{
			URL: envStr("DATABASE_URL", ""),
		},
		Session: SessionConfig{
			CheckpointTTL: envDuration("IKMS_CHECKPOINT_TTL", time.Hour),
		},
		Auth: AuthConfig{
			JWKSURL: envStr("IKMS_AUTH_JWKS_URL", ""),
			Issuer:  envStr("IKMS_AUTH_ISSUER", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "ikms"),
		},
		Stream: StreamConfig{
			ChunkWidth: envInt("IKMS_STREAM_CHUNK_WIDTH", 50),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
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
