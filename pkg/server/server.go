// Package server is the composition root: it wires config, telemetry,
// the LLM client, evidence and checkpoint stores, the orchestration
// engine, and the HTTP router into a ready-to-serve unit.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/Nadil-Dulnidu/IKMS/internal/api"
	"github.com/Nadil-Dulnidu/IKMS/internal/api/handlers"
	"github.com/Nadil-Dulnidu/IKMS/internal/auth"
	"github.com/Nadil-Dulnidu/IKMS/internal/checkpoint"
	"github.com/Nadil-Dulnidu/IKMS/internal/config"
	"github.com/Nadil-Dulnidu/IKMS/internal/engine"
	"github.com/Nadil-Dulnidu/IKMS/internal/llm"
	"github.com/Nadil-Dulnidu/IKMS/internal/retrieval"
	"github.com/Nadil-Dulnidu/IKMS/internal/stream"
	"github.com/Nadil-Dulnidu/IKMS/internal/telemetry"
	"github.com/Nadil-Dulnidu/IKMS/pkg/contracts"
)

// Server holds the initialized service.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes all components from environment configuration.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the service with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	client := llm.New(llm.Config{
		APIKey:         cfg.OpenAI.APIKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		ChatModel:      cfg.OpenAI.ChatModel,
		ReasoningModel: cfg.OpenAI.ReasoningModel,
		EmbeddingModel: cfg.OpenAI.EmbeddingModel,
		EmbeddingDims:  cfg.OpenAI.EmbeddingDims,
	})

	// Postgres when DATABASE_URL is set, embedded backends otherwise.
	var evidence contracts.EvidenceStore
	var checkpoints contracts.CheckpointStore
	if cfg.Database.URL != "" {
		pg, err := retrieval.NewPgvectorStore(ctx, cfg.Database.URL, client)
		if err != nil {
			return nil, fmt.Errorf("init evidence store: %w", err)
		}
		evidence = pg

		cp, err := checkpoint.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("init checkpoint store: %w", err)
		}
		checkpoints = cp
	} else {
		evidence = retrieval.NewEmbeddedStore(client)
		checkpoints = checkpoint.NewMemoryStore(cfg.Session.CheckpointTTL)
		log.Info().Msg("embedded backends selected (no DATABASE_URL)")
	}

	var verifier contracts.TokenVerifier
	if cfg.Auth.JWKSURL != "" {
		verifier = auth.NewJWKSVerifier(cfg.Auth.JWKSURL, cfg.Auth.Issuer)
		log.Info().Str("issuer", cfg.Auth.Issuer).Msg("bearer-token auth enabled")
	} else {
		log.Warn().Msg("no JWKS URL configured, relying on X-User-Id header")
	}

	eng := engine.New(client, evidence, checkpoints, engine.Config{
		ChatModel:      cfg.OpenAI.ChatModel,
		ReasoningModel: cfg.OpenAI.ReasoningModel,
		RetrievalK:     cfg.Retrieval.TopK,
	})

	h := &handlers.Handlers{
		Engine:   eng,
		Adapter:  stream.New(cfg.Stream.ChunkWidth),
		Evidence: evidence,
		Ingester: retrieval.NewIngester(evidence, retrieval.ChunkerConfig{
			ChunkSize:    cfg.Retrieval.ChunkSize,
			ChunkOverlap: cfg.Retrieval.ChunkOverlap,
		}),
	}

	return &Server{
		Handler:      api.NewRouter(cfg, h, verifier),
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}
