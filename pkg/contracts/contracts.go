// Package contracts defines the interfaces between the orchestration core
// and its external collaborators: the text-generation capability, the
// per-user evidence store, the session checkpoint store, and token
// verification. The core depends only on these contracts; concrete
// drivers live under internal/.
package contracts

import (
	"context"
	"errors"

	"github.com/Nadil-Dulnidu/IKMS/pkg/models"
)

// ── Generation ──────────────────────────────────────────────

// ToolSpec describes one tool a stage agent may call. Parameters is a
// JSON-schema object in map form.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// SchemaSpec requests structured output conforming to a JSON schema.
type SchemaSpec struct {
	Name   string
	Schema map[string]any
}

// GenerateRequest is a single call to the text-generation capability:
// a role prompt, a transcript, and optionally bounded tool access or a
// structured-output contract.
type GenerateRequest struct {
	Model    string
	System   string
	Messages []models.Message
	Tools    []ToolSpec
	Schema   *SchemaSpec
}

// Generation is the model's reply. Structured holds the raw JSON payload
// when a SchemaSpec was supplied; callers decode it tolerantly and fall
// back on their own defaults when it is malformed.
type Generation struct {
	Content    string
	Reasoning  string
	ToolCalls  []models.ToolCall
	Structured []byte
}

// Generator is the opaque "generate text given a prompt and optional tool
// access" capability. Implementations must be safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, req *GenerateRequest) (*Generation, error)
}

// ── Evidence store ──────────────────────────────────────────

// EvidenceStore is the per-user document index. Namespacing by userID
// guarantees retrieval isolation between users. Implementations must be
// safe for concurrent use.
type EvidenceStore interface {
	// Search returns up to k chunks relevant to query from the user's
	// namespace, in retrieval-rank order. An empty result is not an error.
	Search(ctx context.Context, userID, query string, k int) ([]models.EvidenceChunk, error)

	// Upsert indexes chunks into the user's namespace.
	Upsert(ctx context.Context, userID string, chunks []models.EvidenceChunk) error

	// Count reports how many chunks the user's namespace holds.
	Count(ctx context.Context, userID string) (int, error)
}

// EmbeddingDriver turns text into vectors for the evidence store.
type EmbeddingDriver interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	Dimensions() int
}

// ── Checkpoints ─────────────────────────────────────────────

// ErrCheckpointNotFound is returned by Load when no snapshot exists for
// the thread. The engine treats it as "start a fresh session".
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// CheckpointStore provides durable (or in-memory) session snapshots keyed
// by thread id. Implementations must be safe for concurrent use; the
// engine guarantees a single writer per thread.
type CheckpointStore interface {
	Load(ctx context.Context, threadID string) (*models.SessionState, error)
	Save(ctx context.Context, state *models.SessionState) error
	Delete(ctx context.Context, threadID string) error
}

// ── Identity ────────────────────────────────────────────────

// TokenVerifier validates a bearer token and returns the subject it was
// issued to. Implementations own key-set caching.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (subject string, err error)
}
