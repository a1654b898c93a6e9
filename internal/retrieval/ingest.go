package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Nadil-Dulnidu/IKMS/pkg/contracts"
	"github.com/Nadil-Dulnidu/IKMS/pkg/models"
)

// Ingester chunks raw document text and indexes it into the evidence store.
type Ingester struct {
	store    contracts.EvidenceStore
	defaults ChunkerConfig
}

// NewIngester builds an ingester over the given store.
func NewIngester(store contracts.EvidenceStore, defaults ChunkerConfig) *Ingester {
	return &Ingester{store: store, defaults: defaults}
}

// Ingest chunks every document, preserves page/source metadata on each
// chunk, and upserts the lot into the user's namespace.
func (in *Ingester) Ingest(ctx context.Context, userID string, req *models.IngestRequest) (*models.IngestResult, error) {
	start := time.Now()

	config := in.defaults
	if req.ChunkSize > 0 {
		config.ChunkSize = req.ChunkSize
	}
	if req.ChunkOverlap > 0 {
		config.ChunkOverlap = req.ChunkOverlap
	}

	var chunks []models.EvidenceChunk
	for _, doc := range req.Documents {
		// Deterministic chunk ids make re-ingesting a document replace its
		// chunks instead of duplicating them.
		docID := doc.ID
		if docID == "" {
			docID = uuid.NewString()
		}
		for i, text := range ChunkText(doc.Content, config) {
			chunks = append(chunks, models.EvidenceChunk{
				ID:      fmt.Sprintf("%s#%d", docID, i),
				Content: text,
				Page:    doc.Page,
				Source:  doc.Source,
			})
		}
	}

	if len(chunks) > 0 {
		if err := in.store.Upsert(ctx, userID, chunks); err != nil {
			return nil, fmt.Errorf("index chunks: %w", err)
		}
	}

	log.Info().
		Str("user", userID).
		Int("documents", len(req.Documents)).
		Int("chunks", len(chunks)).
		Msg("documents ingested")

	return &models.IngestResult{
		DocumentsProcessed: len(req.Documents),
		ChunksIndexed:      len(chunks),
		ElapsedMs:          time.Since(start).Milliseconds(),
	}, nil
}
