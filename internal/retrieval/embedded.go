package retrieval

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Nadil-Dulnidu/IKMS/pkg/contracts"
	"github.com/Nadil-Dulnidu/IKMS/pkg/models"
)

// EmbeddedStore is an in-memory evidence store using brute-force cosine
// similarity. Suitable for development and tests; production uses pgvector.
type EmbeddedStore struct {
	mu       sync.RWMutex
	chunks   map[string][]indexedChunk // key: userID
	embedder contracts.EmbeddingDriver
}

type indexedChunk struct {
	chunk  models.EvidenceChunk
	vector []float64
}

var _ contracts.EvidenceStore = (*EmbeddedStore)(nil)

// NewEmbeddedStore creates an in-memory evidence store.
func NewEmbeddedStore(embedder contracts.EmbeddingDriver) *EmbeddedStore {
	log.Info().Msg("embedded evidence store initialized")
	return &EmbeddedStore{
		chunks:   make(map[string][]indexedChunk),
		embedder: embedder,
	}
}

func (s *EmbeddedStore) Search(ctx context.Context, userID, query string, k int) ([]models.EvidenceChunk, error) {
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	qv := vectors[0]

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		chunk models.EvidenceChunk
		score float64
	}
	var candidates []scored
	for _, ic := range s.chunks[userID] {
		if len(ic.vector) != len(qv) {
			continue
		}
		candidates = append(candidates, scored{chunk: ic.chunk, score: cosineSimilarity(qv, ic.vector)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	results := make([]models.EvidenceChunk, k)
	for i := 0; i < k; i++ {
		results[i] = candidates[i].chunk
	}
	return results, nil
}

func (s *EmbeddedStore) Upsert(ctx context.Context, userID string, chunks []models.EvidenceChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range chunks {
		ic := indexedChunk{chunk: c, vector: vectors[i]}
		if j := s.indexOf(userID, c.ID); j >= 0 {
			s.chunks[userID][j] = ic
			continue
		}
		s.chunks[userID] = append(s.chunks[userID], ic)
	}
	return nil
}

// indexOf returns the position of the chunk with the given id in the
// user's namespace, or -1. Chunks without ids are insert-only.
func (s *EmbeddedStore) indexOf(userID, id string) int {
	if id == "" {
		return -1
	}
	for i, ic := range s.chunks[userID] {
		if ic.chunk.ID == id {
			return i
		}
	}
	return -1
}

func (s *EmbeddedStore) Count(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks[userID]), nil
}

func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
