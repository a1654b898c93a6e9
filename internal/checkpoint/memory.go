// Package checkpoint persists session state between stages so a dropped
// connection can resume a run. Two implementations: in-memory with TTL
// retention for development, PostgreSQL JSONB for production.
package checkpoint

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/Nadil-Dulnidu/IKMS/pkg/contracts"
	"github.com/Nadil-Dulnidu/IKMS/pkg/models"
)

// MemoryStore keeps checkpoints in process memory with TTL eviction.
type MemoryStore struct {
	cache *gocache.Cache
}

var _ contracts.CheckpointStore = (*MemoryStore)(nil)

// NewMemoryStore creates a TTL-bounded in-memory checkpoint store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{cache: gocache.New(ttl, ttl/2)}
}

func (s *MemoryStore) Load(_ context.Context, threadID string) (*models.SessionState, error) {
	v, ok := s.cache.Get(threadID)
	if !ok {
		return nil, contracts.ErrCheckpointNotFound
	}
	state := v.(*models.SessionState)
	return state.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, state *models.SessionState) error {
	s.cache.SetDefault(state.ThreadID, state.Clone())
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, threadID string) error {
	s.cache.Delete(threadID)
	return nil
}
