package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Nadil-Dulnidu/IKMS/pkg/contracts"
	"github.com/Nadil-Dulnidu/IKMS/pkg/models"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	state := &models.SessionState{
		ThreadID: "t1",
		UserID:   "u1",
		Question: "What is RAG?",
		Stage:    models.StageCritic,
		Context:  "[C1] evidence",
	}
	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Stage != models.StageCritic || got.Question != "What is RAG?" {
		t.Errorf("Load() = %+v", got)
	}

	// The stored copy is isolated from later mutation of the original.
	state.Stage = models.StageDone
	again, _ := store.Load(ctx, "t1")
	if again.Stage != models.StageCritic {
		t.Errorf("stored state mutated externally: stage = %v", again.Stage)
	}
}

func TestMemoryStoreMissing(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	_, err := store.Load(context.Background(), "nope")
	if !errors.Is(err, contracts.ErrCheckpointNotFound) {
		t.Errorf("Load() error = %v, want ErrCheckpointNotFound", err)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	_ = store.Save(ctx, &models.SessionState{ThreadID: "t1"})
	if err := store.Delete(ctx, "t1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load(ctx, "t1"); !errors.Is(err, contracts.ErrCheckpointNotFound) {
		t.Errorf("Load() after delete error = %v, want ErrCheckpointNotFound", err)
	}
}
