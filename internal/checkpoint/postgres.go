package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/Nadil-Dulnidu/IKMS/pkg/contracts"
	"github.com/Nadil-Dulnidu/IKMS/pkg/models"
)

// PostgresStore persists checkpoints as JSONB rows keyed by thread id.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ contracts.CheckpointStore = (*PostgresStore)(nil)

// NewPostgresStore connects and migrates the checkpoint table.
func NewPostgresStore(ctx context.Context, connURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("checkpoint connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("checkpoint ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("checkpoint migrate: %w", err)
	}

	log.Info().Msg("postgres checkpoint store initialized")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ikms_checkpoints (
			thread_id  TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			state      JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_ikms_checkpoints_user ON ikms_checkpoints (user_id);
	`)
	return err
}

func (s *PostgresStore) Load(ctx context.Context, threadID string) (*models.SessionState, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		"SELECT state FROM ikms_checkpoints WHERE thread_id = $1", threadID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint load: %w", err)
	}

	var state models.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("checkpoint decode: %w", err)
	}
	return &state, nil
}

func (s *PostgresStore) Save(ctx context.Context, state *models.SessionState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("checkpoint encode: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO ikms_checkpoints (thread_id, user_id, state, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (thread_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at`,
		state.ThreadID, state.UserID, raw, time.Now())
	if err != nil {
		return fmt.Errorf("checkpoint save: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, threadID string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM ikms_checkpoints WHERE thread_id = $1", threadID)
	return err
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
