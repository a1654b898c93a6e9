// Package retrieval implements the per-user evidence store: a pgvector
// backed index for production, an embedded in-memory index for development
// and tests, and the chunk/embed/upsert ingestion path feeding both.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/Nadil-Dulnidu/IKMS/pkg/contracts"
	"github.com/Nadil-Dulnidu/IKMS/pkg/models"
)

// PgvectorStore is the PostgreSQL + pgvector evidence store. Each chunk
// lives in a single table keyed by user id, which is the isolation
// namespace: queries never cross it.
type PgvectorStore struct {
	pool     *pgxpool.Pool
	embedder contracts.EmbeddingDriver
}

var _ contracts.EvidenceStore = (*PgvectorStore)(nil)

// NewPgvectorStore connects, pings, and migrates the chunk table.
func NewPgvectorStore(ctx context.Context, connURL string, embedder contracts.EmbeddingDriver) (*PgvectorStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("pgvector connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector ping: %w", err)
	}

	s := &PgvectorStore{pool: pool, embedder: embedder}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector migrate: %w", err)
	}

	log.Info().Int("dims", embedder.Dimensions()).Msg("pgvector evidence store initialized")
	return s, nil
}

func (s *PgvectorStore) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS ikms_chunks (
			id         TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			content    TEXT NOT NULL DEFAULT '',
			page       INT,
			source     TEXT NOT NULL DEFAULT '',
			vector     vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, id)
		);

		CREATE INDEX IF NOT EXISTS idx_ikms_chunks_user ON ikms_chunks (user_id);
	`, s.embedder.Dimensions())

	_, err := s.pool.Exec(ctx, ddl)
	return err
}

// Search embeds the query and returns the top-k chunks from the user's
// namespace ordered by cosine distance.
func (s *PgvectorStore) Search(ctx context.Context, userID, query string, k int) ([]models.EvidenceChunk, error) {
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT content, page, source
		FROM ikms_chunks
		WHERE user_id = $1
		ORDER BY vector <=> $2
		LIMIT $3`, userID, pgvectorArray(vectors[0]), k)
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()

	var chunks []models.EvidenceChunk
	for rows.Next() {
		var c models.EvidenceChunk
		if err := rows.Scan(&c.Content, &c.Page, &c.Source); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// Upsert embeds and indexes chunks into the user's namespace in one
// multi-values statement.
func (s *PgvectorStore) Upsert(ctx context.Context, userID string, chunks []models.EvidenceChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO ikms_chunks (id, user_id, content, page, source, vector, created_at)
		VALUES `)

	args := make([]interface{}, 0, len(chunks)*7)
	now := time.Now()
	for i, c := range chunks {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i*7 + 1
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)", base, base+1, base+2, base+3, base+4, base+5, base+6))
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		args = append(args, id, userID, c.Content, c.Page, c.Source, pgvectorArray(vectors[i]), now)
	}

	sb.WriteString(` ON CONFLICT (user_id, id) DO UPDATE SET
		content = EXCLUDED.content,
		page = EXCLUDED.page,
		source = EXCLUDED.source,
		vector = EXCLUDED.vector`)

	_, err = s.pool.Exec(ctx, sb.String(), args...)
	return err
}

// Count reports the size of the user's namespace.
func (s *PgvectorStore) Count(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM ikms_chunks WHERE user_id = $1", userID).Scan(&count)
	return count, err
}

// Ping checks database reachability.
func (s *PgvectorStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PgvectorStore) Close() {
	s.pool.Close()
}

// pgvectorArray converts a float64 slice to pgvector's text format: [1.0,2.0,3.0]
func pgvectorArray(v []float64) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(fmt.Sprintf("%g", f))
	}
	sb.WriteByte(']')
	return sb.String()
}
