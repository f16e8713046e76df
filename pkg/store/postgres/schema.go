// Package postgres provides the PostgreSQL-backed implementation of the
// store contracts.
//
// Transcriptions and exemplars share a single [pgxpool.Pool] connection
// pool. The pgvector extension must be available in the target database;
// [Migrate] installs it automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer st.Close()
//
//	id, _ := st.Save(ctx, record)
//	rec, _ := st.Get(ctx, id)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlTranscriptions = `
CREATE TABLE IF NOT EXISTS transcriptions (
    id               BIGSERIAL    PRIMARY KEY,
    filename         TEXT         NOT NULL,
    language         TEXT         NOT NULL DEFAULT '',
    duration         DOUBLE PRECISION NOT NULL DEFAULT 0,
    full_text        TEXT         NOT NULL DEFAULT '',
    formatted_text   TEXT         NOT NULL DEFAULT '',
    polished_text    TEXT         NOT NULL DEFAULT '',
    overall_emotion  TEXT         NOT NULL DEFAULT '',
    speakers         TEXT[]       NOT NULL DEFAULT '{}',
    segments         JSONB        NOT NULL DEFAULT '[]',
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcriptions_created_at
    ON transcriptions (created_at DESC);

CREATE INDEX IF NOT EXISTS idx_transcriptions_language
    ON transcriptions (language);

CREATE INDEX IF NOT EXISTS idx_transcriptions_fts
    ON transcriptions USING GIN (to_tsvector('simple', full_text));
`

// ddlExemplars returns the exemplar DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlExemplars(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS polish_exemplars (
    id          BIGSERIAL    PRIMARY KEY,
    language    TEXT         NOT NULL DEFAULT '',
    raw_text    TEXT         NOT NULL,
    polished    TEXT         NOT NULL,
    embedding   vector(%d),
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_polish_exemplars_language
    ON polish_exemplars (language);

CREATE INDEX IF NOT EXISTS idx_polish_exemplars_embedding
    ON polish_exemplars USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required database tables and extensions
// exist. It is idempotent and safe to call on every application start.
//
// embeddingDimensions must match the embedding model configured for the
// deployment (e.g., 1536 for OpenAI text-embedding-3-small). Changing this
// value after the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlTranscriptions,
		ddlExemplars(embeddingDimensions),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
