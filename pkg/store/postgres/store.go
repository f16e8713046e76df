package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/nocturneflow/voxalign/internal/transcript"
	"github.com/nocturneflow/voxalign/pkg/store"
)

// Compile-time interface checks.
var (
	_ store.TranscriptionStore = (*Store)(nil)
	_ store.ExemplarStore      = (*Store)(nil)
)

// Store is the PostgreSQL-backed implementation of
// [store.TranscriptionStore] and [store.ExemplarStore].
//
// All operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, registers pgvector types on every connection,
// and runs [Migrate] to ensure all required tables and extensions exist.
//
// embeddingDimensions must match the output dimension of the embedding model
// used to produce exemplar embeddings.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Save implements [store.TranscriptionStore].
func (s *Store) Save(ctx context.Context, rec *store.Record) (int64, error) {
	segments, err := json.Marshal(rec.Segments)
	if err != nil {
		return 0, fmt.Errorf("postgres store: marshal segments: %w", err)
	}

	const q = `
		INSERT INTO transcriptions
		    (filename, language, duration, full_text, formatted_text,
		     polished_text, overall_emotion, speakers, segments)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	var id int64
	err = s.pool.QueryRow(ctx, q,
		rec.Filename,
		rec.Language,
		rec.Duration,
		rec.FullText,
		rec.FormattedText,
		rec.PolishedText,
		rec.OverallEmotion,
		rec.Speakers,
		segments,
	).Scan(&id, &rec.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("postgres store: save transcription: %w", err)
	}
	rec.ID = id
	return id, nil
}

// Get implements [store.TranscriptionStore].
func (s *Store) Get(ctx context.Context, id int64) (*store.Record, error) {
	const q = `
		SELECT id, filename, language, duration, full_text, formatted_text,
		       polished_text, overall_emotion, speakers, segments, created_at
		FROM transcriptions
		WHERE id = $1`

	rec, err := scanRecord(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("postgres store: get transcription %d: %w", id, err)
	}
	return rec, nil
}

// List implements [store.TranscriptionStore].
func (s *Store) List(ctx context.Context, limit, offset int) ([]store.Record, error) {
	if limit <= 0 {
		limit = 50
	}

	const q = `
		SELECT id, filename, language, duration, full_text, formatted_text,
		       polished_text, overall_emotion, speakers, segments, created_at
		FROM transcriptions
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list transcriptions: %w", err)
	}
	defer rows.Close()

	var records []store.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres store: list transcriptions: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: list transcriptions: %w", err)
	}
	return records, nil
}

// scanRecord scans one transcription row.
func scanRecord(row pgx.Row) (*store.Record, error) {
	var (
		rec      store.Record
		segments []byte
	)
	err := row.Scan(
		&rec.ID,
		&rec.Filename,
		&rec.Language,
		&rec.Duration,
		&rec.FullText,
		&rec.FormattedText,
		&rec.PolishedText,
		&rec.OverallEmotion,
		&rec.Speakers,
		&segments,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(segments) > 0 {
		if err := json.Unmarshal(segments, &rec.Segments); err != nil {
			return nil, fmt.Errorf("unmarshal segments: %w", err)
		}
	}
	if rec.Segments == nil {
		rec.Segments = []transcript.Segment{}
	}
	if rec.Speakers == nil {
		rec.Speakers = []string{}
	}
	return &rec, nil
}

// AddExemplar implements [store.ExemplarStore].
func (s *Store) AddExemplar(ctx context.Context, ex *store.Exemplar) error {
	const q = `
		INSERT INTO polish_exemplars (language, raw_text, polished, embedding)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	vec := pgvector.NewVector(ex.Embedding)
	if err := s.pool.QueryRow(ctx, q, ex.Language, ex.Raw, ex.Polished, vec).Scan(&ex.ID); err != nil {
		return fmt.Errorf("postgres store: add exemplar: %w", err)
	}
	return nil
}

// SimilarExemplars implements [store.ExemplarStore]. Results are ranked by
// cosine distance to embedding.
func (s *Store) SimilarExemplars(ctx context.Context, embedding []float32, language string, k int) ([]store.Exemplar, error) {
	if k <= 0 {
		k = 3
	}

	const q = `
		SELECT id, language, raw_text, polished
		FROM polish_exemplars
		WHERE ($1 = '' OR language = $1)
		ORDER BY embedding <=> $2
		LIMIT $3`

	rows, err := s.pool.Query(ctx, q, language, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("postgres store: similar exemplars: %w", err)
	}
	defer rows.Close()

	var exemplars []store.Exemplar
	for rows.Next() {
		var ex store.Exemplar
		if err := rows.Scan(&ex.ID, &ex.Language, &ex.Raw, &ex.Polished); err != nil {
			return nil, fmt.Errorf("postgres store: similar exemplars: %w", err)
		}
		exemplars = append(exemplars, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: similar exemplars: %w", err)
	}
	return exemplars, nil
}
