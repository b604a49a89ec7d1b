package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// schemaName is the PostgreSQL schema holding all collection tables.
const schemaName = "vectors"

// Store is the pgvector-backed vector index adapter.
//
// Store is safe for concurrent use by multiple goroutines. Concurrent
// writers to different documents never interfere: upserts are keyed by
// point id and deletes are document-scoped filters.
type Store struct {
	pool   *pgxpool.Pool
	dim    int
	logger *slog.Logger
}

// NewStore creates a Store with a fixed vector dimensionality. Every
// collection it creates uses this size; embeddings of any other length are
// rejected by PostgreSQL at insert time.
func NewStore(pool *pgxpool.Pool, dimension int, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", dimension)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, dim: dimension, logger: logger}, nil
}

// Dimension returns the configured vector size.
func (s *Store) Dimension() int { return s.dim }

// CreateCollection creates the collection if it does not exist; existing
// collections are left untouched (idempotent).
func (s *Store) CreateCollection(ctx context.Context, name string) error {
	if !ValidCollectionName(name) {
		return &IndexError{Op: "create", Collection: name, Err: fmt.Errorf("invalid collection name")}
	}

	exists, err := s.collectionExists(ctx, name)
	if err != nil {
		return &IndexError{Op: "create", Collection: name, Err: err}
	}
	if exists {
		return nil
	}

	table := pgx.Identifier{schemaName, name}.Sanitize()
	ddl := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, pgx.Identifier{schemaName}.Sanitize()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id uuid PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			payload jsonb NOT NULL DEFAULT '{}'
		)`, table, s.dim),
		// Cosine distance index; collections are small enough per subject
		// that HNSW build cost is negligible.
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`,
			pgx.Identifier{name + "_embedding_idx"}.Sanitize(), table),
		// Supports filter-deletes by document id.
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s ((payload->>'documentId'))`,
			pgx.Identifier{name + "_document_idx"}.Sanitize(), table),
	}

	for _, stmt := range ddl {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return &IndexError{Op: "create", Collection: name, Err: err}
		}
	}

	s.logger.Debug("created vector collection", "collection", name, "dimension", s.dim)
	return nil
}

// DropCollection removes the collection. Best-effort: a missing collection
// or a failing drop is logged, never propagated, because collection
// deletion is not on the critical path of any user-facing response.
func (s *Store) DropCollection(ctx context.Context, name string) {
	if !ValidCollectionName(name) {
		s.logger.Warn("refusing to drop invalid collection name", "collection", name)
		return
	}

	table := pgx.Identifier{schemaName, name}.Sanitize()
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
		s.logger.Warn("dropping vector collection failed", "collection", name, "error", err)
		return
	}
	s.logger.Debug("dropped vector collection", "collection", name)
}

// Upsert writes points into the collection, overwriting on id collision.
// It returns only after the transaction commits, so a subsequent Search is
// guaranteed to observe the write.
func (s *Store) Upsert(ctx context.Context, name string, points []Point) error {
	if !ValidCollectionName(name) {
		return &IndexError{Op: "upsert", Collection: name, Err: fmt.Errorf("invalid collection name")}
	}
	if len(points) == 0 {
		return nil
	}

	table := pgx.Identifier{schemaName, name}.Sanitize()
	sql := fmt.Sprintf(`INSERT INTO %s (id, embedding, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload`, table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &IndexError{Op: "upsert", Collection: name, Err: err}
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("upsert transaction rollback", "error", rbErr)
		}
	}()

	batch := &pgx.Batch{}
	for _, p := range points {
		if len(p.Vector) != s.dim {
			return &IndexError{Op: "upsert", Collection: name,
				Err: fmt.Errorf("point %s has %d dimensions, collection configured for %d", p.ID, len(p.Vector), s.dim)}
		}
		payload, marshalErr := json.Marshal(p.Payload)
		if marshalErr != nil {
			return &IndexError{Op: "upsert", Collection: name, Err: marshalErr}
		}
		batch.Queue(sql, p.ID, pgvector.NewVector(p.Vector), payload)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return &IndexError{Op: "upsert", Collection: name, Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return &IndexError{Op: "upsert", Collection: name, Err: err}
	}

	s.logger.Debug("upserted points", "collection", name, "count", len(points))
	return nil
}

// Search returns up to limit points with cosine similarity >= threshold,
// ordered by descending score. Ties break by point id, which keeps ordering
// stable within a call.
func (s *Store) Search(ctx context.Context, name string, vec []float32, limit int, threshold float32) ([]Hit, error) {
	if !ValidCollectionName(name) {
		return nil, &IndexError{Op: "search", Collection: name, Err: fmt.Errorf("invalid collection name")}
	}
	if len(vec) != s.dim {
		return nil, &IndexError{Op: "search", Collection: name,
			Err: fmt.Errorf("query vector has %d dimensions, collection configured for %d", len(vec), s.dim)}
	}
	if limit <= 0 {
		limit = 5
	}

	table := pgx.Identifier{schemaName, name}.Sanitize()
	sql := fmt.Sprintf(`SELECT id, payload, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE 1 - (embedding <=> $1) >= $2
		ORDER BY embedding <=> $1, id
		LIMIT $3`, table)

	rows, err := s.pool.Query(ctx, sql, pgvector.NewVector(vec), threshold, limit)
	if err != nil {
		return nil, &IndexError{Op: "search", Collection: name, Err: err}
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var payload []byte
		if err := rows.Scan(&h.ID, &payload, &h.Score); err != nil {
			return nil, &IndexError{Op: "search", Collection: name, Err: err}
		}
		if err := json.Unmarshal(payload, &h.Payload); err != nil {
			return nil, &IndexError{Op: "search", Collection: name, Err: err}
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, &IndexError{Op: "search", Collection: name, Err: err}
	}

	return hits, nil
}

// DeleteByDocument removes every point whose payload references documentID.
// Used for cascading document deletion.
func (s *Store) DeleteByDocument(ctx context.Context, name, documentID string) error {
	if !ValidCollectionName(name) {
		return &IndexError{Op: "delete", Collection: name, Err: fmt.Errorf("invalid collection name")}
	}

	table := pgx.Identifier{schemaName, name}.Sanitize()
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE payload->>'documentId' = $1`, table), documentID)
	if err != nil {
		return &IndexError{Op: "delete", Collection: name, Err: err}
	}

	s.logger.Debug("deleted document points", "collection", name, "document_id", documentID, "count", tag.RowsAffected())
	return nil
}

// collectionExists checks the catalog for the collection's backing table.
func (s *Store) collectionExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)`, schemaName, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking collection existence: %w", err)
	}
	return exists, nil
}
