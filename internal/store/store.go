package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studybuddy/studybuddy/internal/log"
)

const (
	sqlInsertKnowledgeBase = `
		INSERT INTO knowledge_bases (owner_id, name, subject, description, collection_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	sqlListKnowledgeBases = `
		SELECT id, owner_id, name, subject, description, collection_name, created_at, updated_at
		FROM knowledge_bases
		WHERE owner_id = $1
		ORDER BY created_at DESC`

	sqlGetKnowledgeBase = `
		SELECT id, owner_id, name, subject, description, collection_name, created_at, updated_at
		FROM knowledge_bases
		WHERE id = $1 AND owner_id = $2`

	sqlDeleteKnowledgeBase = `
		DELETE FROM knowledge_bases
		WHERE id = $1 AND owner_id = $2`

	sqlInsertDocument = `
		INSERT INTO documents (knowledge_base_id, file_name, file_type, file_url, file_size, processing_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	sqlGetDocument = `
		SELECT id, knowledge_base_id, file_name, file_type, file_url, file_size,
		       processing_status, chunk_count, created_at
		FROM documents
		WHERE id = $1`

	sqlListDocuments = `
		SELECT id, knowledge_base_id, file_name, file_type, file_url, file_size,
		       processing_status, chunk_count, created_at
		FROM documents
		WHERE knowledge_base_id = $1
		ORDER BY created_at DESC`

	sqlUpdateDocumentStatus = `
		UPDATE documents
		SET processing_status = $2
		WHERE id = $1`

	sqlUpdateDocumentChunkCount = `
		UPDATE documents
		SET chunk_count = $2
		WHERE id = $1`

	sqlDeleteDocument = `
		DELETE FROM documents
		WHERE id = $1`

	sqlListChunks = `
		SELECT id, document_id, content, chunk_index, vector_point_id, metadata, created_at
		FROM chunks
		WHERE document_id = $1
		ORDER BY chunk_index`
)

// Store provides access to the relational tables backing knowledge bases,
// documents, and chunks.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool, logger log.Logger) (*Store, error) {
	if pool == nil {
		return nil, errors.New("store: pool is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// KnowledgeBaseParams holds the caller-supplied fields for a new knowledge
// base. CollectionName must be unique; the store surfaces a conflict as an
// error rather than retrying.
type KnowledgeBaseParams struct {
	OwnerID        string
	Name           string
	Subject        string
	Description    string
	CollectionName string
}

// CreateKnowledgeBase inserts a new knowledge base and returns it with
// database-assigned fields populated.
func (s *Store) CreateKnowledgeBase(ctx context.Context, params KnowledgeBaseParams) (*KnowledgeBase, error) {
	if params.OwnerID == "" {
		return nil, errors.New("store: owner id is required")
	}
	if params.Name == "" {
		return nil, errors.New("store: name is required")
	}

	kb := &KnowledgeBase{
		OwnerID:        params.OwnerID,
		Name:           params.Name,
		Subject:        params.Subject,
		Description:    params.Description,
		CollectionName: params.CollectionName,
	}
	err := s.pool.QueryRow(ctx, sqlInsertKnowledgeBase,
		params.OwnerID, params.Name, params.Subject, params.Description, params.CollectionName,
	).Scan(&kb.ID, &kb.CreatedAt, &kb.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert knowledge base: %w", err)
	}

	s.logger.Debug("knowledge base created",
		"id", kb.ID,
		"owner_id", kb.OwnerID,
		"collection", kb.CollectionName)
	return kb, nil
}

// ListKnowledgeBases returns all knowledge bases owned by ownerID, newest
// first.
func (s *Store) ListKnowledgeBases(ctx context.Context, ownerID string) ([]*KnowledgeBase, error) {
	rows, err := s.pool.Query(ctx, sqlListKnowledgeBases, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list knowledge bases: %w", err)
	}
	defer rows.Close()

	var kbs []*KnowledgeBase
	for rows.Next() {
		var kb KnowledgeBase
		if err := rows.Scan(
			&kb.ID, &kb.OwnerID, &kb.Name, &kb.Subject, &kb.Description,
			&kb.CollectionName, &kb.CreatedAt, &kb.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan knowledge base: %w", err)
		}
		kbs = append(kbs, &kb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list knowledge bases: %w", err)
	}
	return kbs, nil
}

// GetKnowledgeBase returns the knowledge base with the given id if it is
// owned by ownerID, or ErrNotFound.
func (s *Store) GetKnowledgeBase(ctx context.Context, id uuid.UUID, ownerID string) (*KnowledgeBase, error) {
	var kb KnowledgeBase
	err := s.pool.QueryRow(ctx, sqlGetKnowledgeBase, id, ownerID).Scan(
		&kb.ID, &kb.OwnerID, &kb.Name, &kb.Subject, &kb.Description,
		&kb.CollectionName, &kb.CreatedAt, &kb.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get knowledge base: %w", err)
	}
	return &kb, nil
}

// DeleteKnowledgeBase removes the knowledge base and, via cascading foreign
// keys, all of its documents and chunks. Returns ErrNotFound when nothing
// matched.
func (s *Store) DeleteKnowledgeBase(ctx context.Context, id uuid.UUID, ownerID string) error {
	tag, err := s.pool.Exec(ctx, sqlDeleteKnowledgeBase, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete knowledge base: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.logger.Debug("knowledge base deleted", "id", id, "owner_id", ownerID)
	return nil
}

// DocumentParams holds the fields for a new document row.
type DocumentParams struct {
	KnowledgeBaseID uuid.UUID
	FileName        string
	FileType        FileType
	FileURL         string
	FileSize        int64
}

// CreateDocument inserts a new document in the pending state.
func (s *Store) CreateDocument(ctx context.Context, params DocumentParams) (*Document, error) {
	if params.FileName == "" {
		return nil, errors.New("store: file name is required")
	}
	if !params.FileType.Valid() {
		return nil, fmt.Errorf("store: unsupported file type %q", params.FileType)
	}

	doc := &Document{
		KnowledgeBaseID:  params.KnowledgeBaseID,
		FileName:         params.FileName,
		FileType:         params.FileType,
		FileURL:          params.FileURL,
		FileSize:         params.FileSize,
		ProcessingStatus: StatusPending,
	}
	err := s.pool.QueryRow(ctx, sqlInsertDocument,
		params.KnowledgeBaseID, params.FileName, params.FileType,
		params.FileURL, params.FileSize, StatusPending,
	).Scan(&doc.ID, &doc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}

	s.logger.Debug("document created",
		"id", doc.ID,
		"knowledge_base_id", doc.KnowledgeBaseID,
		"file_name", doc.FileName)
	return doc, nil
}

// GetDocument returns the document with the given id, or ErrNotFound.
func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	var doc Document
	err := s.pool.QueryRow(ctx, sqlGetDocument, id).Scan(
		&doc.ID, &doc.KnowledgeBaseID, &doc.FileName, &doc.FileType,
		&doc.FileURL, &doc.FileSize, &doc.ProcessingStatus, &doc.ChunkCount,
		&doc.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

// ListDocuments returns all documents in a knowledge base, newest first.
func (s *Store) ListDocuments(ctx context.Context, knowledgeBaseID uuid.UUID) ([]*Document, error) {
	rows, err := s.pool.Query(ctx, sqlListDocuments, knowledgeBaseID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(
			&doc.ID, &doc.KnowledgeBaseID, &doc.FileName, &doc.FileType,
			&doc.FileURL, &doc.FileSize, &doc.ProcessingStatus, &doc.ChunkCount,
			&doc.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// UpdateDocumentStatus moves a document to the given processing state.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := s.pool.Exec(ctx, sqlUpdateDocumentStatus, id, status)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateDocumentChunkCount records how many chunks the document split into.
func (s *Store) UpdateDocumentChunkCount(ctx context.Context, id uuid.UUID, count int) error {
	tag, err := s.pool.Exec(ctx, sqlUpdateDocumentChunkCount, id, count)
	if err != nil {
		return fmt.Errorf("update document chunk count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDocument removes the document row and, via the cascading foreign
// key, its chunk rows. Returns ErrNotFound when nothing matched.
func (s *Store) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, sqlDeleteDocument, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.logger.Debug("document deleted", "id", id)
	return nil
}

// InsertChunks bulk-inserts chunk rows for a document. IDs must be set by
// the caller so they can match the vector point ids already written to the
// index.
func (s *Store) InsertChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(chunks))
	for i, c := range chunks {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal chunk %d metadata: %w", i, err)
		}
		rows = append(rows, []any{c.ID, c.DocumentID, c.Content, c.ChunkIndex, c.VectorPointID, meta})
	}

	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"chunks"},
		[]string{"id", "document_id", "content", "chunk_index", "vector_point_id", "metadata"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}

	s.logger.Debug("chunks inserted",
		"document_id", chunks[0].DocumentID,
		"count", len(chunks))
	return nil
}

// ListChunks returns a document's chunks ordered by chunk index.
func (s *Store) ListChunks(ctx context.Context, documentID uuid.UUID) ([]*Chunk, error) {
	rows, err := s.pool.Query(ctx, sqlListChunks, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		var (
			c    Chunk
			meta []byte
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Content, &c.ChunkIndex, &c.VectorPointID, &meta, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &c.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal chunk metadata: %w", err)
			}
		}
		chunks = append(chunks, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	return chunks, nil
}
