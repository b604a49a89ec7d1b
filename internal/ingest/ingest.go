// Package ingest runs the document ingestion pipeline: parse, chunk, embed,
// index, persist. One Process call handles one document end to end and
// always leaves the document row in a terminal or recoverable state.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/studybuddy/studybuddy/internal/chunker"
	"github.com/studybuddy/studybuddy/internal/embed"
	"github.com/studybuddy/studybuddy/internal/log"
	"github.com/studybuddy/studybuddy/internal/parser"
	"github.com/studybuddy/studybuddy/internal/store"
	"github.com/studybuddy/studybuddy/internal/vector"
)

// DocumentStore is the slice of the relational store the pipeline needs.
type DocumentStore interface {
	UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status store.Status) error
	UpdateDocumentChunkCount(ctx context.Context, id uuid.UUID, count int) error
	InsertChunks(ctx context.Context, chunks []store.Chunk) error
}

// Index is the slice of the vector index the pipeline needs.
type Index interface {
	CreateCollection(ctx context.Context, name string) error
	Upsert(ctx context.Context, collection string, points []vector.Point) error
}

// Config holds pipeline construction parameters.
type Config struct {
	Store    DocumentStore
	Embedder embed.Embedder
	Index    Index

	// ChunkSize and ChunkOverlap default to the chunker package defaults
	// when zero.
	ChunkSize    int
	ChunkOverlap int

	// Concurrency bounds parallel embedding calls. Defaults to 4.
	Concurrency int

	Logger log.Logger
}

// Pipeline ingests uploaded documents.
type Pipeline struct {
	store        DocumentStore
	embedder     embed.Embedder
	index        Index
	chunkSize    int
	chunkOverlap int
	concurrency  int
	logger       log.Logger
}

// NewPipeline creates a Pipeline from cfg.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.Store == nil {
		return nil, errors.New("ingest: store is required")
	}
	if cfg.Embedder == nil {
		return nil, errors.New("ingest: embedder is required")
	}
	if cfg.Index == nil {
		return nil, errors.New("ingest: index is required")
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = chunker.DefaultSize
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = chunker.DefaultOverlap
	}
	if cfg.ChunkSize <= 0 {
		return nil, errors.New("ingest: chunk size must be positive")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	return &Pipeline{
		store:        cfg.Store,
		embedder:     cfg.Embedder,
		index:        cfg.Index,
		chunkSize:    cfg.ChunkSize,
		chunkOverlap: cfg.ChunkOverlap,
		concurrency:  cfg.Concurrency,
		logger:       cfg.Logger,
	}, nil
}

// tracer resolves through the global provider; spans are no-ops unless
// tracing is enabled at startup.
var tracer = otel.Tracer("studybuddy/ingest")

// PointID returns the deterministic vector point id for one chunk of a
// document. Re-ingesting the same document yields the same ids, so a retry
// overwrites stale points instead of accumulating duplicates.
func PointID(documentID uuid.UUID, chunkIndex int) uuid.UUID {
	return uuid.NewSHA1(documentID, []byte(strconv.Itoa(chunkIndex)))
}

// Process ingests one document: parse the raw bytes, chunk the text, embed
// every chunk, upsert the vectors into the knowledge base's collection, and
// persist the chunk rows. On any failure the document is marked failed and
// the error returned; Process never leaves a document stuck in processing.
func (p *Pipeline) Process(ctx context.Context, doc *store.Document, collection string, data []byte) (err error) {
	ctx, span := tracer.Start(ctx, "ingest.document", trace.WithAttributes(
		attribute.String("document.id", doc.ID.String()),
		attribute.String("document.file_type", string(doc.FileType)),
		attribute.Int("document.bytes", len(data)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	logger := p.logger.With(
		"document_id", doc.ID,
		"knowledge_base_id", doc.KnowledgeBaseID,
		"file_name", doc.FileName)

	if err := p.store.UpdateDocumentStatus(ctx, doc.ID, store.StatusProcessing); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	_, parseSpan := tracer.Start(ctx, "ingest.parse")
	text, err := parser.Parse(data, parser.Format(doc.FileType))
	parseSpan.End()
	if err != nil {
		return p.fail(ctx, logger, doc.ID, fmt.Errorf("parse %s: %w", doc.FileType, err))
	}

	chunks := chunker.Split(text, p.chunkSize, p.chunkOverlap)
	logger.Debug("document chunked", "chunks", len(chunks))

	// A parseable but contentless document is a success with zero chunks,
	// not a failure. It simply contributes nothing to retrieval.
	if len(chunks) == 0 {
		if err := p.store.UpdateDocumentChunkCount(ctx, doc.ID, 0); err != nil {
			return p.fail(ctx, logger, doc.ID, fmt.Errorf("update chunk count: %w", err))
		}
		if err := p.store.UpdateDocumentStatus(ctx, doc.ID, store.StatusCompleted); err != nil {
			return fmt.Errorf("mark completed: %w", err)
		}
		logger.Info("document ingested", "chunks", 0)
		return nil
	}

	// The chunk count is recorded before the index writes so a document
	// that later fails still reports how far chunking got.
	if err := p.store.UpdateDocumentChunkCount(ctx, doc.ID, len(chunks)); err != nil {
		return p.fail(ctx, logger, doc.ID, fmt.Errorf("update chunk count: %w", err))
	}

	embedCtx, embedSpan := tracer.Start(ctx, "ingest.embed",
		trace.WithAttributes(attribute.Int("chunks", len(chunks))))
	embeddings, err := embed.Batch(embedCtx, p.embedder, chunks, p.concurrency)
	embedSpan.End()
	if err != nil {
		return p.fail(ctx, logger, doc.ID, fmt.Errorf("embed chunks: %w", err))
	}

	if err := p.index.CreateCollection(ctx, collection); err != nil {
		return p.fail(ctx, logger, doc.ID, fmt.Errorf("ensure collection: %w", err))
	}

	points := make([]vector.Point, len(chunks))
	for i, content := range chunks {
		points[i] = vector.Point{
			ID:     PointID(doc.ID, i),
			Vector: embeddings[i],
			Payload: vector.Payload{
				DocumentID:      doc.ID.String(),
				KnowledgeBaseID: doc.KnowledgeBaseID.String(),
				FileName:        doc.FileName,
				ChunkIndex:      i,
				Content:         content,
			},
		}
	}
	upsertCtx, upsertSpan := tracer.Start(ctx, "ingest.upsert",
		trace.WithAttributes(attribute.Int("points", len(points))))
	err = p.index.Upsert(upsertCtx, collection, points)
	upsertSpan.End()
	if err != nil {
		return p.fail(ctx, logger, doc.ID, fmt.Errorf("upsert vectors: %w", err))
	}

	rows := make([]store.Chunk, len(chunks))
	for i, content := range chunks {
		rows[i] = store.Chunk{
			ID:            uuid.New(),
			DocumentID:    doc.ID,
			Content:       content,
			ChunkIndex:    i,
			VectorPointID: points[i].ID,
			Metadata:      store.ChunkMetadata{FileName: doc.FileName},
		}
	}
	if err := p.store.InsertChunks(ctx, rows); err != nil {
		return p.fail(ctx, logger, doc.ID, fmt.Errorf("insert chunks: %w", err))
	}

	if err := p.store.UpdateDocumentStatus(ctx, doc.ID, store.StatusCompleted); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	logger.Info("document ingested", "chunks", len(chunks))
	return nil
}

// fail marks the document failed and returns the original error. The status
// write uses a detached context so a cancelled ingestion still lands in the
// failed state rather than staying stuck in processing.
func (p *Pipeline) fail(ctx context.Context, logger log.Logger, id uuid.UUID, cause error) error {
	logger.Error("document ingestion failed", "error", cause)

	if err := p.store.UpdateDocumentStatus(context.WithoutCancel(ctx), id, store.StatusFailed); err != nil {
		logger.Warn("failed to mark document failed", "error", err)
	}
	return cause
}
