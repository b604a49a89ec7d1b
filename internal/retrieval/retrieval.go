// Package retrieval answers queries against a knowledge base's vector
// collection and assembles citation-ready context from the hits.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/studybuddy/studybuddy/internal/embed"
	"github.com/studybuddy/studybuddy/internal/log"
	"github.com/studybuddy/studybuddy/internal/store"
	"github.com/studybuddy/studybuddy/internal/vector"
)

// Defaults applied when a query does not specify its own.
const (
	DefaultLimit     = 5
	DefaultThreshold = float32(0.5)
)

// Searcher is the slice of the vector index retrieval needs.
type Searcher interface {
	Search(ctx context.Context, collection string, query []float32, limit int, threshold float32) ([]vector.Hit, error)
}

// DocumentGetter resolves document rows for citation enrichment.
type DocumentGetter interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*store.Document, error)
}

// ContextItem is one retrieved chunk, ordered by descending similarity.
type ContextItem struct {
	Content string         `json:"content"`
	Score   float32        `json:"score"`
	Payload vector.Payload `json:"payload"`
}

// Source is one labeled context entry ready for prompt assembly. Labels are
// "Source 1", "Source 2", ... in the same order as the retrieved items, so
// a citation by label maps back to exactly one chunk.
type Source struct {
	Label   string `json:"label"`
	Content string `json:"content"`
}

// Config holds service construction parameters.
type Config struct {
	Embedder  embed.Embedder
	Index     Searcher
	Documents DocumentGetter

	// Limit and Threshold override the package defaults applied when a
	// query does not specify its own.
	Limit     int
	Threshold *float32

	Logger log.Logger
}

// Service retrieves relevant chunks for a query.
type Service struct {
	embedder  embed.Embedder
	index     Searcher
	documents DocumentGetter
	limit     int
	threshold float32
	logger    log.Logger
}

// NewService creates a retrieval Service from cfg.
func NewService(cfg Config) (*Service, error) {
	if cfg.Embedder == nil {
		return nil, errors.New("retrieval: embedder is required")
	}
	if cfg.Index == nil {
		return nil, errors.New("retrieval: index is required")
	}
	if cfg.Documents == nil {
		return nil, errors.New("retrieval: document getter is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	threshold := DefaultThreshold
	if cfg.Threshold != nil {
		threshold = *cfg.Threshold
	}
	return &Service{
		embedder:  cfg.Embedder,
		index:     cfg.Index,
		documents: cfg.Documents,
		limit:     cfg.Limit,
		threshold: threshold,
		logger:    cfg.Logger,
	}, nil
}

// Options tunes one retrieval call. Zero values fall back to the service
// defaults; Threshold is a pointer so an explicit 0 still means "no floor".
type Options struct {
	Limit     int
	Threshold *float32
}

// Retrieve embeds the query and returns the most similar chunks from the
// collection, highest score first. An empty result is a valid answer, not
// an error.
func (s *Service) Retrieve(ctx context.Context, collection, query string, opts Options) ([]ContextItem, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("retrieval: query is empty")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = s.limit
	}
	threshold := s.threshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.index.Search(ctx, collection, queryVec, limit, threshold)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}

	items := make([]ContextItem, 0, len(hits))
	fileNames := make(map[string]string)
	for _, hit := range hits {
		payload := hit.Payload
		if payload.FileName == "" {
			payload.FileName = s.lookupFileName(ctx, fileNames, payload.DocumentID)
		}
		items = append(items, ContextItem{
			Content: payload.Content,
			Score:   hit.Score,
			Payload: payload,
		})
	}

	s.logger.Debug("retrieval complete",
		"collection", collection,
		"hits", len(items),
		"limit", limit,
		"threshold", threshold)
	return items, nil
}

// lookupFileName backfills a missing file name from the document row. Best
// effort: a deleted document or a transient store error just leaves the
// name absent.
func (s *Service) lookupFileName(ctx context.Context, cache map[string]string, documentID string) string {
	if name, ok := cache[documentID]; ok {
		return name
	}

	name := ""
	id, err := uuid.Parse(documentID)
	if err == nil {
		doc, err := s.documents.GetDocument(ctx, id)
		switch {
		case err == nil:
			name = doc.FileName
		case errors.Is(err, store.ErrNotFound):
			// Document deleted since indexing; cite without a name.
		default:
			s.logger.Warn("file name lookup failed", "document_id", documentID, "error", err)
		}
	}
	cache[documentID] = name
	return name
}

// BuildContext turns retrieved items into labeled sources for prompt
// assembly, preserving retrieval order.
func BuildContext(items []ContextItem) []Source {
	sources := make([]Source, len(items))
	for i, item := range items {
		sources[i] = Source{
			Label:   fmt.Sprintf("Source %d", i+1),
			Content: item.Content,
		}
	}
	return sources
}
