// Package api exposes the HTTP surface: knowledge base management, document
// upload, and retrieval queries. Handlers stay thin; all pipeline behavior
// lives in the internal packages behind the Deps interfaces.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/studybuddy/studybuddy/internal/log"
	"github.com/studybuddy/studybuddy/internal/retrieval"
	"github.com/studybuddy/studybuddy/internal/store"
)

// HTTP server timeouts.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 120 * time.Second
)

const defaultMaxUploadSize = 32 << 20

// ownerHeader carries the caller identity. The service trusts its deployment
// edge for authentication; absent the header every request maps to the
// single local owner.
const (
	ownerHeader  = "X-Owner-ID"
	defaultOwner = "local"
)

// Repository is the slice of the relational store the API needs.
type Repository interface {
	CreateKnowledgeBase(ctx context.Context, params store.KnowledgeBaseParams) (*store.KnowledgeBase, error)
	ListKnowledgeBases(ctx context.Context, ownerID string) ([]*store.KnowledgeBase, error)
	GetKnowledgeBase(ctx context.Context, id uuid.UUID, ownerID string) (*store.KnowledgeBase, error)
	DeleteKnowledgeBase(ctx context.Context, id uuid.UUID, ownerID string) error

	CreateDocument(ctx context.Context, params store.DocumentParams) (*store.Document, error)
	GetDocument(ctx context.Context, id uuid.UUID) (*store.Document, error)
	ListDocuments(ctx context.Context, knowledgeBaseID uuid.UUID) ([]*store.Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error
}

// Ingestor processes an uploaded document end to end.
type Ingestor interface {
	Process(ctx context.Context, doc *store.Document, collection string, data []byte) error
}

// Retriever answers queries against a collection.
type Retriever interface {
	Retrieve(ctx context.Context, collection, query string, opts retrieval.Options) ([]retrieval.ContextItem, error)
}

// VectorAdmin covers the vector index operations the API drives directly.
type VectorAdmin interface {
	CreateCollection(ctx context.Context, name string) error
	DropCollection(ctx context.Context, name string)
	DeleteByDocument(ctx context.Context, collection, documentID string) error
}

// BlobStore archives raw uploads.
type BlobStore interface {
	Put(ctx context.Context, fileName string, data []byte) (string, error)
	Remove(ctx context.Context, blobURL string) error
}

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps wires the server to the rest of the system.
type Deps struct {
	Store     Repository
	Ingest    Ingestor
	Retrieval Retriever
	Vectors   VectorAdmin
	Blobs     BlobStore

	// DB, when set, backs the readiness probe.
	DB Pinger

	// MaxUploadSize bounds document upload bodies. Defaults to 32MB.
	MaxUploadSize int64

	Logger log.Logger
}

// Server is the HTTP server. Uploads are acknowledged immediately and
// ingested on background goroutines; Shutdown waits for those to drain.
type Server struct {
	deps   Deps
	srv    *http.Server
	logger log.Logger

	ingestWG sync.WaitGroup
}

// NewServer builds the server and its routes.
func NewServer(addr string, deps Deps) *Server {
	if deps.MaxUploadSize <= 0 {
		deps.MaxUploadSize = defaultMaxUploadSize
	}
	if deps.Logger == nil {
		deps.Logger = log.NewNop()
	}

	s := &Server{deps: deps, logger: deps.Logger}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s
}

// Handler returns the route tree, exposed for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api/knowledge-bases", func(r chi.Router) {
		r.Post("/", s.handleCreateKnowledgeBase)
		r.Get("/", s.handleListKnowledgeBases)

		r.Route("/{kbID}", func(r chi.Router) {
			r.Get("/", s.handleGetKnowledgeBase)
			r.Delete("/", s.handleDeleteKnowledgeBase)

			r.Post("/documents", s.handleUploadDocument)
			r.Get("/documents", s.handleListDocuments)
			r.Delete("/documents/{docID}", s.handleDeleteDocument)

			r.Post("/query", s.handleQuery)
		})
	})

	// Server spans resolve through the global TracerProvider: no-ops until
	// tracing is enabled at startup.
	return otelhttp.NewHandler(r, "studybuddy.http")
}

// ListenAndServe runs the server until the listener fails or Shutdown is
// called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight requests and
// background ingestions to finish, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.ingestWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.Ping(ctx); err != nil {
			s.logger.Warn("readiness probe failed", "error", err)
			httpError(w, http.StatusServiceUnavailable, "unavailable", "database unavailable")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func ownerID(r *http.Request) string {
	if owner := r.Header.Get(ownerHeader); owner != "" {
		return owner
	}
	return defaultOwner
}
