package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/studybuddy/studybuddy/internal/store"
	"github.com/studybuddy/studybuddy/internal/vector"
)

const maxRequestBodySize = 1 << 20

type createKnowledgeBaseRequest struct {
	Name        string `json:"name"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
}

type knowledgeBaseResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Subject        string    `json:"subject"`
	Description    string    `json:"description"`
	CollectionName string    `json:"collectionName"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func knowledgeBaseView(kb *store.KnowledgeBase) knowledgeBaseResponse {
	return knowledgeBaseResponse{
		ID:             kb.ID.String(),
		Name:           kb.Name,
		Subject:        kb.Subject,
		Description:    kb.Description,
		CollectionName: kb.CollectionName,
		CreatedAt:      kb.CreatedAt,
		UpdatedAt:      kb.UpdatedAt,
	}
}

func (s *Server) handleCreateKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req createKnowledgeBaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
		return
	}

	kb, err := s.deps.Store.CreateKnowledgeBase(r.Context(), store.KnowledgeBaseParams{
		OwnerID:        ownerID(r),
		Name:           req.Name,
		Subject:        req.Subject,
		Description:    req.Description,
		CollectionName: vector.NewCollectionName(),
	})
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to create knowledge base: %v", err)
		return
	}

	// The collection is provisioned eagerly so the first upload and the
	// first query hit an existing table. CreateCollection is idempotent, so
	// ingestion re-ensuring it later is harmless.
	if err := s.deps.Vectors.CreateCollection(r.Context(), kb.CollectionName); err != nil {
		s.logger.Warn("failed to provision collection, ingestion will retry",
			"collection", kb.CollectionName, "error", err)
	}

	respondJSON(w, http.StatusCreated, knowledgeBaseView(kb))
}

func (s *Server) handleListKnowledgeBases(w http.ResponseWriter, r *http.Request) {
	kbs, err := s.deps.Store.ListKnowledgeBases(r.Context(), ownerID(r))
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to list knowledge bases: %v", err)
		return
	}

	views := make([]knowledgeBaseResponse, 0, len(kbs))
	for _, kb := range kbs {
		views = append(views, knowledgeBaseView(kb))
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	kb, ok := s.knowledgeBaseFromRequest(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, knowledgeBaseView(kb))
}

func (s *Server) handleDeleteKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	kb, ok := s.knowledgeBaseFromRequest(w, r)
	if !ok {
		return
	}

	// Collect blob URLs before the cascade removes the document rows.
	docs, err := s.deps.Store.ListDocuments(r.Context(), kb.ID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
		return
	}

	if err := s.deps.Store.DeleteKnowledgeBase(r.Context(), kb.ID, kb.OwnerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "knowledge base not found")
			return
		}
		httpError(w, http.StatusInternalServerError, "api_error", "failed to delete knowledge base: %v", err)
		return
	}

	// Vector and blob cleanup is best effort once the rows are gone; an
	// orphaned collection is unreachable because collection names are never
	// reused.
	s.deps.Vectors.DropCollection(r.Context(), kb.CollectionName)
	for _, doc := range docs {
		if doc.FileURL == "" {
			continue
		}
		if err := s.deps.Blobs.Remove(r.Context(), doc.FileURL); err != nil {
			s.logger.Warn("failed to remove blob", "url", doc.FileURL, "error", err)
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// knowledgeBaseFromRequest resolves the {kbID} route param to a knowledge
// base owned by the caller, writing the error response itself on failure.
func (s *Server) knowledgeBaseFromRequest(w http.ResponseWriter, r *http.Request) (*store.KnowledgeBase, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "kbID"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid knowledge base id")
		return nil, false
	}

	kb, err := s.deps.Store.GetKnowledgeBase(r.Context(), id, ownerID(r))
	if errors.Is(err, store.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "knowledge base not found")
		return nil, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to get knowledge base: %v", err)
		return nil, false
	}
	return kb, true
}
