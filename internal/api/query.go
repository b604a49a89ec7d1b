package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/studybuddy/studybuddy/internal/retrieval"
)

type queryRequest struct {
	Query     string   `json:"query"`
	Limit     int      `json:"limit"`
	Threshold *float32 `json:"threshold"`
}

type queryResponse struct {
	Items   []retrieval.ContextItem `json:"items"`
	Sources []retrieval.Source      `json:"sources"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	kb, ok := s.knowledgeBaseFromRequest(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
		return
	}

	items, err := s.deps.Retrieval.Retrieve(r.Context(), kb.CollectionName, req.Query, retrieval.Options{
		Limit:     req.Limit,
		Threshold: req.Threshold,
	})
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "retrieval failed: %v", err)
		return
	}

	if items == nil {
		items = []retrieval.ContextItem{}
	}
	respondJSON(w, http.StatusOK, queryResponse{
		Items:   items,
		Sources: retrieval.BuildContext(items),
	})
}
