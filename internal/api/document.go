package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/studybuddy/studybuddy/internal/store"
)

const ingestTimeout = 10 * time.Minute

type documentResponse struct {
	ID               string    `json:"id"`
	KnowledgeBaseID  string    `json:"knowledgeBaseId"`
	FileName         string    `json:"fileName"`
	FileType         string    `json:"fileType"`
	FileSize         int64     `json:"fileSize"`
	ProcessingStatus string    `json:"processingStatus"`
	ChunkCount       int       `json:"chunkCount"`
	CreatedAt        time.Time `json:"createdAt"`
}

func documentView(doc *store.Document) documentResponse {
	return documentResponse{
		ID:               doc.ID.String(),
		KnowledgeBaseID:  doc.KnowledgeBaseID.String(),
		FileName:         doc.FileName,
		FileType:         string(doc.FileType),
		FileSize:         doc.FileSize,
		ProcessingStatus: string(doc.ProcessingStatus),
		ChunkCount:       doc.ChunkCount,
		CreatedAt:        doc.CreatedAt,
	}
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	kb, ok := s.knowledgeBaseFromRequest(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "file field is required: %v", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to read upload: %v", err)
		return
	}

	fileType := store.FileType(r.FormValue("file_type"))
	if fileType == "" {
		fileType = fileTypeFromName(header.Filename)
	}
	if !fileType.Valid() {
		httpError(w, http.StatusBadRequest, "invalid_request_error",
			"unsupported file type for %q, expected pdf, docx, ppt, or txt", header.Filename)
		return
	}

	fileURL, err := s.deps.Blobs.Put(r.Context(), header.Filename, data)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to store upload: %v", err)
		return
	}

	doc, err := s.deps.Store.CreateDocument(r.Context(), store.DocumentParams{
		KnowledgeBaseID: kb.ID,
		FileName:        header.Filename,
		FileType:        fileType,
		FileURL:         fileURL,
		FileSize:        int64(len(data)),
	})
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to create document: %v", err)
		return
	}

	// Ingestion runs detached from the request: the response acknowledges
	// receipt and the client polls processingStatus for the outcome.
	collection := kb.CollectionName
	s.ingestWG.Add(1)
	go func() {
		defer s.ingestWG.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), ingestTimeout)
		defer cancel()
		// Process marks the document failed on error and logs the cause.
		_ = s.deps.Ingest.Process(ctx, doc, collection, data)
	}()

	respondJSON(w, http.StatusAccepted, documentView(doc))
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	kb, ok := s.knowledgeBaseFromRequest(w, r)
	if !ok {
		return
	}

	docs, err := s.deps.Store.ListDocuments(r.Context(), kb.ID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
		return
	}

	views := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		views = append(views, documentView(doc))
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	kb, ok := s.knowledgeBaseFromRequest(w, r)
	if !ok {
		return
	}

	docID, err := uuid.Parse(chi.URLParam(r, "docID"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid document id")
		return
	}

	doc, err := s.deps.Store.GetDocument(r.Context(), docID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && doc.KnowledgeBaseID != kb.ID) {
		httpError(w, http.StatusNotFound, "not_found", "document not found")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to get document: %v", err)
		return
	}

	// Vectors go first so a failure leaves the document visible and the
	// delete retryable, never a completed document with dangling points.
	if err := s.deps.Vectors.DeleteByDocument(r.Context(), kb.CollectionName, doc.ID.String()); err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to delete vectors: %v", err)
		return
	}

	if err := s.deps.Store.DeleteDocument(r.Context(), doc.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		httpError(w, http.StatusInternalServerError, "api_error", "failed to delete document: %v", err)
		return
	}

	if doc.FileURL != "" {
		if err := s.deps.Blobs.Remove(r.Context(), doc.FileURL); err != nil {
			s.logger.Warn("failed to remove blob", "url", doc.FileURL, "error", err)
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func fileTypeFromName(name string) store.FileType {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return store.FileTypePDF
	case ".docx":
		return store.FileTypeDOCX
	case ".pptx", ".ppt":
		return store.FileTypePPT
	case ".txt", ".md":
		return store.FileTypeTXT
	default:
		return ""
	}
}
