// Package store persists knowledge bases, documents, and chunks in
// PostgreSQL. It is the system of record: a document only counts as "ready"
// when its row says so, regardless of what the vector index holds.
package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a referenced knowledge base or document does
// not exist or is not owned by the caller. The two cases are
// indistinguishable so resource ids of other owners do not leak.
var ErrNotFound = errors.New("not found")

// FileType is the declared upload format.
type FileType string

// Supported file types.
const (
	FileTypePDF  FileType = "pdf"
	FileTypeDOCX FileType = "docx"
	FileTypePPT  FileType = "ppt"
	FileTypeTXT  FileType = "txt"
)

// Valid reports whether t is a supported file type.
func (t FileType) Valid() bool {
	switch t {
	case FileTypePDF, FileTypeDOCX, FileTypePPT, FileTypeTXT:
		return true
	}
	return false
}

// Status is a document's processing state.
//
// State machine: pending → processing → completed | failed. Failed is
// terminal; the recovery path is re-upload.
type Status string

// Processing states.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// KnowledgeBase is an isolated container of documents for one study
// subject. CollectionName identifies its vector collection; it is assigned
// exactly once at creation and never changes.
type KnowledgeBase struct {
	ID             uuid.UUID
	OwnerID        string
	Name           string
	Subject        string
	Description    string
	CollectionName string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Document is one uploaded file within a knowledge base. Mutated only by
// the ingestion pipeline after creation.
type Document struct {
	ID               uuid.UUID
	KnowledgeBaseID  uuid.UUID
	FileName         string
	FileType         FileType
	FileURL          string
	FileSize         int64
	ProcessingStatus Status
	ChunkCount       int
	CreatedAt        time.Time
}

// ChunkMetadata is the free-form metadata attached to a chunk, constrained
// to known optional fields so retrieval-side enrichment stays type-safe.
type ChunkMetadata struct {
	Page     *int   `json:"page,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

// Chunk is one bounded slice of a document's extracted text. Chunk indices
// are contiguous from 0 and match chunk order in the source text. Chunks
// are written once at the end of successful embedding and never mutated.
type Chunk struct {
	ID            uuid.UUID
	DocumentID    uuid.UUID
	Content       string
	ChunkIndex    int
	VectorPointID uuid.UUID
	Metadata      ChunkMetadata
	CreatedAt     time.Time
}
