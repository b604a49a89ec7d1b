// Package vector provides the similarity-search index for knowledge bases.
//
// Each knowledge base owns one collection, physically a table in the
// "vectors" schema of the same PostgreSQL cluster that holds the relational
// data. The adapter still treats the index as an independent store: no
// operation here shares a transaction with the relational tables, so the
// consistency model (status rows gate visibility, orphan vectors are a
// tolerated low-severity defect) is identical to running against a remote
// vector database.
package vector

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// IndexError reports a vector index failure: the store is unavailable,
// misconfigured, or rejected an operation. Inside ingestion it surfaces as
// a failed document; in retrieval it is a hard failure.
type IndexError struct {
	Op         string
	Collection string
	Err        error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("vector index %s %q: %v", e.Op, e.Collection, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// Payload is the denormalized metadata stored with every point. It carries
// enough to reconstruct a citation without a relational join; FileName may
// be empty when the point was written before its chunk row (see the
// ingestion ordering contract), in which case retrieval backfills it from
// the documents table.
type Payload struct {
	DocumentID      string `json:"documentId"`
	KnowledgeBaseID string `json:"knowledgeBaseId"`
	FileName        string `json:"fileName,omitempty"`
	ChunkIndex      int    `json:"chunkIndex"`
	Content         string `json:"content"`
}

// Point is one vector entry keyed by a stable id. Upserting a point with an
// existing id overwrites it, which makes re-ingestion idempotent.
type Point struct {
	ID      uuid.UUID
	Vector  []float32
	Payload Payload
}

// Hit is one search result.
type Hit struct {
	ID      uuid.UUID
	Score   float32 // cosine similarity, higher is closer
	Payload Payload
}

// collectionNamePattern constrains collection names to safe SQL identifier
// characters. Names are caller-chosen opaque strings assigned once at
// knowledge-base creation; anything else is rejected before it reaches SQL.
var collectionNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// ValidCollectionName reports whether name can be used as a collection
// identifier.
func ValidCollectionName(name string) bool {
	return collectionNamePattern.MatchString(name)
}

// NewCollectionName generates a fresh collection identifier. The identifier
// is globally unique and assigned to a knowledge base exactly once.
func NewCollectionName() string {
	u := uuid.New()
	return fmt.Sprintf("kb_%x", u[:])
}
