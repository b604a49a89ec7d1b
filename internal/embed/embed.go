// Package embed turns text into fixed-length vectors via the Gemini
// embedding API.
//
// The package exposes a small Embedder interface so the ingestion pipeline
// and retrieval service can be tested without network access, plus Batch,
// which fans per-text calls out concurrently under a bounded limit.
package embed

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Error is the embedding failure type. It wraps the remote failure so
// callers can classify ingestion failures without string matching.
// The failure may be transient; retry policy is the caller's concern.
type Error struct {
	Op  string // "embed" or "batch"
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("embedding %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Embedder generates a vector embedding for a single text.
//
// Implementations must return vectors of a fixed dimensionality matching
// the vector index configuration; a mismatch is a deployment error, not a
// per-request condition.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the fixed length of vectors this embedder produces.
	Dimension() int
}

// Batch embeds texts concurrently and returns one vector per input, order
// preserved. At most concurrency calls run at once; concurrency <= 0 means
// one in-flight call per input text.
//
// Any single failure aborts the whole batch; a partial result would break
// the positional alignment between chunks and their vector points.
func Batch(ctx context.Context, e Embedder, texts []string, concurrency int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if concurrency <= 0 || concurrency > len(texts) {
		concurrency = len(texts)
	}

	vectors := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			vectors[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, &Error{Op: "batch", Err: err}
	}
	return vectors, nil
}
