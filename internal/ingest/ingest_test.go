package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/studybuddy/studybuddy/internal/store"
	"github.com/studybuddy/studybuddy/internal/vector"
)

// recorder implements the pipeline's dependencies and keeps an ordered log
// of every call so tests can assert sequencing.
type recorder struct {
	mu     sync.Mutex
	events []string

	statuses    []store.Status
	chunkCounts []int
	chunkRows   []store.Chunk
	points      []vector.Point
	collections []string

	failStatus     store.Status // marking this status fails
	failChunkCount bool
	failInsert     bool
	failCreate     bool
	failUpsert     bool
}

func (r *recorder) log(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) UpdateDocumentStatus(_ context.Context, _ uuid.UUID, status store.Status) error {
	r.log("status:" + string(status))
	if r.failStatus != "" && status == r.failStatus {
		return errors.New("status write refused")
	}
	r.mu.Lock()
	r.statuses = append(r.statuses, status)
	r.mu.Unlock()
	return nil
}

func (r *recorder) UpdateDocumentChunkCount(_ context.Context, _ uuid.UUID, count int) error {
	r.log("chunk_count")
	if r.failChunkCount {
		return errors.New("chunk count write refused")
	}
	r.mu.Lock()
	r.chunkCounts = append(r.chunkCounts, count)
	r.mu.Unlock()
	return nil
}

func (r *recorder) InsertChunks(_ context.Context, chunks []store.Chunk) error {
	r.log("insert_chunks")
	if r.failInsert {
		return errors.New("insert refused")
	}
	r.mu.Lock()
	r.chunkRows = append(r.chunkRows, chunks...)
	r.mu.Unlock()
	return nil
}

func (r *recorder) CreateCollection(_ context.Context, name string) error {
	r.log("create_collection")
	if r.failCreate {
		return errors.New("create refused")
	}
	r.mu.Lock()
	r.collections = append(r.collections, name)
	r.mu.Unlock()
	return nil
}

func (r *recorder) Upsert(_ context.Context, _ string, points []vector.Point) error {
	r.log("upsert")
	if r.failUpsert {
		return errors.New("upsert refused")
	}
	r.mu.Lock()
	r.points = append(r.points, points...)
	r.mu.Unlock()
	return nil
}

type stubEmbedder struct {
	dim  int
	fail bool
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.fail {
		return nil, errors.New("embedder down")
	}
	vec := make([]float32, s.dim)
	vec[0] = float32(len(text))
	return vec, nil
}

func (s *stubEmbedder) Dimension() int { return s.dim }

func newTestPipeline(t *testing.T, rec *recorder, emb *stubEmbedder) *Pipeline {
	t.Helper()
	p, err := NewPipeline(Config{
		Store:        rec,
		Embedder:     emb,
		Index:        rec,
		ChunkSize:    100,
		ChunkOverlap: 10,
		Concurrency:  2,
	})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}

func testDocument() *store.Document {
	return &store.Document{
		ID:              uuid.New(),
		KnowledgeBaseID: uuid.New(),
		FileName:        "notes.txt",
		FileType:        store.FileTypeTXT,
	}
}

func TestProcess(t *testing.T) {
	ctx := context.Background()

	t.Run("successful ingestion", func(t *testing.T) {
		rec := &recorder{}
		p := newTestPipeline(t, rec, &stubEmbedder{dim: 4})
		doc := testDocument()
		text := strings.Repeat("study material ", 30) // ~450 bytes, 5 chunks at 100/10

		if err := p.Process(ctx, doc, "kb_test", []byte(text)); err != nil {
			t.Fatalf("Process: %v", err)
		}

		wantStatuses := []store.Status{store.StatusProcessing, store.StatusCompleted}
		if len(rec.statuses) != 2 || rec.statuses[0] != wantStatuses[0] || rec.statuses[1] != wantStatuses[1] {
			t.Errorf("statuses = %v, want %v", rec.statuses, wantStatuses)
		}

		if len(rec.chunkCounts) != 1 || rec.chunkCounts[0] != len(rec.points) {
			t.Errorf("chunk count %v does not match %d upserted points", rec.chunkCounts, len(rec.points))
		}
		if len(rec.points) == 0 {
			t.Fatal("no points upserted")
		}
		if len(rec.chunkRows) != len(rec.points) {
			t.Errorf("%d chunk rows for %d points", len(rec.chunkRows), len(rec.points))
		}
		if len(rec.collections) != 1 || rec.collections[0] != "kb_test" {
			t.Errorf("collections = %v, want [kb_test]", rec.collections)
		}

		for i, point := range rec.points {
			if point.Payload.ChunkIndex != i {
				t.Errorf("point %d has chunk index %d", i, point.Payload.ChunkIndex)
			}
			if point.Payload.DocumentID != doc.ID.String() {
				t.Errorf("point %d has document id %q", i, point.Payload.DocumentID)
			}
			if point.Payload.FileName != doc.FileName {
				t.Errorf("point %d has file name %q", i, point.Payload.FileName)
			}
			if rec.chunkRows[i].VectorPointID != point.ID {
				t.Errorf("chunk row %d does not reference its point id", i)
			}
			if rec.chunkRows[i].Content != point.Payload.Content {
				t.Errorf("chunk row %d content differs from payload", i)
			}
		}
	})

	t.Run("multibyte document completes with valid UTF-8 chunks", func(t *testing.T) {
		rec := &recorder{}
		p := newTestPipeline(t, rec, &stubEmbedder{dim: 4})
		// 300 characters, ~900 bytes; windows are character-based so no
		// chunk may end mid-rune.
		text := strings.Repeat("光合成は葉緑体で起きる。", 25)

		if err := p.Process(ctx, testDocument(), "kb_test", []byte(text)); err != nil {
			t.Fatalf("Process: %v", err)
		}
		if rec.statuses[len(rec.statuses)-1] != store.StatusCompleted {
			t.Errorf("final status = %v, want completed", rec.statuses)
		}
		if len(rec.chunkRows) == 0 {
			t.Fatal("no chunk rows written")
		}
		for i, row := range rec.chunkRows {
			if !utf8.ValidString(row.Content) {
				t.Errorf("chunk row %d is not valid UTF-8", i)
			}
		}
		for i, point := range rec.points {
			if !utf8.ValidString(point.Payload.Content) {
				t.Errorf("point %d payload is not valid UTF-8", i)
			}
		}
	})

	t.Run("chunk count is recorded before the index write", func(t *testing.T) {
		rec := &recorder{}
		p := newTestPipeline(t, rec, &stubEmbedder{dim: 4})

		if err := p.Process(ctx, testDocument(), "kb_test", []byte(strings.Repeat("x", 300))); err != nil {
			t.Fatalf("Process: %v", err)
		}

		countAt, upsertAt, insertAt := -1, -1, -1
		for i, e := range rec.events {
			switch e {
			case "chunk_count":
				countAt = i
			case "upsert":
				upsertAt = i
			case "insert_chunks":
				insertAt = i
			}
		}
		if countAt == -1 || upsertAt == -1 || insertAt == -1 {
			t.Fatalf("missing events in %v", rec.events)
		}
		if countAt > upsertAt {
			t.Errorf("chunk count recorded after upsert: %v", rec.events)
		}
		if insertAt < upsertAt {
			t.Errorf("chunk rows inserted before upsert: %v", rec.events)
		}
	})

	t.Run("empty document completes with zero chunks", func(t *testing.T) {
		rec := &recorder{}
		p := newTestPipeline(t, rec, &stubEmbedder{dim: 4})

		if err := p.Process(ctx, testDocument(), "kb_test", nil); err != nil {
			t.Fatalf("Process: %v", err)
		}
		if len(rec.chunkCounts) != 1 || rec.chunkCounts[0] != 0 {
			t.Errorf("chunk counts = %v, want [0]", rec.chunkCounts)
		}
		if rec.statuses[len(rec.statuses)-1] != store.StatusCompleted {
			t.Errorf("final status = %v, want completed", rec.statuses)
		}
		if len(rec.points) != 0 || len(rec.chunkRows) != 0 {
			t.Error("empty document produced index or chunk writes")
		}
	})

	t.Run("parse failure marks the document failed", func(t *testing.T) {
		rec := &recorder{}
		p := newTestPipeline(t, rec, &stubEmbedder{dim: 4})
		doc := testDocument()
		doc.FileType = store.FileTypeDOCX

		err := p.Process(ctx, doc, "kb_test", []byte("not a zip archive"))
		if err == nil {
			t.Fatal("Process succeeded on a corrupt document")
		}
		if rec.statuses[len(rec.statuses)-1] != store.StatusFailed {
			t.Errorf("final status = %v, want failed", rec.statuses)
		}
		if len(rec.points) != 0 {
			t.Error("corrupt document reached the index")
		}
	})

	t.Run("embedding failure marks the document failed", func(t *testing.T) {
		rec := &recorder{}
		p := newTestPipeline(t, rec, &stubEmbedder{dim: 4, fail: true})

		err := p.Process(ctx, testDocument(), "kb_test", []byte(strings.Repeat("x", 300)))
		if err == nil {
			t.Fatal("Process succeeded with a failing embedder")
		}
		if rec.statuses[len(rec.statuses)-1] != store.StatusFailed {
			t.Errorf("final status = %v, want failed", rec.statuses)
		}
		if len(rec.points) != 0 || len(rec.chunkRows) != 0 {
			t.Error("failed embedding still produced writes")
		}
	})

	t.Run("upsert failure marks the document failed before chunk rows exist", func(t *testing.T) {
		rec := &recorder{failUpsert: true}
		p := newTestPipeline(t, rec, &stubEmbedder{dim: 4})

		err := p.Process(ctx, testDocument(), "kb_test", []byte(strings.Repeat("x", 300)))
		if err == nil {
			t.Fatal("Process succeeded with a failing index")
		}
		if rec.statuses[len(rec.statuses)-1] != store.StatusFailed {
			t.Errorf("final status = %v, want failed", rec.statuses)
		}
		if len(rec.chunkRows) != 0 {
			t.Error("chunk rows written despite upsert failure")
		}
	})

	t.Run("cancelled ingestion still lands in failed", func(t *testing.T) {
		rec := &recorder{}
		p := newTestPipeline(t, rec, &stubEmbedder{dim: 4})

		cancelCtx, cancel := context.WithCancel(ctx)
		cancel()
		err := p.Process(cancelCtx, testDocument(), "kb_test", []byte(strings.Repeat("x", 300)))
		if err == nil {
			t.Fatal("Process succeeded with a cancelled context")
		}
		// The status recorder ignores context, mirroring the detached
		// write the pipeline performs for the failure marker.
		if rec.statuses[len(rec.statuses)-1] != store.StatusFailed {
			t.Errorf("final status = %v, want failed", rec.statuses)
		}
	})
}

func TestPointID(t *testing.T) {
	docID := uuid.New()

	a := PointID(docID, 0)
	b := PointID(docID, 0)
	if a != b {
		t.Error("same document and index produced different point ids")
	}

	seen := map[uuid.UUID]bool{a: true}
	for i := 1; i < 100; i++ {
		id := PointID(docID, i)
		if seen[id] {
			t.Fatalf("duplicate point id at index %d", i)
		}
		seen[id] = true
	}

	if PointID(uuid.New(), 0) == a {
		t.Error("different documents produced the same point id")
	}
}

func TestNewPipelineValidation(t *testing.T) {
	rec := &recorder{}
	emb := &stubEmbedder{dim: 4}

	cases := []struct {
		name string
		cfg  Config
	}{
		{"missing store", Config{Embedder: emb, Index: rec}},
		{"missing embedder", Config{Store: rec, Index: rec}},
		{"missing index", Config{Store: rec, Embedder: emb}},
		{"negative chunk size", Config{Store: rec, Embedder: emb, Index: rec, ChunkSize: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewPipeline(tc.cfg); err == nil {
				t.Error("NewPipeline accepted invalid config")
			}
		})
	}
}
