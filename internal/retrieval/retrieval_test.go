package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/studybuddy/studybuddy/internal/store"
	"github.com/studybuddy/studybuddy/internal/vector"
)

type stubEmbedder struct {
	fail bool
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.fail {
		return nil, errors.New("embedder down")
	}
	return []float32{float32(len(text)), 0, 0}, nil
}

func (s *stubEmbedder) Dimension() int { return 3 }

type stubIndex struct {
	hits []vector.Hit
	err  error

	gotCollection string
	gotLimit      int
	gotThreshold  float32
}

func (s *stubIndex) Search(_ context.Context, collection string, _ []float32, limit int, threshold float32) ([]vector.Hit, error) {
	s.gotCollection = collection
	s.gotLimit = limit
	s.gotThreshold = threshold
	return s.hits, s.err
}

type stubDocuments struct {
	docs  map[uuid.UUID]*store.Document
	err   error
	calls int
}

func (s *stubDocuments) GetDocument(_ context.Context, id uuid.UUID) (*store.Document, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	doc, ok := s.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return doc, nil
}

func newTestService(t *testing.T, index *stubIndex, docs *stubDocuments) *Service {
	t.Helper()
	if docs == nil {
		docs = &stubDocuments{}
	}
	s, err := NewService(Config{
		Embedder:  &stubEmbedder{},
		Index:     index,
		Documents: docs,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return s
}

func hit(docID uuid.UUID, idx int, score float32, fileName string) vector.Hit {
	return vector.Hit{
		ID:    uuid.New(),
		Score: score,
		Payload: vector.Payload{
			DocumentID:      docID.String(),
			KnowledgeBaseID: uuid.NewString(),
			FileName:        fileName,
			ChunkIndex:      idx,
			Content:         "chunk content",
		},
	}
}

func TestRetrieve(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults apply when options are zero", func(t *testing.T) {
		index := &stubIndex{}
		s := newTestService(t, index, nil)

		items, err := s.Retrieve(ctx, "kb_abc", "what is photosynthesis", Options{})
		if err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
		if len(items) != 0 {
			t.Errorf("got %d items from an empty index", len(items))
		}
		if index.gotCollection != "kb_abc" {
			t.Errorf("collection = %q", index.gotCollection)
		}
		if index.gotLimit != DefaultLimit {
			t.Errorf("limit = %d, want %d", index.gotLimit, DefaultLimit)
		}
		if index.gotThreshold != DefaultThreshold {
			t.Errorf("threshold = %v, want %v", index.gotThreshold, DefaultThreshold)
		}
	})

	t.Run("configured defaults override package defaults", func(t *testing.T) {
		index := &stubIndex{}
		threshold := float32(0.7)
		s, err := NewService(Config{
			Embedder:  &stubEmbedder{},
			Index:     index,
			Documents: &stubDocuments{},
			Limit:     3,
			Threshold: &threshold,
		})
		if err != nil {
			t.Fatalf("NewService: %v", err)
		}

		if _, err := s.Retrieve(ctx, "kb_abc", "query", Options{}); err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
		if index.gotLimit != 3 {
			t.Errorf("limit = %d, want 3", index.gotLimit)
		}
		if index.gotThreshold != threshold {
			t.Errorf("threshold = %v, want %v", index.gotThreshold, threshold)
		}
	})

	t.Run("explicit zero threshold is honored", func(t *testing.T) {
		index := &stubIndex{}
		s := newTestService(t, index, nil)

		zero := float32(0)
		if _, err := s.Retrieve(ctx, "kb_abc", "query", Options{Threshold: &zero}); err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
		if index.gotThreshold != 0 {
			t.Errorf("threshold = %v, want 0", index.gotThreshold)
		}
	})

	t.Run("empty query is rejected", func(t *testing.T) {
		s := newTestService(t, &stubIndex{}, nil)
		if _, err := s.Retrieve(ctx, "kb_abc", "   ", Options{}); err == nil {
			t.Error("Retrieve accepted a blank query")
		}
	})

	t.Run("hit order is preserved", func(t *testing.T) {
		docID := uuid.New()
		index := &stubIndex{hits: []vector.Hit{
			hit(docID, 0, 0.91, "a.pdf"),
			hit(docID, 3, 0.85, "a.pdf"),
			hit(docID, 1, 0.62, "a.pdf"),
		}}
		s := newTestService(t, index, nil)

		items, err := s.Retrieve(ctx, "kb_abc", "query", Options{})
		if err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
		if len(items) != 3 {
			t.Fatalf("got %d items, want 3", len(items))
		}
		for i := 1; i < len(items); i++ {
			if items[i].Score > items[i-1].Score {
				t.Errorf("items out of score order at %d", i)
			}
		}
		if items[0].Content != "chunk content" {
			t.Errorf("content = %q", items[0].Content)
		}
	})

	t.Run("missing file name is backfilled from the document row", func(t *testing.T) {
		docID := uuid.New()
		index := &stubIndex{hits: []vector.Hit{
			hit(docID, 0, 0.9, ""),
			hit(docID, 1, 0.8, ""),
		}}
		docs := &stubDocuments{docs: map[uuid.UUID]*store.Document{
			docID: {ID: docID, FileName: "biology.pdf"},
		}}
		s := newTestService(t, index, docs)

		items, err := s.Retrieve(ctx, "kb_abc", "query", Options{})
		if err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
		for i, item := range items {
			if item.Payload.FileName != "biology.pdf" {
				t.Errorf("item %d file name = %q", i, item.Payload.FileName)
			}
		}
		if docs.calls != 1 {
			t.Errorf("document looked up %d times, want 1 (cached)", docs.calls)
		}
	})

	t.Run("deleted document leaves the file name absent", func(t *testing.T) {
		index := &stubIndex{hits: []vector.Hit{hit(uuid.New(), 0, 0.9, "")}}
		s := newTestService(t, index, &stubDocuments{})

		items, err := s.Retrieve(ctx, "kb_abc", "query", Options{})
		if err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
		if items[0].Payload.FileName != "" {
			t.Errorf("file name = %q, want empty", items[0].Payload.FileName)
		}
	})

	t.Run("lookup errors do not fail retrieval", func(t *testing.T) {
		index := &stubIndex{hits: []vector.Hit{hit(uuid.New(), 0, 0.9, "")}}
		docs := &stubDocuments{err: errors.New("store offline")}
		s := newTestService(t, index, docs)

		items, err := s.Retrieve(ctx, "kb_abc", "query", Options{})
		if err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
		if len(items) != 1 {
			t.Errorf("got %d items, want 1", len(items))
		}
	})

	t.Run("search errors propagate", func(t *testing.T) {
		index := &stubIndex{err: errors.New("index offline")}
		s := newTestService(t, index, nil)

		if _, err := s.Retrieve(ctx, "kb_abc", "query", Options{}); err == nil {
			t.Error("Retrieve swallowed the index error")
		}
	})

	t.Run("embedding errors propagate", func(t *testing.T) {
		s, err := NewService(Config{
			Embedder:  &stubEmbedder{fail: true},
			Index:     &stubIndex{},
			Documents: &stubDocuments{},
		})
		if err != nil {
			t.Fatalf("NewService: %v", err)
		}
		if _, err := s.Retrieve(ctx, "kb_abc", "query", Options{}); err == nil {
			t.Error("Retrieve swallowed the embedder error")
		}
	})
}

func TestBuildContext(t *testing.T) {
	items := []ContextItem{
		{Content: "alpha"},
		{Content: "beta"},
		{Content: "gamma"},
	}
	sources := BuildContext(items)
	if len(sources) != 3 {
		t.Fatalf("got %d sources, want 3", len(sources))
	}
	want := []Source{
		{Label: "Source 1", Content: "alpha"},
		{Label: "Source 2", Content: "beta"},
		{Label: "Source 3", Content: "gamma"},
	}
	for i := range want {
		if sources[i] != want[i] {
			t.Errorf("source %d = %+v, want %+v", i, sources[i], want[i])
		}
	}

	if got := BuildContext(nil); len(got) != 0 {
		t.Errorf("BuildContext(nil) = %v, want empty", got)
	}
}
