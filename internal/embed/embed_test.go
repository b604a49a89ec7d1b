package embed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

// mockEmbedder returns a deterministic vector derived from the text length
// and tracks concurrency.
type mockEmbedder struct {
	dim     int
	embedFn func(ctx context.Context, text string) ([]float32, error)

	mu         sync.Mutex
	inFlight   int
	maxInUse   int
	totalCalls atomic.Int64
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.totalCalls.Add(1)
	m.mu.Lock()
	m.inFlight++
	if m.inFlight > m.maxInUse {
		m.maxInUse = m.inFlight
	}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if m.embedFn != nil {
		return m.embedFn(ctx, text)
	}
	vec := make([]float32, m.dim)
	vec[0] = float32(len(text))
	return vec, nil
}

func (m *mockEmbedder) Dimension() int { return m.dim }

func TestBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("empty input yields no vectors", func(t *testing.T) {
		got, err := Batch(ctx, &mockEmbedder{dim: 4}, nil, 2)
		if err != nil {
			t.Fatalf("Batch returned error: %v", err)
		}
		if got != nil {
			t.Errorf("got %v, want nil", got)
		}
	})

	t.Run("order is preserved", func(t *testing.T) {
		texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
		got, err := Batch(ctx, &mockEmbedder{dim: 4}, texts, 2)
		if err != nil {
			t.Fatalf("Batch returned error: %v", err)
		}
		if len(got) != len(texts) {
			t.Fatalf("got %d vectors, want %d", len(got), len(texts))
		}
		for i, text := range texts {
			if got[i][0] != float32(len(text)) {
				t.Errorf("vector %d = %v, not derived from %q", i, got[i][0], text)
			}
		}
	})

	t.Run("respects concurrency bound", func(t *testing.T) {
		texts := make([]string, 50)
		for i := range texts {
			texts[i] = fmt.Sprintf("text %d", i)
		}
		release := make(chan struct{})
		m := &mockEmbedder{dim: 1}
		m.embedFn = func(ctx context.Context, _ string) ([]float32, error) {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return []float32{1}, nil
		}

		done := make(chan error, 1)
		go func() {
			_, err := Batch(ctx, m, texts, 3)
			done <- err
		}()
		close(release)
		if err := <-done; err != nil {
			t.Fatalf("Batch returned error: %v", err)
		}

		m.mu.Lock()
		maxInUse := m.maxInUse
		m.mu.Unlock()
		if maxInUse > 3 {
			t.Errorf("observed %d concurrent calls, bound is 3", maxInUse)
		}
	})

	t.Run("single failure aborts the whole batch", func(t *testing.T) {
		boom := errors.New("quota exceeded")
		m := &mockEmbedder{dim: 1}
		m.embedFn = func(_ context.Context, text string) ([]float32, error) {
			if text == "bad" {
				return nil, boom
			}
			return []float32{1}, nil
		}

		got, err := Batch(ctx, m, []string{"ok", "bad", "ok"}, 1)
		if got != nil {
			t.Errorf("got partial results %v, want none", got)
		}
		var embedErr *Error
		if !errors.As(err, &embedErr) {
			t.Fatalf("got %v, want *Error", err)
		}
		if embedErr.Op != "batch" {
			t.Errorf("Op = %q, want batch", embedErr.Op)
		}
		if !errors.Is(err, boom) {
			t.Errorf("error chain does not include the cause: %v", err)
		}
	})

	t.Run("cancellation surfaces as a batch error", func(t *testing.T) {
		cancelCtx, cancel := context.WithCancel(ctx)
		m := &mockEmbedder{dim: 1}
		m.embedFn = func(ctx context.Context, _ string) ([]float32, error) {
			cancel()
			<-ctx.Done()
			return nil, ctx.Err()
		}

		got, err := Batch(cancelCtx, m, []string{"a", "b", "c"}, 1)
		if err == nil {
			t.Fatal("Batch succeeded despite cancellation")
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error chain does not include context.Canceled: %v", err)
		}
		if got != nil {
			t.Errorf("got partial results %v, want none", got)
		}
	})
}
