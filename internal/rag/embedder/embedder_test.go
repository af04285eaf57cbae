package embedder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/tablemind/rulebook-backend/internal/domain"
	"github.com/tablemind/rulebook-backend/internal/platform/logger"
)

// fakeClient returns deterministic vectors whose first component encodes the
// input's numeric suffix, so ordering can be asserted after batching.
type fakeClient struct {
	mu      sync.Mutex
	batches [][]string
	dim     int
	err     error
}

func (f *fakeClient) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	f.mu.Lock()
	f.batches = append(f.batches, inputs)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		n, _ := strconv.Atoi(strings.TrimPrefix(in, "text-"))
		v := make([]float32, f.dim)
		v[0] = float32(n + 1)
		out[i] = v
	}
	return out, nil
}

func (f *fakeClient) GenerateText(context.Context, string, string) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeClient) GenerateJSON(context.Context, string, string, string, map[string]any) (map[string]any, error) {
	return nil, errors.New("not implemented")
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	logg, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return logg
}

func TestEmbedTextsBatchesAndPreservesOrder(t *testing.T) {
	t.Setenv("EMBED_BATCH_SIZE", "10")
	t.Setenv("EMBED_CONCURRENCY", "3")

	fake := &fakeClient{dim: domain.EmbeddingDim}
	e := New(fake, testLogger(t))

	texts := make([]string, 25)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
	}

	vecs, err := e.EmbedTexts(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedTexts: %v", err)
	}
	if len(vecs) != 25 {
		t.Fatalf("vectors: want=25 got=%d", len(vecs))
	}

	fake.mu.Lock()
	batches := len(fake.batches)
	fake.mu.Unlock()
	if batches != 3 {
		t.Fatalf("batches: want=3 got=%d", batches)
	}

	// Batches may complete out of order; outputs must not.
	for i, v := range vecs {
		if len(v) != domain.EmbeddingDim {
			t.Fatalf("vector %d dim: got=%d", i, len(v))
		}
		// Normalized single-component vector is exactly 1 in that component.
		if v[0] < 0.999 || v[0] > 1.001 {
			t.Fatalf("vector %d not normalized or out of order: v[0]=%f", i, v[0])
		}
	}
}

func TestEmbedTextsNormalizes(t *testing.T) {
	fake := &fakeClient{dim: domain.EmbeddingDim}
	e := New(fake, testLogger(t))

	vecs, err := e.EmbedTexts(context.Background(), []string{"text-9"})
	if err != nil {
		t.Fatalf("EmbedTexts: %v", err)
	}
	var sum float64
	for _, f := range vecs[0] {
		sum += float64(f) * float64(f)
	}
	if sum < 0.999 || sum > 1.001 {
		t.Fatalf("norm^2: want 1 got %f", sum)
	}
}

func TestEmbedTextsRejectsWrongDimension(t *testing.T) {
	fake := &fakeClient{dim: 8}
	e := New(fake, testLogger(t))

	_, err := e.EmbedTexts(context.Background(), []string{"text-0"})
	if err == nil {
		t.Fatalf("expected dimension error")
	}
	if !strings.Contains(err.Error(), "dim") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEmbedTextsPropagatesClientError(t *testing.T) {
	wantErr := errors.New("backend down")
	fake := &fakeClient{dim: domain.EmbeddingDim, err: wantErr}
	e := New(fake, testLogger(t))

	_, err := e.EmbedTexts(context.Background(), []string{"text-0"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("want wrapped backend error, got %v", err)
	}
}

func TestEmbedTextsEmptyInput(t *testing.T) {
	fake := &fakeClient{dim: domain.EmbeddingDim}
	e := New(fake, testLogger(t))

	vecs, err := e.EmbedTexts(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedTexts(nil): %v", err)
	}
	if len(vecs) != 0 {
		t.Fatalf("want no vectors, got %d", len(vecs))
	}
}
