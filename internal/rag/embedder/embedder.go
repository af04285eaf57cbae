package embedder

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/tablemind/rulebook-backend/internal/domain"
	"github.com/tablemind/rulebook-backend/internal/platform/envutil"
	"github.com/tablemind/rulebook-backend/internal/platform/logger"
	"github.com/tablemind/rulebook-backend/internal/platform/openai"
)

// Embedder turns chunk texts into fixed-dimension unit vectors. It batches
// requests to the embedding endpoint and runs batches concurrently, but the
// output always lines up index-for-index with the input.
type Embedder struct {
	client      openai.Client
	log         *logger.Logger
	batchSize   int
	concurrency int
}

func New(client openai.Client, baseLog *logger.Logger) *Embedder {
	batchSize := envutil.Int("EMBED_BATCH_SIZE", 128)
	if batchSize <= 0 {
		batchSize = 128
	}
	concurrency := envutil.Int("EMBED_CONCURRENCY", 4)
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Embedder{
		client:      client,
		log:         baseLog.With("service", "Embedder"),
		batchSize:   batchSize,
		concurrency: concurrency,
	}
}

// EmbedTexts embeds texts in input order. Every returned vector has
// dimension domain.EmbeddingDim and unit L2 norm; any other shape from the
// backend is an error rather than bad data in the index.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for start := 0; start < len(texts); start += e.batchSize {
		start := start
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			vecs, err := e.client.Embed(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed batch [%d:%d): %w", start, end, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embed batch [%d:%d): got %d vectors", start, end, len(vecs))
			}
			for i, v := range vecs {
				nv, err := normalize(v)
				if err != nil {
					return fmt.Errorf("embed index %d: %w", start+i, err)
				}
				out[start+i] = nv
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.log.Debug("Embedded texts", "count", len(texts), "model", openai.EmbedModel())
	return out, nil
}

// EmbedQuery embeds a single query string.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func normalize(v []float32) ([]float32, error) {
	if len(v) != domain.EmbeddingDim {
		return nil, fmt.Errorf("vector dim %d, want %d", len(v), domain.EmbeddingDim)
	}
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return nil, fmt.Errorf("zero vector")
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out, nil
}
