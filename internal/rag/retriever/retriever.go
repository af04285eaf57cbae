package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tablemind/rulebook-backend/internal/data/repos/rulebooks"
	"github.com/tablemind/rulebook-backend/internal/platform/envutil"
	"github.com/tablemind/rulebook-backend/internal/platform/logger"
	"github.com/tablemind/rulebook-backend/internal/rag/embedder"
)

// Passage is one retrieved candidate handed to the reranker and the answer
// prompt. Score is the retrieval-stage similarity; the reranker replaces it
// with its own relevance score.
type Passage struct {
	ChunkID     uuid.UUID
	DocID       string
	DocTitle    string
	Text        string
	PageStart   int
	PageEnd     int
	SectionPath *string
	Score       float64
}

// Retriever is the first, recall-oriented stage: fetch a generous candidate
// set by dense similarity and let the reranker tighten precision.
type Retriever struct {
	embedder *embedder.Embedder
	chunks   rulebooks.ChunkRepo
	log      *logger.Logger
	fetchK   int
}

func New(emb *embedder.Embedder, chunks rulebooks.ChunkRepo, baseLog *logger.Logger) *Retriever {
	fetchK := envutil.Int("RETRIEVE_FETCH_K", 20)
	if fetchK <= 0 {
		fetchK = 20
	}
	return &Retriever{
		embedder: emb,
		chunks:   chunks,
		log:      baseLog.With("service", "Retriever"),
		fetchK:   fetchK,
	}
}

// Retrieve returns up to k candidate passages for the query, best first.
// k <= 0 uses the configured fetch size. If dense search comes back empty
// (embedding index still warming, or an out-of-vocabulary query) it falls
// back to Postgres full-text search so the caller still gets something to
// rank.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]Passage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}
	if k <= 0 {
		k = r.fetchK
	}

	qvec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.chunks.SearchNearest(ctx, qvec, k)
	if err != nil {
		return nil, fmt.Errorf("dense search: %w", err)
	}

	if len(hits) == 0 {
		r.log.Warn("Dense retrieval empty, falling back to lexical search", "query_words", len(strings.Fields(query)))
		hits, err = r.chunks.SearchLexical(ctx, query, k)
		if err != nil {
			return nil, fmt.Errorf("lexical search: %w", err)
		}
	}

	return toPassages(hits), nil
}

func toPassages(hits []rulebooks.SearchHit) []Passage {
	out := make([]Passage, 0, len(hits))
	for _, h := range hits {
		out = append(out, Passage{
			ChunkID:     h.Chunk.ChunkID,
			DocID:       h.Chunk.DocID,
			DocTitle:    h.DocTitle,
			Text:        h.Chunk.Text,
			PageStart:   h.Chunk.PageStart,
			PageEnd:     h.Chunk.PageEnd,
			SectionPath: h.Chunk.SectionPath,
			Score:       h.Score,
		})
	}
	return out
}
