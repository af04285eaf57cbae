package reranker

import (
	"context"
	"fmt"
	"sort"

	"github.com/tablemind/rulebook-backend/internal/platform/envutil"
	"github.com/tablemind/rulebook-backend/internal/platform/logger"
	"github.com/tablemind/rulebook-backend/internal/rag/retriever"
)

// Scorer assigns a relevance score to each passage for a query. Scores are
// returned in passage order; higher is more relevant.
type Scorer interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// Reranker is the precision stage: re-score the retriever's candidates with
// a cross-encoder and keep the best few. With no scorer configured it
// degrades to truncating the retrieval order.
type Reranker struct {
	scorer Scorer
	log    *logger.Logger
	finalK int
}

func New(scorer Scorer, baseLog *logger.Logger) *Reranker {
	finalK := envutil.Int("RERANK_FINAL_K", 5)
	if finalK <= 0 {
		finalK = 5
	}
	return &Reranker{
		scorer: scorer,
		log:    baseLog.With("service", "Reranker"),
		finalK: finalK,
	}
}

// Rerank returns the top passages for the query, best first. The result
// is always a subset of the input and never longer than the configured
// final size. Ties keep retrieval order (sort is stable).
func (r *Reranker) Rerank(ctx context.Context, query string, passages []retriever.Passage) ([]retriever.Passage, error) {
	if len(passages) == 0 {
		return passages, nil
	}

	if r.scorer == nil {
		return truncate(passages, r.finalK), nil
	}

	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}

	scores, err := r.scorer.Score(ctx, query, texts)
	if err != nil {
		return nil, fmt.Errorf("rerank score: %w", err)
	}
	if len(scores) != len(passages) {
		return nil, fmt.Errorf("rerank score count %d, want %d", len(scores), len(passages))
	}

	ranked := make([]retriever.Passage, len(passages))
	copy(ranked, passages)
	for i := range ranked {
		ranked[i].Score = scores[i]
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	return truncate(ranked, r.finalK), nil
}

func truncate(passages []retriever.Passage, k int) []retriever.Passage {
	if len(passages) <= k {
		return passages
	}
	return passages[:k]
}
