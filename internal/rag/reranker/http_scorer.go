package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tablemind/rulebook-backend/internal/platform/envutil"
	"github.com/tablemind/rulebook-backend/internal/platform/httpx"
	"github.com/tablemind/rulebook-backend/internal/platform/logger"
)

// HTTPScorer calls a Cohere-style /rerank endpoint (also exposed by local
// cross-encoder servers). Configured entirely from the environment; if
// RERANK_URL is unset, NewHTTPScorerFromEnv returns nil and the reranker
// runs in passthrough mode.
type HTTPScorer struct {
	log        *logger.Logger
	url        string
	model      string
	apiKey     string
	httpClient *http.Client
	maxRetries int
}

func NewHTTPScorerFromEnv(baseLog *logger.Logger) *HTTPScorer {
	url := envutil.String("RERANK_URL", "")
	if url == "" {
		return nil
	}

	maxRetries := envutil.Int("RERANK_MAX_RETRIES", 2)
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &HTTPScorer{
		log:        baseLog.With("service", "RerankScorer"),
		url:        strings.TrimRight(url, "/"),
		model:      envutil.String("RERANK_MODEL", "cross-encoder/ms-marco-MiniLM-L-6-v2"),
		apiKey:     envutil.String("RERANK_API_KEY", ""),
		httpClient: &http.Client{Timeout: envutil.Duration("RERANK_TIMEOUT_SECONDS", 30*time.Second)},
		maxRetries: maxRetries,
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("rerank http %d: %s", e.StatusCode, e.Body)
}

func (e *httpError) HTTPStatusCode() int { return e.StatusCode }

func (s *HTTPScorer) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	req := rerankRequest{
		Model:     s.model,
		Query:     query,
		Documents: passages,
		TopN:      len(passages),
	}

	var resp rerankResponse
	if err := s.do(ctx, req, &resp); err != nil {
		return nil, err
	}

	scores := make([]float64, len(passages))
	seen := make([]bool, len(passages))
	for _, res := range resp.Results {
		if res.Index < 0 || res.Index >= len(passages) {
			return nil, fmt.Errorf("rerank result index %d out of range", res.Index)
		}
		scores[res.Index] = res.RelevanceScore
		seen[res.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("rerank response missing index %d", i)
		}
	}
	return scores, nil
}

func (s *HTTPScorer) do(ctx context.Context, body any, out any) error {
	backoff := 500 * time.Millisecond

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := s.doOnce(ctx, body)
		if err == nil {
			return json.Unmarshal(raw, out)
		}

		if !httpx.IsRetryableError(err) || attempt == s.maxRetries {
			return err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 5*time.Second))
		s.log.Warn("Rerank request retrying",
			"attempt", attempt+1,
			"max_retries", s.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

func (s *HTTPScorer) doOnce(ctx context.Context, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}
