package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/tablemind/rulebook-backend/internal/platform/envutil"
	"github.com/tablemind/rulebook-backend/internal/platform/logger"
)

// ErrNoRulebookFound reports that the search returned no usable PDF link.
// Callers treat it as an empty result, not an infrastructure failure.
var ErrNoRulebookFound = errors.New("websearch: no rulebook pdf found")

const defaultQueryPostfix = "board game rules pdf"

// maxPDFBytes caps rulebook downloads; anything larger is not a rulebook.
const maxPDFBytes = 64 << 20

// Result is a downloaded rulebook candidate.
type Result struct {
	URL   string
	Title string
	Bytes []byte
}

// Client locates and downloads candidate rulebook PDFs for a game name.
type Client interface {
	FindRulebookPDF(ctx context.Context, gameName string) (Result, error)
}

type client struct {
	log        *logger.Logger
	apiKey     string
	cxKey      string
	baseURL    string
	numResults int
	httpClient *http.Client
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing GOOGLE_API_KEY")
	}
	cxKey := strings.TrimSpace(os.Getenv("GOOGLE_CX_KEY"))
	if cxKey == "" {
		return nil, fmt.Errorf("missing GOOGLE_CX_KEY")
	}

	baseURL := envutil.String("GOOGLE_CSE_BASE_URL", "https://www.googleapis.com/customsearch/v1")
	timeout := envutil.Duration("WEBSEARCH_TIMEOUT_SECONDS", 30*time.Second)

	return &client{
		log:        log.With("service", "WebSearchClient"),
		apiKey:     apiKey,
		cxKey:      cxKey,
		baseURL:    baseURL,
		numResults: envutil.Int("WEBSEARCH_NUM_RESULTS", 5),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type searchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

func (c *client) FindRulebookPDF(ctx context.Context, gameName string) (Result, error) {
	gameName = strings.TrimSpace(gameName)
	if gameName == "" {
		return Result{}, fmt.Errorf("websearch: game name required")
	}

	items, err := c.search(ctx, gameName+" "+defaultQueryPostfix)
	if err != nil {
		return Result{}, err
	}

	for _, item := range items {
		link := strings.TrimSpace(item.Link)
		if !isPDFLink(link) {
			continue
		}
		data, err := c.download(ctx, link)
		if err != nil {
			c.log.Warn("rulebook download failed, trying next result",
				"game", gameName,
				"url", link,
				"error", err.Error(),
			)
			continue
		}
		return Result{URL: link, Title: item.Title, Bytes: data}, nil
	}

	return Result{}, fmt.Errorf("%w: game=%s", ErrNoRulebookFound, gameName)
}

func (c *client) search(ctx context.Context, query string) ([]struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("cx", c.cxKey)
	params.Set("q", query)
	params.Set("num", fmt.Sprintf("%d", c.numResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("websearch: search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("websearch: search http %d: %s", resp.StatusCode, string(body))
	}

	var parsed searchResponse
	if err := decodeJSON(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("websearch: decode search response: %w", err)
	}
	return parsed.Items, nil
}

func (c *client) download(ctx context.Context, pdfURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download http %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxPDFBytes {
		return nil, fmt.Errorf("download exceeds %d bytes", maxPDFBytes)
	}
	if len(data) == 0 {
		return nil, errors.New("empty download")
	}
	return data, nil
}

func decodeJSON(r io.Reader, out any) error {
	return json.NewDecoder(r).Decode(out)
}

func isPDFLink(link string) bool {
	if link == "" {
		return false
	}
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}
