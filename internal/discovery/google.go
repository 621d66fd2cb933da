// Package discovery finds candidate sites for a batch task through the
// Google Custom Search JSON API.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/leadharvest/contactcrawler/internal/parsing"
)

const defaultEndpoint = "https://www.googleapis.com/customsearch/v1"

// pageSize is the API's hard cap on results per request.
const pageSize = 10

// Config holds the Custom Search credentials and endpoint.
type Config struct {
	APIKey   string
	CX       string
	Endpoint string
	Timeout  time.Duration
}

// Google implements parsing.SearchProvider on the Custom Search JSON API.
type Google struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New creates a Google search provider.
func New(cfg Config, logger *zap.Logger) *Google {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Google{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type searchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

// Discover runs the query until count results are collected or the API runs
// out of pages, then dedupes by domain keeping the first-ranked result. Any
// request failure is returned to the caller, which fails the owning task.
func (g *Google) Discover(ctx context.Context, query string, count int) ([]parsing.SearchResult, error) {
	if count <= 0 {
		return nil, fmt.Errorf("result count must be positive, got %d", count)
	}

	var collected []parsing.SearchResult
	start := 1
	for len(collected) < count {
		remaining := count - len(collected)
		num := remaining
		if num > pageSize {
			num = pageSize
		}

		page, err := g.searchPage(ctx, query, num, start)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		collected = append(collected, page...)
		start += len(page)
	}
	if len(collected) > count {
		collected = collected[:count]
	}

	deduped := dedupeByDomain(collected)
	g.logger.Info("search discovery finished",
		zap.String("query", query),
		zap.Int("results", len(collected)),
		zap.Int("domains", len(deduped)),
	)
	return deduped, nil
}

func (g *Google) searchPage(ctx context.Context, query string, num, start int) ([]parsing.SearchResult, error) {
	params := url.Values{}
	params.Set("key", g.cfg.APIKey)
	params.Set("cx", g.cfg.CX)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(num))
	params.Set("start", strconv.Itoa(start))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer func() {
		if errInner := resp.Body.Close(); errInner != nil {
			g.logger.Warn("close search response body", zap.Error(errInner))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search api status %d: %s", resp.StatusCode, string(body))
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]parsing.SearchResult, 0, len(decoded.Items))
	for _, item := range decoded.Items {
		results = append(results, parsing.SearchResult{
			Title:   item.Title,
			Link:    item.Link,
			Snippet: item.Snippet,
			Domain:  extractDomain(item.Link),
		})
	}
	return results, nil
}

// extractDomain reduces a result link to its site root with scheme.
func extractDomain(link string) string {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return link
	}
	return u.Scheme + "://" + u.Host
}

// dedupeByDomain keeps the first result for each domain, preserving rank.
func dedupeByDomain(results []parsing.SearchResult) []parsing.SearchResult {
	seen := make(map[string]bool)
	deduped := make([]parsing.SearchResult, 0, len(results))
	for _, r := range results {
		if r.Domain == "" || seen[r.Domain] {
			continue
		}
		seen[r.Domain] = true
		deduped = append(deduped, r)
	}
	return deduped
}
