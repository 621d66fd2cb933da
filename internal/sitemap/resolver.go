// Package sitemap discovers page URLs through a site's sitemap documents.
package sitemap

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/leadharvest/contactcrawler/internal/parsing"
)

// probePaths are tried in order against the site root until one answers.
var probePaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemaps.xml",
	"/sitemap/sitemap.xml",
}

var locPattern = regexp.MustCompile(`(?is)<loc[^>]*>(.*?)</loc>`)

// Config bounds the sitemap traversal.
type Config struct {
	// MaxDocuments caps how many sitemap documents are fetched per site,
	// index documents included.
	MaxDocuments int
	// MaxURLsPerDoc caps how many page URLs are taken from one document.
	MaxURLsPerDoc int
	// MaxDocumentSize caps the size in bytes of a single document.
	MaxDocumentSize int
}

// Resolver walks sitemap indexes breadth-first and collects page URLs.
type Resolver struct {
	cfg     Config
	fetcher parsing.Fetcher
	logger  *zap.Logger
}

// New creates a Resolver. Zero config fields fall back to safe bounds.
func New(cfg Config, fetcher parsing.Fetcher, logger *zap.Logger) *Resolver {
	if cfg.MaxDocuments <= 0 {
		cfg.MaxDocuments = 5
	}
	if cfg.MaxURLsPerDoc <= 0 {
		cfg.MaxURLsPerDoc = 1000
	}
	if cfg.MaxDocumentSize <= 0 {
		cfg.MaxDocumentSize = 10 << 20
	}
	return &Resolver{cfg: cfg, fetcher: fetcher, logger: logger}
}

// Resolve finds page URLs for the site at baseURL. It probes the well-known
// sitemap locations, follows index documents within the document budget, and
// returns deduplicated page URLs. A site without a sitemap yields an empty
// slice and no error.
func (r *Resolver) Resolve(ctx context.Context, baseURL string) ([]string, error) {
	base, err := parsing.NormalizeURL(baseURL)
	if err != nil {
		return nil, fmt.Errorf("normalize site url: %w", err)
	}
	site := strings.TrimSuffix(base, "/")

	var root string
	var rootBody []byte
	for _, p := range probePaths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candidate := site + p
		body, err := r.fetchDocument(ctx, candidate)
		if err != nil {
			r.logger.Debug("sitemap probe missed",
				zap.String("url", candidate),
				zap.Error(err),
			)
			continue
		}
		root = candidate
		rootBody = body
		break
	}
	if root == "" {
		r.logger.Info("no sitemap found", zap.String("site", base))
		return nil, nil
	}

	visited := map[string]bool{root: true}
	budget := r.cfg.MaxDocuments - 1

	seen := make(map[string]bool)
	var pages []string

	type doc struct {
		url  string
		body []byte
	}
	queue := []doc{{url: root, body: rootBody}}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current := queue[0]
		queue = queue[1:]

		children, urls := parseDocument(current.body, r.cfg.MaxURLsPerDoc)
		for _, u := range urls {
			normalized, err := parsing.NormalizeURL(u)
			if err != nil || seen[normalized] {
				continue
			}
			seen[normalized] = true
			pages = append(pages, normalized)
		}

		for _, child := range children {
			child = strings.TrimSpace(child)
			if child == "" || visited[child] {
				continue
			}
			if budget <= 0 {
				r.logger.Warn("sitemap document budget exhausted",
					zap.String("site", base),
					zap.Int("max_documents", r.cfg.MaxDocuments),
				)
				return pages, nil
			}
			visited[child] = true
			budget--
			body, err := r.fetchDocument(ctx, child)
			if err != nil {
				r.logger.Debug("nested sitemap fetch failed",
					zap.String("url", child),
					zap.Error(err),
				)
				continue
			}
			queue = append(queue, doc{url: child, body: body})
		}
	}

	r.logger.Info("sitemap resolved",
		zap.String("site", base),
		zap.Int("urls", len(pages)),
	)
	return pages, nil
}

func (r *Resolver) fetchDocument(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := r.fetcher.Fetch(ctx, parsing.FetchRequest{URL: rawURL})
	if err != nil {
		return nil, err
	}
	body := resp.Body
	if len(body) > r.cfg.MaxDocumentSize {
		body = body[:r.cfg.MaxDocumentSize]
	}
	return body, nil
}

// parseDocument extracts nested sitemap URLs and page URLs from one document.
// It walks XML tokens and falls back to a <loc> scan for malformed markup.
func parseDocument(body []byte, maxURLs int) (sitemaps, urls []string) {
	decoder := xml.NewDecoder(bytes.NewReader(body))
	decoder.Strict = false
	parsedAny := false

	type locEntry struct {
		Loc string `xml:"loc"`
	}

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		se, ok := token.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "sitemap":
			var entry locEntry
			if err := decoder.DecodeElement(&entry, &se); err == nil && entry.Loc != "" {
				parsedAny = true
				sitemaps = append(sitemaps, entry.Loc)
			}
		case "url":
			var entry locEntry
			if err := decoder.DecodeElement(&entry, &se); err == nil && entry.Loc != "" {
				parsedAny = true
				if len(urls) < maxURLs {
					urls = append(urls, entry.Loc)
				}
			}
		}
	}

	if parsedAny {
		return sitemaps, urls
	}

	// Malformed XML. Scan for loc entries directly and treat entries that
	// point at another sitemap document as nested indexes.
	for _, match := range locPattern.FindAllSubmatch(body, -1) {
		loc := strings.TrimSpace(string(match[1]))
		if loc == "" {
			continue
		}
		if strings.Contains(strings.ToLower(loc), "sitemap") && strings.HasSuffix(strings.ToLower(loc), ".xml") {
			sitemaps = append(sitemaps, loc)
			continue
		}
		if len(urls) < maxURLs {
			urls = append(urls, loc)
		}
	}
	return sitemaps, urls
}
