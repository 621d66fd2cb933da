// Package pipeline parses one site end to end: homepage, candidate pages,
// email and contact-form extraction, optional AI filtering.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leadharvest/contactcrawler/internal/detector"
	"github.com/leadharvest/contactcrawler/internal/extract"
	"github.com/leadharvest/contactcrawler/internal/metrics"
	"github.com/leadharvest/contactcrawler/internal/parsing"
	"github.com/leadharvest/contactcrawler/internal/prioritize"
	"github.com/leadharvest/contactcrawler/internal/sitemap"
)

// Request describes one site to parse.
type Request struct {
	URL         string
	SkipSitemap bool
	UseAI       bool

	// Title and Snippet carry over from search discovery when present.
	Title   string
	Snippet string
}

// Config bounds the per-site work.
type Config struct {
	PageConcurrency int
	MaxURLs         int
}

// Pipeline drives the parse of a single site.
type Pipeline struct {
	cfg         Config
	fetcher     parsing.Fetcher
	headless    parsing.Fetcher
	promoter    *detector.Heuristic
	resolver    *sitemap.Resolver
	prioritizer *prioritize.Prioritizer
	extractor   *extract.Extractor
	validator   parsing.FormValidator
	archive     parsing.BlobStore
	clock       parsing.Clock
	logger      *zap.Logger
}

// Option configures optional pipeline collaborators.
type Option func(*Pipeline)

// WithHeadless enables browser re-fetch of thin homepages.
func WithHeadless(f parsing.Fetcher, promoter *detector.Heuristic) Option {
	return func(p *Pipeline) {
		p.headless = f
		p.promoter = promoter
	}
}

// WithValidator enables AI filtering of form candidates.
func WithValidator(v parsing.FormValidator) Option {
	return func(p *Pipeline) { p.validator = v }
}

// WithArchive enables raw homepage snapshots.
func WithArchive(store parsing.BlobStore) Option {
	return func(p *Pipeline) { p.archive = store }
}

// New creates a Pipeline.
func New(
	cfg Config,
	fetcher parsing.Fetcher,
	resolver *sitemap.Resolver,
	extractor *extract.Extractor,
	clock parsing.Clock,
	logger *zap.Logger,
	opts ...Option,
) *Pipeline {
	if cfg.PageConcurrency <= 0 {
		cfg.PageConcurrency = 4
	}
	if cfg.MaxURLs <= 0 {
		cfg.MaxURLs = 50
	}
	p := &Pipeline{
		cfg:         cfg,
		fetcher:     fetcher,
		resolver:    resolver,
		prioritizer: prioritize.New(cfg.MaxURLs),
		extractor:   extractor,
		clock:       clock,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// pageResult holds what one candidate page yielded, kept per-slot so the
// final union is deterministic regardless of fetch completion order.
type pageResult struct {
	emails []string
	forms  []parsing.FormCandidate
}

// ParseSite parses one site. A site-level failure (unreachable homepage)
// comes back as a failed ParsedSite with a nil error. A non-nil error means
// the surrounding task was canceled and no row should be recorded as usual
// site output.
func (p *Pipeline) ParseSite(ctx context.Context, req Request) (parsing.ParsedSite, error) {
	start := p.clock.Now()

	base, err := parsing.NormalizeURL(req.URL)
	if err != nil {
		return p.failed(req, req.URL, start, fmt.Errorf("invalid site url: %w", err)), nil
	}
	domain := parsing.Hostname(base)
	logger := p.logger.With(zap.String("site", domain))

	homepage, err := p.fetchHomepage(ctx, base)
	if err != nil {
		if ctx.Err() != nil {
			return parsing.ParsedSite{}, ctx.Err()
		}
		logger.Warn("homepage unreachable", zap.Error(err))
		return p.failed(req, base, start, fmt.Errorf("homepage fetch: %w", err)), nil
	}
	p.archiveSnapshot(ctx, domain, homepage.Body, logger)

	doc, err := extract.Parse(homepage.Body)
	if err != nil {
		return p.failed(req, base, start, fmt.Errorf("parse homepage: %w", err)), nil
	}

	candidates := extract.KeywordLinks(doc, base)
	if !req.SkipSitemap {
		sitemapURLs, err := p.resolver.Resolve(ctx, base)
		if err != nil {
			if ctx.Err() != nil {
				return parsing.ParsedSite{}, ctx.Err()
			}
			logger.Warn("sitemap resolution failed", zap.Error(err))
		}
		candidates = append(candidates, sitemapURLs...)
	}
	site := parsing.SiteRoot(base)
	for _, path := range prioritize.CommonPaths {
		candidates = append(candidates, site+path)
	}

	ordered := p.prioritizer.Order(base, candidates)

	results := make([]pageResult, len(ordered))
	results[0] = p.extractPage(doc, ordered[0])

	groups := newGroupTracker()
	if len(results[0].emails) > 0 || len(results[0].forms) > 0 {
		groups.markSuccess(prioritize.GroupOf(ordered[0]))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.PageConcurrency)
	for i := 1; i < len(ordered); i++ {
		i := i
		pageURL := ordered[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			group := prioritize.GroupOf(pageURL)
			if groups.shouldSkip(group) {
				return nil
			}
			resp, err := p.fetcher.Fetch(gctx, parsing.FetchRequest{URL: pageURL})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				metrics.ObservePage(pageURL, "failed", 0)
				logger.Debug("page fetch failed", zap.String("url", pageURL), zap.Error(err))
				return nil
			}
			metrics.ObservePage(pageURL, "success", resp.Duration)
			pageDoc, err := extract.Parse(resp.Body)
			if err != nil {
				return nil
			}
			results[i] = p.extractPage(pageDoc, pageURL)
			if len(results[i].emails) > 0 || len(results[i].forms) > 0 {
				groups.markSuccess(group)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return parsing.ParsedSite{}, err
	}

	emails, forms := p.merge(ctx, results, req.UseAI, logger)

	title := req.Title
	if title == "" {
		title = extract.Title(doc)
	}

	parsed := parsing.ParsedSite{
		Domain:         domain,
		URL:            base,
		Title:          title,
		Snippet:        req.Snippet,
		Status:         parsing.SiteStatusSuccess,
		Emails:         emails,
		ContactForms:   forms,
		ProcessingTime: p.clock.Now().Sub(start).Seconds(),
		ParsedAt:       p.clock.Now(),
	}
	metrics.ObserveSite(base, string(parsed.Status), len(emails), len(forms))
	logger.Info("site parsed",
		zap.Int("pages", len(ordered)),
		zap.Int("emails", len(emails)),
		zap.Int("forms", len(forms)),
		zap.Float64("seconds", parsed.ProcessingTime),
	)
	return parsed, nil
}

// fetchHomepage does the static fetch and, when the result looks like an
// unrendered application shell, retries once with the headless browser.
func (p *Pipeline) fetchHomepage(ctx context.Context, base string) (parsing.FetchResponse, error) {
	resp, err := p.fetcher.Fetch(ctx, parsing.FetchRequest{URL: base})
	if err != nil {
		metrics.ObservePage(base, "failed", 0)
		return parsing.FetchResponse{}, err
	}
	metrics.ObservePage(base, "success", resp.Duration)

	if p.headless != nil && p.promoter != nil && p.promoter.ShouldPromote(resp) {
		p.logger.Debug("promoting homepage to headless fetch", zap.String("url", base))
		rendered, err := p.headless.Fetch(ctx, parsing.FetchRequest{URL: base})
		if err == nil && len(rendered.Body) > len(resp.Body) {
			return rendered, nil
		}
	}
	return resp, nil
}

func (p *Pipeline) extractPage(doc *goquery.Document, pageURL string) pageResult {
	return pageResult{
		emails: p.extractor.Emails(doc),
		forms:  p.extractor.Forms(doc, pageURL),
	}
}

func (p *Pipeline) failed(req Request, url string, start time.Time, cause error) parsing.ParsedSite {
	metrics.ObserveSite(url, string(parsing.SiteStatusFailed), 0, 0)
	return parsing.ParsedSite{
		Domain:         parsing.Hostname(url),
		URL:            url,
		Title:          req.Title,
		Snippet:        req.Snippet,
		Status:         parsing.SiteStatusFailed,
		ErrorText:      cause.Error(),
		ProcessingTime: p.clock.Now().Sub(start).Seconds(),
		ParsedAt:       p.clock.Now(),
	}
}

// merge unions page results in prioritized order and applies AI filtering.
func (p *Pipeline) merge(ctx context.Context, results []pageResult, useAI bool, logger *zap.Logger) (emails, forms []string) {
	seenEmail := make(map[string]bool)
	seenForm := make(map[string]bool)
	for _, r := range results {
		for _, email := range r.emails {
			if seenEmail[email] {
				continue
			}
			seenEmail[email] = true
			emails = append(emails, email)
		}
		for _, candidate := range r.forms {
			if seenForm[candidate.ActionURL] {
				continue
			}
			seenForm[candidate.ActionURL] = true
			if useAI && p.rejectedByAI(ctx, candidate, logger) {
				continue
			}
			forms = append(forms, candidate.ActionURL)
		}
	}
	return emails, forms
}

// rejectedByAI reports whether the validator actively rejected a candidate.
// Validator errors keep the candidate.
func (p *Pipeline) rejectedByAI(ctx context.Context, candidate parsing.FormCandidate, logger *zap.Logger) bool {
	if p.validator == nil {
		return false
	}
	judgment, err := p.validator.Validate(ctx, candidate, candidate.Context)
	if err != nil {
		logger.Warn("form validation unavailable, keeping candidate",
			zap.String("action_url", candidate.ActionURL),
			zap.Error(err),
		)
		return false
	}
	switch judgment {
	case parsing.JudgmentAccept:
		metrics.ObserveVerdict("accept")
	case parsing.JudgmentReject:
		metrics.ObserveVerdict("reject")
	default:
		metrics.ObserveVerdict("decline")
	}
	return judgment == parsing.JudgmentReject
}

func (p *Pipeline) archiveSnapshot(ctx context.Context, domain string, body []byte, logger *zap.Logger) {
	if p.archive == nil || len(body) == 0 {
		return
	}
	path := fmt.Sprintf("%s/%s.html", domain, p.clock.Now().UTC().Format("20060102T150405"))
	if _, err := p.archive.PutObject(ctx, path, "text/html", body); err != nil {
		logger.Warn("homepage snapshot failed", zap.Error(err))
	}
}

// groupTracker remembers which keyword groups already produced results so
// later pages of the same group can be skipped.
type groupTracker struct {
	mu     sync.Mutex
	groups map[string]bool
}

func newGroupTracker() *groupTracker {
	return &groupTracker{groups: make(map[string]bool)}
}

func (t *groupTracker) markSuccess(group string) {
	if group == "" {
		return
	}
	t.mu.Lock()
	t.groups[group] = true
	t.mu.Unlock()
}

func (t *groupTracker) shouldSkip(group string) bool {
	if group == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.groups[group]
}
