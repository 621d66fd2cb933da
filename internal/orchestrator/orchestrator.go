// Package orchestrator fans a batch task out over its discovered domains.
package orchestrator

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/leadharvest/contactcrawler/internal/parsing"
	"github.com/leadharvest/contactcrawler/internal/pipeline"
)

// Options are the per-task parse switches applied to every member site.
type Options struct {
	SkipSitemap bool
	UseAI       bool
}

// Orchestrator runs the site pipeline over a domain list with bounded
// concurrency. One site's failure never affects its siblings; only context
// cancellation or a sink failure stops the batch.
type Orchestrator struct {
	pipeline    *pipeline.Pipeline
	concurrency int
	logger      *zap.Logger
}

// New creates an Orchestrator. concurrency <= 0 falls back to 3.
func New(p *pipeline.Pipeline, concurrency int, logger *zap.Logger) *Orchestrator {
	if concurrency <= 0 {
		concurrency = 3
	}
	return &Orchestrator{pipeline: p, concurrency: concurrency, logger: logger}
}

// Run parses every unique domain in results and hands each terminal
// ParsedSite to sink as it completes. The returned counters match the rows
// given to sink exactly. The error is non-nil only for cancellation or a
// sink failure; in that case the counters cover the rows sunk so far.
func (o *Orchestrator) Run(
	ctx context.Context,
	taskID string,
	results []parsing.SearchResult,
	opts Options,
	sink func(parsing.ParsedSite) error,
) (parsing.TaskCounters, error) {
	unique := dedupeByDomain(results)

	var mu sync.Mutex
	counters := parsing.TaskCounters{}

	// A plain errgroup: a member failure must not cancel sibling sites.
	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for _, result := range unique {
		result := result
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			site, err := o.pipeline.ParseSite(ctx, pipeline.Request{
				URL:         result.Domain,
				SkipSitemap: opts.SkipSitemap,
				UseAI:       opts.UseAI,
				Title:       result.Title,
				Snippet:     result.Snippet,
			})
			if err != nil {
				return err
			}
			site.TaskID = taskID

			mu.Lock()
			defer mu.Unlock()
			if err := sink(site); err != nil {
				o.logger.Error("parsed site sink failed",
					zap.String("task_id", taskID),
					zap.String("domain", site.Domain),
					zap.Error(err),
				)
				return err
			}
			counters.TotalDomains++
			if site.Status == parsing.SiteStatusSuccess {
				counters.SuccessfulDomains++
			}
			counters.TotalEmails += len(site.Emails)
			counters.TotalForms += len(site.ContactForms)
			return nil
		})
	}
	err := g.Wait()

	mu.Lock()
	defer mu.Unlock()
	return counters, err
}

// dedupeByDomain keeps the first-ranked result for each domain.
func dedupeByDomain(results []parsing.SearchResult) []parsing.SearchResult {
	seen := make(map[string]bool)
	unique := make([]parsing.SearchResult, 0, len(results))
	for _, r := range results {
		if r.Domain == "" || seen[r.Domain] {
			continue
		}
		seen[r.Domain] = true
		unique = append(unique, r)
	}
	return unique
}
