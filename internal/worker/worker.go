// Package worker implements the task execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/leadharvest/contactcrawler/internal/metrics"
	"github.com/leadharvest/contactcrawler/internal/orchestrator"
	"github.com/leadharvest/contactcrawler/internal/parsing"
	"github.com/leadharvest/contactcrawler/internal/pipeline"
	"github.com/leadharvest/contactcrawler/internal/task"
)

// Config controls Worker behavior.
type Config struct {
	// Topic receives task completion events. Empty disables publishing.
	Topic string
}

// CompletionEvent is the payload published when a task reaches a terminal
// status.
type CompletionEvent struct {
	TaskID   string               `json:"task_id"`
	Kind     parsing.TaskKind     `json:"kind"`
	Status   parsing.TaskStatus   `json:"status"`
	Counters parsing.TaskCounters `json:"counters"`
}

// Worker consumes task items and drives them to a terminal status.
type Worker struct {
	queue        parsing.Queue
	store        parsing.TaskStore
	pipeline     *pipeline.Pipeline
	orchestrator *orchestrator.Orchestrator
	search       parsing.SearchProvider
	publisher    parsing.Publisher
	registry     *task.Registry
	cfg          Config
	logger       *zap.Logger
}

// New constructs a Worker.
func New(
	queue parsing.Queue,
	store parsing.TaskStore,
	p *pipeline.Pipeline,
	o *orchestrator.Orchestrator,
	search parsing.SearchProvider,
	publisher parsing.Publisher,
	registry *task.Registry,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		queue:        queue,
		store:        store,
		pipeline:     p,
		orchestrator: o,
		search:       search,
		publisher:    publisher,
		registry:     registry,
		cfg:          cfg,
		logger:       logger,
	}
}

// Run blocks, consuming task items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued task", zap.String("task_id", item.TaskID))
		w.processTask(ctx, item)
	}
}

func (w *Worker) processTask(ctx context.Context, item parsing.TaskItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	taskCtx, cancel := w.registry.Register(item.TaskID, ctx)
	defer func() {
		w.registry.Release(item.TaskID)
		cancel()
	}()

	switch item.Kind {
	case parsing.TaskKindSingleSite:
		w.runSingleSite(taskCtx, item)
	case parsing.TaskKindBatchParse:
		w.runBatch(taskCtx, item)
	default:
		w.finish(ctx, item, parsing.TaskStatusFailed,
			fmt.Sprintf("unknown task kind %q", item.Kind), parsing.TaskCounters{})
	}
}

func (w *Worker) runSingleSite(ctx context.Context, item parsing.TaskItem) {
	params := item.Params.SingleSite
	if params == nil {
		w.finish(ctx, item, parsing.TaskStatusFailed, "missing single_site parameters", parsing.TaskCounters{})
		return
	}

	site, err := w.pipeline.ParseSite(ctx, pipeline.Request{
		URL:         params.URL,
		SkipSitemap: params.SkipSitemap,
		UseAI:       params.UseAI,
	})
	if err != nil {
		w.abort(ctx, item, err)
		return
	}
	site.TaskID = item.TaskID

	writeCtx := context.WithoutCancel(ctx)
	if err := w.store.AddParsedSite(writeCtx, site); err != nil {
		if errors.Is(err, parsing.ErrTaskNotFound) {
			w.logger.Info("task deleted mid-run, discarding result", zap.String("task_id", item.TaskID))
			return
		}
		w.finish(ctx, item, parsing.TaskStatusFailed, fmt.Sprintf("persist site: %v", err), parsing.TaskCounters{})
		return
	}

	counters := parsing.TaskCounters{TotalDomains: 1}
	if site.Status == parsing.SiteStatusSuccess {
		counters.SuccessfulDomains = 1
	}
	counters.TotalEmails = len(site.Emails)
	counters.TotalForms = len(site.ContactForms)

	// The task completes even when the one site failed; the site row carries
	// the failure.
	w.finish(ctx, item, parsing.TaskStatusCompleted, "", counters)
}

func (w *Worker) runBatch(ctx context.Context, item parsing.TaskItem) {
	params := item.Params.Batch
	if params == nil {
		w.finish(ctx, item, parsing.TaskStatusFailed, "missing batch_parse parameters", parsing.TaskCounters{})
		return
	}

	results, err := w.search.Discover(ctx, params.Query, params.NumResults)
	if err != nil {
		if ctx.Err() != nil {
			w.abort(ctx, item, err)
			return
		}
		w.finish(ctx, item, parsing.TaskStatusFailed, fmt.Sprintf("search discovery: %v", err), parsing.TaskCounters{})
		return
	}

	writeCtx := context.WithoutCancel(ctx)
	counters, err := w.orchestrator.Run(ctx, item.TaskID, results,
		orchestrator.Options{SkipSitemap: params.SkipSitemap, UseAI: params.UseAI},
		func(site parsing.ParsedSite) error {
			return w.store.AddParsedSite(writeCtx, site)
		},
	)
	if err != nil {
		if errors.Is(err, parsing.ErrTaskNotFound) {
			w.logger.Info("task deleted mid-run, stopping batch", zap.String("task_id", item.TaskID))
			return
		}
		w.abort(ctx, item, err)
		return
	}

	w.finish(ctx, item, parsing.TaskStatusCompleted, "", counters)
}

// abort handles cancellation and orchestration faults. A deleted task leaves
// no row to update; anything else is marked failed.
func (w *Worker) abort(ctx context.Context, item parsing.TaskItem, cause error) {
	writeCtx := context.WithoutCancel(ctx)
	if _, err := w.store.GetTask(writeCtx, item.TaskID); errors.Is(err, parsing.ErrTaskNotFound) {
		w.logger.Info("task deleted mid-run", zap.String("task_id", item.TaskID))
		return
	}
	w.finish(ctx, item, parsing.TaskStatusFailed, cause.Error(), parsing.TaskCounters{})
}

// finish records the terminal transition and publishes the completion event.
func (w *Worker) finish(ctx context.Context, item parsing.TaskItem, status parsing.TaskStatus, errText string, counters parsing.TaskCounters) {
	writeCtx := context.WithoutCancel(ctx)
	if err := w.store.UpdateTaskStatus(writeCtx, item.TaskID, status, errText, counters); err != nil {
		switch {
		case errors.Is(err, parsing.ErrTaskNotFound):
			w.logger.Info("task deleted before terminal update", zap.String("task_id", item.TaskID))
		case errors.Is(err, parsing.ErrTaskFinished):
			w.logger.Warn("task already terminal", zap.String("task_id", item.TaskID))
		default:
			w.logger.Error("terminal status update failed",
				zap.String("task_id", item.TaskID),
				zap.Error(err),
			)
		}
		return
	}
	metrics.ObserveTask(string(item.Kind), string(status))
	w.logger.Info("task finished",
		zap.String("task_id", item.TaskID),
		zap.String("status", string(status)),
		zap.Int("total_domains", counters.TotalDomains),
		zap.Int("emails", counters.TotalEmails),
		zap.Int("forms", counters.TotalForms),
	)

	if w.publisher == nil || w.cfg.Topic == "" {
		return
	}
	event := CompletionEvent{
		TaskID:   item.TaskID,
		Kind:     item.Kind,
		Status:   status,
		Counters: counters,
	}
	if _, err := w.publisher.Publish(writeCtx, w.cfg.Topic, event); err != nil {
		w.logger.Warn("completion event publish failed",
			zap.String("task_id", item.TaskID),
			zap.Error(err),
		)
	}
}
