// Package task owns the task lifecycle: creation, lookup, deletion and the
// cancellation of in-flight work.
package task

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/leadharvest/contactcrawler/internal/parsing"
)

// Service is the application-facing task API used by the HTTP layer.
type Service struct {
	store    parsing.TaskStore
	queue    parsing.Queue
	registry *Registry
	ids      parsing.IDGenerator
	clock    parsing.Clock
	logger   *zap.Logger

	maxBatchResults int
}

// NewService wires the task service.
func NewService(
	store parsing.TaskStore,
	queue parsing.Queue,
	registry *Registry,
	ids parsing.IDGenerator,
	clock parsing.Clock,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:           store,
		queue:           queue,
		registry:        registry,
		ids:             ids,
		clock:           clock,
		logger:          logger,
		maxBatchResults: 100,
	}
}

// CreateSingleSiteTask validates the parameters, persists the task as
// running and enqueues it for the worker pool.
func (s *Service) CreateSingleSiteTask(ctx context.Context, params parsing.SingleSiteParams) (parsing.Task, error) {
	if strings.TrimSpace(params.URL) == "" {
		return parsing.Task{}, fmt.Errorf("url is required")
	}
	normalized, err := parsing.NormalizeURL(params.URL)
	if err != nil {
		return parsing.Task{}, fmt.Errorf("invalid url: %w", err)
	}
	params.URL = normalized

	return s.create(ctx, parsing.TaskKindSingleSite, parsing.TaskParameters{SingleSite: &params})
}

// CreateBatchTask validates the parameters, persists the task as running and
// enqueues it for the worker pool.
func (s *Service) CreateBatchTask(ctx context.Context, params parsing.BatchParams) (parsing.Task, error) {
	if strings.TrimSpace(params.Query) == "" {
		return parsing.Task{}, fmt.Errorf("query is required")
	}
	if params.NumResults <= 0 {
		params.NumResults = 10
	}
	if params.NumResults > s.maxBatchResults {
		return parsing.Task{}, fmt.Errorf("num_results must be at most %d", s.maxBatchResults)
	}

	return s.create(ctx, parsing.TaskKindBatchParse, parsing.TaskParameters{Batch: &params})
}

func (s *Service) create(ctx context.Context, kind parsing.TaskKind, params parsing.TaskParameters) (parsing.Task, error) {
	if err := params.Validate(kind); err != nil {
		return parsing.Task{}, err
	}
	id, err := s.ids.NewID()
	if err != nil {
		return parsing.Task{}, fmt.Errorf("generate task id: %w", err)
	}
	now := s.clock.Now()
	task := parsing.Task{
		ID:         id,
		Kind:       kind,
		Status:     parsing.TaskStatusRunning,
		Parameters: params,
		CreatedAt:  now,
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return parsing.Task{}, fmt.Errorf("persist task: %w", err)
	}
	item := parsing.TaskItem{
		TaskID:    id,
		Kind:      kind,
		Params:    params,
		Submitted: now.UnixMilli(),
	}
	if err := s.queue.Enqueue(ctx, item); err != nil {
		// The task would sit running forever with no worker ever seeing it.
		if failErr := s.store.UpdateTaskStatus(ctx, id, parsing.TaskStatusFailed, "enqueue failed", parsing.TaskCounters{}); failErr != nil {
			s.logger.Error("mark unenqueued task failed", zap.String("task_id", id), zap.Error(failErr))
		}
		return parsing.Task{}, fmt.Errorf("enqueue task: %w", err)
	}
	s.logger.Info("task created",
		zap.String("task_id", id),
		zap.String("kind", string(kind)),
	)
	return task, nil
}

// GetTask returns one task by ID.
func (s *Service) GetTask(ctx context.Context, taskID string) (parsing.Task, error) {
	return s.store.GetTask(ctx, taskID)
}

// ListTasks returns tasks matching the filter, newest first.
func (s *Service) ListTasks(ctx context.Context, filter parsing.TaskFilter) ([]parsing.Task, error) {
	return s.store.ListTasks(ctx, filter)
}

// GetSites returns the parsed site rows recorded so far for a task.
func (s *Service) GetSites(ctx context.Context, taskID string) ([]parsing.ParsedSite, error) {
	if _, err := s.store.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return s.store.ListSites(ctx, taskID)
}

// DeleteTask removes a task and its site rows in any state. For a running
// task the in-flight work is canceled best-effort; already issued fetches
// drain without producing visible rows.
func (s *Service) DeleteTask(ctx context.Context, taskID string) error {
	if err := s.store.DeleteTask(ctx, taskID); err != nil {
		return err
	}
	if s.registry.Cancel(taskID) {
		s.logger.Info("canceled in-flight work for deleted task", zap.String("task_id", taskID))
	}
	return nil
}
