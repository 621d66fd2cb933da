// Package memory provides a task store for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/leadharvest/contactcrawler/internal/parsing"
)

// Store is a mutex-guarded in-memory task store. Reads return copies so
// callers can never mutate stored state.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]parsing.Task
	sites map[string][]parsing.ParsedSite
	clock parsing.Clock
}

// NewStore creates an empty Store.
func NewStore(clock parsing.Clock) *Store {
	return &Store{
		tasks: make(map[string]parsing.Task),
		sites: make(map[string][]parsing.ParsedSite),
		clock: clock,
	}
}

// CreateTask inserts a new task.
func (s *Store) CreateTask(_ context.Context, task parsing.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	return nil
}

// GetTask returns one task by ID.
func (s *Store) GetTask(_ context.Context, taskID string) (parsing.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return parsing.Task{}, parsing.ErrTaskNotFound
	}
	return copyTask(task), nil
}

// ListTasks returns tasks matching the filter, newest first.
func (s *Store) ListTasks(_ context.Context, filter parsing.TaskFilter) ([]parsing.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]parsing.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		tasks = append(tasks, copyTask(task))
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID > tasks[j].ID
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(tasks) {
			return nil, nil
		}
		tasks = tasks[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(tasks) {
		tasks = tasks[:filter.Limit]
	}
	return tasks, nil
}

// UpdateTaskStatus applies a status transition. Terminal tasks reject any
// further transition with ErrTaskFinished.
func (s *Store) UpdateTaskStatus(_ context.Context, taskID string, status parsing.TaskStatus, errText string, counters parsing.TaskCounters) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return parsing.ErrTaskNotFound
	}
	if task.Status.Terminal() {
		return parsing.ErrTaskFinished
	}
	task.Status = status
	task.ErrorText = errText
	task.Counters = counters
	if status.Terminal() {
		now := s.clock.Now()
		task.CompletedAt = &now
	}
	s.tasks[taskID] = task
	return nil
}

// AddParsedSite appends a site row to its owning task.
func (s *Store) AddParsedSite(_ context.Context, site parsing.ParsedSite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[site.TaskID]; !ok {
		return parsing.ErrTaskNotFound
	}
	s.sites[site.TaskID] = append(s.sites[site.TaskID], copySite(site))
	return nil
}

// ListSites returns the site rows of a task in insertion order.
func (s *Store) ListSites(_ context.Context, taskID string) ([]parsing.ParsedSite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.tasks[taskID]; !ok {
		return nil, parsing.ErrTaskNotFound
	}
	rows := s.sites[taskID]
	out := make([]parsing.ParsedSite, len(rows))
	for i, row := range rows {
		out[i] = copySite(row)
	}
	return out, nil
}

// DeleteTask removes a task and cascades to its site rows.
func (s *Store) DeleteTask(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; !ok {
		return parsing.ErrTaskNotFound
	}
	delete(s.tasks, taskID)
	delete(s.sites, taskID)
	return nil
}

func copyTask(task parsing.Task) parsing.Task {
	out := task
	if task.CompletedAt != nil {
		at := *task.CompletedAt
		out.CompletedAt = &at
	}
	if task.Parameters.SingleSite != nil {
		p := *task.Parameters.SingleSite
		out.Parameters.SingleSite = &p
	}
	if task.Parameters.Batch != nil {
		p := *task.Parameters.Batch
		out.Parameters.Batch = &p
	}
	return out
}

func copySite(site parsing.ParsedSite) parsing.ParsedSite {
	out := site
	out.Emails = append([]string(nil), site.Emails...)
	out.ContactForms = append([]string(nil), site.ContactForms...)
	return out
}
