// Package memory provides queue implementations for local development.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/leadharvest/contactcrawler/internal/parsing"
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan parsing.TaskItem
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan parsing.TaskItem, capacity),
	}
}

// Enqueue pushes a task item into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, item parsing.TaskItem) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next task item, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (parsing.TaskItem, error) {
	select {
	case <-ctx.Done():
		return parsing.TaskItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return parsing.TaskItem{}, errors.New("queue closed")
		}
		return item, nil
	}
}

// Close closes the underlying channel for shutdown.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
