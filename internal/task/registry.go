package task

import (
	"context"
	"sync"
)

// Registry tracks the cancel function of every task currently being worked
// on, so deletion can stop in-flight work.
type Registry struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{cancels: make(map[string]context.CancelFunc)}
}

// Register derives a cancelable context for a task and tracks it until
// Release is called.
func (r *Registry) Register(taskID string, parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	r.mu.Lock()
	r.cancels[taskID] = cancel
	r.mu.Unlock()
	return ctx, cancel
}

// Release forgets a task. The caller still owns the cancel function.
func (r *Registry) Release(taskID string) {
	r.mu.Lock()
	delete(r.cancels, taskID)
	r.mu.Unlock()
}

// Cancel stops the in-flight work of a task, if any. It reports whether a
// registered task was found.
func (r *Registry) Cancel(taskID string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[taskID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}
