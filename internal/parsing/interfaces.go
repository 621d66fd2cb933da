package parsing

import (
	"context"
	"time"
)

// TaskStore persists task and site metadata.
type TaskStore interface {
	CreateTask(ctx context.Context, task Task) error
	GetTask(ctx context.Context, taskID string) (Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error)
	UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, errText string, counters TaskCounters) error
	AddParsedSite(ctx context.Context, site ParsedSite) error
	ListSites(ctx context.Context, taskID string) ([]ParsedSite, error)
	DeleteTask(ctx context.Context, taskID string) error
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// SearchProvider turns a query into ranked site candidates.
type SearchProvider interface {
	Discover(ctx context.Context, query string, count int) ([]SearchResult, error)
}

// FormValidator judges whether a candidate is a genuine contact form.
// Implementations must map their own failures to JudgmentDecline.
type FormValidator interface {
	Validate(ctx context.Context, candidate FormCandidate, pageContext string) (Judgment, error)
}

// Publisher pushes task completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore writes raw page snapshots and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Queue provides enqueue/dequeue semantics for task items.
type Queue interface {
	Enqueue(ctx context.Context, item TaskItem) error
	Dequeue(ctx context.Context) (TaskItem, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
