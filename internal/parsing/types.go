// Package parsing defines core types shared across subsystems.
package parsing

import (
	"errors"
	"net/http"
	"time"
)

// TaskKind distinguishes the two units of work the service accepts.
type TaskKind string

// Task kinds persisted in the task store.
const (
	TaskKindSingleSite TaskKind = "single_site"
	TaskKindBatchParse TaskKind = "batch_parse"
)

// TaskStatus represents the lifecycle state of a parsing task.
type TaskStatus string

// Task status values persisted in the task store.
const (
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether a status permits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// SiteStatus is the per-site outcome recorded on a ParsedSite row.
type SiteStatus string

// Site status values.
const (
	SiteStatusSuccess SiteStatus = "success"
	SiteStatusFailed  SiteStatus = "failed"
)

// Sentinel errors surfaced by task stores.
var (
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskFinished = errors.New("task already finished")
)

// SingleSiteParams are the immutable inputs of a single-site task.
type SingleSiteParams struct {
	URL         string `json:"url"`
	SkipSitemap bool   `json:"skip_sitemap"`
	UseAI       bool   `json:"use_ai_validation"`
}

// BatchParams are the immutable inputs of a batch task.
type BatchParams struct {
	Query       string `json:"query"`
	NumResults  int    `json:"num_results"`
	SkipSitemap bool   `json:"skip_sitemap"`
	UseAI       bool   `json:"use_ai_validation"`
}

// TaskParameters is the per-kind parameter payload. Exactly one arm is set,
// matching the owning Task's Kind.
type TaskParameters struct {
	SingleSite *SingleSiteParams `json:"single_site,omitempty"`
	Batch      *BatchParams      `json:"batch_parse,omitempty"`
}

// Validate checks that the parameter arm matches the task kind.
func (p TaskParameters) Validate(kind TaskKind) error {
	switch kind {
	case TaskKindSingleSite:
		if p.SingleSite == nil || p.Batch != nil {
			return errors.New("single_site parameters required")
		}
	case TaskKindBatchParse:
		if p.Batch == nil || p.SingleSite != nil {
			return errors.New("batch_parse parameters required")
		}
	default:
		return errors.New("unknown task kind")
	}
	return nil
}

// TaskCounters aggregates per-task results across sites.
type TaskCounters struct {
	TotalDomains      int `json:"total_domains"`
	SuccessfulDomains int `json:"successful_domains"`
	TotalEmails       int `json:"total_emails"`
	TotalForms        int `json:"total_forms"`
}

// Task is the metadata persisted for each submitted parse request.
type Task struct {
	ID          string         `json:"id"`
	Kind        TaskKind       `json:"kind"`
	Status      TaskStatus     `json:"status"`
	Parameters  TaskParameters `json:"parameters"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	ErrorText   string         `json:"error_message,omitempty"`
	Counters    TaskCounters   `json:"counters"`
}

// ParsedSite is the extraction result for one site within a task.
// Rows are written exactly once by the worker that produced them.
type ParsedSite struct {
	TaskID         string     `json:"task_id"`
	Domain         string     `json:"domain"`
	URL            string     `json:"url"`
	Title          string     `json:"title,omitempty"`
	Snippet        string     `json:"snippet,omitempty"`
	Status         SiteStatus `json:"status"`
	Emails         []string   `json:"emails"`
	ContactForms   []string   `json:"contact_forms"`
	ProcessingTime float64    `json:"processing_time"`
	ErrorText      string     `json:"error_message,omitempty"`
	ParsedAt       time.Time  `json:"parsed_at"`
}

// TaskFilter narrows ListTasks results.
type TaskFilter struct {
	Status TaskStatus
	Limit  int
	Offset int
}

// TaskItem wraps a task ready to run on the worker pool.
type TaskItem struct {
	TaskID    string
	Kind      TaskKind
	Params    TaskParameters
	Submitted int64
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// SearchResult is one ranked entry returned by the search provider.
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Domain  string `json:"domain"`
}

// FormCandidate is a scored contact-form candidate found on a page.
type FormCandidate struct {
	ActionURL string
	Score     int
	HTML      string
	Context   string
}

// Judgment is the AI validator's verdict on a form candidate.
type Judgment int

// Judgment values. Decline means the validator had no usable opinion;
// the candidate's heuristic score stands.
const (
	JudgmentDecline Judgment = iota
	JudgmentAccept
	JudgmentReject
)
