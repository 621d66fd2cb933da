// Package postgres provides the Postgres-backed task store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadharvest/contactcrawler/internal/parsing"
)

// Expected schema:
//
//	CREATE TABLE tasks (
//	    id UUID PRIMARY KEY,
//	    kind TEXT NOT NULL,
//	    status TEXT NOT NULL,
//	    parameters JSONB NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL,
//	    completed_at TIMESTAMPTZ,
//	    error_message TEXT NOT NULL DEFAULT '',
//	    total_domains INT NOT NULL DEFAULT 0,
//	    successful_domains INT NOT NULL DEFAULT 0,
//	    total_emails INT NOT NULL DEFAULT 0,
//	    total_forms INT NOT NULL DEFAULT 0
//	);
//
//	CREATE TABLE parsed_sites (
//	    id BIGSERIAL PRIMARY KEY,
//	    task_id UUID NOT NULL REFERENCES tasks(id),
//	    domain TEXT NOT NULL,
//	    url TEXT NOT NULL,
//	    title TEXT NOT NULL DEFAULT '',
//	    snippet TEXT NOT NULL DEFAULT '',
//	    status TEXT NOT NULL,
//	    emails JSONB NOT NULL DEFAULT '[]',
//	    contact_forms JSONB NOT NULL DEFAULT '[]',
//	    processing_time DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    error_message TEXT NOT NULL DEFAULT '',
//	    parsed_at TIMESTAMPTZ NOT NULL
//	);

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// dbPool is the slice of pgxpool.Pool the store needs; pgxmock satisfies it.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store implements parsing.TaskStore on Postgres.
type Store struct {
	pool dbPool
}

// NewStore connects a pool and returns the store.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for
// testing).
func NewStoreWithPool(pool dbPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close closes the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// CreateTask inserts a new task row.
func (s *Store) CreateTask(ctx context.Context, task parsing.Task) error {
	params, err := json.Marshal(task.Parameters)
	if err != nil {
		return fmt.Errorf("marshal task parameters: %w", err)
	}
	query := `
		INSERT INTO tasks (id, kind, status, parameters, created_at, error_message,
			total_domains, successful_domains, total_emails, total_forms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.pool.Exec(ctx, query,
		task.ID,
		string(task.Kind),
		string(task.Status),
		params,
		task.CreatedAt,
		task.ErrorText,
		task.Counters.TotalDomains,
		task.Counters.SuccessfulDomains,
		task.Counters.TotalEmails,
		task.Counters.TotalForms,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

const taskColumns = `id, kind, status, parameters, created_at, completed_at, error_message,
	total_domains, successful_domains, total_emails, total_forms`

// GetTask returns one task by ID.
func (s *Store) GetTask(ctx context.Context, taskID string) (parsing.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	task, err := scanTask(s.pool.QueryRow(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return parsing.Task{}, parsing.ErrTaskNotFound
		}
		return parsing.Task{}, fmt.Errorf("select task: %w", err)
	}
	return task, nil
}

// ListTasks returns tasks matching the filter, newest first.
func (s *Store) ListTasks(ctx context.Context, filter parsing.TaskFilter) ([]parsing.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	args := []any{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" WHERE status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []parsing.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks rows: %w", err)
	}
	return tasks, nil
}

// UpdateTaskStatus applies a transition from running. Rows already terminal
// are left untouched and reported as ErrTaskFinished.
func (s *Store) UpdateTaskStatus(ctx context.Context, taskID string, status parsing.TaskStatus, errText string, counters parsing.TaskCounters) error {
	query := `
		UPDATE tasks
		SET status = $1, error_message = $2,
			total_domains = $3, successful_domains = $4,
			total_emails = $5, total_forms = $6,
			completed_at = CASE WHEN $1 IN ('completed', 'failed') THEN NOW() ELSE completed_at END
		WHERE id = $7 AND status = 'running'
	`
	tag, err := s.pool.Exec(ctx, query,
		string(status),
		errText,
		counters.TotalDomains,
		counters.SuccessfulDomains,
		counters.TotalEmails,
		counters.TotalForms,
		taskID,
	)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Distinguish a missing task from a finished one.
	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM tasks WHERE id = $1`, taskID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return parsing.ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("check task status: %w", err)
	}
	return parsing.ErrTaskFinished
}

// AddParsedSite appends a site row to its owning task.
func (s *Store) AddParsedSite(ctx context.Context, site parsing.ParsedSite) error {
	emails, err := json.Marshal(emptyIfNil(site.Emails))
	if err != nil {
		return fmt.Errorf("marshal emails: %w", err)
	}
	forms, err := json.Marshal(emptyIfNil(site.ContactForms))
	if err != nil {
		return fmt.Errorf("marshal contact forms: %w", err)
	}
	query := `
		INSERT INTO parsed_sites (task_id, domain, url, title, snippet, status,
			emails, contact_forms, processing_time, error_message, parsed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.pool.Exec(ctx, query,
		site.TaskID,
		site.Domain,
		site.URL,
		site.Title,
		site.Snippet,
		string(site.Status),
		emails,
		forms,
		site.ProcessingTime,
		site.ErrorText,
		site.ParsedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return parsing.ErrTaskNotFound
		}
		return fmt.Errorf("insert parsed site: %w", err)
	}
	return nil
}

// ListSites returns the site rows of a task in insertion order.
func (s *Store) ListSites(ctx context.Context, taskID string) ([]parsing.ParsedSite, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, taskID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check task: %w", err)
	}
	if !exists {
		return nil, parsing.ErrTaskNotFound
	}

	query := `
		SELECT task_id, domain, url, title, snippet, status, emails, contact_forms,
			processing_time, error_message, parsed_at
		FROM parsed_sites
		WHERE task_id = $1
		ORDER BY id
	`
	rows, err := s.pool.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var sites []parsing.ParsedSite
	for rows.Next() {
		var (
			site       parsing.ParsedSite
			status     string
			emailsJSON []byte
			formsJSON  []byte
		)
		err := rows.Scan(
			&site.TaskID, &site.Domain, &site.URL, &site.Title, &site.Snippet,
			&status, &emailsJSON, &formsJSON,
			&site.ProcessingTime, &site.ErrorText, &site.ParsedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		site.Status = parsing.SiteStatus(status)
		if err := json.Unmarshal(emailsJSON, &site.Emails); err != nil {
			return nil, fmt.Errorf("unmarshal emails: %w", err)
		}
		if err := json.Unmarshal(formsJSON, &site.ContactForms); err != nil {
			return nil, fmt.Errorf("unmarshal contact forms: %w", err)
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sites rows: %w", err)
	}
	return sites, nil
}

// DeleteTask removes a task and its site rows in one transaction.
func (s *Store) DeleteTask(ctx context.Context, taskID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM parsed_sites WHERE task_id = $1`, taskID); err != nil {
		return fmt.Errorf("delete parsed sites: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return parsing.ErrTaskNotFound
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// scanTask reads one task row; rows and single-row results share pgx.Row.
func scanTask(row pgx.Row) (parsing.Task, error) {
	var (
		task        parsing.Task
		kind        string
		status      string
		paramsJSON  []byte
		completedAt *time.Time
	)
	err := row.Scan(
		&task.ID, &kind, &status, &paramsJSON, &task.CreatedAt, &completedAt, &task.ErrorText,
		&task.Counters.TotalDomains, &task.Counters.SuccessfulDomains,
		&task.Counters.TotalEmails, &task.Counters.TotalForms,
	)
	if err != nil {
		return parsing.Task{}, err
	}
	task.Kind = parsing.TaskKind(kind)
	task.Status = parsing.TaskStatus(status)
	task.CompletedAt = completedAt
	if err := json.Unmarshal(paramsJSON, &task.Parameters); err != nil {
		return parsing.Task{}, fmt.Errorf("unmarshal task parameters: %w", err)
	}
	return task, nil
}

func emptyIfNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
