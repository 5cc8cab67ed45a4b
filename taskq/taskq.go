// Package taskq is an SQLite-backed conversion task queue with visibility
// timeout and built-in status tracking.
//
// Rows are invisible to consumers for a configurable duration after being
// claimed. A worker that finishes marks the task SUCCESS or FAILURE; a
// worker that crashes or exceeds the timeout lets the row reappear, so
// another instance can claim it. The same row doubles as the task's audit
// record: status, progress, result and error live with the job and survive
// it, which is what the task API serves back to clients.
//
// The queue is pure SQLite — no external broker.
package taskq

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/markmuse/markmuse/dbopen"
)

// Task statuses, mirroring the lifecycle the API exposes.
const (
	StatusPending  = "PENDING"  // enqueued, not yet claimed
	StatusStarted  = "STARTED"  // claimed by a worker
	StatusProgress = "PROGRESS" // worker reported progress
	StatusSuccess  = "SUCCESS"  // terminal: result is set
	StatusFailure  = "FAILURE"  // terminal: error is set
)

// Task is one queue row.
type Task struct {
	ID          string
	Kind        string
	Payload     []byte
	Status      string
	Progress    int
	ProgressMsg string
	Result      string
	Error       string
	Attempts    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Done reports whether the task reached a terminal status.
func (t *Task) Done() bool {
	return t.Status == StatusSuccess || t.Status == StatusFailure
}

// Options configures queue behaviour.
type Options struct {
	// Visibility is how long a claimed task stays invisible. Default: 10m —
	// conversions are slow (OCR + per-image description calls).
	Visibility time.Duration
	// PollInterval is the delay between claim attempts in the Run loop.
	// Default: 1s.
	PollInterval time.Duration
	// MaxAttempts limits redeliveries before a task is failed permanently.
	// Default: 3.
	MaxAttempts int
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Visibility <= 0 {
		o.Visibility = 10 * time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Q is the queue handle.
type Q struct {
	db   *sql.DB
	opts Options
}

// New creates a queue handle. Call EnsureSchema once at startup.
func New(db *sql.DB, opts Options) *Q {
	opts.defaults()
	return &Q{db: db, opts: opts}
}

// EnsureSchema creates the tasks table and indexes if they don't exist.
func (q *Q) EnsureSchema(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tasks (
			id           TEXT PRIMARY KEY,
			kind         TEXT NOT NULL,
			payload      BLOB,
			status       TEXT NOT NULL DEFAULT 'PENDING',
			progress     INTEGER NOT NULL DEFAULT 0,
			progress_msg TEXT NOT NULL DEFAULT '',
			result       TEXT NOT NULL DEFAULT '',
			error        TEXT NOT NULL DEFAULT '',
			attempts     INTEGER NOT NULL DEFAULT 0,
			visible_at   INTEGER NOT NULL DEFAULT 0,  -- milliseconds since epoch
			created_at   INTEGER NOT NULL,
			updated_at   INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_visible ON tasks (status, visible_at);
		CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks (created_at DESC);
	`)
	return err
}

// Enqueue inserts a task that is immediately visible and returns its ID.
func (q *Q) Enqueue(ctx context.Context, kind string, payload []byte) (string, error) {
	id := uuid.NewString()
	now := time.Now().UnixMilli()
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO tasks (id, kind, payload, status, visible_at, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?)`,
		id, kind, payload, StatusPending, now, now, now)
	if err != nil {
		return "", fmt.Errorf("taskq: enqueue: %w", err)
	}
	return id, nil
}

// Claim atomically picks the oldest visible non-terminal task, marks it
// STARTED and invisible for the visibility window, and returns it.
// Returns nil, nil when nothing is claimable.
func (q *Q) Claim(ctx context.Context) (*Task, error) {
	now := time.Now()
	hideUntil := now.Add(q.opts.Visibility).UnixMilli()

	row := q.db.QueryRowContext(ctx, `
		UPDATE tasks
		SET visible_at = ?, attempts = attempts + 1, status = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM tasks
			WHERE status NOT IN (?, ?) AND visible_at <= ?
			ORDER BY visible_at ASC
			LIMIT 1
		)
		RETURNING id, kind, payload, status, progress, progress_msg, result, error, attempts, created_at, updated_at`,
		hideUntil, StatusStarted, now.UnixMilli(),
		StatusSuccess, StatusFailure, now.UnixMilli(),
	)

	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// SetProgress records a progress milestone for a running task.
func (q *Q) SetProgress(ctx context.Context, id string, percent int, message string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, progress = ?, progress_msg = ?, updated_at = ?
		WHERE id = ? AND status NOT IN (?, ?)`,
		StatusProgress, percent, message, time.Now().UnixMilli(),
		id, StatusSuccess, StatusFailure)
	return err
}

// Succeed marks a task terminally successful with its result locator.
func (q *Q) Succeed(ctx context.Context, id, result string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, progress = 100, result = ?, updated_at = ? WHERE id = ?`,
		StatusSuccess, result, time.Now().UnixMilli(), id)
	return err
}

// Fail marks a task terminally failed.
func (q *Q) Fail(ctx context.Context, id, errMsg string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		StatusFailure, errMsg, time.Now().UnixMilli(), id)
	return err
}

// Nack makes a task immediately visible again for redelivery, recording
// the error from the failed attempt.
func (q *Q) Nack(ctx context.Context, id, errMsg string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, visible_at = 0, error = ?, updated_at = ? WHERE id = ?`,
		StatusPending, errMsg, time.Now().UnixMilli(), id)
	return err
}

// Extend pushes the visibility timeout forward for a task that needs more
// processing time (heartbeat pattern).
func (q *Q) Extend(ctx context.Context, id string, extra time.Duration) error {
	hideUntil := time.Now().Add(extra).UnixMilli()
	_, err := q.db.ExecContext(ctx,
		`UPDATE tasks SET visible_at = ?, updated_at = ? WHERE id = ?`,
		hideUntil, time.Now().UnixMilli(), id)
	return err
}

// Get returns one task by ID, or nil when unknown.
func (q *Q) Get(ctx context.Context, id string) (*Task, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, kind, payload, status, progress, progress_msg, result, error, attempts, created_at, updated_at
		FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// List returns tasks newest-first, paged.
func (q *Q) List(ctx context.Context, limit, offset int) ([]*Task, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, kind, payload, status, progress, progress_msg, result, error, attempts, created_at, updated_at
		FROM tasks ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]*Task, 0, limit)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Count returns the total number of tasks.
func (q *Q) Count(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var createdAt, updatedAt int64
	err := row.Scan(&t.ID, &t.Kind, &t.Payload, &t.Status, &t.Progress,
		&t.ProgressMsg, &t.Result, &t.Error, &t.Attempts, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = time.UnixMilli(createdAt)
	t.UpdatedAt = time.UnixMilli(updatedAt)
	return &t, nil
}

// Handler processes a claimed task and returns its result locator.
// A non-nil error triggers redelivery (or permanent failure after
// MaxAttempts).
type Handler func(ctx context.Context, task *Task) (result string, err error)

// Run polls for visible tasks and calls handler for each one. It blocks
// until ctx is cancelled.
func (q *Q) Run(ctx context.Context, handler Handler) {
	log := q.opts.Logger
	log.Info("taskq: consumer started", "visibility", q.opts.Visibility, "poll", q.opts.PollInterval)

	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("taskq: consumer stopped")
			return
		case <-ticker.C:
			q.poll(ctx, handler, log)
		}
	}
}

func (q *Q) poll(ctx context.Context, handler Handler, log *slog.Logger) {
	for {
		task, err := q.Claim(ctx)
		if err != nil {
			if !dbopen.IsBusy(err) {
				log.Warn("taskq: claim failed", "error", err)
			}
			return
		}
		if task == nil {
			return // nothing visible
		}

		result, err := handler(ctx, task)
		switch {
		case err == nil:
			_ = q.Succeed(ctx, task.ID, result)
		case task.Attempts >= q.opts.MaxAttempts:
			log.Warn("taskq: task exceeded max attempts, failing",
				"id", task.ID, "attempts", task.Attempts, "error", err)
			_ = q.Fail(ctx, task.ID, err.Error())
		default:
			log.Warn("taskq: handler failed, requeueing", "id", task.ID, "error", err)
			_ = q.Nack(ctx, task.ID, err.Error())
		}
	}
}
