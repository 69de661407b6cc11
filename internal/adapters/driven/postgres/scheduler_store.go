package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SchedulerStore = (*SchedulerStore)(nil)

const scheduledTaskColumns = `id, name, type, interval_ns, enabled, next_run, last_run, last_error`

// SchedulerStore implements driven.SchedulerStore using PostgreSQL
type SchedulerStore struct {
	db *DB
}

// NewSchedulerStore creates a new SchedulerStore
func NewSchedulerStore(db *DB) *SchedulerStore {
	return &SchedulerStore{db: db}
}

// ListScheduledTasks retrieves all scheduled tasks
func (s *SchedulerStore) ListScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+scheduledTaskColumns+` FROM scheduled_tasks
		ORDER BY next_run ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanScheduledTasks(rows)
}

// SaveScheduledTask creates or updates a scheduled task
func (s *SchedulerStore) SaveScheduledTask(ctx context.Context, task *domain.ScheduledTask) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (`+scheduledTaskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			interval_ns = EXCLUDED.interval_ns,
			enabled = EXCLUDED.enabled,
			next_run = EXCLUDED.next_run,
			last_run = EXCLUDED.last_run,
			last_error = EXCLUDED.last_error`,
		task.ID,
		task.Name,
		string(task.Type),
		int64(task.Interval),
		task.Enabled,
		task.NextRun,
		NullTime(task.LastRun),
		NullString(task.LastError),
	)
	return err
}

// GetDueScheduledTasks retrieves enabled tasks whose next run has passed
func (s *SchedulerStore) GetDueScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+scheduledTaskColumns+` FROM scheduled_tasks
		WHERE enabled = true AND next_run <= $1
		ORDER BY next_run ASC`, time.Now())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanScheduledTasks(rows)
}

// UpdateLastRun records a run and moves next_run forward by the interval
func (s *SchedulerStore) UpdateLastRun(ctx context.Context, id string, lastError string) error {
	now := time.Now()

	var intervalNs int64
	err := s.db.QueryRowContext(ctx, `SELECT interval_ns FROM scheduled_tasks WHERE id = $1`, id).Scan(&intervalNs)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_tasks
		SET last_run = $1, next_run = $2, last_error = $3
		WHERE id = $4`,
		now, now.Add(time.Duration(intervalNs)), NullString(lastError), id)
	if err != nil {
		return err
	}
	return expectRow(result)
}

func scanScheduledTasks(rows *sql.Rows) ([]*domain.ScheduledTask, error) {
	tasks := []*domain.ScheduledTask{}
	for rows.Next() {
		var task domain.ScheduledTask
		var lastRun sql.NullTime
		var lastError sql.NullString
		var intervalNs int64

		err := rows.Scan(
			&task.ID,
			&task.Name,
			&task.Type,
			&intervalNs,
			&task.Enabled,
			&task.NextRun,
			&lastRun,
			&lastError,
		)
		if err != nil {
			return nil, err
		}

		task.Interval = time.Duration(intervalNs)
		task.LastRun = TimePtr(lastRun)
		task.LastError = lastError.String
		tasks = append(tasks, &task)
	}
	return tasks, rows.Err()
}
