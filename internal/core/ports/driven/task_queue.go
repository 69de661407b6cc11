package driven

import (
	"context"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
)

// TaskQueue handles background task queuing and processing.
// Implementations use Redis Streams when configured, Postgres otherwise.
type TaskQueue interface {
	// Enqueue adds a task to the queue for processing.
	Enqueue(ctx context.Context, task *domain.Task) error

	// EnqueueBatch adds multiple tasks to the queue atomically.
	EnqueueBatch(ctx context.Context, tasks []*domain.Task) error

	// Dequeue retrieves the next available task without waiting.
	// Returns nil, nil if no tasks are available.
	Dequeue(ctx context.Context) (*domain.Task, error)

	// DequeueWithTimeout retrieves the next available task, waiting up to timeout seconds.
	// Returns nil, nil if timeout is reached with no tasks available.
	DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error)

	// Ack acknowledges successful completion of a task.
	Ack(ctx context.Context, taskID string) error

	// Nack reports a failed attempt. The task is rescheduled with backoff
	// while attempts remain, otherwise it is marked failed.
	Nack(ctx context.Context, taskID string, reason string) error

	// GetTask retrieves a task by ID (for status checking).
	GetTask(ctx context.Context, taskID string) (*domain.Task, error)

	// ListTasks retrieves tasks matching the filter criteria.
	ListTasks(ctx context.Context, filter TaskFilter) ([]*domain.Task, error)

	// PurgeTasks removes completed/failed tasks older than the given number of seconds.
	PurgeTasks(ctx context.Context, olderThan int) (int, error)

	// Stats returns queue statistics.
	Stats(ctx context.Context) (*QueueStats, error)

	// Ping checks if the queue backend is healthy.
	Ping(ctx context.Context) error

	// Close cleans up resources.
	Close() error
}

// TaskFilter specifies criteria for listing tasks
type TaskFilter struct {
	Status domain.TaskStatus // empty means all
	Type   domain.TaskType   // empty means all
	Limit  int
	Offset int
}

// QueueStats contains queue statistics
type QueueStats struct {
	PendingCount     int64 `json:"pending_count"`
	ProcessingCount  int64 `json:"processing_count"`
	CompletedCount   int64 `json:"completed_count"`
	FailedCount      int64 `json:"failed_count"`
	OldestPendingAge int64 `json:"oldest_pending_age"` // seconds
}

// SchedulerStore persists recurring task definitions and their run history.
type SchedulerStore interface {
	// ListScheduledTasks retrieves all scheduled tasks
	ListScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error)

	// SaveScheduledTask creates or updates a scheduled task
	SaveScheduledTask(ctx context.Context, task *domain.ScheduledTask) error

	// GetDueScheduledTasks retrieves enabled scheduled tasks whose next run has passed
	GetDueScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error)

	// UpdateLastRun records a run and advances the next run time
	UpdateLastRun(ctx context.Context, id string, lastError string) error
}
