package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

const (
	taskStream     = "sercha:tasks"
	taskGroup      = "sercha:workers"
	scheduledTasks = "sercha:scheduled"

	taskKeyPrefix = "sercha:task:"
	msgKeyPrefix  = "sercha:taskmsg:"

	consumerPrefix = "worker-"

	// claimTimeout is how long a delivered message may sit unacknowledged
	// before another worker takes it over.
	claimTimeout = 5 * time.Minute

	taskTTL = 24 * time.Hour
)

// Verify interface compliance
var _ driven.TaskQueue = (*Queue)(nil)

// Queue implements TaskQueue using Redis Streams and a consumer group.
// Task bodies are JSON values keyed by task ID; the stream carries only
// references. Delayed tasks wait in a sorted set scored by due time.
type Queue struct {
	client       *redis.Client
	consumerName string
}

// NewQueue creates a new Redis-backed task queue.
// consumerName should be unique per worker instance.
func NewQueue(ctx context.Context, client *redis.Client, consumerName string) (*Queue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if consumerName == "" {
		consumerName = consumerPrefix + strconv.FormatInt(time.Now().UnixNano(), 10)
	}

	err := client.XGroupCreateMkStream(ctx, taskStream, taskGroup, "0").Err()
	if err != nil && !isGroupExistsError(err) {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &Queue{client: client, consumerName: consumerName}, nil
}

// Enqueue adds a task to the queue for processing.
func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return fmt.Errorf("%w: task is required", domain.ErrInvalidInput)
	}
	return q.EnqueueBatch(ctx, []*domain.Task{task})
}

// EnqueueBatch adds multiple tasks in one transaction.
func (q *Queue) EnqueueBatch(ctx context.Context, tasks []*domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	now := time.Now()
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, task := range tasks {
			if task == nil {
				continue
			}
			if err := saveTask(ctx, pipe, task); err != nil {
				return err
			}
			if task.ScheduledFor.After(now) {
				schedule(ctx, pipe, task)
			} else {
				publish(ctx, pipe, task)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue tasks: %w", err)
	}
	return nil
}

// Dequeue claims the next available task without blocking.
func (q *Queue) Dequeue(ctx context.Context) (*domain.Task, error) {
	return q.DequeueWithTimeout(ctx, 0)
}

// DequeueWithTimeout claims the next available task, blocking on the
// stream for up to timeout seconds. Returns nil, nil when nothing arrives.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	if err := q.promoteScheduledTasks(ctx); err != nil {
		return nil, fmt.Errorf("promote scheduled tasks: %w", err)
	}

	if task, err := q.claimAbandonedTask(ctx); err != nil || task != nil {
		return task, err
	}

	// go-redis omits BLOCK for negative durations
	block := time.Duration(-1)
	if timeout > 0 {
		block = time.Duration(timeout) * time.Second
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    taskGroup,
		Consumer: q.consumerName,
		Streams:  []string{taskStream, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}

	return q.start(ctx, streams[0].Messages[0])
}

// start marks the referenced task processing and remembers its message ID.
// Messages pointing at missing tasks are dropped.
func (q *Queue) start(ctx context.Context, msg redis.XMessage) (*domain.Task, error) {
	taskID, _ := msg.Values["task_id"].(string)
	task, err := q.GetTask(ctx, taskID)
	if errors.Is(err, domain.ErrNotFound) {
		q.client.XAck(ctx, taskStream, taskGroup, msg.ID)
		q.client.XDel(ctx, taskStream, msg.ID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	task.MarkProcessing()
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if err := saveTask(ctx, pipe, task); err != nil {
			return err
		}
		pipe.Set(ctx, msgKeyPrefix+task.ID, msg.ID, taskTTL)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark task processing: %w", err)
	}
	return task, nil
}

// Ack acknowledges successful completion of a task.
func (q *Queue) Ack(ctx context.Context, taskID string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	task.MarkCompleted()
	return q.finish(ctx, task, nil)
}

// Nack records a failed attempt and reschedules the task while attempts remain.
func (q *Queue) Nack(ctx context.Context, taskID string, reason string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	if task.CanRetry() {
		task.Retry(reason)
		return q.finish(ctx, task, schedule)
	}
	task.MarkFailed(reason)
	return q.finish(ctx, task, nil)
}

// finish acknowledges the stream message, saves the task and optionally
// requeues it, all in one transaction.
func (q *Queue) finish(ctx context.Context, task *domain.Task, requeue func(context.Context, redis.Pipeliner, *domain.Task)) error {
	msgID, err := q.client.Get(ctx, msgKeyPrefix+task.ID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to get message ID: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if msgID != "" {
			pipe.XAck(ctx, taskStream, taskGroup, msgID)
			pipe.XDel(ctx, taskStream, msgID)
		}
		pipe.Del(ctx, msgKeyPrefix+task.ID)
		if err := saveTask(ctx, pipe, task); err != nil {
			return err
		}
		if requeue != nil {
			requeue(ctx, pipe, task)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to settle task %s: %w", task.ID, err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (q *Queue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	if taskID == "" {
		return nil, domain.ErrNotFound
	}
	data, err := q.client.Get(ctx, taskKeyPrefix+taskID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

// ListTasks scans stored tasks and applies the filter. O(N) in stored tasks.
func (q *Queue) ListTasks(ctx context.Context, filter driven.TaskFilter) ([]*domain.Task, error) {
	tasks := []*domain.Task{}
	skipped := 0
	err := q.eachTask(ctx, func(_ string, task *domain.Task) bool {
		if filter.Status != "" && task.Status != filter.Status {
			return true
		}
		if filter.Type != "" && task.Type != filter.Type {
			return true
		}
		if skipped < filter.Offset {
			skipped++
			return true
		}
		tasks = append(tasks, task)
		return filter.Limit <= 0 || len(tasks) < filter.Limit
	})
	return tasks, err
}

// PurgeTasks removes completed/failed tasks older than the given age.
func (q *Queue) PurgeTasks(ctx context.Context, olderThanSeconds int) (int, error) {
	cutoff := time.Now().Add(-time.Duration(olderThanSeconds) * time.Second)
	var stale []string
	err := q.eachTask(ctx, func(key string, task *domain.Task) bool {
		terminal := task.Status == domain.TaskStatusCompleted || task.Status == domain.TaskStatusFailed
		if terminal && task.UpdatedAt.Before(cutoff) {
			stale = append(stale, key)
		}
		return true
	})
	if err != nil || len(stale) == 0 {
		return 0, err
	}

	n, err := q.client.Del(ctx, stale...).Result()
	return int(n), err
}

// Stats returns queue statistics.
func (q *Queue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	stats := &driven.QueueStats{}
	now := time.Now()

	err := q.eachTask(ctx, func(_ string, task *domain.Task) bool {
		switch task.Status {
		case domain.TaskStatusPending:
			stats.PendingCount++
			if age := int64(now.Sub(task.CreatedAt).Seconds()); age > stats.OldestPendingAge {
				stats.OldestPendingAge = age
			}
		case domain.TaskStatusProcessing:
			stats.ProcessingCount++
		case domain.TaskStatusCompleted:
			stats.CompletedCount++
		case domain.TaskStatusFailed:
			stats.FailedCount++
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Ping checks if the queue backend is healthy.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close is a no-op; the Redis client is shared.
func (q *Queue) Close() error {
	return nil
}

// eachTask scans stored task bodies until fn returns false.
// Unreadable entries are skipped.
func (q *Queue) eachTask(ctx context.Context, fn func(key string, task *domain.Task) bool) error {
	iter := q.client.Scan(ctx, 0, taskKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := q.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var task domain.Task
		if json.Unmarshal(data, &task) != nil {
			continue
		}
		if !fn(key, &task) {
			return nil
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan tasks: %w", err)
	}
	return nil
}

// promoteScheduledTasks moves due delayed tasks onto the stream.
func (q *Queue) promoteScheduledTasks(ctx context.Context) error {
	due, err := q.client.ZRangeByScore(ctx, scheduledTasks, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil || len(due) == 0 {
		return err
	}

	for _, taskID := range due {
		// ZRem decides which worker promotes the task
		removed, err := q.client.ZRem(ctx, scheduledTasks, taskID).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		task, err := q.GetTask(ctx, taskID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := publish(ctx, q.client, task).Err(); err != nil {
			return err
		}
	}
	return nil
}

// claimAbandonedTask takes over a message another consumer left unacknowledged.
func (q *Queue) claimAbandonedTask(ctx context.Context) (*domain.Task, error) {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: taskStream,
		Group:  taskGroup,
		Start:  "-",
		End:    "+",
		Count:  10,
		Idle:   claimTimeout,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending messages: %w", err)
	}

	for _, p := range pending {
		claimed, err := q.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   taskStream,
			Group:    taskGroup,
			Consumer: q.consumerName,
			MinIdle:  claimTimeout,
			Messages: []string{p.ID},
		}).Result()
		if err != nil || len(claimed) == 0 {
			continue
		}
		task, err := q.start(ctx, claimed[0])
		if err != nil || task != nil {
			return task, err
		}
	}
	return nil, nil
}

func saveTask(ctx context.Context, pipe redis.Cmdable, task *domain.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", task.ID, err)
	}
	pipe.Set(ctx, taskKeyPrefix+task.ID, data, taskTTL)
	return nil
}

func publish(ctx context.Context, pipe redis.Cmdable, task *domain.Task) *redis.StringCmd {
	return pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: taskStream,
		Values: map[string]any{
			"task_id":  task.ID,
			"type":     string(task.Type),
			"priority": task.Priority,
		},
	})
}

func schedule(ctx context.Context, pipe redis.Pipeliner, task *domain.Task) {
	pipe.ZAdd(ctx, scheduledTasks, redis.Z{
		Score:  float64(task.ScheduledFor.Unix()),
		Member: task.ID,
	})
}

func isGroupExistsError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
