package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

var (
	_ driven.TaskQueue      = (*MockTaskQueue)(nil)
	_ driven.SchedulerStore = (*MockSchedulerStore)(nil)
)

// MockTaskQueue is an in-memory FIFO TaskQueue for testing.
type MockTaskQueue struct {
	mu    sync.Mutex
	tasks map[string]*domain.Task
	order []string

	EnqueueFn func(task *domain.Task) error
}

// NewMockTaskQueue creates a new MockTaskQueue
func NewMockTaskQueue() *MockTaskQueue {
	return &MockTaskQueue{
		tasks: make(map[string]*domain.Task),
	}
}

func (m *MockTaskQueue) Enqueue(ctx context.Context, task *domain.Task) error {
	return m.EnqueueBatch(ctx, []*domain.Task{task})
}

func (m *MockTaskQueue) EnqueueBatch(ctx context.Context, tasks []*domain.Task) error {
	if m.EnqueueFn != nil {
		for _, task := range tasks {
			if err := m.EnqueueFn(task); err != nil {
				return err
			}
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, task := range tasks {
		m.tasks[task.ID] = task
		m.order = append(m.order, task.ID)
	}
	return nil
}

func (m *MockTaskQueue) Dequeue(ctx context.Context) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		task := m.tasks[id]
		if task.Status == domain.TaskStatusPending && task.IsReady() {
			task.MarkProcessing()
			return task, nil
		}
	}
	return nil, nil
}

func (m *MockTaskQueue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	return m.Dequeue(ctx)
}

func (m *MockTaskQueue) Ack(ctx context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	task.MarkCompleted()
	return nil
}

func (m *MockTaskQueue) Nack(ctx context.Context, taskID string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	if task.CanRetry() {
		task.Retry(reason)
	} else {
		task.MarkFailed(reason)
	}
	return nil
}

func (m *MockTaskQueue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return task, nil
}

func (m *MockTaskQueue) ListTasks(ctx context.Context, filter driven.TaskFilter) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.Task
	for _, id := range m.order {
		task := m.tasks[id]
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		if filter.Type != "" && task.Type != filter.Type {
			continue
		}
		result = append(result, task)
	}
	return paginate(result, filter.Limit, filter.Offset), nil
}

func (m *MockTaskQueue) PurgeTasks(ctx context.Context, olderThan int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-time.Duration(olderThan) * time.Second)
	purged := 0
	kept := m.order[:0]
	for _, id := range m.order {
		task := m.tasks[id]
		done := task.Status == domain.TaskStatusCompleted || task.Status == domain.TaskStatusFailed
		if done && task.UpdatedAt.Before(cutoff) {
			delete(m.tasks, id)
			purged++
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	return purged, nil
}

func (m *MockTaskQueue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &driven.QueueStats{}
	for _, task := range m.tasks {
		switch task.Status {
		case domain.TaskStatusPending:
			stats.PendingCount++
		case domain.TaskStatusProcessing:
			stats.ProcessingCount++
		case domain.TaskStatusCompleted:
			stats.CompletedCount++
		case domain.TaskStatusFailed:
			stats.FailedCount++
		}
	}
	return stats, nil
}

func (m *MockTaskQueue) Ping(ctx context.Context) error {
	return nil
}

func (m *MockTaskQueue) Close() error {
	return nil
}

// Tasks returns all tasks in enqueue order (for test assertions).
func (m *MockTaskQueue) Tasks() []*domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*domain.Task, 0, len(m.order))
	for _, id := range m.order {
		result = append(result, m.tasks[id])
	}
	return result
}

// MockSchedulerStore is an in-memory SchedulerStore for testing.
type MockSchedulerStore struct {
	mu    sync.Mutex
	tasks map[string]*domain.ScheduledTask
}

// NewMockSchedulerStore creates a new MockSchedulerStore
func NewMockSchedulerStore() *MockSchedulerStore {
	return &MockSchedulerStore{
		tasks: make(map[string]*domain.ScheduledTask),
	}
}

func (m *MockSchedulerStore) ListScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*domain.ScheduledTask, 0, len(m.tasks))
	for _, st := range m.tasks {
		c := *st
		result = append(result, &c)
	}
	return result, nil
}

func (m *MockSchedulerStore) SaveScheduledTask(ctx context.Context, task *domain.ScheduledTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *task
	m.tasks[task.ID] = &c
	return nil
}

func (m *MockSchedulerStore) GetDueScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*domain.ScheduledTask
	for _, st := range m.tasks {
		if st.IsDue() {
			c := *st
			result = append(result, &c)
		}
	}
	return result, nil
}

func (m *MockSchedulerStore) UpdateLastRun(ctx context.Context, id string, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.tasks[id]
	if !ok {
		return domain.ErrNotFound
	}
	st.LastError = lastError
	st.UpdateNextRun()
	return nil
}
