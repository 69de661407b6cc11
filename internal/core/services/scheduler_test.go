package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven/mocks"
)

func dueSchedule(id string) *domain.ScheduledTask {
	st := domain.NewScheduledTask(id, "Sweep", domain.TaskTypeSweepOrphans, time.Hour)
	st.NextRun = time.Now().Add(-time.Second)
	return st
}

func TestNewScheduler_Defaults(t *testing.T) {
	s := NewScheduler(SchedulerConfig{
		Store:     mocks.NewMockSchedulerStore(),
		TaskQueue: mocks.NewMockTaskQueue(),
	})

	if s.interval != 30*time.Second {
		t.Errorf("expected default interval 30s, got %v", s.interval)
	}
	if s.lockTTL != time.Minute {
		t.Errorf("expected lock TTL of twice the interval, got %v", s.lockTTL)
	}
	if s.logger == nil {
		t.Error("expected default logger")
	}
}

func TestScheduler_TickEnqueuesDueTasks(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMockSchedulerStore()
	queue := mocks.NewMockTaskQueue()
	_ = store.SaveScheduledTask(ctx, dueSchedule("due"))
	_ = store.SaveScheduledTask(ctx, domain.NewScheduledTask("later", "Later", domain.TaskTypeSweepOrphans, time.Hour))

	s := NewScheduler(SchedulerConfig{Store: store, TaskQueue: queue})
	s.Tick(ctx)

	tasks := queue.Tasks()
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].Type != domain.TaskTypeSweepOrphans {
		t.Errorf("expected sweep task, got %s", tasks[0].Type)
	}

	// The schedule moved forward, so a second tick enqueues nothing.
	s.Tick(ctx)
	if n := len(queue.Tasks()); n != 1 {
		t.Errorf("expected still 1 task, got %d", n)
	}
}

func TestScheduler_TickRecordsEnqueueError(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMockSchedulerStore()
	queue := mocks.NewMockTaskQueue()
	queue.EnqueueFn = func(*domain.Task) error { return errors.New("queue down") }
	_ = store.SaveScheduledTask(ctx, dueSchedule("due"))

	NewScheduler(SchedulerConfig{Store: store, TaskQueue: queue}).Tick(ctx)

	tasks, _ := store.ListScheduledTasks(ctx)
	if tasks[0].LastError != "queue down" {
		t.Errorf("expected last error to be recorded, got %q", tasks[0].LastError)
	}
	if tasks[0].LastRun == nil {
		t.Error("expected last run to be set")
	}
}

func TestScheduler_SkipsWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMockSchedulerStore()
	queue := mocks.NewMockTaskQueue()
	lock := mocks.NewMockDistributedLock()
	lock.HoldFor(schedulerLockName, time.Minute)
	_ = store.SaveScheduledTask(ctx, dueSchedule("due"))

	NewScheduler(SchedulerConfig{Store: store, TaskQueue: queue, Lock: lock}).Tick(ctx)

	if n := len(queue.Tasks()); n != 0 {
		t.Errorf("expected no tasks while another instance holds the lock, got %d", n)
	}
}

func TestScheduler_ReleasesLock(t *testing.T) {
	ctx := context.Background()
	lock := mocks.NewMockDistributedLock()
	s := NewScheduler(SchedulerConfig{
		Store:     mocks.NewMockSchedulerStore(),
		TaskQueue: mocks.NewMockTaskQueue(),
		Lock:      lock,
	})

	s.Tick(ctx)

	if lock.Held(schedulerLockName) {
		t.Error("expected lock to be released after the cycle")
	}
	if n := lock.Acquisitions(schedulerLockName); n != 1 {
		t.Errorf("expected one acquisition, got %d", n)
	}
}

func TestScheduler_LockErrorSkipsCycle(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMockSchedulerStore()
	queue := mocks.NewMockTaskQueue()
	lock := mocks.NewMockDistributedLock()
	lock.AcquireErr = errors.New("redis down")
	_ = store.SaveScheduledTask(ctx, dueSchedule("due"))

	NewScheduler(SchedulerConfig{Store: store, TaskQueue: queue, Lock: lock}).Tick(ctx)

	if n := len(queue.Tasks()); n != 0 {
		t.Errorf("expected no tasks, got %d", n)
	}
}

func TestScheduler_EnsureSchedules(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewMockSchedulerStore()
	s := NewScheduler(SchedulerConfig{Store: store, TaskQueue: mocks.NewMockTaskQueue()})

	disabled := domain.NewScheduledTask("orphan-sweep", "Sweep", domain.TaskTypeSweepOrphans, time.Hour)
	disabled.Enabled = false
	_ = store.SaveScheduledTask(ctx, disabled)

	if err := s.EnsureSchedules(ctx, domain.DefaultSchedules(15*time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tasks, _ := store.ListScheduledTasks(ctx)
	if len(tasks) != 1 {
		t.Fatalf("expected 1 schedule, got %d", len(tasks))
	}
	if tasks[0].Enabled {
		t.Error("existing schedule should keep its enabled flag")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	store := mocks.NewMockSchedulerStore()
	_ = store.SaveScheduledTask(context.Background(), dueSchedule("due"))

	s := NewScheduler(SchedulerConfig{
		Store:        store,
		TaskQueue:    queue,
		PollInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	s.Start(ctx) // no-op

	deadline := time.Now().Add(time.Second)
	for len(queue.Tasks()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	s.Stop() // no-op

	if len(queue.Tasks()) != 1 {
		t.Errorf("expected the first cycle to enqueue the due task, got %d", len(queue.Tasks()))
	}

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		t.Error("expected scheduler to be stopped")
	}
}
