package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

const schedulerLockName = "scheduler"

// Scheduler turns due ScheduledTasks into queue tasks.
// With a DistributedLock configured, only one instance enqueues per cycle.
type Scheduler struct {
	store     driven.SchedulerStore
	taskQueue driven.TaskQueue
	lock      driven.DistributedLock
	logger    *slog.Logger

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	interval time.Duration
	lockTTL  time.Duration
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	Store        driven.SchedulerStore
	TaskQueue    driven.TaskQueue
	Lock         driven.DistributedLock // optional
	Logger       *slog.Logger
	PollInterval time.Duration // default: 30s
	LockTTL      time.Duration // default: 2x PollInterval
}

// NewScheduler creates a new scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 2 * interval
	}

	return &Scheduler{
		store:     cfg.Store,
		taskQueue: cfg.TaskQueue,
		lock:      cfg.Lock,
		logger:    logger,
		interval:  interval,
		lockTTL:   lockTTL,
	}
}

// EnsureSchedules saves each schedule that does not exist yet.
// Existing schedules keep their run history and enabled flag.
func (s *Scheduler) EnsureSchedules(ctx context.Context, schedules []*domain.ScheduledTask) error {
	existing, err := s.store.ListScheduledTasks(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(existing))
	for _, st := range existing {
		known[st.ID] = true
	}

	for _, st := range schedules {
		if known[st.ID] {
			continue
		}
		if err := s.store.SaveScheduledTask(ctx, st); err != nil {
			return err
		}
		s.logger.Info("registered schedule", "scheduled_id", st.ID, "interval", st.Interval)
	}
	return nil
}

// Start begins the scheduler loop in the background.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	s.logger.Info("scheduler starting", "poll_interval", s.interval)
	go s.run(ctx)
}

// Stop ends the loop and waits for the current cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	done := s.doneCh
	s.running = false
	s.mu.Unlock()

	<-done
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduling cycle: enqueue every due task and advance its next run.
func (s *Scheduler) Tick(ctx context.Context) {
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, schedulerLockName, s.lockTTL)
		if err != nil {
			s.logger.Warn("failed to acquire scheduler lock", "error", err)
			return
		}
		if !acquired {
			s.logger.Debug("scheduler lock held by another instance, skipping cycle")
			return
		}
		defer func() {
			if err := s.lock.Release(ctx, schedulerLockName); err != nil {
				s.logger.Warn("failed to release scheduler lock", "error", err)
			}
		}()
	}

	due, err := s.store.GetDueScheduledTasks(ctx)
	if err != nil {
		s.logger.Error("failed to get due scheduled tasks", "error", err)
		return
	}

	for _, scheduled := range due {
		if !scheduled.IsDue() {
			continue
		}

		task := domain.NewTask(scheduled.Type, nil)
		lastError := ""
		if err := s.taskQueue.Enqueue(ctx, task); err != nil {
			s.logger.Error("failed to enqueue scheduled task",
				"scheduled_id", scheduled.ID,
				"error", err,
			)
			lastError = err.Error()
		} else {
			s.logger.Info("enqueued scheduled task",
				"scheduled_id", scheduled.ID,
				"task_id", task.ID,
				"task_type", task.Type,
			)
		}

		if err := s.store.UpdateLastRun(ctx, scheduled.ID, lastError); err != nil {
			s.logger.Warn("failed to update scheduled task last run",
				"scheduled_id", scheduled.ID,
				"error", err,
			)
		}
	}
}
