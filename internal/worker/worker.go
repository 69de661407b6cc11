package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-chat/internal/core/services"
)

// Sweeper removes index entries left behind by failed ingestions.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Worker processes tasks from the task queue.
// Ingest tasks go to the ingestion pipeline, sweep tasks to the orphan sweeper.
type Worker struct {
	taskQueue driven.TaskQueue
	ingestion driving.IngestionService
	sweeper   Sweeper
	scheduler *services.Scheduler
	logger    *slog.Logger

	concurrency    int
	dequeueTimeout int // seconds
	idleBackoff    time.Duration

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	TaskQueue driven.TaskQueue
	Ingestion driving.IngestionService
	Sweeper   Sweeper
	Scheduler *services.Scheduler
	Logger    *slog.Logger

	Concurrency    int           // Number of concurrent task processors
	DequeueTimeout int           // Seconds to wait for a task before checking again
	IdleBackoff    time.Duration // Pause after an empty dequeue (default: 200ms)
}

// NewWorker creates a new task worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	dequeueTimeout := cfg.DequeueTimeout
	if dequeueTimeout <= 0 {
		dequeueTimeout = 5
	}

	idle := cfg.IdleBackoff
	if idle <= 0 {
		idle = 200 * time.Millisecond
	}

	return &Worker{
		taskQueue:      cfg.TaskQueue,
		ingestion:      cfg.Ingestion,
		sweeper:        cfg.Sweeper,
		scheduler:      cfg.Scheduler,
		logger:         logger,
		concurrency:    concurrency,
		dequeueTimeout: dequeueTimeout,
		idleBackoff:    idle,
	}
}

// Start launches the processing goroutines and the scheduler, if any.
// It returns immediately; the worker runs until Stop or ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"dequeue_timeout", w.dequeueTimeout,
	)

	if w.scheduler != nil {
		w.scheduler.Start(ctx)
	}

	var wg sync.WaitGroup
	for i := range w.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processLoop(ctx, i)
		}()
	}

	go func() {
		wg.Wait()
		close(w.doneCh)
	}()
}

// Stop signals the processing goroutines and waits for in-flight tasks.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	if w.scheduler != nil {
		w.scheduler.Stop()
	}

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until the worker stops.
func (w *Worker) Wait() {
	w.mu.RLock()
	done := w.doneCh
	w.mu.RUnlock()
	if done != nil {
		<-done
	}
}

func (w *Worker) processLoop(ctx context.Context, workerID int) {
	logger := w.logger.With("worker_id", workerID)
	logger.Debug("worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		task, err := w.taskQueue.DequeueWithTimeout(ctx, w.dequeueTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.Error("failed to dequeue task", "error", err)
			w.pause(ctx, time.Second)
			continue
		}
		if task == nil {
			w.pause(ctx, w.idleBackoff)
			continue
		}

		w.processTask(ctx, task, logger)
	}
}

// pause sleeps for d unless the worker is stopped first.
func (w *Worker) pause(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-w.stopCh:
	}
}

func (w *Worker) processTask(ctx context.Context, task *domain.Task, logger *slog.Logger) {
	logger = logger.With("task_id", task.ID, "task_type", task.Type)
	logger.Info("processing task")

	start := time.Now()
	var err error

	switch task.Type {
	case domain.TaskTypeIngestDocument:
		err = w.handleIngest(ctx, task)
	case domain.TaskTypeSweepOrphans:
		err = w.handleSweep(ctx)
	default:
		err = fmt.Errorf("unknown task type: %s", task.Type)
	}

	duration := time.Since(start)

	if err != nil {
		logger.Error("task failed", "duration", duration, "error", err)
		if nackErr := w.taskQueue.Nack(ctx, task.ID, err.Error()); nackErr != nil {
			logger.Error("failed to nack task", "nack_error", nackErr)
		}
		return
	}

	logger.Info("task completed", "duration", duration)
	if ackErr := w.taskQueue.Ack(ctx, task.ID); ackErr != nil {
		logger.Error("failed to ack task", "ack_error", ackErr)
	}
}

// handleIngest runs one ingestion. A FAILED document fails the task too so
// queue stats show it; ingest tasks carry no retries.
func (w *Worker) handleIngest(ctx context.Context, task *domain.Task) error {
	if w.ingestion == nil {
		return errors.New("no ingestion pipeline configured")
	}
	documentID := task.DocumentID()
	if documentID == "" {
		return errors.New("document_id not found in task payload")
	}

	result, err := w.ingestion.Ingest(ctx, documentID)
	if err != nil {
		return err
	}
	if result.Status == domain.DocumentStatusFailed {
		return fmt.Errorf("ingestion failed: %s", result.Error)
	}
	return nil
}

func (w *Worker) handleSweep(ctx context.Context) error {
	if w.sweeper == nil {
		return errors.New("no orphan sweeper configured")
	}
	swept, err := w.sweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	if swept > 0 {
		w.logger.Info("orphaned index entries removed", "documents", swept)
	}
	return nil
}

// Health reports whether the worker runs and its queue answers.
type Health struct {
	Running     bool   `json:"running"`
	QueueHealth bool   `json:"queue_health"`
	Error       string `json:"error,omitempty"`
}

// Health returns the health status of the worker.
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()

	health := Health{Running: running}
	if err := w.taskQueue.Ping(ctx); err != nil {
		health.Error = err.Error()
	} else {
		health.QueueHealth = true
	}
	return health
}
