package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven/mocks"
)

type stubIngestion struct {
	mu     sync.Mutex
	seen   []string
	result func(id string) (*domain.IngestResult, error)
}

func (s *stubIngestion) Ingest(ctx context.Context, id string) (*domain.IngestResult, error) {
	s.mu.Lock()
	s.seen = append(s.seen, id)
	s.mu.Unlock()
	if s.result != nil {
		return s.result(id)
	}
	return &domain.IngestResult{DocumentID: id, Status: domain.DocumentStatusCompleted, ChunkCount: 1}, nil
}

func (s *stubIngestion) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seen...)
}

type stubSweeper struct {
	calls int
	err   error
}

func (s *stubSweeper) Sweep(ctx context.Context) (int, error) {
	s.calls++
	return 2, s.err
}

func enqueue(t *testing.T, q *mocks.MockTaskQueue, task *domain.Task) *domain.Task {
	t.Helper()
	if err := q.Enqueue(context.Background(), task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return task
}

// claimed enqueues task and dequeues it again, as a worker would.
func claimed(t *testing.T, q *mocks.MockTaskQueue, task *domain.Task) *domain.Task {
	t.Helper()
	enqueue(t, q, task)
	got, err := q.Dequeue(context.Background())
	if err != nil || got == nil || got.ID != task.ID {
		t.Fatalf("dequeue: %v %v", got, err)
	}
	return got
}

func TestNewWorker_Defaults(t *testing.T) {
	w := NewWorker(WorkerConfig{TaskQueue: mocks.NewMockTaskQueue()})

	if w.concurrency != 1 {
		t.Errorf("expected default concurrency 1, got %d", w.concurrency)
	}
	if w.dequeueTimeout != 5 {
		t.Errorf("expected default dequeue timeout 5, got %d", w.dequeueTimeout)
	}
	if w.idleBackoff != 200*time.Millisecond {
		t.Errorf("expected default idle backoff, got %v", w.idleBackoff)
	}
	if w.logger == nil {
		t.Error("expected default logger")
	}
}

func TestNewWorker_Config(t *testing.T) {
	logger := slog.Default()
	w := NewWorker(WorkerConfig{
		TaskQueue:      mocks.NewMockTaskQueue(),
		Logger:         logger,
		Concurrency:    4,
		DequeueTimeout: 10,
	})

	if w.concurrency != 4 || w.dequeueTimeout != 10 || w.logger != logger {
		t.Errorf("config not applied: %+v", w)
	}
}

func TestWorker_ProcessTask_IngestCompleted(t *testing.T) {
	ctx := context.Background()
	queue := mocks.NewMockTaskQueue()
	ingestion := &stubIngestion{}
	task := claimed(t, queue, domain.NewIngestDocumentTask("doc-1"))

	w := NewWorker(WorkerConfig{TaskQueue: queue, Ingestion: ingestion})
	w.processTask(ctx, task, w.logger)

	if ids := ingestion.ids(); len(ids) != 1 || ids[0] != "doc-1" {
		t.Errorf("expected doc-1 ingested, got %v", ids)
	}
	got, _ := queue.GetTask(ctx, task.ID)
	if got.Status != domain.TaskStatusCompleted {
		t.Errorf("expected task completed, got %s", got.Status)
	}
}

func TestWorker_ProcessTask_IngestFailedIsNotRetried(t *testing.T) {
	ctx := context.Background()
	queue := mocks.NewMockTaskQueue()
	ingestion := &stubIngestion{result: func(id string) (*domain.IngestResult, error) {
		return &domain.IngestResult{DocumentID: id, Status: domain.DocumentStatusFailed, Error: "embedding unavailable"}, nil
	}}
	task := claimed(t, queue, domain.NewIngestDocumentTask("doc-1"))

	w := NewWorker(WorkerConfig{TaskQueue: queue, Ingestion: ingestion})
	w.processTask(ctx, task, w.logger)

	got, _ := queue.GetTask(ctx, task.ID)
	if got.Status != domain.TaskStatusFailed {
		t.Errorf("expected task failed without retry, got %s", got.Status)
	}
	if got.Error == "" {
		t.Error("expected failure reason on the task")
	}
}

func TestWorker_ProcessTask_Errors(t *testing.T) {
	tests := []struct {
		name string
		task *domain.Task
		cfg  func(*WorkerConfig)
	}{
		{
			name: "unknown type",
			task: domain.NewTask("reindex_everything", nil),
		},
		{
			name: "missing document id",
			task: domain.NewTask(domain.TaskTypeIngestDocument, nil),
		},
		{
			name: "ingest error",
			task: domain.NewIngestDocumentTask("doc-1"),
			cfg: func(c *WorkerConfig) {
				c.Ingestion = &stubIngestion{result: func(string) (*domain.IngestResult, error) {
					return nil, domain.ErrNotFound
				}}
			},
		},
		{
			name: "sweep error",
			task: domain.NewSweepOrphansTask(),
			cfg:  func(c *WorkerConfig) { c.Sweeper = &stubSweeper{err: errors.New("index down")} },
		},
		{
			name: "no sweeper",
			task: domain.NewSweepOrphansTask(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			queue := mocks.NewMockTaskQueue()
			tt.task.MaxAttempts = 1
			claimed(t, queue, tt.task)

			cfg := WorkerConfig{TaskQueue: queue, Ingestion: &stubIngestion{}}
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			w := NewWorker(cfg)
			w.processTask(ctx, tt.task, w.logger)

			got, _ := queue.GetTask(ctx, tt.task.ID)
			if got.Status != domain.TaskStatusFailed {
				t.Errorf("expected failed, got %s", got.Status)
			}
		})
	}
}

func TestWorker_ProcessTask_Sweep(t *testing.T) {
	ctx := context.Background()
	queue := mocks.NewMockTaskQueue()
	sweeper := &stubSweeper{}
	task := claimed(t, queue, domain.NewSweepOrphansTask())

	w := NewWorker(WorkerConfig{TaskQueue: queue, Sweeper: sweeper})
	w.processTask(ctx, task, w.logger)

	if sweeper.calls != 1 {
		t.Errorf("expected 1 sweep, got %d", sweeper.calls)
	}
	got, _ := queue.GetTask(ctx, task.ID)
	if got.Status != domain.TaskStatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
}

func TestWorker_StartStop(t *testing.T) {
	queue := mocks.NewMockTaskQueue()
	ingestion := &stubIngestion{}
	for _, id := range []string{"a", "b", "c"} {
		enqueue(t, queue, domain.NewIngestDocumentTask(id))
	}

	w := NewWorker(WorkerConfig{
		TaskQueue:   queue,
		Ingestion:   ingestion,
		Concurrency: 2,
		IdleBackoff: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)
	w.Start(ctx) // no-op

	deadline := time.Now().Add(2 * time.Second)
	for len(ingestion.ids()) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	w.Stop()
	w.Stop() // no-op

	if n := len(ingestion.ids()); n != 3 {
		t.Errorf("expected 3 ingestions, got %d", n)
	}
	if w.Health(ctx).Running {
		t.Error("expected worker to be stopped")
	}
}

func TestWorker_ContextCancellation(t *testing.T) {
	w := NewWorker(WorkerConfig{
		TaskQueue:   mocks.NewMockTaskQueue(),
		IdleBackoff: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after context cancellation")
	}
}

func TestWorker_Health(t *testing.T) {
	ctx := context.Background()
	queue := mocks.NewMockTaskQueue()
	w := NewWorker(WorkerConfig{TaskQueue: queue})

	h := w.Health(ctx)
	if h.Running || !h.QueueHealth || h.Error != "" {
		t.Errorf("unexpected health %+v", h)
	}
}
