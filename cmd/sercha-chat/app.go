package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-chat/internal/adapters/driven/ai"
	"github.com/custodia-labs/sercha-chat/internal/adapters/driven/auth"
	"github.com/custodia-labs/sercha-chat/internal/adapters/driven/memory"
	"github.com/custodia-labs/sercha-chat/internal/adapters/driven/postgres"
	postgresqueue "github.com/custodia-labs/sercha-chat/internal/adapters/driven/queue/postgres"
	redisqueue "github.com/custodia-labs/sercha-chat/internal/adapters/driven/queue/redis"
	redisadapter "github.com/custodia-labs/sercha-chat/internal/adapters/driven/redis"
	"github.com/custodia-labs/sercha-chat/internal/adapters/driven/storage"
	"github.com/custodia-labs/sercha-chat/internal/adapters/driven/vespa"
	"github.com/custodia-labs/sercha-chat/internal/adapters/driving/http"
	"github.com/custodia-labs/sercha-chat/internal/chunker"
	"github.com/custodia-labs/sercha-chat/internal/config"
	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-chat/internal/core/services"
	"github.com/custodia-labs/sercha-chat/internal/extractors"
	"github.com/custodia-labs/sercha-chat/internal/runtime"
	"github.com/custodia-labs/sercha-chat/internal/worker"
)

// app holds the infrastructure shared by every run mode.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	db          *postgres.DB
	redisClient *redis.Client
	taskQueue   driven.TaskQueue
	lock        driven.DistributedLock
	index       driven.VectorIndex
	files       driven.FileStorage
	services    *runtime.Services

	conversations *postgres.ConversationStore
	messages      *postgres.MessageStore
	documents     *postgres.DocumentStore
	schedules     *postgres.SchedulerStore

	closers []func() error
}

// newApp connects every backend the configuration names.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) connect(ctx context.Context) error {
	cfg := a.cfg

	// ===== PostgreSQL =====
	a.logger.Info("connecting to postgres")
	db, err := postgres.Connect(ctx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetimeSec) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Database.ConnMaxIdleSec) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	a.conversations = postgres.NewConversationStore(db)
	a.messages = postgres.NewMessageStore(db)
	a.documents = postgres.NewDocumentStore(db)
	a.schedules = postgres.NewSchedulerStore(db)

	// ===== Redis (optional) =====
	if cfg.RedisURL != "" {
		a.logger.Info("connecting to redis")
		client, err := redisadapter.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.redisClient = client
		a.closers = append(a.closers, client.Close)
	}

	// ===== Task queue and lock (Redis if available, otherwise PostgreSQL) =====
	if a.redisClient != nil {
		host, _ := os.Hostname()
		q, err := redisqueue.NewQueue(ctx, a.redisClient, fmt.Sprintf("%s-%d", host, os.Getpid()))
		if err != nil {
			return fmt.Errorf("failed to create task queue: %w", err)
		}
		a.taskQueue = q
		a.lock = redisadapter.NewLock(a.redisClient)
	} else {
		a.taskQueue = postgresqueue.NewQueue(db.DB)
		a.lock = postgres.NewAdvisoryLock(db)
	}
	a.logger.Info("task queue ready", "backend", cfg.QueueBackend())

	// ===== Vector index =====
	switch cfg.Index.Backend {
	case "memory":
		a.index = memory.NewVectorIndex(cfg.Index.MemoryDimension)
	case "pgvector":
		a.index = postgres.NewVectorIndex(db)
	case "vespa":
		idx, err := vespa.NewVectorIndex(vespa.DefaultConfig(cfg.Index.VespaURL))
		if err != nil {
			return fmt.Errorf("failed to create vespa index: %w", err)
		}
		a.index = idx
	}

	// ===== File storage =====
	switch cfg.Storage.Backend {
	case "badger":
		files, err := storage.OpenBadger(cfg.Storage.Dir, a.logger)
		if err != nil {
			return fmt.Errorf("failed to open badger storage: %w", err)
		}
		a.files = files
	default:
		files, err := storage.NewFilesystem(cfg.Storage.Dir)
		if err != nil {
			return fmt.Errorf("failed to open file storage: %w", err)
		}
		a.files = files
	}
	a.closers = append(a.closers, a.files.Close)

	// ===== AI services =====
	a.services = runtime.NewServices(domain.NewRuntimeConfig(cfg.QueueBackend(), cfg.Index.Backend, cfg.Storage.Backend))
	a.closers = append(a.closers, a.services.Close)

	embedder, err := ai.NewEmbeddingService(cfg.EmbeddingSettings(), a.logger)
	if err != nil {
		return fmt.Errorf("failed to create embedding service: %w", err)
	}
	a.services.SetEmbeddingService(embedder)

	llm, err := ai.NewLLMService(cfg.LLMSettings())
	if err != nil {
		return fmt.Errorf("failed to create llm service: %w", err)
	}
	a.services.SetLLMService(llm)

	if err := a.services.Probe(ctx); err != nil {
		a.logger.Warn("ai backend unreachable at startup", "error", err)
	}

	rc := a.services.Config()
	a.logger.Info("runtime config",
		"queue", rc.QueueBackend,
		"index", rc.IndexBackend,
		"storage", rc.StorageBackend,
		"embedding", rc.EmbeddingAvailable(),
		"llm", rc.LLMAvailable())
	return nil
}

// Close releases backends in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

// dimensions is the embedding width the index schema must be created for.
func (a *app) dimensions() int {
	if e := a.services.EmbeddingService(); e != nil && e.Dimensions() > 0 {
		return e.Dimensions()
	}
	return a.cfg.Embedding.Dimensions
}

// migrate creates the relational schema and prepares the vector index.
// deploy pushes the Vespa application package when that backend is in use.
func (a *app) migrate(ctx context.Context, deploy bool) error {
	if err := a.db.InitSchema(ctx); err != nil {
		return err
	}
	a.logger.Info("postgres schema initialized")

	dims := a.dimensions()
	switch a.cfg.Index.Backend {
	case "pgvector":
		if err := a.index.(*postgres.VectorIndex).EnsureSchema(ctx, dims); err != nil {
			return err
		}
	case "vespa":
		if !deploy {
			break
		}
		deployer, err := vespa.NewDeployer(a.cfg.Index.VespaConfigURL)
		if err != nil {
			return err
		}
		if err := deployer.Deploy(ctx, dims); err != nil {
			return fmt.Errorf("failed to deploy vespa application: %w", err)
		}
	}
	a.logger.Info("vector index ready", "backend", a.cfg.Index.Backend, "dimensions", dims)
	return nil
}

func (a *app) server() *http.Server {
	cfg := a.cfg

	conversations := services.NewConversationService(services.ConversationConfig{
		Conversations: a.conversations,
		Messages:      a.messages,
		Documents:     a.documents,
		Files:         a.files,
		Index:         a.index,
		Logger:        a.logger,
	})
	documents := services.NewDocumentService(services.DocumentConfig{
		Conversations: a.conversations,
		Documents:     a.documents,
		Files:         a.files,
		Index:         a.index,
		Queue:         a.taskQueue,
		Logger:        a.logger,
	})
	chat := services.NewChatService(services.ChatConfig{
		Conversations:   a.conversations,
		Messages:        a.messages,
		Documents:       a.documents,
		Retrieval:       services.NewRetrievalService(a.index, a.services),
		Services:        a.services,
		Logger:          a.logger,
		Temperature:     &cfg.LLM.Temperature,
		MaxTokens:       cfg.LLM.MaxTokens,
		TopK:            cfg.Chat.TopK,
		HistoryMessages: cfg.Chat.HistoryMessages,
		TurnTimeout:     time.Duration(cfg.Chat.TurnTimeoutSec) * time.Second,
	})

	return http.NewServer(http.Config{
		Host:           "0.0.0.0",
		Port:           cfg.Port,
		Version:        version,
		AllowedOrigins: cfg.AllowedOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         a.logger,
	}, http.Deps{
		Conversations: conversations,
		Documents:     documents,
		Chat:          chat,
		Verifier:      auth.NewAdapter(cfg.JWTSecret),
		Checks: map[string]http.Pinger{
			"database":     a.db,
			"queue":        a.taskQueue,
			"vector_index": a.index,
		},
	})
}

// runAPI serves HTTP until ctx is cancelled.
func (a *app) runAPI(ctx context.Context) error {
	return a.server().Run(ctx)
}

// runWorker drains the task queue and runs the scheduler until ctx is cancelled.
func (a *app) runWorker(ctx context.Context) error {
	cfg := a.cfg

	ch, err := chunker.New(chunker.Config{Size: cfg.Chunking.Size, Overlap: cfg.Chunking.Overlap})
	if err != nil {
		return err
	}
	pipeline, err := services.NewIngestionPipeline(services.IngestionConfig{
		Documents:   a.documents,
		Files:       a.files,
		Extractors:  extractors.DefaultRegistry(),
		Index:       a.index,
		Services:    a.services,
		Chunker:     ch,
		Logger:      a.logger,
		Concurrency: cfg.Worker.IngestConcurrency,
	})
	if err != nil {
		return err
	}
	defer pipeline.Close()

	sweeper := services.NewOrphanSweeper(services.SweeperConfig{
		Documents: a.documents,
		Index:     a.index,
		Lock:      a.lock,
		Logger:    a.logger,
	})

	var scheduler *services.Scheduler
	if cfg.Scheduler.Enabled {
		scheduler = services.NewScheduler(services.SchedulerConfig{
			Store:     a.schedules,
			TaskQueue: a.taskQueue,
			Lock:      a.lock,
			Logger:    a.logger,
		})
		if err := scheduler.EnsureSchedules(ctx, domain.DefaultSchedules(cfg.SweepInterval())); err != nil {
			return fmt.Errorf("failed to register schedules: %w", err)
		}
	} else {
		a.logger.Info("scheduler disabled via SCHEDULER_ENABLED=false")
	}

	w := worker.NewWorker(worker.WorkerConfig{
		TaskQueue:      a.taskQueue,
		Ingestion:      pipeline,
		Sweeper:        sweeper,
		Scheduler:      scheduler,
		Logger:         a.logger,
		Concurrency:    cfg.Worker.Concurrency,
		DequeueTimeout: cfg.Worker.DequeueTimeout,
	})

	w.Start(ctx)
	a.logger.Info("worker started", "concurrency", cfg.Worker.Concurrency)

	<-ctx.Done()
	a.logger.Info("stopping worker")
	w.Stop()
	a.logger.Info("worker stopped")
	return nil
}

// runAll serves HTTP and drains the queue in one process.
func (a *app) runAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.runWorker(ctx) })
	g.Go(func() error { return a.runAPI(ctx) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
