package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"koru/internal/domain/ingest"
	"koru/internal/domain/matching"
	"koru/internal/infrastructure/cache"
	"koru/internal/infrastructure/gocardless"
	"koru/internal/infrastructure/jobstore"
	"koru/internal/infrastructure/postgres"
	"koru/internal/infrastructure/rabbitmq"
	"koru/internal/interfaces/scheduler"
	"koru/internal/shared/config"
	"koru/internal/shared/logging"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	Config *config.Config
	Logger *zap.Logger

	DB    *postgres.DB
	Redis *redis.Client

	Connections  *postgres.ConnectionRepository
	Accounts     *postgres.AccountRepository
	Transactions *postgres.TransactionRepository

	Client *gocardless.Client

	Importer    *ingest.AccountImporter
	Matcher     *matching.Engine
	Coordinator *ingest.Coordinator
	Links       *ingest.LinkService

	Groups    jobstore.GroupStore
	Runner    *scheduler.ImportRunner
	Pool      *scheduler.WorkerPool // local queue mode, and the worker
	Publisher *rabbitmq.Publisher   // amqp queue mode
	Queue     *scheduler.TaskQueue
}

// loadBase reads configuration and builds the logger every command needs.
func loadBase() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Dev: cfg.Log.Dev})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, logger, nil
}

// openDB connects to PostgreSQL only, for commands that need nothing else.
func openDB(cfg *config.Config, logger *zap.Logger) (*postgres.DB, error) {
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	logger.Debug("connected to database", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.DBName))
	return db, nil
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	d := &Dependencies{Config: cfg, Logger: logger}

	db, err := openDB(cfg, logger)
	if err != nil {
		return nil, err
	}
	d.DB = db

	rdb, err := cache.NewRedisClient(ctx, cache.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Redis = rdb
	store := cache.NewRedisStore(rdb, cfg.Redis.Prefix)

	d.Connections = postgres.NewConnectionRepository(db)
	d.Accounts = postgres.NewAccountRepository(db)
	d.Transactions = postgres.NewTransactionRepository(db)

	tokens := gocardless.NewTokenSource(cfg.GoCardless.BaseURL, cfg.GoCardless.SecretID, cfg.GoCardless.SecretKey, store, logger)
	d.Client = gocardless.NewClient(cfg.GoCardless.BaseURL, tokens, store, logger)

	d.Importer = ingest.NewAccountImporter(d.Client, d.Accounts, d.Transactions, logger)
	d.Matcher = matching.NewEngine(d.Transactions, logger)

	d.Groups = jobstore.NewRedisGroupStore(rdb, cfg.Redis.Prefix, cfg.Worker.JobRetention)
	d.Runner = scheduler.NewImportRunner(d.Importer, d.Matcher, d.Groups, cfg.Worker.MatchAfterImport, logger)
	d.Pool = scheduler.NewWorkerPool(scheduler.PoolConfig{
		Workers:    cfg.Worker.WorkerCount,
		QueueSize:  cfg.Worker.QueueSize,
		JobTimeout: cfg.Worker.JobTimeout,
	}, logger)

	var dispatcher scheduler.Dispatcher
	switch cfg.Worker.QueueMode {
	case config.QueueModeAMQP:
		d.Publisher = rabbitmq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, logger)
		dispatcher = d.Publisher
	default:
		dispatcher = scheduler.NewPoolDispatcher(d.Pool, d.Runner)
	}
	d.Queue = scheduler.NewTaskQueue(d.Groups, dispatcher, logger)

	d.Coordinator = ingest.NewCoordinator(d.Connections, d.Client, d.Queue, logger)
	d.Links = ingest.NewLinkService(d.Client, store, d.Connections, d.Coordinator, cfg.App.URL, logger)

	return d, nil
}

// LocalQueue reports whether tasks run on this process's worker pool.
func (d *Dependencies) LocalQueue() bool {
	return d.Publisher == nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.Publisher != nil {
		_ = d.Publisher.Close()
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
	_ = d.Logger.Sync()
}
