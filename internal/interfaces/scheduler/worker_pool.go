package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"koru/internal/shared/logging"
)

var (
	jobTracer          = otel.Tracer("koru/scheduler")
	jobMeter           = otel.Meter("koru/scheduler")
	jobDuration, _     = jobMeter.Float64Histogram("scheduler.job.duration", metric.WithDescription("Job execution duration in seconds"), metric.WithUnit("s"))
	jobTotal, _        = jobMeter.Int64Counter("scheduler.job.total", metric.WithDescription("Total jobs executed by status"))
	jobQueueDropped, _ = jobMeter.Int64Counter("scheduler.job.queue_dropped", metric.WithDescription("Jobs rejected due to full queue"))
)

var (
	// ErrQueueFull is returned by Submit when the job buffer has no room.
	ErrQueueFull = errors.New("job queue full")
	// ErrPoolClosed is returned once Shutdown has started.
	ErrPoolClosed = errors.New("worker pool closed")
)

// PoolConfig configures NewWorkerPool.
type PoolConfig struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
	JobDelay   time.Duration
}

// WorkerPool manages a pool of concurrent workers that process jobs.
type WorkerPool struct {
	workerCount int
	jobTimeout  time.Duration
	jobDelay    time.Duration
	jobs        chan Job
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	logger      *zap.Logger

	mu     sync.RWMutex
	closed bool
}

func NewWorkerPool(cfg PoolConfig, logger *zap.Logger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 120 * time.Second
	}

	return &WorkerPool{
		workerCount: cfg.Workers,
		jobTimeout:  cfg.JobTimeout,
		jobDelay:    cfg.JobDelay,
		jobs:        make(chan Job, cfg.QueueSize),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logging.OrNop(logger).Named("worker_pool"),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	wp.logger.Info("starting worker pool", zap.Int("workers", wp.workerCount))

	for i := 1; i <= wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	// Jobs queued before Shutdown always reach Execute. After the shutdown
	// deadline they run with a cancelled context and fail fast.
	for job := range wp.jobs {
		wp.processJob(id, job)

		if wp.jobDelay > 0 {
			select {
			case <-time.After(wp.jobDelay):
			case <-wp.ctx.Done():
			}
		}
	}
}

// processJob executes a single job with error handling, logging, and telemetry.
func (wp *WorkerPool) processJob(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(wp.ctx, wp.jobTimeout)
	defer cancel()

	ctx, span := jobTracer.Start(ctx, "job.execute",
		trace.WithAttributes(
			attribute.Int("worker.id", workerID),
			attribute.String("job.description", job.Description()),
			attribute.String("job.key", job.Key()),
		),
	)
	defer span.End()

	log := wp.logger.With(zap.Int("worker_id", workerID), zap.String("job", job.Description()))
	start := time.Now()

	if err := job.Execute(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		jobTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "error")))
		jobDuration.Record(ctx, time.Since(start).Seconds())
		log.Error("job failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return
	}

	jobTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "success")))
	jobDuration.Record(ctx, time.Since(start).Seconds())
	log.Info("job completed", zap.Duration("duration", time.Since(start)))
}

// Submit adds a job to the queue without blocking. It returns ErrQueueFull
// when the buffer is full so the caller can redeliver later.
func (wp *WorkerPool) Submit(job Job) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return ErrPoolClosed
	}

	select {
	case wp.jobs <- job:
		return nil
	default:
		jobQueueDropped.Add(context.Background(), 1)
		wp.logger.Warn("job queue full", zap.String("job", job.Description()))
		return ErrQueueFull
	}
}

// SubmitWait blocks until the job is queued or ctx is done.
func (wp *WorkerPool) SubmitWait(ctx context.Context, job Job) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return ErrPoolClosed
	}

	select {
	case wp.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-wp.ctx.Done():
		return ErrPoolClosed
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish. When
// ctx expires first, running jobs are cancelled through their context and
// the rest of the buffer is handed to Execute with a cancelled context, so
// every queued job reports a result.
func (wp *WorkerPool) Shutdown(ctx context.Context) {
	wp.logger.Info("worker pool shutting down")

	// Waits for in-flight SubmitWait calls; workers keep draining meanwhile.
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return
	}
	wp.closed = true
	close(wp.jobs)
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.logger.Info("all workers finished")
	case <-ctx.Done():
		wp.logger.Warn("shutdown deadline reached, cancelling running jobs")
		wp.cancel()
		<-done
	}

	wp.cancel()

	// Only a pool that was never started gets here with jobs left.
	for job := range wp.jobs {
		wp.processJob(0, job)
	}
}
