package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"koru/internal/shared/logging"
)

// ScheduleTime represents a specific time of day when the scheduler should run.
type ScheduleTime struct {
	Hour   int
	Minute int
}

// String returns the time in HH:MM format.
func (st ScheduleTime) String() string {
	return fmt.Sprintf("%02d:%02d", st.Hour, st.Minute)
}

// ParseScheduleTime parses a time string in HH:MM format.
func ParseScheduleTime(s string) (ScheduleTime, error) {
	var hour, minute int
	_, err := fmt.Sscanf(s, "%d:%d", &hour, &minute)
	if err != nil {
		return ScheduleTime{}, fmt.Errorf("invalid time format (expected HH:MM): %w", err)
	}

	if hour < 0 || hour > 23 {
		return ScheduleTime{}, fmt.Errorf("invalid hour: %d (must be 0-23)", hour)
	}
	if minute < 0 || minute > 59 {
		return ScheduleTime{}, fmt.Errorf("invalid minute: %d (must be 0-59)", minute)
	}

	return ScheduleTime{Hour: hour, Minute: minute}, nil
}

// ConnectionLister lists the connections due for a refresh.
type ConnectionLister interface {
	ListIDs(ctx context.Context) ([]string, error)
}

// ConnectionImporter starts the import of one connection.
type ConnectionImporter interface {
	ImportConnection(ctx context.Context, connectionID string) (string, error)
}

// RefreshScheduler re-imports every connection at fixed times of day.
type RefreshScheduler struct {
	scheduleTimes []ScheduleTime
	connections   ConnectionLister
	importer      ConnectionImporter
	logger        *zap.Logger
	now           func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	lastRun string
}

func NewRefreshScheduler(times []string, connections ConnectionLister, importer ConnectionImporter, logger *zap.Logger) (*RefreshScheduler, error) {
	scheduleTimes := make([]ScheduleTime, 0, len(times))
	for _, timeStr := range times {
		st, err := ParseScheduleTime(timeStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse schedule time %q: %w", timeStr, err)
		}
		scheduleTimes = append(scheduleTimes, st)
	}
	if len(scheduleTimes) == 0 {
		return nil, fmt.Errorf("at least one schedule time is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &RefreshScheduler{
		scheduleTimes: scheduleTimes,
		connections:   connections,
		importer:      importer,
		logger:        logging.OrNop(logger).Named("refresh"),
		now:           time.Now,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Start launches the schedule loop.
func (s *RefreshScheduler) Start() {
	s.logger.Info("refresh scheduler started", zap.Stringers("times", s.scheduleTimes))
	s.wg.Add(1)
	go s.loop()
}

func (s *RefreshScheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.shouldRun(s.now()) {
				s.RunOnce(s.ctx)
			}
		}
	}
}

// shouldRun checks if now matches a schedule time it has not fired for yet.
func (s *RefreshScheduler) shouldRun(now time.Time) bool {
	key := now.Format("2006-01-02T15:04")

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastRun == key {
		return false
	}
	for _, st := range s.scheduleTimes {
		if now.Hour() == st.Hour && now.Minute() == st.Minute {
			s.lastRun = key
			return true
		}
	}
	return false
}

// RunOnce starts an import for every stored connection. Failures are
// logged per connection and do not stop the run. It returns the job IDs
// that were started.
func (s *RefreshScheduler) RunOnce(ctx context.Context) []string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	ids, err := s.connections.ListIDs(ctx)
	if err != nil {
		s.logger.Error("failed to list connections", zap.Error(err))
		return nil
	}

	jobs := make([]string, 0, len(ids))
	for _, id := range ids {
		jobID, err := s.importer.ImportConnection(ctx, id)
		if err != nil {
			s.logger.Error("scheduled import failed to start", zap.String("connection_id", id), zap.Error(err))
			continue
		}
		jobs = append(jobs, jobID)
	}

	s.logger.Info("scheduled refresh submitted", zap.Int("connections", len(ids)), zap.Int("jobs", len(jobs)))
	return jobs
}

// Shutdown stops the loop, waiting at most until ctx is done.
func (s *RefreshScheduler) Shutdown(ctx context.Context) {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("timeout waiting for refresh loop to stop")
	}
}
