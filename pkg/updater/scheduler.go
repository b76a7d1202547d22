package updater

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs periodic data source refreshes. Each job is an
// independent entry that can be removed without touching the others.
// A job still running when its next activation comes is skipped.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	ids     []cron.EntryID
	running bool
	logger  *slog.Logger
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default().With("component", "updater.scheduler")
	}
	l := cronLogger{logger: logger}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(l), cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l))),
		logger: logger,
	}
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		s.cron.Start()
		s.running = true
	}
}

// Every schedules job to run every interval, first after one interval.
// Intervals are rounded to whole seconds, with a minimum of one second.
func (s *Scheduler) Every(interval time.Duration, job func()) cron.EntryID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.cron.Schedule(cron.Every(interval), cron.FuncJob(job))
	s.ids = append(s.ids, id)
	return id
}

// Remove cancels one scheduled job.
func (s *Scheduler) Remove(id cron.EntryID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron.Remove(id)
	for i, other := range s.ids {
		if other == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			break
		}
	}
}

// RemoveAll cancels every scheduled job.
func (s *Scheduler) RemoveAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.ids {
		s.cron.Remove(id)
	}
	if len(s.ids) > 0 {
		s.logger.Info("cancelled periodic updates", "count", len(s.ids))
	}
	s.ids = nil
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Stop halts the scheduler. The returned context is done once running jobs
// have returned.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	s.running = false
	return s.cron.Stop()
}

// cronLogger adapts slog to cron.Logger. cron reports its routine activity
// at info level, which is debug noise here.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
