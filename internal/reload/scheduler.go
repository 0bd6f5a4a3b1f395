// Package reload evicts cached results on a cron schedule so entries filed
// under a dataset do not outlive the batch load that replaces its rows.
package reload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/goliatone/go-report-cache/internal/config"
)

// Invalidator evicts every cache entry filed under one of tags.
type Invalidator interface {
	Invalidate(ctx context.Context, tags ...string) (int, error)
}

// Scheduler runs one cron entry per configured reload job.
type Scheduler struct {
	cron    *cron.Cron
	target  Invalidator
	jobs    []config.ReloadJob
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
	started bool
}

// NewScheduler registers jobs against target. An invalid schedule is an
// error here rather than at the first tick.
func NewScheduler(jobs []config.ReloadJob, target Invalidator, logger *slog.Logger) (*Scheduler, error) {
	if target == nil {
		return nil, errors.New("reload: invalidator is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cron:    cron.New(),
		target:  target,
		jobs:    jobs,
		timeout: 30 * time.Second,
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}

	for i, job := range jobs {
		name := job.Name
		if name == "" {
			name = job.Schedule
		}
		id, err := s.cron.AddFunc(job.Schedule, func() {
			s.Run(context.Background(), job)
		})
		if err != nil {
			return nil, fmt.Errorf("reload job %d (%s): %w", i, name, err)
		}
		s.entries[name] = id
	}
	return s, nil
}

// Start begins ticking. It is a no-op when no jobs are configured.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || len(s.entries) == 0 {
		return
	}
	s.cron.Start()
	s.started = true
	s.logger.Info("reload scheduler started", "jobs", len(s.entries))
}

// Stop halts the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	<-s.cron.Stop().Done()
	s.started = false
	s.logger.Info("reload scheduler stopped")
}

// Jobs returns the registered job names.
func (s *Scheduler) Jobs() []string {
	out := make([]string, 0, len(s.entries))
	for name := range s.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Next returns when the named job fires next.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	id, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// Run executes one job immediately. Failures are logged; the next tick
// retries.
func (s *Scheduler) Run(ctx context.Context, job config.ReloadJob) int {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	evicted, err := s.target.Invalidate(ctx, job.Tags...)
	if err != nil {
		s.logger.Warn("scheduled invalidation failed",
			"job", job.Name,
			"tags", job.Tags,
			"error", err,
		)
		return evicted
	}
	s.logger.Info("scheduled invalidation", "job", job.Name, "tags", job.Tags, "evicted", evicted)
	return evicted
}
