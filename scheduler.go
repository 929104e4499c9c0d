package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler drives the relay: one cron entry polls the mailbox, a second
// flushes the processed set. The first poll runs immediately on Start.
type Scheduler struct {
	cron      *cron.Cron
	config    *SchedulerConfig
	relay     *Relay
	processed *ProcessedStore
	metrics   *Metrics
	pollEntry cron.EntryID
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.RWMutex
}

// NewScheduler creates a new scheduler
func NewScheduler(config *SchedulerConfig, relay *Relay, processed *ProcessedStore, metrics *Metrics) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithSeconds()),
		config:    config,
		relay:     relay,
		processed: processed,
		metrics:   metrics,
	}
}

// Start starts the poll and flush jobs
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	// Entries survive a Stop, so only register them once
	if s.pollEntry == 0 {
		pollEntry, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.config.PollInterval), s.poll)
		if err != nil {
			return fmt.Errorf("failed to add poll job: %w", err)
		}
		s.pollEntry = pollEntry

		if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.config.FlushInterval), s.flush); err != nil {
			return fmt.Errorf("failed to add flush job: %w", err)
		}
	}

	s.cron.Start()
	s.isRunning = true

	// Check immediately on startup, then on the interval
	go s.poll()

	logrus.Infof("Scheduler started: polling every %s, flushing every %s",
		s.config.PollInterval, s.config.FlushInterval)
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.cancel()
	ctx := s.cron.Stop()

	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}

	s.isRunning = false
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// poll runs one relay pass
func (s *Scheduler) poll() {
	s.wg.Add(1)
	defer s.wg.Done()

	s.mu.RLock()
	ctx := s.ctx
	running := s.isRunning
	s.mu.RUnlock()

	if !running {
		return
	}

	s.relay.RunOnce(ctx)
}

// flush persists the processed set
func (s *Scheduler) flush() {
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.processed.Flush(); err != nil {
		logrus.Errorf("Failed to flush processed emails: %v", err)
		s.metrics.FlushFailures.Inc()
	}
}

// RunOnce triggers a single relay pass, for manual control-surface use
func (s *Scheduler) RunOnce() {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}
	s.relay.RunOnce(ctx)
}

// NextRun returns the time of the next scheduled poll
func (s *Scheduler) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.pollEntry).Next
}

// LastRun returns the time of the previous scheduled poll
func (s *Scheduler) LastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.pollEntry).Prev
}

// Wait waits for in-flight jobs to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
