// Package cron drives the periodic jobs spec.md names outside the request
// path: email-OTP cleanup (§4.3), the daily host go-live transition (§4.7),
// and audit-log retention (§3, §4.9). Grounded on the teacher's background
// goroutine lifecycle: each job runs on its own ticker and stops cleanly
// when the process context is cancelled.
package cron

import (
	"context"
	"sync"
	"time"

	"github.com/sunrayhq/control-plane/internal/logger"
)

// Job is a named unit of periodic work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs a fixed set of Jobs on independent tickers until Stop is
// called or the parent context is cancelled.
type Scheduler struct {
	jobs []Job
	wg   sync.WaitGroup
}

func NewScheduler(jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs}
}

// Start launches one goroutine per job. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.run(ctx, job)
	}
}

// Wait blocks until every job goroutine has exited (i.e. after ctx is
// cancelled and each job's in-flight run, if any, completes).
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	defer s.wg.Done()
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Infof("cron: stopping job %s", job.Name)
			return
		case <-ticker.C:
			if err := job.Run(ctx); err != nil {
				logger.Errorf("cron: job %s failed: %v", job.Name, err)
			}
		}
	}
}
