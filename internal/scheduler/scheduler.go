// Package scheduler runs the periodic maintenance jobs of the server.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type JobFunc func(ctx context.Context) error

type Scheduler struct {
	c   *cron.Cron
	log *slog.Logger
	ctx context.Context
}

func New(log *slog.Logger) *Scheduler {
	cl := cronLogger{log: log}
	return &Scheduler{
		c:   cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		log: log,
		ctx: context.Background(),
	}
}

// Add registers fn under spec (standard cron or "@every 1m"). Each run gets
// its own context bounded by timeout.
func (s *Scheduler) Add(name, spec string, timeout time.Duration, fn JobFunc) error {
	if _, err := s.c.AddFunc(spec, s.wrap(name, timeout, fn)); err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	s.log.Info("job scheduled", "job", name, "spec", spec)
	return nil
}

func (s *Scheduler) wrap(name string, timeout time.Duration, fn JobFunc) func() {
	return func() {
		ctx, cancel := context.WithTimeout(s.ctx, timeout)
		defer cancel()
		start := time.Now()
		if err := fn(ctx); err != nil {
			s.log.Error("job failed", "job", name, "err", err)
			return
		}
		s.log.Debug("job done", "job", name, "took", time.Since(start))
	}
}

// Run starts the jobs and blocks until ctx ends, then waits for running jobs.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.c.Start()
	<-ctx.Done()
	<-s.c.Stop().Done()
	return nil
}

type cronLogger struct{ log *slog.Logger }

func (l cronLogger) Info(msg string, kv ...any) { l.log.Debug("cron: "+msg, kv...) }

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kv, "err", err)...)
}
