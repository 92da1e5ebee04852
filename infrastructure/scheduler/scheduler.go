package scheduler

import (
	"context"
	"fmt"
	"time"

	"reelpipe/infrastructure/logger"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Task is a periodic maintenance step.
type Task func(ctx context.Context) error

type entry struct {
	name     string
	schedule string
	task     Task
}

// Scheduler runs maintenance tasks on cron schedules. A run that is still in
// progress when its next tick fires is skipped.
type Scheduler struct {
	cron    *cron.Cron
	parser  cron.Parser
	entries []entry
	timeout time.Duration
}

func New(timeout time.Duration) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Scheduler{
		cron:    cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		parser:  parser,
		timeout: timeout,
	}
}

// Add registers task under name. An empty schedule disables it.
func (s *Scheduler) Add(name, schedule string, task Task) error {
	if schedule == "" {
		logger.GetLogger().WithField("job", name).Info("Scheduled job disabled")
		return nil
	}
	if _, err := s.parser.Parse(schedule); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.entries = append(s.entries, entry{name: name, schedule: schedule, task: task})
	return nil
}

// Run starts the cron loop and blocks until ctx is done, then waits for
// running jobs to return.
func (s *Scheduler) Run(ctx context.Context) error {
	for _, e := range s.entries {
		e := e
		if _, err := s.cron.AddFunc(e.schedule, func() { s.runOnce(ctx, e) }); err != nil {
			return fmt.Errorf("schedule %s: %w", e.name, err)
		}
		logger.GetLogger().WithFields(log.Fields{"job": e.name, "schedule": e.schedule}).Info("Scheduled job registered")
	}
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context, e entry) {
	if ctx.Err() != nil {
		return
	}
	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	lg := logger.GetLogger().WithField("job", e.name)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			lg.WithField("panic", r).Error("Scheduled job panicked")
		}
	}()
	if err := e.task(runCtx); err != nil {
		lg.WithError(err).Error("Scheduled job failed")
		return
	}
	lg.WithField("duration", time.Since(start).String()).Info("Scheduled job finished")
}
