package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reelpipe/domain/model"
	"reelpipe/infrastructure/logger"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseBackoff = 30 * time.Second
	DefaultMaxBackoff  = 10 * time.Minute
	DefaultBusyRetry   = time.Minute
)

// AccountLocker serializes work per account across workers. The returned
// context is derived from ctx and is cancelled if the lock is lost before
// release.
type AccountLocker interface {
	Lock(ctx context.Context, username string) (lockCtx context.Context, release func(context.Context) error, err error)
}

// JobHandler runs jobs. GiveUp is called once a job exhausted its attempts.
type JobHandler interface {
	HandleFetch(ctx context.Context, job Job) error
	HandleUpload(ctx context.Context, job Job) error
	GiveUp(ctx context.Context, job Job, cause error)
}

type DispatcherConfig struct {
	Workers     int
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	BusyRetry   time.Duration
}

// Dispatcher consumes jobs, holds the account lock around uploads and
// redelivers failed jobs with capped exponential backoff.
type Dispatcher struct {
	transport Transport
	locker    AccountLocker
	handler   JobHandler
	cfg       DispatcherConfig
}

func NewDispatcher(transport Transport, locker AccountLocker, handler JobHandler, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = DefaultBaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.BusyRetry <= 0 {
		cfg.BusyRetry = DefaultBusyRetry
	}
	return &Dispatcher{transport: transport, locker: locker, handler: handler, cfg: cfg}
}

// Run blocks until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	logger.GetLogger().WithField("workers", d.cfg.Workers).Info("Dispatcher started")
	return d.transport.Consume(ctx, d.cfg.Workers, d.Process)
}

// Process handles a single delivery. It returns an error only when the job
// could not be handed back to the transport.
func (d *Dispatcher) Process(ctx context.Context, job Job) error {
	lg := logger.GetLogger().WithFields(log.Fields{"task_id": job.TaskID, "kind": job.Kind, "account": job.Account, "attempt": job.Attempt})

	jobCtx := ctx
	if job.Kind == model.TaskKindUpload && d.locker != nil {
		lockCtx, release, err := d.locker.Lock(ctx, job.Account)
		if errors.Is(err, model.ErrAccountBusy) {
			lg.Info("account busy, deferring job")
			return d.transport.Publish(ctx, job, d.cfg.BusyRetry)
		}
		if err != nil {
			return err
		}
		jobCtx = lockCtx
		defer func() {
			relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := release(relCtx); err != nil {
				lg.WithError(err).Warn("failed to release account lock")
			}
		}()
	}

	err := d.run(jobCtx, job)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && jobCtx.Err() != nil {
		lg.WithError(context.Cause(jobCtx)).Warn("account lock lost during job, handing it back")
		pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return d.transport.Publish(pubCtx, job, d.cfg.BusyRetry)
	}
	if ctx.Err() != nil {
		lg.Info("shutdown during job, handing it back")
		pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return d.transport.Publish(pubCtx, job, 0)
	}

	next := job.Attempt + 1
	if next >= d.cfg.MaxAttempts {
		lg.WithError(err).Error("job failed permanently")
		d.handler.GiveUp(ctx, job, err)
		return nil
	}
	delay := Backoff(next, d.cfg.BaseBackoff, d.cfg.MaxBackoff)
	lg.WithError(err).WithField("retry_in", delay.String()).Warn("job failed, scheduling redelivery")
	job.Attempt = next
	return d.transport.Publish(ctx, job, delay)
}

func (d *Dispatcher) run(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	switch job.Kind {
	case model.TaskKindFetch:
		return d.handler.HandleFetch(ctx, job)
	case model.TaskKindUpload:
		return d.handler.HandleUpload(ctx, job)
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

// Backoff is base*2^(attempt-1), capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
