package queue

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"reelpipe/infrastructure/logger"
	"reelpipe/infrastructure/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const defaultHeartbeatTTL = 30 * time.Second

// RedisTransport keeps ready jobs in a list and delayed jobs in a sorted
// set scored by their due time in milliseconds. A job being handled sits in
// this consumer's processing list until the handler returns; processing
// lists whose consumer heartbeat has expired are moved back to ready.
type RedisTransport struct {
	client           *redis.Client
	readyKey         string
	delayedKey       string
	processingPrefix string
	consumerPrefix   string
	consumerID       string
	pollTimeout      time.Duration
	heartbeatTTL     time.Duration
}

func NewRedisTransport(client *redis.Client, name string) *RedisTransport {
	return &RedisTransport{
		client:           client,
		readyKey:         name,
		delayedKey:       name + ":delayed",
		processingPrefix: name + ":processing:",
		consumerPrefix:   name + ":consumer:",
		consumerID:       uuid.NewString(),
		pollTimeout:      time.Second,
		heartbeatTTL:     defaultHeartbeatTTL,
	}
}

func (t *RedisTransport) processingKey() string { return t.processingPrefix + t.consumerID }

func (t *RedisTransport) heartbeatKey() string { return t.consumerPrefix + t.consumerID }

func (t *RedisTransport) Publish(ctx context.Context, job Job, delay time.Duration) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = utils.GetCurrentTime()
	}
	payload, err := job.Encode()
	if err != nil {
		return err
	}
	if delay <= 0 {
		return t.client.LPush(ctx, t.readyKey, payload).Err()
	}
	due := time.Now().Add(delay).UnixMilli()
	return t.client.ZAdd(ctx, t.delayedKey, redis.Z{Score: float64(due), Member: payload}).Err()
}

func (t *RedisTransport) Consume(ctx context.Context, workers int, handle Handler) error {
	if workers < 1 {
		workers = 1
	}
	lg := logger.GetLogger().WithField("consumer", t.consumerID)
	if err := t.heartbeat(ctx); err != nil {
		lg.WithError(err).Warn("failed writing consumer heartbeat")
	}
	if n, err := t.recoverOrphans(ctx); err != nil {
		lg.WithError(err).Warn("failed recovering orphaned jobs")
	} else if n > 0 {
		lg.WithField("jobs", n).Info("requeued jobs left by a dead consumer")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t.maintain(ctx)
		return nil
	})
	for i := 0; i < workers; i++ {
		worker := i
		g.Go(func() error {
			return t.work(ctx, worker, handle)
		})
	}
	return g.Wait()
}

// maintain refreshes the heartbeat and sweeps orphans until ctx ends, then
// drops the heartbeat so leftovers are picked up by the next consumer.
func (t *RedisTransport) maintain(ctx context.Context) {
	lg := logger.GetLogger().WithField("consumer", t.consumerID)
	ticker := time.NewTicker(t.heartbeatTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := t.client.Del(context.Background(), t.heartbeatKey()).Err(); err != nil {
				lg.WithError(err).Warn("failed removing consumer heartbeat")
			}
			return
		case <-ticker.C:
			if err := t.heartbeat(ctx); err != nil && ctx.Err() == nil {
				lg.WithError(err).Warn("failed writing consumer heartbeat")
			}
			if _, err := t.recoverOrphans(ctx); err != nil && ctx.Err() == nil {
				lg.WithError(err).Warn("failed recovering orphaned jobs")
			}
		}
	}
}

func (t *RedisTransport) heartbeat(ctx context.Context) error {
	return t.client.Set(ctx, t.heartbeatKey(), utils.GetCurrentTime().Unix(), t.heartbeatTTL).Err()
}

// recoverOrphans moves every job out of processing lists whose consumer has
// no live heartbeat. LMOVE is atomic per element, so concurrent sweeps never
// duplicate a job.
func (t *RedisTransport) recoverOrphans(ctx context.Context) (int, error) {
	moved := 0
	iter := t.client.Scan(ctx, 0, t.processingPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		id := strings.TrimPrefix(key, t.processingPrefix)
		if id == t.consumerID {
			continue
		}
		alive, err := t.client.Exists(ctx, t.consumerPrefix+id).Result()
		if err != nil {
			return moved, err
		}
		if alive > 0 {
			continue
		}
		for {
			err := t.client.LMove(ctx, key, t.readyKey, "LEFT", "RIGHT").Err()
			if errors.Is(err, redis.Nil) {
				break
			}
			if err != nil {
				return moved, err
			}
			moved++
		}
	}
	return moved, iter.Err()
}

func (t *RedisTransport) work(ctx context.Context, worker int, handle Handler) error {
	lg := logger.GetLogger().WithField("worker", worker)
	processing := t.processingKey()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := t.promoteDue(ctx); err != nil && ctx.Err() == nil {
			lg.WithError(err).Warn("failed promoting delayed jobs")
		}
		payload, err := t.client.BLMove(ctx, t.readyKey, processing, "RIGHT", "LEFT", t.pollTimeout).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			lg.WithError(err).Warn("queue pop failed")
			utils.SleepWithContext(ctx, t.pollTimeout)
			continue
		}
		job, err := DecodeJob([]byte(payload))
		if err != nil {
			lg.WithError(err).Error("dropping malformed job")
			t.ack(lg, payload)
			continue
		}
		if err := handle(ctx, job); err != nil {
			lg.WithField("task_id", job.TaskID).WithError(err).Warn("job handler failed, requeueing")
			t.requeue(lg, payload)
			continue
		}
		t.ack(lg, payload)
	}
}

// ack removes a finished job from the processing list. It runs detached from
// the worker context so a shutdown never strands a completed job.
func (t *RedisTransport) ack(lg *log.Entry, payload string) {
	if err := t.client.LRem(context.Background(), t.processingKey(), 1, payload).Err(); err != nil {
		lg.WithError(err).Error("failed to acknowledge job")
	}
}

func (t *RedisTransport) requeue(lg *log.Entry, payload string) {
	_, err := t.client.TxPipelined(context.Background(), func(pipe redis.Pipeliner) error {
		pipe.LRem(context.Background(), t.processingKey(), 1, payload)
		pipe.LPush(context.Background(), t.readyKey, payload)
		return nil
	})
	if err != nil {
		lg.WithError(err).Error("failed to requeue job")
	}
}

// promoteDue moves due delayed jobs to the ready list. ZREM decides which
// worker wins a given member.
func (t *RedisTransport) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := t.client.ZRangeByScore(ctx, t.delayedKey, &redis.ZRangeBy{Min: "-inf", Max: now, Count: 50}).Result()
	if err != nil {
		return err
	}
	for _, member := range due {
		removed, err := t.client.ZRem(ctx, t.delayedKey, member).Result()
		if err != nil {
			return err
		}
		if removed == 1 {
			if err := t.client.LPush(ctx, t.readyKey, member).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *RedisTransport) Close() error { return nil }
