package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"reelpipe/domain/model"
	"reelpipe/infrastructure/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultLockTTL = 2 * time.Minute
	lockKeyPrefix  = "lock:account:"
)

var (
	ErrLockNotHeld = errors.New("lock not held")
	// ErrLockLost is the cause attached to a lock context once the lease
	// could no longer be extended.
	ErrLockLost = errors.New("account lock lost")
)

var unlockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// AccountLocker grants at most one holder per account across all workers.
type AccountLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAccountLocker(client *redis.Client, ttl time.Duration) *AccountLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &AccountLocker{client: client, ttl: ttl}
}

// Lease is a held account lock. It is extended in the background every
// ttl/3 until Release. When the key is found owned by someone else, or no
// extension has succeeded for a whole ttl, the lease is lost and Lost is
// closed.
type Lease struct {
	client *redis.Client
	key    string
	token  string
	stop   chan struct{}
	done   chan struct{}
	lost   chan struct{}
	once   sync.Once
}

// Lost is closed when the lease can no longer be trusted.
func (l *Lease) Lost() <-chan struct{} { return l.lost }

// Acquire takes the account lock without waiting. It returns
// model.ErrAccountBusy when another worker holds it.
func (l *AccountLocker) Acquire(ctx context.Context, username string) (*Lease, error) {
	key := lockKeyPrefix + username
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, model.ErrAccountBusy
	}
	lease := &Lease{
		client: l.client,
		key:    key,
		token:  token,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		lost:   make(chan struct{}),
	}
	go lease.keepAlive(l.ttl)
	return lease, nil
}

func (l *Lease) keepAlive(ttl time.Duration) {
	defer close(l.done)
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	lastExtended := time.Now()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := l.extend(ctx, ttl)
			cancel()
			if err == nil {
				lastExtended = time.Now()
				continue
			}
			lg := logger.GetLogger().WithField("key", l.key).WithError(err)
			if errors.Is(err, ErrLockNotHeld) || time.Since(lastExtended) >= ttl {
				lg.Error("account lock lost")
				close(l.lost)
				return
			}
			lg.Warn("failed to extend account lock")
		}
	}
}

func (l *Lease) extend(ctx context.Context, ttl time.Duration) error {
	result, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Release stops the keep-alive and deletes the key if still owned.
func (l *Lease) Release(ctx context.Context) error {
	l.once.Do(func() { close(l.stop) })
	<-l.done
	result, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Lock adapts Acquire to the queue dispatcher's locker contract. The
// returned context is cancelled with ErrLockLost when the lease is lost.
func (l *AccountLocker) Lock(ctx context.Context, username string) (context.Context, func(context.Context) error, error) {
	lease, err := l.Acquire(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	lockCtx, cancel := context.WithCancelCause(ctx)
	go func() {
		select {
		case <-lease.Lost():
			cancel(ErrLockLost)
		case <-lockCtx.Done():
		}
	}()
	release := func(relCtx context.Context) error {
		defer cancel(nil)
		return lease.Release(relCtx)
	}
	return lockCtx, release, nil
}
