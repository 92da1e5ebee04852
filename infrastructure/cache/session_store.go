package cache

import (
	"context"
	"errors"
	"time"

	"reelpipe/domain/repository"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

// SessionStore keeps platform session blobs in Redis, one key per account.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore stores blobs with ttl; zero keeps them until deleted.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

var _ repository.ISessionStore = (*SessionStore)(nil)

func (s *SessionStore) Load(ctx context.Context, username string) ([]byte, error) {
	blob, err := s.client.Get(ctx, sessionKeyPrefix+username).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return blob, err
}

func (s *SessionStore) Save(ctx context.Context, username string, blob []byte) error {
	return s.client.Set(ctx, sessionKeyPrefix+username, blob, s.ttl).Err()
}

func (s *SessionStore) Delete(ctx context.Context, username string) error {
	return s.client.Del(ctx, sessionKeyPrefix+username).Err()
}
