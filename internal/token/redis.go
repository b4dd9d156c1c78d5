package token

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const namespace = "oauth:link:state:"

// RedisStore keeps tokens in Redis with server-side TTLs, so expiry works
// across restarts and multiple API instances.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore on an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func key(tok string) string {
	return namespace + tok
}

// Issue stores payload under a fresh token. NX guards the astronomically
// unlikely UUID collision.
func (s *RedisStore) Issue(ctx context.Context, payload []byte, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	tok := uuid.NewString()
	if err := s.client.SetNX(ctx, key(tok), payload, ttl).Err(); err != nil {
		return "", err
	}
	return tok, nil
}

// Pop retrieves and deletes in one round trip via GETDEL.
func (s *RedisStore) Pop(ctx context.Context, tok string) ([]byte, error) {
	raw, err := s.client.GetDel(ctx, key(tok)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}
