package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the hot per-day counters and digest dedupe keys. It is
// the primary quota backend: INCR is atomic on the server, so concurrent
// views can never both consume the same remaining slot.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// IncrViews atomically increments the (dealer, day) view counter and returns
// the count after the increment. The key expires shortly after its day
// window closes, so there is no reset job.
func (s *RedisStore) IncrViews(ctx context.Context, dealerID uuid.UUID, day string, ttl time.Duration) (int64, error) {
	key := fmt.Sprintf("views:%s:%s", dealerID, day)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// OnceDaily returns true the first time a (subject, day) pair is seen.
// Used to prevent double-sending a dealer's digest.
func (s *RedisStore) OnceDaily(ctx context.Context, subject, day string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("digest_sent:%s:%s", subject, day)
	return s.client.SetNX(ctx, key, "1", ttl).Result()
}
