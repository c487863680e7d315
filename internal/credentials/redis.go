package credentials

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/connectly/connectly-client/internal/token"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	DefaultRedisPrefix = "connectly:session"

	redisUpdateRetries = 4
)

var ErrConcurrentUpdate = errors.New("credentials changed concurrently")

// RedisStore shares one session between several client processes. The pair
// lives in a hash at <prefix>:jwt and the expiry at <prefix>:exp.
//
// Writers in this process are serialized by mu; WATCH covers writers in
// other processes.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	logger *zerolog.Logger

	mu sync.Mutex
}

func NewRedisStore(rdb redis.UniversalClient, prefix string, logger *zerolog.Logger) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix, logger: logger}
}

func (s *RedisStore) jwtKey() string { return s.prefix + ":jwt" }
func (s *RedisStore) expKey() string { return s.prefix + ":exp" }

func (s *RedisStore) Read(ctx context.Context) (Pair, bool) {
	fields, err := s.rdb.HGetAll(ctx, s.jwtKey()).Result()
	if err != nil {
		s.logReadError(err)
		return Pair{}, false
	}
	p := Pair{Access: fields["access"], Refresh: fields["refresh"]}
	if p.Empty() {
		return Pair{}, false
	}
	return p, true
}

func (s *RedisStore) Write(ctx context.Context, p Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.queueWrite(ctx, pipe, p)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write credentials to redis: %w", err)
	}
	return nil
}

// Update watches the pair key so a concurrent writer in another process
// forces a retry instead of a lost update.
func (s *RedisStore) Update(ctx context.Context, fn func(Pair) Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.jwtKey()
	for i := 0; i < redisUpdateRetries; i++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			fields, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return err
			}
			next := fn(Pair{Access: fields["access"], Refresh: fields["refresh"]})

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				s.queueWrite(ctx, pipe, next)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to update credentials in redis: %w", err)
		}
		return nil
	}
	return ErrConcurrentUpdate
}

func (s *RedisStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.rdb.Del(ctx, s.jwtKey(), s.expKey()).Err(); err != nil {
		return fmt.Errorf("failed to clear credentials in redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Expiry(ctx context.Context) (time.Time, bool) {
	raw, err := s.rdb.Get(ctx, s.expKey()).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false
	}
	if err != nil {
		s.logReadError(err)
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

func (s *RedisStore) queueWrite(ctx context.Context, pipe redis.Pipeliner, p Pair) {
	pipe.Del(ctx, s.jwtKey(), s.expKey())
	if p.Empty() {
		return
	}
	pipe.HSet(ctx, s.jwtKey(), "access", p.Access, "refresh", p.Refresh)
	if ms, ok := token.ExpiresAtMillis(p.Access); ok {
		pipe.Set(ctx, s.expKey(), strconv.FormatInt(ms, 10), 0)
	}
}

func (s *RedisStore) logReadError(err error) {
	if s.logger != nil {
		s.logger.Warn().Err(err).Str("prefix", s.prefix).Msg("Ignoring unreadable redis credentials")
	}
}
