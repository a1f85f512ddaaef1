package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vitos/loki_dashboard/internal/domain"
)

const DefaultSessionKey = "loki:dashboard:session"

// RedisSessionStore shares the auth session between dashboard replicas. The key
// carries a TTL matching the session expiry.
type RedisSessionStore struct {
	client *redis.Client
	key    string
}

var _ domain.SessionStore = (*RedisSessionStore)(nil)

func NewRedisSessionStore(ctx context.Context, addr, password string, db int, key string) (*RedisSessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	if key == "" {
		key = DefaultSessionKey
	}
	return &RedisSessionStore{client: client, key: key}, nil
}

func (s *RedisSessionStore) LoadSession(ctx context.Context) (*domain.AuthSession, error) {
	vals, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	expiresMs, err := strconv.ParseInt(vals["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("load session: bad expiry %q: %w", vals["expires_at"], err)
	}
	return &domain.AuthSession{Token: vals["token"], ExpiresAt: time.UnixMilli(expiresMs).UTC()}, nil
}

func (s *RedisSessionStore) SaveSession(ctx context.Context, session *domain.AuthSession) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		pipe.HSet(ctx, s.key, "token", session.Token, "expires_at", strconv.FormatInt(session.ExpiresAt.UnixMilli(), 10))
		pipe.ExpireAt(ctx, s.key, session.ExpiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) ClearSession(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}
