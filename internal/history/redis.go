// Package history implements the conversation-history collaborator: an
// append-only, per-session log of (prompt, response) pairs with bounded
// retention. The Redis implementation backs production; the in-memory one
// backs tests and local development without Redis.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shaharz/lumen/internal/domain"
	"github.com/shaharz/lumen/internal/observability"
)

// Config contains Redis history store settings.
type Config struct {
	Addr     string `env:"HISTORY_REDIS_ADDR"     envDefault:"localhost:6379"`
	Password string `env:"HISTORY_REDIS_PASSWORD"`
	DB       int    `env:"HISTORY_REDIS_DB"       envDefault:"0"`
	// KeepLast bounds the number of messages retained per session.
	KeepLast int `env:"HISTORY_KEEP_LAST" envDefault:"100"`
	// TTL in seconds for a session's history; zero keeps it forever.
	TTL int `env:"HISTORY_TTL" envDefault:"0"`
}

// RedisStore persists conversation history in a Redis list per session.
type RedisStore struct {
	client   *redis.Client
	keepLast int
	ttl      time.Duration
}

// NewRedisStore creates a Redis-backed history store.
func NewRedisStore(cfg *Config) (*RedisStore, error) {
	if cfg == nil {
		return nil, errors.New("history config cannot be nil")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	keepLast := cfg.KeepLast
	if keepLast <= 0 {
		keepLast = 100
	}

	return &RedisStore{
		client:   client,
		keepLast: keepLast,
		ttl:      time.Duration(cfg.TTL) * time.Second,
	}, nil
}

// Append stores one (prompt, response) pair under a session.
func (s *RedisStore) Append(ctx context.Context, sessionID string, exchange domain.Exchange) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}

	now := time.Now()
	messages := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: exchange.Prompt, Timestamp: now},
		{Role: domain.RoleAssistant, Content: exchange.Response, Timestamp: now},
	}

	key := sessionKey(sessionID)

	pipe := s.client.TxPipeline()
	for _, msg := range messages {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		pipe.RPush(ctx, key, data)
	}
	pipe.LTrim(ctx, key, int64(-s.keepLast), -1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}

	return nil
}

// Recent loads up to n most recent messages for a session, oldest first.
func (s *RedisStore) Recent(ctx context.Context, sessionID string, n int) ([]domain.ChatMessage, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	if n <= 0 {
		return nil, nil
	}

	entries, err := s.client.LRange(ctx, sessionKey(sessionID), int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	logger := observability.FromContext(ctx)

	messages := make([]domain.ChatMessage, 0, len(entries))
	for _, entry := range entries {
		var msg domain.ChatMessage
		if unmarshalErr := json.Unmarshal([]byte(entry), &msg); unmarshalErr != nil {
			// A corrupt entry should not poison the whole session.
			logger.Warn("skipping unreadable history entry",
				observability.Error(unmarshalErr))
			continue
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// Ping verifies connectivity to Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func sessionKey(sessionID string) string {
	return "history:" + sessionID
}
