// internal/common/database/redis.go
package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wakeupmh/pdf-rag/internal/common/config"
	"github.com/wakeupmh/pdf-rag/internal/models"
)

// RedisClient wraps the Redis client
type RedisClient struct {
	Client *redis.Client
}

// NewRedis creates a new Redis client
func NewRedis(cfg config.RedisConfig) *RedisClient {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
	return &RedisClient{Client: rdb}
}

// Ping tests the Redis connection
func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *RedisClient) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}

const sessionKeyPrefix = "rag:session:"

// SessionKey is the hash that holds the bookkeeping of one conversation.
func SessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

// SessionStore keeps a small TTL'd hash per backend session: number of
// turns, last citation and when it was last answered.
type SessionStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewSessionStore(client redis.Cmdable, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

// RecordTurn counts one answered question and refreshes the expiry. The
// writes go out as one MULTI/EXEC.
func (s *SessionStore) RecordTurn(ctx context.Context, turn models.SessionTurn) error {
	if turn.SessionID == "" {
		return nil
	}
	key := SessionKey(turn.SessionID)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, "turns", 1)
		pipe.HSet(ctx, key,
			"last_citation", turn.Citation,
			"last_answer_bytes", strconv.Itoa(turn.AnswerBytes),
			"last_answered_at", turn.AnsweredAt.UTC().Format(time.RFC3339),
		)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record turn for %s: %w", turn.SessionID, err)
	}
	return nil
}

// Turns returns how many questions were answered in a session, 0 if unknown.
func (s *SessionStore) Turns(ctx context.Context, sessionID string) (int64, error) {
	n, err := s.client.HGet(ctx, SessionKey(sessionID), "turns").Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read turns for %s: %w", sessionID, err)
	}
	return n, nil
}
