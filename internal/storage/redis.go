package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/xaenox/wa-bot/internal/models"
)

const sessionKeyPrefix = "wa-bot:session:"

type RedisStorage struct {
	client *redis.Client
}

// NewRedisStorage parses a redis:// URL and verifies the connection
func NewRedisStorage(ctx context.Context, redisURL string) (*RedisStorage, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}

	return NewRedisStorageFromClient(client), nil
}

func NewRedisStorageFromClient(client *redis.Client) *RedisStorage {
	if client == nil {
		panic("storage: redis client cannot be nil")
	}
	return &RedisStorage{client: client}
}

func (s *RedisStorage) GetSession(ctx context.Context, userID models.UserID) (models.SessionID, error) {
	sessionID, err := s.client.Get(ctx, sessionKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("error loading session: %w", err)
	}
	return sessionID, nil
}

// SaveSession stores the session without a TTL; expiry is detected reactively
func (s *RedisStorage) SaveSession(ctx context.Context, userID models.UserID, sessionID models.SessionID) error {
	if err := s.client.Set(ctx, sessionKey(userID), sessionID, 0).Err(); err != nil {
		return fmt.Errorf("error saving session: %w", err)
	}
	return nil
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}

func sessionKey(userID models.UserID) string {
	return sessionKeyPrefix + strconv.FormatInt(userID, 10)
}
