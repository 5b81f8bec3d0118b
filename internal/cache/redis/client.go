package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/voicehealth/backend/internal/storage/models"
	"github.com/voicehealth/backend/pkg/logger"
)

type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// SetInsights stores the hot copy of a user's insights cache record.
func (c *Client) SetInsights(ctx context.Context, userID string, record *models.InsightsCacheRecord, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal insights record: %w", err)
	}

	err = c.client.Set(ctx, fmt.Sprintf("insights:%s", userID), data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set insights cache: %w", err)
	}

	logger.Debug("Insights cached", zap.String("user_id", userID), zap.Duration("ttl", ttl))
	return nil
}

// GetInsights returns the hot copy if present. A miss is not an error.
func (c *Client) GetInsights(ctx context.Context, userID string) (*models.InsightsCacheRecord, bool, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf("insights:%s", userID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get insights cache: %w", err)
	}

	var record models.InsightsCacheRecord
	err = json.Unmarshal(data, &record)
	if err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal insights record: %w", err)
	}

	logger.Debug("Insights cache hit", zap.String("user_id", userID))
	return &record, true, nil
}

func (c *Client) InvalidateInsights(ctx context.Context, userID string) error {
	err := c.client.Del(ctx, fmt.Sprintf("insights:%s", userID)).Err()
	if err != nil {
		return fmt.Errorf("failed to invalidate insights cache: %w", err)
	}
	return nil
}

// SetSession and friends back the multi-instance guided session store.
func (c *Client) SetSession(ctx context.Context, sessionID string, data []byte, ttl time.Duration) error {
	err := c.client.Set(ctx, fmt.Sprintf("session:%s", sessionID), data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}
	return nil
}

func (c *Client) GetSession(ctx context.Context, sessionID string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf("session:%s", sessionID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get session: %w", err)
	}
	return data, true, nil
}

func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	err := c.client.Del(ctx, fmt.Sprintf("session:%s", sessionID)).Err()
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
