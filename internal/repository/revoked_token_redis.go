package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ghclone/ghclone/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type RedisTokenDenylist struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisTokenDenylist(client *redis.Client, logger *logrus.Logger) *RedisTokenDenylist {
	return &RedisTokenDenylist{
		client: client,
		logger: logger,
	}
}

func revokedKey(jti string) string {
	return fmt.Sprintf("revoked_token:%s", jti)
}

// Revoke stores the token until its own expiry. Tokens that already expired
// are rejected by signature checks and are not recorded.
func (s *RedisTokenDenylist) Revoke(ctx context.Context, token models.RevokedToken) error {
	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	dataJSON, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal revoked token: %w", err)
	}

	if err := s.client.Set(ctx, revokedKey(token.JTI), dataJSON, ttl).Err(); err != nil {
		s.logger.WithError(err).Error("Failed to store revoked token")
		return fmt.Errorf("failed to revoke token: %w: %w", models.ErrUnavailable, err)
	}
	return nil
}

func (s *RedisTokenDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	exists, err := s.client.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revoked token: %w: %w", models.ErrUnavailable, err)
	}
	return exists > 0, nil
}
