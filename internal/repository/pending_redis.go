package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghclone/ghclone/internal/models"
	"github.com/ghclone/ghclone/internal/utils"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// consumeScript deletes the pending hash only when the stored code equals
// ARGV[1], so two concurrent verifications cannot both succeed. On a match it
// returns the remaining lifetime in milliseconds and the stored timestamps.
var consumeScript = redis.NewScript(`
local stored = redis.call("HGET", KEYS[1], "otp")
if not stored or stored ~= ARGV[1] then
	return {0}
end
local ttl = redis.call("PTTL", KEYS[1])
local createdAt = redis.call("HGET", KEYS[1], "created_at") or ""
redis.call("DEL", KEYS[1])
return {1, ttl, createdAt}
`)

// restoreScript writes the entry back only if no code is pending for the
// key, and expires it after ARGV[4] milliseconds.
var restoreScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], "otp", ARGV[1], "created_at", ARGV[2], "expires_at", ARGV[3])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return 1
`)

type RedisPendingStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
	now    func() time.Time
}

func NewRedisPendingStore(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisPendingStore {
	return &RedisPendingStore{
		client: client,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

func pendingKey(email string) string {
	return fmt.Sprintf("pending:%s", email)
}

// Put replaces any code already pending for email and restarts its expiry.
func (s *RedisPendingStore) Put(ctx context.Context, email, otp string) error {
	key := pendingKey(email)
	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"otp", otp,
			"created_at", now.Format(time.RFC3339Nano),
			"expires_at", expiresAt.Format(time.RFC3339Nano),
		)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		s.logger.WithError(err).WithField("email_hash", utils.HashEmail(email)).Error("Failed to store pending code in Redis")
		return fmt.Errorf("failed to store pending code: %w: %w", models.ErrUnavailable, err)
	}
	return nil
}

func (s *RedisPendingStore) Get(ctx context.Context, email string) (*models.PendingRegistration, error) {
	key := pendingKey(email)

	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get pending code: %w: %w", models.ErrUnavailable, err)
	}
	if fields["otp"] == "" {
		return nil, models.ErrPendingNotFound
	}

	pending := &models.PendingRegistration{
		Email: email,
		OTP:   fields["otp"],
	}
	if createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"]); err == nil {
		pending.CreatedAt = createdAt
		pending.ExpiresAt = createdAt.Add(s.ttl)
	}
	if expiresAt, err := time.Parse(time.RFC3339Nano, fields["expires_at"]); err == nil {
		pending.ExpiresAt = expiresAt
	}
	return pending, nil
}

func (s *RedisPendingStore) ConsumeIfMatch(ctx context.Context, email, otp string) (*models.PendingRegistration, error) {
	result, err := consumeScript.Run(ctx, s.client, []string{pendingKey(email)}, otp).Slice()
	if err != nil && !errors.Is(err, redis.Nil) {
		s.logger.WithError(err).WithField("email_hash", utils.HashEmail(email)).Error("Failed to consume pending code in Redis")
		return nil, fmt.Errorf("failed to consume pending code: %w: %w", models.ErrUnavailable, err)
	}
	if len(result) < 3 {
		return nil, models.ErrPendingNotFound
	}
	if matched, _ := result[0].(int64); matched != 1 {
		return nil, models.ErrPendingNotFound
	}

	pending := &models.PendingRegistration{
		Email: email,
		OTP:   otp,
	}
	if ttl, ok := result[1].(int64); ok && ttl > 0 {
		pending.ExpiresAt = s.now().UTC().Add(time.Duration(ttl) * time.Millisecond)
	}
	if raw, ok := result[2].(string); ok {
		if createdAt, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			pending.CreatedAt = createdAt
		}
	}
	return pending, nil
}

// Restore writes a consumed entry back for the time it had left. A code
// stored since the consume wins, and an entry without remaining lifetime is
// dropped.
func (s *RedisPendingStore) Restore(ctx context.Context, pending *models.PendingRegistration) error {
	remaining := pending.ExpiresAt.Sub(s.now())
	if remaining <= 0 {
		return nil
	}

	restored, err := restoreScript.Run(ctx, s.client, []string{pendingKey(pending.Email)},
		pending.OTP,
		pending.CreatedAt.UTC().Format(time.RFC3339Nano),
		pending.ExpiresAt.UTC().Format(time.RFC3339Nano),
		remaining.Milliseconds(),
	).Int()
	if err != nil {
		s.logger.WithError(err).WithField("email_hash", utils.HashEmail(pending.Email)).Error("Failed to restore pending code in Redis")
		return fmt.Errorf("failed to restore pending code: %w: %w", models.ErrUnavailable, err)
	}
	if restored == 0 {
		s.logger.WithField("email_hash", utils.HashEmail(pending.Email)).Info("Newer pending code present, restore skipped")
	}
	return nil
}
