// Copyright (c) 2026 Taskora. All rights reserved.
// Author: platform@taskora.app

package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskora/taskora/internal/platform/dberr"
)

// RedisResetTokenStore implements ResetTokenStore using Redis.
//
// Tokens are keyed by their SHA-256 hash, so a Redis dump never exposes a
// usable token. Expiry is delegated to Redis TTLs.
type RedisResetTokenStore struct {
	client *redis.Client
}

// NewResetTokenStore creates a new Redis-backed ResetTokenStore.
func NewResetTokenStore(client *redis.Client) *RedisResetTokenStore {
	return &RedisResetTokenStore{client: client}
}

// Save stores the token hash for the user with the given lifetime.
func (store *RedisResetTokenStore) Save(ctx context.Context, tokenHash string, userID int64, ttl time.Duration) error {
	key := "auth:reset_token:" + tokenHash

	if err := store.client.Set(ctx, key, userID, ttl).Err(); err != nil {
		return fmt.Errorf("redis_reset_token_save_failed: %w", err)
	}

	return nil
}

/*
Consume atomically retrieves and deletes the token.

Description: GETDEL guarantees single use even under concurrent resets with
the same token. Returns dberr.ErrNotFound for unknown or expired tokens.

Parameters:
  - ctx: context.Context
  - tokenHash: string

Returns:
  - int64: The user the token was issued for
  - error: dberr.ErrNotFound or connectivity errors
*/
func (store *RedisResetTokenStore) Consume(ctx context.Context, tokenHash string) (int64, error) {
	key := "auth:reset_token:" + tokenHash

	value, err := store.client.GetDel(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, dberr.ErrNotFound
		}
		return 0, fmt.Errorf("redis_reset_token_consume_failed: %w", err)
	}

	userID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis_reset_token_parse_failed: %w", err)
	}

	return userID, nil
}

// # Login Throttle

// RedisLoginThrottle implements LoginThrottle using Redis counters.
type RedisLoginThrottle struct {
	client *redis.Client
}

// NewLoginThrottle creates a new Redis-backed LoginThrottle.
func NewLoginThrottle(client *redis.Client) *RedisLoginThrottle {
	return &RedisLoginThrottle{client: client}
}

// Fail records a failed attempt and returns the running count. The window
// starts at the first failure; later failures do not extend it, so a
// persistent attacker cannot lock an account forever.
func (throttle *RedisLoginThrottle) Fail(ctx context.Context, key string, window time.Duration) (int64, error) {
	redisKey := "auth:login_fail:" + key

	pipe := throttle.client.TxPipeline()
	count := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis_login_throttle_fail_failed: %w", err)
	}

	return count.Val(), nil
}

// Count returns the current failure count without recording anything.
func (throttle *RedisLoginThrottle) Count(ctx context.Context, key string) (int64, error) {
	redisKey := "auth:login_fail:" + key

	value, err := throttle.client.Get(ctx, redisKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis_login_throttle_count_failed: %w", err)
	}

	count, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis_login_throttle_parse_failed: %w", err)
	}

	return count, nil
}

// Clear drops the counter after a successful login.
func (throttle *RedisLoginThrottle) Clear(ctx context.Context, key string) error {
	redisKey := "auth:login_fail:" + key

	if err := throttle.client.Del(ctx, redisKey).Err(); err != nil {
		return fmt.Errorf("redis_login_throttle_clear_failed: %w", err)
	}

	return nil
}
