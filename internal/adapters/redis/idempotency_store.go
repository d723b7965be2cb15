// Package redis provides Redis-based adapters for the analysis service.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Value stored while the first request holding a key is still creating its job.
const inFlightMarker = "\x00pending"

// IdempotencyStore remembers which job a submission key produced.
// Keys expire after the TTL given on each call.
type IdempotencyStore struct {
	client redis.UniversalClient
	prefix string
}

// NewIdempotencyStore creates a store using the default key prefix.
func NewIdempotencyStore(client redis.UniversalClient) *IdempotencyStore {
	return NewIdempotencyStoreWithPrefix(client, "idempotency:analysis:")
}

// NewIdempotencyStoreWithPrefix creates a store with a custom key prefix.
func NewIdempotencyStoreWithPrefix(client redis.UniversalClient, prefix string) *IdempotencyStore {
	return &IdempotencyStore{client: client, prefix: prefix}
}

// Claim reserves key for the caller. If the key is already held, claimed is
// false and existing carries the stored job id, or "" while the holder is in flight.
func (s *IdempotencyStore) Claim(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if key == "" {
		return "", false, errors.New("idempotency key cannot be empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("idempotency ttl must be positive")
	}

	ok, err := s.client.SetNX(ctx, s.prefix+key, inFlightMarker, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis setnx: %w", err)
	}
	if ok {
		return "", true, nil
	}

	existing, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; the caller may retry.
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	if existing == inFlightMarker {
		return "", false, nil
	}
	return existing, false, nil
}

// Complete records the job created for key.
func (s *IdempotencyStore) Complete(ctx context.Context, key, jobID string, ttl time.Duration) error {
	if key == "" || jobID == "" {
		return errors.New("idempotency key and job id are required")
	}
	if err := s.client.Set(ctx, s.prefix+key, jobID, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Release forgets key so a failed submission can be retried with it.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
