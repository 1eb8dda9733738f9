package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/offer-image-service/internal/entity"
	"github.com/user/offer-image-service/pkg/utils"
)

const extractionKeyPrefix = "extraction:"

// ResultCacheImpl provides a concrete implementation for the ResultCacheRepository interface using Redis.
type ResultCacheImpl struct {
	client *redis.Client
}

// NewResultCache creates a new instance of ResultCacheImpl.
func NewResultCache(client *redis.Client) *ResultCacheImpl {
	return &ResultCacheImpl{client: client}
}

// generateKey hashes the URL so arbitrary query strings make safe keys.
func (r *ResultCacheImpl) generateKey(url string, maxImages int) string {
	return fmt.Sprintf("%s%s:%d", extractionKeyPrefix, utils.HashURL(url), maxImages)
}

// Get returns the cached extraction for url and maxImages.
func (r *ResultCacheImpl) Get(ctx context.Context, url string, maxImages int) (*entity.Extraction, bool, error) {
	data, err := r.client.Get(ctx, r.generateKey(url, maxImages)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var extraction entity.Extraction
	if err := json.Unmarshal(data, &extraction); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached extraction: %w", err)
	}
	return &extraction, true, nil
}

// Set stores the extraction with the given expiry.
func (r *ResultCacheImpl) Set(ctx context.Context, url string, maxImages int, extraction *entity.Extraction, ttl time.Duration) error {
	data, err := json.Marshal(extraction)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.generateKey(url, maxImages), data, ttl).Err()
}

// Invalidate removes the cached extraction.
func (r *ResultCacheImpl) Invalidate(ctx context.Context, url string, maxImages int) error {
	return r.client.Del(ctx, r.generateKey(url, maxImages)).Err()
}

// Ping checks the connection.
func (r *ResultCacheImpl) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
