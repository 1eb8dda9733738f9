package repository

import (
	"context"
	"time"

	"github.com/user/offer-image-service/internal/entity"
)

// ResultCacheRepository caches successful extractions keyed by source URL and result limit.
type ResultCacheRepository interface {
	// Get returns the cached extraction and true on a hit.
	Get(ctx context.Context, url string, maxImages int) (*entity.Extraction, bool, error)
	// Set stores an extraction with the given expiry.
	Set(ctx context.Context, url string, maxImages int, extraction *entity.Extraction, ttl time.Duration) error
	// Invalidate drops the cached extraction, used for force_refresh.
	Invalidate(ctx context.Context, url string, maxImages int) error
	// Ping reports whether the cache is reachable.
	Ping(ctx context.Context) error
}
