package repository

import (
	"context"
	"errors"

	"github.com/user/offer-image-service/internal/entity"
)

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = errors.New("not found")

// ExtractionRunRepository stores the history of extraction runs.
type ExtractionRunRepository interface {
	// Save appends a run record.
	Save(ctx context.Context, run *entity.ExtractionRun) error
	// FindLatestByURL returns the most recent run for a source URL, or ErrNotFound.
	FindLatestByURL(ctx context.Context, url string) (*entity.ExtractionRun, error)
	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
