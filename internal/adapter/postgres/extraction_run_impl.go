package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/user/offer-image-service/internal/entity"
	"github.com/user/offer-image-service/internal/repository"
)

// DB is the subset of *pgxpool.Pool used by the repository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

const schema = `
	CREATE TABLE IF NOT EXISTS extraction_runs (
		id               UUID PRIMARY KEY,
		source_url       TEXT NOT NULL,
		title            TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL,
		error_kind       TEXT NOT NULL DEFAULT '',
		error_message    TEXT NOT NULL DEFAULT '',
		candidates_found INTEGER NOT NULL DEFAULT 0,
		extracted_count  INTEGER NOT NULL DEFAULT 0,
		images           JSONB NOT NULL DEFAULT '[]',
		duration_ms      BIGINT NOT NULL DEFAULT 0,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS extraction_runs_source_url_created_at_idx
		ON extraction_runs (source_url, created_at DESC);
`

// ExtractionRunRepoImpl provides a concrete implementation for the ExtractionRunRepository interface using PostgreSQL.
type ExtractionRunRepoImpl struct {
	db DB
}

// NewExtractionRunRepo creates a new instance of ExtractionRunRepoImpl.
func NewExtractionRunRepo(db DB) *ExtractionRunRepoImpl {
	return &ExtractionRunRepoImpl{db: db}
}

// EnsureSchema creates the extraction_runs table and its lookup index.
func (r *ExtractionRunRepoImpl) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create extraction_runs schema: %w", err)
	}
	return nil
}

// Save stores a run record in the database.
func (r *ExtractionRunRepoImpl) Save(ctx context.Context, run *entity.ExtractionRun) error {
	images := run.Images
	if images == nil {
		images = []entity.ImageResult{}
	}
	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO extraction_runs (id, source_url, title, status, error_kind, error_message,
			candidates_found, extracted_count, images, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
	`
	_, err = r.db.Exec(ctx, query,
		run.ID,
		run.SourceURL,
		run.Title,
		run.Status,
		run.ErrorKind,
		run.ErrorMessage,
		run.CandidatesFound,
		run.ExtractedCount,
		imagesJSON,
		run.DurationMS,
		run.CreatedAt,
	)
	return err
}

// FindLatestByURL retrieves the most recent run for a source URL.
func (r *ExtractionRunRepoImpl) FindLatestByURL(ctx context.Context, url string) (*entity.ExtractionRun, error) {
	query := `
		SELECT id, source_url, title, status, error_kind, error_message,
			candidates_found, extracted_count, images, duration_ms, created_at
		FROM extraction_runs
		WHERE source_url = $1
		ORDER BY created_at DESC
		LIMIT 1;
	`
	row := r.db.QueryRow(ctx, query, url)

	var run entity.ExtractionRun
	var imagesJSON []byte
	err := row.Scan(
		&run.ID,
		&run.SourceURL,
		&run.Title,
		&run.Status,
		&run.ErrorKind,
		&run.ErrorMessage,
		&run.CandidatesFound,
		&run.ExtractedCount,
		&imagesJSON,
		&run.DurationMS,
		&run.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(imagesJSON, &run.Images); err != nil {
		return nil, fmt.Errorf("failed to decode stored images: %w", err)
	}
	return &run, nil
}

// Ping checks the connection.
func (r *ExtractionRunRepoImpl) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
