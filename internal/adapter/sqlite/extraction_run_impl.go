package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/user/offer-image-service/internal/entity"
	"github.com/user/offer-image-service/internal/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS extraction_runs (
	id               TEXT PRIMARY KEY,
	source_url       TEXT NOT NULL,
	title            TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL,
	error_kind       TEXT NOT NULL DEFAULT '',
	error_message    TEXT NOT NULL DEFAULT '',
	candidates_found INTEGER NOT NULL DEFAULT 0,
	extracted_count  INTEGER NOT NULL DEFAULT 0,
	images           TEXT NOT NULL DEFAULT '[]',
	duration_ms      INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_extraction_runs_source_url ON extraction_runs(source_url, created_at);
`

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ExtractionRunRepoImpl keeps the extraction history in a local SQLite file.
type ExtractionRunRepoImpl struct {
	db *sql.DB
}

// Open opens or creates the database at path and initializes the schema.
// Use ":memory:" for a throwaway store.
func Open(path string) (*ExtractionRunRepoImpl, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database lives as long as its connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &ExtractionRunRepoImpl{db: db}, nil
}

// Close releases the database.
func (r *ExtractionRunRepoImpl) Close() error {
	return r.db.Close()
}

func (r *ExtractionRunRepoImpl) Save(ctx context.Context, run *entity.ExtractionRun) error {
	images := run.Images
	if images == nil {
		images = []entity.ImageResult{}
	}
	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO extraction_runs (id, source_url, title, status, error_kind, error_message,
			candidates_found, extracted_count, images, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.SourceURL,
		run.Title,
		run.Status,
		run.ErrorKind,
		run.ErrorMessage,
		run.CandidatesFound,
		run.ExtractedCount,
		string(imagesJSON),
		run.DurationMS,
		run.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

func (r *ExtractionRunRepoImpl) FindLatestByURL(ctx context.Context, url string) (*entity.ExtractionRun, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, source_url, title, status, error_kind, error_message,
			candidates_found, extracted_count, images, duration_ms, created_at
		FROM extraction_runs
		WHERE source_url = ?
		ORDER BY created_at DESC
		LIMIT 1`, url)

	var run entity.ExtractionRun
	var imagesJSON, createdAt string
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
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if run.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(imagesJSON), &run.Images); err != nil {
		return nil, fmt.Errorf("failed to decode stored images: %w", err)
	}
	return &run, nil
}

func (r *ExtractionRunRepoImpl) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
