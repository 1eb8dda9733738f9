package entity

import "time"

// Run statuses recorded in the extraction history.
const (
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// ExtractionRun mirrors the `extraction_runs` table schema.
type ExtractionRun struct {
	ID              string
	SourceURL       string
	Title           string
	Status          string // "succeeded", "failed"
	ErrorKind       string
	ErrorMessage    string
	CandidatesFound int
	ExtractedCount  int
	Images          []ImageResult // Stored as JSONB in PostgreSQL
	DurationMS      int64
	CreatedAt       time.Time
}
