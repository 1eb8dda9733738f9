package response

import (
	"time"

	"github.com/user/offer-image-service/internal/entity"
)

// ExtractResponse is the success body of POST /api/extract.
type ExtractResponse struct {
	Success              bool                   `json:"success"`
	RunID                string                 `json:"run_id,omitempty"`
	Cached               bool                   `json:"cached"`
	Title                string                 `json:"title"`
	SourceURL            string                 `json:"source_url"`
	Images               []entity.AnalyzedImage `json:"images"`
	TotalCandidatesFound int                    `json:"total_candidates_found"`
	ValidCandidates      int                    `json:"valid_candidates"`
	ExtractedCount       int                    `json:"extracted_count"`
	UnclassifiedCount    int                    `json:"unclassified_count"`
}

// ErrorResponse is the body of every failed request. It never carries images.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ExtractionRunResponse is a DTO for one history record, mirroring entity.ExtractionRun.
type ExtractionRunResponse struct {
	RunID           string               `json:"run_id"`
	SourceURL       string               `json:"source_url"`
	Title           string               `json:"title,omitempty"`
	Status          string               `json:"status"` // "succeeded", "failed"
	ErrorKind       string               `json:"error_kind,omitempty"`
	ErrorMessage    string               `json:"error_message,omitempty"`
	CandidatesFound int                  `json:"candidates_found"`
	ExtractedCount  int                  `json:"extracted_count"`
	Images          []entity.ImageResult `json:"images"`
	DurationMS      int64                `json:"duration_ms"`
	CreatedAt       time.Time            `json:"created_at"`
}

type ClassifierStatusResponse struct {
	Enabled bool   `json:"enabled"`
	Model   string `json:"model,omitempty"`
}

type HealthResponse struct {
	Status  string            `json:"status"`
	App     string            `json:"app"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// FromRun converts a history record.
func FromRun(run *entity.ExtractionRun) ExtractionRunResponse {
	images := run.Images
	if images == nil {
		images = []entity.ImageResult{}
	}
	return ExtractionRunResponse{
		RunID:           run.ID,
		SourceURL:       run.SourceURL,
		Title:           run.Title,
		Status:          run.Status,
		ErrorKind:       run.ErrorKind,
		ErrorMessage:    run.ErrorMessage,
		CandidatesFound: run.CandidatesFound,
		ExtractedCount:  run.ExtractedCount,
		Images:          images,
		DurationMS:      run.DurationMS,
		CreatedAt:       run.CreatedAt,
	}
}
