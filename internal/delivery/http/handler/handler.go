package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/offer-image-service/internal/delivery/http/request"
	"github.com/user/offer-image-service/internal/delivery/http/response"
	"github.com/user/offer-image-service/internal/entity"
	"github.com/user/offer-image-service/internal/pipeline"
	"github.com/user/offer-image-service/internal/usecase"
)

const (
	maxBodyBytes = 1 << 20
	kindInternal = "InternalError"
)

// Pinger is implemented by every store the health check reports on.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options holds the request defaults and identity reported by the handler.
type Options struct {
	DefaultMaxImages int
	AppName          string
	Version          string
	// HealthChecks maps a check name ("postgres", "redis") to its store.
	HealthChecks map[string]Pinger
}

type Handler struct {
	extractor usecase.ImageExtractor
	opts      Options
	logger    *zap.Logger
}

func NewHandler(extractor usecase.ImageExtractor, opts Options, logger *zap.Logger) *Handler {
	if opts.DefaultMaxImages <= 0 {
		opts.DefaultMaxImages = pipeline.DefaultMaxImages
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{extractor: extractor, opts: opts, logger: logger}
}

func (h *Handler) HandleExtract(w http.ResponseWriter, r *http.Request) {
	var req request.ExtractRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		msg := "Invalid request body"
		if errors.Is(err, io.EOF) {
			msg = "Request body is required"
		}
		h.writeError(w, http.StatusBadRequest, string(pipeline.KindValidation), msg)
		return
	}

	maxImages := h.opts.DefaultMaxImages
	if req.MaxImages != nil {
		maxImages = *req.MaxImages
	}

	result, err := h.extractor.Extract(r.Context(), usecase.ExtractRequest{
		URL:          strings.TrimSpace(req.URL),
		MaxImages:    maxImages,
		Analyze:      req.Analyze,
		Instructions: req.Instructions,
		ForceRefresh: req.ForceRefresh,
	})
	// The timeout middleware answers once the request deadline has passed.
	if ctxErr := r.Context().Err(); ctxErr != nil {
		h.logger.Warn("extraction outlived the request", zap.String("url", req.URL), zap.Error(ctxErr))
		return
	}
	if err != nil {
		h.writeExtractionError(w, req.URL, err)
		return
	}

	images := result.Images
	if images == nil {
		images = []entity.AnalyzedImage{}
	}
	h.writeJSON(w, http.StatusOK, response.ExtractResponse{
		Success:              true,
		RunID:                result.RunID,
		Cached:               result.Cached,
		Title:                result.Extraction.Title,
		SourceURL:            result.Extraction.SourceURL,
		Images:               images,
		TotalCandidatesFound: result.Extraction.TotalCandidatesFound,
		ValidCandidates:      result.Extraction.ValidCandidates,
		ExtractedCount:       result.Extraction.ExtractedCount,
		UnclassifiedCount:    result.UnclassifiedCount,
	})
}

func (h *Handler) HandleLatestExtraction(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		h.writeError(w, http.StatusBadRequest, string(pipeline.KindValidation), "URL query parameter is required")
		return
	}

	run, err := h.extractor.LatestRun(r.Context(), rawURL)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, response.FromRun(run))
	case errors.Is(err, usecase.ErrRunNotFound):
		h.writeError(w, http.StatusNotFound, "NotFound", "No extraction recorded for the given URL")
	case errors.Is(err, usecase.ErrHistoryDisabled):
		h.writeError(w, http.StatusServiceUnavailable, "Unavailable", err.Error())
	case pipeline.KindOf(err) == pipeline.KindValidation:
		h.writeExtractionError(w, rawURL, err)
	default:
		h.logger.Error("failed to get latest extraction", zap.String("url", rawURL), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, kindInternal, "Could not retrieve extraction history")
	}
}

func (h *Handler) HandleClassifierStatus(w http.ResponseWriter, r *http.Request) {
	s := h.extractor.ClassifierStatus()
	h.writeJSON(w, http.StatusOK, response.ClassifierStatusResponse{Enabled: s.Enabled, Model: s.Model})
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := response.HealthResponse{Status: "healthy", App: h.opts.AppName, Version: h.opts.Version}
	status := http.StatusOK
	if len(h.opts.HealthChecks) > 0 {
		resp.Checks = make(map[string]string, len(h.opts.HealthChecks))
	}
	for name, store := range h.opts.HealthChecks {
		if err := store.Ping(ctx); err != nil {
			h.logger.Error("health check failed", zap.String("check", name), zap.Error(err))
			resp.Checks[name] = "unhealthy"
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	h.writeJSON(w, status, resp)
}

// writeExtractionError maps pipeline error kinds onto HTTP statuses.
func (h *Handler) writeExtractionError(w http.ResponseWriter, rawURL string, err error) {
	var pe *pipeline.Error
	if !errors.As(err, &pe) {
		h.logger.Error("extraction failed unexpectedly", zap.String("url", rawURL), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, kindInternal, "Internal server error")
		return
	}

	status := http.StatusInternalServerError
	switch pe.Kind {
	case pipeline.KindValidation:
		status = http.StatusBadRequest
	case pipeline.KindFetch:
		status = http.StatusBadGateway
	case pipeline.KindNoImagesFound:
		status = http.StatusUnprocessableEntity
	}
	h.writeError(w, status, string(pe.Kind), pe.Message)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, kind, message string) {
	h.writeJSON(w, status, response.ErrorResponse{
		Success: false,
		Error:   response.ErrorBody{Kind: kind, Message: message},
	})
}
