package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/offer-image-service/internal/entity"
	"github.com/user/offer-image-service/internal/pipeline"
	"github.com/user/offer-image-service/internal/repository"
	"github.com/user/offer-image-service/pkg/metrics"
)

var (
	// ErrRunNotFound is returned when no history exists for a URL.
	ErrRunNotFound = errors.New("no extraction run recorded for this URL")
	// ErrHistoryDisabled is returned by LatestRun when no history store is wired.
	ErrHistoryDisabled = errors.New("extraction history is not configured")
)

// ExtractRequest is one extraction job.
type ExtractRequest struct {
	URL          string
	MaxImages    int
	Analyze      bool
	Instructions string
	// ForceRefresh bypasses and replaces the cached result.
	ForceRefresh bool
}

// ExtractResponse is the outcome of a successful extraction.
type ExtractResponse struct {
	Extraction *entity.Extraction
	// Images mirrors Extraction.Images in index order, with analyses attached when requested.
	Images            []entity.AnalyzedImage
	Cached            bool
	RunID             string
	UnclassifiedCount int
}

// ClassifierStatus reports whether image analysis is available.
type ClassifierStatus struct {
	Enabled bool
	Model   string
}

// ImageExtractor defines the product image extraction use case.
type ImageExtractor interface {
	Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error)
	LatestRun(ctx context.Context, url string) (*entity.ExtractionRun, error)
	ClassifierStatus() ClassifierStatus
}

// Dependencies wires the use case. Only Pipeline is required.
type Dependencies struct {
	Pipeline   *pipeline.Pipeline
	Cache      repository.ResultCacheRepository
	History    repository.ExtractionRunRepository
	Classifier repository.Classifier
	Images     repository.ImageFetcher
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

// Options tunes caching and classification.
type Options struct {
	CacheTTL         time.Duration
	ClassifyWorkers  int
	ClassifyInterval time.Duration
}

type imageExtractorUseCase struct {
	deps Dependencies
	opts Options
	log  *zap.Logger
	now  func() time.Time
}

// NewImageExtractor creates a new instance of the extraction use case.
func NewImageExtractor(deps Dependencies, opts Options) ImageExtractor {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Minute
	}
	if opts.ClassifyWorkers <= 0 {
		opts.ClassifyWorkers = 1
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &imageExtractorUseCase{deps: deps, opts: opts, log: log, now: time.Now}
}

// Extract serves a cached result when one exists, otherwise runs the pipeline,
// records the run and caches the result. Classification failures never fail the call.
func (uc *imageExtractorUseCase) Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	start := uc.now()

	u, err := uc.deps.Pipeline.ValidateSourceURL(req.URL)
	if err != nil {
		uc.countExtraction("failure", err)
		return nil, err
	}
	sourceURL := u.String()
	maxImages := uc.deps.Pipeline.ClampMaxImages(req.MaxImages)

	resp := &ExtractResponse{}
	if req.ForceRefresh {
		uc.invalidate(ctx, sourceURL, maxImages)
	} else {
		resp.Extraction, resp.Cached = uc.lookup(ctx, sourceURL, maxImages)
	}

	if resp.Cached {
		uc.countExtraction("cached", nil)
	} else {
		resp.RunID = uuid.NewString()
		extraction, err := uc.deps.Pipeline.Run(ctx, sourceURL, maxImages)
		uc.record(ctx, resp.RunID, sourceURL, extraction, err, uc.now().Sub(start))
		uc.countExtraction("success", err)
		if err != nil {
			uc.log.Info("extraction failed",
				zap.String("url", sourceURL),
				zap.String("kind", string(pipeline.KindOf(err))),
				zap.Error(err),
			)
			return nil, err
		}
		if uc.deps.Metrics != nil {
			uc.deps.Metrics.ImagesExtracted.Observe(float64(extraction.ExtractedCount))
		}
		uc.store(ctx, sourceURL, maxImages, extraction)
		resp.Extraction = extraction
	}

	resp.Images = uc.analyze(ctx, resp.Extraction.Images, req)
	for _, img := range resp.Images {
		if img.Analysis != nil && img.Analysis.Fallback {
			resp.UnclassifiedCount++
		}
	}

	uc.log.Info("extraction finished",
		zap.String("url", sourceURL),
		zap.String("run_id", resp.RunID),
		zap.Bool("cached", resp.Cached),
		zap.Int("images", len(resp.Images)),
		zap.Int("unclassified", resp.UnclassifiedCount),
		zap.Duration("elapsed", uc.now().Sub(start)),
	)
	return resp, nil
}

func (uc *imageExtractorUseCase) LatestRun(ctx context.Context, url string) (*entity.ExtractionRun, error) {
	if uc.deps.History == nil {
		return nil, ErrHistoryDisabled
	}
	u, err := uc.deps.Pipeline.ValidateSourceURL(url)
	if err != nil {
		return nil, err
	}
	run, err := uc.deps.History.FindLatestByURL(ctx, u.String())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load extraction history for %s: %w", u, err)
	}
	return run, nil
}

func (uc *imageExtractorUseCase) ClassifierStatus() ClassifierStatus {
	if uc.deps.Classifier == nil {
		return ClassifierStatus{}
	}
	return ClassifierStatus{Enabled: true, Model: uc.deps.Classifier.Model()}
}

func (uc *imageExtractorUseCase) lookup(ctx context.Context, url string, maxImages int) (*entity.Extraction, bool) {
	if uc.deps.Cache == nil {
		return nil, false
	}
	extraction, ok, err := uc.deps.Cache.Get(ctx, url, maxImages)
	switch {
	case err != nil:
		uc.countCache("error")
		uc.log.Warn("result cache lookup failed", zap.String("url", url), zap.Error(err))
		return nil, false
	case ok:
		uc.countCache("hit")
		return extraction, true
	default:
		uc.countCache("miss")
		return nil, false
	}
}

func (uc *imageExtractorUseCase) invalidate(ctx context.Context, url string, maxImages int) {
	if uc.deps.Cache == nil {
		return
	}
	if err := uc.deps.Cache.Invalidate(ctx, url, maxImages); err != nil {
		uc.log.Warn("failed to invalidate cached result", zap.String("url", url), zap.Error(err))
	}
}

func (uc *imageExtractorUseCase) store(ctx context.Context, url string, maxImages int, extraction *entity.Extraction) {
	if uc.deps.Cache == nil {
		return
	}
	if err := uc.deps.Cache.Set(ctx, url, maxImages, extraction, uc.opts.CacheTTL); err != nil {
		uc.log.Warn("failed to cache extraction", zap.String("url", url), zap.Error(err))
	}
}

// record appends the run to the history. Failures to write are logged only.
func (uc *imageExtractorUseCase) record(ctx context.Context, runID, url string, extraction *entity.Extraction, runErr error, elapsed time.Duration) {
	if uc.deps.History == nil {
		return
	}
	run := &entity.ExtractionRun{
		ID:         runID,
		SourceURL:  url,
		Status:     entity.RunStatusSucceeded,
		DurationMS: elapsed.Milliseconds(),
		CreatedAt:  uc.now().UTC(),
	}
	if extraction != nil {
		run.Title = extraction.Title
		run.CandidatesFound = extraction.TotalCandidatesFound
		run.ExtractedCount = extraction.ExtractedCount
		run.Images = extraction.Images
	}
	if runErr != nil {
		run.Status = entity.RunStatusFailed
		run.ErrorKind = string(pipeline.KindOf(runErr))
		run.ErrorMessage = runErr.Error()
		var pe *pipeline.Error
		if errors.As(runErr, &pe) {
			run.ErrorMessage = pe.Message
		}
	}
	if err := uc.deps.History.Save(ctx, run); err != nil {
		uc.log.Error("failed to save extraction run", zap.String("url", url), zap.String("run_id", runID), zap.Error(err))
	}
}

func (uc *imageExtractorUseCase) countExtraction(status string, err error) {
	if uc.deps.Metrics == nil {
		return
	}
	kind := ""
	if err != nil {
		status = "failure"
		kind = string(pipeline.KindOf(err))
	}
	uc.deps.Metrics.ExtractionsTotal.WithLabelValues(status, kind).Inc()
}

func (uc *imageExtractorUseCase) countCache(result string) {
	if uc.deps.Metrics != nil {
		uc.deps.Metrics.CacheLookupsTotal.WithLabelValues(result).Inc()
	}
}
