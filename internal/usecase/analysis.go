package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/user/offer-image-service/internal/entity"
	"github.com/user/offer-image-service/internal/pipeline"
)

// ErrClassifierDisabled is attached to fallback analyses when analysis was
// requested but no classifier is configured.
var ErrClassifierDisabled = errors.New("image classifier is not configured")

// analyze attaches an analysis to every image when the request asks for one.
// Each image is an independent unit of work; the result keeps index order.
func (uc *imageExtractorUseCase) analyze(ctx context.Context, images []entity.ImageResult, req ExtractRequest) []entity.AnalyzedImage {
	out := make([]entity.AnalyzedImage, len(images))
	for i, img := range images {
		out[i] = entity.AnalyzedImage{ImageResult: img}
	}
	if !req.Analyze || len(images) == 0 {
		return out
	}
	if uc.deps.Classifier == nil || uc.deps.Images == nil {
		for i := range out {
			out[i].Analysis = entity.FallbackAnalysis(ErrClassifierDisabled)
		}
		uc.countClassifications("fallback", len(out))
		return out
	}

	limit := rate.Inf
	if uc.opts.ClassifyInterval > 0 {
		limit = rate.Every(uc.opts.ClassifyInterval)
	}
	limiter := rate.NewLimiter(limit, 1)

	var g errgroup.Group
	g.SetLimit(uc.opts.ClassifyWorkers)
	for i := range out {
		g.Go(func() error {
			analysis, err := uc.classify(ctx, limiter, out[i].URL, req.Instructions)
			if err != nil {
				uc.log.Warn("image classification failed, using fallback",
					zap.String("image", out[i].URL),
					zap.Int("index", out[i].Index),
					zap.Error(err),
				)
				analysis = entity.FallbackAnalysis(err)
				uc.countClassifications("fallback", 1)
			} else {
				uc.countClassifications("classified", 1)
			}
			out[i].Analysis = analysis
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (uc *imageExtractorUseCase) classify(ctx context.Context, limiter *rate.Limiter, imageURL, instructions string) (*entity.Analysis, error) {
	if err := limiter.Wait(ctx); err != nil {
		return nil, pipeline.NewError(pipeline.KindClassification, "classification was cancelled", err)
	}
	data, contentType, err := uc.deps.Images.FetchImage(ctx, imageURL)
	if err != nil {
		return nil, pipeline.NewError(pipeline.KindClassification, "the image could not be downloaded", err)
	}
	analysis, err := uc.deps.Classifier.Classify(ctx, data, contentType, instructions)
	if err != nil {
		return nil, pipeline.NewError(pipeline.KindClassification, "the image could not be classified", err)
	}
	if analysis == nil {
		return nil, pipeline.NewError(pipeline.KindClassification, "the classifier returned no analysis", nil)
	}
	return analysis, nil
}

func (uc *imageExtractorUseCase) countClassifications(outcome string, n int) {
	if uc.deps.Metrics != nil && n > 0 {
		uc.deps.Metrics.ClassificationsTotal.WithLabelValues(outcome).Add(float64(n))
	}
}

// String renders the status for logs.
func (s ClassifierStatus) String() string {
	if !s.Enabled {
		return "disabled"
	}
	return fmt.Sprintf("enabled (%s)", s.Model)
}
