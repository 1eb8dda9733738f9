package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/offer-image-service/internal/entity"
	"github.com/user/offer-image-service/internal/repository"
	"github.com/user/offer-image-service/pkg/metrics"
	"github.com/user/offer-image-service/pkg/utils"
)

const (
	DefaultMaxImages = 12
	MaxImagesLimit   = 50
)

// Options configures a Pipeline at construction time.
type Options struct {
	// MarketplaceDomain is the registrable domain every source URL must belong to.
	// Empty disables the check.
	MarketplaceDomain string
	// MaxImagesLimit bounds the caller-supplied result count.
	MaxImagesLimit int
}

// Pipeline runs fetch, extraction, validation and enhancement for one product URL.
// It holds no per-run state and is safe for concurrent use.
type Pipeline struct {
	fetcher   repository.PageFetcher
	extractor *Extractor
	validator *Validator
	enhancer  *Enhancer
	opts      Options
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// New compiles the rules and assembles the stages.
func New(fetcher repository.PageFetcher, rules *Rules, opts Options, m *metrics.Metrics, logger *zap.Logger) (*Pipeline, error) {
	if rules == nil {
		rules = DefaultRules()
	}
	compiled, err := rules.Compile()
	if err != nil {
		return nil, err
	}
	if opts.MaxImagesLimit <= 0 {
		opts.MaxImagesLimit = MaxImagesLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		fetcher:   fetcher,
		extractor: newExtractor(compiled),
		validator: newValidator(compiled),
		enhancer:  newEnhancer(compiled),
		opts:      opts,
		metrics:   m,
		logger:    logger,
	}, nil
}

// Extractor exposes the candidate extraction stage.
func (p *Pipeline) Extractor() *Extractor { return p.extractor }

// Validator exposes the validation stage.
func (p *Pipeline) Validator() *Validator { return p.validator }

// Enhancer exposes the enhancement stage.
func (p *Pipeline) Enhancer() *Enhancer { return p.enhancer }

// ValidateSourceURL checks a caller-supplied product URL without fetching it.
func (p *Pipeline) ValidateSourceURL(sourceURL string) (*url.URL, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return nil, NewError(KindValidation, "a product URL is required", nil)
	}
	u, err := url.ParseRequestURI(sourceURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, NewError(KindValidation, "the product URL must be an absolute http(s) URL", err)
	}
	if d := p.opts.MarketplaceDomain; d != "" && utils.RegistrableDomain(u.Hostname()) != strings.ToLower(d) {
		return nil, NewError(KindValidation, fmt.Sprintf("the product URL must be a %s page", d), nil)
	}
	return u, nil
}

// Run fetches sourceURL and extracts up to maxImages enhanced images.
func (p *Pipeline) Run(ctx context.Context, sourceURL string, maxImages int) (*entity.Extraction, error) {
	u, err := p.ValidateSourceURL(sourceURL)
	if err != nil {
		return nil, err
	}
	if p.fetcher == nil {
		return nil, NewError(KindFetch, "no page fetcher is configured", nil)
	}

	domain := utils.RegistrableDomain(u.Hostname())
	start := time.Now()
	html, err := p.fetcher.FetchPage(ctx, u.String())
	if p.metrics != nil {
		p.metrics.FetchDuration.WithLabelValues(domain).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		p.logger.Warn("failed to fetch product page", zap.String("url", u.String()), zap.Error(err))
		return nil, NewError(KindFetch, fetchMessage(err), err)
	}

	return p.Process(u.String(), html, maxImages)
}

// Process runs the extraction stages on an already fetched document.
func (p *Pipeline) Process(sourceURL, html string, maxImages int) (*entity.Extraction, error) {
	page := &entity.ProductPage{SourceURL: sourceURL, RawHTML: html}
	title, candidates, err := p.extractor.Extract(page)
	page.RawHTML = ""
	if err != nil {
		return nil, NewError(KindNoImagesFound, "the product page could not be parsed", err)
	}
	page.Title = title

	raws := make([]string, len(candidates))
	for i, c := range candidates {
		raws[i] = c.RawURL
	}
	cleaned, rejected := p.validator.CleanAll(raws)
	if p.metrics != nil {
		for reason, n := range rejected {
			p.metrics.CandidatesRejected.WithLabelValues(string(reason)).Add(float64(n))
		}
	}

	p.logger.Debug("candidates validated",
		zap.String("url", sourceURL),
		zap.Int("candidates", len(candidates)),
		zap.Int("accepted", len(cleaned)),
	)

	if len(cleaned) == 0 {
		return nil, NewError(KindNoImagesFound,
			"no product images were found on the page; the page layout may not be supported", nil)
	}

	images, collapsed := p.enhancer.Build(cleaned, p.ClampMaxImages(maxImages))
	if collapsed > 0 && p.metrics != nil {
		p.metrics.CandidatesRejected.WithLabelValues(string(RejectDuplicate)).Add(float64(collapsed))
	}
	// URLs that collapsed onto an earlier result are not unique candidates.
	return &entity.Extraction{
		Title:                page.Title,
		SourceURL:            page.SourceURL,
		Images:               images,
		TotalCandidatesFound: len(candidates),
		ValidCandidates:      len(cleaned) - collapsed,
		ExtractedCount:       len(images),
	}, nil
}

// ClampMaxImages bounds a requested result count to [0, MaxImagesLimit].
func (p *Pipeline) ClampMaxImages(n int) int {
	if n < 0 {
		return 0
	}
	if n > p.opts.MaxImagesLimit {
		return p.opts.MaxImagesLimit
	}
	return n
}

func fetchMessage(err error) string {
	switch {
	case errors.Is(err, repository.ErrFetchTimeout), errors.Is(err, context.DeadlineExceeded):
		return "the product page did not respond in time; the URL may be unreachable"
	case errors.Is(err, repository.ErrFetchStatus):
		return "the product page returned an error status; the URL may be invalid"
	default:
		return "the product page could not be fetched; the URL may be invalid or unreachable"
	}
}
