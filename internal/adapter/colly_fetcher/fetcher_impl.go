package colly_fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly"
	"go.uber.org/zap"

	"github.com/user/offer-image-service/internal/repository"
)

const (
	DefaultTimeout       = 12 * time.Second
	DefaultMaxImageBytes = 8 << 20
	maxPageBytes         = 16 << 20

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	pageAccept       = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	imageAccept      = "image/avif,image/webp,image/apng,image/*,*/*;q=0.8"
)

// Options configures the fetcher.
type Options struct {
	Timeout       time.Duration
	MaxImageBytes int
	UserAgent     string
	// Referer is sent with image requests; CDNs often refuse hotlinks without one.
	Referer string
}

// CollyFetcher retrieves product pages and images with browser-like request headers.
// It implements repository.PageFetcher and repository.ImageFetcher.
type CollyFetcher struct {
	collector *colly.Collector
	opts      Options
	logger    *zap.Logger
}

// New creates a fetcher. Zero option values fall back to the package defaults.
func New(opts Options, logger *zap.Logger) *CollyFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = DefaultMaxImageBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(
		colly.UserAgent(opts.UserAgent),
		colly.AllowURLRevisit(),
	)
	// Clones share the HTTP backend, so the timeout is set once here.
	c.SetRequestTimeout(opts.Timeout)

	return &CollyFetcher{collector: c, opts: opts, logger: logger}
}

// FetchPage returns the HTML body of url. It never retries.
func (f *CollyFetcher) FetchPage(ctx context.Context, url string) (string, error) {
	resp, err := f.fetch(ctx, url, maxPageBytes, func(r *colly.Request) {
		setBrowserHeaders(r, pageAccept, "document")
		r.Headers.Set("Sec-Fetch-Mode", "navigate")
		r.Headers.Set("Sec-Fetch-Site", "none")
		r.Headers.Set("Sec-Fetch-User", "?1")
		r.Headers.Set("Upgrade-Insecure-Requests", "1")
	})
	if err != nil {
		return "", err
	}
	return string(resp.Body), nil
}

// FetchImage downloads an image and reports its content type.
func (f *CollyFetcher) FetchImage(ctx context.Context, url string) ([]byte, string, error) {
	// One extra byte tells a truncated body apart from one that fits exactly.
	resp, err := f.fetch(ctx, url, f.opts.MaxImageBytes+1, func(r *colly.Request) {
		setBrowserHeaders(r, imageAccept, "image")
		r.Headers.Set("Sec-Fetch-Mode", "no-cors")
		r.Headers.Set("Sec-Fetch-Site", "cross-site")
		if f.opts.Referer != "" {
			r.Headers.Set("Referer", f.opts.Referer)
		}
	})
	if err != nil {
		return nil, "", err
	}
	if len(resp.Body) > f.opts.MaxImageBytes {
		return nil, "", fmt.Errorf("image %s exceeds %d bytes", url, f.opts.MaxImageBytes)
	}

	contentType := resp.Headers.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(resp.Body)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("%s is not an image (content type %q)", url, contentType)
	}
	return resp.Body, contentType, nil
}

func (f *CollyFetcher) fetch(ctx context.Context, url string, maxBytes int, onRequest func(*colly.Request)) (*colly.Response, error) {
	c := f.collector.Clone()
	c.MaxBodySize = maxBytes

	var (
		resp   *colly.Response
		status int
	)
	c.OnRequest(onRequest)
	c.OnResponse(func(r *colly.Response) {
		if err := decompress(r); err != nil {
			f.logger.Warn("failed to decompress response", zap.String("url", url), zap.Error(err))
		}
		resp = r
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- c.Visit(url) }()

	select {
	case <-ctx.Done():
		// The request itself is bounded by the collector timeout.
		return nil, fmt.Errorf("%w: %s: %v", repository.ErrFetchTimeout, url, ctx.Err())
	case err := <-done:
		f.logger.Debug("fetched",
			zap.String("url", url),
			zap.Int("status", status),
			zap.Duration("elapsed", time.Since(start)),
		)
		if err != nil {
			return nil, classify(url, status, err)
		}
		if resp == nil {
			return nil, fmt.Errorf("%w: %s: empty response", repository.ErrFetchTransport, url)
		}
		return resp, nil
	}
}

func classify(url string, status int, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %s: %v", repository.ErrFetchTimeout, url, err)
	case status != 0:
		return fmt.Errorf("%w: %s: status %d", repository.ErrFetchStatus, url, status)
	default:
		return fmt.Errorf("%w: %s: %v", repository.ErrFetchTransport, url, err)
	}
}

func setBrowserHeaders(r *colly.Request, accept, dest string) {
	r.Headers.Set("Accept", accept)
	r.Headers.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	r.Headers.Set("Accept-Encoding", "gzip, deflate, br")
	r.Headers.Set("Connection", "keep-alive")
	r.Headers.Set("Sec-Fetch-Dest", dest)
}
