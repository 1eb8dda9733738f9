package repository

import (
	"context"
	"errors"
)

var (
	// ErrFetchTimeout is returned when the page did not arrive within the fetch timeout.
	ErrFetchTimeout = errors.New("fetch timed out")
	// ErrFetchStatus is returned for non-2xx responses.
	ErrFetchStatus = errors.New("unexpected response status")
	// ErrFetchTransport covers DNS, connection and read failures.
	ErrFetchTransport = errors.New("transport failure")
)

// PageFetcher retrieves the HTML of a product page.
type PageFetcher interface {
	// FetchPage returns the document body. It never retries.
	FetchPage(ctx context.Context, url string) (string, error)
}

// ImageFetcher downloads image bytes for classification.
type ImageFetcher interface {
	// FetchImage returns the image body and its content type.
	FetchImage(ctx context.Context, url string) ([]byte, string, error)
}
