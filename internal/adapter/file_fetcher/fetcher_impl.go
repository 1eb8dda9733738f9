package file_fetcher

import (
	"context"
	"fmt"
	"os"

	"github.com/user/offer-image-service/internal/repository"
)

// FileFetcher serves a saved product page for every URL. It backs offline runs
// and deployments where outbound fetching is disabled.
type FileFetcher struct {
	path string
}

// New checks that path is readable and returns a fetcher serving it.
func New(path string) (*FileFetcher, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("fixture file: %w", err)
	}
	return &FileFetcher{path: path}, nil
}

// FetchPage ignores url and returns the file contents. The file is re-read on every
// call so it can be edited while the service runs.
func (f *FileFetcher) FetchPage(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", repository.ErrFetchTimeout, err)
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", repository.ErrFetchTransport, err)
	}
	return string(data), nil
}
