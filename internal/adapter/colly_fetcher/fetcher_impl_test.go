package colly_fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"go.uber.org/zap/zaptest"

	"github.com/user/offer-image-service/internal/repository"
)

const productHTML = `<html><head><title>Offer</title></head><body><img src="https://img.alicdn.com/a.jpg"></body></html>`

// pngHeader is enough for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newTestFetcher(t *testing.T, opts Options) *CollyFetcher {
	t.Helper()
	return New(opts, zaptest.NewLogger(t))
}

func TestFetchPageSendsBrowserHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(productHTML))
	}))
	defer srv.Close()

	body, err := newTestFetcher(t, Options{}).FetchPage(context.Background(), srv.URL+"/offer/1.html")
	if err != nil {
		t.Fatalf("FetchPage() error = %v", err)
	}
	if body != productHTML {
		t.Errorf("body = %q", body)
	}

	checks := map[string]string{
		"Accept-Language":           "zh-CN",
		"Accept-Encoding":           "br",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Upgrade-Insecure-Requests": "1",
		"User-Agent":                "Mozilla/5.0",
	}
	for header, want := range checks {
		if !strings.Contains(got.Get(header), want) {
			t.Errorf("%s = %q, want it to contain %q", header, got.Get(header), want)
		}
	}
}

func TestFetchPageDecodesCompressedBodies(t *testing.T) {
	encode := map[string]func([]byte) []byte{
		"br": func(b []byte) []byte {
			var buf bytes.Buffer
			w := brotli.NewWriter(&buf)
			w.Write(b)
			w.Close()
			return buf.Bytes()
		},
		"gzip": func(b []byte) []byte {
			var buf bytes.Buffer
			w := gzip.NewWriter(&buf)
			w.Write(b)
			w.Close()
			return buf.Bytes()
		},
	}

	for encoding, fn := range encode {
		t.Run(encoding, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.Header().Set("Content-Encoding", encoding)
				w.Write(fn([]byte(productHTML)))
			}))
			defer srv.Close()

			body, err := newTestFetcher(t, Options{}).FetchPage(context.Background(), srv.URL)
			if err != nil {
				t.Fatalf("FetchPage() error = %v", err)
			}
			if body != productHTML {
				t.Errorf("body was not decoded: %q", body)
			}
		})
	}
}

func TestFetchPageErrors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "gone", http.StatusNotFound)
		}))
		defer srv.Close()

		_, err := newTestFetcher(t, Options{}).FetchPage(context.Background(), srv.URL)
		if !errors.Is(err, repository.ErrFetchStatus) {
			t.Errorf("expected ErrFetchStatus, got %v", err)
		}
		if err != nil && !strings.Contains(err.Error(), "404") {
			t.Errorf("error should mention the status: %v", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()

		_, err := newTestFetcher(t, Options{Timeout: 50 * time.Millisecond}).FetchPage(context.Background(), srv.URL)
		if !errors.Is(err, repository.ErrFetchTimeout) {
			t.Errorf("expected ErrFetchTimeout, got %v", err)
		}
	})

	t.Run("context deadline", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := newTestFetcher(t, Options{Timeout: 5 * time.Second}).FetchPage(ctx, srv.URL)
		if !errors.Is(err, repository.ErrFetchTimeout) {
			t.Errorf("expected ErrFetchTimeout, got %v", err)
		}
	})

	t.Run("transport", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := srv.URL
		srv.Close()

		_, err := newTestFetcher(t, Options{}).FetchPage(context.Background(), url)
		if !errors.Is(err, repository.ErrFetchTransport) {
			t.Errorf("expected ErrFetchTransport, got %v", err)
		}
	})
}

func TestFetchImage(t *testing.T) {
	var referer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		referer = r.Header.Get("Referer")
		switch r.URL.Path {
		case "/typed.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("jpeg-bytes"))
		case "/sniffed":
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write(pngHeader)
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(productHTML))
		case "/large.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write(bytes.Repeat([]byte{0xff}, 64))
		}
	}))
	defer srv.Close()

	f := newTestFetcher(t, Options{MaxImageBytes: 32, Referer: "https://detail.1688.com/"})
	ctx := context.Background()

	body, ct, err := f.FetchImage(ctx, srv.URL+"/typed.jpg")
	if err != nil || ct != "image/jpeg" || string(body) != "jpeg-bytes" {
		t.Errorf("typed image: body=%q ct=%q err=%v", body, ct, err)
	}
	if referer != "https://detail.1688.com/" {
		t.Errorf("Referer = %q", referer)
	}

	if _, ct, err := f.FetchImage(ctx, srv.URL+"/sniffed"); err != nil || ct != "image/png" {
		t.Errorf("sniffed image: ct=%q err=%v", ct, err)
	}
	if _, _, err := f.FetchImage(ctx, srv.URL+"/page"); err == nil {
		t.Error("expected an error for a non-image response")
	}
	if _, _, err := f.FetchImage(ctx, srv.URL+"/large.jpg"); err == nil {
		t.Error("expected an error for an oversized image")
	}
}
