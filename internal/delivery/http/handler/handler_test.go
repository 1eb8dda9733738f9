package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap/zaptest"

	"github.com/user/offer-image-service/internal/entity"
	"github.com/user/offer-image-service/internal/pipeline"
	"github.com/user/offer-image-service/internal/usecase"
)

type fakeExtractor struct {
	got    usecase.ExtractRequest
	resp   *usecase.ExtractResponse
	err    error
	run    *entity.ExtractionRun
	runErr error
	status usecase.ClassifierStatus
	// slow makes Extract wait for the request context before answering.
	slow bool
}

func (f *fakeExtractor) Extract(ctx context.Context, req usecase.ExtractRequest) (*usecase.ExtractResponse, error) {
	f.got = req
	if f.slow {
		<-ctx.Done()
	}
	return f.resp, f.err
}

func (f *fakeExtractor) LatestRun(ctx context.Context, url string) (*entity.ExtractionRun, error) {
	return f.run, f.runErr
}

func (f *fakeExtractor) ClassifierStatus() usecase.ClassifierStatus { return f.status }

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

func sampleResponse() *usecase.ExtractResponse {
	img := entity.ImageResult{
		URL:         "https://img.alicdn.com/a_400x400.jpg",
		OriginalURL: "https://img.alicdn.com/a_60x60.jpg",
		Index:       1,
		Type:        entity.ImageTypeMain,
		SizeHint:    "400x400",
	}
	return &usecase.ExtractResponse{
		Extraction: &entity.Extraction{
			Title:                "Linen Shirt",
			SourceURL:            "https://detail.1688.com/offer/1.html",
			Images:               []entity.ImageResult{img},
			TotalCandidatesFound: 3,
			ValidCandidates:      1,
			ExtractedCount:       1,
		},
		Images: []entity.AnalyzedImage{{ImageResult: img}},
		RunID:  "run-1",
	}
}

func newTestHandler(t *testing.T, f *fakeExtractor, checks map[string]Pinger) *Handler {
	t.Helper()
	return NewHandler(f, Options{DefaultMaxImages: 12, AppName: "offer-image-service", Version: "test", HealthChecks: checks}, zaptest.NewLogger(t))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHandleExtractSuccess(t *testing.T) {
	f := &fakeExtractor{resp: sampleResponse()}
	h := newTestHandler(t, f, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/extract", strings.NewReader(`{"url":" https://detail.1688.com/offer/1.html ","analyze":true}`))
	rec := httptest.NewRecorder()
	h.HandleExtract(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if f.got.MaxImages != 12 || !f.got.Analyze || f.got.URL != "https://detail.1688.com/offer/1.html" {
		t.Errorf("unexpected use case request: %+v", f.got)
	}

	body := decode(t, rec)
	if body["success"] != true || body["title"] != "Linen Shirt" || body["run_id"] != "run-1" {
		t.Errorf("unexpected body: %v", body)
	}
	images, ok := body["images"].([]any)
	if !ok || len(images) != 1 {
		t.Fatalf("images = %v", body["images"])
	}
	first := images[0].(map[string]any)
	if first["url"] != "https://img.alicdn.com/a_400x400.jpg" || first["size_hint"] != "400x400" {
		t.Errorf("unexpected image: %v", first)
	}
	if _, present := first["analysis"]; present {
		t.Error("analysis should be omitted when absent")
	}
}

func TestHandleExtractExplicitMax(t *testing.T) {
	f := &fakeExtractor{resp: sampleResponse()}
	h := newTestHandler(t, f, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/extract", strings.NewReader(`{"url":"https://detail.1688.com/offer/1.html","max_images":0}`))
	h.HandleExtract(httptest.NewRecorder(), req)
	if f.got.MaxImages != 0 {
		t.Errorf("max_images = %d, want an explicit 0 to be kept", f.got.MaxImages)
	}
}

func TestHandleExtractErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantKind string
	}{
		{"bad json", `{"url":`, nil, http.StatusBadRequest, "ValidationError"},
		{"empty body", ``, nil, http.StatusBadRequest, "ValidationError"},
		{"validation", `{"url":"x"}`, pipeline.NewError(pipeline.KindValidation, "bad url", nil), http.StatusBadRequest, "ValidationError"},
		{"fetch", `{"url":"x"}`, pipeline.NewError(pipeline.KindFetch, "timed out", nil), http.StatusBadGateway, "FetchError"},
		{"no images", `{"url":"x"}`, pipeline.NewError(pipeline.KindNoImagesFound, "none", nil), http.StatusUnprocessableEntity, "NoImagesFoundError"},
		{"unexpected", `{"url":"x"}`, errors.New("boom"), http.StatusInternalServerError, "InternalError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &fakeExtractor{err: tt.err}, nil)
			rec := httptest.NewRecorder()
			h.HandleExtract(rec, httptest.NewRequest(http.MethodPost, "/api/extract", strings.NewReader(tt.body)))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			body := decode(t, rec)
			if body["success"] != false {
				t.Errorf("success = %v", body["success"])
			}
			if _, present := body["images"]; present {
				t.Error("failure bodies must not carry images")
			}
			errBody, _ := body["error"].(map[string]any)
			if errBody["kind"] != tt.wantKind || errBody["message"] == "" {
				t.Errorf("error = %v", errBody)
			}
		})
	}
}

func TestHandleLatestExtraction(t *testing.T) {
	run := &entity.ExtractionRun{
		ID:        "run-7",
		SourceURL: "https://detail.1688.com/offer/1.html",
		Status:    entity.RunStatusFailed,
		ErrorKind: "FetchError",
		CreatedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name     string
		query    string
		f        *fakeExtractor
		wantCode int
	}{
		{"found", "?url=https://detail.1688.com/offer/1.html", &fakeExtractor{run: run}, http.StatusOK},
		{"missing param", "", &fakeExtractor{}, http.StatusBadRequest},
		{"not found", "?url=https://detail.1688.com/offer/2.html", &fakeExtractor{runErr: usecase.ErrRunNotFound}, http.StatusNotFound},
		{"disabled", "?url=https://detail.1688.com/offer/2.html", &fakeExtractor{runErr: usecase.ErrHistoryDisabled}, http.StatusServiceUnavailable},
		{"invalid", "?url=ftp://x", &fakeExtractor{runErr: pipeline.NewError(pipeline.KindValidation, "bad", nil)}, http.StatusBadRequest},
		{"store error", "?url=https://detail.1688.com/offer/2.html", &fakeExtractor{runErr: errors.New("db down")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newTestHandler(t, tt.f, nil).HandleLatestExtraction(rec, httptest.NewRequest(http.MethodGet, "/api/extractions"+tt.query, nil))
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body)
			}
		})
	}

	rec := httptest.NewRecorder()
	newTestHandler(t, &fakeExtractor{run: run}, nil).HandleLatestExtraction(rec, httptest.NewRequest(http.MethodGet, "/api/extractions?url=x", nil))
	body := decode(t, rec)
	if body["run_id"] != "run-7" || body["status"] != "failed" || body["error_kind"] != "FetchError" {
		t.Errorf("unexpected body: %v", body)
	}
	if images, ok := body["images"].([]any); !ok || len(images) != 0 {
		t.Errorf("images = %v, want an empty list", body["images"])
	}
}

func TestHandleClassifierStatus(t *testing.T) {
	f := &fakeExtractor{status: usecase.ClassifierStatus{Enabled: true, Model: "gpt-4o-mini"}}
	rec := httptest.NewRecorder()
	newTestHandler(t, f, nil).HandleClassifierStatus(rec, httptest.NewRequest(http.MethodGet, "/api/classifier/status", nil))

	body := decode(t, rec)
	if body["enabled"] != true || body["model"] != "gpt-4o-mini" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestHandleHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h := newTestHandler(t, &fakeExtractor{}, map[string]Pinger{"redis": fakePinger{}})
		h.HandleHealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

		body := decode(t, rec)
		if rec.Code != http.StatusOK || body["status"] != "healthy" || body["app"] != "offer-image-service" {
			t.Errorf("status = %d, body = %v", rec.Code, body)
		}
	})

	t.Run("unhealthy store", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h := newTestHandler(t, &fakeExtractor{}, map[string]Pinger{
			"redis":    fakePinger{},
			"postgres": fakePinger{err: errors.New("refused")},
		})
		h.HandleHealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d", rec.Code)
		}
		checks := decode(t, rec)["checks"].(map[string]any)
		if checks["postgres"] != "unhealthy" || checks["redis"] != "ok" {
			t.Errorf("checks = %v", checks)
		}
	})
}

func TestHandleExtractPastDeadlineLeavesResponseToTimeout(t *testing.T) {
	h := newTestHandler(t, &fakeExtractor{resp: sampleResponse(), slow: true}, nil)
	srv := chimw.Timeout(20 * time.Millisecond)(http.HandlerFunc(h.HandleExtract))

	req := httptest.NewRequest(http.MethodPost, "/api/extract", strings.NewReader(`{"url":"https://detail.1688.com/offer/1.html","analyze":true}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusGatewayTimeout)
	}
	if strings.Contains(rec.Body.String(), `"success":true`) {
		t.Errorf("success body written after the deadline: %s", rec.Body.String())
	}
}
