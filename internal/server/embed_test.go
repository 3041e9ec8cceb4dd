package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docchat-go/internal/indexer"
)

// fakePipeline implements the batchProcessor interface for tests.
type fakePipeline struct {
	res       indexer.Result
	err       error
	lastBatch indexer.Batch
}

func (f *fakePipeline) Process(_ context.Context, b indexer.Batch) (indexer.Result, error) {
	f.lastBatch = b
	return f.res, f.err
}

func newEmbedTestServer(p batchProcessor) *Server {
	return &Server{
		pipeline: p,
		cfg:      &Config{Port: 8080, JWTSecret: "test-secret"},
		log:      slog.Default(),
		metrics:  newServerMetrics(prometheus.NewRegistry()),
	}
}

func TestHandleEmbed_Success(t *testing.T) {
	t.Parallel()

	p := &fakePipeline{res: indexer.Result{Indexed: 2, Skipped: 1}}
	s := newEmbedTestServer(p)

	body := `{"ids":["a","b","c"],"table":"documents","contentColumn":"content","embeddingColumn":"embedding"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/embed", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.handleEmbed(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if len(p.lastBatch.IDs) != 3 || p.lastBatch.Table != "documents" {
		t.Errorf("batch not forwarded: %+v", p.lastBatch)
	}
}

func TestHandleEmbed_InvalidJSON(t *testing.T) {
	t.Parallel()

	s := newEmbedTestServer(&fakePipeline{})
	req := httptest.NewRequest(http.MethodPost, "/v1/embed", strings.NewReader(`not-json`))
	w := httptest.NewRecorder()

	s.handleEmbed(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleEmbed_MissingIDs(t *testing.T) {
	t.Parallel()

	s := newEmbedTestServer(&fakePipeline{})
	req := httptest.NewRequest(http.MethodPost, "/v1/embed",
		strings.NewReader(`{"table":"documents"}`))
	w := httptest.NewRecorder()

	s.handleEmbed(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleEmbed_BatchFailure(t *testing.T) {
	t.Parallel()

	p := &fakePipeline{err: errors.New("table does not exist")}
	s := newEmbedTestServer(p)

	req := httptest.NewRequest(http.MethodPost, "/v1/embed",
		strings.NewReader(`{"ids":["a"]}`))
	w := httptest.NewRecorder()

	s.handleEmbed(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "error") {
		t.Errorf("expected JSON error body, got: %s", w.Body.String())
	}
}

func TestHandleEmbed_NotConfigured(t *testing.T) {
	t.Parallel()

	s := newEmbedTestServer(nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/embed",
		strings.NewReader(`{"ids":["a"]}`))
	w := httptest.NewRecorder()

	s.handleEmbed(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}
