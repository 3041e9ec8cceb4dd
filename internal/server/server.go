// Package server implements the HTTP server that exposes the docchat
// orchestrator (POST /v1/chat, streamed via SSE) and the indexing pipeline
// (POST /v1/embed), plus health, readiness, and metrics endpoints.
// The server is started by the `docchat serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/docchat-go/internal/embedder"
	"github.com/54b3r/docchat-go/internal/indexer"
	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/orchestrator"
)

// errReadingDocuments is the exact body clients receive when the retrieval
// step fails. The wording is part of the API contract.
const errReadingDocuments = "There was an error reading your documents, please try again."

// New constructs a Server from the provided chatter, pipeline, and config.
func New(c chatter, p batchProcessor, cfg *Config) (*Server, error) {
	if c == nil {
		return nil, fmt.Errorf("server: chatter must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must be long enough for streaming responses.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}

	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	s := &Server{
		chatter:  c,
		pipeline: p,
		cfg:      cfg,
		log:      log,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(registry),
		registry: registry,
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL

	protected := func(h http.Handler) http.Handler {
		return rl.middleware(s.jwtMiddleware(h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /v1/chat", protected(http.HandlerFunc(s.handleChat)))
	mux.Handle("POST /v1/embed", protected(http.HandlerFunc(s.handleEmbed)))
	mux.HandleFunc("OPTIONS /v1/", s.handlePreflight)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, s.metrics, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("docchat server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleChat handles POST /v1/chat. It parses the client-computed query
// embedding, runs retrieval plus generation through the orchestrator, and
// streams the answer using Server-Sent Events so clients render tokens as
// they arrive. Retrieval failures happen before any output and produce a
// JSON 500; failures after streaming has begun emit a terminal error event.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := logging.FromContext(r.Context())
	setCORS(w)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	embedding, err := embedder.Unmarshal(req.Embedding)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid embedding")
		return
	}

	history := make([]*schema.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "user":
			history = append(history, schema.UserMessage(m.Content))
		case "assistant":
			history = append(history, schema.AssistantMessage(m.Content, nil))
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// SSE headers. Nothing is committed until the first write, so error
	// paths below can still replace them with a JSON response.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sw := &sseWriter{w: w, flusher: flusher}

	s.metrics.chatActiveStreams.Inc()
	defer s.metrics.chatActiveStreams.Dec()

	chatErr := s.chatter.Chat(r.Context(), orchestrator.ChatRequest{
		ChatID:    req.ChatID,
		Message:   req.Message,
		Messages:  history,
		Embedding: embedding,
	}, sw)

	outcome := "ok"
	switch {
	case chatErr == nil:
		sw.writeEvent("done", "[DONE]")
	case errors.Is(chatErr, orchestrator.ErrRetrieval):
		outcome = "retrieval_error"
		log.Error("document retrieval failed", slog.Any("error", chatErr))
		w.Header().Set("Content-Type", "application/json")
		writeError(w, http.StatusInternalServerError, errReadingDocuments)
	case !sw.wrote:
		// Generation failed before the first token; the response is still
		// uncommitted.
		outcome = "error"
		log.Error("chat failed before streaming", slog.Any("error", chatErr))
		w.Header().Set("Content-Type", "application/json")
		writeError(w, http.StatusInternalServerError, "failed to generate a response")
	default:
		// Partial output already sent; the error event is the only channel left.
		outcome = "error"
		log.Error("chat stream interrupted", slog.Any("error", chatErr))
		sw.writeEvent("error", "stream interrupted")
	}

	s.metrics.chatRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.chatDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// handleEmbed handles POST /v1/embed. The body names the rows to index; the
// pipeline fills in their embedding columns. Per-row failures are absorbed by
// the pipeline (and surfaced via metrics); only batch-level failures produce
// an error response.
func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	setCORS(w)

	if s.pipeline == nil {
		writeError(w, http.StatusInternalServerError, "indexing is not configured")
		return
	}

	var batch indexer.Batch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(batch.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}

	res, err := s.pipeline.Process(r.Context(), batch)
	if err != nil {
		log.Error("embed batch failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to process batch")
		return
	}

	s.metrics.indexerRowsTotal.WithLabelValues("indexed").Add(float64(res.Indexed))
	s.metrics.indexerRowsTotal.WithLabelValues("skipped").Add(float64(res.Skipped))
	s.metrics.indexerRowsTotal.WithLabelValues("failed").Add(float64(res.Failed))
	log.Info("embed batch processed",
		slog.Int("indexed", res.Indexed),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed),
	)

	w.WriteHeader(http.StatusOK)
}

// writeError sends a JSON error body with the given status code.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

// sseWriter wraps an http.ResponseWriter to emit Server-Sent Event data frames.
type sseWriter struct {
	// w is the underlying response writer.
	w http.ResponseWriter
	// flusher flushes buffered data to the client after each write.
	flusher http.Flusher
	// wrote records whether any frame has been sent, which decides whether
	// an error can still be returned as a JSON response.
	wrote bool
}

// Write formats p as one or more SSE data lines and flushes to the client.
// Every newline in p becomes a data-line boundary, including trailing ones:
// a chunk of "\n\n" is framed as three empty data lines, so clients that
// join data lines with "\n" reconstruct the chunk byte for byte. Paragraph
// breaks in streamed answers depend on this.
func (s *sseWriter) Write(p []byte) (n int, err error) {
	lines := strings.Split(string(p), "\n")
	var buf strings.Builder
	for _, line := range lines {
		buf.WriteString("data: ")
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
	if _, err = fmt.Fprint(s.w, buf.String()); err != nil {
		return 0, err
	}
	s.wrote = true
	s.flusher.Flush()
	return len(p), nil
}

// writeEvent emits a named event frame ("done", "error") and flushes. All
// frame emission goes through the sseWriter so the framing lives in one place.
func (s *sseWriter) writeEvent(name, data string) {
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data)
	s.wrote = true
	s.flusher.Flush()
}
