package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docchat-go/internal/indexer"
	"github.com/54b3r/docchat-go/internal/orchestrator"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// JWTSecret is the HMAC secret bearer JWTs are verified against. If
	// empty, every protected route answers with the missing-configuration
	// error; the server never runs unauthenticated.
	JWTSecret string
	// Registry receives the server's Prometheus metrics. If nil a fresh
	// registry is created, which keeps unit tests hermetic.
	Registry *prometheus.Registry
}

// chatter is the interface handleChat calls to stream a grounded answer.
// *orchestrator.Orchestrator satisfies it; tests inject a fake.
type chatter interface {
	// Chat streams the answer for req to w.
	Chat(ctx context.Context, req orchestrator.ChatRequest, w io.Writer) error
}

// batchProcessor is the interface handleEmbed calls to run the indexing
// pipeline. *indexer.Pipeline satisfies it; tests inject a fake.
type batchProcessor interface {
	// Process embeds every pending row in the batch.
	Process(ctx context.Context, b indexer.Batch) (indexer.Result, error)
}

// Server is the HTTP server exposing the chat and indexing endpoints.
type Server struct {
	// chatter answers chat requests; the orchestrator in production.
	chatter chatter
	// pipeline runs embed batches; the indexer pipeline in production.
	pipeline batchProcessor
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// registry is the Prometheus registry served by GET /metrics.
	registry *prometheus.Registry
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatMessage is one prior conversation turn carried in the chat request.
type chatMessage struct {
	// Role is "user" or "assistant".
	Role string `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
}

// chatRequest is the JSON body for POST /v1/chat.
type chatRequest struct {
	// ChatID identifies the conversation. Optional.
	ChatID string `json:"chatId"`
	// Message is the user's question.
	Message string `json:"message"`
	// Messages holds prior turns, oldest first.
	Messages []chatMessage `json:"messages"`
	// Embedding is the client-computed query vector, serialized as a JSON
	// float array string.
	Embedding string `json:"embedding"`
}

// errorResponse is the JSON body for all non-streaming error replies.
type errorResponse struct {
	// Error is the human-readable failure description.
	Error string `json:"error"`
}
