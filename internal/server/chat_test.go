package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docchat-go/internal/orchestrator"
)

// ---------------------------------------------------------------------------
// Fake chatter for chat handler tests
// ---------------------------------------------------------------------------

// fakeChatter implements the chatter interface for tests.
// It writes fixed chunks to the writer and returns configurable values.
type fakeChatter struct {
	// chunks are written to the writer one Write call each.
	chunks []string
	// err is returned after the chunks are written. If errBeforeWrite is
	// set, err is returned before anything is written.
	err            error
	errBeforeWrite bool
	// calls counts Chat invocations.
	calls int
	// lastReq records the most recent request for assertions.
	lastReq orchestrator.ChatRequest
}

func (f *fakeChatter) Chat(_ context.Context, req orchestrator.ChatRequest, w io.Writer) error {
	f.calls++
	f.lastReq = req
	if f.errBeforeWrite {
		return f.err
	}
	for _, c := range f.chunks {
		_, _ = fmt.Fprint(w, c)
	}
	return f.err
}

// newChatTestServer builds a *Server wired with the given chatter fake and a
// fresh metrics registry.
func newChatTestServer(c chatter) *Server {
	return &Server{
		chatter: c,
		cfg:     &Config{Port: 8080, JWTSecret: "test-secret"},
		log:     slog.Default(),
		metrics: newServerMetrics(prometheus.NewRegistry()),
	}
}

// chatBody builds a minimal valid chat request body.
func chatBody(message string) string {
	return fmt.Sprintf(`{"chatId":"c1","message":%q,"messages":[],"embedding":"[0.6,0.8]"}`, message)
}

// ---------------------------------------------------------------------------
// POST /v1/chat — validation error paths
// ---------------------------------------------------------------------------

func TestHandleChat_InvalidJSON(t *testing.T) {
	t.Parallel()

	s := newChatTestServer(nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`not-json`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleChat_MissingMessage(t *testing.T) {
	t.Parallel()

	s := newChatTestServer(nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat",
		strings.NewReader(`{"embedding":"[1,0]"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleChat_InvalidEmbedding(t *testing.T) {
	t.Parallel()

	s := newChatTestServer(nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat",
		strings.NewReader(`{"message":"hi","embedding":"not a vector"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /v1/chat — streaming paths
// ---------------------------------------------------------------------------

// TestHandleChat_Success verifies that a valid request produces an SSE stream
// carrying the chunks in order followed by a "done" event.
// httptest.ResponseRecorder implements http.Flusher so the handler's flusher
// check passes without a real connection.
func TestHandleChat_Success(t *testing.T) {
	t.Parallel()

	c := &fakeChatter{chunks: []string{"Hello", " world"}}
	s := newChatTestServer(c)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(chatBody("hi")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "data: Hello") || !strings.Contains(body, "data:  world") {
		t.Errorf("expected streamed data frames in order, got: %s", body)
	}
	if strings.Index(body, "Hello") > strings.Index(body, "world") {
		t.Errorf("chunks out of order: %s", body)
	}
	if !strings.Contains(body, "event: done") || !strings.Contains(body, "[DONE]") {
		t.Errorf("expected SSE done event, got: %s", body)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected CORS allow-origin *, got %q", got)
	}
}

// TestHandleChat_RequestParsing verifies the handler passes the parsed
// embedding and history through to the orchestrator.
func TestHandleChat_RequestParsing(t *testing.T) {
	t.Parallel()

	c := &fakeChatter{chunks: []string{"ok"}}
	s := newChatTestServer(c)

	body := `{"chatId":"c9","message":"now?","messages":[{"role":"user","content":"before"},{"role":"assistant","content":"answer"}],"embedding":"[0.5,0.5]"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if c.lastReq.ChatID != "c9" || c.lastReq.Message != "now?" {
		t.Errorf("request fields not forwarded: %+v", c.lastReq)
	}
	if len(c.lastReq.Embedding) != 2 || c.lastReq.Embedding[0] != 0.5 {
		t.Errorf("embedding not parsed: %v", c.lastReq.Embedding)
	}
	if len(c.lastReq.Messages) != 2 || c.lastReq.Messages[0].Content != "before" {
		t.Errorf("history not forwarded: %v", c.lastReq.Messages)
	}
}

// TestHandleChat_RetrievalError verifies that a retrieval failure produces a
// JSON 500 with the contractual error body and no SSE frames.
func TestHandleChat_RetrievalError(t *testing.T) {
	t.Parallel()

	c := &fakeChatter{err: fmt.Errorf("%w: index gone", orchestrator.ErrRetrieval), errBeforeWrite: true}
	s := newChatTestServer(c)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(chatBody("hi")))
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), errReadingDocuments) {
		t.Errorf("expected contractual retrieval error body, got: %s", w.Body.String())
	}
	if strings.Contains(w.Body.String(), "event:") {
		t.Errorf("unexpected SSE frames in error response: %s", w.Body.String())
	}
}

// TestHandleChat_GenerationErrorBeforeStream verifies that a model failure
// with no output yet still yields a JSON 500.
func TestHandleChat_GenerationErrorBeforeStream(t *testing.T) {
	t.Parallel()

	c := &fakeChatter{err: errors.New("model unreachable"), errBeforeWrite: true}
	s := newChatTestServer(c)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(chatBody("hi")))
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

// TestHandleChat_MidStreamError verifies that a failure after partial output
// emits a terminal SSE error event rather than changing the HTTP status.
func TestHandleChat_MidStreamError(t *testing.T) {
	t.Parallel()

	c := &fakeChatter{chunks: []string{"partial"}, err: errors.New("upstream dropped")}
	s := newChatTestServer(c)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(chatBody("hi")))
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "data: partial") {
		t.Errorf("expected partial output before the error, got: %s", body)
	}
	if !strings.Contains(body, "event: error") {
		t.Errorf("expected terminal SSE error event, got: %s", body)
	}
	if strings.Contains(body, "event: done") {
		t.Errorf("done event must not follow a stream error: %s", body)
	}
}

// TestSSEWriter_MultilineChunk verifies multi-line chunks are framed as
// multiple data lines within one event.
func TestSSEWriter_MultilineChunk(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	sw := &sseWriter{w: rec, flusher: rec}
	if _, err := sw.Write([]byte("line one\nline two")); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := "data: line one\ndata: line two\n\n"
	if rec.Body.String() != want {
		t.Errorf("framed output = %q, want %q", rec.Body.String(), want)
	}
}

// TestSSEWriter_TrailingNewlinesPreserved verifies newline-only and
// newline-terminated chunks keep every newline across the data-line framing.
// Models emit paragraph breaks as bare "\n\n" tokens.
func TestSSEWriter_TrailingNewlinesPreserved(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		chunk string
		want  string
	}{
		{"paragraph break", "\n\n", "data: \ndata: \ndata: \n\n"},
		{"single newline", "\n", "data: \ndata: \n\n"},
		{"trailing newline", "end of line\n", "data: end of line\ndata: \n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			sw := &sseWriter{w: rec, flusher: rec}
			if _, err := sw.Write([]byte(tt.chunk)); err != nil {
				t.Fatalf("write: %v", err)
			}
			if rec.Body.String() != tt.want {
				t.Errorf("framed output = %q, want %q", rec.Body.String(), tt.want)
			}
		})
	}
}

// TestHandleChat_ParagraphBreaksSurviveRelay streams tokens containing a bare
// paragraph-break chunk and reassembles the SSE body the way a client does
// (data lines of one frame joined with "\n", frames concatenated), checking
// the answer text comes back byte for byte.
func TestHandleChat_ParagraphBreaksSurviveRelay(t *testing.T) {
	t.Parallel()

	s := newChatTestServer(&fakeChatter{chunks: []string{"Hello", "\n\n", "world"}})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(chatBody("hi")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.handleChat(w, req)

	var answer strings.Builder
	for _, frame := range strings.Split(w.Body.String(), "\n\n") {
		if frame == "" || strings.HasPrefix(frame, "event: ") {
			continue
		}
		var data []string
		for _, line := range strings.Split(frame, "\n") {
			data = append(data, strings.TrimPrefix(line, "data: "))
		}
		answer.WriteString(strings.Join(data, "\n"))
	}
	if got := answer.String(); got != "Hello\n\nworld" {
		t.Errorf("reassembled answer = %q, want %q", got, "Hello\n\nworld")
	}
}
