package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/54b3r/docchat-go/internal/indexer"
	"github.com/54b3r/docchat-go/internal/rag"
)

// indexerBatch builds a default-table batch for the given IDs.
func indexerBatch(ids ...string) indexer.Batch {
	return indexer.Batch{IDs: ids}
}

// countingEmbedder records how many times it was constructed.
type countingEmbedder struct{}

func (countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func TestEmbedderHandle_SingleFlight(t *testing.T) {
	t.Parallel()

	var inits int
	var mu sync.Mutex
	h := NewEmbedderHandle(func() (rag.Embedder, error) {
		mu.Lock()
		inits++
		mu.Unlock()
		return countingEmbedder{}, nil
	})

	if h.Ready() {
		t.Error("handle ready before first Get")
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.Get(); err != nil {
				t.Errorf("get: %v", err)
			}
		}()
	}
	wg.Wait()

	if inits != 1 {
		t.Errorf("init ran %d times, want 1", inits)
	}
	if !h.Ready() {
		t.Error("handle not ready after successful Get")
	}
}

func TestEmbedderHandle_InitFailureNotReady(t *testing.T) {
	t.Parallel()

	h := NewEmbedderHandle(func() (rag.Embedder, error) {
		return nil, errors.New("model download failed")
	})
	if _, err := h.Get(); err == nil {
		t.Fatal("expected init error")
	}
	if h.Ready() {
		t.Error("handle must not report ready after failed init")
	}
}

func TestChat_StreamsTokensAndAuth(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("Authorization = %q", got)
		}
		if r.URL.Path != "/v1/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: Hello\n\n")
		fmt.Fprint(w, "data:  there\n\n")
		fmt.Fprint(w, "event: done\ndata: [DONE]\n\n")
	}))
	defer ts.Close()

	c := &Client{ServerURL: ts.URL, Token: "tok-123"}
	var tokens []string
	err := c.Chat(context.Background(), "c1", "hi", nil, []float32{0.6, 0.8}, func(tok string) {
		tokens = append(tokens, tok)
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if strings.Join(tokens, "") != "Hello there" {
		t.Errorf("tokens = %q, want %q", strings.Join(tokens, ""), "Hello there")
	}
}

// TestChat_ParagraphBreakTokens replays the server's framing for a bare
// "\n\n" token (one empty data line per newline boundary) and checks the
// relayed answer keeps the paragraph break intact.
func TestChat_ParagraphBreakTokens(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: Hello\n\n")
		fmt.Fprint(w, "data: \ndata: \ndata: \n\n")
		fmt.Fprint(w, "data: world\n\n")
		fmt.Fprint(w, "event: done\ndata: [DONE]\n\n")
	}))
	defer ts.Close()

	c := &Client{ServerURL: ts.URL, Token: "tok"}
	var answer strings.Builder
	err := c.Chat(context.Background(), "c1", "hi", nil, []float32{0.6, 0.8}, func(tok string) {
		answer.WriteString(tok)
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if answer.String() != "Hello\n\nworld" {
		t.Errorf("answer = %q, want %q", answer.String(), "Hello\n\nworld")
	}
}

func TestChat_ServerErrorBody(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"There was an error reading your documents, please try again."}`)
	}))
	defer ts.Close()

	c := &Client{ServerURL: ts.URL, Token: "tok"}
	err := c.Chat(context.Background(), "c1", "hi", nil, []float32{1}, func(string) {})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "reading your documents") {
		t.Errorf("error = %v, want server error body surfaced", err)
	}
}

func TestChat_StreamErrorEvent(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: partial\n\n")
		fmt.Fprint(w, "event: error\ndata: stream interrupted\n\n")
	}))
	defer ts.Close()

	c := &Client{ServerURL: ts.URL, Token: "tok"}
	var tokens []string
	err := c.Chat(context.Background(), "c1", "hi", nil, []float32{1}, func(tok string) {
		tokens = append(tokens, tok)
	})
	if err == nil {
		t.Fatal("expected stream error")
	}
	if len(tokens) != 1 || tokens[0] != "partial" {
		t.Errorf("tokens before error = %v, want the partial output", tokens)
	}
}

func TestEmbed_NonOKStatus(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embed" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"failed to process batch"}`)
	}))
	defer ts.Close()

	c := &Client{ServerURL: ts.URL, Token: "tok"}
	err := c.Embed(context.Background(), indexerBatch("a", "b"))
	if err == nil || !strings.Contains(err.Error(), "failed to process batch") {
		t.Errorf("err = %v, want server error body surfaced", err)
	}
}
