package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewOllamaEmbedderDefaults(t *testing.T) {
	t.Parallel()

	e := NewOllamaEmbedder(&OllamaConfig{Host: "http://localhost:11434/", Model: "nomic-embed-text"})
	if e.host != "http://localhost:11434" {
		t.Errorf("host = %q, want trailing slash trimmed", e.host)
	}
	if e.client.Timeout != 60*time.Second {
		t.Errorf("timeout = %v, want 60s default", e.client.Timeout)
	}

	e = NewOllamaEmbedder(&OllamaConfig{Host: "http://localhost:11434", Timeout: 5 * time.Second})
	if e.client.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want configured 5s", e.client.Timeout)
	}
}

func TestOllamaEmbedderEmbed(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("model = %q", req.Model)
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{
			Embeddings: [][]float32{{0.1, 0.2}, {0.3, 0.4}},
		})
	}))
	defer ts.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: ts.URL + "/", Model: "nomic-embed-text"})
	got, err := e.Embed(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(got) != 2 || got[0][1] != 0.2 {
		t.Errorf("embeddings = %v", got)
	}
}

func TestOllamaEmbedderEmbedServerError(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Error: "model not found"})
	}))
	defer ts.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: ts.URL, Model: "missing"})
	if _, err := e.Embed(context.Background(), []string{"x"}); err == nil {
		t.Fatal("expected error for server failure")
	}
}
