// Package client implements the docchat client side: a lazily initialized
// embedder handle shared by the TUI, and an HTTP client that computes the
// query embedding locally, posts it to the server, and relays the streamed
// answer token by token.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/54b3r/docchat-go/internal/embedder"
	"github.com/54b3r/docchat-go/internal/indexer"
	"github.com/54b3r/docchat-go/internal/rag"
)

// EmbedderHandle owns the client-side embedding capability. Construction of
// the underlying embedder may be slow (model warm-up, network probe), so it
// is deferred to first use and performed exactly once no matter how many
// goroutines race on it. Ready reports whether the capability is usable, so
// the UI can keep submission disabled until then.
type EmbedderHandle struct {
	// initFn builds the embedder on first use.
	initFn func() (rag.Embedder, error)
	// once guards the single initialization.
	once sync.Once
	// ready flips to true only after a successful initialization.
	ready atomic.Bool

	emb rag.Embedder
	err error
}

// NewEmbedderHandle wraps init in a single-flight handle. init is not called
// until the first Get.
func NewEmbedderHandle(init func() (rag.Embedder, error)) *EmbedderHandle {
	return &EmbedderHandle{initFn: init}
}

// Get returns the embedder, initializing it on first call. Concurrent first
// calls converge on one initialization; all callers observe the same result.
func (h *EmbedderHandle) Get() (rag.Embedder, error) {
	h.once.Do(func() {
		h.emb, h.err = h.initFn()
		if h.err == nil {
			h.ready.Store(true)
		}
	})
	return h.emb, h.err
}

// Warm triggers initialization in the background. Errors surface on the
// first Get.
func (h *EmbedderHandle) Warm() {
	go func() { _, _ = h.Get() }()
}

// Ready reports whether the embedder initialized successfully. It never
// triggers initialization.
func (h *EmbedderHandle) Ready() bool {
	return h.ready.Load()
}

// Message is one prior conversation turn sent with a chat request.
type Message struct {
	// Role is "user" or "assistant".
	Role string `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
}

// Client talks to a docchat server.
type Client struct {
	// ServerURL is the server base URL (e.g. "http://localhost:8080").
	ServerURL string
	// Token is the bearer JWT sent on every request.
	Token string
	// HTTPClient is the underlying HTTP client. If nil a client with no
	// overall timeout is used, since chat responses stream indefinitely.
	HTTPClient *http.Client
}

// chatPayload is the JSON body for POST /v1/chat.
type chatPayload struct {
	ChatID    string    `json:"chatId"`
	Message   string    `json:"message"`
	Messages  []Message `json:"messages"`
	Embedding string    `json:"embedding"`
}

// errorBody is the JSON error shape returned by the server.
type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{}
}

// Chat sends a question plus its locally computed, unit-normalized embedding
// to the server and invokes onToken for every streamed answer chunk, in
// arrival order. It returns when the server signals completion, the context
// is cancelled, or the stream errors.
func (c *Client) Chat(ctx context.Context, chatID, message string, history []Message, queryEmbedding []float32, onToken func(string)) error {
	serialized, err := embedder.Marshal(queryEmbedding)
	if err != nil {
		return fmt.Errorf("client: serialize embedding: %w", err)
	}
	if history == nil {
		history = []Message{}
	}
	body, err := json.Marshal(chatPayload{
		ChatID:    chatID,
		Message:   message,
		Messages:  history,
		Embedding: serialized,
	})
	if err != nil {
		return fmt.Errorf("client: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ServerURL+"/v1/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("client: chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("client: chat request: %s", readServerError(resp))
	}

	return relaySSE(resp.Body, onToken)
}

// relaySSE reads SSE frames from r, invoking onToken for each data frame of
// the default message event. A "done" event ends the stream cleanly; an
// "error" event is surfaced to the caller.
func relaySSE(r io.Reader, onToken func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var event string
	var data []string
	flush := func() error {
		defer func() { event = ""; data = nil }()
		payload := strings.Join(data, "\n")
		switch event {
		case "", "message":
			if len(data) > 0 {
				onToken(payload)
			}
			return nil
		case "done":
			return io.EOF
		case "error":
			return fmt.Errorf("client: server stream error: %s", payload)
		default:
			return nil
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = append(data, strings.TrimPrefix(line, "data: "))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("client: read stream: %w", err)
	}
	return nil
}

// Embed asks the server to run the indexing pipeline over the given batch.
func (c *Client) Embed(ctx context.Context, batch indexer.Batch) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("client: encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ServerURL+"/v1/embed", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	httpc := c.httpClient()
	if httpc.Timeout == 0 {
		// Batch indexing is bounded work, unlike chat streams.
		httpc = &http.Client{Timeout: 10 * time.Minute, Transport: httpc.Transport}
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return fmt.Errorf("client: embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("client: embed request: %s", readServerError(resp))
	}
	return nil
}

// readServerError extracts the {"error": ...} body from a non-200 response,
// falling back to the HTTP status.
func readServerError(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil {
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
			return eb.Error
		}
	}
	return resp.Status
}
