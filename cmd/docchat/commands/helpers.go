package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/54b3r/docchat-go/internal/client"
	"github.com/54b3r/docchat-go/internal/embedder"
	"github.com/54b3r/docchat-go/internal/rag"
	"github.com/54b3r/docchat-go/internal/store"
)

// openStore opens the document store at DOCCHAT_DB (or the default path
// under ~/.docchat), tagged with the active embedding model so vectors from
// different models never match each other.
func openStore() (*store.DocumentStore, error) {
	path := os.Getenv("DOCCHAT_DB")
	if path == "" {
		var err error
		path, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolving database path: %w", err)
		}
	}

	s, err := store.Open(path, embedder.ModelName(embedder.Backend()))
	if err != nil {
		return nil, fmt.Errorf("opening document store at %s: %w", path, err)
	}
	return s, nil
}

// buildMirror connects to Qdrant when QDRANT_HOST is set. The returned index
// mirrors the document store so an external vector search stays in sync; when
// Qdrant is not configured it returns nil and the SQLite store serves search
// on its own.
func buildMirror(ctx context.Context, log *slog.Logger) (*rag.QdrantIndex, error) {
	host := os.Getenv("QDRANT_HOST")
	if host == "" {
		return nil, nil
	}

	port := getEnvInt("QDRANT_PORT", 6334)
	collection := getEnvOrDefault("QDRANT_COLLECTION", "docchat-docs")
	vectorSize := uint64(embedder.DefaultDimensions(embedder.Backend())) //nolint:gosec // dimensions are bounded

	idx, err := rag.NewQdrantIndex(ctx, &rag.QdrantConfig{
		Host:       host,
		Port:       port,
		Collection: collection,
		VectorSize: vectorSize,
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to Qdrant at %s:%d: %w", host, port, err)
	}
	log.Info("qdrant index ready",
		slog.String("host", host),
		slog.Int("port", port),
		slog.String("collection", collection),
	)
	return idx, nil
}

// newAPIClient constructs the HTTP client for talking to a docchat server.
// The token comes from DOCCHAT_TOKEN; mint one with `docchat token`.
func newAPIClient() *client.Client {
	return &client.Client{
		ServerURL: getEnvOrDefault("DOCCHAT_SERVER_URL", "http://127.0.0.1:8080"),
		Token:     os.Getenv("DOCCHAT_TOKEN"),
	}
}

// newEmbedderHandle wraps the env-configured embedder factory for lazy,
// single-flight initialisation.
func newEmbedderHandle() *client.EmbedderHandle {
	return client.NewEmbedderHandle(embedder.NewFromEnv)
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
