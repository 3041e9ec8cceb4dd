// Package ingestion loads source documents, splits them into overlapping
// chunks, and inserts the chunks into the document store with empty embedding
// columns. Embedding happens in a separate step: the indexer pipeline picks
// up the pending rows and fills the vectors in. This package is invoked by
// the `docchat ingest` CLI command.
package ingestion

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/54b3r/docchat-go/internal/store"
)

// Config holds the configuration for the ingestion loader.
type Config struct {
	// ChunkSize is the maximum number of characters per document chunk.
	// Defaults to 1000 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters to overlap between consecutive
	// chunks. Negative values are treated as zero; overlaps at or above
	// ChunkSize are clamped to a tenth of it.
	ChunkOverlap int

	// HTTPTimeout is the timeout for each remote fetch request.
	// Defaults to 30s if zero.
	HTTPTimeout time.Duration

	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string
}

// DocumentInserter persists chunk rows awaiting embedding.
// *store.DocumentStore satisfies it.
type DocumentInserter interface {
	InsertDocuments(ctx context.Context, docs []store.Document) error
}

// Loader splits sources into chunks and stages them in the document store.
type Loader struct {
	// docs receives the staged chunk rows.
	docs DocumentInserter

	// cfg holds the resolved loader configuration.
	cfg *Config

	// httpClient is used for fetching remote sources.
	httpClient *http.Client
}

// NewLoader constructs a Loader from the provided store and config.
func NewLoader(docs DocumentInserter, cfg *Config) (*Loader, error) {
	if docs == nil {
		return nil, fmt.Errorf("ingestion: document store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 10
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "docchat-go/1.0 (document ingestion)"
	}

	return &Loader{
		docs: docs,
		cfg:  cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
	}, nil
}

// Ingest loads, chunks, and stages all provided sources. A source is either
// an HTTP(S) URL, a file path, or a directory (walked for .md and .txt
// files). It processes sources sequentially and returns the IDs of the
// staged chunks along with the first error encountered. Progress is reported
// via the optional progress callback.
func (l *Loader) Ingest(ctx context.Context, sources []string, progress func(msg string)) ([]string, error) {
	if progress == nil {
		progress = func(string) {}
	}

	var staged []string
	for _, src := range sources {
		files, err := l.expand(src)
		if err != nil {
			return staged, fmt.Errorf("ingestion: resolving %s: %w", src, err)
		}

		for _, file := range files {
			progress(fmt.Sprintf("loading %s", file))

			content, err := l.load(ctx, file)
			if err != nil {
				return staged, fmt.Errorf("ingestion: load failed for %s: %w", file, err)
			}

			chunks := l.chunk(content)
			progress(fmt.Sprintf("chunked %s into %d chunks", file, len(chunks)))

			docs := make([]store.Document, 0, len(chunks))
			for i, chunk := range chunks {
				docs = append(docs, store.Document{
					ID:      chunkID(file, i),
					Content: chunk,
					Source:  file,
				})
			}

			if err := l.docs.InsertDocuments(ctx, docs); err != nil {
				return staged, fmt.Errorf("ingestion: staging chunks for %s: %w", file, err)
			}
			for _, doc := range docs {
				staged = append(staged, doc.ID)
			}

			progress(fmt.Sprintf("staged %d chunks from %s", len(chunks), file))
		}
	}

	return staged, nil
}

// expand resolves a source spec into the list of concrete inputs.
// URLs pass through unchanged; directories are walked for text files.
func (l *Loader) expand(src string) ([]string, error) {
	if isURL(src) {
		return []string{src}, nil
	}

	info, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	if !info.IsDir() {
		return []string{src}, nil
	}

	var files []string
	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".md", ".txt", ".markdown":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return files, nil
}

// load reads the content of a single file or URL.
func (l *Loader) load(ctx context.Context, src string) (string, error) {
	if isURL(src) {
		return l.fetch(ctx, src)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}
	return string(data), nil
}

// fetch retrieves the raw text content of a URL.
func (l *Loader) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", l.cfg.UserAgent)
	req.Header.Set("Accept", "text/plain, text/html, text/markdown")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}

	return string(body), nil
}

// chunk splits text into overlapping chunks of cfg.ChunkSize characters.
func (l *Loader) chunk(text string) []string {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return nil
	}

	var chunks []string
	size := l.cfg.ChunkSize
	overlap := l.cfg.ChunkOverlap

	for start := 0; start < len(text); start += size - overlap {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
	}

	return chunks
}

// chunkID generates a deterministic ID for a chunk based on its source and
// index, so re-ingesting a source replaces its rows instead of duplicating
// them.
func chunkID(source string, index int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", source, index)))
	return fmt.Sprintf("%x", h[:16])
}

// isURL reports whether src looks like an HTTP(S) URL.
func isURL(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}
