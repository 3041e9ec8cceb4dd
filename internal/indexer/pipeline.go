// Package indexer implements the embedding backfill pipeline. A batch names a
// set of corpus row IDs plus the table and columns to read and write; the
// pipeline embeds each row whose embedding column is still NULL, unit-
// normalizes the vector, and writes it back. Rows already embedded are left
// untouched, so re-delivering a batch is a no-op for them.
package indexer

import (
	"context"
	"fmt"

	"github.com/54b3r/docchat-go/internal/embedder"
	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/rag"
	"github.com/54b3r/docchat-go/internal/store"
)

// Batch identifies the rows to index and where their text and vectors live.
type Batch struct {
	// IDs are the primary keys of the rows to process.
	IDs []string `json:"ids"`
	// Table is the corpus table name.
	Table string `json:"table"`
	// ContentColumn is the column holding the text to embed.
	ContentColumn string `json:"contentColumn"`
	// EmbeddingColumn is the nullable column the vector is written to.
	EmbeddingColumn string `json:"embeddingColumn"`
}

// Result summarizes a processed batch.
type Result struct {
	// Indexed is the number of rows whose embedding was written.
	Indexed int `json:"indexed"`
	// Skipped is the number of rows with no content to embed.
	Skipped int `json:"skipped"`
	// Failed is the number of rows whose embedding or write failed.
	Failed int `json:"failed"`
}

// RowSource is the store surface the pipeline reads and writes. Satisfied by
// *store.DocumentStore.
type RowSource interface {
	// PendingRows returns the rows among ids whose embedding column is NULL.
	PendingRows(ctx context.Context, table, contentCol, embeddingCol string, ids []string) ([]store.PendingRow, error)
	// UpdateEmbedding writes the serialized vector and model name for one row.
	UpdateEmbedding(ctx context.Context, table, embeddingCol, id, serialized, model string) error
}

// Pipeline embeds pending corpus rows and persists their vectors.
type Pipeline struct {
	// Rows is the backing document store.
	Rows RowSource
	// Embedder computes embedding vectors for row content.
	Embedder rag.Embedder
	// Model names the embedding model, recorded alongside each vector.
	Model string
	// Mirror, when non-nil, additionally receives each indexed vector so an
	// external vector index stays in sync with the store. Mirror failures
	// are logged but do not fail the row; the store remains authoritative.
	Mirror rag.VectorIndex
}

// Process embeds every pending row in the batch. Failures are isolated per
// row: an empty or failing row is counted and logged, and its siblings are
// still processed. Only batch-level failures (listing pending rows) return an
// error.
func (p *Pipeline) Process(ctx context.Context, b Batch) (Result, error) {
	log := logging.FromContext(ctx)

	if b.Table == "" {
		b.Table = store.DefaultTable
	}
	if b.ContentColumn == "" {
		b.ContentColumn = store.DefaultContentColumn
	}
	if b.EmbeddingColumn == "" {
		b.EmbeddingColumn = store.DefaultEmbeddingColumn
	}

	pending, err := p.Rows.PendingRows(ctx, b.Table, b.ContentColumn, b.EmbeddingColumn, b.IDs)
	if err != nil {
		return Result{}, fmt.Errorf("indexer: list pending rows: %w", err)
	}

	var res Result
	var mirrorDocs []rag.Document
	var mirrorVecs [][]float32
	for _, row := range pending {
		if row.Content == "" {
			log.Warn("no content available in row, skipping", "id", row.ID, "table", b.Table)
			res.Skipped++
			continue
		}

		vecs, err := p.Embedder.Embed(ctx, []string{row.Content})
		if err != nil || len(vecs) != 1 {
			log.Error("failed to embed row", "id", row.ID, "error", err)
			res.Failed++
			continue
		}
		vec := embedder.Normalize(vecs[0])

		serialized, err := embedder.Marshal(vec)
		if err != nil {
			log.Error("failed to serialize embedding", "id", row.ID, "error", err)
			res.Failed++
			continue
		}
		if err := p.Rows.UpdateEmbedding(ctx, b.Table, b.EmbeddingColumn, row.ID, serialized, p.Model); err != nil {
			log.Error("failed to save embedding", "id", row.ID, "error", err)
			res.Failed++
			continue
		}

		log.Info("generated embedding", "id", row.ID, "table", b.Table)
		res.Indexed++
		if p.Mirror != nil {
			mirrorDocs = append(mirrorDocs, rag.Document{ID: row.ID, Content: row.Content})
			mirrorVecs = append(mirrorVecs, vec)
		}
	}

	if p.Mirror != nil && len(mirrorDocs) > 0 {
		if err := p.Mirror.Upsert(ctx, mirrorDocs, mirrorVecs); err != nil {
			log.Warn("vector index mirror upsert failed", "count", len(mirrorDocs), "error", err)
		}
	}
	return res, nil
}
