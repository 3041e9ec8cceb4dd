// Package rag defines the interfaces for the retrieval side of docchat:
// embedding generation and similarity search over document sections.
// Concrete implementations (the SQLite document store, Qdrant) satisfy these
// interfaces so the orchestrator never depends on a specific backend.
package rag

import (
	"context"
)

// Default retrieval parameters. A document must score at least
// DefaultThreshold cosine similarity against the query to be considered
// relevant, and at most DefaultLimit documents are injected per chat turn.
const (
	DefaultThreshold float32 = 0.8
	DefaultLimit             = 5
)

// Document represents a unit of retrieved or stored knowledge.
type Document struct {
	// ID is the unique identifier for this document row.
	ID string

	// Content is the raw text content of the row.
	Content string

	// Source is the origin file path or URI of the document, if known.
	Source string

	// Score is the cosine similarity assigned during retrieval (0.0–1.0).
	// Zero value means the score was not computed.
	Score float32
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Searcher performs similarity search against stored document embeddings.
// The query embedding must be unit-length; similarity is then the plain dot
// product. Implementations must be safe to call from multiple goroutines.
type Searcher interface {
	// Match returns at most limit documents whose similarity to the query
	// embedding is at least threshold, ordered by descending similarity.
	Match(ctx context.Context, embedding []float32, threshold float32, limit int) ([]Document, error)
}

// VectorIndex is a Searcher that also accepts writes. The indexing pipeline
// mirrors embeddings into a VectorIndex when one is configured so that
// similarity search can be served by a dedicated engine.
type VectorIndex interface {
	Searcher

	// Upsert stores or updates a batch of documents with their pre-computed
	// embeddings. embeddings[i] is the vector for docs[i].
	Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the index.
	Close() error
}
