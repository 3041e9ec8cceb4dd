package indexer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/54b3r/docchat-go/internal/rag"
	"github.com/54b3r/docchat-go/internal/store"
)

// fakeEmbedder returns a fixed vector per text, failing on texts recorded in
// failOn.
type fakeEmbedder struct {
	failOn map[string]bool
	calls  int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if f.failOn[t] {
			return nil, errors.New("embedding backend unavailable")
		}
		out[i] = []float32{1, float32(len(t))}
	}
	return out, nil
}

// fakeMirror records upserted documents.
type fakeMirror struct {
	rag.VectorIndex
	docs []rag.Document
	err  error
}

func (f *fakeMirror) Upsert(_ context.Context, docs []rag.Document, _ [][]float32) error {
	f.docs = append(f.docs, docs...)
	return f.err
}

func openTestStore(t *testing.T) *store.DocumentStore {
	t.Helper()
	s, err := store.Open(":memory:", "test-model")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insertDocs(t *testing.T, s *store.DocumentStore, docs ...store.Document) {
	t.Helper()
	if err := s.InsertDocuments(context.Background(), docs); err != nil {
		t.Fatalf("insert documents: %v", err)
	}
}

func Test_Pipeline_RowFailuresAreIsolated(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	insertDocs(t, s,
		store.Document{ID: "ok-1", Content: "first chunk"},
		store.Document{ID: "empty", Content: ""},
		store.Document{ID: "bad", Content: "poison"},
		store.Document{ID: "ok-2", Content: "second chunk"},
		store.Document{ID: "ok-3", Content: "third chunk"},
	)

	p := &Pipeline{
		Rows:     s,
		Embedder: &fakeEmbedder{failOn: map[string]bool{"poison": true}},
		Model:    "test-model",
	}
	res, err := p.Process(ctx, Batch{IDs: []string{"ok-1", "empty", "bad", "ok-2", "ok-3"}})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Indexed != 3 || res.Skipped != 1 || res.Failed != 1 {
		t.Errorf("want 3 indexed / 1 skipped / 1 failed, got %+v", res)
	}

	// The successful siblings are now searchable.
	docs, err := s.Match(ctx, []float32{1, 0}, 0.0, 10)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(docs) != 3 {
		t.Errorf("want 3 indexed rows searchable, got %d", len(docs))
	}
}

func Test_Pipeline_Idempotent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	insertDocs(t, s, store.Document{ID: "a", Content: "hello"})

	emb := &fakeEmbedder{}
	p := &Pipeline{Rows: s, Embedder: emb, Model: "test-model"}

	batch := Batch{IDs: []string{"a"}}
	if _, err := p.Process(ctx, batch); err != nil {
		t.Fatalf("first process: %v", err)
	}
	res, err := p.Process(ctx, batch)
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if res.Indexed != 0 {
		t.Errorf("second delivery re-indexed %d rows, want 0", res.Indexed)
	}
	if emb.calls != 1 {
		t.Errorf("embedder called %d times, want 1", emb.calls)
	}
}

func Test_Pipeline_DefaultsTableAndColumns(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	insertDocs(t, s, store.Document{ID: "a", Content: "hello"})

	p := &Pipeline{Rows: s, Embedder: &fakeEmbedder{}, Model: "test-model"}
	res, err := p.Process(context.Background(), Batch{IDs: []string{"a"}})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Indexed != 1 {
		t.Errorf("want 1 indexed with defaulted table/columns, got %+v", res)
	}
}

func Test_Pipeline_MirrorReceivesIndexedRows(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	insertDocs(t, s,
		store.Document{ID: "a", Content: "hello"},
		store.Document{ID: "empty", Content: ""},
	)

	mirror := &fakeMirror{}
	p := &Pipeline{Rows: s, Embedder: &fakeEmbedder{}, Model: "test-model", Mirror: mirror}
	if _, err := p.Process(context.Background(), Batch{IDs: []string{"a", "empty"}}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(mirror.docs) != 1 || mirror.docs[0].ID != "a" {
		t.Errorf("mirror received %v, want only row a", mirror.docs)
	}
}

func Test_Pipeline_MirrorFailureDoesNotFailBatch(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	insertDocs(t, s, store.Document{ID: "a", Content: "hello"})

	mirror := &fakeMirror{err: fmt.Errorf("qdrant unreachable")}
	p := &Pipeline{Rows: s, Embedder: &fakeEmbedder{}, Model: "test-model", Mirror: mirror}
	res, err := p.Process(context.Background(), Batch{IDs: []string{"a"}})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Indexed != 1 {
		t.Errorf("want 1 indexed despite mirror failure, got %+v", res)
	}
}
