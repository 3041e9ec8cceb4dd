package store

import (
	"context"
	"testing"

	"github.com/54b3r/docchat-go/internal/embedder"
)

// openTestStore opens an in-memory DocumentStore for use in tests.
func openTestStore(t *testing.T) *DocumentStore {
	t.Helper()
	s, err := Open(":memory:", "test-model")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// indexDocument inserts a document and writes its unit-normalized embedding.
func indexDocument(t *testing.T, s *DocumentStore, id, content string, vec []float32) {
	t.Helper()
	ctx := context.Background()
	if err := s.InsertDocuments(ctx, []Document{{ID: id, Content: content, Source: "test.md"}}); err != nil {
		t.Fatalf("insert %s: %v", id, err)
	}
	serialized, err := embedder.Marshal(embedder.Normalize(vec))
	if err != nil {
		t.Fatalf("marshal %s: %v", id, err)
	}
	if err := s.UpdateEmbedding(ctx, DefaultTable, DefaultEmbeddingColumn, id, serialized, "test-model"); err != nil {
		t.Fatalf("update embedding %s: %v", id, err)
	}
}

func Test_Store_PendingRowsOnlyNullEmbeddings(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertDocuments(ctx, []Document{
		{ID: "a", Content: "alpha"},
		{ID: "b", Content: "beta"},
		{ID: "c", Content: "gamma"},
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.UpdateEmbedding(ctx, DefaultTable, DefaultEmbeddingColumn, "b", "[1]", "test-model"); err != nil {
		t.Fatalf("update embedding: %v", err)
	}

	pending, err := s.PendingRows(ctx, DefaultTable, DefaultContentColumn, DefaultEmbeddingColumn, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("pending rows: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("want 2 pending rows, got %d", len(pending))
	}
	for _, r := range pending {
		if r.ID == "b" {
			t.Errorf("row b already embedded, should not be pending")
		}
	}
}

func Test_Store_PendingRowsRejectsBadIdentifier(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	_, err := s.PendingRows(context.Background(), "documents; DROP TABLE documents", "content", "embedding", []string{"a"})
	if err == nil {
		t.Fatal("want error for invalid table identifier, got nil")
	}
}

func Test_Store_ReinsertClearsEmbedding(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	indexDocument(t, s, "a", "original", []float32{1, 0})

	// Re-ingesting the same ID replaces the row and clears the vector.
	if err := s.InsertDocuments(ctx, []Document{{ID: "a", Content: "updated"}}); err != nil {
		t.Fatalf("reinsert: %v", err)
	}
	pending, err := s.PendingRows(ctx, DefaultTable, DefaultContentColumn, DefaultEmbeddingColumn, []string{"a"})
	if err != nil {
		t.Fatalf("pending rows: %v", err)
	}
	if len(pending) != 1 || pending[0].Content != "updated" {
		t.Fatalf("want pending row with updated content, got %v", pending)
	}
}

func Test_Store_MatchThresholdAndOrdering(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	indexDocument(t, s, "exact", "exact match", []float32{1, 0, 0})
	indexDocument(t, s, "close", "close match", []float32{0.95, 0.3, 0})
	indexDocument(t, s, "far", "unrelated", []float32{0, 1, 0})

	query := embedder.Normalize([]float32{1, 0, 0})
	docs, err := s.Match(ctx, query, 0.8, 5)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("want 2 matches above threshold, got %d", len(docs))
	}
	if docs[0].ID != "exact" || docs[1].ID != "close" {
		t.Errorf("want [exact close] best-first, got [%s %s]", docs[0].ID, docs[1].ID)
	}
	if docs[0].Score < docs[1].Score {
		t.Errorf("scores not descending: %v then %v", docs[0].Score, docs[1].Score)
	}
}

func Test_Store_MatchLimit(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	for i, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		indexDocument(t, s, id, "doc "+id, []float32{1, float32(i) * 0.01, 0})
	}

	docs, err := s.Match(context.Background(), embedder.Normalize([]float32{1, 0, 0}), 0.8, 5)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(docs) != 5 {
		t.Errorf("want 5 matches (limit), got %d", len(docs))
	}
}

func Test_Store_MatchIgnoresOtherModels(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	indexDocument(t, s, "mine", "same model", []float32{1, 0})

	if err := s.InsertDocuments(ctx, []Document{{ID: "other", Content: "other model"}}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	serialized, _ := embedder.Marshal([]float32{1, 0})
	if err := s.UpdateEmbedding(ctx, DefaultTable, DefaultEmbeddingColumn, "other", serialized, "different-model"); err != nil {
		t.Fatalf("update embedding: %v", err)
	}

	docs, err := s.Match(ctx, []float32{1, 0}, 0.8, 5)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "mine" {
		t.Fatalf("want only same-model match, got %v", docs)
	}
}

func Test_Store_MatchExcludesUnindexedRows(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertDocuments(ctx, []Document{{ID: "raw", Content: "not yet indexed"}}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	docs, err := s.Match(ctx, []float32{1, 0}, 0.0, 5)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("want 0 matches, got %d", len(docs))
	}
}

func Test_Store_AppendAndRecentMessages(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AppendMessage(ctx, "chat-1", RoleUser, "hello"); err != nil {
		t.Fatalf("append user: %v", err)
	}
	if err := s.AppendMessage(ctx, "chat-1", RoleAssistant, "world"); err != nil {
		t.Fatalf("append assistant: %v", err)
	}

	msgs, err := s.RecentMessages(ctx, "chat-1", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("want 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "hello" {
		t.Errorf("msg[0]: want user/hello, got %s/%s", msgs[0].Role, msgs[0].Content)
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Content != "world" {
		t.Errorf("msg[1]: want assistant/world, got %s/%s", msgs[1].Role, msgs[1].Content)
	}
}

func Test_Store_ChatIsolation(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AppendMessage(ctx, "chat-x", RoleUser, "from x"); err != nil {
		t.Fatalf("append x: %v", err)
	}
	if err := s.AppendMessage(ctx, "chat-y", RoleUser, "from y"); err != nil {
		t.Fatalf("append y: %v", err)
	}

	msgsX, err := s.RecentMessages(ctx, "chat-x", 10)
	if err != nil {
		t.Fatalf("recent x: %v", err)
	}
	if len(msgsX) != 1 || msgsX[0].Content != "from x" {
		t.Errorf("chat isolation failed: got %v", msgsX)
	}
}
