// Package store provides the SQLite-backed document store for docchat. It
// holds the chunked document corpus alongside each chunk's embedding vector
// (serialized as a JSON float array in a nullable text column), plus the
// per-chat conversation history. Rows are inserted by the ingestion command
// with a NULL embedding and filled in later by the indexing pipeline.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/docchat-go/internal/embedder"
	"github.com/54b3r/docchat-go/internal/rag"
)

// Default table and column names. The embed endpoint accepts overrides per
// batch so alternative corpora can live in the same database.
const (
	DefaultTable           = "documents"
	DefaultContentColumn   = "content"
	DefaultEmbeddingColumn = "embedding"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser is a message sent by the human operator.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by the LLM.
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	// Role is the author of the message.
	Role Role
	// Content is the text of the message.
	Content string
	// CreatedAt is when the message was persisted.
	CreatedAt time.Time
}

// Document is a chunk of source text held in the corpus.
type Document struct {
	// ID uniquely identifies the chunk.
	ID string
	// Content is the chunk text.
	Content string
	// Source names the file or URL the chunk was extracted from.
	Source string
	// CreatedAt is when the row was inserted.
	CreatedAt time.Time
}

// PendingRow is a corpus row whose embedding column is still NULL.
type PendingRow struct {
	// ID is the row's primary key.
	ID string
	// Content is the text to embed. May be empty, in which case the
	// indexing pipeline skips the row.
	Content string
}

// validIdent restricts dynamic table and column names to identifier
// characters. Table and column names cannot be bound as SQL parameters, so
// anything passing through string interpolation is validated first.
var validIdent = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// checkIdent rejects dynamic identifiers that could alter query structure.
func checkIdent(names ...string) error {
	for _, n := range names {
		if !validIdent.MatchString(n) {
			return fmt.Errorf("store: invalid identifier %q", n)
		}
	}
	return nil
}

// DocumentStore is the SQLite-backed corpus and conversation store. It
// implements rag.Searcher by scanning the embedded corpus in process, which
// is the retrieval path when no external vector index is configured.
type DocumentStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
	// embeddingModel filters Match to vectors produced by this model.
	// Vectors from different models occupy unrelated spaces and must
	// never be compared.
	embeddingModel string
}

// DefaultDBPath returns the default path for the docchat database. It
// resolves to ~/.docchat/docchat.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".docchat")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "docchat.db"), nil
}

// Open opens (or creates) a DocumentStore at the given path and runs the
// schema migration. embeddingModel names the model whose vectors Match
// considers. Use ":memory:" for an in-memory database in tests.
func Open(path, embeddingModel string) (*DocumentStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &DocumentStore{db: db, embeddingModel: embeddingModel}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *DocumentStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
    id               TEXT    PRIMARY KEY,
    content          TEXT    NOT NULL,
    embedding        TEXT,             -- JSON float array, NULL until indexed
    embedding_model  TEXT,             -- model that produced the vector
    source           TEXT    NOT NULL DEFAULT '',
    created_at       INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_documents_embedding_model
    ON documents (embedding_model);

CREATE TABLE IF NOT EXISTS conversations (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    chat_id      TEXT    NOT NULL,
    role         TEXT    NOT NULL CHECK(role IN ('user','assistant')),
    content      TEXT    NOT NULL,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_conversations_chat_created
    ON conversations (chat_id, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// InsertDocuments inserts corpus rows with a NULL embedding column, ready for
// the indexing pipeline to pick up. Inserting an existing ID replaces the row
// and clears its embedding so re-ingested content is re-indexed.
func (s *DocumentStore) InsertDocuments(ctx context.Context, docs []Document) error {
	const q = `INSERT OR REPLACE INTO documents (id, content, embedding, embedding_model, source, created_at)
VALUES (?, ?, NULL, NULL, ?, ?)`
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: insert documents: %w", err)
	}
	now := time.Now().Unix()
	for _, d := range docs {
		if _, err := tx.ExecContext(ctx, q, d.ID, d.Content, d.Source, now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("store: insert document %s: %w", d.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: insert documents commit: %w", err)
	}
	return nil
}

// PendingRows returns the rows among ids whose embedding column is NULL,
// reading content from contentCol. Rows that already carry an embedding are
// excluded, making re-delivered indexing batches idempotent.
func (s *DocumentStore) PendingRows(ctx context.Context, table, contentCol, embeddingCol string, ids []string) ([]PendingRow, error) {
	if err := checkIdent(table, contentCol, embeddingCol); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	q := fmt.Sprintf(`SELECT id, %s FROM %s WHERE id IN (%s) AND %s IS NULL`,
		contentCol, table, placeholders, embeddingCol)

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: pending rows: %w", err)
	}
	defer rows.Close()

	var pending []PendingRow
	for rows.Next() {
		var r PendingRow
		if err := rows.Scan(&r.ID, &r.Content); err != nil {
			return nil, fmt.Errorf("store: pending rows scan: %w", err)
		}
		pending = append(pending, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: pending rows: %w", err)
	}
	return pending, nil
}

// UpdateEmbedding writes the serialized embedding and the producing model name
// for a single row.
func (s *DocumentStore) UpdateEmbedding(ctx context.Context, table, embeddingCol, id, serialized, model string) error {
	if err := checkIdent(table, embeddingCol); err != nil {
		return err
	}
	q := fmt.Sprintf(`UPDATE %s SET %s = ?, embedding_model = ? WHERE id = ?`, table, embeddingCol)
	if _, err := s.db.ExecContext(ctx, q, serialized, model, id); err != nil {
		return fmt.Errorf("store: update embedding %s: %w", id, err)
	}
	return nil
}

// Match returns the documents whose embedding has cosine similarity of at
// least threshold with the query embedding, best match first, capped at
// limit. All stored vectors are unit-normalized at indexing time, so the dot
// product is the cosine similarity. Only vectors produced by the store's
// configured embedding model participate.
func (s *DocumentStore) Match(ctx context.Context, embedding []float32, threshold float32, limit int) ([]rag.Document, error) {
	const q = `
SELECT id, content, embedding, source
FROM   documents
WHERE  embedding IS NOT NULL AND embedding_model = ?`

	rows, err := s.db.QueryContext(ctx, q, s.embeddingModel)
	if err != nil {
		return nil, fmt.Errorf("store: match: %w", err)
	}
	defer rows.Close()

	var matches []rag.Document
	for rows.Next() {
		var d rag.Document
		var serialized string
		if err := rows.Scan(&d.ID, &d.Content, &serialized, &d.Source); err != nil {
			return nil, fmt.Errorf("store: match scan: %w", err)
		}
		vec, err := embedder.Unmarshal(serialized)
		if err != nil {
			return nil, fmt.Errorf("store: match row %s: %w", d.ID, err)
		}
		score, err := embedder.Dot(embedding, vec)
		if err != nil {
			// Dimension mismatch — vector from an incompatible model
			// slipped past the model filter. Skip rather than fail the query.
			continue
		}
		if score < threshold {
			continue
		}
		d.Score = score
		matches = append(matches, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: match rows: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// AppendMessage persists a single conversation turn for the given chat.
func (s *DocumentStore) AppendMessage(ctx context.Context, chatID string, role Role, content string) error {
	const q = `INSERT INTO conversations (chat_id, role, content, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, chatID, string(role), content, time.Now().Unix()); err != nil {
		return fmt.Errorf("store: append message: %w", err)
	}
	return nil
}

// RecentMessages returns the most recent n messages for the chat, ordered
// oldest-first. Uses a subquery to select the tail then re-order for injection.
func (s *DocumentStore) RecentMessages(ctx context.Context, chatID string, n int) ([]Message, error) {
	const q = `
SELECT role, content, created_at FROM (
    SELECT id, role, content, created_at
    FROM   conversations
    WHERE  chat_id = ?
    ORDER  BY created_at DESC, id DESC
    LIMIT  ?
) ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, chatID, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var ts int64
		var role string
		if err := rows.Scan(&role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("store: recent messages scan: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAt = time.Unix(ts, 0)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent messages rows: %w", err)
	}
	return msgs, nil
}

// Ping verifies the database connection, for readiness probes.
func (s *DocumentStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *DocumentStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
