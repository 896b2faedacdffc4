// Package sqlite provides the durable index store. SQLite holds the
// corpus of record; queries are served from an in-memory snapshot core
// rebuilt from the database at startup.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/mortar-ai/mortar/internal/adapters/driven/index/memory"
	"github.com/mortar-ai/mortar/internal/adapters/driven/index/sqlite/migrations"
	"github.com/mortar-ai/mortar/internal/core/domain"
	"github.com/mortar-ai/mortar/internal/core/ports/driven"
	"github.com/mortar-ai/mortar/internal/logger"
)

// Ensure Store implements the interface.
var _ driven.IndexStore = (*Store)(nil)

// Meta keys in the index_meta table.
const (
	metaEmbeddingModel  = "embedding_model"
	metaSnapshotVersion = "snapshot_version"
)

// Store is a SQLite-backed IndexStore. Every upsert is committed to the
// database first and published to the in-memory snapshot second, so a
// restart always recovers the last committed snapshot and readers never
// see a document the database does not hold.
type Store struct {
	db       *sql.DB
	path     string
	embedder driven.EmbeddingService
	inner    *memory.Store

	// writeMu serialises upserts across the DB transaction and the
	// snapshot publish.
	writeMu sync.Mutex
	closed  atomic.Bool
}

// NewStore opens (or creates) the corpus database under dataDir and
// rebuilds the query snapshot from it. Fails with
// domain.ErrEmbeddingModelMismatch when the persisted corpus was embedded
// with a different model than the given embedder uses.
func NewStore(dataDir string, embedder driven.EmbeddingService) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".mortar", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "corpus.db")

	// WAL mode for concurrent readers during ingestion
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:       db,
		path:     dbPath,
		embedder: embedder,
		inner:    memory.NewStore(embedder),
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Upsert embeds the chunks, commits document and chunks to SQLite in one
// transaction, and then publishes the new snapshot.
func (s *Store) Upsert(ctx context.Context, doc domain.Document, chunks []domain.Chunk) (string, error) {
	if s.closed.Load() {
		return "", domain.ErrIndexUnavailable
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	var vectors [][]float32
	if len(texts) > 0 {
		var err error
		vectors, err = s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return "", &domain.EmbeddingError{Model: s.embedder.ModelName(), Err: err}
		}
	}

	embedded := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		c.Embedding = vectors[i]
		embedded[i] = c
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	version := uuid.NewString()
	if err := s.persist(ctx, doc, embedded, version); err != nil {
		return "", fmt.Errorf("persisting document %s: %w", doc.ID, err)
	}

	if _, err := s.inner.Apply(doc, embedded, version); err != nil {
		return "", err
	}

	logger.Info("Index: committed %s (%d chunks), snapshot %s", doc.ID, len(embedded), version)
	return version, nil
}

// Snapshot returns the current in-memory generation.
func (s *Store) Snapshot() (driven.IndexSnapshot, error) {
	if s.closed.Load() {
		return nil, domain.ErrIndexUnavailable
	}
	return s.inner.Snapshot()
}

// Close closes the database and marks the store unavailable.
func (s *Store) Close() error {
	s.closed.Store(true)
	if err := s.inner.Close(); err != nil {
		return err
	}
	return s.db.Close()
}

// persist writes the document, its chunks and the new version token in a
// single transaction, deleting any superseded chunks of the same document.
func (s *Store) persist(ctx context.Context, doc domain.Document, chunks []domain.Chunk, version string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", doc.ID); err != nil {
		return fmt.Errorf("retiring superseded document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (id, source_name, url, title, jurisdiction, published_date, ingested_date, raw_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.SourceName, doc.URL, doc.Title, doc.Jurisdiction,
		nullTime(doc.PublishedDate), doc.IngestedDate.UTC(), doc.RawText); err != nil {
		return fmt.Errorf("saving document: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, ordinal, text, span_start, span_end, token_count, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.DocumentID, chunk.Ordinal,
			chunk.Text, chunk.Span.Start, chunk.Span.End, chunk.TokenCount,
			float32SliceToBytes(chunk.Embedding)); err != nil {
			return fmt.Errorf("saving chunk %s: %w", chunk.ID, err)
		}
	}

	for key, value := range map[string]string{
		metaEmbeddingModel:  s.embedder.ModelName(),
		metaSnapshotVersion: version,
	} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO index_meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, value); err != nil {
			return fmt.Errorf("saving meta %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// load rebuilds the in-memory snapshot from the database.
func (s *Store) load() error {
	model, err := s.meta(metaEmbeddingModel)
	if err != nil {
		return err
	}
	version, err := s.meta(metaSnapshotVersion)
	if err != nil {
		return err
	}
	if version == "" {
		// Fresh database: nothing to restore.
		return nil
	}

	rows, err := s.db.Query(`
		SELECT id, source_name, url, title, jurisdiction, published_date, ingested_date, raw_text
		FROM documents
	`)
	if err != nil {
		return fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document //nolint:prealloc // size unknown from query
	for rows.Next() {
		var doc domain.Document
		var url, title, jurisdiction sql.NullString
		var published sql.NullTime
		if err := rows.Scan(&doc.ID, &doc.SourceName, &url, &title, &jurisdiction,
			&published, &doc.IngestedDate, &doc.RawText); err != nil {
			return fmt.Errorf("scanning document: %w", err)
		}
		doc.URL = url.String
		doc.Title = title.String
		doc.Jurisdiction = jurisdiction.String
		if published.Valid {
			doc.PublishedDate = published.Time
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating documents: %w", err)
	}

	chunksByDoc := make(map[string][]domain.Chunk)
	chunkRows, err := s.db.Query(`
		SELECT id, document_id, ordinal, text, span_start, span_end, token_count, embedding
		FROM chunks ORDER BY document_id, ordinal
	`)
	if err != nil {
		return fmt.Errorf("querying chunks: %w", err)
	}
	defer chunkRows.Close()

	for chunkRows.Next() {
		var chunk domain.Chunk
		var blob []byte
		if err := chunkRows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Ordinal, &chunk.Text,
			&chunk.Span.Start, &chunk.Span.End, &chunk.TokenCount, &blob); err != nil {
			return fmt.Errorf("scanning chunk: %w", err)
		}
		chunk.Embedding = bytesToFloat32Slice(blob)
		chunksByDoc[chunk.DocumentID] = append(chunksByDoc[chunk.DocumentID], chunk)
	}
	if err := chunkRows.Err(); err != nil {
		return fmt.Errorf("iterating chunks: %w", err)
	}

	if err := s.inner.Restore(model, version, docs, chunksByDoc); err != nil {
		return err
	}

	logger.Debug("Index: restored %d documents from %s (snapshot %s)", len(docs), s.path, version)
	return nil
}

// meta reads a single index_meta value; empty string when absent.
func (s *Store) meta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM index_meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading meta %s: %w", key, err)
	}
	return value, nil
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}
		if version <= currentVersion {
			continue // Already applied
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// float32SliceToBytes serialises an embedding for BLOB storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	bytes := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(bytes[i*4:], math.Float32bits(f))
	}
	return bytes
}

// bytesToFloat32Slice deserialises an embedding BLOB.
func bytesToFloat32Slice(bytes []byte) []float32 {
	if len(bytes) == 0 {
		return nil
	}
	floats := make([]float32, len(bytes)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(bytes[i*4:]))
	}
	return floats
}
