package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"dev.helix.chat/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS memory_entries (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	summary         TEXT NOT NULL,
	keywords        TEXT NOT NULL DEFAULT '[]',
	actions         TEXT NOT NULL DEFAULT '[]',
	artifacts       TEXT NOT NULL DEFAULT '[]',
	created_at      TIMESTAMP NOT NULL,
	merged_at       TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memory_entries_user ON memory_entries(user_id, created_at DESC);
`

// SQLiteStore is a durable lexical-only Store. It deliberately reports
// no vector capability, which routes searches through the fuzzy
// lexical path.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) a sqlite-backed store at path.
// Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Upsert overwrites the entry with the same id.
func (s *SQLiteStore) Upsert(ctx context.Context, entry *models.MemoryEntry) error {
	keywords, err := json.Marshal(entry.Keywords)
	if err != nil {
		return fmt.Errorf("failed to encode keywords: %w", err)
	}
	actions, err := json.Marshal(entry.Actions)
	if err != nil {
		return fmt.Errorf("failed to encode actions: %w", err)
	}
	artifacts, err := json.Marshal(entry.Artifacts)
	if err != nil {
		return fmt.Errorf("failed to encode artifacts: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memory_entries (id, conversation_id, user_id, summary, keywords, actions, artifacts, created_at, merged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			conversation_id = excluded.conversation_id,
			user_id         = excluded.user_id,
			summary         = excluded.summary,
			keywords        = excluded.keywords,
			actions         = excluded.actions,
			artifacts       = excluded.artifacts,
			created_at      = excluded.created_at,
			merged_at       = excluded.merged_at`,
		entry.ID, entry.ConversationID, entry.UserID, entry.Summary,
		string(keywords), string(actions), string(artifacts),
		entry.CreatedAt.UTC(), entry.MergedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert memory entry: %w", err)
	}
	return nil
}

// Get looks up an entry by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.MemoryEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, user_id, summary, keywords, actions, artifacts, created_at, merged_at
		FROM memory_entries WHERE id = ?`, id)

	entry, err := scanEntry(row.Scan)
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{Kind: "memory entry", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load memory entry: %w", err)
	}
	return entry, nil
}

// Delete removes an entry by id. Deleting a missing entry is a no-op.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memory_entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete memory entry: %w", err)
	}
	return nil
}

// ListByUser returns all entries for a user, newest first.
func (s *SQLiteStore) ListByUser(ctx context.Context, userID string) ([]*models.MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, user_id, summary, keywords, actions, artifacts, created_at, merged_at
		FROM memory_entries WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memory entries: %w", err)
	}
	defer rows.Close()

	var out []*models.MemoryEntry
	for rows.Next() {
		entry, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// VectorCapable reports that this store has no vector support.
func (s *SQLiteStore) VectorCapable() bool { return false }

// SearchVector is never called because VectorCapable is false.
func (s *SQLiteStore) SearchVector(ctx context.Context, userID string, embedding []float32, topK int, threshold float64, excludeConversationID string) ([]*SearchResult, error) {
	return nil, fmt.Errorf("sqlite store has no vector support")
}

func scanEntry(scan func(dest ...any) error) (*models.MemoryEntry, error) {
	var entry models.MemoryEntry
	var keywords, actions, artifacts string
	var createdAt, mergedAt time.Time

	if err := scan(&entry.ID, &entry.ConversationID, &entry.UserID, &entry.Summary,
		&keywords, &actions, &artifacts, &createdAt, &mergedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(keywords), &entry.Keywords); err != nil {
		return nil, fmt.Errorf("corrupt keywords column: %w", err)
	}
	if err := json.Unmarshal([]byte(actions), &entry.Actions); err != nil {
		return nil, fmt.Errorf("corrupt actions column: %w", err)
	}
	if err := json.Unmarshal([]byte(artifacts), &entry.Artifacts); err != nil {
		return nil, fmt.Errorf("corrupt artifacts column: %w", err)
	}
	entry.CreatedAt = createdAt
	entry.MergedAt = mergedAt
	return &entry, nil
}
