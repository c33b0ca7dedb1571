package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.helix.chat/internal/models"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	entry := &models.MemoryEntry{
		ID:             "sub-1",
		ConversationID: "conv-1",
		UserID:         "user-1",
		Summary:        "fixed the flaky login test",
		Keywords:       []string{"login", "testing"},
		Actions:        []string{"patched retry logic"},
		Artifacts:      []string{"auth/login_test.go"},
		CreatedAt:      time.Now().UTC().Truncate(time.Millisecond),
		MergedAt:       time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.Upsert(ctx, entry))

	got, err := store.Get(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, entry.Summary, got.Summary)
	assert.Equal(t, entry.Keywords, got.Keywords)
	assert.Equal(t, entry.Actions, got.Actions)
	assert.Equal(t, entry.Artifacts, got.Artifacts)
	assert.Equal(t, entry.UserID, got.UserID)
}

func TestSQLiteUpsertOverwrites(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := &models.MemoryEntry{ID: "sub-1", ConversationID: "conv-1", UserID: "user-1", Summary: "v1", CreatedAt: time.Now(), MergedAt: time.Now()}
	require.NoError(t, store.Upsert(ctx, first))

	second := *first
	second.Summary = "v2"
	require.NoError(t, store.Upsert(ctx, &second))

	got, err := store.Get(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Summary)

	entries, err := store.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSQLiteGetMissing(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Get(context.Background(), "nope")
	assert.True(t, models.IsNotFound(err))
}

func TestSQLiteDeleteMissingIsNoop(t *testing.T) {
	store := openTestStore(t)
	assert.NoError(t, store.Delete(context.Background(), "nope"))
}

func TestSQLiteListByUserNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"sub-a", "sub-b", "sub-c"} {
		require.NoError(t, store.Upsert(ctx, &models.MemoryEntry{
			ID:             id,
			ConversationID: "conv-1",
			UserID:         "user-1",
			Summary:        id,
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
			MergedAt:       base,
		}))
	}
	require.NoError(t, store.Upsert(ctx, &models.MemoryEntry{
		ID: "sub-other", ConversationID: "conv-2", UserID: "user-2",
		Summary: "other user", CreatedAt: base, MergedAt: base,
	}))

	entries, err := store.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "sub-c", entries[0].ID)
	assert.Equal(t, "sub-a", entries[2].ID)
}
