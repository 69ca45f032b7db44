package memory

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aurora_back/database"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.Open("sqlite", dsn)
	require.NoError(t, err)

	store := NewStore(db)
	require.NoError(t, store.Migrate())
	return store
}

func addMemory(t *testing.T, store *Store, memoryType, content string) *UserMemory {
	t.Helper()
	memory, err := store.Add(context.Background(), AddParams{
		AccountID:  "acct-1",
		MemoryType: memoryType,
		Content:    content,
	})
	require.NoError(t, err)
	return memory
}

func TestAddValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, AddParams{AccountID: "acct-1", MemoryType: "opinion", Content: "x"})
	assert.ErrorIs(t, err, ErrInvalidType)

	_, err = store.Add(ctx, AddParams{AccountID: "acct-1", MemoryType: TypeFact, Content: "  "})
	assert.Error(t, err)

	// Out-of-range confidence falls back to full confidence.
	memory, err := store.Add(ctx, AddParams{
		AccountID: "acct-1", MemoryType: TypeFact, Content: "uses vim", Confidence: 1.7,
	})
	require.NoError(t, err)
	assert.Equal(t, float64(1), memory.Confidence)

	memory, err = store.Add(ctx, AddParams{
		AccountID: "acct-1", MemoryType: TypeFact, Content: "likes go", Confidence: 0.8,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.8, memory.Confidence)
}

func TestListFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	addMemory(t, store, TypeFact, "works at Initech")
	addMemory(t, store, TypePreference, "prefers dark mode")
	hidden := addMemory(t, store, TypeFact, "old address")
	require.NoError(t, store.Deactivate(ctx, "acct-1", hidden.MemoryID))

	all, err := store.List(ctx, "acct-1", "", "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	facts, err := store.List(ctx, "acct-1", TypeFact, "", 0)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "works at Initech", facts[0].Content)

	matched, err := store.List(ctx, "acct-1", "", "DARK", 0)
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, TypePreference, matched[0].MemoryType)
}

func TestDeactivateAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	memory := addMemory(t, store, TypeFact, "temporary")

	assert.ErrorIs(t, store.Deactivate(ctx, "other-account", memory.MemoryID), ErrNotFound)
	require.NoError(t, store.Deactivate(ctx, "acct-1", memory.MemoryID))

	require.NoError(t, store.Delete(ctx, "acct-1", memory.MemoryID))
	assert.ErrorIs(t, store.Delete(ctx, "acct-1", memory.MemoryID), ErrNotFound)
}

func TestGetStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	addMemory(t, store, TypeFact, "fact one")
	addMemory(t, store, TypeFact, "fact two")
	addMemory(t, store, TypePreference, "tabs over spaces")
	addMemory(t, store, TypeContext, "working on aurora")
	addMemory(t, store, TypeConversationSummary, "discussed deployment")
	addMemory(t, store, TypeSkill, "fluent in sql")

	stats, err := store.GetStats(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), stats.Total)
	assert.Equal(t, int64(2), stats.Facts)
	assert.Equal(t, int64(1), stats.Preferences)
	assert.Equal(t, int64(1), stats.Context)
	assert.Equal(t, int64(1), stats.ConversationSummaries)
}

func TestClaimIsExclusive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item, err := store.Enqueue(ctx, "acct-1", "thread-1", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, QueueStatusPending, item.Status)

	claimed, err := store.Claim(ctx, item.QueueID)
	require.NoError(t, err)
	assert.Equal(t, QueueStatusProcessing, claimed.Status)
	assert.NotNil(t, claimed.ClaimedAt)

	_, err = store.Claim(ctx, item.QueueID)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	_, err = store.Claim(ctx, "missing")
	assert.ErrorIs(t, err, ErrQueueNotFound)
}

func TestFinishRequiresClaim(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item, err := store.Enqueue(ctx, "acct-1", "thread-1", nil, 0)
	require.NoError(t, err)

	// Completing an unclaimed item is refused.
	assert.ErrorIs(t, store.MarkCompleted(ctx, item.QueueID), ErrQueueNotFound)

	_, err = store.Claim(ctx, item.QueueID)
	require.NoError(t, err)
	require.NoError(t, store.MarkCompleted(ctx, item.QueueID))

	// Terminal items cannot be finished again.
	assert.ErrorIs(t, store.MarkFailed(ctx, item.QueueID, "late"), ErrQueueNotFound)
}

func TestMarkFailedRecordsReason(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item, err := store.Enqueue(ctx, "acct-1", "thread-1", nil, 0)
	require.NoError(t, err)
	_, err = store.Claim(ctx, item.QueueID)
	require.NoError(t, err)
	require.NoError(t, store.MarkFailed(ctx, item.QueueID, "extractor timeout"))

	queue, err := store.ListQueue(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, QueueStatusFailed, queue[0].Status)
	require.NotNil(t, queue[0].Error)
	assert.Equal(t, "extractor timeout", *queue[0].Error)
}

func TestNextPendingOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	low, err := store.Enqueue(ctx, "acct-1", "thread-low", nil, 0)
	require.NoError(t, err)
	high, err := store.Enqueue(ctx, "acct-1", "thread-high", nil, 5)
	require.NoError(t, err)

	claimed, err := store.Enqueue(ctx, "acct-1", "thread-busy", nil, 9)
	require.NoError(t, err)
	_, err = store.Claim(ctx, claimed.QueueID)
	require.NoError(t, err)

	pending, err := store.NextPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, high.QueueID, pending[0].QueueID)
	assert.Equal(t, low.QueueID, pending[1].QueueID)
}

func TestSummaryExtractor(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item, err := store.Enqueue(ctx, "acct-1", "thread-1", nil, 0)
	require.NoError(t, err)

	require.NoError(t, SummaryExtractor{}.Extract(ctx, store, item))

	memories, err := store.List(ctx, "acct-1", TypeConversationSummary, "", 0)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, 0.5, memories[0].Confidence)
	require.NotNil(t, memories[0].SourceThreadID)
	assert.Equal(t, "thread-1", *memories[0].SourceThreadID)
}
