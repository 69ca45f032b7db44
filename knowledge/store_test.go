package knowledge

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

func createEntry(t *testing.T, store *Store, folderID, filename, content string) *Entry {
	t.Helper()
	entry, err := store.CreateEntry(context.Background(), EntryParams{
		FolderID:  folderID,
		AccountID: "acct-1",
		Filename:  filename,
		Content:   content,
	})
	require.NoError(t, err)
	return entry
}

func TestFolderLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	folder, err := store.CreateFolder(ctx, "acct-1", "Docs", nil)
	require.NoError(t, err)

	_, err = store.CreateFolder(ctx, "acct-1", "   ", nil)
	assert.Error(t, err)

	createEntry(t, store, folder.FolderID, "readme.md", "hello")

	require.NoError(t, store.DeleteFolder(ctx, folder.FolderID))
	_, err = store.FindFolder(ctx, folder.FolderID)
	assert.ErrorIs(t, err, ErrFolderNotFound)

	entries, err := store.ListEntries(ctx, folder.FolderID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEntryUsageValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	folder, err := store.CreateFolder(ctx, "acct-1", "Docs", nil)
	require.NoError(t, err)

	// Empty usage defaults to always.
	entry := createEntry(t, store, folder.FolderID, "a.md", "content")
	assert.Equal(t, UsageAlways, entry.UsageContext)

	_, err = store.CreateEntry(ctx, EntryParams{
		FolderID: folder.FolderID, AccountID: "acct-1",
		Filename: "b.md", UsageContext: "whenever",
	})
	assert.ErrorIs(t, err, ErrInvalidUsage)

	bad := "sometimes"
	_, err = store.UpdateEntry(ctx, entry.EntryID, UpdateEntryParams{UsageContext: &bad})
	assert.ErrorIs(t, err, ErrInvalidUsage)

	onRequest := UsageOnRequest
	updated, err := store.UpdateEntry(ctx, entry.EntryID, UpdateEntryParams{UsageContext: &onRequest})
	require.NoError(t, err)
	assert.Equal(t, UsageOnRequest, updated.UsageContext)
}

func TestUpdateEntryContentTracksSize(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	folder, err := store.CreateFolder(ctx, "acct-1", "Docs", nil)
	require.NoError(t, err)
	entry := createEntry(t, store, folder.FolderID, "a.md", "old")

	content := "brand new content"
	updated, err := store.UpdateEntry(ctx, entry.EntryID, UpdateEntryParams{Content: &content})
	require.NoError(t, err)
	assert.Equal(t, content, updated.Content)
	assert.Equal(t, int64(len(content)), updated.FileSize)
}

func TestAssignmentUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	folder, err := store.CreateFolder(ctx, "acct-1", "Docs", nil)
	require.NoError(t, err)
	entry := createEntry(t, store, folder.FolderID, "a.md", "content")

	_, err = store.AssignToAgent(ctx, "agent-1", entry.EntryID, "acct-1", true)
	require.NoError(t, err)
	_, err = store.AssignToAgent(ctx, "agent-1", entry.EntryID, "acct-1", false)
	require.NoError(t, err)

	assignments, err := store.ListAssignments(ctx, "agent-1")
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.False(t, assignments[0].Enabled)

	require.NoError(t, store.UnassignFromAgent(ctx, "agent-1", entry.EntryID))
	assert.ErrorIs(t, store.UnassignFromAgent(ctx, "agent-1", entry.EntryID), ErrEntryNotFound)
}

func TestDeleteEntryRemovesAssignments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	folder, err := store.CreateFolder(ctx, "acct-1", "Docs", nil)
	require.NoError(t, err)
	entry := createEntry(t, store, folder.FolderID, "a.md", "content")
	_, err = store.AssignToAgent(ctx, "agent-1", entry.EntryID, "acct-1", true)
	require.NoError(t, err)

	require.NoError(t, store.DeleteEntry(ctx, entry.EntryID))

	assignments, err := store.ListAssignments(ctx, "agent-1")
	require.NoError(t, err)
	assert.Empty(t, assignments)
}

func TestAssembleContextFiltering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	folder, err := store.CreateFolder(ctx, "acct-1", "Docs", nil)
	require.NoError(t, err)

	included := createEntry(t, store, folder.FolderID, "included.md", "visible content")
	disabled := createEntry(t, store, folder.FolderID, "disabled.md", "should not appear")
	inactive := createEntry(t, store, folder.FolderID, "inactive.md", "hidden too")
	createEntry(t, store, folder.FolderID, "unassigned.md", "never assigned")

	onRequest, err := store.CreateEntry(ctx, EntryParams{
		FolderID: folder.FolderID, AccountID: "acct-1",
		Filename: "ondemand.md", Content: "only on request", UsageContext: UsageOnRequest,
	})
	require.NoError(t, err)

	for _, e := range []*Entry{included, disabled, inactive, onRequest} {
		enabled := e.EntryID != disabled.EntryID
		_, err = store.AssignToAgent(ctx, "agent-1", e.EntryID, "acct-1", enabled)
		require.NoError(t, err)
	}
	off := false
	_, err = store.UpdateEntry(ctx, inactive.EntryID, UpdateEntryParams{IsActive: &off})
	require.NoError(t, err)

	assembled, err := store.AssembleContext(ctx, "agent-1", 0)
	require.NoError(t, err)
	assert.Contains(t, assembled, "## included.md")
	assert.Contains(t, assembled, "visible content")
	assert.NotContains(t, assembled, "should not appear")
	assert.NotContains(t, assembled, "hidden too")
	assert.NotContains(t, assembled, "only on request")
	assert.NotContains(t, assembled, "never assigned")
}

func TestAssembleContextEmpty(t *testing.T) {
	store := newTestStore(t)

	assembled, err := store.AssembleContext(context.Background(), "agent-without-knowledge", 0)
	require.NoError(t, err)
	assert.Equal(t, "", assembled)
}

func TestAssembleContextBudget(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	folder, err := store.CreateFolder(ctx, "acct-1", "Docs", nil)
	require.NoError(t, err)

	entry := createEntry(t, store, folder.FolderID, "big.md", strings.Repeat("x", 1000))
	_, err = store.AssignToAgent(ctx, "agent-1", entry.EntryID, "acct-1", true)
	require.NoError(t, err)

	// 10 tokens = 40 characters.
	assembled, err := store.AssembleContext(ctx, "agent-1", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, assembled)
	assert.LessOrEqual(t, len(assembled), 40)
}

func TestTruncateRunesKeepsUTF8Intact(t *testing.T) {
	value := "héllo wörld"
	for size := 1; size <= len(value); size++ {
		truncated := truncateRunes(value, size)
		assert.LessOrEqual(t, len(truncated), size)
		assert.True(t, strings.HasPrefix(value, truncated))
		for _, r := range truncated {
			assert.NotEqual(t, '�', r)
		}
	}
}

func TestFormatContextBlockFallsBackToSummary(t *testing.T) {
	block := formatContextBlock(&Entry{Filename: "a.md", Summary: "only a summary"})
	assert.Equal(t, "## a.md\n\nonly a summary\n\n", block)

	assert.Equal(t, "", formatContextBlock(&Entry{Filename: "empty.md"}))
}
