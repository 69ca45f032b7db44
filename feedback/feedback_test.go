package feedback

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

func submit(t *testing.T, store *Store, accountID, message string) *Feedback {
	t.Helper()
	entry, err := store.Create(context.Background(), CreateParams{
		AccountID: accountID,
		UserID:    "user-1",
		Category:  "bug",
		Message:   message,
	})
	require.NoError(t, err)
	return entry
}

func TestCreateValidation(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create(context.Background(), CreateParams{
		AccountID: "acct-1", UserID: "user-1", Category: "bug", Message: "   ",
	})
	assert.Error(t, err)

	entry := submit(t, store, "acct-1", "the dashboard is blank")
	assert.Equal(t, StatusOpen, entry.Status)
}

func TestListScoping(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	submit(t, store, "acct-1", "first")
	submit(t, store, "acct-2", "second")

	scoped, err := store.List(ctx, "acct-1", "", 0)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "first", scoped[0].Message)

	// Empty account means the admin view.
	all, err := store.List(ctx, "", "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStatusWorkflow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	entry := submit(t, store, "acct-1", "needs triage")

	reviewed, err := store.UpdateStatus(ctx, entry.FeedbackID, StatusReviewed)
	require.NoError(t, err)
	assert.Equal(t, StatusReviewed, reviewed.Status)

	resolved, err := store.UpdateStatus(ctx, entry.FeedbackID, StatusResolved)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, resolved.Status)

	_, err = store.UpdateStatus(ctx, entry.FeedbackID, "archived")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = store.UpdateStatus(ctx, "missing", StatusReviewed)
	assert.ErrorIs(t, err, ErrNotFound)

	open, err := store.List(ctx, "acct-1", StatusOpen, 0)
	require.NoError(t, err)
	assert.Empty(t, open)
}
