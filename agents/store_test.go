package agents

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

func createAgent(t *testing.T, store *Store, accountID, name string) *Agent {
	t.Helper()
	agent, err := store.Create(context.Background(), "user-1", CreateParams{
		AccountID:    accountID,
		Name:         name,
		SystemPrompt: "You are a helpful assistant.",
		Model:        "claude-sonnet-4",
	})
	require.NoError(t, err)
	return agent
}

func TestCreateMakesInitialVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	agent := createAgent(t, store, "acct-1", "Helper")
	require.NotNil(t, agent.CurrentVersionID)
	assert.Equal(t, 1, agent.VersionCount)

	versions, err := store.ListVersions(ctx, agent.AgentID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, *agent.CurrentVersionID, versions[0].VersionID)
	assert.Equal(t, 1, versions[0].VersionNumber)
	assert.Equal(t, "v1", versions[0].VersionName)
	assert.Nil(t, versions[0].PreviousVersionID)
	assert.Equal(t, agent.SystemPrompt, versions[0].SystemPrompt)
}

func TestCreateRejectsEmptyName(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create(context.Background(), "user-1", CreateParams{AccountID: "acct-1", Name: "   "})
	assert.Error(t, err)
}

func TestCreateVersionChainsAndMirrors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	agent := createAgent(t, store, "acct-1", "Helper")
	firstVersionID := *agent.CurrentVersionID

	v2, err := store.CreateVersion(ctx, agent.AgentID, "user-1", VersionParams{
		SystemPrompt: "You are terse.",
		Model:        "gpt-4o",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNumber)
	assert.Equal(t, "v2", v2.VersionName)
	require.NotNil(t, v2.PreviousVersionID)
	assert.Equal(t, firstVersionID, *v2.PreviousVersionID)

	// The agent row mirrors the new current version.
	reloaded, err := store.FindByID(ctx, agent.AgentID)
	require.NoError(t, err)
	assert.Equal(t, v2.VersionID, *reloaded.CurrentVersionID)
	assert.Equal(t, 2, reloaded.VersionCount)
	assert.Equal(t, "You are terse.", reloaded.SystemPrompt)
	assert.Equal(t, "gpt-4o", reloaded.Model)
}

func TestActivateVersionRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	agent := createAgent(t, store, "acct-1", "Helper")
	firstVersionID := *agent.CurrentVersionID

	_, err := store.CreateVersion(ctx, agent.AgentID, "user-1", VersionParams{
		SystemPrompt: "You are terse.",
		Model:        "gpt-4o",
	})
	require.NoError(t, err)

	restored, err := store.ActivateVersion(ctx, agent.AgentID, firstVersionID)
	require.NoError(t, err)
	assert.Equal(t, firstVersionID, restored.VersionID)

	reloaded, err := store.FindByID(ctx, agent.AgentID)
	require.NoError(t, err)
	assert.Equal(t, firstVersionID, *reloaded.CurrentVersionID)
	assert.Equal(t, "You are a helpful assistant.", reloaded.SystemPrompt)
	// Version count is a high-water mark, not the active number.
	assert.Equal(t, 2, reloaded.VersionCount)
}

func TestActivateVersionRejectsForeignVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	agent := createAgent(t, store, "acct-1", "Helper")
	other := createAgent(t, store, "acct-1", "Other")

	_, err := store.ActivateVersion(ctx, agent.AgentID, *other.CurrentVersionID)
	assert.ErrorIs(t, err, ErrVersionMismatch)

	_, err = store.ActivateVersion(ctx, agent.AgentID, "no-such-version")
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestSetDefaultClearsPrevious(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	first := createAgent(t, store, "acct-1", "First")
	second := createAgent(t, store, "acct-1", "Second")

	require.NoError(t, store.SetDefault(ctx, "acct-1", first.AgentID))
	require.NoError(t, store.SetDefault(ctx, "acct-1", second.AgentID))

	listed, err := store.ListForAccount(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, second.AgentID, listed[0].AgentID)
	assert.True(t, listed[0].IsDefault)
	assert.False(t, listed[1].IsDefault)

	assert.ErrorIs(t, store.SetDefault(ctx, "acct-1", "missing"), ErrNotFound)
	// Defaulting an agent from another account must not work either.
	assert.ErrorIs(t, store.SetDefault(ctx, "acct-2", first.AgentID), ErrNotFound)
}

func TestInstallCopiesPublicAgent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	source := createAgent(t, store, "acct-1", "Published")

	_, err := store.Install(ctx, source.AgentID, "acct-2", "user-2")
	assert.ErrorIs(t, err, ErrNotPublic)

	public := true
	_, err = store.Update(ctx, source.AgentID, UpdateParams{IsPublic: &public})
	require.NoError(t, err)

	copied, err := store.Install(ctx, source.AgentID, "acct-2", "user-2")
	require.NoError(t, err)
	assert.NotEqual(t, source.AgentID, copied.AgentID)
	assert.Equal(t, "acct-2", copied.AccountID)
	assert.Equal(t, source.SystemPrompt, copied.SystemPrompt)
	assert.False(t, copied.IsPublic)
	require.NotNil(t, copied.CurrentVersionID)

	reloaded, err := store.FindByID(ctx, source.AgentID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reloaded.DownloadCount)
}

func TestListPublicSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	public := true

	research := createAgent(t, store, "acct-1", "Research Buddy")
	writer := createAgent(t, store, "acct-1", "Writer")
	createAgent(t, store, "acct-1", "Private One")
	for _, id := range []string{research.AgentID, writer.AgentID} {
		_, err := store.Update(ctx, id, UpdateParams{IsPublic: &public})
		require.NoError(t, err)
	}

	all, err := store.ListPublic(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	matched, err := store.ListPublic(ctx, "research", 0)
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, research.AgentID, matched[0].AgentID)
}
