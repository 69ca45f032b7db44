package credentials

import (
	"context"
	"fmt"
	"reflect"
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

	box, err := NewCipherBox(deriveKey("test-key"))
	require.NoError(t, err)

	store := NewStore(db, box)
	require.NoError(t, store.Migrate())
	return store
}

func createProfile(t *testing.T, store *Store, tool, name string, isDefault bool) *CredentialProfile {
	t.Helper()
	profile, err := store.Create(context.Background(), CreateParams{
		AccountID:        "acct-1",
		McpQualifiedName: tool,
		ProfileName:      name,
		Config:           []byte(`{"token": "` + name + `"}`),
		IsDefault:        isDefault,
	})
	require.NoError(t, err)
	return profile
}

func TestCreateAndDecrypt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	profile := createProfile(t, store, "github", "work", false)
	assert.Equal(t, "work", profile.DisplayName)
	assert.NotEmpty(t, profile.ConfigHash)
	assert.NotContains(t, string(profile.EncryptedConfig), "token")

	config, err := store.DecryptConfig(ctx, profile)
	require.NoError(t, err)
	assert.JSONEq(t, `{"token": "work"}`, string(config))

	// Decrypting stamps last_used_at.
	reloaded, err := store.FindByID(ctx, profile.ProfileID)
	require.NoError(t, err)
	assert.NotNil(t, reloaded.LastUsedAt)
}

func TestCreateDuplicateProfileName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	createProfile(t, store, "github", "work", false)

	_, err := store.Create(ctx, CreateParams{
		AccountID:        "acct-1",
		McpQualifiedName: "github",
		ProfileName:      "work",
		Config:           []byte(`{}`),
	})
	assert.ErrorIs(t, err, ErrProfileExists)

	// Same name under another tool or account is fine.
	_, err = store.Create(ctx, CreateParams{
		AccountID: "acct-1", McpQualifiedName: "slack", ProfileName: "work", Config: []byte(`{}`),
	})
	require.NoError(t, err)
	_, err = store.Create(ctx, CreateParams{
		AccountID: "acct-2", McpQualifiedName: "github", ProfileName: "work", Config: []byte(`{}`),
	})
	require.NoError(t, err)
}

func TestSetDefaultClearsPrevious(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := createProfile(t, store, "github", "work", true)
	second := createProfile(t, store, "github", "personal", false)

	_, err := store.SetDefault(ctx, second.ProfileID)
	require.NoError(t, err)

	profiles, err := store.List(ctx, "acct-1", "github")
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	for _, p := range profiles {
		assert.Equal(t, p.ProfileID == second.ProfileID, p.IsDefault, p.ProfileName)
	}

	_, err = store.SetDefault(ctx, first.ProfileID)
	require.NoError(t, err)
	reloaded, err := store.FindByID(ctx, second.ProfileID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsDefault)
}

func TestUpdateReencrypts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	profile := createProfile(t, store, "github", "work", false)
	oldHash := profile.ConfigHash

	updated, err := store.Update(ctx, profile.ProfileID, UpdateParams{
		Config: []byte(`{"token": "rotated"}`),
	})
	require.NoError(t, err)
	assert.NotEqual(t, oldHash, updated.ConfigHash)

	config, err := store.DecryptConfig(ctx, updated)
	require.NoError(t, err)
	assert.JSONEq(t, `{"token": "rotated"}`, string(config))
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	profile := createProfile(t, store, "github", "work", false)

	require.NoError(t, store.Delete(ctx, profile.ProfileID))
	assert.ErrorIs(t, store.Delete(ctx, profile.ProfileID), ErrNotFound)
	_, err := store.FindByID(ctx, profile.ProfileID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMcpToolsForAccount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	createProfile(t, store, "github", "personal", false)
	defaultProfile := createProfile(t, store, "github", "work", true)
	slack := createProfile(t, store, "slack", "team", false)

	disabled := createProfile(t, store, "jira", "old", false)
	off := false
	_, err := store.Update(ctx, disabled.ProfileID, UpdateParams{IsActive: &off})
	require.NoError(t, err)

	tools, err := store.McpToolsForAccount(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, tools, 2)

	byName := make(map[string]string, len(tools))
	for _, tool := range tools {
		byName[tool.Name] = tool.DisplayName
		assert.Equal(t, "mcp", tool.Source)
		assert.True(t, tool.Enabled)
	}
	// The default profile wins when a tool has several.
	assert.Equal(t, defaultProfile.DisplayName, byName["github"])
	assert.Equal(t, slack.DisplayName, byName["slack"])
}

func TestEncryptedConfigColumnIsPortable(t *testing.T) {
	// Postgres has no blob type: the ciphertext column must not pin a
	// dialect-specific type or AutoMigrate fails there.
	field, ok := reflect.TypeOf(CredentialProfile{}).FieldByName("EncryptedConfig")
	require.True(t, ok)
	assert.NotContains(t, field.Tag.Get("gorm"), "type:")
}
