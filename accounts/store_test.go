package accounts

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

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

func provision(t *testing.T, store *Store, userID, email string) {
	t.Helper()
	err := store.db.Transaction(func(tx *gorm.DB) error {
		return store.ProvisionPersonalAccountTx(tx, userID, email)
	})
	require.NoError(t, err)
}

func TestProvisionPersonalAccount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	provision(t, store, "user-1", "jane@example.com")

	account, err := store.FindByID(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, account.PersonalAccount)
	assert.Nil(t, account.Slug)
	assert.Equal(t, "jane", account.Name)
	assert.Equal(t, "user-1", account.PrimaryOwnerUserID)
	assert.True(t, account.MemoryEnabled)

	require.NoError(t, store.RequireOwner(ctx, "user-1", "user-1"))
}

func TestProvisionPersonalAccountIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	provision(t, store, "user-1", "jane@example.com")
	provision(t, store, "user-1", "jane@example.com")

	listed, err := store.ListForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	members, err := store.ListMembers(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestPersonalAccountNameFallback(t *testing.T) {
	assert.Equal(t, "jane", personalAccountName("jane@example.com"))
	assert.Equal(t, "User", personalAccountName(""))
	assert.Equal(t, "nodomain", personalAccountName("nodomain"))
}

func TestCreateTeamAccount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	provision(t, store, "user-1", "jane@example.com")

	account, err := store.CreateTeamAccount(ctx, "user-1", TeamAccountParams{
		Name: "Team X",
		Slug: "Team X!!",
	})
	require.NoError(t, err)
	assert.False(t, account.PersonalAccount)
	require.NotNil(t, account.Slug)
	assert.Equal(t, "team-x", *account.Slug)

	require.NoError(t, store.RequireOwner(ctx, "user-1", account.ID))
}

func TestCreateTeamAccountSlugConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	provision(t, store, "user-1", "jane@example.com")
	provision(t, store, "user-2", "joe@example.com")

	_, err := store.CreateTeamAccount(ctx, "user-1", TeamAccountParams{Name: "Team X", Slug: "team-x"})
	require.NoError(t, err)

	_, err = store.CreateTeamAccount(ctx, "user-2", TeamAccountParams{Name: "Other", Slug: "Team X"})
	assert.ErrorIs(t, err, ErrSlugTaken)
}

func TestCreateTeamAccountNeedsSlug(t *testing.T) {
	store := newTestStore(t)

	_, err := store.CreateTeamAccount(context.Background(), "user-1", TeamAccountParams{Name: "No Slug", Slug: "!!!"})
	assert.ErrorIs(t, err, ErrTeamAccountNeedsSlug)
}

func TestAccountInvariants(t *testing.T) {
	store := newTestStore(t)

	slug := "not-allowed"
	personal := Account{
		ID:                 "acct-1",
		PrimaryOwnerUserID: "user-1",
		Name:               "Personal",
		PersonalAccount:    true,
		Slug:               &slug,
	}
	err := store.db.Create(&personal).Error
	assert.ErrorIs(t, err, ErrPersonalAccountSlug)

	team := Account{
		ID:                 "acct-2",
		PrimaryOwnerUserID: "user-1",
		Name:               "Team",
		PersonalAccount:    false,
	}
	err = store.db.Create(&team).Error
	assert.ErrorIs(t, err, ErrTeamAccountNeedsSlug)
}

func TestUpdateRejectsPersonalSlug(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	provision(t, store, "user-1", "jane@example.com")

	slug := "sneaky"
	_, err := store.Update(ctx, "user-1", UpdateParams{Slug: &slug})
	assert.ErrorIs(t, err, ErrPersonalAccountSlug)
}

func TestListForUserPersonalFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	provision(t, store, "user-1", "jane@example.com")

	_, err := store.CreateTeamAccount(ctx, "user-1", TeamAccountParams{Name: "Team X", Slug: "team-x"})
	require.NoError(t, err)

	listed, err := store.ListForUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.True(t, listed[0].PersonalAccount)
	assert.False(t, listed[1].PersonalAccount)
}

func TestMemberManagement(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	provision(t, store, "owner", "owner@example.com")
	provision(t, store, "member", "member@example.com")

	team, err := store.CreateTeamAccount(ctx, "owner", TeamAccountParams{Name: "Team", Slug: "team"})
	require.NoError(t, err)

	require.NoError(t, store.AddMember(ctx, team.ID, "member", RoleMember))
	require.NoError(t, store.RequireMember(ctx, "member", team.ID))
	assert.ErrorIs(t, store.RequireOwner(ctx, "member", team.ID), ErrForbidden)

	require.NoError(t, store.UpdateMemberRole(ctx, team.ID, "member", RoleOwner))
	require.NoError(t, store.RequireOwner(ctx, "member", team.ID))

	// The primary owner keeps the owner role no matter what.
	err = store.UpdateMemberRole(ctx, team.ID, "owner", RoleMember)
	assert.ErrorIs(t, err, ErrPrimaryOwner)
	require.NoError(t, store.RequireOwner(ctx, "owner", team.ID))

	// And cannot be removed.
	assert.ErrorIs(t, store.RemoveMember(ctx, team.ID, "owner"), ErrPrimaryOwner)
	require.NoError(t, store.RemoveMember(ctx, team.ID, "member"))
	assert.ErrorIs(t, store.RequireMember(ctx, "member", team.ID), ErrForbidden)
}

func TestRequireMemberOutsider(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	provision(t, store, "user-1", "jane@example.com")

	assert.ErrorIs(t, store.RequireMember(ctx, "stranger", "user-1"), ErrForbidden)
}
