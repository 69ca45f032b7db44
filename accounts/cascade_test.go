package accounts_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"aurora_back/accounts"
	"aurora_back/agents"
	"aurora_back/credentials"
	"aurora_back/database"
	"aurora_back/feedback"
	"aurora_back/knowledge"
	"aurora_back/memory"
	"aurora_back/projects"
	"aurora_back/threads"
	"aurora_back/triggers"
)

// openFullSchema migrates every table the account cascade touches.
func openFullSchema(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.Open("sqlite", dsn)
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&accounts.Account{}, &accounts.AccountUser{},
		&projects.Project{},
		&agents.Agent{}, &agents.AgentVersion{},
		&threads.Thread{}, &threads.Message{}, &threads.ToolCall{}, &threads.AgentRun{},
		&memory.UserMemory{}, &memory.QueueItem{},
		&knowledge.Folder{}, &knowledge.Entry{}, &knowledge.AgentAssignment{},
		&credentials.CredentialProfile{},
		&triggers.AgentTrigger{}, &triggers.TriggerEvent{}, &triggers.OAuthInstallation{},
		&feedback.Feedback{},
	))
	return db
}

func count(t *testing.T, db *gorm.DB, table, column, accountID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Table(table).Where(column+" = ?", accountID).Count(&n).Error)
	return n
}

func TestDeleteCascade(t *testing.T) {
	db := openFullSchema(t)
	store := accounts.NewStore(db)
	ctx := context.Background()

	slug := "doomed"
	account := accounts.Account{
		ID:                 uuid.NewString(),
		PrimaryOwnerUserID: "user-1",
		Name:               "Doomed",
		Slug:               &slug,
	}
	require.NoError(t, db.Create(&account).Error)
	require.NoError(t, db.Create(&accounts.AccountUser{
		UserID: "user-1", AccountID: account.ID, Role: accounts.RoleOwner,
	}).Error)

	agent := agents.Agent{AgentID: uuid.NewString(), AccountID: account.ID, Name: "agent"}
	require.NoError(t, db.Create(&agent).Error)
	require.NoError(t, db.Create(&agents.AgentVersion{
		VersionID: uuid.NewString(), AgentID: agent.AgentID,
		VersionNumber: 1, VersionName: "v1",
	}).Error)

	thread := threads.Thread{ThreadID: uuid.NewString(), AccountID: account.ID}
	require.NoError(t, db.Create(&thread).Error)
	role := "user"
	require.NoError(t, db.Create(&threads.Message{
		MessageID: uuid.NewString(), ThreadID: thread.ThreadID, Role: &role, Type: "text",
	}).Error)
	require.NoError(t, db.Create(&threads.AgentRun{
		AgentRunID: uuid.NewString(), ThreadID: thread.ThreadID, Status: threads.RunStatusRunning,
	}).Error)

	trigger := triggers.AgentTrigger{
		TriggerID: uuid.NewString(), AgentID: agent.AgentID, AccountID: account.ID,
		TriggerType: triggers.TypeWebhook, Name: "hook",
	}
	require.NoError(t, db.Create(&trigger).Error)
	require.NoError(t, db.Create(&triggers.TriggerEvent{
		EventID: uuid.NewString(), TriggerID: trigger.TriggerID, AgentID: agent.AgentID,
	}).Error)
	require.NoError(t, db.Create(&triggers.OAuthInstallation{
		InstallationID: uuid.NewString(), AccountID: account.ID, Provider: "slack",
	}).Error)

	folder := knowledge.Folder{FolderID: uuid.NewString(), AccountID: account.ID, Name: "docs"}
	require.NoError(t, db.Create(&folder).Error)
	require.NoError(t, db.Create(&knowledge.Entry{
		EntryID: uuid.NewString(), FolderID: folder.FolderID, AccountID: account.ID,
		Filename: "notes.md",
	}).Error)

	require.NoError(t, db.Create(&memory.UserMemory{
		MemoryID: uuid.NewString(), AccountID: account.ID,
		MemoryType: memory.TypeFact, Content: "likes go",
	}).Error)
	require.NoError(t, db.Create(&memory.QueueItem{
		QueueID: uuid.NewString(), AccountID: account.ID, ThreadID: thread.ThreadID,
	}).Error)

	require.NoError(t, db.Create(&credentials.CredentialProfile{
		ProfileID: uuid.NewString(), AccountID: account.ID,
		McpQualifiedName: "github", ProfileName: "default",
	}).Error)
	require.NoError(t, db.Create(&projects.Project{
		ProjectID: uuid.NewString(), AccountID: account.ID, Name: "proj",
	}).Error)
	require.NoError(t, db.Create(&feedback.Feedback{
		FeedbackID: uuid.NewString(), AccountID: account.ID, UserID: "user-1",
		Category: "bug", Message: "broken",
	}).Error)

	require.NoError(t, store.DeleteCascade(ctx, account.ID))

	_, err := store.FindByID(ctx, account.ID)
	assert.ErrorIs(t, err, accounts.ErrNotFound)

	for _, tc := range []struct{ table, column string }{
		{"account_user", "account_id"},
		{"projects", "account_id"},
		{"agents", "account_id"},
		{"threads", "account_id"},
		{"user_memories", "account_id"},
		{"memory_extraction_queue", "account_id"},
		{"knowledge_folders", "account_id"},
		{"knowledge_entries", "account_id"},
		{"credential_profiles", "account_id"},
		{"oauth_installations", "account_id"},
		{"feedback", "account_id"},
		{"agent_triggers", "agent_id"},
		{"agent_versions", "agent_id"},
		{"trigger_events", "agent_id"},
		{"messages", "thread_id"},
		{"agent_runs", "thread_id"},
	} {
		id := account.ID
		switch tc.column {
		case "agent_id":
			id = agent.AgentID
		case "thread_id":
			id = thread.ThreadID
		}
		assert.Zero(t, count(t, db, tc.table, tc.column, id), tc.table)
	}
}

func TestDeleteUserCascade(t *testing.T) {
	db := openFullSchema(t)
	store := accounts.NewStore(db)
	ctx := context.Background()

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return store.ProvisionPersonalAccountTx(tx, "user-1", "jane@example.com")
	}))
	team, err := store.CreateTeamAccount(ctx, "user-1", accounts.TeamAccountParams{Name: "Team", Slug: "team"})
	require.NoError(t, err)

	// A membership on someone else's account must go away too.
	other, err := store.CreateTeamAccount(ctx, "user-2", accounts.TeamAccountParams{Name: "Other", Slug: "other"})
	require.NoError(t, err)
	require.NoError(t, store.AddMember(ctx, other.ID, "user-1", accounts.RoleMember))

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return store.DeleteUserCascadeTx(tx, "user-1")
	}))

	_, err = store.FindByID(ctx, "user-1")
	assert.ErrorIs(t, err, accounts.ErrNotFound)
	_, err = store.FindByID(ctx, team.ID)
	assert.ErrorIs(t, err, accounts.ErrNotFound)

	assert.ErrorIs(t, store.RequireMember(ctx, "user-1", other.ID), accounts.ErrForbidden)
	require.NoError(t, store.RequireOwner(ctx, "user-2", other.ID))
}
