package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"aurora_back/database"
)

var (
	ErrPersonalAccountSlug  = errors.New("accounts: personal accounts cannot carry a slug")
	ErrTeamAccountNeedsSlug = errors.New("accounts: team accounts require a slug")
	ErrSlugTaken            = errors.New("accounts: slug already in use")
	ErrNotFound             = errors.New("accounts: account not found")
	ErrPrimaryOwner         = errors.New("accounts: the primary owner cannot leave the account")
	ErrForbidden            = errors.New("accounts: user is not a member of this account")
)

// Store provides data access for accounts and memberships.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the account tables.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&Account{}, &AccountUser{}); err != nil {
		return fmt.Errorf("accounts: migrate models: %w", err)
	}
	return nil
}

// ProvisionPersonalAccountTx creates the personal account and owner
// membership for a freshly inserted user, on the caller's transaction so the
// user row and its bootstrap rows commit or roll back together. Re-running
// for an existing user id is a no-op.
func (s *Store) ProvisionPersonalAccountTx(tx *gorm.DB, userID, email string) error {
	name := personalAccountName(email)

	account := Account{
		ID:                 userID,
		PrimaryOwnerUserID: userID,
		Name:               name,
		PersonalAccount:    true,
		MemoryEnabled:      true,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&account).Error; err != nil {
		return fmt.Errorf("accounts: provision personal account: %w", err)
	}

	return s.ensureOwnerMembershipTx(tx, userID, userID)
}

// personalAccountName derives the default account name from the local part of
// the email. Users without an email all get the literal "User"; name is not
// unique so collisions are fine.
func personalAccountName(email string) string {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return "User"
	}
	if at := strings.Index(trimmed, "@"); at > 0 {
		return trimmed[:at]
	}
	return trimmed
}

func (s *Store) ensureOwnerMembershipTx(tx *gorm.DB, accountID, userID string) error {
	membership := AccountUser{
		UserID:    userID,
		AccountID: accountID,
		Role:      RoleOwner,
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&membership).Error; err != nil {
		return fmt.Errorf("accounts: create owner membership: %w", err)
	}
	return nil
}

// TeamAccountParams carries the caller-supplied fields for a new team account.
type TeamAccountParams struct {
	Name           string
	Slug           string
	PublicMetadata []byte
	MemoryEnabled  *bool
}

// CreateTeamAccount inserts a team account together with its owner membership
// in one transaction.
func (s *Store) CreateTeamAccount(ctx context.Context, ownerUserID string, params TeamAccountParams) (*Account, error) {
	slug := Slugify(params.Slug)
	if slug == "" {
		return nil, ErrTeamAccountNeedsSlug
	}

	account := Account{
		ID:                 uuid.NewString(),
		PrimaryOwnerUserID: ownerUserID,
		Name:               strings.TrimSpace(params.Name),
		Slug:               &slug,
		PersonalAccount:    false,
		MemoryEnabled:      true,
	}
	if account.Name == "" {
		account.Name = slug
	}
	if params.MemoryEnabled != nil {
		account.MemoryEnabled = *params.MemoryEnabled
	}
	if len(params.PublicMetadata) > 0 {
		account.PublicMetadata = params.PublicMetadata
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&account).Error; err != nil {
			if database.IsDuplicate(err) {
				return ErrSlugTaken
			}
			return fmt.Errorf("accounts: create team account: %w", err)
		}
		return s.ensureOwnerMembershipTx(tx, account.ID, ownerUserID)
	})
	if err != nil {
		return nil, err
	}

	return &account, nil
}

// FindByID loads a single account.
func (s *Store) FindByID(ctx context.Context, accountID string) (*Account, error) {
	var account Account
	err := s.db.WithContext(ctx).Where("id = ?", accountID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

// ListForUser returns every account the user is a member of, personal first.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]Account, error) {
	var results []Account
	err := s.db.WithContext(ctx).
		Joins("JOIN account_user ON account_user.account_id = accounts.id").
		Where("account_user.user_id = ?", userID).
		Order("accounts.personal_account DESC, accounts.created_at ASC").
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("accounts: list for user: %w", err)
	}
	return results, nil
}

// UpdateParams holds the mutable account fields. Nil means "leave unchanged".
type UpdateParams struct {
	Name           *string
	Slug           *string
	PublicMetadata []byte
	MemoryEnabled  *bool
}

// Update applies the given changes. Slug updates are normalized; renaming a
// personal account's slug is rejected by the model invariant.
func (s *Store) Update(ctx context.Context, accountID string, params UpdateParams) (*Account, error) {
	account, err := s.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name != "" {
			account.Name = name
		}
	}
	if params.Slug != nil {
		if account.PersonalAccount {
			return nil, ErrPersonalAccountSlug
		}
		slug := Slugify(*params.Slug)
		if slug == "" {
			return nil, ErrTeamAccountNeedsSlug
		}
		account.Slug = &slug
	}
	if params.PublicMetadata != nil {
		account.PublicMetadata = params.PublicMetadata
	}
	if params.MemoryEnabled != nil {
		account.MemoryEnabled = *params.MemoryEnabled
	}

	if err := s.db.WithContext(ctx).Save(account).Error; err != nil {
		if database.IsDuplicate(err) {
			return nil, ErrSlugTaken
		}
		return nil, fmt.Errorf("accounts: update account: %w", err)
	}
	return account, nil
}

// HasRoleOnAccount reports whether the user holds a membership on the
// account, optionally restricted to one role. Pass nil to accept any role.
func (s *Store) HasRoleOnAccount(ctx context.Context, userID, accountID string, role *string) (bool, error) {
	query := s.db.WithContext(ctx).Model(&AccountUser{}).
		Where("user_id = ? AND account_id = ?", userID, accountID)
	if role != nil {
		query = query.Where("role = ?", *role)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("accounts: check membership: %w", err)
	}
	return count > 0, nil
}

// RequireMember is the guard primitive used by the other modules: any
// membership grants read access, owner role is demanded for mutations.
// Returns ErrForbidden when the user is not a member.
func (s *Store) RequireMember(ctx context.Context, userID, accountID string) error {
	ok, err := s.HasRoleOnAccount(ctx, userID, accountID, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// RequireOwner returns ErrForbidden unless the user owns the account.
func (s *Store) RequireOwner(ctx context.Context, userID, accountID string) error {
	role := RoleOwner
	ok, err := s.HasRoleOnAccount(ctx, userID, accountID, &role)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// ListMembers returns the memberships of an account.
func (s *Store) ListMembers(ctx context.Context, accountID string) ([]AccountUser, error) {
	var members []AccountUser
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("accounts: list members: %w", err)
	}
	return members, nil
}

// AddMember inserts a membership row. Adding an existing member is a no-op.
func (s *Store) AddMember(ctx context.Context, accountID, userID, role string) error {
	if role != RoleOwner {
		role = RoleMember
	}
	membership := AccountUser{UserID: userID, AccountID: accountID, Role: role}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&membership).Error
	if err != nil {
		return fmt.Errorf("accounts: add member: %w", err)
	}
	return nil
}

// UpdateMemberRole changes a member's role. The primary owner keeps owner.
func (s *Store) UpdateMemberRole(ctx context.Context, accountID, userID, role string) error {
	account, err := s.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.PrimaryOwnerUserID == userID && role != RoleOwner {
		return ErrPrimaryOwner
	}
	if role != RoleOwner {
		role = RoleMember
	}

	result := s.db.WithContext(ctx).Model(&AccountUser{}).
		Where("account_id = ? AND user_id = ?", accountID, userID).
		Update("role", role)
	if result.Error != nil {
		return fmt.Errorf("accounts: update member role: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// RemoveMember deletes a membership. The primary owner cannot be removed.
func (s *Store) RemoveMember(ctx context.Context, accountID, userID string) error {
	account, err := s.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.PrimaryOwnerUserID == userID {
		return ErrPrimaryOwner
	}

	return s.db.WithContext(ctx).
		Where("account_id = ? AND user_id = ?", accountID, userID).
		Delete(&AccountUser{}).Error
}

// Cascade table groups. Threads own messages, tool calls and runs; agents own
// versions, triggers and knowledge assignments; the rest hangs directly off
// the account.
var accountScopedTables = []string{
	"feedback",
	"credential_profiles",
	"oauth_installations",
	"memory_extraction_queue",
	"user_memories",
	"knowledge_entries",
	"knowledge_folders",
	"projects",
}

// DeleteCascade removes an account and everything it owns in one
// transaction, replacing the original schema's ON DELETE CASCADE chains.
func (s *Store) DeleteCascade(ctx context.Context, accountID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteAccountTx(tx, accountID)
	})
}

func deleteAccountTx(tx *gorm.DB, accountID string) error {
	var threadIDs []string
	if err := tx.Table("threads").Where("account_id = ?", accountID).Pluck("thread_id", &threadIDs).Error; err != nil {
		return fmt.Errorf("accounts: collect threads: %w", err)
	}
	if len(threadIDs) > 0 {
		for _, table := range []string{"messages", "tool_calls", "agent_runs"} {
			if err := tx.Exec("DELETE FROM "+table+" WHERE thread_id IN ?", threadIDs).Error; err != nil {
				return fmt.Errorf("accounts: cascade %s: %w", table, err)
			}
		}
	}
	if err := tx.Exec("DELETE FROM threads WHERE account_id = ?", accountID).Error; err != nil {
		return fmt.Errorf("accounts: cascade threads: %w", err)
	}

	var agentIDs []string
	if err := tx.Table("agents").Where("account_id = ?", accountID).Pluck("agent_id", &agentIDs).Error; err != nil {
		return fmt.Errorf("accounts: collect agents: %w", err)
	}
	if len(agentIDs) > 0 {
		var triggerIDs []string
		if err := tx.Table("agent_triggers").Where("agent_id IN ?", agentIDs).Pluck("trigger_id", &triggerIDs).Error; err != nil {
			return fmt.Errorf("accounts: collect triggers: %w", err)
		}
		if len(triggerIDs) > 0 {
			if err := tx.Exec("DELETE FROM trigger_events WHERE trigger_id IN ?", triggerIDs).Error; err != nil {
				return fmt.Errorf("accounts: cascade trigger events: %w", err)
			}
		}
		for _, table := range []string{"agent_triggers", "agent_versions", "agent_knowledge_assignments"} {
			if err := tx.Exec("DELETE FROM "+table+" WHERE agent_id IN ?", agentIDs).Error; err != nil {
				return fmt.Errorf("accounts: cascade %s: %w", table, err)
			}
		}
	}
	if err := tx.Exec("DELETE FROM agents WHERE account_id = ?", accountID).Error; err != nil {
		return fmt.Errorf("accounts: cascade agents: %w", err)
	}

	for _, table := range accountScopedTables {
		if err := tx.Exec("DELETE FROM "+table+" WHERE account_id = ?", accountID).Error; err != nil {
			return fmt.Errorf("accounts: cascade %s: %w", table, err)
		}
	}

	if err := tx.Where("account_id = ?", accountID).Delete(&AccountUser{}).Error; err != nil {
		return fmt.Errorf("accounts: cascade memberships: %w", err)
	}
	return tx.Where("id = ?", accountID).Delete(&Account{}).Error
}

// DeleteUserCascadeTx removes everything owned by a user: the accounts they
// are primary owner of (with their full cascades) and their remaining
// memberships. Runs on the caller's transaction alongside the user delete.
func (s *Store) DeleteUserCascadeTx(tx *gorm.DB, userID string) error {
	var ownedIDs []string
	if err := tx.Model(&Account{}).Where("primary_owner_user_id = ?", userID).Pluck("id", &ownedIDs).Error; err != nil {
		return fmt.Errorf("accounts: collect owned accounts: %w", err)
	}
	for _, accountID := range ownedIDs {
		if err := deleteAccountTx(tx, accountID); err != nil {
			return err
		}
	}
	if err := tx.Where("user_id = ?", userID).Delete(&AccountUser{}).Error; err != nil {
		return fmt.Errorf("accounts: delete memberships: %w", err)
	}
	return nil
}
