package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"aurora_back/agents"
	"aurora_back/database"
)

var (
	ErrNotFound      = errors.New("credentials: profile not found")
	ErrProfileExists = errors.New("credentials: profile name already used for this tool")
)

type Store struct {
	db  *gorm.DB
	box *CipherBox
}

func NewStore(db *gorm.DB, box *CipherBox) *Store {
	return &Store{db: db, box: box}
}

func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&CredentialProfile{}); err != nil {
		return fmt.Errorf("credentials: migrate models: %w", err)
	}
	return nil
}

// CreateParams holds one new credential profile. Config is the plaintext
// JSON configuration to encrypt.
type CreateParams struct {
	AccountID        string
	McpQualifiedName string
	ProfileName      string
	DisplayName      string
	Config           []byte
	IsDefault        bool
}

func (s *Store) Create(ctx context.Context, params CreateParams) (*CredentialProfile, error) {
	name := strings.TrimSpace(params.ProfileName)
	if name == "" {
		return nil, errors.New("credentials: profile name cannot be empty")
	}

	sealed, err := s.box.Seal(params.Config)
	if err != nil {
		return nil, err
	}

	profile := &CredentialProfile{
		ProfileID:        uuid.NewString(),
		AccountID:        params.AccountID,
		McpQualifiedName: params.McpQualifiedName,
		ProfileName:      name,
		DisplayName:      params.DisplayName,
		EncryptedConfig:  sealed,
		ConfigHash:       hashConfig(params.Config),
		IsActive:         true,
		IsDefault:        params.IsDefault,
	}
	if profile.DisplayName == "" {
		profile.DisplayName = name
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if profile.IsDefault {
			if err := s.clearDefaultTx(tx, profile.AccountID, profile.McpQualifiedName); err != nil {
				return err
			}
		}
		if err := tx.Create(profile).Error; err != nil {
			if database.IsDuplicate(err) {
				return ErrProfileExists
			}
			return fmt.Errorf("credentials: create profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *Store) FindByID(ctx context.Context, profileID string) (*CredentialProfile, error) {
	var profile CredentialProfile
	err := s.db.WithContext(ctx).Where("profile_id = ?", profileID).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &profile, nil
}

// DecryptConfig returns the plaintext configuration of a profile and
// touches last_used_at.
func (s *Store) DecryptConfig(ctx context.Context, profile *CredentialProfile) ([]byte, error) {
	plaintext, err := s.box.Open(profile.EncryptedConfig)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(&CredentialProfile{}).
		Where("profile_id = ?", profile.ProfileID).
		Update("last_used_at", now).Error; err != nil {
		return nil, fmt.Errorf("credentials: touch last_used_at: %w", err)
	}
	return plaintext, nil
}

// List returns an account's profiles, optionally filtered to one tool.
func (s *Store) List(ctx context.Context, accountID, mcpQualifiedName string) ([]CredentialProfile, error) {
	query := s.db.WithContext(ctx).Where("account_id = ?", accountID)
	if mcpQualifiedName != "" {
		query = query.Where("mcp_qualified_name = ?", mcpQualifiedName)
	}

	var profiles []CredentialProfile
	err := query.Order("mcp_qualified_name ASC, is_default DESC, created_at ASC").Find(&profiles).Error
	if err != nil {
		return nil, fmt.Errorf("credentials: list profiles: %w", err)
	}
	return profiles, nil
}

// UpdateParams holds the mutable profile fields. A non-nil Config
// re-encrypts and re-hashes.
type UpdateParams struct {
	DisplayName *string
	Config      []byte
	IsActive    *bool
}

func (s *Store) Update(ctx context.Context, profileID string, params UpdateParams) (*CredentialProfile, error) {
	profile, err := s.FindByID(ctx, profileID)
	if err != nil {
		return nil, err
	}

	if params.DisplayName != nil && strings.TrimSpace(*params.DisplayName) != "" {
		profile.DisplayName = strings.TrimSpace(*params.DisplayName)
	}
	if params.Config != nil {
		sealed, err := s.box.Seal(params.Config)
		if err != nil {
			return nil, err
		}
		profile.EncryptedConfig = sealed
		profile.ConfigHash = hashConfig(params.Config)
	}
	if params.IsActive != nil {
		profile.IsActive = *params.IsActive
	}

	if err := s.db.WithContext(ctx).Save(profile).Error; err != nil {
		return nil, fmt.Errorf("credentials: update profile: %w", err)
	}
	return profile, nil
}

func (s *Store) Delete(ctx context.Context, profileID string) error {
	result := s.db.WithContext(ctx).Where("profile_id = ?", profileID).Delete(&CredentialProfile{})
	if result.Error != nil {
		return fmt.Errorf("credentials: delete profile: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDefault makes one profile the default for its tool, clearing the
// previous default in the same transaction.
func (s *Store) SetDefault(ctx context.Context, profileID string) (*CredentialProfile, error) {
	profile, err := s.FindByID(ctx, profileID)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.clearDefaultTx(tx, profile.AccountID, profile.McpQualifiedName); err != nil {
			return err
		}
		return tx.Model(&CredentialProfile{}).
			Where("profile_id = ?", profileID).
			Update("is_default", true).Error
	})
	if err != nil {
		return nil, err
	}

	profile.IsDefault = true
	return profile, nil
}

func (s *Store) clearDefaultTx(tx *gorm.DB, accountID, mcpQualifiedName string) error {
	return tx.Model(&CredentialProfile{}).
		Where("account_id = ? AND mcp_qualified_name = ? AND is_default = ?", accountID, mcpQualifiedName, true).
		Update("is_default", false).Error
}

// McpToolsForAccount exposes the account's active credential profiles as
// agent tools, one per configured MCP server.
func (s *Store) McpToolsForAccount(ctx context.Context, accountID string) ([]agents.Tool, error) {
	profiles, err := s.List(ctx, accountID, "")
	if err != nil {
		return nil, err
	}

	tools := make([]agents.Tool, 0, len(profiles))
	seen := make(map[string]bool, len(profiles))
	for _, profile := range profiles {
		if !profile.IsActive {
			continue
		}
		// One tool per qualified name, preferring the default profile
		// thanks to the list ordering.
		if seen[profile.McpQualifiedName] {
			continue
		}
		seen[profile.McpQualifiedName] = true

		tools = append(tools, agents.Tool{
			Name:        profile.McpQualifiedName,
			DisplayName: profile.DisplayName,
			Description: fmt.Sprintf("MCP server %s (profile %s)", profile.McpQualifiedName, profile.ProfileName),
			Enabled:     true,
			Source:      "mcp",
		})
	}
	return tools, nil
}
