package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound        = errors.New("agents: agent not found")
	ErrVersionNotFound = errors.New("agents: version not found")
	ErrVersionMismatch = errors.New("agents: version does not belong to this agent")
	ErrNotPublic       = errors.New("agents: agent is not published")
)

// Store provides data access for agents and their versions.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&Agent{}, &AgentVersion{}); err != nil {
		return fmt.Errorf("agents: migrate models: %w", err)
	}
	return nil
}

// CreateParams holds the caller-supplied fields for a new agent.
type CreateParams struct {
	AccountID      string
	Name           string
	Description    *string
	SystemPrompt   string
	Model          string
	IconName       *string
	IconColor      *string
	IconBackground *string
	Tags           []byte
	Config         []byte
}

// Create inserts an agent together with its first version and points the
// current-version reference at it, all in one transaction.
func (s *Store) Create(ctx context.Context, createdBy string, params CreateParams) (*Agent, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, errors.New("agents: name cannot be empty")
	}

	agent := &Agent{
		AgentID:        uuid.NewString(),
		AccountID:      params.AccountID,
		Name:           name,
		Description:    params.Description,
		SystemPrompt:   params.SystemPrompt,
		Model:          params.Model,
		IconName:       params.IconName,
		IconColor:      params.IconColor,
		IconBackground: params.IconBackground,
	}
	if len(params.Tags) > 0 {
		agent.Tags = params.Tags
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(agent).Error; err != nil {
			return fmt.Errorf("agents: create agent: %w", err)
		}

		version := &AgentVersion{
			VersionID:     uuid.NewString(),
			AgentID:       agent.AgentID,
			VersionNumber: 1,
			VersionName:   "v1",
			SystemPrompt:  agent.SystemPrompt,
			Model:         agent.Model,
			IsActive:      true,
			CreatedBy:     createdBy,
		}
		if len(params.Config) > 0 {
			version.Config = params.Config
		}
		if err := tx.Create(version).Error; err != nil {
			return fmt.Errorf("agents: create initial version: %w", err)
		}

		agent.CurrentVersionID = &version.VersionID
		agent.VersionCount = 1
		return tx.Model(&Agent{}).Where("agent_id = ?", agent.AgentID).
			Updates(map[string]interface{}{
				"current_version_id": version.VersionID,
				"version_count":      1,
			}).Error
	})
	if err != nil {
		return nil, err
	}

	return agent, nil
}

func (s *Store) FindByID(ctx context.Context, agentID string) (*Agent, error) {
	var agent Agent
	err := s.db.WithContext(ctx).Where("agent_id = ?", agentID).First(&agent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &agent, nil
}

// ListForAccount returns the account's agents, default agent first.
func (s *Store) ListForAccount(ctx context.Context, accountID string) ([]Agent, error) {
	var results []Agent
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("is_default DESC, created_at ASC").
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("agents: list for account: %w", err)
	}
	return results, nil
}

// ListPublic returns published agents for the marketplace listing, most
// installed first.
func (s *Store) ListPublic(ctx context.Context, search string, limit int) ([]Agent, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := s.db.WithContext(ctx).Where("is_public = ?", true)
	if trimmed := strings.TrimSpace(search); trimmed != "" {
		pattern := "%" + strings.ToLower(trimmed) + "%"
		query = query.Where("LOWER(name) LIKE ?", pattern)
	}

	var results []Agent
	err := query.Order("download_count DESC, created_at DESC").Limit(limit).Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("agents: list public: %w", err)
	}
	return results, nil
}

// UpdateParams holds the mutable agent fields. Prompt/model changes create a
// new version through CreateVersion, not here.
type UpdateParams struct {
	Name           *string
	Description    *string
	IconName       *string
	IconColor      *string
	IconBackground *string
	IsPublic       *bool
	Tags           []byte
}

func (s *Store) Update(ctx context.Context, agentID string, params UpdateParams) (*Agent, error) {
	agent, err := s.FindByID(ctx, agentID)
	if err != nil {
		return nil, err
	}

	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name != "" {
			agent.Name = name
		}
	}
	if params.Description != nil {
		agent.Description = params.Description
	}
	if params.IconName != nil {
		agent.IconName = params.IconName
	}
	if params.IconColor != nil {
		agent.IconColor = params.IconColor
	}
	if params.IconBackground != nil {
		agent.IconBackground = params.IconBackground
	}
	if params.IsPublic != nil {
		agent.IsPublic = *params.IsPublic
	}
	if len(params.Tags) > 0 {
		agent.Tags = params.Tags
	}

	if err := s.db.WithContext(ctx).Save(agent).Error; err != nil {
		return nil, fmt.Errorf("agents: update agent: %w", err)
	}
	return agent, nil
}

// VersionParams holds the fields snapshotted into a new version.
type VersionParams struct {
	SystemPrompt string
	Model        string
	Config       []byte
}

// CreateVersion snapshots a new immutable version, chains it to the previous
// current version and makes it current. Version numbers are dense per agent.
func (s *Store) CreateVersion(ctx context.Context, agentID, createdBy string, params VersionParams) (*AgentVersion, error) {
	var version *AgentVersion
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var agent Agent
		if err := tx.Where("agent_id = ?", agentID).First(&agent).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		version = &AgentVersion{
			VersionID:         uuid.NewString(),
			AgentID:           agent.AgentID,
			VersionNumber:     agent.VersionCount + 1,
			VersionName:       fmt.Sprintf("v%d", agent.VersionCount+1),
			SystemPrompt:      params.SystemPrompt,
			Model:             params.Model,
			IsActive:          true,
			PreviousVersionID: agent.CurrentVersionID,
			CreatedBy:         createdBy,
		}
		if len(params.Config) > 0 {
			version.Config = params.Config
		}
		if err := tx.Create(version).Error; err != nil {
			return fmt.Errorf("agents: create version: %w", err)
		}

		return tx.Model(&Agent{}).Where("agent_id = ?", agent.AgentID).
			Updates(map[string]interface{}{
				"current_version_id": version.VersionID,
				"version_count":      version.VersionNumber,
				"system_prompt":      version.SystemPrompt,
				"model":              version.Model,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

// ActivateVersion points the agent back at an existing version. The weak
// reference is validated here: the version must exist and belong to the
// agent.
func (s *Store) ActivateVersion(ctx context.Context, agentID, versionID string) (*AgentVersion, error) {
	var version AgentVersion
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("version_id = ?", versionID).First(&version).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrVersionNotFound
			}
			return err
		}
		if version.AgentID != agentID {
			return ErrVersionMismatch
		}

		result := tx.Model(&Agent{}).Where("agent_id = ?", agentID).
			Updates(map[string]interface{}{
				"current_version_id": version.VersionID,
				"system_prompt":      version.SystemPrompt,
				"model":              version.Model,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &version, nil
}

// ListVersions returns an agent's versions, newest first.
func (s *Store) ListVersions(ctx context.Context, agentID string) ([]AgentVersion, error) {
	var versions []AgentVersion
	err := s.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("version_number DESC").
		Find(&versions).Error
	if err != nil {
		return nil, fmt.Errorf("agents: list versions: %w", err)
	}
	return versions, nil
}

// SetDefault marks one agent as the account default, clearing any previous
// default in the same transaction.
func (s *Store) SetDefault(ctx context.Context, accountID, agentID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Agent{}).
			Where("account_id = ? AND is_default = ?", accountID, true).
			Update("is_default", false).Error; err != nil {
			return err
		}

		result := tx.Model(&Agent{}).
			Where("agent_id = ? AND account_id = ?", agentID, accountID).
			Update("is_default", true)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Install copies a published agent into the target account and bumps the
// source's download counter.
func (s *Store) Install(ctx context.Context, sourceAgentID, targetAccountID, installedBy string) (*Agent, error) {
	source, err := s.FindByID(ctx, sourceAgentID)
	if err != nil {
		return nil, err
	}
	if !source.IsPublic {
		return nil, ErrNotPublic
	}

	copied, err := s.Create(ctx, installedBy, CreateParams{
		AccountID:      targetAccountID,
		Name:           source.Name,
		Description:    source.Description,
		SystemPrompt:   source.SystemPrompt,
		Model:          source.Model,
		IconName:       source.IconName,
		IconColor:      source.IconColor,
		IconBackground: source.IconBackground,
		Tags:           source.Tags,
	})
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Model(&Agent{}).
		Where("agent_id = ?", sourceAgentID).
		Update("download_count", gorm.Expr("download_count + 1")).Error
	if err != nil {
		return nil, fmt.Errorf("agents: bump download count: %w", err)
	}
	return copied, nil
}

// Delete removes an agent and everything hanging off it.
func (s *Store) Delete(ctx context.Context, agentID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var triggerIDs []string
		if err := tx.Table("agent_triggers").Where("agent_id = ?", agentID).Pluck("trigger_id", &triggerIDs).Error; err != nil {
			return fmt.Errorf("agents: collect triggers: %w", err)
		}
		if len(triggerIDs) > 0 {
			if err := tx.Exec("DELETE FROM trigger_events WHERE trigger_id IN ?", triggerIDs).Error; err != nil {
				return fmt.Errorf("agents: cascade trigger events: %w", err)
			}
		}
		for _, table := range []string{"agent_triggers", "agent_knowledge_assignments"} {
			if err := tx.Exec("DELETE FROM "+table+" WHERE agent_id = ?", agentID).Error; err != nil {
				return fmt.Errorf("agents: cascade %s: %w", table, err)
			}
		}
		if err := tx.Where("agent_id = ?", agentID).Delete(&AgentVersion{}).Error; err != nil {
			return fmt.Errorf("agents: cascade versions: %w", err)
		}

		result := tx.Where("agent_id = ?", agentID).Delete(&Agent{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
