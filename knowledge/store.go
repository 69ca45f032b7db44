package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrFolderNotFound = errors.New("knowledge: folder not found")
	ErrEntryNotFound  = errors.New("knowledge: entry not found")
	ErrInvalidUsage   = errors.New("knowledge: invalid usage context")
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&Folder{}, &Entry{}, &AgentAssignment{}); err != nil {
		return fmt.Errorf("knowledge: migrate models: %w", err)
	}
	return nil
}

func validUsageContext(value string) bool {
	switch value {
	case UsageAlways, UsageContextual, UsageOnRequest:
		return true
	}
	return false
}

func (s *Store) CreateFolder(ctx context.Context, accountID, name string, description *string) (*Folder, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, errors.New("knowledge: folder name cannot be empty")
	}

	folder := &Folder{
		FolderID:    uuid.NewString(),
		AccountID:   accountID,
		Name:        trimmed,
		Description: description,
	}
	if err := s.db.WithContext(ctx).Create(folder).Error; err != nil {
		return nil, fmt.Errorf("knowledge: create folder: %w", err)
	}
	return folder, nil
}

func (s *Store) FindFolder(ctx context.Context, folderID string) (*Folder, error) {
	var folder Folder
	err := s.db.WithContext(ctx).Where("folder_id = ?", folderID).First(&folder).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFolderNotFound
		}
		return nil, err
	}
	return &folder, nil
}

func (s *Store) ListFolders(ctx context.Context, accountID string) ([]Folder, error) {
	var folders []Folder
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC").
		Find(&folders).Error
	if err != nil {
		return nil, fmt.Errorf("knowledge: list folders: %w", err)
	}
	return folders, nil
}

// DeleteFolder removes a folder with its entries and their agent
// assignments.
func (s *Store) DeleteFolder(ctx context.Context, folderID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entryIDs []string
		if err := tx.Model(&Entry{}).Where("folder_id = ?", folderID).Pluck("entry_id", &entryIDs).Error; err != nil {
			return fmt.Errorf("knowledge: collect folder entries: %w", err)
		}
		if len(entryIDs) > 0 {
			if err := tx.Where("entry_id IN ?", entryIDs).Delete(&AgentAssignment{}).Error; err != nil {
				return fmt.Errorf("knowledge: cascade assignments: %w", err)
			}
			if err := tx.Where("folder_id = ?", folderID).Delete(&Entry{}).Error; err != nil {
				return fmt.Errorf("knowledge: cascade entries: %w", err)
			}
		}

		result := tx.Where("folder_id = ?", folderID).Delete(&Folder{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrFolderNotFound
		}
		return nil
	})
}

// EntryParams holds the fields for a new knowledge entry.
type EntryParams struct {
	FolderID     string
	AccountID    string
	Filename     string
	Summary      string
	Content      string
	FileURL      *string
	FileSize     int64
	MimeType     string
	UsageContext string
}

func (s *Store) CreateEntry(ctx context.Context, params EntryParams) (*Entry, error) {
	usage := params.UsageContext
	if usage == "" {
		usage = UsageAlways
	}
	if !validUsageContext(usage) {
		return nil, ErrInvalidUsage
	}

	entry := &Entry{
		EntryID:      uuid.NewString(),
		FolderID:     params.FolderID,
		AccountID:    params.AccountID,
		Filename:     params.Filename,
		Summary:      params.Summary,
		Content:      params.Content,
		FileURL:      params.FileURL,
		FileSize:     params.FileSize,
		MimeType:     params.MimeType,
		IsActive:     true,
		UsageContext: usage,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("knowledge: create entry: %w", err)
	}
	return entry, nil
}

func (s *Store) FindEntry(ctx context.Context, entryID string) (*Entry, error) {
	var entry Entry
	err := s.db.WithContext(ctx).Where("entry_id = ?", entryID).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (s *Store) ListEntries(ctx context.Context, folderID string) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Where("folder_id = ?", folderID).
		Order("created_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("knowledge: list entries: %w", err)
	}
	return entries, nil
}

// UpdateEntryParams holds the mutable entry fields.
type UpdateEntryParams struct {
	Filename     *string
	Summary      *string
	Content      *string
	IsActive     *bool
	UsageContext *string
}

func (s *Store) UpdateEntry(ctx context.Context, entryID string, params UpdateEntryParams) (*Entry, error) {
	entry, err := s.FindEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	if params.Filename != nil && strings.TrimSpace(*params.Filename) != "" {
		entry.Filename = strings.TrimSpace(*params.Filename)
	}
	if params.Summary != nil {
		entry.Summary = *params.Summary
	}
	if params.Content != nil {
		entry.Content = *params.Content
		entry.FileSize = int64(len(*params.Content))
	}
	if params.IsActive != nil {
		entry.IsActive = *params.IsActive
	}
	if params.UsageContext != nil {
		if !validUsageContext(*params.UsageContext) {
			return nil, ErrInvalidUsage
		}
		entry.UsageContext = *params.UsageContext
	}

	if err := s.db.WithContext(ctx).Save(entry).Error; err != nil {
		return nil, fmt.Errorf("knowledge: update entry: %w", err)
	}
	return entry, nil
}

func (s *Store) DeleteEntry(ctx context.Context, entryID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("entry_id = ?", entryID).Delete(&AgentAssignment{}).Error; err != nil {
			return fmt.Errorf("knowledge: cascade assignments: %w", err)
		}

		result := tx.Where("entry_id = ?", entryID).Delete(&Entry{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrEntryNotFound
		}
		return nil
	})
}

// AssignToAgent upserts an entry assignment for an agent.
func (s *Store) AssignToAgent(ctx context.Context, agentID, entryID, accountID string, enabled bool) (*AgentAssignment, error) {
	assignment := &AgentAssignment{
		AgentID:   agentID,
		EntryID:   entryID,
		AccountID: accountID,
		Enabled:   enabled,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "agent_id"}, {Name: "entry_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled"}),
	}).Create(assignment).Error
	if err != nil {
		return nil, fmt.Errorf("knowledge: assign entry: %w", err)
	}
	return assignment, nil
}

func (s *Store) UnassignFromAgent(ctx context.Context, agentID, entryID string) error {
	result := s.db.WithContext(ctx).
		Where("agent_id = ? AND entry_id = ?", agentID, entryID).
		Delete(&AgentAssignment{})
	if result.Error != nil {
		return fmt.Errorf("knowledge: unassign entry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (s *Store) ListAssignments(ctx context.Context, agentID string) ([]AgentAssignment, error) {
	var assignments []AgentAssignment
	err := s.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Find(&assignments).Error
	if err != nil {
		return nil, fmt.Errorf("knowledge: list assignments: %w", err)
	}
	return assignments, nil
}

// contextEntries returns the entries eligible for an agent's prompt
// context: assigned, enabled, active, and not restricted to on_request
// usage. Newest entries first.
func (s *Store) contextEntries(ctx context.Context, agentID string) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Joins("JOIN agent_knowledge_assignments a ON a.entry_id = knowledge_entries.entry_id").
		Where("a.agent_id = ? AND a.enabled = ?", agentID, true).
		Where("knowledge_entries.is_active = ?", true).
		Where("knowledge_entries.usage_context IN ?", []string{UsageAlways, UsageContextual}).
		Order("knowledge_entries.created_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("knowledge: load context entries: %w", err)
	}
	return entries, nil
}
