package triggers

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"aurora_back/credentials"
)

var (
	ErrNotFound        = errors.New("triggers: trigger not found")
	ErrUnknownProvider = errors.New("triggers: unknown provider")
	ErrBadSecret       = errors.New("triggers: webhook secret mismatch")
)

type Store struct {
	db  *gorm.DB
	box *credentials.CipherBox
}

func NewStore(db *gorm.DB, box *credentials.CipherBox) *Store {
	return &Store{db: db, box: box}
}

func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&AgentTrigger{}, &TriggerEvent{}, &OAuthInstallation{}); err != nil {
		return fmt.Errorf("triggers: migrate models: %w", err)
	}
	return nil
}

func newWebhookSecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("triggers: generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// CreateParams holds one new agent trigger.
type CreateParams struct {
	AgentID     string
	AccountID   string
	TriggerType string
	ProviderID  string
	Name        string
	Description *string
	Config      []byte
}

func (s *Store) Create(ctx context.Context, params CreateParams) (*AgentTrigger, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, errors.New("triggers: name cannot be empty")
	}

	provider, ok := findProvider(params.ProviderID)
	if !ok {
		return nil, ErrUnknownProvider
	}
	triggerType := params.TriggerType
	if triggerType == "" {
		triggerType = provider.TriggerType
	}

	secret, err := newWebhookSecret()
	if err != nil {
		return nil, err
	}

	trigger := &AgentTrigger{
		TriggerID:     uuid.NewString(),
		AgentID:       params.AgentID,
		AccountID:     params.AccountID,
		TriggerType:   triggerType,
		ProviderID:    provider.ProviderID,
		Name:          name,
		Description:   params.Description,
		IsActive:      true,
		WebhookSecret: secret,
	}
	if len(params.Config) > 0 {
		trigger.Config = params.Config
	}
	if err := s.db.WithContext(ctx).Create(trigger).Error; err != nil {
		return nil, fmt.Errorf("triggers: create trigger: %w", err)
	}
	return trigger, nil
}

func (s *Store) FindByID(ctx context.Context, triggerID string) (*AgentTrigger, error) {
	var trigger AgentTrigger
	err := s.db.WithContext(ctx).Where("trigger_id = ?", triggerID).First(&trigger).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &trigger, nil
}

func (s *Store) ListForAgent(ctx context.Context, agentID string) ([]AgentTrigger, error) {
	var results []AgentTrigger
	err := s.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("created_at ASC").
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("triggers: list triggers: %w", err)
	}
	return results, nil
}

// UpdateParams holds the mutable trigger fields.
type UpdateParams struct {
	Name        *string
	Description *string
	Config      []byte
	IsActive    *bool
}

func (s *Store) Update(ctx context.Context, triggerID string, params UpdateParams) (*AgentTrigger, error) {
	trigger, err := s.FindByID(ctx, triggerID)
	if err != nil {
		return nil, err
	}

	if params.Name != nil && strings.TrimSpace(*params.Name) != "" {
		trigger.Name = strings.TrimSpace(*params.Name)
	}
	if params.Description != nil {
		trigger.Description = params.Description
	}
	if len(params.Config) > 0 {
		trigger.Config = params.Config
	}
	if params.IsActive != nil {
		trigger.IsActive = *params.IsActive
	}

	if err := s.db.WithContext(ctx).Save(trigger).Error; err != nil {
		return nil, fmt.Errorf("triggers: update trigger: %w", err)
	}
	return trigger, nil
}

func (s *Store) Delete(ctx context.Context, triggerID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("trigger_id = ?", triggerID).Delete(&TriggerEvent{}).Error; err != nil {
			return fmt.Errorf("triggers: cascade events: %w", err)
		}

		result := tx.Where("trigger_id = ?", triggerID).Delete(&AgentTrigger{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// VerifySecret compares a presented webhook secret in constant time.
func (s *Store) VerifySecret(trigger *AgentTrigger, presented string) error {
	if subtle.ConstantTimeCompare([]byte(trigger.WebhookSecret), []byte(presented)) != 1 {
		return ErrBadSecret
	}
	return nil
}

// RecordEvent logs one trigger firing.
func (s *Store) RecordEvent(ctx context.Context, trigger *AgentTrigger, threadID *string, status string, payload []byte, fireErr *string, duration time.Duration) (*TriggerEvent, error) {
	event := &TriggerEvent{
		EventID:    uuid.NewString(),
		TriggerID:  trigger.TriggerID,
		AgentID:    trigger.AgentID,
		ThreadID:   threadID,
		Status:     status,
		Error:      fireErr,
		DurationMs: duration.Milliseconds(),
	}
	if len(payload) > 0 {
		event.Payload = payload
	}
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return nil, fmt.Errorf("triggers: record event: %w", err)
	}
	return event, nil
}

func (s *Store) ListEvents(ctx context.Context, triggerID string, limit int) ([]TriggerEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var events []TriggerEvent
	err := s.db.WithContext(ctx).
		Where("trigger_id = ?", triggerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("triggers: list events: %w", err)
	}
	return events, nil
}

// InstallParams holds one OAuth integration install.
type InstallParams struct {
	AccountID   string
	Provider    string
	TriggerID   *string
	AccessToken string
	Metadata    []byte
}

// Install stores an OAuth integration with its access token encrypted.
func (s *Store) Install(ctx context.Context, params InstallParams) (*OAuthInstallation, error) {
	if _, ok := findProvider(params.Provider); !ok {
		return nil, ErrUnknownProvider
	}

	sealed, err := s.box.Seal([]byte(params.AccessToken))
	if err != nil {
		return nil, err
	}

	installation := &OAuthInstallation{
		InstallationID:       uuid.NewString(),
		AccountID:            params.AccountID,
		Provider:             params.Provider,
		TriggerID:            params.TriggerID,
		EncryptedAccessToken: sealed,
	}
	if len(params.Metadata) > 0 {
		installation.Metadata = params.Metadata
	}
	if err := s.db.WithContext(ctx).Create(installation).Error; err != nil {
		return nil, fmt.Errorf("triggers: create installation: %w", err)
	}
	return installation, nil
}

// Uninstall removes the installations bound to a trigger, then the
// trigger itself.
func (s *Store) Uninstall(ctx context.Context, triggerID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("trigger_id = ?", triggerID).Delete(&OAuthInstallation{}).Error; err != nil {
			return fmt.Errorf("triggers: remove installations: %w", err)
		}
		if err := tx.Where("trigger_id = ?", triggerID).Delete(&TriggerEvent{}).Error; err != nil {
			return fmt.Errorf("triggers: cascade events: %w", err)
		}

		result := tx.Where("trigger_id = ?", triggerID).Delete(&AgentTrigger{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *Store) ListInstallations(ctx context.Context, accountID string) ([]OAuthInstallation, error) {
	var installations []OAuthInstallation
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC").
		Find(&installations).Error
	if err != nil {
		return nil, fmt.Errorf("triggers: list installations: %w", err)
	}
	return installations, nil
}
