package triggers

import (
	"time"

	"gorm.io/datatypes"
)

const (
	TypeWebhook  = "webhook"
	TypeSchedule = "schedule"
	TypeEvent    = "event"
)

const (
	EventStatusPending = "pending"
	EventStatusSuccess = "success"
	EventStatusFailed  = "failed"
)

type AgentTrigger struct {
	TriggerID     string         `gorm:"primaryKey;size:36" json:"trigger_id"`
	AgentID       string         `gorm:"size:36;index;not null" json:"agent_id"`
	AccountID     string         `gorm:"size:36;index;not null" json:"account_id"`
	TriggerType   string         `gorm:"size:16;not null" json:"trigger_type"`
	ProviderID    string         `gorm:"size:64" json:"provider_id"`
	Name          string         `gorm:"size:255;not null" json:"name"`
	Description   *string        `gorm:"type:text" json:"description"`
	Config        datatypes.JSON `json:"config"`
	IsActive      bool           `gorm:"default:true" json:"is_active"`
	WebhookSecret string         `gorm:"size:64" json:"-"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (AgentTrigger) TableName() string {
	return "agent_triggers"
}

type TriggerEvent struct {
	EventID    string         `gorm:"primaryKey;size:36" json:"event_id"`
	TriggerID  string         `gorm:"size:36;index;not null" json:"trigger_id"`
	AgentID    string         `gorm:"size:36;index;not null" json:"agent_id"`
	ThreadID   *string        `gorm:"size:36" json:"thread_id"`
	Status     string         `gorm:"size:16;default:pending" json:"status"`
	Payload    datatypes.JSON `json:"payload"`
	Error      *string        `gorm:"type:text" json:"error"`
	DurationMs int64          `json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func (TriggerEvent) TableName() string {
	return "trigger_events"
}

// OAuthInstallation records one provider integration for an account. The
// access token is stored encrypted.
type OAuthInstallation struct {
	InstallationID       string         `gorm:"primaryKey;size:36" json:"installation_id"`
	AccountID            string         `gorm:"size:36;index;not null" json:"account_id"`
	Provider             string         `gorm:"size:64;not null" json:"provider"`
	TriggerID            *string        `gorm:"size:36" json:"trigger_id"`
	EncryptedAccessToken []byte         `json:"-"`
	Metadata             datatypes.JSON `json:"metadata"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

func (OAuthInstallation) TableName() string {
	return "oauth_installations"
}

// Provider is one entry of the static integration catalog served by
// GET /triggers/providers.
type Provider struct {
	ProviderID    string `json:"provider_id"`
	Name          string `json:"name"`
	TriggerType   string `json:"trigger_type"`
	Description   string `json:"description"`
	RequiresOAuth bool   `json:"requires_oauth"`
}
