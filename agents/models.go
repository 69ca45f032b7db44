package agents

import (
	"time"

	"gorm.io/datatypes"
)

// Agent is a configurable AI persona owned by an account. The live prompt and
// model mirror the current version so reads never need a join.
type Agent struct {
	AgentID        string         `gorm:"primaryKey;size:36" json:"agent_id"`
	AccountID      string         `gorm:"size:36;not null;index" json:"account_id"`
	Name           string         `gorm:"size:128;not null" json:"name"`
	Description    *string        `gorm:"type:text" json:"description,omitempty"`
	SystemPrompt   string         `gorm:"type:text" json:"system_prompt"`
	Model          string         `gorm:"size:128" json:"model"`
	IconName       *string        `gorm:"size:64" json:"icon_name,omitempty"`
	IconColor      *string        `gorm:"size:16" json:"icon_color,omitempty"`
	IconBackground *string        `gorm:"size:16" json:"icon_background,omitempty"`
	IsDefault      bool           `gorm:"not null;default:false" json:"is_default"`
	IsPublic       bool           `gorm:"not null;default:false;index" json:"is_public"`
	Tags           datatypes.JSON `gorm:"type:json" json:"tags,omitempty"`
	DownloadCount  int64          `gorm:"not null;default:0" json:"download_count"`
	// Weak reference into agent_versions, validated at write time instead of
	// a database foreign key to avoid the creation-order cycle.
	CurrentVersionID *string   `gorm:"size:36" json:"current_version_id,omitempty"`
	VersionCount     int       `gorm:"not null;default:0" json:"version_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (Agent) TableName() string {
	return "agents"
}

// AgentVersion is an immutable snapshot of an agent's prompt and config.
// Versions are numbered per agent and chain through PreviousVersionID.
type AgentVersion struct {
	VersionID         string         `gorm:"primaryKey;size:36" json:"version_id"`
	AgentID           string         `gorm:"size:36;not null;uniqueIndex:idx_agent_version_number" json:"agent_id"`
	VersionNumber     int            `gorm:"not null;uniqueIndex:idx_agent_version_number" json:"version_number"`
	VersionName       string         `gorm:"size:32;not null" json:"version_name"`
	SystemPrompt      string         `gorm:"type:text" json:"system_prompt"`
	Model             string         `gorm:"size:128" json:"model"`
	Config            datatypes.JSON `gorm:"type:json" json:"config,omitempty"`
	IsActive          bool           `gorm:"not null;default:true" json:"is_active"`
	PreviousVersionID *string        `gorm:"size:36" json:"previous_version_id,omitempty"`
	CreatedBy         string         `gorm:"size:36" json:"created_by"`
	CreatedAt         time.Time      `json:"created_at"`
}

func (AgentVersion) TableName() string {
	return "agent_versions"
}
