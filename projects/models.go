package projects

import (
	"time"

	"gorm.io/datatypes"
)

// Project is the workspace container threads hang off. Sandbox metadata is an
// opaque blob owned by the external agent backend.
type Project struct {
	ProjectID   string         `gorm:"primaryKey;size:36" json:"project_id"`
	AccountID   string         `gorm:"size:36;not null;index" json:"account_id"`
	Name        string         `gorm:"size:200;not null" json:"name"`
	Description *string        `gorm:"type:text" json:"description,omitempty"`
	IsPublic    bool           `gorm:"not null;default:false" json:"is_public"`
	Sandbox     datatypes.JSON `gorm:"type:json" json:"sandbox,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (Project) TableName() string {
	return "projects"
}
