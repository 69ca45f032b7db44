package knowledge

import "time"

const (
	UsageAlways     = "always"
	UsageContextual = "contextual"
	UsageOnRequest  = "on_request"
)

type Folder struct {
	FolderID    string    `gorm:"primaryKey;size:36" json:"folder_id"`
	AccountID   string    `gorm:"size:36;index;not null" json:"account_id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Description *string   `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Folder) TableName() string {
	return "knowledge_folders"
}

type Entry struct {
	EntryID      string    `gorm:"primaryKey;size:36" json:"entry_id"`
	FolderID     string    `gorm:"size:36;index;not null" json:"folder_id"`
	AccountID    string    `gorm:"size:36;index;not null" json:"account_id"`
	Filename     string    `gorm:"size:255;not null" json:"filename"`
	Summary      string    `gorm:"type:text" json:"summary"`
	Content      string    `gorm:"type:text" json:"content"`
	FileURL      *string   `gorm:"size:1024" json:"file_url"`
	FileSize     int64     `json:"file_size"`
	MimeType     string    `gorm:"size:128" json:"mime_type"`
	IsActive     bool      `gorm:"default:true" json:"is_active"`
	UsageContext string    `gorm:"size:32;default:always" json:"usage_context"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Entry) TableName() string {
	return "knowledge_entries"
}

// AgentAssignment binds a knowledge entry to an agent with a per-agent
// enabled flag.
type AgentAssignment struct {
	AgentID   string    `gorm:"primaryKey;size:36" json:"agent_id"`
	EntryID   string    `gorm:"primaryKey;size:36" json:"entry_id"`
	AccountID string    `gorm:"size:36;index;not null" json:"account_id"`
	Enabled   bool      `gorm:"default:true" json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AgentAssignment) TableName() string {
	return "agent_knowledge_assignments"
}
