package credentials

import "time"

// CredentialProfile stores one encrypted MCP server configuration. The
// plaintext config never touches the database: only the AES-256-GCM
// ciphertext and a hash for change detection are persisted.
type CredentialProfile struct {
	ProfileID        string     `gorm:"primaryKey;size:36" json:"profile_id"`
	AccountID        string     `gorm:"size:36;uniqueIndex:idx_account_tool_profile;not null" json:"account_id"`
	McpQualifiedName string     `gorm:"size:255;uniqueIndex:idx_account_tool_profile;not null" json:"mcp_qualified_name"`
	ProfileName      string     `gorm:"size:255;uniqueIndex:idx_account_tool_profile;not null" json:"profile_name"`
	DisplayName      string     `gorm:"size:255" json:"display_name"`
	EncryptedConfig  []byte     `json:"-"`
	ConfigHash       string     `gorm:"size:64" json:"config_hash"`
	IsActive         bool       `gorm:"default:true" json:"is_active"`
	IsDefault        bool       `gorm:"default:false" json:"is_default"`
	LastUsedAt       *time.Time `json:"last_used_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (CredentialProfile) TableName() string {
	return "credential_profiles"
}
