package accounts

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Membership roles. The primary owner always holds RoleOwner; additional
// owners may be promoted later.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// Account is the workspace/billing boundary. A personal account shares its
// primary key with its user and never carries a slug; a team account always
// does. The invariant is checked in BeforeSave.
type Account struct {
	ID                 string         `gorm:"primaryKey;size:36" json:"id"`
	PrimaryOwnerUserID string         `gorm:"size:36;not null;index" json:"primary_owner_user_id"`
	Name               string         `gorm:"size:128;not null" json:"name"`
	Slug               *string        `gorm:"size:128;uniqueIndex" json:"slug,omitempty"`
	PersonalAccount    bool           `gorm:"not null;default:false" json:"personal_account"`
	PublicMetadata     datatypes.JSON `gorm:"type:json" json:"public_metadata,omitempty"`
	PrivateMetadata    datatypes.JSON `gorm:"type:json" json:"-"`
	MemoryEnabled      bool           `gorm:"not null;default:true" json:"memory_enabled"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

// BeforeSave normalizes the slug and rejects rows violating the
// personal-account/slug invariant before they reach the database.
func (a *Account) BeforeSave(_ *gorm.DB) error {
	if a.Slug != nil {
		normalized := Slugify(*a.Slug)
		if normalized == "" {
			a.Slug = nil
		} else {
			a.Slug = &normalized
		}
	}

	if a.PersonalAccount && a.Slug != nil {
		return ErrPersonalAccountSlug
	}
	if !a.PersonalAccount && a.Slug == nil {
		return ErrTeamAccountNeedsSlug
	}
	return nil
}

// AccountUser links users to the accounts they belong to.
type AccountUser struct {
	UserID    string    `gorm:"primaryKey;size:36" json:"user_id"`
	AccountID string    `gorm:"primaryKey;size:36" json:"account_id"`
	Role      string    `gorm:"size:16;not null;default:'member'" json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (AccountUser) TableName() string {
	return "account_user"
}
