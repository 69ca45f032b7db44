package authorization

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// User is the identity anchor for all ownership. Its id doubles as the id of
// the user's personal account.
type User struct {
	ID           string  `gorm:"primaryKey;size:36"`
	Email        string  `gorm:"uniqueIndex;size:255;not null"`
	Username     string  `gorm:"size:128;not null;default:''"`
	PasswordHash string  `gorm:"size:255;not null"`
	IsActive     bool    `gorm:"not null;default:true"`
	IsAdmin      bool    `gorm:"not null;default:false"`
	AvatarURL    *string `gorm:"size:255"`
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (User) TableName() string {
	return "users"
}

// UserStore provides data access helpers backed by GORM.
type UserStore struct {
	db *gorm.DB
}

// UpdateProfileParams holds the fields eligible for profile updates.
type UpdateProfileParams struct {
	Username  *string
	AvatarURL *string
}

// FindByID loads a user by primary key.
func (s *UserStore) FindByID(ctx context.Context, id string) (*User, error) {
	if s == nil {
		return nil, errors.New("authorization: user store not initialized")
	}
	var user User
	result := s.db.WithContext(ctx).Where("id = ?", id).First(&user)
	if result.Error != nil {
		return nil, result.Error
	}
	return &user, nil
}

// FindByEmail loads a user by unique email.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	result := s.db.WithContext(ctx).Where("email = ?", email).First(&user)
	if result.Error != nil {
		return nil, result.Error
	}
	return &user, nil
}

// TouchLastLogin records a successful login.
func (s *UserStore) TouchLastLogin(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		Update("last_login_at", now).Error
}

// List returns users ordered by creation, newest first.
func (s *UserStore) List(ctx context.Context, limit, offset int) ([]User, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []User
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&users).Error
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// SetActive flips the active flag. Deactivated users cannot log in; existing
// tokens keep working until they expire.
func (s *UserStore) SetActive(ctx context.Context, userID string, active bool) error {
	result := s.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		Update("is_active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateProfile persists profile related fields for the given user id.
func (s *UserStore) UpdateProfile(ctx context.Context, userID string, params UpdateProfileParams) (*User, error) {
	if s == nil {
		return nil, errors.New("authorization: user store not initialized")
	}

	updates := make(map[string]interface{})

	if params.Username != nil {
		name := strings.TrimSpace(*params.Username)
		if name == "" {
			return nil, ErrInvalidUsername
		}
		updates["username"] = name
	}

	if params.AvatarURL != nil {
		avatar := strings.TrimSpace(*params.AvatarURL)
		if avatar == "" {
			updates["avatar_url"] = nil
		} else {
			updates["avatar_url"] = avatar
		}
	}

	if len(updates) == 0 {
		return s.FindByID(ctx, userID)
	}

	updates["updated_at"] = time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	return s.FindByID(ctx, userID)
}

func jsonUnmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// restoreRequestBody puts a consumed body back so the JWT login handler can
// bind it again.
func restoreRequestBody(c *gin.Context, body []byte) {
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
}
