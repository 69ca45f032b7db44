package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusOpen     = "open"
	StatusReviewed = "reviewed"
	StatusResolved = "resolved"
)

var (
	ErrNotFound      = errors.New("feedback: feedback not found")
	ErrInvalidStatus = errors.New("feedback: invalid status")
)

type Feedback struct {
	FeedbackID string         `gorm:"primaryKey;size:36" json:"feedback_id"`
	AccountID  string         `gorm:"size:36;index;not null" json:"account_id"`
	UserID     string         `gorm:"size:36;index;not null" json:"user_id"`
	Category   string         `gorm:"size:64;not null" json:"category"`
	Message    string         `gorm:"type:text;not null" json:"message"`
	Rating     *int           `json:"rating"`
	Metadata   datatypes.JSON `json:"metadata"`
	Status     string         `gorm:"size:16;default:open" json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func (Feedback) TableName() string {
	return "feedback"
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&Feedback{}); err != nil {
		return fmt.Errorf("feedback: migrate models: %w", err)
	}
	return nil
}

// CreateParams holds one feedback submission.
type CreateParams struct {
	AccountID string
	UserID    string
	Category  string
	Message   string
	Rating    *int
	Metadata  []byte
}

func (s *Store) Create(ctx context.Context, params CreateParams) (*Feedback, error) {
	message := strings.TrimSpace(params.Message)
	if message == "" {
		return nil, errors.New("feedback: message cannot be empty")
	}

	entry := &Feedback{
		FeedbackID: uuid.NewString(),
		AccountID:  params.AccountID,
		UserID:     params.UserID,
		Category:   params.Category,
		Message:    message,
		Rating:     params.Rating,
		Status:     StatusOpen,
	}
	if len(params.Metadata) > 0 {
		entry.Metadata = params.Metadata
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("feedback: create feedback: %w", err)
	}
	return entry, nil
}

// List returns feedback newest first, optionally filtered by account and
// status. Admin callers pass an empty accountID to see everything.
func (s *Store) List(ctx context.Context, accountID, status string, limit int) ([]Feedback, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := s.db.WithContext(ctx).Model(&Feedback{})
	if accountID != "" {
		query = query.Where("account_id = ?", accountID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var results []Feedback
	err := query.Order("created_at DESC").Limit(limit).Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("feedback: list feedback: %w", err)
	}
	return results, nil
}

// UpdateStatus moves a feedback item through the review workflow. The
// updated_at stamp is maintained explicitly alongside the status.
func (s *Store) UpdateStatus(ctx context.Context, feedbackID, status string) (*Feedback, error) {
	switch status {
	case StatusOpen, StatusReviewed, StatusResolved:
	default:
		return nil, ErrInvalidStatus
	}

	result := s.db.WithContext(ctx).Model(&Feedback{}).
		Where("feedback_id = ?", feedbackID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("feedback: update status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}

	var entry Feedback
	if err := s.db.WithContext(ctx).Where("feedback_id = ?", feedbackID).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}
