package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound       = errors.New("memory: memory not found")
	ErrQueueNotFound  = errors.New("memory: queue item not found")
	ErrAlreadyClaimed = errors.New("memory: queue item already claimed")
	ErrInvalidType    = errors.New("memory: invalid memory type")
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&UserMemory{}, &QueueItem{}); err != nil {
		return fmt.Errorf("memory: migrate models: %w", err)
	}
	return nil
}

func validType(memoryType string) bool {
	for _, t := range ValidTypes {
		if t == memoryType {
			return true
		}
	}
	return false
}

// AddParams holds one memory to store.
type AddParams struct {
	AccountID      string
	MemoryType     string
	Content        string
	Confidence     float64
	SourceThreadID *string
	Metadata       []byte
}

func (s *Store) Add(ctx context.Context, params AddParams) (*UserMemory, error) {
	if !validType(params.MemoryType) {
		return nil, ErrInvalidType
	}
	content := strings.TrimSpace(params.Content)
	if content == "" {
		return nil, errors.New("memory: content cannot be empty")
	}

	confidence := params.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = 1
	}

	memory := &UserMemory{
		MemoryID:       uuid.NewString(),
		AccountID:      params.AccountID,
		MemoryType:     params.MemoryType,
		Content:        content,
		Confidence:     confidence,
		SourceThreadID: params.SourceThreadID,
		IsActive:       true,
	}
	if len(params.Metadata) > 0 {
		memory.Metadata = params.Metadata
	}
	if err := s.db.WithContext(ctx).Create(memory).Error; err != nil {
		return nil, fmt.Errorf("memory: add memory: %w", err)
	}
	return memory, nil
}

// List returns active memories for an account, optionally filtered by type
// or a content search term, newest first.
func (s *Store) List(ctx context.Context, accountID, memoryType, search string, limit int) ([]UserMemory, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := s.db.WithContext(ctx).
		Where("account_id = ? AND is_active = ?", accountID, true)
	if memoryType != "" {
		query = query.Where("memory_type = ?", memoryType)
	}
	if trimmed := strings.TrimSpace(search); trimmed != "" {
		query = query.Where("LOWER(content) LIKE ?", "%"+strings.ToLower(trimmed)+"%")
	}

	var results []UserMemory
	err := query.Order("created_at DESC").Limit(limit).Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("memory: list memories: %w", err)
	}
	return results, nil
}

// Deactivate soft-hides a memory without deleting it.
func (s *Store) Deactivate(ctx context.Context, accountID, memoryID string) error {
	result := s.db.WithContext(ctx).Model(&UserMemory{}).
		Where("memory_id = ? AND account_id = ?", memoryID, accountID).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("memory: deactivate memory: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, accountID, memoryID string) error {
	result := s.db.WithContext(ctx).
		Where("memory_id = ? AND account_id = ?", memoryID, accountID).
		Delete(&UserMemory{})
	if result.Error != nil {
		return fmt.Errorf("memory: delete memory: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetStats counts the account's active memories: the grand total plus the
// four reportable buckets.
func (s *Store) GetStats(ctx context.Context, accountID string) (*Stats, error) {
	stats := &Stats{}
	base := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&UserMemory{}).
			Where("account_id = ? AND is_active = ?", accountID, true)
	}

	if err := base().Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("memory: count memories: %w", err)
	}

	buckets := []struct {
		memoryType string
		target     *int64
	}{
		{TypeFact, &stats.Facts},
		{TypePreference, &stats.Preferences},
		{TypeContext, &stats.Context},
		{TypeConversationSummary, &stats.ConversationSummaries},
	}
	for _, bucket := range buckets {
		if err := base().Where("memory_type = ?", bucket.memoryType).Count(bucket.target).Error; err != nil {
			return nil, fmt.Errorf("memory: count %s memories: %w", bucket.memoryType, err)
		}
	}
	return stats, nil
}

// Enqueue schedules a thread's messages for extraction.
func (s *Store) Enqueue(ctx context.Context, accountID, threadID string, messageIDs []byte, priority int) (*QueueItem, error) {
	item := &QueueItem{
		QueueID:   uuid.NewString(),
		AccountID: accountID,
		ThreadID:  threadID,
		Status:    QueueStatusPending,
		Priority:  priority,
	}
	if len(messageIDs) > 0 {
		item.MessageIDs = messageIDs
	}
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, fmt.Errorf("memory: enqueue extraction: %w", err)
	}
	return item, nil
}

// Claim takes ownership of one pending queue item. The conditional update
// is the whole protocol: whichever worker flips pending to processing owns
// the item, the loser sees zero rows affected.
func (s *Store) Claim(ctx context.Context, queueID string) (*QueueItem, error) {
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&QueueItem{}).
		Where("queue_id = ? AND status = ?", queueID, QueueStatusPending).
		Updates(map[string]interface{}{
			"status":     QueueStatusProcessing,
			"claimed_at": now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("memory: claim queue item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var item QueueItem
		err := s.db.WithContext(ctx).Where("queue_id = ?", queueID).First(&item).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQueueNotFound
		}
		if err != nil {
			return nil, err
		}
		return nil, ErrAlreadyClaimed
	}

	var item QueueItem
	if err := s.db.WithContext(ctx).Where("queue_id = ?", queueID).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// NextPending returns the oldest highest-priority pending items for the
// worker to attempt claiming.
func (s *Store) NextPending(ctx context.Context, limit int) ([]QueueItem, error) {
	if limit <= 0 {
		limit = 10
	}
	var items []QueueItem
	err := s.db.WithContext(ctx).
		Where("status = ?", QueueStatusPending).
		Order("priority DESC, created_at ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("memory: list pending queue: %w", err)
	}
	return items, nil
}

// MarkCompleted finishes a processing item.
func (s *Store) MarkCompleted(ctx context.Context, queueID string) error {
	return s.finishQueueItem(ctx, queueID, QueueStatusCompleted, nil)
}

// MarkFailed finishes a processing item with an error.
func (s *Store) MarkFailed(ctx context.Context, queueID, reason string) error {
	return s.finishQueueItem(ctx, queueID, QueueStatusFailed, &reason)
}

func (s *Store) finishQueueItem(ctx context.Context, queueID, status string, reason *string) error {
	updates := map[string]interface{}{"status": status}
	if reason != nil {
		updates["error"] = *reason
	}
	result := s.db.WithContext(ctx).Model(&QueueItem{}).
		Where("queue_id = ? AND status = ?", queueID, QueueStatusProcessing).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("memory: finish queue item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrQueueNotFound
	}
	return nil
}

func (s *Store) ListQueue(ctx context.Context, accountID string) ([]QueueItem, error) {
	var items []QueueItem
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(100).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("memory: list queue: %w", err)
	}
	return items, nil
}
