package memory

import (
	"time"

	"gorm.io/datatypes"
)

const (
	TypeFact                = "fact"
	TypeEvent               = "event"
	TypePreference          = "preference"
	TypeSkill               = "skill"
	TypeRelationship        = "relationship"
	TypeContext             = "context"
	TypeConversationSummary = "conversation_summary"
)

// ValidTypes lists every accepted memory_type value.
var ValidTypes = []string{
	TypeFact, TypeEvent, TypePreference, TypeSkill,
	TypeRelationship, TypeContext, TypeConversationSummary,
}

const (
	QueueStatusPending    = "pending"
	QueueStatusProcessing = "processing"
	QueueStatusCompleted  = "completed"
	QueueStatusFailed     = "failed"
)

type UserMemory struct {
	MemoryID       string         `gorm:"primaryKey;size:36" json:"memory_id"`
	AccountID      string         `gorm:"size:36;index;not null" json:"account_id"`
	MemoryType     string         `gorm:"size:32;index;not null" json:"memory_type"`
	Content        string         `gorm:"type:text;not null" json:"content"`
	Confidence     float64        `gorm:"default:1" json:"confidence"`
	SourceThreadID *string        `gorm:"size:36;index" json:"source_thread_id"`
	Metadata       datatypes.JSON `json:"metadata"`
	IsActive       bool           `gorm:"default:true" json:"is_active"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (UserMemory) TableName() string {
	return "user_memories"
}

type QueueItem struct {
	QueueID    string         `gorm:"primaryKey;size:36" json:"queue_id"`
	AccountID  string         `gorm:"size:36;index;not null" json:"account_id"`
	ThreadID   string         `gorm:"size:36;index;not null" json:"thread_id"`
	MessageIDs datatypes.JSON `json:"message_ids"`
	Status     string         `gorm:"size:16;index;default:pending" json:"status"`
	Priority   int            `gorm:"default:0" json:"priority"`
	ClaimedAt  *time.Time     `json:"claimed_at"`
	Error      *string        `gorm:"type:text" json:"error"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func (QueueItem) TableName() string {
	return "memory_extraction_queue"
}

// Stats is the reportable breakdown returned by GetMemoryStats: the total
// spans every memory type, the buckets cover the four reportable ones.
type Stats struct {
	Total                 int64 `json:"total_memories"`
	Facts                 int64 `json:"facts"`
	Preferences           int64 `json:"preferences"`
	Context               int64 `json:"context"`
	ConversationSummaries int64 `json:"conversation_summaries"`
}
