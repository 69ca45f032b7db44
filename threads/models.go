package threads

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusPending = "pending"
	StatusReady   = "ready"
	StatusFailed  = "failed"
)

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusStopped   = "stopped"
)

type Thread struct {
	ThreadID                  string         `gorm:"primaryKey;size:36" json:"thread_id"`
	AccountID                 string         `gorm:"size:36;index;not null" json:"account_id"`
	ProjectID                 *string        `gorm:"size:36;index" json:"project_id"`
	AgentID                   *string        `gorm:"size:36;index" json:"agent_id"`
	Status                    string         `gorm:"size:16;default:pending" json:"status"`
	InitializationStartedAt   *time.Time     `json:"initialization_started_at"`
	InitializationCompletedAt *time.Time     `json:"initialization_completed_at"`
	InitializationError       *string        `gorm:"type:text" json:"initialization_error"`
	MemoryEnabled             bool           `gorm:"default:true" json:"memory_enabled"`
	Metadata                  datatypes.JSON `json:"metadata"`
	CreatedAt                 time.Time      `json:"created_at"`
	UpdatedAt                 time.Time      `json:"updated_at"`
}

func (Thread) TableName() string {
	return "threads"
}

// Message is one row in a thread transcript. Role is nullable because
// status and system rows carry no role.
type Message struct {
	MessageID    string         `gorm:"primaryKey;size:36" json:"message_id"`
	ThreadID     string         `gorm:"size:36;index;not null" json:"thread_id"`
	Role         *string        `gorm:"size:32" json:"role"`
	Type         string         `gorm:"size:32;not null" json:"type"`
	Content      datatypes.JSON `json:"content"`
	Metadata     datatypes.JSON `json:"metadata"`
	IsLLMMessage bool           `gorm:"column:is_llm_message;default:false" json:"is_llm_message"`
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (Message) TableName() string {
	return "messages"
}

type ToolCall struct {
	ToolCallID string         `gorm:"primaryKey;size:36" json:"tool_call_id"`
	ThreadID   string         `gorm:"size:36;index;not null" json:"thread_id"`
	MessageID  string         `gorm:"size:36;index" json:"message_id"`
	ToolName   string         `gorm:"size:128;not null" json:"tool_name"`
	Arguments  datatypes.JSON `json:"arguments"`
	Result     datatypes.JSON `json:"result"`
	Status     string         `gorm:"size:16;default:pending" json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func (ToolCall) TableName() string {
	return "tool_calls"
}

type AgentRun struct {
	AgentRunID     string         `gorm:"primaryKey;size:36" json:"agent_run_id"`
	ThreadID       string         `gorm:"size:36;index;not null" json:"thread_id"`
	AgentID        *string        `gorm:"size:36;index" json:"agent_id"`
	AgentVersionID *string        `gorm:"size:36" json:"agent_version_id"`
	Status         string         `gorm:"size:16;default:running" json:"status"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at"`
	Error          *string        `gorm:"type:text" json:"error"`
	Metadata       datatypes.JSON `json:"metadata"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (AgentRun) TableName() string {
	return "agent_runs"
}
