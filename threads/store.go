package threads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("threads: thread not found")
	ErrRunNotFound       = errors.New("threads: agent run not found")
	ErrInvalidTransition = errors.New("threads: invalid status transition")
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&Thread{}, &Message{}, &ToolCall{}, &AgentRun{}); err != nil {
		return fmt.Errorf("threads: migrate models: %w", err)
	}
	return nil
}

// CreateParams holds the fields for a new thread. Threads start pending and
// become ready or failed exactly once.
type CreateParams struct {
	AccountID     string
	ProjectID     *string
	AgentID       *string
	MemoryEnabled bool
	Metadata      []byte
}

func (s *Store) Create(ctx context.Context, params CreateParams) (*Thread, error) {
	thread := &Thread{
		ThreadID:      uuid.NewString(),
		AccountID:     params.AccountID,
		ProjectID:     params.ProjectID,
		AgentID:       params.AgentID,
		Status:        StatusPending,
		MemoryEnabled: params.MemoryEnabled,
	}
	if len(params.Metadata) > 0 {
		thread.Metadata = params.Metadata
	}
	if err := s.db.WithContext(ctx).Create(thread).Error; err != nil {
		return nil, fmt.Errorf("threads: create thread: %w", err)
	}
	return thread, nil
}

func (s *Store) FindByID(ctx context.Context, threadID string) (*Thread, error) {
	var thread Thread
	err := s.db.WithContext(ctx).Where("thread_id = ?", threadID).First(&thread).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &thread, nil
}

func (s *Store) ListForAccount(ctx context.Context, accountID string, projectID *string) ([]Thread, error) {
	query := s.db.WithContext(ctx).Where("account_id = ?", accountID)
	if projectID != nil {
		query = query.Where("project_id = ?", *projectID)
	}

	var results []Thread
	if err := query.Order("created_at DESC").Find(&results).Error; err != nil {
		return nil, fmt.Errorf("threads: list threads: %w", err)
	}
	return results, nil
}

// BeginInitialization stamps the start of initialization on a pending
// thread. The conditional update keeps the transition one-way: a thread
// that already left pending cannot be restarted.
func (s *Store) BeginInitialization(ctx context.Context, threadID string) error {
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&Thread{}).
		Where("thread_id = ? AND status = ?", threadID, StatusPending).
		Update("initialization_started_at", now)
	if result.Error != nil {
		return fmt.Errorf("threads: begin initialization: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return s.transitionError(ctx, threadID)
	}
	return nil
}

// CompleteInitialization moves pending → ready. Rejects threads that never
// started initializing and refuses a completion stamp earlier than the
// start stamp.
func (s *Store) CompleteInitialization(ctx context.Context, threadID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var thread Thread
		if err := tx.Where("thread_id = ?", threadID).First(&thread).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if thread.Status != StatusPending || thread.InitializationStartedAt == nil {
			return ErrInvalidTransition
		}

		now := time.Now().UTC()
		if now.Before(*thread.InitializationStartedAt) {
			now = *thread.InitializationStartedAt
		}

		result := tx.Model(&Thread{}).
			Where("thread_id = ? AND status = ?", threadID, StatusPending).
			Updates(map[string]interface{}{
				"status":                      StatusReady,
				"initialization_completed_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrInvalidTransition
		}
		return nil
	})
}

// FailInitialization moves pending → failed and records the error.
func (s *Store) FailInitialization(ctx context.Context, threadID, reason string) error {
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&Thread{}).
		Where("thread_id = ? AND status = ?", threadID, StatusPending).
		Updates(map[string]interface{}{
			"status":                      StatusFailed,
			"initialization_completed_at": now,
			"initialization_error":        reason,
		})
	if result.Error != nil {
		return fmt.Errorf("threads: fail initialization: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return s.transitionError(ctx, threadID)
	}
	return nil
}

// transitionError distinguishes a missing thread from one already past
// pending after a conditional update matched no rows.
func (s *Store) transitionError(ctx context.Context, threadID string) error {
	if _, err := s.FindByID(ctx, threadID); err != nil {
		return err
	}
	return ErrInvalidTransition
}

// AppendMessageParams holds one transcript row.
type AppendMessageParams struct {
	Role         *string
	Type         string
	Content      []byte
	Metadata     []byte
	IsLLMMessage bool
}

func (s *Store) AppendMessage(ctx context.Context, threadID string, params AppendMessageParams) (*Message, error) {
	if _, err := s.FindByID(ctx, threadID); err != nil {
		return nil, err
	}

	message := &Message{
		MessageID:    uuid.NewString(),
		ThreadID:     threadID,
		Role:         params.Role,
		Type:         params.Type,
		IsLLMMessage: params.IsLLMMessage,
	}
	if len(params.Content) > 0 {
		message.Content = params.Content
	}
	if len(params.Metadata) > 0 {
		message.Metadata = params.Metadata
	}
	if err := s.db.WithContext(ctx).Create(message).Error; err != nil {
		return nil, fmt.Errorf("threads: append message: %w", err)
	}
	return message, nil
}

// ListMessages returns a thread's messages in chronological order.
func (s *Store) ListMessages(ctx context.Context, threadID string, limit int) ([]Message, error) {
	query := s.db.WithContext(ctx).Where("thread_id = ?", threadID).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var results []Message
	if err := query.Find(&results).Error; err != nil {
		return nil, fmt.Errorf("threads: list messages: %w", err)
	}
	return results, nil
}

// RecordToolCall stores a tool invocation tied to a message.
func (s *Store) RecordToolCall(ctx context.Context, threadID, messageID, toolName string, arguments []byte) (*ToolCall, error) {
	call := &ToolCall{
		ToolCallID: uuid.NewString(),
		ThreadID:   threadID,
		MessageID:  messageID,
		ToolName:   toolName,
		Status:     "pending",
	}
	if len(arguments) > 0 {
		call.Arguments = arguments
	}
	if err := s.db.WithContext(ctx).Create(call).Error; err != nil {
		return nil, fmt.Errorf("threads: record tool call: %w", err)
	}
	return call, nil
}

// CompleteToolCall stores the result and final status of a tool call.
func (s *Store) CompleteToolCall(ctx context.Context, toolCallID string, result []byte, status string) error {
	updates := map[string]interface{}{"status": status}
	if len(result) > 0 {
		updates["result"] = result
	}
	res := s.db.WithContext(ctx).Model(&ToolCall{}).
		Where("tool_call_id = ?", toolCallID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("threads: complete tool call: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// StartRun records a new agent run against a thread, pinning the agent
// version the run executes with.
func (s *Store) StartRun(ctx context.Context, threadID string, agentID, agentVersionID *string, metadata []byte) (*AgentRun, error) {
	if _, err := s.FindByID(ctx, threadID); err != nil {
		return nil, err
	}

	run := &AgentRun{
		AgentRunID:     uuid.NewString(),
		ThreadID:       threadID,
		AgentID:        agentID,
		AgentVersionID: agentVersionID,
		Status:         RunStatusRunning,
		StartedAt:      time.Now().UTC(),
	}
	if len(metadata) > 0 {
		run.Metadata = metadata
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("threads: start run: %w", err)
	}
	return run, nil
}

// FinishRun moves a running run to completed, failed or stopped. Terminal
// runs stay terminal.
func (s *Store) FinishRun(ctx context.Context, runID, status string, runErr *string) error {
	switch status {
	case RunStatusCompleted, RunStatusFailed, RunStatusStopped:
	default:
		return ErrInvalidTransition
	}

	updates := map[string]interface{}{
		"status":       status,
		"completed_at": time.Now().UTC(),
	}
	if runErr != nil {
		updates["error"] = *runErr
	}

	result := s.db.WithContext(ctx).Model(&AgentRun{}).
		Where("agent_run_id = ? AND status = ?", runID, RunStatusRunning).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("threads: finish run: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var run AgentRun
		err := s.db.WithContext(ctx).Where("agent_run_id = ?", runID).First(&run).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRunNotFound
		}
		if err != nil {
			return err
		}
		return ErrInvalidTransition
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, threadID string) ([]AgentRun, error) {
	var runs []AgentRun
	err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("started_at DESC").
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("threads: list runs: %w", err)
	}
	return runs, nil
}

// Delete removes a thread with its messages, tool calls and runs.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{&Message{}, &ToolCall{}, &AgentRun{}} {
			if err := tx.Where("thread_id = ?", threadID).Delete(model).Error; err != nil {
				return fmt.Errorf("threads: cascade delete: %w", err)
			}
		}

		result := tx.Where("thread_id = ?", threadID).Delete(&Thread{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
