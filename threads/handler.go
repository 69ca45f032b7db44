package threads

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"aurora_back/accounts"
	"aurora_back/authorization"
)

type Module struct {
	store    *Store
	accounts *accounts.Store
}

func RegisterRoutes(router *gin.Engine, db *gorm.DB, guard *authorization.Guard, acctStore *accounts.Store) (*Module, error) {
	store := NewStore(db)
	if err := store.Migrate(); err != nil {
		return nil, err
	}

	module := &Module{store: store, accounts: acctStore}

	secured := router.Group("/threads")
	secured.Use(guard.RequireAuthenticated())
	{
		secured.GET("", module.handleList)
		secured.POST("", module.handleCreate)
		secured.GET("/:threadId", module.handleGet)
		secured.DELETE("/:threadId", module.handleDelete)
		secured.POST("/:threadId/initialize", module.handleBeginInitialization)
		secured.POST("/:threadId/initialize/complete", module.handleCompleteInitialization)
		secured.POST("/:threadId/initialize/fail", module.handleFailInitialization)
		secured.GET("/:threadId/messages", module.handleListMessages)
		secured.POST("/:threadId/messages", module.handleAppendMessage)
		secured.GET("/:threadId/runs", module.handleListRuns)
		secured.POST("/:threadId/runs", module.handleStartRun)
		secured.POST("/:threadId/runs/:runId/complete", module.handleCompleteRun)
		secured.POST("/:threadId/runs/:runId/fail", module.handleFailRun)
		secured.POST("/:threadId/runs/:runId/stop", module.handleStopRun)
		secured.POST("/:threadId/tool-calls", module.handleRecordToolCall)
		secured.PUT("/:threadId/tool-calls/:toolCallId", module.handleCompleteToolCall)
	}

	log.Println("threads module routes registered")
	return module, nil
}

func (m *Module) Store() *Store {
	return m.store
}

func (m *Module) requireThread(c *gin.Context) (*Thread, bool) {
	thread, err := m.store.FindByID(c.Request.Context(), c.Param("threadId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load thread"})
		}
		return nil, false
	}

	userID := authorization.CurrentUserID(c)
	if err := m.accounts.RequireMember(c.Request.Context(), userID, thread.AccountID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this account"})
		return nil, false
	}
	return thread, true
}

func (m *Module) handleList(c *gin.Context) {
	accountID := c.Query("account_id")
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account_id is required"})
		return
	}

	userID := authorization.CurrentUserID(c)
	if err := m.accounts.RequireMember(c.Request.Context(), userID, accountID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this account"})
		return
	}

	var projectID *string
	if p := c.Query("project_id"); p != "" {
		projectID = &p
	}

	threads, err := m.store.ListForAccount(c.Request.Context(), accountID, projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list threads"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"threads": threads})
}

type createThreadRequest struct {
	AccountID     string          `json:"account_id" binding:"required"`
	ProjectID     *string         `json:"project_id"`
	AgentID       *string         `json:"agent_id"`
	MemoryEnabled *bool           `json:"memory_enabled"`
	Metadata      json.RawMessage `json:"metadata"`
}

func (m *Module) handleCreate(c *gin.Context) {
	var req createThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := authorization.CurrentUserID(c)
	if err := m.accounts.RequireMember(c.Request.Context(), userID, req.AccountID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this account"})
		return
	}

	memoryEnabled := true
	if req.MemoryEnabled != nil {
		memoryEnabled = *req.MemoryEnabled
	}

	thread, err := m.store.Create(c.Request.Context(), CreateParams{
		AccountID:     req.AccountID,
		ProjectID:     req.ProjectID,
		AgentID:       req.AgentID,
		MemoryEnabled: memoryEnabled,
		Metadata:      req.Metadata,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create thread"})
		return
	}
	c.JSON(http.StatusCreated, thread)
}

func (m *Module) handleGet(c *gin.Context) {
	thread, ok := m.requireThread(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, thread)
}

func (m *Module) handleDelete(c *gin.Context) {
	thread, ok := m.requireThread(c)
	if !ok {
		return
	}

	if err := m.store.Delete(c.Request.Context(), thread.ThreadID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete thread"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (m *Module) handleBeginInitialization(c *gin.Context) {
	thread, ok := m.requireThread(c)
	if !ok {
		return
	}

	if err := m.store.BeginInitialization(c.Request.Context(), thread.ThreadID); err != nil {
		m.respondTransitionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "initializing"})
}

func (m *Module) handleCompleteInitialization(c *gin.Context) {
	thread, ok := m.requireThread(c)
	if !ok {
		return
	}

	if err := m.store.CompleteInitialization(c.Request.Context(), thread.ThreadID); err != nil {
		m.respondTransitionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": StatusReady})
}

type failInitializationRequest struct {
	Error string `json:"error" binding:"required"`
}

func (m *Module) handleFailInitialization(c *gin.Context) {
	thread, ok := m.requireThread(c)
	if !ok {
		return
	}

	var req failInitializationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := m.store.FailInitialization(c.Request.Context(), thread.ThreadID, req.Error); err != nil {
		m.respondTransitionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": StatusFailed})
}

func (m *Module) respondTransitionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "thread already left the pending state"})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update thread"})
	}
}

func (m *Module) handleListMessages(c *gin.Context) {
	thread, ok := m.requireThread(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	messages, err := m.store.ListMessages(c.Request.Context(), thread.ThreadID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type appendMessageRequest struct {
	Role         *string         `json:"role"`
	Type         string          `json:"type" binding:"required"`
	Content      json.RawMessage `json:"content"`
	Metadata     json.RawMessage `json:"metadata"`
	IsLLMMessage bool            `json:"is_llm_message"`
}

func (m *Module) handleAppendMessage(c *gin.Context) {
	thread, ok := m.requireThread(c)
	if !ok {
		return
	}

	var req appendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message, err := m.store.AppendMessage(c.Request.Context(), thread.ThreadID, AppendMessageParams{
		Role:         req.Role,
		Type:         req.Type,
		Content:      req.Content,
		Metadata:     req.Metadata,
		IsLLMMessage: req.IsLLMMessage,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to append message"})
		return
	}
	c.JSON(http.StatusCreated, message)
}

func (m *Module) handleListRuns(c *gin.Context) {
	thread, ok := m.requireThread(c)
	if !ok {
		return
	}

	runs, err := m.store.ListRuns(c.Request.Context(), thread.ThreadID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent_runs": runs})
}

type startRunRequest struct {
	AgentID        *string         `json:"agent_id"`
	AgentVersionID *string         `json:"agent_version_id"`
	Metadata       json.RawMessage `json:"metadata"`
}

func (m *Module) handleStartRun(c *gin.Context) {
	thread, ok := m.requireThread(c)
	if !ok {
		return
	}

	var req startRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	agentID := req.AgentID
	if agentID == nil {
		agentID = thread.AgentID
	}

	run, err := m.store.StartRun(c.Request.Context(), thread.ThreadID, agentID, req.AgentVersionID, req.Metadata)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start run"})
		return
	}
	c.JSON(http.StatusCreated, run)
}

func (m *Module) finishRun(c *gin.Context, status string, runErr *string) {
	if _, ok := m.requireThread(c); !ok {
		return
	}

	err := m.store.FinishRun(c.Request.Context(), c.Param("runId"), status, runErr)
	if err != nil {
		switch {
		case errors.Is(err, ErrRunNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "agent run not found"})
		case errors.Is(err, ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": "agent run is not running"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update run"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

func (m *Module) handleCompleteRun(c *gin.Context) {
	m.finishRun(c, RunStatusCompleted, nil)
}

type failRunRequest struct {
	Error string `json:"error" binding:"required"`
}

func (m *Module) handleFailRun(c *gin.Context) {
	var req failRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m.finishRun(c, RunStatusFailed, &req.Error)
}

func (m *Module) handleStopRun(c *gin.Context) {
	m.finishRun(c, RunStatusStopped, nil)
}

type recordToolCallRequest struct {
	MessageID string          `json:"message_id" binding:"required"`
	ToolName  string          `json:"tool_name" binding:"required"`
	Arguments json.RawMessage `json:"arguments"`
}

func (m *Module) handleRecordToolCall(c *gin.Context) {
	thread, ok := m.requireThread(c)
	if !ok {
		return
	}

	var req recordToolCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	call, err := m.store.RecordToolCall(c.Request.Context(), thread.ThreadID, req.MessageID, req.ToolName, req.Arguments)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record tool call"})
		return
	}
	c.JSON(http.StatusCreated, call)
}

type completeToolCallRequest struct {
	Result json.RawMessage `json:"result"`
	Status string          `json:"status" binding:"required"`
}

func (m *Module) handleCompleteToolCall(c *gin.Context) {
	if _, ok := m.requireThread(c); !ok {
		return
	}

	var req completeToolCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := m.store.CompleteToolCall(c.Request.Context(), c.Param("toolCallId"), req.Result, req.Status)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "tool call not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update tool call"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": req.Status})
}
