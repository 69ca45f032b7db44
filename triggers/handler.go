package triggers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"aurora_back/accounts"
	"aurora_back/agents"
	"aurora_back/authorization"
	"aurora_back/credentials"
	"aurora_back/threads"
)

type Module struct {
	store    *Store
	accounts *accounts.Store
	agents   *agents.Store
	threads  *threads.Store
}

func RegisterRoutes(router *gin.Engine, db *gorm.DB, guard *authorization.Guard, acctStore *accounts.Store, agentStore *agents.Store, threadStore *threads.Store) (*Module, error) {
	box, err := credentials.NewCipherBoxFromEnv()
	if err != nil {
		return nil, err
	}

	store := NewStore(db, box)
	if err := store.Migrate(); err != nil {
		return nil, err
	}

	module := &Module{store: store, accounts: acctStore, agents: agentStore, threads: threadStore}

	secured := router.Group("/triggers")
	secured.Use(guard.RequireAuthenticated())
	{
		secured.GET("/providers", module.handleProviders)
		secured.GET("/agents/:agentId", module.handleListForAgent)
		secured.POST("/agents/:agentId", module.handleCreate)
		secured.GET("/:triggerId", module.handleGet)
		secured.PUT("/:triggerId", module.handleUpdate)
		secured.DELETE("/:triggerId", module.handleDelete)
		secured.GET("/:triggerId/events", module.handleListEvents)
	}

	// Webhook firing is authenticated by the per-trigger secret, not a
	// user token: external providers call it.
	router.POST("/triggers/:triggerId/webhook", module.handleFireWebhook)

	integrations := router.Group("/integrations")
	integrations.Use(guard.RequireAuthenticated())
	{
		integrations.GET("", module.handleListInstallations)
		integrations.POST("/install", module.handleInstall)
		integrations.DELETE("/uninstall/:triggerId", module.handleUninstall)
	}

	log.Println("triggers module routes registered")
	return module, nil
}

func (m *Module) requireAccount(c *gin.Context, accountID string) bool {
	userID := authorization.CurrentUserID(c)
	if err := m.accounts.RequireMember(c.Request.Context(), userID, accountID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this account"})
		return false
	}
	return true
}

func (m *Module) requireTrigger(c *gin.Context) (*AgentTrigger, bool) {
	trigger, err := m.store.FindByID(c.Request.Context(), c.Param("triggerId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "trigger not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trigger"})
		}
		return nil, false
	}
	if !m.requireAccount(c, trigger.AccountID) {
		return nil, false
	}
	return trigger, true
}

func (m *Module) handleProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": Providers(c.Request.Context())})
}

func (m *Module) handleListForAgent(c *gin.Context) {
	agent, err := m.agents.FindByID(c.Request.Context(), c.Param("agentId"))
	if err != nil {
		if errors.Is(err, agents.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load agent"})
		return
	}
	if !m.requireAccount(c, agent.AccountID) {
		return
	}

	triggers, err := m.store.ListForAgent(c.Request.Context(), agent.AgentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list triggers"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"triggers": triggers})
}

type createTriggerRequest struct {
	TriggerType string          `json:"trigger_type"`
	ProviderID  string          `json:"provider_id" binding:"required"`
	Name        string          `json:"name" binding:"required"`
	Description *string         `json:"description"`
	Config      json.RawMessage `json:"config"`
}

func (m *Module) handleCreate(c *gin.Context) {
	agent, err := m.agents.FindByID(c.Request.Context(), c.Param("agentId"))
	if err != nil {
		if errors.Is(err, agents.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load agent"})
		return
	}
	if !m.requireAccount(c, agent.AccountID) {
		return
	}

	var req createTriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trigger, err := m.store.Create(c.Request.Context(), CreateParams{
		AgentID:     agent.AgentID,
		AccountID:   agent.AccountID,
		TriggerType: req.TriggerType,
		ProviderID:  req.ProviderID,
		Name:        req.Name,
		Description: req.Description,
		Config:      req.Config,
	})
	if err != nil {
		if errors.Is(err, ErrUnknownProvider) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create trigger"})
		return
	}

	// The secret is only revealed once, at creation time.
	c.JSON(http.StatusCreated, gin.H{
		"trigger":        trigger,
		"webhook_secret": trigger.WebhookSecret,
	})
}

func (m *Module) handleGet(c *gin.Context) {
	trigger, ok := m.requireTrigger(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, trigger)
}

type updateTriggerRequest struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Config      json.RawMessage `json:"config"`
	IsActive    *bool           `json:"is_active"`
}

func (m *Module) handleUpdate(c *gin.Context) {
	trigger, ok := m.requireTrigger(c)
	if !ok {
		return
	}

	var req updateTriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := m.store.Update(c.Request.Context(), trigger.TriggerID, UpdateParams{
		Name:        req.Name,
		Description: req.Description,
		Config:      req.Config,
		IsActive:    req.IsActive,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update trigger"})
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (m *Module) handleDelete(c *gin.Context) {
	trigger, ok := m.requireTrigger(c)
	if !ok {
		return
	}

	if err := m.store.Delete(c.Request.Context(), trigger.TriggerID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete trigger"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (m *Module) handleListEvents(c *gin.Context) {
	trigger, ok := m.requireTrigger(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	events, err := m.store.ListEvents(c.Request.Context(), trigger.TriggerID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// handleFireWebhook verifies the trigger secret, records an event and
// spins up a thread for the bound agent. The agent run itself happens in
// the external execution backend.
func (m *Module) handleFireWebhook(c *gin.Context) {
	started := time.Now()

	trigger, err := m.store.FindByID(c.Request.Context(), c.Param("triggerId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "trigger not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trigger"})
		return
	}

	secret := c.GetHeader("X-Trigger-Secret")
	if secret == "" {
		secret = c.Query("secret")
	}
	if err := m.store.VerifySecret(trigger, secret); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
		return
	}
	if !trigger.IsActive {
		c.JSON(http.StatusConflict, gin.H{"error": "trigger is not active"})
		return
	}

	payload, err := c.GetRawData()
	if err != nil {
		payload = nil
	}

	thread, threadErr := m.threads.Create(c.Request.Context(), threads.CreateParams{
		AccountID:     trigger.AccountID,
		AgentID:       &trigger.AgentID,
		MemoryEnabled: true,
	})

	var threadID *string
	status := EventStatusSuccess
	var fireErr *string
	if threadErr != nil {
		status = EventStatusFailed
		message := threadErr.Error()
		fireErr = &message
	} else {
		threadID = &thread.ThreadID
	}

	event, err := m.store.RecordEvent(c.Request.Context(), trigger, threadID, status, payload, fireErr, time.Since(started))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record trigger event"})
		return
	}

	if threadErr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create thread", "event": event})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"event": event, "thread_id": thread.ThreadID})
}

func (m *Module) handleListInstallations(c *gin.Context) {
	accountID := c.Query("account_id")
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account_id is required"})
		return
	}
	if !m.requireAccount(c, accountID) {
		return
	}

	installations, err := m.store.ListInstallations(c.Request.Context(), accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list installations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"installations": installations})
}

type installIntegrationRequest struct {
	AccountID   string          `json:"account_id" binding:"required"`
	Provider    string          `json:"provider" binding:"required"`
	TriggerID   *string         `json:"trigger_id"`
	AccessToken string          `json:"access_token" binding:"required"`
	Metadata    json.RawMessage `json:"metadata"`
}

func (m *Module) handleInstall(c *gin.Context) {
	var req installIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !m.requireAccount(c, req.AccountID) {
		return
	}

	installation, err := m.store.Install(c.Request.Context(), InstallParams{
		AccountID:   req.AccountID,
		Provider:    req.Provider,
		TriggerID:   req.TriggerID,
		AccessToken: req.AccessToken,
		Metadata:    req.Metadata,
	})
	if err != nil {
		if errors.Is(err, ErrUnknownProvider) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to install integration"})
		return
	}
	c.JSON(http.StatusCreated, installation)
}

func (m *Module) handleUninstall(c *gin.Context) {
	trigger, ok := m.requireTrigger(c)
	if !ok {
		return
	}

	if err := m.store.Uninstall(c.Request.Context(), trigger.TriggerID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to uninstall integration"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "uninstalled"})
}
