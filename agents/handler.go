package agents

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"aurora_back/accounts"
	"aurora_back/authorization"
	"aurora_back/database"
)

// Tool describes one callable tool exposed to an agent.
type Tool struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
	Source      string `json:"source,omitempty"`
}

// ToolSource supplies externally configured tools for an account. The
// credentials package implements this with the account's MCP profiles.
type ToolSource interface {
	McpToolsForAccount(ctx context.Context, accountID string) ([]Tool, error)
}

// builtinTools is the fixed tool catalog every agent gets.
var builtinTools = []Tool{
	{Name: "sb_shell_tool", DisplayName: "Shell", Description: "Execute shell commands in the sandbox", Enabled: true},
	{Name: "sb_files_tool", DisplayName: "Files", Description: "Read and write files in the sandbox", Enabled: true},
	{Name: "sb_browser_tool", DisplayName: "Browser", Description: "Browse and interact with web pages", Enabled: true},
	{Name: "web_search_tool", DisplayName: "Web Search", Description: "Search the web for current information", Enabled: true},
	{Name: "sb_vision_tool", DisplayName: "Vision", Description: "Inspect images and screenshots", Enabled: true},
	{Name: "data_providers_tool", DisplayName: "Data Providers", Description: "Query structured data providers", Enabled: false},
}

type Module struct {
	store      *Store
	accounts   *accounts.Store
	toolSource ToolSource
	catalog    []ModelOption
}

func RegisterRoutes(router *gin.Engine, db *gorm.DB, guard *authorization.Guard, acctStore *accounts.Store, toolSource ToolSource) (*Module, error) {
	store := NewStore(db)
	if err := store.Migrate(); err != nil {
		return nil, err
	}

	module := &Module{
		store:      store,
		accounts:   acctStore,
		toolSource: toolSource,
		catalog:    loadModelCatalog(),
	}

	secured := router.Group("/agents")
	secured.Use(guard.RequireAuthenticated())
	{
		secured.GET("", module.handleList)
		secured.GET("/models", module.handleModelCatalog)
		secured.POST("", module.handleCreate)
		secured.GET("/:agentId", module.handleGet)
		secured.PUT("/:agentId", module.handleUpdate)
		secured.DELETE("/:agentId", module.handleDelete)
		secured.GET("/:agentId/versions", module.handleListVersions)
		secured.POST("/:agentId/versions", module.handleCreateVersion)
		secured.PUT("/:agentId/versions/:versionId/activate", module.handleActivateVersion)
		secured.PUT("/:agentId/default", module.handleSetDefault)
		secured.GET("/:agentId/tools", module.handleTools)
	}

	marketplace := router.Group("/marketplace")
	marketplace.Use(guard.RequireAuthenticated())
	{
		marketplace.GET("/agents", module.handleMarketplaceList)
		marketplace.POST("/agents/:agentId/install", module.handleInstall)
	}

	log.Println("agents module routes registered")
	return module, nil
}

// Store exposes the underlying store for modules that need agent lookups.
func (m *Module) Store() *Store {
	return m.store
}

// requireAgent loads the agent and checks the caller is a member of its
// account. Public agents are readable by anyone when readOnly is set.
func (m *Module) requireAgent(c *gin.Context, readOnly bool) (*Agent, bool) {
	agent, err := m.store.FindByID(c.Request.Context(), c.Param("agentId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load agent"})
		}
		return nil, false
	}

	if readOnly && agent.IsPublic {
		return agent, true
	}

	userID := authorization.CurrentUserID(c)
	if err := m.accounts.RequireMember(c.Request.Context(), userID, agent.AccountID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this account"})
		return nil, false
	}
	return agent, true
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

	agents, err := m.store.ListForAccount(c.Request.Context(), accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list agents"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents})
}

type createAgentRequest struct {
	AccountID      string          `json:"account_id" binding:"required"`
	Name           string          `json:"name" binding:"required"`
	Description    *string         `json:"description"`
	SystemPrompt   string          `json:"system_prompt"`
	Model          string          `json:"model"`
	IconName       *string         `json:"icon_name"`
	IconColor      *string         `json:"icon_color"`
	IconBackground *string         `json:"icon_background"`
	Tags           json.RawMessage `json:"tags"`
	Config         json.RawMessage `json:"config"`
}

func (m *Module) handleCreate(c *gin.Context) {
	var req createAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := authorization.CurrentUserID(c)
	if err := m.accounts.RequireMember(c.Request.Context(), userID, req.AccountID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this account"})
		return
	}

	if req.Model == "" {
		req.Model = defaultModel(m.catalog)
	}

	agent, err := m.store.Create(c.Request.Context(), userID, CreateParams{
		AccountID:      req.AccountID,
		Name:           req.Name,
		Description:    req.Description,
		SystemPrompt:   req.SystemPrompt,
		Model:          req.Model,
		IconName:       req.IconName,
		IconColor:      req.IconColor,
		IconBackground: req.IconBackground,
		Tags:           req.Tags,
		Config:         req.Config,
	})
	if err != nil {
		if database.IsDuplicate(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "agent already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create agent"})
		return
	}
	c.JSON(http.StatusCreated, agent)
}

func (m *Module) handleGet(c *gin.Context) {
	agent, ok := m.requireAgent(c, true)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, agent)
}

type updateAgentRequest struct {
	Name           *string         `json:"name"`
	Description    *string         `json:"description"`
	IconName       *string         `json:"icon_name"`
	IconColor      *string         `json:"icon_color"`
	IconBackground *string         `json:"icon_background"`
	IsPublic       *bool           `json:"is_public"`
	Tags           json.RawMessage `json:"tags"`
}

func (m *Module) handleUpdate(c *gin.Context) {
	agent, ok := m.requireAgent(c, false)
	if !ok {
		return
	}

	var req updateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := m.store.Update(c.Request.Context(), agent.AgentID, UpdateParams{
		Name:           req.Name,
		Description:    req.Description,
		IconName:       req.IconName,
		IconColor:      req.IconColor,
		IconBackground: req.IconBackground,
		IsPublic:       req.IsPublic,
		Tags:           req.Tags,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update agent"})
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (m *Module) handleDelete(c *gin.Context) {
	agent, ok := m.requireAgent(c, false)
	if !ok {
		return
	}

	if err := m.store.Delete(c.Request.Context(), agent.AgentID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete agent"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (m *Module) handleListVersions(c *gin.Context) {
	agent, ok := m.requireAgent(c, true)
	if !ok {
		return
	}

	versions, err := m.store.ListVersions(c.Request.Context(), agent.AgentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list versions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

type createVersionRequest struct {
	SystemPrompt string          `json:"system_prompt" binding:"required"`
	Model        string          `json:"model"`
	Config       json.RawMessage `json:"config"`
}

func (m *Module) handleCreateVersion(c *gin.Context) {
	agent, ok := m.requireAgent(c, false)
	if !ok {
		return
	}

	var req createVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	model := req.Model
	if model == "" {
		model = agent.Model
	}

	userID := authorization.CurrentUserID(c)
	version, err := m.store.CreateVersion(c.Request.Context(), agent.AgentID, userID, VersionParams{
		SystemPrompt: req.SystemPrompt,
		Model:        model,
		Config:       req.Config,
	})
	if err != nil {
		if database.IsDuplicate(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "version number conflict, retry"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create version"})
		return
	}
	c.JSON(http.StatusCreated, version)
}

func (m *Module) handleActivateVersion(c *gin.Context) {
	agent, ok := m.requireAgent(c, false)
	if !ok {
		return
	}

	version, err := m.store.ActivateVersion(c.Request.Context(), agent.AgentID, c.Param("versionId"))
	if err != nil {
		switch {
		case errors.Is(err, ErrVersionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "version not found"})
		case errors.Is(err, ErrVersionMismatch):
			c.JSON(http.StatusBadRequest, gin.H{"error": "version belongs to a different agent"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to activate version"})
		}
		return
	}
	c.JSON(http.StatusOK, version)
}

func (m *Module) handleSetDefault(c *gin.Context) {
	agent, ok := m.requireAgent(c, false)
	if !ok {
		return
	}

	if err := m.store.SetDefault(c.Request.Context(), agent.AccountID, agent.AgentID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set default agent"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (m *Module) handleTools(c *gin.Context) {
	agent, ok := m.requireAgent(c, true)
	if !ok {
		return
	}

	var mcpTools []Tool
	if m.toolSource != nil {
		tools, err := m.toolSource.McpToolsForAccount(c.Request.Context(), agent.AccountID)
		if err != nil {
			log.Printf("agents: load mcp tools for account %s: %v", agent.AccountID, err)
		} else {
			mcpTools = tools
		}
	}
	if mcpTools == nil {
		mcpTools = []Tool{}
	}

	c.JSON(http.StatusOK, gin.H{
		"agentpress_tools": builtinTools,
		"mcp_tools":        mcpTools,
	})
}

func (m *Module) handleModelCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": m.catalog})
}

func (m *Module) handleMarketplaceList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	agents, err := m.store.ListPublic(c.Request.Context(), c.Query("search"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list marketplace agents"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents})
}

type installRequest struct {
	AccountID string `json:"account_id" binding:"required"`
}

func (m *Module) handleInstall(c *gin.Context) {
	var req installRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := authorization.CurrentUserID(c)
	if err := m.accounts.RequireMember(c.Request.Context(), userID, req.AccountID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this account"})
		return
	}

	copied, err := m.store.Install(c.Request.Context(), c.Param("agentId"), req.AccountID, userID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		case errors.Is(err, ErrNotPublic):
			c.JSON(http.StatusForbidden, gin.H{"error": "agent is not published"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to install agent"})
		}
		return
	}
	c.JSON(http.StatusCreated, copied)
}
