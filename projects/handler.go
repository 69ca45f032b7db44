package projects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"aurora_back/accounts"
	"aurora_back/authorization"
)

var ErrNotFound = errors.New("projects: project not found")

// Module bundles the project endpoints with their dependencies.
type Module struct {
	db       *gorm.DB
	accounts *accounts.Store
}

// RegisterRoutes mounts the /projects endpoints.
func RegisterRoutes(router *gin.Engine, db *gorm.DB, guard *authorization.Guard, acctStore *accounts.Store) (*Module, error) {
	if err := db.AutoMigrate(&Project{}); err != nil {
		return nil, fmt.Errorf("projects: migrate models: %w", err)
	}

	module := &Module{db: db, accounts: acctStore}

	group := router.Group("/projects")
	group.Use(guard.RequireAuthenticated())
	group.GET("", module.handleList)
	group.POST("", module.handleCreate)
	group.GET("/:id", module.handleGet)
	group.PUT("/:id", module.handleUpdate)
	group.DELETE("/:id", module.handleDelete)

	return module, nil
}

func (m *Module) requireMember(c *gin.Context, accountID string) bool {
	userID := authorization.CurrentUserID(c)
	if err := m.accounts.RequireMember(c.Request.Context(), userID, accountID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this account"})
		return false
	}
	return true
}

func (m *Module) find(ctx context.Context, projectID string) (*Project, error) {
	var project Project
	err := m.db.WithContext(ctx).Where("project_id = ?", projectID).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &project, nil
}

func (m *Module) handleList(c *gin.Context) {
	accountID := strings.TrimSpace(c.Query("account_id"))
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account_id is required"})
		return
	}
	if !m.requireMember(c, accountID) {
		return
	}

	var results []Project
	err := m.db.WithContext(c.Request.Context()).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Find(&results).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list projects"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": results})
}

type projectRequest struct {
	AccountID   string          `json:"account_id" binding:"required"`
	Name        string          `json:"name" binding:"required"`
	Description *string         `json:"description"`
	IsPublic    *bool           `json:"is_public"`
	Sandbox     json.RawMessage `json:"sandbox"`
}

func (m *Module) handleCreate(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if !m.requireMember(c, req.AccountID) {
		return
	}

	project := Project{
		ProjectID: uuid.NewString(),
		AccountID: req.AccountID,
		Name:      strings.TrimSpace(req.Name),
	}
	if project.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name cannot be empty"})
		return
	}
	if req.Description != nil {
		project.Description = req.Description
	}
	if req.IsPublic != nil {
		project.IsPublic = *req.IsPublic
	}
	if len(req.Sandbox) > 0 {
		project.Sandbox = datatypes.JSON(req.Sandbox)
	}

	if err := m.db.WithContext(c.Request.Context()).Create(&project).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create project"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project": project})
}

func (m *Module) handleGet(c *gin.Context) {
	project, err := m.find(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load project"})
		return
	}

	// public projects are readable by any authenticated user
	if !project.IsPublic && !m.requireMember(c, project.AccountID) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

type projectUpdateRequest struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	IsPublic    *bool           `json:"is_public"`
	Sandbox     json.RawMessage `json:"sandbox"`
}

func (m *Module) handleUpdate(c *gin.Context) {
	var req projectUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	ctx := c.Request.Context()
	project, err := m.find(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load project"})
		return
	}
	if !m.requireMember(c, project.AccountID) {
		return
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name cannot be empty"})
			return
		}
		project.Name = name
	}
	if req.Description != nil {
		project.Description = req.Description
	}
	if req.IsPublic != nil {
		project.IsPublic = *req.IsPublic
	}
	if len(req.Sandbox) > 0 {
		project.Sandbox = datatypes.JSON(req.Sandbox)
	}

	if err := m.db.WithContext(ctx).Save(project).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update project"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

func (m *Module) handleDelete(c *gin.Context) {
	ctx := c.Request.Context()
	project, err := m.find(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load project"})
		return
	}
	if !m.requireMember(c, project.AccountID) {
		return
	}

	if err := m.db.WithContext(ctx).Where("project_id = ?", project.ProjectID).Delete(&Project{}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete project"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
