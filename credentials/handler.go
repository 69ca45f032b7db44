package credentials

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"aurora_back/accounts"
	"aurora_back/authorization"
)

type Module struct {
	store    *Store
	accounts *accounts.Store
}

// RegisterRoutes wires the secure MCP credential endpoints. Fails fast
// when the encryption key is missing so misconfigured deployments never
// store plaintext.
func RegisterRoutes(router *gin.Engine, db *gorm.DB, guard *authorization.Guard, acctStore *accounts.Store) (*Module, error) {
	box, err := NewCipherBoxFromEnv()
	if err != nil {
		return nil, err
	}

	store := NewStore(db, box)
	if err := store.Migrate(); err != nil {
		return nil, err
	}

	module := &Module{store: store, accounts: acctStore}

	secured := router.Group("/secure-mcp")
	secured.Use(guard.RequireAuthenticated())
	{
		secured.GET("/credentials", module.handleList)
		secured.POST("/credentials", module.handleCreate)
		secured.GET("/credentials/:profileId", module.handleGet)
		secured.PUT("/credentials/:profileId", module.handleUpdate)
		secured.DELETE("/credentials/:profileId", module.handleDelete)
		secured.PUT("/credentials/:profileId/set-default", module.handleSetDefault)
	}

	log.Println("credentials module routes registered")
	return module, nil
}

func (m *Module) Store() *Store {
	return m.store
}

func (m *Module) requireAccount(c *gin.Context, accountID string) bool {
	userID := authorization.CurrentUserID(c)
	if err := m.accounts.RequireMember(c.Request.Context(), userID, accountID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this account"})
		return false
	}
	return true
}

func (m *Module) requireProfile(c *gin.Context) (*CredentialProfile, bool) {
	profile, err := m.store.FindByID(c.Request.Context(), c.Param("profileId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		}
		return nil, false
	}
	if !m.requireAccount(c, profile.AccountID) {
		return nil, false
	}
	return profile, true
}

func (m *Module) handleList(c *gin.Context) {
	accountID := c.Query("account_id")
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account_id is required"})
		return
	}
	if !m.requireAccount(c, accountID) {
		return
	}

	profiles, err := m.store.List(c.Request.Context(), accountID, c.Query("mcp_qualified_name"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list profiles"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": profiles})
}

type createProfileRequest struct {
	AccountID        string          `json:"account_id" binding:"required"`
	McpQualifiedName string          `json:"mcp_qualified_name" binding:"required"`
	ProfileName      string          `json:"profile_name" binding:"required"`
	DisplayName      string          `json:"display_name"`
	Config           json.RawMessage `json:"config" binding:"required"`
	IsDefault        bool            `json:"is_default"`
}

func (m *Module) handleCreate(c *gin.Context) {
	var req createProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !m.requireAccount(c, req.AccountID) {
		return
	}

	profile, err := m.store.Create(c.Request.Context(), CreateParams{
		AccountID:        req.AccountID,
		McpQualifiedName: req.McpQualifiedName,
		ProfileName:      req.ProfileName,
		DisplayName:      req.DisplayName,
		Config:           req.Config,
		IsDefault:        req.IsDefault,
	})
	if err != nil {
		if errors.Is(err, ErrProfileExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "profile name already used for this tool"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create profile"})
		return
	}
	c.JSON(http.StatusCreated, profile)
}

// handleGet returns the profile with its decrypted configuration.
func (m *Module) handleGet(c *gin.Context) {
	profile, ok := m.requireProfile(c)
	if !ok {
		return
	}

	plaintext, err := m.store.DecryptConfig(c.Request.Context(), profile)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to decrypt profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"profile": profile,
		"config":  json.RawMessage(plaintext),
	})
}

type updateProfileRequest struct {
	DisplayName *string         `json:"display_name"`
	Config      json.RawMessage `json:"config"`
	IsActive    *bool           `json:"is_active"`
}

func (m *Module) handleUpdate(c *gin.Context) {
	profile, ok := m.requireProfile(c)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := m.store.Update(c.Request.Context(), profile.ProfileID, UpdateParams{
		DisplayName: req.DisplayName,
		Config:      req.Config,
		IsActive:    req.IsActive,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update profile"})
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (m *Module) handleDelete(c *gin.Context) {
	profile, ok := m.requireProfile(c)
	if !ok {
		return
	}

	if err := m.store.Delete(c.Request.Context(), profile.ProfileID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (m *Module) handleSetDefault(c *gin.Context) {
	profile, ok := m.requireProfile(c)
	if !ok {
		return
	}

	updated, err := m.store.SetDefault(c.Request.Context(), profile.ProfileID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set default profile"})
		return
	}
	c.JSON(http.StatusOK, updated)
}
