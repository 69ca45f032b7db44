package accounts

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"aurora_back/authorization"
)

// Module exposes account and membership endpoints.
type Module struct {
	store *Store
}

// RegisterRoutes mounts the /accounts endpoints. The store is created by main
// before the authorization module so registration can bootstrap personal
// accounts through it.
func RegisterRoutes(router *gin.Engine, guard *authorization.Guard, store *Store) (*Module, error) {
	if store == nil {
		return nil, errors.New("accounts: store is required")
	}

	module := &Module{store: store}

	group := router.Group("/accounts")
	group.Use(guard.RequireAuthenticated())

	group.GET("", module.handleList)
	group.POST("", module.handleCreate)
	group.GET("/:id", module.handleGet)
	group.PUT("/:id", module.handleUpdate)
	group.DELETE("/:id", module.handleDelete)
	group.GET("/:id/members", module.handleListMembers)
	group.POST("/:id/members", module.handleAddMember)
	group.PUT("/:id/members/:userId", module.handleUpdateMember)
	group.DELETE("/:id/members/:userId", module.handleRemoveMember)

	return module, nil
}

// Store exposes the backing store for other modules (membership guard).
func (m *Module) Store() *Store {
	if m == nil {
		return nil
	}
	return m.store
}

func (m *Module) handleList(c *gin.Context) {
	userID := authorization.CurrentUserID(c)
	results, err := m.store.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list accounts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": results})
}

type createAccountRequest struct {
	Name           string          `json:"name"`
	Slug           string          `json:"slug" binding:"required"`
	PublicMetadata json.RawMessage `json:"public_metadata"`
	MemoryEnabled  *bool           `json:"memory_enabled"`
}

func (m *Module) handleCreate(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	userID := authorization.CurrentUserID(c)
	account, err := m.store.CreateTeamAccount(c.Request.Context(), userID, TeamAccountParams{
		Name:           req.Name,
		Slug:           req.Slug,
		PublicMetadata: req.PublicMetadata,
		MemoryEnabled:  req.MemoryEnabled,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrTeamAccountNeedsSlug):
			c.JSON(http.StatusBadRequest, gin.H{"error": "a valid slug is required"})
		case errors.Is(err, ErrSlugTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "slug already in use"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create account"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"account": account})
}

func (m *Module) handleGet(c *gin.Context) {
	accountID := c.Param("id")
	userID := authorization.CurrentUserID(c)

	ctx := c.Request.Context()
	if err := m.store.RequireMember(ctx, userID, accountID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this account"})
		return
	}

	account, err := m.store.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load account"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account})
}

type updateAccountRequest struct {
	Name           *string         `json:"name"`
	Slug           *string         `json:"slug"`
	PublicMetadata json.RawMessage `json:"public_metadata"`
	MemoryEnabled  *bool           `json:"memory_enabled"`
}

func (m *Module) handleUpdate(c *gin.Context) {
	var req updateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	accountID := c.Param("id")
	userID := authorization.CurrentUserID(c)

	ctx := c.Request.Context()
	if err := m.store.RequireOwner(ctx, userID, accountID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "owner role required"})
		return
	}

	account, err := m.store.Update(ctx, accountID, UpdateParams{
		Name:           req.Name,
		Slug:           req.Slug,
		PublicMetadata: req.PublicMetadata,
		MemoryEnabled:  req.MemoryEnabled,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		case errors.Is(err, ErrPersonalAccountSlug):
			c.JSON(http.StatusBadRequest, gin.H{"error": "personal accounts cannot have a slug"})
		case errors.Is(err, ErrTeamAccountNeedsSlug):
			c.JSON(http.StatusBadRequest, gin.H{"error": "a valid slug is required"})
		case errors.Is(err, ErrSlugTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "slug already in use"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update account"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"account": account})
}

func (m *Module) handleDelete(c *gin.Context) {
	accountID := c.Param("id")
	userID := authorization.CurrentUserID(c)

	ctx := c.Request.Context()
	account, err := m.store.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load account"})
		return
	}
	if account.PersonalAccount {
		c.JSON(http.StatusBadRequest, gin.H{"error": "personal accounts are removed with their user"})
		return
	}
	if account.PrimaryOwnerUserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the primary owner can delete the account"})
		return
	}

	if err := m.store.DeleteCascade(ctx, accountID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete account"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (m *Module) handleListMembers(c *gin.Context) {
	accountID := c.Param("id")
	userID := authorization.CurrentUserID(c)

	ctx := c.Request.Context()
	if err := m.store.RequireMember(ctx, userID, accountID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this account"})
		return
	}

	members, err := m.store.ListMembers(ctx, accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list members"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

type memberRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role"`
}

func (m *Module) handleAddMember(c *gin.Context) {
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	accountID := c.Param("id")
	userID := authorization.CurrentUserID(c)

	ctx := c.Request.Context()
	if err := m.store.RequireOwner(ctx, userID, accountID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "owner role required"})
		return
	}

	if err := m.store.AddMember(ctx, accountID, req.UserID, req.Role); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add member"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"added": true})
}

func (m *Module) handleUpdateMember(c *gin.Context) {
	var req struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	accountID := c.Param("id")
	targetID := c.Param("userId")
	userID := authorization.CurrentUserID(c)

	ctx := c.Request.Context()
	if err := m.store.RequireOwner(ctx, userID, accountID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "owner role required"})
		return
	}

	if err := m.store.UpdateMemberRole(ctx, accountID, targetID, req.Role); err != nil {
		switch {
		case errors.Is(err, ErrPrimaryOwner):
			c.JSON(http.StatusBadRequest, gin.H{"error": "the primary owner keeps the owner role"})
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "membership not found"})
		case errors.Is(err, ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update member"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

func (m *Module) handleRemoveMember(c *gin.Context) {
	accountID := c.Param("id")
	targetID := c.Param("userId")
	userID := authorization.CurrentUserID(c)

	ctx := c.Request.Context()
	// members may remove themselves, owners may remove anyone
	if targetID != userID {
		if err := m.store.RequireOwner(ctx, userID, accountID); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "owner role required"})
			return
		}
	}

	if err := m.store.RemoveMember(ctx, accountID, targetID); err != nil {
		switch {
		case errors.Is(err, ErrPrimaryOwner):
			c.JSON(http.StatusBadRequest, gin.H{"error": "the primary owner cannot be removed"})
		case errors.Is(err, ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove member"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": true})
}
