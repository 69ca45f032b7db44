package feedback

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

	secured := router.Group("/feedback")
	secured.Use(guard.RequireAuthenticated())
	{
		secured.GET("", module.handleList)
		secured.POST("", module.handleCreate)
	}

	admin := router.Group("/admin/feedback")
	admin.Use(guard.RequireAdmin())
	{
		admin.GET("", module.handleAdminList)
		admin.PUT("/:feedbackId/status", module.handleUpdateStatus)
	}

	log.Println("feedback module routes registered")
	return module, nil
}

type createFeedbackRequest struct {
	AccountID string          `json:"account_id" binding:"required"`
	Category  string          `json:"category" binding:"required"`
	Message   string          `json:"message" binding:"required"`
	Rating    *int            `json:"rating"`
	Metadata  json.RawMessage `json:"metadata"`
}

func (m *Module) handleCreate(c *gin.Context) {
	var req createFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := authorization.CurrentUserID(c)
	if err := m.accounts.RequireMember(c.Request.Context(), userID, req.AccountID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this account"})
		return
	}

	if req.Rating != nil && (*req.Rating < 1 || *req.Rating > 5) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rating must be between 1 and 5"})
		return
	}

	entry, err := m.store.Create(c.Request.Context(), CreateParams{
		AccountID: req.AccountID,
		UserID:    userID,
		Category:  req.Category,
		Message:   req.Message,
		Rating:    req.Rating,
		Metadata:  req.Metadata,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to submit feedback"})
		return
	}
	c.JSON(http.StatusCreated, entry)
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

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	results, err := m.store.List(c.Request.Context(), accountID, c.Query("status"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list feedback"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedback": results})
}

func (m *Module) handleAdminList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	results, err := m.store.List(c.Request.Context(), c.Query("account_id"), c.Query("status"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list feedback"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedback": results})
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (m *Module) handleUpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := m.store.UpdateStatus(c.Request.Context(), c.Param("feedbackId"), req.Status)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidStatus):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		case errors.Is(err, ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "feedback not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update status"})
		}
		return
	}
	c.JSON(http.StatusOK, entry)
}
