package authorization

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// registerAdminRoutes exposes user management to admins: listing,
// deactivation and full deletion with ownership cascade.
func registerAdminRoutes(router *gin.Engine, module *Module) {
	guard := module.Guard()
	admin := router.Group("/admin")
	admin.Use(guard.RequireAdmin())

	admin.GET("/users", func(c *gin.Context) {
		limit, _ := strconv.Atoi(strings.TrimSpace(c.Query("limit")))
		offset, _ := strconv.Atoi(strings.TrimSpace(c.Query("offset")))

		ctx := c.Request.Context()
		users, total, err := module.userStore.List(ctx, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
			return
		}

		payloads := make([]gin.H, 0, len(users))
		for i := range users {
			payloads = append(payloads, buildUserPayload(ctx, module.objectStorage, &users[i]))
		}
		c.JSON(http.StatusOK, gin.H{"users": payloads, "total": total})
	})

	admin.PUT("/users/:id/active", func(c *gin.Context) {
		var req struct {
			IsActive *bool `json:"is_active" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.IsActive == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "is_active is required"})
			return
		}

		userID := c.Param("id")
		if userID == CurrentUserID(c) && !*req.IsActive {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot deactivate yourself"})
			return
		}

		if err := module.userStore.SetActive(c.Request.Context(), userID, *req.IsActive); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": true})
	})

	admin.DELETE("/users/:id", func(c *gin.Context) {
		userID := c.Param("id")
		if userID == CurrentUserID(c) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete yourself"})
			return
		}

		if err := module.service.DeleteUser(c.Request.Context(), userID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete user"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	})
}
