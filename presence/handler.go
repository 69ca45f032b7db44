package presence

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"aurora_back/authorization"
)

type Module struct {
	tracker *Tracker
}

func RegisterRoutes(router *gin.Engine, guard *authorization.Guard) *Module {
	module := &Module{tracker: NewTrackerFromEnv()}

	secured := router.Group("/presence")
	secured.Use(guard.RequireAuthenticated())
	{
		secured.POST("/update", module.handleUpdate)
		secured.GET("/project/:projectId", module.handleProject)
	}

	// sendBeacon cannot set headers, so clear takes the token as a query
	// parameter. Only this route accepts it: the token is promoted into
	// the Authorization header before the JWT middleware runs.
	router.GET("/presence/clear", bearerFromQuery(), guard.RequireAuthenticated(), module.handleClear)

	log.Println("presence module routes registered")
	return module
}

// bearerFromQuery copies a ?token= parameter into the Authorization
// header when no header was sent.
func bearerFromQuery() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			if token := c.Query("token"); token != "" {
				c.Request.Header.Set("Authorization", "Bearer "+token)
			}
		}
		c.Next()
	}
}

type updateRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	ProjectID string `json:"project_id"`
}

func (m *Module) handleUpdate(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := authorization.CurrentUserID(c)
	m.tracker.Update(c.Request.Context(), userID, req.SessionID, req.ProjectID)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (m *Module) handleClear(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	m.tracker.Clear(c.Request.Context(), sessionID)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (m *Module) handleProject(c *gin.Context) {
	sessions := m.tracker.ProjectSessions(c.Request.Context(), c.Param("projectId"))
	if sessions == nil {
		sessions = []Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}
