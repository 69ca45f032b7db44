package memory

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
	worker   *Worker
}

func RegisterRoutes(router *gin.Engine, db *gorm.DB, guard *authorization.Guard, acctStore *accounts.Store) (*Module, error) {
	store := NewStore(db)
	if err := store.Migrate(); err != nil {
		return nil, err
	}

	module := &Module{
		store:    store,
		accounts: acctStore,
		worker:   StartWorkerFromEnv(store, nil),
	}

	secured := router.Group("/memory")
	secured.Use(guard.RequireAuthenticated())
	{
		secured.GET("", module.handleList)
		secured.POST("", module.handleAdd)
		secured.PUT("/:memoryId/deactivate", module.handleDeactivate)
		secured.DELETE("/:memoryId", module.handleDelete)
		secured.GET("/stats", module.handleStats)
		secured.GET("/queue", module.handleListQueue)
		secured.POST("/extract", module.handleEnqueue)
	}

	log.Println("memory module routes registered")
	return module, nil
}

func (m *Module) Store() *Store {
	return m.store
}

// Worker returns the polling worker, nil when disabled.
func (m *Module) Worker() *Worker {
	return m.worker
}

func (m *Module) requireAccount(c *gin.Context, accountID string) bool {
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account_id is required"})
		return false
	}
	userID := authorization.CurrentUserID(c)
	if err := m.accounts.RequireMember(c.Request.Context(), userID, accountID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this account"})
		return false
	}
	return true
}

func (m *Module) handleList(c *gin.Context) {
	accountID := c.Query("account_id")
	if !m.requireAccount(c, accountID) {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	memories, err := m.store.List(c.Request.Context(), accountID, c.Query("memory_type"), c.Query("search"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list memories"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"memories": memories})
}

type addMemoryRequest struct {
	AccountID      string          `json:"account_id" binding:"required"`
	MemoryType     string          `json:"memory_type" binding:"required"`
	Content        string          `json:"content" binding:"required"`
	Confidence     float64         `json:"confidence"`
	SourceThreadID *string         `json:"source_thread_id"`
	Metadata       json.RawMessage `json:"metadata"`
}

func (m *Module) handleAdd(c *gin.Context) {
	var req addMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !m.requireAccount(c, req.AccountID) {
		return
	}

	memory, err := m.store.Add(c.Request.Context(), AddParams{
		AccountID:      req.AccountID,
		MemoryType:     req.MemoryType,
		Content:        req.Content,
		Confidence:     req.Confidence,
		SourceThreadID: req.SourceThreadID,
		Metadata:       req.Metadata,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid memory type"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add memory"})
		return
	}
	c.JSON(http.StatusCreated, memory)
}

func (m *Module) handleDeactivate(c *gin.Context) {
	accountID := c.Query("account_id")
	if !m.requireAccount(c, accountID) {
		return
	}

	err := m.store.Deactivate(c.Request.Context(), accountID, c.Param("memoryId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "memory not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to deactivate memory"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}

func (m *Module) handleDelete(c *gin.Context) {
	accountID := c.Query("account_id")
	if !m.requireAccount(c, accountID) {
		return
	}

	err := m.store.Delete(c.Request.Context(), accountID, c.Param("memoryId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "memory not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete memory"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (m *Module) handleStats(c *gin.Context) {
	accountID := c.Query("account_id")
	if !m.requireAccount(c, accountID) {
		return
	}

	stats, err := m.store.GetStats(c.Request.Context(), accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load memory stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (m *Module) handleListQueue(c *gin.Context) {
	accountID := c.Query("account_id")
	if !m.requireAccount(c, accountID) {
		return
	}

	items, err := m.store.ListQueue(c.Request.Context(), accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list extraction queue"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"queue": items})
}

type enqueueRequest struct {
	AccountID  string          `json:"account_id" binding:"required"`
	ThreadID   string          `json:"thread_id" binding:"required"`
	MessageIDs json.RawMessage `json:"message_ids"`
	Priority   int             `json:"priority"`
}

func (m *Module) handleEnqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !m.requireAccount(c, req.AccountID) {
		return
	}

	item, err := m.store.Enqueue(c.Request.Context(), req.AccountID, req.ThreadID, req.MessageIDs, req.Priority)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue extraction"})
		return
	}
	c.JSON(http.StatusCreated, item)
}
