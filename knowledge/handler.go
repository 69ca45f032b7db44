package knowledge

import (
	"errors"
	"io"
	"log"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"aurora_back/accounts"
	"aurora_back/agents"
	"aurora_back/authorization"
	"aurora_back/storage"
)

type Module struct {
	store    *Store
	accounts *accounts.Store
	agents   *agents.Store
	objects  *storage.ObjectStorage
}

func RegisterRoutes(router *gin.Engine, db *gorm.DB, guard *authorization.Guard, acctStore *accounts.Store, agentStore *agents.Store, objects *storage.ObjectStorage) (*Module, error) {
	store := NewStore(db)
	if err := store.Migrate(); err != nil {
		return nil, err
	}

	module := &Module{store: store, accounts: acctStore, agents: agentStore, objects: objects}

	secured := router.Group("/knowledge-base")
	secured.Use(guard.RequireAuthenticated())
	{
		secured.GET("/folders", module.handleListFolders)
		secured.POST("/folders", module.handleCreateFolder)
		secured.GET("/folders/:folderId/entries", module.handleListEntries)
		secured.POST("/folders/:folderId/entries", module.handleCreateEntry)
		secured.POST("/folders/:folderId/upload", module.handleUploadFile)
		secured.POST("/folders/:folderId/import-archive", module.handleImportArchive)
		secured.DELETE("/folders/:folderId", module.handleDeleteFolder)
		secured.GET("/agents/:agentId/context", module.handleAgentContext)
		secured.GET("/agents/:agentId/assignments", module.handleListAssignments)
		secured.PUT("/agents/:agentId/assignments/:entryId", module.handleAssign)
		secured.DELETE("/agents/:agentId/assignments/:entryId", module.handleUnassign)
		secured.GET("/:entryId", module.handleGetEntry)
		secured.PUT("/:entryId", module.handleUpdateEntry)
		secured.DELETE("/:entryId", module.handleDeleteEntry)
	}

	log.Println("knowledge module routes registered")
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

func (m *Module) requireFolder(c *gin.Context) (*Folder, bool) {
	folder, err := m.store.FindFolder(c.Request.Context(), c.Param("folderId"))
	if err != nil {
		if errors.Is(err, ErrFolderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "folder not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load folder"})
		}
		return nil, false
	}
	if !m.requireAccount(c, folder.AccountID) {
		return nil, false
	}
	return folder, true
}

func (m *Module) requireEntry(c *gin.Context) (*Entry, bool) {
	entry, err := m.store.FindEntry(c.Request.Context(), c.Param("entryId"))
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load entry"})
		}
		return nil, false
	}
	if !m.requireAccount(c, entry.AccountID) {
		return nil, false
	}
	return entry, true
}

// requireAgent resolves the agent from the route and checks the caller
// is a member of the agent's account. Context and assignment routes are
// keyed by agent id, so the account scope comes from the agent row.
func (m *Module) requireAgent(c *gin.Context) (*agents.Agent, bool) {
	agent, err := m.agents.FindByID(c.Request.Context(), c.Param("agentId"))
	if err != nil {
		if errors.Is(err, agents.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load agent"})
		}
		return nil, false
	}
	if !m.requireAccount(c, agent.AccountID) {
		return nil, false
	}
	return agent, true
}

func (m *Module) handleListFolders(c *gin.Context) {
	accountID := c.Query("account_id")
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "account_id is required"})
		return
	}
	if !m.requireAccount(c, accountID) {
		return
	}

	folders, err := m.store.ListFolders(c.Request.Context(), accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list folders"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"folders": folders})
}

type createFolderRequest struct {
	AccountID   string  `json:"account_id" binding:"required"`
	Name        string  `json:"name" binding:"required"`
	Description *string `json:"description"`
}

func (m *Module) handleCreateFolder(c *gin.Context) {
	var req createFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !m.requireAccount(c, req.AccountID) {
		return
	}

	folder, err := m.store.CreateFolder(c.Request.Context(), req.AccountID, req.Name, req.Description)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create folder"})
		return
	}
	c.JSON(http.StatusCreated, folder)
}

func (m *Module) handleDeleteFolder(c *gin.Context) {
	folder, ok := m.requireFolder(c)
	if !ok {
		return
	}

	if err := m.store.DeleteFolder(c.Request.Context(), folder.FolderID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete folder"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (m *Module) handleListEntries(c *gin.Context) {
	folder, ok := m.requireFolder(c)
	if !ok {
		return
	}

	entries, err := m.store.ListEntries(c.Request.Context(), folder.FolderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list entries"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

type createEntryRequest struct {
	Filename     string `json:"filename" binding:"required"`
	Summary      string `json:"summary"`
	Content      string `json:"content" binding:"required"`
	UsageContext string `json:"usage_context"`
}

func (m *Module) handleCreateEntry(c *gin.Context) {
	folder, ok := m.requireFolder(c)
	if !ok {
		return
	}

	var req createEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := m.store.CreateEntry(c.Request.Context(), EntryParams{
		FolderID:     folder.FolderID,
		AccountID:    folder.AccountID,
		Filename:     req.Filename,
		Summary:      req.Summary,
		Content:      req.Content,
		FileSize:     int64(len(req.Content)),
		MimeType:     "text/plain",
		UsageContext: req.UsageContext,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidUsage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid usage context"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create entry"})
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// handleUploadFile stores an uploaded document: text content is kept
// inline for context assembly, the raw object goes to MinIO when
// configured.
func (m *Module) handleUploadFile(c *gin.Context) {
	folder, ok := m.requireFolder(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	var content string
	if isTextPath(fileHeader.Filename) {
		src, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
			return
		}
		data, err := io.ReadAll(io.LimitReader(src, maxEntryBytes))
		src.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
			return
		}
		content = strings.TrimSpace(string(data))
	}

	var fileURL *string
	if m.objects != nil {
		url, err := m.objects.UploadFile(c.Request.Context(), fileHeader, "knowledge", folder.AccountID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
			return
		}
		fileURL = &url
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = mimeTypeForPath(fileHeader.Filename)
	}

	entry, err := m.store.CreateEntry(c.Request.Context(), EntryParams{
		FolderID:     folder.FolderID,
		AccountID:    folder.AccountID,
		Filename:     path.Base(fileHeader.Filename),
		Content:      content,
		FileURL:      fileURL,
		FileSize:     fileHeader.Size,
		MimeType:     mimeType,
		UsageContext: c.PostForm("usage_context"),
	})
	if err != nil {
		if errors.Is(err, ErrInvalidUsage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid usage context"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create entry"})
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// handleImportArchive expands a .zip or .rar upload into one entry per
// contained text file.
func (m *Module) handleImportArchive(c *gin.Context) {
	folder, ok := m.requireFolder(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	files, err := extractArchive(fileHeader)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entries := make([]Entry, 0, len(files))
	for _, file := range files {
		mimeType := mimeTypeForPath(file.Name)

		var fileURL *string
		if m.objects != nil {
			url, err := m.objects.UploadBytes(c.Request.Context(), []byte(file.Content), path.Base(file.Name), mimeType, "knowledge", folder.AccountID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store archive entry"})
				return
			}
			fileURL = &url
		}

		entry, err := m.store.CreateEntry(c.Request.Context(), EntryParams{
			FolderID:     folder.FolderID,
			AccountID:    folder.AccountID,
			Filename:     path.Base(file.Name),
			Content:      file.Content,
			FileURL:      fileURL,
			FileSize:     int64(len(file.Content)),
			MimeType:     mimeType,
			UsageContext: UsageAlways,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to import archive entry"})
			return
		}
		entries = append(entries, *entry)
	}
	c.JSON(http.StatusCreated, gin.H{"entries": entries, "imported": len(entries)})
}

func (m *Module) handleGetEntry(c *gin.Context) {
	entry, ok := m.requireEntry(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, entry)
}

type updateEntryRequest struct {
	Filename     *string `json:"filename"`
	Summary      *string `json:"summary"`
	Content      *string `json:"content"`
	IsActive     *bool   `json:"is_active"`
	UsageContext *string `json:"usage_context"`
}

func (m *Module) handleUpdateEntry(c *gin.Context) {
	entry, ok := m.requireEntry(c)
	if !ok {
		return
	}

	var req updateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := m.store.UpdateEntry(c.Request.Context(), entry.EntryID, UpdateEntryParams{
		Filename:     req.Filename,
		Summary:      req.Summary,
		Content:      req.Content,
		IsActive:     req.IsActive,
		UsageContext: req.UsageContext,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidUsage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid usage context"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update entry"})
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (m *Module) handleDeleteEntry(c *gin.Context) {
	entry, ok := m.requireEntry(c)
	if !ok {
		return
	}

	if err := m.store.DeleteEntry(c.Request.Context(), entry.EntryID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete entry"})
		return
	}

	if entry.FileURL != nil && m.objects != nil {
		if err := m.objects.Remove(c.Request.Context(), *entry.FileURL); err != nil {
			log.Printf("knowledge: remove stored file for entry %s: %v", entry.EntryID, err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (m *Module) handleAgentContext(c *gin.Context) {
	agent, ok := m.requireAgent(c)
	if !ok {
		return
	}
	maxTokens, _ := strconv.Atoi(c.DefaultQuery("max_tokens", "0"))

	assembled, err := m.store.AssembleContext(c.Request.Context(), agent.AgentID, maxTokens)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to assemble context"})
		return
	}
	if assembled == "" {
		c.JSON(http.StatusOK, gin.H{"context": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"context": assembled})
}

func (m *Module) handleListAssignments(c *gin.Context) {
	agent, ok := m.requireAgent(c)
	if !ok {
		return
	}
	assignments, err := m.store.ListAssignments(c.Request.Context(), agent.AgentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list assignments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignments": assignments})
}

type assignRequest struct {
	Enabled *bool `json:"enabled"`
}

func (m *Module) handleAssign(c *gin.Context) {
	agent, ok := m.requireAgent(c)
	if !ok {
		return
	}

	var req assignRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	entry, err := m.store.FindEntry(c.Request.Context(), c.Param("entryId"))
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load entry"})
		return
	}
	if entry.AccountID != agent.AccountID {
		c.JSON(http.StatusForbidden, gin.H{"error": "entry belongs to a different account"})
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	assignment, err := m.store.AssignToAgent(c.Request.Context(), agent.AgentID, entry.EntryID, agent.AccountID, enabled)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to assign entry"})
		return
	}
	c.JSON(http.StatusOK, assignment)
}

func (m *Module) handleUnassign(c *gin.Context) {
	agent, ok := m.requireAgent(c)
	if !ok {
		return
	}

	entry, err := m.store.FindEntry(c.Request.Context(), c.Param("entryId"))
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load entry"})
		return
	}
	if entry.AccountID != agent.AccountID {
		c.JSON(http.StatusForbidden, gin.H{"error": "entry belongs to a different account"})
		return
	}

	err = m.store.UnassignFromAgent(c.Request.Context(), agent.AgentID, entry.EntryID)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "assignment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove assignment"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}
