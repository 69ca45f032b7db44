package authorization

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	jwt "github.com/appleboy/gin-jwt/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"aurora_back/database"
	filestore "aurora_back/storage"
)

const (
	identityKey    = "user_id"
	defaultTimeout = time.Hour
)

const userAvatarURLExpiry = 15 * time.Minute

var (
	ErrEmailTaken      = errors.New("authorization: email already registered")
	ErrWeakPassword    = errors.New("authorization: password must be at least 6 characters")
	ErrInvalidUsername = errors.New("authorization: username cannot be empty")
)

// AccountProvisioner is implemented by the accounts store. Registration and
// user deletion run the account bootstrap/cascade on the same transaction as
// the user row so both commit or roll back together.
type AccountProvisioner interface {
	ProvisionPersonalAccountTx(tx *gorm.DB, userID, email string) error
	DeleteUserCascadeTx(tx *gorm.DB, userID string) error
}

// Module wires together the JWT middleware and backing services.
type Module struct {
	db            *gorm.DB
	userStore     *UserStore
	jwtMiddleware *jwt.GinJWTMiddleware
	captcha       *CaptchaStore
	objectStorage *filestore.ObjectStorage
	service       *AuthService
}

// RegisterRoutes bootstraps the authentication endpoints under /auth and the
// user-management endpoints under /admin.
func RegisterRoutes(router *gin.Engine, db *gorm.DB, provisioner AccountProvisioner, objectStorage *filestore.ObjectStorage) (*Module, error) {
	if db == nil {
		return nil, errors.New("authorization: database connection is required")
	}
	if provisioner == nil {
		return nil, errors.New("authorization: account provisioner is required")
	}

	if err := db.AutoMigrate(&User{}); err != nil {
		return nil, fmt.Errorf("authorization: migrate models: %w", err)
	}

	userStore := &UserStore{db: db}
	captchaStore := NewCaptchaStoreFromEnv()
	service := &AuthService{db: db, users: userStore, accounts: provisioner}

	middleware, err := buildJWTMiddleware(service, objectStorage)
	if err != nil {
		return nil, err
	}

	module := &Module{
		db:            db,
		userStore:     userStore,
		jwtMiddleware: middleware,
		captcha:       captchaStore,
		objectStorage: objectStorage,
		service:       service,
	}

	authGroup := router.Group("/auth")
	if captchaStore != nil {
		authGroup.GET("/captcha", func(c *gin.Context) {
			challenge := captchaStore.Issue()
			c.JSON(http.StatusOK, gin.H{
				"captcha_id": challenge.ID,
				"image":      challenge.ImageBase64,
				"expires_at": challenge.ExpiresAt.UTC(),
			})
		})
	}

	authGroup.POST("/register", module.handleRegister)
	authGroup.POST("/login", module.handleLogin)
	authGroup.POST("/refresh", middleware.RefreshHandler)

	secured := authGroup.Group("")
	secured.Use(middleware.MiddlewareFunc())
	secured.GET("/me", module.handleMe)
	secured.PUT("/profile", module.handleUpdateProfile)
	secured.POST("/profile/avatar", module.handleUploadAvatar)

	registerAdminRoutes(router, module)

	return module, nil
}

func (m *Module) handleRegister(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	if m.captcha != nil && !m.captcha.Verify(req.CaptchaID, req.CaptchaAnswer) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid captcha"})
		return
	}

	ctx := c.Request.Context()
	user, err := m.service.Register(ctx, req.Email, req.Password, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrMissingLoginValues):
			c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		case errors.Is(err, ErrWeakPassword):
			c.JSON(http.StatusBadRequest, gin.H{"error": ErrWeakPassword.Error()})
		case errors.Is(err, ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register"})
		}
		return
	}

	token, expire, err := m.jwtMiddleware.TokenGenerator(&AuthenticatedUser{
		ID:      user.ID,
		Email:   user.Email,
		IsAdmin: user.IsAdmin,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"access_token":  token,
		"refresh_token": token,
		"expires_at":    expire.UTC(),
		"user":          buildUserPayload(ctx, m.objectStorage, user),
	})
}

func (m *Module) handleLogin(c *gin.Context) {
	if m.captcha != nil {
		var probe struct {
			CaptchaID     string `json:"captcha_id"`
			CaptchaAnswer string `json:"captcha_answer"`
		}
		body, err := c.GetRawData()
		if err != nil || len(body) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
			return
		}
		if err := jsonUnmarshal(body, &probe); err != nil || !m.captcha.Verify(probe.CaptchaID, probe.CaptchaAnswer) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid captcha"})
			return
		}
		restoreRequestBody(c, body)
	}

	m.jwtMiddleware.LoginHandler(c)
}

func (m *Module) handleMe(c *gin.Context) {
	userID := CurrentUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ctx := c.Request.Context()
	user, err := m.userStore.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": buildUserPayload(ctx, m.objectStorage, user)})
}

func (m *Module) handleUpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if req.Username == nil && req.AvatarURL == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}

	userID := CurrentUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ctx := c.Request.Context()
	updated, err := m.userStore.UpdateProfile(ctx, userID, UpdateProfileParams{
		Username:  req.Username,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidUsername):
			c.JSON(http.StatusBadRequest, gin.H{"error": ErrInvalidUsername.Error()})
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update profile"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": buildUserPayload(ctx, m.objectStorage, updated)})
}

func (m *Module) handleUploadAvatar(c *gin.Context) {
	if m.objectStorage == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "avatar upload not configured"})
		return
	}

	userID := CurrentUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	file, err := c.FormFile("avatar")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "avatar file is required"})
		return
	}

	ctx := c.Request.Context()
	existing, err := m.userStore.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		}
		return
	}

	var oldAvatar string
	if existing.AvatarURL != nil {
		oldAvatar = strings.TrimSpace(*existing.AvatarURL)
	}

	uploaded, err := m.objectStorage.UploadAvatar(ctx, file, "users", userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to upload avatar", "details": err.Error()})
		return
	}

	updated, err := m.userStore.UpdateProfile(ctx, userID, UpdateProfileParams{AvatarURL: &uploaded})
	if err != nil {
		_ = m.objectStorage.Remove(ctx, uploaded)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update profile"})
		return
	}

	if oldAvatar != "" && oldAvatar != uploaded {
		_ = m.objectStorage.Remove(ctx, oldAvatar)
	}

	c.JSON(http.StatusOK, gin.H{"user": buildUserPayload(ctx, m.objectStorage, updated)})
}

// Middleware exposes the JWT middleware for other modules.
func (m *Module) Middleware() gin.HandlerFunc {
	if m == nil || m.jwtMiddleware == nil {
		return nil
	}
	return m.jwtMiddleware.MiddlewareFunc()
}

func buildJWTMiddleware(service *AuthService, store *filestore.ObjectStorage) (*jwt.GinJWTMiddleware, error) {
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return nil, errors.New("authorization: JWT_SECRET environment variable is required")
	}

	timeout := defaultTimeout
	if raw := strings.TrimSpace(os.Getenv("JWT_TIMEOUT_MINUTES")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Minute
		}
	}

	return jwt.New(&jwt.GinJWTMiddleware{
		Realm:       "aurora",
		Key:         []byte(secret),
		Timeout:     timeout,
		MaxRefresh:  7 * 24 * time.Hour,
		IdentityKey: identityKey,
		PayloadFunc: func(data interface{}) jwt.MapClaims {
			if user, ok := data.(*AuthenticatedUser); ok {
				return jwt.MapClaims{
					identityKey: user.ID,
					"email":     user.Email,
					"is_admin":  user.IsAdmin,
				}
			}
			return jwt.MapClaims{}
		},
		IdentityHandler: func(c *gin.Context) interface{} {
			claims := jwt.ExtractClaims(c)
			id, _ := claims[identityKey].(string)
			email, _ := claims["email"].(string)
			isAdmin, _ := claims["is_admin"].(bool)
			return &AuthenticatedUser{ID: id, Email: email, IsAdmin: isAdmin}
		},
		Authenticator: func(c *gin.Context) (interface{}, error) {
			var req LoginRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				return nil, jwt.ErrMissingLoginValues
			}

			user, err := service.Authenticate(c.Request.Context(), req.Email, req.Password)
			if err != nil {
				return nil, err
			}

			c.Set("authenticated_user", user)
			return user, nil
		},
		Authorizator: func(data interface{}, c *gin.Context) bool {
			user, ok := data.(*AuthenticatedUser)
			return ok && user.ID != ""
		},
		Unauthorized: func(c *gin.Context, code int, message string) {
			c.JSON(code, gin.H{"error": message})
		},
		LoginResponse: func(c *gin.Context, code int, token string, expire time.Time) {
			response := gin.H{
				"access_token":  token,
				"refresh_token": token,
				"expires_at":    expire.UTC(),
			}

			if value, ok := c.Get("authenticated_user"); ok {
				if authUser, ok := value.(*AuthenticatedUser); ok && authUser != nil {
					if user, err := service.users.FindByID(c.Request.Context(), authUser.ID); err == nil {
						response["user"] = buildUserPayload(c.Request.Context(), store, user)
					}
				}
			}

			c.JSON(code, response)
		},
		RefreshResponse: func(c *gin.Context, code int, token string, expire time.Time) {
			c.JSON(code, gin.H{
				"access_token":  token,
				"refresh_token": token,
				"expires_at":    expire.UTC(),
			})
		},
		// Header only: the client keeps the token in localStorage and
		// sends it explicitly, no auth cookie is issued. Routes that need
		// a query-string token (sendBeacon cannot set headers) promote it
		// into the header themselves before this middleware runs.
		TokenLookup:   "header: Authorization",
		TokenHeadName: "Bearer",
		TimeFunc:      time.Now,
	})
}

// LoginRequest represents the expected payload for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest captures the payload for user registration.
type RegisterRequest struct {
	Email         string `json:"email" binding:"required,email"`
	Password      string `json:"password" binding:"required,min=6"`
	Name          string `json:"name"`
	CaptchaID     string `json:"captcha_id"`
	CaptchaAnswer string `json:"captcha_answer"`
}

// UpdateProfileRequest captures profile update fields.
type UpdateProfileRequest struct {
	Username  *string `json:"username"`
	AvatarURL *string `json:"avatar_url"`
}

// AuthenticatedUser is the minimal identity stored inside JWT claims.
type AuthenticatedUser struct {
	ID      string
	Email   string
	IsAdmin bool
}

// CurrentUserID extracts the authenticated user id from the request claims.
func CurrentUserID(c *gin.Context) string {
	claims := jwt.ExtractClaims(c)
	if claims == nil {
		return ""
	}
	id, _ := claims[identityKey].(string)
	return id
}

// IsAdminRequest reports whether the request carries an admin identity.
func IsAdminRequest(c *gin.Context) bool {
	claims := jwt.ExtractClaims(c)
	if claims == nil {
		return false
	}
	isAdmin, _ := claims["is_admin"].(bool)
	return isAdmin
}

// AuthService handles authentication concerns.
type AuthService struct {
	db       *gorm.DB
	users    *UserStore
	accounts AccountProvisioner
}

// Authenticate validates the given credentials and returns an authenticated
// user. Deactivated users are rejected.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*AuthenticatedUser, error) {
	email = normalizeEmail(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, jwt.ErrMissingLoginValues
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, jwt.ErrFailedAuthentication
		}
		return nil, fmt.Errorf("authorization: authenticate user: %w", err)
	}
	if !user.IsActive {
		return nil, jwt.ErrFailedAuthentication
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, jwt.ErrFailedAuthentication
	}

	if err := s.users.TouchLastLogin(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("authorization: record login: %w", err)
	}

	return &AuthenticatedUser{ID: user.ID, Email: user.Email, IsAdmin: user.IsAdmin}, nil
}

// Register creates a user together with its personal account and owner
// membership in a single transaction. The personal account shares the user's
// id; re-running the bootstrap for an existing id creates nothing.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*User, error) {
	email = normalizeEmail(email)
	password = strings.TrimSpace(password)

	if email == "" || password == "" {
		return nil, jwt.ErrMissingLoginValues
	}
	if len(password) < 6 {
		return nil, ErrWeakPassword
	}

	username := strings.TrimSpace(name)
	if username == "" {
		if at := strings.Index(email, "@"); at > 0 {
			username = email[:at]
		} else {
			username = email
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("authorization: hash password: %w", err)
	}

	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		IsActive:     true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			if database.IsDuplicate(err) {
				return ErrEmailTaken
			}
			return fmt.Errorf("authorization: create user: %w", err)
		}
		return s.accounts.ProvisionPersonalAccountTx(tx, user.ID, user.Email)
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// DeleteUser removes the user and cascades to everything they own: accounts
// where they are primary owner (with their threads, agents, projects and the
// rest), plus their remaining memberships.
func (s *AuthService) DeleteUser(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.accounts.DeleteUserCascadeTx(tx, userID); err != nil {
			return err
		}
		result := tx.Where("id = ?", userID).Delete(&User{})
		if result.Error != nil {
			return fmt.Errorf("authorization: delete user: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func buildUserPayload(ctx context.Context, store *filestore.ObjectStorage, user *User) gin.H {
	if user == nil {
		return gin.H{}
	}

	var avatarField interface{}
	if user.AvatarURL != nil {
		avatarURL := strings.TrimSpace(*user.AvatarURL)
		if store != nil && avatarURL != "" {
			if signed, err := store.PresignedURL(ctx, avatarURL, userAvatarURLExpiry); err == nil && signed != "" {
				avatarURL = signed
			}
		}
		if avatarURL != "" {
			avatarField = avatarURL
		}
	}

	return gin.H{
		"id":            user.ID,
		"email":         user.Email,
		"username":      user.Username,
		"avatar_url":    avatarField,
		"is_active":     user.IsActive,
		"is_admin":      user.IsAdmin,
		"last_login_at": user.LastLoginAt,
		"created_at":    user.CreatedAt,
		"updated_at":    user.UpdatedAt,
	}
}
