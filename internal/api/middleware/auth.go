package middleware

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/orrn/remoteprint/internal/db"
)

const (
	cookieName          = "remoteprint_auth"
	adminSubject        = "admin"
	settingsKeyPassword = "admin_password"
)

// ContextKeySubject is where RequireAuth stores the token subject.
const ContextKeySubject = "auth_subject"

var (
	errSetupRequired = errors.New("setup required")
	errWrongPassword = errors.New("wrong password")
)

// AuthMiddleware guards the API with a single admin password. Sessions are
// JWTs carried in a cookie or an Authorization bearer header.
type AuthMiddleware struct {
	tokens *tokenIssuer
}

type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

type SetupRequest struct {
	Password string `json:"password" binding:"required,min=6"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=6"`
}

// SessionResponse is returned by every call that starts a session. The token
// is also set as a cookie.
type SessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Message   string    `json:"message,omitempty"`
}

type StatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	SetupRequired bool   `json:"setup_required"`
	Subject       string `json:"subject,omitempty"`
}

type authError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewAuthMiddleware loads the signing key from settings, creating one on
// first start.
func NewAuthMiddleware(ctx context.Context) (*AuthMiddleware, error) {
	key, err := loadSigningKey(ctx)
	if err != nil {
		return nil, err
	}
	return &AuthMiddleware{tokens: newTokenIssuer(key)}, nil
}

func (a *AuthMiddleware) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	auth.POST("/setup", a.SetupHandler)
	auth.POST("/login", a.LoginHandler)
	auth.POST("/logout", a.LogoutHandler)
	auth.GET("/status", a.StatusHandler)
	auth.POST("/password", a.RequireAuth(), a.ChangePasswordHandler)
}

func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := requestToken(c)
		if raw == "" {
			abort(c, http.StatusUnauthorized, "unauthorized", "Authentication required")
			return
		}

		claims, err := a.tokens.parse(raw)
		if err != nil {
			abort(c, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
			return
		}

		c.Set(ContextKeySubject, claims.Subject)
		c.Next()
	}
}

// SetupHandler stores the first admin password. It only succeeds once.
func (a *AuthMiddleware) SetupHandler(c *gin.Context) {
	ctx := c.Request.Context()
	configured, err := passwordConfigured(ctx)
	if err != nil {
		abort(c, http.StatusInternalServerError, "server_error", "Failed to read settings")
		return
	}
	if configured {
		abort(c, http.StatusBadRequest, "already_configured", "Setup already completed")
		return
	}

	var req SetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "validation_error", "Password must be at least 6 characters")
		return
	}

	if err := savePassword(ctx, req.Password); err != nil {
		abort(c, http.StatusInternalServerError, "server_error", "Failed to save password")
		return
	}
	a.startSession(c, "Setup completed")
}

func (a *AuthMiddleware) LoginHandler(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "validation_error", "Password is required")
		return
	}

	switch err := checkPassword(c.Request.Context(), req.Password); {
	case err == nil:
		a.startSession(c, "")
	case errors.Is(err, errSetupRequired):
		abort(c, http.StatusForbidden, "setup_required", "Setup required")
	case errors.Is(err, errWrongPassword):
		abort(c, http.StatusUnauthorized, "invalid_password", "Invalid password")
	default:
		abort(c, http.StatusInternalServerError, "server_error", "Failed to check password")
	}
}

func (a *AuthMiddleware) LogoutHandler(c *gin.Context) {
	c.SetCookie(cookieName, "", -1, "/", "", true, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (a *AuthMiddleware) StatusHandler(c *gin.Context) {
	if raw := requestToken(c); raw != "" {
		if claims, err := a.tokens.parse(raw); err == nil {
			c.JSON(http.StatusOK, StatusResponse{Authenticated: true, Subject: claims.Subject})
			return
		}
	}

	configured, err := passwordConfigured(c.Request.Context())
	if err != nil {
		abort(c, http.StatusInternalServerError, "server_error", "Failed to read settings")
		return
	}
	c.JSON(http.StatusOK, StatusResponse{SetupRequired: !configured})
}

// ChangePasswordHandler replaces the admin password and issues a fresh session.
func (a *AuthMiddleware) ChangePasswordHandler(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "validation_error", "New password must be at least 6 characters")
		return
	}

	ctx := c.Request.Context()
	if err := checkPassword(ctx, req.CurrentPassword); err != nil {
		if errors.Is(err, errWrongPassword) {
			abort(c, http.StatusUnauthorized, "invalid_password", "Current password is incorrect")
			return
		}
		abort(c, http.StatusInternalServerError, "server_error", "Failed to check password")
		return
	}

	if err := savePassword(ctx, req.NewPassword); err != nil {
		abort(c, http.StatusInternalServerError, "server_error", "Failed to update password")
		return
	}
	a.startSession(c, "Password changed")
}

func (a *AuthMiddleware) startSession(c *gin.Context, message string) {
	token, expires, err := a.tokens.issue(adminSubject)
	if err != nil {
		abort(c, http.StatusInternalServerError, "server_error", "Failed to issue token")
		return
	}

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(cookieName, token, int(a.tokens.ttl.Seconds()), "/", "", true, true)
	c.JSON(http.StatusOK, SessionResponse{Token: token, ExpiresAt: expires, Message: message})
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, authError{Error: code, Message: message})
}

func passwordConfigured(ctx context.Context) (bool, error) {
	_, err := db.Settings.GetSetting(ctx, settingsKeyPassword)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	default:
		return false, err
	}
}

func checkPassword(ctx context.Context, password string) error {
	setting, err := db.Settings.GetSetting(ctx, settingsKeyPassword)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errSetupRequired
		}
		return fmt.Errorf("failed to load password: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(setting.Value), []byte(password)); err != nil {
		return errWrongPassword
	}
	return nil
}

func savePassword(ctx context.Context, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := db.Settings.SetSetting(ctx, settingsKeyPassword, string(hash), false); err != nil {
		return fmt.Errorf("failed to store password: %w", err)
	}
	return nil
}
