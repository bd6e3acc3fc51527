package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meowdiary/cookie-bot/auth"
	"github.com/meowdiary/cookie-bot/config"
	"github.com/meowdiary/cookie-bot/logger"
)

// AuthHandler handles admin API authentication
type AuthHandler struct {
	cfg        *config.Config
	jwtManager *auth.JWTManager
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(cfg *config.Config, jwtManager *auth.JWTManager) *AuthHandler {
	return &AuthHandler{cfg: cfg, jwtManager: jwtManager}
}

// LoginRequest is the request body for POST /auth/login
type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// LoginResponse is the response for a successful login
type LoginResponse struct {
	Token string `json:"token"`
}

// Login exchanges the admin password for a session token
func (h *AuthHandler) Login(c *gin.Context) {
	if h.cfg.AdminPassword == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "admin login is not configured"})
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is required"})
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.cfg.AdminPassword)) != 1 {
		logger.Warnf("Failed admin login attempt from %s", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
		return
	}

	token, err := h.jwtManager.GenerateToken("admin")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{Token: token})
}
