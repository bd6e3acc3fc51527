package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meowdiary/cookie-bot/database"
	"github.com/meowdiary/cookie-bot/logger"
	"github.com/meowdiary/cookie-bot/middleware"
	"github.com/meowdiary/cookie-bot/repository"
	"github.com/meowdiary/cookie-bot/services"
	"github.com/meowdiary/cookie-bot/websocket"
)

// wipeConfirmPhrase must be sent verbatim to erase the database
const wipeConfirmPhrase = "ERASE ALL DATA"

// AdminHandler serves the admin dashboard endpoints
type AdminHandler struct {
	progression  *services.ProgressionService
	leaderboards *services.LeaderboardService
	userRepo     *repository.UserRepository
	wsHub        *websocket.Hub
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(progression *services.ProgressionService, leaderboards *services.LeaderboardService, wsHub *websocket.Hub) *AdminHandler {
	return &AdminHandler{
		progression:  progression,
		leaderboards: leaderboards,
		userRepo:     repository.NewUserRepository(),
		wsHub:        wsHub,
	}
}

// GetChats lists every chat the bot has seen with activity aggregates
func (h *AdminHandler) GetChats(c *gin.Context) {
	chats, err := h.leaderboards.ChatsOverview()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// GetUsers lists every tracked user ordered by lifetime experience
func (h *AdminHandler) GetUsers(c *gin.Context) {
	users, err := h.userRepo.GetAll()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// GetUser returns the full profile of one user
func (h *AdminHandler) GetUser(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	profile, err := h.progression.Profile(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}
	if profile == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":           profile.User,
		"stats":          profile.Stats,
		"achievements":   profile.Achievements,
		"badges":         profile.Badges,
		"cards":          profile.Cards,
		"next_level_exp": profile.NextLevelExp,
	})
}

// GetLeaderboard returns one chat's ranking for a named time range
func (h *AdminHandler) GetLeaderboard(c *gin.Context) {
	chatID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	timeRange := services.Range(c.DefaultQuery("range", string(services.RangeAll)))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	startTS, endTS := timeRange.Window(time.Now())
	entries, err := h.leaderboards.ChatLeaderboard(chatID, startTS, endTS, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build leaderboard"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"range": timeRange, "entries": entries})
}

// GetRules exposes the loaded rule tables for the dashboard
func (h *AdminHandler) GetRules(c *gin.Context) {
	rules := h.progression.Rules()
	c.JSON(http.StatusOK, gin.H{
		"achievements": rules.Achievements,
		"badges":       rules.Badges,
		"cards":        rules.Cards,
		"levels":       rules.Levels,
		"experience":   rules.Experience,
	})
}

// AdjustRequest is the request body for POST /users/:id/adjust
type AdjustRequest struct {
	Delta  int64  `json:"delta" binding:"required"`
	Reason string `json:"reason"`
}

// AdjustPoints applies a manual balance correction to one user
func (h *AdminHandler) AdjustPoints(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var req AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "delta is required and must be non-zero"})
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "api adjustment"
	}
	if claims := middleware.GetClaims(c); claims != nil {
		reason = fmt.Sprintf("%s (by %s)", reason, claims.Subject)
	}

	user, err := h.progression.AdminAdjustPoints(userID, req.Delta, reason)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidAdjustment):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "adjustment rejected: unknown user, zero delta, or balance would go negative"})
		case errors.Is(err, services.ErrConcurrentModification):
			c.JSON(http.StatusConflict, gin.H{"error": "storage busy, retry the adjustment"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply adjustment"})
		}
		return
	}

	h.wsHub.BroadcastAdjustment(user, req.Delta)
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// WipeRequest is the request body for POST /wipe
type WipeRequest struct {
	Confirm string `json:"confirm"`
}

// Wipe erases all stored data and recreates the schema. The exact
// confirmation phrase is required so a stray request cannot destroy
// anything.
func (h *AdminHandler) Wipe(c *gin.Context) {
	var req WipeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Confirm != wipeConfirmPhrase {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "confirmation phrase required",
			"hint":  "send {\"confirm\": \"" + wipeConfirmPhrase + "\"}",
		})
		return
	}

	if err := database.Wipe(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "wipe failed"})
		return
	}

	subject := "unknown"
	if claims := middleware.GetClaims(c); claims != nil {
		subject = claims.Subject
	}
	logger.Warnf("Database wiped via admin API by %s (%s)", subject, c.ClientIP())
	h.wsHub.BroadcastWipe()
	c.JSON(http.StatusOK, gin.H{"status": "wiped"})
}

// Status reports runtime information for the dashboard header
func (h *AdminHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"database":          database.Type(),
		"connected_clients": h.wsHub.GetConnectedUserCount(),
	})
}
