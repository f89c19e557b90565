package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/scentmatch/scentmatch/internal/database"
	"github.com/scentmatch/scentmatch/internal/errors"
	"github.com/scentmatch/scentmatch/internal/middleware"
)

// actorID resolves the calling user from the X-User-ID header set by the
// upstream gateway. Authentication itself happens there.
func actorID(c *gin.Context) (string, bool) {
	id := c.GetHeader("X-User-ID")
	if id == "" {
		middleware.HandleError(c, errors.NewInvalidArgumentError("user_id", "X-User-ID header is required"))
		return "", false
	}
	return id, true
}

type likeRequest struct {
	TargetID string `json:"target_id" binding:"required"`
}

func (s *Server) handleLike(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}

	var req likeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewInvalidArgumentError("target_id", "target_id is required"))
		return
	}

	match, mutual, err := s.matching.Like(c.Request.Context(), actor, req.TargetID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"match": match, "mutual": mutual})
}

func (s *Server) handlePass(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}

	var req likeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewInvalidArgumentError("target_id", "target_id is required"))
		return
	}

	match, err := s.matching.Pass(c.Request.Context(), actor, req.TargetID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"match": match})
}

func (s *Server) handleGetMatches(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}

	status := database.MatchStatus(c.DefaultQuery("status", string(database.MatchStatusMutual)))
	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)

	matches, err := s.matching.GetMatches(c.Request.Context(), actor, status, limit, offset)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

func (s *Server) handleGetMatch(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}

	match, err := s.matching.GetMatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	if !match.HasParticipant(actor) {
		middleware.HandleError(c, errors.NewNotFoundError("match"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"match": match})
}

func (s *Server) handleUnmatch(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}

	match, err := s.matching.Unmatch(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"match": match})
}

func (s *Server) handleGetStats(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}

	stats, err := s.matching.GetStats(c.Request.Context(), actor)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

type sendMessageRequest struct {
	Content     string `json:"content" binding:"required"`
	MessageType string `json:"message_type"`
}

func (s *Server) handleSendMessage(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewInvalidArgumentError("content", "content is required"))
		return
	}

	view, err := s.conversations.SendMessage(c.Request.Context(), actor, c.Param("id"), req.Content, database.MessageType(req.MessageType))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": view})
}

func (s *Server) handleGetMessages(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}

	limit := queryInt(c, "limit", 50)

	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			middleware.HandleError(c, errors.NewInvalidArgumentError("before", "before must be an RFC3339 timestamp"))
			return
		}
		before = &parsed
	}

	messages, err := s.conversations.GetMessages(c.Request.Context(), actor, c.Param("id"), before, limit)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (s *Server) handleMarkRead(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}

	if err := s.conversations.MarkConversationRead(c.Request.Context(), actor, c.Param("id")); err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleGetConversations(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}

	conversations, err := s.conversations.GetConversations(c.Request.Context(), actor)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

func (s *Server) handleUnreadCount(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}

	count, err := s.conversations.GetUnreadCount(c.Request.Context(), actor)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

func (s *Server) handleGetProfile(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}

	profile, err := s.scents.GetProfile(c.Request.Context(), actor)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

type saveProfileRequest struct {
	ScentNotes     []string `json:"scent_notes" binding:"required"`
	Intensity      int      `json:"intensity" binding:"required"`
	PreferredNotes []string `json:"preferred_notes" binding:"required"`
	AvoidNotes     []string `json:"avoid_notes"`
}

func (s *Server) handleSaveProfile(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}

	var req saveProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewInvalidArgumentError("profile", "scent_notes, intensity, and preferred_notes are required"))
		return
	}

	profile, err := s.scents.SaveProfile(c.Request.Context(), &database.ScentProfile{
		UserID:         actor,
		ScentNotes:     req.ScentNotes,
		Intensity:      req.Intensity,
		PreferredNotes: req.PreferredNotes,
		AvoidNotes:     req.AvoidNotes,
	})
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

func (s *Server) handleCompatibility(c *gin.Context) {
	actor, ok := actorID(c)
	if !ok {
		return
	}

	result, err := s.scents.Compatibility(c.Request.Context(), actor, c.Param("user_id"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"compatibility": result})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
