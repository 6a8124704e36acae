package handler

import (
	"errors"
	"net/http"
	"strconv"
	"sync"

	"channel-service/internal/client"
	"channel-service/internal/domain"
	"channel-service/internal/lifecycle"
	"channel-service/internal/middleware"
	"channel-service/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MessageHandler serves the REST message surface. It shares one
// server-owned lifecycle coordinator, so a delete requested over REST
// and a delete requested over a socket for the same message converge
// on a single grace window.
type MessageHandler struct {
	coordinator *lifecycle.Coordinator
	messageRepo repository.MessageRepository
	channelRepo repository.ChannelRepository
	roleClient  client.RoleClient

	// undoable keeps the REST-issued delete handles; entries are
	// overwritten on re-delete and dropped on undo.
	mu       sync.Mutex
	undoable map[uuid.UUID]*lifecycle.PendingDelete
}

func NewMessageHandler(
	coordinator *lifecycle.Coordinator,
	messageRepo repository.MessageRepository,
	channelRepo repository.ChannelRepository,
	roleClient client.RoleClient,
) *MessageHandler {
	return &MessageHandler{
		coordinator: coordinator,
		messageRepo: messageRepo,
		channelRepo: channelRepo,
		roleClient:  roleClient,
		undoable:    make(map[uuid.UUID]*lifecycle.PendingDelete),
	}
}

type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

type EditMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji" binding:"required,max=32"`
}

func (h *MessageHandler) auth(c *gin.Context) (uuid.UUID, string, bool) {
	userIDStr, exists := middleware.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return uuid.Nil, "", false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return uuid.Nil, "", false
	}
	token, _ := middleware.GetToken(c)
	return userID, token, true
}

func (h *MessageHandler) loadChannel(c *gin.Context) (*domain.Channel, bool) {
	channelID, err := uuid.Parse(c.Param("channelId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid channel ID"})
		return nil, false
	}
	channel, err := h.channelRepo.GetByID(channelID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Channel not found"})
		return nil, false
	}
	return channel, true
}

// ListMessages godoc
// @Summary      Message history
// @Description  Returns a channel's messages, newest first, with reactions
// @Tags         messages
// @Produce      json
// @Param        channelId path string true "Channel ID"
// @Param        limit query int false "Page size" default(50)
// @Param        offset query int false "Page offset" default(0)
// @Success      200 {array} MessageResponse
// @Failure      400 {object} map[string]string
// @Failure      404 {object} map[string]string
// @Router       /channels/{channelId}/messages [get]
// @Security     BearerAuth
func (h *MessageHandler) ListMessages(c *gin.Context) {
	channel, ok := h.loadChannel(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	messages, err := h.messageRepo.ListByChannel(channel.ID, limit, offset)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Message lookup failed"})
		return
	}

	c.JSON(http.StatusOK, ToMessageResponses(messages))
}

// SendMessage godoc
// @Summary      Send a message
// @Description  Posts a message to a channel after a posting-permission check
// @Tags         messages
// @Accept       json
// @Produce      json
// @Param        channelId path string true "Channel ID"
// @Param        request body SendMessageRequest true "Message content"
// @Success      201 {object} MessageResponse
// @Failure      400 {object} map[string]string
// @Failure      403 {object} map[string]string
// @Router       /channels/{channelId}/messages [post]
// @Security     BearerAuth
func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID, token, ok := h.auth(c)
	if !ok {
		return
	}
	channel, ok := h.loadChannel(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rc, err := h.roleClient.GetRoleContext(c.Request.Context(), token, channel.WorkspaceID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Role lookup failed"})
		return
	}

	message, err := h.coordinator.Send(c.Request.Context(), channel, userID, req.Content, rc)
	if err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Posting not allowed in this channel"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	middleware.RecordMessageSent()
	c.JSON(http.StatusCreated, ToMessageResponse(message))
}

// EditMessage godoc
// @Summary      Edit a message
// @Description  Rewrites a message's content. Authors only
// @Tags         messages
// @Accept       json
// @Produce      json
// @Param        channelId path string true "Channel ID"
// @Param        messageId path string true "Message ID"
// @Param        request body EditMessageRequest true "New content"
// @Success      200 {object} MessageResponse
// @Failure      400 {object} map[string]string
// @Failure      403 {object} map[string]string
// @Failure      404 {object} map[string]string
// @Router       /channels/{channelId}/messages/{messageId} [patch]
// @Security     BearerAuth
func (h *MessageHandler) EditMessage(c *gin.Context) {
	userID, _, ok := h.auth(c)
	if !ok {
		return
	}

	message, ok := h.loadMessage(c)
	if !ok {
		return
	}

	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.coordinator.Edit(c.Request.Context(), message, userID, req.Content); err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Only the author may edit"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ToMessageResponse(message))
}

// RequestDelete godoc
// @Summary      Request a message deletion
// @Description  Starts the undo grace window; the store delete runs when it expires
// @Tags         messages
// @Produce      json
// @Param        channelId path string true "Channel ID"
// @Param        messageId path string true "Message ID"
// @Success      202 {object} PendingDeleteResponse
// @Failure      400 {object} map[string]string
// @Failure      403 {object} map[string]string
// @Failure      404 {object} map[string]string
// @Router       /channels/{channelId}/messages/{messageId} [delete]
// @Security     BearerAuth
func (h *MessageHandler) RequestDelete(c *gin.Context) {
	userID, token, ok := h.auth(c)
	if !ok {
		return
	}
	channel, ok := h.loadChannel(c)
	if !ok {
		return
	}
	message, ok := h.loadMessage(c)
	if !ok {
		return
	}

	rc, err := h.roleClient.GetRoleContext(c.Request.Context(), token, channel.WorkspaceID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Role lookup failed"})
		return
	}

	pending, err := h.coordinator.RequestDelete(c.Request.Context(), message, channel, userID, rc)
	if err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Deletion not allowed"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.mu.Lock()
	h.undoable[message.ID] = pending
	h.mu.Unlock()

	middleware.RecordDeleteRequested()
	c.JSON(http.StatusAccepted, ToPendingDeleteResponse(pending))
}

// UndoDelete godoc
// @Summary      Undo a pending deletion
// @Description  Cancels a deletion still inside its grace window. A no-op after expiry
// @Tags         messages
// @Produce      json
// @Param        channelId path string true "Channel ID"
// @Param        messageId path string true "Message ID"
// @Success      200 {object} map[string]string
// @Failure      400 {object} map[string]string
// @Router       /channels/{channelId}/messages/{messageId}/undo [post]
// @Security     BearerAuth
func (h *MessageHandler) UndoDelete(c *gin.Context) {
	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message ID"})
		return
	}

	h.mu.Lock()
	pending := h.undoable[messageID]
	delete(h.undoable, messageID)
	h.mu.Unlock()

	if pending == nil {
		// Already expired or never requested here; nothing to cancel.
		c.JSON(http.StatusOK, gin.H{"status": "expired"})
		return
	}

	pending.Undo()
	middleware.RecordDeleteUndone()
	c.JSON(http.StatusOK, gin.H{"status": "restored"})
}

// AddReaction godoc
// @Summary      Add a reaction
// @Description  Adds an emoji reaction. Repeating the same reaction is a no-op
// @Tags         reactions
// @Accept       json
// @Produce      json
// @Param        channelId path string true "Channel ID"
// @Param        messageId path string true "Message ID"
// @Param        request body ReactionRequest true "Emoji"
// @Success      201 {object} ReactionResponse
// @Failure      400 {object} map[string]string
// @Failure      404 {object} map[string]string
// @Router       /channels/{channelId}/messages/{messageId}/reactions [post]
// @Security     BearerAuth
func (h *MessageHandler) AddReaction(c *gin.Context) {
	userID, _, ok := h.auth(c)
	if !ok {
		return
	}
	message, ok := h.loadMessage(c)
	if !ok {
		return
	}

	var req ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reaction, err := h.coordinator.AddReaction(c.Request.Context(), message, userID, req.Emoji)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, ToReactionResponse(reaction))
}

// RemoveReaction godoc
// @Summary      Remove a reaction
// @Description  Removes the caller's emoji reaction from a message
// @Tags         reactions
// @Accept       json
// @Produce      json
// @Param        channelId path string true "Channel ID"
// @Param        messageId path string true "Message ID"
// @Param        request body ReactionRequest true "Emoji"
// @Success      204 {string} string "No Content"
// @Failure      400 {object} map[string]string
// @Failure      404 {object} map[string]string
// @Router       /channels/{channelId}/messages/{messageId}/reactions [delete]
// @Security     BearerAuth
func (h *MessageHandler) RemoveReaction(c *gin.Context) {
	userID, _, ok := h.auth(c)
	if !ok {
		return
	}
	message, ok := h.loadMessage(c)
	if !ok {
		return
	}

	var req ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.coordinator.RemoveReaction(c.Request.Context(), message, userID, req.Emoji); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *MessageHandler) loadMessage(c *gin.Context) (*domain.Message, bool) {
	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message ID"})
		return nil, false
	}
	message, err := h.messageRepo.GetByID(messageID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
		return nil, false
	}
	return message, true
}
