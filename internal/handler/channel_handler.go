package handler

import (
	"errors"
	"net/http"

	"channel-service/internal/client"
	"channel-service/internal/directory"
	"channel-service/internal/domain"
	"channel-service/internal/middleware"
	"channel-service/internal/permission"
	"channel-service/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ChannelHandler struct {
	service     *directory.Service
	channelRepo repository.ChannelRepository
	roleClient  client.RoleClient
}

func NewChannelHandler(
	service *directory.Service,
	channelRepo repository.ChannelRepository,
	roleClient client.RoleClient,
) *ChannelHandler {
	return &ChannelHandler{
		service:     service,
		channelRepo: channelRepo,
		roleClient:  roleClient,
	}
}

type CreateChannelRequest struct {
	Name        string  `json:"name" binding:"required,max=100"`
	WorkspaceID *string `json:"workspaceId"`
	IsPublic    bool    `json:"isPublic"`
	ReadOnly    bool    `json:"readOnly"`
	AccessLevel string  `json:"accessLevel" binding:"omitempty,oneof=all workspace_members admins_only"`
}

type UpdateChannelRequest struct {
	Name        *string `json:"name" binding:"omitempty,max=100"`
	ReadOnly    *bool   `json:"readOnly"`
	AccessLevel *string `json:"accessLevel" binding:"omitempty,oneof=all workspace_members admins_only"`
}

// roleContext resolves the caller's roles fresh for this request.
// Verdicts are never cached across actions.
func (h *ChannelHandler) roleContext(c *gin.Context, workspaceID *uuid.UUID) (domain.RoleContext, bool) {
	token, exists := middleware.GetToken(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return domain.RoleContext{}, false
	}

	rc, err := h.roleClient.GetRoleContext(c.Request.Context(), token, workspaceID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Role lookup failed"})
		return domain.RoleContext{}, false
	}
	return rc, true
}

// ListPublic godoc
// @Summary      List public channels
// @Description  Returns the public channels visible to the caller, sorted by name
// @Tags         channels
// @Produce      json
// @Success      200 {array} ChannelResponse
// @Failure      401 {object} map[string]string
// @Failure      502 {object} map[string]string
// @Router       /channels/public [get]
// @Security     BearerAuth
func (h *ChannelHandler) ListPublic(c *gin.Context) {
	rc, ok := h.roleContext(c, nil)
	if !ok {
		return
	}

	channels, err := h.channelRepo.ListPublic()
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Channel lookup failed"})
		return
	}

	visible := make([]domain.Channel, 0, len(channels))
	for _, ch := range channels {
		if permission.CanDiscover(&ch, rc) {
			visible = append(visible, ch)
		}
	}

	c.JSON(http.StatusOK, ToChannelResponses(visible))
}

// ListPrivate godoc
// @Summary      List private channels
// @Description  Returns the private channels of one workspace, sorted by name
// @Tags         channels
// @Produce      json
// @Param        workspaceId query string true "Workspace ID"
// @Success      200 {array} ChannelResponse
// @Failure      400 {object} map[string]string
// @Failure      403 {object} map[string]string
// @Router       /channels/private [get]
// @Security     BearerAuth
func (h *ChannelHandler) ListPrivate(c *gin.Context) {
	workspaceID, err := uuid.Parse(c.Query("workspaceId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid workspace ID"})
		return
	}

	rc, ok := h.roleContext(c, &workspaceID)
	if !ok {
		return
	}
	if rc.WorkspaceRole == domain.WorkspaceNone && !rc.IsGlobalAdmin() {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a workspace member"})
		return
	}

	channels, err := h.channelRepo.ListPrivate(workspaceID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Channel lookup failed"})
		return
	}

	c.JSON(http.StatusOK, ToChannelResponses(channels))
}

// GetChannel godoc
// @Summary      Get a channel
// @Description  Returns one channel by id
// @Tags         channels
// @Produce      json
// @Param        channelId path string true "Channel ID"
// @Success      200 {object} ChannelResponse
// @Failure      400 {object} map[string]string
// @Failure      404 {object} map[string]string
// @Router       /channels/{channelId} [get]
// @Security     BearerAuth
func (h *ChannelHandler) GetChannel(c *gin.Context) {
	channelID, err := uuid.Parse(c.Param("channelId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid channel ID"})
		return
	}

	channel, err := h.service.Get(c.Request.Context(), channelID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Channel not found"})
		return
	}

	c.JSON(http.StatusOK, ToChannelResponse(channel))
}

// CreateChannel godoc
// @Summary      Create a channel
// @Description  Creates a public or private channel. Private channels require a workspace
// @Tags         channels
// @Accept       json
// @Produce      json
// @Param        request body CreateChannelRequest true "Channel definition"
// @Success      201 {object} ChannelResponse
// @Failure      400 {object} map[string]string
// @Failure      403 {object} map[string]string
// @Router       /channels [post]
// @Security     BearerAuth
func (h *ChannelHandler) CreateChannel(c *gin.Context) {
	var req CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var workspaceID *uuid.UUID
	if req.WorkspaceID != nil {
		wid, err := uuid.Parse(*req.WorkspaceID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid workspace ID"})
			return
		}
		workspaceID = &wid
	}
	if !req.IsPublic && workspaceID == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Private channel requires a workspace"})
		return
	}

	channel := &domain.Channel{
		Name:        req.Name,
		WorkspaceID: workspaceID,
		IsPublic:    req.IsPublic,
		ReadOnly:    req.ReadOnly,
		AccessLevel: domain.AccessLevel(req.AccessLevel),
	}

	rc, ok := h.roleContext(c, workspaceID)
	if !ok {
		return
	}
	if !permission.CanManage(channel, rc) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient role to create channel"})
		return
	}

	if err := h.service.Create(c.Request.Context(), channel); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	middleware.RecordChannelCreated()
	c.JSON(http.StatusCreated, ToChannelResponse(channel))
}

// UpdateChannel godoc
// @Summary      Update a channel
// @Description  Changes a channel's name, read-only flag, or access level
// @Tags         channels
// @Accept       json
// @Produce      json
// @Param        channelId path string true "Channel ID"
// @Param        request body UpdateChannelRequest true "Fields to change"
// @Success      200 {object} ChannelResponse
// @Failure      400 {object} map[string]string
// @Failure      403 {object} map[string]string
// @Failure      404 {object} map[string]string
// @Router       /channels/{channelId} [patch]
// @Security     BearerAuth
func (h *ChannelHandler) UpdateChannel(c *gin.Context) {
	channelID, err := uuid.Parse(c.Param("channelId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid channel ID"})
		return
	}

	var req UpdateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	channel, err := h.service.Get(c.Request.Context(), channelID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Channel not found"})
		return
	}

	rc, ok := h.roleContext(c, channel.WorkspaceID)
	if !ok {
		return
	}
	if !permission.CanManage(channel, rc) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient role to update channel"})
		return
	}

	if req.Name != nil {
		channel.Name = *req.Name
	}
	if req.ReadOnly != nil {
		channel.ReadOnly = *req.ReadOnly
	}
	if req.AccessLevel != nil {
		channel.AccessLevel = domain.AccessLevel(*req.AccessLevel)
	}

	if err := h.service.Update(c.Request.Context(), channel); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ToChannelResponse(channel))
}

// DeleteChannel godoc
// @Summary      Delete a channel
// @Description  Destroys a channel and everything in it. Takes effect immediately
// @Tags         channels
// @Produce      json
// @Param        channelId path string true "Channel ID"
// @Success      204 {string} string "No Content"
// @Failure      400 {object} map[string]string
// @Failure      403 {object} map[string]string
// @Failure      404 {object} map[string]string
// @Router       /channels/{channelId} [delete]
// @Security     BearerAuth
func (h *ChannelHandler) DeleteChannel(c *gin.Context) {
	channelID, err := uuid.Parse(c.Param("channelId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid channel ID"})
		return
	}

	channel, err := h.service.Get(c.Request.Context(), channelID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Channel not found"})
		return
	}

	rc, ok := h.roleContext(c, channel.WorkspaceID)
	if !ok {
		return
	}
	if !permission.CanManage(channel, rc) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient role to delete channel"})
		return
	}

	if err := h.service.Delete(c.Request.Context(), channelID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Channel not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	middleware.RecordChannelDeleted()
	c.Status(http.StatusNoContent)
}
