package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"channel-service/internal/bus"
	"channel-service/internal/client"
	"channel-service/internal/directory"
	"channel-service/internal/domain"
	"channel-service/internal/lifecycle"
	"channel-service/internal/middleware"
	"channel-service/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"channel-service/internal/presence"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WSFrame is the frame format for both socket endpoints. Unused fields
// are omitted per frame type.
type WSFrame struct {
	Type        string               `json:"type"`
	ChannelID   string               `json:"channelId,omitempty"`
	MessageID   string               `json:"messageId,omitempty"`
	WorkspaceID *string              `json:"workspaceId,omitempty"`
	Content     string               `json:"content,omitempty"`
	Emoji       string               `json:"emoji,omitempty"`
	Deadline    *time.Time           `json:"deadline,omitempty"`
	Error       string               `json:"error,omitempty"`
	Message     *MessageResponse     `json:"message,omitempty"`
	Reaction    *ReactionResponse    `json:"reaction,omitempty"`
	Typing      []TypingUserResponse `json:"typing,omitempty"`
	Directory   *DirectoryResponse   `json:"directory,omitempty"`
}

// Client is one channel socket session. It owns its lifecycle
// coordinator and presence synchronizer; both die with the connection.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	channel *domain.Channel
	userID  uuid.UUID
	token   string
	hub     *Hub

	coordinator  *lifecycle.Coordinator
	synchronizer *presence.Synchronizer

	mu      sync.Mutex
	pending map[uuid.UUID]*lifecycle.PendingDelete
}

func (c *Client) push(frame WSFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

type hubSubscription struct {
	sub    *bus.Subscription
	cancel context.CancelFunc
}

// Hub tracks the channel socket sessions. It holds exactly one bus
// subscription per channel with at least one connected client and fans
// each change event out to the channel's local clients.
type Hub struct {
	changeBus  *bus.Bus
	logger     *zap.Logger
	register   chan *Client
	unregister chan *Client

	clientsMu sync.RWMutex
	clients   map[uuid.UUID]map[*Client]bool

	subsMu sync.Mutex
	subs   map[uuid.UUID]*hubSubscription
}

func newHub(changeBus *bus.Bus, logger *zap.Logger) *Hub {
	return &Hub{
		changeBus:  changeBus,
		logger:     logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[uuid.UUID]map[*Client]bool),
		subs:       make(map[uuid.UUID]*hubSubscription),
	}
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			channelID := client.channel.ID

			h.clientsMu.Lock()
			if h.clients[channelID] == nil {
				h.clients[channelID] = make(map[*Client]bool)
			}
			first := len(h.clients[channelID]) == 0
			h.clients[channelID][client] = true
			h.clientsMu.Unlock()

			if first {
				h.subscribeChannel(channelID)
			}

			h.logger.Info("Client registered",
				zap.String("channelId", channelID.String()),
				zap.String("userId", client.userID.String()))

		case client := <-h.unregister:
			channelID := client.channel.ID

			h.clientsMu.Lock()
			if clients, ok := h.clients[channelID]; ok {
				if _, exists := clients[client]; exists {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.clients, channelID)
					}
				}
			}
			last := h.clients[channelID] == nil
			h.clientsMu.Unlock()

			if last {
				h.unsubscribeChannel(channelID)
			}

			h.logger.Info("Client unregistered",
				zap.String("channelId", channelID.String()),
				zap.String("userId", client.userID.String()))
		}
	}
}

func (h *Hub) subscribeChannel(channelID uuid.UUID) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := h.changeBus.SubscribeChannel(ctx, channelID)

	h.subsMu.Lock()
	h.subs[channelID] = &hubSubscription{sub: sub, cancel: cancel}
	h.subsMu.Unlock()

	go h.fanout(ctx, channelID, sub)
}

func (h *Hub) unsubscribeChannel(channelID uuid.UUID) {
	h.subsMu.Lock()
	entry := h.subs[channelID]
	delete(h.subs, channelID)
	h.subsMu.Unlock()

	if entry != nil {
		entry.cancel()
		entry.sub.Close()
	}
}

func (h *Hub) fanout(ctx context.Context, channelID uuid.UUID, sub *bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			frame, ok := eventToFrame(channelID, event)
			if !ok {
				continue
			}
			h.broadcast(channelID, frame)
		}
	}
}

// eventToFrame converts a bus change event into the outbound frame
// clients receive. Unknown combinations are dropped.
func eventToFrame(channelID uuid.UUID, event domain.ChangeEvent) (WSFrame, bool) {
	switch event.Entity {
	case domain.EntityMessage:
		row, err := event.MessageRow()
		if err != nil {
			return WSFrame{}, false
		}
		frame := WSFrame{
			ChannelID: channelID.String(),
			MessageID: row.ID.String(),
		}
		switch event.Op {
		case domain.OpInsert:
			frame.Type = "MESSAGE_NEW"
			resp := ToMessageResponse(&row)
			frame.Message = &resp
		case domain.OpUpdate:
			frame.Type = "MESSAGE_UPDATED"
			resp := ToMessageResponse(&row)
			frame.Message = &resp
		case domain.OpDelete:
			frame.Type = "MESSAGE_DELETED"
		default:
			return WSFrame{}, false
		}
		return frame, true

	case domain.EntityReaction:
		row, err := event.ReactionRow()
		if err != nil {
			return WSFrame{}, false
		}
		frame := WSFrame{
			ChannelID: channelID.String(),
			MessageID: row.MessageID.String(),
		}
		switch event.Op {
		case domain.OpInsert:
			frame.Type = "REACTION_ADDED"
			resp := ToReactionResponse(&row)
			frame.Reaction = &resp
		case domain.OpDelete:
			frame.Type = "REACTION_REMOVED"
			frame.Emoji = row.Emoji
		default:
			return WSFrame{}, false
		}
		return frame, true
	}
	return WSFrame{}, false
}

func (h *Hub) broadcast(channelID uuid.UUID, frame WSFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}

	h.clientsMu.RLock()
	clients := h.clients[channelID]
	h.clientsMu.RUnlock()

	for client := range clients {
		select {
		case client.send <- payload:
		default:
		}
	}
}

type WSHandler struct {
	logger        *zap.Logger
	validator     middleware.TokenValidator
	roleClient    client.RoleClient
	profileClient client.ProfileClient
	channelRepo   repository.ChannelRepository
	messageRepo   repository.MessageRepository
	changeBus     *bus.Bus
	rdb           *redis.Client
	hub           *Hub
}

func NewWSHandler(
	logger *zap.Logger,
	validator middleware.TokenValidator,
	roleClient client.RoleClient,
	profileClient client.ProfileClient,
	channelRepo repository.ChannelRepository,
	messageRepo repository.MessageRepository,
	changeBus *bus.Bus,
	rdb *redis.Client,
) *WSHandler {
	hub := newHub(changeBus, logger)
	go hub.run()

	return &WSHandler{
		logger:        logger,
		validator:     validator,
		roleClient:    roleClient,
		profileClient: profileClient,
		channelRepo:   channelRepo,
		messageRepo:   messageRepo,
		changeBus:     changeBus,
		rdb:           rdb,
		hub:           hub,
	}
}

// HandleChannelSocket godoc
// @Summary      Channel WebSocket
// @Description  Live message, reaction, and typing stream for one channel
// @Tags         websocket
// @Param        channelId path string true "Channel ID"
// @Param        token query string true "JWT Access Token"
// @Success      101 {string} string "Switching Protocols"
// @Failure      401 {object} map[string]string
// @Router       /ws/channels/{channelId} [get]
func (h *WSHandler) HandleChannelSocket(c *gin.Context) {
	channelID, err := uuid.Parse(c.Param("channelId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid channel ID"})
		return
	}

	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	userID, err := h.validator.ValidateToken(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}

	channel, err := h.channelRepo.GetByID(channelID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Channel not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	wsClient := &Client{
		conn:    conn,
		send:    make(chan []byte, 256),
		channel: channel,
		userID:  userID,
		token:   token,
		hub:     h.hub,
		pending: make(map[uuid.UUID]*lifecycle.PendingDelete),
	}

	wsClient.coordinator = lifecycle.NewCoordinator(
		h.messageRepo,
		h.changeBus,
		lifecycle.DefaultGracePeriod,
		lifecycle.Callbacks{
			Restore: func(messageID uuid.UUID) {
				wsClient.push(WSFrame{
					Type:      "DELETE_RESTORED",
					ChannelID: channelID.String(),
					MessageID: messageID.String(),
				})
			},
			DeleteFailed: func(messageID uuid.UUID, err error) {
				wsClient.push(WSFrame{
					Type:      "DELETE_FAILED",
					ChannelID: channelID.String(),
					MessageID: messageID.String(),
					Error:     err.Error(),
				})
			},
		},
		h.logger,
	)

	wsClient.synchronizer = presence.NewSynchronizer(
		h.rdb,
		h.profileClient,
		userID,
		presence.DefaultTypingTTL,
		func(profiles []domain.Profile) {
			wsClient.push(WSFrame{
				Type:      "TYPING",
				ChannelID: channelID.String(),
				Typing:    ToTypingUserResponses(profiles),
			})
		},
		h.logger,
	)

	if err := wsClient.synchronizer.Join(ctx, channelID); err != nil {
		h.logger.Warn("Failed to join presence", zap.Error(err))
	}

	h.hub.register <- wsClient
	middleware.RecordWebSocketConnection()

	go h.writePump(wsClient)
	go h.readPump(wsClient)
}

func (h *WSHandler) readPump(client *Client) {
	defer func() {
		client.synchronizer.Leave(context.Background())
		client.coordinator.Close()
		h.hub.unregister <- client
		client.conn.Close()
		middleware.RecordWebSocketDisconnection()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		var frame WSFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			h.logger.Warn("Failed to parse frame", zap.Error(err))
			continue
		}

		if err := h.handleFrame(client, &frame); err != nil {
			client.push(WSFrame{Type: "ERROR", Error: err.Error()})
		}
	}
}

func (h *WSHandler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) handleFrame(client *Client, frame *WSFrame) error {
	switch frame.Type {
	case "MESSAGE":
		return h.handleSend(client, frame)
	case "EDIT_MESSAGE":
		return h.handleEdit(client, frame)
	case "DELETE_MESSAGE":
		return h.handleDelete(client, frame)
	case "UNDO_DELETE":
		return h.handleUndo(client, frame)
	case "TYPING_START":
		middleware.RecordTypingSignal()
		return client.synchronizer.SetTyping(context.Background(), true)
	case "TYPING_STOP":
		return client.synchronizer.SetTyping(context.Background(), false)
	case "ADD_REACTION":
		return h.handleAddReaction(client, frame)
	case "REMOVE_REACTION":
		return h.handleRemoveReaction(client, frame)
	default:
		h.logger.Warn("Unknown frame type", zap.String("type", frame.Type))
	}
	return nil
}

// resolveRoles fetches the caller's roles for the session's channel
// scope. Resolved per frame; socket sessions get no cached verdicts.
func (h *WSHandler) resolveRoles(ctx context.Context, client *Client) (domain.RoleContext, error) {
	return h.roleClient.GetRoleContext(ctx, client.token, client.channel.WorkspaceID)
}

func (h *WSHandler) handleSend(client *Client, frame *WSFrame) error {
	ctx := context.Background()
	rc, err := h.resolveRoles(ctx, client)
	if err != nil {
		return err
	}

	if _, err := client.coordinator.Send(ctx, client.channel, client.userID, frame.Content, rc); err != nil {
		return err
	}
	middleware.RecordMessageSent()
	return nil
}

func (h *WSHandler) handleEdit(client *Client, frame *WSFrame) error {
	message, err := h.frameMessage(frame)
	if err != nil {
		return err
	}
	return client.coordinator.Edit(context.Background(), message, client.userID, frame.Content)
}

func (h *WSHandler) handleDelete(client *Client, frame *WSFrame) error {
	ctx := context.Background()
	message, err := h.frameMessage(frame)
	if err != nil {
		return err
	}

	rc, err := h.resolveRoles(ctx, client)
	if err != nil {
		return err
	}

	pending, err := client.coordinator.RequestDelete(ctx, message, client.channel, client.userID, rc)
	if err != nil {
		return err
	}

	client.mu.Lock()
	client.pending[message.ID] = pending
	client.mu.Unlock()

	middleware.RecordDeleteRequested()
	client.push(WSFrame{
		Type:      "DELETE_PENDING",
		ChannelID: client.channel.ID.String(),
		MessageID: message.ID.String(),
		Deadline:  &pending.Deadline,
	})
	return nil
}

func (h *WSHandler) handleUndo(client *Client, frame *WSFrame) error {
	messageID, err := uuid.Parse(frame.MessageID)
	if err != nil {
		return err
	}

	client.mu.Lock()
	pending := client.pending[messageID]
	delete(client.pending, messageID)
	client.mu.Unlock()

	if pending == nil {
		// Grace window already gone; the undo quietly does nothing.
		return nil
	}

	pending.Undo()
	middleware.RecordDeleteUndone()
	return nil
}

func (h *WSHandler) handleAddReaction(client *Client, frame *WSFrame) error {
	message, err := h.frameMessage(frame)
	if err != nil {
		return err
	}
	_, err = client.coordinator.AddReaction(context.Background(), message, client.userID, frame.Emoji)
	return err
}

func (h *WSHandler) handleRemoveReaction(client *Client, frame *WSFrame) error {
	message, err := h.frameMessage(frame)
	if err != nil {
		return err
	}
	return client.coordinator.RemoveReaction(context.Background(), message, client.userID, frame.Emoji)
}

func (h *WSHandler) frameMessage(frame *WSFrame) (*domain.Message, error) {
	messageID, err := uuid.Parse(frame.MessageID)
	if err != nil {
		return nil, err
	}
	return h.messageRepo.GetByID(messageID)
}

// HandleDirectorySocket godoc
// @Summary      Directory WebSocket
// @Description  Live channel directory for one session, with workspace switching
// @Tags         websocket
// @Param        token query string true "JWT Access Token"
// @Param        workspaceId query string false "Initial workspace scope"
// @Success      101 {string} string "Switching Protocols"
// @Failure      401 {object} map[string]string
// @Router       /ws/directory [get]
func (h *WSHandler) HandleDirectorySocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.validator.ValidateToken(ctx, token); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}

	var workspaceID *uuid.UUID
	if raw := c.Query("workspaceId"); raw != "" {
		wid, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid workspace ID"})
			return
		}
		workspaceID = &wid
	}

	rc, err := h.roleClient.GetRoleContext(ctx, token, workspaceID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Role lookup failed"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	h.runDirectorySession(conn, rc, workspaceID)
}

// runDirectorySession owns one directory socket from upgrade to close.
// The session's Directory view is kept live from bus events; every
// change is pushed as a full DIRECTORY frame.
func (h *WSHandler) runDirectorySession(conn *websocket.Conn, rc domain.RoleContext, workspaceID *uuid.UUID) {
	sessionCtx, cancel := context.WithCancel(context.Background())

	send := make(chan []byte, 256)
	dir := directory.New(h.channelRepo, rc, h.logger)
	dir.OnChange(func(snap directory.Snapshot) {
		frame := WSFrame{Type: "DIRECTORY"}
		resp := ToDirectoryResponse(snap)
		frame.Directory = &resp
		payload, err := json.Marshal(frame)
		if err != nil {
			return
		}
		select {
		case send <- payload:
		default:
		}
	})

	sub := h.changeBus.SubscribeDirectory(sessionCtx)
	go dir.Run(sessionCtx, sub)

	if err := dir.SetWorkspace(sessionCtx, workspaceID); err != nil {
		h.logger.Warn("Initial directory sync failed", zap.Error(err))
	}

	middleware.RecordWebSocketConnection()

	// Writer.
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer func() {
			ticker.Stop()
			conn.Close()
		}()
		for {
			select {
			case payload, ok := <-send:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if !ok {
					conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-sessionCtx.Done():
				return
			}
		}
	}()

	// Reader.
	go func() {
		defer func() {
			cancel()
			sub.Close()
			conn.Close()
			middleware.RecordWebSocketDisconnection()
		}()

		conn.SetReadLimit(maxMessageSize)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})

		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var frame WSFrame
			if err := json.Unmarshal(message, &frame); err != nil {
				continue
			}

			switch frame.Type {
			case "SET_WORKSPACE":
				var wid *uuid.UUID
				if frame.WorkspaceID != nil {
					parsed, err := uuid.Parse(*frame.WorkspaceID)
					if err != nil {
						continue
					}
					wid = &parsed
				}
				if err := dir.SetWorkspace(sessionCtx, wid); err != nil {
					h.logger.Warn("Workspace switch sync failed", zap.Error(err))
				}
			case "SELECT_CHANNEL":
				if frame.ChannelID == "" {
					dir.SelectActive(nil)
					continue
				}
				channelID, err := uuid.Parse(frame.ChannelID)
				if err != nil {
					continue
				}
				channel, err := h.channelRepo.GetByID(channelID)
				if err != nil {
					continue
				}
				dir.SelectActive(channel)
			}
		}
	}()
}
