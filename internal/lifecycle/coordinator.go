// Package lifecycle owns the message state machine: Active →
// PendingDelete → Deleted, with a bounded undo window in between.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"channel-service/internal/bus"
	"channel-service/internal/domain"
	"channel-service/internal/permission"
	"channel-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultGracePeriod is how long a deleted message stays restorable.
const DefaultGracePeriod = 3 * time.Second

// Callbacks notify the presentation layer of optimistic state changes.
// MarkDeleted fires when a message enters the grace window, Restore
// when it leaves it without being deleted. DeleteFailed reports a
// store failure after the window expired; the restore has already been
// invoked by then.
type Callbacks struct {
	MarkDeleted  func(messageID uuid.UUID)
	Restore      func(messageID uuid.UUID)
	DeleteFailed func(messageID uuid.UUID, err error)
}

// PendingDelete is the handle returned for an accepted delete request.
// Undo cancels the pending deletion; it is a no-op once the grace
// window has expired.
type PendingDelete struct {
	MessageID uuid.UUID
	Deadline  time.Time
	Undo      func()
}

type pendingDeletion struct {
	timer *time.Timer
}

// Coordinator drives message sends, edits, reactions, and grace-period
// deletes for one session. The pending-deletion timers live in a
// per-instance map created on first delete request and emptied on
// cancel, expiry, or Close.
type Coordinator struct {
	messageRepo repository.MessageRepository
	bus         *bus.Bus
	logger      *zap.Logger
	grace       time.Duration
	callbacks   Callbacks

	mu      sync.Mutex
	pending map[uuid.UUID]*pendingDeletion
	closed  bool
}

func NewCoordinator(
	messageRepo repository.MessageRepository,
	changeBus *bus.Bus,
	grace time.Duration,
	callbacks Callbacks,
	logger *zap.Logger,
) *Coordinator {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Coordinator{
		messageRepo: messageRepo,
		bus:         changeBus,
		logger:      logger,
		grace:       grace,
		callbacks:   callbacks,
		pending:     make(map[uuid.UUID]*pendingDeletion),
	}
}

// Send posts a message after a CanPost check. It returns once the
// store insert is acknowledged; fanout to subscribers rides the change
// bus and is not waited for.
func (c *Coordinator) Send(ctx context.Context, channel *domain.Channel, userID uuid.UUID, content string, rc domain.RoleContext) (*domain.Message, error) {
	if !permission.CanPost(channel, rc) {
		return nil, fmt.Errorf("posting in channel %s: %w", channel.Name, domain.ErrPermissionDenied)
	}

	message := &domain.Message{
		ChannelID: channel.ID,
		UserID:    userID,
		Content:   content,
	}
	if err := c.messageRepo.Create(message); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", domain.ErrMutation)
	}

	if err := c.bus.PublishMessageEvent(ctx, domain.OpInsert, message); err != nil {
		c.logger.Warn("message stored but insert event not published",
			zap.String("messageId", message.ID.String()),
			zap.Error(err))
	}
	return message, nil
}

// Edit rewrites a message's content. Only the author may edit.
func (c *Coordinator) Edit(ctx context.Context, message *domain.Message, actingUserID uuid.UUID, content string) error {
	if !permission.CanEdit(message, actingUserID) {
		return fmt.Errorf("editing message %s: %w", message.ID, domain.ErrPermissionDenied)
	}

	message.Content = content
	if err := c.messageRepo.Update(message); err != nil {
		return fmt.Errorf("failed to update message: %w", domain.ErrMutation)
	}

	if err := c.bus.PublishMessageEvent(ctx, domain.OpUpdate, message); err != nil {
		c.logger.Warn("message updated but update event not published",
			zap.String("messageId", message.ID.String()),
			zap.Error(err))
	}
	return nil
}

// RequestDelete starts a grace-period deletion. A repeated request for
// the same message cancels the earlier timer and restarts the window
// instead of stacking a second one, so concurrent requests converge on
// exactly one terminal delete.
func (c *Coordinator) RequestDelete(ctx context.Context, message *domain.Message, channel *domain.Channel, actingUserID uuid.UUID, rc domain.RoleContext) (*PendingDelete, error) {
	if !permission.CanDelete(message, channel, actingUserID, rc) {
		return nil, fmt.Errorf("deleting message %s: %w", message.ID, domain.ErrPermissionDenied)
	}

	messageID := message.ID

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("session closed: %w", domain.ErrMutation)
	}
	if prior, ok := c.pending[messageID]; ok {
		prior.timer.Stop()
	}
	p := &pendingDeletion{}
	p.timer = time.AfterFunc(c.grace, func() {
		c.finalize(context.WithoutCancel(ctx), message, p)
	})
	c.pending[messageID] = p
	c.mu.Unlock()

	// Optimistic: the only client-local state allowed to diverge from
	// the store, and only until the window resolves.
	if c.callbacks.MarkDeleted != nil {
		c.callbacks.MarkDeleted(messageID)
	}

	return &PendingDelete{
		MessageID: messageID,
		Deadline:  time.Now().Add(c.grace),
		Undo:      func() { c.undo(messageID, p) },
	}, nil
}

func (c *Coordinator) undo(messageID uuid.UUID, p *pendingDeletion) {
	c.mu.Lock()
	current, ok := c.pending[messageID]
	if !ok || current != p {
		// Window already expired or restarted; never double-fire.
		c.mu.Unlock()
		return
	}
	delete(c.pending, messageID)
	p.timer.Stop()
	c.mu.Unlock()

	if c.callbacks.Restore != nil {
		c.callbacks.Restore(messageID)
	}
}

// finalize runs at grace expiry: reactions are purged first, then the
// message row, honoring the ownership dependency between the two. A
// missing row means another session already deleted it, which counts
// as success. Any other store failure reverses the optimistic state so
// the UI never shows a message as gone while it still exists.
func (c *Coordinator) finalize(ctx context.Context, message *domain.Message, p *pendingDeletion) {
	messageID := message.ID

	c.mu.Lock()
	current, ok := c.pending[messageID]
	if !ok || current != p {
		c.mu.Unlock()
		return
	}
	delete(c.pending, messageID)
	c.mu.Unlock()

	if err := c.messageRepo.DeleteReactions(messageID); err != nil {
		c.reverse(messageID, fmt.Errorf("failed to purge reactions: %w", domain.ErrMutation))
		return
	}

	if err := c.messageRepo.Delete(messageID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		c.reverse(messageID, fmt.Errorf("failed to delete message: %w", domain.ErrMutation))
		return
	}

	if err := c.bus.PublishMessageEvent(ctx, domain.OpDelete, message); err != nil {
		c.logger.Warn("message deleted but delete event not published",
			zap.String("messageId", messageID.String()),
			zap.Error(err))
	}
}

func (c *Coordinator) reverse(messageID uuid.UUID, err error) {
	c.logger.Error("grace-period delete failed, reversing optimistic state",
		zap.String("messageId", messageID.String()),
		zap.Error(err))

	if c.callbacks.Restore != nil {
		c.callbacks.Restore(messageID)
	}
	if c.callbacks.DeleteFailed != nil {
		c.callbacks.DeleteFailed(messageID, err)
	}
}

// AddReaction records an emoji reaction. Reacting twice with the same
// emoji is a no-op.
func (c *Coordinator) AddReaction(ctx context.Context, message *domain.Message, userID uuid.UUID, emoji string) (*domain.Reaction, error) {
	reaction := &domain.Reaction{
		MessageID: message.ID,
		UserID:    userID,
		Emoji:     emoji,
	}
	if err := c.messageRepo.AddReaction(reaction); err != nil {
		return nil, fmt.Errorf("failed to store reaction: %w", domain.ErrMutation)
	}

	if err := c.bus.PublishReactionEvent(ctx, message.ChannelID, domain.OpInsert, reaction); err != nil {
		c.logger.Warn("reaction stored but insert event not published",
			zap.String("messageId", message.ID.String()),
			zap.Error(err))
	}
	return reaction, nil
}

// RemoveReaction deletes one (user, emoji) reaction from a message.
func (c *Coordinator) RemoveReaction(ctx context.Context, message *domain.Message, userID uuid.UUID, emoji string) error {
	if err := c.messageRepo.RemoveReaction(message.ID, userID, emoji); err != nil {
		return fmt.Errorf("failed to remove reaction: %w", domain.ErrMutation)
	}

	reaction := &domain.Reaction{MessageID: message.ID, UserID: userID, Emoji: emoji}
	if err := c.bus.PublishReactionEvent(ctx, message.ChannelID, domain.OpDelete, reaction); err != nil {
		c.logger.Warn("reaction removed but delete event not published",
			zap.String("messageId", message.ID.String()),
			zap.Error(err))
	}
	return nil
}

// PendingCount reports how many grace windows are currently open.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close cancels every outstanding grace timer. Pending deletions are
// abandoned, not flushed; their messages stay Active in the store.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, p := range c.pending {
		p.timer.Stop()
		delete(c.pending, id)
	}
}
