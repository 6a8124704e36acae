package directory

import (
	"context"
	"errors"
	"fmt"

	"channel-service/internal/bus"
	"channel-service/internal/domain"
	"channel-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service owns channel creation and destruction. Mutations go to the
// store first; the resulting change event on the bus is what updates
// every connected session's Directory, including the initiator's.
type Service struct {
	channelRepo repository.ChannelRepository
	messageRepo repository.MessageRepository
	bus         *bus.Bus
	logger      *zap.Logger
}

func NewService(
	channelRepo repository.ChannelRepository,
	messageRepo repository.MessageRepository,
	changeBus *bus.Bus,
	logger *zap.Logger,
) *Service {
	return &Service{
		channelRepo: channelRepo,
		messageRepo: messageRepo,
		bus:         changeBus,
		logger:      logger,
	}
}

// Create inserts a new channel. A private channel must carry a
// workspace id.
func (s *Service) Create(ctx context.Context, channel *domain.Channel) error {
	if !channel.IsPublic && channel.WorkspaceID == nil {
		return fmt.Errorf("private channel requires a workspace: %w", domain.ErrMutation)
	}
	if channel.AccessLevel == "" {
		channel.AccessLevel = domain.AccessAll
	}

	if err := s.channelRepo.Create(channel); err != nil {
		return fmt.Errorf("failed to create channel: %w", err)
	}

	if err := s.bus.PublishChannelEvent(ctx, domain.OpInsert, channel); err != nil {
		s.logger.Warn("channel created but insert event not published",
			zap.String("channelId", channel.ID.String()),
			zap.Error(err))
	}
	return nil
}

// Update saves channel flag or name changes and notifies subscribers.
func (s *Service) Update(ctx context.Context, channel *domain.Channel) error {
	if err := s.channelRepo.Update(channel); err != nil {
		return fmt.Errorf("failed to update channel: %w", err)
	}

	if err := s.bus.PublishChannelEvent(ctx, domain.OpUpdate, channel); err != nil {
		s.logger.Warn("channel updated but update event not published",
			zap.String("channelId", channel.ID.String()),
			zap.Error(err))
	}
	return nil
}

// Get loads one channel by id.
func (s *Service) Get(ctx context.Context, channelID uuid.UUID) (*domain.Channel, error) {
	channel, err := s.channelRepo.GetByID(channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to load channel: %w", err)
	}
	return channel, nil
}

// Delete destroys a channel and cascade-orphans its contents:
// reactions, then messages, then the channel row. The delete event
// clears the active-channel selection in every session viewing it.
func (s *Service) Delete(ctx context.Context, channelID uuid.UUID) error {
	if err := s.messageRepo.DeleteReactionsByChannel(channelID); err != nil {
		return fmt.Errorf("failed to purge channel reactions: %w", err)
	}
	if err := s.messageRepo.DeleteByChannel(channelID); err != nil {
		return fmt.Errorf("failed to purge channel messages: %w", err)
	}

	if err := s.channelRepo.Delete(channelID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete channel: %w", err)
	}

	if err := s.bus.PublishChannelEvent(ctx, domain.OpDelete, &domain.Channel{ID: channelID}); err != nil {
		s.logger.Warn("channel deleted but delete event not published",
			zap.String("channelId", channelID.String()),
			zap.Error(err))
	}
	return nil
}
