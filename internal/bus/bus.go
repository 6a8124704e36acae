// Package bus implements the change notification bus on redis pub/sub.
// Store mutations are published as row-level change events; connected
// sessions subscribe per scope and fan the events out to their clients.
// Delivery is at-least-once and ordered per row id only; reconnect and
// backfill are redis's contract, not re-implemented here.
package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"channel-service/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// directoryTopic carries channel inserts/updates/deletes for every
// connected session, regardless of workspace scope.
const directoryTopic = "channels:events"

// ChannelTopic is the per-channel topic for message and reaction
// events.
func ChannelTopic(channelID uuid.UUID) string {
	return fmt.Sprintf("chat:%s", channelID.String())
}

type Bus struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func New(rdb *redis.Client, logger *zap.Logger) *Bus {
	return &Bus{rdb: rdb, logger: logger}
}

// PublishChannelEvent publishes a channel row change on the directory
// topic.
func (b *Bus) PublishChannelEvent(ctx context.Context, op domain.ChangeOp, channel *domain.Channel) error {
	return b.publish(ctx, directoryTopic, op, domain.EntityChannel, channel)
}

// PublishMessageEvent publishes a message row change on the channel's
// topic.
func (b *Bus) PublishMessageEvent(ctx context.Context, op domain.ChangeOp, message *domain.Message) error {
	return b.publish(ctx, ChannelTopic(message.ChannelID), op, domain.EntityMessage, message)
}

// PublishReactionEvent publishes a reaction row change on the channel's
// topic.
func (b *Bus) PublishReactionEvent(ctx context.Context, channelID uuid.UUID, op domain.ChangeOp, reaction *domain.Reaction) error {
	return b.publish(ctx, ChannelTopic(channelID), op, domain.EntityReaction, reaction)
}

func (b *Bus) publish(ctx context.Context, topic string, op domain.ChangeOp, entity domain.Entity, row any) error {
	rawRow, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal %s row: %w", entity, err)
	}

	payload, err := json.Marshal(domain.ChangeEvent{Op: op, Entity: entity, Row: rawRow})
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	if err := b.rdb.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// SubscribeDirectory opens a subscription to channel directory events.
func (b *Bus) SubscribeDirectory(ctx context.Context) *Subscription {
	return b.subscribe(ctx, directoryTopic)
}

// SubscribeChannel opens a subscription to one channel's message and
// reaction events.
func (b *Bus) SubscribeChannel(ctx context.Context, channelID uuid.UUID) *Subscription {
	return b.subscribe(ctx, ChannelTopic(channelID))
}

func (b *Bus) subscribe(ctx context.Context, topic string) *Subscription {
	pubsub := b.rdb.Subscribe(ctx, topic)
	sub := &Subscription{
		pubsub: pubsub,
		events: make(chan domain.ChangeEvent, 64),
	}

	go func() {
		defer close(sub.events)
		for msg := range pubsub.Channel() {
			var event domain.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("dropping malformed change event",
					zap.String("topic", topic),
					zap.Error(err))
				continue
			}
			sub.events <- event
		}
	}()

	return sub
}

// Subscription is one open stream of change events. Closing it stops
// the underlying redis subscription and closes Events.
type Subscription struct {
	pubsub *redis.PubSub
	events chan domain.ChangeEvent
}

// Events returns the stream of decoded change events. The channel is
// closed on Close or when the subscription drops.
func (s *Subscription) Events() <-chan domain.ChangeEvent {
	return s.events
}

func (s *Subscription) Close() error {
	return s.pubsub.Close()
}
