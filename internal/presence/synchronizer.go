// Package presence tracks ephemeral per-channel typing state. Records
// live in a redis hash keyed by channel with one field per user, so
// the latest write for a (channel, user) pair always wins; nothing is
// ever persisted to the durable store.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"channel-service/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultTypingTTL is how long a typing signal stays up without being
// refreshed before it auto-clears.
const DefaultTypingTTL = 3 * time.Second

// presenceTTL bounds the lifetime of a channel's presence hash so
// records from dead sessions cannot linger. Refreshed on every write.
const presenceTTL = time.Minute

// ProfileResolver resolves user ids to display metadata in one batched
// call.
type ProfileResolver interface {
	ResolveProfiles(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]domain.Profile, error)
}

func presenceKey(channelID uuid.UUID) string {
	return fmt.Sprintf("presence:channel:%s", channelID.String())
}

func presenceTopic(channelID uuid.UUID) string {
	return presenceKey(channelID) + ":events"
}

// Synchronizer is one session's presence connection. It holds at most
// one channel subscription at a time; joining a new channel tears the
// previous one down.
type Synchronizer struct {
	rdb       *redis.Client
	profiles  ProfileResolver
	logger    *zap.Logger
	userID    uuid.UUID
	typingTTL time.Duration

	// onTyping receives the resolved profiles of everyone currently
	// typing in the joined channel, sorted by display name.
	onTyping func([]domain.Profile)

	mu          sync.Mutex
	channelID   uuid.UUID
	pubsub      *redis.PubSub
	cancelLoop  context.CancelFunc
	typingTimer *time.Timer
	joined      bool
}

func NewSynchronizer(
	rdb *redis.Client,
	profiles ProfileResolver,
	userID uuid.UUID,
	typingTTL time.Duration,
	onTyping func([]domain.Profile),
	logger *zap.Logger,
) *Synchronizer {
	if typingTTL <= 0 {
		typingTTL = DefaultTypingTTL
	}
	return &Synchronizer{
		rdb:       rdb,
		profiles:  profiles,
		logger:    logger,
		userID:    userID,
		typingTTL: typingTTL,
		onTyping:  onTyping,
	}
}

// Join subscribes to a channel's presence state, replacing any earlier
// subscription, and publishes this session's initial record.
func (s *Synchronizer) Join(ctx context.Context, channelID uuid.UUID) error {
	s.Leave(ctx)

	loopCtx, cancel := context.WithCancel(context.Background())
	pubsub := s.rdb.Subscribe(loopCtx, presenceTopic(channelID))

	s.mu.Lock()
	s.channelID = channelID
	s.pubsub = pubsub
	s.cancelLoop = cancel
	s.joined = true
	s.mu.Unlock()

	go s.loop(loopCtx, channelID, pubsub)

	if err := s.writeRecord(ctx, channelID, false); err != nil {
		return fmt.Errorf("failed to publish initial presence: %w", err)
	}
	return nil
}

// SetTyping publishes the session's typing state. A true signal
// (re)arms the auto-clear timer; repeated signals reset it instead of
// stacking. A false signal cancels any pending auto-clear.
func (s *Synchronizer) SetTyping(ctx context.Context, isTyping bool) error {
	s.mu.Lock()
	if !s.joined {
		s.mu.Unlock()
		return nil
	}
	channelID := s.channelID

	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	if isTyping {
		s.typingTimer = time.AfterFunc(s.typingTTL, func() {
			if err := s.SetTyping(context.WithoutCancel(ctx), false); err != nil {
				s.logger.Warn("typing auto-clear failed", zap.Error(err))
			}
		})
	}
	s.mu.Unlock()

	return s.writeRecord(ctx, channelID, isTyping)
}

// Leave removes this session's record and tears the subscription down.
// Safe to call repeatedly and without a prior Join.
func (s *Synchronizer) Leave(ctx context.Context) {
	s.mu.Lock()
	if !s.joined {
		s.mu.Unlock()
		return
	}
	channelID := s.channelID
	pubsub := s.pubsub
	cancel := s.cancelLoop
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	s.joined = false
	s.pubsub = nil
	s.cancelLoop = nil
	s.mu.Unlock()

	if err := s.rdb.HDel(ctx, presenceKey(channelID), s.userID.String()).Err(); err != nil {
		s.logger.Warn("failed to remove presence record", zap.Error(err))
	}
	if err := s.rdb.Publish(ctx, presenceTopic(channelID), "presence").Err(); err != nil {
		s.logger.Warn("failed to publish presence change", zap.Error(err))
	}

	cancel()
	if err := pubsub.Close(); err != nil {
		s.logger.Warn("failed to close presence subscription", zap.Error(err))
	}
}

func (s *Synchronizer) writeRecord(ctx context.Context, channelID uuid.UUID, isTyping bool) error {
	record, err := json.Marshal(domain.PresenceRecord{UserID: s.userID, IsTyping: isTyping})
	if err != nil {
		return err
	}

	key := presenceKey(channelID)
	if err := s.rdb.HSet(ctx, key, s.userID.String(), record).Err(); err != nil {
		return fmt.Errorf("failed to write presence record: %w", err)
	}
	s.rdb.Expire(ctx, key, presenceTTL)

	if err := s.rdb.Publish(ctx, presenceTopic(channelID), "presence").Err(); err != nil {
		return fmt.Errorf("failed to publish presence change: %w", err)
	}
	return nil
}

func (s *Synchronizer) loop(ctx context.Context, channelID uuid.UUID, pubsub *redis.PubSub) {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			s.recompute(ctx, channelID)
		}
	}
}

// recompute rebuilds the full typing set from the channel's presence
// snapshot. Presence events are not ordered across users, so this is
// always a full recompute, never an incremental patch.
func (s *Synchronizer) recompute(ctx context.Context, channelID uuid.UUID) {
	fields, err := s.rdb.HGetAll(ctx, presenceKey(channelID)).Result()
	if err != nil {
		s.logger.Warn("failed to read presence snapshot", zap.Error(err))
		return
	}

	var typing []uuid.UUID
	for _, raw := range fields {
		var record domain.PresenceRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			continue
		}
		if record.IsTyping {
			typing = append(typing, record.UserID)
		}
	}

	if len(typing) == 0 {
		// Nobody typing: skip the profile lookup entirely.
		if s.onTyping != nil {
			s.onTyping(nil)
		}
		return
	}

	profiles, err := s.profiles.ResolveProfiles(ctx, typing)
	if err != nil {
		s.logger.Warn("failed to resolve typing profiles", zap.Error(err))
		return
	}

	resolved := make([]domain.Profile, 0, len(typing))
	for _, userID := range typing {
		if profile, ok := profiles[userID]; ok {
			resolved = append(resolved, profile)
		}
	}
	sort.Slice(resolved, func(i, j int) bool {
		return resolved[i].DisplayName < resolved[j].DisplayName
	})

	if s.onTyping != nil {
		s.onTyping(resolved)
	}
}
