package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"channel-service/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const testTypingTTL = 50 * time.Millisecond

// fakeProfiles resolves every id to a stable display name and counts
// lookup calls.
type fakeProfiles struct {
	mu    sync.Mutex
	names map[uuid.UUID]string
	calls int
}

func (f *fakeProfiles) ResolveProfiles(_ context.Context, userIDs []uuid.UUID) (map[uuid.UUID]domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	out := make(map[uuid.UUID]domain.Profile, len(userIDs))
	for _, id := range userIDs {
		out[id] = domain.Profile{UserID: id, DisplayName: f.names[id]}
	}
	return out, nil
}

func (f *fakeProfiles) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// typingSink records every typing-list callback.
type typingSink struct {
	mu    sync.Mutex
	lists [][]domain.Profile
}

func (s *typingSink) record(profiles []domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists = append(s.lists, profiles)
}

// waitFor polls until the latest callback satisfies the predicate.
func (s *typingSink) waitFor(t *testing.T, pred func([]domain.Profile) bool) []domain.Profile {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		if n := len(s.lists); n > 0 && pred(s.lists[n-1]) {
			latest := s.lists[n-1]
			s.mu.Unlock()
			return latest
		}
		s.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("typing list never matched predicate")
	return nil
}

func hasName(name string) func([]domain.Profile) bool {
	return func(profiles []domain.Profile) bool {
		for _, p := range profiles {
			if p.DisplayName == name {
				return true
			}
		}
		return false
	}
}

func empty() func([]domain.Profile) bool {
	return func(profiles []domain.Profile) bool { return len(profiles) == 0 }
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestTypingSignalReachesOtherSession(t *testing.T) {
	rdb := testRedis(t)
	userX, userY := uuid.New(), uuid.New()
	profiles := &fakeProfiles{names: map[uuid.UUID]string{userX: "Xenia", userY: "Yuri"}}
	channelID := uuid.New()
	ctx := context.Background()

	sinkY := &typingSink{}
	syncY := NewSynchronizer(rdb, profiles, userY, testTypingTTL, sinkY.record, zap.NewNop())
	if err := syncY.Join(ctx, channelID); err != nil {
		t.Fatalf("Y join: %v", err)
	}
	defer syncY.Leave(ctx)

	syncX := NewSynchronizer(rdb, profiles, userX, testTypingTTL, nil, zap.NewNop())
	if err := syncX.Join(ctx, channelID); err != nil {
		t.Fatalf("X join: %v", err)
	}
	defer syncX.Leave(ctx)

	if err := syncX.SetTyping(ctx, true); err != nil {
		t.Fatalf("set typing: %v", err)
	}
	sinkY.waitFor(t, hasName("Xenia"))
}

func TestTypingAutoClearsAfterTTL(t *testing.T) {
	rdb := testRedis(t)
	userX, userY := uuid.New(), uuid.New()
	profiles := &fakeProfiles{names: map[uuid.UUID]string{userX: "Xenia"}}
	channelID := uuid.New()
	ctx := context.Background()

	sinkY := &typingSink{}
	syncY := NewSynchronizer(rdb, profiles, userY, testTypingTTL, sinkY.record, zap.NewNop())
	if err := syncY.Join(ctx, channelID); err != nil {
		t.Fatalf("Y join: %v", err)
	}
	defer syncY.Leave(ctx)

	syncX := NewSynchronizer(rdb, profiles, userX, testTypingTTL, nil, zap.NewNop())
	if err := syncX.Join(ctx, channelID); err != nil {
		t.Fatalf("X join: %v", err)
	}
	defer syncX.Leave(ctx)

	if err := syncX.SetTyping(ctx, true); err != nil {
		t.Fatalf("set typing: %v", err)
	}
	sinkY.waitFor(t, hasName("Xenia"))

	// no further signals from X: the auto-clear must republish false
	sinkY.waitFor(t, empty())
}

func TestStopTypingCancelsAutoClear(t *testing.T) {
	rdb := testRedis(t)
	userX := uuid.New()
	profiles := &fakeProfiles{names: map[uuid.UUID]string{userX: "Xenia"}}
	channelID := uuid.New()
	ctx := context.Background()

	sink := &typingSink{}
	syncX := NewSynchronizer(rdb, profiles, userX, testTypingTTL, sink.record, zap.NewNop())
	if err := syncX.Join(ctx, channelID); err != nil {
		t.Fatalf("join: %v", err)
	}
	defer syncX.Leave(ctx)

	if err := syncX.SetTyping(ctx, true); err != nil {
		t.Fatalf("start typing: %v", err)
	}
	if err := syncX.SetTyping(ctx, false); err != nil {
		t.Fatalf("stop typing: %v", err)
	}
	sink.waitFor(t, empty())

	// stopping again must be a harmless no-op
	if err := syncX.SetTyping(ctx, false); err != nil {
		t.Fatalf("repeated stop: %v", err)
	}
}

func TestEmptyTypingSetSkipsProfileLookup(t *testing.T) {
	rdb := testRedis(t)
	userX := uuid.New()
	profiles := &fakeProfiles{names: map[uuid.UUID]string{}}
	channelID := uuid.New()
	ctx := context.Background()

	sink := &typingSink{}
	syncX := NewSynchronizer(rdb, profiles, userX, testTypingTTL, sink.record, zap.NewNop())
	if err := syncX.Join(ctx, channelID); err != nil {
		t.Fatalf("join: %v", err)
	}
	defer syncX.Leave(ctx)

	// the join publishes a non-typing record, which triggers a
	// recompute with an empty typing set
	sink.waitFor(t, empty())
	if profiles.callCount() != 0 {
		t.Fatalf("empty typing set must not hit the profile service, got %d calls", profiles.callCount())
	}
}

func TestJoinReplacesPreviousSubscription(t *testing.T) {
	rdb := testRedis(t)
	userX, userY := uuid.New(), uuid.New()
	profiles := &fakeProfiles{names: map[uuid.UUID]string{userY: "Yuri"}}
	chanA, chanB := uuid.New(), uuid.New()
	ctx := context.Background()

	sink := &typingSink{}
	syncX := NewSynchronizer(rdb, profiles, userX, testTypingTTL, sink.record, zap.NewNop())
	if err := syncX.Join(ctx, chanA); err != nil {
		t.Fatalf("join A: %v", err)
	}
	if err := syncX.Join(ctx, chanB); err != nil {
		t.Fatalf("join B: %v", err)
	}
	defer syncX.Leave(ctx)

	// X left channel A, so its record there must be gone
	fields, err := rdb.HGetAll(ctx, presenceKey(chanA)).Result()
	if err != nil {
		t.Fatalf("read presence A: %v", err)
	}
	if _, ok := fields[userX.String()]; ok {
		t.Fatalf("record in the previous channel should be removed on rejoin")
	}

	// typing in channel A must not reach X anymore
	syncY := NewSynchronizer(rdb, profiles, userY, testTypingTTL, nil, zap.NewNop())
	if err := syncY.Join(ctx, chanA); err != nil {
		t.Fatalf("Y join A: %v", err)
	}
	defer syncY.Leave(ctx)
	if err := syncY.SetTyping(ctx, true); err != nil {
		t.Fatalf("Y typing: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, list := range sink.lists {
		for _, p := range list {
			if p.DisplayName == "Yuri" {
				t.Fatalf("events from the abandoned channel leaked through")
			}
		}
	}
}

func TestLeaveRemovesRecordAndState(t *testing.T) {
	rdb := testRedis(t)
	userX := uuid.New()
	profiles := &fakeProfiles{names: map[uuid.UUID]string{userX: "Xenia"}}
	channelID := uuid.New()
	ctx := context.Background()

	syncX := NewSynchronizer(rdb, profiles, userX, testTypingTTL, nil, zap.NewNop())
	if err := syncX.Join(ctx, channelID); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := syncX.SetTyping(ctx, true); err != nil {
		t.Fatalf("typing: %v", err)
	}

	syncX.Leave(ctx)
	fields, err := rdb.HGetAll(ctx, presenceKey(channelID)).Result()
	if err != nil {
		t.Fatalf("read presence: %v", err)
	}
	if len(fields) != 0 {
		t.Fatalf("no typing state may persist past the session, got %v", fields)
	}

	// leaving twice is fine
	syncX.Leave(ctx)
}
