package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"channel-service/internal/bus"
	"channel-service/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const testGrace = 40 * time.Millisecond

// fakeMessageRepo records the order of destructive calls so tests can
// assert reactions are purged before the message row.
type fakeMessageRepo struct {
	mu              sync.Mutex
	messages        map[uuid.UUID]*domain.Message
	reactions       map[uuid.UUID][]domain.Reaction
	calls           []string
	deleteCount     int
	failDelete      error
	failReactionDel error
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{
		messages:  make(map[uuid.UUID]*domain.Message),
		reactions: make(map[uuid.UUID][]domain.Reaction),
	}
}

func (f *fakeMessageRepo) Create(m *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	stored := *m
	f.messages[m.ID] = &stored
	return nil
}

func (f *fakeMessageRepo) GetByID(id uuid.UUID) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *m
	return &out, nil
}

func (f *fakeMessageRepo) ListByChannel(uuid.UUID, int, int) ([]domain.Message, error) {
	return nil, nil
}

func (f *fakeMessageRepo) Update(m *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *m
	f.messages[m.ID] = &stored
	return nil
}

func (f *fakeMessageRepo) Delete(id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete-message")
	if f.failDelete != nil {
		return f.failDelete
	}
	if _, ok := f.messages[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.messages, id)
	f.deleteCount++
	return nil
}

func (f *fakeMessageRepo) DeleteByChannel(uuid.UUID) error { return nil }

func (f *fakeMessageRepo) AddReaction(r *domain.Reaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.reactions[r.MessageID] {
		if existing.UserID == r.UserID && existing.Emoji == r.Emoji {
			return nil
		}
	}
	f.reactions[r.MessageID] = append(f.reactions[r.MessageID], *r)
	return nil
}

func (f *fakeMessageRepo) RemoveReaction(messageID, userID uuid.UUID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.reactions[messageID][:0]
	for _, r := range f.reactions[messageID] {
		if r.UserID != userID || r.Emoji != emoji {
			kept = append(kept, r)
		}
	}
	f.reactions[messageID] = kept
	return nil
}

func (f *fakeMessageRepo) ListReactions(messageID uuid.UUID) ([]domain.Reaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Reaction(nil), f.reactions[messageID]...), nil
}

func (f *fakeMessageRepo) DeleteReactions(messageID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete-reactions")
	if f.failReactionDel != nil {
		return f.failReactionDel
	}
	delete(f.reactions, messageID)
	return nil
}

func (f *fakeMessageRepo) DeleteReactionsByChannel(uuid.UUID) error { return nil }

func (f *fakeMessageRepo) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeMessageRepo) has(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.messages[id]
	return ok
}

// callbackRecorder counts callback invocations.
type callbackRecorder struct {
	mu          sync.Mutex
	marked      int
	restored    int
	failed      int
	lastFailure error
}

func (r *callbackRecorder) callbacks() Callbacks {
	return Callbacks{
		MarkDeleted: func(uuid.UUID) {
			r.mu.Lock()
			r.marked++
			r.mu.Unlock()
		},
		Restore: func(uuid.UUID) {
			r.mu.Lock()
			r.restored++
			r.mu.Unlock()
		},
		DeleteFailed: func(_ uuid.UUID, err error) {
			r.mu.Lock()
			r.failed++
			r.lastFailure = err
			r.mu.Unlock()
		},
	}
}

func (r *callbackRecorder) counts() (marked, restored, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.marked, r.restored, r.failed
}

func testCoordinator(t *testing.T, repo *fakeMessageRepo, rec *callbackRecorder) *Coordinator {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	b := bus.New(rdb, zap.NewNop())
	c := NewCoordinator(repo, b, testGrace, rec.callbacks(), zap.NewNop())
	t.Cleanup(c.Close)
	return c
}

func seededMessage(repo *fakeMessageRepo, channel *domain.Channel, userID uuid.UUID) *domain.Message {
	msg := &domain.Message{ChannelID: channel.ID, UserID: userID, Content: "hello"}
	repo.Create(msg)
	return msg
}

func openChannel() *domain.Channel {
	return &domain.Channel{ID: uuid.New(), Name: "general", IsPublic: true}
}

func memberCtx() domain.RoleContext {
	return domain.RoleContext{GlobalRole: domain.GlobalMember, WorkspaceRole: domain.WorkspaceMember}
}

func TestSendRequiresPostPermission(t *testing.T) {
	repo := newFakeMessageRepo()
	c := testCoordinator(t, repo, &callbackRecorder{})

	ch := openChannel()
	ch.ReadOnly = true
	_, err := c.Send(context.Background(), ch, uuid.New(), "hi", memberCtx())
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if len(repo.messages) != 0 {
		t.Fatalf("denied send must not touch the store")
	}
}

func TestSendStoresMessageWithAuthor(t *testing.T) {
	repo := newFakeMessageRepo()
	c := testCoordinator(t, repo, &callbackRecorder{})

	userID := uuid.New()
	msg, err := c.Send(context.Background(), openChannel(), userID, "hi", memberCtx())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.UserID != userID {
		t.Fatalf("message should carry the sender id")
	}
	if !repo.has(msg.ID) {
		t.Fatalf("message should be in the store after Send returns")
	}
}

func TestRequestDeleteDeniedLeavesNoState(t *testing.T) {
	repo := newFakeMessageRepo()
	rec := &callbackRecorder{}
	c := testCoordinator(t, repo, rec)

	ch := openChannel()
	msg := seededMessage(repo, ch, uuid.New())

	_, err := c.RequestDelete(context.Background(), msg, ch, uuid.New(), memberCtx())
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if marked, _, _ := rec.counts(); marked != 0 {
		t.Fatalf("denied delete must not mark the message")
	}
	if c.PendingCount() != 0 {
		t.Fatalf("denied delete must not open a grace window")
	}
}

func TestUndoBeforeExpiryRestoresMessage(t *testing.T) {
	repo := newFakeMessageRepo()
	rec := &callbackRecorder{}
	c := testCoordinator(t, repo, rec)

	ch := openChannel()
	author := uuid.New()
	msg := seededMessage(repo, ch, author)

	pd, err := c.RequestDelete(context.Background(), msg, ch, author, memberCtx())
	if err != nil {
		t.Fatalf("request delete: %v", err)
	}
	pd.Undo()

	time.Sleep(3 * testGrace)
	if !repo.has(msg.ID) {
		t.Fatalf("undone delete must never reach the store")
	}
	marked, restored, failed := rec.counts()
	if marked != 1 || restored != 1 || failed != 0 {
		t.Fatalf("expected mark+restore exactly once, got %d/%d/%d", marked, restored, failed)
	}

	// a second undo on the closed window is a no-op
	pd.Undo()
	if _, restored, _ := rec.counts(); restored != 1 {
		t.Fatalf("repeated undo must not double-fire restore")
	}
}

func TestExpiryDeletesReactionsThenMessage(t *testing.T) {
	repo := newFakeMessageRepo()
	rec := &callbackRecorder{}
	c := testCoordinator(t, repo, rec)

	ch := openChannel()
	author := uuid.New()
	msg := seededMessage(repo, ch, author)
	repo.AddReaction(&domain.Reaction{MessageID: msg.ID, UserID: uuid.New(), Emoji: "👍"})

	if _, err := c.RequestDelete(context.Background(), msg, ch, author, memberCtx()); err != nil {
		t.Fatalf("request delete: %v", err)
	}

	time.Sleep(3 * testGrace)
	if repo.has(msg.ID) {
		t.Fatalf("message should be gone after the grace window")
	}
	order := repo.callOrder()
	if len(order) != 2 || order[0] != "delete-reactions" || order[1] != "delete-message" {
		t.Fatalf("reactions must be purged before the message row, got %v", order)
	}
	if c.PendingCount() != 0 {
		t.Fatalf("expired window should leave no timer behind")
	}
}

func TestRepeatedDeleteRestartsWindowOnce(t *testing.T) {
	repo := newFakeMessageRepo()
	rec := &callbackRecorder{}
	c := testCoordinator(t, repo, rec)

	ch := openChannel()
	author := uuid.New()
	msg := seededMessage(repo, ch, author)

	if _, err := c.RequestDelete(context.Background(), msg, ch, author, memberCtx()); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if _, err := c.RequestDelete(context.Background(), msg, ch, author, memberCtx()); err != nil {
		t.Fatalf("second request: %v", err)
	}

	if c.PendingCount() != 1 {
		t.Fatalf("re-delete must restart the timer, not stack a second one")
	}

	time.Sleep(3 * testGrace)
	repo.mu.Lock()
	deletes := repo.deleteCount
	repo.mu.Unlock()
	if deletes != 1 {
		t.Fatalf("expected exactly one terminal delete, got %d", deletes)
	}
}

func TestConcurrentDeleteNotFoundIsSuccess(t *testing.T) {
	repo := newFakeMessageRepo()
	rec := &callbackRecorder{}
	c := testCoordinator(t, repo, rec)

	ch := openChannel()
	author := uuid.New()
	msg := seededMessage(repo, ch, author)

	if _, err := c.RequestDelete(context.Background(), msg, ch, author, memberCtx()); err != nil {
		t.Fatalf("request delete: %v", err)
	}
	// another session wins the race
	repo.Delete(msg.ID)

	time.Sleep(3 * testGrace)
	_, restored, failed := rec.counts()
	if restored != 0 || failed != 0 {
		t.Fatalf("not-found on expiry must count as success, got restored=%d failed=%d", restored, failed)
	}
}

func TestStoreFailureReversesOptimisticState(t *testing.T) {
	repo := newFakeMessageRepo()
	rec := &callbackRecorder{}
	c := testCoordinator(t, repo, rec)

	ch := openChannel()
	author := uuid.New()
	msg := seededMessage(repo, ch, author)
	repo.failDelete = errors.New("connection reset")

	if _, err := c.RequestDelete(context.Background(), msg, ch, author, memberCtx()); err != nil {
		t.Fatalf("request delete: %v", err)
	}

	time.Sleep(3 * testGrace)
	marked, restored, failed := rec.counts()
	if marked != 1 || restored != 1 || failed != 1 {
		t.Fatalf("failed delete must restore and report, got %d/%d/%d", marked, restored, failed)
	}
	rec.mu.Lock()
	lastErr := rec.lastFailure
	rec.mu.Unlock()
	if !errors.Is(lastErr, domain.ErrMutation) {
		t.Fatalf("expected ErrMutation, got %v", lastErr)
	}
}

func TestReactionFailureAlsoReverses(t *testing.T) {
	repo := newFakeMessageRepo()
	rec := &callbackRecorder{}
	c := testCoordinator(t, repo, rec)

	ch := openChannel()
	author := uuid.New()
	msg := seededMessage(repo, ch, author)
	repo.failReactionDel = errors.New("connection reset")

	if _, err := c.RequestDelete(context.Background(), msg, ch, author, memberCtx()); err != nil {
		t.Fatalf("request delete: %v", err)
	}

	time.Sleep(3 * testGrace)
	if !repo.has(msg.ID) {
		t.Fatalf("message row must survive a reaction purge failure")
	}
	if _, restored, failed := rec.counts(); restored != 1 || failed != 1 {
		t.Fatalf("reaction purge failure must restore and report")
	}
}

func TestAddReactionIsIdempotent(t *testing.T) {
	repo := newFakeMessageRepo()
	c := testCoordinator(t, repo, &callbackRecorder{})

	ch := openChannel()
	msg := seededMessage(repo, ch, uuid.New())
	userID := uuid.New()

	ctx := context.Background()
	if _, err := c.AddReaction(ctx, msg, userID, "🎉"); err != nil {
		t.Fatalf("add reaction: %v", err)
	}
	if _, err := c.AddReaction(ctx, msg, userID, "🎉"); err != nil {
		t.Fatalf("repeated reaction should be a no-op, got %v", err)
	}

	reactions, _ := repo.ListReactions(msg.ID)
	if len(reactions) != 1 {
		t.Fatalf("expected one reaction per (user, emoji), got %d", len(reactions))
	}
}

func TestCloseCancelsOutstandingTimers(t *testing.T) {
	repo := newFakeMessageRepo()
	rec := &callbackRecorder{}
	c := testCoordinator(t, repo, rec)

	ch := openChannel()
	author := uuid.New()
	msg := seededMessage(repo, ch, author)

	if _, err := c.RequestDelete(context.Background(), msg, ch, author, memberCtx()); err != nil {
		t.Fatalf("request delete: %v", err)
	}
	c.Close()

	time.Sleep(3 * testGrace)
	if !repo.has(msg.ID) {
		t.Fatalf("closed session must not flush pending deletes")
	}
}
