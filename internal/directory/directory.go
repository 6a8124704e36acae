// Package directory maintains the per-session view of public and
// private channels and keeps it live from change bus events.
package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"channel-service/internal/bus"
	"channel-service/internal/domain"
	"channel-service/internal/permission"
	"channel-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Snapshot is the directory state handed to the presentation layer
// after every change.
type Snapshot struct {
	Public  []domain.Channel
	Private []domain.Channel
	Active  *domain.Channel
}

// Directory is the authoritative in-memory channel view for one
// connected session. All methods are safe for concurrent use; bus
// events and client calls arrive on different goroutines.
type Directory struct {
	repo   repository.ChannelRepository
	logger *zap.Logger

	mu          sync.RWMutex
	workspaceID *uuid.UUID
	role        domain.RoleContext
	public      []domain.Channel
	private     []domain.Channel
	active      *domain.Channel

	// onChange, when set, receives a snapshot after every applied
	// event or scope change.
	onChange func(Snapshot)
}

func New(repo repository.ChannelRepository, role domain.RoleContext, logger *zap.Logger) *Directory {
	return &Directory{
		repo:   repo,
		role:   role,
		logger: logger,
	}
}

// OnChange registers the snapshot callback. Must be called before Run.
func (d *Directory) OnChange(fn func(Snapshot)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onChange = fn
}

// ListPublic fetches the public channel list, sorted by name. On a
// store failure the previously fetched list is returned alongside
// domain.ErrFetch so callers never clear a stale-but-usable view.
func (d *Directory) ListPublic(ctx context.Context) ([]domain.Channel, error) {
	channels, err := d.repo.ListPublic()
	if err != nil {
		d.mu.RLock()
		prior := cloneChannels(d.public)
		d.mu.RUnlock()
		return prior, fmt.Errorf("listing public channels: %w", domain.ErrFetch)
	}

	visible := channels[:0]
	for _, ch := range channels {
		if permission.CanDiscover(&ch, d.role) {
			visible = append(visible, ch)
		}
	}
	sortByName(visible)

	d.mu.Lock()
	d.public = cloneChannels(visible)
	d.mu.Unlock()

	return visible, nil
}

// ListPrivate fetches the private channels of the session's workspace
// scope. Without a workspace scope there are no private channels, so
// the result is empty, not an error.
func (d *Directory) ListPrivate(ctx context.Context) ([]domain.Channel, error) {
	d.mu.RLock()
	workspaceID := d.workspaceID
	d.mu.RUnlock()

	if workspaceID == nil {
		return []domain.Channel{}, nil
	}

	channels, err := d.repo.ListPrivate(*workspaceID)
	if err != nil {
		d.mu.RLock()
		prior := cloneChannels(d.private)
		d.mu.RUnlock()
		return prior, fmt.Errorf("listing private channels: %w", domain.ErrFetch)
	}
	sortByName(channels)

	d.mu.Lock()
	d.private = cloneChannels(channels)
	d.mu.Unlock()

	return channels, nil
}

// SelectActive marks the channel the session is currently viewing.
func (d *Directory) SelectActive(ch *domain.Channel) {
	d.mu.Lock()
	d.active = ch
	d.mu.Unlock()

	d.notify()
}

// Active returns the currently selected channel, or nil.
func (d *Directory) Active() *domain.Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.active
}

// SetWorkspace switches the session's workspace scope. Private
// channels are scope-bound, so this is a full resynchronization: the
// private list is cleared and both lists are refetched. The active
// selection survives only if it was a public channel.
func (d *Directory) SetWorkspace(ctx context.Context, workspaceID *uuid.UUID) error {
	d.mu.Lock()
	d.workspaceID = workspaceID
	d.private = nil
	if d.active != nil && !d.active.IsPublic {
		d.active = nil
	}
	d.mu.Unlock()

	if _, err := d.ListPublic(ctx); err != nil {
		return err
	}
	if _, err := d.ListPrivate(ctx); err != nil {
		return err
	}

	d.notify()
	return nil
}

// Run consumes directory change events until the context ends or the
// subscription closes. Bus delivery failures are not retried here;
// reconnect and backfill are the bus's own contract.
func (d *Directory) Run(ctx context.Context, sub *bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			d.Apply(event)
		}
	}
}

// Apply folds one channel change event into the view.
func (d *Directory) Apply(event domain.ChangeEvent) {
	if event.Entity != domain.EntityChannel {
		return
	}
	row, err := event.ChannelRow()
	if err != nil {
		d.logger.Warn("ignoring undecodable channel event", zap.Error(err))
		return
	}

	d.mu.Lock()
	switch event.Op {
	case domain.OpInsert:
		d.applyInsert(row)
	case domain.OpUpdate:
		d.applyUpdate(row)
	case domain.OpDelete:
		d.applyDelete(row)
	}
	d.mu.Unlock()

	d.notify()
}

func (d *Directory) applyInsert(row domain.Channel) {
	switch {
	case row.IsPublic:
		if permission.CanDiscover(&row, d.role) {
			d.public = append(d.public, row)
			sortByName(d.public)
		}
	case row.BelongsTo(d.workspaceID):
		d.private = append(d.private, row)
		sortByName(d.private)
	}
}

func (d *Directory) applyUpdate(row domain.Channel) {
	if !row.IsPublic && !row.BelongsTo(d.workspaceID) {
		// Membership or visibility changed away from this scope.
		d.private = removeChannel(d.private, row.ID)
		return
	}
	if row.IsPublic {
		d.public = replaceChannel(d.public, row)
		sortByName(d.public)
	} else {
		d.private = replaceChannel(d.private, row)
		sortByName(d.private)
	}
}

func (d *Directory) applyDelete(row domain.Channel) {
	d.public = removeChannel(d.public, row.ID)
	d.private = removeChannel(d.private, row.ID)
	if d.active != nil && d.active.ID == row.ID {
		// No auto-selection of another channel; the user decides.
		d.active = nil
	}
}

// Snapshot returns a copy of the current view.
func (d *Directory) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshotLocked()
}

func (d *Directory) snapshotLocked() Snapshot {
	snap := Snapshot{
		Public:  cloneChannels(d.public),
		Private: cloneChannels(d.private),
	}
	if d.active != nil {
		active := *d.active
		snap.Active = &active
	}
	return snap
}

func (d *Directory) notify() {
	d.mu.RLock()
	fn := d.onChange
	snap := d.snapshotLocked()
	d.mu.RUnlock()

	if fn != nil {
		fn(snap)
	}
}

func sortByName(channels []domain.Channel) {
	sort.Slice(channels, func(i, j int) bool {
		return channels[i].Name < channels[j].Name
	})
}

func cloneChannels(channels []domain.Channel) []domain.Channel {
	out := make([]domain.Channel, len(channels))
	copy(out, channels)
	return out
}

func removeChannel(channels []domain.Channel, id uuid.UUID) []domain.Channel {
	for i, ch := range channels {
		if ch.ID == id {
			return append(channels[:i], channels[i+1:]...)
		}
	}
	return channels
}

func replaceChannel(channels []domain.Channel, row domain.Channel) []domain.Channel {
	for i, ch := range channels {
		if ch.ID == row.ID {
			channels[i] = row
			return channels
		}
	}
	return channels
}
