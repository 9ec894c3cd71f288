// ABOUTME: Notification list and unread badge fed by REST loads and socket pushes
// ABOUTME: Keeps count == unmarked entries in one critical section, dedupes redelivered pushes

package notifications

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skillforge/skillforge-client/internal/api"
	"github.com/skillforge/skillforge-client/internal/channel"
	"github.com/skillforge/skillforge-client/internal/dedupe"
	"github.com/skillforge/skillforge-client/internal/model"
)

const (
	dedupeTTL  = 10 * time.Minute
	dedupeSize = 1024
)

// API is the REST surface the bridge needs.
type API interface {
	ListNotifications(ctx context.Context) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
}

// ListCache persists the last-known-good notification list for offline
// startup.
type ListCache interface {
	SaveNotifications(ctx context.Context, ns []model.Notification) error
	LoadNotifications(ctx context.Context) ([]model.Notification, error)
}

// Bridge owns the notification list and its unread badge. The badge is
// always recomputed or adjusted in the same critical section as the list
// mutation, so no reader can observe a count that disagrees with the
// entries it is counting.
type Bridge struct {
	api    API
	cache  ListCache // may be nil
	seen   *dedupe.Cache
	logger *slog.Logger

	mu        sync.RWMutex
	items     []model.Notification // newest first
	unread    int
	listeners map[string]func()
	unsubs    []func()
}

// NewBridge creates a notification bridge. cache may be nil to disable
// offline fallback.
func NewBridge(client API, cache ListCache, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		api:       client,
		cache:     cache,
		seen:      dedupe.New(dedupeTTL, dedupeSize),
		logger:    logger.With("component", "notifications"),
		listeners: make(map[string]func()),
	}
}

// Attach subscribes the bridge to pushed notifications.
func (b *Bridge) Attach(mgr *channel.Manager) {
	off := mgr.On(channel.EventNewNotification, func(data json.RawMessage) {
		var n model.Notification
		if err := json.Unmarshal(data, &n); err != nil {
			b.logger.Warn("dropping malformed notification event", "error", err)
			return
		}
		b.OnPush(n)
	})

	b.mu.Lock()
	b.unsubs = append(b.unsubs, off)
	b.mu.Unlock()
}

// Load replaces the list with the server's snapshot and recomputes the
// badge from it. Transient fetch failures fall back to the cached list;
// auth failures surface unmasked.
func (b *Bridge) Load(ctx context.Context) error {
	items, err := b.api.ListNotifications(ctx)
	if err != nil {
		if !api.IsTransient(err) || b.cache == nil {
			return err
		}
		cached, cacheErr := b.cache.LoadNotifications(ctx)
		if cacheErr != nil {
			b.logger.Warn("notification fetch and cache fallback both failed",
				"fetch_error", err, "cache_error", cacheErr)
			return err
		}
		b.logger.Info("using cached notifications", "count", len(cached), "error", err)
		items = cached
	}

	b.replace(items)

	if err == nil && b.cache != nil {
		if saveErr := b.cache.SaveNotifications(ctx, items); saveErr != nil {
			b.logger.Warn("persisting notification cache failed", "error", saveErr)
		}
	}
	return nil
}

// replace installs a snapshot, marks its IDs as seen and recomputes unread.
func (b *Bridge) replace(items []model.Notification) {
	b.mu.Lock()
	b.items = make([]model.Notification, len(items))
	copy(b.items, items)
	unread := 0
	for i := range b.items {
		b.seen.Mark(dedupe.NotificationKey(b.items[i].ID))
		if !b.items[i].Read {
			unread++
		}
	}
	b.unread = unread
	b.mu.Unlock()
	b.notify()
}

// OnPush prepends a pushed notification and bumps the badge. Redelivered
// pushes for an ID already applied are dropped.
func (b *Bridge) OnPush(n model.Notification) {
	if b.seen.CheckAndMark(dedupe.NotificationKey(n.ID)) {
		b.logger.Debug("duplicate notification push", "id", n.ID)
		return
	}

	b.mu.Lock()
	b.items = append([]model.Notification{n}, b.items...)
	if !n.Read {
		b.unread++
	}
	b.mu.Unlock()
	b.notify()
}

// MarkRead marks one notification read, optimistically. If the server
// rejects the mark, the local state rolls back so the badge never drifts
// from reality. Marking an already-read or unknown ID is a no-op.
func (b *Bridge) MarkRead(ctx context.Context, id string) error {
	b.mu.Lock()
	idx := -1
	for i := range b.items {
		if b.items[i].ID == id && !b.items[i].Read {
			idx = i
			break
		}
	}
	if idx == -1 {
		b.mu.Unlock()
		return nil
	}
	b.items[idx].Read = true
	b.unread--
	b.mu.Unlock()
	b.notify()

	if err := b.api.MarkNotificationRead(ctx, id); err != nil {
		b.mu.Lock()
		for i := range b.items {
			if b.items[i].ID == id {
				b.items[i].Read = false
				b.unread++
				break
			}
		}
		b.mu.Unlock()
		b.notify()
		return err
	}
	return nil
}

// MarkAllRead clears the badge optimistically, rolling back the entries it
// flipped if the server rejects the sweep.
func (b *Bridge) MarkAllRead(ctx context.Context) error {
	b.mu.Lock()
	var flipped []string
	for i := range b.items {
		if !b.items[i].Read {
			b.items[i].Read = true
			flipped = append(flipped, b.items[i].ID)
		}
	}
	b.unread = 0
	b.mu.Unlock()

	if len(flipped) == 0 {
		return nil
	}
	b.notify()

	if err := b.api.MarkAllNotificationsRead(ctx); err != nil {
		rollback := make(map[string]bool, len(flipped))
		for _, id := range flipped {
			rollback[id] = true
		}
		b.mu.Lock()
		for i := range b.items {
			if rollback[b.items[i].ID] {
				b.items[i].Read = false
				b.unread++
			}
		}
		b.mu.Unlock()
		b.notify()
		return err
	}
	return nil
}

// Notifications returns the list, newest first.
func (b *Bridge) Notifications() []model.Notification {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.Notification, len(b.items))
	copy(out, b.items)
	return out
}

// Unread returns the badge count.
func (b *Bridge) Unread() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.unread
}

// OnChange registers a listener invoked after list or badge changes.
// Returns the unsubscribe func.
func (b *Bridge) OnChange(fn func()) func() {
	id := uuid.New().String()
	b.mu.Lock()
	b.listeners[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// Close drops channel subscriptions, listeners and the dedupe sweeper.
func (b *Bridge) Close() {
	b.mu.Lock()
	unsubs := b.unsubs
	b.unsubs = nil
	b.listeners = make(map[string]func())
	b.mu.Unlock()

	for _, off := range unsubs {
		off()
	}
	b.seen.Close()
}

func (b *Bridge) notify() {
	b.mu.RLock()
	fns := make([]func(), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}
