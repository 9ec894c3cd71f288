// ABOUTME: Ephemeral typing state for both directions of a conversation
// ABOUTME: Debounces local keystrokes into one start event and self-expires remote indicators

package typing

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skillforge/skillforge-client/internal/channel"
	"github.com/skillforge/skillforge-client/internal/model"
)

// DefaultTimeout is the idle window after which typing state lapses,
// locally (stop emitted) and remotely (indicator hidden).
const DefaultTimeout = 2 * time.Second

// Emitter sends typing events over the realtime channel.
type Emitter interface {
	Emit(event string, payload any) error
}

// Coordinator owns typing state in both directions. Local keystrokes are
// debounced into a single typing_start per burst; remote indicators expire
// on their own rather than trusting a stop event that may never arrive.
type Coordinator struct {
	selfID   string
	selfName string
	emitter  Emitter
	timeout  time.Duration
	logger   *slog.Logger

	mu         sync.Mutex
	localConv  string // conversation with an outstanding typing_start
	localTimer *time.Timer
	burst      uint64 // bumped on every (re)schedule; stale timer callbacks bail
	remote     map[string]map[string]model.TypingState // conversation -> user -> state
	listeners  map[string]func()
	unsubs     []func()
	done       chan struct{}
	closed     bool
}

// NewCoordinator creates a typing coordinator for the session user. A zero
// timeout selects DefaultTimeout. A background sweeper retires expired
// remote indicators so they disappear even with no further events.
func NewCoordinator(selfID, selfName string, emitter Emitter, timeout time.Duration, logger *slog.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		selfID:    selfID,
		selfName:  selfName,
		emitter:   emitter,
		timeout:   timeout,
		logger:    logger.With("component", "typing"),
		remote:    make(map[string]map[string]model.TypingState),
		listeners: make(map[string]func()),
		done:      make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Attach subscribes the coordinator to remote typing events.
func (c *Coordinator) Attach(mgr *channel.Manager) {
	offStart := mgr.On(channel.EventTypingStart, func(data json.RawMessage) {
		var p channel.TypingPayload
		if err := json.Unmarshal(data, &p); err != nil {
			c.logger.Warn("dropping malformed typing event", "error", err)
			return
		}
		c.HandleTypingStart(p.ConversationID, p.UserID, p.UserName)
	})
	offStop := mgr.On(channel.EventTypingStop, func(data json.RawMessage) {
		var p channel.TypingPayload
		if err := json.Unmarshal(data, &p); err != nil {
			c.logger.Warn("dropping malformed typing event", "error", err)
			return
		}
		c.HandleTypingStop(p.ConversationID, p.UserID)
	})

	c.mu.Lock()
	c.unsubs = append(c.unsubs, offStart, offStop)
	c.mu.Unlock()
}

// NotifyLocalTyping records a keystroke in the given conversation. The first
// call of a burst emits typing_start; further calls within the idle window
// only push the auto-stop deadline out. Typing in a different conversation
// first flushes the outstanding start with a stop.
func (c *Coordinator) NotifyLocalTyping(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	if c.localConv == conversationID {
		// Still the same burst: refresh without re-emitting.
		c.scheduleStopLocked(conversationID)
		return
	}
	if c.localConv != "" {
		c.emitStopLocked()
	}

	c.localConv = conversationID
	c.emitLocked(channel.EventTypingStart, conversationID)
	c.scheduleStopLocked(conversationID)
}

// scheduleStopLocked arms the auto-stop for the current burst, replacing any
// earlier timer. Stop/Reset cannot recall a callback that has already fired
// and is waiting on the mutex, so each schedule bumps the burst counter and
// the callback only acts if it is still the latest one.
func (c *Coordinator) scheduleStopLocked(conversationID string) {
	c.burst++
	burst := c.burst
	if c.localTimer != nil {
		c.localTimer.Stop()
	}
	c.localTimer = time.AfterFunc(c.timeout, func() {
		c.mu.Lock()
		if !c.closed && c.burst == burst && c.localConv == conversationID {
			c.emitStopLocked()
		}
		c.mu.Unlock()
	})
}

// StopLocal ends the current burst immediately, emitting the stop the idle
// timer would otherwise send. Called on explicit send and on conversation
// switch. No outstanding burst is a no-op.
func (c *Coordinator) StopLocal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.localConv != "" {
		c.emitStopLocked()
	}
}

// emitStopLocked emits typing_stop for the outstanding burst and clears it.
func (c *Coordinator) emitStopLocked() {
	if c.localTimer != nil {
		c.localTimer.Stop()
		c.localTimer = nil
	}
	c.emitLocked(channel.EventTypingStop, c.localConv)
	c.localConv = ""
}

func (c *Coordinator) emitLocked(event, conversationID string) {
	err := c.emitter.Emit(event, channel.TypingPayload{
		ConversationID: conversationID,
		UserID:         c.selfID,
		UserName:       c.selfName,
	})
	if err != nil {
		// Typing is cosmetic; a dead channel just means no indicator.
		c.logger.Debug("typing emit skipped", "event", event, "error", err)
	}
}

// HandleTypingStart records a remote user's typing indicator with a fresh
// expiry. The session user's own echoes are never stored.
func (c *Coordinator) HandleTypingStart(conversationID, userID, userName string) {
	if userID == c.selfID {
		return
	}

	c.mu.Lock()
	users, ok := c.remote[conversationID]
	if !ok {
		users = make(map[string]model.TypingState)
		c.remote[conversationID] = users
	}
	users[userID] = model.TypingState{
		DisplayName: userName,
		ExpiresAt:   time.Now().Add(c.timeout),
	}
	c.mu.Unlock()
	c.notify()
}

// HandleTypingStop clears a remote user's indicator.
func (c *Coordinator) HandleTypingStop(conversationID, userID string) {
	c.mu.Lock()
	changed := false
	if users, ok := c.remote[conversationID]; ok {
		if _, ok := users[userID]; ok {
			delete(users, userID)
			changed = true
		}
		if len(users) == 0 {
			delete(c.remote, conversationID)
		}
	}
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

// Typists returns the display names currently typing in a conversation,
// sorted for stable rendering. Expired entries are filtered here as well,
// so a reader between sweeps never sees a stale indicator.
func (c *Coordinator) Typists(conversationID string) []string {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var names []string
	for _, state := range c.remote[conversationID] {
		if state.ExpiresAt.After(now) {
			names = append(names, state.DisplayName)
		}
	}
	sort.Strings(names)
	return names
}

// sweep retires expired remote indicators in the background.
func (c *Coordinator) sweep() {
	ticker := time.NewTicker(c.timeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if c.expire() {
				c.notify()
			}
		case <-c.done:
			return
		}
	}
}

// expire drops every remote entry past its deadline. Returns whether any
// state changed.
func (c *Coordinator) expire() bool {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	changed := false
	for convID, users := range c.remote {
		for userID, state := range users {
			if !state.ExpiresAt.After(now) {
				delete(users, userID)
				changed = true
			}
		}
		if len(users) == 0 {
			delete(c.remote, convID)
		}
	}
	return changed
}

// OnChange registers a listener invoked when visible typing state changes.
// Returns the unsubscribe func.
func (c *Coordinator) OnChange(fn func()) func() {
	id := uuid.New().String()
	c.mu.Lock()
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Close flushes any outstanding local burst, stops the sweeper and drops
// all subscriptions. Safe to call once.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.localConv != "" {
		c.emitStopLocked()
	}
	close(c.done)
	unsubs := c.unsubs
	c.unsubs = nil
	c.listeners = make(map[string]func())
	c.mu.Unlock()

	for _, off := range unsubs {
		off()
	}
}

func (c *Coordinator) notify() {
	c.mu.Lock()
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
