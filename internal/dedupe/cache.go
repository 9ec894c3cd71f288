// ABOUTME: Thread-safe TTL cache collapsing at-least-once chat event delivery
// ABOUTME: Typed keys separate identity namespaces and scope message IDs to a view generation

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// class separates the identity namespaces so a server message ID can never
// collide with a client TempID or a notification ID.
type class uint8

const (
	classTemp class = iota + 1
	classMessage
	classNotification
	classSummary
)

// Key identifies one applied event.
type Key struct {
	class class
	gen   uint64
	id    string
}

// TempKey identifies an optimistic send by its client-generated TempID.
// Temp keys are global: a confirmation stays applied across conversation
// switches for as long as the REST send could still resolve.
func TempKey(tempID string) Key {
	return Key{class: classTemp, id: tempID}
}

// MessageKey identifies a server message within one timeline generation.
// Scoping to the generation lets a fresh authoritative history load re-apply
// rows an earlier view of the same conversation already displayed, while
// still collapsing redelivery and history/buffer overlap within the current
// view. Stale generations age out of the cache on their own.
func MessageKey(gen uint64, id string) Key {
	return Key{class: classMessage, gen: gen, id: id}
}

// NotificationKey identifies a pushed or fetched notification.
func NotificationKey(id string) Key {
	return Key{class: classNotification, id: id}
}

// SummaryKey identifies a message event as counted by the conversation
// list, whose unread arithmetic must see each logical message once no
// matter how often the transport delivers it.
func SummaryKey(messageID string) Key {
	return Key{class: classSummary, id: messageID}
}

// applied records when a key was applied and where it sits in the age list.
type applied struct {
	key  Key
	at   time.Time
	elem *list.Element
}

// Cache tracks identity keys the client has already applied. The transport
// and the REST layer can both deliver the same confirmation, and reconnects
// replay, so every timeline or counter mutation is gated through
// CheckAndMark. Bounded by TTL and size; the age list keeps the
// oldest-applied entry at the front for O(1) eviction and early-exit sweeps.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*applied
	age     *list.List // *applied, oldest at front; re-marking moves to back
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a dedupe cache with the given TTL and maximum size. A
// background goroutine periodically retires expired entries.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		entries: make(map[Key]*applied),
		age:     list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Check reports whether the key has been applied and is not expired.
func (c *Cache) Check(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	return ok && time.Since(e.at) < c.ttl
}

// CheckAndMark atomically checks whether a key has been applied and marks
// it if not. Returns true for a duplicate, false if the key is new and now
// marked. The single atomic step is what lets duplicate confirmations of
// the same identity collapse to exactly one mutation.
func (c *Cache) CheckAndMark(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && time.Since(e.at) < c.ttl {
		return true
	}
	c.markLocked(key)
	return false
}

// Mark records that a key has been applied, refreshing it if present.
func (c *Cache) Mark(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markLocked(key)
}

func (c *Cache) markLocked(key Key) {
	now := time.Now()

	if e, ok := c.entries[key]; ok {
		e.at = now
		c.age.MoveToBack(e.elem)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}

	e := &applied{key: key, at: now}
	e.elem = c.age.PushBack(e)
	c.entries[key] = e
}

// evictOldestLocked removes the oldest-applied entry to make room.
func (c *Cache) evictOldestLocked() {
	front := c.age.Front()
	if front == nil {
		return
	}
	e := front.Value.(*applied)
	c.age.Remove(front)
	delete(c.entries, e.key)
}

// sweep retires expired entries in the background. The lazy TTL checks in
// Check and CheckAndMark keep correctness even between sweeps; this only
// bounds memory for keys nothing asks about again.
func (c *Cache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

// removeExpired walks the age list from the front and stops at the first
// entry still inside the TTL.
func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for front := c.age.Front(); front != nil; front = c.age.Front() {
		e := front.Value.(*applied)
		if now.Sub(e.at) < c.ttl {
			return
		}
		c.age.Remove(front)
		delete(c.entries, e.key)
	}
}

// Close stops the background sweeper. Safe to call multiple times; the
// cache itself stays usable so late confirmations never panic.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
