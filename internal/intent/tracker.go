// ABOUTME: Per-conversation dismissal memory for the session prompt
// ABOUTME: A dismissed prompt stays hidden until a newer matching message lands

package intent

import (
	"sync"
	"time"

	"github.com/skillforge/skillforge-client/internal/model"
)

// Tracker remembers, per conversation, the newest matching message the
// user dismissed the prompt for. Detection itself stays pure; this is the
// caller-side state that keeps a dismissed prompt from popping straight
// back up on the next render.
type Tracker struct {
	mu        sync.Mutex
	dismissed map[string]time.Time // conversation -> CreatedAt of newest match at dismissal
}

// NewTracker creates an empty dismissal tracker.
func NewTracker() *Tracker {
	return &Tracker{dismissed: make(map[string]time.Time)}
}

// ShouldPrompt reports whether the session prompt should show for the
// conversation given its current timeline tail. True when the tail matches
// and either no dismissal is recorded or a matching message newer than the
// dismissed one has arrived since.
func (t *Tracker) ShouldPrompt(conversationID string, msgs []model.Message) bool {
	match, ok := LastMatch(msgs)
	if !ok {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	at, dismissed := t.dismissed[conversationID]
	if !dismissed {
		return true
	}
	return match.CreatedAt.After(at)
}

// Dismiss records that the user declined the prompt for the conversation's
// current intent signal. With no matching message in the tail there is
// nothing to dismiss.
func (t *Tracker) Dismiss(conversationID string, msgs []model.Message) {
	match, ok := LastMatch(msgs)
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.dismissed[conversationID] = match.CreatedAt
}

// Reset clears the dismissal for one conversation.
func (t *Tracker) Reset(conversationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.dismissed, conversationID)
}
