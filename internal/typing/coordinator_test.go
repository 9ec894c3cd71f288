// ABOUTME: Tests for typing burst debouncing and remote indicator expiry
// ABOUTME: Verifies single start per burst, flush on switch and self-exclusion

package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/skillforge-client/internal/channel"
)

type recorded struct {
	event   string
	payload channel.TypingPayload
}

type mockEmitter struct {
	mu     sync.Mutex
	events []recorded
}

func (e *mockEmitter) Emit(event string, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, _ := payload.(channel.TypingPayload)
	e.events = append(e.events, recorded{event: event, payload: p})
	return nil
}

func (e *mockEmitter) snapshot() []recorded {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]recorded, len(e.events))
	copy(out, e.events)
	return out
}

func (e *mockEmitter) count(event string) int {
	n := 0
	for _, r := range e.snapshot() {
		if r.event == event {
			n++
		}
	}
	return n
}

func newTestCoordinator(t *testing.T, emitter *mockEmitter, timeout time.Duration) *Coordinator {
	t.Helper()
	c := NewCoordinator("user-1", "Ada", emitter, timeout, nil)
	t.Cleanup(c.Close)
	return c
}

func TestCoordinator_BurstEmitsSingleStart(t *testing.T) {
	emitter := &mockEmitter{}
	c := newTestCoordinator(t, emitter, time.Minute)

	c.NotifyLocalTyping("conv-1")
	c.NotifyLocalTyping("conv-1")
	c.NotifyLocalTyping("conv-1")

	events := emitter.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, channel.EventTypingStart, events[0].event)
	assert.Equal(t, "conv-1", events[0].payload.ConversationID)
	assert.Equal(t, "user-1", events[0].payload.UserID)
	assert.Equal(t, "Ada", events[0].payload.UserName)
}

func TestCoordinator_IdleTimeoutEmitsStop(t *testing.T) {
	emitter := &mockEmitter{}
	c := newTestCoordinator(t, emitter, 30*time.Millisecond)

	c.NotifyLocalTyping("conv-1")

	assert.Eventually(t, func() bool {
		return emitter.count(channel.EventTypingStop) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, emitter.count(channel.EventTypingStart))

	// A new keystroke after the lapse is a new burst.
	c.NotifyLocalTyping("conv-1")
	assert.Equal(t, 2, emitter.count(channel.EventTypingStart))
}

func TestCoordinator_ContinuousTypingNeverSplitsBurst(t *testing.T) {
	emitter := &mockEmitter{}
	c := newTestCoordinator(t, emitter, 40*time.Millisecond)

	// Keystrokes keep landing across several timeout windows. A refresh that
	// races an already-fired auto-stop callback must not let that stale
	// callback end the burst mid-typing.
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		c.NotifyLocalTyping("conv-1")
		time.Sleep(5 * time.Millisecond)
	}

	assert.Equal(t, 1, emitter.count(channel.EventTypingStart))
	assert.Equal(t, 0, emitter.count(channel.EventTypingStop))

	// Once the keystrokes stop, the burst lapses exactly once.
	assert.Eventually(t, func() bool {
		return emitter.count(channel.EventTypingStop) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, emitter.count(channel.EventTypingStart))
}

func TestCoordinator_SwitchFlushesOutstandingStop(t *testing.T) {
	emitter := &mockEmitter{}
	c := newTestCoordinator(t, emitter, time.Minute)

	c.NotifyLocalTyping("conv-1")
	c.NotifyLocalTyping("conv-2")

	events := emitter.snapshot()
	require.Len(t, events, 3)
	assert.Equal(t, channel.EventTypingStart, events[0].event)
	assert.Equal(t, "conv-1", events[0].payload.ConversationID)
	assert.Equal(t, channel.EventTypingStop, events[1].event)
	assert.Equal(t, "conv-1", events[1].payload.ConversationID)
	assert.Equal(t, channel.EventTypingStart, events[2].event)
	assert.Equal(t, "conv-2", events[2].payload.ConversationID)
}

func TestCoordinator_StopLocalIsIdempotent(t *testing.T) {
	emitter := &mockEmitter{}
	c := newTestCoordinator(t, emitter, time.Minute)

	c.NotifyLocalTyping("conv-1")
	c.StopLocal()
	c.StopLocal()

	assert.Equal(t, 1, emitter.count(channel.EventTypingStop))

	// No further stop fires later from the cancelled timer.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, emitter.count(channel.EventTypingStop))
}

func TestCoordinator_RemoteTypistsVisibleAndSorted(t *testing.T) {
	c := newTestCoordinator(t, &mockEmitter{}, time.Minute)

	c.HandleTypingStart("conv-1", "user-2", "Noor")
	c.HandleTypingStart("conv-1", "user-3", "Bea")
	c.HandleTypingStart("conv-2", "user-4", "Kim")

	assert.Equal(t, []string{"Bea", "Noor"}, c.Typists("conv-1"))
	assert.Equal(t, []string{"Kim"}, c.Typists("conv-2"))
	assert.Empty(t, c.Typists("conv-9"))
}

func TestCoordinator_RemoteStopClearsIndicator(t *testing.T) {
	c := newTestCoordinator(t, &mockEmitter{}, time.Minute)

	c.HandleTypingStart("conv-1", "user-2", "Noor")
	c.HandleTypingStop("conv-1", "user-2")

	assert.Empty(t, c.Typists("conv-1"))
}

func TestCoordinator_RemoteIndicatorExpiresWithoutStop(t *testing.T) {
	c := newTestCoordinator(t, &mockEmitter{}, 20*time.Millisecond)

	c.HandleTypingStart("conv-1", "user-2", "Noor")
	require.Equal(t, []string{"Noor"}, c.Typists("conv-1"))

	assert.Eventually(t, func() bool {
		return len(c.Typists("conv-1")) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestCoordinator_RefreshExtendsRemoteExpiry(t *testing.T) {
	c := newTestCoordinator(t, &mockEmitter{}, 60*time.Millisecond)

	c.HandleTypingStart("conv-1", "user-2", "Noor")
	for i := 0; i < 4; i++ {
		time.Sleep(25 * time.Millisecond)
		c.HandleTypingStart("conv-1", "user-2", "Noor")
		assert.Equal(t, []string{"Noor"}, c.Typists("conv-1"))
	}
}

func TestCoordinator_OwnEchoIsIgnored(t *testing.T) {
	c := newTestCoordinator(t, &mockEmitter{}, time.Minute)

	c.HandleTypingStart("conv-1", "user-1", "Ada")
	assert.Empty(t, c.Typists("conv-1"))
}

func TestCoordinator_CloseFlushesOutstandingBurst(t *testing.T) {
	emitter := &mockEmitter{}
	c := NewCoordinator("user-1", "Ada", emitter, time.Minute, nil)

	c.NotifyLocalTyping("conv-1")
	c.Close()

	assert.Equal(t, 1, emitter.count(channel.EventTypingStop))

	// Closed coordinators ignore further keystrokes.
	c.NotifyLocalTyping("conv-1")
	assert.Equal(t, 1, emitter.count(channel.EventTypingStart))
}
