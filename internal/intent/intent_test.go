// ABOUTME: Tests for booking-intent detection and prompt dismissal
// ABOUTME: Covers the five-message window, currency markers and re-prompt on new matches

package intent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/skillforge/skillforge-client/internal/model"
)

func timeline(texts ...string) []model.Message {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	msgs := make([]model.Message, len(texts))
	for i, text := range texts {
		msgs[i] = model.Message{
			ID:        "m" + string(rune('1'+i)),
			Text:      text,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return msgs
}

func TestDetect_SessionKeyword(t *testing.T) {
	msgs := timeline(
		"hey!",
		"how was your week",
		"pretty good",
		"nice",
		"Can we do a session this weekend?",
	)
	assert.True(t, Detect(msgs))
}

func TestDetect_CurrencyMarker(t *testing.T) {
	assert.True(t, Detect(timeline("it would be $40")))
	assert.True(t, Detect(timeline("around €35 works")))
	assert.True(t, Detect(timeline("50 USD sounds fair")))
}

func TestDetect_CaseInsensitive(t *testing.T) {
	assert.True(t, Detect(timeline("LET'S BOOK IT")))
}

func TestDetect_NoIntent(t *testing.T) {
	assert.False(t, Detect(timeline("hello", "how are you", "fine thanks")))
	assert.False(t, Detect(nil))
}

func TestDetect_OnlyInspectsLastFive(t *testing.T) {
	msgs := timeline(
		"can we schedule a session?", // outside the window
		"actually never mind",
		"ok",
		"so how was the trip",
		"great",
		"see you around",
	)
	assert.False(t, Detect(msgs))
}

func TestTracker_DismissSuppressesUntilNewerMatch(t *testing.T) {
	tr := NewTracker()
	msgs := timeline("hi", "can we do a session this weekend?")

	assert.True(t, tr.ShouldPrompt("conv-1", msgs))

	tr.Dismiss("conv-1", msgs)
	assert.False(t, tr.ShouldPrompt("conv-1", msgs))

	// A newer matching message revives the prompt.
	msgs = append(msgs, model.Message{
		ID:        "m9",
		Text:      "so, session on sunday at $30?",
		CreatedAt: msgs[len(msgs)-1].CreatedAt.Add(time.Hour),
	})
	assert.True(t, tr.ShouldPrompt("conv-1", msgs))
}

func TestTracker_DismissalIsPerConversation(t *testing.T) {
	tr := NewTracker()
	msgs := timeline("book me for a lesson")

	tr.Dismiss("conv-1", msgs)
	assert.False(t, tr.ShouldPrompt("conv-1", msgs))
	assert.True(t, tr.ShouldPrompt("conv-2", msgs))
}

func TestTracker_NoMatchNeverPrompts(t *testing.T) {
	tr := NewTracker()
	msgs := timeline("hello there")

	assert.False(t, tr.ShouldPrompt("conv-1", msgs))
	tr.Dismiss("conv-1", msgs) // nothing to dismiss, no-op
	assert.False(t, tr.ShouldPrompt("conv-1", msgs))
}

func TestTracker_ResetClearsDismissal(t *testing.T) {
	tr := NewTracker()
	msgs := timeline("what's your hourly rate?")

	tr.Dismiss("conv-1", msgs)
	assert.False(t, tr.ShouldPrompt("conv-1", msgs))

	tr.Reset("conv-1")
	assert.True(t, tr.ShouldPrompt("conv-1", msgs))
}
