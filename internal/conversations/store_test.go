// ABOUTME: Tests for conversation summary merging, unread counters and fallback
// ABOUTME: Covers active/inactive unread arithmetic, tie-breaks, presence and cache degradation

package conversations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/skillforge-client/internal/api"
	"github.com/skillforge/skillforge-client/internal/model"
)

type mockLister struct {
	convs []model.Conversation
	err   error
	calls int
}

func (m *mockLister) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	m.calls++
	return m.convs, m.err
}

type mockCache struct {
	saved  []model.Conversation
	stored []model.Conversation
	err    error
}

func (m *mockCache) SaveConversations(ctx context.Context, convs []model.Conversation) error {
	m.saved = convs
	return nil
}

func (m *mockCache) LoadConversations(ctx context.Context) ([]model.Conversation, error) {
	return m.stored, m.err
}

func inbound(convID, senderID, text string, at time.Time) *model.Message {
	return &model.Message{
		ID:             "srv-" + text,
		ConversationID: convID,
		SenderID:       senderID,
		Text:           text,
		Type:           model.MessageTypeText,
		CreatedAt:      at,
	}
}

func TestStore_LoadPopulatesAndCaches(t *testing.T) {
	lister := &mockLister{convs: []model.Conversation{
		{ID: "conv-1", ParticipantID: "user-2", LastMessageText: "hey", LastMessageAt: time.Now()},
		{ID: "conv-2", ParticipantID: "user-3"},
	}}
	cache := &mockCache{}
	s := NewStore("user-1", lister, cache, nil)

	require.NoError(t, s.Load(context.Background()))

	assert.Len(t, s.Conversations(), 2)
	assert.Len(t, cache.saved, 2)
}

func TestStore_LoadFallsBackToCacheOnTransientFailure(t *testing.T) {
	lister := &mockLister{err: &api.TransientError{Op: "GET /api/conversations", Err: errors.New("boom")}}
	cache := &mockCache{stored: []model.Conversation{
		{ID: "conv-1", ParticipantID: "user-2", LastMessageText: "cached"},
	}}
	s := NewStore("user-1", lister, cache, nil)

	require.NoError(t, s.Load(context.Background()))

	convs := s.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, "cached", convs[0].LastMessageText)
}

func TestStore_LoadAuthErrorIsNotMasked(t *testing.T) {
	lister := &mockLister{err: &api.AuthError{Op: "GET /api/conversations", Status: 401}}
	cache := &mockCache{stored: []model.Conversation{{ID: "conv-1"}}}
	s := NewStore("user-1", lister, cache, nil)

	err := s.Load(context.Background())
	require.Error(t, err)
	assert.True(t, api.IsAuth(err))
	assert.Empty(t, s.Conversations())
}

func TestStore_UnreadArithmetic(t *testing.T) {
	s := NewStore("user-1", &mockLister{}, nil, nil)
	base := time.Now()

	s.ApplyIncoming(inbound("conv-a", "user-2", "m1", base))
	s.ApplyIncoming(inbound("conv-a", "user-2", "m2", base.Add(time.Second)))
	s.ApplyIncoming(inbound("conv-a", "user-2", "m3", base.Add(2*time.Second)))

	conv, ok := s.Get("conv-a")
	require.True(t, ok)
	assert.Equal(t, 3, conv.UnreadCount)

	// Opening the conversation resets the counter.
	s.Select("conv-a")
	conv, _ = s.Get("conv-a")
	assert.Equal(t, 0, conv.UnreadCount)

	// Messages for the open conversation leave it at zero.
	s.ApplyIncoming(inbound("conv-a", "user-2", "m4", base.Add(3*time.Second)))
	conv, _ = s.Get("conv-a")
	assert.Equal(t, 0, conv.UnreadCount)

	// A different conversation still accumulates.
	s.ApplyIncoming(inbound("conv-b", "user-3", "m5", base.Add(4*time.Second)))
	other, _ := s.Get("conv-b")
	assert.Equal(t, 1, other.UnreadCount)
}

func TestStore_OwnMessagesNeverIncrementUnread(t *testing.T) {
	s := NewStore("user-1", &mockLister{}, nil, nil)
	s.ApplyIncoming(inbound("conv-a", "user-2", "hi", time.Now()))
	s.Select("conv-b") // conv-a is not active

	s.ApplyIncoming(inbound("conv-a", "user-1", "my echo", time.Now().Add(time.Second)))

	conv, _ := s.Get("conv-a")
	assert.Equal(t, 1, conv.UnreadCount) // only the peer's message counted
}

func TestStore_RedeliveredMessageCountsUnreadOnce(t *testing.T) {
	s := NewStore("user-1", &mockLister{}, nil, nil)

	// A reconnect replays the same new_message event; the ID gates the
	// counter so the replay must not count again.
	msg := inbound("conv-a", "user-2", "hello", time.Now())
	s.ApplyIncoming(msg)
	s.ApplyIncoming(msg)

	conv, ok := s.Get("conv-a")
	require.True(t, ok)
	assert.Equal(t, 1, conv.UnreadCount)

	// A genuinely new message still counts.
	s.ApplyIncoming(inbound("conv-a", "user-2", "again", time.Now().Add(time.Second)))
	conv, _ = s.Get("conv-a")
	assert.Equal(t, 2, conv.UnreadCount)
}

func TestStore_SummaryTieBreak(t *testing.T) {
	s := NewStore("user-1", &mockLister{}, nil, nil)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.ApplyIncoming(inbound("conv-a", "user-2", "newer", base.Add(time.Minute)))
	// A retried older update must not roll the summary back.
	s.ApplyIncoming(inbound("conv-a", "user-2", "older", base))

	conv, _ := s.Get("conv-a")
	assert.Equal(t, "newer", conv.LastMessageText)
	assert.Equal(t, base.Add(time.Minute), conv.LastMessageAt)

	// Equal timestamps keep the earlier-applied value.
	s.ApplyIncoming(inbound("conv-a", "user-2", "same instant", base.Add(time.Minute)))
	conv, _ = s.Get("conv-a")
	assert.Equal(t, "newer", conv.LastMessageText)
}

func TestStore_UnknownConversationCreatedOnFirstMessage(t *testing.T) {
	s := NewStore("user-1", &mockLister{}, nil, nil)

	msg := inbound("conv-new", "user-9", "hello there", time.Now())
	msg.SenderName = "Riley"
	s.ApplyIncoming(msg)

	conv, ok := s.Get("conv-new")
	require.True(t, ok)
	assert.Equal(t, "user-9", conv.ParticipantID)
	assert.Equal(t, "Riley", conv.ParticipantName)
	assert.Equal(t, "hello there", conv.LastMessageText)
	assert.Equal(t, 1, conv.UnreadCount)
}

func TestStore_OwnEchoNeverCreatesConversation(t *testing.T) {
	s := NewStore("user-1", &mockLister{}, nil, nil)

	// The echo of our own send reaches us before any snapshot mentions the
	// conversation. Creating it from the echo would record the session user
	// as the peer, so the echo is ignored until a real source names one.
	s.ApplyIncoming(inbound("conv-new", "user-1", "my opener", time.Now()))

	_, ok := s.Get("conv-new")
	assert.False(t, ok)

	// The peer's reply then creates the conversation with the right
	// participant, and their presence routes to it.
	s.ApplyIncoming(inbound("conv-new", "user-7", "their reply", time.Now().Add(time.Second)))
	s.ApplyPresence("user-7", model.PresenceOnline)

	conv, ok := s.Get("conv-new")
	require.True(t, ok)
	assert.Equal(t, "user-7", conv.ParticipantID)
	assert.Equal(t, model.PresenceOnline, conv.Presence)
}

func TestStore_PresenceTransitions(t *testing.T) {
	s := NewStore("user-1", &mockLister{}, nil, nil)
	s.ApplyIncoming(inbound("conv-a", "user-2", "hi", time.Now()))

	s.ApplyPresence("user-2", model.PresenceOnline)
	conv, _ := s.Get("conv-a")
	assert.Equal(t, model.PresenceOnline, conv.Presence)

	s.ApplyPresence("user-2", model.PresenceOffline)
	conv, _ = s.Get("conv-a")
	assert.Equal(t, model.PresenceOffline, conv.Presence)

	// Presence for an unknown peer is ignored.
	s.ApplyPresence("user-77", model.PresenceOnline)
}

func TestStore_ConversationsSortedByRecency(t *testing.T) {
	s := NewStore("user-1", &mockLister{}, nil, nil)
	base := time.Now()

	s.ApplyIncoming(inbound("conv-old", "user-2", "old", base.Add(-time.Hour)))
	s.ApplyIncoming(inbound("conv-new", "user-3", "new", base))
	s.ApplyIncoming(inbound("conv-mid", "user-4", "mid", base.Add(-time.Minute)))

	convs := s.Conversations()
	require.Len(t, convs, 3)
	assert.Equal(t, "conv-new", convs[0].ID)
	assert.Equal(t, "conv-mid", convs[1].ID)
	assert.Equal(t, "conv-old", convs[2].ID)
}

func TestStore_MergeKeepsSocketAheadOfSnapshot(t *testing.T) {
	base := time.Now()
	lister := &mockLister{convs: []model.Conversation{
		{ID: "conv-a", ParticipantID: "user-2", LastMessageText: "stale snapshot", LastMessageAt: base.Add(-time.Minute)},
	}}
	s := NewStore("user-1", lister, nil, nil)

	// Socket delivered a newer message before the REST snapshot resolved.
	s.ApplyIncoming(inbound("conv-a", "user-2", "fresh", base))

	require.NoError(t, s.Load(context.Background()))

	conv, _ := s.Get("conv-a")
	assert.Equal(t, "fresh", conv.LastMessageText)
}

func TestStore_OnChangeNotifiesAndUnsubscribes(t *testing.T) {
	s := NewStore("user-1", &mockLister{}, nil, nil)

	count := 0
	off := s.OnChange(func() { count++ })

	s.ApplyIncoming(inbound("conv-a", "user-2", "hi", time.Now()))
	assert.Equal(t, 1, count)

	off()
	s.ApplyIncoming(inbound("conv-a", "user-2", "again", time.Now().Add(time.Second)))
	assert.Equal(t, 1, count)
}
