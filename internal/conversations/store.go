// ABOUTME: Holds conversation summaries, unread counters and presence for the session
// ABOUTME: Merges REST snapshots with socket-sourced updates under a last-write-wins rule

package conversations

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skillforge/skillforge-client/internal/api"
	"github.com/skillforge/skillforge-client/internal/channel"
	"github.com/skillforge/skillforge-client/internal/dedupe"
	"github.com/skillforge/skillforge-client/internal/model"
)

const (
	dedupeTTL  = 5 * time.Minute
	dedupeSize = 4096
)

// Lister is the REST surface the store reads summaries from.
type Lister interface {
	ListConversations(ctx context.Context) ([]model.Conversation, error)
}

// SummaryCache persists the last-known-good summary list for offline
// fallback. Implementations may be nil-safe no-ops in tests.
type SummaryCache interface {
	SaveConversations(ctx context.Context, convs []model.Conversation) error
	LoadConversations(ctx context.Context) ([]model.Conversation, error)
}

// Store owns the ordered conversation list for one session. All methods are
// safe for concurrent use by the channel dispatcher and REST goroutines.
type Store struct {
	selfID string
	api    Lister
	cache  SummaryCache
	seen   *dedupe.Cache
	logger *slog.Logger

	mu            sync.RWMutex
	byID          map[string]*model.Conversation
	byParticipant map[string]string // participantID -> conversationID, 1:1 invariant
	activeID      string
	listeners     map[string]func()
	unsubs        []func()
}

// NewStore creates a conversation store for the given session user. The
// cache may be nil, which disables offline fallback.
func NewStore(selfID string, lister Lister, cache SummaryCache, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		selfID:        selfID,
		api:           lister,
		cache:         cache,
		seen:          dedupe.New(dedupeTTL, dedupeSize),
		logger:        logger.With("component", "conversations"),
		byID:          make(map[string]*model.Conversation),
		byParticipant: make(map[string]string),
		listeners:     make(map[string]func()),
	}
}

// Attach subscribes the store to the channel events it owns: message
// summaries and presence. Close releases the subscriptions.
func (s *Store) Attach(mgr *channel.Manager) {
	offMsg := mgr.On(channel.EventNewMessage, func(data json.RawMessage) {
		var msg model.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("dropping malformed message event", "error", err)
			return
		}
		s.ApplyIncoming(&msg)
	})
	offPresence := mgr.On(channel.EventPresence, func(data json.RawMessage) {
		var p channel.PresencePayload
		if err := json.Unmarshal(data, &p); err != nil {
			s.logger.Warn("dropping malformed presence event", "error", err)
			return
		}
		s.ApplyPresence(p.UserID, model.Presence(p.Status))
	})

	s.mu.Lock()
	s.unsubs = append(s.unsubs, offMsg, offPresence)
	s.mu.Unlock()
}

// Load fetches summaries over REST. A transient failure falls back to the
// last-known-good cached list so the UI never hangs on a spinner; auth
// failures are returned as-is because they end the session.
func (s *Store) Load(ctx context.Context) error {
	convs, err := s.api.ListConversations(ctx)
	if err != nil {
		if api.IsAuth(err) || s.cache == nil {
			return err
		}
		cached, cacheErr := s.cache.LoadConversations(ctx)
		if cacheErr != nil {
			s.logger.Warn("summary fetch and cache fallback both failed",
				"fetch_error", err, "cache_error", cacheErr)
			return err
		}
		s.logger.Warn("summary fetch failed, serving cached list",
			"error", err, "cached", len(cached))
		s.merge(cached)
		s.notify()
		return nil
	}

	s.merge(convs)
	s.notify()

	if s.cache != nil {
		if err := s.cache.SaveConversations(ctx, s.Conversations()); err != nil {
			s.logger.Warn("persisting summary cache failed", "error", err)
		}
	}
	return nil
}

// merge folds a snapshot into local state. Socket updates can run ahead of a
// REST snapshot, so each summary only moves forward: the later LastMessageAt
// wins, equal timestamps keep the value already applied.
func (s *Store) merge(convs []model.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, incoming := range convs {
		existing, ok := s.byID[incoming.ID]
		if !ok {
			// One conversation per participant pair: a snapshot row for a
			// participant we already track under another ID is a server-side
			// duplicate and is skipped.
			if _, dup := s.byParticipant[incoming.ParticipantID]; dup {
				s.logger.Warn("skipping duplicate conversation for participant",
					"conversation_id", incoming.ID,
					"participant_id", incoming.ParticipantID)
				continue
			}
			c := incoming
			s.byID[c.ID] = &c
			s.byParticipant[c.ParticipantID] = c.ID
			continue
		}

		if incoming.LastMessageAt.After(existing.LastMessageAt) {
			existing.LastMessageText = incoming.LastMessageText
			existing.LastMessageAt = incoming.LastMessageAt
			existing.UnreadCount = incoming.UnreadCount
		}
		if incoming.ParticipantName != "" {
			existing.ParticipantName = incoming.ParticipantName
		}
		if s.activeID == existing.ID {
			existing.UnreadCount = 0
		}
	}
}

// ApplyIncoming updates the summary for a message's conversation. The
// summary always advances; the unread counter increments only once per
// message ID, and only when the conversation is not the open one and the
// sender is not the session user.
func (s *Store) ApplyIncoming(msg *model.Message) {
	// The channel redelivers after reconnects. A message ID already counted
	// must not move the unread counter again; the summary fields are
	// idempotent on their own through the monotonic timestamp rule.
	fresh := msg.ID == "" || !s.seen.CheckAndMark(dedupe.SummaryKey(msg.ID))

	s.mu.Lock()

	conv, ok := s.byID[msg.ConversationID]
	if !ok {
		if msg.SenderID == s.selfID {
			// An echo of our own send names us as the sender; creating a
			// conversation from it would file the session user as the peer.
			// The REST snapshot supplies the real summary.
			s.logger.Debug("ignoring own echo for unknown conversation",
				"conversation_id", msg.ConversationID)
			s.mu.Unlock()
			return
		}
		// First inbound message referencing an unknown conversation creates it.
		conv = &model.Conversation{
			ID:              msg.ConversationID,
			ParticipantID:   msg.SenderID,
			ParticipantName: msg.SenderName,
			Presence:        model.PresenceOffline,
		}
		s.byID[conv.ID] = conv
		s.byParticipant[conv.ParticipantID] = conv.ID
	}

	// LastMessageAt is monotonic: a late retry with an older timestamp must
	// not roll the summary back, and an equal timestamp keeps the value that
	// arrived first.
	if msg.CreatedAt.After(conv.LastMessageAt) {
		conv.LastMessageText = msg.Text
		conv.LastMessageAt = msg.CreatedAt
	}

	if fresh && msg.SenderID != s.selfID && conv.ID != s.activeID {
		conv.UnreadCount++
	}

	s.mu.Unlock()
	s.notify()
}

// ApplyPresence records a push-derived presence transition for a peer.
func (s *Store) ApplyPresence(userID string, presence model.Presence) {
	s.mu.Lock()
	changed := false
	if convID, ok := s.byParticipant[userID]; ok {
		if conv := s.byID[convID]; conv != nil && conv.Presence != presence {
			conv.Presence = presence
			changed = true
		}
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}

// Select marks a conversation active and resets its unread counter. The
// caller drives the history load and room join for the new selection.
func (s *Store) Select(conversationID string) {
	s.mu.Lock()
	s.activeID = conversationID
	if conv, ok := s.byID[conversationID]; ok {
		conv.UnreadCount = 0
	}
	s.mu.Unlock()
	s.notify()
}

// ActiveID returns the currently open conversation, or empty.
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Get returns a snapshot of one conversation.
func (s *Store) Get(conversationID string) (model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.byID[conversationID]
	if !ok {
		return model.Conversation{}, false
	}
	return *conv, true
}

// Conversations returns a snapshot sorted by most recent activity first.
func (s *Store) Conversations() []model.Conversation {
	s.mu.RLock()
	out := make([]model.Conversation, 0, len(s.byID))
	for _, conv := range s.byID {
		out = append(out, *conv)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// OnChange registers a listener invoked after every state mutation. Returns
// the unsubscribe func.
func (s *Store) OnChange(fn func()) func() {
	id := uuid.New().String()
	s.mu.Lock()
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Close releases channel subscriptions, listeners and the dedupe sweeper.
func (s *Store) Close() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.listeners = make(map[string]func())
	s.mu.Unlock()

	for _, off := range unsubs {
		off()
	}
	s.seen.Close()
}

func (s *Store) notify() {
	s.mu.RLock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}
