// ABOUTME: Per-conversation message timeline with optimistic sends and reconciliation
// ABOUTME: Merges REST history, local pending entries and socket events exactly once, in order

package messages

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
	historyPageSize = 50

	// echoWindow bounds the similarity fallback: a TempID-less socket echo
	// from the session user matching a pending entry's conversation and text
	// within this window is the same message, not a new one.
	echoWindow = 2 * time.Second

	dedupeTTL  = 5 * time.Minute
	dedupeSize = 4096
)

// HistoryFetcher is the REST surface for loading a conversation's history.
type HistoryFetcher interface {
	GetHistory(ctx context.Context, conversationID, cursor string, limit int) (*api.HistoryPage, error)
}

// Sender is the REST surface for posting a message.
type Sender interface {
	PostMessage(ctx context.Context, conversationID string, req api.SendRequest) (*model.Message, error)
}

// Emitter sends events over the realtime channel. Emit failures are a
// degraded state, not an error: the REST send is the delivery of record.
type Emitter interface {
	Emit(event string, payload any) error
}

// entry is one timeline slot. seq is the arrival sequence that breaks
// CreatedAt ties and pins a confirmed message to its optimistic position.
type entry struct {
	msg model.Message
	seq uint64
}

// Store owns the ordered, deduplicated timeline of the active conversation.
type Store struct {
	selfID  string
	fetcher HistoryFetcher
	sender  Sender
	emitter Emitter
	seen    *dedupe.Cache
	logger  *slog.Logger

	mu         sync.RWMutex
	activeConv string
	generation uint64
	loading    bool
	buffer     []*model.Message // socket arrivals held while history is in flight
	timeline   []*entry
	pending    map[string]*entry // TempID -> timeline entry awaiting confirmation
	nextSeq    uint64
	listeners  map[string]func()
	unsubs     []func()
}

// NewStore creates a message store for the given session user.
func NewStore(selfID string, fetcher HistoryFetcher, sender Sender, emitter Emitter, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		selfID:    selfID,
		fetcher:   fetcher,
		sender:    sender,
		emitter:   emitter,
		seen:      dedupe.New(dedupeTTL, dedupeSize),
		logger:    logger.With("component", "messages"),
		pending:   make(map[string]*entry),
		listeners: make(map[string]func()),
	}
}

// Attach subscribes the store to inbound message events.
func (s *Store) Attach(mgr *channel.Manager) {
	off := mgr.On(channel.EventNewMessage, func(data json.RawMessage) {
		var msg model.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("dropping malformed message event", "error", err)
			return
		}
		s.HandleIncoming(&msg)
	})

	s.mu.Lock()
	s.unsubs = append(s.unsubs, off)
	s.mu.Unlock()
}

// LoadHistory fetches the timeline for a newly selected conversation.
// Socket messages arriving while the fetch is in flight are buffered and
// merged afterwards, never dropped. If the user switches again before the
// fetch resolves, the late response is discarded: a generation counter plus
// a conversation check guard against the out-of-order response race.
func (s *Store) LoadHistory(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.activeConv = conversationID
	s.loading = true
	s.buffer = nil
	s.timeline = nil
	// Pending entries for other conversations leave the view; their REST
	// sends still resolve and land in the dedupe set.
	for tempID, e := range s.pending {
		if e.msg.ConversationID != conversationID {
			delete(s.pending, tempID)
		}
	}
	s.mu.Unlock()

	page, err := s.fetcher.GetHistory(ctx, conversationID, "", historyPageSize)

	s.mu.Lock()

	if s.generation != gen || s.activeConv != conversationID {
		// A later selection owns the view now.
		s.mu.Unlock()
		return nil
	}
	s.loading = false

	if err != nil {
		// Degrade to whatever the socket delivered while we were fetching.
		s.mergeBufferLocked()
		s.mu.Unlock()
		s.notify()
		return err
	}

	for i := range page.Messages {
		msg := page.Messages[i]
		if msg.Status == "" {
			msg.Status = model.StatusSent
		}
		s.reconcileLocked(&msg)
	}
	s.mergeBufferLocked()
	s.mu.Unlock()
	s.notify()
	return nil
}

// mergeBufferLocked folds buffered socket arrivals into the timeline.
func (s *Store) mergeBufferLocked() {
	for _, msg := range s.buffer {
		s.reconcileLocked(msg)
	}
	s.buffer = nil
}

// HandleIncoming processes one socket message event. Events for other
// conversations are not timeline concerns; the conversation store owns
// their summaries.
func (s *Store) HandleIncoming(msg *model.Message) {
	s.mu.Lock()
	if msg.ConversationID != s.activeConv {
		s.mu.Unlock()
		return
	}
	if s.loading {
		s.buffer = append(s.buffer, msg)
		s.mu.Unlock()
		return
	}
	s.reconcileLocked(msg)
	s.mu.Unlock()
	s.notify()
}

// SendOptimistic appends a pending entry synchronously and returns it. The
// REST send and the low-latency socket emit run off the calling goroutine;
// the entry later transitions to sent (confirmation) or failed (rejection),
// never silently back to an apparent success.
func (s *Store) SendOptimistic(ctx context.Context, conversationID, text string) model.Message {
	msg := model.Message{
		TempID:         uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       s.selfID,
		Text:           text,
		Type:           model.MessageTypeText,
		CreatedAt:      time.Now(),
		Status:         model.StatusPending,
	}

	s.mu.Lock()
	if conversationID == s.activeConv {
		e := s.insertLocked(msg)
		s.pending[msg.TempID] = e
	}
	s.mu.Unlock()
	s.notify()

	if err := s.emitter.Emit(channel.EventSendMessage, channel.SendMessagePayload{
		ConversationID: conversationID,
		SenderID:       s.selfID,
		Text:           text,
		TempID:         msg.TempID,
	}); err != nil {
		s.logger.Debug("socket emit skipped", "error", err)
	}

	go func() {
		confirmed, err := s.sender.PostMessage(ctx, conversationID, api.SendRequest{
			Text:   text,
			TempID: msg.TempID,
		})
		if err != nil {
			s.logger.Warn("message send failed", "temp_id", msg.TempID, "error", err)
			s.markFailed(msg.TempID)
			return
		}
		s.Confirm(confirmed)
	}()

	return msg
}

// Confirm applies a server confirmation carrying the optimistic entry's
// TempID. Duplicate confirmations (REST response plus socket echo, or a
// redelivered echo) collapse to a single timeline mutation.
func (s *Store) Confirm(confirmed *model.Message) {
	s.mu.Lock()
	s.confirmLocked(confirmed)
	s.mu.Unlock()
	s.notify()
}

func (s *Store) confirmLocked(confirmed *model.Message) {
	if s.seen.CheckAndMark(dedupe.TempKey(confirmed.TempID)) {
		return
	}
	if confirmed.ID != "" {
		s.seen.Mark(dedupe.MessageKey(s.generation, confirmed.ID))
	}

	e, ok := s.pending[confirmed.TempID]
	if !ok {
		// The view moved on (conversation switch) before confirmation.
		s.logger.Debug("confirmation for entry no longer in view", "temp_id", confirmed.TempID)
		return
	}
	delete(s.pending, confirmed.TempID)

	// Replace in place: same position (seq unchanged), confirmed identity.
	e.msg.ID = confirmed.ID
	e.msg.Status = model.StatusSent
	e.msg.Read = confirmed.Read
	if !confirmed.CreatedAt.IsZero() {
		e.msg.CreatedAt = confirmed.CreatedAt
	}
}

// markFailed flips a still-pending entry to failed. A confirmation that
// already landed wins: failure of the REST call after a socket echo
// confirmed the message is not a failure of the message.
func (s *Store) markFailed(tempID string) {
	s.mu.Lock()
	if !s.seen.Check(dedupe.TempKey(tempID)) {
		if e, ok := s.pending[tempID]; ok {
			e.msg.Status = model.StatusFailed
		}
	}
	s.mu.Unlock()
	s.notify()
}

// reconcileLocked routes one inbound message into the timeline exactly once.
func (s *Store) reconcileLocked(msg *model.Message) {
	// Confirmation by TempID: the echo of an optimistic send.
	if msg.TempID != "" {
		if _, ok := s.pending[msg.TempID]; ok {
			s.confirmLocked(msg)
			return
		}
		if s.seen.Check(dedupe.TempKey(msg.TempID)) {
			// Already confirmed through the REST response.
			if msg.ID != "" {
				s.seen.Mark(dedupe.MessageKey(s.generation, msg.ID))
			}
			return
		}
	}

	// Duplicate delivery of an already-inserted server message. Keys carry
	// the timeline generation, so a fresh history load re-applies rows a
	// previous view of this conversation already displayed.
	if msg.ID != "" && s.seen.CheckAndMark(dedupe.MessageKey(s.generation, msg.ID)) {
		return
	}

	// Defensive similarity dedup: an echo of our own send that lost its
	// TempID in transit still matches a pending entry by content and time.
	if msg.SenderID == s.selfID {
		if e := s.matchPendingLocked(msg); e != nil {
			echo := *msg
			echo.TempID = e.msg.TempID
			s.confirmLocked(&echo)
			return
		}
	}

	if msg.Status == "" {
		msg.Status = model.StatusSent
	}
	s.insertLocked(*msg)
}

// matchPendingLocked finds a pending entry that a TempID-less echo matches:
// same conversation, same text, same sender, CreatedAt within echoWindow.
func (s *Store) matchPendingLocked(msg *model.Message) *entry {
	for _, e := range s.pending {
		if e.msg.ConversationID != msg.ConversationID || e.msg.Text != msg.Text {
			continue
		}
		delta := msg.CreatedAt.Sub(e.msg.CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= echoWindow {
			return e
		}
	}
	return nil
}

// insertLocked places a message at its (CreatedAt, arrival) position.
func (s *Store) insertLocked(msg model.Message) *entry {
	e := &entry{msg: msg, seq: s.nextSeq}
	s.nextSeq++

	// Position after every entry at or before this CreatedAt, so equal
	// timestamps keep arrival order.
	idx := sort.Search(len(s.timeline), func(i int) bool {
		return s.timeline[i].msg.CreatedAt.After(msg.CreatedAt)
	})
	s.timeline = append(s.timeline, nil)
	copy(s.timeline[idx+1:], s.timeline[idx:])
	s.timeline[idx] = e
	return e
}

// Messages returns the visible timeline, oldest first.
func (s *Store) Messages() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Message, len(s.timeline))
	for i, e := range s.timeline {
		out[i] = e.msg
	}
	return out
}

// ActiveConversation returns the conversation the timeline belongs to.
func (s *Store) ActiveConversation() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeConv
}

// OnChange registers a listener invoked after timeline mutations. Returns
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
