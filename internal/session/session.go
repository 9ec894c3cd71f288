// ABOUTME: Composition root wiring credential, REST client, channel and stores
// ABOUTME: Owns startup, conversation selection and ordered teardown for one login

package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/skillforge/skillforge-client/internal/api"
	"github.com/skillforge/skillforge-client/internal/auth"
	"github.com/skillforge/skillforge-client/internal/cache"
	"github.com/skillforge/skillforge-client/internal/channel"
	"github.com/skillforge/skillforge-client/internal/config"
	"github.com/skillforge/skillforge-client/internal/conversations"
	"github.com/skillforge/skillforge-client/internal/intent"
	"github.com/skillforge/skillforge-client/internal/messages"
	"github.com/skillforge/skillforge-client/internal/notifications"
	"github.com/skillforge/skillforge-client/internal/typing"
)

// kvSelectedConversation is the cache key remembering the last open
// conversation across restarts.
const kvSelectedConversation = "selected_conversation"

// Session wires one authenticated login together: the REST client, the
// realtime channel and every store hanging off them. Stores are exported
// for the UI to query and subscribe to; lifecycle stays here.
type Session struct {
	cred   *auth.Credential
	logger *slog.Logger

	API           *api.Client
	Channel       *channel.Manager
	Cache         *cache.Cache // nil when the local database could not open
	Conversations *conversations.Store
	Messages      *messages.Store
	Typing        *typing.Coordinator
	Notifications *notifications.Bridge
	Intent        *intent.Tracker
}

// New builds a session from configuration and a parsed credential. A cache
// that fails to open degrades to no offline fallback rather than blocking
// login.
func New(cfg *config.Config, cred *auth.Credential, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := cred.Valid(time.Now()); err != nil {
		return nil, fmt.Errorf("credential check: %w", err)
	}

	db, err := cache.New(cfg.Cache.Path, logger)
	if err != nil {
		logger.Warn("local cache unavailable, running without offline fallback", "error", err)
		db = nil
	}

	client := api.NewClient(cfg.API.BaseURL, cred.Token(), cfg.API.Timeout, logger)
	mgr := channel.NewManager(cfg.Channel.URL, cred, channel.Options{
		ReconnectMaxAttempts: cfg.Channel.ReconnectMaxAttempts,
		ReconnectBackoff:     cfg.Channel.ReconnectBackoff,
		ReconnectMaxBackoff:  cfg.Channel.ReconnectMaxBackoff,
	}, logger)

	var summaryCache conversations.SummaryCache
	var listCache notifications.ListCache
	if db != nil {
		summaryCache = db
		listCache = db
	}

	s := &Session{
		cred:          cred,
		logger:        logger.With("component", "session"),
		API:           client,
		Channel:       mgr,
		Cache:         db,
		Conversations: conversations.NewStore(cred.UserID(), client, summaryCache, logger),
		Messages:      messages.NewStore(cred.UserID(), client, client, mgr, logger),
		Typing:        typing.NewCoordinator(cred.UserID(), cred.DisplayName(), mgr, cfg.Channel.TypingTimeout, logger),
		Notifications: notifications.NewBridge(client, listCache, logger),
		Intent:        intent.NewTracker(),
	}

	s.Conversations.Attach(mgr)
	s.Messages.Attach(mgr)
	s.Typing.Attach(mgr)
	s.Notifications.Attach(mgr)

	return s, nil
}

// Start connects the channel and loads the initial snapshots. A channel
// that will not connect is degraded, not fatal: the session continues
// REST-only. Auth failures on any surface abort the session.
func (s *Session) Start(ctx context.Context) error {
	if err := s.Channel.Connect(ctx); err != nil {
		if auth.IsCredentialError(err) {
			return fmt.Errorf("channel handshake: %w", err)
		}
		s.logger.Warn("channel unavailable, continuing REST-only", "error", err)
	}

	if err := s.Conversations.Load(ctx); err != nil {
		if api.IsAuth(err) {
			return fmt.Errorf("loading conversations: %w", err)
		}
		s.logger.Warn("conversation list unavailable", "error", err)
	}
	if err := s.Notifications.Load(ctx); err != nil {
		if api.IsAuth(err) {
			return fmt.Errorf("loading notifications: %w", err)
		}
		s.logger.Warn("notification list unavailable", "error", err)
	}
	return nil
}

// Select opens a conversation: flushes any typing burst in the previous
// one, resets its unread count, joins the channel room and loads history.
// The history error is returned so the caller can show a degraded view;
// buffered socket traffic still lands either way.
func (s *Session) Select(ctx context.Context, conversationID string) error {
	s.Typing.StopLocal()
	s.Conversations.Select(conversationID)

	if err := s.Channel.JoinConversation(conversationID); err != nil {
		s.logger.Debug("room join skipped", "conversation_id", conversationID, "error", err)
	}
	if s.Cache != nil {
		if err := s.Cache.Set(ctx, kvSelectedConversation, conversationID); err != nil {
			s.logger.Debug("persisting selection failed", "error", err)
		}
	}

	return s.Messages.LoadHistory(ctx, conversationID)
}

// LastSelected returns the conversation that was open when the previous
// run exited, if the cache remembers one.
func (s *Session) LastSelected(ctx context.Context) (string, bool) {
	if s.Cache == nil {
		return "", false
	}
	v, ok, err := s.Cache.Get(ctx, kvSelectedConversation)
	if err != nil {
		s.logger.Debug("reading last selection failed", "error", err)
		return "", false
	}
	return v, ok
}

// UserID returns the session user's identifier.
func (s *Session) UserID() string { return s.cred.UserID() }

// Close tears the session down in dependency order: typing first so its
// stop event can still ride the live channel, then the stores' handler
// subscriptions, then the channel itself, the cache last.
func (s *Session) Close() {
	s.Typing.Close()
	s.Messages.Close()
	s.Conversations.Close()
	s.Notifications.Close()
	s.Channel.Disconnect()
	if s.Cache != nil {
		if err := s.Cache.Close(); err != nil {
			s.logger.Debug("closing cache failed", "error", err)
		}
	}
}
