// ABOUTME: Owns the single realtime channel connection for an authenticated session
// ABOUTME: Typed event bus, bounded reconnection, and leak-free handler teardown

package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/skillforge/skillforge-client/internal/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 256
)

// Manager errors
var (
	ErrClosed       = errors.New("channel closed")
	ErrNotConnected = errors.New("channel not connected")
)

// HandlerFunc receives the raw payload of one dispatched event. Handlers run
// to completion on the dispatch goroutine; the next event is not delivered
// until the current handler returns.
type HandlerFunc func(data json.RawMessage)

// Options tunes connection behavior. Zero values get defaults.
type Options struct {
	ReconnectMaxAttempts int
	ReconnectBackoff     time.Duration
	ReconnectMaxBackoff  time.Duration
}

func (o *Options) applyDefaults() {
	if o.ReconnectMaxAttempts == 0 {
		o.ReconnectMaxAttempts = 5
	}
	if o.ReconnectBackoff == 0 {
		o.ReconnectBackoff = time.Second
	}
	if o.ReconnectMaxBackoff == 0 {
		o.ReconnectMaxBackoff = 30 * time.Second
	}
}

// Manager owns the one bidirectional event channel per authenticated
// session. All stores share it: they subscribe with On and send with Emit,
// but only the Manager dials or tears down the underlying connection.
type Manager struct {
	url    string
	cred   *auth.Credential
	opts   Options
	dialer *websocket.Dialer
	logger *slog.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	connDone   chan struct{} // closed when the current connection's read pump exits
	connected  bool
	connecting bool
	closed     bool
	handlers   map[string]map[string]HandlerFunc // event -> handlerID -> fn
	rooms      map[string]bool                   // joined conversation rooms, re-joined once on reconnect

	send chan []byte   // outbound queue, survives reconnects
	done chan struct{} // closed on Disconnect
}

// NewManager creates a channel manager for the given websocket URL and
// session credential. Pass nil logger for the default.
func NewManager(url string, cred *auth.Credential, opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	opts.applyDefaults()
	return &Manager{
		url:    url,
		cred:   cred,
		opts:   opts,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger.With("component", "channel"),

		handlers: make(map[string]map[string]HandlerFunc),
		rooms:    make(map[string]bool),
		send:     make(chan []byte, sendQueueSize),
		done:     make(chan struct{}),
	}
}

// Connect establishes the channel. Calling while already connected is a
// no-op. A failed dial is surfaced as connect_error on the bus and returned;
// the caller degrades to REST-only behavior rather than treating it as fatal.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.connected || m.connecting {
		m.mu.Unlock()
		return nil
	}
	m.connecting = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.connecting = false
		m.mu.Unlock()
	}()

	if err := m.cred.Valid(time.Now()); err != nil {
		// Expired credential means re-login, not retry.
		return fmt.Errorf("connecting channel: %w", err)
	}

	conn, err := m.dial(ctx)
	if err != nil {
		m.dispatch(EventConnectError, nil)
		return fmt.Errorf("connecting channel: %w", err)
	}

	m.establish(conn)
	return nil
}

// dial opens one websocket connection with the bearer credential.
func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+m.cred.Token())

	conn, resp, err := m.dialer.DialContext(ctx, m.url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake rejected (%d)", auth.ErrInvalidCredential, resp.StatusCode)
		}
		return nil, err
	}
	return conn, nil
}

// establish wires up a freshly dialed connection: pumps, presence announce
// (exactly once per successful connection), room re-joins, ready signal.
func (m *Manager) establish(conn *websocket.Conn) {
	m.mu.Lock()
	m.conn = conn
	m.connected = true
	m.connDone = make(chan struct{})
	connDone := m.connDone
	rooms := make([]string, 0, len(m.rooms))
	for room := range m.rooms {
		rooms = append(rooms, room)
	}
	m.mu.Unlock()

	go m.writePump(conn, connDone)
	go m.readPump(conn, connDone)

	if err := m.Emit(EventUserOnline, UserOnlinePayload{UserID: m.cred.UserID()}); err != nil {
		m.logger.Warn("presence announce failed", "error", err)
	}
	for _, room := range rooms {
		if err := m.Emit(EventJoinConversation, JoinConversationPayload{ConversationID: room}); err != nil {
			m.logger.Warn("room re-join failed", "room", room, "error", err)
		}
	}

	m.logger.Info("channel connected", "url", m.url, "rooms", len(rooms))
	m.dispatch(EventReady, nil)
}

// On registers a handler for an event and returns its unsubscribe func.
// Every registration must be paired with a call to the returned func (or a
// Disconnect, which unregisters everything).
func (m *Manager) On(event string, h HandlerFunc) func() {
	id := uuid.New().String()

	m.mu.Lock()
	if m.handlers[event] == nil {
		m.handlers[event] = make(map[string]HandlerFunc)
	}
	m.handlers[event][id] = h
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if hs, ok := m.handlers[event]; ok {
			delete(hs, id)
			if len(hs) == 0 {
				delete(m.handlers, event)
			}
		}
	}
}

// Emit queues an event for transmission. Returns ErrNotConnected while the
// channel is down; callers treat that as degraded, not fatal.
func (m *Manager) Emit(event string, payload any) error {
	m.mu.Lock()
	connected := m.connected
	m.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding %s payload: %w", event, err)
		}
		env.Data = data
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding %s envelope: %w", event, err)
	}

	select {
	case m.send <- frame:
		return nil
	default:
		m.logger.Warn("send queue full, dropping event", "event", event)
		return fmt.Errorf("emit %s: send queue full", event)
	}
}

// JoinConversation subscribes to a conversation room. The room is remembered
// and re-joined exactly once after each successful reconnect.
func (m *Manager) JoinConversation(conversationID string) error {
	m.mu.Lock()
	already := m.rooms[conversationID]
	m.rooms[conversationID] = true
	m.mu.Unlock()

	if already {
		return nil
	}
	return m.Emit(EventJoinConversation, JoinConversationPayload{ConversationID: conversationID})
}

// Connected reports whether the channel is currently established.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Disconnect tears down the channel and unregisters every handler registered
// through this manager. Stale handlers firing into torn-down stores are a
// correctness bug, so teardown is all-or-nothing.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.connected = false
	conn := m.conn
	m.conn = nil
	m.handlers = make(map[string]map[string]HandlerFunc)
	m.rooms = make(map[string]bool)
	m.mu.Unlock()

	close(m.done)
	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		conn.Close()
	}
	m.logger.Info("channel disconnected")
}

// readPump reads envelopes and dispatches them serially until the
// connection dies, then hands off to the reconnect loop.
func (m *Manager) readPump(conn *websocket.Conn, connDone chan struct{}) {
	defer close(connDone)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			closed := m.closed
			if m.conn == conn {
				m.conn = nil
				m.connected = false
			}
			m.mu.Unlock()

			if !closed {
				m.logger.Warn("channel read failed", "error", err)
				go m.reconnect()
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			m.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		m.dispatch(env.Event, env.Data)
	}
}

// writePump drains the send queue onto one connection and keeps it alive
// with pings. Exits when the connection's read pump does.
func (m *Manager) writePump(conn *websocket.Conn, connDone chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame := <-m.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				m.logger.Warn("channel write failed", "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-connDone:
			return
		case <-m.done:
			return
		}
	}
}

// reconnect retries the dial with exponential backoff up to the configured
// attempt cap. Exhausting the cap dispatches a terminal disconnected event
// instead of retrying forever; the UI shows offline, not a spinner.
func (m *Manager) reconnect() {
	backoff := m.opts.ReconnectBackoff

	for attempt := 1; attempt <= m.opts.ReconnectMaxAttempts; attempt++ {
		select {
		case <-m.done:
			return
		case <-time.After(backoff):
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		conn, err := m.dial(ctx)
		cancel()
		if err == nil {
			m.logger.Info("channel reconnected", "attempt", attempt)
			m.establish(conn)
			return
		}

		m.logger.Warn("reconnect attempt failed",
			"attempt", attempt,
			"max_attempts", m.opts.ReconnectMaxAttempts,
			"error", err)
		m.dispatch(EventConnectError, nil)

		backoff *= 2
		if backoff > m.opts.ReconnectMaxBackoff {
			backoff = m.opts.ReconnectMaxBackoff
		}
	}

	m.logger.Error("reconnect attempts exhausted, channel offline")
	m.dispatch(EventDisconnected, nil)
}

// dispatch delivers one event to every registered handler, serially.
func (m *Manager) dispatch(event string, data json.RawMessage) {
	m.mu.Lock()
	hs := make([]HandlerFunc, 0, len(m.handlers[event]))
	for _, h := range m.handlers[event] {
		hs = append(hs, h)
	}
	m.mu.Unlock()

	for _, h := range hs {
		h(data)
	}
}
