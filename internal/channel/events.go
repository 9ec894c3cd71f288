// ABOUTME: Event names and payload types for the realtime channel protocol
// ABOUTME: Mirrors the server's socket event vocabulary plus local lifecycle events

package channel

import "encoding/json"

// Wire events exchanged with the server.
const (
	// Outbound
	EventUserOnline       = "user_online"       // presence announce, once per connection
	EventJoinConversation = "join_conversation" // subscribe to a conversation room
	EventSendMessage      = "send_message"      // low-latency delivery to the peer

	// Inbound
	EventNewMessage      = "new_message"
	EventNewNotification = "new_notification"
	EventPresence        = "presence"

	// Both directions
	EventTypingStart = "typing_start"
	EventTypingStop  = "typing_stop"
)

// Local lifecycle events dispatched on the same bus. They never cross the
// wire; dependents subscribe to them like any other event.
const (
	EventReady        = "ready"         // connection established, presence announced
	EventDisconnected = "disconnected"  // reconnect attempts exhausted, terminal
	EventConnectError = "connect_error" // a connect or reconnect attempt failed
)

// Envelope is the wire framing for one channel event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// UserOnlinePayload announces the local user's presence.
type UserOnlinePayload struct {
	UserID string `json:"userId"`
}

// JoinConversationPayload subscribes the connection to a conversation room.
type JoinConversationPayload struct {
	ConversationID string `json:"conversationId"`
}

// SendMessagePayload carries an outgoing message over the socket. TempID
// lets the receiving side and the echo path reconcile with the optimistic
// entry created by the sender.
type SendMessagePayload struct {
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	Text           string `json:"text"`
	TempID         string `json:"tempId,omitempty"`
}

// TypingPayload carries typing indicator transitions in both directions.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName,omitempty"`
}

// PresencePayload carries a peer's presence transition.
type PresencePayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"` // "online" or "offline"
}
