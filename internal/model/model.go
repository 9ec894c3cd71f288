// ABOUTME: Shared data types for the chat client core
// ABOUTME: Defines Conversation, Message, Notification and their status enums

package model

import "time"

// Presence describes a peer's push-derived online state.
type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceOffline Presence = "offline"
)

// MessageStatus tracks a message through the optimistic-send lifecycle.
type MessageStatus string

const (
	StatusPending MessageStatus = "pending" // created locally, not yet confirmed
	StatusSent    MessageStatus = "sent"    // confirmed by the server
	StatusFailed  MessageStatus = "failed"  // send rejected, no later confirmation
)

// MessageType constants for message kinds
const (
	MessageTypeText   = "text"
	MessageTypeSystem = "system"
)

// Conversation is the denormalized summary of a 1:1 conversation used for
// list rendering. Exactly one Conversation exists per distinct participant.
type Conversation struct {
	ID              string    `json:"id"`
	ParticipantID   string    `json:"participantId"`
	ParticipantName string    `json:"participantName"`
	LastMessageText string    `json:"lastMessageText"`
	LastMessageAt   time.Time `json:"lastMessageAt"`
	UnreadCount     int       `json:"unreadCount"`
	Presence        Presence  `json:"presence"`
}

// Message is a single timeline entry. ID is server-assigned once confirmed;
// TempID is the client-assigned identity used only before confirmation.
type Message struct {
	ID             string        `json:"id,omitempty"`
	TempID         string        `json:"tempId,omitempty"`
	ConversationID string        `json:"conversationId"`
	SenderID       string        `json:"senderId"`
	SenderName     string        `json:"senderName,omitempty"`
	Text           string        `json:"text"`
	Type           string        `json:"type"`
	CreatedAt      time.Time     `json:"createdAt"`
	Read           bool          `json:"read"`
	Status         MessageStatus `json:"status,omitempty"`
}

// Notification is a pushed or fetched user notification.
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// TypingState is one remote participant currently typing in a conversation.
// The entry is visible only while now < ExpiresAt.
type TypingState struct {
	DisplayName string
	ExpiresAt   time.Time
}
