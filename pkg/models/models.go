// Package models holds the wire/data shapes shared by the cache, push
// and API layers. Field names follow the backend JSON contract.
package models

import "time"

// Media is one attachment of a message, ordered by Position.
type Media struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Type     string `json:"type,omitempty"`
	Position int    `json:"position,omitempty"`
}

// Reaction is a single per-user reaction on a message.
type Reaction struct {
	UserID    string    `json:"userId"`
	Emoji     string    `json:"emoji,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Message identity is the ID; cache merges are idempotent on it.
type Message struct {
	ID         string              `json:"id"`
	FromUserID string              `json:"fromUserId"`
	ToUserID   string              `json:"toUserId"`
	Content    string              `json:"content,omitempty"`
	Media      []Media             `json:"media,omitempty"`
	Reactions  map[string]Reaction `json:"reactions,omitempty"`
	IsRead     bool                `json:"isRead"`
	CreatedAt  time.Time           `json:"createdAt"`
}

// Conversation is the summary entry for one peer. UnreadCount only moves
// through server reconciliation, never message receipt alone.
type Conversation struct {
	PeerUserID    string     `json:"peerUserId"`
	LastMessage   *Message   `json:"lastMessage,omitempty"`
	UnreadCount   int        `json:"unreadCount"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
}

// Post is a reaction-bearing entity. HasReacted and ReactionCount must
// stay mutually consistent under toggling; the count never goes negative.
type Post struct {
	ID            string `json:"id"`
	AuthorID      string `json:"authorId,omitempty"`
	Caption       string `json:"caption,omitempty"`
	HasReacted    bool   `json:"hasReacted"`
	ReactionCount int    `json:"reactionCount"`
}

// Push-channel event types. Only the message events drive cache merges;
// the rest are presence/typing signals passed through to listeners.
const (
	EventNewMessage  = "new_message"
	EventMessageSent = "message_sent"
	EventMessageRead = "message_read"
	EventTyping      = "typing"
	EventUserOnline  = "user_online"
	EventUserOffline = "user_offline"
)

// Event is one framed message from the push channel. UserID is the local
// identity the server addressed the frame to; message events resolve the
// conversation peer relative to it.
type Event struct {
	Type    string   `json:"type"`
	Message *Message `json:"message,omitempty"`
	UserID  string   `json:"userId,omitempty"`
	Data    any      `json:"data,omitempty"`
}

// Peer returns the conversation key for a message event: the participant
// other than the local identity. Falls back to the sender when the local
// identity is unknown.
func (e *Event) Peer() string {
	if e.Message == nil {
		return ""
	}
	if e.UserID != "" {
		if e.Message.FromUserID == e.UserID {
			return e.Message.ToUserID
		}
		return e.Message.FromUserID
	}
	if e.Type == EventMessageSent {
		return e.Message.ToUserID
	}
	return e.Message.FromUserID
}
