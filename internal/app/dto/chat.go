package dto

import "time"

// UserSummary is the display identity of a participant.
type UserSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Conversation describes a direct-message thread.
type Conversation struct {
	ID           string        `json:"id"`
	Participants []UserSummary `json:"participants"`
	Messages     []ChatMessage `json:"messages,omitempty"`
	LastMessage  *ChatMessage  `json:"last_message,omitempty"`
	HasUnread    bool          `json:"has_unread"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// ConversationList is the collection returned for the current user.
type ConversationList struct {
	Items []Conversation `json:"items"`
}

// ChatMessage contains a single message payload.
type ChatMessage struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	Sender         UserSummary `json:"sender"`
	Content        string      `json:"content"`
	Seen           bool        `json:"seen"`
	CreatedAt      time.Time   `json:"created_at"`
}

// SendMessageRequest is the body of POST /chats/:id/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
}
