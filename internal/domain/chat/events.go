package chat

import (
	"context"
	"time"
)

type EventType string

const (
	EventMessageReceived EventType = "message-received"
	EventSeenUpdated     EventType = "seen-updated"
	EventJoined          EventType = "joined"
	EventError           EventType = "error"
)

// Sender is the display form of a message author carried in realtime events.
type Sender struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Event is a server-to-client realtime frame.
type Event struct {
	Type           EventType      `json:"type"`
	ConversationID ConversationID `json:"conversation_id,omitempty"`
	MessageID      MessageID      `json:"message_id,omitempty"`
	SenderID       string         `json:"sender_id,omitempty"`
	Sender         *Sender        `json:"sender,omitempty"`
	Content        string         `json:"content,omitempty"`
	Seen           *bool          `json:"seen,omitempty"`
	CreatedAt      *time.Time     `json:"created_at,omitempty"`
	ClientRef      string         `json:"client_ref,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	Message        string         `json:"message,omitempty"`
}

// MessageReceived builds the fan-out event for an appended message.
func MessageReceived(msg Message, sender *Sender, clientRef string) Event {
	seen := msg.Seen
	createdAt := msg.CreatedAt
	return Event{
		Type:           EventMessageReceived,
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
		Sender:         sender,
		Content:        msg.Content,
		Seen:           &seen,
		CreatedAt:      &createdAt,
		ClientRef:      clientRef,
	}
}

// SeenUpdated builds the fan-out event emitted after the latest message is marked seen.
func SeenUpdated(conversationID ConversationID, messageID MessageID) Event {
	return Event{
		Type:           EventSeenUpdated,
		ConversationID: conversationID,
		MessageID:      messageID,
	}
}

// Publisher delivers events to every live connection of a user.
// Implementations return ErrChannelUnavailable when nothing received the event.
type Publisher interface {
	Publish(ctx context.Context, userID string, event Event) error
}
