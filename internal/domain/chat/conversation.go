package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxContentRunes bounds a single message body.
const MaxContentRunes = 4000

type ConversationID string

type MessageID string

// Message is a single entry in a conversation log. Only Seen may change after append.
type Message struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       string
	Content        string
	Seen           bool
	CreatedAt      time.Time
}

// Conversation is the canonical thread between two participants.
type Conversation struct {
	ID           ConversationID
	Participants []string
	Messages     []Message
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PairKey returns the normalized key for the conversation participants.
func (c *Conversation) PairKey() string {
	if c == nil || len(c.Participants) != 2 {
		return ""
	}
	return PairKey(c.Participants[0], c.Participants[1])
}

// HasParticipant reports whether userID is part of the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	if c == nil {
		return false
	}
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Peer returns the other participant for userID.
func (c *Conversation) Peer(userID string) string {
	if c == nil {
		return ""
	}
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// LastMessage returns the most recent message or nil when the log is empty.
func (c *Conversation) LastMessage() *Message {
	if c == nil || len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// Clone returns a deep copy safe to hand out of a store.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return &out
}

// PairKey builds an order-independent key for two participant ids. The first
// id is length-prefixed so ids containing the separator cannot collide.
func PairKey(userA, userB string) string {
	a := strings.TrimSpace(userA)
	b := strings.TrimSpace(userB)
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%s|%s", len(a), a, b)
}

// ValidateParticipants trims both ids and rejects empty or identical ones.
func ValidateParticipants(userA, userB string) (string, string, error) {
	a := strings.TrimSpace(userA)
	b := strings.TrimSpace(userB)
	if a == "" || b == "" || a == b {
		return "", "", ErrInvalidParticipants
	}
	return a, b, nil
}

// NormalizeContent trims the message body and enforces the content rules.
func NormalizeContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", ErrInvalidContent
	}
	if utf8.RuneCountInString(trimmed) > MaxContentRunes {
		return "", ErrContentTooLong
	}
	return trimmed, nil
}

// Store persists conversations and their message logs.
//
// CreateConversation must fail with ErrConflict when a conversation for the
// same unordered pair already exists, and AppendMessage must be a single
// atomic mutation of the log.
type Store interface {
	FindConversation(ctx context.Context, userA, userB string) (*Conversation, error)
	GetConversation(ctx context.Context, id ConversationID) (*Conversation, error)
	CreateConversation(ctx context.Context, userA, userB string, now time.Time) (*Conversation, error)
	AppendMessage(ctx context.Context, id ConversationID, senderID, content string, now time.Time) (*Message, error)
	MarkLastMessageSeen(ctx context.Context, id ConversationID) (*Message, error)
	ListConversationsForUser(ctx context.Context, userID string) ([]Conversation, error)
}
