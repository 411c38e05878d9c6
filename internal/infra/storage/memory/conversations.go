package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	domainchat "socialnet/internal/domain/chat"
)

// ConversationStore keeps conversations in memory. The pair index plays the
// role of a unique constraint so concurrent creates for the same pair race
// safely.
type ConversationStore struct {
	mu     sync.RWMutex
	items  map[domainchat.ConversationID]*domainchat.Conversation
	byPair map[string]domainchat.ConversationID
}

// NewConversationStore builds an empty store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		items:  make(map[domainchat.ConversationID]*domainchat.Conversation),
		byPair: make(map[string]domainchat.ConversationID),
	}
}

func (s *ConversationStore) FindConversation(ctx context.Context, userA, userB string) (*domainchat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPair[domainchat.PairKey(userA, userB)]
	if !ok {
		return nil, domainchat.ErrNotFound
	}
	return s.items[id].Clone(), nil
}

func (s *ConversationStore) GetConversation(ctx context.Context, id domainchat.ConversationID) (*domainchat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.items[domainchat.ConversationID(strings.TrimSpace(string(id)))]
	if !ok {
		return nil, domainchat.ErrNotFound
	}
	return conv.Clone(), nil
}

func (s *ConversationStore) CreateConversation(ctx context.Context, userA, userB string, now time.Time) (*domainchat.Conversation, error) {
	a, b, err := domainchat.ValidateParticipants(userA, userB)
	if err != nil {
		return nil, err
	}
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	key := domainchat.PairKey(a, b)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byPair[key]; exists {
		return nil, domainchat.ErrConflict
	}
	conv := &domainchat.Conversation{
		ID:           domainchat.ConversationID(uuid.NewString()),
		Participants: []string{a, b},
		Messages:     []domainchat.Message{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.items[conv.ID] = conv
	s.byPair[key] = conv.ID
	return conv.Clone(), nil
}

func (s *ConversationStore) AppendMessage(ctx context.Context, id domainchat.ConversationID, senderID, content string, now time.Time) (*domainchat.Message, error) {
	text, err := domainchat.NormalizeContent(content)
	if err != nil {
		return nil, err
	}
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.items[id]
	if !ok {
		return nil, domainchat.ErrNotFound
	}
	// keep the log ordered even if the caller clock goes backwards
	if last := conv.LastMessage(); last != nil && now.Before(last.CreatedAt) {
		now = last.CreatedAt
	}
	msg := domainchat.Message{
		ID:             domainchat.MessageID(uuid.NewString()),
		ConversationID: conv.ID,
		SenderID:       strings.TrimSpace(senderID),
		Content:        text,
		CreatedAt:      now,
	}
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = now
	return &msg, nil
}

func (s *ConversationStore) MarkLastMessageSeen(ctx context.Context, id domainchat.ConversationID) (*domainchat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.items[id]
	if !ok {
		return nil, domainchat.ErrNotFound
	}
	last := conv.LastMessage()
	if last == nil {
		return nil, nil
	}
	last.Seen = true
	msg := *last
	return &msg, nil
}

func (s *ConversationStore) ListConversationsForUser(ctx context.Context, userID string) ([]domainchat.Conversation, error) {
	userID = strings.TrimSpace(userID)
	s.mu.RLock()
	result := make([]domainchat.Conversation, 0)
	for _, conv := range s.items {
		if conv.HasParticipant(userID) {
			result = append(result, *conv.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

var _ domainchat.Store = (*ConversationStore)(nil)
