package scylla

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/gocql/gocql"

	domainchat "socialnet/internal/domain/chat"
)

// lookupConsistency is used for the pair claim and conversation header reads.
// It must overlap the quorum writes made before a pair claim is applied, so a
// caller that lost the claim always finds the winner's row.
const lookupConsistency = gocql.LocalQuorum

// Store wraps Scylla queries for conversations and messages.
//
// Pair uniqueness comes from an LWT insert into conversation_pairs. Messages
// live in their own partition per conversation, clustered by timeuuid, so an
// append is a single insert and never rewrites the log.
type Store struct {
	session *gocql.Session
	logger  *slog.Logger
}

// NewStore builds a Store.
func NewStore(session *gocql.Session, logger *slog.Logger) *Store {
	return &Store{session: session, logger: logger}
}

func (s *Store) FindConversation(ctx context.Context, userA, userB string) (*domainchat.Conversation, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	var id gocql.UUID
	if err := s.session.
		Query(`SELECT conversation_id FROM conversation_pairs WHERE pair_key = ?`, domainchat.PairKey(userA, userB)).
		WithContext(ctx).
		Consistency(lookupConsistency).
		Scan(&id); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, domainchat.ErrNotFound
		}
		return nil, err
	}
	return s.load(ctx, id)
}

func (s *Store) GetConversation(ctx context.Context, id domainchat.ConversationID) (*domainchat.Conversation, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	uuid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, uuid)
}

func (s *Store) CreateConversation(ctx context.Context, userA, userB string, now time.Time) (*domainchat.Conversation, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	a, b, err := domainchat.ValidateParticipants(userA, userB)
	if err != nil {
		return nil, err
	}
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC().Truncate(time.Millisecond)
	id := gocql.TimeUUID()

	// The conversation row goes first so a winning pair claim never points at
	// nothing. A losing row is orphaned and unreachable.
	if err := s.session.
		Query(`INSERT INTO conversations (id, participants, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			id, []string{a, b}, now, now).
		WithContext(ctx).
		Exec(); err != nil {
		return nil, err
	}

	var existing gocql.UUID
	var pairKey string
	applied, err := s.session.
		Query(`INSERT INTO conversation_pairs (pair_key, conversation_id) VALUES (?, ?) IF NOT EXISTS`,
			domainchat.PairKey(a, b), id).
		WithContext(ctx).
		SerialConsistency(gocql.Serial).
		ScanCAS(&pairKey, &existing)
	if err != nil {
		return nil, err
	}
	if !applied {
		s.discard(ctx, id)
		return nil, domainchat.ErrConflict
	}

	batch := s.session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO user_conversations (user_id, conversation_id) VALUES (?, ?)`, a, id)
	batch.Query(`INSERT INTO user_conversations (user_id, conversation_id) VALUES (?, ?)`, b, id)
	if err := s.session.ExecuteBatch(batch); err != nil {
		return nil, err
	}
	return &domainchat.Conversation{
		ID:           domainchat.ConversationID(id.String()),
		Participants: []string{a, b},
		Messages:     []domainchat.Message{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (s *Store) AppendMessage(ctx context.Context, id domainchat.ConversationID, senderID, content string, now time.Time) (*domainchat.Message, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	text, err := domainchat.NormalizeContent(content)
	if err != nil {
		return nil, err
	}
	convID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	if _, err := s.header(ctx, convID); err != nil {
		return nil, err
	}
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC().Truncate(time.Millisecond)
	messageID := gocql.UUIDFromTime(now)
	sender := strings.TrimSpace(senderID)
	if err := s.session.
		Query(`INSERT INTO messages (conversation_id, message_id, sender_id, content, seen, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			convID, messageID, sender, text, false, now).
		WithContext(ctx).
		Exec(); err != nil {
		return nil, err
	}
	// updated_at only drives list ordering; a missed update is tolerated
	if err := s.session.
		Query(`UPDATE conversations SET updated_at = ? WHERE id = ?`, now, convID).
		WithContext(ctx).
		Exec(); err != nil && s.logger != nil {
		s.logger.Warn("failed to update conversation activity", "error", err, "conversation_id", convID)
	}
	return &domainchat.Message{
		ID:             domainchat.MessageID(messageID.String()),
		ConversationID: domainchat.ConversationID(convID.String()),
		SenderID:       sender,
		Content:        text,
		CreatedAt:      now,
	}, nil
}

func (s *Store) MarkLastMessageSeen(ctx context.Context, id domainchat.ConversationID) (*domainchat.Message, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	convID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	if _, err := s.header(ctx, convID); err != nil {
		return nil, err
	}
	var msg domainchat.Message
	var messageID gocql.UUID
	err = s.session.
		Query(`SELECT message_id, sender_id, content, seen, created_at FROM messages WHERE conversation_id = ? ORDER BY message_id DESC LIMIT 1`, convID).
		WithContext(ctx).
		Scan(&messageID, &msg.SenderID, &msg.Content, &msg.Seen, &msg.CreatedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	// setting seen=true is idempotent, so a concurrent append only means an
	// older message got marked, never that seen flips back
	if !msg.Seen {
		if err := s.session.
			Query(`UPDATE messages SET seen = true WHERE conversation_id = ? AND message_id = ?`, convID, messageID).
			WithContext(ctx).
			Exec(); err != nil {
			return nil, err
		}
	}
	msg.ID = domainchat.MessageID(messageID.String())
	msg.ConversationID = domainchat.ConversationID(convID.String())
	msg.Seen = true
	msg.CreatedAt = msg.CreatedAt.UTC()
	return &msg, nil
}

func (s *Store) ListConversationsForUser(ctx context.Context, userID string) ([]domainchat.Conversation, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	iter := s.session.
		Query(`SELECT conversation_id FROM user_conversations WHERE user_id = ?`, strings.TrimSpace(userID)).
		WithContext(ctx).
		Iter()
	var ids []gocql.UUID
	var id gocql.UUID
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	conversations := make([]domainchat.Conversation, 0, len(ids))
	for _, convID := range ids {
		conv, err := s.load(ctx, convID)
		if err != nil {
			if errors.Is(err, domainchat.ErrNotFound) {
				continue
			}
			return nil, err
		}
		conversations = append(conversations, *conv)
	}
	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
	})
	return conversations, nil
}

func (s *Store) load(ctx context.Context, id gocql.UUID) (*domainchat.Conversation, error) {
	conv, err := s.header(ctx, id)
	if err != nil {
		return nil, err
	}
	iter := s.session.
		Query(`SELECT message_id, sender_id, content, seen, created_at FROM messages WHERE conversation_id = ?`, id).
		WithContext(ctx).
		Iter()
	var (
		messageID gocql.UUID
		sender    string
		content   string
		seen      bool
		createdAt time.Time
	)
	for iter.Scan(&messageID, &sender, &content, &seen, &createdAt) {
		conv.Messages = append(conv.Messages, domainchat.Message{
			ID:             domainchat.MessageID(messageID.String()),
			ConversationID: conv.ID,
			SenderID:       sender,
			Content:        content,
			Seen:           seen,
			CreatedAt:      createdAt.UTC(),
		})
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *Store) header(ctx context.Context, id gocql.UUID) (*domainchat.Conversation, error) {
	conv := &domainchat.Conversation{ID: domainchat.ConversationID(id.String()), Messages: []domainchat.Message{}}
	if err := s.session.
		Query(`SELECT participants, created_at, updated_at FROM conversations WHERE id = ? LIMIT 1`, id).
		WithContext(ctx).
		Consistency(lookupConsistency).
		Scan(&conv.Participants, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, domainchat.ErrNotFound
		}
		return nil, err
	}
	conv.CreatedAt = conv.CreatedAt.UTC()
	conv.UpdatedAt = conv.UpdatedAt.UTC()
	return conv, nil
}

func (s *Store) discard(ctx context.Context, id gocql.UUID) {
	if err := s.session.Query(`DELETE FROM conversations WHERE id = ?`, id).WithContext(ctx).Exec(); err != nil && s.logger != nil {
		s.logger.Warn("failed to discard losing conversation row", "error", err, "conversation_id", id)
	}
}

func parseID(id domainchat.ConversationID) (gocql.UUID, error) {
	uuid, err := gocql.ParseUUID(strings.TrimSpace(string(id)))
	if err != nil {
		return gocql.UUID{}, domainchat.ErrNotFound
	}
	return uuid, nil
}

var _ domainchat.Store = (*Store)(nil)
