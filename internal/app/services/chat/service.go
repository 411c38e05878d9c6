package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	domainchat "socialnet/internal/domain/chat"
	domainuser "socialnet/internal/domain/user"
)

const defaultResolveAttempts = 3

// Service implements conversation resolution, message appends and seen tracking.
type Service struct {
	Store     domainchat.Store
	Users     domainuser.Directory
	Publisher domainchat.Publisher
	Now       func() time.Time
	Logger    *slog.Logger
	// ResolveAttempts bounds how often a lost create race is re-fetched.
	ResolveAttempts int
}

// MessageView is a stored message with its sender resolved for display.
type MessageView struct {
	Message domainchat.Message
	Sender  domainuser.Profile
}

// ConversationView is a conversation decorated with participant profiles.
type ConversationView struct {
	Conversation *domainchat.Conversation
	Participants []domainuser.Profile
	Unread       bool
}

// DirectSend carries a realtime send-message request.
type DirectSend struct {
	FromID         string
	ToID           string
	ConversationID domainchat.ConversationID
	Content        string
	ClientRef      string
}

// GetOrCreateConversation returns the single conversation between userA and userB,
// creating it when absent. A create that loses a race re-fetches the winner.
func (s *Service) GetOrCreateConversation(ctx context.Context, userA, userB string) (*domainchat.Conversation, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	a, b, err := domainchat.ValidateParticipants(userA, userB)
	if err != nil {
		return nil, err
	}
	if s.Users != nil {
		if _, err := s.Users.ResolveDisplay(ctx, domainuser.ID(b)); err != nil {
			if errors.Is(err, domainuser.ErrNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("resolve peer: %w", err)
		}
	}

	attempts := s.ResolveAttempts
	if attempts <= 0 {
		attempts = defaultResolveAttempts
	}
	for attempt := 0; attempt < attempts; attempt++ {
		conv, err := s.Store.FindConversation(ctx, a, b)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, domainchat.ErrNotFound) {
			return nil, fmt.Errorf("find conversation: %w", err)
		}

		conv, err = s.Store.CreateConversation(ctx, a, b, s.now())
		if err == nil {
			s.logger().Info("conversation created", "conversation_id", conv.ID, "participants", conv.Participants)
			return conv, nil
		}
		if !errors.Is(err, domainchat.ErrConflict) {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
		s.logger().Debug("conversation create raced, refetching", "pair", domainchat.PairKey(a, b), "attempt", attempt+1)
		if err := sleepCtx(ctx, time.Duration(attempt)*10*time.Millisecond); err != nil {
			return nil, err
		}
	}
	return nil, domainchat.ErrConflict
}

// GetConversation returns a decorated conversation visible to viewerID.
func (s *Service) GetConversation(ctx context.Context, id domainchat.ConversationID, viewerID string) (*ConversationView, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	conv, err := s.Store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(viewerID) {
		return nil, domainchat.ErrForbidden
	}
	view := s.decorate(ctx, conv, viewerID, newProfileCache())
	return &view, nil
}

// Decorate attaches participant profiles to an already loaded conversation.
func (s *Service) Decorate(ctx context.Context, conv *domainchat.Conversation, viewerID string) ConversationView {
	return s.decorate(ctx, conv, viewerID, newProfileCache())
}

// ListConversations returns the user's conversations, most recently updated first.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]ConversationView, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domainchat.ErrInvalidParticipants
	}
	conversations, err := s.Store.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	cache := newProfileCache()
	views := make([]ConversationView, 0, len(conversations))
	for i := range conversations {
		views = append(views, s.decorate(ctx, &conversations[i], userID, cache))
	}
	return views, nil
}

// SendMessage appends a message on the durable path and fans it out to both participants.
func (s *Service) SendMessage(ctx context.Context, conversationID domainchat.ConversationID, senderID, content string) (*MessageView, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	conv, err := s.Store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return s.appendAndPublish(ctx, conv, senderID, content, "")
}

// SendDirect handles a realtime send. It uses the named conversation when the sender
// belongs to it and otherwise resolves (or eagerly creates) the pair's conversation.
func (s *Service) SendDirect(ctx context.Context, req DirectSend) (*MessageView, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	if _, err := domainchat.NormalizeContent(req.Content); err != nil {
		return nil, err
	}
	var conv *domainchat.Conversation
	if id := strings.TrimSpace(string(req.ConversationID)); id != "" {
		found, err := s.Store.GetConversation(ctx, domainchat.ConversationID(id))
		switch {
		case err == nil:
			if !found.HasParticipant(req.FromID) {
				return nil, domainchat.ErrForbidden
			}
			conv = found
		case errors.Is(err, domainchat.ErrNotFound):
		default:
			return nil, err
		}
	}
	if conv == nil {
		resolved, err := s.GetOrCreateConversation(ctx, req.FromID, req.ToID)
		if err != nil {
			return nil, err
		}
		conv = resolved
	}
	return s.appendAndPublish(ctx, conv, req.FromID, req.Content, req.ClientRef)
}

// MarkSeen marks the latest message as seen and notifies both participants.
// An empty conversation is left untouched and nothing is published.
func (s *Service) MarkSeen(ctx context.Context, conversationID domainchat.ConversationID, observerID string) (*domainchat.Message, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	conv, err := s.Store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(observerID) {
		return nil, domainchat.ErrForbidden
	}
	msg, err := s.Store.MarkLastMessageSeen(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("mark seen: %w", err)
	}
	if msg == nil {
		return nil, nil
	}
	s.publishAll(ctx, conv.Participants, domainchat.SeenUpdated(conv.ID, msg.ID))
	return msg, nil
}

func (s *Service) appendAndPublish(ctx context.Context, conv *domainchat.Conversation, senderID, content, clientRef string) (*MessageView, error) {
	senderID = strings.TrimSpace(senderID)
	if !conv.HasParticipant(senderID) {
		return nil, domainchat.ErrForbidden
	}
	msg, err := s.Store.AppendMessage(ctx, conv.ID, senderID, content, s.now())
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	sender := s.profile(ctx, senderID, newProfileCache())
	view := &MessageView{Message: *msg, Sender: sender}

	s.publishAll(ctx, conv.Participants, domainchat.MessageReceived(*msg, &domainchat.Sender{
		ID:        string(sender.ID),
		Name:      sender.Name,
		AvatarURL: sender.AvatarRef,
	}, clientRef))
	return view, nil
}

func (s *Service) publishAll(ctx context.Context, participants []string, event domainchat.Event) {
	if s.Publisher == nil {
		return
	}
	for _, userID := range participants {
		err := s.Publisher.Publish(ctx, userID, event)
		switch {
		case err == nil:
		case errors.Is(err, domainchat.ErrChannelUnavailable):
			s.logger().Debug("realtime recipient offline", "user_id", userID, "event", event.Type, "conversation_id", event.ConversationID)
		default:
			s.logger().Warn("realtime publish failed", "user_id", userID, "event", event.Type, "conversation_id", event.ConversationID, "error", err)
		}
	}
}

func (s *Service) decorate(ctx context.Context, conv *domainchat.Conversation, viewerID string, cache profileCache) ConversationView {
	view := ConversationView{
		Conversation: conv,
		Participants: make([]domainuser.Profile, 0, len(conv.Participants)),
	}
	for _, id := range conv.Participants {
		view.Participants = append(view.Participants, s.profile(ctx, id, cache))
	}
	if last := conv.LastMessage(); last != nil {
		view.Unread = !last.Seen && last.SenderID != viewerID
	}
	return view
}

func (s *Service) profile(ctx context.Context, id string, cache profileCache) domainuser.Profile {
	if p, ok := cache[id]; ok {
		return p
	}
	p := domainuser.Profile{ID: domainuser.ID(id)}
	if s.Users != nil {
		resolved, err := s.Users.ResolveDisplay(ctx, domainuser.ID(id))
		if err != nil {
			s.logger().Debug("display lookup failed", "user_id", id, "error", err)
		} else {
			p = resolved
		}
	}
	cache[id] = p
	return p
}

func (s *Service) ensureDependencies() error {
	if s == nil || s.Store == nil {
		return errors.New("chat: store is not configured")
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

type profileCache map[string]domainuser.Profile

func newProfileCache() profileCache {
	return make(profileCache)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
