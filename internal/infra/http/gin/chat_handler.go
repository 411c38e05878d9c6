package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"socialnet/internal/app/dto"
	chatsvc "socialnet/internal/app/services/chat"
	domainchat "socialnet/internal/domain/chat"
	domainuser "socialnet/internal/domain/user"
)

// ChatHTTP exposes chat endpoints.
type ChatHTTP interface {
	ListMyConversations(c *gin.Context)
	ConversationWith(c *gin.Context)
	GetConversation(c *gin.Context)
	SendMessage(c *gin.Context)
	MarkSeen(c *gin.Context)
}

// ChatHandler bridges HTTP with the chat service.
type ChatHandler struct {
	Chat   *chatsvc.Service
	Logger *slog.Logger
}

// ListMyConversations returns the current user's conversations, most recent first.
func (h ChatHandler) ListMyConversations(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	views, err := h.Chat.ListConversations(c.Request.Context(), p.ID)
	if err != nil {
		h.respondChatError(c, err, "list conversations", "user_id", p.ID)
		return
	}
	collection := dto.ConversationList{Items: make([]dto.Conversation, 0, len(views))}
	for _, view := range views {
		collection.Items = append(collection.Items, conversationDTO(view, false))
	}
	c.JSON(http.StatusOK, collection)
}

// ConversationWith gets or creates the conversation between the caller and :userId.
func (h ChatHandler) ConversationWith(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	peerID := strings.TrimSpace(c.Param("userId"))
	if peerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user id is required"})
		return
	}
	conv, err := h.Chat.GetOrCreateConversation(c.Request.Context(), p.ID, peerID)
	if err != nil {
		h.respondChatError(c, err, "get or create conversation", "user_id", p.ID, "peer_id", peerID)
		return
	}
	c.JSON(http.StatusOK, conversationDTO(h.Chat.Decorate(c.Request.Context(), conv, p.ID), true))
}

// GetConversation returns a conversation with its full message log.
func (h ChatHandler) GetConversation(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return
	}
	view, err := h.Chat.GetConversation(c.Request.Context(), domainchat.ConversationID(conversationID), p.ID)
	if err != nil {
		h.respondChatError(c, err, "load conversation", "conversation_id", conversationID, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, conversationDTO(*view, true))
}

// SendMessage appends a message and returns the stored record.
func (h ChatHandler) SendMessage(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return
	}
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	view, err := h.Chat.SendMessage(c.Request.Context(), domainchat.ConversationID(conversationID), p.ID, req.Content)
	if err != nil {
		h.respondChatError(c, err, "send message", "conversation_id", conversationID, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusCreated, messageDTO(view.Message, view.Sender))
}

// MarkSeen marks the latest message of a conversation as seen.
func (h ChatHandler) MarkSeen(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return
	}
	msg, err := h.Chat.MarkSeen(c.Request.Context(), domainchat.ConversationID(conversationID), p.ID)
	if err != nil {
		h.respondChatError(c, err, "mark seen", "conversation_id", conversationID, "user_id", p.ID)
		return
	}
	if msg == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": msg.ConversationID, "message_id": msg.ID, "seen": msg.Seen})
}

func (h ChatHandler) respondChatError(c *gin.Context, err error, action string, attrs ...any) {
	code, message := chatErrorStatus(err)
	if h.Logger != nil {
		level := slog.LevelInfo
		if code >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		h.Logger.Log(c.Request.Context(), level, "chat request failed", append([]any{"action", action, "error", err}, attrs...)...)
	}
	c.JSON(code, gin.H{"error": message})
}

func conversationDTO(view chatsvc.ConversationView, withMessages bool) dto.Conversation {
	conv := view.Conversation
	profiles := make(map[string]domainuser.Profile, len(view.Participants))
	out := dto.Conversation{
		ID:           string(conv.ID),
		Participants: make([]dto.UserSummary, 0, len(view.Participants)),
		HasUnread:    view.Unread,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
	}
	for _, p := range view.Participants {
		profiles[string(p.ID)] = p
		out.Participants = append(out.Participants, userSummary(p))
	}
	if withMessages {
		out.Messages = make([]dto.ChatMessage, 0, len(conv.Messages))
		for _, msg := range conv.Messages {
			out.Messages = append(out.Messages, messageDTO(msg, profileFor(profiles, msg.SenderID)))
		}
	}
	if last := conv.LastMessage(); last != nil {
		m := messageDTO(*last, profileFor(profiles, last.SenderID))
		out.LastMessage = &m
	}
	return out
}

func messageDTO(msg domainchat.Message, sender domainuser.Profile) dto.ChatMessage {
	return dto.ChatMessage{
		ID:             string(msg.ID),
		ConversationID: string(msg.ConversationID),
		SenderID:       msg.SenderID,
		Sender:         userSummary(sender),
		Content:        msg.Content,
		Seen:           msg.Seen,
		CreatedAt:      msg.CreatedAt,
	}
}

func userSummary(p domainuser.Profile) dto.UserSummary {
	return dto.UserSummary{ID: string(p.ID), Name: p.Name, AvatarURL: p.AvatarRef}
}

func profileFor(profiles map[string]domainuser.Profile, id string) domainuser.Profile {
	if p, ok := profiles[id]; ok {
		return p
	}
	return domainuser.Profile{ID: domainuser.ID(id)}
}

var _ ChatHTTP = (*ChatHandler)(nil)
