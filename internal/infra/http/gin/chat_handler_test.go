package ginserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialnet/internal/app/dto"
)

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v))
	return v
}

func TestChatRoutesRequireAuth(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/api/v1/chats", "/api/v1/chats/with/bob", "/api/v1/chats/x"} {
		rec := env.do(http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	rec := env.do(http.MethodGet, "/api/v1/chats", "bogus", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConversationWithCreatesOnce(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/v1/chats/with/bob", "tok-alice", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[dto.Conversation](t, rec.Body.Bytes())
	assert.NotEmpty(t, first.ID)
	require.Len(t, first.Participants, 2)
	assert.Equal(t, "Alice", first.Participants[0].Name)
	assert.Equal(t, "Bob", first.Participants[1].Name)

	rec = env.do(http.MethodGet, "/api/v1/chats/with/alice", "tok-bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[dto.Conversation](t, rec.Body.Bytes())
	assert.Equal(t, first.ID, second.ID)
}

func TestConversationWithErrors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/v1/chats/with/alice", "tok-alice", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/chats/with/ghost", "tok-alice", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "user not found")
}

func TestSendMessageAndReadBack(t *testing.T) {
	env := newTestEnv(t)
	conv := decode[dto.Conversation](t, env.do(http.MethodGet, "/api/v1/chats/with/bob", "tok-alice", "").Body.Bytes())

	rec := env.do(http.MethodPost, "/api/v1/chats/"+conv.ID+"/messages", "tok-alice", `{"content":"  hello bob "}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	msg := decode[dto.ChatMessage](t, rec.Body.Bytes())
	assert.Equal(t, "hello bob", msg.Content)
	assert.Equal(t, "alice", msg.SenderID)
	assert.Equal(t, "Alice", msg.Sender.Name)
	assert.False(t, msg.Seen)

	rec = env.do(http.MethodGet, "/api/v1/chats/"+conv.ID, "tok-bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[dto.Conversation](t, rec.Body.Bytes())
	require.Len(t, detail.Messages, 1)
	assert.Equal(t, msg.ID, detail.Messages[0].ID)
	require.NotNil(t, detail.LastMessage)
	assert.True(t, detail.HasUnread)

	rec = env.do(http.MethodGet, "/api/v1/chats", "tok-bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[dto.ConversationList](t, rec.Body.Bytes())
	require.Len(t, list.Items, 1)
	assert.Empty(t, list.Items[0].Messages)
	assert.Equal(t, "hello bob", list.Items[0].LastMessage.Content)
}

func TestSendMessageErrors(t *testing.T) {
	env := newTestEnv(t)
	conv := decode[dto.Conversation](t, env.do(http.MethodGet, "/api/v1/chats/with/bob", "tok-alice", "").Body.Bytes())
	path := "/api/v1/chats/" + conv.ID + "/messages"

	rec := env.do(http.MethodPost, path, "tok-alice", `{"content":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, path, "tok-alice", `{"content":"`+strings.Repeat("x", 4001)+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "too long")

	rec = env.do(http.MethodPost, path, "tok-alice", `{"content":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, path, "tok-carol", `{"content":"hi"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/chats/missing/messages", "tok-alice", `{"content":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/chats/"+conv.ID, "tok-carol", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMarkSeenEndpoint(t *testing.T) {
	env := newTestEnv(t)
	conv := decode[dto.Conversation](t, env.do(http.MethodGet, "/api/v1/chats/with/bob", "tok-alice", "").Body.Bytes())
	path := "/api/v1/chats/" + conv.ID + "/seen"

	rec := env.do(http.MethodPost, path, "tok-bob", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	msg := decode[dto.ChatMessage](t, env.do(http.MethodPost, "/api/v1/chats/"+conv.ID+"/messages", "tok-alice", `{"content":"hi"}`).Body.Bytes())

	rec = env.do(http.MethodPost, path, "tok-bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec.Body.Bytes())
	assert.Equal(t, msg.ID, body["message_id"])
	assert.Equal(t, true, body["seen"])

	rec = env.do(http.MethodPost, path, "tok-carol", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/livez", "", "").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/readyz", "", "").Code)
}
