package ginserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	gin "github.com/gin-gonic/gin"

	chatsvc "socialnet/internal/app/services/chat"
	domainuser "socialnet/internal/domain/user"
	"socialnet/internal/infra/config"
	"socialnet/internal/infra/obs"
	"socialnet/internal/infra/realtime"
	"socialnet/internal/infra/storage/memory"
)

type staticTokens map[string]string

func (s staticTokens) Verify(_ context.Context, token string) (string, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return "", errors.New("unknown token")
}

type testEnv struct {
	router *gin.Engine
	chat   *chatsvc.Service
	hub    *realtime.Hub
	store  *memory.ConversationStore
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewConversationStore()
	users := memory.NewUserDirectory(
		domainuser.Profile{ID: "alice", Name: "Alice"},
		domainuser.Profile{ID: "bob", Name: "Bob"},
		domainuser.Profile{ID: "carol", Name: "Carol"},
	)
	hub := realtime.NewHub(logger)
	t.Cleanup(hub.Close)
	chat := &chatsvc.Service{Store: store, Users: users, Publisher: hub, Logger: logger}
	tokens := staticTokens{"tok-alice": "alice", "tok-bob": "bob", "tok-carol": "carol"}

	router := NewRouter(config.Config{Env: "test"}, obs.Middleware{Logger: logger}, obs.HealthHandlers{}, Handlers{
		Chat:           ChatHandler{Chat: chat, Logger: logger},
		Socket:         SocketHandler{Hub: hub, Chat: chat, Tokens: tokens, Logger: logger},
		AuthMiddleware: AuthMiddleware{Tokens: tokens, Logger: logger}.Handle,
	})
	return testEnv{router: router, chat: chat, hub: hub, store: store}
}

func (e testEnv) do(method, path, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}
