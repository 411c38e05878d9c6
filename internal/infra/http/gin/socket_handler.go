package ginserver

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	chatsvc "socialnet/internal/app/services/chat"
	domainchat "socialnet/internal/domain/chat"
	"socialnet/internal/infra/realtime"
)

const frameTimeout = 10 * time.Second

// SocketHandler upgrades authenticated clients to websockets and runs their
// event loop against the hub and the chat service.
type SocketHandler struct {
	Hub            *realtime.Hub
	Chat           *chatsvc.Service
	Tokens         TokenVerifier
	Options        realtime.Options
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Serve blocks for the lifetime of the connection.
func (h SocketHandler) Serve(c *gin.Context) {
	userID, ok := h.authenticate(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger().Debug("websocket upgrade failed", "error", err, "user_id", userID)
		return
	}

	conn := realtime.NewConnection(userID, ws, h.Options)
	conn.Start()
	log := h.logger().With("conn_id", conn.ID(), "user_id", userID)
	log.Info("socket connected")
	defer func() {
		h.Hub.Leave(conn)
		conn.Close(realtime.CloseNormal, "")
		log.Info("socket disconnected")
	}()

	ctx := context.WithoutCancel(c.Request.Context())
	for {
		select {
		case in, ok := <-conn.Inbound():
			if !ok {
				return
			}
			h.dispatch(ctx, conn, in, log)
		case <-conn.Done():
			return
		}
	}
}

func (h SocketHandler) dispatch(ctx context.Context, conn *realtime.Connection, in realtime.Inbound, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, frameTimeout)
	defer cancel()

	switch in.Type {
	case realtime.FrameJoin:
		target := strings.TrimSpace(in.UserID)
		if target == "" {
			target = conn.UserID()
		}
		if target != conn.UserID() {
			h.reject(conn, "cannot join another user's inbox")
			return
		}
		if err := h.Hub.Join(conn, target); err != nil {
			h.reject(conn, "join failed")
			return
		}
		_ = conn.SendJSON(realtime.JoinedFrame(target))

	case realtime.FrameSendMessage:
		if from := strings.TrimSpace(in.FromID); from != "" && from != conn.UserID() {
			h.reject(conn, "cannot send as another user")
			return
		}
		if strings.TrimSpace(in.ToID) == "" && strings.TrimSpace(in.ConversationID) == "" {
			h.reject(conn, "recipient is required")
			return
		}
		_, err := h.Chat.SendDirect(ctx, chatsvc.DirectSend{
			FromID:         conn.UserID(),
			ToID:           in.ToID,
			ConversationID: domainchat.ConversationID(in.ConversationID),
			Content:        in.Content,
			ClientRef:      in.ClientRef,
		})
		if err != nil {
			h.rejectErr(conn, log, "send-message", err)
		}

	case realtime.FrameMarkSeen:
		if _, err := h.Chat.MarkSeen(ctx, domainchat.ConversationID(strings.TrimSpace(in.ConversationID)), conn.UserID()); err != nil {
			h.rejectErr(conn, log, "mark-seen", err)
		}

	default:
		h.reject(conn, "unknown frame type")
	}
}

func (h SocketHandler) rejectErr(conn *realtime.Connection, log *slog.Logger, action string, err error) {
	code, message := chatErrorStatus(err)
	if code >= http.StatusInternalServerError {
		log.Error("socket frame failed", "action", action, "error", err)
	} else {
		log.Debug("socket frame rejected", "action", action, "error", err)
	}
	h.reject(conn, message)
}

func (h SocketHandler) reject(conn *realtime.Connection, message string) {
	_ = conn.SendJSON(realtime.ErrorFrame(message))
}

func (h SocketHandler) authenticate(c *gin.Context) (string, bool) {
	if p, ok := currentPrincipal(c); ok {
		return p.ID, true
	}
	token := strings.TrimSpace(c.Query("token"))
	if token == "" || h.Tokens == nil {
		return "", false
	}
	userID, err := h.Tokens.Verify(c.Request.Context(), token)
	if err != nil {
		h.logger().Debug("socket token rejected", "error", err)
		return "", false
	}
	return userID, true
}

func (h SocketHandler) checkOrigin(r *http.Request) bool {
	if len(h.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, parsed.Host) {
			return true
		}
	}
	return false
}

func (h SocketHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
