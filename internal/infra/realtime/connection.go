package realtime

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	CloseNormal        = websocket.CloseNormalClosure
	CloseGoingAway     = websocket.CloseGoingAway
	ClosePolicy        = websocket.ClosePolicyViolation
	writeWait          = 10 * time.Second
	defaultPingPeriod  = 30 * time.Second
	defaultSendBuffer  = 128
	maxInboundBytes    = 16 << 10
	inboundQueueLength = 16
)

var (
	ErrConnectionClosed = errors.New("realtime: connection closed")
	ErrBufferExceeded   = errors.New("realtime: connection buffer exceeded")
)

// Inbound frame types sent by clients.
const (
	FrameJoin        = "join"
	FrameSendMessage = "send-message"
	FrameMarkSeen    = "mark-seen"
)

// Inbound is a decoded client-to-server frame.
type Inbound struct {
	Type           string `json:"type"`
	UserID         string `json:"user_id,omitempty"`
	FromID         string `json:"from_id,omitempty"`
	ToID           string `json:"to_id,omitempty"`
	Content        string `json:"content,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	ClientRef      string `json:"client_ref,omitempty"`
}

// Options tune per-connection behaviour.
type Options struct {
	SendBuffer   int
	PingInterval time.Duration
}

// Connection wraps a websocket. Outbound frames are queued on a buffered
// channel drained by a single writer, so frames leave in the order they were
// queued. Inbound frames are decoded by a reader and handed over on a channel.
type Connection struct {
	id     string
	userID string

	ws      *websocket.Conn
	send    chan []byte
	inbound chan Inbound
	ping    time.Duration

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	done   chan struct{}
}

// NewConnection builds a connection for an authenticated user.
func NewConnection(userID string, ws *websocket.Conn, opts Options) *Connection {
	buffer := opts.SendBuffer
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	ping := opts.PingInterval
	if ping <= 0 {
		ping = defaultPingPeriod
	}
	return &Connection{
		id:      uuid.NewString(),
		userID:  userID,
		ws:      ws,
		send:    make(chan []byte, buffer),
		inbound: make(chan Inbound, inboundQueueLength),
		ping:    ping,
		done:    make(chan struct{}),
	}
}

func (c *Connection) ID() string { return c.id }

// UserID is the identity the connection authenticated as.
func (c *Connection) UserID() string { return c.userID }

// Inbound yields decoded client frames; it is closed when the reader stops.
func (c *Connection) Inbound() <-chan Inbound { return c.inbound }

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Start launches the reader and writer loops. Call it exactly once.
func (c *Connection) Start() {
	go c.writeLoop()
	go c.readLoop()
}

// Send queues payload. When the client is too slow and the buffer is full the
// connection is closed to keep memory bounded.
func (c *Connection) Send(payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		go c.Close(ClosePolicy, "send buffer full")
		return ErrBufferExceeded
	}
}

// SendJSON encodes v and queues it.
func (c *Connection) SendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(payload)
}

// Close terminates the connection and stops both loops.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *Connection) readLoop() {
	defer func() {
		close(c.inbound)
		c.Close(CloseNormal, "")
	}()
	pongWait := c.ping * 2
	c.ws.SetReadLimit(maxInboundBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			_ = c.SendJSON(ErrorFrame("malformed frame"))
			continue
		}
		in.Type = normalizeFrameType(in.Type)
		select {
		case c.inbound <- in:
		case <-c.done:
			return
		}
	}
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(c.ping)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close(CloseGoingAway, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(CloseGoingAway, "ping failed")
				return
			}
		}
	}
}

func (c *Connection) write(kind int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(kind, payload)
}

// normalizeFrameType also accepts the camelCase names used by older clients.
func normalizeFrameType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "join":
		return FrameJoin
	case "send-message", "sendmessage", "send_message", "message":
		return FrameSendMessage
	case "mark-seen", "messageseen", "mark_seen", "seen":
		return FrameMarkSeen
	default:
		return strings.TrimSpace(raw)
	}
}

var _ Subscriber = (*Connection)(nil)
