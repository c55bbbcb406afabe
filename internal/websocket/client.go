package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	sendBufferSize = 256
)

// NewUpgrader builds the websocket upgrader. Requests without an Origin
// header (non-browser clients) are accepted, and so is any origin when
// allowedOrigins contains "*".
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed[origin] = struct{}{}
		}
	}

	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if _, ok := allowed["*"]; ok {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}

// Client is the gorilla/websocket transport for one connection. It
// implements Conn.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// mu guards send against a concurrent close
	mu     sync.Mutex
	closed atomic.Bool
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()

	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		userID: userID,
		logger: hub.logger.With("clientID", id, "userID", userID),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) UserID() string {
	return c.userID
}

// Send queues the message for the write pump without blocking. A client that
// cannot keep up is closed.
func (c *Client) Send(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return ErrClientDisconnected
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.logger.Warn("Send buffer full, closing client")
		c.closeLocked()
		return ErrSendBufferFull
	}
}

// Close stops the write pump, which sends a close frame and closes the
// underlying connection. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

func (c *Client) closeLocked() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.send)
		c.cancel()
		c.logger.Debug("Client marked as closed")
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Disconnect(c)
		c.Close()
		if err := c.conn.Close(); err != nil {
			c.logger.Debug("Error closing connection", "error", err)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			} else {
				c.logger.Debug("WebSocket connection closed", "error", err)
			}
			return
		}

		msg, err := ParseInbound(raw)
		if err != nil {
			c.hub.replyError(c, err)
			continue
		}
		c.hub.HandleMessage(c.ctx, c, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			// one JSON document per frame
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("Error writing message", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("Error sending ping", "error", err)
				return
			}
		}
	}
}

// ServeWS upgrades the request and attaches the connection to the hub. An
// empty userID means authentication failed upstream: the socket is closed
// with a policy-violation frame and never registered.
func ServeWS(hub *Hub, upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("Failed to upgrade WebSocket connection", "userID", userID, "error", err)
		return
	}

	if userID == "" {
		hub.logger.Warn("Closing unauthenticated WebSocket connection", "remoteAddr", r.RemoteAddr, "error", ErrUnauthenticated)
		deadline := time.Now().Add(writeWait)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication required"), deadline)
		conn.Close()
		return
	}

	client := NewClient(hub, conn, userID)

	// Connect delivers the drained offline queue, so the writer goes first
	go client.writePump()
	if err := hub.Connect(client); err != nil {
		client.Close()
		return
	}
	go client.readPump()
}
