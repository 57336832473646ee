package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mihai-mura/wolhub/internal/relay"
)

// wsSendBufferSize is the per-client outbound message buffer size.
const wsSendBufferSize = 256

// Transport errors reported to the relay core when a delivery cannot be
// accepted. The core logs and skips the connection; the read pump tears
// it down.
var (
	errClientClosed   = errors.New("api: websocket client closed")
	errSendBufferFull = errors.New("api: websocket send buffer full")
)

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// wsClient is one WebSocket connection feeding the relay core. It
// satisfies relay.Sender: Send queues a frame without blocking so the
// core's serialized handlers never wait on a slow peer.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
	}
}

// Send queues a frame for delivery. It fails fast when the client is
// gone or its buffer is full; dropping a frame to a slow client is
// preferable to stalling every other connection.
func (c *wsClient) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

// close marks the client dead and releases the write pump. Safe to call
// more than once.
func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// handleWebSocket upgrades the HTTP connection and plugs it into the
// relay core. The connection stays unclassified until it registers as a
// device; dashboards never register and receive broadcasts by default.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(conn)
	go s.writePump(client)

	// HandleConnect queues the initial state sync onto the send buffer;
	// the write pump is already draining it.
	id := s.core.HandleConnect(client)
	s.logger.Debug("websocket client connected",
		"connection_id", id,
		"remote", r.RemoteAddr,
	)

	s.readPump(id, client)
}

// readPump reads messages from the connection and forwards them to the
// relay core. It owns teardown: on any read error the connection is
// unregistered and the write pump released.
func (s *Server) readPump(id relay.ConnectionID, c *wsClient) {
	defer func() {
		s.core.HandleDisconnect(id)
		c.close()
		c.conn.Close()
		s.logger.Debug("websocket client disconnected", "connection_id", id)
	}()

	c.conn.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	pingInterval := time.Duration(s.wsCfg.PingInterval) * time.Second
	pongWait := time.Duration(s.wsCfg.PongTimeout) * time.Second
	//nolint:errcheck // best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "connection_id", id, "error", err)
			}
			return
		}
		// Any client message resets the read deadline, so devices that
		// stream telemetry without pong support stay connected.
		//nolint:errcheck // best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		s.core.HandleMessage(id, message)
	}
}

// writePump drains the client's send buffer onto the connection and
// keeps the peer alive with protocol-level pings.
func (s *Server) writePump(c *wsClient) {
	pingInterval := time.Duration(s.wsCfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(s.wsCfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
