// Package transport frames coordinator messages over WebSocket
// connections.
package transport

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/evenkeel/SatoshiStacks/internal/coordinator"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Outbound frames buffered per connection before drops
	sendBuffer = 64
)

// Conn adapts one websocket connection to the coordinator's Conn
// interface. Writes flow through a single pump goroutine so frame
// order matches send order; a full buffer drops the frame rather than
// blocking the table.
type Conn struct {
	ws       *websocket.Conn
	send     chan *coordinator.ServerMessage
	closed   chan struct{}
	once     sync.Once
	remoteIP string
	logger   zerolog.Logger
}

func newConn(ws *websocket.Conn, remoteIP string, logger zerolog.Logger) *Conn {
	return &Conn{
		ws:       ws,
		send:     make(chan *coordinator.ServerMessage, sendBuffer),
		closed:   make(chan struct{}),
		remoteIP: remoteIP,
		logger:   logger,
	}
}

func (c *Conn) Send(msg *coordinator.ServerMessage) {
	select {
	case <-c.closed:
	case c.send <- msg:
	default:
		c.logger.Warn().Str("ip", c.remoteIP).Msg("send buffer full, dropping frame")
	}
}

func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}

func (c *Conn) RemoteIP() string {
	return c.remoteIP
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// Handler upgrades HTTP requests and pumps frames between the socket
// and the coordinator.
type Handler struct {
	upgrader websocket.Upgrader
	coord    *coordinator.Coordinator
	logger   zerolog.Logger
}

func NewHandler(coord *coordinator.Coordinator, allowedOrigins []string, logger zerolog.Logger) *Handler {
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		coord:  coord,
		logger: logger,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		for _, candidate := range allowed {
			if candidate == origin || candidate == "*" {
				return true
			}
		}
		return false
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := newConn(ws, remoteIP(r), h.logger)
	go conn.writePump()
	go h.readLoop(conn)
}

func (h *Handler) readLoop(conn *Conn) {
	defer func() {
		h.coord.Disconnect(conn)
		conn.Close()
	}()

	conn.ws.SetReadLimit(16 * 1024)
	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg coordinator.ClientMessage
		if err := conn.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("ip", conn.remoteIP).Msg("websocket closed")
			}
			return
		}
		h.coord.HandleMessage(conn, &msg)
	}
}

func remoteIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
