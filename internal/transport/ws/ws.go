// FilePath: internal/transport/ws/ws.go
package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/itsatony/emhub/internal/registry"
	nuts "github.com/vaudience/go-nuts"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	defaultSendBuffer = 256
)

var (
	ErrConnClosed     = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// MessageHandler receives the lifecycle and messages of every connection.
type MessageHandler interface {
	Connect(conn registry.Conn)
	Disconnect(conn registry.Conn)
	Handle(ctx context.Context, conn registry.Conn, raw []byte)
}

// Client is one websocket connection. It implements registry.Conn.
type Client struct {
	id     string
	remote string
	conn   *websocket.Conn
	send   chan []byte

	closeOnce sync.Once
	closed    atomic.Bool
}

func (c *Client) ID() string         { return c.id }
func (c *Client) RemoteAddr() string { return c.remote }
func (c *Client) IsOpen() bool       { return !c.closed.Load() }

// Send queues msg for the write pump without blocking.
func (c *Client) Send(msg []byte) (err error) {
	// Close may run between the closed check and the channel send.
	defer func() {
		if r := recover(); r != nil {
			err = ErrConnClosed
		}
	}()

	if c.closed.Load() {
		return ErrConnClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// SendContext queues msg, waiting for room in the queue until ctx ends.
func (c *Client) SendContext(ctx context.Context, msg []byte) (err error) {
	// Close may run while the send is parked on a full queue.
	defer func() {
		if r := recover(); r != nil {
			err = ErrConnClosed
		}
	}()

	if c.closed.Load() {
		return ErrConnClosed
	}
	select {
	case c.send <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the send queue exactly once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.send)
	})
}

// Server upgrades HTTP requests and runs the read and write pumps.
type Server struct {
	handler    MessageHandler
	upgrader   websocket.Upgrader
	sendBuffer int

	mu      sync.Mutex
	clients map[*Client]struct{}
}

// NewServer creates a websocket endpoint. An allowedOrigins entry of "*"
// accepts every origin.
func NewServer(handler MessageHandler, allowedOrigins []string, sendBuffer int) *Server {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	s := &Server{
		handler:    handler,
		sendBuffer: sendBuffer,
		clients:    make(map[*Client]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return s
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// ServeHTTP handles the upgrade and blocks until the connection ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		nuts.L.Warnf("[WS] Upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

	client := &Client{
		id:     nuts.NID("conn", 12),
		remote: r.RemoteAddr,
		conn:   conn,
		send:   make(chan []byte, s.sendBuffer),
	}
	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.mu.Unlock()

	nuts.L.Infof("[WS] Connection %s opened from %s", client.id, client.remote)
	s.handler.Connect(client)

	go client.writePump()
	s.readPump(r.Context(), client)
}

// readPump handles messages in arrival order until the peer goes away.
func (s *Server) readPump(ctx context.Context, c *Client) {
	defer func() {
		c.Close()
		_ = c.conn.Close()
		s.handler.Disconnect(c)
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		nuts.L.Infof("[WS] Connection %s closed", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				nuts.L.Warnf("[WS] Read error on %s: %v", c.id, err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.handle(ctx, c, data)
	}
}

// handle isolates a panicking handler to the message that caused it.
func (s *Server) handle(ctx context.Context, c *Client, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			nuts.L.Errorf("[WS] Handler panic on %s: %v", c.id, r)
		}
	}()
	s.handler.Handle(ctx, c, data)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// Shutdown closes every open connection.
func (s *Server) Shutdown() {
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	nuts.L.Infof("[WS] Closed %d connections", len(clients))
}

// Count returns the number of open connections.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
