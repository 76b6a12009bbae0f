package gateway

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/triage/internal/logging"
	"github.com/soyeahso/triage/internal/metrics"
)

const (
	wsWriteTimeout = 10 * time.Second
	// sendQueueSize is how many frames may wait for a client's writer
	// before the client is dropped as too slow.
	sendQueueSize = 64
)

// Client is a WebSocket connection that completed the connect handshake.
type Client struct {
	ConnID      string
	Info        ClientInfo
	Socket      *websocket.Conn
	RemoteAddr  string
	ConnectedAt time.Time

	mu     sync.Mutex
	closed bool
	send   chan []byte
	done   chan struct{}
	log    *logging.Logger
}

// NewClient wraps conn and starts its writer.
func NewClient(conn *websocket.Conn, info ClientInfo, log *logging.Logger) *Client {
	c := &Client{
		ConnID:      uuid.NewString(),
		Info:        info,
		Socket:      conn,
		RemoteAddr:  conn.RemoteAddr().String(),
		ConnectedAt: time.Now(),
		send:        make(chan []byte, sendQueueSize),
		done:        make(chan struct{}),
		log:         log,
	}
	go c.writePump()
	return c
}

// Send queues one frame for the writer. It never blocks: a client whose
// queue is full is closed and ErrClientSlow is returned.
func (c *Client) Send(frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed || c.send == nil {
		c.mu.Unlock()
		return ErrClientClosed
	}
	select {
	case c.send <- data:
		c.mu.Unlock()
		return nil
	default:
	}
	c.mu.Unlock()

	c.log.Warn().Str("connId", c.ConnID).Int("queued", sendQueueSize).Msg("send queue full, dropping client")
	c.Close()
	return ErrClientSlow
}

// writePump owns all data writes to the socket.
func (c *Client) writePump() {
	for {
		select {
		case data := <-c.send:
			c.Socket.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.Socket.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug().Err(err).Str("connId", c.ConnID).Msg("write failed")
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// SendEvent sends a named event with payload.
func (c *Client) SendEvent(event string, payload any, seq int64) error {
	f, err := NewEvent(event, payload, seq)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// Respond sends a success response for the given request ID.
func (c *Client) Respond(reqID string, payload any) error {
	f, err := NewResponse(reqID, payload)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// RespondError sends an error response for the given request ID.
func (c *Client) RespondError(reqID string, errShape ErrorShape) error {
	return c.Send(NewErrorResponse(reqID, errShape))
}

// ReadFrame reads the next frame from the WebSocket.
func (c *Client) ReadFrame() (Frame, error) {
	_, msg, err := c.Socket.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Close closes the connection. Closing twice is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.done != nil {
		close(c.done)
	}
	if c.Socket == nil {
		return nil
	}
	return c.Socket.Close()
}

// sees reports whether events for tenantID are delivered to c. Connections
// bound to a company only see that company's events; unbound connections
// see everything.
func (c *Client) sees(tenantID string) bool {
	if c.Info.CompanyID == "" {
		return true
	}
	return tenantID != "" && strings.EqualFold(c.Info.CompanyID, tenantID)
}

// ClientRegistry tracks connected clients by connection id.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     *logging.Logger
}

// NewClientRegistry creates an empty client registry.
func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]*Client),
		log:     log,
	}
}

// Add registers a connected client.
func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.clients[c.ConnID]; !exists {
		metrics.WSConnected(1)
	}
	r.clients[c.ConnID] = c
	r.log.Info().Str("connId", c.ConnID).Str("client", c.Info.ID).Str("company", c.Info.CompanyID).Msg("client connected")
}

// Remove unregisters a client by connection ID.
func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.clients[connID]; !exists {
		return
	}
	delete(r.clients, connID)
	metrics.WSConnected(-1)
	r.log.Info().Str("connId", connID).Msg("client disconnected")
}

// Count returns the number of connected clients.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// recipients returns the clients that see events for tenantID.
func (r *ClientRegistry) recipients(tenantID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		if c.sees(tenantID) {
			out = append(out, c)
		}
	}
	return out
}

// Broadcast sends an event to every client that sees tenantID. Writes happen
// outside the registry lock.
func (r *ClientRegistry) Broadcast(event string, payload any, seq int64, tenantID string) int {
	sent := 0
	for _, c := range r.recipients(tenantID) {
		if err := c.SendEvent(event, payload, seq); err != nil {
			r.log.Warn().Err(err).Str("connId", c.ConnID).Str("event", event).Msg("broadcast send failed")
			continue
		}
		sent++
	}
	return sent
}

// CloseAll closes and unregisters every client.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clients {
		c.Close()
		delete(r.clients, id)
		metrics.WSConnected(-1)
	}
}
