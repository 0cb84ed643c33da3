package websocket

import (
	"context"
	"sync"
	"time"

	"livedetect/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is how long to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound messages; webcam photos arrive as base64 data URLs.
	maxMessageSize = 16 << 20

	// sendQueueSize is the per-viewer backlog before the viewer is dropped.
	sendQueueSize = 64
)

// Client is one connected viewer page.
type Client struct {
	hub  *HubService
	conn *websocket.Conn
	send chan []byte
}

// Send queues a message for this client only. It reports false when the queue is full.
func (c *Client) Send(message []byte) bool {
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// Serve runs the write pump and blocks reading messages until the connection closes.
// Every text message is passed to onMessage.
func (c *Client) Serve(onMessage func([]byte)) error {
	go c.writePump()
	defer c.hub.Unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		// Any message proves the peer is alive.
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if onMessage != nil {
			onMessage(message)
		}
	}
}

// writePump is the only writer on the connection.
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HubService tracks connected viewers and fans messages out to them.
type HubService struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger

	onConnect func(*Client)
	firstView chan struct{}
	firstOnce sync.Once
}

func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, sendQueueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
		firstView:  make(chan struct{}),
	}
}

// OnConnect sets a callback run for every new viewer before any broadcast reaches it.
// Must be called before Run.
func (h *HubService) OnConnect(fn func(*Client)) {
	h.onConnect = fn
}

// Run processes registrations and broadcasts until ctx is cancelled.
func (h *HubService) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.mutex.Lock()
		for client := range h.clients {
			delete(h.clients, client)
			close(client.send)
		}
		h.mutex.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			h.drain()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			if h.onConnect != nil {
				h.onConnect(client)
			}
			h.firstOnce.Do(func() { close(h.firstView) })
			h.logger.Info("Viewer connected. Total: %d", total)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer disconnected. Total: %d", total)

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// deliver queues message for every client, dropping clients whose queue is full.
func (h *HubService) deliver(message []byte) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			h.logger.Warning("Viewer too slow, dropping connection")
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// drain delivers broadcasts queued before shutdown so viewers see the final state.
func (h *HubService) drain() {
	for {
		select {
		case message := <-h.broadcast:
			h.deliver(message)
		default:
			return
		}
	}
}

// NewClient registers a websocket connection as a viewer.
func (h *HubService) NewClient(conn *websocket.Conn) *Client {
	client := &Client{hub: h, conn: conn, send: make(chan []byte, sendQueueSize)}
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
	return client
}

// Unregister removes a viewer. Safe to call after the hub stopped.
func (h *HubService) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast sends a message to every viewer. It returns immediately once the hub stopped.
func (h *HubService) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

// WaitForViewer blocks until the first viewer connects.
func (h *HubService) WaitForViewer(ctx context.Context) error {
	select {
	case <-h.firstView:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
