package websocket

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"dentalink/pkg/logger"
)

// Client is one connected tab. Several tabs may act under the same
// identity; each keeps its own page-visibility state.
type Client struct {
	UID      string
	Identity string
	Conn     *websocket.Conn
	Send     chan []byte

	mu         sync.Mutex
	foreground bool
}

func (c *Client) setForeground(foreground bool) {
	c.mu.Lock()
	c.foreground = foreground
	c.mu.Unlock()
}

func (c *Client) isForeground() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.foreground
}

// Manager tracks the connected tabs per acting identity and fans outbound
// frames to them. It is also the visibility source for notification
// suppression: an identity is foregrounded while any of its tabs is.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}

	Register   chan *Client
	Unregister chan *Client

	hub *SessionHub
}

func NewManager(hub *SessionHub) *Manager {
	m := &Manager{
		clients:    make(map[string]map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		hub:        hub,
	}
	hub.manager = m
	return m
}

// Start runs the manager's main loop in a goroutine.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case client := <-m.Register:
				m.mu.Lock()
				tabs, ok := m.clients[client.Identity]
				if !ok {
					tabs = make(map[*Client]struct{})
					m.clients[client.Identity] = tabs
				}
				tabs[client] = struct{}{}
				first := len(tabs) == 1
				m.mu.Unlock()

				logger.Info("Client connected: %s (acting as %s)", client.UID, client.Identity)
				if first {
					m.hub.identityOnline(client.Identity)
				}

			case client := <-m.Unregister:
				m.mu.Lock()
				last := false
				if tabs, ok := m.clients[client.Identity]; ok {
					if _, ok := tabs[client]; ok {
						delete(tabs, client)
						close(client.Send)
					}
					if len(tabs) == 0 {
						delete(m.clients, client.Identity)
						last = true
					}
				}
				m.mu.Unlock()

				logger.Info("Client disconnected: %s (acting as %s)", client.UID, client.Identity)
				if last {
					m.hub.identityOffline(client.Identity)
				}

			case <-ctx.Done():
				return
			}
		}
	}()
}

// SendToIdentity delivers a frame to every tab of the identity. A tab with
// a full send buffer is skipped rather than allowed to stall the others.
func (m *Manager) SendToIdentity(identity string, payload []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for client := range m.clients[identity] {
		select {
		case client.Send <- payload:
		default:
			logger.Warn("Dropping frame for slow client %s", client.UID)
		}
	}
}

// IsForeground reports whether any tab of the identity is visible.
func (m *Manager) IsForeground(identity string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for client := range m.clients[identity] {
		if client.isForeground() {
			return true
		}
	}
	return false
}

// ReadPump reads frames from the tab until the connection drops.
func (c *Client) ReadPump(m *Manager) {
	defer func() {
		m.hub.clientGone(c)
		m.Unregister <- c
		c.Conn.Close()
	}()

	for {
		_, payload, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("Read error from client %s: %v", c.UID, err)
			}
			break
		}

		m.hub.handleFrame(c, payload)
	}
}

// WritePump forwards queued frames to the tab.
func (c *Client) WritePump() {
	defer c.Conn.Close()

	for {
		payload, ok := <-c.Send
		if !ok {
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			logger.Warn("Write error to client %s: %v", c.UID, err)
			return
		}
	}
}
