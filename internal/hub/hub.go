// Package hub fans notification events out to connected agent and admin
// clients over websockets. Clients subscribe to topics; publishing never
// blocks on a slow reader.
package hub

import (
	"log/slog"
	"sync"
	"time"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 64
)

// Conn is the subset of a websocket connection the hub writes to.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client is one connected socket and its topic subscriptions.
type Client struct {
	AccountID string
	Role      string

	conn   Conn
	send   chan Event
	topics map[string]struct{}
}

// Hub keeps the registry of connected clients and routes events to topics.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// New creates an empty hub.
func New(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger.With(slog.String("service", "hub")),
		clients: make(map[*Client]struct{}),
	}
}

// Register adds a connection for the given account. Admin accounts are
// subscribed to the admin topic on top of their own user topic, and the
// rest of the registry is told the user came online.
func (h *Hub) Register(conn Conn, accountID, role string) *Client {
	client := &Client{
		AccountID: accountID,
		Role:      role,
		conn:      conn,
		send:      make(chan Event, sendBuffer),
		topics:    make(map[string]struct{}),
	}
	client.topics[UserTopic(accountID)] = struct{}{}
	if role == "admin" {
		client.topics[TopicAdmin] = struct{}{}
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("client registered", slog.String("account_id", accountID), slog.String("role", role))
	h.broadcastExcept(client, Event{Type: EventUserOnline, Data: map[string]string{"account_id": accountID}})
	return client
}

// Unregister drops the client and tells everyone else the user went offline.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	_, known := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()
	if !known {
		return
	}
	close(client.send)
	h.logger.Debug("client unregistered", slog.String("account_id", client.AccountID))
	h.broadcastExcept(client, Event{Type: EventUserOffline, Data: map[string]string{"account_id": client.AccountID}})
}

// Subscribe adds the client to a topic.
func (h *Hub) Subscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	client.topics[topic] = struct{}{}
}

// Unsubscribe removes the client from a topic.
func (h *Hub) Unsubscribe(client *Client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(client.topics, topic)
}

// Publish delivers the event to every client subscribed to the topic.
// Clients whose buffer is full miss the event instead of stalling delivery.
func (h *Hub) Publish(topic string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if _, ok := client.topics[topic]; !ok {
			continue
		}
		select {
		case client.send <- event:
		default:
			h.logger.Warn("dropping event for slow client",
				slog.String("account_id", client.AccountID),
				slog.String("topic", topic),
				slog.String("type", event.Type))
		}
	}
}

// Online returns the distinct account ids with at least one open connection.
func (h *Hub) Online() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[string]struct{}, len(h.clients))
	ids := make([]string, 0, len(h.clients))
	for client := range h.clients {
		if _, ok := seen[client.AccountID]; ok {
			continue
		}
		seen[client.AccountID] = struct{}{}
		ids = append(ids, client.AccountID)
	}
	return ids
}

func (h *Hub) broadcastExcept(except *Client, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client == except {
			continue
		}
		select {
		case client.send <- event:
		default:
		}
	}
}

// WritePump drains the client's send channel onto the socket. It returns
// when the channel is closed by Unregister or the write fails.
func (c *Client) WritePump() {
	defer c.conn.Close()
	for event := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := c.conn.WriteJSON(event); err != nil {
			return
		}
	}
}

// controlMessage is what clients send to manage their subscriptions.
type controlMessage struct {
	Action         string `json:"action"`
	ConversationID string `json:"conversation_id"`
}

// ReadPump reads subscription control messages until the socket closes,
// then unregisters the client.
func (c *Client) ReadPump(h *Hub) {
	defer h.Unregister(c)
	for {
		var msg controlMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.ConversationID == "" {
			continue
		}
		switch msg.Action {
		case "subscribe":
			h.Subscribe(c, ConversationTopic(msg.ConversationID))
		case "unsubscribe":
			h.Unsubscribe(c, ConversationTopic(msg.ConversationID))
		}
	}
}
