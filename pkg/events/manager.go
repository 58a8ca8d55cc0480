package events

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// Client is one connected change-feed subscriber.
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan any      // outbound queue
	Done chan struct{} // closed on removal
}

// ConnectionManager tracks live subscribers.
type ConnectionManager struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		clients: make(map[string]*Client),
	}
}

// AddClient registers a connection under id.
func (cm *ConnectionManager) AddClient(id string, conn *websocket.Conn) *Client {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if existing, ok := cm.clients[id]; ok {
		close(existing.Done)
		if existing.Conn != nil {
			existing.Conn.Close()
		}
	}

	client := &Client{
		ID:   id,
		Conn: conn,
		Send: make(chan any, 32),
		Done: make(chan struct{}),
	}
	cm.clients[id] = client
	return client
}

// RemoveClient unregisters a connection. Removing an unknown id is a no-op.
func (cm *ConnectionManager) RemoveClient(id string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if client, ok := cm.clients[id]; ok {
		close(client.Done)
		delete(cm.clients, id)
	}
}

func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return len(cm.clients)
}

// SendTo queues message for a single subscriber.
func (cm *ConnectionManager) SendTo(id string, message any) error {
	cm.mu.RLock()
	client, ok := cm.clients[id]
	cm.mu.RUnlock()

	if !ok {
		return fmt.Errorf("client %s is not connected", id)
	}
	return deliver(client, message)
}

// Broadcast queues message for every subscriber and returns how many accepted it.
// Subscribers with a full queue miss the message rather than block the caller.
func (cm *ConnectionManager) Broadcast(message any) int {
	cm.mu.RLock()
	targets := make([]*Client, 0, len(cm.clients))
	for _, c := range cm.clients {
		targets = append(targets, c)
	}
	cm.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if deliver(c, message) == nil {
			delivered++
		}
	}
	return delivered
}

func deliver(client *Client, message any) error {
	select {
	case <-client.Done:
		return fmt.Errorf("client %s disconnected", client.ID)
	default:
	}

	select {
	case client.Send <- message:
		return nil
	case <-client.Done:
		return fmt.Errorf("client %s disconnected", client.ID)
	default:
		return fmt.Errorf("client %s message queue full", client.ID)
	}
}
