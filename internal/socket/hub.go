// internal/socket/hub.go
package socket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// System messages
	MessagePing MessageType = "ping"
	MessagePong MessageType = "pong"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType            `json:"type"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Client represents one live session of an account
type Client struct {
	ID        string
	AccountID string
	Conn      *websocket.Conn
	Hub       *Hub
	Send      chan []byte
	lastPing  time.Time
	// closed is set under Hub.mu once Send has been closed.
	closed bool
}

// Hub maintains the set of active sessions and delivers events to them
type Hub struct {
	// Sessions indexed by account ID
	accounts map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	// Direct message to every session of an account
	direct chan *DirectMessage

	done chan struct{}
	log  zerolog.Logger
	mu   sync.RWMutex
}

// DirectMessage represents a message to be sent to a specific account
type DirectMessage struct {
	AccountID string
	Message   []byte
}

// NewHub creates a new Hub
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		accounts:   make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		direct:     make(chan *DirectMessage, 256),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run starts the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	h.log.Info().Msg("[Hub] WebSocket hub started")

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case dm := <-h.direct:
			h.sendToAccount(dm)

		case <-pingTicker.C:
			h.pingClients()

		case <-h.done:
			h.closeAll()
			return
		}
	}
}

// Stop ends Run and closes every session.
func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.accounts[client.AccountID] == nil {
		h.accounts[client.AccountID] = make(map[*Client]bool)
	}
	h.accounts[client.AccountID][client] = true

	h.log.Debug().Str("account", client.AccountID).Str("session", client.ID).Msg("[Hub] session registered")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.accounts[client.AccountID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.accounts, client.AccountID)
	}
	client.closed = true
	close(client.Send)
	h.log.Debug().Str("account", client.AccountID).Str("session", client.ID).Msg("[Hub] session closed")
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for accountID, clients := range h.accounts {
		for client := range clients {
			client.closed = true
			close(client.Send)
		}
		delete(h.accounts, accountID)
	}
}

// drop schedules removal of a session whose buffer is full.
func (h *Hub) drop(c *Client) {
	go func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()
}

func (h *Hub) sendToAccount(dm *DirectMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.accounts[dm.AccountID]
	if !ok {
		return
	}

	sent := 0
	for client := range clients {
		select {
		case client.Send <- dm.Message:
			sent++
		default:
			h.drop(client)
		}
	}
	h.log.Debug().Str("account", dm.AccountID).Int("sessions", sent).Msg("[Hub] direct message delivered")
}

func (h *Hub) pingClients() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, _ := json.Marshal(Message{Type: MessagePing, Timestamp: time.Now()})
	for _, clients := range h.accounts {
		for client := range clients {
			select {
			case client.Send <- data:
			default:
				h.drop(client)
			}
		}
	}
}

// SendToAccount queues a message for every live session of an account.
// Accounts without sessions are skipped; events are not replayed.
func (h *Hub) SendToAccount(accountID string, msgType MessageType, payload map[string]interface{}) {
	data, err := json.Marshal(Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		h.log.Error().Err(err).Str("type", string(msgType)).Msg("[Hub] error marshaling message")
		return
	}

	select {
	case h.direct <- &DirectMessage{AccountID: accountID, Message: data}:
	case <-h.done:
	default:
		h.log.Warn().Str("account", accountID).Str("type", string(msgType)).Msg("[Hub] direct queue full, dropping event")
	}
}

// PublishToAccount satisfies the lifecycle engine's event boundary.
func (h *Hub) PublishToAccount(accountID, event string, payload map[string]any) {
	h.SendToAccount(accountID, MessageType(event), payload)
}

// IsAccountOnline checks if an account has a live session
func (h *Hub) IsAccountOnline(accountID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.accounts[accountID]
	return ok
}

// GetConnectedClientsCount returns total live sessions
func (h *Hub) GetConnectedClientsCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, clients := range h.accounts {
		n += len(clients)
	}
	return n
}
