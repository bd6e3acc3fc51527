package websocket

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/meowdiary/cookie-bot/models"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// MessageTypeActivity is sent for every processed group message
	MessageTypeActivity MessageType = "activity"
	// MessageTypeUnlock is sent when a user earns an achievement or badge
	MessageTypeUnlock MessageType = "unlock"
	// MessageTypeLevelUp is sent when a user reaches a new level
	MessageTypeLevelUp MessageType = "level_up"
	// MessageTypePurchase is sent when a user buys a card
	MessageTypePurchase MessageType = "purchase"
	// MessageTypeAdjustment is sent when an admin adjusts a balance
	MessageTypeAdjustment MessageType = "adjustment"
	// MessageTypeWipe is sent after a database wipe
	MessageTypeWipe MessageType = "wipe"
)

// Message represents a WebSocket message
type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// ActivityPayload summarizes one processed message for the live admin feed
type ActivityPayload struct {
	UserID        int64  `json:"user_id"`
	Username      string `json:"username"`
	ChatID        int64  `json:"chat_id"`
	MessageType   string `json:"message_type"`
	PointsAwarded int64  `json:"points_awarded"`
	TotalExp      int64  `json:"total_exp"`
	Balance       int64  `json:"balance"`
	Level         int    `json:"level"`
}

// UnlockPayload describes an achievement or badge grant
type UnlockPayload struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Kind     string `json:"kind"`
	Key      string `json:"key"`
	Name     string `json:"name"`
	Emoji    string `json:"emoji"`
	Reward   int64  `json:"reward,omitempty"`
}

// LevelUpPayload describes a level change
type LevelUpPayload struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Level    int    `json:"level"`
	Title    string `json:"title,omitempty"`
}

// PurchasePayload describes a card purchase
type PurchasePayload struct {
	UserID     int64  `json:"user_id"`
	Username   string `json:"username"`
	Card       string `json:"card"`
	CardName   string `json:"card_name"`
	Price      int64  `json:"price"`
	NewBalance int64  `json:"new_balance"`
}

// AdjustmentPayload describes an admin balance correction
type AdjustmentPayload struct {
	UserID   int64 `json:"user_id"`
	Delta    int64 `json:"delta"`
	Balance  int64 `json:"balance"`
	TotalExp int64 `json:"total_exp"`
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// All clients for broadcast
	clients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Broadcast to all clients
	broadcast chan []byte

	mutex sync.RWMutex
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			log.Printf("WebSocket: Client connected (%s)", client.remoteAddr)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Printf("WebSocket: Client disconnected (%s)", client.remoteAddr)
			}
			h.mutex.Unlock()

		case message := <-h.broadcast:
			// Full lock: stalled clients are removed from the map here.
			h.mutex.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client send buffer full, close connection
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// send marshals and broadcasts one message, dropping it on marshal failure
func (h *Hub) send(msgType MessageType, payload interface{}) {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		log.Printf("WebSocket: Failed to marshal %s message: %v", msgType, err)
		return
	}
	h.broadcast <- data
}

// BroadcastActivity pushes a processed message to the live feed
func (h *Hub) BroadcastActivity(payload *ActivityPayload) {
	h.send(MessageTypeActivity, payload)
}

// BroadcastUnlock announces a fresh achievement or badge
func (h *Hub) BroadcastUnlock(user *models.User, item models.UnlockedItem) {
	h.send(MessageTypeUnlock, &UnlockPayload{
		UserID:   user.UserID,
		Username: user.DisplayName(),
		Kind:     string(item.Kind),
		Key:      item.Definition.Key,
		Name:     item.Definition.Name,
		Emoji:    item.Definition.Emoji,
		Reward:   item.Definition.Reward,
	})
}

// BroadcastLevelUp announces a level change
func (h *Hub) BroadcastLevelUp(user *models.User, title string) {
	h.send(MessageTypeLevelUp, &LevelUpPayload{
		UserID:   user.UserID,
		Username: user.DisplayName(),
		Level:    user.Level,
		Title:    title,
	})
}

// BroadcastPurchase announces a card purchase
func (h *Hub) BroadcastPurchase(user *models.User, result *models.PurchaseResult) {
	h.send(MessageTypePurchase, &PurchasePayload{
		UserID:     user.UserID,
		Username:   user.DisplayName(),
		Card:       result.Card.Key,
		CardName:   result.Card.Name,
		Price:      result.Price,
		NewBalance: result.NewBalance,
	})
}

// BroadcastAdjustment announces an admin balance correction
func (h *Hub) BroadcastAdjustment(user *models.User, delta int64) {
	h.send(MessageTypeAdjustment, &AdjustmentPayload{
		UserID:   user.UserID,
		Delta:    delta,
		Balance:  user.Balance,
		TotalExp: user.TotalExp,
	})
}

// BroadcastWipe announces that all data was erased
func (h *Hub) BroadcastWipe() {
	h.send(MessageTypeWipe, map[string]string{"message": "all data erased"})
}

// GetConnectedUserCount returns the number of connected clients
func (h *Hub) GetConnectedUserCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
