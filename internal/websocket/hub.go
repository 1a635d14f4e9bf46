package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AbdulRauf-Sidd/Gyroscope-fall-detection/internal/session"
)

const (
	// Время ожидания записи сообщения клиенту
	writeWait = 10 * time.Second

	// Время ожидания pong от клиента
	pongWait = 60 * time.Second

	// Период отправки ping (должен быть меньше pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Максимальный размер входящего сообщения
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Дашборд может открываться с любого origin
		return true
	},
}

// Hub поддерживает набор активных клиентов и рассылает им уведомления
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	// Последний снимок статуса по каждой сессии для новых подключений
	mu           sync.RWMutex
	lastStatuses map[string][]byte
}

// Client - посредник между WebSocket соединением и хабом
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewHub создает новый хаб
func NewHub() *Hub {
	return &Hub{
		clients:      make(map[*Client]bool),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		broadcast:    make(chan []byte, 256),
		lastStatuses: make(map[string][]byte),
	}
}

// Run запускает основной цикл хаба
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			log.Printf("[WEBSOCKET] Client connected, total: %d", len(h.clients))

			// Отправляем новому клиенту последние статусы всех сессий
			h.mu.RLock()
			for _, payload := range h.lastStatuses {
				select {
				case client.send <- payload:
				default:
				}
			}
			h.mu.RUnlock()

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Printf("[WEBSOCKET] Client disconnected, total: %d", len(h.clients))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Клиент не успевает читать - отключаем
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// NotificationConsumer читает уведомления менеджера сессий и транслирует
// их всем подключенным клиентам
func (h *Hub) NotificationConsumer(ctx context.Context, notifications <-chan session.Notification) {
	for {
		select {
		case <-ctx.Done():
			log.Printf("[WEBSOCKET] Notification consumer stopped")
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			h.BroadcastNotification(n)
		}
	}
}

// BroadcastNotification сериализует уведомление и отправляет его в broadcast
func (h *Hub) BroadcastNotification(n session.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		log.Printf("[ERROR] Failed to marshal notification: %v", err)
		return
	}

	if n.Type == session.NotificationStatus {
		h.mu.Lock()
		h.lastStatuses[n.SessionID] = payload
		h.mu.Unlock()
	}

	select {
	case h.broadcast <- payload:
	default:
		log.Printf("[WARN] Broadcast channel full, dropping notification")
	}
}

// HandleWebSocket обрабатывает HTTP запрос на установку WebSocket соединения
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ERROR] WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 64),
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump читает сообщения от клиента (только служебные, pong)
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WARN] WebSocket read error: %v", err)
			}
			break
		}
	}
}

// writePump отправляет сообщения клиенту и поддерживает соединение ping-ами
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
