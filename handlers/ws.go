package handlers

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"game-arena-system/middleware"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

const wsWriteDeadline = 5 * time.Second

// EventHub fans arena announcements out to every connected chat-network
// bridge over websocket. It implements services.Notifier, so services can
// announce without knowing who listens.
type EventHub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

func NewEventHub() *EventHub {
	return &EventHub{conns: make(map[*websocket.Conn]bool)}
}

type arenaEvent struct {
	Event   string    `json:"event"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// Announce broadcasts one event to all connections. A connection that fails
// to take the write is dropped; delivery is best effort.
func (h *EventHub) Announce(event string, payload any) {
	data, err := json.Marshal(arenaEvent{Event: event, Payload: payload, At: time.Now()})
	if err != nil {
		log.Printf("⚠️ [EVENTS] failed to marshal %s event: %v", event, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("⚠️ [EVENTS] dropping connection after write error: %v", err)
			delete(h.conns, conn)
			_ = conn.Close()
		}
	}
}

func (h *EventHub) register(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = true
	n := len(h.conns)
	h.mu.Unlock()
	log.Printf("🔌 [EVENTS] bridge connected (%d total)", n)
}

func (h *EventHub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}

// ConnectionCount reports how many bridges are listening.
func (h *EventHub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// SetupEventRoutes mounts the websocket endpoint the chat bridges subscribe
// to. The stream is one-way; inbound messages are read only to detect close.
func SetupEventRoutes(app *fiber.App, hub *EventHub) {
	app.Use("/events", middleware.GatewayAuthMiddleware())
	app.Use("/events", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/events", websocket.New(func(conn *websocket.Conn) {
		hub.register(conn)
		defer func() {
			hub.unregister(conn)
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}))
}
