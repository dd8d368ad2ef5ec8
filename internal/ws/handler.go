package ws

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// Engine is the matchmaking engine the hub dispatches inbound messages to
type Engine interface {
	FindGame(ctx context.Context, connID, username string)
	Disconnect(connID string)
}

// FindGameData is the payload of an inbound find_game message
type FindGameData struct {
	Username string `json:"username"`
}

// GameHub is the single hub for all connections
var GameHub *Hub

var engine Engine

func init() {
	GameHub = NewHub()
	go runGameHub(GameHub)
}

// SetEngine wires the matchmaking engine the hub dispatches into
func SetEngine(e Engine) {
	engine = e
}

// generateConnID returns the identifier assigned to a new connection
func generateConnID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return "conn_" + hex.EncodeToString(b)
}

// HandleWebSocket upgrades the request and registers the connection
func HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}

	client := &Client{
		conn:   conn,
		connID: generateConnID(),
		send:   make(chan []byte, 256),
	}

	GameHub.register <- client

	go client.writePump()
	go client.readPump()
}

// runGameHub owns the client map mutations for connects and disconnects
func runGameHub(h *Hub) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.connID] = client
			h.mu.Unlock()
			log.Printf("[WS] Connection %s established", client.connID)

		case client := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.clients[client.connID]; ok && cur == client {
				delete(h.clients, client.connID)
				select {
				case <-client.send:
				default:
					close(client.send)
				}
			}
			h.mu.Unlock()

			log.Printf("[WS] Connection %s closed", client.connID)
			if engine != nil {
				engine.Disconnect(client.connID)
			}
		}
	}
}

// readPump reads inbound messages and dispatches them to the engine
func (c *Client) readPump() {
	defer func() {
		GameHub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error (unexpected) for %s: %v", c.connID, err)
			} else {
				log.Printf("WebSocket read error for %s: %v", c.connID, err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		c.handleMessage(msg)
	}
}

// handleMessage processes one inbound message
func (c *Client) handleMessage(msg WSMessage) {
	if engine == nil {
		c.sendError("Server is not ready")
		return
	}

	switch msg.Type {
	case "find_game":
		var data FindGameData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("Invalid find_game data")
			return
		}
		engine.FindGame(context.Background(), c.connID, data.Username)

	default:
		c.sendError("Unknown message type")
	}
}
