package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const writeWait = 10 * time.Second

// WSMessage represents a message from the client
type WSMessage struct {
	Action    string  `json:"action"`
	Type      string  `json:"type,omitempty"`
	TargetID  string  `json:"target_id,omitempty"`
	TargetID2 string  `json:"target_id2,omitempty"`
	Content   string  `json:"content,omitempty"`
	Channel   Channel `json:"channel,omitempty"`
	Ready     bool    `json:"ready,omitempty"`
}

// Client is one WebSocket connection watching one game.
type Client struct {
	conn    *websocket.Conn
	gameID  string
	userID  string
	name    string
	limiter *rate.Limiter
	writeMu sync.Mutex // gorilla/websocket allows one concurrent writer
}

func (c *Client) send(message []byte) error {
	LogWSMessage("OUT", c.name, string(message))
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, message)
}

// Hub tracks every open connection and pushes fresh game views to them.
type Hub struct {
	clients    map[*websocket.Conn]*Client
	register   chan *Client
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	done       chan struct{}
	wg         sync.WaitGroup

	wsRate  rate.Limit
	wsBurst int
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]*Client),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn, 64),
		done:       make(chan struct{}),
		wsRate:     5,
		wsBurst:    10,
	}
}

var hub = newHub()

func (h *Hub) start() {
	h.wg.Add(1)
	go h.run()
}

// stop signals the hub goroutine to exit, closes every connection and waits.
func (h *Hub) stop() {
	close(h.done)
	h.wg.Wait()
	h.mu.Lock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
		wsConnections.Dec()
	}
	h.mu.Unlock()
}

func (h *Hub) run() {
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			total := len(h.clients)
			h.mu.Unlock()
			wsConnections.Inc()
			log.Printf("WebSocket client connected (%s, game %s). Total: %d", client.name, client.gameID, total)

		case conn := <-h.unregister:
			h.mu.Lock()
			client, ok := h.clients[conn]
			if ok {
				delete(h.clients, conn)
				conn.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			if ok {
				wsConnections.Dec()
				DebugLog("hub.unregister", "'%s' left game %s. Total: %d", client.name, client.gameID, total)
			}
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

func (h *Hub) clientsOf(gameID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*Client
	for _, c := range h.clients {
		if c.gameID == gameID {
			out = append(out, c)
		}
	}
	return out
}

// pushState sends client its own view of the game.
func (h *Hub) pushState(c *Client) {
	view, err := buildGameView(db, c.gameID, c.userID)
	if err != nil {
		if !errors.Is(err, ErrGameNotFound) {
			logError("pushState", err)
		}
		return
	}
	b, err := json.Marshal(map[string]any{"type": "state", "state": view})
	if err != nil {
		logError("pushState: marshal", err)
		return
	}
	if err := c.send(b); err != nil {
		log.Printf("WebSocket write error to %s: %v", c.name, err)
		h.drop(c.conn)
	}
}

// broadcastGameUpdate pushes each client of the game its own view. Views
// differ per player, so each is built separately.
func broadcastGameUpdate(gameID string) {
	for _, c := range hub.clientsOf(gameID) {
		hub.pushState(c)
	}
}

var upgrader = websocket.Upgrader{}

func handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Capture globals at entry to avoid race conditions in parallel tests
	currentHub := hub

	s, err := sessionFromRequest(r)
	if err != nil {
		DebugLog("handleWebSocket", "Rejected WebSocket connection: no session")
		writeError(w, ErrNoSession)
		return
	}
	gameID := r.URL.Query().Get("game")
	if _, err := getGame(db, gameID); err != nil {
		writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error for %s: %v", s.Name, err)
		return
	}

	client := &Client{
		conn:    conn,
		gameID:  gameID,
		userID:  s.UserID,
		name:    s.Name,
		limiter: rate.NewLimiter(currentHub.wsRate, currentHub.wsBurst),
	}
	select {
	case currentHub.register <- client:
	case <-currentHub.done:
		conn.Close()
		return
	}
	currentHub.pushState(client)

	go func() {
		defer currentHub.drop(conn)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}
			LogWSMessage("IN", client.name, string(message))
			if !client.limiter.Allow() {
				client.send(renderToast("warning", "Slow down"))
				continue
			}
			handleWSMessage(client, message)
		}
	}()
}

// handleWSMessage runs one client request against the engine. Successful
// mutations broadcast on their own; failures go back to the sender only.
func handleWSMessage(client *Client, message []byte) {
	var msg WSMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		sendErrorToast(client, ErrBadRequest)
		return
	}

	var err error
	switch msg.Action {
	case "act":
		_, err = actAs(client.gameID, client.userID, ActionType(msg.Type), msg.TargetID, msg.TargetID2)
	case "chat":
		_, err = sendChat(client.gameID, client.userID, msg.Content, msg.Channel)
	case "ready":
		err = setReady(client.gameID, client.userID, msg.Ready)
	case "start":
		err = startGame(client.gameID, client.userID)
	case "leave":
		err = leaveGame(client.gameID, client.userID)
	case "reset":
		err = resetGame(client.gameID, client.userID)
	case "sync":
		hub.pushState(client)
	default:
		err = ErrBadRequest
	}
	if err != nil {
		DebugLog("handleWSMessage", "%s: %s rejected: %v", client.name, msg.Action, err)
		sendErrorToast(client, err)
	}
}
