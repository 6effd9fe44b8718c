package messaging

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	writeWait    = 10 * time.Second
	maxFrameSize = 64 * 1024
	sendBuffer   = 64
)

type EventType string

const (
	EventMessageNew EventType = "message_new"
	EventTyping     EventType = "user_typing"
	EventStopTyping EventType = "user_stop_typing"
	EventError      EventType = "error"
)

type Event struct {
	Type          EventType `json:"type"`
	TransactionID string    `json:"transaction_id"`
	UserID        string    `json:"user_id,omitempty"`
	Data          any       `json:"data,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Client is one websocket connection subscribed to one transaction.
type Client struct {
	ID     uuid.UUID
	UserID string
	TxID   string
	conn   *websocket.Conn
	send   chan []byte
}

// Hub は取引ごとの購読者集合。send の close は leave だけが mu.Lock 下で行う
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[uuid.UUID]*Client
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[uuid.UUID]*Client)}
}

func (h *Hub) join(c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[c.TxID]
	if !ok {
		room = make(map[uuid.UUID]*Client)
		h.rooms[c.TxID] = room
	}
	room[c.ID] = c
	h.mu.Unlock()
	log.Printf("[INFO] ws client %s joined transaction %s (user %s)", c.ID, c.TxID, c.UserID)
}

func (h *Hub) leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[c.TxID]
	if _, ok := room[c.ID]; !ok {
		return
	}
	delete(room, c.ID)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, c.TxID)
	}
	log.Printf("[INFO] ws client %s left transaction %s", c.ID, c.TxID)
}

// Subscribers returns the number of live connections on txID.
func (h *Hub) Subscribers(txID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[txID])
}

// Broadcast pushes evt to every subscriber of txID.
func (h *Hub) Broadcast(txID string, evt Event) {
	h.publish(txID, evt, func(*Client) bool { return true })
}

func (h *Hub) broadcastExcept(c *Client, evt Event) {
	h.publish(c.TxID, evt, func(o *Client) bool { return o.ID != c.ID })
}

func (h *Hub) reply(c *Client, evt Event) {
	h.publish(c.TxID, evt, func(o *Client) bool { return o.ID == c.ID })
}

func (h *Hub) publish(txID string, evt Event, want func(*Client) bool) {
	evt.TransactionID = txID
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		log.Printf("[ERROR] ws marshal %s: %v", evt.Type, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[txID] {
		if !want(c) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			// 詰まっているクライアントは待たない
			log.Printf("[WARN] ws client %s is not draining, dropped %s", c.ID, evt.Type)
		}
	}
}

// Serve subscribes conn to txID and blocks until the peer goes away.
// Each inbound frame is handed to onFrame on the reading goroutine.
func (h *Hub) Serve(conn *websocket.Conn, txID, userID string, onFrame func(*Client, inbound)) {
	c := &Client{
		ID:     uuid.New(),
		UserID: userID,
		TxID:   txID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}
	h.join(c)
	go c.writePump()
	defer h.leave(c)

	c.readPump(h, onFrame)
}

func (c *Client) readPump(h *Hub, onFrame func(*Client, inbound)) {
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[WARN] ws client %s closed unexpectedly: %v", c.ID, err)
			}
			return
		}
		var in inbound
		if err := json.Unmarshal(raw, &in); err != nil {
			h.reply(c, Event{Type: EventError, Data: "malformed frame"})
			continue
		}
		onFrame(c, in)
	}
}

// writePump は send が閉じられるまで書き続け、最後に接続を閉じる
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Printf("[WARN] ws write to %s failed: %v", c.ID, err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
