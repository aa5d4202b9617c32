package notify

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/cskr/pubsub"
	"github.com/gorilla/websocket"

	"bazaar/leadhub/internal/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	hubCapacity    = 64
)

// Hub delivers events to connected websocket clients, one topic per user.
// Publishing never blocks, so users without a live connection miss the event.
type Hub struct {
	ps       *pubsub.PubSub
	upgrader websocket.Upgrader
}

func NewHub(allowedOrigin string) *Hub {
	return &Hub{
		ps: pubsub.New(hubCapacity),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return allowedOrigin == "*" || allowedOrigin == "" || r.Header.Get("Origin") == allowedOrigin
			},
		},
	}
}

func topic(id utils.SixID) string {
	return "user_" + id.String()
}

func (h *Hub) Notify(ctx context.Context, recipientIDs []utils.SixID, event Event) {
	topics := make([]string, 0, len(recipientIDs))
	for _, id := range recipientIDs {
		topics = append(topics, topic(id))
	}
	if len(topics) > 0 {
		h.ps.TryPub(event, topics...)
	}
}

// Subscribe returns a channel receiving the user's events and a func to release it.
func (h *Hub) Subscribe(userID utils.SixID) (<-chan interface{}, func()) {
	ch := h.ps.Sub(topic(userID))
	return ch, func() { h.ps.Unsub(ch) }
}

// Close shuts down the hub and closes every subscriber channel.
func (h *Hub) Close() {
	h.ps.Shutdown()
}

// Serve upgrades the request and streams the user's events until the client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID utils.SixID) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Hub: websocket upgrade failed for %s: %v", userID, err)
		return
	}

	events, release := h.Subscribe(userID)
	done := make(chan struct{})
	go h.readPump(conn, done)
	h.writePump(conn, events, done)
	release()
}

// readPump only exists to process pongs and notice the client closing.
func (h *Hub) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Hub: websocket read error: %v", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, events <-chan interface{}, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case msg, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
