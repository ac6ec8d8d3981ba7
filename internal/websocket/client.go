// internal/websocket/client.go
//
// One websocket connection: read/write pumps and the HTTP upgrade.

package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Client is one websocket connection.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	// send is owned and closed by the hub.
	send chan []byte
	// direct carries replies produced by the read loop (pong, errors).
	direct chan []byte
}

// clientMessage is what a browser sends.
type clientMessage struct {
	Type     string `json:"type"`
	PuzzleID string `json:"puzzleId"`
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:     uuid.NewString(),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		direct: make(chan []byte, 16),
	}
}

// queue is called from the hub loop only.
func (c *Client) queue(m *Message) {
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) reply(m *Message) {
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	select {
	case c.direct <- data:
	default:
	}
}

func (c *Client) replyError(msg string) {
	c.reply(&Message{Type: TypeError, Data: map[string]string{"error": msg}, Timestamp: time.Now()})
}

func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("clientId", c.id).Msg("ws read")
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.replyError("invalid message format")
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg clientMessage) {
	puzzleID := strings.TrimSpace(msg.PuzzleID)
	switch msg.Type {
	case TypeSubscribe:
		if puzzleID == "" {
			c.replyError("puzzleId required for subscribe")
			return
		}
		c.hub.sub(subscription{client: c, puzzleID: puzzleID}, c.hub.subscribe)
	case TypeUnsubscribe:
		if puzzleID != "" {
			c.hub.sub(subscription{client: c, puzzleID: puzzleID}, c.hub.unsubscribe)
		}
	case TypePing:
		c.reply(&Message{Type: TypePong, Timestamp: time.Now()})
	default:
		log.Debug().Str("type", msg.Type).Msg("unknown ws message type")
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case data := <-c.direct:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

// Handler upgrades requests to websocket connections. Browsers must come
// from one of origins; an empty list accepts any origin. A puzzleId query
// parameter subscribes the connection right away.
func (h *Hub) Handler(origins []string) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(origins),
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		c := newClient(h, conn)
		if !h.join(c) {
			_ = conn.Close()
			return
		}
		go c.writePump()
		go c.readPump()

		if id := strings.TrimSpace(r.URL.Query().Get("puzzleId")); id != "" {
			h.sub(subscription{client: c, puzzleID: id}, h.subscribe)
		}
		log.Debug().Str("clientId", c.id).Msg("ws connected")
	}
}

func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range origins {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}
