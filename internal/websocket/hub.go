// internal/websocket/hub.go
//
// Live leaderboard feed.
// Clients connect to /ws and subscribe to one or more puzzles; every newly
// saved result pushes the puzzle's fresh top board to its subscribers.
// All subscription state is owned by the Run loop.

package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/family-connections/internal/game"
)

const (
	TypeLeaderboard  = "leaderboard"
	TypeSubscribe    = "subscribe"
	TypeUnsubscribe  = "unsubscribe"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeError        = "error"
)

// ErrHubStopped is returned by queries made after Run returned.
var ErrHubStopped = errors.New("websocket hub stopped")

// Message is the envelope sent to clients.
type Message struct {
	Type      string    `json:"type"`
	PuzzleID  string    `json:"puzzleId,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type subscription struct {
	client   *Client
	puzzleID string
}

// Hub tracks connected clients and their puzzle subscriptions.
type Hub struct {
	clients     map[*Client]struct{}
	byPuzzle    map[string]map[*Client]struct{}
	register    chan *Client
	unregister  chan *Client
	subscribe   chan subscription
	unsubscribe chan subscription
	broadcast   chan *Message
	counts      chan chan stats
	done        chan struct{}
}

type stats struct {
	clients     int
	subscribers map[string]int
}

// NewHub creates a hub; call Run to start it.
func NewHub() *Hub {
	return &Hub{
		clients:     make(map[*Client]struct{}),
		byPuzzle:    make(map[string]map[*Client]struct{}),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan subscription, 64),
		unsubscribe: make(chan subscription, 64),
		broadcast:   make(chan *Message, 256),
		counts:      make(chan chan stats),
		done:        make(chan struct{}),
	}
}

// Run processes hub events until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	log.Info().Msg("websocket hub started")
	defer func() {
		close(h.done)
		for c := range h.clients {
			h.drop(c)
		}
		log.Info().Msg("websocket hub stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			log.Debug().Str("clientId", c.id).Msg("ws client registered")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				log.Debug().Str("clientId", c.id).Msg("ws client unregistered")
			}

		case s := <-h.subscribe:
			if _, ok := h.clients[s.client]; !ok {
				continue
			}
			subs, ok := h.byPuzzle[s.puzzleID]
			if !ok {
				subs = make(map[*Client]struct{})
				h.byPuzzle[s.puzzleID] = subs
			}
			subs[s.client] = struct{}{}
			s.client.queue(&Message{Type: TypeSubscribed, PuzzleID: s.puzzleID, Timestamp: time.Now()})

		case s := <-h.unsubscribe:
			h.removeSub(s.client, s.puzzleID)
			if _, ok := h.clients[s.client]; ok {
				s.client.queue(&Message{Type: TypeUnsubscribed, PuzzleID: s.puzzleID, Timestamp: time.Now()})
			}

		case m := <-h.broadcast:
			h.fanOut(m)

		case reply := <-h.counts:
			st := stats{clients: len(h.clients), subscribers: make(map[string]int, len(h.byPuzzle))}
			for id, subs := range h.byPuzzle {
				st.subscribers[id] = len(subs)
			}
			reply <- st
		}
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	for id := range h.byPuzzle {
		h.removeSub(c, id)
	}
	close(c.send)
}

func (h *Hub) removeSub(c *Client, puzzleID string) {
	subs, ok := h.byPuzzle[puzzleID]
	if !ok {
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.byPuzzle, puzzleID)
	}
}

func (h *Hub) fanOut(m *Message) {
	data, err := json.Marshal(m)
	if err != nil {
		log.Error().Err(err).Msg("encode ws message")
		return
	}
	for c := range h.byPuzzle[m.PuzzleID] {
		select {
		case c.send <- data:
		default:
			log.Warn().Str("clientId", c.id).Msg("ws client buffer full, skipping")
		}
	}
}

// join registers c; it reports false once the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) sub(s subscription, ch chan subscription) {
	select {
	case ch <- s:
	case <-h.done:
	}
}

// BroadcastBoard pushes a ranked board to the puzzle's subscribers. It never
// blocks; when the hub is backed up the update is dropped.
func (h *Hub) BroadcastBoard(puzzleID string, ranked []game.Result) {
	m := &Message{Type: TypeLeaderboard, PuzzleID: puzzleID, Data: ranked, Timestamp: time.Now()}
	select {
	case h.broadcast <- m:
	default:
		log.Warn().Str("puzzleId", puzzleID).Msg("ws broadcast channel full, dropping board")
	}
}

// Subscribers returns the number of clients subscribed to a puzzle.
func (h *Hub) Subscribers(ctx context.Context, puzzleID string) (int, error) {
	st, err := h.stats(ctx)
	if err != nil {
		return 0, err
	}
	return st.subscribers[puzzleID], nil
}

// Connections returns the number of connected clients.
func (h *Hub) Connections(ctx context.Context) (int, error) {
	st, err := h.stats(ctx)
	if err != nil {
		return 0, err
	}
	return st.clients, nil
}

func (h *Hub) stats(ctx context.Context) (stats, error) {
	reply := make(chan stats, 1)
	select {
	case h.counts <- reply:
	case <-h.done:
		return stats{}, ErrHubStopped
	case <-ctx.Done():
		return stats{}, ctx.Err()
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return stats{}, ctx.Err()
	}
}
