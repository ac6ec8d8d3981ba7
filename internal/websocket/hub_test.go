package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/family-connections/internal/game"
)

func startHub(t *testing.T, origins ...string) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)
	srv := httptest.NewServer(hub.Handler(origins))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var m Message
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestHub_SubscribeAndBroadcast(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "")

	require.NoError(t, conn.WriteJSON(clientMessage{Type: TypeSubscribe, PuzzleID: "p1"}))
	ack := readMessage(t, conn)
	require.Equal(t, TypeSubscribed, ack.Type)
	require.Equal(t, "p1", ack.PuzzleID)

	// Boards for other puzzles are not delivered.
	hub.BroadcastBoard("p2", []game.Result{{ID: "x"}})
	hub.BroadcastBoard("p1", []game.Result{{ID: "s1", PlayerName: "Nonna"}})

	m := readMessage(t, conn)
	require.Equal(t, TypeLeaderboard, m.Type)
	require.Equal(t, "p1", m.PuzzleID)
	rows, ok := m.Data.([]any)
	require.True(t, ok)
	require.Len(t, rows, 1)
	require.Equal(t, "Nonna", rows[0].(map[string]any)["playerName"])

	n, err := hub.Subscribers(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestHub_QuerySubscription(t *testing.T) {
	_, srv := startHub(t)
	conn := dial(t, srv, "?puzzleId=p9")

	ack := readMessage(t, conn)
	require.Equal(t, TypeSubscribed, ack.Type)
	require.Equal(t, "p9", ack.PuzzleID)
}

func TestHub_PingAndErrors(t *testing.T) {
	_, srv := startHub(t)
	conn := dial(t, srv, "")

	require.NoError(t, conn.WriteJSON(clientMessage{Type: TypePing}))
	require.Equal(t, TypePong, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(clientMessage{Type: TypeSubscribe}))
	require.Equal(t, TypeError, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{nope")))
	require.Equal(t, TypeError, readMessage(t, conn).Type)
}

func TestHub_UnsubscribeAndDisconnect(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "?puzzleId=p1")
	require.Equal(t, TypeSubscribed, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(clientMessage{Type: TypeUnsubscribe, PuzzleID: "p1"}))
	require.Equal(t, TypeUnsubscribed, readMessage(t, conn).Type)

	n, err := hub.Subscribers(context.Background(), "p1")
	require.NoError(t, err)
	require.Zero(t, n)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		n, err := hub.Connections(context.Background())
		return err == nil && n == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	_, srv := startHub(t, "https://fam.example")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example"}})
	require.Error(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://fam.example"}})
	require.NoError(t, err)
	_ = conn.Close()
}

func TestHub_StoppedHub(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	_, err := hub.Connections(context.Background())
	require.ErrorIs(t, err, ErrHubStopped)
	hub.BroadcastBoard("p1", nil)
}
