package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/playsync/internal/protocol"
	"github.com/sharetube/playsync/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer assigns sequential connection ids, echoes every frame and drops
// the first connection after its first frame.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	var n atomic.Int32
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws/rooms/room", r.URL.Path)
		assert.Equal(t, "alice", r.URL.Query().Get("user-id"))

		id := n.Add(1)
		conn, err := upgrader.Upgrade(w, r, http.Header{ConnectionIDHeader: {fmt.Sprintf("conn-%d", id)}})
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
			if id == 1 {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestClientReconnectsWithNewConnectionID(t *testing.T) {
	srv := echoServer(t)
	c := NewClient(Config{
		ServerURL: "ws" + srv.URL[len("http"):],
		RoomID:    "room",
		UserID:    "alice",
		Retry:     retry.Config{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2},
	}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	expectID := func(want string) {
		select {
		case id := <-c.Connected():
			assert.Equal(t, want, id)
		case <-time.After(2 * time.Second):
			t.Fatalf("no connection %s", want)
		}
	}
	expectEcho := func(msgType string) {
		select {
		case msg := <-c.Messages():
			assert.Equal(t, msgType, msg.Type)
		case <-time.After(2 * time.Second):
			t.Fatalf("no echo of %s", msgType)
		}
	}

	expectID("conn-1")
	msg, err := protocol.New(protocol.TypeSendTiming, protocol.TimingPayload{Timing: 1})
	require.NoError(t, err)
	require.NoError(t, c.Publish(ctx, msg))
	expectEcho(protocol.TypeSendTiming)

	expectID("conn-2")
	require.Eventually(t, func() bool {
		return c.Publish(ctx, protocol.Message{Type: protocol.TypeJoin}) == nil
	}, 2*time.Second, 10*time.Millisecond)
	expectEcho(protocol.TypeJoin)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestURLStore(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/rooms/url", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	store, err := NewURLStore("ws"+srv.URL[len("http"):], time.Second)
	require.NoError(t, err)
	require.NoError(t, store.PutURL(context.Background(), "room", "https://youtu.be/dQw4w9WgXcQ"))
	assert.Equal(t, map[string]string{"room_id": "room", "url": "https://youtu.be/dQw4w9WgXcQ"}, got)

	_, err = NewURLStore("://bad", time.Second)
	assert.Error(t, err)
}
