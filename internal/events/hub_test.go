package events

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.Run(ctx) }()

	r := gin.New()
	r.GET("/__events", WSHandler(hub))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/__events"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func TestHub_BroadcastReachesClient(t *testing.T) {
	hub, url := startHub(t)
	ws := dial(t, url)

	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	hub.BroadcastJSON(MirrorEvent{Type: MirrorUpdated, Commit: "bbb", Previous: "aaa", At: at})

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got MirrorEvent
	require.NoError(t, ws.ReadJSON(&got))
	assert.Equal(t, MirrorUpdated, got.Type)
	assert.Equal(t, "bbb", got.Commit)
	assert.Equal(t, "aaa", got.Previous)
	assert.True(t, at.Equal(got.At))

	ws.Close()
	require.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	hub := NewHub()
	hub.BroadcastJSON(MirrorEvent{Type: MirrorUpdated})
	assert.Equal(t, 0, hub.Count())
}

func TestHub_BroadcastDoesNotWaitForClients(t *testing.T) {
	hub, url := startHub(t)
	// never reads, so its socket buffers eventually fill
	dial(t, url)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	payload := MirrorEvent{Type: MirrorUpdated, Commit: strings.Repeat("c", 64<<10)}
	start := time.Now()
	for i := 0; i < 4*queueSize; i++ {
		hub.BroadcastJSON(payload)
	}
	assert.Less(t, time.Since(start), writeWait)
}

func TestHub_BroadcastHoldsNoLockDuringWrites(t *testing.T) {
	hub, url := startHub(t)
	dial(t, url)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	for i := 0; i < 4*queueSize; i++ {
		hub.BroadcastJSON(MirrorEvent{Type: MirrorUpdated, Commit: strings.Repeat("c", 64<<10)})
	}

	// a second client can register while writes to the first are pending
	dial(t, url)
	require.Eventually(t, func() bool { return hub.Count() == 2 }, writeWait, 10*time.Millisecond)
}

func TestHub_RunStopsOnCancel(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	hub.BroadcastJSON(MirrorEvent{Type: MirrorUpdated})
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
