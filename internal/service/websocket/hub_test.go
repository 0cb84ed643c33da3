package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"livedetect/internal/logger"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func startHub(t *testing.T, received chan<- string) (*HubService, string) {
	t.Helper()

	hub := NewHubService(logger.NewDiscard())
	hub.OnConnect(func(c *Client) {
		c.Send([]byte("hello"))
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := hub.NewClient(conn)
		client.Serve(func(msg []byte) {
			if received != nil {
				received <- string(msg)
			}
		})
	}))
	t.Cleanup(server.Close)

	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return string(msg)
}

func waitForCount(t *testing.T, hub *HubService, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.GetClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d clients, got %d", want, hub.GetClientCount())
}

func TestHubOnConnectRunsBeforeBroadcast(t *testing.T) {
	hub, url := startHub(t, nil)

	conn := dial(t, url)
	if got := readText(t, conn); got != "hello" {
		t.Fatalf("expected greeting first, got %q", got)
	}

	waitForCount(t, hub, 1)
	hub.Broadcast([]byte("frame"))
	if got := readText(t, conn); got != "frame" {
		t.Errorf("expected broadcast, got %q", got)
	}
}

func TestHubBroadcastReachesAllViewers(t *testing.T) {
	hub, url := startHub(t, nil)

	first := dial(t, url)
	second := dial(t, url)
	readText(t, first)
	readText(t, second)
	waitForCount(t, hub, 2)

	hub.Broadcast([]byte("status"))
	for i, conn := range []*websocket.Conn{first, second} {
		if got := readText(t, conn); got != "status" {
			t.Errorf("viewer %d: expected status, got %q", i, got)
		}
	}
}

func TestHubDeliversInboundMessages(t *testing.T) {
	received := make(chan string, 1)
	_, url := startHub(t, received)

	conn := dial(t, url)
	readText(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"stop"}`)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case msg := <-received:
		if msg != `{"type":"stop"}` {
			t.Errorf("unexpected message %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	hub, url := startHub(t, nil)

	conn := dial(t, url)
	readText(t, conn)
	waitForCount(t, hub, 1)

	conn.Close()
	waitForCount(t, hub, 0)
}

func TestHubWaitForViewer(t *testing.T) {
	hub, url := startHub(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := hub.WaitForViewer(ctx); err == nil {
		t.Fatal("expected timeout with no viewers")
	}

	dial(t, url)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	if err := hub.WaitForViewer(ctx2); err != nil {
		t.Fatalf("expected viewer, got %v", err)
	}
}

func TestHubBroadcastAfterStopDoesNotBlock(t *testing.T) {
	hub := NewHubService(logger.NewDiscard())
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	done := make(chan struct{})
	go func() {
		for i := 0; i < sendQueueSize*2; i++ {
			hub.Broadcast([]byte("late"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked after hub stopped")
	}
}
