package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsNode is a fake logs endpoint. serve runs once per accepted connection
// with the zero-based connection number.
func wsNode(t *testing.T, serve func(conn int32, c *websocket.Conn)) string {
	t.Helper()
	var conns atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		serve(conns.Add(1)-1, c)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// drain reads until the peer goes away.
func drain(c *websocket.Conn) {
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

// confirm reads a logsSubscribe request and answers with subID.
func confirm(t *testing.T, c *websocket.Conn, subID int64) []json.RawMessage {
	t.Helper()
	var req struct {
		ID     uint64            `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := c.ReadJSON(&req); err != nil {
		return nil
	}
	if req.Method != "logsSubscribe" {
		t.Errorf("method = %s, want logsSubscribe", req.Method)
	}
	c.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": subID})
	return req.Params
}

func notify(c *websocket.Conn, subID, slot int64, sig string, txErr any) error {
	return c.WriteJSON(map[string]any{
		"jsonrpc": "2.0",
		"method":  "logsNotification",
		"params": map[string]any{
			"subscription": subID,
			"result": map[string]any{
				"context": map[string]any{"slot": slot},
				"value": map[string]any{
					"signature": sig,
					"logs":      []string{"Program log: Instruction: Create"},
					"err":       txErr,
				},
			},
		},
	})
}

func receive(t *testing.T, ch <-chan LogNotification) LogNotification {
	t.Helper()
	select {
	case n, ok := <-ch:
		if !ok {
			t.Fatal("subscription channel closed")
		}
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
	return LogNotification{}
}

func TestSubscribeLogsDeliversNotifications(t *testing.T) {
	paramsCh := make(chan []json.RawMessage, 1)
	url := wsNode(t, func(_ int32, c *websocket.Conn) {
		paramsCh <- confirm(t, c, 42)
		notify(c, 42, 100, "sig-ok", nil)
		notify(c, 42, 101, "sig-failed", map[string]any{"InstructionError": []any{0, "Custom"}})
		drain(c)
	})

	client, err := NewWSClient(context.Background(), url, &WSClientConfig{Commitment: "processed"}, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SubscribeLogs(context.Background(), LogsFilter{Mentions: []string{"ProgramA"}})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}

	params := <-paramsCh
	if len(params) != 2 {
		t.Fatalf("params = %d, want 2", len(params))
	}
	if !strings.Contains(string(params[0]), `"mentions":["ProgramA"]`) {
		t.Errorf("filter = %s", params[0])
	}
	if !strings.Contains(string(params[1]), `"commitment":"processed"`) {
		t.Errorf("config = %s", params[1])
	}

	ok := receive(t, ch)
	if ok.Signature != "sig-ok" || ok.Slot != 100 || len(ok.Logs) != 1 || ok.Failed() {
		t.Errorf("first notification = %+v", ok)
	}
	if ok.Mention != "ProgramA" {
		t.Errorf("Mention = %q, want ProgramA", ok.Mention)
	}
	if failed := receive(t, ch); !failed.Failed() {
		t.Errorf("second notification should be failed: %+v", failed)
	}
}

func TestSubscribeAllWithoutMentions(t *testing.T) {
	paramsCh := make(chan []json.RawMessage, 1)
	url := wsNode(t, func(_ int32, c *websocket.Conn) {
		paramsCh <- confirm(t, c, 1)
		drain(c)
	})

	client, err := NewWSClient(context.Background(), url, nil, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	if _, err := client.SubscribeLogs(context.Background(), LogsFilter{}); err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}
	if params := <-paramsCh; string(params[0]) != `"all"` {
		t.Errorf("filter = %s, want \"all\"", params[0])
	}
}

func TestReconnectResubscribes(t *testing.T) {
	url := wsNode(t, func(conn int32, c *websocket.Conn) {
		if conn == 0 {
			confirm(t, c, 7)
			time.Sleep(50 * time.Millisecond)
			return // drop the first connection
		}
		confirm(t, c, 8)
		notify(c, 8, 500, "sig-after-reconnect", nil)
		drain(c)
	})

	cfg := &WSClientConfig{ReconnectDelay: 10 * time.Millisecond, MaxReconnectDelay: 50 * time.Millisecond}
	client, err := NewWSClient(context.Background(), url, cfg, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SubscribeLogs(context.Background(), LogsFilter{Mentions: []string{"ProgramA"}})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}

	n := receive(t, ch)
	if n.Signature != "sig-after-reconnect" || n.Slot != 500 {
		t.Errorf("notification = %+v", n)
	}
}

func TestFullBufferDropsInsteadOfBlocking(t *testing.T) {
	url := wsNode(t, func(_ int32, c *websocket.Conn) {
		confirm(t, c, 3)
		for i := int64(0); i < 5; i++ {
			notify(c, 3, i, "sig", nil)
		}
		drain(c)
	})

	client, err := NewWSClient(context.Background(), url, &WSClientConfig{BufferSize: 1}, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SubscribeLogs(context.Background(), LogsFilter{Mentions: []string{"ProgramA"}})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for client.Dropped() < 4 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := client.Dropped(); got != 4 {
		t.Errorf("Dropped = %d, want 4", got)
	}
	if n := receive(t, ch); n.Slot != 0 {
		t.Errorf("buffered notification slot = %d, want 0", n.Slot)
	}
}

func TestCloseClosesSubscriptions(t *testing.T) {
	url := wsNode(t, func(_ int32, c *websocket.Conn) {
		confirm(t, c, 9)
		drain(c)
	})

	client, err := NewWSClient(context.Background(), url, nil, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	ch, err := client.SubscribeLogs(context.Background(), LogsFilter{Mentions: []string{"ProgramA"}})
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription channel not closed")
	}

	if _, err := client.SubscribeLogs(context.Background(), LogsFilter{}); err != ErrStreamClosed {
		t.Errorf("SubscribeLogs after Close = %v, want ErrStreamClosed", err)
	}
}

func TestSubscribeTimesOutWithoutConfirmation(t *testing.T) {
	url := wsNode(t, func(_ int32, c *websocket.Conn) { drain(c) })

	client, err := NewWSClient(context.Background(), url, &WSClientConfig{SubscribeTimeout: 50 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	if _, err := client.SubscribeLogs(context.Background(), LogsFilter{Mentions: []string{"ProgramA"}}); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := WSClientConfig{PingInterval: 5 * time.Second, ReconnectDelay: time.Second, MaxReconnectDelay: time.Millisecond}.withDefaults()
	def := DefaultWSConfig()

	if cfg.PingInterval != 5*time.Second {
		t.Errorf("PingInterval = %v, want 5s", cfg.PingInterval)
	}
	if cfg.MaxReconnectDelay != def.MaxReconnectDelay {
		t.Errorf("MaxReconnectDelay below ReconnectDelay should reset, got %v", cfg.MaxReconnectDelay)
	}
	if cfg.SubscribeTimeout != def.SubscribeTimeout || cfg.BufferSize != def.BufferSize || cfg.Commitment != DefaultCommitment {
		t.Errorf("zero values not defaulted: %+v", cfg)
	}
}
