package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"skyvault.gg/internal/protocol"
	"skyvault.gg/internal/transport/ws"
)

func TestFirehose_LoginThenEvents(t *testing.T) {
	got := make(chan []byte, 16)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			got <- msg
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	fh := ws.NewFirehose(url, "skyvault-test", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fh.Run(ctx)

	fh.Publish(protocol.EventMsg{URL: "https://api.example.test/v2/player", Data: json.RawMessage(`{"success":true}`)})

	read := func() map[string]any {
		t.Helper()
		select {
		case msg := <-got:
			var m map[string]any
			if err := json.Unmarshal(msg, &m); err != nil {
				t.Fatalf("unmarshal %q: %v", msg, err)
			}
			return m
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for message")
			return nil
		}
	}

	login := read()
	if login["method"] != "login" || login["content"] != "skyvault-test" {
		t.Fatalf("login=%v", login)
	}
	event := read()
	if event["method"] != "event" || event["url"] != "https://api.example.test/v2/player" {
		t.Fatalf("event=%v", event)
	}
}

func TestFirehose_QueueBound(t *testing.T) {
	// Never connected; everything queues until the cap, then drops.
	fh := ws.NewFirehose("ws://127.0.0.1:1/nope", "skyvault-test", nil)
	for i := 0; i < 1500; i++ {
		fh.Publish(protocol.EventMsg{URL: "u", Data: json.RawMessage(`{}`)})
	}
	if d := fh.Dropped(); d != 500 {
		t.Fatalf("dropped=%d, want 500", d)
	}
}
