package httpapi

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/r3e-network/sfnc/infrastructure/testutil"
)

func TestProgressHubBroadcastsToConnectedClient(t *testing.T) {
	hub := newProgressHub()
	defer hub.close()

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		if err := hub.serveWS(w, r); err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			t.Logf("serveWS: %v", err)
		}
	})

	srv := testutil.NewHTTPTestServer(t, mux)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give serveWS a moment to register the connection before broadcasting.
	time.Sleep(20 * time.Millisecond)
	hub.broadcast(ProgressEvent{Machine: "deposit", Stage: "done"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event ProgressEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read: %v", err)
	}

	if event.Machine != "deposit" || event.Stage != "done" {
		t.Fatalf("event = %+v, want machine=deposit stage=done", event)
	}
}

func TestProgressHubDropsEventForDisconnectedClient(t *testing.T) {
	hub := newProgressHub()
	hub.broadcast(ProgressEvent{Machine: "noone", Stage: "done"})
	if len(hub.clients) != 0 {
		t.Fatalf("expected no clients, got %d", len(hub.clients))
	}
}
