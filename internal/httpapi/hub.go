package httpapi

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// ProgressEvent is one step of a compile run, broadcast to every
// connected websocket client (SPEC_FULL.md §4.12: "streams
// compile-progress events... while a directory is being (re-)compiled
// in watch mode").
type ProgressEvent struct {
	Machine string `json:"machine"`
	Stage   string `json:"stage"`
	Detail  string `json:"detail,omitempty"`
	Error   string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The inspector is a same-origin developer tool; origin checking is
	// left to whatever reverse proxy fronts it in a real deployment.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// progressHub fans ProgressEvents out to every connected websocket
// client. A slow client misses events rather than blocking the
// broadcaster; a gone client is removed once a write to it fails.
type progressHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan ProgressEvent
}

func newProgressHub() *progressHub {
	return &progressHub{clients: make(map[*websocket.Conn]chan ProgressEvent)}
}

func (h *progressHub) serveWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	ch := make(chan ProgressEvent, 16)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	for event := range ch {
		if err := conn.WriteJSON(event); err != nil {
			return err
		}
	}
	return nil
}

// broadcast sends event to every currently connected client, dropping
// it for any client whose buffer is already full rather than blocking
// the compile path on a stalled websocket.
func (h *progressHub) broadcast(event ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.clients {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *progressHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		close(ch)
		conn.Close()
		delete(h.clients, conn)
	}
}
