package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/viego-wallet/viego-backend/internal/controls"
)

const (
	pushWriteWait  = 10 * time.Second
	pushPongWait   = 90 * time.Second
	pushPingPeriod = 45 * time.Second
)

var pushUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// pushConn serialises writes; gorilla connections allow one writer at a
// time and both the hub and the ping loop write.
type pushConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *pushConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(pushWriteWait))
	return c.conn.WriteJSON(v)
}

func (c *pushConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pushWriteWait))
}

func (c *pushConn) Close() error { return c.conn.Close() }

// Notifications handles GET /ws/notifications?user_id=... The connection
// only receives; anything the client sends is read and dropped so pongs
// and close frames get processed.
func (h *Handlers) Notifications(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("user_id")
	if id == "" {
		fail(w, http.StatusBadRequest, controls.KindRejected, "user_id is required")
		return
	}
	if _, err := h.Profiles.Get(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	ws, err := pushUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn := &pushConn{conn: ws}
	h.Hub.Register(id, conn)
	defer func() {
		h.Hub.Unregister(id, conn)
		conn.Close()
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pushPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.ping(); err != nil {
					return
				}
			}
		}
	}()

	ws.SetReadLimit(4 * 1024)
	ws.SetReadDeadline(time.Now().Add(pushPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pushPongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}
