package server

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// Origin policy is owned by the fronting proxy that also terminates auth;
// the relay accepts any upgrade and waits for a join event to bind identity.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// serveWs handles websocket upgrade requests on "/ws" endpoint and hands the
// connection over to the relay hub
func (h *handler) serveWs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("websocket upgrade failed: %v", err)
		return
	}

	h.hub.HandleConn(conn)
}
