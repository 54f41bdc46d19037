package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamWriteWait    = 5 * time.Second
	streamPingInterval = 20 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API is served on a local network without browser sessions.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// parseTypes reads a "GGA,RMC" style filter. nil means all types.
func parseTypes(q string) map[string]bool {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil
	}
	out := map[string]bool{}
	for _, t := range strings.Split(q, ",") {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			out[t] = true
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// streamHandler upgrades to a WebSocket and writes one JSON message per
// decoded sentence. ?types=GGA,RMC limits the stream to those types.
func streamHandler(hub *Hub) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if hub == nil {
			http.Error(w, "stream unavailable", http.StatusNotFound)
			return
		}
		filter := parseTypes(r.URL.Query().Get("types"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already replied with an HTTP error.
			return
		}
		defer conn.Close()

		id, ch := hub.Subscribe(64)
		defer hub.Unsubscribe(id)

		// Clients only send control frames; reading processes them and
		// notices when the peer goes away.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.NextReader(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(streamPingInterval)
		defer ping.Stop()

		for {
			select {
			case <-gone:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if filter != nil && !filter[msg.Type] {
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
					return
				}
			}
		}
	})
}
