package web

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const streamWriteTimeout = 5 * time.Second

// statusStream pushes the status snapshot to each websocket client on a
// fixed interval until the client goes away.
type statusStream struct {
	status   *Status
	interval time.Duration
	upgrader websocket.Upgrader
}

func (s *statusStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web ws upgrade failed remote=%s: %v", r.RemoteAddr, err)
		return
	}
	defer conn.Close()

	// Reads only detect the close; clients have nothing to say.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := conn.WriteJSON(s.status.Snapshot(time.Now().UTC())); err != nil {
			return
		}
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
