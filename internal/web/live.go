package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"a9g-tracker/internal/gps"
)

const (
	liveWriteWait  = 5 * time.Second
	livePingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The page is served from the tracker itself; LAN clients only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// liveHandler pushes every published gps snapshot as a JSON text frame,
// starting with the current one.
func liveHandler(src GPSSource, log *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if src == nil {
			http.Error(w, "gps unavailable", http.StatusNotFound)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debugw("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		ch, cancel := src.Subscribe()
		defer cancel()

		// Drain client frames so close and pong are processed.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		send := func(snap gps.Snapshot) error {
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			return conn.WriteJSON(snap)
		}
		if err := send(src.Snapshot()); err != nil {
			return
		}

		ping := time.NewTicker(livePingPeriod)
		defer ping.Stop()
		for {
			select {
			case <-gone:
				return
			case snap, ok := <-ch:
				if !ok {
					return
				}
				if err := send(snap); err != nil {
					log.Debugw("live client write failed", "error", err)
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
					return
				}
			}
		}
	}
}
