package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const wsWriteTimeout = 10 * time.Second

// HandleWebSocket streams bus events (instance closures, pass summaries)
// to a connected client as JSON messages.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}
	defer conn.Close()

	ch, cancel := h.bus.Subscribe()
	defer cancel()

	// Drain client frames so close handshakes and pings are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Debug().Str("client_ip", r.RemoteAddr).Msg("Websocket subscriber connected")

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				log.Debug().Err(err).Msg("Websocket write failed, dropping subscriber")
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
