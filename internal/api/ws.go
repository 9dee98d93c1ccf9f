package api

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/intermernet/relayrace/internal/realtime"
)

const (
	wsWriteWait = 10 * time.Second
	wsReadLimit = 512
)

// allowedOrigin accepts the configured frontend, localhost and clients that
// send no Origin header at all.
func (s *Server) allowedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, s.config.ParsedFrontendURL.Host) {
		return true
	}
	return u.Hostname() == "localhost" || u.Hostname() == "127.0.0.1"
}

// handleWebSocket is the WebSocket flavour of the event stream. Frames are
// JSON `{"event": "...", "data": ...}`; anything the client sends is ignored.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.allowedOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	id, events := s.broker.Subscribe()
	defer s.broker.Unsubscribe(id)
	log.Debug().Int64("subscriber", id).Msg("websocket opened")

	// The read loop only exists to notice the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(wsReadLimit)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	send := func(e realtime.Event) bool {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(e); err != nil {
			log.Debug().Err(err).Int64("subscriber", id).Msg("websocket write failed")
			return false
		}
		return true
	}

	for {
		select {
		case e, open := <-events:
			if !open || !send(e) {
				return
			}
		case <-ticker.C:
			if !send(realtime.Event{Name: realtime.EventPing, Data: pingData}) {
				return
			}
		case <-closed:
			log.Debug().Int64("subscriber", id).Msg("websocket closed")
			return
		case <-r.Context().Done():
			return
		}
	}
}
