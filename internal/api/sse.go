package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/intermernet/relayrace/internal/realtime"
)

// pingData is the payload of keep-alive events.
var pingData = []byte("{}")

// handleSSE streams personal records to a dashboard as Server-Sent Events.
// A ping event is sent every PingInterval so idle proxies keep the
// connection open.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorJSON(w, fmt.Errorf("streaming unsupported"), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	id, events := s.broker.Subscribe()
	defer s.broker.Unsubscribe(id)

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	log.Debug().Int64("subscriber", id).Msg("event stream opened")
	fmt.Fprint(w, "retry: 5000\n\n")
	flusher.Flush()

	for {
		select {
		case e, open := <-events:
			if !open {
				return
			}
			writeSSE(w, e.Name, e.Data)
			flusher.Flush()
		case <-ticker.C:
			writeSSE(w, realtime.EventPing, pingData)
			flusher.Flush()
		case <-r.Context().Done():
			log.Debug().Int64("subscriber", id).Msg("event stream closed")
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, name string, data []byte) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}
