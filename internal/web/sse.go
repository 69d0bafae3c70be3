package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/roasbeef/planloop/internal/review"
)

// heartbeatInterval is the cadence of keepalive frames on an event
// stream connection.
const heartbeatInterval = 30 * time.Second

// handleEventStream serves GET /api/reviews/{id}/events: a long-lived
// server-sent event stream. The first frame is always `connected` with
// the full review snapshot; subsequent frames relay bus events until
// the client disconnects or a write fails.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	reviewID := chi.URLParam(r, "reviewID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "streaming unsupported",
		})
		return
	}

	// Subscribe before taking the snapshot so no event published after
	// the snapshot is missed.
	sub := s.bus.Subscribe(reviewID)
	defer sub.Cancel()

	snapshot, err := s.svc.Engine().Get(r.Context(), reviewID, "")
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	s.activeStreams.Add(1)
	defer s.activeStreams.Add(-1)

	s.log.Info("event stream connected", "review_id", reviewID)
	defer s.log.Info("event stream closed", "review_id", reviewID)

	writeFrame := func(ev review.Event) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}

		_, err = fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n",
			ev.EventType(), time.Now().UnixMilli(), data)
		if err != nil {
			return err
		}

		flusher.Flush()
		return nil
	}

	if err := writeFrame(review.ConnectedEvent{Review: snapshot}); err != nil {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		// Graceful shutdown: http.Server.Shutdown waits for in-flight
		// handlers but never cancels their request contexts, so the
		// loop has to watch the server's quit signal itself.
		case <-s.quit:
			return

		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeFrame(ev); err != nil {
				return
			}

		case <-heartbeat.C:
			ev := review.HeartbeatEvent{
				Timestamp: time.Now().UnixMilli(),
			}
			if err := writeFrame(ev); err != nil {
				return
			}
		}
	}
}
