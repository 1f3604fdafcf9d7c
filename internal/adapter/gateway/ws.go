package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"uplevel-orchestrator/internal/domain"
)

// handleWS streams orchestrator events to the client as JSON frames. A slow
// consumer is disconnected rather than allowed to back-pressure dispatch.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	sendCh := make(chan domain.Event, 64)

	unsubscribe := s.bus.SubscribeAll(func(_ context.Context, event domain.Event) {
		select {
		case sendCh <- event:
		default:
			// Buffer full; drop rather than block the publisher.
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-sendCh:
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
