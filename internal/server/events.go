package server

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/giantswarm/llm-judge/internal/judge"
)

const eventsPingInterval = 30 * time.Second

// events streams run events over a websocket. The current state is sent
// first; client messages are ignored.
func (h *apiHandler) events(w http.ResponseWriter, r *http.Request) {
	if h.sc.Coordinator == nil {
		writeError(w, http.StatusServiceUnavailable, "run coordinator is not configured")
		return
	}

	// The stream outlives the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.sc.logger().Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	events, unsubscribe := h.sc.Coordinator.Subscribe(0)
	defer unsubscribe()

	// CloseRead cancels ctx once the client goes away.
	ctx := conn.CloseRead(r.Context())

	snap := h.sc.Coordinator.State()
	if err := wsjson.Write(ctx, conn, judge.RunEvent{Type: judge.RunEventState, RunID: snap.RunID, State: &snap}); err != nil {
		return
	}

	ticker := time.NewTicker(eventsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				return
			}
		}
	}
}
