package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// DefaultStreamInterval is the minimum gap between progress pushes.
const DefaultStreamInterval = 250 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return localOrigin(r.Header.Get("Origin")) },
}

// ProgressStream serves GET /ws/progress. A snapshot is sent on connect and
// then whenever it changes, never faster than the stream interval.
func (h *Handlers) ProgressStream(interval time.Duration) http.HandlerFunc {
	if interval <= 0 {
		interval = DefaultStreamInterval
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug().Err(err).Msg("Websocket upgrade failed")
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// The client only ever closes; reading surfaces that.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		limiter := rate.NewLimiter(rate.Every(interval), 1)
		var last time.Time
		sent := false
		for {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			snap := h.Progress.Snapshot()
			if sent && snap.UpdatedAt.Equal(last) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(snap); err != nil {
				log.Debug().Err(err).Msg("Progress stream closed")
				return
			}
			last, sent = snap.UpdatedAt, true
		}
	}
}
