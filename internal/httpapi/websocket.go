package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/clearcite/reportd/internal/config"
	"github.com/clearcite/reportd/internal/metrics"
	"github.com/clearcite/reportd/internal/render"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true }, // Dev-friendly, secure via proxy in prod
}

// LiveRenderHandler serves the live render channel: clients push draft
// reports over one websocket and get annotated sections back per message.
// Editors use it to re-render while a report is being written.
type LiveRenderHandler struct {
	renderer *render.Renderer
	cfg      config.LiveConfig
	logger   *zap.Logger
}

// NewLiveRenderHandler creates a new live render handler
func NewLiveRenderHandler(renderer *render.Renderer, cfg config.LiveConfig, logger *zap.Logger) *LiveRenderHandler {
	if cfg.RendersPerSecond <= 0 {
		cfg.RendersPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	return &LiveRenderHandler{renderer: renderer, cfg: cfg, logger: logger}
}

type wsErrorFrame struct {
	Error string `json:"error"`
}

// HandleWS handles GET /api/v1/render/ws
func (h *LiveRenderHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	metrics.WSSessionsActive.Inc()
	defer metrics.WSSessionsActive.Dec()

	// Per-connection limiter so one editor cannot starve the rest
	limiter := rate.NewLimiter(rate.Limit(h.cfg.RendersPerSecond), h.cfg.Burst)

	conn.SetReadLimit(8 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	// Heartbeat ping; WriteControl is safe alongside WriteJSON
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		var in render.Input
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("Live render connection closed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		if !limiter.Allow() {
			metrics.WSRendersTotal.WithLabelValues("rate_limited").Inc()
			if err := conn.WriteJSON(wsErrorFrame{Error: "render rate exceeded, slow down"}); err != nil {
				return
			}
			continue
		}

		result, err := h.renderer.Render(r.Context(), in)
		if err != nil {
			metrics.WSRendersTotal.WithLabelValues("error").Inc()
			msg := "render failed"
			if errors.Is(err, render.ErrTextTooLarge) {
				msg = "report text exceeds size limit"
			}
			if err := conn.WriteJSON(wsErrorFrame{Error: msg}); err != nil {
				return
			}
			continue
		}

		metrics.WSRendersTotal.WithLabelValues("ok").Inc()
		if err := conn.WriteJSON(result); err != nil {
			return
		}
	}
}
