package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clearcite/reportd/internal/db"
)

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	store  *db.Client
	redis  *redis.Client
	logger *zap.Logger
}

// NewHealthHandler creates a new health handler. Either dependency may be
// nil; readiness only checks what is wired.
func NewHealthHandler(store *db.Client, redisClient *redis.Client, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{store: store, redis: redisClient, logger: logger}
}

// Health handles GET /health (liveness)
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Readiness handles GET /readiness: verifies backing stores answer
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if h.store != nil {
		if err := h.store.GetDB().PingContext(ctx); err != nil {
			h.logger.Warn("Readiness: database unreachable", zap.Error(err))
			checks["database"] = "unreachable"
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			h.logger.Warn("Readiness: redis unreachable", zap.Error(err))
			checks["redis"] = "unreachable"
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	status := "ready"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}
