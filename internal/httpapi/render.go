package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/clearcite/reportd/internal/render"
)

// RenderHandler handles ad-hoc render requests
type RenderHandler struct {
	renderer *render.Renderer
	logger   *zap.Logger
	maxBody  int64
}

// NewRenderHandler creates a new render handler. maxBody caps the JSON
// request body; zero means 4 MiB.
func NewRenderHandler(renderer *render.Renderer, maxBody int64, logger *zap.Logger) *RenderHandler {
	if maxBody <= 0 {
		maxBody = 4 << 20
	}
	return &RenderHandler{
		renderer: renderer,
		logger:   logger,
		maxBody:  maxBody,
	}
}

// Render handles POST /api/v1/render
func (h *RenderHandler) Render(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	var req render.Input
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.sendError(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.sendError(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if req.Text == "" {
		h.sendError(w, "Text is required", http.StatusBadRequest)
		return
	}

	result, err := h.renderer.Render(r.Context(), req)
	if err != nil {
		if errors.Is(err, render.ErrTextTooLarge) {
			h.sendError(w, "Report text exceeds size limit", http.StatusRequestEntityTooLarge)
			return
		}
		h.logger.Error("Render failed", zap.Error(err))
		h.sendError(w, "Render failed", http.StatusInternalServerError)
		return
	}

	h.sendJSON(w, http.StatusOK, result)
}

// sendJSON writes a JSON response
func (h *RenderHandler) sendJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// sendError sends an error response
func (h *RenderHandler) sendError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
