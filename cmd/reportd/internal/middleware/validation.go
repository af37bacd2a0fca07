package middleware

import (
	"encoding/json"
	"mime"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ValidationMiddleware performs basic input validation for common params
type ValidationMiddleware struct {
	logger *zap.Logger
}

func NewValidationMiddleware(logger *zap.Logger) *ValidationMiddleware {
	return &ValidationMiddleware{logger: logger}
}

func (vm *ValidationMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		// Validate by route. Keep this minimal and fast.
		switch {
		case method == http.MethodPost && (path == "/api/v1/render" || path == "/api/v1/reports"):
			if !vm.validateJSONContentType(w, r) {
				return
			}

		case method == http.MethodGet && path == "/api/v1/reports":
			if !vm.validatePagination(w, r, 1, 100) {
				return
			}

		case method == http.MethodGet && strings.HasPrefix(path, "/api/v1/reports/"):
			if !vm.validatePathUUID(w, r) {
				return
			}
			if strings.HasSuffix(path, "/render") && !vm.validateOptionalKind(w, r) {
				return
			}

		case strings.HasPrefix(path, "/api/v1/render/ws"):
			if !vm.validateOptionalReportID(w, r) {
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// --- helpers ---

var kindRe = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

func (vm *ValidationMiddleware) validateJSONContentType(w http.ResponseWriter, r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		vm.sendBadRequest(w, "Content-Type is required")
		return false
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil || mediaType != "application/json" {
		vm.sendBadRequest(w, "Content-Type must be application/json")
		return false
	}
	return true
}

func (vm *ValidationMiddleware) validatePathUUID(w http.ResponseWriter, r *http.Request) bool {
	id := r.PathValue("id")
	if id == "" {
		vm.sendBadRequest(w, "Report ID required")
		return false
	}
	if _, err := uuid.Parse(id); err != nil {
		vm.sendBadRequest(w, "Invalid report ID format")
		return false
	}
	return true
}

func (vm *ValidationMiddleware) validateOptionalReportID(w http.ResponseWriter, r *http.Request) bool {
	id := r.URL.Query().Get("report_id")
	if id == "" {
		return true
	}
	if _, err := uuid.Parse(id); err != nil {
		vm.sendBadRequest(w, "Invalid report_id format")
		return false
	}
	return true
}

func (vm *ValidationMiddleware) validateOptionalKind(w http.ResponseWriter, r *http.Request) bool {
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		return true
	}
	if !kindRe.MatchString(kind) {
		vm.sendBadRequest(w, "Invalid kind value")
		return false
	}
	return true
}

func (vm *ValidationMiddleware) validatePagination(w http.ResponseWriter, r *http.Request, minLimit, maxLimit int) bool {
	q := r.URL.Query()
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < minLimit || n > maxLimit {
			vm.sendBadRequest(w, "Invalid limit parameter")
			return false
		}
	}
	return true
}

func (vm *ValidationMiddleware) sendBadRequest(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
