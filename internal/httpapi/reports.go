package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearcite/reportd/internal/annotate"
	"github.com/clearcite/reportd/internal/db"
	"github.com/clearcite/reportd/internal/export"
	"github.com/clearcite/reportd/internal/metrics"
	"github.com/clearcite/reportd/internal/render"
)

// ReportStore is the slice of the database client the handlers need.
type ReportStore interface {
	SaveReport(ctx context.Context, report *db.Report) error
	GetReport(ctx context.Context, id uuid.UUID) (*db.Report, error)
	ListRecentReports(ctx context.Context, limit int) ([]db.Report, error)
}

// ReportsHandler handles stored-report HTTP requests
type ReportsHandler struct {
	store    ReportStore
	renderer *render.Renderer
	logger   *zap.Logger
	maxBody  int64
}

// NewReportsHandler creates a new reports handler
func NewReportsHandler(store ReportStore, renderer *render.Renderer, maxBody int64, logger *zap.Logger) *ReportsHandler {
	if maxBody <= 0 {
		maxBody = 4 << 20
	}
	return &ReportsHandler{
		store:    store,
		renderer: renderer,
		logger:   logger,
		maxBody:  maxBody,
	}
}

// CreateReportRequest represents a report submission
type CreateReportRequest struct {
	Title       string            `json:"title"`
	ReportType  string            `json:"report_type,omitempty"`
	Model       string            `json:"model,omitempty"`
	RawText     string            `json:"raw_text"`
	Cached      bool              `json:"cached,omitempty"`
	GeneratedAt *time.Time        `json:"generated_at,omitempty"`
	Sources     []db.ReportSource `json:"sources,omitempty"`
}

// CreateReport handles POST /api/v1/reports
func (h *ReportsHandler) CreateReport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	var req CreateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.sendError(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.sendError(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if req.Title == "" {
		h.sendError(w, "Title is required", http.StatusBadRequest)
		return
	}
	if req.RawText == "" {
		h.sendError(w, "Raw text is required", http.StatusBadRequest)
		return
	}
	if req.ReportType == "" {
		req.ReportType = "fact_check"
	}

	report := &db.Report{
		Title:       req.Title,
		ReportType:  req.ReportType,
		Model:       req.Model,
		RawText:     req.RawText,
		Cached:      req.Cached,
		GeneratedAt: req.GeneratedAt,
		Sources:     req.Sources,
	}

	// Reports are the durable record, so this write stays synchronous.
	if err := h.store.SaveReport(r.Context(), report); err != nil {
		h.logger.Error("Failed to save report", zap.Error(err))
		h.sendError(w, "Failed to save report", http.StatusInternalServerError)
		return
	}
	metrics.ReportsSaved.WithLabelValues("created").Inc()

	h.logger.Info("Report created",
		zap.String("report_id", report.ID.String()),
		zap.String("report_type", report.ReportType),
		zap.Int("sources", len(report.Sources)),
	)

	h.sendJSON(w, http.StatusCreated, report)
}

// GetReport handles GET /api/v1/reports/{id}
func (h *ReportsHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadReport(w, r)
	if !ok {
		return
	}
	h.sendJSON(w, http.StatusOK, report)
}

// ListReports handles GET /api/v1/reports
func (h *ReportsHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		fmt.Sscanf(l, "%d", &limit)
	}

	reports, err := h.store.ListRecentReports(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list reports", zap.Error(err))
		h.sendError(w, "Failed to list reports", http.StatusInternalServerError)
		return
	}

	h.sendJSON(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
		"count":   len(reports),
	})
}

// RenderReport handles GET /api/v1/reports/{id}/render
func (h *ReportsHandler) RenderReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadReport(w, r)
	if !ok {
		return
	}

	kind := report.ReportType
	if k := r.URL.Query().Get("kind"); k != "" {
		kind = k
	}

	id := report.ID.String()
	result, err := h.renderer.Render(r.Context(), render.Input{
		Text:        report.RawText,
		Assessments: assessmentsFromSources(report.Sources),
		Kind:        kind,
		ReportID:    &id,
	})
	if err != nil {
		if errors.Is(err, render.ErrTextTooLarge) {
			h.sendError(w, "Report text exceeds size limit", http.StatusRequestEntityTooLarge)
			return
		}
		h.logger.Error("Render failed", zap.String("report_id", id), zap.Error(err))
		h.sendError(w, "Render failed", http.StatusInternalServerError)
		return
	}

	h.sendJSON(w, http.StatusOK, result)
}

// ExportReport handles GET /api/v1/reports/{id}/export
func (h *ReportsHandler) ExportReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadReport(w, r)
	if !ok {
		return
	}

	generated := report.CreatedAt
	if report.GeneratedAt != nil {
		generated = *report.GeneratedAt
	}

	// Exports carry the unannotated original; the annotated form is for
	// display and clipboard only.
	doc := export.Document(export.Metadata{
		GeneratedAt: generated,
		AIGenerated: true,
		Model:       report.Model,
		ReportType:  report.ReportType,
		Cached:      report.Cached,
	}, report.RawText, exportSources(report.Sources))

	metrics.ExportsBuilt.Inc()
	h.logger.Info("Report exported",
		zap.String("report_id", report.ID.String()),
		zap.Int("bytes", len(doc)),
	)

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "report-"+report.ID.String()+".md"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

// loadReport resolves the {id} path value to a stored report
func (h *ReportsHandler) loadReport(w http.ResponseWriter, r *http.Request) (*db.Report, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.sendError(w, "Invalid report ID", http.StatusBadRequest)
		return nil, false
	}

	report, err := h.store.GetReport(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.sendError(w, "Report not found", http.StatusNotFound)
			return nil, false
		}
		h.logger.Error("Failed to load report", zap.String("report_id", id.String()), zap.Error(err))
		h.sendError(w, "Failed to load report", http.StatusInternalServerError)
		return nil, false
	}
	return report, true
}

func assessmentsFromSources(sources []db.ReportSource) []annotate.SourceAssessment {
	if len(sources) == 0 {
		return nil
	}
	out := make([]annotate.SourceAssessment, len(sources))
	for i, s := range sources {
		out[i] = annotate.SourceAssessment{URL: s.URL, Index: s.Idx}
	}
	return out
}

func exportSources(sources []db.ReportSource) []export.Source {
	if len(sources) == 0 {
		return nil
	}
	out := make([]export.Source, len(sources))
	for i, s := range sources {
		out[i] = export.Source{Index: s.Idx, URL: s.URL}
	}
	return out
}

// sendJSON writes a JSON response
func (h *ReportsHandler) sendJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// sendError sends an error response
func (h *ReportsHandler) sendError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
