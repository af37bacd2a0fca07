package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// JSONB represents a jsonb column (stored as TEXT under sqlite3)
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}

	return json.Unmarshal(bytes, j)
}

// ErrNotFound is returned when a requested report does not exist.
var ErrNotFound = errors.New("report not found")

// Report is a stored fact-check report: the raw markdown plus the
// source list used to annotate it.
type Report struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Title       string     `db:"title" json:"title"`
	ReportType  string     `db:"report_type" json:"report_type"`
	Model       string     `db:"model" json:"model,omitempty"`
	RawText     string     `db:"raw_text" json:"raw_text"`
	Cached      bool       `db:"cached" json:"cached"`
	GeneratedAt *time.Time `db:"generated_at" json:"generated_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`

	// Sources are stored in report_sources, loaded alongside the row.
	Sources []ReportSource `db:"-" json:"sources,omitempty"`
}

// ReportSource is one cited URL with its bracket index.
type ReportSource struct {
	ReportID uuid.UUID `db:"report_id" json:"-"`
	Idx      int       `db:"idx" json:"index"`
	URL      string    `db:"url" json:"url"`
}

// RenderEvent is the audit record written for each render, queued
// through the async write path.
type RenderEvent struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	ReportID   *uuid.UUID `db:"report_id" json:"report_id,omitempty"`
	Kind       string     `db:"kind" json:"kind"`
	Outcome    string     `db:"outcome" json:"outcome"`
	Sections   int        `db:"sections" json:"sections"`
	Dropped    int        `db:"dropped" json:"dropped"`
	CacheHit   bool       `db:"cache_hit" json:"cache_hit"`
	DurationMs int64      `db:"duration_ms" json:"duration_ms"`
	Meta       JSONB      `db:"meta" json:"meta,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// SaveReport saves or updates a report and its source list (idempotent by id)
func (c *Client) SaveReport(ctx context.Context, report *Report) error {
	if report == nil {
		return nil
	}
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}

	return c.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		query := tx.Rebind(`
			INSERT INTO reports (
				id, title, report_type, model, raw_text, cached, generated_at, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title,
				report_type = EXCLUDED.report_type,
				model = EXCLUDED.model,
				raw_text = EXCLUDED.raw_text,
				cached = EXCLUDED.cached,
				generated_at = EXCLUDED.generated_at`)

		if _, err := tx.ExecContext(ctx, query,
			report.ID, report.Title, report.ReportType, nullIfEmpty(report.Model),
			report.RawText, report.Cached, report.GeneratedAt, report.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to save report: %w", err)
		}

		// Replace the source list wholesale; indexes may have been renumbered.
		if _, err := tx.ExecContext(ctx,
			tx.Rebind(`DELETE FROM report_sources WHERE report_id = ?`), report.ID,
		); err != nil {
			return fmt.Errorf("failed to clear report sources: %w", err)
		}

		insert := tx.Rebind(`INSERT INTO report_sources (report_id, idx, url) VALUES (?, ?, ?)`)
		for _, src := range report.Sources {
			if _, err := tx.ExecContext(ctx, insert, report.ID, src.Idx, src.URL); err != nil {
				return fmt.Errorf("failed to save report source %d: %w", src.Idx, err)
			}
		}
		return nil
	})
}

// GetReport loads a report with its sources
func (c *Client) GetReport(ctx context.Context, id uuid.UUID) (*Report, error) {
	var report Report
	query := c.db.Rebind(`
		SELECT id, title, report_type, COALESCE(model, '') AS model,
		       raw_text, cached, generated_at, created_at
		FROM reports WHERE id = ?`)
	if err := c.db.GetContext(ctx, &report, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load report: %w", err)
	}

	sources := c.db.Rebind(`
		SELECT report_id, idx, url FROM report_sources
		WHERE report_id = ? ORDER BY idx`)
	if err := c.db.SelectContext(ctx, &report.Sources, sources, id); err != nil {
		return nil, fmt.Errorf("failed to load report sources: %w", err)
	}

	return &report, nil
}

// ListRecentReports returns the newest reports without their raw text
func (c *Client) ListRecentReports(ctx context.Context, limit int) ([]Report, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var reports []Report
	query := c.db.Rebind(`
		SELECT id, title, report_type, COALESCE(model, '') AS model,
		       '' AS raw_text, cached, generated_at, created_at
		FROM reports ORDER BY created_at DESC LIMIT ?`)
	if err := c.db.SelectContext(ctx, &reports, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, nil
}

// SaveRenderEvent inserts a render audit row
func (c *Client) SaveRenderEvent(ctx context.Context, e *RenderEvent) error {
	if e == nil {
		return nil
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	query := c.db.Rebind(`
		INSERT INTO render_events (
			id, report_id, kind, outcome, sections, dropped,
			cache_hit, duration_ms, meta, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := c.db.ExecContext(ctx, query,
		e.ID, e.ReportID, e.Kind, e.Outcome, e.Sections, e.Dropped,
		e.CacheHit, e.DurationMs, e.Meta, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save render event: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
