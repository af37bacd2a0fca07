package db

import (
	"context"
	"fmt"
)

// InitSchema creates the reportd tables if they do not exist yet.
// Postgres deployments typically manage schema out of band; sqlite3
// single-node installs rely on this bootstrap.
func (c *Client) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements(c.config.Driver) {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

func schemaStatements(driver string) []string {
	jsonType := "JSONB"
	timeType := "TIMESTAMPTZ"
	if driver == "sqlite3" {
		jsonType = "TEXT"
		timeType = "TIMESTAMP"
	}

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS reports (
			id UUID PRIMARY KEY,
			title TEXT NOT NULL,
			report_type TEXT NOT NULL,
			model TEXT,
			raw_text TEXT NOT NULL,
			cached BOOLEAN NOT NULL DEFAULT FALSE,
			generated_at %s,
			created_at %s NOT NULL
		)`, timeType, timeType),
		`CREATE TABLE IF NOT EXISTS report_sources (
			report_id UUID NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
			idx INTEGER NOT NULL,
			url TEXT NOT NULL,
			PRIMARY KEY (report_id, idx)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS render_events (
			id UUID PRIMARY KEY,
			report_id UUID,
			kind TEXT NOT NULL,
			outcome TEXT NOT NULL,
			sections INTEGER NOT NULL DEFAULT 0,
			dropped INTEGER NOT NULL DEFAULT 0,
			cache_hit BOOLEAN NOT NULL DEFAULT FALSE,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			meta %s,
			created_at %s NOT NULL
		)`, jsonType, timeType),
		`CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_render_events_report ON render_events(report_id)`,
	}
}
