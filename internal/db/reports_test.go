package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })

	client := &Client{
		db:         sqlx.NewDb(mockDB, "sqlmock"),
		logger:     zap.NewNop(),
		config:     &Config{Driver: "postgres"},
		writeQueue: make(chan WriteRequest, 4),
		stopCh:     make(chan struct{}),
	}
	return client, mock
}

func TestSaveReport(t *testing.T) {
	client, mock := newMockClient(t)

	report := &Report{
		Title:      "Moon Landing Claims",
		ReportType: "fact_check",
		Model:      "gpt-4o",
		RawText:    "## Verified Facts\n\nSome text.",
		Sources: []ReportSource{
			{Idx: 1, URL: "https://example.com/a"},
			{Idx: 2, URL: "https://example.com/b"},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO reports").
		WithArgs(sqlmock.AnyArg(), "Moon Landing Claims", "fact_check", "gpt-4o",
			report.RawText, false, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM report_sources").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO report_sources").
		WithArgs(sqlmock.AnyArg(), 1, "https://example.com/a").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO report_sources").
		WithArgs(sqlmock.AnyArg(), 2, "https://example.com/b").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if err := client.SaveReport(context.Background(), report); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}
	if report.ID == uuid.Nil {
		t.Error("Expected SaveReport to assign an id")
	}
	if report.CreatedAt.IsZero() {
		t.Error("Expected SaveReport to assign created_at")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("Unfulfilled expectations: %v", err)
	}
}

func TestSaveReportRollsBackOnSourceError(t *testing.T) {
	client, mock := newMockClient(t)

	report := &Report{
		Title:      "Broken",
		ReportType: "fact_check",
		RawText:    "text",
		Sources:    []ReportSource{{Idx: 1, URL: "https://example.com"}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO reports").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM report_sources").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO report_sources").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if err := client.SaveReport(context.Background(), report); err == nil {
		t.Fatal("Expected SaveReport to fail")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("Unfulfilled expectations: %v", err)
	}
}

func TestGetReport(t *testing.T) {
	client, mock := newMockClient(t)

	id := uuid.New()
	created := time.Now().UTC().Truncate(time.Second)

	mock.ExpectQuery("SELECT id, title, report_type").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "title", "report_type", "model", "raw_text", "cached", "generated_at", "created_at"},
		).AddRow(id, "Moon Landing Claims", "fact_check", "gpt-4o", "## Facts", true, nil, created))

	mock.ExpectQuery("SELECT report_id, idx, url FROM report_sources").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"report_id", "idx", "url"}).
			AddRow(id, 1, "https://example.com/a").
			AddRow(id, 2, "https://example.com/b"))

	report, err := client.GetReport(context.Background(), id)
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if report.Title != "Moon Landing Claims" {
		t.Errorf("Title = %q", report.Title)
	}
	if !report.Cached {
		t.Error("Cached flag lost in load")
	}
	if len(report.Sources) != 2 {
		t.Fatalf("Expected 2 sources, got %d", len(report.Sources))
	}
	if report.Sources[1].URL != "https://example.com/b" {
		t.Errorf("Sources[1].URL = %q", report.Sources[1].URL)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("Unfulfilled expectations: %v", err)
	}
}

func TestGetReportNotFound(t *testing.T) {
	client, mock := newMockClient(t)

	id := uuid.New()
	mock.ExpectQuery("SELECT id, title, report_type").
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	_, err := client.GetReport(context.Background(), id)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestListRecentReportsClampsLimit(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectQuery("SELECT id, title, report_type").
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "title", "report_type", "model", "raw_text", "cached", "generated_at", "created_at"},
		).AddRow(uuid.New(), "A", "fact_check", "", "", false, nil, time.Now()))

	reports, err := client.ListRecentReports(context.Background(), -5)
	if err != nil {
		t.Fatalf("ListRecentReports failed: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("Expected 1 report, got %d", len(reports))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("Unfulfilled expectations: %v", err)
	}
}

func TestSaveRenderEvent(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectExec("INSERT INTO render_events").
		WithArgs(sqlmock.AnyArg(), nil, "fact_check", "structured", 4, 1,
			false, int64(12), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	event := &RenderEvent{
		Kind:       "fact_check",
		Outcome:    "structured",
		Sections:   4,
		Dropped:    1,
		DurationMs: 12,
		Meta:       JSONB{"text_bytes": 2048},
	}
	if err := client.SaveRenderEvent(context.Background(), event); err != nil {
		t.Fatalf("SaveRenderEvent failed: %v", err)
	}
	if event.ID == uuid.Nil {
		t.Error("Expected SaveRenderEvent to assign an id")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("Unfulfilled expectations: %v", err)
	}
}

func TestQueueWriteSyncFallback(t *testing.T) {
	client, mock := newMockClient(t)

	// No workers are running, so fill the queue to force the sync path.
	for i := 0; i < cap(client.writeQueue); i++ {
		client.writeQueue <- WriteRequest{Type: WriteTypeRenderEvent}
	}

	mock.ExpectExec("INSERT INTO render_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	done := make(chan error, 1)
	client.QueueWrite(WriteRequest{
		Type:     WriteTypeRenderEvent,
		Data:     &RenderEvent{Kind: "fact_check", Outcome: "annotated_only"},
		Callback: func(err error) { done <- err },
	})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Sync fallback write failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Sync fallback did not run")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("Unfulfilled expectations: %v", err)
	}
}

func TestBuildDSN(t *testing.T) {
	pg, err := buildDSN(&Config{
		Driver: "postgres", Host: "localhost", Port: 5432,
		User: "reportd", Password: "secret", Database: "reports", SSLMode: "disable",
	})
	if err != nil {
		t.Fatalf("postgres DSN failed: %v", err)
	}
	want := "host=localhost port=5432 user=reportd password=secret dbname=reports sslmode=disable"
	if pg != want {
		t.Errorf("postgres DSN = %q, want %q", pg, want)
	}

	lite, err := buildDSN(&Config{Driver: "sqlite3", Path: "/tmp/reports.db"})
	if err != nil {
		t.Fatalf("sqlite3 DSN failed: %v", err)
	}
	if lite != "file:/tmp/reports.db?_busy_timeout=5000&_journal_mode=WAL" {
		t.Errorf("sqlite3 DSN = %q", lite)
	}

	if _, err := buildDSN(&Config{Driver: "sqlite3"}); err == nil {
		t.Error("Expected error for sqlite3 without path")
	}
	if _, err := buildDSN(&Config{Driver: "mysql"}); err == nil {
		t.Error("Expected error for unsupported driver")
	}
}

func TestWriteTypeString(t *testing.T) {
	if got := WriteTypeReport.String(); got != "Report" {
		t.Errorf("WriteTypeReport.String() = %q", got)
	}
	if got := WriteTypeRenderEvent.String(); got != "RenderEvent" {
		t.Errorf("WriteTypeRenderEvent.String() = %q", got)
	}
	if got := WriteType(99).String(); got != "Unknown" {
		t.Errorf("WriteType(99).String() = %q", got)
	}
}
