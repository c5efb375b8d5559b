// Package repository provides data access implementations
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/abelzeko/aguasur/internal/alerts"
	"github.com/abelzeko/aguasur/internal/entities"
	_ "github.com/mattn/go-sqlite3"
)

// Store defines the persistence operations the monitoring use cases need
type Store interface {
	CreateFamily(ctx context.Context, f entities.Family) (entities.Family, error)
	GetFamily(ctx context.Context, id string) (entities.Family, error)
	ListFamilies(ctx context.Context) ([]entities.Family, error)
	SetFamilyActive(ctx context.Context, id string, active bool) error

	CreateCistern(ctx context.Context, c entities.Cistern) (entities.Cistern, error)
	GetCistern(ctx context.Context, id string) (entities.Cistern, error)
	ListCisterns(ctx context.Context) ([]entities.Cistern, error)
	UpdateCisternStatus(ctx context.Context, id string, status entities.CisternStatus) error
	UpdateCisternLevel(ctx context.Context, id string, level float64, at time.Time) error

	AppendFill(ctx context.Context, f entities.FillEvent, read LevelStamp) (entities.FillEvent, error)
	ListFills(ctx context.Context, cisternID string) ([]entities.FillEvent, error)

	CreateReport(ctx context.Context, r entities.Report) (entities.Report, error)
	GetReport(ctx context.Context, id string) (entities.Report, error)
	ListReports(ctx context.Context) ([]entities.Report, error)
	UpdateReport(ctx context.Context, r entities.Report, expectedVersion int) error

	SaveAlerts(ctx context.Context, issued []alerts.Alert) error
	LatestAlerts(ctx context.Context) ([]alerts.Alert, error)
	ListAlertsSince(ctx context.Context, since time.Time) ([]alerts.Alert, error)

	Close() error
}

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	DBPath string
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS families (
		id TEXT PRIMARY KEY,
		address TEXT NOT NULL,
		zone TEXT NOT NULL DEFAULT '',
		occupants INTEGER NOT NULL,
		contact TEXT NOT NULL DEFAULT '',
		storage_capacity_liters REAL NOT NULL DEFAULT 0,
		has_cistern INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		registered_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS cisterns (
		id TEXT PRIMARY KEY,
		location TEXT NOT NULL,
		latitude REAL,
		longitude REAL,
		type TEXT NOT NULL,
		total_capacity_liters REAL NOT NULL,
		current_level_liters REAL NOT NULL,
		family_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		installed_at TEXT NOT NULL,
		level_updated_at TEXT NOT NULL,
		zone TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_cisterns_family ON cisterns(family_id);
	CREATE TABLE IF NOT EXISTS fill_events (
		id TEXT PRIMARY KEY,
		cistern_id TEXT NOT NULL REFERENCES cisterns(id),
		timestamp TEXT NOT NULL,
		liters_added REAL NOT NULL,
		provider TEXT NOT NULL,
		cost REAL NOT NULL,
		level_before REAL NOT NULL,
		level_after REAL NOT NULL,
		level_before_estimated INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_fill_events_cistern ON fill_events(cistern_id, timestamp);
	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		family_id TEXT NOT NULL DEFAULT '',
		cistern_id TEXT NOT NULL DEFAULT '',
		zone TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		description TEXT NOT NULL,
		urgency INTEGER NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		resolved_at TEXT,
		resolution_notes TEXT NOT NULL DEFAULT '',
		urgency_override_reason TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);
	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		cistern_id TEXT NOT NULL,
		family_id TEXT NOT NULL DEFAULT '',
		severity INTEGER NOT NULL,
		reason_codes TEXT NOT NULL,
		report_ids TEXT NOT NULL DEFAULT '',
		level_fraction REAL NOT NULL,
		autonomy_days REAL NOT NULL,
		confidence TEXT NOT NULL,
		issued_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_cistern ON alerts(cistern_id, issued_at);`

// NewSQLiteStore creates and initializes a new SQLite store
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbDir := "data"
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dbPath = filepath.Join(dbDir, "aguasur.db")
	}

	log.Printf("Opening database at %s", dbPath)
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		DBPath: dbPath,
	}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Times are stored as fixed-width UTC text so that string order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", v, err)
	}
	return t, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", entities.ErrNotFound, kind, id)
}
