package repository

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/abelzeko/aguasur/internal/alerts"
	"github.com/abelzeko/aguasur/internal/entities"
	"github.com/abelzeko/aguasur/internal/predictor"
	"github.com/google/uuid"
)

const alertColumns = `id, cistern_id, family_id, severity, reason_codes, report_ids, level_fraction, autonomy_days, confidence, issued_at`

// SaveAlerts appends issued alerts. Alert history is kept for the early-warning figures.
func (s *SQLiteStore) SaveAlerts(ctx context.Context, issued []alerts.Alert) error {
	if len(issued) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO alerts(`+alertColumns+`) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, a := range issued {
		id := a.ID
		if id == "" {
			id = uuid.NewString()
		}
		codes := make([]string, len(a.ReasonCodes))
		for i, rc := range a.ReasonCodes {
			codes[i] = string(rc)
		}
		_, err := stmt.ExecContext(ctx,
			id, a.CisternID, a.FamilyID, int(a.Severity),
			strings.Join(codes, ","), strings.Join(a.ReportIDs, ","),
			a.LevelFraction, a.AutonomyDays, string(a.Confidence), formatTime(a.IssuedAt),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert alert for cistern %s: %w", a.CisternID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Printf("Successfully saved %d alerts", len(issued))
	return nil
}

// LatestAlerts returns the most recent alert of every cistern, ordered by cistern ID
func (s *SQLiteStore) LatestAlerts(ctx context.Context) ([]alerts.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts a
		WHERE a.issued_at = (
			SELECT MAX(issued_at)
			FROM alerts
			WHERE cistern_id = a.cistern_id
		)
		ORDER BY a.cistern_id, a.severity DESC`

	all, err := s.queryAlerts(ctx, query)
	if err != nil {
		return nil, err
	}

	// Several alerts may share the latest timestamp; keep the most severe.
	var result []alerts.Alert
	for _, a := range all {
		if n := len(result); n > 0 && result[n-1].CisternID == a.CisternID {
			continue
		}
		result = append(result, a)
	}
	return result, nil
}

// ListAlertsSince returns alerts issued at or after since, oldest first
func (s *SQLiteStore) ListAlertsSince(ctx context.Context, since time.Time) ([]alerts.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE issued_at >= ? ORDER BY issued_at, cistern_id`
	return s.queryAlerts(ctx, query, formatTime(since))
}

func (s *SQLiteStore) queryAlerts(ctx context.Context, query string, args ...any) ([]alerts.Alert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var result []alerts.Alert
	for rows.Next() {
		var a alerts.Alert
		var severity int
		var codes, reportIDs, confidence, issued string
		if err := rows.Scan(&a.ID, &a.CisternID, &a.FamilyID, &severity, &codes, &reportIDs,
			&a.LevelFraction, &a.AutonomyDays, &confidence, &issued); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		a.Severity = entities.Severity(severity)
		a.Confidence = predictor.Confidence(confidence)
		for _, rc := range splitList(codes) {
			a.ReasonCodes = append(a.ReasonCodes, alerts.ReasonCode(rc))
		}
		a.ReportIDs = splitList(reportIDs)
		if a.IssuedAt, err = parseTime(issued); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return result, nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}
