package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/abelzeko/aguasur/internal/entities"
	"github.com/google/uuid"
)

const reportColumns = `id, family_id, cistern_id, zone, type, description, urgency, status, created_at, resolved_at, resolution_notes, urgency_override_reason, version`

// CreateReport validates and inserts a triaged report
func (s *SQLiteStore) CreateReport(ctx context.Context, r entities.Report) (entities.Report, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Version == 0 {
		r.Version = 1
	}
	if err := entities.ValidateReport(r); err != nil {
		return entities.Report{}, err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports(`+reportColumns+`)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.FamilyID, r.CisternID, r.Zone, string(r.Type), r.Description, int(r.Urgency), string(r.Status),
		formatTime(r.CreatedAt), resolvedAt(r), r.ResolutionNotes, r.UrgencyOverrideReason, r.Version,
	)
	if err != nil {
		return entities.Report{}, fmt.Errorf("failed to insert report %s: %w", r.ID, err)
	}
	log.Printf("Stored %s report %s with urgency %s", r.Type, r.ID, r.Urgency)
	return r, nil
}

// GetReport returns a report by ID
func (s *SQLiteStore) GetReport(ctx context.Context, id string) (entities.Report, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Report{}, notFound("report", id)
	}
	return r, err
}

// ListReports returns all reports, oldest first
func (s *SQLiteStore) ListReports(ctx context.Context) ([]entities.Report, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+reportColumns+` FROM reports ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var result []entities.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return result, nil
}

// UpdateReport writes r only if the stored version still equals expectedVersion. A concurrent change
// yields ErrVersionConflict and leaves the stored report untouched.
func (s *SQLiteStore) UpdateReport(ctx context.Context, r entities.Report, expectedVersion int) error {
	if err := entities.ValidateReport(r); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE reports SET
			family_id = ?, cistern_id = ?, zone = ?, type = ?, description = ?, urgency = ?, status = ?,
			resolved_at = ?, resolution_notes = ?, urgency_override_reason = ?, version = ?
		WHERE id = ? AND version = ?`,
		r.FamilyID, r.CisternID, r.Zone, string(r.Type), r.Description, int(r.Urgency), string(r.Status),
		resolvedAt(r), r.ResolutionNotes, r.UrgencyOverrideReason, r.Version,
		r.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update report %s: %w", r.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update report %s: %w", r.ID, err)
	}
	if n > 0 {
		return nil
	}

	var current int
	err = s.db.QueryRowContext(ctx, `SELECT version FROM reports WHERE id = ?`, r.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("report", r.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to read version of report %s: %w", r.ID, err)
	}
	return fmt.Errorf("%w: report %s is at version %d, expected %d", entities.ErrVersionConflict, r.ID, current, expectedVersion)
}

func resolvedAt(r entities.Report) sql.NullString {
	if r.ResolvedAt == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*r.ResolvedAt), Valid: true}
}

func scanReport(row scanner) (entities.Report, error) {
	var r entities.Report
	var typ, status, created string
	var urgency int
	var resolved sql.NullString
	if err := row.Scan(&r.ID, &r.FamilyID, &r.CisternID, &r.Zone, &typ, &r.Description, &urgency, &status,
		&created, &resolved, &r.ResolutionNotes, &r.UrgencyOverrideReason, &r.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("failed to scan report: %w", err)
	}
	r.Type = entities.ReportType(typ)
	r.Status = entities.ReportStatus(status)
	r.Urgency = entities.Severity(urgency)

	var err error
	if r.CreatedAt, err = parseTime(created); err != nil {
		return r, err
	}
	if resolved.Valid && resolved.String != "" {
		t, err := parseTime(resolved.String)
		if err != nil {
			return r, err
		}
		r.ResolvedAt = &t
	}
	return r, nil
}
