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

const familyColumns = `id, address, zone, occupants, contact, storage_capacity_liters, has_cistern, active, registered_at`

// CreateFamily validates and inserts a family, assigning an ID when it has none
func (s *SQLiteStore) CreateFamily(ctx context.Context, f entities.Family) (entities.Family, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if err := entities.ValidateFamily(f); err != nil {
		return entities.Family{}, err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO families(`+familyColumns+`)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Address, f.Zone, f.Occupants, f.Contact, f.StorageCapacityLiters, f.HasCistern, f.Active, formatTime(f.RegisteredAt),
	)
	if err != nil {
		return entities.Family{}, fmt.Errorf("failed to insert family %s: %w", f.ID, err)
	}
	log.Printf("Registered family %s (%d occupants, zone %q)", f.ID, f.Occupants, f.Zone)
	return f, nil
}

// GetFamily returns a family by ID
func (s *SQLiteStore) GetFamily(ctx context.Context, id string) (entities.Family, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+familyColumns+` FROM families WHERE id = ?`, id)
	f, err := scanFamily(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Family{}, notFound("family", id)
	}
	return f, err
}

// ListFamilies returns all families, archived ones included, ordered by ID
func (s *SQLiteStore) ListFamilies(ctx context.Context) ([]entities.Family, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+familyColumns+` FROM families ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query families: %w", err)
	}
	defer rows.Close()

	var result []entities.Family
	for rows.Next() {
		f, err := scanFamily(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return result, nil
}

// SetFamilyActive archives or restores a family. Families are never deleted.
func (s *SQLiteStore) SetFamilyActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE families SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("failed to update family %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to update family %s: %w", id, err)
	} else if n == 0 {
		return notFound("family", id)
	}
	return nil
}

func scanFamily(row scanner) (entities.Family, error) {
	var f entities.Family
	var registered string
	if err := row.Scan(&f.ID, &f.Address, &f.Zone, &f.Occupants, &f.Contact, &f.StorageCapacityLiters, &f.HasCistern, &f.Active, &registered); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return f, err
		}
		return f, fmt.Errorf("failed to scan family: %w", err)
	}
	t, err := parseTime(registered)
	if err != nil {
		return f, err
	}
	f.RegisteredAt = t
	return f, nil
}
