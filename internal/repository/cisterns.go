package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/abelzeko/aguasur/internal/entities"
	"github.com/google/uuid"
)

const cisternColumns = `id, location, latitude, longitude, type, total_capacity_liters, current_level_liters, family_id, status, installed_at, level_updated_at, zone`

// CreateCistern validates and inserts a cistern, assigning an ID when it has none
func (s *SQLiteStore) CreateCistern(ctx context.Context, c entities.Cistern) (entities.Cistern, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if err := entities.ValidateCistern(c); err != nil {
		return entities.Cistern{}, err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cisterns(`+cisternColumns+`)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Location, nullFloat(c.Latitude), nullFloat(c.Longitude), string(c.Type),
		c.TotalCapacityLiters, c.CurrentLevelLiters, c.FamilyID, string(c.Status),
		formatTime(c.InstalledAt), formatTime(c.LevelUpdatedAt), c.Zone,
	)
	if err != nil {
		return entities.Cistern{}, fmt.Errorf("failed to insert cistern %s: %w", c.ID, err)
	}
	log.Printf("Registered %s cistern %s at %s (%.0f L)", c.Type, c.ID, c.Location, c.TotalCapacityLiters)
	return c, nil
}

// GetCistern returns a cistern by ID
func (s *SQLiteStore) GetCistern(ctx context.Context, id string) (entities.Cistern, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+cisternColumns+` FROM cisterns WHERE id = ?`, id)
	c, err := scanCistern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Cistern{}, notFound("cistern", id)
	}
	return c, err
}

// ListCisterns returns all cisterns ordered by ID
func (s *SQLiteStore) ListCisterns(ctx context.Context) ([]entities.Cistern, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+cisternColumns+` FROM cisterns ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cisterns: %w", err)
	}
	defer rows.Close()

	var result []entities.Cistern
	for rows.Next() {
		c, err := scanCistern(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return result, nil
}

// UpdateCisternStatus changes the operational status of a cistern
func (s *SQLiteStore) UpdateCisternStatus(ctx context.Context, id string, status entities.CisternStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE cisterns SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update cistern %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to update cistern %s: %w", id, err)
	} else if n == 0 {
		return notFound("cistern", id)
	}
	return nil
}

// UpdateCisternLevel stores a manual level reading. Levels outside [0, capacity] are rejected.
func (s *SQLiteStore) UpdateCisternLevel(ctx context.Context, id string, level float64, at time.Time) error {
	if level < 0 {
		return fmt.Errorf("%w: negative level %.0f", entities.ErrInvalidInput, level)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE cisterns SET current_level_liters = ?, level_updated_at = ?
		WHERE id = ? AND total_capacity_liters >= ?`,
		level, formatTime(at), id, level,
	)
	if err != nil {
		return fmt.Errorf("failed to update level of cistern %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update level of cistern %s: %w", id, err)
	}
	if n > 0 {
		log.Printf("Cistern %s level reading %.0f L", id, level)
		return nil
	}
	if _, err := s.GetCistern(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: level %.0f exceeds capacity of cistern %s", entities.ErrInvalidInput, level, id)
}

func scanCistern(row scanner) (entities.Cistern, error) {
	var c entities.Cistern
	var lat, lng sql.NullFloat64
	var typ, status, installed, updated string
	if err := row.Scan(&c.ID, &c.Location, &lat, &lng, &typ, &c.TotalCapacityLiters, &c.CurrentLevelLiters, &c.FamilyID, &status, &installed, &updated, &c.Zone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, err
		}
		return c, fmt.Errorf("failed to scan cistern: %w", err)
	}
	c.Latitude = floatPtr(lat)
	c.Longitude = floatPtr(lng)
	c.Type = entities.CisternType(typ)
	c.Status = entities.CisternStatus(status)

	var err error
	if c.InstalledAt, err = parseTime(installed); err != nil {
		return c, err
	}
	if c.LevelUpdatedAt, err = parseTime(updated); err != nil {
		return c, err
	}
	return c, nil
}
