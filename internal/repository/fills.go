package repository

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/abelzeko/aguasur/internal/entities"
	"github.com/google/uuid"
)

// LevelStamp is the stored level of a cistern as a writer read it.
type LevelStamp struct {
	Liters    float64
	UpdatedAt time.Time
}

// StampOf returns the level stamp of a cistern read from the store.
func StampOf(c entities.Cistern) LevelStamp {
	return LevelStamp{Liters: c.CurrentLevelLiters, UpdatedAt: c.LevelUpdatedAt}
}

// AppendFill stores a fill event and moves the cistern level to the event's LevelAfter in one
// transaction. The cistern level must still match read, otherwise ErrVersionConflict is returned.
// Fill events are never updated afterwards.
func (s *SQLiteStore) AppendFill(ctx context.Context, f entities.FillEvent, read LevelStamp) (entities.FillEvent, error) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if err := entities.ValidateFillEvent(f); err != nil {
		return entities.FillEvent{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return entities.FillEvent{}, fmt.Errorf("failed to begin transaction: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE cisterns SET current_level_liters = ?, level_updated_at = ?
		WHERE id = ? AND total_capacity_liters >= ? AND current_level_liters = ? AND level_updated_at = ?`,
		f.LevelAfter, formatTime(f.Timestamp), f.CisternID, f.LevelAfter, read.Liters, formatTime(read.UpdatedAt),
	)
	if err != nil {
		tx.Rollback()
		return entities.FillEvent{}, fmt.Errorf("failed to update level of cistern %s: %w", f.CisternID, err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		tx.Rollback()
		if err != nil {
			return entities.FillEvent{}, fmt.Errorf("failed to update level of cistern %s: %w", f.CisternID, err)
		}
		return entities.FillEvent{}, s.fillRejected(ctx, f, read)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO fill_events(id, cistern_id, timestamp, liters_added, provider, cost, level_before, level_after, level_before_estimated, notes)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.CisternID, formatTime(f.Timestamp), f.LitersAdded, f.Provider, f.Cost, f.LevelBefore, f.LevelAfter, f.LevelBeforeEstimated, f.Notes,
	)
	if err != nil {
		tx.Rollback()
		return entities.FillEvent{}, fmt.Errorf("failed to insert fill event for %s: %w", f.CisternID, err)
	}

	if err := tx.Commit(); err != nil {
		return entities.FillEvent{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Printf("Recorded fill of %.0f L for cistern %s (%.0f -> %.0f L)", f.LitersAdded, f.CisternID, f.LevelBefore, f.LevelAfter)
	return f, nil
}

// fillRejected explains why the guarded level update matched no row.
func (s *SQLiteStore) fillRejected(ctx context.Context, f entities.FillEvent, read LevelStamp) error {
	c, err := s.GetCistern(ctx, f.CisternID)
	if err != nil {
		return err
	}
	if f.LevelAfter > c.TotalCapacityLiters {
		return fmt.Errorf("%w: level %.0f exceeds capacity of cistern %s", entities.ErrInvalidInput, f.LevelAfter, f.CisternID)
	}
	return fmt.Errorf("%w: cistern %s level changed since it was read (%.0f L at %s)",
		entities.ErrVersionConflict, f.CisternID, read.Liters, read.UpdatedAt.Format(time.RFC3339))
}

// ListFills returns fill events in time order, for one cistern or for all when cisternID is empty
func (s *SQLiteStore) ListFills(ctx context.Context, cisternID string) ([]entities.FillEvent, error) {
	query := `
		SELECT id, cistern_id, timestamp, liters_added, provider, cost, level_before, level_after, level_before_estimated, notes
		FROM fill_events
		WHERE ? = '' OR cistern_id = ?
		ORDER BY timestamp, id`

	rows, err := s.db.QueryContext(ctx, query, cisternID, cisternID)
	if err != nil {
		return nil, fmt.Errorf("failed to query fill events: %w", err)
	}
	defer rows.Close()

	var result []entities.FillEvent
	for rows.Next() {
		var f entities.FillEvent
		var ts string
		if err := rows.Scan(&f.ID, &f.CisternID, &ts, &f.LitersAdded, &f.Provider, &f.Cost, &f.LevelBefore, &f.LevelAfter, &f.LevelBeforeEstimated, &f.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if f.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return result, nil
}
