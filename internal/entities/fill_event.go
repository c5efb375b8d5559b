package entities

import "time"

// FillEvent records water delivered to a cistern. Immutable once stored.
type FillEvent struct {
	ID          string    `json:"id"`
	CisternID   string    `json:"cistern_id" validate:"required"`
	Timestamp   time.Time `json:"timestamp" validate:"required"`
	LitersAdded float64   `json:"liters_added" validate:"gt=0"`
	Provider    string    `json:"provider" validate:"required"`
	Cost        float64   `json:"cost" validate:"gte=0"`
	LevelBefore float64   `json:"level_before" validate:"gte=0"`
	LevelAfter  float64   `json:"level_after" validate:"gte=0,gtefield=LevelBefore"`
	Notes       string    `json:"notes,omitempty"`

	// LevelBeforeEstimated marks a LevelBefore projected from the consumption rate instead of read.
	LevelBeforeEstimated bool `json:"level_before_estimated,omitempty"`
}

// CostPerLiter returns the unit price paid for this fill.
func (f FillEvent) CostPerLiter() float64 {
	if f.LitersAdded <= 0 {
		return 0
	}
	return f.Cost / f.LitersAdded
}
