package predictor

import (
	"testing"
	"time"

	"github.com/abelzeko/aguasur/internal/config"
	"github.com/abelzeko/aguasur/internal/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)

func cistern(level, capacity float64, updated time.Time) entities.Cistern {
	return entities.Cistern{
		ID:                  "c1",
		Location:            "Villa Ingenio, manzano 4",
		Type:                entities.CisternDomestic,
		Status:              entities.CisternOperational,
		TotalCapacityLiters: capacity,
		CurrentLevelLiters:  level,
		LevelUpdatedAt:      updated,
	}
}

func fill(at time.Time, added, before, after float64) entities.FillEvent {
	return entities.FillEvent{
		ID:          at.Format(time.RFC3339),
		CisternID:   "c1",
		Timestamp:   at,
		LitersAdded: added,
		Provider:    "Pipas del Sur",
		Cost:        added * 0.05,
		LevelBefore: before,
		LevelAfter:  after,
	}
}

func TestPredictMeasuredFromFillAndCurrentLevel(t *testing.T) {
	cfg := config.DefaultEngine()
	asOf := t0.Add(5 * day)
	c := cistern(400, 2000, asOf)
	history := []entities.FillEvent{fill(t0, 1000, 0, 1000)}

	p, err := Predict(cfg, c, history, nil, asOf)
	require.NoError(t, err)

	assert.Equal(t, ConfidenceMeasured, p.Confidence)
	assert.InDelta(t, 120, p.DailyConsumptionLitersPerDay, 1e-9)
	assert.Equal(t, 3, p.WholeAutonomyDays)
	assert.InDelta(t, 400.0/120.0, p.EstimatedAutonomyDays, 1e-9)
	assert.InDelta(t, 5, p.ObservedDays, 1e-9)
}

func TestPredictAcrossSeveralFills(t *testing.T) {
	cfg := config.DefaultEngine()
	// 1000 after the first fill, down to 200 two days later, refilled by 800 to 1000,
	// then down to 700 after one more day: 800 + 300 liters over 3 days.
	history := []entities.FillEvent{
		fill(t0, 1000, 0, 1000),
		fill(t0.Add(2*day), 800, 200, 1000),
	}
	asOf := t0.Add(3 * day)
	c := cistern(700, 1500, asOf)

	p, err := Predict(cfg, c, history, nil, asOf)
	require.NoError(t, err)
	assert.Equal(t, ConfidenceMeasured, p.Confidence)
	assert.InDelta(t, 1100.0/3.0, p.DailyConsumptionLitersPerDay, 1e-9)
}

func TestPredictIgnoresOverflowBeyondCapacity(t *testing.T) {
	cfg := config.DefaultEngine()
	// The second delivery overflows: 800 + 500 > 1000 capacity. The level dropped 900 -> 800 before it.
	history := []entities.FillEvent{
		fill(t0, 900, 0, 900),
		fill(t0.Add(1*day), 500, 800, 1000),
	}
	asOf := t0.Add(1 * day)
	c := cistern(1000, 1000, asOf)

	p, err := Predict(cfg, c, history, nil, asOf)
	require.NoError(t, err)
	assert.InDelta(t, 100, p.DailyConsumptionLitersPerDay, 1e-9)
}

func TestPredictHeuristicFallback(t *testing.T) {
	cfg := config.DefaultEngine()
	c := cistern(600, 1000, t0)
	family := &entities.Family{ID: "f1", Address: "Calle 5", Occupants: 6, StorageCapacityLiters: 1000}

	p, err := Predict(cfg, c, nil, family, t0)
	require.NoError(t, err)
	assert.Equal(t, ConfidenceHeuristic, p.Confidence)
	assert.InDelta(t, 300, p.DailyConsumptionLitersPerDay, 1e-9)
	assert.InDelta(t, 2, p.EstimatedAutonomyDays, 1e-9)

	// Without a family the default household size applies.
	p, err = Predict(cfg, c, nil, nil, t0)
	require.NoError(t, err)
	assert.InDelta(t, float64(cfg.DefaultHouseholdSize)*cfg.BaselinePerCapitaLitersPerDay, p.DailyConsumptionLitersPerDay, 1e-9)
}

func TestPredictSingleFillWithoutNewerReadingIsHeuristic(t *testing.T) {
	cfg := config.DefaultEngine()
	c := cistern(1000, 1000, t0)
	p, err := Predict(cfg, c, []entities.FillEvent{fill(t0, 1000, 0, 1000)}, nil, t0.Add(day))
	require.NoError(t, err)
	assert.Equal(t, ConfidenceHeuristic, p.Confidence)
}

func TestPredictTrailingWindowProratesStraddlingSegment(t *testing.T) {
	cfg := config.DefaultEngine()
	cfg.ConsumptionWindowDays = 10

	// One 20-day segment consuming 2000 liters; only the last 10 days fall in the window.
	asOf := t0.Add(20 * day)
	c := cistern(500, 3000, asOf)
	p, err := Predict(cfg, c, []entities.FillEvent{fill(t0, 2500, 0, 2500)}, nil, asOf)
	require.NoError(t, err)
	assert.InDelta(t, 100, p.DailyConsumptionLitersPerDay, 1e-9)
	assert.InDelta(t, 10, p.ObservedDays, 1e-9)
}

func TestPredictEmptyCisternHasNoAutonomy(t *testing.T) {
	cfg := config.DefaultEngine()
	asOf := t0.Add(2 * day)
	c := cistern(0, 1000, asOf)
	p, err := Predict(cfg, c, []entities.FillEvent{fill(t0, 1000, 0, 1000)}, nil, asOf)
	require.NoError(t, err)
	assert.Zero(t, p.EstimatedAutonomyDays)
	assert.Zero(t, p.WholeAutonomyDays)
}

func TestAutonomyCappedAtHorizon(t *testing.T) {
	cfg := config.DefaultEngine()
	assert.Equal(t, cfg.AutonomyHorizonDays, AutonomyDays(cfg, 5000, 0))
	assert.Equal(t, cfg.AutonomyHorizonDays, AutonomyDays(cfg, 5000, 1))
}

func TestAutonomyMonotonicInRate(t *testing.T) {
	cfg := config.DefaultEngine()
	prev := AutonomyDays(cfg, 1000, 20)
	for rate := 25.0; rate <= 2000; rate += 25 {
		got := AutonomyDays(cfg, 1000, rate)
		assert.Less(t, got, prev, "rate %v", rate)
		assert.GreaterOrEqual(t, got, 0.0)
		prev = got
	}
}

func TestPredictRejectsInvalidInput(t *testing.T) {
	cfg := config.DefaultEngine()

	_, err := Predict(cfg, cistern(1200, 1000, t0), nil, nil, t0)
	assert.ErrorIs(t, err, entities.ErrInvalidInput)

	bad := &entities.Family{ID: "f1", Address: "Calle 5", Occupants: 0}
	_, err = Predict(cfg, cistern(100, 1000, t0), nil, bad, t0)
	assert.ErrorIs(t, err, entities.ErrInvalidInput)

	foreign := fill(t0, 100, 0, 100)
	foreign.CisternID = "other"
	_, err = Predict(cfg, cistern(100, 1000, t0), []entities.FillEvent{foreign}, nil, t0)
	assert.ErrorIs(t, err, entities.ErrInvalidInput)
}

func TestProjectLevelStaysWithinCapacity(t *testing.T) {
	c := cistern(300, 1000, t0)
	assert.InDelta(t, 200, ProjectLevel(c, 100, t0.Add(day)), 1e-9)
	assert.Zero(t, ProjectLevel(c, 100, t0.Add(30*day)))
	assert.Equal(t, 300.0, ProjectLevel(c, 100, t0.Add(-day)))
}

func TestPredictProjectsLevelSinceLastReading(t *testing.T) {
	cfg := config.DefaultEngine()
	// Filled to 1000 L and never read again: 200 L/day for a household of four empties it in 5 days.
	c := cistern(1000, 2000, t0)
	history := []entities.FillEvent{fill(t0, 1000, 0, 1000)}

	p, err := Predict(cfg, c, history, nil, t0.Add(2*day))
	require.NoError(t, err)
	assert.Equal(t, ConfidenceHeuristic, p.Confidence)
	assert.InDelta(t, 600, p.CurrentLevelLiters, 1e-9)
	assert.InDelta(t, 0.3, p.LevelFraction, 1e-9)
	assert.InDelta(t, 3, p.EstimatedAutonomyDays, 1e-9)

	p, err = Predict(cfg, c, history, nil, t0.Add(20*day))
	require.NoError(t, err)
	assert.Zero(t, p.CurrentLevelLiters)
	assert.Zero(t, p.EstimatedAutonomyDays)
}

func TestPredictEstimatedLevelBeforeIsNotMeasured(t *testing.T) {
	cfg := config.DefaultEngine()
	second := fill(t0.Add(10*day), 500, 0, 500)
	second.LevelBeforeEstimated = true
	history := []entities.FillEvent{fill(t0, 1000, 0, 1000), second}
	c := cistern(500, 2000, second.Timestamp)

	p, err := Predict(cfg, c, history, nil, t0.Add(20*day))
	require.NoError(t, err)
	assert.Equal(t, ConfidenceHeuristic, p.Confidence, "the gap before an estimated level is not a measurement")
	assert.InDelta(t, 200, p.DailyConsumptionLitersPerDay, 1e-9)

	// A reading after the estimated fill measures from its LevelAfter.
	c = cistern(300, 2000, t0.Add(11*day))
	p, err = Predict(cfg, c, history, nil, t0.Add(11*day))
	require.NoError(t, err)
	assert.Equal(t, ConfidenceMeasured, p.Confidence)
	assert.InDelta(t, 200, p.DailyConsumptionLitersPerDay, 1e-9)
	assert.InDelta(t, 1, p.ObservedDays, 1e-9)
}

func TestPredictAllKeepsOrderAndIsolatesErrors(t *testing.T) {
	cfg := config.DefaultEngine()
	cfg.MaxParallelEvaluations = 2

	inputs := make([]Input, 0, 6)
	for i := 0; i < 5; i++ {
		c := cistern(float64(100*(i+1)), 1000, t0)
		c.ID = string(rune('a' + i))
		inputs = append(inputs, Input{Cistern: c})
	}
	broken := cistern(100, 1000, t0)
	broken.ID = ""
	inputs = append(inputs, Input{Cistern: broken})

	results := PredictAll(cfg, inputs, t0)
	require.Len(t, results, len(inputs))
	for i := 0; i < 5; i++ {
		require.NoError(t, results[i].Err)
		assert.Equal(t, inputs[i].Cistern.ID, results[i].Prediction.CisternID)
	}
	assert.ErrorIs(t, results[5].Err, entities.ErrInvalidInput)
}
