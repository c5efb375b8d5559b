// Package predictor estimates daily consumption and remaining autonomy for cisterns.
//
// Consumption is measured from consecutive level readings: every fill yields the level read right after
// the delivery, and the cistern snapshot yields the latest reading. Between two readings the community
// consumed (previous level + retained delivery) - next level. When the history does not bracket at least
// one such drop the predictor falls back to a per-capita heuristic and says so in the result. A fill whose
// level before delivery was projected rather than read starts a new chain of readings.
//
// Levels decay between readings: the prediction reports the latest reading drawn down at the predicted rate
// until asOf, and autonomy is computed from that projected level.
package predictor

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/abelzeko/aguasur/internal/config"
	"github.com/abelzeko/aguasur/internal/entities"
	"golang.org/x/sync/errgroup"
)

// Confidence tags how a consumption rate was obtained.
type Confidence string

const (
	ConfidenceMeasured  Confidence = "measured"
	ConfidenceHeuristic Confidence = "heuristic"
)

const (
	// epsilon keeps autonomy finite for near-zero consumption.
	epsilon = 1e-6
	day     = 24 * time.Hour
	// minObservedDays is the shortest span of readings trusted as a measurement.
	minObservedDays = 1.0 / 24
)

// Prediction is the predictor output for one cistern.
type Prediction struct {
	CisternID                    string     `json:"cistern_id"`
	DailyConsumptionLitersPerDay float64    `json:"daily_consumption_liters_per_day"`
	EstimatedAutonomyDays        float64    `json:"estimated_autonomy_days"`
	WholeAutonomyDays            int        `json:"whole_autonomy_days"`
	Confidence                   Confidence `json:"confidence"`
	LevelFraction                float64    `json:"level_fraction"`
	CurrentLevelLiters           float64    `json:"current_level_liters"`
	ObservedDays                 float64    `json:"observed_days"`
	AsOf                         time.Time  `json:"as_of"`
}

// reading is a known level at an instant, with the volume retained from a delivery just before it.
type reading struct {
	at    time.Time
	level float64
	added float64
}

// Predict returns the consumption rate and autonomy of c as of asOf. history must belong to c;
// family, when non-nil, supplies the occupant count for the heuristic fallback.
func Predict(cfg config.Engine, c entities.Cistern, history []entities.FillEvent, family *entities.Family, asOf time.Time) (Prediction, error) {
	if err := entities.ValidateCistern(c); err != nil {
		return Prediction{}, err
	}
	if family != nil {
		if err := entities.ValidateFamily(*family); err != nil {
			return Prediction{}, err
		}
	}
	if asOf.IsZero() {
		return Prediction{}, fmt.Errorf("%w: prediction time is required", entities.ErrInvalidInput)
	}
	for _, f := range history {
		if err := entities.ValidateFillEvent(f); err != nil {
			return Prediction{}, err
		}
		if f.CisternID != c.ID {
			return Prediction{}, fmt.Errorf("%w: fill event %s belongs to cistern %s, not %s",
				entities.ErrInvalidInput, f.ID, f.CisternID, c.ID)
		}
	}

	pred := Prediction{
		CisternID: c.ID,
		AsOf:      asOf,
	}

	rate, observed, ok := measuredRate(cfg, observations(c, history, asOf), asOf)
	if ok {
		pred.Confidence = ConfidenceMeasured
		pred.DailyConsumptionLitersPerDay = rate
		pred.ObservedDays = observed
	} else {
		pred.Confidence = ConfidenceHeuristic
		pred.DailyConsumptionLitersPerDay = HeuristicRate(cfg, family)
	}

	pred.CurrentLevelLiters = ProjectLevel(c, pred.DailyConsumptionLitersPerDay, asOf)
	pred.LevelFraction = pred.CurrentLevelLiters / c.TotalCapacityLiters
	pred.EstimatedAutonomyDays = AutonomyDays(cfg, pred.CurrentLevelLiters, pred.DailyConsumptionLitersPerDay)
	pred.WholeAutonomyDays = int(math.Floor(pred.EstimatedAutonomyDays))
	return pred, nil
}

// HeuristicRate is the per-capita fallback consumption for a household.
func HeuristicRate(cfg config.Engine, family *entities.Family) float64 {
	occupants := cfg.DefaultHouseholdSize
	if family != nil {
		occupants = family.Occupants
	}
	return float64(occupants) * cfg.BaselinePerCapitaLitersPerDay
}

// AutonomyDays converts a level and a daily rate into days of water left, within [0, horizon].
func AutonomyDays(cfg config.Engine, levelLiters, ratePerDay float64) float64 {
	if levelLiters <= 0 {
		return 0
	}
	days := levelLiters / math.Max(ratePerDay, epsilon)
	if days > cfg.AutonomyHorizonDays {
		days = cfg.AutonomyHorizonDays
	}
	if days < 0 {
		return 0
	}
	return days
}

// ProjectLevel infers the level of c at the given time by decaying the last reading at ratePerDay.
// The result always stays within [0, capacity].
func ProjectLevel(c entities.Cistern, ratePerDay float64, at time.Time) float64 {
	level := c.CurrentLevelLiters
	if !c.LevelUpdatedAt.IsZero() && at.After(c.LevelUpdatedAt) && ratePerDay > 0 {
		level -= ratePerDay * at.Sub(c.LevelUpdatedAt).Hours() / 24
	}
	return math.Min(math.Max(level, 0), c.TotalCapacityLiters)
}

func observations(c entities.Cistern, history []entities.FillEvent, asOf time.Time) [][]reading {
	fills := make([]entities.FillEvent, 0, len(history))
	for _, f := range history {
		if !f.Timestamp.After(asOf) {
			fills = append(fills, f)
		}
	}
	sort.SliceStable(fills, func(i, j int) bool {
		return fills[i].Timestamp.Before(fills[j].Timestamp)
	})

	// A fill recorded without levels breaks the chain of readings; one with an estimated LevelBefore
	// starts a new chain at its LevelAfter.
	var chains [][]reading
	var current []reading
	for _, f := range fills {
		if f.LevelBeforeEstimated || (f.LevelAfter == 0 && f.LevelBefore == 0) {
			if len(current) > 0 {
				chains = append(chains, current)
			}
			current = nil
			if f.LevelBeforeEstimated {
				current = append(current, reading{at: f.Timestamp, level: f.LevelAfter})
			}
			continue
		}
		// Deliveries that spill over capacity only count the retained volume.
		current = append(current, reading{at: f.Timestamp, level: f.LevelAfter, added: f.LevelAfter - f.LevelBefore})
	}

	at := c.LevelUpdatedAt
	if at.IsZero() || at.After(asOf) {
		at = asOf
	}
	if len(current) == 0 || at.After(current[len(current)-1].at) {
		current = append(current, reading{at: at, level: c.CurrentLevelLiters})
	}
	return append(chains, current)
}

func measuredRate(cfg config.Engine, chains [][]reading, asOf time.Time) (rate, observedDays float64, ok bool) {
	windowStart := asOf.Add(-time.Duration(cfg.ConsumptionWindowDays * float64(day)))

	var consumed, elapsed float64
	segments := 0
	for _, chain := range chains {
		for i := 1; i < len(chain); i++ {
			prev, next := chain[i-1], chain[i]
			if !next.at.After(windowStart) {
				continue
			}

			used := prev.level + next.added - next.level
			if used < 0 {
				used = 0
			}

			start := prev.at
			if start.Before(windowStart) {
				span := next.at.Sub(prev.at)
				used *= float64(next.at.Sub(windowStart)) / float64(span)
				start = windowStart
			}

			consumed += used
			elapsed += next.at.Sub(start).Hours() / 24
			segments++
		}
	}

	if segments == 0 || elapsed < minObservedDays {
		return 0, 0, false
	}
	return consumed / elapsed, elapsed, true
}

// Input bundles one cistern with its history for batch prediction.
type Input struct {
	Cistern entities.Cistern
	History []entities.FillEvent
	Family  *entities.Family
}

// Result pairs a prediction with the error that prevented it, if any.
type Result struct {
	Prediction Prediction
	Err        error
}

// PredictAll runs Predict for independent cisterns concurrently. Results keep the input order and a
// failing cistern does not affect the others.
func PredictAll(cfg config.Engine, inputs []Input, asOf time.Time) []Result {
	results := make([]Result, len(inputs))

	var g errgroup.Group
	if cfg.MaxParallelEvaluations > 0 {
		g.SetLimit(cfg.MaxParallelEvaluations)
	}
	for i, in := range inputs {
		g.Go(func() error {
			p, err := Predict(cfg, in.Cistern, in.History, in.Family, asOf)
			results[i] = Result{Prediction: p, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
