// Package dashboard aggregates a store snapshot into the community-level figures shown to operators.
package dashboard

import (
	"sort"
	"time"

	"github.com/abelzeko/aguasur/internal/alerts"
	"github.com/abelzeko/aguasur/internal/config"
	"github.com/abelzeko/aguasur/internal/coordination"
	"github.com/abelzeko/aguasur/internal/entities"
	"github.com/abelzeko/aguasur/internal/predictor"
)

// Snapshot is everything Summarize looks at. AlertHistory feeds the early-warning figures; when it is
// nil the current Alerts are used instead.
type Snapshot struct {
	AsOf         time.Time
	Families     []entities.Family
	Cisterns     []entities.Cistern
	Fills        []entities.FillEvent
	Reports      []entities.Report
	Predictions  []predictor.Prediction
	Alerts       []alerts.Alert
	AlertHistory []alerts.Alert
	Groups       []coordination.Group
}

type FamilySummary struct {
	Total          int `json:"total"`
	Active         int `json:"active"`
	WithCistern    int `json:"with_cistern"`
	WithoutCistern int `json:"without_cistern"`
	Occupants      int `json:"occupants"`
}

type CisternSummary struct {
	Total               int                            `json:"total"`
	ByStatus            map[entities.CisternStatus]int `json:"by_status"`
	ByType              map[entities.CisternType]int   `json:"by_type"`
	Empty               int                            `json:"empty"`
	Critical            int                            `json:"critical"`
	Low                 int                            `json:"low"`
	Priority            int                            `json:"priority"`
	TotalCapacityLiters float64                        `json:"total_capacity_liters"`
	TotalLevelLiters    float64                        `json:"total_level_liters"`
	PercentFull         float64                        `json:"percent_full"`
}

// SeveritySummary counts evaluated cisterns per tier. Fractions sum to 1 when anything was evaluated.
type SeveritySummary struct {
	Evaluated int                           `json:"evaluated"`
	Counts    map[entities.Severity]int     `json:"counts"`
	Fractions map[entities.Severity]float64 `json:"fractions"`
}

type FillSummary struct {
	Count               int     `json:"count"`
	Liters              float64 `json:"liters"`
	Cost                float64 `json:"cost"`
	AverageCostPerLiter float64 `json:"average_cost_per_liter"`
}

type ReportSummary struct {
	Total            int                           `json:"total"`
	ByStatus         map[entities.ReportStatus]int `json:"by_status"`
	ByType           map[entities.ReportType]int   `json:"by_type"`
	UrgentUnresolved int                           `json:"urgent_unresolved"`
}

// EarlyWarningSummary measures how often an alert came before the running-out report it predicted.
type EarlyWarningSummary struct {
	WindowDays             float64 `json:"window_days"`
	Warnings               int     `json:"warnings"`
	WarningsAheadOfReports int     `json:"warnings_ahead_of_reports"`
	MeanLeadHours          float64 `json:"mean_lead_hours"`
	PreventedEmergencies   int     `json:"prevented_emergencies"`
}

type Summary struct {
	AsOf                time.Time           `json:"as_of"`
	Families            FamilySummary       `json:"families"`
	Cisterns            CisternSummary      `json:"cisterns"`
	Severity            SeveritySummary     `json:"severity"`
	Fills               FillSummary         `json:"fills"`
	Reports             ReportSummary       `json:"reports"`
	CoordinationSavings float64             `json:"coordination_savings"`
	EarlyWarnings       EarlyWarningSummary `json:"early_warnings"`
}

// Summarize is pure: the same snapshot always yields the same summary.
func Summarize(cfg config.Engine, s Snapshot) Summary {
	return Summary{
		AsOf:                s.AsOf,
		Families:            summarizeFamilies(s.Families),
		Cisterns:            summarizeCisterns(cfg, s.Cisterns, s.Predictions),
		Severity:            summarizeSeverity(s.Predictions, s.Alerts),
		Fills:               summarizeFills(s.Fills),
		Reports:             summarizeReports(s.Reports),
		CoordinationSavings: Savings(s.Groups),
		EarlyWarnings:       summarizeEarlyWarnings(cfg, s),
	}
}

func summarizeFamilies(families []entities.Family) FamilySummary {
	var out FamilySummary
	for _, f := range families {
		out.Total++
		if f.Active {
			out.Active++
			out.Occupants += f.Occupants
		}
		if f.HasCistern {
			out.WithCistern++
		} else {
			out.WithoutCistern++
		}
	}
	return out
}

// summarizeCisterns uses the level projected by a prediction when one exists, and the stored reading otherwise.
func summarizeCisterns(cfg config.Engine, cisterns []entities.Cistern, preds []predictor.Prediction) CisternSummary {
	out := CisternSummary{
		ByStatus: make(map[entities.CisternStatus]int),
		ByType:   make(map[entities.CisternType]int),
	}
	projected := make(map[string]float64, len(preds))
	for _, p := range preds {
		if !p.AsOf.IsZero() {
			projected[p.CisternID] = p.CurrentLevelLiters
		}
	}
	for _, c := range cisterns {
		if level, ok := projected[c.ID]; ok {
			c.CurrentLevelLiters = level
		}
		out.Total++
		out.ByStatus[c.Status]++
		out.ByType[c.Type]++
		out.TotalCapacityLiters += c.TotalCapacityLiters
		out.TotalLevelLiters += c.CurrentLevelLiters
		if c.IsPriority() {
			out.Priority++
		}
		f := c.LevelFraction()
		switch {
		case f < cfg.CriticalLevelFraction:
			out.Critical++
		case f <= cfg.LowLevelFraction:
			out.Low++
		}
		if c.CurrentLevelLiters <= 0 {
			out.Empty++
		}
	}
	if out.TotalCapacityLiters > 0 {
		out.PercentFull = out.TotalLevelLiters / out.TotalCapacityLiters * 100
	}
	return out
}

func summarizeSeverity(preds []predictor.Prediction, issued []alerts.Alert) SeveritySummary {
	worst := make(map[string]entities.Severity)
	for _, p := range preds {
		worst[p.CisternID] = entities.SeverityNone
	}
	for _, a := range issued {
		if cur, ok := worst[a.CisternID]; !ok || a.Severity > cur {
			worst[a.CisternID] = a.Severity
		}
	}

	out := SeveritySummary{
		Evaluated: len(worst),
		Counts:    make(map[entities.Severity]int),
		Fractions: make(map[entities.Severity]float64),
	}
	for _, s := range entities.AllSeverities() {
		out.Counts[s] = 0
		out.Fractions[s] = 0
	}
	for _, s := range worst {
		out.Counts[s]++
	}
	if out.Evaluated > 0 {
		for s, n := range out.Counts {
			out.Fractions[s] = float64(n) / float64(out.Evaluated)
		}
	}
	return out
}

func summarizeFills(fills []entities.FillEvent) FillSummary {
	var out FillSummary
	for _, f := range fills {
		out.Count++
		out.Liters += f.LitersAdded
		out.Cost += f.Cost
	}
	if out.Liters > 0 {
		out.AverageCostPerLiter = out.Cost / out.Liters
	}
	return out
}

func summarizeReports(reports []entities.Report) ReportSummary {
	out := ReportSummary{
		ByStatus: make(map[entities.ReportStatus]int),
		ByType:   make(map[entities.ReportType]int),
	}
	for _, r := range reports {
		out.Total++
		out.ByStatus[r.Status]++
		out.ByType[r.Type]++
		if r.IsUrgent() && !r.IsResolved() {
			out.UrgentUnresolved++
		}
	}
	return out
}

// Savings is the sum over allocations of (individual unit cost - group unit cost) * liters delivered.
func Savings(groups []coordination.Group) float64 {
	var total float64
	for _, g := range groups {
		for _, a := range g.Allocations {
			total += (a.IndividualCostPerLiter - g.CostPerLiter) * a.Liters
		}
	}
	return total
}

// summarizeEarlyWarnings counts the first high-or-worse alert per cistern issued inside the window. A
// warning is ahead of a report when a running-out report for the same cistern or family was created
// after it, within the window and by AsOf; otherwise it counts as a prevented emergency.
func summarizeEarlyWarnings(cfg config.Engine, s Snapshot) EarlyWarningSummary {
	history := s.AlertHistory
	if history == nil {
		history = s.Alerts
	}
	window := time.Duration(cfg.EarlyWarningWindowDays * float64(24*time.Hour))
	out := EarlyWarningSummary{WindowDays: cfg.EarlyWarningWindowDays}

	first := make(map[string]alerts.Alert)
	for _, a := range history {
		if a.Severity < entities.SeverityHigh {
			continue
		}
		if a.IssuedAt.After(s.AsOf) || !a.IssuedAt.After(s.AsOf.Add(-window)) {
			continue
		}
		if prev, ok := first[a.CisternID]; !ok || a.IssuedAt.Before(prev.IssuedAt) {
			first[a.CisternID] = a
		}
	}

	ids := make([]string, 0, len(first))
	for id := range first {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var leadHours float64
	for _, id := range ids {
		w := first[id]
		out.Warnings++
		lead, ok := reportAfter(s.Reports, w, window, s.AsOf)
		if !ok {
			out.PreventedEmergencies++
			continue
		}
		out.WarningsAheadOfReports++
		leadHours += lead.Hours()
	}
	if out.WarningsAheadOfReports > 0 {
		out.MeanLeadHours = leadHours / float64(out.WarningsAheadOfReports)
	}
	return out
}

func reportAfter(reports []entities.Report, w alerts.Alert, window time.Duration, asOf time.Time) (time.Duration, bool) {
	var best time.Duration
	found := false
	for _, r := range reports {
		if r.Type != entities.ReportRunningOut || !r.References(w.CisternID, w.FamilyID) {
			continue
		}
		if r.CreatedAt.Before(w.IssuedAt) || r.CreatedAt.After(asOf) || r.CreatedAt.Sub(w.IssuedAt) > window {
			continue
		}
		lead := r.CreatedAt.Sub(w.IssuedAt)
		if !found || lead < best {
			best, found = lead, true
		}
	}
	return best, found
}
