// Package alerts classifies cisterns into urgency tiers from predictor output, facility priority and
// open community reports.
package alerts

import (
	"fmt"
	"sort"
	"time"

	"github.com/abelzeko/aguasur/internal/config"
	"github.com/abelzeko/aguasur/internal/entities"
	"github.com/abelzeko/aguasur/internal/predictor"
)

// ReasonCode explains which rule contributed to an alert.
type ReasonCode string

const (
	ReasonLevelLow             ReasonCode = "LEVEL_LOW"
	ReasonLevelCritical        ReasonCode = "LEVEL_CRITICAL"
	ReasonEmpty                ReasonCode = "EMPTY"
	ReasonAutonomyShort        ReasonCode = "AUTONOMY_SHORT"
	ReasonAutonomyEarlyWarning ReasonCode = "AUTONOMY_EARLY_WARNING"
	ReasonPriorityFacility     ReasonCode = "PRIORITY_FACILITY"
	ReasonReportOverride       ReasonCode = "REPORT_OVERRIDE"
	ReasonHeuristicEstimate    ReasonCode = "HEURISTIC_ESTIMATE"
)

// Alert is the classification of one cistern at one point in time.
type Alert struct {
	ID            string               `json:"id,omitempty"`
	CisternID     string               `json:"cistern_id"`
	FamilyID      string               `json:"family_id,omitempty"`
	Severity      entities.Severity    `json:"severity"`
	ReasonCodes   []ReasonCode         `json:"reason_codes"`
	ReportIDs     []string             `json:"report_ids,omitempty"`
	LevelFraction float64              `json:"level_fraction"`
	AutonomyDays  float64              `json:"autonomy_days"`
	Confidence    predictor.Confidence `json:"confidence"`
	IssuedAt      time.Time            `json:"issued_at"`
}

// HasReason reports whether code contributed to the alert.
func (a Alert) HasReason(code ReasonCode) bool {
	for _, rc := range a.ReasonCodes {
		if rc == code {
			return true
		}
	}
	return false
}

// escalation raises a cistern type's severity from one tier to another.
type escalation struct {
	from entities.Severity
	to   entities.Severity
}

// escalations is keyed by every cistern type; priority facilities move high to critical.
var escalations = map[entities.CisternType][]escalation{
	entities.CisternDomestic:     nil,
	entities.CisternCommunal:     nil,
	entities.CisternSchool:       {{from: entities.SeverityHigh, to: entities.SeverityCritical}},
	entities.CisternHealthCenter: {{from: entities.SeverityHigh, to: entities.SeverityCritical}},
}

func escalate(t entities.CisternType, s entities.Severity) (entities.Severity, bool, error) {
	rules, ok := escalations[t]
	if !ok {
		return s, false, fmt.Errorf("%w: no escalation rules for cistern type %q", entities.ErrInvalidInput, t)
	}
	for _, r := range rules {
		if r.from == s {
			return r.to, true, nil
		}
	}
	return s, false, nil
}

// Evaluate classifies c. It returns false when the cistern needs no alert. Running it twice on the same
// inputs yields the same alert.
func Evaluate(cfg config.Engine, c entities.Cistern, pred predictor.Prediction, reports []entities.Report) (Alert, bool, error) {
	if err := entities.ValidateCistern(c); err != nil {
		return Alert{}, false, err
	}
	if pred.CisternID != c.ID {
		return Alert{}, false, fmt.Errorf("%w: prediction for %s evaluated against cistern %s",
			entities.ErrInvalidInput, pred.CisternID, c.ID)
	}

	a := Alert{
		CisternID:     c.ID,
		FamilyID:      c.FamilyID,
		LevelFraction: pred.LevelFraction,
		AutonomyDays:  pred.EstimatedAutonomyDays,
		Confidence:    pred.Confidence,
		IssuedAt:      pred.AsOf,
	}
	sev := entities.SeverityNone

	switch {
	case a.LevelFraction < cfg.CriticalLevelFraction:
		sev = sev.AtLeast(entities.SeverityHigh)
		a.ReasonCodes = append(a.ReasonCodes, ReasonLevelCritical)
	case a.LevelFraction <= cfg.LowLevelFraction:
		sev = sev.AtLeast(entities.SeverityMedium)
		a.ReasonCodes = append(a.ReasonCodes, ReasonLevelLow)
	}
	if pred.CurrentLevelLiters <= 0 {
		a.ReasonCodes = append(a.ReasonCodes, ReasonEmpty)
	}

	switch {
	case pred.EstimatedAutonomyDays < cfg.EarlyWarningAutonomyDays:
		sev = entities.SeverityCritical
		a.ReasonCodes = append(a.ReasonCodes, ReasonAutonomyEarlyWarning)
	case pred.EstimatedAutonomyDays < cfg.CoordinationThresholdDays:
		sev = sev.AtLeast(entities.SeverityLow)
		a.ReasonCodes = append(a.ReasonCodes, ReasonAutonomyShort)
	}

	escalated, changed, err := escalate(c.Type, sev)
	if err != nil {
		return Alert{}, false, err
	}
	if changed {
		sev = escalated
		a.ReasonCodes = append(a.ReasonCodes, ReasonPriorityFacility)
	}

	matched := urgentReports(c, reports)
	for _, r := range matched {
		sev = sev.AtLeast(r.Urgency)
		a.ReportIDs = append(a.ReportIDs, r.ID)
	}
	if len(matched) > 0 {
		a.ReasonCodes = append(a.ReasonCodes, ReasonReportOverride)
	}

	if sev == entities.SeverityNone {
		return Alert{}, false, nil
	}
	if pred.Confidence == predictor.ConfidenceHeuristic {
		a.ReasonCodes = append(a.ReasonCodes, ReasonHeuristicEstimate)
	}
	a.Severity = sev
	return a, true, nil
}

// urgentReports returns unresolved high or critical reports about c or its family, ordered by ID.
func urgentReports(c entities.Cistern, reports []entities.Report) []entities.Report {
	var matched []entities.Report
	for _, r := range reports {
		if r.IsResolved() || !r.IsUrgent() || !r.References(c.ID, c.FamilyID) {
			continue
		}
		matched = append(matched, r)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ID < matched[j].ID
	})
	return matched
}
