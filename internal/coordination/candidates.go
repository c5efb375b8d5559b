package coordination

import (
	"math"
	"strings"

	"github.com/abelzeko/aguasur/internal/alerts"
	"github.com/abelzeko/aguasur/internal/entities"
	"github.com/abelzeko/aguasur/internal/predictor"
)

// BuildCandidates turns evaluated cisterns into purchase candidates. Cisterns without a prediction or
// that cannot currently receive water are skipped. Each candidate asks to be filled from its predicted
// level to capacity. The zone comes from the owning family, then the cistern's own zone, then its location.
func BuildCandidates(cisterns []entities.Cistern, families []entities.Family, predictions []predictor.Prediction, issued []alerts.Alert, reports []entities.Report) []Candidate {
	familyByID := make(map[string]entities.Family, len(families))
	for _, f := range families {
		familyByID[f.ID] = f
	}
	predByCistern := make(map[string]predictor.Prediction, len(predictions))
	for _, p := range predictions {
		predByCistern[p.CisternID] = p
	}
	severityByCistern := make(map[string]entities.Severity, len(issued))
	for _, a := range issued {
		if a.Severity > severityByCistern[a.CisternID] {
			severityByCistern[a.CisternID] = a.Severity
		}
	}

	var out []Candidate
	for _, c := range cisterns {
		if c.Status != entities.CisternOperational {
			continue
		}
		pred, ok := predByCistern[c.ID]
		if !ok {
			continue
		}
		cand := Candidate{
			MemberID:                c.ID,
			FamilyID:                c.FamilyID,
			Latitude:                c.Latitude,
			Longitude:               c.Longitude,
			Severity:                severityByCistern[c.ID],
			AutonomyDays:            pred.EstimatedAutonomyDays,
			RemainingCapacityLiters: math.Max(c.TotalCapacityLiters-pred.CurrentLevelLiters, 0),
		}
		if f, ok := familyByID[c.FamilyID]; ok && c.FamilyID != "" {
			if !f.Active {
				continue
			}
			cand.Zone = f.Zone
		}
		if strings.TrimSpace(cand.Zone) == "" {
			cand.Zone = c.Zone
		}
		if strings.TrimSpace(cand.Zone) == "" {
			cand.Zone = c.Location
		}
		for _, r := range reports {
			if r.IsResolved() || !r.References(c.ID, c.FamilyID) {
				continue
			}
			if cand.EarliestReportAt.IsZero() || r.CreatedAt.Before(cand.EarliestReportAt) {
				cand.EarliestReportAt = r.CreatedAt
			}
		}
		out = append(out, cand)
	}
	return out
}
