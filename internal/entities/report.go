package entities

import "time"

// ReportType classifies a community report
type ReportType string

const (
	ReportRunningOut     ReportType = "running_out"
	ReportContaminated   ReportType = "contaminated"
	ReportInfrastructure ReportType = "infrastructure"
	ReportOther          ReportType = "other"
)

// ReportTypes lists every known report type.
func ReportTypes() []ReportType {
	return []ReportType{ReportRunningOut, ReportContaminated, ReportInfrastructure, ReportOther}
}

// ReportStatus is the triage state of a report
type ReportStatus string

const (
	ReportPending    ReportStatus = "pending"
	ReportInProgress ReportStatus = "in_progress"
	ReportResolved   ReportStatus = "resolved"
)

// Report is an emergency or problem description raised by a family or an operator
type Report struct {
	ID                    string       `json:"id"`
	FamilyID              string       `json:"family_id,omitempty"` // Empty for anonymous or zone-level reports
	CisternID             string       `json:"cistern_id,omitempty"`
	Zone                  string       `json:"zone,omitempty"`
	Type                  ReportType   `json:"type" validate:"required,oneof=running_out contaminated infrastructure other"`
	Description           string       `json:"description" validate:"required"`
	Urgency               Severity     `json:"urgency" validate:"gte=1,lte=4"`
	Status                ReportStatus `json:"status" validate:"required,oneof=pending in_progress resolved"`
	CreatedAt             time.Time    `json:"created_at" validate:"required"`
	ResolvedAt            *time.Time   `json:"resolved_at,omitempty"`
	ResolutionNotes       string       `json:"resolution_notes,omitempty"`
	UrgencyOverrideReason string       `json:"urgency_override_reason,omitempty"`
	Version               int          `json:"version"`
}

// IsResolved reports whether the report reached its terminal state.
func (r Report) IsResolved() bool {
	return r.Status == ReportResolved
}

// IsUrgent reports whether the report carries high or critical urgency.
func (r Report) IsUrgent() bool {
	return r.Urgency >= SeverityHigh
}

// References reports whether the report points at the given cistern or family.
func (r Report) References(cisternID, familyID string) bool {
	if cisternID != "" && r.CisternID == cisternID {
		return true
	}
	return familyID != "" && r.FamilyID == familyID
}
