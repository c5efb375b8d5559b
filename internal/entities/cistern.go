package entities

import "time"

// CisternType is the closed set of cistern kinds
type CisternType string

const (
	CisternDomestic     CisternType = "domestic"
	CisternSchool       CisternType = "school"
	CisternHealthCenter CisternType = "health_center"
	CisternCommunal     CisternType = "communal"
)

// CisternTypes lists every known cistern type.
func CisternTypes() []CisternType {
	return []CisternType{CisternDomestic, CisternSchool, CisternHealthCenter, CisternCommunal}
}

// CisternStatus is the operational state of a cistern
type CisternStatus string

const (
	CisternOperational CisternStatus = "operational"
	CisternDamaged     CisternStatus = "damaged"
	CisternMaintenance CisternStatus = "maintenance"
	CisternInactive    CisternStatus = "inactive"
	CisternRetired     CisternStatus = "retired"
)

// CisternStatuses lists every known cistern status.
func CisternStatuses() []CisternStatus {
	return []CisternStatus{CisternOperational, CisternDamaged, CisternMaintenance, CisternInactive, CisternRetired}
}

// Cistern is a physical water storage unit
type Cistern struct {
	ID                  string        `json:"id" validate:"required"`
	Location            string        `json:"location" validate:"required"`
	Zone                string        `json:"zone,omitempty"` // Used for grouping when no family zone applies
	Latitude            *float64      `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude           *float64      `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
	Type                CisternType   `json:"type" validate:"required,oneof=domestic school health_center communal"`
	TotalCapacityLiters float64       `json:"total_capacity_liters" validate:"gt=0"`
	CurrentLevelLiters  float64       `json:"current_level_liters" validate:"gte=0,ltefield=TotalCapacityLiters"`
	FamilyID            string        `json:"family_id,omitempty"`
	Status              CisternStatus `json:"status" validate:"required,oneof=operational damaged maintenance inactive retired"`
	InstalledAt         time.Time     `json:"installed_at"`
	LevelUpdatedAt      time.Time     `json:"level_updated_at"` // When CurrentLevelLiters was read
}

// LevelFraction returns the fill ratio in [0, 1].
func (c Cistern) LevelFraction() float64 {
	if c.TotalCapacityLiters <= 0 {
		return 0
	}
	return c.CurrentLevelLiters / c.TotalCapacityLiters
}

// RemainingCapacity returns how many liters fit before the cistern is full.
func (c Cistern) RemainingCapacity() float64 {
	rem := c.TotalCapacityLiters - c.CurrentLevelLiters
	if rem < 0 {
		return 0
	}
	return rem
}

// HasCoordinates reports whether both latitude and longitude are known.
func (c Cistern) HasCoordinates() bool {
	return c.Latitude != nil && c.Longitude != nil
}

// IsPriority reports whether the cistern serves a priority facility.
func (c Cistern) IsPriority() bool {
	return c.Type == CisternSchool || c.Type == CisternHealthCenter
}
