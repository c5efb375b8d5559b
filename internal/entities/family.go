// Package entities contains the core domain objects for the AguaSur monitoring engine
package entities

import "time"

// Family is a registered household
type Family struct {
	ID                    string    `json:"id" validate:"required"`
	Address               string    `json:"address" validate:"required"`
	Zone                  string    `json:"zone"`
	Occupants             int       `json:"occupants" validate:"gte=1"`
	Contact               string    `json:"contact"`                                   // Phone number or Telegram handle
	StorageCapacityLiters float64   `json:"storage_capacity_liters" validate:"gte=0"` // Total storage in liters
	HasCistern            bool      `json:"has_cistern"`
	Active                bool      `json:"active"` // Families are archived, never deleted
	RegisteredAt          time.Time `json:"registered_at"`
}
