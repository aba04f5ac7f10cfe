package model

import "time"

// MachineStatus gates whether a machine is offered as a call target.
type MachineStatus string

const (
	MachineActive      MachineStatus = "active"
	MachineInactive    MachineStatus = "inactive"
	MachineMaintenance MachineStatus = "maintenance"
)

// DefaultMachineDuration is the call duration in minutes a machine gets when none is configured.
const DefaultMachineDuration = 90

// Machine represents a production machine calls can be raised against.
type Machine struct {
	ID          string        `gorm:"primaryKey;size:36" json:"id"`
	FactoryID   string        `gorm:"size:36;index" json:"factoryId"`
	Name        string        `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Description string        `gorm:"size:256" json:"description"`
	Status      MachineStatus `gorm:"size:16;not null;default:active" json:"status"`
	Duration    int           `gorm:"not null;default:90" json:"duration"` // minutes
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`

	// Associations
	Factory *Factory `gorm:"constraint:OnDelete:CASCADE" json:"factory,omitempty"`
}
