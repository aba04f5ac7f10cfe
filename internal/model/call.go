package model

import "time"

// CallStatus is the lifecycle state of a call.
type CallStatus string

const (
	StatusPending   CallStatus = "Pendiente"
	StatusCompleted CallStatus = "Realizada"
	StatusExpired   CallStatus = "Expirada"
)

// Valid reports whether s is one of the known statuses.
func (s CallStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s CallStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusExpired
}

// CallType distinguishes regular calls from the short mold-change variant.
type CallType string

const (
	CallTypeNormal CallType = "normal"
	CallTypeMole   CallType = "mole"
)

// Valid reports whether t is one of the known call types.
func (t CallType) Valid() bool {
	return t == CallTypeNormal || t == CallTypeMole
}

// Call is a timed request raised by production against one or more machines.
type Call struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	CallTime       time.Time  `gorm:"not null;index:idx_calls_status_call_time,priority:2" json:"callTime"`
	Date           string     `gorm:"size:10;not null;index" json:"date"` // YYYY-MM-DD in the plant timezone
	Duration       int        `gorm:"not null" json:"duration"`           // minutes
	CallType       CallType   `gorm:"size:16;not null;default:normal" json:"callType"`
	Status         CallStatus `gorm:"size:16;not null;index:idx_calls_status_call_time,priority:1" json:"status"`
	CompletionTime *time.Time `json:"completionTime"`
	CreatedBy      string     `gorm:"size:32;not null" json:"createdBy"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`

	// Associations
	MachineRefs []CallMachine `gorm:"foreignKey:CallID;constraint:OnDelete:CASCADE" json:"-"`
}

// MachineIDs returns the ids of the machines the call references.
func (c *Call) MachineIDs() []string {
	ids := make([]string, 0, len(c.MachineRefs))
	for _, ref := range c.MachineRefs {
		ids = append(ids, ref.MachineID)
	}
	return ids
}

// CallMachine is a weak reference from a call to a machine. There is no
// foreign key on MachineID: machines may disappear while their calls remain.
type CallMachine struct {
	CallID    string `gorm:"primaryKey;size:36"`
	MachineID string `gorm:"primaryKey;size:36;index"`
}
