package store

import (
	"gorm.io/gorm"

	"machine-alert-backend/internal/model"
)

// Filter narrows a call listing. Empty fields do not filter. Status matches
// the persisted status, not the time-derived one.
type Filter struct {
	MachineID  string
	Status     model.CallStatus
	Date       string // YYYY-MM-DD
	FactoryID  string
	CategoryID string
}

func (f Filter) apply(q *gorm.DB) *gorm.DB {
	if f.Status != "" {
		q = q.Where("calls.status = ?", f.Status)
	}
	if f.Date != "" {
		q = q.Where("calls.date = ?", f.Date)
	}
	if f.MachineID != "" {
		q = q.Where("EXISTS (SELECT 1 FROM call_machines cm WHERE cm.call_id = calls.id AND cm.machine_id = ?)", f.MachineID)
	}
	if f.FactoryID != "" {
		q = q.Where(`EXISTS (SELECT 1 FROM call_machines cm
			JOIN machines m ON m.id = cm.machine_id
			WHERE cm.call_id = calls.id AND m.factory_id = ?)`, f.FactoryID)
	}
	if f.CategoryID != "" {
		q = q.Where(`EXISTS (SELECT 1 FROM call_machines cm
			JOIN machines m ON m.id = cm.machine_id
			JOIN factories fa ON fa.id = m.factory_id
			WHERE cm.call_id = calls.id AND fa.category_id = ?)`, f.CategoryID)
	}
	return q
}
