package model

import "time"

// Factory groups machines of a plant area.
type Factory struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	CategoryID  string    `gorm:"size:36;index;not null" json:"categoryId"`
	Name        string    `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Description string    `gorm:"size:256" json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// Associations
	Category *Category `gorm:"constraint:OnDelete:CASCADE" json:"category,omitempty"`
	Machines []Machine `gorm:"foreignKey:FactoryID" json:"-"`
}

// Category is the top level of the plant hierarchy.
type Category struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Name        string    `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Description string    `gorm:"size:256" json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	Factories []Factory `gorm:"foreignKey:CategoryID" json:"-"`
}
