package models

import "time"

// Resident describes a community member known to the portal. Identity and
// credentials live with the upstream auth provider; this table carries only
// the portal-facing profile and roster flags.
type Resident struct {
	BaseModel

	Name  string `gorm:"not null" json:"name"`
	Email string `gorm:"uniqueIndex;not null" json:"email"`
	Phone string `json:"phone"`
	Unit  string `gorm:"type:varchar(32)" json:"unit"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	// PanicEnrolled marks residents that participate in the panic-alert roster.
	// Notify-all recipient resolution targets residents that are both enrolled
	// and active.
	PanicEnrolled bool `gorm:"default:true;index" json:"panic_enrolled"`

	LastSeenAt *time.Time `json:"last_seen_at"`
}
