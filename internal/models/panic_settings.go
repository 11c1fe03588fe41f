package models

import "gorm.io/datatypes"

// PanicSettings stores the per-resident panic button configuration consumed by
// panel agents and the dispatcher.
type PanicSettings struct {
	BaseModel

	ResidentID string `gorm:"type:uuid;uniqueIndex;not null" json:"resident_id"`

	// EmergencyContacts holds explicit recipient IDs. Ignored when NotifyAll is set.
	EmergencyContacts datatypes.JSON `json:"emergency_contacts"`
	NotifyAll         bool           `gorm:"default:false" json:"notify_all"`

	HoldTimeSeconds      int  `gorm:"default:5" json:"hold_time_seconds"`
	ExtremeModeEnabled   bool `gorm:"default:false" json:"extreme_mode_enabled"`
	AutoRecordVideo      bool `gorm:"default:false" json:"auto_record_video"`
	ShareGPSLocation     bool `gorm:"default:true" json:"share_gps_location"`
	AlertDurationMinutes int  `gorm:"default:60" json:"alert_duration_minutes"`

	// CustomMessage replaces the canned alert description when configured.
	CustomMessage string `gorm:"type:text" json:"custom_message"`
}

// ContactIDs decodes the configured emergency contact list.
func (s *PanicSettings) ContactIDs() []string {
	return decodeIDList(s.EmergencyContacts)
}
