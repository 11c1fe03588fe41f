package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// AlertStatus enumerates the panic alert lifecycle states.
type AlertStatus string

const (
	AlertStatusActive   AlertStatus = "active"
	AlertStatusResolved AlertStatus = "resolved"
	AlertStatusExpired  AlertStatus = "expired"
)

// Terminal reports whether the status permits no further transitions.
func (s AlertStatus) Terminal() bool {
	return s == AlertStatusResolved || s == AlertStatusExpired
}

// PanicAlert is the durable record of a triggered emergency alert. Originator
// identity, the notified snapshot, the expiry deadline, and the descriptive
// flags are written once at creation and never updated afterwards; only
// status, acknowledged_by, and the resolution fields change.
type PanicAlert struct {
	BaseModel

	OriginatorID    string `gorm:"type:uuid;index;not null" json:"originator_id"`
	OriginatorName  string `gorm:"not null" json:"originator_name"`
	OriginatorEmail string `json:"originator_email"`

	Location     string   `gorm:"type:text" json:"location"`
	GPSLatitude  *float64 `json:"gps_latitude"`
	GPSLongitude *float64 `json:"gps_longitude"`

	Description string `gorm:"type:text" json:"description"`

	Status AlertStatus `gorm:"type:varchar(16);default:'active';index" json:"status"`

	// NotifiedUserIDs is the recipient snapshot resolved once at dispatch time.
	NotifiedUserIDs datatypes.JSON `json:"notified_user_ids"`
	// AcknowledgedBy grows monotonically; entries are never removed.
	AcknowledgedBy datatypes.JSON `json:"acknowledged_by"`

	DurationMinutes int       `gorm:"not null" json:"duration_minutes"`
	ExpiresAt       time.Time `gorm:"index;not null" json:"expires_at"`

	ExtremeMode   bool   `json:"extreme_mode"`
	HasVideo      bool   `json:"has_video"`
	ActivatedFrom string `gorm:"type:varchar(64)" json:"activated_from"`

	ResolvedAt *time.Time `json:"resolved_at"`
	ResolvedBy string     `gorm:"type:uuid" json:"resolved_by,omitempty"`
}

// NotifiedIDs decodes the notified snapshot.
func (a *PanicAlert) NotifiedIDs() []string {
	return decodeIDList(a.NotifiedUserIDs)
}

// AckedIDs decodes the acknowledgment set.
func (a *PanicAlert) AckedIDs() []string {
	return decodeIDList(a.AcknowledgedBy)
}

// EffectiveStatus applies read-time expiry correction: an active alert whose
// deadline has passed is reported expired even before the sweep persists the
// transition.
func (a *PanicAlert) EffectiveStatus(now time.Time) AlertStatus {
	if a.Status == AlertStatusActive && now.After(a.ExpiresAt) {
		return AlertStatusExpired
	}
	return a.Status
}

// EncodeIDList marshals an identifier slice for storage in a JSON column.
func EncodeIDList(ids []string) datatypes.JSON {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(data)
}

func decodeIDList(data datatypes.JSON) []string {
	if len(data) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
