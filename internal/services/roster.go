package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/ncastellanos/vecino/internal/models"
)

// Roster exposes the set of residents eligible for notify-all panic alerts.
type Roster interface {
	EnrolledActiveIDs(ctx context.Context) ([]string, error)
}

// GormRoster answers roster queries from the residents table. Eligibility
// means panic-enrolled and active; the query runs at dispatch time so the
// snapshot reflects current membership.
type GormRoster struct {
	db *gorm.DB
}

// NewGormRoster constructs a database-backed roster.
func NewGormRoster(db *gorm.DB) *GormRoster {
	return &GormRoster{db: db}
}

// EnrolledActiveIDs returns the IDs of every enrolled, active resident.
func (r *GormRoster) EnrolledActiveIDs(ctx context.Context) ([]string, error) {
	ctx = ensureContext(ctx)

	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.Resident{}).
		Where("panic_enrolled = ? AND is_active = ?", true, true).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("roster: list enrolled residents: %w", err)
	}
	return ids, nil
}
