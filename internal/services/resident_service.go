package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ncastellanos/vecino/internal/models"
	"github.com/ncastellanos/vecino/internal/realtime"
	apperrors "github.com/ncastellanos/vecino/pkg/errors"
)

// ResidentDTO is the API payload for a community member.
type ResidentDTO struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone,omitempty"`
	Unit          string     `json:"unit,omitempty"`
	IsActive      bool       `json:"is_active"`
	PanicEnrolled bool       `json:"panic_enrolled"`
	Online        bool       `json:"online"`
	LastSeenAt    *time.Time `json:"last_seen_at,omitempty"`
}

// CreateResidentInput defines attributes required to register a resident.
type CreateResidentInput struct {
	Name          string
	Email         string
	Phone         string
	Unit          string
	PanicEnrolled *bool
}

// ResidentService manages resident profiles and the panic roster view.
type ResidentService struct {
	db  *gorm.DB
	hub *realtime.Hub
}

// NewResidentService constructs a ResidentService. The hub may be nil; the
// roster then reports everyone as offline.
func NewResidentService(db *gorm.DB, hub *realtime.Hub) (*ResidentService, error) {
	if db == nil {
		return nil, errors.New("resident service: db is required")
	}
	return &ResidentService{db: db, hub: hub}, nil
}

// Create registers a resident together with their default panic settings.
func (s *ResidentService) Create(ctx context.Context, input CreateResidentInput) (*ResidentDTO, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if name == "" || email == "" {
		return nil, apperrors.NewBadRequest("name and email are required")
	}

	optedOut := input.PanicEnrolled != nil && !*input.PanicEnrolled

	resident := models.Resident{
		Name:          name,
		Email:         email,
		Phone:         strings.TrimSpace(input.Phone),
		Unit:          strings.TrimSpace(input.Unit),
		IsActive:      true,
		PanicEnrolled: !optedOut,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&resident).Error; err != nil {
			return err
		}
		// A false flag is skipped on insert because of the column default,
		// and drivers with RETURNING write the default back into the struct.
		// Branch on the caller's intent and issue the opt-out explicitly.
		if optedOut {
			if err := tx.Model(&resident).Update("panic_enrolled", false).Error; err != nil {
				return err
			}
			resident.PanicEnrolled = false
		}
		settings := models.PanicSettings{
			ResidentID:           resident.ID,
			NotifyAll:            true,
			HoldTimeSeconds:      5,
			ShareGPSLocation:     true,
			AlertDurationMinutes: 60,
		}
		return tx.Create(&settings).Error
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewBadRequest("email already registered")
		}
		return nil, fmt.Errorf("resident service: create resident: %w", err)
	}

	dto := s.mapResident(resident)
	return &dto, nil
}

// Get loads a single resident.
func (s *ResidentService) Get(ctx context.Context, id string) (*ResidentDTO, error) {
	ctx = ensureContext(ctx)

	var resident models.Resident
	if err := s.db.WithContext(ctx).Take(&resident, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("resident service: load resident: %w", err)
	}

	dto := s.mapResident(resident)
	return &dto, nil
}

// RosterEntries returns the enrolled, active residents with their current
// presence. This is the same eligibility set the dispatcher snapshots for
// notify-all alerts.
func (s *ResidentService) RosterEntries(ctx context.Context) ([]ResidentDTO, error) {
	ctx = ensureContext(ctx)

	var rows []models.Resident
	err := s.db.WithContext(ctx).
		Where("panic_enrolled = ? AND is_active = ?", true, true).
		Order("name ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("resident service: load roster: %w", err)
	}

	items := make([]ResidentDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, s.mapResident(row))
	}
	return items, nil
}

// TouchLastSeen stamps the resident's last activity time. Failures are not
// fatal to the caller's request path.
func (s *ResidentService) TouchLastSeen(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	now := time.Now().UTC()
	return s.db.WithContext(ctx).
		Model(&models.Resident{}).
		Where("id = ?", id).
		Update("last_seen_at", now).Error
}

func (s *ResidentService) mapResident(row models.Resident) ResidentDTO {
	online := false
	if s.hub != nil {
		online = s.hub.IsOnline(row.ID)
	}
	return ResidentDTO{
		ID:            row.ID,
		Name:          row.Name,
		Email:         row.Email,
		Phone:         row.Phone,
		Unit:          row.Unit,
		IsActive:      row.IsActive,
		PanicEnrolled: row.PanicEnrolled,
		Online:        online,
		LastSeenAt:    row.LastSeenAt,
	}
}
