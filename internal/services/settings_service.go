package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/ncastellanos/vecino/internal/models"
	apperrors "github.com/ncastellanos/vecino/pkg/errors"
)

// SettingsDTO is the API payload for a resident's panic configuration.
type SettingsDTO struct {
	ResidentID           string   `json:"resident_id"`
	EmergencyContacts    []string `json:"emergency_contacts"`
	NotifyAll            bool     `json:"notify_all"`
	HoldTimeSeconds      int      `json:"hold_time_seconds"`
	ExtremeModeEnabled   bool     `json:"extreme_mode_enabled"`
	AutoRecordVideo      bool     `json:"auto_record_video"`
	ShareGPSLocation     bool     `json:"share_gps_location"`
	AlertDurationMinutes int      `json:"alert_duration_minutes"`
	CustomMessage        string   `json:"custom_message,omitempty"`
}

// UpdateSettingsInput carries partial updates; nil fields are left unchanged.
type UpdateSettingsInput struct {
	EmergencyContacts    *[]string
	NotifyAll            *bool
	HoldTimeSeconds      *int
	ExtremeModeEnabled   *bool
	AutoRecordVideo      *bool
	ShareGPSLocation     *bool
	AlertDurationMinutes *int
	CustomMessage        *string
}

// SettingsService manages per-resident panic configuration.
type SettingsService struct {
	db *gorm.DB
}

// NewSettingsService constructs a SettingsService.
func NewSettingsService(db *gorm.DB) (*SettingsService, error) {
	if db == nil {
		return nil, errors.New("settings service: db is required")
	}
	return &SettingsService{db: db}, nil
}

// Get returns the resident's panic settings, creating the defaults row on
// first access so callers always see a complete configuration.
func (s *SettingsService) Get(ctx context.Context, residentID string) (*SettingsDTO, error) {
	ctx = ensureContext(ctx)
	residentID = strings.TrimSpace(residentID)
	if residentID == "" {
		return nil, errors.New("settings service: resident id is required")
	}

	settings, err := s.loadOrCreate(ctx, residentID)
	if err != nil {
		return nil, err
	}

	dto := mapSettings(*settings)
	return &dto, nil
}

// Update applies a partial update and returns the resulting configuration.
func (s *SettingsService) Update(ctx context.Context, residentID string, input UpdateSettingsInput) (*SettingsDTO, error) {
	ctx = ensureContext(ctx)
	residentID = strings.TrimSpace(residentID)
	if residentID == "" {
		return nil, errors.New("settings service: resident id is required")
	}

	settings, err := s.loadOrCreate(ctx, residentID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.EmergencyContacts != nil {
		contacts := normaliseIDs(*input.EmergencyContacts)
		settings.EmergencyContacts = models.EncodeIDList(contacts)
		updates["emergency_contacts"] = settings.EmergencyContacts
	}
	if input.NotifyAll != nil {
		settings.NotifyAll = *input.NotifyAll
		updates["notify_all"] = settings.NotifyAll
	}
	if input.HoldTimeSeconds != nil {
		if *input.HoldTimeSeconds < 1 || *input.HoldTimeSeconds > 30 {
			return nil, apperrors.NewBadRequest("hold_time_seconds must be between 1 and 30")
		}
		settings.HoldTimeSeconds = *input.HoldTimeSeconds
		updates["hold_time_seconds"] = settings.HoldTimeSeconds
	}
	if input.ExtremeModeEnabled != nil {
		settings.ExtremeModeEnabled = *input.ExtremeModeEnabled
		updates["extreme_mode_enabled"] = settings.ExtremeModeEnabled
	}
	if input.AutoRecordVideo != nil {
		settings.AutoRecordVideo = *input.AutoRecordVideo
		updates["auto_record_video"] = settings.AutoRecordVideo
	}
	if input.ShareGPSLocation != nil {
		settings.ShareGPSLocation = *input.ShareGPSLocation
		updates["share_gps_location"] = settings.ShareGPSLocation
	}
	if input.AlertDurationMinutes != nil {
		if *input.AlertDurationMinutes < 5 || *input.AlertDurationMinutes > 24*60 {
			return nil, apperrors.NewBadRequest("alert_duration_minutes must be between 5 and 1440")
		}
		settings.AlertDurationMinutes = *input.AlertDurationMinutes
		updates["alert_duration_minutes"] = settings.AlertDurationMinutes
	}
	if input.CustomMessage != nil {
		settings.CustomMessage = strings.TrimSpace(*input.CustomMessage)
		updates["custom_message"] = settings.CustomMessage
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(settings).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("settings service: update settings: %w", err)
		}
	}

	dto := mapSettings(*settings)
	return &dto, nil
}

func (s *SettingsService) loadOrCreate(ctx context.Context, residentID string) (*models.PanicSettings, error) {
	var settings models.PanicSettings
	err := s.db.WithContext(ctx).Take(&settings, "resident_id = ?", residentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		settings = models.PanicSettings{
			ResidentID:           residentID,
			NotifyAll:            true,
			HoldTimeSeconds:      5,
			ShareGPSLocation:     true,
			AlertDurationMinutes: 60,
		}
		if createErr := s.db.WithContext(ctx).Create(&settings).Error; createErr != nil {
			if isUniqueConstraintError(createErr) {
				// Lost a race with a concurrent first access; reread.
				if retryErr := s.db.WithContext(ctx).Take(&settings, "resident_id = ?", residentID).Error; retryErr != nil {
					return nil, fmt.Errorf("settings service: load settings: %w", retryErr)
				}
				return &settings, nil
			}
			return nil, fmt.Errorf("settings service: create default settings: %w", createErr)
		}
		return &settings, nil
	}
	if err != nil {
		return nil, fmt.Errorf("settings service: load settings: %w", err)
	}
	return &settings, nil
}

func mapSettings(row models.PanicSettings) SettingsDTO {
	contacts := row.ContactIDs()
	if contacts == nil {
		contacts = []string{}
	}
	return SettingsDTO{
		ResidentID:           row.ResidentID,
		EmergencyContacts:    contacts,
		NotifyAll:            row.NotifyAll,
		HoldTimeSeconds:      row.HoldTimeSeconds,
		ExtremeModeEnabled:   row.ExtremeModeEnabled,
		AutoRecordVideo:      row.AutoRecordVideo,
		ShareGPSLocation:     row.ShareGPSLocation,
		AlertDurationMinutes: row.AlertDurationMinutes,
		CustomMessage:        row.CustomMessage,
	}
}
