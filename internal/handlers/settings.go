package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ncastellanos/vecino/internal/middleware"
	"github.com/ncastellanos/vecino/internal/services"
	"github.com/ncastellanos/vecino/pkg/errors"
	"github.com/ncastellanos/vecino/pkg/response"
)

// SettingsHandler exposes per-resident panic configuration.
type SettingsHandler struct {
	service *services.SettingsService
}

// NewSettingsHandler constructs a settings handler.
func NewSettingsHandler(db *gorm.DB) (*SettingsHandler, error) {
	service, err := services.NewSettingsService(db)
	if err != nil {
		return nil, err
	}
	return &SettingsHandler{service: service}, nil
}

// Get returns the current user's panic settings.
func (h *SettingsHandler) Get(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	dto, err := h.service.Get(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, dto)
}

// UpdateSettingsRequest is the PATCH payload; absent fields stay untouched.
type UpdateSettingsRequest struct {
	EmergencyContacts    *[]string `json:"emergency_contacts"`
	NotifyAll            *bool     `json:"notify_all"`
	HoldTimeSeconds      *int      `json:"hold_time_seconds" validate:"omitempty,hold_seconds"`
	ExtremeModeEnabled   *bool     `json:"extreme_mode_enabled"`
	AutoRecordVideo      *bool     `json:"auto_record_video"`
	ShareGPSLocation     *bool     `json:"share_gps_location"`
	AlertDurationMinutes *int      `json:"alert_duration_minutes" validate:"omitempty,alert_duration"`
	CustomMessage        *string   `json:"custom_message" validate:"omitempty,max=2048"`
}

// Update applies a partial settings update.
func (h *SettingsHandler) Update(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req UpdateSettingsRequest
	if !bindAndValidate(c, &req) {
		return
	}

	dto, err := h.service.Update(c.Request.Context(), userID, services.UpdateSettingsInput{
		EmergencyContacts:    req.EmergencyContacts,
		NotifyAll:            req.NotifyAll,
		HoldTimeSeconds:      req.HoldTimeSeconds,
		ExtremeModeEnabled:   req.ExtremeModeEnabled,
		AutoRecordVideo:      req.AutoRecordVideo,
		ShareGPSLocation:     req.ShareGPSLocation,
		AlertDurationMinutes: req.AlertDurationMinutes,
		CustomMessage:        req.CustomMessage,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, dto)
}
