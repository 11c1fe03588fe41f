package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ncastellanos/vecino/internal/alerting"
	"github.com/ncastellanos/vecino/internal/middleware"
	"github.com/ncastellanos/vecino/internal/realtime"
	"github.com/ncastellanos/vecino/internal/services"
	"github.com/ncastellanos/vecino/pkg/errors"
	"github.com/ncastellanos/vecino/pkg/response"
)

// AlertHandler exposes the durable alert channel over HTTP.
type AlertHandler struct {
	service  *services.AlertService
	settings *services.SettingsService
	resolver *alerting.Resolver
}

// NewAlertHandler constructs an alert handler.
func NewAlertHandler(db *gorm.DB, hub *realtime.Hub) (*AlertHandler, error) {
	service, err := services.NewAlertService(db, hub)
	if err != nil {
		return nil, err
	}
	settings, err := services.NewSettingsService(db)
	if err != nil {
		return nil, err
	}
	return &AlertHandler{
		service:  service,
		settings: settings,
		resolver: alerting.NewResolver(services.NewGormRoster(db)),
	}, nil
}

// Service exposes the underlying alert service for wiring.
func (h *AlertHandler) Service() *services.AlertService {
	return h.service
}

// CreateAlertRequest is the POST /api/alerts payload. Recipients arrive either
// as an explicit list or as notify_all; with neither set, the originator's
// stored panic settings decide.
type CreateAlertRequest struct {
	Location        string   `json:"location" validate:"max=512"`
	GPSLatitude     *float64 `json:"gps_latitude"`
	GPSLongitude    *float64 `json:"gps_longitude"`
	Description     string   `json:"description" validate:"max=2048"`
	RecipientIDs    []string `json:"recipient_ids"`
	NotifyAll       *bool    `json:"notify_all"`
	DurationMinutes int      `json:"duration_minutes" validate:"alert_duration"`
	ExtremeMode     bool     `json:"extreme_mode"`
	HasVideo        bool     `json:"has_video"`
	ActivatedFrom   string   `json:"activated_from" validate:"max=64"`
}

// Create persists a panic alert. This endpoint is the record of truth; the
// realtime push runs over the socket independently and never through here.
func (h *AlertHandler) Create(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req CreateAlertRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := c.Request.Context()

	cfg, err := h.settings.Get(ctx, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	spec := alerting.TargetSpec{ExplicitIDs: req.RecipientIDs}
	if len(req.RecipientIDs) == 0 {
		if req.NotifyAll != nil {
			spec = alerting.TargetSpec{NotifyAll: *req.NotifyAll, ExplicitIDs: cfg.EmergencyContacts}
		} else {
			spec = alerting.TargetSpec{NotifyAll: cfg.NotifyAll, ExplicitIDs: cfg.EmergencyContacts}
		}
	} else if req.NotifyAll != nil && *req.NotifyAll {
		spec = alerting.TargetSpec{NotifyAll: true}
	}

	recipients, err := h.resolver.Resolve(ctx, userID, spec)
	if err != nil {
		response.Error(c, err)
		return
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = cfg.CustomMessage
	}
	duration := req.DurationMinutes
	if duration <= 0 {
		duration = cfg.AlertDurationMinutes
	}

	dto, err := h.service.Create(ctx, services.CreateAlertInput{
		OriginatorID:    userID,
		OriginatorName:  c.GetString(middleware.CtxNameKey),
		OriginatorEmail: c.GetString(middleware.CtxEmailKey),
		Location:        req.Location,
		GPSLatitude:     req.GPSLatitude,
		GPSLongitude:    req.GPSLongitude,
		Description:     description,
		NotifiedUserIDs: recipients,
		DurationMinutes: duration,
		ExtremeMode:     req.ExtremeMode || cfg.ExtremeModeEnabled,
		HasVideo:        req.HasVideo,
		ActivatedFrom:   req.ActivatedFrom,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, dto)
}

// List returns alerts visible to the current user, newest first.
func (h *AlertHandler) List(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	limit := parseIntQuery(c, "limit", 25)
	items, err := h.service.ListForUser(c.Request.Context(), userID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, items)
}

// Get returns a single alert. Only the originator and notified recipients may
// read it.
func (h *AlertHandler) Get(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	dto, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	if dto.OriginatorID != userID && !contains(dto.NotifiedUserIDs, userID) {
		response.Error(c, errors.ErrForbidden)
		return
	}

	response.Success(c, http.StatusOK, dto)
}

// Acknowledge records that the current user saw the alert.
func (h *AlertHandler) Acknowledge(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	dto, err := h.service.Acknowledge(c.Request.Context(), id, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, dto)
}

// Resolve stands the alert down.
func (h *AlertHandler) Resolve(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	dto, err := h.service.Resolve(c.Request.Context(), id, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, dto)
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
