package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/ncastellanos/vecino/internal/models"
	"github.com/ncastellanos/vecino/internal/realtime"
	apperrors "github.com/ncastellanos/vecino/pkg/errors"
	"github.com/ncastellanos/vecino/pkg/metrics"
)

const (
	defaultAlertDurationMinutes = 60
	alertLockStripes            = 64
)

// AlertDTO represents the API-friendly panic alert payload. Status carries the
// read-time expiry correction: an overdue active alert is reported expired even
// before the background sweep persists the transition.
type AlertDTO struct {
	ID              string             `json:"id"`
	OriginatorID    string             `json:"originator_id"`
	OriginatorName  string             `json:"originator_name"`
	OriginatorEmail string             `json:"originator_email,omitempty"`
	Location        string             `json:"location"`
	GPSLatitude     *float64           `json:"gps_latitude,omitempty"`
	GPSLongitude    *float64           `json:"gps_longitude,omitempty"`
	Description     string             `json:"description"`
	Status          models.AlertStatus `json:"status"`
	NotifiedUserIDs []string           `json:"notified_user_ids"`
	AcknowledgedBy  []string           `json:"acknowledged_by"`
	DurationMinutes int                `json:"duration_minutes"`
	CreatedAt       time.Time          `json:"created_at"`
	ExpiresAt       time.Time          `json:"expires_at"`
	ExtremeMode     bool               `json:"extreme_mode"`
	HasVideo        bool               `json:"has_video"`
	ActivatedFrom   string             `json:"activated_from,omitempty"`
	ResolvedAt      *time.Time         `json:"resolved_at,omitempty"`
	ResolvedBy      string             `json:"resolved_by,omitempty"`
}

// CreateAlertInput defines attributes required to persist a panic alert.
// NotifiedUserIDs must already be the resolved recipient snapshot.
type CreateAlertInput struct {
	OriginatorID    string
	OriginatorName  string
	OriginatorEmail string
	Location        string
	GPSLatitude     *float64
	GPSLongitude    *float64
	Description     string
	NotifiedUserIDs []string
	DurationMinutes int
	ExtremeMode     bool
	HasVideo        bool
	ActivatedFrom   string
}

// AlertService owns the panic alert lifecycle: creation, acknowledgment,
// resolution, and deadline-based expiry. All mutations of a given alert pass
// through a per-alert-ID lock so concurrent acknowledgments never lose updates.
type AlertService struct {
	db    *gorm.DB
	hub   *realtime.Hub
	now   func() time.Time
	locks [alertLockStripes]sync.Mutex
}

// AlertServiceOption customises the AlertService.
type AlertServiceOption func(*AlertService)

// WithAlertClock overrides the clock, primarily for tests.
func WithAlertClock(now func() time.Time) AlertServiceOption {
	return func(s *AlertService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewAlertService constructs an AlertService. The hub may be nil; lifecycle
// events are then not broadcast.
func NewAlertService(db *gorm.DB, hub *realtime.Hub, opts ...AlertServiceOption) (*AlertService, error) {
	if db == nil {
		return nil, errors.New("alert service: db is required")
	}
	svc := &AlertService{db: db, hub: hub, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create persists a new alert as the durable channel of record and returns the
// store-assigned ID. The notified snapshot and expiry deadline are fixed here
// and never recomputed.
func (s *AlertService) Create(ctx context.Context, input CreateAlertInput) (*AlertDTO, error) {
	ctx = ensureContext(ctx)

	originatorID := strings.TrimSpace(input.OriginatorID)
	if originatorID == "" {
		return nil, errors.New("alert service: originator id is required")
	}
	if strings.TrimSpace(input.OriginatorName) == "" {
		return nil, errors.New("alert service: originator name is required")
	}

	notified := normaliseIDs(input.NotifiedUserIDs)
	if len(notified) == 0 {
		return nil, apperrors.ErrNoRecipients
	}

	duration := input.DurationMinutes
	if duration <= 0 {
		duration = defaultAlertDurationMinutes
	}

	now := s.now().UTC()
	alert := models.PanicAlert{
		OriginatorID:    originatorID,
		OriginatorName:  strings.TrimSpace(input.OriginatorName),
		OriginatorEmail: strings.TrimSpace(input.OriginatorEmail),
		Location:        strings.TrimSpace(input.Location),
		GPSLatitude:     input.GPSLatitude,
		GPSLongitude:    input.GPSLongitude,
		Description:     strings.TrimSpace(input.Description),
		Status:          models.AlertStatusActive,
		NotifiedUserIDs: models.EncodeIDList(notified),
		AcknowledgedBy:  models.EncodeIDList(nil),
		DurationMinutes: duration,
		ExpiresAt:       now.Add(time.Duration(duration) * time.Minute),
		ExtremeMode:     input.ExtremeMode,
		HasVideo:        input.HasVideo,
		ActivatedFrom:   strings.TrimSpace(input.ActivatedFrom),
	}
	alert.CreatedAt = now

	if err := s.db.WithContext(ctx).Create(&alert).Error; err != nil {
		return nil, fmt.Errorf("alert service: create alert: %w", err)
	}

	dto := mapAlert(alert, s.now())
	return &dto, nil
}

// Get loads a single alert.
func (s *AlertService) Get(ctx context.Context, alertID string) (*AlertDTO, error) {
	ctx = ensureContext(ctx)

	var alert models.PanicAlert
	if err := s.db.WithContext(ctx).Take(&alert, "id = ?", alertID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("alert service: load alert: %w", err)
	}

	dto := mapAlert(alert, s.now())
	return &dto, nil
}

// ListForUser returns alerts the user originated or was notified about,
// newest first. Recipient membership is filtered in memory because the
// snapshot lives in a JSON column across three database vendors.
func (s *AlertService) ListForUser(ctx context.Context, userID string, limit int) ([]AlertDTO, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("alert service: user id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	var rows []models.PanicAlert
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(500).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("alert service: list alerts: %w", err)
	}

	now := s.now()
	items := make([]AlertDTO, 0, limit)
	for _, row := range rows {
		if row.OriginatorID != userID && !containsString(row.NotifiedIDs(), userID) {
			continue
		}
		items = append(items, mapAlert(row, now))
		if len(items) == limit {
			break
		}
	}
	return items, nil
}

// Acknowledge appends recipientID to the alert's acknowledgment set. The call
// is idempotent and accepted in any state; acknowledgments after a terminal
// transition are recorded for audit but never reopen the alert. Identities
// outside the notified snapshot are rejected to preserve the subset invariant.
func (s *AlertService) Acknowledge(ctx context.Context, alertID, recipientID string) (*AlertDTO, error) {
	ctx = ensureContext(ctx)
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return nil, errors.New("alert service: recipient id is required")
	}

	unlock := s.lockAlert(alertID)
	defer unlock()

	var alert models.PanicAlert
	if err := s.db.WithContext(ctx).Take(&alert, "id = ?", alertID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("alert service: load alert: %w", err)
	}

	if !containsString(alert.NotifiedIDs(), recipientID) {
		return nil, apperrors.ErrNotRecipient
	}

	acked := alert.AckedIDs()
	if !containsString(acked, recipientID) {
		acked = append(acked, recipientID)
		alert.AcknowledgedBy = models.EncodeIDList(acked)

		if err := s.db.WithContext(ctx).Model(&alert).
			Update("acknowledged_by", alert.AcknowledgedBy).Error; err != nil {
			return nil, fmt.Errorf("alert service: acknowledge: %w", err)
		}

		metrics.AlertAcknowledgements.Inc()
		s.broadcast(alert, realtime.EventAlertAcknowledged, map[string]any{
			"alert_id":     alert.ID,
			"recipient_id": recipientID,
		})
	}

	dto := mapAlert(alert, s.now())
	return &dto, nil
}

// Resolve transitions an active alert to resolved. Resolving an alert that is
// already terminal is a no-op, not an error. An alert past its deadline is
// expired instead: the passive transition wins over a late resolve call.
func (s *AlertService) Resolve(ctx context.Context, alertID, resolvedBy string) (*AlertDTO, error) {
	ctx = ensureContext(ctx)

	unlock := s.lockAlert(alertID)
	defer unlock()

	var alert models.PanicAlert
	if err := s.db.WithContext(ctx).Take(&alert, "id = ?", alertID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("alert service: load alert: %w", err)
	}

	now := s.now().UTC()

	if alert.Status.Terminal() {
		dto := mapAlert(alert, now)
		return &dto, nil
	}

	if now.After(alert.ExpiresAt) {
		if err := s.persistExpiry(ctx, &alert); err != nil {
			return nil, err
		}
		dto := mapAlert(alert, now)
		return &dto, nil
	}

	alert.Status = models.AlertStatusResolved
	alert.ResolvedAt = &now
	alert.ResolvedBy = strings.TrimSpace(resolvedBy)

	if err := s.db.WithContext(ctx).Model(&alert).
		Updates(map[string]any{
			"status":      alert.Status,
			"resolved_at": alert.ResolvedAt,
			"resolved_by": alert.ResolvedBy,
		}).Error; err != nil {
		return nil, fmt.Errorf("alert service: resolve: %w", err)
	}

	s.broadcast(alert, realtime.EventAlertResolved, map[string]any{
		"alert_id":    alert.ID,
		"resolved_by": alert.ResolvedBy,
	})

	dto := mapAlert(alert, now)
	return &dto, nil
}

// ExpireOverdue persists the expired status for every active alert whose
// deadline has passed. Invoked by the background sweep; readers do not depend
// on it thanks to the read-time correction in mapAlert.
func (s *AlertService) ExpireOverdue(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	now := s.now().UTC()

	var overdue []models.PanicAlert
	if err := s.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", models.AlertStatusActive, now).
		Find(&overdue).Error; err != nil {
		return 0, fmt.Errorf("alert service: find overdue: %w", err)
	}

	var expired int64
	for i := range overdue {
		alert := &overdue[i]
		unlock := s.lockAlert(alert.ID)
		err := s.persistExpiry(ctx, alert)
		unlock()
		if err != nil {
			return expired, err
		}
		expired++
	}

	return expired, nil
}

func (s *AlertService) persistExpiry(ctx context.Context, alert *models.PanicAlert) error {
	result := s.db.WithContext(ctx).Model(alert).
		Where("status = ?", models.AlertStatusActive).
		Update("status", models.AlertStatusExpired)
	if result.Error != nil {
		return fmt.Errorf("alert service: expire: %w", result.Error)
	}

	alert.Status = models.AlertStatusExpired
	if result.RowsAffected > 0 {
		metrics.AlertsExpired.Inc()
		s.broadcast(*alert, realtime.EventAlertExpired, map[string]any{
			"alert_id": alert.ID,
		})
	}
	return nil
}

// lockAlert serialises writers for a single alert ID via lock striping.
func (s *AlertService) lockAlert(alertID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(alertID))
	lock := &s.locks[h.Sum32()%alertLockStripes]
	lock.Lock()
	return lock.Unlock
}

func (s *AlertService) broadcast(alert models.PanicAlert, event string, payload map[string]any) {
	if s.hub == nil {
		return
	}
	targets := append(alert.NotifiedIDs(), alert.OriginatorID)
	s.hub.BroadcastToUsers(targets, realtime.Event{Event: event, Data: payload})
}

func mapAlert(row models.PanicAlert, now time.Time) AlertDTO {
	notified := row.NotifiedIDs()
	if notified == nil {
		notified = []string{}
	}
	acked := row.AckedIDs()
	if acked == nil {
		acked = []string{}
	}

	return AlertDTO{
		ID:              row.ID,
		OriginatorID:    row.OriginatorID,
		OriginatorName:  row.OriginatorName,
		OriginatorEmail: row.OriginatorEmail,
		Location:        row.Location,
		GPSLatitude:     row.GPSLatitude,
		GPSLongitude:    row.GPSLongitude,
		Description:     row.Description,
		Status:          row.EffectiveStatus(now),
		NotifiedUserIDs: notified,
		AcknowledgedBy:  acked,
		DurationMinutes: row.DurationMinutes,
		CreatedAt:       row.CreatedAt,
		ExpiresAt:       row.ExpiresAt,
		ExtremeMode:     row.ExtremeMode,
		HasVideo:        row.HasVideo,
		ActivatedFrom:   row.ActivatedFrom,
		ResolvedAt:      row.ResolvedAt,
		ResolvedBy:      row.ResolvedBy,
	}
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
