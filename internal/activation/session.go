package activation

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ncastellanos/vecino/internal/alerting"
	"github.com/ncastellanos/vecino/pkg/logger"
)

// Profile is the originator-side configuration a triggered alert draws from.
type Profile struct {
	UserID          string
	Name            string
	Email           string
	Location        string
	Message         string
	NotifyAll       bool
	Contacts        []string
	DurationMinutes int
	ExtremeMode     bool
	AutoRecordVideo bool
	ShareGPS        bool
	ActivatedFrom   string
}

// Session runs the full alarm pipeline once a gesture activates: start media
// capture, resolve the location, resolve recipients, and dispatch over both
// channels. Trigger is serialized; a second activation while one is in flight
// is coalesced into the running one.
type Session struct {
	profile    Profile
	resolver   *alerting.Resolver
	dispatcher *alerting.Dispatcher
	location   *LocationResolver
	capture    *CaptureSession

	mu       sync.Mutex
	inFlight bool
}

// NewSession wires the pipeline. location and capture may be nil when the
// installation has no GPS or camera.
func NewSession(profile Profile, resolver *alerting.Resolver, dispatcher *alerting.Dispatcher, location *LocationResolver, capture *CaptureSession) (*Session, error) {
	if profile.UserID == "" {
		return nil, fmt.Errorf("activation: profile user id is required")
	}
	if resolver == nil || dispatcher == nil {
		return nil, fmt.Errorf("activation: resolver and dispatcher are required")
	}
	return &Session{
		profile:    profile,
		resolver:   resolver,
		dispatcher: dispatcher,
		location:   location,
		capture:    capture,
	}, nil
}

// Trigger executes the pipeline. Recipient resolution failure aborts before
// anything is sent; media and location failures only degrade the alert.
func (s *Session) Trigger(ctx context.Context) (alerting.Result, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return alerting.Result{}, fmt.Errorf("activation: alert already in flight")
	}
	s.inFlight = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	// BeginCapture normally ran at hold start; the repeat call is a no-op
	// that just reports whether video is live.
	hasVideo := s.BeginCapture(ctx)

	loc := ResolvedLocation{Text: s.profile.Location}
	if s.location != nil && s.profile.ShareGPS {
		loc = s.location.Resolve(ctx, s.profile.Location)
	}

	recipients, err := s.resolver.Resolve(ctx, s.profile.UserID, alerting.TargetSpec{
		NotifyAll:   s.profile.NotifyAll,
		ExplicitIDs: s.profile.Contacts,
	})
	if err != nil {
		return alerting.Result{}, fmt.Errorf("activation: resolve recipients: %w", err)
	}

	result, err := s.dispatcher.Dispatch(ctx, alerting.Alert{
		OriginatorID:    s.profile.UserID,
		OriginatorName:  s.profile.Name,
		OriginatorEmail: s.profile.Email,
		Location:        loc.Text,
		GPSLatitude:     loc.Latitude,
		GPSLongitude:    loc.Longitude,
		Description:     s.profile.Message,
		RecipientIDs:    recipients,
		DurationMinutes: s.profile.DurationMinutes,
		ExtremeMode:     s.profile.ExtremeMode,
		HasVideo:        hasVideo,
		ActivatedFrom:   s.profile.ActivatedFrom,
	})
	if err != nil {
		return result, err
	}

	logger.Info("panic alert dispatched",
		zap.String("alert_id", result.AlertID),
		zap.Int("notified", result.Notified),
		zap.Int("offline", result.Offline),
		zap.Bool("degraded", result.Degraded))
	return result, nil
}

// BeginCapture starts media capture, called when the hold gesture arms.
// Capture only runs when both the extreme-mode and auto-record flags are set;
// a device failure degrades and the alert proceeds without video.
func (s *Session) BeginCapture(ctx context.Context) bool {
	if s.capture == nil || !s.profile.ExtremeMode || !s.profile.AutoRecordVideo {
		return false
	}
	return s.capture.Start(ctx)
}

// EndCapture stops any live recording, typically on resolve or shutdown.
func (s *Session) EndCapture(ctx context.Context) {
	if s.capture != nil {
		s.capture.Stop(ctx)
	}
}
