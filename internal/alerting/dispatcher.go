package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ncastellanos/vecino/pkg/logger"
	"github.com/ncastellanos/vecino/pkg/metrics"
	"go.uber.org/zap"
)

// Alert is the channel-agnostic payload handed to the dispatcher after
// recipient resolution. RecipientIDs is the final snapshot.
type Alert struct {
	OriginatorID    string
	OriginatorName  string
	OriginatorEmail string
	Location        string
	GPSLatitude     *float64
	GPSLongitude    *float64
	Description     string
	RecipientIDs    []string
	DurationMinutes int
	ExtremeMode     bool
	HasVideo        bool
	ActivatedFrom   string
}

// Delivery reports the realtime fan-out outcome.
type Delivery struct {
	Notified     int
	Offline      int
	TotalTargets int
}

// RealtimeChannel pushes the alert to currently connected recipients.
type RealtimeChannel interface {
	SubmitAlert(ctx context.Context, alert Alert) (Delivery, error)
}

// DurableChannel persists the alert as the record of truth and returns the
// store-assigned alert ID.
type DurableChannel interface {
	PersistAlert(ctx context.Context, alert Alert) (string, error)
}

// Result describes a dispatch outcome. Persisted is always true on a nil
// error; Degraded marks a partial success where the durable record exists but
// the realtime push failed or reached nobody immediately.
type Result struct {
	AlertID      string
	Notified     int
	Offline      int
	TotalTargets int
	Persisted    bool
	Degraded     bool
	RealtimeErr  error
}

// Dispatcher sends one alert over two independent channels at once: the
// realtime push for immediacy and the durable store for the record. Neither
// waits on the other. Durable failure fails the dispatch; realtime failure
// only degrades it, and a push that already went out is never rescinded.
type Dispatcher struct {
	realtime RealtimeChannel
	durable  DurableChannel
	timeout  time.Duration
}

// NewDispatcher constructs a Dispatcher. The realtime channel may be nil, in
// which case every dispatch is durable-only and reported degraded.
func NewDispatcher(rt RealtimeChannel, durable DurableChannel, timeout time.Duration) (*Dispatcher, error) {
	if durable == nil {
		return nil, fmt.Errorf("alerting: durable channel is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{realtime: rt, durable: durable, timeout: timeout}, nil
}

// Dispatch fans the alert out. Both channels run concurrently; the call
// returns once both have finished.
func (d *Dispatcher) Dispatch(ctx context.Context, alert Alert) (Result, error) {
	if len(alert.RecipientIDs) == 0 {
		return Result{}, fmt.Errorf("alerting: alert has no recipients")
	}

	var (
		wg         sync.WaitGroup
		alertID    string
		durableErr error
		delivery   Delivery
		rtErr      error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		alertID, durableErr = d.durable.PersistAlert(ctx, alert)
	}()

	if d.realtime != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rtCtx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()
			delivery, rtErr = d.realtime.SubmitAlert(rtCtx, alert)
		}()
	} else {
		rtErr = fmt.Errorf("alerting: realtime channel not configured")
	}

	wg.Wait()

	if durableErr != nil {
		metrics.AlertsDispatched.WithLabelValues("failed").Inc()
		if rtErr == nil && delivery.Notified > 0 {
			logger.Warn("alert persisted nowhere but reached recipients live",
				zap.Int("notified", delivery.Notified),
				zap.Error(durableErr))
		}
		return Result{RealtimeErr: rtErr}, fmt.Errorf("alerting: persist alert: %w", durableErr)
	}

	result := Result{
		AlertID:      alertID,
		Notified:     delivery.Notified,
		Offline:      delivery.Offline,
		TotalTargets: delivery.TotalTargets,
		Persisted:    true,
		RealtimeErr:  rtErr,
	}

	if rtErr != nil {
		result.Degraded = true
		result.Offline = len(alert.RecipientIDs)
		result.TotalTargets = len(alert.RecipientIDs)
		metrics.AlertsDispatched.WithLabelValues("degraded").Inc()
		logger.Warn("alert stored but realtime push failed",
			zap.String("alert_id", alertID),
			zap.Error(rtErr))
		return result, nil
	}

	metrics.AlertsDispatched.WithLabelValues("delivered").Inc()
	return result, nil
}
