package realtime

import (
	"context"
	"errors"
	"strings"
	"time"
)

// AlertStore is the slice of the alert lifecycle the gateway needs. The
// concrete implementation lives in the services layer and is injected at
// wiring time.
type AlertStore interface {
	Acknowledge(ctx context.Context, alertID, recipientID string) error
	Resolve(ctx context.Context, alertID, resolvedBy string) error
}

const gatewayOpTimeout = 10 * time.Second

// Gateway translates inbound socket operations into hub fan-out and alert
// lifecycle calls. alert.submit is presence-only: it pushes alert.incoming to
// connected recipients and reports delivery counts, while the durable record
// travels over the REST channel independently.
type Gateway struct {
	hub   *Hub
	store AlertStore
}

// NewGateway constructs a Gateway bound to the hub.
func NewGateway(hub *Hub, store AlertStore) *Gateway {
	return &Gateway{hub: hub, store: store}
}

// HandleSubmit fans the alert out to every targeted recipient that currently
// holds a connection. The originator never receives their own alert.
func (g *Gateway) HandleSubmit(userID string, req SubmitRequest) (SubmitAck, error) {
	targets := make([]string, 0, len(req.RecipientIDs))
	seen := make(map[string]struct{}, len(req.RecipientIDs))
	for _, id := range req.RecipientIDs {
		id = strings.TrimSpace(id)
		if id == "" || id == userID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		targets = append(targets, id)
	}

	if len(targets) == 0 {
		return SubmitAck{AlertID: req.AlertID}, errors.New("no recipients to notify")
	}

	event := Event{Event: EventAlertIncoming, Data: map[string]any{
		"alert_id":         req.AlertID,
		"originator_id":    userID,
		"originator_name":  req.OriginatorName,
		"location":         req.Location,
		"gps_latitude":     req.GPSLatitude,
		"gps_longitude":    req.GPSLongitude,
		"description":      req.Description,
		"duration_minutes": req.DurationMinutes,
		"extreme_mode":     req.ExtremeMode,
		"activated_from":   req.ActivatedFrom,
	}}

	notified := g.hub.BroadcastToUsers(targets, event)

	return SubmitAck{
		AlertID:      req.AlertID,
		Notified:     notified,
		Offline:      len(targets) - notified,
		TotalTargets: len(targets),
	}, nil
}

// HandleAck records the acknowledgment in the durable store. Lifecycle events
// for other participants are broadcast by the store, not here.
func (g *Gateway) HandleAck(userID string, req AckRequest) error {
	if g.store == nil {
		return errors.New("alert store unavailable")
	}
	alertID := strings.TrimSpace(req.AlertID)
	if alertID == "" {
		return errors.New("alert_id is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), gatewayOpTimeout)
	defer cancel()
	return g.store.Acknowledge(ctx, alertID, userID)
}

// HandleResolve transitions the alert through the durable store.
func (g *Gateway) HandleResolve(userID string, req ResolveRequest) error {
	if g.store == nil {
		return errors.New("alert store unavailable")
	}
	alertID := strings.TrimSpace(req.AlertID)
	if alertID == "" {
		return errors.New("alert_id is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), gatewayOpTimeout)
	defer cancel()
	return g.store.Resolve(ctx, alertID, userID)
}
