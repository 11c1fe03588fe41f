package services

import (
	"context"

	"github.com/ncastellanos/vecino/internal/realtime"
)

// AlertStoreAdapter exposes the AlertService under the narrow interface the
// realtime gateway consumes.
type AlertStoreAdapter struct {
	svc *AlertService
}

// NewAlertStoreAdapter wraps an AlertService for socket-originated operations.
func NewAlertStoreAdapter(svc *AlertService) *AlertStoreAdapter {
	return &AlertStoreAdapter{svc: svc}
}

// Acknowledge implements realtime.AlertStore.
func (a *AlertStoreAdapter) Acknowledge(ctx context.Context, alertID, recipientID string) error {
	_, err := a.svc.Acknowledge(ctx, alertID, recipientID)
	return err
}

// Resolve implements realtime.AlertStore.
func (a *AlertStoreAdapter) Resolve(ctx context.Context, alertID, resolvedBy string) error {
	_, err := a.svc.Resolve(ctx, alertID, resolvedBy)
	return err
}

var _ realtime.AlertStore = (*AlertStoreAdapter)(nil)
