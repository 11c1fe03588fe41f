package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ncastellanos/vecino/internal/database/testutil"
	"github.com/ncastellanos/vecino/internal/models"
	apperrors "github.com/ncastellanos/vecino/pkg/errors"
)

func newTestAlertService(t *testing.T, now func() time.Time) *AlertService {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	opts := []AlertServiceOption{}
	if now != nil {
		opts = append(opts, WithAlertClock(now))
	}
	svc, err := NewAlertService(db, nil, opts...)
	require.NoError(t, err)
	return svc
}

func TestAlertServiceCreate(t *testing.T) {
	svc := newTestAlertService(t, nil)
	ctx := context.Background()

	dto, err := svc.Create(ctx, CreateAlertInput{
		OriginatorID:    "resident-1",
		OriginatorName:  "Ana",
		Location:        "Block C, Apt 12 (19.43260, -99.13320)",
		Description:     "EMERGENCY",
		NotifiedUserIDs: []string{"resident-2", "resident-3", "resident-2", ""},
		DurationMinutes: 30,
	})
	require.NoError(t, err)
	require.NotEmpty(t, dto.ID)
	require.Equal(t, models.AlertStatusActive, dto.Status)
	require.Equal(t, []string{"resident-2", "resident-3"}, dto.NotifiedUserIDs)
	require.Empty(t, dto.AcknowledgedBy)
	require.Equal(t, 30, dto.DurationMinutes)
	require.WithinDuration(t, dto.CreatedAt.Add(30*time.Minute), dto.ExpiresAt, time.Second)
}

func TestAlertServiceCreateWithoutRecipients(t *testing.T) {
	svc := newTestAlertService(t, nil)

	_, err := svc.Create(context.Background(), CreateAlertInput{
		OriginatorID:    "resident-1",
		OriginatorName:  "Ana",
		NotifiedUserIDs: []string{"", "  "},
	})
	require.ErrorIs(t, err, apperrors.ErrNoRecipients)
}

func TestAlertServiceAcknowledge(t *testing.T) {
	svc := newTestAlertService(t, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateAlertInput{
		OriginatorID:    "resident-1",
		OriginatorName:  "Ana",
		NotifiedUserIDs: []string{"resident-2", "resident-3"},
	})
	require.NoError(t, err)

	dto, err := svc.Acknowledge(ctx, created.ID, "resident-2")
	require.NoError(t, err)
	require.Equal(t, []string{"resident-2"}, dto.AcknowledgedBy)

	// Idempotent: a second acknowledgment does not duplicate the entry.
	dto, err = svc.Acknowledge(ctx, created.ID, "resident-2")
	require.NoError(t, err)
	require.Equal(t, []string{"resident-2"}, dto.AcknowledgedBy)

	dto, err = svc.Acknowledge(ctx, created.ID, "resident-3")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"resident-2", "resident-3"}, dto.AcknowledgedBy)
}

func TestAlertServiceAcknowledgeConcurrent(t *testing.T) {
	svc := newTestAlertService(t, nil)
	ctx := context.Background()

	recipients := make([]string, 8)
	for i := range recipients {
		recipients[i] = fmt.Sprintf("resident-%d", i+2)
	}

	created, err := svc.Create(ctx, CreateAlertInput{
		OriginatorID:    "resident-1",
		OriginatorName:  "Ana",
		NotifiedUserIDs: recipients,
	})
	require.NoError(t, err)

	// Every recipient acknowledges twice from its own goroutine, with a
	// stranger racing alongside. The stored set must end up with exactly the
	// notified recipients, no duplicates and no outsiders.
	var wg sync.WaitGroup
	for _, id := range recipients {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 2; i++ {
				if _, err := svc.Acknowledge(ctx, created.ID, id); err != nil {
					t.Errorf("acknowledge %s: %v", id, err)
				}
			}
		}(id)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := svc.Acknowledge(ctx, created.ID, "stranger")
		if !errors.Is(err, apperrors.ErrNotRecipient) {
			t.Errorf("stranger acknowledge: got %v", err)
		}
	}()
	wg.Wait()

	dto, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, recipients, dto.AcknowledgedBy)
	require.Subset(t, dto.NotifiedUserIDs, dto.AcknowledgedBy)
}

func TestAlertServiceAcknowledgeRejectsNonRecipient(t *testing.T) {
	svc := newTestAlertService(t, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateAlertInput{
		OriginatorID:    "resident-1",
		OriginatorName:  "Ana",
		NotifiedUserIDs: []string{"resident-2"},
	})
	require.NoError(t, err)

	_, err = svc.Acknowledge(ctx, created.ID, "stranger")
	require.ErrorIs(t, err, apperrors.ErrNotRecipient)

	// The originator is not part of the notified snapshot either.
	_, err = svc.Acknowledge(ctx, created.ID, "resident-1")
	require.ErrorIs(t, err, apperrors.ErrNotRecipient)
}

func TestAlertServiceAcknowledgeAfterResolveStillRecorded(t *testing.T) {
	svc := newTestAlertService(t, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateAlertInput{
		OriginatorID:    "resident-1",
		OriginatorName:  "Ana",
		NotifiedUserIDs: []string{"resident-2"},
	})
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, created.ID, "resident-1")
	require.NoError(t, err)

	dto, err := svc.Acknowledge(ctx, created.ID, "resident-2")
	require.NoError(t, err)
	require.Equal(t, models.AlertStatusResolved, dto.Status)
	require.Equal(t, []string{"resident-2"}, dto.AcknowledgedBy)
}

func TestAlertServiceResolveIdempotent(t *testing.T) {
	svc := newTestAlertService(t, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateAlertInput{
		OriginatorID:    "resident-1",
		OriginatorName:  "Ana",
		NotifiedUserIDs: []string{"resident-2"},
	})
	require.NoError(t, err)

	first, err := svc.Resolve(ctx, created.ID, "resident-2")
	require.NoError(t, err)
	require.Equal(t, models.AlertStatusResolved, first.Status)
	require.Equal(t, "resident-2", first.ResolvedBy)
	require.NotNil(t, first.ResolvedAt)

	// Second resolve is a no-op and keeps the original resolver.
	second, err := svc.Resolve(ctx, created.ID, "resident-3")
	require.NoError(t, err)
	require.Equal(t, models.AlertStatusResolved, second.Status)
	require.Equal(t, "resident-2", second.ResolvedBy)
}

func TestAlertServiceResolveUnknownAlert(t *testing.T) {
	svc := newTestAlertService(t, nil)

	_, err := svc.Resolve(context.Background(), "00000000-0000-0000-0000-000000000000", "resident-1")
	require.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestAlertServiceResolveAfterDeadlineExpires(t *testing.T) {
	current := time.Now().UTC()
	svc := newTestAlertService(t, func() time.Time { return current })
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateAlertInput{
		OriginatorID:    "resident-1",
		OriginatorName:  "Ana",
		NotifiedUserIDs: []string{"resident-2"},
		DurationMinutes: 10,
	})
	require.NoError(t, err)

	// Jump past the deadline: the passive transition wins over a late resolve.
	current = current.Add(11 * time.Minute)

	dto, err := svc.Resolve(ctx, created.ID, "resident-1")
	require.NoError(t, err)
	require.Equal(t, models.AlertStatusExpired, dto.Status)
	require.Empty(t, dto.ResolvedBy)
	require.Nil(t, dto.ResolvedAt)
}

func TestAlertServiceReadTimeExpiryCorrection(t *testing.T) {
	current := time.Now().UTC()
	svc := newTestAlertService(t, func() time.Time { return current })
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateAlertInput{
		OriginatorID:    "resident-1",
		OriginatorName:  "Ana",
		NotifiedUserIDs: []string{"resident-2"},
		DurationMinutes: 5,
	})
	require.NoError(t, err)

	current = current.Add(6 * time.Minute)

	// No sweep has run, but the read already reports expired.
	dto, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, models.AlertStatusExpired, dto.Status)
}

func TestAlertServiceExpireOverdue(t *testing.T) {
	current := time.Now().UTC()
	svc := newTestAlertService(t, func() time.Time { return current })
	ctx := context.Background()

	overdue, err := svc.Create(ctx, CreateAlertInput{
		OriginatorID:    "resident-1",
		OriginatorName:  "Ana",
		NotifiedUserIDs: []string{"resident-2"},
		DurationMinutes: 5,
	})
	require.NoError(t, err)

	fresh, err := svc.Create(ctx, CreateAlertInput{
		OriginatorID:    "resident-1",
		OriginatorName:  "Ana",
		NotifiedUserIDs: []string{"resident-2"},
		DurationMinutes: 60,
	})
	require.NoError(t, err)

	current = current.Add(10 * time.Minute)

	count, err := svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	var expired models.PanicAlert
	require.NoError(t, svc.db.Take(&expired, "id = ?", overdue.ID).Error)
	require.Equal(t, models.AlertStatusExpired, expired.Status)

	var untouched models.PanicAlert
	require.NoError(t, svc.db.Take(&untouched, "id = ?", fresh.ID).Error)
	require.Equal(t, models.AlertStatusActive, untouched.Status)

	// The sweep is idempotent.
	count, err = svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestAlertServiceListForUser(t *testing.T) {
	svc := newTestAlertService(t, nil)
	ctx := context.Background()

	mine, err := svc.Create(ctx, CreateAlertInput{
		OriginatorID:    "resident-1",
		OriginatorName:  "Ana",
		NotifiedUserIDs: []string{"resident-2"},
	})
	require.NoError(t, err)

	notified, err := svc.Create(ctx, CreateAlertInput{
		OriginatorID:    "resident-3",
		OriginatorName:  "Luis",
		NotifiedUserIDs: []string{"resident-1"},
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateAlertInput{
		OriginatorID:    "resident-3",
		OriginatorName:  "Luis",
		NotifiedUserIDs: []string{"resident-4"},
	})
	require.NoError(t, err)

	items, err := svc.ListForUser(ctx, "resident-1", 10)
	require.NoError(t, err)
	require.Len(t, items, 2)

	ids := []string{items[0].ID, items[1].ID}
	require.ElementsMatch(t, []string{mine.ID, notified.ID}, ids)
}
