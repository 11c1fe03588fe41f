package alerting

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubRealtime struct {
	delivery Delivery
	err      error
	delay    time.Duration
	calls    atomic.Int32
}

func (s *stubRealtime) SubmitAlert(ctx context.Context, _ Alert) (Delivery, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Delivery{}, ctx.Err()
		}
	}
	return s.delivery, s.err
}

type stubDurable struct {
	id    string
	err   error
	calls atomic.Int32
}

func (s *stubDurable) PersistAlert(context.Context, Alert) (string, error) {
	s.calls.Add(1)
	return s.id, s.err
}

func testAlert() Alert {
	return Alert{
		OriginatorID:   "me",
		OriginatorName: "Ana",
		RecipientIDs:   []string{"n1", "n2", "n3"},
	}
}

func TestDispatcherBothChannelsSucceed(t *testing.T) {
	rt := &stubRealtime{delivery: Delivery{Notified: 2, Offline: 1, TotalTargets: 3}}
	durable := &stubDurable{id: "alert-1"}

	d, err := NewDispatcher(rt, durable, time.Second)
	require.NoError(t, err)

	result, err := d.Dispatch(context.Background(), testAlert())
	require.NoError(t, err)
	require.Equal(t, "alert-1", result.AlertID)
	require.True(t, result.Persisted)
	require.False(t, result.Degraded)
	require.Equal(t, 2, result.Notified)
	require.Equal(t, 1, result.Offline)
	require.EqualValues(t, 1, rt.calls.Load())
	require.EqualValues(t, 1, durable.calls.Load())
}

func TestDispatcherRealtimeFailureDegrades(t *testing.T) {
	rt := &stubRealtime{err: errors.New("socket down")}
	durable := &stubDurable{id: "alert-2"}

	d, err := NewDispatcher(rt, durable, time.Second)
	require.NoError(t, err)

	result, err := d.Dispatch(context.Background(), testAlert())
	require.NoError(t, err)
	require.True(t, result.Persisted)
	require.True(t, result.Degraded)
	require.Equal(t, "alert-2", result.AlertID)
	require.Equal(t, 3, result.Offline)
	require.Error(t, result.RealtimeErr)
}

func TestDispatcherDurableFailureIsFatal(t *testing.T) {
	rt := &stubRealtime{delivery: Delivery{Notified: 3, TotalTargets: 3}}
	durable := &stubDurable{err: errors.New("database unavailable")}

	d, err := NewDispatcher(rt, durable, time.Second)
	require.NoError(t, err)

	result, err := d.Dispatch(context.Background(), testAlert())
	require.Error(t, err)
	require.False(t, result.Persisted)
}

func TestDispatcherRealtimeTimeoutDoesNotBlockDurable(t *testing.T) {
	rt := &stubRealtime{delay: 500 * time.Millisecond}
	durable := &stubDurable{id: "alert-3"}

	d, err := NewDispatcher(rt, durable, 50*time.Millisecond)
	require.NoError(t, err)

	start := time.Now()
	result, err := d.Dispatch(context.Background(), testAlert())
	require.NoError(t, err)
	require.True(t, result.Persisted)
	require.True(t, result.Degraded)
	require.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestDispatcherWithoutRealtimeChannel(t *testing.T) {
	durable := &stubDurable{id: "alert-4"}

	d, err := NewDispatcher(nil, durable, time.Second)
	require.NoError(t, err)

	result, err := d.Dispatch(context.Background(), testAlert())
	require.NoError(t, err)
	require.True(t, result.Persisted)
	require.True(t, result.Degraded)
}

func TestDispatcherRejectsEmptyRecipients(t *testing.T) {
	d, err := NewDispatcher(nil, &stubDurable{id: "x"}, time.Second)
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), Alert{OriginatorID: "me"})
	require.Error(t, err)
}
