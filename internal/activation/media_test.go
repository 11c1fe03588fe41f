package activation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	startErr error
	starts   atomic.Int32
	stops    atomic.Int32
}

func (f *fakeRecorder) Start(context.Context) error {
	f.starts.Add(1)
	return f.startErr
}

func (f *fakeRecorder) Stop(context.Context) error {
	f.stops.Add(1)
	return nil
}

func TestCaptureSessionStartIsIdempotent(t *testing.T) {
	rec := &fakeRecorder{}
	session := NewCaptureSession(rec)
	ctx := context.Background()

	require.True(t, session.Start(ctx))
	require.True(t, session.Start(ctx))
	require.True(t, session.Start(ctx))
	require.EqualValues(t, 1, rec.starts.Load())
	require.True(t, session.Recording())
}

func TestCaptureSessionStopIsIdempotent(t *testing.T) {
	rec := &fakeRecorder{}
	session := NewCaptureSession(rec)
	ctx := context.Background()

	require.True(t, session.Start(ctx))
	session.Stop(ctx)
	session.Stop(ctx)
	require.EqualValues(t, 1, rec.stops.Load())
	require.False(t, session.Recording())
}

func TestCaptureSessionStopBeforeStart(t *testing.T) {
	rec := &fakeRecorder{}
	session := NewCaptureSession(rec)

	session.Stop(context.Background())
	require.Zero(t, rec.stops.Load())
}

func TestCaptureSessionRestartsAfterStop(t *testing.T) {
	rec := &fakeRecorder{}
	session := NewCaptureSession(rec)
	ctx := context.Background()

	require.True(t, session.Start(ctx))
	session.Stop(ctx)

	// A cancelled gesture must not burn the panel's only capture session.
	require.True(t, session.Start(ctx))
	require.True(t, session.Recording())
	require.EqualValues(t, 2, rec.starts.Load())
}

func TestCaptureSessionDegradesOnStartFailure(t *testing.T) {
	rec := &fakeRecorder{startErr: errors.New("camera busy")}
	session := NewCaptureSession(rec)
	ctx := context.Background()

	require.False(t, session.Start(ctx))
	require.False(t, session.Recording())

	// Stop after a failed start never reaches the recorder.
	session.Stop(ctx)
	require.Zero(t, rec.stops.Load())
}

func TestCaptureSessionNilRecorder(t *testing.T) {
	session := NewCaptureSession(nil)
	require.False(t, session.Start(context.Background()))
	session.Stop(context.Background())
}
