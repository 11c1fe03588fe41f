package activation

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ncastellanos/vecino/pkg/logger"
)

// Recorder abstracts the device capture backend.
type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// CaptureSession wraps a Recorder with idempotent start/stop semantics.
// Capture is best-effort: a failed start leaves the session idle and the
// alert proceeds without video. Stop returns the session to idle, so one
// CaptureSession serves a panel across many gestures.
type CaptureSession struct {
	mu  sync.Mutex
	rec Recorder

	recording bool
}

// NewCaptureSession constructs a CaptureSession. A nil recorder yields a
// session that never records.
func NewCaptureSession(rec Recorder) *CaptureSession {
	return &CaptureSession{rec: rec}
}

// Start begins recording. Calling Start while recording is a no-op that
// reports the live state.
func (s *CaptureSession) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recording {
		return true
	}
	if s.rec == nil {
		return false
	}
	if err := s.rec.Start(ctx); err != nil {
		logger.Warn("media capture unavailable, continuing without video", zap.Error(err))
		return false
	}
	s.recording = true
	return true
}

// Stop finalizes recording. Safe to call at any time, including before Start
// or repeatedly.
func (s *CaptureSession) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.recording {
		return
	}
	s.recording = false

	if err := s.rec.Stop(ctx); err != nil {
		logger.Warn("media capture stop failed", zap.Error(err))
	}
}

// Recording reports whether capture is live.
func (s *CaptureSession) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// NullRecorder satisfies Recorder for deployments without a capture device.
type NullRecorder struct{}

func (NullRecorder) Start(context.Context) error { return nil }
func (NullRecorder) Stop(context.Context) error  { return nil }
