package activation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ncastellanos/vecino/pkg/logger"
)

// DefaultLocationTimeout bounds how long an alert waits on a GPS fix.
const DefaultLocationTimeout = 5 * time.Second

// Coordinates is a GPS fix.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// LocationProvider produces the current position.
type LocationProvider interface {
	Current(ctx context.Context) (Coordinates, error)
}

// StaticProvider reports a fixed position, for panels installed at a known
// spot.
type StaticProvider struct {
	Position Coordinates
}

func (p StaticProvider) Current(context.Context) (Coordinates, error) {
	return p.Position, nil
}

// ResolvedLocation is the outcome of a location lookup.
type ResolvedLocation struct {
	Text      string
	Latitude  *float64
	Longitude *float64
}

// LocationResolver enriches the configured location text with live
// coordinates, under a hard timeout. An alert never waits on GPS: lookup
// failure or timeout falls back to the base text alone.
type LocationResolver struct {
	provider LocationProvider
	timeout  time.Duration
}

// NewLocationResolver constructs a resolver. A zero timeout takes the default.
func NewLocationResolver(provider LocationProvider, timeout time.Duration) *LocationResolver {
	if timeout <= 0 {
		timeout = DefaultLocationTimeout
	}
	return &LocationResolver{provider: provider, timeout: timeout}
}

// Resolve returns the base text with coordinates appended when a fix arrives
// in time.
func (r *LocationResolver) Resolve(ctx context.Context, base string) ResolvedLocation {
	if r.provider == nil {
		return ResolvedLocation{Text: base}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type fix struct {
		coords Coordinates
		err    error
	}
	ch := make(chan fix, 1)
	go func() {
		coords, err := r.provider.Current(ctx)
		ch <- fix{coords, err}
	}()

	select {
	case got := <-ch:
		if got.err != nil {
			logger.Warn("location lookup failed, sending alert without coordinates", zap.Error(got.err))
			return ResolvedLocation{Text: base}
		}
		lat, lng := got.coords.Latitude, got.coords.Longitude
		text := base
		if text != "" {
			text = fmt.Sprintf("%s (%.5f, %.5f)", base, lat, lng)
		} else {
			text = fmt.Sprintf("(%.5f, %.5f)", lat, lng)
		}
		return ResolvedLocation{Text: text, Latitude: &lat, Longitude: &lng}
	case <-ctx.Done():
		logger.Warn("location lookup timed out, sending alert without coordinates",
			zap.Duration("timeout", r.timeout))
		return ResolvedLocation{Text: base}
	}
}
