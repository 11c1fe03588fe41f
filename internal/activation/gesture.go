package activation

import (
	"sync"
	"time"
)

const (
	// DefaultClickWindow is the maximum gap between arming taps.
	DefaultClickWindow = 800 * time.Millisecond
	// DefaultHoldDuration is how long the press must be sustained.
	DefaultHoldDuration = 5 * time.Second
	// DefaultProgressTick is the hold progress reporting interval.
	DefaultProgressTick = 50 * time.Millisecond
)

// GestureConfig tunes the double-tap-then-hold activation gesture.
type GestureConfig struct {
	ClickWindow  time.Duration
	HoldDuration time.Duration
	ProgressTick time.Duration

	// OnHoldStart fires when an armed press begins the hold countdown.
	OnHoldStart func()
	// OnProgress receives hold completion in [0,1] on every tick.
	OnProgress func(fraction float64)
	// OnActivate fires exactly once when the hold completes.
	OnActivate func()
	// OnCancel fires when a hold is released before completing.
	OnCancel func()
}

type gestureState int

const (
	stateIdle gestureState = iota
	stateHolding
	stateActivated
)

// GestureActivator implements the accidental-trigger guard: tap at least
// twice within the click window, then press and keep holding for the full
// hold duration. A tap sequence that stalls past the window starts over, a
// press without the arming taps does nothing, and releasing early cancels.
// Activation fires at most once until Reset.
type GestureActivator struct {
	mu  sync.Mutex
	cfg GestureConfig
	now func() time.Time

	state      gestureState
	clickCount int
	lastTapAt  time.Time
	holdStart  time.Time
	holdGen    int
}

// NewGestureActivator constructs an activator. Zero durations take defaults.
func NewGestureActivator(cfg GestureConfig) *GestureActivator {
	if cfg.ClickWindow <= 0 {
		cfg.ClickWindow = DefaultClickWindow
	}
	if cfg.HoldDuration <= 0 {
		cfg.HoldDuration = DefaultHoldDuration
	}
	if cfg.ProgressTick <= 0 {
		cfg.ProgressTick = DefaultProgressTick
	}
	return &GestureActivator{cfg: cfg, now: time.Now}
}

// Tap registers a quick touch. Taps arm the activator; a gap wider than the
// click window restarts the count. Taps during a hold are ignored.
func (g *GestureActivator) Tap() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != stateIdle {
		return
	}

	now := g.now()
	if g.clickCount == 0 || now.Sub(g.lastTapAt) > g.cfg.ClickWindow {
		g.clickCount = 1
	} else {
		g.clickCount++
	}
	g.lastTapAt = now
}

// Press begins the hold countdown, but only when at least two taps landed
// within the click window first. An unarmed press is inert and drops any
// stale tap count.
func (g *GestureActivator) Press() {
	g.mu.Lock()
	if g.state != stateIdle {
		g.mu.Unlock()
		return
	}

	now := g.now()
	if g.clickCount < 2 || now.Sub(g.lastTapAt) > g.cfg.ClickWindow {
		g.clickCount = 0
		g.mu.Unlock()
		return
	}

	g.state = stateHolding
	g.holdStart = now
	g.holdGen++
	gen := g.holdGen
	onHoldStart := g.cfg.OnHoldStart
	g.mu.Unlock()

	if onHoldStart != nil {
		onHoldStart()
	}
	go g.holdLoop(gen)
}

// Release ends the press. Releasing before the hold duration elapses cancels
// the gesture and resets the tap count.
func (g *GestureActivator) Release() {
	g.mu.Lock()
	if g.state != stateHolding {
		g.mu.Unlock()
		return
	}
	g.state = stateIdle
	g.clickCount = 0
	g.holdGen++
	onCancel := g.cfg.OnCancel
	g.mu.Unlock()

	if onCancel != nil {
		onCancel()
	}
}

// Reset re-arms the activator after an activation.
func (g *GestureActivator) Reset() {
	g.mu.Lock()
	g.state = stateIdle
	g.clickCount = 0
	g.holdGen++
	g.mu.Unlock()
}

// Holding reports whether the press is currently sustained.
func (g *GestureActivator) Holding() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == stateHolding
}

func (g *GestureActivator) holdLoop(gen int) {
	ticker := time.NewTicker(g.cfg.ProgressTick)
	defer ticker.Stop()

	for range ticker.C {
		g.mu.Lock()
		if g.state != stateHolding || g.holdGen != gen {
			g.mu.Unlock()
			return
		}

		elapsed := g.now().Sub(g.holdStart)
		fraction := float64(elapsed) / float64(g.cfg.HoldDuration)
		if fraction > 1 {
			fraction = 1
		}
		onProgress := g.cfg.OnProgress

		if elapsed >= g.cfg.HoldDuration {
			g.state = stateActivated
			g.clickCount = 0
			g.holdGen++
			onActivate := g.cfg.OnActivate
			g.mu.Unlock()

			if onProgress != nil {
				onProgress(1)
			}
			if onActivate != nil {
				onActivate()
			}
			return
		}
		g.mu.Unlock()

		if onProgress != nil {
			onProgress(fraction)
		}
	}
}
