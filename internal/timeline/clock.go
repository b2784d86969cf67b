// Package timeline owns the two notions of time a view runs on: the
// free-running visual clock that drives cosmetic oscillation, and the
// domain time (selected year, playback, prediction mode) that selects data.
package timeline

// DefaultTickDelta is the visual-time advance per rendered frame.
const DefaultTickDelta = 0.016

// Clock is the animation clock. Visual time only ever increases and is
// never used to select data.
type Clock struct {
	visualTime float64
	delta      float64
	ticks      uint64
	stopped    bool
}

// NewClock creates a clock advancing by delta per tick. A non-positive
// delta falls back to DefaultTickDelta.
func NewClock(delta float64) *Clock {
	if delta <= 0 {
		delta = DefaultTickDelta
	}
	return &Clock{delta: delta}
}

// Tick advances visual time by one frame and returns the new value.
// Ticks after Stop are no-ops.
func (c *Clock) Tick() float64 {
	if c.stopped {
		return c.visualTime
	}
	c.ticks++
	c.visualTime = float64(c.ticks) * c.delta
	return c.visualTime
}

// Stop cancels the clock for teardown.
func (c *Clock) Stop() {
	c.stopped = true
}

// Stopped reports whether Stop was called.
func (c *Clock) Stopped() bool {
	return c.stopped
}

// VisualTime returns the current visual time.
func (c *Clock) VisualTime() float64 {
	return c.visualTime
}

// Ticks returns the number of frames the clock has advanced.
func (c *Clock) Ticks() uint64 {
	return c.ticks
}
