package timeline

import (
	"math"

	"github.com/urbanscope/urbanscope/pkg/rgba"
)

// DefaultStepSize saturates progress after 50 frame ticks.
const DefaultStepSize = 0.02

// saturationEpsilon absorbs float error in steps*stepSize near 1.
const saturationEpsilon = 1e-9

// Blender ramps a progress scalar from 0 to 1 after prediction mode is
// entered, so forecast visuals grow in instead of snapping.
type Blender struct {
	stepSize float64
	steps    int
	active   bool
}

// NewBlender creates a blender. A non-positive stepSize falls back to
// DefaultStepSize.
func NewBlender(stepSize float64) *Blender {
	if stepSize <= 0 {
		stepSize = DefaultStepSize
	}
	return &Blender{stepSize: stepSize}
}

// Enter resets progress to 0 and starts accumulating.
func (b *Blender) Enter() {
	b.active = true
	b.steps = 0
}

// Exit freezes the blender. Progress reads 0 until the next Enter.
func (b *Blender) Exit() {
	b.active = false
}

// Advance accumulates one step. It stops counting once saturated.
func (b *Blender) Advance() {
	if !b.active || b.Progress() >= 1 {
		return
	}
	b.steps++
}

// Active reports whether the blender is in prediction mode.
func (b *Blender) Active() bool {
	return b.active
}

// Progress returns min(1, steps*stepSize), or 0 when not active.
func (b *Blender) Progress() float64 {
	if !b.active {
		return 0
	}
	p := float64(b.steps) * b.stepSize
	if p >= 1-saturationEpsilon {
		return 1
	}
	return p
}

// Lerp interpolates between a and b. t is clamped to [0,1].
func Lerp(a, b, t float64) float64 {
	t = math.Max(0, math.Min(1, t))
	return a + (b-a)*t
}

// LerpColor interpolates each channel linearly.
func LerpColor(a, b rgba.Color, t float64) rgba.Color {
	return rgba.Lerp(a, b, t)
}
