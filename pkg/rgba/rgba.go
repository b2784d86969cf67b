// Package rgba provides the 8-bit RGBA color type used in layer data and
// linear interpolation between colors.
package rgba

import (
	"encoding/json"
	"fmt"
	"math"
)

// Color is an 8-bit RGBA color. It serializes as a [r, g, b, a] array.
type Color struct {
	R, G, B, A uint8
}

// New returns an opaque color.
func New(r, g, b uint8) Color {
	return Color{R: r, G: g, B: b, A: 255}
}

// WithAlpha returns c with its alpha replaced.
func (c Color) WithAlpha(a uint8) Color {
	c.A = a
	return c
}

// Scale multiplies the alpha channel by f, clamped to [0,1].
func (c Color) Scale(f float64) Color {
	c.A = channel(float64(c.A) * clamp01(f))
	return c
}

// MarshalJSON encodes the color as [r, g, b, a].
func (c Color) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]uint8{c.R, c.G, c.B, c.A})
}

// UnmarshalJSON accepts [r, g, b] or [r, g, b, a].
func (c *Color) UnmarshalJSON(data []byte) error {
	var parts []uint8
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	switch len(parts) {
	case 3:
		*c = New(parts[0], parts[1], parts[2])
	case 4:
		*c = Color{R: parts[0], G: parts[1], B: parts[2], A: parts[3]}
	default:
		return fmt.Errorf("rgba: want 3 or 4 channels, got %d", len(parts))
	}
	return nil
}

// UnmarshalYAML accepts the same sequence form as JSON.
func (c *Color) UnmarshalYAML(unmarshal func(any) error) error {
	var parts []uint8
	if err := unmarshal(&parts); err != nil {
		return err
	}
	switch len(parts) {
	case 3:
		*c = New(parts[0], parts[1], parts[2])
	case 4:
		*c = Color{R: parts[0], G: parts[1], B: parts[2], A: parts[3]}
	default:
		return fmt.Errorf("rgba: want 3 or 4 channels, got %d", len(parts))
	}
	return nil
}

// Lerp interpolates each channel linearly. t is clamped to [0,1].
func Lerp(a, b Color, t float64) Color {
	t = clamp01(t)
	return Color{
		R: channel(float64(a.R) + (float64(b.R)-float64(a.R))*t),
		G: channel(float64(a.G) + (float64(b.G)-float64(a.G))*t),
		B: channel(float64(a.B) + (float64(b.B)-float64(a.B))*t),
		A: channel(float64(a.A) + (float64(b.A)-float64(a.A))*t),
	}
}

// Stop is one anchor of a Ramp.
type Stop struct {
	At    float64 `json:"at" yaml:"at"`
	Color Color   `json:"color" yaml:"color"`
}

// Ramp is a piecewise linear gradient over stops sorted by At.
type Ramp []Stop

// At returns the color for v. Values outside the stop range take the
// nearest end color; inside a segment the channels are interpolated.
func (r Ramp) At(v float64) Color {
	if len(r) == 0 {
		return Color{}
	}
	if v <= r[0].At {
		return r[0].Color
	}
	for i := 1; i < len(r); i++ {
		if v <= r[i].At {
			lo, hi := r[i-1], r[i]
			span := hi.At - lo.At
			if span <= 0 {
				return hi.Color
			}
			return Lerp(lo.Color, hi.Color, (v-lo.At)/span)
		}
	}
	return r[len(r)-1].Color
}

func channel(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(255, v))))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
