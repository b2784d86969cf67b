package timeline

import (
	"errors"

	"github.com/urbanscope/urbanscope/internal/dataset"
)

// ErrNoForecast is returned when prediction mode is requested but the
// dataset has no forecast samples.
var ErrNoForecast = errors.New("no forecast samples available")

// Speed bounds, in index steps per play interval.
const (
	MinSpeed = 1
	MaxSpeed = 8
)

// PlayState is the playback state.
type PlayState string

const (
	Paused  PlayState = "paused"
	Playing PlayState = "playing"
)

// Origin tells SetYear who asked. Only direct manipulation pauses.
type Origin int

const (
	External Origin = iota
	Scrub
)

// Controller owns the selected domain time: the current sample index, the
// play state and the orthogonal predicted flag. The index always points
// into the active series (forecast when predicted, historical otherwise)
// and is clamped on every write.
type Controller struct {
	series  dataset.Series
	blender *Blender

	state            PlayState
	predicted        bool
	index            int
	speed            int
	forecastPlayback bool
}

// NewController creates a paused controller on the first historical sample.
func NewController(series dataset.Series, blender *Blender) *Controller {
	if blender == nil {
		blender = NewBlender(DefaultStepSize)
	}
	c := &Controller{
		series:  series,
		blender: blender,
		state:   Paused,
		speed:   MinSpeed,
	}
	if len(series.Historical) == 0 && len(series.Forecast) > 0 {
		c.predicted = true
		blender.Enter()
	}
	return c
}

func (c *Controller) active() []dataset.TimeSample {
	if c.predicted {
		return c.series.Forecast
	}
	return c.series.Historical
}

func (c *Controller) clamp(i int) int {
	n := len(c.active())
	switch {
	case n == 0 || i < 0:
		return 0
	case i >= n:
		return n - 1
	default:
		return i
	}
}

// Current returns the current sample. ok is false only when the active
// series is empty.
func (c *Controller) Current() (dataset.TimeSample, bool) {
	samples := c.active()
	if len(samples) == 0 {
		return dataset.TimeSample{}, false
	}
	return samples[c.clamp(c.index)], true
}

// Play starts advancing on the play interval.
func (c *Controller) Play() {
	c.state = Playing
}

// Pause freezes the index.
func (c *Controller) Pause() {
	c.state = Paused
}

// State returns the play state.
func (c *Controller) State() PlayState {
	return c.state
}

// Predicted reports whether prediction mode is on.
func (c *Controller) Predicted() bool {
	return c.predicted
}

// SetSpeed sets steps per play interval, clamped to [MinSpeed, MaxSpeed].
func (c *Controller) SetSpeed(n int) int {
	c.speed = max(MinSpeed, min(MaxSpeed, n))
	return c.speed
}

// Speed returns steps per play interval.
func (c *Controller) Speed() int {
	return c.speed
}

// SetForecastPlayback arms or disarms playing from history into the
// forecast without stopping at the last historical year.
func (c *Controller) SetForecastPlayback(on bool) {
	c.forecastPlayback = on
}

// ForecastPlayback reports whether forecast playthrough is armed.
func (c *Controller) ForecastPlayback() bool {
	return c.forecastPlayback
}

// SetYear jumps to the sample in the active series closest to year; ties
// go to the earlier sample. A Scrub origin pauses playback.
func (c *Controller) SetYear(year int, origin Origin) dataset.TimeSample {
	if origin == Scrub {
		c.Pause()
	}
	samples := c.active()
	best := 0
	for i, s := range samples {
		if abs(s.Year-year) < abs(samples[best].Year-year) {
			best = i
		}
	}
	c.index = best
	current, _ := c.Current()
	return current
}

// SetIndex jumps to index i in the active series, clamped.
func (c *Controller) SetIndex(i int) dataset.TimeSample {
	c.index = c.clamp(i)
	current, _ := c.Current()
	return current
}

// EnterPrediction switches to the forecast series at its first sample and
// restarts the blender. Re-entering while predicted is a no-op.
func (c *Controller) EnterPrediction() error {
	if len(c.series.Forecast) == 0 {
		return ErrNoForecast
	}
	if c.predicted {
		return nil
	}
	c.predicted = true
	c.index = 0
	c.blender.Enter()
	return nil
}

// ExitPrediction returns to the last historical sample and freezes the
// blender.
func (c *Controller) ExitPrediction() {
	if !c.predicted || len(c.series.Historical) == 0 {
		return
	}
	c.predicted = false
	c.index = len(c.series.Historical) - 1
	c.blender.Exit()
}

// Step advances one index step and reports whether it moved. At the end
// of history it crosses into the forecast when playthrough is armed;
// otherwise at the end of the active series it pauses.
func (c *Controller) Step() bool {
	if c.index < len(c.active())-1 {
		c.index++
		return true
	}
	if !c.predicted && c.forecastPlayback && len(c.series.Forecast) > 0 {
		return c.EnterPrediction() == nil
	}
	c.Pause()
	return false
}

// Advance runs one play interval: speed steps while playing.
func (c *Controller) Advance() {
	if c.state != Playing {
		return
	}
	for range c.speed {
		if !c.Step() {
			return
		}
	}
}

// DomainTime is the read-only view of domain time handed to generators
// for one frame.
type DomainTime struct {
	Current   dataset.TimeSample `json:"current"`
	HasSample bool               `json:"hasSample"`
	// Baseline is the last historical sample; forecast visuals blend from it.
	Baseline    dataset.TimeSample `json:"baseline"`
	HasBaseline bool               `json:"hasBaseline"`
	Index       int                `json:"index"`
	Predicted   bool               `json:"predicted"`
	Progress    float64            `json:"progress"`
	State       PlayState          `json:"state"`
	Speed       int                `json:"speed"`

	ForecastPlayback bool `json:"forecastPlayback"`
	FirstYear        int  `json:"firstYear"`
	LastYear         int  `json:"lastYear"`
}

// Blend interpolates from the baseline value to the current value by the
// blender progress. Outside prediction mode it returns current.
func (d DomainTime) Blend(baseline, current float64) float64 {
	if !d.Predicted || !d.HasBaseline {
		return current
	}
	return Lerp(baseline, current, d.Progress)
}

// Snapshot captures domain time for one frame.
func (c *Controller) Snapshot() DomainTime {
	current, ok := c.Current()
	d := DomainTime{
		Current:          current,
		HasSample:        ok,
		Index:            c.clamp(c.index),
		Predicted:        c.predicted,
		Progress:         c.blender.Progress(),
		State:            c.state,
		Speed:            c.speed,
		ForecastPlayback: c.forecastPlayback,
	}
	if n := len(c.series.Historical); n > 0 {
		d.Baseline = c.series.Historical[n-1]
		d.HasBaseline = true
		d.FirstYear = c.series.Historical[0].Year
		d.LastYear = c.series.Historical[n-1].Year
	}
	if n := len(c.series.Forecast); n > 0 {
		if !d.HasBaseline {
			d.FirstYear = c.series.Forecast[0].Year
		}
		d.LastYear = c.series.Forecast[n-1].Year
	}
	return d
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
