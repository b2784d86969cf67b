// Package camera holds the view pose and the overview/focused view mode.
// It stores transition targets only; the renderer eases between poses.
package camera

import (
	"errors"
	"math"

	"github.com/urbanscope/urbanscope/pkg/geo"
)

// ErrUnknownCell is returned when focusing a cell that does not exist.
var ErrUnknownCell = errors.New("unknown cell")

// Pitch bounds in degrees.
const (
	MinPitch = 0
	MaxPitch = 85
)

// Pose is a camera pose plus the duration of the transition to it.
type Pose struct {
	Longitude            float64 `json:"longitude" yaml:"longitude"`
	Latitude             float64 `json:"latitude" yaml:"latitude"`
	Zoom                 float64 `json:"zoom" yaml:"zoom"`
	Pitch                float64 `json:"pitch" yaml:"pitch"`
	Bearing              float64 `json:"bearing" yaml:"bearing"`
	TransitionDurationMs int     `json:"transitionDurationMs" yaml:"transitionDurationMs"`
}

// Center returns the pose position.
func (p Pose) Center() geo.LonLat {
	return geo.Pt(p.Longitude, p.Latitude)
}

// Mode is the two-state view mode. Focused carries the cell id; the
// compositor's focused flag is derived from it.
type Mode struct {
	focused bool
	cellID  int
}

// Overview is the aggregate view mode.
func Overview() Mode {
	return Mode{}
}

// Focused is the single-cell detail mode.
func Focused(cellID int) Mode {
	return Mode{focused: true, cellID: cellID}
}

// IsFocused reports whether the mode is Focused.
func (m Mode) IsFocused() bool {
	return m.focused
}

// CellID returns the focused cell, or 0 in overview.
func (m Mode) CellID() int {
	return m.cellID
}

func (m Mode) String() string {
	if m.focused {
		return "focused"
	}
	return "overview"
}

// CellLocator resolves a cell id to its polygon centroid.
type CellLocator interface {
	CellCentroid(id int) (geo.LonLat, bool)
}

// Config holds the fixed poses and zoom bounds.
type Config struct {
	Overview     Pose    `yaml:"overview"`
	MinZoom      float64 `yaml:"minZoom"`
	MaxZoom      float64 `yaml:"maxZoom"`
	ZoomStep     float64 `yaml:"zoomStep"`
	FocusZoom    float64 `yaml:"focusZoom"`
	TransitionMs int     `yaml:"transitionMs"`
}

// DefaultConfig returns an overview pose over center.
func DefaultConfig(center geo.LonLat) Config {
	return Config{
		Overview: Pose{
			Longitude:            center.Lon,
			Latitude:             center.Lat,
			Zoom:                 10,
			Pitch:                50,
			Bearing:              -15,
			TransitionDurationMs: 1500,
		},
		MinZoom:      8,
		MaxZoom:      16,
		ZoomStep:     1,
		FocusZoom:    14,
		TransitionMs: 1500,
	}
}

// Controller holds the target pose and view mode.
type Controller struct {
	cfg      Config
	cells    CellLocator
	pose     Pose
	mode     Mode
	preFocus Pose
}

// NewController starts at the overview pose.
func NewController(cfg Config, cells CellLocator) *Controller {
	if cfg.MaxZoom < cfg.MinZoom {
		cfg.MinZoom, cfg.MaxZoom = cfg.MaxZoom, cfg.MinZoom
	}
	c := &Controller{cfg: cfg, cells: cells, mode: Overview()}
	c.pose = c.clamp(cfg.Overview)
	return c
}

// Pose returns the current target pose.
func (c *Controller) Pose() Pose {
	return c.pose
}

// Mode returns the view mode.
func (c *Controller) Mode() Mode {
	return c.mode
}

// FlyTo records target as the pose to ease to over durationMs. Flying
// away from a focused cell leaves Focused, so the pose and the view mode
// never disagree.
func (c *Controller) FlyTo(target Pose, durationMs int) Pose {
	c.leaveFocus()
	return c.moveTo(target, durationMs)
}

// ResetToOverview restores the fixed default pose and returns to Overview.
func (c *Controller) ResetToOverview() Pose {
	return c.FlyTo(c.cfg.Overview, c.cfg.TransitionMs)
}

// ZoomIn zooms in one step around the current center. A focused view
// stays focused on its cell.
func (c *Controller) ZoomIn() Pose {
	return c.zoomBy(c.cfg.ZoomStep)
}

// ZoomOut zooms out one step around the current center.
func (c *Controller) ZoomOut() Pose {
	return c.zoomBy(-c.cfg.ZoomStep)
}

func (c *Controller) zoomBy(step float64) Pose {
	target := c.pose
	target.Zoom += step
	return c.moveTo(target, c.cfg.TransitionMs/3)
}

func (c *Controller) moveTo(target Pose, durationMs int) Pose {
	target.TransitionDurationMs = max(0, durationMs)
	c.pose = c.clamp(target)
	return c.pose
}

func (c *Controller) leaveFocus() {
	c.mode = Overview()
	c.preFocus = Pose{}
}

// EnterFocus centers a top-down, high-zoom pose on the cell centroid and
// switches to Focused. Focusing another cell keeps the original
// pre-focus pose.
func (c *Controller) EnterFocus(cellID int) (Pose, error) {
	if c.cells == nil {
		return c.pose, ErrUnknownCell
	}
	centroid, ok := c.cells.CellCentroid(cellID)
	if !ok {
		return c.pose, ErrUnknownCell
	}
	if !c.mode.IsFocused() {
		c.preFocus = c.pose
	}
	c.mode = Focused(cellID)
	return c.moveTo(Pose{
		Longitude: centroid.Lon,
		Latitude:  centroid.Lat,
		Zoom:      c.cfg.FocusZoom,
		Pitch:     0,
		Bearing:   0,
	}, c.cfg.TransitionMs), nil
}

// ExitFocus restores the pose held before focusing and returns to
// Overview. It is a no-op in overview.
func (c *Controller) ExitFocus() Pose {
	if !c.mode.IsFocused() {
		return c.pose
	}
	back := c.preFocus
	c.leaveFocus()
	return c.moveTo(back, c.cfg.TransitionMs)
}

func (c *Controller) clamp(p Pose) Pose {
	p.Zoom = math.Max(c.cfg.MinZoom, math.Min(c.cfg.MaxZoom, p.Zoom))
	p.Pitch = math.Max(MinPitch, math.Min(MaxPitch, p.Pitch))
	p.Bearing = math.Mod(p.Bearing, 360)
	p.Latitude = math.Max(-90, math.Min(90, p.Latitude))
	return p
}
