package models

import (
	"github.com/urbanscope/urbanscope/internal/camera"
	"github.com/urbanscope/urbanscope/internal/dataset"
	"github.com/urbanscope/urbanscope/internal/engine"
	"github.com/urbanscope/urbanscope/internal/geometry"
	"github.com/urbanscope/urbanscope/internal/selection"
)

// CreateSessionRequest opens a view session. Every field is optional.
type CreateSessionRequest struct {
	Toggles *geometry.Toggles `json:"toggles,omitempty"`
	Mode    string            `json:"mode,omitempty"`
	Year    int               `json:"year,omitempty"`
}

// SessionCreated is returned when a session opens.
type SessionCreated struct {
	ID        string        `json:"id"`
	StreamURL string        `json:"streamUrl"`
	Frame     *engine.Frame `json:"frame"`
}

// SpeedRequest sets playback speed; out of range values are clamped.
type SpeedRequest struct {
	Speed int `json:"speed"`
}

// SpeedResponse echoes the clamped speed.
type SpeedResponse struct {
	Speed int `json:"speed"`
}

// YearRequest selects the sample nearest Year. Scrub marks a slider drag,
// which pauses playback.
type YearRequest struct {
	Year  int  `json:"year"`
	Scrub bool `json:"scrub,omitempty"`
}

// YearResponse is the sample that was selected.
type YearResponse struct {
	Sample dataset.TimeSample `json:"sample"`
}

// StepResponse reports whether a step moved the timeline.
type StepResponse struct {
	Moved bool `json:"moved"`
}

// ForecastPlaybackRequest arms or disarms playing into the forecast.
type ForecastPlaybackRequest struct {
	Enabled bool `json:"enabled"`
}

// ModeRequest selects the air, water or dual view.
type ModeRequest struct {
	Mode string `json:"mode"`
}

// FlyToRequest moves the camera to Target over DurationMs.
type FlyToRequest struct {
	Target     camera.Pose `json:"target"`
	DurationMs int         `json:"durationMs"`
}

// Zoom directions.
const (
	ZoomIn  = "in"
	ZoomOut = "out"
)

// ZoomRequest zooms one step in Direction.
type ZoomRequest struct {
	Direction string `json:"direction"`
}

// FocusRequest focuses a grid cell.
type FocusRequest struct {
	CellID int `json:"cellId"`
}

// CameraResponse is the camera target after a camera control.
type CameraResponse struct {
	Camera        camera.Pose `json:"camera"`
	ViewMode      string      `json:"viewMode"`
	FocusedCellID int         `json:"focusedCellId,omitempty"`
}

// PickRequest reports the primitive under the pointer. A null pick means
// the pointer is over empty map.
type PickRequest struct {
	Pick *selection.Pick `json:"pick"`
}

// RendererFailureRequest reports that the browser failed to draw.
type RendererFailureRequest struct {
	Reason string `json:"reason"`
}
