package engine

import (
	"time"

	"github.com/urbanscope/urbanscope/internal/camera"
	"github.com/urbanscope/urbanscope/internal/compositor"
	"github.com/urbanscope/urbanscope/internal/geometry"
	"github.com/urbanscope/urbanscope/internal/selection"
	"github.com/urbanscope/urbanscope/internal/timeline"
)

// FrameStatus tells the renderer whether to draw the layers.
type FrameStatus string

const (
	StatusOK                  FrameStatus = "ok"
	StatusRendererUnavailable FrameStatus = "renderer_unavailable"
	StatusClosed              FrameStatus = "closed"
)

// Frame is everything the browser needs to draw one frame. Frames are
// immutable once published.
type Frame struct {
	SessionID     string                       `json:"sessionId"`
	Seq           uint64                       `json:"seq"`
	Status        FrameStatus                  `json:"status"`
	Message       string                       `json:"message,omitempty"`
	VisualTime    float64                      `json:"visualTime"`
	Domain        timeline.DomainTime          `json:"domain"`
	Camera        camera.Pose                  `json:"camera"`
	ViewMode      string                       `json:"viewMode"`
	FocusedCellID int                          `json:"focusedCellId,omitempty"`
	VisualMode    compositor.VisualMode        `json:"visualMode"`
	Toggles       geometry.Toggles             `json:"toggles"`
	Layers        []compositor.LayerDescriptor `json:"layers"`
	Selection     selection.State              `json:"selection"`
	GeneratedAt   time.Time                    `json:"generatedAt"`
}

// LayerNames returns the layer ids in paint order.
func (f *Frame) LayerNames() []string {
	names := make([]string, len(f.Layers))
	for i, l := range f.Layers {
		names[i] = l.ID
	}
	return names
}

// PrimitiveCount sums the primitives across layers.
func (f *Frame) PrimitiveCount() int {
	n := 0
	for _, l := range f.Layers {
		n += len(l.Data)
	}
	return n
}
