// Package geometry holds the procedural scene generators. Each generator
// is a pure function of an Input (domain time, visual time, toggles) over
// an immutable dataset snapshot and tuning config, and returns a fresh
// list of primitives.
package geometry

import (
	"github.com/urbanscope/urbanscope/internal/dataset"
	"github.com/urbanscope/urbanscope/internal/timeline"
	"github.com/urbanscope/urbanscope/pkg/geo"
	"github.com/urbanscope/urbanscope/pkg/rgba"
)

// Kind is the primitive shape the renderer draws.
type Kind string

const (
	KindColumn       Kind = "column"
	KindPath         Kind = "path"
	KindScatterPoint Kind = "scatterPoint"
	KindRing         Kind = "ring"
	KindTextLabel    Kind = "textLabel"
)

// Primitive is one renderable item. Primitives are created fresh each
// frame and never mutated afterwards.
type Primitive struct {
	Kind      Kind               `json:"kind"`
	Position  geo.LonLat         `json:"position"`
	Path      []geo.LonLat       `json:"path,omitempty"`
	Polygon   geo.Ring           `json:"polygon,omitempty"`
	Elevation float64            `json:"elevation"`
	FillColor rgba.Color         `json:"fillColor"`
	LineColor rgba.Color         `json:"lineColor"`
	Radius    float64            `json:"radius,omitempty"`
	Width     float64            `json:"width,omitempty"`
	Text      string             `json:"text,omitempty"`
	Value     float64            `json:"value"`
	Tier      string             `json:"tier,omitempty"`
	Ref       *dataset.EntityRef `json:"ref,omitempty"`
}

// Toggles is the set of overlay switches.
type Toggles struct {
	Tendrils         bool `json:"tendrils"`
	Density          bool `json:"density"`
	Stress           bool `json:"stress"`
	PollutionField   bool `json:"pollutionField"`
	PollutionColumns bool `json:"pollutionColumns"`
	Rivers           bool `json:"rivers"`
	Catchments       bool `json:"catchments"`
	Opportunity      bool `json:"opportunity"`
	RiskZones        bool `json:"riskZones"`
	Labels           bool `json:"labels"`
}

// DefaultToggles is the overlay set a new view starts with.
func DefaultToggles() Toggles {
	return Toggles{
		Tendrils:       true,
		Density:        true,
		PollutionField: true,
		Rivers:         true,
		RiskZones:      true,
		Labels:         true,
	}
}

// Input is the per-frame read-only input shared by all generators.
type Input struct {
	Domain     timeline.DomainTime
	VisualTime float64
	Toggles    Toggles
}
