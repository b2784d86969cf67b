// Package compositor selects which layers are drawn for a frame, in which
// order, and turns generator output into declarative layer descriptors for
// the browser renderer.
package compositor

import (
	"fmt"

	"github.com/urbanscope/urbanscope/internal/geometry"
)

// Family groups layers for the visual-mode switch.
type Family string

const (
	FamilyAir     Family = "air"
	FamilyWater   Family = "water"
	FamilyNeutral Family = "neutral"
)

// VisualMode selects which families are shown.
type VisualMode string

const (
	ModeAir   VisualMode = "air"
	ModeWater VisualMode = "water"
	ModeDual  VisualMode = "dual"
)

// ParseVisualMode validates a mode name.
func ParseVisualMode(s string) (VisualMode, error) {
	switch m := VisualMode(s); m {
	case ModeAir, ModeWater, ModeDual:
		return m, nil
	}
	return "", fmt.Errorf("unknown visual mode %q", s)
}

// admits reports whether mode shows family. Neutral layers show in every mode.
func (m VisualMode) admits(f Family) bool {
	switch f {
	case FamilyAir:
		return m != ModeWater
	case FamilyWater:
		return m != ModeAir
	default:
		return true
	}
}

// Paint is the paint pass. Filled geometry draws before wireframes, and
// wireframes before labels.
type Paint int

const (
	PaintFilled Paint = iota
	PaintWireframe
	PaintLabel
)

// Renderer layer types.
const (
	TypeColumn  = "ColumnLayer"
	TypePolygon = "PolygonLayer"
	TypePath    = "PathLayer"
	TypeScatter = "ScatterplotLayer"
	TypeText    = "TextLayer"
)

// Generate produces the primitives of one layer for a frame.
type Generate func(*geometry.Generators, geometry.Input) []geometry.Primitive

// Layer is one catalog entry.
type Layer struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Family    Family        `json:"family"`
	Paint     Paint         `json:"paint"`
	Type      string        `json:"type"`
	Kind      geometry.Kind `json:"primitiveKind"`
	Aggregate bool          `json:"aggregate"`
	Extruded  bool          `json:"extruded"`
	Pickable  bool          `json:"pickable"`

	enabled  func(geometry.Toggles) bool
	generate Generate
}

// Enabled reports whether the toggles switch the layer on.
func (l Layer) Enabled(t geometry.Toggles) bool {
	return l.enabled(t)
}

// Layer ids.
const (
	LayerOpportunityCells  = "opportunity-cells"
	LayerPopulationColumns = "population-columns"
	LayerPollutionColumns  = "pollution-columns"
	LayerPollutionHeat     = "pollution-heat"
	LayerCatchmentHalos    = "catchment-halos"
	LayerRiverPaths        = "river-paths"
	LayerRiverFlow         = "river-flow"
	LayerGrowthTendrils    = "growth-tendrils"
	LayerHousingStress     = "housing-stress-rings"
	LayerRiskZoneRings     = "risk-zone-rings"
	LayerRiverLabels       = "river-labels"
	LayerRiskZoneLabels    = "risk-zone-labels"
)

// catalog lists every layer in paint order.
var catalog = []Layer{
	{
		ID: LayerOpportunityCells, Title: "Opportunity", Family: FamilyNeutral, Paint: PaintFilled,
		Type: TypePolygon, Kind: geometry.KindColumn, Aggregate: true, Extruded: true, Pickable: true,
		enabled:  func(t geometry.Toggles) bool { return t.Opportunity },
		generate: (*geometry.Generators).OpportunityCells,
	},
	{
		ID: LayerPopulationColumns, Title: "Population density", Family: FamilyNeutral, Paint: PaintFilled,
		Type: TypeColumn, Kind: geometry.KindColumn, Aggregate: true, Extruded: true,
		enabled:  func(t geometry.Toggles) bool { return t.Density },
		generate: (*geometry.Generators).DensityColumns,
	},
	{
		ID: LayerPollutionColumns, Title: "Pollution columns", Family: FamilyAir, Paint: PaintFilled,
		Type: TypeColumn, Kind: geometry.KindColumn, Aggregate: true, Extruded: true, Pickable: true,
		enabled:  func(t geometry.Toggles) bool { return t.PollutionColumns },
		generate: (*geometry.Generators).PollutionColumns,
	},
	{
		ID: LayerPollutionHeat, Title: "Pollution field", Family: FamilyAir, Paint: PaintFilled,
		Type: TypeScatter, Kind: geometry.KindScatterPoint, Aggregate: true,
		enabled:  func(t geometry.Toggles) bool { return t.PollutionField },
		generate: (*geometry.Generators).PollutionPoints,
	},
	{
		ID: LayerCatchmentHalos, Title: "Catchments", Family: FamilyWater, Paint: PaintFilled,
		Type: TypeScatter, Kind: geometry.KindRing, Aggregate: true,
		enabled:  func(t geometry.Toggles) bool { return t.Catchments },
		generate: (*geometry.Generators).CatchmentHalos,
	},
	{
		ID: LayerRiverPaths, Title: "Rivers", Family: FamilyWater, Paint: PaintWireframe,
		Type: TypePath, Kind: geometry.KindPath, Aggregate: true, Pickable: true,
		enabled:  func(t geometry.Toggles) bool { return t.Rivers },
		generate: (*geometry.Generators).RiverPaths,
	},
	{
		ID: LayerRiverFlow, Title: "River flow", Family: FamilyWater, Paint: PaintWireframe,
		Type: TypeScatter, Kind: geometry.KindScatterPoint, Aggregate: true, Pickable: true,
		enabled:  func(t geometry.Toggles) bool { return t.Rivers },
		generate: (*geometry.Generators).RiverFlow,
	},
	{
		ID: LayerGrowthTendrils, Title: "Growth", Family: FamilyNeutral, Paint: PaintWireframe,
		Type: TypePath, Kind: geometry.KindPath, Aggregate: true,
		enabled:  func(t geometry.Toggles) bool { return t.Tendrils },
		generate: (*geometry.Generators).Tendrils,
	},
	{
		// Stress is derived from the density grid and never shown without it.
		ID: LayerHousingStress, Title: "Housing stress", Family: FamilyNeutral, Paint: PaintWireframe,
		Type: TypeScatter, Kind: geometry.KindRing, Aggregate: true,
		enabled:  func(t geometry.Toggles) bool { return t.Stress && t.Density },
		generate: (*geometry.Generators).StressRings,
	},
	{
		ID: LayerRiskZoneRings, Title: "Risk zones", Family: FamilyNeutral, Paint: PaintWireframe,
		Type: TypeScatter, Kind: geometry.KindRing, Aggregate: true, Pickable: true,
		enabled:  func(t geometry.Toggles) bool { return t.RiskZones },
		generate: (*geometry.Generators).RiskZoneRings,
	},
	{
		ID: LayerRiverLabels, Title: "River labels", Family: FamilyWater, Paint: PaintLabel,
		Type: TypeText, Kind: geometry.KindTextLabel,
		enabled:  func(t geometry.Toggles) bool { return t.Labels && t.Rivers },
		generate: (*geometry.Generators).RiverLabels,
	},
	{
		ID: LayerRiskZoneLabels, Title: "Risk zone labels", Family: FamilyNeutral, Paint: PaintLabel,
		Type: TypeText, Kind: geometry.KindTextLabel, Pickable: true,
		enabled:  func(t geometry.Toggles) bool { return t.Labels && t.RiskZones },
		generate: (*geometry.Generators).RiskZoneLabels,
	},
}

// Catalog returns a copy of every layer in paint order.
func Catalog() []Layer {
	return append([]Layer(nil), catalog...)
}

// Lookup finds a catalog layer by id.
func Lookup(id string) (Layer, bool) {
	for _, l := range catalog {
		if l.ID == id {
			return l, true
		}
	}
	return Layer{}, false
}
