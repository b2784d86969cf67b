package geometry

import (
	"github.com/urbanscope/urbanscope/internal/dataset"
)

// OpportunityHeight is the weighted extrusion of a cell. Unknown
// attributes contribute nothing.
func OpportunityHeight(cfg OpportunityConfig, cell dataset.SpatialCell) float64 {
	h := 0.0
	if cell.OpportunityScore.Known {
		h += (1 - clamp01(cell.OpportunityScore.Value)) * cfg.W1
	}
	if cell.HousingPressure.Known {
		h += clamp01(cell.HousingPressure.Value) * cfg.W2
	}
	if cell.PopulationDensity.Known && cfg.DensityReference > 0 {
		h += clamp01(cell.PopulationDensity.Value/cfg.DensityReference) * cfg.W3
	}
	return h
}

// OpportunityCells extrudes every cell polygon, colored along the
// red-amber-green gradient by opportunity score.
func (g *Generators) OpportunityCells(_ Input) []Primitive {
	cfg := g.cfg.Opportunity
	out := make([]Primitive, 0, len(g.snapshot.Cells))
	for _, cell := range g.snapshot.Cells {
		if len(cell.Polygon) < 3 {
			continue
		}
		color := cfg.UnknownColor
		if cell.OpportunityScore.Known {
			color = cfg.Gradient.At(cell.OpportunityScore.Value)
		}
		ref := dataset.CellRef(cell.ID)
		out = append(out, Primitive{
			Kind:      KindColumn,
			Position:  cell.Centroid(),
			Polygon:   cell.Polygon,
			Elevation: OpportunityHeight(cfg, cell),
			FillColor: color,
			LineColor: cfg.LineColor,
			Value:     cell.OpportunityScore.Or(0),
			Tier:      string(cell.Category()),
			Ref:       &ref,
		})
	}
	return out
}
