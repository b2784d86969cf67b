package geometry

import (
	"math"

	"github.com/urbanscope/urbanscope/internal/timeline"
	"github.com/urbanscope/urbanscope/pkg/geo"
	"github.com/urbanscope/urbanscope/pkg/rgba"
)

// Tendrils emits one organic polyline per fixed direction from the metro
// center. Length follows the built-up fraction; each vertex angle is
// perturbed by a sine of visual time, direction and vertex index.
func (g *Generators) Tendrils(in Input) []Primitive {
	cfg := g.cfg.Tendrils
	d := in.Domain
	if !d.HasSample || cfg.Directions <= 0 || cfg.Points < 2 {
		return nil
	}

	fraction := clamp01(d.Blend(d.Baseline.GrowthBuiltUp, d.Current.GrowthBuiltUp))
	length := cfg.MaxLengthMeters * fraction
	if length <= 0 {
		return nil
	}
	nightLight := clamp01(d.Blend(d.Baseline.NightLightIndex, d.Current.NightLightIndex))
	origin := g.snapshot.Center
	vt := in.VisualTime

	out := make([]Primitive, 0, cfg.Directions)
	for dir := range cfg.Directions {
		base := 2 * math.Pi * float64(dir) / float64(cfg.Directions)
		path := make([]geo.LonLat, cfg.Points)
		for p := range cfg.Points {
			r := length * float64(p) / float64(cfg.Points-1)
			jitter := math.Sin(vt*cfg.K1+float64(dir)*cfg.K2+float64(p)*cfg.K3) * cfg.JitterAmplitude
			path[p] = geo.Polar(origin, r, base+jitter)
		}

		intensity := nightLight * (0.7 + 0.3*math.Sin(vt*cfg.K4+float64(dir)))
		color := rgba.Lerp(cfg.DimColor, cfg.BrightColor, intensity)
		out = append(out, Primitive{
			Kind:      KindPath,
			Position:  origin,
			Path:      path,
			LineColor: color,
			FillColor: color,
			Width:     cfg.Width * (0.5 + intensity),
			Value:     intensity,
		})
	}
	return out
}

// densityColumn is the height and growth of one grid node for a frame.
type densityColumn struct {
	cell   gridCell
	height float64
	growth float64
}

func (g *Generators) densityColumns(in Input) []densityColumn {
	cfg := g.cfg.Density
	d := in.Domain
	if !d.HasSample || len(g.grid) == 0 {
		return nil
	}

	reference := cfg.ReferencePopulation
	if reference <= 0 {
		reference = 1
	}
	baseScale := cfg.PopulationScale * d.Baseline.Population / reference
	currentScale := cfg.PopulationScale * d.Current.Population / reference
	growth := d.Blend(d.Baseline.GrowthBuiltUp, d.Current.GrowthBuiltUp)

	out := make([]densityColumn, 0, len(g.grid))
	for _, cell := range g.grid {
		falloff := math.Max(0, 1-cell.distanceKm*cfg.FalloffPerKm)
		variation := 1 + cfg.VariationAmplitude*(2*cell.noise-1)
		breathing := 1 + cfg.BreathingAmplitude*math.Sin(in.VisualTime*cfg.BreathingSpeed+cell.position.Lon*cfg.BreathingLonFactor)

		baseHeight := falloff * baseScale * variation
		currentHeight := falloff * currentScale * variation
		height := d.Blend(baseHeight, currentHeight) * breathing

		out = append(out, densityColumn{
			cell:   cell,
			height: math.Max(0, height),
			// Outer nodes and noisy nodes grow faster than the core.
			growth: growth * (0.5 + cell.noise) * (0.6 + 0.1*cell.distanceKm),
		})
	}
	return out
}

// DensityColumns emits one extruded column per density grid node.
func (g *Generators) DensityColumns(in Input) []Primitive {
	cfg := g.cfg.Density
	columns := g.densityColumns(in)
	if len(columns) == 0 {
		return nil
	}

	maxHeight := cfg.PopulationScale * (1 + cfg.VariationAmplitude) * (1 + cfg.BreathingAmplitude)
	out := make([]Primitive, 0, len(columns))
	for _, col := range columns {
		if col.height <= 0 {
			continue
		}
		color := rgba.Lerp(cfg.LowColor, cfg.HighColor, col.height/maxHeight)
		if in.Domain.Predicted {
			color = timeline.LerpColor(color, cfg.PredictedColor, in.Domain.Progress)
		}
		out = append(out, Primitive{
			Kind:      KindColumn,
			Position:  col.cell.position,
			Elevation: col.height,
			FillColor: color,
			LineColor: color,
			Radius:    cfg.ColumnRadius,
			Value:     col.height,
		})
	}
	return out
}

// StressRings marks density nodes growing fast far from the core. Each
// qualifying node gets concentric rings that expand and fade, offset in
// phase so the alarm keeps rippling outward.
func (g *Generators) StressRings(in Input) []Primitive {
	cfg := g.cfg.Stress
	if cfg.Rings <= 0 {
		return nil
	}

	var out []Primitive
	for _, col := range g.densityColumns(in) {
		if col.growth <= cfg.GrowthThreshold || col.cell.distanceKm <= cfg.PeripheralKm {
			continue
		}
		for ring := range cfg.Rings {
			phase := fract(in.VisualTime*cfg.PulseSpeed/(2*math.Pi) + float64(ring)*cfg.PhaseOffset)
			color := cfg.Color.WithAlpha(alpha(float64(cfg.Color.A) * (1 - phase)))
			out = append(out, Primitive{
				Kind:      KindRing,
				Position:  col.cell.position,
				Radius:    cfg.BaseRadius + phase*cfg.RadiusAmplitude,
				Width:     cfg.Width,
				LineColor: color,
				Value:     col.growth,
			})
		}
	}
	return out
}
