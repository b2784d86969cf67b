package geometry

import (
	"math"

	"github.com/urbanscope/urbanscope/internal/dataset"
	"github.com/urbanscope/urbanscope/pkg/geo"
	"github.com/urbanscope/urbanscope/pkg/rgba"
)

func (g *Generators) riverColor(river dataset.RiverSegment, vt float64) rgba.Color {
	cfg := g.cfg.Rivers
	status := river.Status()
	base, ok := cfg.StatusColors[string(status)]
	if !ok {
		base = rgba.New(66, 165, 245)
	}
	// Worse rivers pulse faster and deeper.
	rank := float64(status.Rank())
	p := pulse(vt * cfg.PulseSpeed * (1 + 0.5*rank))
	depth := 0.4 + 0.2*rank
	return base.WithAlpha(alpha(cfg.MinAlpha + (255-cfg.MinAlpha)*(1-depth+depth*p)))
}

// RiverPaths emits each river polyline colored by status.
func (g *Generators) RiverPaths(in Input) []Primitive {
	out := make([]Primitive, 0, len(g.snapshot.Rivers))
	for _, river := range g.snapshot.Rivers {
		if len(river.Path) < 2 {
			continue
		}
		ref := dataset.RiverRef(river.Name)
		color := g.riverColor(river, in.VisualTime)
		out = append(out, Primitive{
			Kind:      KindPath,
			Position:  river.Path[0],
			Path:      river.Path,
			LineColor: color,
			Width:     g.cfg.Rivers.Width,
			Value:     river.PollutionLevel,
			Tier:      string(river.Status()),
			Ref:       &ref,
		})
	}
	return out
}

// RiverFlow emits particles at fixed stations along each river, displaced
// perpendicular to the flow by a traveling sine wave.
func (g *Generators) RiverFlow(in Input) []Primitive {
	cfg := g.cfg.Rivers
	var out []Primitive
	for _, river := range g.snapshot.Rivers {
		stations := g.stations[river.Name]
		if len(stations) == 0 {
			continue
		}
		ref := dataset.RiverRef(river.Name)
		color := g.riverColor(river, in.VisualTime)
		for _, s := range stations {
			phase := in.VisualTime*cfg.WaveSpeed - s.Along/1000*cfg.WavesPerKm*2*math.Pi
			offset := cfg.OffsetMeters * math.Sin(phase)
			out = append(out, Primitive{
				Kind:      KindScatterPoint,
				Position:  geo.Polar(s.Position, offset, s.Heading+math.Pi/2),
				FillColor: color,
				Radius:    cfg.ParticleRadius,
				Value:     river.PollutionLevel,
				Tier:      string(river.Status()),
				Ref:       &ref,
			})
		}
	}
	return out
}

// RiverLabels places each river name at the middle station of its path.
func (g *Generators) RiverLabels(_ Input) []Primitive {
	out := make([]Primitive, 0, len(g.snapshot.Rivers))
	for _, river := range g.snapshot.Rivers {
		stations := g.stations[river.Name]
		if len(stations) == 0 {
			continue
		}
		ref := dataset.RiverRef(river.Name)
		out = append(out, Primitive{
			Kind:      KindTextLabel,
			Position:  stations[len(stations)/2].Position,
			Text:      river.Name,
			FillColor: rgba.New(255, 255, 255),
			Tier:      string(river.Status()),
			Ref:       &ref,
		})
	}
	return out
}

// CatchmentHalos emits a slowly breathing filled circle per catchment.
func (g *Generators) CatchmentHalos(in Input) []Primitive {
	cfg := g.cfg.Catchments
	out := make([]Primitive, 0, len(g.snapshot.Catchments))
	for i, c := range g.snapshot.Catchments {
		p := pulse(in.VisualTime*cfg.PulseSpeed + float64(i))
		out = append(out, Primitive{
			Kind:      KindRing,
			Position:  c.Center,
			Radius:    c.RadiusMeters * (1 + cfg.PulseAmplitude*(2*p-1)),
			FillColor: cfg.Color.Scale(0.6 + 0.4*p),
			LineColor: cfg.Color.WithAlpha(alpha(float64(cfg.Color.A) * 2)),
			Width:     1,
			Text:      c.Name,
		})
	}
	return out
}
