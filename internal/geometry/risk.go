package geometry

import (
	"fmt"
	"math"

	"github.com/urbanscope/urbanscope/internal/dataset"
	"github.com/urbanscope/urbanscope/pkg/rgba"
)

// RiskZoneRings emits pulsing rings per zone. Urgency picks both the
// color and the pulse speed.
func (g *Generators) RiskZoneRings(in Input) []Primitive {
	cfg := g.cfg.RiskZones
	if cfg.Rings <= 0 {
		return nil
	}
	out := make([]Primitive, 0, len(g.snapshot.RiskZones)*cfg.Rings)
	for _, zone := range g.snapshot.RiskZones {
		speed := cfg.PulseSpeeds[string(zone.Urgency)]
		color, ok := cfg.Colors[string(zone.Urgency)]
		if !ok {
			color = rgba.New(239, 83, 80)
		}
		ref := dataset.ZoneRef(zone.Name)
		for ring := range cfg.Rings {
			phase := fract(in.VisualTime*speed/(2*math.Pi) + float64(ring)*cfg.PhaseOffset)
			out = append(out, Primitive{
				Kind:      KindRing,
				Position:  zone.Center,
				Radius:    zone.RadiusMeters * (1 + phase*cfg.MaxGrowth),
				Width:     cfg.Width,
				LineColor: color.WithAlpha(alpha(255 * (1 - phase))),
				FillColor: color.WithAlpha(alpha(40 * (1 - phase))),
				Value:     float64(zone.Population),
				Tier:      string(zone.Urgency),
				Ref:       &ref,
			})
		}
	}
	return out
}

// RiskZoneLabels places a name and population label at each zone center.
func (g *Generators) RiskZoneLabels(_ Input) []Primitive {
	out := make([]Primitive, 0, len(g.snapshot.RiskZones))
	for _, zone := range g.snapshot.RiskZones {
		ref := dataset.ZoneRef(zone.Name)
		out = append(out, Primitive{
			Kind:      KindTextLabel,
			Position:  zone.Center,
			Text:      fmt.Sprintf("%s\n%s people", zone.Name, formatThousands(zone.Population)),
			FillColor: g.cfg.RiskZones.LabelColor,
			Value:     float64(zone.Population),
			Tier:      string(zone.Urgency),
			Ref:       &ref,
		})
	}
	return out
}

func formatThousands(n int) string {
	s := fmt.Sprintf("%d", n)
	if n < 0 {
		return "-" + formatThousands(-n)
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}
