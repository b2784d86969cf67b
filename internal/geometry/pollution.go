package geometry

import (
	"fmt"
	"math"

	"github.com/urbanscope/urbanscope/pkg/geo"
	"github.com/urbanscope/urbanscope/pkg/rgba"
)

// Severity is a pollution concentration tier.
type Severity int

const (
	SeverityGood Severity = iota
	SeverityModerate
	SeverityUnhealthy
	SeverityHazardous
)

var severityNames = [...]string{"good", "moderate", "unhealthy", "hazardous"}

func (s Severity) String() string {
	if s < SeverityGood || s > SeverityHazardous {
		return "unknown"
	}
	return severityNames[s]
}

// MarshalText encodes the tier name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a tier name, so scene files can write
// "severity: hazardous".
func (s *Severity) UnmarshalText(text []byte) error {
	for i, name := range severityNames {
		if name == string(text) {
			*s = Severity(i)
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", text)
}

// SeverityBand is one (threshold, tier, color) entry. A concentration
// strictly above Above falls in the band.
type SeverityBand struct {
	Above    float64    `yaml:"above"`
	Severity Severity   `yaml:"severity"`
	Color    rgba.Color `yaml:"color"`
}

// DefaultSeverityBands are ordered from most to least severe.
func DefaultSeverityBands() []SeverityBand {
	return []SeverityBand{
		{Above: 180, Severity: SeverityHazardous, Color: rgba.New(126, 0, 35).WithAlpha(230)},
		{Above: 120, Severity: SeverityUnhealthy, Color: rgba.New(244, 67, 54).WithAlpha(220)},
		{Above: 80, Severity: SeverityModerate, Color: rgba.New(255, 193, 7).WithAlpha(210)},
	}
}

// goodColor is used when no band matches.
var goodColor = rgba.New(76, 175, 80).WithAlpha(200)

// Classify evaluates the bands top-down and returns the first match.
func Classify(bands []SeverityBand, concentration float64) (Severity, rgba.Color) {
	for _, b := range bands {
		if concentration > b.Above {
			return b.Severity, b.Color
		}
	}
	return SeverityGood, goodColor
}

// SeverityFor classifies a concentration with the default bands.
func SeverityFor(concentration float64) Severity {
	s, _ := Classify(DefaultSeverityBands(), concentration)
	return s
}

// SimulatedDay maps visual time onto a day of year in [1,365].
func (g *Generators) SimulatedDay(visualTime float64) int {
	days := int(math.Floor(math.Max(0, visualTime) * g.cfg.Pollution.DaysPerVisualUnit))
	return days%365 + 1
}

// SeasonalMultiplier returns the multiplier of the first season whose
// range covers day. Days past every range use 1.
func SeasonalMultiplier(seasons []Season, day int) float64 {
	for _, s := range seasons {
		if day <= s.ThroughDay {
			return s.Multiplier
		}
	}
	return 1
}

// PollutionSource is a hotspot as seen in one frame.
type PollutionSource struct {
	Name               string     `json:"name"`
	Position           geo.LonLat `json:"position"`
	BaseConcentration  float64    `json:"baseConcentration"`
	SeasonalMultiplier float64    `json:"seasonalMultiplier"`
}

// PollutionSample is one synthetic field point.
type PollutionSample struct {
	Position      geo.LonLat
	Concentration float64
	Severity      Severity
	Color         rgba.Color
}

// Sources returns the hotspots with the seasonal multiplier for the
// simulated day derived from visual time.
func (g *Generators) Sources(in Input) []PollutionSource {
	cfg := g.cfg.Pollution
	multiplier := SeasonalMultiplier(cfg.Seasons, g.SimulatedDay(in.VisualTime))

	out := make([]PollutionSource, 0, len(cfg.Hotspots))
	for _, h := range cfg.Hotspots {
		out = append(out, PollutionSource{
			Name:               h.Name,
			Position:           geo.Offset(g.snapshot.Center, h.EastMeters, h.NorthMeters),
			BaseConcentration:  h.BaseConcentration,
			SeasonalMultiplier: multiplier,
		})
	}
	return out
}

// Field emits the pollution points around every hotspot. Points sit on a
// rotating, breathing disc; concentration falls off with distance from
// the hotspot and oscillates per point.
func (g *Generators) Field(in Input) []PollutionSample {
	cfg := g.cfg.Pollution
	n := cfg.PointsPerHotspot
	if n <= 0 {
		return nil
	}
	vt := in.VisualTime

	var out []PollutionSample
	for h, src := range g.Sources(in) {
		radius := cfg.RadiusMeters * (1 + cfg.BreathingAmplitude*math.Sin(vt*cfg.BreathingSpeed+float64(h)))
		for k := range n {
			// Co-prime stride spreads the radial positions over the disc.
			radial := (float64((k*37)%n) + 0.5) / float64(n)
			angle := 2*math.Pi*float64(k)/float64(n) + float64(h)*0.7 + vt*cfg.RotationSpeed
			oscillation := 1 + cfg.OscillationAmplitude*math.Sin(vt*cfg.OscillationSpeed+float64(k)*0.5+float64(h))

			c := src.BaseConcentration * src.SeasonalMultiplier * math.Max(0, 1-radial*cfg.Falloff) * oscillation
			c = math.Max(0, c)
			severity, color := Classify(cfg.Severity, c)
			out = append(out, PollutionSample{
				Position:      geo.Polar(src.Position, radial*radius, angle),
				Concentration: c,
				Severity:      severity,
				Color:         color,
			})
		}
	}
	return out
}

// PollutionPoints renders the field as scatter points.
func (g *Generators) PollutionPoints(in Input) []Primitive {
	field := g.Field(in)
	if len(field) == 0 {
		return nil
	}
	out := make([]Primitive, 0, len(field))
	for _, s := range field {
		out = append(out, Primitive{
			Kind:      KindScatterPoint,
			Position:  s.Position,
			FillColor: s.Color,
			Radius:    g.cfg.Pollution.PointRadius,
			Value:     s.Concentration,
			Tier:      s.Severity.String(),
		})
	}
	return out
}

// PollutionColumns renders the field as columns whose height grows
// super-linearly with concentration.
func (g *Generators) PollutionColumns(in Input) []Primitive {
	cfg := g.cfg.Pollution
	field := g.Field(in)
	if len(field) == 0 {
		return nil
	}
	out := make([]Primitive, 0, len(field))
	for _, s := range field {
		out = append(out, Primitive{
			Kind:      KindColumn,
			Position:  s.Position,
			Elevation: ColumnHeight(s.Concentration, cfg.HeightScale, cfg.HeightExponent),
			FillColor: s.Color,
			LineColor: s.Color,
			Radius:    cfg.ColumnRadius,
			Value:     s.Concentration,
			Tier:      s.Severity.String(),
		})
	}
	return out
}

// ColumnHeight returns scale * c^exponent for non-negative c.
func ColumnHeight(concentration, scale, exponent float64) float64 {
	if concentration <= 0 {
		return 0
	}
	return scale * math.Pow(concentration, exponent)
}
