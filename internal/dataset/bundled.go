package dataset

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/urbanscope/urbanscope/pkg/geo"
)

// BundledProviderName identifies the in-process sample dataset.
const BundledProviderName = "bundled"

// MetroCenter is the reference center of the bundled metro area.
var MetroCenter = geo.Pt(77.2090, 28.6139)

const (
	gridSize    = 6
	gridSpacing = 0.045
)

// BundledProvider serves a static, self-consistent sample of one metro
// area. It never fails and needs no network.
type BundledProvider struct {
	now func() time.Time
}

// NewBundledProvider creates the bundled provider.
func NewBundledProvider() *BundledProvider {
	return &BundledProvider{now: time.Now}
}

// FetchSnapshot returns a fresh copy of the bundled sample.
func (p *BundledProvider) FetchSnapshot(_ context.Context) (*Snapshot, error) {
	return &Snapshot{
		Center:     MetroCenter,
		Series:     bundledSeries(),
		Cells:      bundledCells(),
		Rivers:     bundledRivers(),
		Catchments: bundledCatchments(),
		RiskZones:  bundledRiskZones(),
		FetchedAt:  p.now(),
		Provider:   BundledProviderName,
	}, nil
}

func bundledSeries() Series {
	hist := func(year int, pop, built, light, growth float64) TimeSample {
		return TimeSample{
			Year:            year,
			Population:      pop,
			BuiltUpArea:     built,
			NightLightIndex: light,
			GrowthBuiltUp:   growth,
			Kind:            KindHistorical,
		}
	}
	pred := func(year int, pop, built, light, growth, confidence float64) TimeSample {
		return TimeSample{
			Year:            year,
			Population:      pop,
			BuiltUpArea:     built,
			NightLightIndex: light,
			GrowthBuiltUp:   growth,
			Kind:            KindPredicted,
			Confidence:      Known(confidence),
		}
	}

	return Series{
		Historical: []TimeSample{
			hist(2000, 13_800_000, 540, 0.42, 0.31),
			hist(2005, 16_000_000, 610, 0.48, 0.36),
			hist(2010, 18_200_000, 700, 0.55, 0.42),
			hist(2015, 20_500_000, 790, 0.63, 0.48),
			hist(2020, 22_800_000, 880, 0.71, 0.54),
			hist(2025, 25_000_000, 960, 0.78, 0.60),
		},
		Forecast: []TimeSample{
			pred(2030, 27_400_000, 1050, 0.84, 0.66, 0.85),
			pred(2035, 29_600_000, 1130, 0.88, 0.71, 0.78),
			pred(2040, 31_500_000, 1200, 0.91, 0.75, 0.70),
			pred(2045, 33_100_000, 1260, 0.93, 0.78, 0.62),
			pred(2050, 34_500_000, 1310, 0.95, 0.81, 0.55),
		},
	}
}

// bundledCells lays out a square grid around the metro center. Scores fall
// off with distance from the core; two cells carry gaps in their attributes.
func bundledCells() []SpatialCell {
	cells := make([]SpatialCell, 0, gridSize*gridSize)
	half := float64(gridSize) / 2
	for row := range gridSize {
		for col := range gridSize {
			id := row*gridSize + col + 1
			minLon := MetroCenter.Lon + (float64(col)-half)*gridSpacing
			minLat := MetroCenter.Lat + (float64(row)-half)*gridSpacing
			ring := geo.Ring{
				geo.Pt(minLon, minLat),
				geo.Pt(minLon+gridSpacing, minLat),
				geo.Pt(minLon+gridSpacing, minLat+gridSpacing),
				geo.Pt(minLon, minLat+gridSpacing),
			}

			dx := float64(col) + 0.5 - half
			dy := float64(row) + 0.5 - half
			r := math.Hypot(dx, dy) / math.Hypot(half, half)

			opportunity := round3(0.95 - 0.7*r + 0.05*math.Sin(float64(id)))
			pressure := round3(0.35 + 0.5*(1-r) + 0.1*math.Cos(float64(id)*1.7))
			density := math.Round(28000*(1-0.8*r) + 1500*math.Sin(float64(id)*0.9))

			cell := SpatialCell{
				ID:                id,
				Name:              fmt.Sprintf("Ward %02d", id),
				Polygon:           ring,
				OpportunityScore:  Known(clamp01(opportunity)),
				HousingPressure:   Known(clamp01(pressure)),
				PopulationDensity: Known(density),
			}
			switch id {
			case 31:
				cell.PopulationDensity = Unknown()
			case 36:
				cell.OpportunityScore = Unknown()
			}
			cells = append(cells, cell)
		}
	}
	return cells
}

func bundledRivers() []RiverSegment {
	return []RiverSegment{
		{
			Name: "Yamuna",
			Path: []geo.LonLat{
				geo.Pt(77.2280, 28.7480), geo.Pt(77.2350, 28.7050),
				geo.Pt(77.2460, 28.6620), geo.Pt(77.2530, 28.6180),
				geo.Pt(77.2640, 28.5790), geo.Pt(77.2870, 28.5420),
				geo.Pt(77.3120, 28.5010),
			},
			PollutionLevel: 32,
		},
		{
			Name: "Hindon",
			Path: []geo.LonLat{
				geo.Pt(77.3780, 28.7140), geo.Pt(77.3850, 28.6700),
				geo.Pt(77.3960, 28.6240), geo.Pt(77.4120, 28.5780),
				geo.Pt(77.4010, 28.5330),
			},
			PollutionLevel: 21,
		},
		{
			Name: "Najafgarh Drain",
			Path: []geo.LonLat{
				geo.Pt(76.9820, 28.5680), geo.Pt(77.0340, 28.6020),
				geo.Pt(77.0910, 28.6410), geo.Pt(77.1470, 28.6860),
				geo.Pt(77.2010, 28.7190), geo.Pt(77.2310, 28.7330),
			},
			PollutionLevel: 12,
		},
		{
			Name: "Sahibi",
			Path: []geo.LonLat{
				geo.Pt(76.8900, 28.4700), geo.Pt(76.9320, 28.5100),
				geo.Pt(76.9820, 28.5680),
			},
			PollutionLevel: 4.5,
		},
	}
}

func bundledCatchments() []Catchment {
	return []Catchment{
		{Name: "Upper Yamuna", River: "Yamuna", Center: geo.Pt(77.2300, 28.7300), RadiusMeters: 4500},
		{Name: "Okhla Basin", River: "Yamuna", Center: geo.Pt(77.2950, 28.5350), RadiusMeters: 3800},
		{Name: "Hindon Floodplain", River: "Hindon", Center: geo.Pt(77.3950, 28.6300), RadiusMeters: 4200},
		{Name: "Najafgarh Jheel", River: "Najafgarh Drain", Center: geo.Pt(76.9900, 28.5700), RadiusMeters: 5200},
	}
}

func bundledRiskZones() []RiskZone {
	return []RiskZone{
		{
			Name:          "Yamuna Floodplain East",
			Center:        geo.Pt(77.2700, 28.6300),
			RadiusMeters:  2500,
			Population:    410_000,
			Urgency:       UrgencyImmediate,
			Interventions: []string{"Relocate floodplain settlements", "Restore wetland buffer"},
		},
		{
			Name:          "Okhla Industrial",
			Center:        geo.Pt(77.2750, 28.5300),
			RadiusMeters:  1800,
			Population:    185_000,
			Urgency:       UrgencyCritical,
			Interventions: []string{"Effluent treatment upgrade", "Green corridor"},
		},
		{
			Name:          "Ghazipur Landfill",
			Center:        geo.Pt(77.3250, 28.6250),
			RadiusMeters:  1500,
			Population:    120_000,
			Urgency:       UrgencyCritical,
			Interventions: []string{"Leachate capture", "Methane flaring"},
		},
		{
			Name:          "Najafgarh Periphery",
			Center:        geo.Pt(76.9800, 28.6100),
			RadiusMeters:  3000,
			Population:    260_000,
			Urgency:       UrgencyHigh,
			Interventions: []string{"Drain desilting", "Zoning enforcement"},
		},
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
