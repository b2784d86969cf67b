package urbanapi

import (
	"encoding/json"

	"github.com/urbanscope/urbanscope/internal/dataset"
	"github.com/urbanscope/urbanscope/pkg/geo"
	"github.com/urbanscope/urbanscope/pkg/polyline"
)

type metroResponse struct {
	Name   string     `json:"name"`
	Center [2]float64 `json:"center"`
}

type sampleJSON struct {
	Year            int             `json:"year"`
	Population      float64         `json:"population"`
	BuiltUpArea     float64         `json:"builtUpArea"`
	NightLightIndex float64         `json:"nightLightIndex"`
	GrowthBuiltUp   float64         `json:"growthBuiltUp"`
	Confidence      dataset.Measure `json:"confidence"`
}

type seriesResponse struct {
	Historical []sampleJSON `json:"historical"`
	Forecast   []sampleJSON `json:"forecast"`
}

func (r seriesResponse) toSeries() dataset.Series {
	convert := func(in []sampleJSON, kind dataset.SampleKind) []dataset.TimeSample {
		out := make([]dataset.TimeSample, 0, len(in))
		for _, s := range in {
			sample := dataset.TimeSample{
				Year:            s.Year,
				Population:      s.Population,
				BuiltUpArea:     s.BuiltUpArea,
				NightLightIndex: s.NightLightIndex,
				GrowthBuiltUp:   s.GrowthBuiltUp,
				Kind:            kind,
			}
			if kind == dataset.KindPredicted {
				sample.Confidence = s.Confidence
			}
			out = append(out, sample)
		}
		return out
	}
	return dataset.Series{
		Historical: convert(r.Historical, dataset.KindHistorical),
		Forecast:   convert(r.Forecast, dataset.KindPredicted),
	}
}

// featureCollection keeps features raw so one malformed feature is
// skipped instead of failing the whole collection.
type featureCollection struct {
	Type     string            `json:"type"`
	Features []json.RawMessage `json:"features"`
}

type feature struct {
	ID         *int               `json:"id"`
	Geometry   *geometryJSON      `json:"geometry"`
	Properties cellPropertiesJSON `json:"properties"`
}

type geometryJSON struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

type cellPropertiesJSON struct {
	Name              string          `json:"name"`
	OpportunityScore  dataset.Measure `json:"opportunityScore"`
	HousingPressure   dataset.Measure `json:"housingPressure"`
	PopulationDensity dataset.Measure `json:"populationDensity"`
}

// outerRing returns the exterior ring without its closing vertex, or nil
// for anything other than a Polygon with at least three distinct vertices.
func (g *geometryJSON) outerRing() geo.Ring {
	if g == nil || g.Type != "Polygon" {
		return nil
	}
	var rings [][][2]float64
	if err := json.Unmarshal(g.Coordinates, &rings); err != nil || len(rings) == 0 {
		return nil
	}
	coords := rings[0]
	ring := make(geo.Ring, 0, len(coords))
	for _, c := range coords {
		ring = append(ring, geo.Pt(c[0], c[1]))
	}
	if n := len(ring); n > 1 && ring[0] == ring[n-1] {
		ring = ring[:n-1]
	}
	if len(ring) < 3 {
		return nil
	}
	return ring
}

func (c *Client) toCells(fc featureCollection) []dataset.SpatialCell {
	cells := make([]dataset.SpatialCell, 0, len(fc.Features))
	for i, raw := range fc.Features {
		var f feature
		if err := json.Unmarshal(raw, &f); err != nil {
			c.logger.Warn().Err(err).Int("feature_index", i).Msg("skipping malformed cell feature")
			continue
		}
		if f.ID == nil {
			c.logger.Warn().Int("feature_index", i).Msg("skipping cell without id")
			continue
		}
		ring := f.Geometry.outerRing()
		if ring == nil {
			c.logger.Warn().Int("cell_id", *f.ID).Msg("skipping cell without polygon geometry")
			continue
		}
		cells = append(cells, dataset.SpatialCell{
			ID:                *f.ID,
			Name:              f.Properties.Name,
			Polygon:           ring,
			OpportunityScore:  f.Properties.OpportunityScore,
			HousingPressure:   f.Properties.HousingPressure,
			PopulationDensity: f.Properties.PopulationDensity,
		})
	}
	return cells
}

type riverJSON struct {
	Name           string  `json:"name"`
	Polyline       string  `json:"polyline"`
	PollutionLevel float64 `json:"pollutionLevel"`
}

type catchmentJSON struct {
	Name         string     `json:"name"`
	River        string     `json:"river"`
	Center       [2]float64 `json:"center"`
	RadiusMeters float64    `json:"radiusMeters"`
}

type riskZoneJSON struct {
	Name          string     `json:"name"`
	Center        [2]float64 `json:"center"`
	RadiusMeters  float64    `json:"radiusMeters"`
	Population    int        `json:"population"`
	Urgency       string     `json:"urgency"`
	Interventions []string   `json:"interventions"`
}

type referenceResponse struct {
	Rivers     []riverJSON     `json:"rivers"`
	Catchments []catchmentJSON `json:"catchments"`
	RiskZones  []riskZoneJSON  `json:"riskZones"`
}

func (c *Client) toRivers(in []riverJSON) []dataset.RiverSegment {
	rivers := make([]dataset.RiverSegment, 0, len(in))
	for _, r := range in {
		path := polyline.Decode(r.Polyline)
		if len(path) < 2 {
			c.logger.Warn().Str("river", r.Name).Msg("skipping river without a usable path")
			continue
		}
		rivers = append(rivers, dataset.RiverSegment{
			Name:           r.Name,
			Path:           path,
			PollutionLevel: r.PollutionLevel,
		})
	}
	return rivers
}

func (r referenceResponse) toCatchments() []dataset.Catchment {
	out := make([]dataset.Catchment, 0, len(r.Catchments))
	for _, c := range r.Catchments {
		out = append(out, dataset.Catchment{
			Name:         c.Name,
			River:        c.River,
			Center:       geo.Pt(c.Center[0], c.Center[1]),
			RadiusMeters: c.RadiusMeters,
		})
	}
	return out
}

func (r referenceResponse) toRiskZones() []dataset.RiskZone {
	out := make([]dataset.RiskZone, 0, len(r.RiskZones))
	for _, z := range r.RiskZones {
		out = append(out, dataset.RiskZone{
			Name:          z.Name,
			Center:        geo.Pt(z.Center[0], z.Center[1]),
			RadiusMeters:  z.RadiusMeters,
			Population:    z.Population,
			Urgency:       dataset.Urgency(z.Urgency),
			Interventions: z.Interventions,
		})
	}
	return out
}

type detailResponse struct {
	Title         string                     `json:"title"`
	Summary       string                     `json:"summary"`
	Metrics       map[string]dataset.Measure `json:"metrics"`
	Interventions []string                   `json:"interventions"`
}
