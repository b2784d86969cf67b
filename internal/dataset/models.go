// Package dataset holds the time-indexed indicator series and the static
// spatial entities the scene engine draws: grid cells, rivers, catchments
// and risk zones.
package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/urbanscope/urbanscope/pkg/geo"
)

// Dataset errors.
var (
	ErrEntityNotFound      = errors.New("entity not found")
	ErrInvalidSeries       = errors.New("invalid time series")
	ErrInvalidGeometry     = errors.New("record is missing required geometry")
	ErrProviderUnavailable = errors.New("dataset provider unavailable")
)

// SampleKind distinguishes observed samples from forecasts.
type SampleKind string

const (
	KindHistorical SampleKind = "historical"
	KindPredicted  SampleKind = "predicted"
)

// TimeSample is one yearly indicator record for the metro area.
type TimeSample struct {
	Year            int        `json:"year"`
	Population      float64    `json:"population"`
	BuiltUpArea     float64    `json:"builtUpArea"`
	NightLightIndex float64    `json:"nightLightIndex"`
	GrowthBuiltUp   float64    `json:"growthBuiltUp"`
	Kind            SampleKind `json:"kind"`
	// Confidence is only meaningful for predicted samples.
	Confidence Measure `json:"confidence"`
}

// Series is the pair of historical and forecast samples.
type Series struct {
	Historical []TimeSample `json:"historical"`
	Forecast   []TimeSample `json:"forecast"`
}

// Validate checks ordering and kind invariants of both series.
func (s Series) Validate() error {
	if err := validateSamples(s.Historical, KindHistorical); err != nil {
		return fmt.Errorf("historical: %w", err)
	}
	if err := validateSamples(s.Forecast, KindPredicted); err != nil {
		return fmt.Errorf("forecast: %w", err)
	}
	if len(s.Historical) > 0 && len(s.Forecast) > 0 &&
		s.Forecast[0].Year <= s.Historical[len(s.Historical)-1].Year {
		return fmt.Errorf("%w: forecast starts at %d, before last historical year %d",
			ErrInvalidSeries, s.Forecast[0].Year, s.Historical[len(s.Historical)-1].Year)
	}
	return nil
}

func validateSamples(samples []TimeSample, kind SampleKind) error {
	for i, sample := range samples {
		if sample.Kind != kind {
			return fmt.Errorf("%w: sample %d has kind %q, want %q", ErrInvalidSeries, sample.Year, sample.Kind, kind)
		}
		if kind == KindHistorical && sample.Confidence.Known {
			return fmt.Errorf("%w: historical sample %d carries a confidence", ErrInvalidSeries, sample.Year)
		}
		if i > 0 && sample.Year <= samples[i-1].Year {
			return fmt.Errorf("%w: year %d does not follow %d", ErrInvalidSeries, sample.Year, samples[i-1].Year)
		}
	}
	return nil
}

// Measure is an optional numeric attribute. Upstream records may omit
// attributes; those are carried as unknown instead of zero.
type Measure struct {
	Value float64
	Known bool
}

// Known returns a known measure.
func Known(v float64) Measure {
	return Measure{Value: v, Known: true}
}

// Unknown returns a measure with no value.
func Unknown() Measure {
	return Measure{}
}

// Or returns the value when known and def otherwise.
func (m Measure) Or(def float64) float64 {
	if m.Known {
		return m.Value
	}
	return def
}

// MarshalJSON encodes unknown measures as null.
func (m Measure) MarshalJSON() ([]byte, error) {
	if !m.Known {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}

// UnmarshalJSON decodes null or a number.
func (m *Measure) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = Unknown()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = Known(v)
	return nil
}

// Category buckets a cell by its opportunity score.
type Category string

const (
	CategoryLow     Category = "low"
	CategoryMedium  Category = "medium"
	CategoryHigh    Category = "high"
	CategoryUnknown Category = "unknown"
)

// CategoryFor maps an opportunity score to its category.
func CategoryFor(score float64) Category {
	switch {
	case score < 0.4:
		return CategoryLow
	case score < 0.7:
		return CategoryMedium
	default:
		return CategoryHigh
	}
}

// SpatialCell is one polygon of the opportunity grid.
type SpatialCell struct {
	ID                int      `json:"id"`
	Name              string   `json:"name,omitempty"`
	Polygon           geo.Ring `json:"polygon"`
	OpportunityScore  Measure  `json:"opportunityScore"`
	HousingPressure   Measure  `json:"housingPressure"`
	PopulationDensity Measure  `json:"populationDensity"`
}

// Category derives the cell category from its opportunity score.
func (c SpatialCell) Category() Category {
	if !c.OpportunityScore.Known {
		return CategoryUnknown
	}
	return CategoryFor(c.OpportunityScore.Value)
}

// Centroid returns the polygon centroid.
func (c SpatialCell) Centroid() geo.LonLat {
	return c.Polygon.Centroid()
}

// RiverStatus is the pollution status of a river segment.
type RiverStatus string

const (
	StatusModerate RiverStatus = "Moderate"
	StatusPolluted RiverStatus = "Polluted"
	StatusSevere   RiverStatus = "Severe"
	StatusCritical RiverStatus = "Critical"
)

// riverStatusBands are evaluated top-down; the first band whose bound the
// level stays below wins.
var riverStatusBands = []struct {
	below  float64
	status RiverStatus
}{
	{below: 6, status: StatusModerate},
	{below: 15, status: StatusPolluted},
	{below: 30, status: StatusSevere},
}

// RiverStatusFor buckets a BOD-like pollution level.
func RiverStatusFor(level float64) RiverStatus {
	for _, band := range riverStatusBands {
		if level < band.below {
			return band.status
		}
	}
	return StatusCritical
}

// Rank orders statuses from 0 (Moderate) to 3 (Critical).
func (s RiverStatus) Rank() int {
	switch s {
	case StatusPolluted:
		return 1
	case StatusSevere:
		return 2
	case StatusCritical:
		return 3
	default:
		return 0
	}
}

// RiverSegment is a static river polyline with a pollution reading.
type RiverSegment struct {
	Name           string       `json:"name"`
	Path           []geo.LonLat `json:"path"`
	PollutionLevel float64      `json:"pollutionLevel"`
}

// Status derives the segment status from its pollution level.
func (r RiverSegment) Status() RiverStatus {
	return RiverStatusFor(r.PollutionLevel)
}

// Catchment is a drainage area drawn as a halo around its outlet.
type Catchment struct {
	Name         string     `json:"name"`
	River        string     `json:"river"`
	Center       geo.LonLat `json:"center"`
	RadiusMeters float64    `json:"radiusMeters"`
}

// Urgency is the intervention urgency of a risk zone.
type Urgency string

const (
	UrgencyHigh      Urgency = "HIGH"
	UrgencyCritical  Urgency = "CRITICAL"
	UrgencyImmediate Urgency = "IMMEDIATE"
)

// Rank orders urgencies from 0 (HIGH) to 2 (IMMEDIATE).
func (u Urgency) Rank() int {
	switch u {
	case UrgencyCritical:
		return 1
	case UrgencyImmediate:
		return 2
	default:
		return 0
	}
}

// RiskZone is a circular area flagged for intervention.
type RiskZone struct {
	Name          string     `json:"name"`
	Center        geo.LonLat `json:"center"`
	RadiusMeters  float64    `json:"radiusMeters"`
	Population    int        `json:"population"`
	Urgency       Urgency    `json:"urgency"`
	Interventions []string   `json:"interventions"`
}

// Snapshot is an immutable, point-in-time copy of everything the engine
// reads. It is built once by a Provider and never mutated afterwards.
type Snapshot struct {
	Center     geo.LonLat     `json:"center"`
	Series     Series         `json:"series"`
	Cells      []SpatialCell  `json:"cells"`
	Rivers     []RiverSegment `json:"rivers"`
	Catchments []Catchment    `json:"catchments"`
	RiskZones  []RiskZone     `json:"riskZones"`

	FetchedAt time.Time `json:"fetchedAt"`
	Provider  string    `json:"provider"`
}

// Cell looks up a cell by id.
func (s *Snapshot) Cell(id int) (SpatialCell, bool) {
	for _, c := range s.Cells {
		if c.ID == id {
			return c, true
		}
	}
	return SpatialCell{}, false
}

// River looks up a river segment by name.
func (s *Snapshot) River(name string) (RiverSegment, bool) {
	for _, r := range s.Rivers {
		if r.Name == name {
			return r, true
		}
	}
	return RiverSegment{}, false
}

// RiskZone looks up a risk zone by name.
func (s *Snapshot) RiskZone(name string) (RiskZone, bool) {
	for _, z := range s.RiskZones {
		if z.Name == name {
			return z, true
		}
	}
	return RiskZone{}, false
}
